package optcache

// Key returns the cache key for a resource type fetched from a provider. If
// providerID is empty the key is the resource type alone, otherwise it is
// providerID + ":" + resourceType. Any per-node disambiguation must already
// be folded into resourceType.
func Key(resourceType, providerID string) string {
	if providerID == "" {
		return resourceType
	}
	return providerID + ":" + resourceType
}
