// Package fieldreq holds the registry of dynamic fields that each node type
// needs options for. The registry is filled from a node catalog at startup
// and may be extended at runtime; it is read far more often than written.
package fieldreq

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// Requirement describes one dynamic field of a node type.
type Requirement struct {
	// Field is the name of the configuration field.
	Field string
	// ResourceType identifies the option list the field is filled from, such
	// as "channels" or "databases".
	ResourceType string
	// TTL overrides the default time-to-live for cached options. Zero means
	// use the default.
	TTL time.Duration
	// DependsOn lists the resource types whose selected value determines this
	// field's options. A field with dependencies cannot be prefetched.
	DependsOn []string
}

// Independent reports whether the field's options can be fetched without
// knowing the value of any other field.
func (r Requirement) Independent() bool {
	return len(r.DependsOn) == 0
}

func (r Requirement) validate() error {
	if r.Field == "" {
		return errors.New("missing field name")
	}
	if r.ResourceType == "" {
		return fmt.Errorf("field %q: missing resource type", r.Field)
	}
	if r.TTL < 0 {
		return fmt.Errorf("field %q: negative ttl", r.Field)
	}
	return nil
}

// Registry maps node types to their field requirements.
//
// Safe for concurrent use.
type Registry struct {
	mutex sync.RWMutex
	reqs  map[string][]Requirement
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		reqs: make(map[string][]Requirement),
	}
}

// FieldsFor returns the requirements for nodeType in declaration order. A node
// type with nothing registered returns nil.
func (r *Registry) FieldsFor(nodeType string) []Requirement {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	reqs := r.reqs[nodeType]
	if len(reqs) == 0 {
		return nil
	}
	out := make([]Requirement, len(reqs))
	copy(out, reqs)
	return out
}

// Register adds requirements for nodeType. A requirement for a field that is
// already registered replaces it in place, keeping its position; new fields
// are appended. Nothing is registered if any requirement is invalid.
func (r *Registry) Register(nodeType string, reqs ...Requirement) error {
	if nodeType == "" {
		return errors.New("missing node type")
	}
	for _, req := range reqs {
		if err := req.validate(); err != nil {
			return fmt.Errorf("node type %q: %w", nodeType, err)
		}
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	existing := r.reqs[nodeType]
	for _, req := range reqs {
		req.DependsOn = append([]string(nil), req.DependsOn...)
		replaced := false
		for i := range existing {
			if existing[i].Field == req.Field {
				existing[i] = req
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, req)
		}
	}
	r.reqs[nodeType] = existing
	return nil
}

// NodeTypes returns the registered node types in sorted order.
func (r *Registry) NodeTypes() []string {
	r.mutex.RLock()
	types := make([]string, 0, len(r.reqs))
	for nodeType := range r.reqs {
		types = append(types, nodeType)
	}
	r.mutex.RUnlock()

	sort.Strings(types)
	return types
}

// catalogField is the JSON form of a Requirement.
type catalogField struct {
	Field        string   `json:"field"`
	ResourceType string   `json:"resourceType"`
	TTL          string   `json:"ttl,omitempty"`
	DependsOn    []string `json:"dependsOn,omitempty"`
}

// Load reads a JSON node catalog and registers its requirements. The catalog
// is an object mapping node type to a list of fields, for example:
//
//	{
//	  "slack.postMessage": [
//	    {"field": "channel", "resourceType": "channels", "ttl": "5m"},
//	    {"field": "thread", "resourceType": "threads", "dependsOn": ["channels"]}
//	  ]
//	}
//
// Field order in each list is the declaration order.
func (r *Registry) Load(rd io.Reader) error {
	var catalog map[string][]catalogField
	if err := json.NewDecoder(rd).Decode(&catalog); err != nil {
		return fmt.Errorf("cannot decode node catalog: %w", err)
	}

	parsed := make(map[string][]Requirement, len(catalog))
	for nodeType, fields := range catalog {
		reqs := make([]Requirement, len(fields))
		for i, f := range fields {
			var ttl time.Duration
			if f.TTL != "" {
				var err error
				ttl, err = time.ParseDuration(f.TTL)
				if err != nil {
					return fmt.Errorf("node type %q field %q: bad ttl: %w", nodeType, f.Field, err)
				}
			}
			reqs[i] = Requirement{
				Field:        f.Field,
				ResourceType: f.ResourceType,
				TTL:          ttl,
				DependsOn:    f.DependsOn,
			}
			if err := reqs[i].validate(); err != nil {
				return fmt.Errorf("node type %q: %w", nodeType, err)
			}
		}
		parsed[nodeType] = reqs
	}

	for nodeType, reqs := range parsed {
		if err := r.Register(nodeType, reqs...); err != nil {
			return err
		}
	}
	return nil
}
