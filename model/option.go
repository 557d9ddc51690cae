package model

import "encoding/json"

// Option is a single choice in a dynamic option list, such as a channel or a
// database offered by a provider.
type Option struct {
	// Key is the provider-side identifier stored when the option is chosen.
	Key string `json:"key"`
	// Label is the human readable text shown in a dropdown.
	Label string `json:"label"`
	// Attrs holds any additional provider-specific attributes. Values are
	// opaque to the cache.
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Options is an ordered list of options as returned by a provider. Order is
// preserved by the cache.
type Options []Option

// MarshalOptions encodes options as a JSON array. A nil list is encoded as an
// empty array so that an empty but successful fetch is distinguishable from a
// missing record.
func MarshalOptions(o Options) ([]byte, error) {
	if o == nil {
		o = Options{}
	}
	return json.Marshal(o)
}

// UnmarshalOptions decodes a JSON array of options.
func UnmarshalOptions(data []byte) (Options, error) {
	var o Options
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, err
	}
	return o, nil
}
