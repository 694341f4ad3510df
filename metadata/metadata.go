// Package metadata implements the immutable key/value bag attached to
// every message and the matcher used to translate filter predicates into
// SQL (spec §4.4 "Metadata matcher translation").
package metadata

// Metadata is an immutable set of key/value pairs. Values are whatever
// the JSON codec can round-trip (string, float64, bool, nil, map, slice).
// It behaves like a small persistent map: WithValue never mutates the
// receiver, it returns a new Metadata.
type Metadata struct {
	values map[string]interface{}
}

// New returns an empty Metadata
func New() Metadata {
	return Metadata{values: map[string]interface{}{}}
}

// FromMap wraps an existing map. The map is copied so the caller may
// continue to mutate their copy freely.
func FromMap(m map[string]interface{}) Metadata {
	copied := make(map[string]interface{}, len(m))
	for k, v := range m {
		copied[k] = v
	}
	return Metadata{values: copied}
}

// AsMap returns a copy of the underlying key/value pairs
func (m Metadata) AsMap() map[string]interface{} {
	copied := make(map[string]interface{}, len(m.values))
	for k, v := range m.values {
		copied[k] = v
	}
	return copied
}

// Value returns the value stored under key, and whether it was present
func (m Metadata) Value(key string) (interface{}, bool) {
	v, ok := m.values[key]
	return v, ok
}

// WithValue returns a copy of m with key set to value
func WithValue(m Metadata, key string, value interface{}) Metadata {
	next := make(map[string]interface{}, len(m.values)+1)
	for k, v := range m.values {
		next[k] = v
	}
	next[key] = value
	return Metadata{values: next}
}

// Well-known metadata keys used by the persistence strategies (spec §3/§4.1)
const (
	FieldAggregateType    = "_aggregate_type"
	FieldAggregateID      = "_aggregate_id"
	FieldAggregateVersion = "_aggregate_version"
	// FieldPosition is injected by the stream iterator (spec §4.3) when
	// not already present, set to the row's "no".
	FieldPosition = "_position"
)
