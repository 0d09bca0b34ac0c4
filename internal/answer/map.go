package answer

import (
	"encoding/json"
	"sort"
)

// Map holds answers keyed by field name.
type Map map[string]Value

// Get returns the value for name, or Null when absent.
func (m Map) Get(name string) Value {
	v, ok := m[name]
	if !ok || v == nil {
		return Null{}
	}
	return v
}

// Merge returns a new map containing base overlaid with overlay.
// Values in overlay win per key. Neither input is modified.
func Merge(base, overlay Map) Map {
	out := make(Map, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

// NonEmpty reports whether any value in m is a non-empty answer.
func (m Map) NonEmpty() bool {
	for _, v := range m {
		if v != nil && !v.IsEmpty() {
			return true
		}
	}
	return false
}

// Names returns the keys of m in sorted order.
func (m Map) Names() []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// UnmarshalJSON implements json.Unmarshaler for Map.
func (m *Map) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = make(Map, len(raw))
	for k, v := range raw {
		(*m)[k] = FromAny(v)
	}
	return nil
}
