package docstore

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Normalize converts arbitrary Go values into the JSON-shaped representation every backend
// returns, so a value read back compares equal regardless of where it was stored.
func Normalize(fields Fields) (Fields, error) {
	if fields == nil {
		return Fields{}, nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFields, err)
	}
	out := Fields{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFields, err)
	}
	return out, nil
}

// Merge returns base with every top-level field of patch overlaid.
func Merge(base, patch Fields) Fields {
	out := make(Fields, len(base)+len(patch))
	maps.Copy(out, base)
	maps.Copy(out, patch)
	return out
}

// Clone deep-copies JSON-shaped fields.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = cloneValue(inner)
		}
		return out
	case Fields:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = cloneValue(inner)
		}
		return out
	default:
		return v
	}
}

// Clone returns a snapshot with its own copy of the fields.
func (s Snapshot) Clone() Snapshot {
	s.Fields = s.Fields.Clone()
	return s
}
