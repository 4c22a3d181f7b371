package models

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// plainMap converts the json.Number values datatypes.JSONMap scans into
// float64, the shape encoding/json decodes into map[string]any.
func plainMap(m datatypes.JSONMap) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = plainValue(v)
	}
	return out
}

func plainValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		return plainMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = plainValue(e)
		}
		return out
	default:
		return v
	}
}
