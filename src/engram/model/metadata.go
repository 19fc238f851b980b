package model

import (
	"encoding/json"
	"time"
)

// FloatFromAny coerces loosely-typed metadata values into a float64.
func FloatFromAny(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		var f float64
		if err := json.Unmarshal([]byte(t), &f); err == nil {
			return f
		}
	}
	return 0
}

// IntFromAny coerces loosely-typed metadata values into an int.
func IntFromAny(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i)
		}
	}
	return 0
}

// StringFromAny renders a metadata value as a string, JSON-encoding
// non-string values.
func StringFromAny(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// TimeFromAny parses RFC 3339 strings and passes time.Time through.
func TimeFromAny(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// MetadataMatches reports whether every key in want equals the
// corresponding entry in got. Values are compared by their JSON
// rendering so numeric types round-tripped through a store still match.
func MetadataMatches(got, want map[string]any) bool {
	if len(want) == 0 {
		return true
	}
	for k, v := range want {
		gv, ok := got[k]
		if !ok {
			return false
		}
		if gv == v {
			continue
		}
		if StringFromAny(gv) != StringFromAny(v) {
			return false
		}
	}
	return true
}
