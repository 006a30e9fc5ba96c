package graphstore

import "fmt"

// String reads a scalar column, returning "" for nil.
func String(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// Strings reads a list column. The driver returns []any; fakes may return
// []string directly.
func Strings(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			if s := String(x); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Int reads an integer column. The driver returns int64.
func Int(v any) int {
	switch t := v.(type) {
	case int64:
		return int(t)
	case int:
		return t
	case float64:
		return int(t)
	default:
		return 0
	}
}

// Float reads a float column.
func Float(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int64:
		return float64(t)
	case int:
		return float64(t)
	default:
		return 0
	}
}

// Map reads a map column such as a node projection.
func Map(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return nil
}

// Maps reads a list of map columns.
func Maps(v any) []map[string]any {
	switch t := v.(type) {
	case []map[string]any:
		return t
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, x := range t {
			if m := Map(x); m != nil {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}
