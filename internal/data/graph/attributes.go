package graph

import (
	"sort"
	"strconv"
)

// Attributes are node or edge properties. Values are scalars or slices of scalars so
// that they round-trip through neo4j unchanged.
type Attributes map[string]any

func (a Attributes) Clone() Attributes {
	if a == nil {
		return Attributes{}
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		switch t := v.(type) {
		case []string:
			out[k] = append([]string(nil), t...)
		case []any:
			out[k] = append([]any(nil), t...)
		default:
			out[k] = v
		}
	}
	return out
}

func (a Attributes) Has(key string) bool {
	_, ok := a[key]
	return ok
}

func (a Attributes) String(key string) string {
	switch t := a[key].(type) {
	case string:
		return t
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// Float reads a numeric attribute. Neo4j hands integers back as int64.
func (a Attributes) Float(key string) (float64, bool) {
	switch t := a[key].(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	default:
		return 0, false
	}
}

func (a Attributes) Int(key string) (int64, bool) {
	switch t := a[key].(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	default:
		return 0, false
	}
}

func (a Attributes) Bool(key string) bool {
	b, _ := a[key].(bool)
	return b
}

func (a Attributes) Strings(key string) []string {
	switch t := a[key].(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, v := range t {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Keys returns the attribute names in sorted order.
func (a Attributes) Keys() []string {
	out := make([]string, 0, len(a))
	for k := range a {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
