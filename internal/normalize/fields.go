package normalize

import (
	"encoding/json"
	"strconv"
	"strings"
)

func getMap(m Raw, key string) Raw {
	if m == nil {
		return nil
	}
	v, _ := m[key].(map[string]any)
	return v
}

func getMaps(m Raw, key string) []Raw {
	if m == nil {
		return nil
	}
	list, _ := m[key].([]any)
	out := make([]Raw, 0, len(list))
	for _, v := range list {
		if mm, ok := v.(map[string]any); ok {
			out = append(out, mm)
		}
	}
	return out
}

func getStrings(m Raw, key string) []string {
	if m == nil {
		return nil
	}
	list, _ := m[key].([]any)
	var out []string
	for _, v := range list {
		if s := scalarString(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// getString reads a scalar as text; identifiers are sometimes numeric in the source.
func getString(m Raw, key string) string {
	if m == nil {
		return ""
	}
	return scalarString(m[key])
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func getFloat(m Raw, key string) float64 {
	if m == nil {
		return 0
	}
	switch t := m[key].(type) {
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
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
