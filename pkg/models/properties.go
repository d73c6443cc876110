package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Properties holds the free-form configuration of a node or guard.
// Values come from JSON or YAML so numbers may be float64 or int.
type Properties map[string]any

func (p Properties) Has(key string) bool {
	_, ok := p[key]

	return ok
}

func (p Properties) String(key string) string {
	value, ok := p[key]
	if !ok || value == nil {
		return ""
	}

	switch v := value.(type) {
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// StringDefault returns the string value for key or def when it is empty.
func (p Properties) StringDefault(key, def string) string {
	if value := p.String(key); value != "" {
		return value
	}

	return def
}

// StringSlice accepts a list of values or a comma separated string.
func (p Properties) StringSlice(key string) []string {
	value, ok := p[key]
	if !ok || value == nil {
		return nil
	}

	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s := strings.TrimSpace(fmt.Sprintf("%v", item)); s != "" {
				out = append(out, s)
			}
		}

		return out
	case string:
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))

		for _, part := range parts {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}

		return out
	default:
		return nil
	}
}

func (p Properties) Float(key string, def float64) float64 {
	value, ok := p[key]
	if !ok || value == nil {
		return def
	}

	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return def
		}

		return f
	default:
		return def
	}
}

func (p Properties) Int(key string, def int) int {
	return int(p.Float(key, float64(def)))
}

func (p Properties) Bool(key string, def bool) bool {
	value, ok := p[key]
	if !ok || value == nil {
		return def
	}

	switch v := value.(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return def
		}

		return b
	default:
		return def
	}
}

// Map returns a nested properties object.
func (p Properties) Map(key string) Properties {
	value, ok := p[key]
	if !ok || value == nil {
		return nil
	}

	switch v := value.(type) {
	case Properties:
		return v
	case map[string]any:
		return Properties(v)
	default:
		return nil
	}
}

// Clone returns a shallow copy.
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}

	return out
}
