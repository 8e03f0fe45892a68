package tools

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Args wraps loosely typed model arguments.
type Args map[string]any

func (a Args) String(key, def string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return def
	}
	switch s := v.(type) {
	case string:
		if strings.TrimSpace(s) == "" {
			return def
		}
		return s
	default:
		return fmt.Sprint(s)
	}
}

func (a Args) Bool(key string) bool {
	switch v := a[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b
	case float64:
		return v != 0
	}
	return false
}

func (a Args) Float(key string, def float64) float64 {
	switch v := a[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func (a Args) Int(key string, def int) int {
	f := a.Float(key, float64(def))
	return int(f)
}

// Strings accepts a single string or a list.
func (a Args) Strings(key string) []string {
	switch v := a[key].(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return []string{v}
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
