package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// payload wraps a raw mapping with typed, alias-aware accessors.
type payload map[string]any

func (p payload) lookup(keys ...string) (any, string, bool) {
	for _, k := range keys {
		if v, ok := p[k]; ok && v != nil {
			return v, k, true
		}
	}
	return nil, "", false
}

func (p payload) str(keys ...string) string {
	v, _, ok := p.lookup(keys...)
	if !ok {
		return ""
	}
	return toString(v)
}

func (p payload) float(keys ...string) (*float64, string, error) {
	v, key, ok := p.lookup(keys...)
	if !ok {
		return nil, "", nil
	}
	f, err := toFloat(v)
	if err != nil {
		return nil, key, err
	}
	return &f, key, nil
}

func (p payload) boolean(keys ...string) *bool {
	v, _, ok := p.lookup(keys...)
	if !ok {
		return nil
	}
	switch b := v.(type) {
	case bool:
		return &b
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return nil
		}
		return &parsed
	case int, int64, float64:
		f, _ := toFloat(b)
		out := f != 0
		return &out
	}
	return nil
}

// strings accepts a list of scalars or a comma separated string.
func (p payload) strings(keys ...string) []string {
	v, _, ok := p.lookup(keys...)
	if !ok {
		return nil
	}
	var raw []string
	switch list := v.(type) {
	case []string:
		raw = list
	case []any:
		for _, item := range list {
			raw = append(raw, toString(item))
		}
	case string:
		raw = strings.Split(list, ",")
	default:
		raw = []string{toString(list)}
	}

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = collapseSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (p payload) stringMap(keys ...string) map[string]string {
	v, _, ok := p.lookup(keys...)
	if !ok {
		return nil
	}
	out := make(map[string]string)
	switch m := v.(type) {
	case map[string]string:
		for k, s := range m {
			if s = strings.TrimSpace(s); s != "" {
				out[k] = s
			}
		}
	case map[string]any:
		for k, item := range m {
			if s := strings.TrimSpace(toString(item)); s != "" {
				out[k] = s
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (p payload) maps(keys ...string) []map[string]any {
	v, _, ok := p.lookup(keys...)
	if !ok {
		return nil
	}
	var out []map[string]any
	switch list := v.(type) {
	case []map[string]any:
		out = list
	case []any:
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
	}
	return out
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}

// toFloat converts a payload number. NaN and infinities are rejected.
func toFloat(v any) (float64, error) {
	f, err := anyFloat(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number: %v", f)
	}
	return f, nil
}

func anyFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

var dateLayouts = []string{time.RFC3339, "2006-01-02", "2006-01", "2006"}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
