package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var placeholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z0-9_]+)*)\}`)

// Resolve looks up a dotted path ("step1.output.data", "items.0") in data.
// A missing segment anywhere along the path resolves to nil.
func Resolve(path string, data map[string]any) any {
	if path == "" {
		return nil
	}

	var current any = data

	for _, part := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			value, ok := node[part]
			if !ok {
				return nil
			}

			current = value
		case map[string]string:
			value, ok := node[part]
			if !ok {
				return nil
			}

			current = value
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil
			}

			current = node[idx]
		default:
			return nil
		}
	}

	return current
}

// ResolveInputs resolves every binding of inputs against data.
func ResolveInputs(inputs map[string]string, data map[string]any) map[string]any {
	resolved := make(map[string]any, len(inputs))

	for name, ref := range inputs {
		resolved[name] = Resolve(ref, data)
	}

	return resolved
}

// Interpolate walks value and substitutes "{path}" placeholders in every string.
func Interpolate(value any, data map[string]any) any {
	switch v := value.(type) {
	case string:
		return InterpolateString(v, data)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = Interpolate(item, data)
		}

		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Interpolate(item, data)
		}

		return out
	default:
		return value
	}
}

// InterpolateString substitutes placeholders in s. When s is exactly one
// placeholder the raw value is returned, so lists and maps survive. Placeholders
// that do not resolve, and "{{ }}" template actions, are left untouched.
func InterpolateString(s string, data map[string]any) any {
	if !strings.Contains(s, "{") {
		return s
	}

	if m := placeholder.FindStringSubmatchIndex(s); m != nil && m[0] == 0 && m[1] == len(s) {
		if value := Resolve(s[m[2]:m[3]], data); value != nil {
			return value
		}

		return s
	}

	var (
		builder strings.Builder
		last    int
	)

	for _, m := range placeholder.FindAllStringSubmatchIndex(s, -1) {
		start, end := m[0], m[1]
		if start > 0 && s[start-1] == '{' || end < len(s) && s[end] == '}' {
			continue
		}

		value := Resolve(s[m[2]:m[3]], data)
		if value == nil {
			continue
		}

		builder.WriteString(s[last:start])
		builder.WriteString(stringify(value))
		last = end
	}

	builder.WriteString(s[last:])

	return builder.String()
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}

		return string(data)
	default:
		return fmt.Sprint(v)
	}
}
