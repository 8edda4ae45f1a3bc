// Package template resolves references into a run context and renders
// string templates against it.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"
)

var funcs = template.FuncMap{
	"now": func() string {
		return time.Now().UTC().Format(time.RFC3339)
	},
	"rand": func(max int) int {
		if max <= 0 {
			return 0
		}

		num := make([]byte, 1)
		if _, err := rand.Read(num); err != nil {
			return 0
		}

		return int(num[0]) % max
	},
	"json": func(v any) (string, error) {
		data, err := json.Marshal(v)

		return string(data), err
	},
	"get": func(path string, data map[string]any) any {
		return Resolve(path, data)
	},
}

// Render formats templateStr against data. Go template actions ("{{ .name }}")
// run first, then "{dotted.path}" placeholders are substituted.
func Render(templateStr string, data map[string]any) (string, error) {
	rendered := templateStr

	if strings.Contains(templateStr, "{{") {
		tmpl, err := template.New("transform").Funcs(funcs).Option("missingkey=zero").Parse(templateStr)
		if err != nil {
			return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
		}

		var buf strings.Builder

		if err := tmpl.Execute(&buf, data); err != nil {
			return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
		}

		rendered = buf.String()
	}

	return stringify(InterpolateString(rendered, data)), nil
}

// RenderValue renders like Render and then coerces the output into JSON,
// number or boolean when it looks like one.
func RenderValue(templateStr string, data map[string]any) (any, error) {
	rendered, err := Render(templateStr, data)
	if err != nil {
		return nil, err
	}

	return Coerce(rendered), nil
}

// Coerce converts textual JSON, numbers and booleans into their typed values.
func Coerce(value string) any {
	trimmed := strings.TrimSpace(value)

	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			return decoded
		}
	}

	if num, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return num
	}

	if b, err := strconv.ParseBool(trimmed); err == nil {
		return b
	}

	return value
}
