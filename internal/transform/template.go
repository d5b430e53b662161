// Package transform renders Go text/template expressions embedded in
// build definitions and step configurations against a build context.
package transform

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// Context is the data a template expression is evaluated against, for
// example {"settings": {...}, "chainId": 10}.
type Context map[string]any

// Render evaluates s as a template against ctx. Strings without an
// action delimiter are returned unchanged without parsing.
func Render(s string, ctx Context) (string, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}

	tmpl, err := template.New("").Option("missingkey=error").Parse(s)
	if err != nil {
		return "", fmt.Errorf("parsing template %q: %w", s, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, map[string]any(ctx)); err != nil {
		return "", fmt.Errorf("executing template %q: %w", s, err)
	}

	return buf.String(), nil
}

// RenderAll renders every element of values, preserving order. A nil
// slice stays nil.
func RenderAll(values []string, ctx Context) ([]string, error) {
	if values == nil {
		return nil, nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		r, err := Render(v, ctx)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = r
	}
	return out, nil
}

// MergeVars merges base variables with overrides. Override values win.
func MergeVars(base map[string]string, overrides map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
