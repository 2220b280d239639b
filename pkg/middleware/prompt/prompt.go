// Package prompt renders text/template prompts inside a flow.
package prompt

import (
	"bytes"
	"fmt"
	"maps"
	"strings"
	"text/template"

	"github.com/quill-ai/go-quill/pkg/helpers"
	"github.com/quill-ai/go-quill/pkg/quill"
)

// Funcs are available to every template parsed by this package.
var Funcs = template.FuncMap{
	"truncate":  func(n int, s string) string { return helpers.Truncate(s, n) },
	"stripTags": helpers.StripTags,
	"trim":      strings.TrimSpace,
	"default":   func(def, s string) string { return helpers.DefaultString(s, def) },
}

// Parse parses text with Funcs installed.
func Parse(name, text string) (*template.Template, error) {
	return template.New(name).Funcs(Funcs).Parse(text)
}

// Must is Parse that panics, for package-level prompt variables.
func Must(name, text string) *template.Template {
	return template.Must(Parse(name, text))
}

// Template creates a handler that renders templateStr with the input as
// .Input and data merged in.
//
// Input: any text
// Output: rendered prompt
// Behavior: BUFFERED
//
// Example:
//
//	flow := quill.NewFlow().
//	    Use(prompt.Template("Setting:\n{{.Setting}}\n\nQuestion: {{.Input}}", map[string]any{
//	        "Setting": settings.XML(),
//	    })).
//	    Use(ai.Agent(client))
func Template(templateStr string, data ...map[string]any) quill.Handler {
	tmpl, err := Parse("prompt", templateStr)
	if err != nil {
		return quill.HandlerFunc(func(_ *quill.Request, _ *quill.Response) error {
			return fmt.Errorf("template parse error: %w", err)
		})
	}
	return FromTemplate(tmpl, data...)
}

// System prefixes the input with a system message.
func System(systemMessage string) quill.Handler {
	return Template("{{.System}}\n\n{{.Input}}", map[string]any{"System": systemMessage})
}

// FromTemplate creates a handler from a parsed template. Data maps are
// merged in order; later keys win, and .Input is always the flow input.
func FromTemplate(tmpl *template.Template, data ...map[string]any) quill.Handler {
	return quill.HandlerFunc(func(req *quill.Request, res *quill.Response) error {
		var input string
		if err := quill.Read(req, &input); err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		merged := make(map[string]any)
		for _, d := range data {
			maps.Copy(merged, d)
		}
		merged["Input"] = input

		out, err := execute(tmpl, merged)
		if err != nil {
			return err
		}
		return quill.Write(res, out)
	})
}

// Render executes tmpl outside a flow.
func Render(tmpl *template.Template, data map[string]any) (string, error) {
	out, err := execute(tmpl, data)
	return string(out), err
}

func execute(tmpl *template.Template, data map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("template execution error: %w", err)
	}
	return buf.Bytes(), nil
}
