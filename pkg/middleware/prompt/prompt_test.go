package prompt

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/quill-ai/go-quill/pkg/quill"
)

func serve(t *testing.T, h quill.Handler, input string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	req := quill.NewRequest(context.Background(), strings.NewReader(input))
	err := h.ServeFlow(req, quill.NewResponse(&buf))
	return buf.String(), err
}

func TestTemplate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		template    string
		data        []map[string]any
		input       string
		expected    string
		errorSubstr string
	}{
		{
			name:     "input only",
			template: "Question: {{.Input}}",
			input:    "Who rules the northern kingdom?",
			expected: "Question: Who rules the northern kingdom?",
		},
		{
			name:     "extra data",
			template: "Section: {{.Section}}\n{{.Input}}",
			data:     []map[string]any{{"Section": "geography"}},
			input:    "add a river",
			expected: "Section: geography\nadd a river",
		},
		{
			name:     "later maps win",
			template: "{{.A}}{{.B}}",
			data:     []map[string]any{{"A": "1", "B": "2"}, {"B": "3"}},
			expected: "13",
		},
		{
			name:     "input cannot be overridden",
			template: "{{.Input}}",
			data:     []map[string]any{{"Input": "spoofed"}},
			input:    "real",
			expected: "real",
		},
		{
			name:     "funcs",
			template: `{{truncate 5 .Input}}|{{stripTags "<b>bold</b>"}}|{{default "none" .Empty}}`,
			data:     []map[string]any{{"Empty": " "}},
			input:    "abcdefgh",
			expected: "abcde|bold|none",
		},
		{
			name:        "parse error",
			template:    "broken {{.Input",
			errorSubstr: "template parse error",
		},
		{
			name:        "execution error",
			template:    "{{truncate .Input}}",
			input:       "x",
			errorSubstr: "template execution error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := serve(t, Template(tt.template, tt.data...), tt.input)
			if tt.errorSubstr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errorSubstr) {
					t.Fatalf("err = %v, want %q", err, tt.errorSubstr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestSystem(t *testing.T) {
	t.Parallel()

	got, err := serve(t, System("You are a story editor."), "Tighten this scene.")
	if err != nil {
		t.Fatal(err)
	}
	if want := "You are a story editor.\n\nTighten this scene."; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRender(t *testing.T) {
	t.Parallel()

	tmpl := Must("steps", "{{range $i, $s := .Steps}}{{if $i}}, {{end}}{{$s}}{{end}}")
	got, err := Render(tmpl, map[string]any{"Steps": []string{"a", "b", "c"}})
	if err != nil {
		t.Fatal(err)
	}
	if got != "a, b, c" {
		t.Errorf("got %q", got)
	}
}

func TestTemplateInFlow(t *testing.T) {
	t.Parallel()

	var out string
	err := quill.NewFlow().
		Use(Template("[{{trim .Input}}]")).
		Use(Template("<{{.Input}}>")).
		Run(context.Background(), "  dragons \n", &out)
	if err != nil {
		t.Fatal(err)
	}
	if out != "<[dragons]>" {
		t.Errorf("out = %q", out)
	}
}
