package template

import (
	"strings"
	"testing"

	"github.com/sophialabs/stubhttp/internal/domain/match"
)

func render(t *testing.T, engine, source string, ctx match.RenderContext) string {
	t.Helper()
	r, err := NewRegistry().Compile(engine, "test", source)
	if err != nil {
		t.Fatalf("Compile(%s) failed: %v", engine, err)
	}
	out, err := r.Render(ctx)
	if err != nil {
		t.Fatalf("Render(%s) failed: %v", engine, err)
	}
	return string(out)
}

func TestEngines_SharedHelpers(t *testing.T) {
	ctx := match.RenderContext{
		Method:      "POST",
		Path:        "/users/7",
		Headers:     map[string]string{"Content-Type": "application/json", "X-Mode": "debug"},
		QueryParams: map[string]string{"page": "3"},
		PathParams:  map[string]string{"id": "7"},
		Body:        []byte(`{"name":"Alice","tags":["a","b"]}`),
		Now:         "2025-01-15T10:30:00Z",
	}

	tests := []struct {
		name   string
		expr   string
		jinja2 string
		want   string
	}{
		{"path param", `user=${pathParam('id')}`, `user={{ pathParam("id") }}`, "user=7"},
		{"query param", `page=${queryParam('page')}`, `page={{ queryParam("page") }}`, "page=3"},
		{"header case-insensitive", `${header('content-type')}`, `{{ header("content-type") }}`, "application/json"},
		{"method and path", `${method} ${path}`, `{{ method }} {{ path }}`, "POST /users/7"},
		{"now", `${now()}`, `{{ now }}`, "2025-01-15T10:30:00Z"},
		{"now format", `${nowFormat('2006-01-02')}`, `{{ nowFormat("2006-01-02") }}`, "2025-01-15"},
		{"json path scalar", `${jsonPath('$.name')}`, `{{ jsonPath("$.name") }}`, "Alice"},
		{"json path array", `${jsonPath('$.tags')}`, `{{ jsonPath("$.tags")|safe }}`, `["a","b"]`},
		{"seq to json", `${toJSON(seq(1, 3))}`, `{{ toJSON(seq(1, 3)) }}`, "[1,2,3]"},
		{"conditional", `${header('X-Mode') == 'debug' ? 'verbose' : 'brief'}`,
			`{% if header("X-Mode") == "debug" %}verbose{% else %}brief{% endif %}`, "verbose"},
		{"static", `plain text`, `plain text`, "plain text"},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/expr", func(t *testing.T) {
			if got := render(t, "expr", tt.expr, ctx); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
		t.Run(tt.name+"/jinja2", func(t *testing.T) {
			if got := render(t, "jinja2", tt.jinja2, ctx); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestEngines_UUID(t *testing.T) {
	for engine, source := range map[string]string{"expr": `${uuid()}`, "jinja2": `{{ uuid() }}`} {
		s := render(t, engine, source, match.RenderContext{})
		if len(s) != 36 || s[8] != '-' || s[13] != '-' || s[18] != '-' || s[23] != '-' {
			t.Errorf("%s: expected UUID format, got %q", engine, s)
		}
	}
}

func TestEngines_RandomIntInRange(t *testing.T) {
	for range 20 {
		s := render(t, "expr", `${randomInt(3, 3)}`, match.RenderContext{})
		if s != "3" {
			t.Fatalf("degenerate range should return its bound, got %q", s)
		}
	}
}

func TestExprCompiler_NestedBraces(t *testing.T) {
	got := render(t, "expr", `${toJSON({'key': pathParam('id')})}`, match.RenderContext{
		PathParams: map[string]string{"id": "42"},
	})
	if got != `{"key":"42"}` {
		t.Errorf("unexpected result %q", got)
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		engine string
		source string
	}{
		{"expr", `${invalid syntax here ???}`},
		{"expr", `Hello ${pathParam('name')`},
		{"jinja2", `{% if %}broken{% endif %}`},
		{"mustache", `{{x}}`},
	}

	for _, tt := range tests {
		if _, err := NewRegistry().Compile(tt.engine, "bad", tt.source); err == nil {
			t.Errorf("%s: expected compile error for %q", tt.engine, tt.source)
		}
	}
}

func TestRegistry_UnknownEngineListsSupported(t *testing.T) {
	_, err := NewRegistry().Compile("handlebars", "x", "")
	if err == nil || !strings.Contains(err.Error(), "expr, jinja2") {
		t.Errorf("expected supported engines in error, got %v", err)
	}
}

type upperCompiler struct{}

func (upperCompiler) Compile(_, source string) (match.BodyRenderer, error) {
	return &staticRenderer{body: []byte(strings.ToUpper(source))}, nil
}

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry()
	reg.Register("upper", upperCompiler{})

	r, err := reg.Compile("upper", "x", "shout")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, _ := r.Render(match.RenderContext{})
	if string(out) != "SHOUT" {
		t.Errorf("expected SHOUT, got %q", out)
	}
	if got := strings.Join(reg.Engines(), ","); got != "expr,jinja2,upper" {
		t.Errorf("unexpected engines %s", got)
	}
}

func TestCompilePredicate(t *testing.T) {
	p, err := CompilePredicate(`json.amount > 100 && body contains "EUR"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		body string
		want bool
	}{
		{`{"amount":150,"currency":"EUR"}`, true},
		{`{"amount":50,"currency":"EUR"}`, false},
		{`{"amount":150,"currency":"USD"}`, false},
		{`not json EUR`, false},
	}
	for _, tt := range tests {
		if got := p(tt.body); got != tt.want {
			t.Errorf("predicate(%s) = %v, want %v", tt.body, got, tt.want)
		}
	}

	if _, err := CompilePredicate(`body + 1`); err == nil {
		t.Error("expected error for non-boolean expression")
	}
}
