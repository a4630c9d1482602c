package template

import (
	"fmt"
	"maps"

	"github.com/flosch/pongo2/v6"

	"github.com/sophialabs/stubhttp/internal/domain/match"
)

// Jinja2Compiler compiles body templates using Pongo2 (Django/Jinja2-style).
type Jinja2Compiler struct{}

// Compile parses the source as a Pongo2 template.
func (c *Jinja2Compiler) Compile(name, source string) (match.BodyRenderer, error) {
	tpl, err := pongo2.FromString(source)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jinja2 template %q: %w", name, err)
	}
	return &jinja2Renderer{name: name, tpl: tpl}, nil
}

type jinja2Renderer struct {
	name string
	tpl  *pongo2.Template
}

func (r *jinja2Renderer) Render(ctx match.RenderContext) ([]byte, error) {
	pctx := pongo2.Context{
		"method":      ctx.Method,
		"path":        ctx.Path,
		"headers":     ctx.Headers,
		"queryParams": ctx.QueryParams,
		"pathParams":  ctx.PathParams,
		"body":        string(ctx.Body),
		"now":         ctx.Now,
	}
	maps.Copy(pctx, helpers{ctx: ctx}.funcs())

	out, err := r.tpl.ExecuteBytes(pctx)
	if err != nil {
		return nil, fmt.Errorf("jinja2 template %q render failed: %w", r.name, err)
	}
	return out, nil
}
