package template

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sophialabs/stubhttp/internal/domain/match"
)

// EngineCompiler compiles a template source string into a BodyRenderer.
type EngineCompiler interface {
	Compile(name, source string) (match.BodyRenderer, error)
}

// Registry maps engine names to their compilers.
type Registry struct {
	engines map[string]EngineCompiler
}

// NewRegistry creates a registry with the built-in engines (expr, jinja2).
func NewRegistry() *Registry {
	return &Registry{
		engines: map[string]EngineCompiler{
			"expr":   &ExprCompiler{},
			"jinja2": &Jinja2Compiler{},
		},
	}
}

// Register adds or replaces an engine.
func (r *Registry) Register(engine string, ec EngineCompiler) {
	r.engines[engine] = ec
}

// Engines lists the registered engine names in sorted order.
func (r *Registry) Engines() []string {
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Compile resolves the engine by name and compiles the source.
func (r *Registry) Compile(engine, name, source string) (match.BodyRenderer, error) {
	ec, ok := r.engines[engine]
	if !ok {
		return nil, fmt.Errorf("unknown template engine: %q (supported: %s)", engine, strings.Join(r.Engines(), ", "))
	}
	return ec.Compile(name, source)
}

// CompilePredicate compiles a boolean body expression. See CompilePredicate.
func (r *Registry) CompilePredicate(source string) (match.Predicate, error) {
	return CompilePredicate(source)
}
