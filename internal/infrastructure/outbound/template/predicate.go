package template

import (
	"encoding/json"
	"fmt"

	"github.com/expr-lang/expr"

	"github.com/sophialabs/stubhttp/internal/domain/match"
)

// predicateEnv is what a body predicate expression sees. json is nil when
// the body does not parse as JSON.
type predicateEnv struct {
	Body string `expr:"body"`
	JSON any    `expr:"json"`
}

// CompilePredicate compiles a boolean Expr expression over the request body,
// e.g. `json.amount > 100 && body contains "EUR"`.
func CompilePredicate(source string) (match.Predicate, error) {
	program, err := expr.Compile(source, expr.Env(predicateEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("failed to compile body expression %q: %w", source, err)
	}

	return func(body string) bool {
		env := predicateEnv{Body: body}
		var data any
		if json.Unmarshal([]byte(body), &data) == nil {
			env.JSON = data
		}
		out, err := expr.Run(program, env)
		if err != nil {
			return false
		}
		ok, _ := out.(bool)
		return ok
	}, nil
}
