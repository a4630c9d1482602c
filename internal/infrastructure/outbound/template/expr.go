package template

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/uuid"

	"github.com/sophialabs/stubhttp/internal/domain/match"
)

const (
	exprOpen  = "${"
	exprClose = '}'
)

// ExprCompiler compiles bodies in which every ${ ... } is an Expr
// expression evaluated against the request.
type ExprCompiler struct{}

// Compile splits source into literal text and expressions. A source without
// any ${ renders to itself.
func (c *ExprCompiler) Compile(name, source string) (match.BodyRenderer, error) {
	parts, err := splitExprTemplate(source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse expr template %q: %w", name, err)
	}
	if len(parts) == 0 || (len(parts) == 1 && parts[0].program == nil) {
		return &staticRenderer{body: []byte(source)}, nil
	}
	return &exprRenderer{name: name, parts: parts}, nil
}

// exprPart is either literal text or a compiled program.
type exprPart struct {
	text    string
	program *vm.Program
}

func splitExprTemplate(source string) ([]exprPart, error) {
	var parts []exprPart
	offset := 0

	for offset < len(source) {
		start := strings.Index(source[offset:], exprOpen)
		if start < 0 {
			parts = append(parts, exprPart{text: source[offset:]})
			break
		}
		start += offset
		if start > offset {
			parts = append(parts, exprPart{text: source[offset:start]})
		}

		bodyStart := start + len(exprOpen)
		end := scanExpression(source[bodyStart:])
		if end < 0 {
			return nil, fmt.Errorf("unclosed %s at offset %d", exprOpen, start)
		}

		code := strings.TrimSpace(source[bodyStart : bodyStart+end])
		if code == "" {
			return nil, fmt.Errorf("empty expression at offset %d", start)
		}
		program, err := expr.Compile(code, expr.Env(exprEnv{}))
		if err != nil {
			return nil, fmt.Errorf("failed to compile expression %q: %w", code, err)
		}
		parts = append(parts, exprPart{program: program})
		offset = bodyStart + end + 1
	}
	return parts, nil
}

// scanExpression returns the index of the } closing an expression, skipping
// braces nested in map literals and anything inside quoted strings.
func scanExpression(s string) int {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
		case '{':
			depth++
		case exprClose:
			if depth == 0 {
				return i
			}
			depth--
		}
	}
	return -1
}

// exprEnv is the environment every expression is type-checked against.
type exprEnv struct {
	Method      string               `expr:"method"`
	Path        string               `expr:"path"`
	Headers     map[string]string    `expr:"headers"`
	QueryParams map[string]string    `expr:"queryParams"`
	PathParams  map[string]string    `expr:"pathParams"`
	PathParam   func(string) string  `expr:"pathParam"`
	QueryParam  func(string) string  `expr:"queryParam"`
	Header      func(string) string  `expr:"header"`
	Body        func() string        `expr:"body"`
	Now         func() string        `expr:"now"`
	NowFormat   func(string) string  `expr:"nowFormat"`
	UUID        func() string        `expr:"uuid"`
	RandomInt   func(int, int) int   `expr:"randomInt"`
	Seq         func(int, int) []int `expr:"seq"`
	ToJSON      func(any) string     `expr:"toJSON"`
	JSONPath    func(string) string  `expr:"jsonPath"`
}

func newExprEnv(ctx match.RenderContext) exprEnv {
	h := helpers{ctx: ctx}
	return exprEnv{
		Method:      ctx.Method,
		Path:        ctx.Path,
		Headers:     ctx.Headers,
		QueryParams: ctx.QueryParams,
		PathParams:  ctx.PathParams,
		PathParam:   h.pathParam,
		QueryParam:  h.queryParam,
		Header:      h.header,
		Body:        h.body,
		Now:         h.now,
		NowFormat:   h.nowFormat,
		UUID:        uuid.NewString,
		RandomInt:   randomInt,
		Seq:         seqInts,
		ToJSON:      toJSONString,
		JSONPath:    h.jsonPath,
	}
}

type exprRenderer struct {
	name  string
	parts []exprPart
}

func (r *exprRenderer) Render(ctx match.RenderContext) ([]byte, error) {
	env := newExprEnv(ctx)

	var out bytes.Buffer
	for i, p := range r.parts {
		if p.program == nil {
			out.WriteString(p.text)
			continue
		}
		v, err := expr.Run(p.program, env)
		if err != nil {
			return nil, fmt.Errorf("expr template %q: expression %d failed: %w", r.name, i, err)
		}
		if v != nil {
			fmt.Fprint(&out, v)
		}
	}
	return out.Bytes(), nil
}

// staticRenderer serves a template that turned out to have no expressions.
type staticRenderer struct {
	body []byte
}

func (r *staticRenderer) Render(match.RenderContext) ([]byte, error) {
	return bytes.Clone(r.body), nil
}
