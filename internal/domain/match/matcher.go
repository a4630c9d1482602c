package match

import (
	"errors"
	"fmt"
	"net/textproto"
	"strings"
)

// Kind identifies one of the closed set of request constraints.
type Kind int

const (
	KindMethod Kind = iota + 1
	KindPathExact
	KindPathPattern
	KindHeaderExact
	KindHeaderPresent
	KindQueryExact
	KindBody
	KindHeaderPattern
)

// Specificity weights. Exact forms outrank their loose counterparts on the
// same field so an exact path beats a pattern even at equal constraint count.
const (
	WeightMethod        = 10
	WeightPathExact     = 15
	WeightPathPattern   = 12
	WeightHeaderExact   = 6
	WeightHeaderPresent = 4
	WeightQueryExact    = 6
	WeightBody          = 8
	WeightHeaderPattern = 5
)

func (k Kind) String() string {
	switch k {
	case KindMethod:
		return "method"
	case KindPathExact:
		return "path"
	case KindPathPattern:
		return "path_pattern"
	case KindHeaderExact:
		return "header"
	case KindHeaderPresent:
		return "header_present"
	case KindQueryExact:
		return "query"
	case KindBody:
		return "body"
	case KindHeaderPattern:
		return "header_pattern"
	default:
		return "unknown"
	}
}

func (k Kind) weight() int {
	switch k {
	case KindMethod:
		return WeightMethod
	case KindPathExact:
		return WeightPathExact
	case KindPathPattern:
		return WeightPathPattern
	case KindHeaderExact:
		return WeightHeaderExact
	case KindHeaderPresent:
		return WeightHeaderPresent
	case KindQueryExact:
		return WeightQueryExact
	case KindBody:
		return WeightBody
	case KindHeaderPattern:
		return WeightHeaderPattern
	default:
		return 0
	}
}

// Constraint is a single conjunct of a RequestMatcher.
type Constraint struct {
	Kind Kind
	// Name is the header or query parameter name, or a label for body predicates.
	Name  string
	Value string
	// Pred is only set for KindBody and KindHeaderPattern.
	Pred Predicate
}

// Method constrains the HTTP method (case-insensitive, stored upper case).
func Method(method string) Constraint {
	return Constraint{Kind: KindMethod, Value: strings.ToUpper(method)}
}

// Path constrains the request path to an exact string.
func Path(path string) Constraint {
	return Constraint{Kind: KindPathExact, Value: path}
}

// PathPattern constrains the path to a template such as /users/{id} or /files/**.
func PathPattern(pattern string) Constraint {
	return Constraint{Kind: KindPathPattern, Value: pattern}
}

// Header requires a header with exactly value.
func Header(name, value string) Constraint {
	return Constraint{Kind: KindHeaderExact, Name: textproto.CanonicalMIMEHeaderKey(name), Value: value}
}

// HeaderPresent requires a header to be present with any value.
func HeaderPresent(name string) Constraint {
	return Constraint{Kind: KindHeaderPresent, Name: textproto.CanonicalMIMEHeaderKey(name)}
}

// HeaderMatches requires a header whose value matches the regular expression pattern.
func HeaderMatches(name, pattern string) (Constraint, error) {
	p, err := Regex(pattern)
	if err != nil {
		return Constraint{}, fmt.Errorf("header %q: %w", name, err)
	}
	return Constraint{Kind: KindHeaderPattern, Name: textproto.CanonicalMIMEHeaderKey(name), Value: pattern, Pred: p}, nil
}

// Query requires a query parameter with exactly value.
func Query(name, value string) Constraint {
	return Constraint{Kind: KindQueryExact, Name: name, Value: value}
}

// Body constrains the raw request body with p. label names the predicate in diagnostics.
func Body(label string, p Predicate) Constraint {
	return Constraint{Kind: KindBody, Name: label, Pred: p}
}

// BodyEquals requires the body to equal s.
func BodyEquals(s string) Constraint {
	return Body("equals", Equals(s))
}

// BodyContains requires the body to contain substr.
func BodyContains(substr string) Constraint {
	return Body("contains", Contains(substr))
}

func (c Constraint) String() string {
	switch c.Kind {
	case KindMethod, KindPathExact, KindPathPattern:
		return c.Kind.String() + "=" + c.Value
	case KindHeaderPresent:
		return c.Kind.String() + "=" + c.Name
	case KindBody:
		return c.Kind.String() + ":" + c.Name
	default:
		return c.Kind.String() + ":" + c.Name + "=" + c.Value
	}
}

// Specificity ranks matchers. More constraints always win; at equal
// constraint count the summed weight decides.
type Specificity struct {
	Constraints int `json:"constraints"`
	Weight      int `json:"weight"`
}

// Compare returns -1, 0 or 1 as s is less, equally or more specific than o.
func (s Specificity) Compare(o Specificity) int {
	switch {
	case s.Constraints != o.Constraints:
		if s.Constraints > o.Constraints {
			return 1
		}
		return -1
	case s.Weight != o.Weight:
		if s.Weight > o.Weight {
			return 1
		}
		return -1
	default:
		return 0
	}
}

// ErrConflictingPath is returned when a matcher declares more than one path constraint.
var ErrConflictingPath = errors.New("matcher declares more than one path constraint")

// RequestMatcher is an immutable conjunction of constraints. Unspecified
// fields are wildcards, so the zero matcher matches every request.
type RequestMatcher struct {
	constraints []Constraint
	pattern     *pathPattern
	specificity Specificity
}

// NewRequestMatcher validates and freezes the given constraints.
func NewRequestMatcher(constraints ...Constraint) (RequestMatcher, error) {
	m := RequestMatcher{constraints: make([]Constraint, 0, len(constraints))}
	paths := 0

	for _, c := range constraints {
		switch c.Kind {
		case KindMethod:
			if c.Value == "" {
				return RequestMatcher{}, errors.New("method constraint is empty")
			}
		case KindPathExact:
			paths++
		case KindPathPattern:
			paths++
			p, err := compilePathPattern(c.Value)
			if err != nil {
				return RequestMatcher{}, err
			}
			m.pattern = p
		case KindHeaderExact, KindHeaderPresent, KindQueryExact:
			if c.Name == "" {
				return RequestMatcher{}, fmt.Errorf("%s constraint has no name", c.Kind)
			}
		case KindHeaderPattern:
			if c.Name == "" || c.Pred == nil {
				return RequestMatcher{}, errors.New("header pattern constraint needs a name and a predicate")
			}
		case KindBody:
			if c.Pred == nil {
				return RequestMatcher{}, errors.New("body constraint has no predicate")
			}
		default:
			return RequestMatcher{}, fmt.Errorf("unknown constraint kind %d", c.Kind)
		}
		m.constraints = append(m.constraints, c)
		m.specificity.Constraints++
		m.specificity.Weight += c.Kind.weight()
	}
	if paths > 1 {
		return RequestMatcher{}, ErrConflictingPath
	}

	return m, nil
}

// MustRequestMatcher is like NewRequestMatcher but panics on error.
func MustRequestMatcher(constraints ...Constraint) RequestMatcher {
	m, err := NewRequestMatcher(constraints...)
	if err != nil {
		panic(err)
	}
	return m
}

// Matches reports whether every constraint holds for req.
func (m RequestMatcher) Matches(req *IncomingRequest) bool {
	_, ok := m.Check(req)
	return ok
}

// Check evaluates constraints in declaration order and returns the first
// one that failed.
func (m RequestMatcher) Check(req *IncomingRequest) (Constraint, bool) {
	for _, c := range m.constraints {
		if !m.holds(c, req) {
			return c, false
		}
	}
	return Constraint{}, true
}

func (m RequestMatcher) holds(c Constraint, req *IncomingRequest) bool {
	switch c.Kind {
	case KindMethod:
		return strings.EqualFold(req.Method, c.Value)
	case KindPathExact:
		return req.Path == c.Value
	case KindPathPattern:
		return m.pattern.match(req.Path)
	case KindHeaderExact:
		v, ok := req.Header(c.Name)
		return ok && v == c.Value
	case KindHeaderPresent:
		_, ok := req.Header(c.Name)
		return ok
	case KindQueryExact:
		v, ok := req.QueryParam(c.Name)
		return ok && v == c.Value
	case KindHeaderPattern:
		v, ok := req.Header(c.Name)
		return ok && c.Pred(v)
	case KindBody:
		return c.Pred(string(req.Body))
	default:
		return false
	}
}

// Specificity returns the precomputed rank of the matcher.
func (m RequestMatcher) Specificity() Specificity {
	return m.specificity
}

// Constraints returns a copy of the matcher's constraints.
func (m RequestMatcher) Constraints() []Constraint {
	out := make([]Constraint, len(m.constraints))
	copy(out, m.constraints)
	return out
}

// PathParams returns placeholder values captured from path. It is empty
// unless the matcher carries a path pattern.
func (m RequestMatcher) PathParams(path string) map[string]string {
	if m.pattern == nil {
		return map[string]string{}
	}
	return m.pattern.params(path)
}

func (m RequestMatcher) String() string {
	if len(m.constraints) == 0 {
		return "any"
	}
	parts := make([]string, len(m.constraints))
	for i, c := range m.constraints {
		parts[i] = c.String()
	}
	return strings.Join(parts, " && ")
}
