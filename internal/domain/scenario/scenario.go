package scenario

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Definition is the declarative form of an expectation, as read from YAML
// files or posted to the admin API. It is compiled into an
// expectation.Expectation by services.Compiler.
type Definition struct {
	ID       string      `json:"id,omitempty" validate:"omitempty,max=128"`
	Name     string      `json:"name,omitempty"`
	Priority int         `json:"priority,omitempty"`
	When     WhenClause  `json:"when"`
	Response Response    `json:"response"`
	Times    TimesClause `json:"times,omitzero"`
	Policy   *Policy     `json:"policy,omitempty"`

	// SourceFile is set by file-backed repositories for diagnostics.
	SourceFile string `json:"-"`
}

// WhenClause defines the conditions for matching an incoming request.
// Every field is optional; an empty clause matches any request.
type WhenClause struct {
	Method      string                   `json:"method,omitempty" validate:"omitempty,alpha,max=16"`
	Path        string                   `json:"path,omitempty" validate:"omitempty,startswith=/,excluded_with=PathPattern"`
	PathPattern string                   `json:"path_pattern,omitempty" validate:"omitempty,startswith=/"`
	Headers     map[string]StringMatcher `json:"headers,omitempty" validate:"dive,keys,required,endkeys"`
	Query       map[string]string        `json:"query,omitempty" validate:"dive,keys,required,endkeys"`
	Body        *BodyClause              `json:"body,omitempty"`
}

// BodyClause represents conditions on the request body. All populated
// fields must hold.
type BodyClause struct {
	// ContentType selects the extractor language for Conditions: "json" or "xml".
	ContentType string          `json:"content_type,omitempty" validate:"omitempty,oneof=json xml"`
	Conditions  []BodyCondition `json:"conditions,omitempty" validate:"dive"`
	Equals      string          `json:"equals,omitempty"`
	Contains    string          `json:"contains,omitempty"`
	Regex       string          `json:"regex,omitempty"`
	// Expr is an expr-lang boolean expression evaluated with the body bound to "body" and "json".
	Expr string       `json:"expr,omitempty"`
	All  []BodyClause `json:"all,omitempty" validate:"dive"`
	Any  []BodyClause `json:"any,omitempty" validate:"dive"`
	Not  *BodyClause  `json:"not,omitempty"`
}

// IsEmpty reports whether the clause has no conditions at all.
func (b *BodyClause) IsEmpty() bool {
	return b == nil || (len(b.Conditions) == 0 && b.Equals == "" && b.Contains == "" &&
		b.Regex == "" && b.Expr == "" && len(b.All) == 0 && len(b.Any) == 0 && b.Not == nil)
}

// BodyCondition represents a single body extraction + matching rule.
type BodyCondition struct {
	// Extractor is a JSONPath or XPath expression.
	Extractor string `json:"extractor" validate:"required"`
	// Matcher is the string matcher applied to the extracted value.
	Matcher StringMatcher `json:"matcher"`
}

// MatchKind selects how a StringMatcher compares values.
type MatchKind uint8

const (
	MatchRegex MatchKind = iota
	MatchExact
	MatchPresent
)

// StringMatcher represents a string matching rule. In text form "=value"
// is an exact match, "*" only requires presence, and anything else is a
// regular expression.
type StringMatcher struct {
	Kind  MatchKind
	Value string
}

// ParseStringMatcher parses the text form of a matcher.
func ParseStringMatcher(s string) StringMatcher {
	switch {
	case s == "*":
		return StringMatcher{Kind: MatchPresent}
	case strings.HasPrefix(s, "="):
		return StringMatcher{Kind: MatchExact, Value: s[1:]}
	default:
		return StringMatcher{Kind: MatchRegex, Value: s}
	}
}

// Exact builds an exact-value matcher.
func Exact(v string) StringMatcher { return StringMatcher{Kind: MatchExact, Value: v} }

// IsExact returns true if this matcher uses exact comparison.
func (m StringMatcher) IsExact() bool { return m.Kind == MatchExact }

func (m StringMatcher) String() string {
	switch m.Kind {
	case MatchPresent:
		return "*"
	case MatchExact:
		return "=" + m.Value
	default:
		return m.Value
	}
}

func (m StringMatcher) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *StringMatcher) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("matcher must be a string: %w", err)
	}
	*m = ParseStringMatcher(s)
	return nil
}

// Header is one response header field.
type Header struct {
	Name  string `json:"name" validate:"required"`
	Value string `json:"value"`
}

// HeaderList keeps response headers in declaration order. In JSON it is
// written as an array and read from either an array or an object, whose
// key order is preserved.
type HeaderList []Header

func (h *HeaderList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var fields []Header
		if err := json.Unmarshal(data, &fields); err != nil {
			return err
		}
		*h = fields
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*h = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("headers must be an object or an array, got %v", tok)
	}

	var out HeaderList
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("header %v: %w", keyTok, err)
		}
		out = append(out, Header{Name: keyTok.(string), Value: value})
	}
	*h = out
	return nil
}

// Response defines what the mock server returns.
type Response struct {
	Status      int        `json:"status,omitempty" validate:"omitempty,gte=100,lte=599"`
	Headers     HeaderList `json:"headers,omitempty" validate:"dive"`
	Body        string     `json:"body,omitempty" validate:"excluded_with=BodyFile"`
	BodyFile    string     `json:"body_file,omitempty"`
	ContentType string     `json:"content_type,omitempty"`
	// Engine is "" for a static body, "expr" or "jinja2" for templates.
	Engine  string `json:"engine,omitempty" validate:"omitempty,oneof=expr jinja2"`
	DelayMs int    `json:"delay_ms,omitempty" validate:"gte=0"`
}

// TimesClause declares the cardinality. Leaving both fields unset means
// unbounded.
type TimesClause struct {
	Exactly *int `json:"exactly,omitempty" validate:"omitempty,gt=0,excluded_with=AtLeast"`
	AtLeast *int `json:"at_least,omitempty" validate:"omitempty,gte=0"`
}

// Policy defines rate limiting and latency simulation.
type Policy struct {
	RateLimit *RateLimit `json:"rate_limit,omitempty"`
	Latency   *Latency   `json:"latency,omitempty"`
}

// RateLimit configures token-bucket rate limiting.
type RateLimit struct {
	Rate  float64 `json:"rate" validate:"gt=0"`
	Burst int     `json:"burst" validate:"gte=1"`
	Key   string  `json:"key,omitempty"`
}

// Latency configures response delay simulation.
type Latency struct {
	FixedMs  int `json:"fixed_ms,omitempty" validate:"gte=0"`
	JitterMs int `json:"jitter_ms,omitempty" validate:"gte=0"`
}
