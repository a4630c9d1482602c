package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/textproto"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/antchfx/xmlquery"

	"github.com/sophialabs/stubhttp/internal/domain/expectation"
	"github.com/sophialabs/stubhttp/internal/domain/match"
	"github.com/sophialabs/stubhttp/internal/domain/scenario"
)

// TemplateRegistry compiles response templates and body expressions.
type TemplateRegistry interface {
	Compile(engine, name, source string) (match.BodyRenderer, error)
	CompilePredicate(source string) (match.Predicate, error)
}

// Compiler turns declarative definitions into registrable expectations.
type Compiler struct {
	rootDir  string
	registry TemplateRegistry // nil means no template support
}

// NewCompiler creates a Compiler. body_file paths resolve under rootDir;
// an empty rootDir disables body_file. registry may be nil, in which case
// definitions using an engine or an expr body predicate fail to compile.
func NewCompiler(rootDir string, registry TemplateRegistry) (*Compiler, error) {
	c := &Compiler{registry: registry}
	if rootDir != "" {
		absRoot, err := filepath.Abs(rootDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve root directory: %w", err)
		}
		c.rootDir = absRoot
	}
	return c, nil
}

// Compile validates d and builds an Expectation from it. Extra options are
// applied after the ones derived from d.
func (c *Compiler) Compile(d *scenario.Definition, opts ...expectation.Option) (*expectation.Expectation, error) {
	label := d.ID
	if label == "" {
		label = d.Name
	}

	if err := ValidateDefinition(d); err != nil {
		return nil, fmt.Errorf("definition %q: %w", label, err)
	}

	matcher, err := c.compileWhen(&d.When)
	if err != nil {
		return nil, fmt.Errorf("failed to compile matcher for %q: %w", label, err)
	}

	resp, err := c.compileResponse(d)
	if err != nil {
		return nil, fmt.Errorf("failed to compile response for %q: %w", label, err)
	}

	times, err := compileTimes(d.Times)
	if err != nil {
		return nil, fmt.Errorf("definition %q: %w", label, err)
	}

	all := []expectation.Option{
		expectation.WithName(d.Name),
		expectation.WithPriority(d.Priority),
	}
	if d.ID != "" {
		all = append(all, expectation.WithID(d.ID))
	}
	if p := compilePolicy(d.Policy); p != nil {
		all = append(all, expectation.WithPolicy(p))
	}
	all = append(all, opts...)

	return expectation.New(matcher, resp, times, all...)
}

func (c *Compiler) compileWhen(w *scenario.WhenClause) (match.RequestMatcher, error) {
	var cs []match.Constraint

	if w.Method != "" {
		cs = append(cs, match.Method(w.Method))
	}
	switch {
	case w.Path != "":
		cs = append(cs, match.Path(w.Path))
	case w.PathPattern != "":
		cs = append(cs, match.PathPattern(w.PathPattern))
	}

	headers, err := canonicalHeaders(w.Headers)
	if err != nil {
		return match.RequestMatcher{}, err
	}
	// Sorted for a deterministic constraint order in diagnostics.
	for _, name := range sortedKeys(headers) {
		hc, err := compileHeader(name, headers[name])
		if err != nil {
			return match.RequestMatcher{}, err
		}
		cs = append(cs, hc)
	}
	for _, name := range sortedKeys(w.Query) {
		cs = append(cs, match.Query(name, w.Query[name]))
	}

	if !w.Body.IsEmpty() {
		bc, err := c.compileBodyConstraints(w.Body)
		if err != nil {
			return match.RequestMatcher{}, err
		}
		cs = append(cs, bc...)
	}

	return match.NewRequestMatcher(cs...)
}

// canonicalHeaders keys header matchers by canonical name. Spellings of one
// name with the same matcher collapse into one entry; different matchers
// for the same header are an error.
func canonicalHeaders(in map[string]scenario.StringMatcher) (map[string]scenario.StringMatcher, error) {
	out := make(map[string]scenario.StringMatcher, len(in))
	for name, m := range in {
		key := textproto.CanonicalMIMEHeaderKey(name)
		if prev, ok := out[key]; ok && prev != m {
			return nil, fmt.Errorf("header %q is matched more than once with different values", key)
		}
		out[key] = m
	}
	return out, nil
}

func compileHeader(name string, m scenario.StringMatcher) (match.Constraint, error) {
	switch m.Kind {
	case scenario.MatchExact:
		return match.Header(name, m.Value), nil
	case scenario.MatchPresent:
		return match.HeaderPresent(name), nil
	default:
		if m.Value == "" {
			return match.HeaderPresent(name), nil
		}
		return match.HeaderMatches(name, m.Value)
	}
}

// compileBodyConstraints yields one constraint per top-level body rule so
// each rule counts toward specificity and shows up in mismatch traces.
func (c *Compiler) compileBodyConstraints(bc *scenario.BodyClause) ([]match.Constraint, error) {
	var cs []match.Constraint

	if bc.Equals != "" {
		cs = append(cs, match.BodyEquals(bc.Equals))
	}
	if bc.Contains != "" {
		cs = append(cs, match.BodyContains(bc.Contains))
	}
	if bc.Regex != "" {
		p, err := match.Regex(bc.Regex)
		if err != nil {
			return nil, fmt.Errorf("body: %w", err)
		}
		cs = append(cs, match.Body("regex", p))
	}
	if bc.Expr != "" {
		p, err := c.compileExpr(bc.Expr)
		if err != nil {
			return nil, err
		}
		cs = append(cs, match.Body("expr", p))
	}

	for _, cond := range bc.Conditions {
		p, err := compileBodyCondition(cond, bc.ContentType)
		if err != nil {
			return nil, err
		}
		cs = append(cs, match.Body(cond.Extractor, p))
	}

	if len(bc.All) > 0 {
		p, err := c.compileChildren(bc.All, bc.ContentType)
		if err != nil {
			return nil, err
		}
		cs = append(cs, match.Body("all", match.And(p...)))
	}
	if len(bc.Any) > 0 {
		p, err := c.compileChildren(bc.Any, bc.ContentType)
		if err != nil {
			return nil, err
		}
		cs = append(cs, match.Body("any", match.Or(p...)))
	}
	if bc.Not != nil && !bc.Not.IsEmpty() {
		p, err := c.compileBodyPredicate(bc.Not, bc.ContentType)
		if err != nil {
			return nil, err
		}
		cs = append(cs, match.Body("not", match.Not(p)))
	}

	return cs, nil
}

func (c *Compiler) compileChildren(children []scenario.BodyClause, inherited string) ([]match.Predicate, error) {
	preds := make([]match.Predicate, 0, len(children))
	for i := range children {
		p, err := c.compileBodyPredicate(&children[i], inherited)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, nil
}

// compileBodyPredicate folds a nested clause into a single predicate. A
// child without its own content type inherits the parent's.
func (c *Compiler) compileBodyPredicate(bc *scenario.BodyClause, inherited string) (match.Predicate, error) {
	if bc.ContentType == "" && inherited != "" {
		clone := *bc
		clone.ContentType = inherited
		bc = &clone
	}
	cs, err := c.compileBodyConstraints(bc)
	if err != nil {
		return nil, err
	}
	if len(cs) == 0 {
		return match.Always(), nil
	}
	preds := make([]match.Predicate, len(cs))
	for i, con := range cs {
		preds[i] = con.Pred
	}
	return match.And(preds...), nil
}

func (c *Compiler) compileExpr(source string) (match.Predicate, error) {
	if c.registry == nil {
		return nil, errors.New("body expr requested but no template registry configured")
	}
	return c.registry.CompilePredicate(source)
}

func compileBodyCondition(cond scenario.BodyCondition, contentType string) (match.Predicate, error) {
	valueMatcher, err := compileStringMatcher(cond.Matcher)
	if err != nil {
		return nil, fmt.Errorf("body condition %q: %w", cond.Extractor, err)
	}

	switch strings.ToLower(contentType) {
	case "json":
		return jsonPathPredicate(cond.Extractor, valueMatcher), nil
	case "xml":
		return xpathPredicate(cond.Extractor, valueMatcher), nil
	default:
		// No extractor language: match the raw body.
		return valueMatcher, nil
	}
}

func compileStringMatcher(m scenario.StringMatcher) (match.Predicate, error) {
	switch {
	case m.Kind == scenario.MatchExact:
		return match.Equals(m.Value), nil
	case m.Kind == scenario.MatchPresent, m.Value == "":
		return match.Always(), nil
	default:
		return match.Regex(m.Value)
	}
}

// jsonPathPredicate extracts a value via JSONPath and matches its string form.
func jsonPathPredicate(path string, valueMatcher match.Predicate) match.Predicate {
	return func(body string) bool {
		data, err := parseJSON(body)
		if err != nil {
			return false
		}
		result, err := jsonpath.Get(path, data)
		if err != nil {
			return false
		}
		return valueMatcher(stringify(result))
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case nil:
		return "null"
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

// xpathPredicate extracts a node via XPath and matches its inner text.
func xpathPredicate(expr string, valueMatcher match.Predicate) match.Predicate {
	return func(body string) bool {
		doc, err := xmlquery.Parse(strings.NewReader(body))
		if err != nil {
			return false
		}
		node, err := xmlquery.Query(doc, expr)
		if err != nil || node == nil {
			return false
		}
		return valueMatcher(node.InnerText())
	}
}

func (c *Compiler) compileResponse(d *scenario.Definition) (expectation.MockResponse, error) {
	r := &d.Response

	status := r.Status
	if status == 0 {
		status = 200
	}
	resp := expectation.NewResponse(status)

	for _, h := range r.Headers {
		resp = resp.WithAddedHeader(h.Name, h.Value)
	}

	source := r.Body
	if r.BodyFile != "" {
		data, err := c.readBodyFile(r.BodyFile)
		if err != nil {
			return resp, err
		}
		source = string(data)
	}

	if r.Engine != "" {
		if c.registry == nil {
			return resp, fmt.Errorf("template engine %q requested but no registry configured", r.Engine)
		}
		name := r.BodyFile
		if name == "" {
			name = d.ID + ":inline"
		}
		renderer, err := c.registry.Compile(r.Engine, name, source)
		if err != nil {
			return resp, fmt.Errorf("failed to compile template (engine=%s): %w", r.Engine, err)
		}
		resp = resp.WithRenderer(renderer)
		// Rendered output cannot be sniffed up front.
		if _, ok := resp.Headers().Get("Content-Type"); !ok {
			if ct := InferContentType(r.ContentType, r.BodyFile, nil); ct != "" {
				resp = resp.WithHeader("Content-Type", ct)
			}
		}
	} else {
		resp = resp.WithBodyString(source)
		if _, ok := resp.Headers().Get("Content-Type"); !ok {
			if ct := InferContentType(r.ContentType, r.BodyFile, []byte(source)); ct != "" {
				resp = resp.WithHeader("Content-Type", ct)
			}
		}
	}

	delayMs := r.DelayMs
	if d.Policy != nil && d.Policy.Latency != nil {
		delayMs += d.Policy.Latency.FixedMs
	}
	if delayMs > 0 {
		resp = resp.WithDelay(time.Duration(delayMs) * time.Millisecond)
	}

	return resp, nil
}

func (c *Compiler) readBodyFile(path string) ([]byte, error) {
	if c.rootDir == "" {
		return nil, fmt.Errorf("body_file %q needs a root directory", path)
	}
	resolved, err := c.resolveBodyFilePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to read body_file %q: %w", path, err)
	}
	return data, nil
}

// resolveBodyFilePath keeps body_file inside the root, symlinks included.
func (c *Compiler) resolveBodyFilePath(path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("absolute paths not allowed in body_file: %s", path)
	}

	resolved := filepath.Join(c.rootDir, path)

	realPath, err := filepath.EvalSymlinks(resolved)
	if err != nil {
		realPath = filepath.Clean(resolved)
	}
	realRoot, err := filepath.EvalSymlinks(c.rootDir)
	if err != nil {
		realRoot = c.rootDir
	}

	rel, err := filepath.Rel(realRoot, realPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("body_file path %q escapes root directory", path)
	}
	return resolved, nil
}

func compileTimes(t scenario.TimesClause) (expectation.Times, error) {
	switch {
	case t.Exactly != nil:
		return expectation.Exactly(*t.Exactly)
	case t.AtLeast != nil:
		return expectation.AtLeast(*t.AtLeast)
	default:
		return expectation.Unbounded(), nil
	}
}

func compilePolicy(p *scenario.Policy) *expectation.Policy {
	if p == nil || (p.RateLimit == nil && (p.Latency == nil || p.Latency.JitterMs == 0)) {
		return nil
	}

	cp := &expectation.Policy{}
	if p.RateLimit != nil {
		cp.RateLimit = &expectation.RateLimit{
			Rate:  p.RateLimit.Rate,
			Burst: p.RateLimit.Burst,
			Key:   p.RateLimit.Key,
		}
	}
	if p.Latency != nil {
		cp.Jitter = time.Duration(p.Latency.JitterMs) * time.Millisecond
	}
	return cp
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
