package match_test

import (
	"errors"
	"testing"

	"github.com/sophialabs/stubhttp/internal/domain/match"
)

func TestRequestMatcher_EmptyMatchesEverything(t *testing.T) {
	m := match.MustRequestMatcher()
	req := &match.IncomingRequest{Method: "DELETE", Path: "/anything"}

	if !m.Matches(req) {
		t.Error("expected empty matcher to match")
	}
	if m.String() != "any" {
		t.Errorf("expected 'any', got %q", m.String())
	}
}

func TestRequestMatcher_Constraints(t *testing.T) {
	req := &match.IncomingRequest{
		Method:  "POST",
		Path:    "/users/42",
		Query:   map[string]string{"verbose": "true"},
		Headers: map[string]string{"Content-Type": "application/json", "X-Trace": "abc"},
		Body:    []byte(`{"name":"ada"}`),
	}

	tests := []struct {
		name       string
		constraint match.Constraint
		want       bool
	}{
		{"method", match.Method("post"), true},
		{"method mismatch", match.Method("GET"), false},
		{"exact path", match.Path("/users/42"), true},
		{"exact path mismatch", match.Path("/users/43"), false},
		{"pattern", match.PathPattern("/users/{id}"), true},
		{"pattern star", match.PathPattern("/users/*"), true},
		{"pattern too short", match.PathPattern("/users"), false},
		{"pattern double star", match.PathPattern("/**"), true},
		{"header exact", match.Header("content-type", "application/json"), true},
		{"header value case sensitive", match.Header("Content-Type", "Application/JSON"), false},
		{"header present", match.HeaderPresent("x-trace"), true},
		{"header absent", match.HeaderPresent("Authorization"), false},
		{"query", match.Query("verbose", "true"), true},
		{"query mismatch", match.Query("verbose", "false"), false},
		{"query missing", match.Query("page", "1"), false},
		{"body equals", match.BodyEquals(`{"name":"ada"}`), true},
		{"body contains", match.BodyContains(`"ada"`), true},
		{"body contains mismatch", match.BodyContains(`"bob"`), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := match.NewRequestMatcher(tt.constraint)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := m.Matches(req); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequestMatcher_Conjunctive(t *testing.T) {
	m := match.MustRequestMatcher(match.Method("GET"), match.Path("/health"))

	if !m.Matches(&match.IncomingRequest{Method: "GET", Path: "/health"}) {
		t.Error("expected match")
	}

	failed, ok := m.Check(&match.IncomingRequest{Method: "GET", Path: "/ready"})
	if ok {
		t.Fatal("expected mismatch")
	}
	if failed.Kind != match.KindPathExact {
		t.Errorf("expected path constraint to fail, got %s", failed.Kind)
	}
}

func TestRequestMatcher_Validation(t *testing.T) {
	_, err := match.NewRequestMatcher(match.Path("/a"), match.PathPattern("/{x}"))
	if !errors.Is(err, match.ErrConflictingPath) {
		t.Errorf("expected ErrConflictingPath, got %v", err)
	}

	if _, err := match.NewRequestMatcher(match.PathPattern("no-slash")); err == nil {
		t.Error("expected error for relative pattern")
	}
	if _, err := match.NewRequestMatcher(match.PathPattern("/a/**/b/**")); err == nil {
		t.Error("expected error for two ** segments")
	}
	if _, err := match.NewRequestMatcher(match.HeaderPresent("")); err == nil {
		t.Error("expected error for unnamed header")
	}
	if _, err := match.NewRequestMatcher(match.Body("custom", nil)); err == nil {
		t.Error("expected error for nil body predicate")
	}
}

func TestRequestMatcher_PatternLiteralsAreEscaped(t *testing.T) {
	m := match.MustRequestMatcher(match.PathPattern("/files/[draft]/{name}"))

	if !m.Matches(&match.IncomingRequest{Path: "/files/[draft]/a.txt"}) {
		t.Error("expected literal brackets to match")
	}
	if m.Matches(&match.IncomingRequest{Path: "/files/d/a.txt"}) {
		t.Error("brackets must not act as a character class")
	}
}

func TestRequestMatcher_PathParams(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    map[string]string
	}{
		{"/users/{id}", "/users/42", map[string]string{"id": "42"}},
		{"/orgs/{org}/repos/{repo}", "/orgs/acme/repos/api", map[string]string{"org": "acme", "repo": "api"}},
		{"/static/**/{file}", "/static/css/v2/site.css", map[string]string{"file": "site.css"}},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			m := match.MustRequestMatcher(match.PathPattern(tt.pattern))
			if !m.Matches(&match.IncomingRequest{Path: tt.path}) {
				t.Fatalf("expected %s to match %s", tt.pattern, tt.path)
			}
			got := m.PathParams(tt.path)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d params, got %v", len(tt.want), got)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("param %s = %q, want %q", k, got[k], v)
				}
			}
		})
	}

	exact := match.MustRequestMatcher(match.Path("/users/42"))
	if len(exact.PathParams("/users/42")) != 0 {
		t.Error("expected no params without a pattern")
	}
}

func TestSpecificity(t *testing.T) {
	methodOnly := match.MustRequestMatcher(match.Method("GET"))
	pattern := match.MustRequestMatcher(match.Method("GET"), match.PathPattern("/users/{id}"))
	exact := match.MustRequestMatcher(match.Method("GET"), match.Path("/users/42"))
	present := match.MustRequestMatcher(match.Method("GET"), match.Path("/users/42"), match.HeaderPresent("X-A"))
	valued := match.MustRequestMatcher(match.Method("GET"), match.Path("/users/42"), match.Header("X-A", "1"))

	if methodOnly.Specificity().Compare(pattern.Specificity()) >= 0 {
		t.Error("a superset of constraints must be more specific")
	}
	if exact.Specificity().Compare(pattern.Specificity()) <= 0 {
		t.Error("exact path must outrank a pattern at equal constraint count")
	}
	if valued.Specificity().Compare(present.Specificity()) <= 0 {
		t.Error("header value must outrank header presence")
	}
	if exact.Specificity().Compare(exact.Specificity()) != 0 {
		t.Error("specificity must equal itself")
	}
	if got := exact.Specificity().Constraints; got != 2 {
		t.Errorf("expected 2 constraints, got %d", got)
	}
}

func TestRequestMatcher_ConstraintsCopy(t *testing.T) {
	m := match.MustRequestMatcher(match.Method("GET"))
	cs := m.Constraints()
	cs[0] = match.Method("POST")

	if !m.Matches(&match.IncomingRequest{Method: "GET"}) {
		t.Error("mutating Constraints() result must not affect the matcher")
	}
}

func TestIncomingRequest_HeaderCaseInsensitive(t *testing.T) {
	req := &match.IncomingRequest{Headers: map[string]string{"X-Request-Id": "1"}}

	if v, ok := req.Header("x-request-id"); !ok || v != "1" {
		t.Errorf("expected header lookup to be case-insensitive, got %q %v", v, ok)
	}
	if _, ok := (&match.IncomingRequest{}).Header("X"); ok {
		t.Error("expected no header on empty request")
	}
}

func TestHeaderMatches(t *testing.T) {
	c, err := match.HeaderMatches("x-trace", "^[a-f0-9]+$")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := match.MustRequestMatcher(c)

	if !m.Matches(&match.IncomingRequest{Headers: map[string]string{"X-Trace": "beef01"}}) {
		t.Error("expected hex trace to match")
	}
	if m.Matches(&match.IncomingRequest{Headers: map[string]string{"X-Trace": "nope"}}) {
		t.Error("expected non-hex trace not to match")
	}
	if m.Matches(&match.IncomingRequest{}) {
		t.Error("expected missing header not to match")
	}

	// Between presence-only and exact on the same header.
	present := match.MustRequestMatcher(match.HeaderPresent("X-Trace")).Specificity()
	exact := match.MustRequestMatcher(match.Header("X-Trace", "beef01")).Specificity()
	if m.Specificity().Compare(present) <= 0 || m.Specificity().Compare(exact) >= 0 {
		t.Errorf("unexpected pattern specificity %+v", m.Specificity())
	}

	if _, err := match.HeaderMatches("X", "("); err == nil {
		t.Error("expected invalid regex error")
	}
}
