package usecases_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sophialabs/stubhttp/internal/domain/expectation"
	"github.com/sophialabs/stubhttp/internal/domain/ledger"
	"github.com/sophialabs/stubhttp/internal/domain/match"
	"github.com/sophialabs/stubhttp/internal/domain/scenario"
	"github.com/sophialabs/stubhttp/internal/domain/trace"
	"github.com/sophialabs/stubhttp/internal/infrastructure/outbound/template"
	"github.com/sophialabs/stubhttp/internal/infrastructure/services"
	"github.com/sophialabs/stubhttp/internal/infrastructure/usecases"
	"github.com/sophialabs/stubhttp/internal/testutil"
)

type stubRepo struct {
	defs []*scenario.Definition
	err  error
}

func (r *stubRepo) LoadAll(context.Context) ([]*scenario.Definition, error) {
	return r.defs, r.err
}

func newCompiler(t *testing.T) *services.Compiler {
	t.Helper()
	c, err := services.NewCompiler("", template.NewRegistry())
	if err != nil {
		t.Fatalf("NewCompiler failed: %v", err)
	}
	return c
}

func def(id, path string) *scenario.Definition {
	return &scenario.Definition{
		ID:         id,
		When:       scenario.WhenClause{Method: "GET", Path: path},
		Response:   scenario.Response{Status: 200, Body: id},
		SourceFile: id + ".yaml",
	}
}

func registryIDs(r *expectation.Registry) []string {
	var ids []string
	for _, e := range r.Snapshot() {
		ids = append(ids, e.ID())
	}
	return ids
}

func TestLoadExpectations_ReplacesFileGroup(t *testing.T) {
	registry := expectation.NewRegistry()
	api, err := expectation.New(match.MustRequestMatcher(match.Path("/api")), expectation.NewResponse(204), expectation.Unbounded(), expectation.WithID("api"))
	if err != nil {
		t.Fatal(err)
	}
	if err := registry.Add(api); err != nil {
		t.Fatal(err)
	}

	repo := &stubRepo{defs: []*scenario.Definition{def("a", "/a"), def("b", "/b")}}
	metrics := testutil.NewRecordingMetrics()
	uc := usecases.NewLoadExpectationsUseCase(repo, newCompiler(t), registry, metrics, &testutil.NoopLogger{})

	n, err := uc.Execute(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("Execute = %d, %v", n, err)
	}
	if got := strings.Join(registryIDs(registry), ","); got != "api,a,b" {
		t.Errorf("unexpected registry order %s", got)
	}

	repo.defs = []*scenario.Definition{def("c", "/c")}
	if _, err := uc.Execute(context.Background()); err != nil {
		t.Fatalf("second Execute failed: %v", err)
	}
	if got := strings.Join(registryIDs(registry), ","); got != "api,c" {
		t.Errorf("reload should replace only file expectations, got %s", got)
	}
	if e, _ := registry.Get("c"); e.Group() != usecases.FileGroup {
		t.Errorf("expected group %q, got %q", usecases.FileGroup, e.Group())
	}
	if metrics.Reloads != 2 || metrics.ReloadErrs != 0 {
		t.Errorf("unexpected reload metrics %d/%d", metrics.Reloads, metrics.ReloadErrs)
	}
}

func TestLoadExpectations_FailureKeepsPreviousSet(t *testing.T) {
	registry := expectation.NewRegistry()
	repo := &stubRepo{defs: []*scenario.Definition{def("a", "/a")}}
	metrics := testutil.NewRecordingMetrics()
	uc := usecases.NewLoadExpectationsUseCase(repo, newCompiler(t), registry, metrics, &testutil.NoopLogger{})

	if _, err := uc.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}

	bad := def("bad", "no-slash")
	repo.defs = []*scenario.Definition{def("b", "/b"), bad, def("b", "/b2")}
	_, err := uc.Execute(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrInvalidDefinition) {
		t.Errorf("expected ErrInvalidDefinition in %v", err)
	}
	if !strings.Contains(err.Error(), `duplicate expectation ID "b"`) {
		t.Errorf("expected duplicate ID error in %v", err)
	}
	if got := strings.Join(registryIDs(registry), ","); got != "a" {
		t.Errorf("registry should be untouched, got %s", got)
	}
	if metrics.ReloadErrs != 1 {
		t.Errorf("expected one reload error, got %d", metrics.ReloadErrs)
	}
}

func TestLoadExpectations_RepositoryError(t *testing.T) {
	repo := &stubRepo{err: errors.New("disk gone")}
	uc := usecases.NewLoadExpectationsUseCase(repo, newCompiler(t), expectation.NewRegistry(), testutil.NewRecordingMetrics(), &testutil.NoopLogger{})

	if _, err := uc.Execute(context.Background()); err == nil || !strings.Contains(err.Error(), "disk gone") {
		t.Errorf("expected repository error, got %v", err)
	}
}

func TestLoadExpectations_DefaultEngine(t *testing.T) {
	registry := expectation.NewRegistry()
	templated := def("t", "/t")
	templated.Response.Body = "{{ request.method }}"
	static := def("s", "/s")
	static.Response.Body = ""

	uc := usecases.NewLoadExpectationsUseCase(&stubRepo{defs: []*scenario.Definition{templated, static}},
		newCompiler(t), registry, testutil.NewRecordingMetrics(), &testutil.NoopLogger{})
	uc.SetDefaultEngine("jinja2")

	if _, err := uc.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if templated.Response.Engine != "jinja2" {
		t.Errorf("expected jinja2 engine, got %q", templated.Response.Engine)
	}
	if static.Response.Engine != "" {
		t.Errorf("empty body should stay static, got %q", static.Response.Engine)
	}
	e, _ := registry.Get("t")
	if e.Response().Renderer() == nil {
		t.Error("expected a renderer for the templated body")
	}
}

func TestRegisterExpectations(t *testing.T) {
	registry := expectation.NewRegistry()
	uc := usecases.NewRegisterExpectationsUseCase(newCompiler(t), registry, &testutil.NoopLogger{})

	exps, err := uc.Execute([]*scenario.Definition{def("a", "/a"), def("b", "/b")})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(exps) != 2 || registry.Len() != 2 {
		t.Fatalf("expected 2 registered, got %d/%d", len(exps), registry.Len())
	}
	if exps[0].Group() != "" {
		t.Errorf("API expectations have no group, got %q", exps[0].Group())
	}
}

func TestRegisterExpectations_AllOrNothing(t *testing.T) {
	registry := expectation.NewRegistry()
	uc := usecases.NewRegisterExpectationsUseCase(newCompiler(t), registry, &testutil.NoopLogger{})
	if _, err := uc.Execute([]*scenario.Definition{def("a", "/a")}); err != nil {
		t.Fatal(err)
	}

	// Compile failure: nothing added.
	if _, err := uc.Execute([]*scenario.Definition{def("b", "/b"), def("c", "bad")}); err == nil {
		t.Fatal("expected compile error")
	} else if !strings.Contains(err.Error(), "definition 1") {
		t.Errorf("expected index in error, got %v", err)
	}
	// Duplicate ID: the ones added before it are rolled back.
	if _, err := uc.Execute([]*scenario.Definition{def("d", "/d"), def("a", "/a2")}); err == nil {
		t.Fatal("expected duplicate error")
	}

	if got := strings.Join(registryIDs(registry), ","); got != "a" {
		t.Errorf("expected only a to remain, got %s", got)
	}
}

func TestReset_Scopes(t *testing.T) {
	setup := func(t *testing.T) (*expectation.Registry, *ledger.Ledger, *trace.RingBuffer, *testutil.StubRateLimiter, *usecases.ResetUseCase) {
		registry := expectation.NewRegistry()
		e, err := expectation.New(match.MustRequestMatcher(), expectation.NewResponse(200), expectation.Once(), expectation.WithID("x"))
		if err != nil {
			t.Fatal(err)
		}
		if err := registry.Add(e); err != nil {
			t.Fatal(err)
		}
		ldg := ledger.New()
		ldg.Append(ledger.RecordedRequest{Method: "GET", Path: "/"})
		tb := trace.NewRingBuffer(10)
		tb.Add(trace.Entry{Method: "GET", Path: "/"})
		limiter := &testutil.StubRateLimiter{AllowAll: true}
		uc := usecases.NewResetUseCase(registry, ldg, tb, limiter, testutil.NewRecordingMetrics(), &testutil.NoopLogger{})
		return registry, ldg, tb, limiter, uc
	}

	t.Run("all", func(t *testing.T) {
		registry, ldg, tb, limiter, uc := setup(t)
		uc.Execute(usecases.ResetAll)
		if registry.Len() != 0 || ldg.Len() != 0 || tb.Count() != 0 || limiter.Resets != 1 {
			t.Errorf("expected everything cleared")
		}
	})

	t.Run("expectations", func(t *testing.T) {
		registry, ldg, _, limiter, uc := setup(t)
		uc.Execute(usecases.ResetExpectations)
		if registry.Len() != 0 || ldg.Len() != 1 || limiter.Resets != 1 {
			t.Errorf("expected only expectations cleared")
		}
	})

	t.Run("requests", func(t *testing.T) {
		registry, ldg, tb, limiter, uc := setup(t)
		uc.Execute(usecases.ResetRequests)
		if registry.Len() != 1 || ldg.Len() != 0 || tb.Count() != 0 || limiter.Resets != 0 {
			t.Errorf("expected only requests cleared")
		}
	})
}

func TestReset_RemoveExpectation(t *testing.T) {
	registry := expectation.NewRegistry()
	e, _ := expectation.New(match.MustRequestMatcher(), expectation.NewResponse(200), expectation.Once(), expectation.WithID("x"))
	_ = registry.Add(e)
	uc := usecases.NewResetUseCase(registry, ledger.New(), trace.NewRingBuffer(1), &testutil.StubRateLimiter{}, testutil.NewRecordingMetrics(), &testutil.NoopLogger{})

	if !uc.RemoveExpectation("x") {
		t.Error("expected removal")
	}
	if uc.RemoveExpectation("x") {
		t.Error("second removal should report false")
	}
}
