// Package mockserver runs an in-process HTTP server that answers requests
// from registered expectations and records every request it receives.
//
// A server goes through Created, Listening and Stopped. Expectations can be
// registered in any state but Stopped; the ledger stays readable after Stop.
package mockserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"

	"github.com/sophialabs/stubhttp/internal/domain/expectation"
	inboundhttp "github.com/sophialabs/stubhttp/internal/infrastructure/inbound/http"
	"github.com/sophialabs/stubhttp/internal/infrastructure/outbound/filesystem"
	"github.com/sophialabs/stubhttp/internal/infrastructure/outbound/logging"
	"github.com/sophialabs/stubhttp/internal/infrastructure/usecases"
	"github.com/sophialabs/stubhttp/internal/infrastructure/wiring"
)

var (
	ErrAlreadyStarted = errors.New("mockserver: already started")
	ErrStopped        = errors.New("mockserver: stopped")
)

// State is the lifecycle state of a MockServer.
type State int

const (
	StateCreated State = iota
	StateListening
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateStopped:
		return "stopped"
	default:
		return "created"
	}
}

// MockServer owns its registry, ledger and listener. Several servers in one
// process share nothing.
type MockServer struct {
	cfg       Config
	container *wiring.Container

	mu        sync.Mutex
	state     State
	httpSrv   *inboundhttp.HTTPServer
	addr      net.Addr
	serveDone chan struct{}
	serveErr  error
}

// New creates a server in the Created state. Nothing listens until Start.
func New(opts ...Option) (*MockServer, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := expectation.ValidateStatus(cfg.NoMatchStatus); err != nil {
		return nil, fmt.Errorf("mockserver: no-match status: %w", err)
	}

	params := wiring.Params{
		RootDir:       cfg.RootDir,
		TraceSize:     cfg.TraceSize,
		NoMatchStatus: cfg.NoMatchStatus,
		Logger:        logging.New(cfg.Logger).With("component", "mockserver"),
		DisableAdmin:  !cfg.AdminAPI,
	}
	if cfg.Clock != nil {
		params.Clock = cfg.Clock
	}

	container, err := wiring.New(params)
	if err != nil {
		return nil, fmt.Errorf("mockserver: %w", err)
	}
	return &MockServer{cfg: cfg, container: container}, nil
}

// NewForTest creates and starts a server that stops when t finishes.
func NewForTest(t testing.TB, opts ...Option) *MockServer {
	t.Helper()
	s, err := New(opts...)
	if err != nil {
		t.Fatalf("mockserver.New: %v", err)
	}
	if _, err := s.Start(context.Background()); err != nil {
		t.Fatalf("mockserver.Start: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Stop(); err != nil && !errors.Is(err, ErrStopped) {
			t.Errorf("mockserver.Stop: %v", err)
		}
	})
	return s
}

// Start binds the listener and begins serving. It returns the bound
// address, which carries the actual port when an ephemeral one was asked for.
func (s *MockServer) Start(ctx context.Context) (net.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateListening:
		return nil, ErrAlreadyStarted
	case StateStopped:
		return nil, ErrStopped
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("mockserver: listen on %s: %w", s.cfg.Addr, err)
	}

	s.httpSrv = inboundhttp.NewHTTPServer(ln.Addr().String(), s.container.Server(), inboundhttp.Timeouts{})
	s.addr = ln.Addr()
	s.serveDone = make(chan struct{})
	s.state = StateListening

	go func() {
		defer close(s.serveDone)
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.container.Logger().Error("serve failed", "error", err)
			s.serveErr = err
		}
	}()

	s.container.Logger().Info("mock server listening", "addr", s.addr.String())
	return s.addr, nil
}

// Stop closes the listener and handles in-flight requests according to the
// configured ShutdownMode. A server that never started moves straight to
// Stopped.
func (s *MockServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateStopped:
		return ErrStopped
	case StateCreated:
		s.state = StateStopped
		s.container.Close()
		return nil
	}

	err := s.httpSrv.Stop(s.cfg.ShutdownMode, s.cfg.GraceTimeout)
	<-s.serveDone
	s.state = StateStopped
	s.container.Close()
	s.container.Logger().Info("mock server stopped", "mode", s.cfg.ShutdownMode.String())

	if err != nil {
		return fmt.Errorf("mockserver: %w", err)
	}
	return s.serveErr
}

// State reports the lifecycle state.
func (s *MockServer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Addr returns the bound address, or nil before Start.
func (s *MockServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// URL returns the base URL, e.g. "http://127.0.0.1:54321", or "" before Start.
func (s *MockServer) URL() string {
	addr := s.Addr()
	if addr == nil {
		return ""
	}
	return "http://" + addr.String()
}

// Handler returns the server's http.Handler for in-process use without a
// listener, e.g. with testclient.NewForHandler.
func (s *MockServer) Handler() http.Handler {
	return s.container.Server()
}

// Expect registers an expectation and returns its handle.
func (s *MockServer) Expect(m Matcher, r Response, t Times, opts ...ExpectOption) (*Expectation, error) {
	if s.State() == StateStopped {
		return nil, ErrStopped
	}
	e, err := expectation.New(m, r, t, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.container.Registry().Add(e); err != nil {
		return nil, err
	}
	return e, nil
}

// ExpectYAML registers expectations from declarative definitions, one
// document or a list, in YAML or JSON. Either all are registered or none.
func (s *MockServer) ExpectYAML(data []byte) ([]*Expectation, error) {
	if s.State() == StateStopped {
		return nil, ErrStopped
	}
	defs, err := filesystem.DecodeDefinitions(data)
	if err != nil {
		return nil, err
	}
	return s.container.RegisterExpectationsUseCase().Execute(defs)
}

// Remove drops one expectation by ID.
func (s *MockServer) Remove(id string) bool {
	return s.container.ResetUseCase().RemoveExpectation(id)
}

// Expectations returns the registered expectations in registration order.
func (s *MockServer) Expectations() []*Expectation {
	return s.container.Registry().Snapshot()
}

// Requests returns every recorded request in arrival order.
func (s *MockServer) Requests() []RecordedRequest {
	return s.container.Ledger().All()
}

// Last returns the most recent recorded request.
func (s *MockServer) Last() (RecordedRequest, bool) {
	return s.container.Ledger().Last()
}

// CountMatching counts recorded requests that m matches.
func (s *MockServer) CountMatching(m Matcher) int {
	return s.container.Ledger().CountMatching(m)
}

// Filter returns the recorded requests that m matches.
func (s *MockServer) Filter(m Matcher) []RecordedRequest {
	return s.container.Ledger().Filter(m)
}

// Counts tallies recorded requests by outcome.
func (s *MockServer) Counts() map[Outcome]int {
	return s.container.Ledger().Counts()
}

// Verify reports every expectation whose lower bound is unmet as one
// *UnsatisfiedError, or nil.
func (s *MockServer) Verify() error {
	return s.container.Registry().Verify()
}

// AssertSatisfied fails t with the Verify report if any expectation is
// unsatisfied.
func (s *MockServer) AssertSatisfied(t testing.TB) {
	t.Helper()
	if err := s.Verify(); err != nil {
		t.Error(err)
	}
}

// Reset drops all expectations and recorded requests.
func (s *MockServer) Reset() {
	s.container.ResetUseCase().Execute(usecases.ResetAll)
}

// ResetRequests clears the ledger and keeps the expectations.
func (s *MockServer) ResetRequests() {
	s.container.ResetUseCase().Execute(usecases.ResetRequests)
}
