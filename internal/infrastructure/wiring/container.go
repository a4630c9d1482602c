package wiring

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sophialabs/stubhttp/internal/domain/expectation"
	"github.com/sophialabs/stubhttp/internal/domain/ledger"
	"github.com/sophialabs/stubhttp/internal/domain/match"
	"github.com/sophialabs/stubhttp/internal/domain/trace"
	inboundhttp "github.com/sophialabs/stubhttp/internal/infrastructure/inbound/http"
	"github.com/sophialabs/stubhttp/internal/infrastructure/outbound/clock"
	"github.com/sophialabs/stubhttp/internal/infrastructure/outbound/filesystem"
	"github.com/sophialabs/stubhttp/internal/infrastructure/outbound/metrics"
	"github.com/sophialabs/stubhttp/internal/infrastructure/outbound/ratelimit"
	"github.com/sophialabs/stubhttp/internal/infrastructure/outbound/template"
	"github.com/sophialabs/stubhttp/internal/infrastructure/ports"
	"github.com/sophialabs/stubhttp/internal/infrastructure/services"
	"github.com/sophialabs/stubhttp/internal/infrastructure/usecases"
)

// Params holds the subset of configuration needed to construct infrastructure components.
type Params struct {
	// RootDir holds file-defined expectations. Empty means none: reload is
	// disabled and body_file cannot be used.
	RootDir        string
	TraceSize      int
	RateLimiterTTL time.Duration
	NoMatchStatus  int
	Logger         ports.Logger
	Clock          ports.Clock // nil = wall clock
	DefaultEngine  string      // "" = static, "expr", "jinja2"
	DisableAdmin   bool
}

// Container owns the construction and lifecycle of all infrastructure
// components of one mock server. Nothing is shared between containers.
type Container struct {
	logger           ports.Logger
	server           *inboundhttp.Server
	registry         *expectation.Registry
	ledger           *ledger.Ledger
	compiler         *services.Compiler
	loadUC           *usecases.LoadExpectationsUseCase
	registerUC       *usecases.RegisterExpectationsUseCase
	resetUC          *usecases.ResetUseCase
	metrics          *metrics.Recorder
	rateLimiterStore *ratelimit.TokenBucketStore
	traceBuf         *trace.RingBuffer
	closeOnce        sync.Once
}

// New constructs all infrastructure components. Fallible operations (repository,
// compiler) run before goroutine-starting operations (rate limiter store) to
// avoid goroutine leaks on early failure.
func New(p Params) (*Container, error) {
	var repo *filesystem.YAMLRepository
	if p.RootDir != "" {
		if _, err := os.Stat(p.RootDir); err != nil {
			return nil, fmt.Errorf("failed to access root directory: %w", err)
		}
		var err error
		repo, err = filesystem.NewYAMLRepository(p.RootDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create repository: %w", err)
		}
	}

	compiler, err := services.NewCompiler(p.RootDir, template.NewRegistry())
	if err != nil {
		return nil, fmt.Errorf("failed to create compiler: %w", err)
	}

	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}

	// Start background goroutine only after all fallible ops succeed.
	rateLimiterStore := ratelimit.NewTokenBucketStore(p.RateLimiterTTL, ratelimit.WithClock(clk))

	registry := expectation.NewRegistry()
	ldg := ledger.New()
	traceBuf := trace.NewRingBuffer(p.TraceSize)
	recorder := metrics.NewRecorder()

	handleReqUC := usecases.NewHandleRequestUseCase(
		registry, ldg, match.NewEvaluator(), clk, rateLimiterStore,
		recorder, p.Logger, traceBuf, p.NoMatchStatus,
	)
	registerUC := usecases.NewRegisterExpectationsUseCase(compiler, registry, p.Logger)
	resetUC := usecases.NewResetUseCase(registry, ldg, traceBuf, rateLimiterStore, recorder, p.Logger)

	server := inboundhttp.NewServer(handleReqUC, registerUC, resetUC, registry, ldg, traceBuf, p.Logger)
	server.SetMetricsHandler(recorder.Handler())
	if p.DisableAdmin {
		server.DisableAdmin()
	}

	var loadUC *usecases.LoadExpectationsUseCase
	if repo != nil {
		loadUC = usecases.NewLoadExpectationsUseCase(repo, compiler, registry, recorder, p.Logger)
		if p.DefaultEngine != "" {
			loadUC.SetDefaultEngine(p.DefaultEngine)
		}
		server.SetReloader(loadUC)
	}

	return &Container{
		logger:           p.Logger,
		server:           server,
		registry:         registry,
		ledger:           ldg,
		compiler:         compiler,
		loadUC:           loadUC,
		registerUC:       registerUC,
		resetUC:          resetUC,
		metrics:          recorder,
		rateLimiterStore: rateLimiterStore,
		traceBuf:         traceBuf,
	}, nil
}

// Close releases resources held by the container. It is idempotent.
func (c *Container) Close() {
	c.closeOnce.Do(func() {
		c.rateLimiterStore.Stop()
	})
}

// Logger returns the logger passed at construction time.
func (c *Container) Logger() ports.Logger {
	return c.logger
}

// Server returns the HTTP handler: admin API plus mock dispatch.
func (c *Container) Server() *inboundhttp.Server {
	return c.server
}

// Registry returns the expectation registry.
func (c *Container) Registry() *expectation.Registry {
	return c.registry
}

// Ledger returns the recorded-request ledger.
func (c *Container) Ledger() *ledger.Ledger {
	return c.ledger
}

// Compiler returns the definition compiler.
func (c *Container) Compiler() *services.Compiler {
	return c.compiler
}

// LoadExpectationsUseCase returns the file loader, or nil when no root
// directory was configured.
func (c *Container) LoadExpectationsUseCase() *usecases.LoadExpectationsUseCase {
	return c.loadUC
}

// RegisterExpectationsUseCase returns the use case behind POST /__admin/expectations.
func (c *Container) RegisterExpectationsUseCase() *usecases.RegisterExpectationsUseCase {
	return c.registerUC
}

// ResetUseCase returns the use case that clears server state.
func (c *Container) ResetUseCase() *usecases.ResetUseCase {
	return c.resetUC
}

// Metrics returns the Prometheus recorder.
func (c *Container) Metrics() *metrics.Recorder {
	return c.metrics
}

// RateLimiterStore returns the token bucket store for rate limiting.
func (c *Container) RateLimiterStore() *ratelimit.TokenBucketStore {
	return c.rateLimiterStore
}

// TraceBuf returns the trace ring buffer.
func (c *Container) TraceBuf() *trace.RingBuffer {
	return c.traceBuf
}
