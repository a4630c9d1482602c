package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/sophialabs/stubhttp/internal/domain/expectation"
	inboundhttp "github.com/sophialabs/stubhttp/internal/infrastructure/inbound/http"
	"github.com/sophialabs/stubhttp/internal/infrastructure/outbound/filesystem"
	"github.com/sophialabs/stubhttp/internal/infrastructure/outbound/logging"
	"github.com/sophialabs/stubhttp/internal/infrastructure/wiring"
)

// App is the thin lifecycle manager that delegates dependency construction to wiring.Container.
type App struct {
	cfg          Config
	container    *wiring.Container
	httpServer   *inboundhttp.HTTPServer
	shutdownMode inboundhttp.ShutdownMode
}

// New constructs the application by creating a logger, wiring infrastructure
// components via the container, and setting up the HTTP server.
func New(cfg Config) (*App, error) {
	logger, err := logging.NewText(os.Stdout, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	mode, err := inboundhttp.ParseShutdownMode(cfg.ShutdownMode)
	if err != nil {
		return nil, err
	}
	if cfg.RootDir == "" {
		return nil, errors.New("root directory is required")
	}
	if err := expectation.ValidateStatus(cfg.NoMatchStatus); err != nil {
		return nil, fmt.Errorf("invalid no-match status: %w", err)
	}

	container, err := wiring.New(wiring.Params{
		RootDir:        cfg.RootDir,
		TraceSize:      cfg.TraceSize,
		RateLimiterTTL: cfg.RateLimiterTTL,
		NoMatchStatus:  cfg.NoMatchStatus,
		Logger:         logger,
		DefaultEngine:  cfg.DefaultEngine,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to wire infrastructure: %w", err)
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	httpServer := inboundhttp.NewHTTPServer(addr, container.Server(), inboundhttp.Timeouts{
		Read:  cfg.ReadTimeout,
		Write: cfg.WriteTimeout,
		Idle:  cfg.IdleTimeout,
	})

	return &App{
		cfg:          cfg,
		container:    container,
		httpServer:   httpServer,
		shutdownMode: mode,
	}, nil
}

// Run executes the full application lifecycle: load expectations, start the
// watcher, serve HTTP, and shut down on SIGINT/SIGTERM or context cancellation.
func (a *App) Run(ctx context.Context) error {
	defer a.container.Close()

	logger := a.container.Logger()

	n, err := a.container.LoadExpectationsUseCase().Execute(ctx)
	if err != nil {
		return fmt.Errorf("failed to load expectations: %w", err)
	}
	logger.Info("expectations loaded", "count", n, "root", a.cfg.RootDir)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", a.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.httpServer.Addr, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting stubhttp server", "addr", ln.Addr().String(), "root", a.cfg.RootDir)
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if watcher := a.setupWatcher(); watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server", "mode", a.shutdownMode.String(), "grace", a.cfg.ShutdownTimeout)
		if err := a.httpServer.Stop(a.shutdownMode, a.cfg.ShutdownTimeout); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		logger.Info("server stopped")
		return nil
	})

	return g.Wait()
}

func (a *App) setupWatcher() *filesystem.Watcher {
	logger := a.container.Logger()
	if a.cfg.DisableWatcher {
		return nil
	}

	loadUC := a.container.LoadExpectationsUseCase()
	watcher, err := filesystem.NewWatcher(a.cfg.RootDir, a.cfg.WatcherDebounce, logger, func(ctx context.Context) error {
		n, err := loadUC.Execute(ctx)
		if err != nil {
			return err
		}
		logger.Info("hot reload complete", "count", n)
		return nil
	})
	if err != nil {
		logger.Warn("file watcher not available", "error", err)
		return nil
	}

	logger.Info("file watcher started", "root", a.cfg.RootDir)
	return watcher
}
