package mockserver

import (
	"context"
	"log/slog"
	"time"

	inboundhttp "github.com/sophialabs/stubhttp/internal/infrastructure/inbound/http"
)

// ShutdownMode selects what Stop does with in-flight requests.
type ShutdownMode = inboundhttp.ShutdownMode

const (
	// ShutdownGraceful lets in-flight requests finish, up to the grace
	// timeout, and cancels whatever is still running after it.
	ShutdownGraceful = inboundhttp.ShutdownGraceful
	// ShutdownForced drops all connections immediately. Requests waiting
	// on a response delay get no response.
	ShutdownForced = inboundhttp.ShutdownForced
)

// Clock is the time source used for timestamps and response delays.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	SleepContext(ctx context.Context, d time.Duration) error
}

// Config holds the settings of one MockServer.
type Config struct {
	// Addr is the listen address. The default picks an ephemeral port on
	// the loopback interface.
	Addr          string
	NoMatchStatus int
	ShutdownMode  ShutdownMode
	GraceTimeout  time.Duration
	Logger        *slog.Logger
	TraceSize     int
	Clock         Clock
	// AdminAPI mounts the JSON admin API under /__admin.
	AdminAPI bool
	// RootDir enables body_file references in definitions passed to ExpectYAML.
	RootDir string
}

func defaultConfig() Config {
	return Config{
		Addr:          "127.0.0.1:0",
		NoMatchStatus: 404,
		ShutdownMode:  ShutdownGraceful,
		GraceTimeout:  5 * time.Second,
		TraceSize:     100,
		AdminAPI:      true,
	}
}

// Option configures a MockServer.
type Option func(*Config)

// WithAddr sets the listen address, e.g. "127.0.0.1:8080".
func WithAddr(addr string) Option {
	return func(c *Config) { c.Addr = addr }
}

// WithNoMatchStatus sets the status served when no expectation matches.
func WithNoMatchStatus(status int) Option {
	return func(c *Config) { c.NoMatchStatus = status }
}

// WithShutdownMode sets what Stop does with in-flight requests.
func WithShutdownMode(m ShutdownMode) Option {
	return func(c *Config) { c.ShutdownMode = m }
}

// WithGraceTimeout bounds how long a graceful Stop waits.
func WithGraceTimeout(d time.Duration) Option {
	return func(c *Config) { c.GraceTimeout = d }
}

// WithLogger sends server logs to l. By default nothing is logged.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithTraceSize sets how many match traces are kept for /__admin/trace.
func WithTraceSize(n int) Option {
	return func(c *Config) { c.TraceSize = n }
}

// WithClock replaces the wall clock.
func WithClock(clk Clock) Option {
	return func(c *Config) { c.Clock = clk }
}

// WithAdminAPI enables or disables the /__admin API.
func WithAdminAPI(enabled bool) Option {
	return func(c *Config) { c.AdminAPI = enabled }
}

// WithRootDir sets the directory body_file paths are resolved against.
func WithRootDir(dir string) Option {
	return func(c *Config) { c.RootDir = dir }
}
