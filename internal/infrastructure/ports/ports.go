package ports

import (
	"context"
	"time"
)

// Clock provides the current time and cancellable sleeps.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	// SleepContext blocks for d or until ctx is cancelled. Returns ctx.Err() if cancelled.
	SleepContext(ctx context.Context, d time.Duration) error
}

// Logger provides structured logging.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
	// With returns a logger that adds args to every record.
	With(args ...any) Logger
}

// RateLimiter checks whether a request is allowed under rate limits.
type RateLimiter interface {
	// Allow checks if a request identified by key is within the rate limit.
	// rate is tokens per second, burst is the max burst size.
	Allow(ctx context.Context, key string, rate float64, burst int) bool
	// Reset forgets every bucket.
	Reset()
}

// Metrics receives per-request and registry observations.
type Metrics interface {
	ObserveRequest(method, outcome string, status int, elapsed time.Duration)
	SetExpectations(registered, unsatisfied int)
	ObserveReload(err error)
}
