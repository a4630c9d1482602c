package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sophialabs/stubhttp/internal/domain/match"
	"github.com/sophialabs/stubhttp/internal/infrastructure/ports"
)

var _ ports.Logger = (*NoopLogger)(nil)

// NoopLogger discards all log output.
type NoopLogger struct{}

func (l *NoopLogger) Info(string, ...any)      {}
func (l *NoopLogger) Warn(string, ...any)      {}
func (l *NoopLogger) Error(string, ...any)     {}
func (l *NoopLogger) Debug(string, ...any)     {}
func (l *NoopLogger) With(...any) ports.Logger { return l }

var _ ports.Logger = (*RecordingLogger)(nil)

// RecordingLogger keeps every message it receives, prefixed by level.
type RecordingLogger struct {
	mu       sync.Mutex
	messages []string
}

// NewRecordingLogger creates an empty RecordingLogger.
func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{}
}

func (l *RecordingLogger) record(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("%s %s", level, msg))
}

func (l *RecordingLogger) Info(msg string, _ ...any)  { l.record("INFO", msg) }
func (l *RecordingLogger) Warn(msg string, _ ...any)  { l.record("WARN", msg) }
func (l *RecordingLogger) Error(msg string, _ ...any) { l.record("ERROR", msg) }
func (l *RecordingLogger) Debug(msg string, _ ...any) { l.record("DEBUG", msg) }
func (l *RecordingLogger) With(...any) ports.Logger   { return l }

// Messages returns a copy of the recorded lines.
func (l *RecordingLogger) Messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.messages...)
}

var _ ports.Clock = (*ManualClock)(nil)

// ManualClock only moves when Advance is called. SleepContext records the
// requested duration and advances by it.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

// NewManualClock creates a clock set to start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *ManualClock) SleepContext(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

// Sleeps returns every duration passed to SleepContext.
func (c *ManualClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

var _ ports.RateLimiter = (*StubRateLimiter)(nil)

// StubRateLimiter returns a configurable Allow result. OnAllow, when set,
// runs inside every Allow call.
type StubRateLimiter struct {
	AllowAll bool
	Resets   int
	OnAllow  func(key string)
}

func (r *StubRateLimiter) Allow(_ context.Context, key string, _ float64, _ int) bool {
	if r.OnAllow != nil {
		r.OnAllow(key)
	}
	return r.AllowAll
}

func (r *StubRateLimiter) Reset() { r.Resets++ }

var _ match.BodyRenderer = (*StubBodyRenderer)(nil)

// StubBodyRenderer returns a configurable render result.
type StubBodyRenderer struct {
	Result []byte
	Err    error
}

func (r *StubBodyRenderer) Render(match.RenderContext) ([]byte, error) {
	return r.Result, r.Err
}

var _ ports.Metrics = (*RecordingMetrics)(nil)

// RecordingMetrics counts observations by outcome.
type RecordingMetrics struct {
	mu          sync.Mutex
	Outcomes    map[string]int
	Registered  int
	Unsatisfied int
	Reloads     int
	ReloadErrs  int
}

// NewRecordingMetrics creates an empty RecordingMetrics.
func NewRecordingMetrics() *RecordingMetrics {
	return &RecordingMetrics{Outcomes: make(map[string]int)}
}

func (m *RecordingMetrics) ObserveRequest(_, outcome string, _ int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Outcomes[outcome]++
}

func (m *RecordingMetrics) SetExpectations(registered, unsatisfied int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Registered = registered
	m.Unsatisfied = unsatisfied
}

func (m *RecordingMetrics) ObserveReload(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reloads++
	if err != nil {
		m.ReloadErrs++
	}
}

// Outcome returns the count for one outcome.
func (m *RecordingMetrics) Outcome(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Outcomes[name]
}
