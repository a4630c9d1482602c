package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ShutdownMode selects what happens to in-flight requests on stop.
type ShutdownMode int

const (
	// ShutdownGraceful stops accepting connections and lets in-flight
	// requests finish, up to the grace timeout. Requests still running
	// then are cancelled as in ShutdownForced.
	ShutdownGraceful ShutdownMode = iota
	// ShutdownForced closes every connection and cancels all request
	// contexts at once. Pending response delays end without a response.
	ShutdownForced
)

// ParseShutdownMode maps "graceful" and "forced" onto a ShutdownMode.
func ParseShutdownMode(s string) (ShutdownMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "graceful":
		return ShutdownGraceful, nil
	case "forced", "force":
		return ShutdownForced, nil
	default:
		return 0, fmt.Errorf("unknown shutdown mode %q (want graceful or forced)", s)
	}
}

func (m ShutdownMode) String() string {
	if m == ShutdownForced {
		return "forced"
	}
	return "graceful"
}

// Timeouts configures the net/http server.
type Timeouts struct {
	Read  time.Duration
	Write time.Duration
	Idle  time.Duration
}

// HTTPServer couples a net/http server with the base context its request
// contexts derive from, so a forced stop can cancel them.
type HTTPServer struct {
	*http.Server
	cancelRequests context.CancelFunc
	conns          *connTracker
}

// NewHTTPServer wraps handler in a net/http server.
func NewHTTPServer(addr string, handler http.Handler, t Timeouts) *HTTPServer {
	base, cancel := context.WithCancel(context.Background())
	conns := &connTracker{conns: make(map[net.Conn]http.ConnState)}
	return &HTTPServer{
		Server: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  t.Read,
			WriteTimeout: t.Write,
			IdleTimeout:  t.Idle,
			BaseContext:  func(_ net.Listener) context.Context { return base },
			ConnState:    conns.track,
		},
		cancelRequests: cancel,
		conns:          conns,
	}
}

// Stop shuts the server down according to mode. A graceful stop that
// exceeds grace falls back to a forced one and reports the timeout.
func (s *HTTPServer) Stop(mode ShutdownMode, grace time.Duration) error {
	if mode == ShutdownForced {
		err := s.Close()
		s.cancelRequests()
		return err
	}
	defer s.cancelRequests()

	// net/http only treats a connection that never sent a request as idle
	// after five seconds. Only requests in progress may hold up the stop.
	s.conns.closeQuiet()

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	err := s.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		_ = s.Close()
		s.cancelRequests()
		return fmt.Errorf("graceful shutdown exceeded %s, in-flight requests cancelled: %w", grace, err)
	}
	return err
}

// connTracker follows connection states so a graceful stop can close the
// connections that are not serving a request.
type connTracker struct {
	mu       sync.Mutex
	conns    map[net.Conn]http.ConnState
	stopping bool
}

func (t *connTracker) track(c net.Conn, state http.ConnState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch state {
	case http.StateNew, http.StateIdle:
		if t.stopping {
			_ = c.Close()
			delete(t.conns, c)
			return
		}
		t.conns[c] = state
	case http.StateActive:
		t.conns[c] = state
	case http.StateHijacked, http.StateClosed:
		delete(t.conns, c)
	}
}

// closeQuiet closes every new or idle connection, now and as connections
// reach those states later.
func (t *connTracker) closeQuiet() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopping = true
	for c, state := range t.conns {
		if state != http.StateActive {
			_ = c.Close()
			delete(t.conns, c)
		}
	}
}
