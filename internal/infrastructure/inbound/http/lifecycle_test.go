package http_test

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	inboundhttp "github.com/sophialabs/stubhttp/internal/infrastructure/inbound/http"
)

func TestParseShutdownMode(t *testing.T) {
	tests := []struct {
		in      string
		want    inboundhttp.ShutdownMode
		wantErr bool
	}{
		{"", inboundhttp.ShutdownGraceful, false},
		{"graceful", inboundhttp.ShutdownGraceful, false},
		{"FORCED", inboundhttp.ShutdownForced, false},
		{"later", 0, true},
	}
	for _, tt := range tests {
		got, err := inboundhttp.ParseShutdownMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseShutdownMode(%q) error = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseShutdownMode(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

// serveBlocking starts a server whose handler signals entry and then waits
// for release or for its request context to end.
func serveBlocking(t *testing.T, release <-chan struct{}) (*inboundhttp.HTTPServer, string, <-chan struct{}, <-chan error) {
	t.Helper()
	entered := make(chan struct{}, 1)
	handlerDone := make(chan error, 1)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		select {
		case <-release:
			w.WriteHeader(http.StatusOK)
			handlerDone <- nil
		case <-r.Context().Done():
			handlerDone <- r.Context().Err()
		}
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := inboundhttp.NewHTTPServer(ln.Addr().String(), h, inboundhttp.Timeouts{})
	go func() { _ = srv.Serve(ln) }()
	return srv, "http://" + ln.Addr().String(), entered, handlerDone
}

func waitEntered(t *testing.T, entered <-chan struct{}) {
	t.Helper()
	select {
	case <-entered:
	case <-time.After(3 * time.Second):
		t.Fatal("handler never entered")
	}
}

func TestHTTPServer_GracefulWaitsForInFlight(t *testing.T) {
	release := make(chan struct{})
	srv, url, entered, handlerDone := serveBlocking(t, release)

	status := make(chan int, 1)
	go func() {
		resp, err := http.Get(url)
		if err != nil {
			status <- 0
			return
		}
		resp.Body.Close()
		status <- resp.StatusCode
	}()
	waitEntered(t, entered)

	stopped := make(chan error, 1)
	go func() { stopped <- srv.Stop(inboundhttp.ShutdownGraceful, 5*time.Second) }()

	time.Sleep(50 * time.Millisecond)
	close(release)

	if err := <-handlerDone; err != nil {
		t.Errorf("in-flight request was cancelled: %v", err)
	}
	if got := <-status; got != http.StatusOK {
		t.Errorf("expected 200, got %d", got)
	}
	if err := <-stopped; err != nil {
		t.Errorf("Stop returned %v", err)
	}
}

func TestHTTPServer_GracefulTimeoutFallsBackToForced(t *testing.T) {
	srv, url, entered, handlerDone := serveBlocking(t, make(chan struct{}))

	go func() {
		if resp, err := http.Get(url); err == nil {
			resp.Body.Close()
		}
	}()
	waitEntered(t, entered)

	err := srv.Stop(inboundhttp.ShutdownGraceful, 50*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
	select {
	case err := <-handlerDone:
		if err == nil {
			t.Error("expected the request context to be cancelled")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("handler still running after forced fallback")
	}
}

func TestHTTPServer_ForcedCancelsInFlight(t *testing.T) {
	srv, url, entered, handlerDone := serveBlocking(t, make(chan struct{}))

	clientErr := make(chan error, 1)
	go func() {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
		}
		clientErr <- err
	}()
	waitEntered(t, entered)

	if err := srv.Stop(inboundhttp.ShutdownForced, time.Minute); err != nil {
		t.Errorf("Stop returned %v", err)
	}
	select {
	case err := <-handlerDone:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("handler not cancelled by forced stop")
	}
	if err := <-clientErr; err == nil {
		t.Error("client should see the connection drop")
	}
}

func TestHTTPServer_GracefulClosesConnectionsWithoutRequests(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := inboundhttp.NewHTTPServer(ln.Addr().String(), http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), inboundhttp.Timeouts{})
	go func() { _ = srv.Serve(ln) }()

	// Connected but silent, as a client's spare connection would be.
	quiet, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer quiet.Close()

	// Served after the quiet connection was accepted; leaves a keep-alive
	// connection idle in the client's pool.
	resp, err := http.Get("http://" + ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	start := time.Now()
	if err := srv.Stop(inboundhttp.ShutdownGraceful, 3*time.Second); err != nil {
		t.Fatalf("Stop returned %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("graceful stop with no requests in progress took %s", elapsed)
	}

	_ = quiet.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := quiet.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Errorf("expected the server to close the quiet connection, got %v", err)
	}
}
