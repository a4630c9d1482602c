//go:build e2e

package e2e_test

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/sophialabs/stubhttp/internal/app"
)

func projectRoot() string {
	_, file, _, _ := runtime.Caller(0)
	// file = <root>/test/e2e/testhelpers_test.go, go up 3 levels
	return filepath.Join(filepath.Dir(file), "..", "..")
}

// copyMockDir copies the sample definitions so tests can edit them.
func copyMockDir(t *testing.T) string {
	t.Helper()
	dst := t.TempDir()
	src := filepath.Join(projectRoot(), "mock")
	if err := os.CopyFS(dst, os.DirFS(src)); err != nil {
		t.Fatalf("failed to copy mock dir: %v", err)
	}
	return dst
}

// startApp runs the full application on a free port and stops it when the
// test ends.
func startApp(t *testing.T, rootDir string) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	cfg := app.DefaultConfig()
	cfg.RootDir = rootDir
	cfg.Host = "127.0.0.1"
	cfg.Port = port
	cfg.LogLevel = "error"
	cfg.WatcherDebounce = 20 * time.Millisecond

	a, err := app.New(cfg)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("app did not stop")
		}
	})

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/__admin/health")
		if err == nil {
			_ = resp.Body.Close()
			return base
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server at %s did not come up", base)
	return ""
}

// eventually polls cond until it holds or the timeout passes.
func eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
