package app_test

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sophialabs/stubhttp/internal/app"
)

func startApp(t *testing.T, cfg app.Config) (base string, cancel context.CancelFunc, errCh <-chan error) {
	t.Helper()
	cfg.Host = "127.0.0.1"
	cfg.Port = freePort(t)
	cfg.LogLevel = "error"

	a, err := app.New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan error, 1)
	go func() { ch <- a.Run(ctx) }()

	base = fmt.Sprintf("http://127.0.0.1:%d", cfg.Port)
	waitForServer(t, base+"/__admin/health", 3*time.Second)
	return base, cancel, ch
}

func waitRun(t *testing.T, errCh <-chan error) {
	t.Helper()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestRun_ServesAndShutsDownGracefully(t *testing.T) {
	dir := t.TempDir()
	writeTestDefinition(t, dir)

	cfg := app.DefaultConfig()
	cfg.RootDir = dir
	base, cancel, errCh := startApp(t, cfg)
	defer cancel()

	resp, err := http.Get(base + "/api/health")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != 200 || string(body) != `{"status":"ok"}` {
		t.Errorf("unexpected response %d %s", resp.StatusCode, body)
	}

	cancel()
	waitRun(t, errCh)
}

func TestRun_ForcedShutdown(t *testing.T) {
	dir := t.TempDir()
	writeTestDefinition(t, dir)

	cfg := app.DefaultConfig()
	cfg.RootDir = dir
	cfg.ShutdownMode = "forced"
	_, cancel, errCh := startApp(t, cfg)

	cancel()
	waitRun(t, errCh)
}

func TestRun_HotReload(t *testing.T) {
	dir := t.TempDir()
	writeTestDefinition(t, dir)

	cfg := app.DefaultConfig()
	cfg.RootDir = dir
	cfg.WatcherDebounce = 20 * time.Millisecond
	base, cancel, errCh := startApp(t, cfg)
	defer cancel()

	added := `id: added
when: {method: GET, path: /added}
response: {status: 201}
`
	if err := os.WriteFile(filepath.Join(dir, "expectations", "added.yaml"), []byte(added), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		resp, err := http.Get(base + "/added")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == 201 {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("new definition never served")
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	waitRun(t, errCh)
}

func TestRun_AdminReload(t *testing.T) {
	dir := t.TempDir()
	writeTestDefinition(t, dir)

	cfg := app.DefaultConfig()
	cfg.RootDir = dir
	cfg.DisableWatcher = true
	base, cancel, errCh := startApp(t, cfg)
	defer cancel()

	resp, err := http.Post(base+"/__admin/reload", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != 200 || !strings.Contains(string(body), `"expectations": 1`) {
		t.Errorf("unexpected reload response %d %s", resp.StatusCode, body)
	}

	cancel()
	waitRun(t, errCh)
}

func TestRun_FailsOnInvalidDefinitions(t *testing.T) {
	dir := t.TempDir()
	defDir := filepath.Join(dir, "expectations")
	if err := os.MkdirAll(defDir, 0o755); err != nil {
		t.Fatalf("failed to create definitions dir: %v", err)
	}
	// Duplicate IDs across one file.
	yaml := `- id: dup
  when:
    method: GET
    path: /a
  response:
    status: 200
- id: dup
  when:
    method: GET
    path: /b
  response:
    status: 200
`
	if err := os.WriteFile(filepath.Join(defDir, "dups.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("failed to write definition file: %v", err)
	}

	cfg := app.DefaultConfig()
	cfg.RootDir = dir
	cfg.LogLevel = "error"

	a, err := app.New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.Run(ctx); err == nil {
		t.Error("expected error for invalid definitions")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("server not ready at %s after %v", url, timeout)
}
