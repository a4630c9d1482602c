package app_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sophialabs/stubhttp/internal/app"
)

func writeTestDefinition(t *testing.T, dir string) {
	t.Helper()
	defDir := filepath.Join(dir, "expectations")
	if err := os.MkdirAll(defDir, 0o755); err != nil {
		t.Fatalf("failed to create definitions dir: %v", err)
	}
	yaml := `id: test-health
name: Test Health
when:
  method: GET
  path: /api/health
response:
  status: 200
  body: '{"status":"ok"}'
`
	if err := os.WriteFile(filepath.Join(defDir, "health.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("failed to write definition file: %v", err)
	}
}

func TestDefaultConfig_HasSensibleValues(t *testing.T) {
	cfg := app.DefaultConfig()

	if cfg.RootDir == "" {
		t.Error("RootDir should not be empty")
	}
	if cfg.Port == 0 {
		t.Error("Port should not be zero")
	}
	if cfg.TraceSize == 0 {
		t.Error("TraceSize should not be zero")
	}
	if cfg.LogLevel == "" {
		t.Error("LogLevel should not be empty")
	}
	if cfg.RateLimiterTTL == 0 {
		t.Error("RateLimiterTTL should not be zero")
	}
	if cfg.WatcherDebounce == 0 {
		t.Error("WatcherDebounce should not be zero")
	}
	if cfg.ReadTimeout == 0 || cfg.WriteTimeout == 0 || cfg.IdleTimeout == 0 {
		t.Error("HTTP timeouts should not be zero")
	}
	if cfg.ShutdownTimeout == 0 {
		t.Error("ShutdownTimeout should not be zero")
	}
	if cfg.ShutdownMode != "graceful" {
		t.Errorf("expected graceful shutdown by default, got %q", cfg.ShutdownMode)
	}
	if cfg.NoMatchStatus != 404 {
		t.Errorf("expected 404 no-match status, got %d", cfg.NoMatchStatus)
	}
}

func TestNew_Success(t *testing.T) {
	dir := t.TempDir()
	writeTestDefinition(t, dir)

	cfg := app.DefaultConfig()
	cfg.RootDir = dir

	a, err := app.New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if a == nil {
		t.Fatal("expected non-nil App")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name   string
		mutate func(*app.Config)
	}{
		{"missing root", func(c *app.Config) { c.RootDir = "/nonexistent/path/that/does/not/exist" }},
		{"empty root", func(c *app.Config) { c.RootDir = "" }},
		{"log level", func(c *app.Config) { c.RootDir = dir; c.LogLevel = "loud" }},
		{"shutdown mode", func(c *app.Config) { c.RootDir = dir; c.ShutdownMode = "eventually" }},
		{"no-match status below range", func(c *app.Config) { c.RootDir = dir; c.NoMatchStatus = 42 }},
		{"no-match status above range", func(c *app.Config) { c.RootDir = dir; c.NoMatchStatus = 600 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := app.DefaultConfig()
			tt.mutate(&cfg)
			if _, err := app.New(cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNew_WithDefaultEngine(t *testing.T) {
	dir := t.TempDir()
	writeTestDefinition(t, dir)

	cfg := app.DefaultConfig()
	cfg.RootDir = dir
	cfg.DefaultEngine = "expr"

	if _, err := app.New(cfg); err != nil {
		t.Fatalf("New failed: %v", err)
	}
}

func TestNew_WithAllLogLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		t.Run(level, func(t *testing.T) {
			dir := t.TempDir()
			writeTestDefinition(t, dir)

			cfg := app.DefaultConfig()
			cfg.RootDir = dir
			cfg.LogLevel = level

			if _, err := app.New(cfg); err != nil {
				t.Fatalf("New failed for log level %q: %v", level, err)
			}
		})
	}
}
