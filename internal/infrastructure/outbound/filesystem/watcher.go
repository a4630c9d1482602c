package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sophialabs/stubhttp/internal/infrastructure/ports"
)

// ReloadFunc is invoked once per burst of file changes.
type ReloadFunc func(ctx context.Context) error

// Watcher watches a directory tree for YAML changes and calls a reload
// function after the changes settle for the debounce interval.
type Watcher struct {
	rootDir  string
	debounce time.Duration
	logger   ports.Logger
	watcher  *fsnotify.Watcher
	onReload ReloadFunc
}

// NewWatcher creates a watcher for rootDir and all its subdirectories.
func NewWatcher(rootDir string, debounce time.Duration, logger ports.Logger, onReload ReloadFunc) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		rootDir:  rootDir,
		debounce: debounce,
		logger:   logger.With("component", "watcher"),
		watcher:  fsWatcher,
		onReload: onReload,
	}
	if err := w.addRecursive(rootDir); err != nil {
		_ = fsWatcher.Close()
		return nil, err
	}
	return w, nil
}

// Run processes events until ctx is done, then closes the underlying
// watcher. It always returns nil so it can sit in an errgroup next to the
// HTTP server.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.watcher.Close() }()

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}

			w.logger.Debug("file change detected", "file", event.Name, "op", event.Op.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			timerC = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)

		case <-timerC:
			timerC = nil
			w.logger.Info("reloading expectations due to file changes")
			if err := w.onReload(ctx); err != nil {
				// Keep the previous expectation set; the next save retries.
				w.logger.Error("reload failed", "error", err)
			}
		}
	}
}

// relevant reports whether event should trigger a reload. New directories
// are added to the watch list and count as a change.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return false
	}
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "dir", event.Name, "error", err)
			}
			return true
		}
	}
	// Body files and included fragments matter too, so only editor swap
	// and backup files are ignored.
	base := filepath.Base(event.Name)
	return !strings.HasPrefix(base, ".") && !strings.HasSuffix(base, "~")
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}
