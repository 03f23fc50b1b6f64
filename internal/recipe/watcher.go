package recipe

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a manifest file and triggers a reload callback when
// it changes. Used by the render --watch loop.
//
// The parent directory is watched rather than the file itself because
// editors commonly write a temp file and rename it over the original,
// which replaces the inode the watch would be attached to.
type Watcher struct {
	manifestPath string
	watcher      *fsnotify.Watcher
	reloadFunc   func(string) error
	logger       *slog.Logger
	mu           sync.RWMutex
	running      bool
	stopCh       chan struct{}
	debounceTime time.Duration
}

// NewWatcher creates a manifest watcher that invokes reloadFunc with
// the manifest path after each (debounced) change.
func NewWatcher(manifestPath string, reloadFunc func(string) error, logger *slog.Logger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		manifestPath: manifestPath,
		watcher:      watcher,
		reloadFunc:   reloadFunc,
		logger:       logger,
		stopCh:       make(chan struct{}),
		// Editors fire several events per save; coalesce them.
		debounceTime: 500 * time.Millisecond,
	}, nil
}

// Start begins watching the manifest for changes. It returns once the
// watch is established; events are handled on a background goroutine
// until Stop is called or the context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	manifestDir := filepath.Dir(w.manifestPath)
	if err := w.watcher.Add(manifestDir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}

	w.logger.Info("watching manifest", "path", w.manifestPath)

	go w.watchLoop(ctx)
	return nil
}

// Stop stops the watcher and releases the underlying fsnotify watch.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	return w.watcher.Close()
}

// IsRunning reports whether the watcher is currently active.
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// watchLoop is the event loop. Write, create, and rename events on the
// manifest path arm a debounce timer; the reload fires when the timer
// expires without further events.
func (w *Watcher) watchLoop(ctx context.Context) {
	var debounceTimer *time.Timer

	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.isManifestEvent(event) {
				continue
			}

			w.logger.Debug("manifest event", "op", event.Op.String(), "file", event.Name)

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(w.debounceTime, w.triggerReload)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("manifest watch error", "error", err)

		case <-w.stopCh:
			return

		case <-ctx.Done():
			return
		}
	}
}

// isManifestEvent reports whether the event concerns the watched
// manifest file (the watch is on the whole directory).
func (w *Watcher) isManifestEvent(event fsnotify.Event) bool {
	eventPath, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	manifestPath, err := filepath.Abs(w.manifestPath)
	if err != nil {
		return false
	}
	return eventPath == manifestPath
}

// triggerReload runs the reload callback and logs its outcome. Reload
// failures are logged, not fatal: a half-saved manifest should not
// kill the watch loop.
func (w *Watcher) triggerReload() {
	start := time.Now()
	if err := w.reloadFunc(w.manifestPath); err != nil {
		w.logger.Error("manifest reload failed", "error", err, "duration", time.Since(start))
		return
	}
	w.logger.Info("manifest reloaded", "duration", time.Since(start))
}
