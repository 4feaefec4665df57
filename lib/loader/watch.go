package loader

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates cached components when their files change on disk.
// fsnotify is not recursive, so the root and every component directory are
// watched individually; new component directories are picked up on create.
type Watcher struct {
	loader   *Loader
	dir      string
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]time.Time
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long a component must be quiet before it is
// invalidated. Editors often write a file several times per save.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithWatchLogger sets the watcher's logger.
func WithWatchLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = logger }
}

// NewWatcher creates a watcher for the components directory dir.
func NewWatcher(l *Loader, dir string, opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		loader:   l,
		dir:      filepath.Clean(dir),
		watcher:  fw,
		logger:   l.logger,
		debounce: 200 * time.Millisecond,
		pending:  make(map[string]time.Time),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start adds the watches and runs the event loop in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() && ValidateName(e.Name()) == nil {
			if err := w.watcher.Add(filepath.Join(w.dir, e.Name())); err != nil {
				w.logger.Warn("watch component failed", "component", e.Name(), "error", err)
			}
		}
	}
	w.logger.Info("watching components", "dir", w.dir)

	w.mu.Lock()
	w.running = true
	w.mu.Unlock()
	go w.run(ctx)
	return nil
}

// Stop ends the event loop and releases the fsnotify watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		_ = w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	if err := w.watcher.Close(); err != nil {
		w.logger.Error("close watcher", "error", err)
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.debounce / 4
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	rel, err := filepath.Rel(w.dir, event.Name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return
	}
	name, _, nested := strings.Cut(filepath.ToSlash(rel), "/")
	if ValidateName(name) != nil {
		return
	}

	if !nested && event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watcher.Add(event.Name); err != nil {
				w.logger.Warn("watch component failed", "component", name, "error", err)
			}
		}
	}

	w.logger.Debug("component file changed", "component", name, "op", event.Op.String())
	w.mu.Lock()
	w.pending[name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) flush() {
	now := time.Now()
	var ready []string
	w.mu.Lock()
	for name, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			ready = append(ready, name)
			delete(w.pending, name)
		}
	}
	w.mu.Unlock()

	for _, name := range ready {
		w.loader.Invalidate(name)
	}
}
