// Package loader reads component definitions from a Source and caches them
// for the life of the process.
//
// A component lives in its own directory:
//
//	counter/
//	  component.json  metadata object (required)
//	  handler.star    Starlark handler, unless a Go handler is registered
//	  view.html       html/template source (required)
//	  style.css       stylesheet (optional)
//
// Concurrent first loads of one name share a single in-flight read. Cached
// definitions are never refreshed unless Invalidate is called, which the
// Watcher does in development.
package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/pthm/snapoff/lib/component"
	"github.com/pthm/snapoff/lib/metrics"
	"github.com/pthm/snapoff/lib/script"
)

// Well-known file names inside a component directory.
const (
	MetaFile  = "component.json"
	ViewFile  = "view.html"
	StyleFile = "style.css"
)

var (
	// ErrInvalidName is wrapped for names that are not a single path segment.
	ErrInvalidName = errors.New("invalid component name")
	// ErrNoHandler is wrapped when neither a Go handler nor a script exists.
	ErrNoHandler = errors.New("no registered handler and no " + script.Filename)
	// ErrNotListable is returned by List when the source cannot enumerate.
	ErrNotListable = errors.New("loader: source cannot list components")
)

// ComponentLoadError reports why a component could not be loaded.
type ComponentLoadError struct {
	Name string
	Err  error
}

func (e *ComponentLoadError) Error() string {
	return fmt.Sprintf("load component %q: %v", e.Name, e.Err)
}

func (e *ComponentLoadError) Unwrap() error { return e.Err }

// Options configures a Loader.
type Options struct {
	// Source provides component files.
	Source Source
	// Handlers maps component names to Go handlers. A registered handler
	// takes precedence over a handler.star file.
	Handlers map[string]component.Handler
	// Script configures handler.star execution.
	Script script.Options
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Metrics is optional.
	Metrics *metrics.Recorder
}

// Loader is a get-or-load registry of component definitions.
type Loader struct {
	source   Source
	handlers map[string]component.Handler
	script   script.Options
	logger   *slog.Logger
	metrics  *metrics.Recorder

	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]*component.Definition
	epoch uint64

	subsMu sync.Mutex
	subs   []func(name string)
}

// New returns a Loader reading from opts.Source.
func New(opts Options) *Loader {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Script.Logger == nil {
		opts.Script.Logger = logger
	}
	handlers := make(map[string]component.Handler, len(opts.Handlers))
	for name, h := range opts.Handlers {
		handlers[name] = h
	}
	return &Loader{
		source:   opts.Source,
		handlers: handlers,
		script:   opts.Script,
		logger:   logger,
		metrics:  opts.Metrics,
		cache:    make(map[string]*component.Definition),
	}
}

// Get returns the definition for name, loading it on first use. Repeated
// calls return the same *Definition. Failures are *ComponentLoadError.
func (l *Loader) Get(ctx context.Context, name string) (*component.Definition, error) {
	if err := ValidateName(name); err != nil {
		l.metrics.ComponentLoad("error")
		return nil, &ComponentLoadError{Name: name, Err: err}
	}

	if def, ok := l.cached(name); ok {
		l.metrics.ComponentLoad("hit")
		l.logger.Debug("component cache hit", "component", name)
		return def, nil
	}

	v, err, _ := l.group.Do(name, func() (any, error) {
		l.mu.RLock()
		def, ok := l.cache[name]
		epoch := l.epoch
		l.mu.RUnlock()
		if ok {
			return def, nil
		}

		l.logger.Info("loading component", "component", name)
		// The load is shared by every waiter and outlives the leader's cancellation.
		def, err := l.load(context.WithoutCancel(ctx), name)
		if err != nil {
			return nil, err
		}

		l.mu.Lock()
		if l.epoch == epoch {
			l.cache[name] = def
		}
		l.mu.Unlock()
		return def, nil
	})
	if err != nil {
		l.metrics.ComponentLoad("error")
		l.logger.Error("component load failed", "component", name, "error", err)
		return nil, err
	}
	l.metrics.ComponentLoad("miss")
	return v.(*component.Definition), nil
}

// Invalidate drops the cached definition for name and notifies subscribers.
// Loads that were in flight when Invalidate ran are not cached.
func (l *Loader) Invalidate(name string) {
	l.mu.Lock()
	delete(l.cache, name)
	l.epoch++
	l.mu.Unlock()
	l.group.Forget(name)

	l.logger.Info("component invalidated", "component", name)

	l.subsMu.Lock()
	subs := make([]func(string), len(l.subs))
	copy(subs, l.subs)
	l.subsMu.Unlock()
	for _, fn := range subs {
		fn(name)
	}
}

// OnInvalidate registers fn to be called after a name is invalidated.
func (l *Loader) OnInvalidate(fn func(name string)) {
	l.subsMu.Lock()
	defer l.subsMu.Unlock()
	l.subs = append(l.subs, fn)
}

// Cached returns the names currently held in the cache, sorted.
func (l *Loader) Cached() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.cache))
	for name := range l.cache {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List enumerates loadable component names when the source supports it.
func (l *Loader) List(ctx context.Context) ([]string, error) {
	lister, ok := l.source.(Lister)
	if !ok {
		return nil, ErrNotListable
	}
	all, err := lister.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loader: list: %w", err)
	}
	names := all[:0]
	for _, name := range all {
		if ValidateName(name) == nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// ValidateName checks that name is a single, non-hidden path segment.
func ValidateName(name string) error {
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) || !fs.ValidPath(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func (l *Loader) cached(name string) (*component.Definition, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	def, ok := l.cache[name]
	return def, ok
}

func (l *Loader) load(ctx context.Context, name string) (*component.Definition, error) {
	fail := func(err error) (*component.Definition, error) {
		return nil, &ComponentLoadError{Name: name, Err: err}
	}

	rawMeta, err := l.read(ctx, name, MetaFile)
	if err != nil {
		return fail(err)
	}
	var meta map[string]any
	if err := json.Unmarshal(rawMeta, &meta); err != nil {
		return fail(fmt.Errorf("parse %s: %w", MetaFile, err))
	}
	if meta == nil {
		meta = map[string]any{}
	}

	handler, err := l.handler(ctx, name)
	if err != nil {
		return fail(err)
	}

	view, err := l.read(ctx, name, ViewFile)
	if err != nil {
		return fail(err)
	}

	style, err := l.read(ctx, name, StyleFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fail(err)
	}

	return &component.Definition{
		Name:    name,
		Meta:    meta,
		View:    string(view),
		Style:   string(style),
		Handler: handler,
	}, nil
}

func (l *Loader) handler(ctx context.Context, name string) (component.Handler, error) {
	if h, ok := l.handlers[name]; ok {
		return h, nil
	}
	src, err := l.read(ctx, name, script.Filename)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoHandler
	}
	if err != nil {
		return nil, err
	}
	return script.Load(name, src, l.script)
}

func (l *Loader) read(ctx context.Context, name, file string) ([]byte, error) {
	if l.source == nil {
		return nil, fmt.Errorf("read %s: %w", file, fs.ErrNotExist)
	}
	b, err := l.source.ReadFile(ctx, name+"/"+file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	return b, nil
}
