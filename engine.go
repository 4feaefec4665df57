package snapoff

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/a-h/templ"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/pthm/snapoff/lib/broadcast"
	"github.com/pthm/snapoff/lib/component"
	"github.com/pthm/snapoff/lib/loader"
	"github.com/pthm/snapoff/lib/metrics"
	"github.com/pthm/snapoff/lib/render"
	"github.com/pthm/snapoff/lib/script"
	"github.com/pthm/snapoff/lib/session"
	"github.com/pthm/snapoff/lib/state"
)

// Options configures an Engine.
type Options struct {
	// Source provides component directories. Required.
	Source loader.Source
	// Handlers registers Go handlers by component name. They take precedence
	// over handler.star files.
	Handlers map[string]component.Handler
	// Store holds instance state. Nil creates a new one.
	Store *state.Store
	// EventPath is where event triggers are posted. Defaults to /_snap/event.
	EventPath string
	// RequireHTMX rejects event posts that lack HX-Request: true.
	RequireHTMX bool
	// Session extracts the caller's session. Defaults to the session placed
	// in the request context by session.Manager's middleware.
	Session func(r *http.Request) state.Session
	// Script bounds handler.star execution.
	Script script.Options
	// Hub receives Broadcast calls. Optional.
	Hub *broadcast.Hub

	Logger  *slog.Logger
	Metrics *metrics.Recorder
	Tracer  trace.Tracer
}

// Engine ties the loader, renderer, state store and dispatcher together.
// One Engine is created per process and shared by all requests.
type Engine struct {
	loader      *loader.Loader
	renderer    *render.Renderer
	store       *state.Store
	hub         *broadcast.Hub
	eventPath   string
	requireHTMX bool
	session     func(r *http.Request) state.Session
	logger      *slog.Logger
	metrics     *metrics.Recorder
	tracer      trace.Tracer
}

// New creates an Engine.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/pthm/snapoff")
	}
	store := opts.Store
	if store == nil {
		store = state.NewStore()
	}
	eventPath := opts.EventPath
	if eventPath == "" {
		eventPath = render.DefaultEventPath
	}
	sess := opts.Session
	if sess == nil {
		sess = contextSession
	}

	l := loader.New(loader.Options{
		Source:   opts.Source,
		Handlers: opts.Handlers,
		Script:   opts.Script,
		Logger:   logger,
		Metrics:  opts.Metrics,
	})
	r := render.New(render.Options{
		Store:     store,
		EventPath: eventPath,
		Logger:    logger,
		Metrics:   opts.Metrics,
		Tracer:    tracer,
	})
	l.OnInvalidate(r.Forget)

	return &Engine{
		loader:      l,
		renderer:    r,
		store:       store,
		hub:         opts.Hub,
		eventPath:   eventPath,
		requireHTMX: opts.RequireHTMX,
		session:     sess,
		logger:      logger,
		metrics:     opts.Metrics,
		tracer:      tracer,
	}
}

func contextSession(r *http.Request) state.Session {
	if s := session.FromContext(r.Context()); s != nil {
		return s
	}
	return nil
}

// Loader returns the engine's component loader.
func (e *Engine) Loader() *loader.Loader { return e.loader }

// Renderer returns the engine's renderer.
func (e *Engine) Renderer() *render.Renderer { return e.renderer }

// Store returns the instance state store.
func (e *Engine) Store() *state.Store { return e.store }

// EventPath returns the URL prefix event triggers are posted to.
func (e *Engine) EventPath() string { return e.eventPath }

// RenderInstance loads name and renders a new instance of it from props.
func (e *Engine) RenderInstance(ctx context.Context, name string, props component.Props, sess state.Session) (res render.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("panic while rendering", "component", name, "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("snapoff: render %q: internal error", name)
		}
	}()

	def, err := e.loader.Get(ctx, name)
	if err != nil {
		return render.Result{}, err
	}
	return e.renderer.Render(ctx, def, props, sess)
}

// Render creates and renders a new instance of name. It never fails:
// errors are logged and replaced by an inline diagnostic naming the
// component and the failure.
func (e *Engine) Render(ctx context.Context, name string, props component.Props, sess state.Session) string {
	res, err := e.RenderInstance(ctx, name, props, sess)
	if err == nil {
		return res.HTML
	}

	e.logger.Error("render failed", "component", name, "error", err)
	html, ferr := render.Fragment(ctx, render.RenderError(name, err.Error()))
	if ferr != nil {
		e.logger.Error("render error fragment", "component", name, "error", ferr)
		return ""
	}
	return html
}

// Component is Render as a templ.Component, for use inside templ pages.
func (e *Engine) Component(name string, props component.Props, sess state.Session) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, e.Render(ctx, name, props, sess))
		return err
	})
}

// Broadcast sends a pre-rendered fragment to every realtime client.
func (e *Engine) Broadcast(ctx context.Context, html string) (int, error) {
	if e.hub == nil {
		return 0, broadcast.ErrClosed
	}
	return e.hub.Broadcast(ctx, broadcast.Message{HTML: html})
}

// BroadcastComponent renders c and broadcasts the result.
func (e *Engine) BroadcastComponent(ctx context.Context, c templ.Component) (int, error) {
	html, err := render.Fragment(ctx, c)
	if err != nil {
		return 0, err
	}
	return e.Broadcast(ctx, html)
}
