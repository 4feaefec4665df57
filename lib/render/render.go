// Package render turns component definitions and instance state into HTML.
//
// Every template executes against the same context shape:
//
//	.props      non-styling input props (empty on re-render)
//	.state      the instance's stored state
//	.meta       component.json merged with "id" and "name"
//	.styleAttr  style="..." built from ":prop" styling props, or empty
//	.styleTag   the scoped <style> block, or empty
//
// Views place .styleTag inside their root element. Events swap the root
// element's outerHTML, so a style block outside it would be left behind
// and duplicated on every event:
//
//	<div class="counter" {{.styleAttr}}>
//	  {{.styleTag}}
//	  ...
//	</div>
//
// Compiled templates are cached per component and reused until the
// definition changes or Forget is called.
package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pthm/snapoff/lib/component"
	"github.com/pthm/snapoff/lib/metrics"
	"github.com/pthm/snapoff/lib/state"
	"github.com/pthm/snapoff/lib/style"
)

// DefaultEventPath is the URL prefix event triggers post to.
const DefaultEventPath = "/_snap/event"

// Options configures a Renderer.
type Options struct {
	// Store holds instance state. Required.
	Store *state.Store
	// EventPath prefixes the URLs generated by the event template func.
	EventPath string
	Logger    *slog.Logger
	Metrics   *metrics.Recorder
	Tracer    trace.Tracer
}

// Result is the output of a first render.
type Result struct {
	HTML       string
	InstanceID string
}

type compiled struct {
	def  *component.Definition
	tmpl *template.Template
}

// Renderer executes component views.
type Renderer struct {
	store     *state.Store
	eventPath string
	logger    *slog.Logger
	metrics   *metrics.Recorder
	tracer    trace.Tracer

	mu        sync.RWMutex
	templates map[string]compiled
}

// New returns a Renderer.
func New(opts Options) *Renderer {
	r := &Renderer{
		store:     opts.Store,
		eventPath: opts.EventPath,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		tracer:    opts.Tracer,
		templates: make(map[string]compiled),
	}
	if r.store == nil {
		r.store = state.NewStore()
	}
	if r.eventPath == "" {
		r.eventPath = DefaultEventPath
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer("github.com/pthm/snapoff/lib/render")
	}
	return r
}

// Store returns the state store the renderer creates instances in.
func (r *Renderer) Store() *state.Store { return r.store }

// Render creates a new instance of def from props and renders it.
func (r *Renderer) Render(ctx context.Context, def *component.Definition, props component.Props, sess state.Session) (res Result, err error) {
	ctx, span := r.tracer.Start(ctx, "snapoff.render", trace.WithAttributes(
		attribute.String("snapoff.component", def.Name),
		attribute.String("snapoff.render.kind", "initial"),
	))
	defer func() { r.finish(span, def.Name, "initial", err) }()

	r.logger.Debug("render start", "component", def.Name)

	id, initial, err := r.store.Create(sess, def, props)
	if err != nil {
		return Result{}, err
	}
	r.metrics.InstanceCreated(def.Name)
	span.SetAttributes(attribute.String("snapoff.instance", id))

	styles := style.Derive(props, def.Style, id)
	html, err := r.execute(ctx, def, newContext(def, id, styles.Attributes, initial, styles))
	if err != nil {
		return Result{}, err
	}

	r.logger.Debug("render end", "component", def.Name, "instance", id)
	return Result{HTML: html, InstanceID: id}, nil
}

// Rerender renders an existing instance with its current state and no
// props. An unknown id yields the lost-instance fragment, not an error.
func (r *Renderer) Rerender(ctx context.Context, def *component.Definition, id string, sess state.Session) (html string, err error) {
	ctx, span := r.tracer.Start(ctx, "snapoff.rerender", trace.WithAttributes(
		attribute.String("snapoff.component", def.Name),
		attribute.String("snapoff.instance", id),
		attribute.String("snapoff.render.kind", "rerender"),
	))

	rec, ok := r.store.Read(sess, id)
	if !ok {
		span.End()
		r.metrics.Render(def.Name, "rerender", "lost")
		r.logger.Warn("rerender of unknown instance", "component", def.Name, "instance", id)
		return Fragment(ctx, LostInstance(id))
	}
	defer func() { r.finish(span, def.Name, "rerender", err) }()

	styles := style.Derive(nil, def.Style, id)
	return r.execute(ctx, def, newContext(def, id, styles.Attributes, rec.State, styles))
}

// Forget drops the compiled template for name.
func (r *Renderer) Forget(name string) {
	r.mu.Lock()
	delete(r.templates, name)
	r.mu.Unlock()
}

// Template returns the compiled view for def, compiling it on first use.
func (r *Renderer) Template(def *component.Definition) (*template.Template, error) {
	r.mu.RLock()
	c, ok := r.templates[def.Name]
	r.mu.RUnlock()
	if ok && c.def == def {
		return c.tmpl, nil
	}

	tmpl, err := template.New(def.Name).Funcs(r.funcs()).Parse(def.View)
	if err != nil {
		return nil, fmt.Errorf("render: compile %q: %w", def.Name, err)
	}

	r.mu.Lock()
	if c, ok := r.templates[def.Name]; ok && c.def == def {
		tmpl = c.tmpl
	} else {
		r.templates[def.Name] = compiled{def: def, tmpl: tmpl}
	}
	r.mu.Unlock()
	return tmpl, nil
}

func (r *Renderer) execute(ctx context.Context, def *component.Definition, data map[string]any) (string, error) {
	tmpl, err := r.Template(def)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render: execute %q: %w", def.Name, err)
	}
	id, _ := data["meta"].(map[string]any)["id"].(string)
	return TagRoot(buf.String(), id), nil
}

func (r *Renderer) finish(span trace.Span, name, kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	r.metrics.Render(name, kind, outcome)
}

func newContext(def *component.Definition, id string, props map[string]any, st any, styles style.Styles) map[string]any {
	meta := make(map[string]any, len(def.Meta)+2)
	for k, v := range def.Meta {
		meta[k] = v
	}
	meta["id"] = id
	meta["name"] = def.Name

	if props == nil {
		props = map[string]any{}
	}
	return map[string]any{
		"props":     props,
		"state":     st,
		"meta":      meta,
		"styleAttr": template.HTMLAttr(styles.StyleAttr()),
		"styleTag":  template.HTML(styles.StyleTag()),
	}
}
