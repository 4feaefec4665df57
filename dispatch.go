package snapoff

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pthm/snapoff/lib/component"
	"github.com/pthm/snapoff/lib/state"
)

// Route parameter names read by the dispatcher when mounted on chi.
const (
	ParamInstance = "instanceID"
	ParamEvent    = "eventName"
)

// maxPayloadBytes caps the size of an event body.
const maxPayloadBytes = 1 << 20

// Pattern returns the chi route pattern for event triggers.
func (e *Engine) Pattern() string {
	return strings.TrimSuffix(e.eventPath, "/") + "/{" + ParamInstance + "}/{" + ParamEvent + "}"
}

// Handler serves event triggers. Requests without both identifiers get 404.
//
//	r.Post(engine.Pattern(), engine.Handler().ServeHTTP)
func (e *Engine) Handler() http.Handler {
	return e.Middleware(http.NotFoundHandler())
}

// Middleware dispatches event triggers and passes every request that does
// not carry an instance id and event name on to next.
func (e *Engine) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, event, ok := e.identifiers(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		e.dispatch(w, r, id, event)
	})
}

// identifiers reads the instance id and event name from chi route params,
// falling back to the path below EventPath.
func (e *Engine) identifiers(r *http.Request) (id, event string, ok bool) {
	id = unescape(chi.URLParam(r, ParamInstance))
	event = unescape(chi.URLParam(r, ParamEvent))
	if id == "" && event == "" {
		prefix := strings.TrimSuffix(e.eventPath, "/") + "/"
		rest, found := strings.CutPrefix(r.URL.Path, prefix)
		if !found {
			return "", "", false
		}
		id, event, _ = strings.Cut(rest, "/")
	}
	if id == "" || event == "" || strings.Contains(event, "/") {
		return "", "", false
	}
	return id, event, true
}

func unescape(s string) string {
	if u, err := url.PathUnescape(s); err == nil {
		return u
	}
	return s
}

type dispatchError struct {
	status int
	body   string
	err    error
}

func (d *dispatchError) Error() string { return d.err.Error() }
func (d *dispatchError) Unwrap() error { return d.err }

func fail(status int, err error, format string, args ...any) *dispatchError {
	return &dispatchError{status: status, body: fmt.Sprintf(format, args...), err: err}
}

func (e *Engine) dispatch(w http.ResponseWriter, r *http.Request, id, event string) {
	start := time.Now()
	ctx, span := e.tracer.Start(r.Context(), "snapoff.event", trace.WithAttributes(
		attribute.String("snapoff.instance", id),
		attribute.String("snapoff.event", event),
	))
	defer span.End()

	e.logger.Info("event received", "instance", id, "event", event)

	name, known, html, err := e.handle(ctx, r, id, event)
	status := http.StatusOK
	if err != nil {
		var de *dispatchError
		if !errors.As(err, &de) {
			de = fail(http.StatusInternalServerError, err, "Server error while processing event.")
		}
		status = de.status
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if status >= http.StatusInternalServerError {
			e.logger.Error("event failed", "instance", id, "event", event, "component", name, "error", err)
		} else {
			e.logger.Warn("event rejected", "instance", id, "event", event, "component", name, "status", status, "error", err)
		}
		http.Error(w, de.body, status)
	} else {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("HX-Trigger", BuildTriggerHeader(EventTrigger, map[string]any{
			"component": name,
			"instance":  id,
			"event":     event,
		}))
		w.WriteHeader(status)
		if _, err := io.WriteString(w, html); err != nil {
			e.logger.Warn("write event response", "instance", id, "error", err)
		}
		e.logger.Info("event processed", "instance", id, "event", event, "component", name)
	}

	if name == "" {
		name = "unknown"
	}
	// Only events the component defines become label values.
	label := "unknown"
	if known {
		label = event
	}
	span.SetAttributes(attribute.String("snapoff.component", name), attribute.Int("http.status_code", status))
	e.metrics.Event(name, label, strconv.Itoa(status), time.Since(start))
}

// handle runs one event against one instance. The instance stays locked
// from read to re-render, so concurrent events on it apply in order.
func (e *Engine) handle(ctx context.Context, r *http.Request, id, event string) (name string, known bool, html string, err error) {
	if e.requireHTMX && !IsHTMX(r) {
		return "", false, "", fail(http.StatusForbidden, ErrHTMXRequired, "Forbidden: HTMX request required")
	}

	payload, err := parsePayload(r)
	if err != nil {
		return "", false, "", fail(http.StatusBadRequest, err, "Error: Malformed event payload.")
	}

	sess := e.session(r)
	unlock, ok := e.store.Lock(sess, id)
	if !ok {
		return "", false, "", fail(http.StatusNotFound, ErrInstanceNotFound, "Error: Component instance '%s' not found.", id)
	}
	defer unlock()

	rec, ok := e.store.Read(sess, id)
	if !ok {
		return "", false, "", fail(http.StatusNotFound, ErrInstanceNotFound, "Error: Component instance '%s' not found.", id)
	}
	name = rec.ComponentName

	def, err := e.loader.Get(ctx, name)
	if err != nil {
		return name, false, "", fail(http.StatusNotFound, fmt.Errorf("%w: %w", ErrComponentNotFound, err),
			"Error: Component definition for '%s' not found.", name)
	}

	transition, ok := def.Handler.Event(event)
	if !ok {
		return name, false, "", fail(http.StatusBadRequest, ErrEventNotDefined,
			"Error: Event '%s' not defined for component '%s'.", event, name)
	}

	html, err = e.apply(ctx, sess, id, def, transition, rec.State, payload)
	return name, true, html, err
}

func (e *Engine) apply(ctx context.Context, sess state.Session, id string, def *component.Definition, t component.Transition, current any, payload component.Payload) (html string, err error) {
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("panic while processing event", "component", def.Name, "instance", id, "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("snapoff: panic in %q: %v", def.Name, p)
		}
	}()

	next, err := t(current, payload)
	if err != nil {
		return "", fmt.Errorf("snapoff: transition %q: %w", def.Name, err)
	}
	if err := e.store.Update(sess, id, next); err != nil {
		return "", err
	}
	return e.renderer.Rerender(ctx, def, id, sess)
}

// parsePayload decodes a JSON object body, or form values otherwise.
// Single form values become strings and repeated ones []string.
func parsePayload(r *http.Request) (component.Payload, error) {
	payload := component.Payload{}
	if r.Body == nil {
		return payload, nil
	}
	r.Body = http.MaxBytesReader(nil, r.Body, maxPayloadBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
		if len(bytes.TrimSpace(body)) == 0 {
			return payload, nil
		}
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		var raw map[string]any
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
		for k, v := range raw {
			payload[k] = normalizeJSON(v)
		}
		return payload, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	for k, vs := range r.PostForm {
		switch len(vs) {
		case 0:
		case 1:
			payload[k] = vs[0]
		default:
			payload[k] = append([]string(nil), vs...)
		}
	}
	return payload, nil
}

// normalizeJSON turns json.Number into int64 when integral, float64
// otherwise, so handlers see the same numeric types as stored state.
func normalizeJSON(v any) any {
	switch v := v.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		f, _ := v.Float64()
		return f
	case map[string]any:
		for k, e := range v {
			v[k] = normalizeJSON(e)
		}
		return v
	case []any:
		for i, e := range v {
			v[i] = normalizeJSON(e)
		}
		return v
	}
	return v
}
