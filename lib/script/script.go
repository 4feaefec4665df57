// Package script runs component handlers written in Starlark.
//
// A handler.star file defines an optional create_state function and an
// optional events dict mapping event names to transition functions:
//
//	def create_state(props):
//	    return {"on": props.get("initial", False)}
//
//	def toggle(state, payload):
//	    return {"on": not state["on"]}
//
//	events = {"toggle": toggle}
//
// Globals are frozen once the file has run, and every call gets its own
// thread with an optional step budget. Values cross the boundary as plain
// data: dicts, lists, strings, numbers, booleans and None.
package script

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/pthm/snapoff/lib/component"
)

// Filename is the conventional script name inside a component directory.
const Filename = "handler.star"

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
}

// Options configures script execution.
type Options struct {
	// Logger receives print() output and evaluation backtraces.
	Logger *slog.Logger
	// MaxSteps bounds the work of a single call. Zero means unlimited.
	MaxSteps uint64
}

// Handler is a component.Handler backed by a Starlark module.
type Handler struct {
	name   string
	create starlark.Callable
	events map[string]starlark.Callable
	opts   Options
}

var _ component.Handler = (*Handler)(nil)

// Load executes src once and binds create_state and events from its globals.
func Load(name string, src []byte, opts Options) (*Handler, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	h := &Handler{name: name, events: map[string]starlark.Callable{}, opts: opts}

	thread := h.thread("load")
	globals, err := starlark.ExecFileOptions(fileOptions, thread, name+"/"+Filename, src, nil)
	if err != nil {
		h.logEvalError("load", err)
		return nil, fmt.Errorf("script: load %s: %w", name, err)
	}
	globals.Freeze()

	if v, ok := lookupGlobal(globals, "create_state", "createState"); ok {
		fn, ok := v.(starlark.Callable)
		if !ok {
			return nil, fmt.Errorf("script: %s: create_state is %s, not a function", name, v.Type())
		}
		h.create = fn
	}

	if v, ok := globals["events"]; ok {
		dict, ok := v.(*starlark.Dict)
		if !ok {
			return nil, fmt.Errorf("script: %s: events is %s, not a dict", name, v.Type())
		}
		for _, item := range dict.Items() {
			key, ok := starlark.AsString(item[0])
			if !ok {
				return nil, fmt.Errorf("script: %s: event name %s is not a string", name, item[0])
			}
			fn, ok := item[1].(starlark.Callable)
			if !ok {
				return nil, fmt.Errorf("script: %s: event %q is %s, not a function", name, key, item[1].Type())
			}
			h.events[key] = fn
		}
	}
	return h, nil
}

// CreateState calls create_state(props). Without one, state starts empty.
func (h *Handler) CreateState(props component.Props) (component.State, error) {
	if h.create == nil {
		return map[string]any{}, nil
	}
	arg, err := ToValue(map[string]any(props))
	if err != nil {
		return nil, fmt.Errorf("script: %s: props: %w", h.name, err)
	}
	return h.call("create_state", h.create, arg)
}

// Event resolves a transition from the events dict.
func (h *Handler) Event(name string) (component.Transition, bool) {
	fn, ok := h.events[name]
	if !ok {
		return nil, false
	}
	return func(state component.State, payload component.Payload) (component.State, error) {
		s, err := ToValue(state)
		if err != nil {
			return nil, fmt.Errorf("script: %s: state: %w", h.name, err)
		}
		p, err := ToValue(map[string]any(payload))
		if err != nil {
			return nil, fmt.Errorf("script: %s: payload: %w", h.name, err)
		}
		return h.call(name, fn, s, p)
	}, true
}

// EventNames lists the events the script defines.
func (h *Handler) EventNames() []string {
	names := make([]string, 0, len(h.events))
	for name := range h.events {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (h *Handler) call(label string, fn starlark.Callable, args ...starlark.Value) (any, error) {
	v, err := starlark.Call(h.thread(label), fn, starlark.Tuple(args), nil)
	if err != nil {
		h.logEvalError(label, err)
		return nil, fmt.Errorf("script: %s.%s: %w", h.name, label, err)
	}
	out, err := FromValue(v)
	if err != nil {
		return nil, fmt.Errorf("script: %s.%s returned %w", h.name, label, err)
	}
	return out, nil
}

func (h *Handler) thread(label string) *starlark.Thread {
	t := &starlark.Thread{
		Name: h.name + "." + label,
		Print: func(_ *starlark.Thread, msg string) {
			h.opts.Logger.Info("script print", "component", h.name, "call", label, "output", msg)
		},
	}
	if h.opts.MaxSteps > 0 {
		t.SetMaxExecutionSteps(h.opts.MaxSteps)
	}
	return t
}

func (h *Handler) logEvalError(label string, err error) {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		h.opts.Logger.Debug("script failed", "component", h.name, "call", label, "backtrace", evalErr.Backtrace())
	}
}

func lookupGlobal(globals starlark.StringDict, names ...string) (starlark.Value, bool) {
	for _, n := range names {
		if v, ok := globals[n]; ok {
			return v, true
		}
	}
	return nil, false
}
