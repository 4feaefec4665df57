// Package component defines what a snapoff component is once it has been
// loaded: metadata, a view template, an optional stylesheet and a Handler
// that owns the state machine.
package component

import (
	"fmt"
	"sort"

	"github.com/pthm/snapoff/lib/encoding"
)

// State is a component-defined, msgpack-serializable value.
type State = any

// Transition maps the current state and an event payload to the complete
// next state. Transitions must not mutate their input.
type Transition func(state State, payload Payload) (State, error)

// Handler is the capability a component exposes to the engine.
//
// CreateState builds the initial state of a new instance from the props it
// was rendered with. Event resolves a named transition; ok is false when the
// component does not define the event.
type Handler interface {
	CreateState(props Props) (State, error)
	Event(name string) (t Transition, ok bool)
}

// Definition is an immutable, fully loaded component.
type Definition struct {
	// Name matches the component's source directory.
	Name string
	// Meta is merged into the render context under "meta".
	Meta map[string]any
	// View is the template source.
	View string
	// Style is the raw stylesheet; empty means the component has no style.
	Style string
	// Handler owns state creation and transitions.
	Handler Handler
}

// HasStyle reports whether the component ships a stylesheet.
func (d *Definition) HasStyle() bool {
	return d.Style != ""
}

// EventNames lists the events the handler advertises, sorted.
// Handlers that cannot enumerate their events return nil.
func (d *Definition) EventNames() []string {
	lister, ok := d.Handler.(interface{ EventNames() []string })
	if !ok {
		return nil
	}
	names := lister.EventNames()
	sort.Strings(names)
	return names
}

// Funcs is an untyped Handler assembled from plain functions.
// A nil Events map means the component defines no events.
type Funcs struct {
	Create func(props Props) (State, error)
	Events map[string]Transition
}

// CreateState calls f.Create. A nil Create yields an empty state.
func (f Funcs) CreateState(props Props) (State, error) {
	if f.Create == nil {
		return map[string]any{}, nil
	}
	return f.Create(props)
}

// Event looks up a named transition.
func (f Funcs) Event(name string) (Transition, bool) {
	t, ok := f.Events[name]
	if !ok || t == nil {
		return nil, false
	}
	return t, true
}

// EventNames returns the registered event names.
func (f Funcs) EventNames() []string {
	names := make([]string, 0, len(f.Events))
	for name := range f.Events {
		names = append(names, name)
	}
	return names
}

type typed[S any] struct {
	create func(Props) S
	events map[string]func(S, Payload) S
}

// Typed adapts strongly typed functions into a Handler.
//
// State reaches transitions as a decoded snapshot; Typed converts it back
// into S before calling the function, so handlers never see the generic form:
//
//	type CounterState struct {
//	    Count int `msgpack:"count"`
//	}
//
//	h := component.Typed(
//	    func(p component.Props) CounterState { return CounterState{Count: p.Int("initialValue", 0)} },
//	    map[string]func(CounterState, component.Payload) CounterState{
//	        "increment": func(s CounterState, _ component.Payload) CounterState { s.Count++; return s },
//	    },
//	)
func Typed[S any](create func(Props) S, events map[string]func(S, Payload) S) Handler {
	return typed[S]{create: create, events: events}
}

func (h typed[S]) CreateState(props Props) (State, error) {
	if h.create == nil {
		var zero S
		return zero, nil
	}
	return h.create(props), nil
}

func (h typed[S]) Event(name string) (Transition, bool) {
	fn, ok := h.events[name]
	if !ok || fn == nil {
		return nil, false
	}
	return func(state State, payload Payload) (State, error) {
		s, err := encoding.Convert[S](state)
		if err != nil {
			return nil, fmt.Errorf("component: decode state for %q: %w", name, err)
		}
		return fn(s, payload), nil
	}, true
}

func (h typed[S]) EventNames() []string {
	names := make([]string, 0, len(h.events))
	for name := range h.events {
		names = append(names, name)
	}
	return names
}
