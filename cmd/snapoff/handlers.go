package main

import (
	"github.com/pthm/snapoff/lib/component"
)

// ToggleState is the state of the Go-implemented toggle demo.
type ToggleState struct {
	On    bool   `msgpack:"on"`
	Label string `msgpack:"label"`
	Flips int    `msgpack:"flips"`
}

// handlers are the components implemented in Go rather than handler.star.
func handlers() map[string]component.Handler {
	return map[string]component.Handler{
		"toggle": component.Typed(
			func(p component.Props) ToggleState {
				return ToggleState{On: p.Bool("on", false), Label: p.String("label", "Power")}
			},
			map[string]func(ToggleState, component.Payload) ToggleState{
				"flip": func(s ToggleState, _ component.Payload) ToggleState {
					s.On = !s.On
					s.Flips++
					return s
				},
				"reset": func(s ToggleState, _ component.Payload) ToggleState {
					return ToggleState{Label: s.Label}
				},
			},
		),
	}
}
