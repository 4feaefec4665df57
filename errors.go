package snapoff

import (
	"errors"

	"github.com/pthm/snapoff/lib/loader"
	"github.com/pthm/snapoff/lib/state"
)

// Sentinel errors for engine operations.
var (
	ErrInstanceNotFound   = errors.New("snapoff: component instance not found")
	ErrComponentNotFound  = errors.New("snapoff: component definition not found")
	ErrEventNotDefined    = errors.New("snapoff: event not defined for component")
	ErrMalformedPayload   = errors.New("snapoff: malformed event payload")
	ErrMissingIdentifiers = errors.New("snapoff: missing instance id or event name")
	ErrHTMXRequired       = errors.New("snapoff: htmx request required")
	ErrNoSession          = state.ErrNoSession
)

// ComponentLoadError reports why a component could not be loaded.
type ComponentLoadError = loader.ComponentLoadError

// IsNotFound checks if err means an instance or definition is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound) || errors.Is(err, ErrComponentNotFound)
}

// IsLoadError checks if err came from loading a component.
func IsLoadError(err error) bool {
	var le *ComponentLoadError
	return errors.As(err, &le)
}

// IsClientError checks if err is something the caller can correct.
func IsClientError(err error) bool {
	return errors.Is(err, ErrEventNotDefined) ||
		errors.Is(err, ErrMalformedPayload) ||
		errors.Is(err, ErrMissingIdentifiers)
}
