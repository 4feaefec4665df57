package snapoff

import (
	"encoding/json"
	"net/http"

	"github.com/a-h/templ"
)

// EventTrigger is the HX-Trigger event fired after a successful dispatch.
// Its detail carries the component, instance and event names.
const EventTrigger = "snapoff:event"

// Render writes a templ component to the HTTP response.
//
// Sets Content-Type to text/html and renders using the request's context.
// Use this for page shells and diagnostics around rendered components:
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//	    snapoff.Render(w, r, page(counterHTML))
//	}
func Render(w http.ResponseWriter, r *http.Request, component templ.Component) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return component.Render(r.Context(), w)
}

// IsHTMX returns true if the request originated from HTMX.
//
// HTMX sends HX-Request: true on all requests. The dispatcher can be told to
// reject event posts without it (RequireHTMX), which blocks plain cross-site
// form posts without extra tokens.
func IsHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// IsBoosted returns true if the request is a boosted navigation (hx-boost).
func IsBoosted(r *http.Request) bool {
	return r.Header.Get("HX-Boosted") == "true"
}

// CurrentURL returns the URL the browser is on, from HX-Current-URL.
// Returns empty string for non-HTMX requests.
func CurrentURL(r *http.Request) string {
	return r.Header.Get("HX-Current-URL")
}

// TriggerName returns the name attribute of the element that triggered the request.
//
// Useful for event handlers fed by forms with several submit buttons.
func TriggerName(r *http.Request) string {
	return r.Header.Get("HX-Trigger-Name")
}

// TriggerID returns the id attribute of the element that triggered the request.
func TriggerID(r *http.Request) string {
	return r.Header.Get("HX-Trigger")
}

// TargetID returns the id attribute of the target element.
func TargetID(r *http.Request) string {
	return r.Header.Get("HX-Target")
}

// BuildTriggerHeader builds an HX-Trigger header value.
//
// A bare event name is returned as is. With data the header becomes a JSON
// object and HTMX fires the event with evt.detail set to data:
//
//	BuildTriggerHeader("item-updated", nil)            // item-updated
//	BuildTriggerHeader("item:saved", {"id": "1"})      // {"item:saved":{"id":"1"}}
func BuildTriggerHeader(trigger string, data map[string]any) string {
	if trigger == "" {
		return ""
	}
	if data == nil {
		return trigger
	}
	encoded, err := json.Marshal(map[string]any{trigger: data})
	if err != nil {
		return trigger
	}
	return string(encoded)
}
