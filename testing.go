package snapoff

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"

	"github.com/pthm/snapoff/lib/component"
	"github.com/pthm/snapoff/lib/session"
	"github.com/pthm/snapoff/lib/state"
)

// TestResult holds the outcome of a test render or event.
//
// Provides convenience methods for asserting on HTML content, headers,
// status codes and triggered events.
type TestResult struct {
	HTML            string
	StatusCode      int
	Headers         http.Header
	TriggeredEvents []string
	// InstanceID is set by TestRender.
	InstanceID string
}

// NewTestSession returns an empty session for tests.
func NewTestSession() *session.Session {
	return session.New(state.NewID())
}

// TestRender renders a new instance of name into sess.
//
// Unlike Engine.Render, failures are returned rather than replaced by the
// inline diagnostic, so tests can assert on them:
//
//	sess := snapoff.NewTestSession()
//	result, err := snapoff.TestRender(engine, sess, "counter", component.Props{"initialValue": 10})
//	if !result.HTMLContains(">10<") {
//	    t.Fatal("missing initial count")
//	}
func TestRender(e *Engine, sess *session.Session, name string, props component.Props) (*TestResult, error) {
	res, err := e.RenderInstance(context.Background(), name, props, sess)
	if err != nil {
		return nil, err
	}
	return &TestResult{
		HTML:       res.HTML,
		StatusCode: http.StatusOK,
		Headers:    make(http.Header),
		InstanceID: res.InstanceID,
	}, nil
}

// TestEvent posts an event trigger with form data through the dispatcher.
//
// The request carries HX-Request: true and sess in its context, the way
// session.Manager's middleware provides it:
//
//	result, err := snapoff.TestEvent(engine, sess, id, "add", map[string]string{"by": "5"})
//	if !result.IsOK() {
//	    t.Fatal(result.HTML)
//	}
func TestEvent(e *Engine, sess *session.Session, instanceID, event string, formData map[string]string) (*TestResult, error) {
	form := url.Values{}
	for k, v := range formData {
		form.Set(k, v)
	}

	req := httptest.NewRequest(http.MethodPost, e.eventURL(instanceID, event), strings.NewReader(form.Encode()))
	if len(formData) > 0 {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return e.serveTest(req, sess), nil
}

// TestEventJSON posts an event trigger with a JSON payload.
func TestEventJSON(e *Engine, sess *session.Session, instanceID, event string, payload any) (*TestResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req := httptest.NewRequest(http.MethodPost, e.eventURL(instanceID, event), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return e.serveTest(req, sess), nil
}

func (e *Engine) eventURL(id, event string) string {
	return strings.TrimSuffix(e.eventPath, "/") + "/" + url.PathEscape(id) + "/" + url.PathEscape(event)
}

func (e *Engine) serveTest(req *http.Request, sess *session.Session) *TestResult {
	req.Header.Set("HX-Request", "true")
	if sess != nil {
		req = req.WithContext(session.NewContext(req.Context(), sess))
	}

	rec := httptest.NewRecorder()
	e.Handler().ServeHTTP(rec, req)

	result := &TestResult{
		HTML:       rec.Body.String(),
		StatusCode: rec.Code,
		Headers:    rec.Header(),
	}
	if trigger := rec.Header().Get("HX-Trigger"); trigger != "" {
		result.TriggeredEvents = parseTriggerHeader(trigger)
	}
	return result
}

// HTMLContains checks if the HTML contains a substring.
func (r *TestResult) HTMLContains(substr string) bool {
	return strings.Contains(r.HTML, substr)
}

// HTMLContainsAll checks if the HTML contains all the given substrings.
func (r *TestResult) HTMLContainsAll(substrs ...string) bool {
	for _, s := range substrs {
		if !strings.Contains(r.HTML, s) {
			return false
		}
	}
	return true
}

// HTMLContainsAny checks if the HTML contains any of the given substrings.
func (r *TestResult) HTMLContainsAny(substrs ...string) bool {
	for _, s := range substrs {
		if strings.Contains(r.HTML, s) {
			return true
		}
	}
	return false
}

// HasEvent checks if an event was triggered.
func (r *TestResult) HasEvent(event string) bool {
	for _, e := range r.TriggeredEvents {
		if e == event {
			return true
		}
	}
	return false
}

// IsOK checks if the status code is 200.
func (r *TestResult) IsOK() bool {
	return r.StatusCode == http.StatusOK
}

// HasStatus checks if the status code matches.
func (r *TestResult) HasStatus(code int) bool {
	return r.StatusCode == code
}

// HasHeader checks if a header is set with the given value.
func (r *TestResult) HasHeader(key, value string) bool {
	return r.Headers.Get(key) == value
}

// GetHeader returns the value of a header.
func (r *TestResult) GetHeader(key string) string {
	return r.Headers.Get(key)
}

// parseTriggerHeader parses the HX-Trigger header value into event names.
// The header can be a comma separated list or a JSON object.
func parseTriggerHeader(trigger string) []string {
	trigger = strings.TrimSpace(trigger)
	if trigger == "" {
		return nil
	}

	if strings.HasPrefix(trigger, "{") {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(trigger), &obj); err != nil {
			return nil
		}
		events := make([]string, 0, len(obj))
		for name := range obj {
			events = append(events, name)
		}
		return events
	}

	parts := strings.Split(trigger, ",")
	events := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			events = append(events, p)
		}
	}
	return events
}
