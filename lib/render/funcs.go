package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"github.com/a-h/templ"

	"github.com/pthm/snapoff/lib/style"
)

// Target is the hx-target every event trigger swaps: the instance root.
const Target = "closest [" + style.Attr + "]"

func (r *Renderer) funcs() template.FuncMap {
	return template.FuncMap{
		"attrs": Attrs,
		"event": r.Event,
		"json":  toJSON,
	}
}

// Event builds the HTMX attributes that post a named event for the
// instance being rendered. Extra arguments are key/value pairs sent with
// the request:
//
//	<button {{event $ "increment"}}>+</button>
//	<button {{event $ "add" "by" 5}}>+5</button>
func (r *Renderer) Event(data map[string]any, name string, kv ...any) (template.HTMLAttr, error) {
	meta, _ := data["meta"].(map[string]any)
	id, _ := meta["id"].(string)
	if id == "" {
		return "", errors.New("event: render context has no instance id")
	}
	if name == "" {
		return "", errors.New("event: empty event name")
	}

	attrs := templ.Attributes{
		"hx-post":   r.eventPath + "/" + url.PathEscape(id) + "/" + url.PathEscape(name),
		"hx-target": Target,
		"hx-swap":   "outerHTML",
	}
	if len(kv) > 0 {
		if len(kv)%2 != 0 {
			return "", fmt.Errorf("event %q: odd number of payload arguments", name)
		}
		vals := make(map[string]any, len(kv)/2)
		for i := 0; i < len(kv); i += 2 {
			key, ok := kv[i].(string)
			if !ok {
				return "", fmt.Errorf("event %q: payload key %v is not a string", name, kv[i])
			}
			vals[key] = kv[i+1]
		}
		encoded, err := json.Marshal(vals)
		if err != nil {
			return "", fmt.Errorf("event %q: %w", name, err)
		}
		attrs["hx-vals"] = string(encoded)
	}
	return renderAttrs(attrs)
}

// Attrs serializes props as HTML attributes, sorted by name. Scalars are
// written as-is, true booleans as bare attributes, other values as JSON.
// Keys that are not valid attribute names are skipped.
func Attrs(props map[string]any) (template.HTMLAttr, error) {
	attrs := templ.Attributes{}
	for k, v := range props {
		if !validAttrName(k) {
			continue
		}
		switch v := v.(type) {
		case nil:
		case string, bool, int, int64, uint64, float64:
			attrs[k] = v
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return "", fmt.Errorf("attrs: %s: %w", k, err)
			}
			attrs[k] = string(b)
		}
	}
	return renderAttrs(attrs)
}

func renderAttrs(attrs templ.Attributes) (template.HTMLAttr, error) {
	var sb strings.Builder
	if err := templ.RenderAttributes(context.Background(), &sb, attrs); err != nil {
		return "", err
	}
	return template.HTMLAttr(strings.TrimPrefix(sb.String(), " ")), nil
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func validAttrName(name string) bool {
	if name == "" {
		return false
	}
	for _, c := range name {
		switch {
		case c <= ' ', c == '"', c == '\'', c == '<', c == '>', c == '/', c == '=', c == 0x7f:
			return false
		}
	}
	return true
}
