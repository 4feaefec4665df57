package snapoff

import (
	"context"
	"html"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// Notice levels, used as a CSS modifier class.
const (
	NoticeSuccess = "success"
	NoticeError   = "error"
	NoticeWarning = "warning"
	NoticeInfo    = "info"
)

// Notice is a one-off message pushed to every realtime client.
//
// The fragment carries the id of the region it replaces and ws-swap="message",
// so the htmx websocket extension swaps it in place:
//
//	engine.BroadcastComponent(ctx, snapoff.NoticeFragment("server-messages",
//	    snapoff.Notice{Level: snapoff.NoticeSuccess, Message: "Deployed"}))
type Notice struct {
	Level   string
	Message string
	// Detail is appended in bold after Message.
	Detail string
}

// NoticeFragment renders n as a replacement for the element with id target.
func NoticeFragment(target string, n Notice) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, renderNotice(target, n))
		return err
	})
}

func renderNotice(target string, n Notice) string {
	level := n.Level
	if level == "" {
		level = NoticeInfo
	}

	var sb strings.Builder
	sb.WriteString(`<div id="`)
	sb.WriteString(html.EscapeString(target))
	sb.WriteString(`" ws-swap="message" class="notice notice-`)
	sb.WriteString(html.EscapeString(level))
	sb.WriteString(`">`)
	sb.WriteString(html.EscapeString(n.Message))
	if n.Detail != "" {
		sb.WriteString(` <strong>`)
		sb.WriteString(html.EscapeString(n.Detail))
		sb.WriteString(`</strong>`)
	}
	sb.WriteString(`</div>`)
	return sb.String()
}

// NoticeRegion returns the empty element a page places where notices land.
func NoticeRegion(target, placeholder string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<div id="`+html.EscapeString(target)+`" ws-swap="message">`+
			html.EscapeString(placeholder)+`</div>`)
		return err
	})
}
