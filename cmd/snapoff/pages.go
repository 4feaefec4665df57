package main

import (
	"context"
	"html"
	"io"
	"net/url"
	"strings"

	"github.com/a-h/templ"

	snapoff "github.com/pthm/snapoff"
)

const (
	htmxScript   = `<script src="https://unpkg.com/htmx.org@1.9.12"></script>`
	htmxWSScript = `<script src="https://unpkg.com/htmx.org@1.9.12/dist/ext/ws.js"></script>`
	messagesID   = "server-messages"
)

const pageStyle = `<style>
body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; padding: 2em; }
button { font-size: 1rem; padding: 0.5em 1em; cursor: pointer; }
.notice { padding: 1rem; margin-top: 1rem; border-radius: 0.25rem; }
.notice-success { background: #2da44e; color: white; }
ul.components { list-style: none; padding: 0; }
ul.components a { display: block; padding: 0.5em; text-decoration: none; color: #0969da; }
ul.components a:hover { background: #f6f8fa; }
</style>`

// layout wraps body in a full HTML document.
func layout(title, bodyAttrs string, body ...templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var sb strings.Builder
		sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"UTF-8\">\n<title>")
		sb.WriteString(html.EscapeString(title))
		sb.WriteString("</title>\n")
		sb.WriteString(htmxScript)
		sb.WriteString(htmxWSScript)
		sb.WriteString(pageStyle)
		sb.WriteString("\n</head>\n<body")
		if bodyAttrs != "" {
			sb.WriteString(" ")
			sb.WriteString(bodyAttrs)
		}
		sb.WriteString(">\n")
		if _, err := io.WriteString(w, sb.String()); err != nil {
			return err
		}
		for _, c := range body {
			if err := c.Render(ctx, w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "\n</body>\n</html>\n")
		return err
	})
}

func raw(s string) templ.Component { return templ.Raw(s) }

// homePage is the demo page: server-rendered components plus a websocket
// region the broadcast button fills.
func homePage(wsPath string, components ...templ.Component) templ.Component {
	body := []templ.Component{raw("<h1>Snap-Off</h1>\n")}
	body = append(body, components...)
	body = append(body,
		raw("\n<hr style=\"margin: 2em 0;\">\n<h2>WebSocket</h2>\n"),
		snapoff.NoticeRegion(messagesID, "Waiting for a message from the server..."),
		raw(`<button hx-post="/broadcast-time" hx-swap="none" style="margin-top: 1rem;">Broadcast time</button>`),
	)
	attrs := `hx-ext="ws" ws-connect="` + html.EscapeString(wsPath) + `"`
	return layout("Snap-Off", attrs, body...)
}

// labIndex lists every component the source can enumerate.
func labIndex(names []string) templ.Component {
	var sb strings.Builder
	sb.WriteString("<h1>Snap-Off Dev Lab</h1>\n<h2>Available components</h2>\n<ul class=\"components\">\n")
	for _, name := range names {
		sb.WriteString(`<li><a href="/component/`)
		sb.WriteString(url.PathEscape(name))
		sb.WriteString(`">`)
		sb.WriteString(html.EscapeString(name))
		sb.WriteString("</a></li>\n")
	}
	sb.WriteString("</ul>")
	return layout("Snap-Off Dev Lab", "", raw(sb.String()))
}

// labComponent previews one component.
func labComponent(name string, rendered templ.Component) templ.Component {
	header := "<h1>Component: " + html.EscapeString(name) + "</h1>\n" +
		"<p>Query parameters are passed as props.</p>\n"
	return layout("Snap-Off Dev Lab: "+name, "",
		raw(header),
		rendered,
		raw("\n<p><a href=\"/\">Back to list</a></p>"),
	)
}
