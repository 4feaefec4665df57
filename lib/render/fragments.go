package render

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

const errorBoxStyle = "border: 2px solid red; padding: 10px;"

// LostInstance is shown in place of an instance whose state is gone,
// typically because the session expired.
func LostInstance(id string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<div class="snap-error" style="`+errorBoxStyle+`">Error: Component state for ID `+
			templ.EscapeString(id)+` lost.</div>`)
		return err
	})
}

// RenderError is shown in place of a component that failed to load or render.
func RenderError(name, message string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<div class="snap-error" style="`+errorBoxStyle+`">Error rendering component '`+
			templ.EscapeString(name)+`': `+templ.EscapeString(message)+`</div>`)
		return err
	})
}

// Fragment renders c to a string.
func Fragment(ctx context.Context, c templ.Component) (string, error) {
	html, err := templ.ToGoHTML(ctx, c)
	return string(html), err
}
