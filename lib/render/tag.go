package render

import (
	"strings"

	"github.com/a-h/templ"
	"golang.org/x/net/html"

	"github.com/pthm/snapoff/lib/style"
)

// Elements that may precede the root without being the root.
var skipTags = map[string]bool{
	"style":  true,
	"script": true,
	"link":   true,
	"meta":   true,
}

// TagRoot adds instance-scope="id" to the first element of fragment, so
// scoped rules match even when the view does not set the attribute itself.
// Fragments whose root already carries it, or that have no element, are
// returned unchanged.
func TagRoot(fragment, id string) string {
	if id == "" {
		return fragment
	}
	z := html.NewTokenizer(strings.NewReader(fragment))
	offset := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return fragment
		}
		size := len(z.Raw())
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			offset += size
			continue
		}

		name, hasAttr := z.TagName()
		tag := string(name)
		if skipTags[tag] {
			offset += size
			continue
		}
		for hasAttr {
			var key []byte
			key, _, hasAttr = z.TagAttr()
			if string(key) == style.Attr {
				return fragment
			}
		}
		at := offset + 1 + len(tag)
		return fragment[:at] + " " + style.Attr + `="` + templ.EscapeString(id) + `"` + fragment[at:]
	}
}
