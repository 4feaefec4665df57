// Package style rewrites component stylesheets so their rules only apply
// inside one rendered instance, and turns styling props into inline styles
// and pseudo-state rules.
//
// Scoping appends an attribute constraint to the first compound selector of
// every rule:
//
//	.root { color: red; }        -> .root[instance-scope="abc"] { color: red; }
//	.root:hover p { color: red } -> .root[instance-scope="abc"]:hover p { color: red }
//
// The rewrite is an explicit character scan rather than a regular expression
// so that quotes, brackets, parentheses and escapes are honoured.
package style

import (
	"strings"
)

// Attr is the attribute that carries an instance id on the rendered root.
const Attr = "instance-scope"

// Selector returns the attribute selector that matches one instance.
func Selector(id string) string {
	return "[" + Attr + `="` + id + `"]`
}

// Scope rewrites css so every rule is constrained to the instance id.
// Comments are removed. At-rule preludes and keyframe offsets pass through
// unchanged. Empty input (or input that is only comments) yields "".
func Scope(css, id string) string {
	if css == "" || id == "" {
		return ""
	}
	clean := strings.TrimSpace(StripComments(css))
	if clean == "" {
		return ""
	}
	attr := Selector(id)

	var out strings.Builder
	out.Grow(len(clean) + 64)

	start := 0
	depth := 0
	var quote byte
	for i := 0; i < len(clean); i++ {
		c := clean[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '\\':
			i++
		case c == '"' || c == '\'':
			quote = c
		case c == '(' || c == '[':
			depth++
		case c == ')' || c == ']':
			if depth > 0 {
				depth--
			}
		case depth > 0:
		case c == '{':
			out.WriteString(rewritePrelude(clean[start:i], attr))
			out.WriteByte('{')
			start = i + 1
		case c == '}' || c == ';':
			out.WriteString(clean[start : i+1])
			start = i + 1
		}
	}
	if start < len(clean) {
		out.WriteString(clean[start:])
	}
	return out.String()
}

// StripComments removes /* ... */ comments outside of string literals.
// An unterminated comment swallows the rest of the input.
func StripComments(css string) string {
	if !strings.Contains(css, "/*") {
		return css
	}
	var b strings.Builder
	b.Grow(len(css))
	var quote byte
	for i := 0; i < len(css); i++ {
		c := css[i]
		if quote != 0 {
			b.WriteByte(c)
			if c == '\\' && i+1 < len(css) {
				i++
				b.WriteByte(css[i])
			} else if c == quote {
				quote = 0
			}
			continue
		}
		if c == '"' || c == '\'' {
			quote = c
			b.WriteByte(c)
			continue
		}
		if c == '/' && i+1 < len(css) && css[i+1] == '*' {
			end := strings.Index(css[i+2:], "*/")
			if end < 0 {
				break
			}
			i += end + 3
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// rewritePrelude scopes the selector list in front of a '{', keeping the
// surrounding whitespace.
func rewritePrelude(prelude, attr string) string {
	trimmed := strings.TrimSpace(prelude)
	if trimmed == "" || trimmed[0] == '@' || isKeyframeSelector(trimmed) {
		return prelude
	}
	lead := prelude[:strings.Index(prelude, trimmed)]
	trail := prelude[len(lead)+len(trimmed):]

	members := SplitSelectors(trimmed)
	for i, m := range members {
		members[i] = scopeSelector(m, attr)
	}
	return lead + strings.Join(members, ", ") + trail
}

// SplitSelectors splits a selector list on top-level commas. Commas inside
// brackets, parentheses or quoted strings do not split. Members are trimmed.
func SplitSelectors(list string) []string {
	var parts []string
	start := 0
	walkTopLevel(list, func(i int, c byte) bool {
		if c == ',' {
			parts = append(parts, strings.TrimSpace(list[start:i]))
			start = i + 1
		}
		return true
	})
	return append(parts, strings.TrimSpace(list[start:]))
}

// scopeSelector constrains the first compound segment of one selector.
// Segments after the first whitespace are left untouched.
func scopeSelector(sel, attr string) string {
	if sel == "" {
		return sel
	}
	end := len(sel)
	walkTopLevel(sel, func(i int, c byte) bool {
		if isSpace(c) {
			end = i
			return false
		}
		return true
	})
	first, rest := sel[:end], sel[end:]

	marker := -1
	walkTopLevel(first, func(i int, c byte) bool {
		if c == ':' || c == '[' {
			marker = i
			return false
		}
		return true
	})
	if marker < 0 {
		return first + attr + rest
	}
	return first[:marker] + attr + first[marker:] + rest
}

// walkTopLevel calls fn for every byte that sits outside quotes and is not
// escaped. Bytes inside brackets or parentheses are skipped, but the opening
// bracket itself is reported. Returning false stops the walk.
func walkTopLevel(s string, fn func(i int, c byte) bool) {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '\\':
			i++
		case c == '"' || c == '\'':
			quote = c
		case c == '(' || c == '[':
			if depth == 0 && !fn(i, c) {
				return
			}
			depth++
		case c == ')' || c == ']':
			if depth > 0 {
				depth--
			}
		case depth > 0:
		default:
			if !fn(i, c) {
				return
			}
		}
	}
}

// isKeyframeSelector reports whether every member is from, to or a percentage.
func isKeyframeSelector(sel string) bool {
	for _, m := range strings.Split(sel, ",") {
		m = strings.ToLower(strings.TrimSpace(m))
		switch {
		case m == "from" || m == "to":
		case isPercentage(m):
		default:
			return false
		}
	}
	return true
}

func isPercentage(s string) bool {
	if len(s) < 2 || s[len(s)-1] != '%' {
		return false
	}
	for i := 0; i < len(s)-1; i++ {
		if (s[i] < '0' || s[i] > '9') && s[i] != '.' {
			return false
		}
	}
	return true
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}
