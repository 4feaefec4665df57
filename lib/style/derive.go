package style

import (
	"fmt"
	"html"
	"sort"
	"strings"
)

// Delimiter separates a styling prefix from a property name in prop keys.
const Delimiter = ":"

// PseudoStates are the prefixes that become scoped conditional rules.
var PseudoStates = map[string]bool{
	"hover": true,
	"focus": true,
}

// Declaration is one CSS property/value pair.
type Declaration struct {
	Property string
	Value    string
}

func (d Declaration) String() string {
	return d.Property + ": " + d.Value
}

// Styles is everything the renderer needs to style one instance.
type Styles struct {
	// Attributes are the non-styling props, forwarded verbatim.
	Attributes map[string]any
	// Inline declarations go on the root element's style attribute.
	Inline []Declaration
	// Rules are scoped pseudo-state rules such as
	// [instance-scope="abc"]:hover { background-color: red; }.
	Rules []string
	// Sheet is the scoped base stylesheet followed by Rules.
	Sheet string
	id    string
}

// Partition splits props into styling directives (keys containing the
// delimiter) and plain attributes.
func Partition(props map[string]any) (styling, attrs map[string]any) {
	styling = map[string]any{}
	attrs = map[string]any{}
	for k, v := range props {
		if strings.Contains(k, Delimiter) {
			styling[k] = v
		} else {
			attrs[k] = v
		}
	}
	return styling, attrs
}

// Derive scopes base for id and folds styling props into inline declarations
// and pseudo-state rules.
//
// A key ":prop" is an inline style; "hover:prop" and "focus:prop" become
// scoped rules. Keys with any other prefix, and values that could escape a
// declaration, are ignored. Property names are converted from camelCase.
func Derive(props map[string]any, base, id string) Styles {
	styling, attrs := Partition(props)
	s := Styles{Attributes: attrs, id: id}

	keys := make([]string, 0, len(styling))
	for k := range styling {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		parts := strings.Split(key, Delimiter)
		prefix, prop := parts[0], Kebab(parts[len(parts)-1])
		value := strings.TrimSpace(fmt.Sprint(styling[key]))
		if prop == "" || !safeValue(value) {
			continue
		}
		decl := Declaration{Property: prop, Value: value}
		switch {
		case prefix == "":
			s.Inline = append(s.Inline, decl)
		case PseudoStates[prefix]:
			s.Rules = append(s.Rules, fmt.Sprintf("%s:%s { %s; }", Selector(id), prefix, decl))
		}
	}

	var sheet []string
	if scoped := Scope(base, id); scoped != "" {
		sheet = append(sheet, scoped)
	}
	sheet = append(sheet, s.Rules...)
	s.Sheet = strings.Join(sheet, "\n")
	return s
}

// InlineStyle joins the inline declarations, e.g. "color: red; padding: 1em".
func (s Styles) InlineStyle() string {
	parts := make([]string, len(s.Inline))
	for i, d := range s.Inline {
		parts[i] = d.String()
	}
	return strings.Join(parts, "; ")
}

// StyleAttr returns a ready-to-embed style="..." attribute, or "".
func (s Styles) StyleAttr() string {
	if len(s.Inline) == 0 {
		return ""
	}
	return `style="` + html.EscapeString(s.InlineStyle()) + `"`
}

// StyleTag returns the <style> element carrying Sheet, or "" without a sheet.
func (s Styles) StyleTag() string {
	if s.Sheet == "" {
		return ""
	}
	return `<style data-` + Attr + `="` + html.EscapeString(s.id) + `">` + "\n" + s.Sheet + "\n</style>"
}

// Kebab converts a camelCase property name to its CSS form. Every ASCII
// capital becomes a dash and its lower case, so a leading capital yields a
// vendor prefix: WebkitTransform is -webkit-transform.
func Kebab(name string) string {
	var b strings.Builder
	for _, r := range name {
		if 'A' <= r && r <= 'Z' {
			b.WriteByte('-')
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func safeValue(v string) bool {
	return v != "" && !strings.ContainsAny(v, "{};<>\n")
}
