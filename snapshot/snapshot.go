// Package snapshot turns a live, editable document tree into a stand-alone
// HTML string whose form-control state survives serialization and re-parsing.
//
// A live editing surface mutates control state as the user types: input and
// select values and checkbox state arrive as attribute updates, textarea
// content as a transient "value" attribute. Flatten rewrites that transient
// state into static markup — value attributes, checked/selected attribute
// presence, textarea text content — so parsing the captured string reproduces
// the same rendered state.
package snapshot

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ControlValue is one live form-control state entry pushed by an editing
// bridge: the control is addressed by id (preferred) or name.
type ControlValue struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Value   string `json:"value"`
	Checked bool   `json:"checked,omitempty"`
}

// FormState is the set of live control values captured from an editing surface.
type FormState []ControlValue

// Apply writes live control state into the tree's attributes. Controls not
// present in the state are left untouched. Unknown ids/names are ignored.
func Apply(doc *html.Node, state FormState) {
	if len(state) == 0 {
		return
	}
	byID := make(map[string]ControlValue, len(state))
	byName := make(map[string]ControlValue, len(state))
	for _, cv := range state {
		if cv.ID != "" {
			byID[cv.ID] = cv
		}
		if cv.Name != "" {
			byName[cv.Name] = cv
		}
	}

	walk(doc, func(n *html.Node) {
		switch n.DataAtom {
		case atom.Input, atom.Textarea, atom.Select:
		default:
			return
		}
		cv, ok := byID[attr(n, "id")]
		if !ok {
			cv, ok = byName[attr(n, "name")]
		}
		if !ok {
			return
		}
		if isCheckable(n) {
			setBoolAttr(n, "checked", cv.Checked)
			return
		}
		setAttr(n, "value", cv.Value)
	})
}

// Flatten rewrites transient control state into static markup, in place:
//
//   - input (non-checkbox/radio): current value stays in the value attribute
//   - checkbox/radio: checked state is attribute presence/absence
//   - textarea: a transient value attribute becomes the element's text content
//   - select: the option matching the select's current value gains a selected
//     attribute, all other options lose it
//
// Flatten mutates attributes only. It never removes or reorders elements and
// is a no-op on trees without form controls.
func Flatten(doc *html.Node) {
	walk(doc, func(n *html.Node) {
		switch n.DataAtom {
		case atom.Textarea:
			flattenTextarea(n)
		case atom.Select:
			flattenSelect(n)
		}
	})
}

// Capture flattens the tree and renders the outer HTML of its document
// element. The input tree's attributes are mutated as part of flattening;
// this keeps a live view visually consistent with what was captured.
func Capture(doc *html.Node) (string, error) {
	Flatten(doc)

	root := documentElement(doc)
	if root == nil {
		return "", fmt.Errorf("snapshot: no document element")
	}

	var sb strings.Builder
	if err := html.Render(&sb, root); err != nil {
		return "", fmt.Errorf("snapshot: render: %w", err)
	}
	return sb.String(), nil
}

// CaptureHTML parses src, optionally applies live form state, and captures
// the flattened result. The convenience entry point used by document hosts
// that hold their surface as a string.
func CaptureHTML(src string, state FormState) (string, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", fmt.Errorf("snapshot: parse: %w", err)
	}
	Apply(doc, state)
	return Capture(doc)
}

func flattenTextarea(n *html.Node) {
	val, ok := lookupAttr(n, "value")
	if !ok {
		return
	}
	removeAttr(n, "value")

	// Replace text children with the captured value. Element children (none
	// are legal inside textarea) are preserved.
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.TextNode {
			n.RemoveChild(c)
		}
		c = next
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: val})
}

func flattenSelect(n *html.Node) {
	current, explicit := lookupAttr(n, "value")
	if !explicit {
		// No transient value: canonicalise around the currently selected
		// option so exactly one option carries the attribute.
		current = selectedOptionValue(n)
	}
	removeAttr(n, "value")

	walk(n, func(opt *html.Node) {
		if opt.DataAtom != atom.Option {
			return
		}
		setBoolAttr(opt, "selected", optionValue(opt) == current && current != "")
	})
}

// selectedOptionValue returns the value of the first option carrying a
// selected attribute, or "" when none does.
func selectedOptionValue(sel *html.Node) string {
	var found string
	walk(sel, func(opt *html.Node) {
		if found != "" || opt.DataAtom != atom.Option {
			return
		}
		if _, ok := lookupAttr(opt, "selected"); ok {
			found = optionValue(opt)
		}
	})
	return found
}

// optionValue is the option's value attribute, falling back to its text.
func optionValue(opt *html.Node) string {
	if v, ok := lookupAttr(opt, "value"); ok {
		return v
	}
	var sb strings.Builder
	for c := opt.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return strings.TrimSpace(sb.String())
}

func isCheckable(n *html.Node) bool {
	if n.DataAtom != atom.Input {
		return false
	}
	switch strings.ToLower(attr(n, "type")) {
	case "checkbox", "radio":
		return true
	}
	return false
}

// documentElement finds the <html> element under a parsed document node.
// If doc is itself an element (a subtree capture), it is returned directly.
func documentElement(doc *html.Node) *html.Node {
	if doc.Type == html.ElementNode {
		return doc
	}
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Html {
			return c
		}
	}
	return nil
}

func walk(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.ElementNode {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func setBoolAttr(n *html.Node, key string, present bool) {
	if present {
		setAttr(n, key, "")
		return
	}
	removeAttr(n, key)
}

func removeAttr(n *html.Node, key string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}
