// Package printcss prepares captured HTML for PDF conversion by injecting a
// print-safe style block: exact color reproduction, a fixed page box, and
// removal of on-screen editing affordances.
package printcss

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// MarkerID identifies the injected style block. Its presence makes Inject a
// no-op, which keeps repeated export attempts from stacking style blocks.
const MarkerID = "docforge-print-style"

// BodyWidthPx is the fixed body width used for export: A4 at 96 DPI.
const BodyWidthPx = 794

// Options controls the injected rules.
type Options struct {
	// Compact adds a print-media zoom-down rule so long documents fit a
	// single page on constrained renderers.
	Compact bool
}

// Inject returns html with the print style block embedded in <head>.
// Idempotent: input already carrying the marker is returned unchanged. Input
// without a head element gets a synthesized html/head/body wrapper.
func Inject(src string, opts Options) string {
	if strings.Contains(src, MarkerID) {
		return src
	}

	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		// Unparseable input: fall back to prepending a full wrapper.
		return "<html><head>" + styleBlock(opts) + "</head><body>" + src + "</body></html>"
	}

	head := findElement(doc, atom.Head)
	if head == nil {
		// html.Parse synthesizes head for any input, so this is unreachable
		// for well-formed trees. Keep the string fallback for safety.
		return "<html><head>" + styleBlock(opts) + "</head><body>" + src + "</body></html>"
	}

	style := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Style,
		Data:     "style",
		Attr:     []html.Attribute{{Key: "id", Val: MarkerID}},
	}
	style.AppendChild(&html.Node{Type: html.TextNode, Data: styleRules(opts)})
	head.AppendChild(style)

	var sb strings.Builder
	if err := html.Render(&sb, doc); err != nil {
		return src
	}
	return sb.String()
}

func styleBlock(opts Options) string {
	return `<style id="` + MarkerID + `">` + styleRules(opts) + `</style>`
}

func styleRules(opts Options) string {
	var sb strings.Builder
	sb.WriteString(`
* {
  -webkit-print-color-adjust: exact !important;
  -moz-print-color-adjust: exact !important;
  color-adjust: exact !important;
  print-color-adjust: exact !important;
}
@page { size: A4; margin: 0; }
body {
  width: ` + strconv.Itoa(BodyWidthPx) + `px;
  margin: 0 auto;
}
.docforge-edit-hint { display: none !important; }
[contenteditable]:focus { outline: none !important; }
[contenteditable] { outline: none !important; }
`)
	if opts.Compact {
		sb.WriteString(`
@media print {
  body { zoom: 0.75; }
}
`)
	}
	return sb.String()
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}
