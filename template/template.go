// Package template is the registry of bundled invoice templates. Templates
// are compiled into the binary; the registry is read-only.
package template

import (
	"embed"
	"fmt"
	"sort"
)

//go:embed assets/*.html assets/logo.png
var assets embed.FS

// Logo returns the bundled placeholder logo referenced by the templates as
// a relative "logo.png".
func Logo() ([]byte, error) {
	return assets.ReadFile("assets/logo.png")
}

// Template describes one bundled document template.
type Template struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Asset    string `json:"-"`        // path inside the embedded FS
	Filename string `json:"filename"` // suggested export filename stem
}

var registry = map[string]Template{
	"invoice-classic": {
		ID:       "invoice-classic",
		Title:    "Classic Invoice",
		Asset:    "assets/invoice_classic.html",
		Filename: "invoice",
	},
	"invoice-compact": {
		ID:       "invoice-compact",
		Title:    "Compact Invoice",
		Asset:    "assets/invoice_compact.html",
		Filename: "invoice",
	},
	"delivery-note": {
		ID:       "delivery-note",
		Title:    "Delivery Note",
		Asset:    "assets/delivery_note.html",
		Filename: "delivery-note",
	},
}

// List returns all templates sorted by ID.
func List() []Template {
	out := make([]Template, 0, len(registry))
	for _, t := range registry {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns the template with the given ID.
func Get(id string) (Template, error) {
	t, ok := registry[id]
	if !ok {
		return Template{}, fmt.Errorf("template: unknown template %q", id)
	}
	return t, nil
}

// Content returns the raw HTML of the template with the given ID.
func Content(id string) (string, error) {
	t, err := Get(id)
	if err != nil {
		return "", err
	}
	data, err := assets.ReadFile(t.Asset)
	if err != nil {
		return "", fmt.Errorf("template: read %s: %w", t.Asset, err)
	}
	return string(data), nil
}
