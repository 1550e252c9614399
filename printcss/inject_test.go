package printcss

import (
	"strings"
	"testing"
)

func TestInjectIdempotent(t *testing.T) {
	src := `<html><head><title>x</title></head><body><p>doc</p></body></html>`
	once := Inject(src, Options{})
	twice := Inject(once, Options{})
	if once != twice {
		t.Error("Inject(Inject(html)) != Inject(html)")
	}
	if strings.Count(twice, MarkerID) != 1 {
		t.Errorf("marker appears %d times, want 1", strings.Count(twice, MarkerID))
	}
}

func TestInjectAddsRules(t *testing.T) {
	out := Inject(`<html><head></head><body></body></html>`, Options{})
	for _, rule := range []string{
		"-webkit-print-color-adjust: exact",
		"print-color-adjust: exact",
		"@page { size: A4; margin: 0; }",
		"width: 794px",
		"margin: 0 auto",
		".docforge-edit-hint { display: none",
		"[contenteditable]:focus { outline: none",
	} {
		if !strings.Contains(out, rule) {
			t.Errorf("missing rule %q", rule)
		}
	}
	if strings.Contains(out, "zoom: 0.75") {
		t.Error("compact rule present without Compact option")
	}
}

func TestInjectCompact(t *testing.T) {
	out := Inject(`<html><head></head><body></body></html>`, Options{Compact: true})
	if !strings.Contains(out, "@media print") || !strings.Contains(out, "zoom: 0.75") {
		t.Error("compact print rule missing")
	}
}

func TestInjectSynthesizesHead(t *testing.T) {
	out := Inject(`<p>fragment without head</p>`, Options{})
	if !strings.Contains(out, "<head>") {
		t.Error("head not synthesized")
	}
	if !strings.Contains(out, MarkerID) {
		t.Error("style block missing")
	}
	if !strings.Contains(out, "fragment without head") {
		t.Error("content lost")
	}
	// Still idempotent through the synthesis path.
	if again := Inject(out, Options{}); again != out {
		t.Error("synthesis path broke idempotency")
	}
}

func TestInjectPreservesBody(t *testing.T) {
	src := `<html><head></head><body><table><tr><td>line item</td></tr></table></body></html>`
	out := Inject(src, Options{})
	if !strings.Contains(out, "line item") {
		t.Error("body content lost")
	}
}
