package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/docforge/dbopen"
	"github.com/hazyhaar/docforge/dochost"
	"github.com/hazyhaar/docforge/exportgw"
	"github.com/hazyhaar/docforge/journal"

	_ "modernc.org/sqlite"
)

// newTestApp wires an app against a fake remote converter.
func newTestApp(t *testing.T, converter http.HandlerFunc) (*app, *httptest.Server) {
	t.Helper()

	remote := httptest.NewServer(converter)
	t.Cleanup(remote.Close)

	gw, err := exportgw.New(exportgw.Config{Endpoint: remote.URL})
	if err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.ExportURL = remote.URL

	host, err := dochost.New(dochost.Config{
		Mode:    dochost.ModeServed,
		BaseURL: cfg.BaseURL,
		Gateway: gw,
	})
	if err != nil {
		t.Fatal(err)
	}

	jnl := journal.New(dbopen.OpenMemory(t))
	if err := jnl.Init(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { jnl.Close() })

	a := newApp(cfg, host, gw, nil, jnl, nil)
	srv := httptest.NewServer(a.routes())
	t.Cleanup(srv.Close)
	return a, srv
}

func pdfConverter(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="out.pdf"`)
	w.Write([]byte("%PDF-1.7 stub"))
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	res, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func TestHealthAndTemplates(t *testing.T) {
	_, srv := newTestApp(t, pdfConverter)

	res, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", res.StatusCode)
	}

	res, err = http.Get(srv.URL + "/api/templates")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	var list []map[string]any
	if err := json.NewDecoder(res.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list) == 0 {
		t.Error("expected bundled templates")
	}
}

func TestSessionLifecycle(t *testing.T) {
	_, srv := newTestApp(t, pdfConverter)

	res := postJSON(t, srv.URL+"/api/sessions", map[string]string{"template_id": "invoice-classic"})
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("open status = %d", res.StatusCode)
	}
	var info map[string]string
	if err := json.NewDecoder(res.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	id := info["id"]
	if id == "" || info["state"] != "ready" {
		t.Fatalf("session info = %v", info)
	}

	// Auto-capture push: the markup carries the stale template value, the
	// live value arrives in the form state.
	res = postJSON(t, srv.URL+"/api/sessions/"+id+"/content", map[string]any{
		"html":       `<html><body><input name="total" value="1"></body></html>`,
		"form_state": []map[string]any{{"name": "total", "value": "42"}},
	})
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("content push status = %d", res.StatusCode)
	}

	res, err := http.Get(srv.URL + "/api/sessions/" + id + "/html")
	if err != nil {
		t.Fatal(err)
	}
	snapshotHTML, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if !strings.Contains(string(snapshotHTML), `value="42"`) {
		t.Errorf("pushed form state should reach the snapshot:\n%s", snapshotHTML)
	}

	// Export returns the converted PDF with the remote filename.
	res = postJSON(t, srv.URL+"/api/sessions/"+id+"/export", map[string]bool{"download": true})
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("export status = %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %q", ct)
	}
	if cd := res.Header.Get("Content-Disposition"); !strings.Contains(cd, `filename="out.pdf"`) {
		t.Errorf("content disposition = %q", cd)
	}
}

func TestOpenUnknownTemplateIs404(t *testing.T) {
	_, srv := newTestApp(t, pdfConverter)
	res := postJSON(t, srv.URL+"/api/sessions", map[string]string{"template_id": "nope"})
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", res.StatusCode)
	}
}

func TestRawExportSanitizesScripts(t *testing.T) {
	var gotHTML string
	_, srv := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			HTML string `json:"html"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		gotHTML = body.HTML
		pdfConverter(w, r)
	})

	res := postJSON(t, srv.URL+"/api/export", map[string]any{
		"html":     `<div onclick="steal()">Total<script>alert(1)</script></div>`,
		"filename": "invoice",
	})
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	if strings.Contains(gotHTML, "<script>") || strings.Contains(gotHTML, "onclick") {
		t.Errorf("scripts should be stripped before conversion:\n%s", gotHTML)
	}
	if !strings.Contains(gotHTML, "Total") {
		t.Error("text content should survive sanitization")
	}
}

func TestRawExportRejectsBadFilename(t *testing.T) {
	_, srv := newTestApp(t, pdfConverter)
	res := postJSON(t, srv.URL+"/api/export", map[string]any{
		"html":     "<p>x</p>",
		"filename": "../../etc/passwd",
	})
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", res.StatusCode)
	}
}

func TestExportFailureIsGenericNotice(t *testing.T) {
	// Remote fails and no local printer is configured: the client gets a
	// generic export failure, not the upstream error text.
	_, srv := newTestApp(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "secret upstream detail", http.StatusInternalServerError)
	})

	res := postJSON(t, srv.URL+"/api/export", map[string]any{"html": "<p>x</p>"})
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", res.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(body["error"], "secret upstream detail") {
		t.Errorf("upstream error leaked: %q", body["error"])
	}
}

func TestURLExportRejectsPrivateTargets(t *testing.T) {
	_, srv := newTestApp(t, pdfConverter)
	res := postJSON(t, srv.URL+"/api/export/url", map[string]any{
		"url": "http://127.0.0.1:9/admin",
	})
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", res.StatusCode)
	}
}

func TestPDFInfoRejectsNonPDF(t *testing.T) {
	_, srv := newTestApp(t, pdfConverter)
	res, err := http.Post(srv.URL+"/api/pdf/info", "application/pdf",
		strings.NewReader("<html>not a pdf</html>"))
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", res.StatusCode)
	}
}

func TestOverlayGestureFlow(t *testing.T) {
	_, srv := newTestApp(t, pdfConverter)
	base := srv.URL + "/api/documents/doc-1"

	// Page 2 (1-based) → index 1.
	res := postJSON(t, base+"/overlay/page", map[string]any{"page_number": 2, "page_count": 5})
	res.Body.Close()

	res = postJSON(t, base+"/overlay/tap", map[string]float64{"x": 120, "y": 80})
	res.Body.Close()

	res = postJSON(t, base+"/overlay/text", nil)
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("begin text status = %d", res.StatusCode)
	}

	res = postJSON(t, base+"/overlay/commit", map[string]string{"text": "Invoice #123"})
	res.Body.Close()

	res, err := http.Get(base + "/annotations?page=1")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	var items []map[string]any
	if err := json.NewDecoder(res.Body).Decode(&items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 annotation on page index 1, got %d", len(items))
	}
	if items[0]["text"] != "Invoice #123" || items[0]["x"].(float64) != 120 {
		t.Errorf("annotation = %v", items[0])
	}

	// Other pages render nothing.
	res, err = http.Get(base + "/annotations?page=0")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	var empty []map[string]any
	json.NewDecoder(res.Body).Decode(&empty)
	if len(empty) != 0 {
		t.Errorf("page 0 should be empty, got %v", empty)
	}
}
