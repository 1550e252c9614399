package exportgw

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newGateway(t *testing.T, endpoint string) *Gateway {
	t.Helper()
	g, err := New(Config{Endpoint: endpoint})
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestExportHTMLSuccess(t *testing.T) {
	pdf := []byte("%PDF-1.7 fake body")
	var gotBody htmlBody

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &gotBody); err != nil {
			t.Errorf("request body is not JSON: %v", err)
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="invoice.pdf"`)
		w.Write(pdf)
	}))
	defer srv.Close()

	g := newGateway(t, srv.URL)
	res, err := g.ExportHTML(context.Background(), ExportRequest{
		HTML:         "<html><body>x</body></html>",
		FilenameStem: "invoice",
		Download:     true,
		Options: PDFOptions{
			Format:          "A4",
			PrintBackground: true,
			Margin:          &PDFMargin{Top: "10mm", Bottom: "10mm"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(res.Data, pdf) {
		t.Error("payload not returned verbatim")
	}
	if res.ContentType != "application/pdf" {
		t.Errorf("content type = %q", res.ContentType)
	}
	if res.ContentDisposition == "" {
		t.Error("content disposition missing")
	}

	// Wire format assertions.
	if gotBody.HTML == "" || gotBody.FileName != "invoice" || !gotBody.Download {
		t.Errorf("unexpected wire body: %+v", gotBody)
	}
	if gotBody.PDFOptions == nil || gotBody.PDFOptions.Format != "A4" || !gotBody.PDFOptions.PrintBackground {
		t.Errorf("pdfOptions not forwarded: %+v", gotBody.PDFOptions)
	}
	if gotBody.PDFOptions.Margin == nil || gotBody.PDFOptions.Margin.Top != "10mm" {
		t.Errorf("margin not forwarded: %+v", gotBody.PDFOptions.Margin)
	}
}

func TestExportHTMLNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "conversion backend overloaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := newGateway(t, srv.URL)
	_, err := g.ExportHTML(context.Background(), ExportRequest{HTML: "<p>x</p>"})

	var remoteErr *RemoteExportError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected *RemoteExportError, got %T: %v", err, err)
	}
	if remoteErr.Status != http.StatusInternalServerError {
		t.Errorf("status = %d", remoteErr.Status)
	}
	if remoteErr.Body != "conversion backend overloaded" {
		t.Errorf("body = %q", remoteErr.Body)
	}
}

func TestExportHTMLEmptyErrorBodyFallsBackToStatusLine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := newGateway(t, srv.URL)
	_, err := g.ExportHTML(context.Background(), ExportRequest{HTML: "<p>x</p>"})

	var remoteErr *RemoteExportError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected *RemoteExportError, got %v", err)
	}
	if remoteErr.Body == "" {
		t.Error("expected status line fallback in error body")
	}
}

func TestExportHTMLSingleAttempt(t *testing.T) {
	// WHAT: a failing endpoint is called exactly once.
	// WHY: retry policy belongs to the caller's fallback logic, not the gateway.
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := newGateway(t, srv.URL)
	g.ExportHTML(context.Background(), ExportRequest{HTML: "<p>x</p>"})
	if calls != 1 {
		t.Errorf("endpoint called %d times, want 1", calls)
	}
}

func TestExportHTMLMissingHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("%PDF"))
	}))
	defer srv.Close()

	g := newGateway(t, srv.URL)
	res, err := g.ExportHTML(context.Background(), ExportRequest{HTML: "<p>x</p>"})
	if err != nil {
		t.Fatal(err)
	}
	if res.ContentDisposition != "" {
		t.Errorf("disposition = %q, want empty", res.ContentDisposition)
	}
}

func TestExportURLWireFormat(t *testing.T) {
	var got urlBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &got)
		w.Write([]byte("%PDF"))
	}))
	defer srv.Close()

	g := newGateway(t, srv.URL)
	_, err := g.ExportURL(context.Background(), URLExportRequest{
		URL:          "http://example.com/invoice",
		FilenameStem: "doc",
		Download:     true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.URL != "http://example.com/invoice" || got.FileName != "doc" || !got.Download {
		t.Errorf("wire body = %+v", got)
	}
}

func TestExportURLRejectsPrivateTargets(t *testing.T) {
	g := newGateway(t, "http://converter.example.com")
	_, err := g.ExportURL(context.Background(), URLExportRequest{URL: "http://127.0.0.1/admin"})
	if err == nil {
		t.Fatal("expected SSRF rejection")
	}
}

func TestNewRequiresEndpoint(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for missing endpoint")
	}
}
