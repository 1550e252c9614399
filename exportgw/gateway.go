// Package exportgw issues HTML→PDF and URL→PDF conversion requests against a
// remote endpoint and hands back the binary result with its declared headers.
//
// The gateway makes exactly one network attempt per call: no retries, no
// caching. Fallback policy lives with the caller — a document host falls back
// to a local print path when the gateway fails, never the gateway itself.
package exportgw

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/docforge/safeurl"
)

// PDFMargin is the per-edge page margin as CSS length strings.
type PDFMargin struct {
	Top    string `json:"top,omitempty"`
	Right  string `json:"right,omitempty"`
	Bottom string `json:"bottom,omitempty"`
	Left   string `json:"left,omitempty"`
}

// PDFOptions is the layout section of a conversion request.
type PDFOptions struct {
	Margin          *PDFMargin `json:"margin,omitempty"`
	Format          string     `json:"format,omitempty"` // "A4", "Letter", ...
	PrintBackground bool       `json:"printBackground,omitempty"`
}

// ExportRequest is one HTML conversion attempt. Constructed fresh per attempt
// and immutable once sent.
type ExportRequest struct {
	HTML         string
	FilenameStem string
	Download     bool
	Options      PDFOptions
}

// URLExportRequest is one URL-sourced conversion attempt.
type URLExportRequest struct {
	URL          string
	FilenameStem string
	Download     bool
}

// ExportResult carries the binary payload and the response headers verbatim.
// Header fields are empty strings when the endpoint omitted them.
type ExportResult struct {
	Data               []byte
	ContentType        string
	ContentDisposition string
}

// Config configures a Gateway.
type Config struct {
	// Endpoint is the conversion service URL. Required.
	Endpoint string

	// Client is the HTTP client used for requests. Its timeout is the only
	// one applied. Default: 30s client.
	Client *http.Client

	// MaxResponseBytes caps response reads. Default: safeurl.MaxResponseBody.
	MaxResponseBytes int64

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = safeurl.MaxResponseBody
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Gateway converts documents through the remote endpoint.
type Gateway struct {
	cfg Config
}

// New creates a Gateway. Returns an error when the endpoint is missing.
func New(cfg Config) (*Gateway, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("exportgw: endpoint is required")
	}
	cfg.defaults()
	return &Gateway{cfg: cfg}, nil
}

// htmlBody is the JSON wire format of an HTML conversion request.
type htmlBody struct {
	HTML       string      `json:"html"`
	FileName   string      `json:"fileName,omitempty"`
	Download   bool        `json:"download,omitempty"`
	PDFOptions *PDFOptions `json:"pdfOptions,omitempty"`
}

// urlBody is the JSON wire format of a URL conversion request.
type urlBody struct {
	URL      string `json:"url"`
	FileName string `json:"fileName,omitempty"`
	Download bool   `json:"download,omitempty"`
}

// ExportHTML converts an HTML payload to PDF. One network attempt; non-2xx
// statuses and unreadable bodies surface as *RemoteExportError.
func (g *Gateway) ExportHTML(ctx context.Context, req ExportRequest) (*ExportResult, error) {
	if req.HTML == "" {
		return nil, fmt.Errorf("exportgw: empty HTML payload")
	}
	body := htmlBody{
		HTML:     req.HTML,
		FileName: req.FilenameStem,
		Download: req.Download,
	}
	if req.Options != (PDFOptions{}) {
		opts := req.Options
		body.PDFOptions = &opts
	}
	return g.post(ctx, body)
}

// ExportURL converts the document at a remote URL to PDF. The URL is checked
// against private/loopback targets before any request is made.
func (g *Gateway) ExportURL(ctx context.Context, req URLExportRequest) (*ExportResult, error) {
	if err := safeurl.ValidateURL(req.URL); err != nil {
		return nil, fmt.Errorf("exportgw: %w", err)
	}
	return g.post(ctx, urlBody{
		URL:      req.URL,
		FileName: req.FilenameStem,
		Download: req.Download,
	})
}

func (g *Gateway) post(ctx context.Context, body any) (*ExportResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("exportgw: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("exportgw: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.cfg.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("exportgw: do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := safeurl.LimitedReadAll(resp.Body, g.cfg.MaxResponseBytes)
	if err != nil {
		return nil, &RemoteExportError{Status: resp.StatusCode, Body: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody := string(bytes.TrimSpace(data))
		if errBody == "" {
			errBody = resp.Status
		}
		return nil, &RemoteExportError{Status: resp.StatusCode, Body: errBody}
	}

	g.cfg.Logger.DebugContext(ctx, "remote conversion succeeded",
		"bytes", len(data),
		"duration_ms", time.Since(start).Milliseconds())

	return &ExportResult{
		Data:               data,
		ContentType:        resp.Header.Get("Content-Type"),
		ContentDisposition: resp.Header.Get("Content-Disposition"),
	}, nil
}
