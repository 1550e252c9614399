// Package localprint produces PDFs locally through headless Chrome. It is
// the network-independent fallback used when the remote conversion endpoint
// fails.
package localprint

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/docforge/safeurl"
)

// Error wraps a local print failure. Terminal for the export attempt that
// reaches it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("localprint: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Options control the print-to-PDF call. Zero values mean A4 paper with a
// half-inch margin.
type Options struct {
	// Margins in inches.
	MarginTop    float64
	MarginRight  float64
	MarginBottom float64
	MarginLeft   float64
	// Paper size in inches. Zero = A4.
	PaperWidth  float64
	PaperHeight float64
	Landscape   bool
}

func (o *Options) defaults() {
	if o.PaperWidth <= 0 {
		o.PaperWidth = 8.27
	}
	if o.PaperHeight <= 0 {
		o.PaperHeight = 11.69
	}
}

// Config configures the Printer.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// NavTimeout bounds navigation and content load. Default: 30s.
	NavTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Printer renders HTML or URLs to PDF via a managed Chrome instance. The
// browser is launched lazily on first use and reused across calls.
type Printer struct {
	cfg Config

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// New creates a Printer. Chrome is not launched until the first print call.
func New(cfg Config) *Printer {
	cfg.defaults()
	return &Printer{cfg: cfg}
}

// PrintHTML renders the given markup into a PDF. Background graphics are
// always printed so injected print styles take effect.
func (p *Printer) PrintHTML(ctx context.Context, html string, opts Options) ([]byte, error) {
	if html == "" {
		return nil, &Error{Op: "print html", Err: fmt.Errorf("empty document")}
	}

	b, err := p.ensureBrowser()
	if err != nil {
		return nil, &Error{Op: "launch", Err: err}
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, &Error{Op: "create tab", Err: err}
	}
	defer page.Close()

	loadCtx, cancel := context.WithTimeout(ctx, p.cfg.NavTimeout)
	defer cancel()

	if err := page.Context(loadCtx).SetDocumentContent(html); err != nil {
		return nil, &Error{Op: "set content", Err: err}
	}
	if err := page.Context(loadCtx).WaitLoad(); err != nil {
		p.cfg.Logger.Warn("localprint: wait load timeout", "error", err)
	}

	return p.printPage(ctx, page, opts)
}

// PrintURL navigates a stealth tab to url and renders the loaded page into a
// PDF. The URL is validated against SSRF and unsafe schemes first.
func (p *Printer) PrintURL(ctx context.Context, rawURL string, opts Options) ([]byte, error) {
	if err := safeurl.ValidateURL(rawURL); err != nil {
		return nil, &Error{Op: "validate url", Err: err}
	}

	b, err := p.ensureBrowser()
	if err != nil {
		return nil, &Error{Op: "launch", Err: err}
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, &Error{Op: "create tab", Err: err}
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, p.cfg.NavTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(rawURL); err != nil {
		return nil, &Error{Op: "navigate", Err: err}
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		p.cfg.Logger.Warn("localprint: wait load timeout", "url", rawURL, "error", err)
	}

	return p.printPage(ctx, page, opts)
}

// Close shuts down Chrome. The Printer cannot be reused afterwards.
func (p *Printer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.browser != nil {
		p.browser.Close()
		p.browser = nil
	}
	if p.lnch != nil {
		p.lnch.Cleanup()
		p.lnch = nil
	}
	return nil
}

func (p *Printer) printPage(ctx context.Context, page *rod.Page, opts Options) ([]byte, error) {
	opts.defaults()

	req := &proto.PagePrintToPDF{
		PrintBackground:   true,
		PreferCSSPageSize: true,
		Landscape:         opts.Landscape,
		PaperWidth:        &opts.PaperWidth,
		PaperHeight:       &opts.PaperHeight,
		MarginTop:         &opts.MarginTop,
		MarginRight:       &opts.MarginRight,
		MarginBottom:      &opts.MarginBottom,
		MarginLeft:        &opts.MarginLeft,
	}

	r, err := page.Context(ctx).PDF(req)
	if err != nil {
		return nil, &Error{Op: "print to pdf", Err: err}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &Error{Op: "read pdf stream", Err: err}
	}

	p.cfg.Logger.Debug("localprint: rendered pdf", "bytes", len(data))
	return data, nil
}

func (p *Printer) ensureBrowser() (*rod.Browser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("printer is closed")
	}
	if p.browser != nil {
		return p.browser, nil
	}

	var wsURL string
	if p.cfg.RemoteURL != "" {
		wsURL = p.cfg.RemoteURL
		p.cfg.Logger.Info("localprint: connecting to remote chrome", "url", wsURL)
	} else {
		l := launcher.New().Headless(true)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		wsURL = u
		p.lnch = l
		p.cfg.Logger.Info("localprint: launched local chrome")
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect chrome: %w", err)
	}
	p.browser = b
	return b, nil
}
