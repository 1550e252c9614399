// Package dochost owns editable document sessions: loading bundled
// templates into an editing-enabled form, capturing live state as
// deterministic snapshots, and exporting PDFs through the remote gateway
// with a local print fallback.
package dochost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/hazyhaar/docforge/exportgw"
	"github.com/hazyhaar/docforge/idgen"
	"github.com/hazyhaar/docforge/journal"
	"github.com/hazyhaar/docforge/localprint"
	"github.com/hazyhaar/docforge/printcss"
	"github.com/hazyhaar/docforge/snapshot"
	"github.com/hazyhaar/docforge/template"
	"github.com/hazyhaar/docforge/transfer"
)

// logoAssetName is the relative logo reference every bundled template uses.
const logoAssetName = "logo.png"

// Mode selects how sessions are hosted.
type Mode int

const (
	// ModeServed hosts the document from a real HTTP origin. Relative assets
	// resolve through an injected base reference and the live state is pushed
	// back over HTTP.
	ModeServed Mode = iota
	// ModeEmbedded hosts the document inside a webview with no servable
	// origin. The logo is inlined as a data URI to route around file-scheme
	// same-origin restrictions, and state travels over a message bridge.
	ModeEmbedded
)

func (m Mode) String() string {
	if m == ModeEmbedded {
		return "embedded"
	}
	return "served"
}

// State of a session.
type State string

const (
	StateLoading   State = "loading"
	StateReady     State = "ready"
	StateSaving    State = "saving"
	StateExporting State = "exporting"
)

// Config configures a Host.
type Config struct {
	Mode Mode

	// BaseURL is the service origin, required in ModeServed.
	BaseURL string

	// Gateway performs remote HTML to PDF conversion. Required.
	Gateway *exportgw.Gateway

	// Printer is the local fallback. Nil disables the fallback path.
	Printer *localprint.Printer

	// Journal records export and save events. Optional.
	Journal *journal.Journal

	// GracePeriod is the fixed wait for a bridge snapshot response.
	// Default: DefaultGracePeriod.
	GracePeriod time.Duration

	// AutoCaptureInterval is the injected auto-capture timer period.
	// Default: DefaultAutoCaptureInterval.
	AutoCaptureInterval time.Duration

	// LoadLogo supplies the logo bytes inlined in ModeEmbedded.
	// Default: the bundled placeholder logo.
	LoadLogo func() ([]byte, error)

	// NewID generates session IDs.
	NewID idgen.Generator

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.GracePeriod <= 0 {
		c.GracePeriod = DefaultGracePeriod
	}
	if c.AutoCaptureInterval <= 0 {
		c.AutoCaptureInterval = DefaultAutoCaptureInterval
	}
	if c.LoadLogo == nil {
		c.LoadLogo = template.Logo
	}
	if c.NewID == nil {
		c.NewID = idgen.Prefixed("ses_", idgen.Default)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Host opens and tracks editable document sessions.
type Host struct {
	cfg Config
	md  *converter.Converter

	mu       sync.RWMutex
	sessions map[string]*Session
}

// New creates a Host.
func New(cfg Config) (*Host, error) {
	cfg.defaults()
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("dochost: gateway is required")
	}
	if cfg.Mode == ModeServed && cfg.BaseURL == "" {
		return nil, fmt.Errorf("dochost: base URL is required in served mode")
	}
	return &Host{
		cfg: cfg,
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		sessions: make(map[string]*Session),
	}, nil
}

func (h *Host) assetBase() string {
	return strings.TrimRight(h.cfg.BaseURL, "/") + "/assets/"
}

// Open loads a template into a new editing session. The as-loaded HTML and
// the current HTML start identical.
func (h *Host) Open(ctx context.Context, templateID string) (*Session, error) {
	tpl, err := template.Get(templateID)
	if err != nil {
		return nil, &AssetError{Name: templateID, Err: err}
	}
	content, err := template.Content(templateID)
	if err != nil {
		return nil, &AssetError{Name: templateID, Err: err}
	}

	logoRef, err := h.logoRef()
	if err != nil {
		return nil, &AssetError{Name: logoAssetName, Err: err}
	}

	s := &Session{
		ID:           h.cfg.NewID(),
		TemplateID:   templateID,
		FilenameStem: tpl.Filename,
		host:         h,
		state:        StateLoading,
	}

	prepared, err := h.prepare(content, s.ID, logoRef)
	if err != nil {
		return nil, &AssetError{Name: templateID, Err: err}
	}

	s.initialHTML = prepared
	s.currentHTML = prepared
	s.state = StateReady

	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()

	h.cfg.Logger.Info("dochost: session opened",
		"session", s.ID, "template", templateID, "mode", h.cfg.Mode.String())
	return s, nil
}

// Get returns the session with the given ID.
func (h *Host) Get(id string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

// Close discards a session.
func (h *Host) Close(id string) {
	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()
}

func (h *Host) logoRef() (string, error) {
	if h.cfg.Mode == ModeServed {
		return h.assetBase() + logoAssetName, nil
	}
	data, err := h.cfg.LoadLogo()
	if err != nil {
		return "", err
	}
	return transfer.NewObject(data, "image/png", logoAssetName).DataURI(), nil
}

// Session is one editable document. Save and export are mutually exclusive;
// a second operation gets ErrBusy while the first is in flight.
type Session struct {
	ID           string
	TemplateID   string
	FilenameStem string

	host *Host

	mu          sync.Mutex
	state       State
	bridge      Bridge
	initialHTML string
	currentHTML string
}

// State returns the session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// InitialHTML returns the as-loaded editing-enabled markup.
func (s *Session) InitialHTML() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialHTML
}

// CurrentHTML returns the latest captured snapshot.
func (s *Session) CurrentHTML() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentHTML
}

// SetBridge attaches the message bridge of an embedded content context.
func (s *Session) SetBridge(b Bridge) {
	s.mu.Lock()
	s.bridge = b
	s.mu.Unlock()
}

// UpdateContent stores a snapshot pushed from the editing surface (the
// served-mode auto-capture path). The live form state is applied to the
// parsed markup and flattened so control values survive re-parsing.
func (s *Session) UpdateContent(raw string, state snapshot.FormState) error {
	flat, err := snapshot.CaptureHTML(raw, state)
	if err != nil {
		return fmt.Errorf("dochost: flatten pushed content: %w", err)
	}
	s.mu.Lock()
	s.currentHTML = flat
	s.mu.Unlock()
	return nil
}

// Save captures the live editing surface into the current snapshot. With an
// embedded bridge the capture is asynchronous: the host requests
// serialization and waits a fixed grace period, proceeding with the last
// known snapshot when no message arrives.
func (s *Session) Save(ctx context.Context) error {
	if err := s.begin(StateSaving); err != nil {
		return err
	}
	defer s.end()

	start := time.Now()
	if err := s.refresh(ctx); err != nil {
		s.journal(ctx, journal.KindSnapshotSaved, "", false, time.Since(start))
		return err
	}
	s.journal(ctx, journal.KindSnapshotSaved, "", true, time.Since(start))
	return nil
}

// ExportOptions control one export attempt.
type ExportOptions struct {
	// Download requests attachment disposition from the remote endpoint.
	Download bool
	// Compact applies the print-media zoom rule for one-page output.
	Compact bool
	// Margin is passed to the remote endpoint as CSS lengths.
	Margin *exportgw.PDFMargin
}

// Export captures the latest snapshot, normalizes it for print, and
// converts it to PDF: remote gateway first, local print fallback second.
// The raw remote error is never surfaced once the fallback engages.
func (s *Session) Export(ctx context.Context, opts ExportOptions) (*transfer.Object, error) {
	if err := s.begin(StateExporting); err != nil {
		return nil, err
	}
	defer s.end()

	if err := s.refresh(ctx); err != nil {
		return nil, err
	}

	printable := printcss.Inject(s.CurrentHTML(), printcss.Options{Compact: opts.Compact})
	log := s.host.cfg.Logger

	start := time.Now()
	res, err := s.host.cfg.Gateway.ExportHTML(ctx, exportgw.ExportRequest{
		HTML:         printable,
		FilenameStem: s.FilenameStem,
		Download:     opts.Download,
		Options: exportgw.PDFOptions{
			Format:          "A4",
			PrintBackground: true,
			Margin:          opts.Margin,
		},
	})
	if err == nil {
		s.journal(ctx, journal.KindExportRemote, "", true, time.Since(start))
		name := exportgw.SuggestedFilename(res, s.FilenameStem)
		return transfer.NewObject(res.Data, res.ContentType, name), nil
	}

	var remoteErr *exportgw.RemoteExportError
	if errors.As(err, &remoteErr) {
		log.Warn("dochost: remote export failed, falling back",
			"session", s.ID, "status", remoteErr.Status)
	} else {
		log.Warn("dochost: remote export failed, falling back",
			"session", s.ID, "error", err)
	}
	s.journal(ctx, journal.KindExportRemote, "", false, time.Since(start))

	return s.exportLocal(ctx, printable)
}

func (s *Session) exportLocal(ctx context.Context, printable string) (*transfer.Object, error) {
	printer := s.host.cfg.Printer
	if printer == nil {
		err := &localprint.Error{Op: "fallback", Err: fmt.Errorf("no local printer configured")}
		s.journal(ctx, journal.KindExportFailed, "", false, 0)
		return nil, err
	}

	start := time.Now()
	data, err := printer.PrintHTML(ctx, printable, localprint.Options{})
	if err != nil {
		s.journal(ctx, journal.KindExportFailed, "", false, time.Since(start))
		return nil, err
	}

	s.journal(ctx, journal.KindExportFallback, "", true, time.Since(start))
	s.host.cfg.Logger.Info("dochost: exported via local fallback",
		"session", s.ID, "bytes", len(data))
	return transfer.NewObject(data, "application/pdf", s.FilenameStem+".pdf"), nil
}

// ExportMarkdown converts the current snapshot to Markdown.
func (s *Session) ExportMarkdown(ctx context.Context) (string, error) {
	if err := s.begin(StateExporting); err != nil {
		return "", err
	}
	defer s.end()

	if err := s.refresh(ctx); err != nil {
		return "", err
	}

	md, err := s.host.md.ConvertString(s.CurrentHTML())
	if err != nil {
		return "", fmt.Errorf("dochost: markdown conversion: %w", err)
	}
	return strings.TrimSpace(md), nil
}

// refresh pulls a fresh snapshot over the bridge when one is attached. The
// last known snapshot stands when the grace period elapses without a
// response.
func (s *Session) refresh(ctx context.Context) error {
	s.mu.Lock()
	bridge := s.bridge
	grace := s.host.cfg.GracePeriod
	s.mu.Unlock()

	if bridge == nil {
		return nil
	}

	if err := bridge.RequestSnapshot(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case msg := <-bridge.Messages():
		switch msg.Type {
		case MsgContent:
			flat, err := snapshot.CaptureHTML(msg.HTML, msg.State)
			if err != nil {
				return fmt.Errorf("dochost: flatten bridge snapshot: %w", err)
			}
			s.mu.Lock()
			s.currentHTML = flat
			s.mu.Unlock()
		case MsgError:
			return fmt.Errorf("%w: %s", ErrNotReady, msg.Message)
		}
	case <-timer.C:
		// no response inside the grace period: keep the last known snapshot
		s.host.cfg.Logger.Debug("dochost: bridge capture timed out", "session", s.ID)
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (s *Session) begin(op State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateReady:
		s.state = op
		return nil
	case StateLoading:
		return ErrNotReady
	default:
		return ErrBusy
	}
}

func (s *Session) end() {
	s.mu.Lock()
	s.state = StateReady
	s.mu.Unlock()
}

func (s *Session) journal(ctx context.Context, kind, detail string, success bool, d time.Duration) {
	if s.host.cfg.Journal == nil {
		return
	}
	s.host.cfg.Journal.Record(ctx, kind, s.ID, detail, success, d)
}
