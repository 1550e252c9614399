package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/docforge/dochost"
	"github.com/hazyhaar/docforge/exportgw"
	"github.com/hazyhaar/docforge/journal"
	"github.com/hazyhaar/docforge/localprint"
	"github.com/hazyhaar/docforge/overlay"
	"github.com/hazyhaar/docforge/pdfinfo"
	"github.com/hazyhaar/docforge/printcss"
	"github.com/hazyhaar/docforge/safeurl"
	"github.com/hazyhaar/docforge/shield"
	"github.com/hazyhaar/docforge/snapshot"
	"github.com/hazyhaar/docforge/template"
	"github.com/hazyhaar/docforge/transfer"
)

type app struct {
	cfg      *Config
	host     *dochost.Host
	gateway  *exportgw.Gateway
	printer  *localprint.Printer
	jnl      *journal.Journal
	store    *overlay.Store
	sanitize *bluemonday.Policy

	mu          sync.Mutex
	controllers map[string]*overlay.Controller
}

func newApp(cfg *Config, host *dochost.Host, gw *exportgw.Gateway, printer *localprint.Printer, jnl *journal.Journal, store *overlay.Store) *app {
	return &app{
		cfg:         cfg,
		host:        host,
		gateway:     gw,
		printer:     printer,
		jnl:         jnl,
		store:       store,
		sanitize:    sanitizerPolicy(),
		controllers: make(map[string]*overlay.Controller),
	}
}

// sanitizerPolicy allows the markup invoice documents are made of (form
// controls, inline styles, data-URI logos) while stripping scripts and
// event handlers from caller-supplied HTML.
func sanitizerPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("style", "input", "textarea", "select", "option", "label", "header", "footer", "section")
	p.AllowAttrs("type", "name", "value", "checked", "placeholder").OnElements("input", "textarea")
	p.AllowAttrs("name", "value", "selected").OnElements("select", "option")
	p.AllowAttrs("style", "class", "id", "contenteditable").Globally()
	p.AllowDataURIImages()
	return p
}

func (a *app) routes() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack() {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/assets/logo.png", a.handleLogo)
	r.Get("/api/templates", a.handleTemplates)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", a.handleOpenSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.handleSessionInfo)
			r.Delete("/", a.handleCloseSession)
			r.Get("/html", a.handleSessionHTML)
			r.Post("/content", a.handleSessionContent)
			r.Post("/save", a.handleSessionSave)
			r.Post("/export", a.handleSessionExport)
			r.Post("/export/markdown", a.handleSessionMarkdown)
		})
	})

	r.Post("/api/export", a.handleRawExport)
	r.Post("/api/export/url", a.handleURLExport)
	r.Post("/api/pdf/info", a.handlePDFInfo)

	r.Route("/api/documents/{id}", func(r chi.Router) {
		r.Get("/annotations", a.handleAnnotations)
		r.Delete("/annotations", a.handleClearAnnotations)
		r.Post("/overlay/tap", a.handleOverlayTap)
		r.Post("/overlay/drag", a.handleOverlayDrag)
		r.Post("/overlay/text", a.handleOverlayBeginText)
		r.Post("/overlay/commit", a.handleOverlayCommit)
		r.Post("/overlay/blur", a.handleOverlayBlur)
		r.Post("/overlay/page", a.handleOverlayPage)
	})

	return r
}

// --- templates and sessions ---

func (a *app) handleLogo(w http.ResponseWriter, _ *http.Request) {
	data, err := template.Logo()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(data)
}

func (a *app) handleTemplates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, template.List())
}

func (a *app) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TemplateID string `json:"template_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s, err := a.host.Open(r.Context(), req.TemplateID)
	if err != nil {
		a.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionInfo(s))
}

func (a *app) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionInfo(s))
}

func (a *app) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	a.host.Close(chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (a *app) handleSessionHTML(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(s.CurrentHTML()))
}

// handleSessionContent receives the auto-capture push from a served editing
// surface.
func (a *app) handleSessionContent(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var req struct {
		HTML  string             `json:"html"`
		State snapshot.FormState `json:"form_state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.UpdateContent(req.HTML, req.State); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "captured"})
}

func (a *app) handleSessionSave(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	if err := s.Save(r.Context()); err != nil {
		a.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (a *app) handleSessionExport(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Download bool               `json:"download"`
		Compact  bool               `json:"compact"`
		Margin   *exportgw.PDFMargin `json:"margin,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	obj, err := s.Export(r.Context(), dochost.ExportOptions{
		Download: req.Download,
		Compact:  req.Compact,
		Margin:   req.Margin,
	})
	if err != nil {
		a.writeOpError(w, err)
		return
	}
	writeBinary(w, obj, req.Download)
}

func (a *app) handleSessionMarkdown(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	md, err := s.ExportMarkdown(r.Context())
	if err != nil {
		a.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"markdown": md})
}

// --- stateless export ---

func (a *app) handleRawExport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HTML     string `json:"html"`
		Filename string `json:"filename"`
		Download bool   `json:"download"`
		Compact  bool   `json:"compact"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.HTML == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("html is required"))
		return
	}
	stem := req.Filename
	if stem == "" {
		stem = "document"
	}
	if err := safeurl.ValidateFilenameStem(stem); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	clean := a.sanitize.Sanitize(req.HTML)
	printable := printcss.Inject(clean, printcss.Options{Compact: req.Compact})

	obj, err := a.exportHTML(r.Context(), printable, stem, req.Download)
	if err != nil {
		a.writeOpError(w, err)
		return
	}
	writeBinary(w, obj, req.Download)
}

func (a *app) handleURLExport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL      string `json:"url"`
		Filename string `json:"filename"`
		Download bool   `json:"download"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	stem := req.Filename
	if stem == "" {
		stem = "document"
	}
	if err := safeurl.ValidateFilenameStem(stem); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	start := time.Now()
	res, err := a.gateway.ExportURL(r.Context(), exportgw.URLExportRequest{
		URL:          req.URL,
		FilenameStem: stem,
		Download:     req.Download,
	})
	if err == nil {
		a.jnl.Record(r.Context(), journal.KindExportRemote, req.URL, "", true, time.Since(start))
		writeBinary(w, transfer.NewObject(res.Data, res.ContentType, exportgw.SuggestedFilename(res, stem)), req.Download)
		return
	}
	if errors.Is(err, safeurl.ErrSSRF) || errors.Is(err, safeurl.ErrUnsafeScheme) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a.jnl.Record(r.Context(), journal.KindExportRemote, req.URL, "", false, time.Since(start))
	shield.GetLogger(r.Context()).Warn("remote url export failed, falling back", "error", err)

	if a.printer == nil {
		a.writeOpError(w, &localprint.Error{Op: "fallback", Err: fmt.Errorf("no local printer configured")})
		return
	}
	data, err := a.printer.PrintURL(r.Context(), req.URL, localprint.Options{})
	if err != nil {
		a.jnl.Record(r.Context(), journal.KindExportFailed, req.URL, "", false, 0)
		a.writeOpError(w, err)
		return
	}
	a.jnl.Record(r.Context(), journal.KindExportFallback, req.URL, "", true, 0)
	writeBinary(w, transfer.NewObject(data, "application/pdf", stem+".pdf"), req.Download)
}

// exportHTML runs the two-tier conversion for stateless payloads: remote
// gateway first, local print fallback second.
func (a *app) exportHTML(ctx context.Context, printable, stem string, download bool) (*transfer.Object, error) {
	start := time.Now()
	res, err := a.gateway.ExportHTML(ctx, exportgw.ExportRequest{
		HTML:         printable,
		FilenameStem: stem,
		Download:     download,
		Options:      exportgw.PDFOptions{Format: "A4", PrintBackground: true},
	})
	if err == nil {
		a.jnl.Record(ctx, journal.KindExportRemote, "", "", true, time.Since(start))
		return transfer.NewObject(res.Data, res.ContentType, exportgw.SuggestedFilename(res, stem)), nil
	}
	a.jnl.Record(ctx, journal.KindExportRemote, "", "", false, time.Since(start))
	shield.GetLogger(ctx).Warn("remote export failed, falling back", "error", err)

	if a.printer == nil {
		a.jnl.Record(ctx, journal.KindExportFailed, "", "", false, 0)
		return nil, &localprint.Error{Op: "fallback", Err: fmt.Errorf("no local printer configured")}
	}
	data, err := a.printer.PrintHTML(ctx, printable, localprint.Options{})
	if err != nil {
		a.jnl.Record(ctx, journal.KindExportFailed, "", "", false, 0)
		return nil, err
	}
	a.jnl.Record(ctx, journal.KindExportFallback, "", "", true, 0)
	return transfer.NewObject(data, "application/pdf", stem+".pdf"), nil
}

// handlePDFInfo inspects an uploaded PDF: page count and per-page media box
// dimensions, used by viewer frontends to lay out page containers for the
// annotation overlay.
func (a *app) handlePDFInfo(w http.ResponseWriter, r *http.Request) {
	data, err := safeurl.LimitedReadAll(r.Body, safeurl.MaxResponseBody)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	info, err := pdfinfo.Read(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// --- annotation overlay ---

func (a *app) handleAnnotations(w http.ResponseWriter, r *http.Request) {
	ctrl := a.controller(r.Context(), chi.URLParam(r, "id"))
	q := r.URL.Query().Get("page")
	if q == "" {
		writeJSON(w, http.StatusOK, ctrl.All())
		return
	}
	var page int
	if _, err := fmt.Sscanf(q, "%d", &page); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid page %q", q))
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Annotations(page))
}

func (a *app) handleClearAnnotations(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "id")
	ctrl := a.controller(r.Context(), docID)
	ctrl.Restore(nil)
	if a.store != nil {
		if err := a.store.Delete(r.Context(), docID); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (a *app) handleOverlayTap(w http.ResponseWriter, r *http.Request) {
	ctrl := a.controller(r.Context(), chi.URLParam(r, "id"))
	var req struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ctrl.Tap(req.X, req.Y)
	writeJSON(w, http.StatusOK, overlayState(ctrl))
}

func (a *app) handleOverlayDrag(w http.ResponseWriter, r *http.Request) {
	ctrl := a.controller(r.Context(), chi.URLParam(r, "id"))
	var req struct {
		Phase string  `json:"phase"` // start | move | end
		X     float64 `json:"x"`
		Y     float64 `json:"y"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	switch req.Phase {
	case "start":
		ctrl.DragStart(req.X, req.Y)
	case "move":
		ctrl.DragMove(req.X, req.Y)
	case "end":
		ctrl.DragFinish(req.X, req.Y)
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unsupported drag phase %q", req.Phase))
		return
	}
	writeJSON(w, http.StatusOK, overlayState(ctrl))
}

func (a *app) handleOverlayBeginText(w http.ResponseWriter, r *http.Request) {
	ctrl := a.controller(r.Context(), chi.URLParam(r, "id"))
	item := ctrl.BeginTextEntry()
	writeJSON(w, http.StatusCreated, item)
}

func (a *app) handleOverlayCommit(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "id")
	ctrl := a.controller(r.Context(), docID)
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ctrl.Commit(req.Text)
	a.persistAnnotations(r.Context(), docID, ctrl)
	writeJSON(w, http.StatusOK, overlayState(ctrl))
}

func (a *app) handleOverlayBlur(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "id")
	ctrl := a.controller(r.Context(), docID)
	ctrl.Blur()
	a.persistAnnotations(r.Context(), docID, ctrl)
	writeJSON(w, http.StatusOK, overlayState(ctrl))
}

func (a *app) handleOverlayPage(w http.ResponseWriter, r *http.Request) {
	ctrl := a.controller(r.Context(), chi.URLParam(r, "id"))
	var req struct {
		Page       *int `json:"page"`        // zero-based
		PageNumber *int `json:"page_number"` // 1-based, clamped
		PageCount  int  `json:"page_count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	switch {
	case req.Page != nil:
		ctrl.SetPage(*req.Page)
	case req.PageNumber != nil:
		ctrl.SetPage(overlay.ClampPage(*req.PageNumber, req.PageCount))
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("page or page_number is required"))
		return
	}
	writeJSON(w, http.StatusOK, overlayState(ctrl))
}

// controller returns the overlay controller for a document, creating and,
// when persistence is on, hydrating it on first use.
func (a *app) controller(ctx context.Context, docID string) *overlay.Controller {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ctrl, ok := a.controllers[docID]; ok {
		return ctrl
	}

	cfg := overlay.DefaultConfig()
	cfg.DiscardOnPageChange = a.cfg.Annotations.DiscardOnPageChange
	cfg.Observer = func(e overlay.Event) {
		slog.Debug("overlay transition",
			"document", docID, "state", e.State, "cause", e.Cause, "page", e.Page)
	}
	cfg.OnCommit = func(ann overlay.Annotation) {
		a.jnl.Record(context.Background(), journal.KindAnnotationAdd, docID, "", true, 0)
	}

	ctrl := overlay.NewController(cfg)
	if a.store != nil {
		if items, err := a.store.Load(ctx, docID); err != nil {
			slog.Warn("load annotations", "document", docID, "error", err)
		} else if len(items) > 0 {
			ctrl.Restore(items)
		}
	}
	a.controllers[docID] = ctrl
	return ctrl
}

func (a *app) persistAnnotations(ctx context.Context, docID string, ctrl *overlay.Controller) {
	if a.store == nil {
		return
	}
	if err := a.store.Save(ctx, docID, ctrl.All()); err != nil {
		slog.Warn("persist annotations", "document", docID, "error", err)
	}
}

// --- helpers ---

func (a *app) session(w http.ResponseWriter, r *http.Request) (*dochost.Session, bool) {
	s, ok := a.host.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown session"))
		return nil, false
	}
	return s, true
}

func sessionInfo(s *dochost.Session) map[string]string {
	return map[string]string{
		"id":       s.ID,
		"template": s.TemplateID,
		"state":    string(s.State()),
	}
}

func overlayState(ctrl *overlay.Controller) map[string]any {
	out := map[string]any{
		"state": ctrl.State(),
		"page":  ctrl.CurrentPage(),
	}
	if sel := ctrl.Selection(); sel != nil {
		out["selection"] = sel
	}
	return out
}

func (a *app) writeOpError(w http.ResponseWriter, err error) {
	var assetErr *dochost.AssetError
	var remoteErr *exportgw.RemoteExportError
	var printErr *localprint.Error

	switch {
	case errors.Is(err, dochost.ErrBusy):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, dochost.ErrNotReady):
		writeError(w, http.StatusConflict, err)
	case errors.As(err, &assetErr):
		writeError(w, http.StatusNotFound, err)
	case errors.As(err, &printErr):
		// generic notice: the raw failure chain stays in the logs
		writeError(w, http.StatusBadGateway, fmt.Errorf("export failed"))
	case errors.As(err, &remoteErr):
		writeError(w, http.StatusBadGateway, fmt.Errorf("export failed"))
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeBinary(w http.ResponseWriter, obj *transfer.Object, download bool) {
	disp := "inline"
	if download {
		disp = "attachment"
	}
	w.Header().Set("Content-Type", obj.MIME)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`%s; filename="%s"`, disp, obj.Filename))
	w.WriteHeader(http.StatusOK)
	w.Write(obj.Data)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
