// Package overlay owns the annotation state machine used by PDF viewer
// frontends: tap/drag selection, text entry, and a per-page collection of
// committed annotation items. One state machine serves every rendering
// strategy behind the Viewer capability interface.
package overlay

import (
	"sync"

	"github.com/hazyhaar/docforge/idgen"
)

// State of the controller.
type State string

const (
	StateIdle        State = "idle"
	StateSelectPoint State = "selecting_point"
	StateSelectArea  State = "selecting_area"
	StateEditing     State = "editing_text"
)

// MinSelectionPx is the minimum drag extent, in both dimensions, for a
// selection to be reported to the listener. Smaller drags still update the
// visual selection.
const MinSelectionPx = 10.0

// Default geometry of a text annotation created without a prior selection.
const (
	DefaultAnnotationW = 150.0
	DefaultAnnotationH = 40.0
)

// Annotation is a committed piece of user text anchored to a page-relative
// position. PageIndex is zero-based.
type Annotation struct {
	ID        string  `json:"id"`
	Text      string  `json:"text"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	W         float64 `json:"w"`
	H         float64 `json:"h"`
	FontSize  float64 `json:"font_size"`
	Color     string  `json:"color"`
	PageIndex int     `json:"page_index"`
}

// Viewer is the capability interface a rendering strategy implements. The
// controller drives one viewer; the viewer forwards gestures back through
// the controller's Tap/Drag methods.
type Viewer interface {
	// Render displays the document at uri.
	Render(uri string) error
	// OnTap registers the tap gesture handler.
	OnTap(func(x, y float64))
	// OnDrag registers the drag gesture handler.
	OnDrag(func(phase DragPhase, x, y float64))
	// CurrentPage returns the zero-based index of the displayed page.
	CurrentPage() int
}

// PageHitTester is optionally implemented by viewers that can resolve which
// page container a coordinate falls inside.
type PageHitTester interface {
	PageAt(x, y float64) (int, bool)
}

// DragPhase tags drag gesture callbacks.
type DragPhase int

const (
	DragBegin DragPhase = iota
	DragUpdate
	DragEnd
)

// Event is a structured diagnostic record emitted on every state transition.
type Event struct {
	State        State  `json:"state"`
	Cause        string `json:"cause"`
	Page         int    `json:"page"`
	Selection    *Rect  `json:"selection,omitempty"`
	AnnotationID string `json:"annotation_id,omitempty"`
}

// Config configures a Controller.
type Config struct {
	// DiscardOnPageChange discards an uncommitted annotation when the page
	// changes. When false the in-progress item is preserved across pages.
	DiscardOnPageChange bool
	// PageWidth/PageHeight give the page box used to center the default
	// annotation rectangle. Zero values fall back to A4 in PDF points.
	PageWidth  float64
	PageHeight float64
	// OnSelection is notified of drag selections at or above MinSelectionPx.
	OnSelection func(page int, r Rect)
	// OnCommit is notified of each committed annotation (a copy).
	OnCommit func(Annotation)
	// Observer receives a diagnostic Event per state transition.
	Observer func(Event)
	// NewID generates annotation IDs.
	NewID idgen.Generator
}

func (c *Config) defaults() {
	if c.PageWidth <= 0 {
		c.PageWidth = 595
	}
	if c.PageHeight <= 0 {
		c.PageHeight = 842
	}
	if c.NewID == nil {
		c.NewID = idgen.Prefixed("ann_", idgen.Default)
	}
}

// DefaultConfig returns the default controller configuration. Page changes
// discard uncommitted items.
func DefaultConfig() Config {
	return Config{DiscardOnPageChange: true}
}

// Controller is the annotation overlay state machine. Safe for concurrent
// use; gesture and command methods serialize on an internal lock.
type Controller struct {
	cfg Config

	mu         sync.Mutex
	state      State
	page       int
	selection  *Rect
	selPage    int
	dragStartX float64
	dragStartY float64
	pending    *Annotation
	items      []Annotation
	viewer     Viewer
}

// NewController creates a Controller in the idle state on page 0.
func NewController(cfg Config) *Controller {
	cfg.defaults()
	return &Controller{cfg: cfg, state: StateIdle}
}

// Attach wires a viewer's gesture callbacks to the controller and tracks it
// for page hit-testing.
func (c *Controller) Attach(v Viewer) {
	c.mu.Lock()
	c.viewer = v
	c.mu.Unlock()
	v.OnTap(c.Tap)
	v.OnDrag(func(phase DragPhase, x, y float64) {
		switch phase {
		case DragBegin:
			c.DragStart(x, y)
		case DragUpdate:
			c.DragMove(x, y)
		case DragEnd:
			c.DragFinish(x, y)
		}
	})
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentPage returns the zero-based page the controller tracks.
func (c *Controller) CurrentPage() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

// Selection returns the current selection rectangle, or nil.
func (c *Controller) Selection() *Rect {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selection == nil {
		return nil
	}
	r := *c.selection
	return &r
}

// Tap records a point selection at (x, y). The page is resolved by
// hit-testing when the viewer supports it, else the current page. An active
// text entry is committed first, as if focus was lost.
func (c *Controller) Tap(x, y float64) {
	c.mu.Lock()
	if c.state == StateEditing {
		c.commitLocked("tap")
	}
	r := PointRect(x, y)
	c.selection = &r
	c.selPage = c.hitPageLocked(x, y)
	c.state = StateSelectPoint
	c.emitLocked("tap")
	c.mu.Unlock()
}

// DragStart begins an area selection, clearing any prior selection.
func (c *Controller) DragStart(x, y float64) {
	c.mu.Lock()
	if c.state == StateEditing {
		c.commitLocked("drag")
	}
	c.dragStartX, c.dragStartY = x, y
	r := PointRect(x, y)
	c.selection = &r
	c.selPage = c.hitPageLocked(x, y)
	c.state = StateSelectArea
	c.emitLocked("drag_start")
	c.mu.Unlock()
}

// DragMove recomputes the selection as the bounding box of the drag start and
// the current coordinate.
func (c *Controller) DragMove(x, y float64) {
	c.mu.Lock()
	if c.state != StateSelectArea {
		c.mu.Unlock()
		return
	}
	r := BoundingRect(c.dragStartX, c.dragStartY, x, y)
	c.selection = &r
	c.mu.Unlock()
}

// DragFinish ends the drag. Selections at least MinSelectionPx in both
// dimensions are reported to the OnSelection listener; smaller ones only
// update the visual selection.
func (c *Controller) DragFinish(x, y float64) {
	c.mu.Lock()
	if c.state != StateSelectArea {
		c.mu.Unlock()
		return
	}
	r := BoundingRect(c.dragStartX, c.dragStartY, x, y)
	c.selection = &r
	meaningful := r.W >= MinSelectionPx && r.H >= MinSelectionPx
	page := c.selPage
	cb := c.cfg.OnSelection
	c.emitLocked("drag_end")
	c.mu.Unlock()

	if meaningful && cb != nil {
		cb(page, r)
	}
}

// BeginTextEntry materializes a new annotation anchored at the current
// selection, or at a default centered rectangle when none exists, and enters
// text entry. The item is appended to its page's collection immediately. An
// already-active text entry is committed first, as if focus was lost; drafts
// never stay uncommitted in the collection.
func (c *Controller) BeginTextEntry() *Annotation {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateEditing {
		c.commitLocked("begin_text_entry")
	}

	var r Rect
	page := c.page
	if c.selection != nil {
		r = *c.selection
		page = c.selPage
		if r.W == 0 && r.H == 0 {
			r.W, r.H = DefaultAnnotationW, DefaultAnnotationH
		}
	} else {
		r = Rect{
			X: (c.cfg.PageWidth - DefaultAnnotationW) / 2,
			Y: (c.cfg.PageHeight - DefaultAnnotationH) / 2,
			W: DefaultAnnotationW,
			H: DefaultAnnotationH,
		}
	}

	a := Annotation{
		ID:        c.cfg.NewID(),
		X:         r.X,
		Y:         r.Y,
		W:         r.W,
		H:         r.H,
		FontSize:  14,
		Color:     "#222222",
		PageIndex: page,
	}
	c.items = append(c.items, a)
	c.pending = &c.items[len(c.items)-1]
	c.state = StateEditing
	c.emitLocked("begin_text_entry")

	cp := a
	return &cp
}

// SetText updates the in-progress annotation's text without committing.
func (c *Controller) SetText(text string) {
	c.mu.Lock()
	if c.state == StateEditing && c.pending != nil {
		c.pending.Text = text
	}
	c.mu.Unlock()
}

// Commit sets the in-progress annotation's final text and returns to idle,
// notifying the OnCommit listener. Empty text removes the item instead.
func (c *Controller) Commit(text string) {
	c.mu.Lock()
	if c.state != StateEditing || c.pending == nil {
		c.mu.Unlock()
		return
	}
	c.pending.Text = text
	c.commitLocked("commit")
	c.mu.Unlock()
}

// Blur commits the in-progress annotation with its current text, modelling
// loss of focus on the text-entry surface.
func (c *Controller) Blur() {
	c.mu.Lock()
	if c.state == StateEditing {
		c.commitLocked("blur")
	}
	c.mu.Unlock()
}

// SetPage changes the displayed page. The selection is cleared; an
// uncommitted annotation is silently discarded when DiscardOnPageChange is
// set, preserved otherwise.
func (c *Controller) SetPage(page int) {
	c.mu.Lock()
	c.selection = nil
	if c.state == StateEditing {
		if c.cfg.DiscardOnPageChange {
			c.discardPendingLocked()
			c.state = StateIdle
		}
	} else {
		c.state = StateIdle
	}
	c.page = page
	c.emitLocked("page_change")
	c.mu.Unlock()
}

// Annotations returns copies of the annotations anchored to page.
func (c *Controller) Annotations(page int) []Annotation {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Annotation
	for _, a := range c.items {
		if a.PageIndex == page {
			out = append(out, a)
		}
	}
	return out
}

// VisibleAnnotations returns the annotations for the currently displayed
// page; items on other pages are not rendered.
func (c *Controller) VisibleAnnotations() []Annotation {
	c.mu.Lock()
	page := c.page
	c.mu.Unlock()
	return c.Annotations(page)
}

// All returns copies of every annotation across pages.
func (c *Controller) All() []Annotation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Annotation, len(c.items))
	copy(out, c.items)
	return out
}

// Restore replaces the annotation collection, e.g. from a Store.
func (c *Controller) Restore(items []Annotation) {
	c.mu.Lock()
	c.items = make([]Annotation, len(items))
	copy(c.items, items)
	c.pending = nil
	c.state = StateIdle
	c.selection = nil
	c.mu.Unlock()
}

// commitLocked finalizes the pending item and returns to idle. Items with
// empty text are removed rather than kept as blank overlays.
func (c *Controller) commitLocked(cause string) {
	var committed *Annotation
	if c.pending != nil {
		if c.pending.Text == "" {
			c.discardPendingLocked()
		} else {
			cp := *c.pending
			committed = &cp
		}
	}
	c.pending = nil
	c.selection = nil
	c.state = StateIdle
	if committed != nil {
		c.emitCommitLocked(cause, *committed)
	} else {
		c.emitLocked(cause)
	}
}

func (c *Controller) discardPendingLocked() {
	if c.pending == nil {
		return
	}
	id := c.pending.ID
	for i := range c.items {
		if c.items[i].ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			break
		}
	}
	c.pending = nil
}

func (c *Controller) hitPageLocked(x, y float64) int {
	if ht, ok := c.viewer.(PageHitTester); ok && ht != nil {
		if page, ok := ht.PageAt(x, y); ok {
			return page
		}
	}
	if c.viewer != nil {
		return c.viewer.CurrentPage()
	}
	return c.page
}

func (c *Controller) emitLocked(cause string) {
	if c.cfg.Observer == nil {
		return
	}
	ev := Event{State: c.state, Cause: cause, Page: c.page}
	if c.selection != nil {
		r := *c.selection
		ev.Selection = &r
	}
	if c.pending != nil {
		ev.AnnotationID = c.pending.ID
	}
	c.cfg.Observer(ev)
}

func (c *Controller) emitCommitLocked(cause string, a Annotation) {
	if c.cfg.Observer != nil {
		c.cfg.Observer(Event{State: c.state, Cause: cause, Page: c.page, AnnotationID: a.ID})
	}
	if c.cfg.OnCommit != nil {
		// listener gets a copy, never a live reference
		c.cfg.OnCommit(a)
	}
}
