package overlay

import (
	"context"
	"testing"

	"github.com/hazyhaar/docforge/dbopen"

	_ "modernc.org/sqlite"
)

// fakeViewer implements Viewer plus page hit-testing over a fixed layout.
type fakeViewer struct {
	page    int
	tap     func(x, y float64)
	drag    func(phase DragPhase, x, y float64)
	hitPage int
	hitOK   bool
}

func (v *fakeViewer) Render(uri string) error { return nil }

func (v *fakeViewer) OnTap(fn func(x, y float64)) { v.tap = fn }

func (v *fakeViewer) OnDrag(fn func(phase DragPhase, x, y float64)) { v.drag = fn }

func (v *fakeViewer) CurrentPage() int { return v.page }

func (v *fakeViewer) PageAt(x, y float64) (int, bool) { return v.hitPage, v.hitOK }

func TestTapThenCommitScenario(t *testing.T) {
	// Tapping at (120, 80) on page 2 with no prior selection, then committing
	// "Invoice #123" yields an annotation with zero-based page index 1 at the
	// tap position, rendered only while page 2 is displayed.
	var committed []Annotation
	cfg := DefaultConfig()
	cfg.OnCommit = func(a Annotation) { committed = append(committed, a) }
	c := NewController(cfg)

	v := &fakeViewer{hitPage: 1, hitOK: true}
	c.Attach(v)
	c.SetPage(1)

	c.Tap(120, 80)
	if c.State() != StateSelectPoint {
		t.Fatalf("state after tap = %s", c.State())
	}

	c.BeginTextEntry()
	c.Commit("Invoice #123")

	if len(committed) != 1 {
		t.Fatalf("expected 1 commit, got %d", len(committed))
	}
	a := committed[0]
	if a.PageIndex != 1 || a.X != 120 || a.Y != 80 || a.Text != "Invoice #123" {
		t.Errorf("annotation = %+v", a)
	}

	if got := c.Annotations(1); len(got) != 1 {
		t.Errorf("page 1 should render the annotation, got %d items", len(got))
	}
	if got := c.Annotations(0); len(got) != 0 {
		t.Errorf("page 0 should render nothing, got %d items", len(got))
	}
}

func TestDragSelectionThreshold(t *testing.T) {
	// Drags below 10px in either dimension do not notify the listener but
	// still update the visual selection.
	tests := []struct {
		name       string
		endX, endY float64
		notified   bool
	}{
		{"below threshold both", 9, 9, false},
		{"below threshold one axis", 50, 9, false},
		{"at threshold", 10, 10, true},
		{"above threshold", 80, 40, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fired bool
			cfg := DefaultConfig()
			cfg.OnSelection = func(page int, r Rect) { fired = true }
			c := NewController(cfg)

			c.DragStart(0, 0)
			c.DragMove(tt.endX/2, tt.endY/2)
			c.DragFinish(tt.endX, tt.endY)

			if fired != tt.notified {
				t.Errorf("notified = %v, want %v", fired, tt.notified)
			}
			sel := c.Selection()
			if sel == nil || sel.W != tt.endX || sel.H != tt.endY {
				t.Errorf("selection = %+v", sel)
			}
		})
	}
}

func TestDragBoundingBoxNormalizes(t *testing.T) {
	c := NewController(DefaultConfig())
	c.DragStart(100, 100)
	c.DragFinish(40, 60)

	sel := c.Selection()
	want := Rect{X: 40, Y: 60, W: 60, H: 40}
	if sel == nil || *sel != want {
		t.Errorf("selection = %+v, want %+v", sel, want)
	}
}

func TestBeginTextEntryDefaultRect(t *testing.T) {
	// No selection: the annotation is centered with the default 150x40 box.
	cfg := DefaultConfig()
	cfg.PageWidth = 600
	cfg.PageHeight = 800
	c := NewController(cfg)

	a := c.BeginTextEntry()
	if a.W != DefaultAnnotationW || a.H != DefaultAnnotationH {
		t.Errorf("size = %gx%g", a.W, a.H)
	}
	if a.X != (600-150)/2 || a.Y != (800-40)/2 {
		t.Errorf("position = (%g, %g)", a.X, a.Y)
	}
	if c.State() != StateEditing {
		t.Errorf("state = %s", c.State())
	}
}

func TestPageChangeDiscardsUncommitted(t *testing.T) {
	// Changing page during text entry discards the item without a commit
	// notification.
	var commits int
	cfg := DefaultConfig()
	cfg.OnCommit = func(Annotation) { commits++ }
	c := NewController(cfg)

	c.Tap(10, 10)
	c.BeginTextEntry()
	c.SetText("draft")
	c.SetPage(2)

	if commits != 0 {
		t.Errorf("commit fired on page change")
	}
	if c.State() != StateIdle {
		t.Errorf("state = %s", c.State())
	}
	if len(c.All()) != 0 {
		t.Errorf("uncommitted item survived: %+v", c.All())
	}
}

func TestPageChangePreservesWhenConfigured(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DiscardOnPageChange = false
	c := NewController(cfg)

	c.Tap(10, 10)
	c.BeginTextEntry()
	c.SetText("kept")
	c.SetPage(3)

	if c.State() != StateEditing {
		t.Errorf("state = %s, item should survive the page change", c.State())
	}
	c.Commit("kept")
	if len(c.All()) != 1 {
		t.Errorf("expected 1 annotation, got %d", len(c.All()))
	}
}

func TestRepeatedBeginTextEntryCommitsDraft(t *testing.T) {
	// Starting a second text entry finalizes the in-progress draft the same
	// way a tap elsewhere would: the draft is committed and notified, never
	// left stranded in the collection without a commit.
	var committed []Annotation
	cfg := DefaultConfig()
	cfg.OnCommit = func(a Annotation) { committed = append(committed, a) }
	c := NewController(cfg)

	c.Tap(30, 40)
	c.BeginTextEntry()
	c.SetText("draft one")

	c.BeginTextEntry()
	c.Commit("final")

	if len(committed) != 2 {
		t.Fatalf("expected 2 commit notifications, got %d", len(committed))
	}
	if committed[0].Text != "draft one" || committed[1].Text != "final" {
		t.Errorf("commits = %q, %q", committed[0].Text, committed[1].Text)
	}
	if all := c.All(); len(all) != 2 {
		t.Fatalf("expected 2 items, got %d", len(all))
	}
}

func TestRepeatedBeginTextEntryDropsEmptyDraft(t *testing.T) {
	c := NewController(DefaultConfig())
	c.BeginTextEntry()
	c.BeginTextEntry()
	c.Commit("kept")

	all := c.All()
	if len(all) != 1 || all[0].Text != "kept" {
		t.Errorf("items = %+v", all)
	}
}

func TestBlurCommitsCurrentText(t *testing.T) {
	var committed []Annotation
	cfg := DefaultConfig()
	cfg.OnCommit = func(a Annotation) { committed = append(committed, a) }
	c := NewController(cfg)

	c.BeginTextEntry()
	c.SetText("via blur")
	c.Blur()

	if len(committed) != 1 || committed[0].Text != "via blur" {
		t.Fatalf("committed = %+v", committed)
	}
}

func TestEmptyCommitRemovesItem(t *testing.T) {
	var commits int
	cfg := DefaultConfig()
	cfg.OnCommit = func(Annotation) { commits++ }
	c := NewController(cfg)

	c.BeginTextEntry()
	c.Blur()

	if commits != 0 {
		t.Errorf("empty annotation should not notify commit")
	}
	if len(c.All()) != 0 {
		t.Errorf("empty annotation should be removed")
	}
}

func TestObserverSeesTransitions(t *testing.T) {
	var events []Event
	cfg := DefaultConfig()
	cfg.Observer = func(e Event) { events = append(events, e) }
	c := NewController(cfg)

	c.Tap(5, 5)
	c.BeginTextEntry()
	c.Commit("x")

	if len(events) < 3 {
		t.Fatalf("expected at least 3 events, got %d", len(events))
	}
	if events[0].Cause != "tap" || events[0].State != StateSelectPoint {
		t.Errorf("first event = %+v", events[0])
	}
	last := events[len(events)-1]
	if last.Cause != "commit" || last.State != StateIdle {
		t.Errorf("last event = %+v", last)
	}
}

func TestClampPage(t *testing.T) {
	tests := []struct {
		oneBased, count, want int
	}{
		{2, 5, 1},
		{1, 5, 0},
		{0, 5, 0},
		{9, 5, 4},
		{3, 0, 2}, // unknown count: no upper clamp
	}
	for _, tt := range tests {
		if got := ClampPage(tt.oneBased, tt.count); got != tt.want {
			t.Errorf("ClampPage(%d, %d) = %d, want %d", tt.oneBased, tt.count, got, tt.want)
		}
	}
}

func TestStoreRoundTrip(t *testing.T) {
	db := dbopen.OpenMemory(t)
	store, err := NewStore(db)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	items := []Annotation{
		{ID: "ann_1", Text: "first", X: 10, Y: 20, W: 150, H: 40, FontSize: 14, Color: "#222222", PageIndex: 0},
		{ID: "ann_2", Text: "second", X: 30, Y: 40, W: 100, H: 30, FontSize: 12, Color: "#aa0000", PageIndex: 2},
	}
	if err := store.Save(ctx, "doc_1", items); err != nil {
		t.Fatal(err)
	}

	got, err := store.Load(ctx, "doc_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != items[0] || got[1] != items[1] {
		t.Errorf("loaded = %+v", got)
	}

	// Save replaces, not appends.
	if err := store.Save(ctx, "doc_1", items[:1]); err != nil {
		t.Fatal(err)
	}
	got, _ = store.Load(ctx, "doc_1")
	if len(got) != 1 {
		t.Errorf("expected replacement save, got %d items", len(got))
	}

	if err := store.Delete(ctx, "doc_1"); err != nil {
		t.Fatal(err)
	}
	got, _ = store.Load(ctx, "doc_1")
	if len(got) != 0 {
		t.Errorf("expected empty after delete, got %d", len(got))
	}
}
