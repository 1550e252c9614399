// Package journal persists docforge operation events — export attempts,
// fallback activations, annotation commits — to SQLite, asynchronously, so a
// failing journal never blocks or fails the operation it records.
package journal

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/docforge/idgen"
	"github.com/hazyhaar/docforge/kit"
)

// Event kinds recorded by the service.
const (
	KindExportRemote   = "export_remote"
	KindExportFallback = "export_fallback"
	KindExportFailed   = "export_failed"
	KindSnapshotSaved  = "snapshot_saved"
	KindAnnotationAdd  = "annotation_add"
	KindAnnotationEdit = "annotation_edit"
)

// Entry is a single journal record.
type Entry struct {
	EntryID    string
	TraceID    string // correlation with the HTTP/MCP request
	Kind       string
	DocumentID string
	Detail     string // optional JSON
	Success    bool
	DurationUs int64
	Timestamp  int64 // unix microseconds
}

// Schema for the doc_events table. Applied by Init.
const Schema = `
CREATE TABLE IF NOT EXISTS doc_events (
	entry_id    TEXT PRIMARY KEY,
	trace_id    TEXT,
	kind        TEXT NOT NULL,
	document_id TEXT,
	detail      TEXT,
	success     INTEGER NOT NULL,
	duration_us INTEGER NOT NULL DEFAULT 0,
	timestamp   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_doc_events_ts ON doc_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_doc_events_doc ON doc_events(document_id) WHERE document_id != '';
`

// Journal batches entries and flushes them to SQLite on a ticker.
type Journal struct {
	db    *sql.DB
	newID idgen.Generator
	ch    chan *Entry
	done  chan struct{}
	once  sync.Once
}

// Option configures a Journal.
type Option func(*Journal)

// WithIDGenerator sets a custom ID generator for entry IDs.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(j *Journal) { j.newID = gen }
}

// New creates a Journal backed by db and starts its flush goroutine.
func New(db *sql.DB, opts ...Option) *Journal {
	j := &Journal{
		db:    db,
		newID: idgen.Prefixed("evt_", idgen.Default),
		ch:    make(chan *Entry, 1024),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(j)
	}
	go j.flushLoop()
	return j
}

// Init creates the doc_events table if it doesn't exist.
func (j *Journal) Init() error {
	_, err := j.db.Exec(Schema)
	return err
}

// Record queues an event for async persistence. Non-blocking: the entry is
// dropped when the buffer is full, and the trace ID is read from ctx.
func (j *Journal) Record(ctx context.Context, kind, documentID, detail string, success bool, duration time.Duration) {
	e := &Entry{
		EntryID:    j.newID(),
		TraceID:    kit.GetTraceID(ctx),
		Kind:       kind,
		DocumentID: documentID,
		Detail:     detail,
		Success:    success,
		DurationUs: duration.Microseconds(),
		Timestamp:  time.Now().UnixMicro(),
	}
	select {
	case j.ch <- e:
	default:
		// buffer full — drop silently to avoid backpressure on the app
	}
}

// Close drains the buffer and stops the flush goroutine.
func (j *Journal) Close() error {
	j.once.Do(func() {
		close(j.ch)
		<-j.done
	})
	return nil
}

func (j *Journal) flushLoop() {
	defer close(j.done)

	batch := make([]*Entry, 0, 64)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-j.ch:
			if !ok {
				j.flushBatch(batch)
				return
			}
			batch = append(batch, e)
			if len(batch) >= 64 {
				j.flushBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				j.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (j *Journal) flushBatch(batch []*Entry) {
	if len(batch) == 0 {
		return
	}

	tx, err := j.db.Begin()
	if err != nil {
		slog.Error("journal: begin tx", "error", err)
		return
	}

	stmt, err := tx.Prepare(`INSERT INTO doc_events (entry_id, trace_id, kind, document_id, detail, success, duration_us, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		slog.Error("journal: prepare", "error", err)
		return
	}
	defer stmt.Close()

	for _, e := range batch {
		success := 0
		if e.Success {
			success = 1
		}
		if _, err := stmt.Exec(e.EntryID, e.TraceID, e.Kind, e.DocumentID, e.Detail, success, e.DurationUs, e.Timestamp); err != nil {
			slog.Error("journal: insert", "error", err)
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("journal: commit", "error", err)
	}
}

// Cleanup deletes entries older than the retention window. Zero days keeps
// everything.
func Cleanup(ctx context.Context, db *sql.DB, days int) error {
	if days <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour).UnixMicro()
	_, err := db.ExecContext(ctx, `DELETE FROM doc_events WHERE timestamp < ?`, cutoff)
	return err
}
