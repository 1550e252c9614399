package journal

import (
	"context"
	"testing"
	"time"

	"github.com/hazyhaar/docforge/dbopen"
	"github.com/hazyhaar/docforge/kit"

	_ "modernc.org/sqlite"
)

func TestRecordAndFlush(t *testing.T) {
	db := dbopen.OpenMemory(t)
	j := New(db)
	if err := j.Init(); err != nil {
		t.Fatal(err)
	}

	ctx := kit.WithTraceID(context.Background(), "trc_1")
	j.Record(ctx, KindExportRemote, "doc_1", `{"status":200}`, true, 120*time.Millisecond)
	j.Record(ctx, KindExportFallback, "doc_1", "", true, 0)

	// Close drains the buffer synchronously.
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM doc_events`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("expected 2 events, got %d", count)
	}

	var traceID, kind string
	var success int
	err := db.QueryRow(`SELECT trace_id, kind, success FROM doc_events WHERE kind = ?`, KindExportRemote).
		Scan(&traceID, &kind, &success)
	if err != nil {
		t.Fatal(err)
	}
	if traceID != "trc_1" || success != 1 {
		t.Errorf("trace_id = %q, success = %d", traceID, success)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	db := dbopen.OpenMemory(t)
	j := New(db)
	if err := j.Init(); err != nil {
		t.Fatal(err)
	}
	j.Close()
	j.Close()
}

func TestCleanup(t *testing.T) {
	db := dbopen.OpenMemory(t)
	j := New(db)
	if err := j.Init(); err != nil {
		t.Fatal(err)
	}

	old := time.Now().Add(-72 * time.Hour).UnixMicro()
	if _, err := db.Exec(`INSERT INTO doc_events (entry_id, trace_id, kind, document_id, detail, success, duration_us, timestamp)
		VALUES ('evt_old', '', 'export_remote', 'doc', '', 1, 0, ?)`, old); err != nil {
		t.Fatal(err)
	}

	if err := Cleanup(context.Background(), db, 1); err != nil {
		t.Fatal(err)
	}

	var count int
	db.QueryRow(`SELECT COUNT(*) FROM doc_events`).Scan(&count)
	if count != 0 {
		t.Errorf("expected old entries deleted, %d remain", count)
	}
	j.Close()
}
