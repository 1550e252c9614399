package overlay

import (
	"context"
	"database/sql"
	"fmt"
)

// StoreSchema creates the annotations table. Applied by NewStore.
const StoreSchema = `
CREATE TABLE IF NOT EXISTS annotations (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	text        TEXT NOT NULL,
	x           REAL NOT NULL,
	y           REAL NOT NULL,
	w           REAL NOT NULL,
	h           REAL NOT NULL,
	font_size   REAL NOT NULL,
	color       TEXT NOT NULL,
	page_index  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_annotations_doc ON annotations(document_id);
`

// Store persists annotation collections per document. Persistence is opt-in;
// controllers are in-memory unless a Store is wired.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store over db and applies the schema.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(StoreSchema); err != nil {
		return nil, fmt.Errorf("overlay: init store: %w", err)
	}
	return &Store{db: db}, nil
}

// Save replaces the stored annotation set for documentID.
func (s *Store) Save(ctx context.Context, documentID string, items []Annotation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("overlay: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM annotations WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("overlay: clear annotations: %w", err)
	}
	for _, a := range items {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO annotations (id, document_id, text, x, y, w, h, font_size, color, page_index)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, documentID, a.Text, a.X, a.Y, a.W, a.H, a.FontSize, a.Color, a.PageIndex)
		if err != nil {
			return fmt.Errorf("overlay: insert annotation %s: %w", a.ID, err)
		}
	}
	return tx.Commit()
}

// Load returns the stored annotations for documentID, ordered by page then
// insertion.
func (s *Store) Load(ctx context.Context, documentID string) ([]Annotation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, x, y, w, h, font_size, color, page_index
		 FROM annotations WHERE document_id = ? ORDER BY page_index, rowid`, documentID)
	if err != nil {
		return nil, fmt.Errorf("overlay: load annotations: %w", err)
	}
	defer rows.Close()

	var out []Annotation
	for rows.Next() {
		var a Annotation
		if err := rows.Scan(&a.ID, &a.Text, &a.X, &a.Y, &a.W, &a.H, &a.FontSize, &a.Color, &a.PageIndex); err != nil {
			return nil, fmt.Errorf("overlay: scan annotation: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Delete removes every annotation stored for documentID.
func (s *Store) Delete(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM annotations WHERE document_id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("overlay: delete annotations: %w", err)
	}
	return nil
}
