package docmerge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/docmerge/dbopen"
	"github.com/hazyhaar/docmerge/idgen"
	"github.com/hazyhaar/docmerge/submission"
)

// ErrBatchNotFound is returned by Store.Get for an unknown batch id.
var ErrBatchNotFound = errors.New("docmerge: batch not found")

// Batch statuses.
const (
	StatusOK      = "ok"      // combined, no item errors
	StatusPartial = "partial" // combined, some items dropped or noted
	StatusFailed  = "failed"  // nothing combined
)

// Item is one submission included in a combined document.
type Item struct {
	Identity string `json:"identity"`
	Path     string `json:"path"`
}

// Batch is the history record of one pipeline run.
type Batch struct {
	ID          string                 `json:"id"`
	Source      string                 `json:"source"` // "archive" | "upload"
	Status      string                 `json:"status"`
	Submissions int                    `json:"submissions"`
	Items       []Item                 `json:"items"`
	Errors      []submission.ItemError `json:"errors"`
	Failure     string                 `json:"failure,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS batches (
    id           TEXT PRIMARY KEY,
    source       TEXT NOT NULL,
    status       TEXT NOT NULL,
    submissions  INTEGER NOT NULL DEFAULT 0,
    failure      TEXT NOT NULL DEFAULT '',
    created_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS batch_items (
    batch_id  TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
    seq       INTEGER NOT NULL,
    identity  TEXT NOT NULL,
    path      TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (batch_id, seq)
);

CREATE TABLE IF NOT EXISTS batch_errors (
    batch_id  TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
    seq       INTEGER NOT NULL,
    identity  TEXT NOT NULL DEFAULT '',
    path      TEXT NOT NULL DEFAULT '',
    kind      TEXT NOT NULL,
    message   TEXT NOT NULL,
    PRIMARY KEY (batch_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_batches_created ON batches(created_at);
`

// Store keeps the batch history in SQLite.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the database at path.
func OpenStore(path string) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an open database and applies the schema.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// Record inserts b with its items and errors in one transaction.
func (s *Store) Record(ctx context.Context, b *Batch) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	return dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO batches (id, source, status, submissions, failure, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			b.ID, b.Source, b.Status, b.Submissions, b.Failure, b.CreatedAt.UnixMilli()); err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}
		for i, it := range b.Items {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO batch_items (batch_id, seq, identity, path) VALUES (?, ?, ?, ?)`,
				b.ID, i, it.Identity, it.Path); err != nil {
				return fmt.Errorf("insert batch item: %w", err)
			}
		}
		for i, e := range b.Errors {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO batch_errors (batch_id, seq, identity, path, kind, message) VALUES (?, ?, ?, ?, ?, ?)`,
				b.ID, i, e.Identity, e.Path, string(e.Kind), e.Message); err != nil {
				return fmt.Errorf("insert batch error: %w", err)
			}
		}
		return nil
	})
}

// Get returns the batch with its items and errors. Generated batch ids are
// matched case-insensitively.
func (s *Store) Get(ctx context.Context, id string) (*Batch, error) {
	if canon, err := idgen.ParseBatch(id); err == nil {
		id = canon
	}
	b := &Batch{ID: id}
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT source, status, submissions, failure, created_at FROM batches WHERE id = ?`, id).
		Scan(&b.Source, &b.Status, &b.Submissions, &b.Failure, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	b.CreatedAt = time.UnixMilli(created).UTC()

	items, err := s.db.QueryContext(ctx,
		`SELECT identity, path FROM batch_items WHERE batch_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("get batch items: %w", err)
	}
	defer items.Close()
	b.Items = []Item{}
	for items.Next() {
		var it Item
		if err := items.Scan(&it.Identity, &it.Path); err != nil {
			return nil, err
		}
		b.Items = append(b.Items, it)
	}
	if err := items.Err(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT identity, path, kind, message FROM batch_errors WHERE batch_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("get batch errors: %w", err)
	}
	defer rows.Close()
	b.Errors = []submission.ItemError{}
	for rows.Next() {
		var e submission.ItemError
		var kind string
		if err := rows.Scan(&e.Identity, &e.Path, &kind, &e.Message); err != nil {
			return nil, err
		}
		e.Kind = submission.Kind(kind)
		b.Errors = append(b.Errors, e)
	}
	return b, rows.Err()
}

// List returns the most recent batches, newest first, without items and
// errors.
func (s *Store) List(ctx context.Context, limit int) ([]Batch, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, status, submissions, failure, created_at FROM batches ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()
	out := []Batch{}
	for rows.Next() {
		var b Batch
		var created int64
		if err := rows.Scan(&b.ID, &b.Source, &b.Status, &b.Submissions, &b.Failure, &created); err != nil {
			return nil, err
		}
		b.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}
