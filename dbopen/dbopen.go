// Package dbopen opens the SQLite database behind docmerge's batch history.
//
// Pragmas travel in the DSN as _pragma parameters, so every pooled
// connection gets them, not only the first:
//
//	foreign_keys(1)  journal_mode(WAL)  busy_timeout(10000)  synchronous(NORMAL)
//
// Tests use OpenMemory, which pins the pool to the single connection that
// owns the in-memory database.
package dbopen

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"testing"
)

// Driver is the database/sql driver name registered by modernc.org/sqlite.
const Driver = "sqlite"

const memoryPath = ":memory:"

type options struct {
	busyTimeoutMS int
	createDir     bool
	maxConns      int
	schema        []string
}

// Option tunes Open.
type Option func(*options)

// WithBusyTimeout overrides the busy_timeout pragma, in milliseconds.
func WithBusyTimeout(ms int) Option { return func(o *options) { o.busyTimeoutMS = ms } }

// WithMkdirAll creates the database's parent directory when missing.
func WithMkdirAll() Option { return func(o *options) { o.createDir = true } }

// WithSchema adds DDL run once the database is open. Statements should be
// idempotent (CREATE ... IF NOT EXISTS).
func WithSchema(ddl string) Option { return func(o *options) { o.schema = append(o.schema, ddl) } }

// WithMaxOpenConns caps the connection pool.
func WithMaxOpenConns(n int) Option { return func(o *options) { o.maxConns = n } }

// dsn appends the pragma parameters to path.
func (o *options) dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", o.busyTimeoutMS))
	q.Add("_pragma", "synchronous(NORMAL)")
	return path + "?" + q.Encode()
}

// Open opens (creating if needed) the SQLite database at path and applies
// the schema options in order.
func Open(path string, opts ...Option) (*sql.DB, error) {
	o := options{busyTimeoutMS: 10_000}
	for _, fn := range opts {
		fn(&o)
	}

	if o.createDir && path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: create dir for %s: %w", path, err)
		}
	}

	db, err := sql.Open(Driver, o.dsn(path))
	if err != nil {
		return nil, fmt.Errorf("dbopen: open %s: %w", path, err)
	}
	if o.maxConns > 0 {
		db.SetMaxOpenConns(o.maxConns)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbopen: ping %s: %w", path, err)
	}
	for i, ddl := range o.schema {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("dbopen: schema #%d: %w", i+1, err)
		}
	}
	return db, nil
}

// OpenMemory opens a private in-memory database for t and closes it on
// cleanup. It fails the test on error.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(memoryPath, append([]Option{WithMaxOpenConns(1)}, opts...)...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
