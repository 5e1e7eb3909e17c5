// Package metadata implements the relational metadata store: the
// UserRepository, FolderRepository and FileRepository of spec §4.3, over a
// database/sql handle. The schema itself (spec §6) is normally created by
// an external migration runner; DB.Migrate (schema.go) can also apply it
// to a fresh database.
package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Options configures the database/sql handle. Mirrors the PRAGMA-tuning
// approach of a thin sqlite wrapper: sane defaults, explicit overrides.
type Options struct {
	JournalMode     string        // default "WAL"
	Synchronous     string        // default "NORMAL"
	BusyTimeout     time.Duration // default 5s
	ForeignKeys     *bool         // default true
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// DB is a thin wrapper over *sql.DB; it has no knowledge of folders or
// files, only of opening a correctly-tuned connection and handing out
// transactions.
type DB struct {
	sql *sql.DB
}

// Open connects to a SQLite database at dsn (spec §6 database_url) and
// applies the configured PRAGMAs.
func Open(dsn string, opts Options) (*DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("metadata: empty database_url")
	}

	journal := opts.JournalMode
	if journal == "" {
		journal = "WAL"
	}
	sync := opts.Synchronous
	if sync == "" {
		sync = "NORMAL"
	}
	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("metadata: open %q: %w", dsn, err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pragmas := []string{
		fmt.Sprintf("PRAGMA journal_mode=%s", journal),
		fmt.Sprintf("PRAGMA synchronous=%s", sync),
		fmt.Sprintf("PRAGMA busy_timeout=%d", busy.Milliseconds()),
	}
	fk := true
	if opts.ForeignKeys != nil {
		fk = *opts.ForeignKeys
	}
	if fk {
		pragmas = append(pragmas, "PRAGMA foreign_keys=ON")
	} else {
		pragmas = append(pragmas, "PRAGMA foreign_keys=OFF")
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("metadata: apply %q: %w", p, err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("metadata: ping: %w", err)
	}

	return &DB{sql: db}, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error { return d.sql.Close() }

// Underlying exposes the raw *sql.DB. Repositories are built over it
// (NewUserRepository(db.Underlying()) and the like), and tests use it for
// schema setup.
func (d *DB) Underlying() *sql.DB { return d.sql }

// querier is satisfied by both *sql.DB and *sql.Tx, letting repository
// methods run unchanged whether or not they're inside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ querier = (*sql.DB)(nil)
	_ querier = (*sql.Tx)(nil)
)

// Tx wraps a *sql.Tx for atomic multi-row changes (MOVE of a folder
// subtree, recursive DELETE - spec §4.3).
type Tx struct {
	tx *sql.Tx
}

// BeginTx starts a new transaction.
func (d *DB) BeginTx(ctx context.Context) (*Tx, error) {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("metadata: begin tx: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error { return t.tx.Commit() }

// Rollback rolls back the transaction. Calling Rollback after a successful
// Commit is a no-op error that callers should ignore via defer.
func (t *Tx) Rollback() error { return t.tx.Rollback() }

// Underlying exposes the raw *sql.Tx so a caller outside this package can
// bind a repository to the transaction (the querier interface is
// unexported, but its method set is satisfied structurally).
func (t *Tx) Underlying() *sql.Tx { return t.tx }
