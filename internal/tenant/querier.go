package tenant

import (
	"context"
	"database/sql"

	"github.com/marble-dav/marble/internal/metadata"
)

// dbQuerier mirrors metadata's unexported querier interface so this package
// can pass either a *sql.DB or a transaction-bound value to repository
// constructors without metadata exporting the interface itself.
type dbQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// txQuerier adapts a *metadata.Tx to dbQuerier so repositories can run
// inside the same transaction the facade uses for atomic multi-row writes.
type txQuerier struct {
	tx *metadata.Tx
}

func (q txQuerier) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.tx.Underlying().ExecContext(ctx, query, args...)
}

func (q txQuerier) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.tx.Underlying().QueryContext(ctx, query, args...)
}

func (q txQuerier) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return q.tx.Underlying().QueryRowContext(ctx, query, args...)
}
