// Package sql contains the dialect-agnostic half of the event store and
// projection engine (C5-C10): the stream iterator, the generic event
// store core, the gap detector, the merged stream, the projector/query
// engine, and the projection manager. Dialect-specific behavior (DDL,
// row serialization, write locks, identifier quoting, error
// classification, metadata-matcher SQL) is injected through the Dialect
// and PersistenceStrategy interfaces and implemented per database in
// driver/sql/postgres, driver/sql/mysql and driver/sql/mariadb.
package sql

import (
	"context"
	"database/sql"
)

// Execer is the subset of *sql.DB/*sql.Tx/*sql.Conn used to run
// statements that don't return rows.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Queryer is the subset of *sql.DB/*sql.Tx/*sql.Conn used to run queries.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// DB is the full surface the event store needs from a connection: it is
// satisfied by *sql.DB. Kept as an interface so tests can substitute
// sqlmock and so the store can be handed a *sql.Conn-bound transaction.
type DB interface {
	Execer
	Queryer
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Conn(ctx context.Context) (*sql.Conn, error)
}
