// Package db holds the SQL shared by every storage backend. Queries are
// written once with $N placeholders; backends that use another placeholder
// syntax rebind them in their DBTX adapter.
package db

import (
	"context"
	"database/sql"
)

// ErrNoRows is returned by Row.Scan when a query matched nothing. Backends
// translate their native sentinel to this one.
var ErrNoRows = sql.ErrNoRows

type Row interface {
	Scan(dest ...any) error
}

type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// DBTX is satisfied by a pool, a connection or a transaction of any backend.
type DBTX interface {
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
}

// Queries holds every statement, bound to a connection or transaction.
type Queries struct {
	db DBTX
}

// New binds the queries to db.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// TxMode selects the isolation a Runner uses for a transaction.
type TxMode int

const (
	ReadWrite TxMode = iota
	ReadOnly
)

func (m TxMode) String() string {
	if m == ReadOnly {
		return "read-only"
	}
	return "read-write"
}

// Runner owns a connection pool and executes functions inside scoped
// transactions. fn may be invoked more than once when the backend reports a
// serialization conflict, so it must not leak state between attempts.
type Runner interface {
	InTx(ctx context.Context, op string, mode TxMode, fn func(q *Queries) error) error
	DB() DBTX
	Dialect() string
	Close()
}

func collect[T any](rows Rows, err error, scan func(Rows) (T, error)) ([]T, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []T{}
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
