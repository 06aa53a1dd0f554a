// Package sqlite runs the entity store on an embedded SQLite database. Every
// transaction starts with BEGIN IMMEDIATE, so writers are serialized by the
// database lock and a busy database surfaces as a retryable conflict.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kinfolk-ai/kinfolk/internal/db"
	"github.com/kinfolk-ai/kinfolk/internal/util"
	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"
	"github.com/kinfolk-ai/kinfolk/pkg/logger"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type Runner struct {
	db          *sql.DB
	maxRetries  int
	backoff     util.Backoff
	txTimeout   time.Duration
	busyTimeout time.Duration
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMaxRetries bounds attempts for transactions that hit a locked database.
func WithMaxRetries(n int) RunnerOption {
	return func(r *Runner) {
		r.maxRetries = n
	}
}

func WithTxTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.txTimeout = d
	}
}

// WithBusyTimeout sets how long SQLite waits for the write lock before
// reporting SQLITE_BUSY.
func WithBusyTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.busyTimeout = d
	}
}

// Open opens (creating if needed) the database file at path and applies the
// embedded migrations. ":memory:" is accepted and pinned to one connection.
func Open(ctx context.Context, path string, opts ...RunnerOption) (*Runner, error) {
	r := &Runner{
		maxRetries: 5,
		backoff: util.Backoff{
			Initial: 10 * time.Millisecond,
			Max:     200 * time.Millisecond,
			Jitter:  10 * time.Millisecond,
		},
		txTimeout:   30 * time.Second,
		busyTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(r)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_txlock=immediate",
		path,
		r.busyTimeout.Milliseconds(),
	)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if path == ":memory:" {
		conn.SetMaxOpenConns(1)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	if err := db.MigrateSQLite(conn); err != nil {
		conn.Close()
		return nil, err
	}

	r.db = conn
	return r, nil
}

// InTx runs fn in a transaction, retrying when the database is locked.
func (r *Runner) InTx(ctx context.Context, op string, mode db.TxMode, fn func(q *db.Queries) error) error {
	return util.RetryIf(ctx, r.maxRetries, r.backoff, genealogy.IsRetryable, func(ctx context.Context) error {
		err := r.runOnce(ctx, op, fn)
		if genealogy.IsRetryable(err) {
			logger.Debug("[Store] Database busy", "op", op, "mode", mode.String(), "err", err)
		}
		return err
	})
}

func (r *Runner) runOnce(ctx context.Context, op string, fn func(q *db.Queries) error) error {
	if r.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.txTimeout)
		defer cancel()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(op, err)
	}
	defer tx.Rollback()

	if err := fn(db.New(dbtx{tx})); err != nil {
		return classify(op, err)
	}
	if err := tx.Commit(); err != nil {
		return classify(op, err)
	}
	return nil
}

func (r *Runner) DB() db.DBTX {
	return dbtx{r.db}
}

// Dialect reports "sqlite".
func (r *Runner) Dialect() string {
	return "sqlite"
}

func (r *Runner) Close() {
	if err := r.db.Close(); err != nil {
		logger.Warn("[Store] Failed to close sqlite database", "err", err)
	}
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, genealogy.ErrNotFound) ||
		errors.Is(err, genealogy.ErrInvalid) ||
		errors.Is(err, genealogy.ErrConflict) ||
		errors.Is(err, genealogy.ErrStorage) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return genealogy.NewConflictError(op, err)
		}
	}
	return genealogy.NewStorageError(op, err)
}

type sqlIConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var rebound sync.Map

func rebind(query string) string {
	if q, ok := rebound.Load(query); ok {
		return q.(string)
	}
	q := db.RebindNumbered(query)
	rebound.Store(query, q)
	return q
}

type dbtx struct {
	conn sqlIConn
}

func (d dbtx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := d.conn.ExecContext(ctx, rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (d dbtx) Query(ctx context.Context, query string, args ...any) (db.Rows, error) {
	rows, err := d.conn.QueryContext(ctx, rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}

func (d dbtx) QueryRow(ctx context.Context, query string, args ...any) db.Row {
	return d.conn.QueryRowContext(ctx, rebind(query), args...)
}

type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() {
	_ = r.Rows.Close()
}
