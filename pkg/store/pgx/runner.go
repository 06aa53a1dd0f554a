package pgx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kinfolk-ai/kinfolk/internal/db"
	"github.com/kinfolk-ai/kinfolk/internal/util"
	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"
	"github.com/kinfolk-ai/kinfolk/pkg/logger"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
}

// Runner executes store transactions on a pgx pool. Writes run SERIALIZABLE,
// reads REPEATABLE READ READ ONLY. Serialization failures, deadlocks and
// constraint races surface as genealogy.ConflictError and are retried.
type Runner struct {
	pool       *pgxpool.Pool
	maxRetries int
	backoff    util.Backoff
	txTimeout  time.Duration
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

func WithMaxRetries(n int) RunnerOption {
	return func(r *Runner) {
		r.maxRetries = n
	}
}

func WithBackoff(b util.Backoff) RunnerOption {
	return func(r *Runner) {
		r.backoff = b
	}
}

func WithTxTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.txTimeout = d
	}
}

// NewRunner takes ownership of pool; Close closes it.
func NewRunner(pool *pgxpool.Pool, opts ...RunnerOption) *Runner {
	r := &Runner{
		pool:       pool,
		maxRetries: 5,
		backoff: util.Backoff{
			Initial: 20 * time.Millisecond,
			Max:     500 * time.Millisecond,
			Jitter:  20 * time.Millisecond,
		},
		txTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(r)
	}
	return r
}

// Connect opens a pool for url and verifies it with a ping.
func Connect(ctx context.Context, url string, opts ...RunnerOption) (*Runner, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewRunner(pool, opts...), nil
}

// InTx runs fn in a transaction whose isolation follows mode and
// retries conflicts with backoff.
func (r *Runner) InTx(ctx context.Context, op string, mode db.TxMode, fn func(q *db.Queries) error) error {
	attempt := 0
	return util.RetryIf(ctx, r.maxRetries, r.backoff, genealogy.IsRetryable, func(ctx context.Context) error {
		attempt++
		err := r.runOnce(ctx, op, mode, fn)
		if genealogy.IsRetryable(err) {
			logger.Debug("[Store] Transaction conflict", "op", op, "attempt", attempt, "err", err)
		}
		return err
	})
}

func (r *Runner) runOnce(ctx context.Context, op string, mode db.TxMode, fn func(q *db.Queries) error) error {
	if r.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.txTimeout)
		defer cancel()
	}

	opts := pgxv5.TxOptions{IsoLevel: pgxv5.Serializable}
	if mode == db.ReadOnly {
		opts = pgxv5.TxOptions{IsoLevel: pgxv5.RepeatableRead, AccessMode: pgxv5.ReadOnly}
	}

	tx, err := r.pool.BeginTx(ctx, opts)
	if err != nil {
		return classify(op, err)
	}
	defer tx.Rollback(context.Background())

	if err := fn(db.New(dbtx{tx})); err != nil {
		return classify(op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(op, err)
	}
	return nil
}

func (r *Runner) DB() db.DBTX {
	return dbtx{r.pool}
}

func (r *Runner) Dialect() string {
	return "postgres"
}

// Pool exposes the underlying pool for migrations.
func (r *Runner) Pool() *pgxpool.Pool {
	return r.pool
}

func (r *Runner) Close() {
	r.pool.Close()
}

var conflictCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
	"23503": true, // foreign_key_violation, a referenced row was deleted concurrently
	"23505": true, // unique_violation, a concurrent insert won
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

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && conflictCodes[pgErr.Code] {
		return genealogy.NewConflictError(op, err)
	}
	return genealogy.NewStorageError(op, err)
}

type dbtx struct {
	conn pgxIConn
}

func (d dbtx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := d.conn.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (d dbtx) Query(ctx context.Context, query string, args ...any) (db.Rows, error) {
	rows, err := d.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (d dbtx) QueryRow(ctx context.Context, query string, args ...any) db.Row {
	return row{d.conn.QueryRow(ctx, query, args...)}
}

type row struct {
	pgxv5.Row
}

func (r row) Scan(dest ...any) error {
	err := r.Row.Scan(dest...)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return db.ErrNoRows
	}
	return err
}
