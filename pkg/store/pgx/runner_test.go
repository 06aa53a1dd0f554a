package pgx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/kinfolk-ai/kinfolk/internal/db"
	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"

	"github.com/jackc/pgx/v5/pgconn"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	for code, retryable := range map[string]bool{
		"40001": true,
		"40P01": true,
		"23505": true,
		"23503": true,
		"42P01": false,
	} {
		err := classify("op", fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: code}))
		assert.Equal(t, retryable, genealogy.IsRetryable(err), code)
		if !retryable {
			assert.ErrorIs(t, err, genealogy.ErrStorage, code)
		}
	}

	notFound := genealogy.NewNotFoundError("person", 3)
	assert.Same(t, notFound, classify("op", notFound))
	assert.ErrorIs(t, classify("op", context.Canceled), context.Canceled)
	assert.NoError(t, classify("op", nil))
	assert.ErrorIs(t, classify("op", errors.New("boom")), genealogy.ErrStorage)
}

// Requires a disposable database; the schema is migrated in place.
func openTestRunner(t *testing.T) *Runner {
	t.Helper()
	url := os.Getenv("KINFOLK_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("KINFOLK_TEST_DATABASE_URL not set")
	}
	require.NoError(t, db.MigratePostgres(url))

	r, err := Connect(context.Background(), url, WithMaxRetries(3), WithTxTimeout(10*time.Second))
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestRunner_CommitAndRollback(t *testing.T) {
	r := openTestRunner(t)
	ctx := context.Background()
	source := "pgx-test-" + gonanoid.Must() + ".pdf"

	var id int64
	err := r.InTx(ctx, "insert", db.ReadWrite, func(q *db.Queries) error {
		var err error
		id, err = q.InsertDocument(ctx, db.InsertDocumentParams{Source: source, Page: 1, CreatedAt: time.Now().UTC()})
		return err
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = r.InTx(context.Background(), "cleanup", db.ReadWrite, func(q *db.Queries) error {
			_, err := q.DeleteDocument(context.Background(), id)
			return err
		})
	})

	boom := genealogy.NewValidationError("x", "abort")
	err = r.InTx(ctx, "rolled back", db.ReadWrite, func(q *db.Queries) error {
		if _, err := q.InsertDocument(ctx, db.InsertDocumentParams{Source: source, Page: 2, CreatedAt: time.Now().UTC()}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = r.InTx(ctx, "read", db.ReadOnly, func(q *db.Queries) error {
		pages, err := q.ListDocumentsBySource(ctx, source)
		if err != nil {
			return err
		}
		assert.Len(t, pages, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestRunner_DuplicateIsConflict(t *testing.T) {
	r := openTestRunner(t)
	ctx := context.Background()
	source := "pgx-test-" + gonanoid.Must() + ".pdf"

	var id int64
	require.NoError(t, r.InTx(ctx, "insert", db.ReadWrite, func(q *db.Queries) error {
		var err error
		id, err = q.InsertDocument(ctx, db.InsertDocumentParams{Source: source, Page: 1, CreatedAt: time.Now().UTC()})
		return err
	}))
	t.Cleanup(func() {
		_ = r.InTx(context.Background(), "cleanup", db.ReadWrite, func(q *db.Queries) error {
			_, err := q.DeleteDocument(context.Background(), id)
			return err
		})
	})

	attempts := 0
	err := r.InTx(ctx, "duplicate", db.ReadWrite, func(q *db.Queries) error {
		attempts++
		_, err := q.InsertDocument(ctx, db.InsertDocumentParams{Source: source, Page: 1, CreatedAt: time.Now().UTC()})
		return err
	})
	require.ErrorIs(t, err, genealogy.ErrConflict)
	assert.Equal(t, 3, attempts)
}
