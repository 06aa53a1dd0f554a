package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kinfolk-ai/kinfolk/internal/db"
	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestRunner(t *testing.T) *Runner {
	t.Helper()
	r, err := Open(context.Background(), filepath.Join(t.TempDir(), "runner.db"), WithMaxRetries(2))
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func insertPage(ctx context.Context, q *db.Queries, page int) (int64, error) {
	return q.InsertDocument(ctx, db.InsertDocumentParams{
		Source:    "register.pdf",
		Page:      page,
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	})
}

func TestRunner_Dialect(t *testing.T) {
	r := openTestRunner(t)
	assert.Equal(t, "sqlite", r.Dialect())
}

func TestRunner_CommitAndRollback(t *testing.T) {
	r := openTestRunner(t)
	ctx := context.Background()

	var id int64
	require.NoError(t, r.InTx(ctx, "insert", db.ReadWrite, func(q *db.Queries) error {
		var err error
		id, err = insertPage(ctx, q, 1)
		return err
	}))

	boom := genealogy.NewValidationError("page", "abort")
	err := r.InTx(ctx, "rolled back", db.ReadWrite, func(q *db.Queries) error {
		if _, err := insertPage(ctx, q, 2); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, genealogy.ErrInvalid)
	assert.Same(t, boom, err)

	require.NoError(t, r.InTx(ctx, "read", db.ReadOnly, func(q *db.Queries) error {
		doc, err := q.GetDocument(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "register.pdf", doc.Source)

		pages, err := q.ListDocumentsBySource(ctx, "register.pdf")
		require.NoError(t, err)
		assert.Len(t, pages, 1)
		return nil
	}))
}

func TestRunner_ConstraintIsStorageError(t *testing.T) {
	r := openTestRunner(t)
	ctx := context.Background()

	require.NoError(t, r.InTx(ctx, "insert", db.ReadWrite, func(q *db.Queries) error {
		_, err := insertPage(ctx, q, 1)
		return err
	}))

	attempts := 0
	err := r.InTx(ctx, "duplicate", db.ReadWrite, func(q *db.Queries) error {
		attempts++
		_, err := insertPage(ctx, q, 1)
		return err
	})
	require.ErrorIs(t, err, genealogy.ErrStorage)
	assert.False(t, genealogy.IsRetryable(err))
	assert.Equal(t, 1, attempts)
}

func TestRunner_MissingRowScansToErrNoRows(t *testing.T) {
	r := openTestRunner(t)
	var n int64
	err := r.DB().QueryRow(context.Background(), "SELECT id FROM documents WHERE id = $1", 42).Scan(&n)
	assert.ErrorIs(t, err, db.ErrNoRows)
}

func TestClassify_PassesThroughDomainErrors(t *testing.T) {
	for _, err := range []error{
		genealogy.NewNotFoundError("person", 1),
		genealogy.NewValidationError("name", "empty"),
		genealogy.NewConflictError("merge", nil),
		context.Canceled,
	} {
		assert.Same(t, err, classify("op", err))
	}
	assert.NoError(t, classify("op", nil))
	assert.ErrorIs(t, classify("op", errors.New("disk full")), genealogy.ErrStorage)
}
