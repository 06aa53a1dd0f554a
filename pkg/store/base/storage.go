// Package base implements store.EntityStorage once, on top of any db.Runner.
package base

import (
	"context"
	"errors"
	"time"

	"github.com/kinfolk-ai/kinfolk/internal/db"
	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"
	"github.com/kinfolk-ai/kinfolk/pkg/logger"
	"github.com/kinfolk-ai/kinfolk/pkg/store"
)

// EntityDBStorage is the SQL-backed entity store. It owns no connections of
// its own; the runner decides isolation and retries.
type EntityDBStorage struct {
	runner   db.Runner
	notifier store.Notifier
	now      func() time.Time
}

// EntityDBStorageOption configures an EntityDBStorage.
type EntityDBStorageOption func(*EntityDBStorage)

// WithNotifier publishes change events after each commit.
func WithNotifier(n store.Notifier) EntityDBStorageOption {
	return func(s *EntityDBStorage) {
		s.notifier = n
	}
}

// WithClock overrides the timestamp source for created_at columns.
func WithClock(now func() time.Time) EntityDBStorageOption {
	return func(s *EntityDBStorage) {
		s.now = now
	}
}

// NewEntityDBStorage works against either runner; SQL is written once.
func NewEntityDBStorage(runner db.Runner, opts ...EntityDBStorageOption) *EntityDBStorage {
	s := &EntityDBStorage{
		runner:   runner,
		notifier: store.NopNotifier{},
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

var _ store.EntityStorage = (*EntityDBStorage)(nil)

func (s *EntityDBStorage) Runner() db.Runner {
	return s.runner
}

func (s *EntityDBStorage) read(ctx context.Context, op string, fn func(q *db.Queries) error) error {
	return s.runner.InTx(ctx, op, db.ReadOnly, fn)
}

func (s *EntityDBStorage) write(ctx context.Context, op string, fn func(q *db.Queries) error) error {
	return s.runner.InTx(ctx, op, db.ReadWrite, fn)
}

// notify publishes after commit and turns a failure into a warning string.
func (s *EntityDBStorage) notify(ctx context.Context, event store.Event) []string {
	if err := s.notifier.Notify(ctx, event); err != nil {
		logger.Warn("[Store] Downstream notification failed", "event", event.Type, "err", err)
		return []string{"downstream notification failed: " + err.Error()}
	}
	return nil
}

func notFound(err error, resource string, id int64) error {
	if errors.Is(err, db.ErrNoRows) {
		return genealogy.NewNotFoundError(resource, id)
	}
	return err
}

// RequirePerson loads a person inside q, mapping a missing row to NotFoundError.
func RequirePerson(ctx context.Context, q *db.Queries, id int64) (genealogy.Person, error) {
	if id <= 0 {
		return genealogy.Person{}, genealogy.NewValidationError("person_id", "must be positive")
	}
	p, err := q.GetPerson(ctx, id)
	if err != nil {
		return genealogy.Person{}, notFound(err, "person", id)
	}
	return p, nil
}

func requireDocument(ctx context.Context, q *db.Queries, id int64) (genealogy.Document, error) {
	if id <= 0 {
		return genealogy.Document{}, genealogy.NewValidationError("document_id", "must be positive")
	}
	d, err := q.GetDocument(ctx, id)
	if err != nil {
		return genealogy.Document{}, notFound(err, "document", id)
	}
	return d, nil
}
