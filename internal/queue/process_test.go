package queue

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kinfolk-ai/kinfolk/internal/app"
	"github.com/kinfolk-ai/kinfolk/internal/config"
	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"
	"github.com/kinfolk-ai/kinfolk/pkg/leaselock"
	"github.com/kinfolk-ai/kinfolk/pkg/reconcile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	queue string
	body  []byte
}

type recordingPublisher struct {
	msgs []published
}

func (p *recordingPublisher) Publish(queueName string, data []byte) error {
	p.msgs = append(p.msgs, published{queue: queueName, body: data})
	return nil
}

type failingPublisher struct {
	calls int
}

func (p *failingPublisher) Publish(string, []byte) error {
	p.calls++
	return errors.New("channel closed")
}

func newProcessor(t *testing.T) (*Processor, *recordingPublisher) {
	t.Helper()
	cfg := config.Default()
	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "queue.db")

	a, err := app.New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	pub := &recordingPublisher{}
	return &Processor{App: a, Publisher: pub}, pub
}

const johnSmith = `{
  "people": [{"primary_name": "John Smith", "name_variants": [], "confidence": 0.9}],
  "events": [{"person_name": "John Smith", "event_type": "birth", "date": "1850", "confidence": 0.9}],
  "relationships": []
}`

func extractionBody(t *testing.T, msg ExtractionMsg) []byte {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	return body
}

func TestProcessExtraction_CreatesDocumentAndStores(t *testing.T) {
	p, pub := newProcessor(t)
	ctx := context.Background()
	off := false

	err := p.Process(ctx, ExtractionQueue, extractionBody(t, ExtractionMsg{
		Source:     "census.pdf",
		Page:       1,
		OCRText:    "John Smith born 1850",
		Result:     json.RawMessage(johnSmith),
		FamilyName: "Smith",
		AutoMerge:  &off,
	}))
	require.NoError(t, err)
	assert.Empty(t, pub.msgs)

	people, err := p.App.Store.FindPersonByName(ctx, "John Smith")
	require.NoError(t, err)
	require.Len(t, people, 1)
	assert.Equal(t, "Smith", genealogy.Deref(people[0].FamilyName))

	sources, err := p.App.Store.ListDocumentSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "census.pdf", sources[0].Source)
}

func TestProcessExtraction_AutoMergeOnIngest(t *testing.T) {
	p, _ := newProcessor(t)
	ctx := context.Background()

	for page := 1; page <= 2; page++ {
		err := p.Process(ctx, ExtractionQueue, extractionBody(t, ExtractionMsg{
			Source:  "census.pdf",
			Page:    page,
			OCRText: "page",
			Result:  json.RawMessage(johnSmith),
		}))
		require.NoError(t, err)
	}

	people, err := p.App.Store.ListPeople(ctx)
	require.NoError(t, err)
	assert.Len(t, people, 1)

	merges, err := p.App.Store.ListMerges(ctx, 0)
	require.NoError(t, err)
	require.Len(t, merges, 1)
	assert.Equal(t, "ingest", merges[0].MergedBy)
}

func TestProcessExtraction_DefersWhenReconcileBusy(t *testing.T) {
	p, pub := newProcessor(t)
	ctx := context.Background()

	held, err := p.App.Locks.Acquire(ctx, reconcile.LockKey, leaselock.Options{TTL: time.Minute})
	require.NoError(t, err)
	defer held.Release(ctx)

	err = p.Process(ctx, ExtractionQueue, extractionBody(t, ExtractionMsg{
		Source: "census.pdf",
		Page:   1,
		Result: json.RawMessage(johnSmith),
	}))
	require.NoError(t, err)

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, ReconcileQueue, pub.msgs[0].queue)
	var msg ReconcileMsg
	require.NoError(t, json.Unmarshal(pub.msgs[0].body, &msg))
	assert.Equal(t, "ingest", msg.MergedBy)
}

func TestProcessExtraction_RedeliveryAfterFailedAutoMerge(t *testing.T) {
	p, _ := newProcessor(t)
	pub := &failingPublisher{}
	p.Publisher = pub
	ctx := context.Background()

	held, err := p.App.Locks.Acquire(ctx, reconcile.LockKey, leaselock.Options{TTL: time.Minute})
	require.NoError(t, err)
	defer held.Release(ctx)

	body := extractionBody(t, ExtractionMsg{
		Source: "census.pdf",
		Page:   1,
		Result: json.RawMessage(johnSmith),
	})

	res, err := p.Ingest(ctx, ExtractionMsg{Source: "census.pdf", Page: 1, Result: json.RawMessage(johnSmith)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Extraction.PeopleCreated)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "channel closed")

	// At-least-once delivery can still hand the job over again.
	require.NoError(t, p.Process(ctx, ExtractionQueue, body))
	assert.Equal(t, 2, pub.calls)

	people, err := p.App.Store.FindPersonByName(ctx, "John Smith")
	require.NoError(t, err)
	require.Len(t, people, 1)

	detail, err := p.App.Store.GetPersonDetail(ctx, people[0].ID)
	require.NoError(t, err)
	assert.Len(t, detail.Events, 1)
}

func TestProcessExtraction_PermanentFailures(t *testing.T) {
	p, _ := newProcessor(t)
	ctx := context.Background()

	err := p.Process(ctx, ExtractionQueue, []byte(`{not json`))
	assert.True(t, IsPermanent(err))

	err = p.Process(ctx, ExtractionQueue, extractionBody(t, ExtractionMsg{DocumentID: 99, Result: json.RawMessage(johnSmith)}))
	assert.ErrorIs(t, err, genealogy.ErrNotFound)
	assert.True(t, IsPermanent(err))

	err = p.Process(ctx, ExtractionQueue, extractionBody(t, ExtractionMsg{Source: "a.pdf", Page: 1}))
	assert.ErrorIs(t, err, genealogy.ErrInvalid)

	err = p.Process(ctx, ExtractionQueue, extractionBody(t, ExtractionMsg{Source: "a.pdf", Page: 1, ResultKey: "results/a.json"}))
	assert.ErrorIs(t, err, genealogy.ErrInvalid)
}

func TestProcessReconcile(t *testing.T) {
	p, _ := newProcessor(t)
	ctx := context.Background()
	off := false

	for page := 1; page <= 2; page++ {
		require.NoError(t, p.Process(ctx, ExtractionQueue, extractionBody(t, ExtractionMsg{
			Source:    "census.pdf",
			Page:      page,
			Result:    json.RawMessage(johnSmith),
			AutoMerge: &off,
		})))
	}

	require.NoError(t, p.Process(ctx, ReconcileQueue, nil))

	merges, err := p.App.Store.ListMerges(ctx, 0)
	require.NoError(t, err)
	require.Len(t, merges, 1)
	assert.Equal(t, "worker", merges[0].MergedBy)
}

func TestProcessDelete(t *testing.T) {
	p, _ := newProcessor(t)
	ctx := context.Background()
	off := false

	require.NoError(t, p.Process(ctx, ExtractionQueue, extractionBody(t, ExtractionMsg{
		Source:    "census.pdf",
		Page:      1,
		Result:    json.RawMessage(johnSmith),
		AutoMerge: &off,
	})))
	sources, err := p.App.Store.ListDocumentSources(ctx)
	require.NoError(t, err)
	docID := sources[0].Pages[0].ID

	body, _ := json.Marshal(DeleteMsg{DocumentID: docID, FileKey: "files/census.pdf"})
	require.NoError(t, p.Process(ctx, DeleteQueue, body))

	people, err := p.App.Store.ListPeople(ctx)
	require.NoError(t, err)
	assert.Empty(t, people)

	body, _ = json.Marshal(DeleteMsg{})
	assert.True(t, IsPermanent(p.Process(ctx, DeleteQueue, body)))
}

func TestProcess_UnknownQueue(t *testing.T) {
	p, _ := newProcessor(t)
	err := p.Process(context.Background(), "nope", nil)
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(genealogy.NewValidationError("x", "bad")))
	assert.True(t, IsPermanent(genealogy.NewNotFoundError("person", 1)))
	assert.False(t, IsPermanent(genealogy.NewConflictError("merge", errors.New("40001"))))
	assert.False(t, IsPermanent(errors.New("connection reset")))
}
