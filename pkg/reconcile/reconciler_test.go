package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"
	"github.com/kinfolk-ai/kinfolk/pkg/leaselock"
	"github.com/kinfolk-ai/kinfolk/pkg/merge"
	"github.com/kinfolk-ai/kinfolk/pkg/store/base"
	"github.com/kinfolk-ai/kinfolk/pkg/store/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	store      *base.EntityDBStorage
	runner     *sqlite.Runner
	reconciler *Reconciler
}

func newEnv(t *testing.T, opts ...ReconcilerOption) env {
	t.Helper()
	runner, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "reconcile.db"))
	require.NoError(t, err)
	t.Cleanup(runner.Close)

	s := base.NewEntityDBStorage(runner)
	finder := newTestFinder(t, s, DefaultFinderConfig())
	return env{
		store:      s,
		runner:     runner,
		reconciler: NewReconciler(finder, merge.NewManager(runner), opts...),
	}
}

func (e env) person(t *testing.T, name, birth, death string) int64 {
	t.Helper()
	ctx := context.Background()
	p, err := e.store.AddPerson(ctx, genealogy.Person{PrimaryName: name})
	require.NoError(t, err)
	if birth != "" {
		_, err = e.store.AddEvent(ctx, genealogy.Event{PersonID: p.ID, EventType: genealogy.EventBirth, Date: genealogy.StringPtr(birth)})
		require.NoError(t, err)
	}
	if death != "" {
		_, err = e.store.AddEvent(ctx, genealogy.Event{PersonID: p.ID, EventType: genealogy.EventDeath, Date: genealogy.StringPtr(death)})
		require.NoError(t, err)
	}
	return p.ID
}

func TestRun_AutoApproveRecomputesAfterEachMerge(t *testing.T) {
	e := newEnv(t)
	a := e.person(t, "John Smith", "1850", "")
	b := e.person(t, "John Smith", "1850", "")
	c := e.person(t, "John Smith", "1850", "")

	report, err := e.reconciler.Run(context.Background(), Policy{AutoApprove: true, MergedBy: "auto"})
	require.NoError(t, err)
	require.Len(t, report.Merges, 2)
	assert.Equal(t, a, report.Merges[0].KeepID)
	assert.Equal(t, b, report.Merges[0].MergedID)
	assert.Equal(t, a, report.Merges[1].KeepID)
	assert.Equal(t, c, report.Merges[1].MergedID)
	assert.Zero(t, report.Remaining)

	people, err := e.store.ListPeople(context.Background())
	require.NoError(t, err)
	require.Len(t, people, 1)
	assert.Equal(t, a, people[0].ID)

	merges, err := e.store.ListMerges(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, merges, 2)
	assert.Equal(t, "auto", merges[0].MergedBy)
}

func TestRun_AutoThresholdLeavesWeakerCandidates(t *testing.T) {
	e := newEnv(t)
	e.person(t, "John Smith", "", "")
	e.person(t, "Jon Smith", "", "")

	report, err := e.reconciler.Run(context.Background(), Policy{AutoApprove: true})
	require.NoError(t, err)
	assert.Empty(t, report.Merges)
	assert.Equal(t, 1, report.Remaining)
}

func TestRun_VetoNeverAutoApproved(t *testing.T) {
	e := newEnv(t)
	e.person(t, "John Smith", "1850", "1920")
	e.person(t, "John Smith", "1851", "1920")

	report, err := e.reconciler.Run(context.Background(), Policy{AutoApprove: true, AutoThreshold: 0.5})
	require.NoError(t, err)
	assert.Empty(t, report.Merges)
	assert.Equal(t, 1, report.Remaining)
}

func TestRun_ApproverAskedOncePerPair(t *testing.T) {
	e := newEnv(t)
	e.person(t, "John Smith", "1850", "")
	e.person(t, "John Smith", "1850", "")
	e.person(t, "Jon Smith", "", "")

	asked := map[[2]int64]int{}
	policy := Policy{Approver: func(_ context.Context, c Candidate) (bool, error) {
		asked[[2]int64{c.PersonA, c.PersonB}]++
		return false, nil
	}}

	report, err := e.reconciler.Run(context.Background(), policy)
	require.NoError(t, err)
	assert.Empty(t, report.Merges)
	assert.Equal(t, 3, report.Rejected)
	for pair, n := range asked {
		assert.Equal(t, 1, n, "pair %v", pair)
	}
}

func TestRun_ApproverMergesAndStops(t *testing.T) {
	e := newEnv(t)
	a := e.person(t, "John Smith", "1850", "")
	e.person(t, "John Smith", "1850", "")
	e.person(t, "Jon Smith", "", "")

	calls := 0
	policy := Policy{Approver: func(context.Context, Candidate) (bool, error) {
		calls++
		if calls == 1 {
			return true, nil
		}
		return false, ErrStop
	}}

	report, err := e.reconciler.Run(context.Background(), policy)
	require.NoError(t, err)
	require.Len(t, report.Merges, 1)
	assert.Equal(t, a, report.Merges[0].KeepID)
	assert.True(t, report.Stopped)
	assert.Equal(t, 1, report.Remaining)
}

func TestRun_MaxMerges(t *testing.T) {
	e := newEnv(t)
	for range 3 {
		e.person(t, "John Smith", "1850", "")
	}

	report, err := e.reconciler.Run(context.Background(), Policy{AutoApprove: true, MaxMerges: 1})
	require.NoError(t, err)
	assert.Len(t, report.Merges, 1)
	assert.Equal(t, 1, report.Remaining)
}

type staleMerger struct {
	calls int
}

func (m *staleMerger) Merge(_ context.Context, _, mergeID int64, _ merge.MergeOptions) (merge.MergeReport, error) {
	m.calls++
	return merge.MergeReport{}, genealogy.NewNotFoundError("person", mergeID)
}

func TestRun_StaleCandidateSkipped(t *testing.T) {
	e := newEnv(t)
	e.person(t, "John Smith", "1850", "")
	e.person(t, "John Smith", "1850", "")

	merger := &staleMerger{}
	r := NewReconciler(e.reconciler.Finder(), merger)

	report, err := r.Run(context.Background(), Policy{AutoApprove: true})
	require.NoError(t, err)
	assert.Equal(t, 1, merger.calls)
	assert.Equal(t, 1, report.Stale)
	assert.Empty(t, report.Merges)
}

func TestRun_WithLeaseLock(t *testing.T) {
	e := newEnv(t)
	e.person(t, "John Smith", "1850", "")
	e.person(t, "John Smith", "1850", "")

	locks := leaselock.New(e.runner.DB())
	r := NewReconciler(e.reconciler.Finder(), merge.NewManager(e.runner), WithLocker(locks, leaselock.Options{TTL: time.Minute}))

	held, err := locks.Acquire(context.Background(), LockKey, leaselock.Options{TTL: time.Minute})
	require.NoError(t, err)
	_, err = r.Run(context.Background(), Policy{AutoApprove: true})
	assert.True(t, errors.Is(err, leaselock.ErrBusy))
	require.NoError(t, held.Release(context.Background()))

	report, err := r.Run(context.Background(), Policy{AutoApprove: true})
	require.NoError(t, err)
	assert.Len(t, report.Merges, 1)
}

func TestRun_InvalidPolicy(t *testing.T) {
	e := newEnv(t)

	_, err := e.reconciler.Run(context.Background(), Policy{AutoThreshold: 1.5})
	assert.True(t, errors.Is(err, genealogy.ErrInvalid))
	_, err = e.reconciler.Run(context.Background(), Policy{MaxMerges: -1})
	assert.True(t, errors.Is(err, genealogy.ErrInvalid))
}
