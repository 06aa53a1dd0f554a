package leaselock

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kinfolk-ai/kinfolk/pkg/store/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	runner, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "locks.db"))
	require.NoError(t, err)
	t.Cleanup(runner.Close)
	return New(runner.DB())
}

func TestAcquire_ExclusiveUntilReleased(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	lease, err := c.Acquire(ctx, "reconcile", Options{TTL: time.Minute})
	require.NoError(t, err)

	_, err = c.Acquire(ctx, "reconcile", Options{TTL: time.Minute})
	assert.True(t, errors.Is(err, ErrBusy))

	other, err := c.Acquire(ctx, "other-key", Options{TTL: time.Minute})
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Release(ctx))
	assert.Error(t, lease.Context.Err())

	again, err := c.Acquire(ctx, "reconcile", Options{TTL: time.Minute})
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestAcquire_TakesOverExpiredLease(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	var offset atomic.Int64
	clock := func() time.Time { return time.Now().Add(time.Duration(offset.Load())) }
	c = c.WithClock(clock)

	stale, err := c.Acquire(ctx, "reconcile", Options{TTL: time.Minute})
	require.NoError(t, err)
	defer stale.Release(ctx)

	offset.Store(int64(2 * time.Minute))
	fresh, err := c.Acquire(ctx, "reconcile", Options{TTL: time.Minute})
	require.NoError(t, err)
	assert.NotEqual(t, stale.Token, fresh.Token)
	require.NoError(t, fresh.Release(ctx))
}

func TestWithLease_RunsFunction(t *testing.T) {
	c := newTestClient(t)

	ran := false
	err := c.WithLease(context.Background(), "job", Options{TTL: time.Minute}, func(ctx context.Context) error {
		ran = true
		_, err := c.Acquire(ctx, "job", Options{TTL: time.Minute})
		assert.True(t, errors.Is(err, ErrBusy))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestAcquire_EmptyKey(t *testing.T) {
	_, err := newTestClient(t).Acquire(context.Background(), "", Options{})
	assert.Error(t, err)
}
