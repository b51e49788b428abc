package picker

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/pick-floor/internal/domain"
	"github.com/wms-platform/pick-floor/pkg/errors"
	"github.com/wms-platform/pick-floor/pkg/logging"
)

type fakeMirror struct {
	mu      sync.Mutex
	updates []ItemUpdate
	keys    []string
	fail    func(ItemUpdate) error
}

func (f *fakeMirror) UpdateItem(ctx context.Context, key string, update ItemUpdate) (*ItemUpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	if f.fail != nil {
		if err := f.fail(update); err != nil {
			return nil, err
		}
	}
	f.updates = append(f.updates, update)
	return &ItemUpdateResult{Reconciliation: &domain.ReconciliationContext{Deducted: true}}, nil
}

func (f *fakeMirror) Release(ctx context.Context, key, unitID string, resetProgress bool) (*UnitView, error) {
	return &UnitView{Unit: &domain.WorkUnit{UnitID: unitID}}, nil
}

func (f *fakeMirror) ConfirmCount(ctx context.Context, key string, count domain.BinCount) (*domain.CountResult, error) {
	return &domain.CountResult{SKU: count.SKU, LocationID: count.LocationID}, nil
}

func (f *fakeMirror) SkipReplenishment(ctx context.Context, key string, count domain.BinCount) (*domain.CountResult, error) {
	return &domain.CountResult{SKU: count.SKU, LocationID: count.LocationID, ReplenStatus: domain.ReplenNone}, nil
}

func (f *fakeMirror) setFail(fn func(ItemUpdate) error) {
	f.mu.Lock()
	f.fail = fn
	f.mu.Unlock()
}

func startDispatcher(t *testing.T, mirror Mirror) (*Dispatcher, *LocalStore) {
	t.Helper()
	return startDispatcherWithDepth(t, mirror, 64)
}

func startDispatcherWithDepth(t *testing.T, mirror Mirror, depth int) (*Dispatcher, *LocalStore) {
	t.Helper()
	store := memStore(t, vfs.NewMem())
	t.Cleanup(func() { store.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	d := newDispatcher(mirror, store, logging.Discard(), depth)
	go func() { _ = d.Run(ctx) }()
	return d, store
}

func itemMutation(picked int) *Mutation {
	m := newMutation(MutationUpdateItem, "WU-1")
	m.Update = &ItemUpdate{UnitID: "WU-1", ItemID: "WU-1-01", Picked: picked, Method: domain.PickMethodScan}
	return m
}

func nextResult(t *testing.T, d *Dispatcher) Result {
	t.Helper()
	select {
	case r := <-d.Results():
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no dispatcher result")
		return Result{}
	}
}

func TestDispatcher_SendsInOrderWithKeys(t *testing.T) {
	mirror := &fakeMirror{}
	d, store := startDispatcher(t, mirror)

	first, second := itemMutation(1), itemMutation(2)
	require.NoError(t, d.Submit(first))
	require.NoError(t, d.Submit(second))

	r1, r2 := nextResult(t, d), nextResult(t, d)
	require.Nil(t, r1.Failure)
	require.Nil(t, r2.Failure)
	assert.NotNil(t, r1.Update)

	mirror.mu.Lock()
	assert.Equal(t, []string{first.ID, second.ID}, mirror.keys)
	assert.Equal(t, 2, mirror.updates[1].Picked)
	mirror.mu.Unlock()

	pending, err := store.ListPending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDispatcher_TransportFailureStaysPending(t *testing.T) {
	mirror := &fakeMirror{}
	mirror.setFail(func(ItemUpdate) error { return stderrors.New("connection refused") })
	d, store := startDispatcher(t, mirror)

	m := itemMutation(1)
	require.NoError(t, d.Submit(m))
	r := nextResult(t, d)
	require.NotNil(t, r.Failure)
	assert.True(t, r.Failure.Retryable)

	pending, err := store.ListPending()
	require.NoError(t, err)
	require.Len(t, pending, 1)

	mirror.setFail(nil)
	n, err := d.Resend()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	r = nextResult(t, d)
	assert.Nil(t, r.Failure)
	mirror.mu.Lock()
	assert.Equal(t, []string{m.ID, m.ID}, mirror.keys, "the resend reuses the idempotency key")
	mirror.mu.Unlock()
}

func TestDispatcher_RejectionIsDropped(t *testing.T) {
	mirror := &fakeMirror{}
	mirror.setFail(func(ItemUpdate) error { return errors.ErrNotClaimHolder() })
	d, store := startDispatcher(t, mirror)

	require.NoError(t, d.Submit(itemMutation(1)))
	r := nextResult(t, d)
	require.NotNil(t, r.Failure)
	assert.False(t, r.Failure.Retryable)
	assert.True(t, errors.HasCode(r.Failure, errors.CodeNotClaimHolder))

	pending, err := store.ListPending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDispatcher_LaterWriteSupersedesFailedOne(t *testing.T) {
	mirror := &fakeMirror{}
	mirror.setFail(func(u ItemUpdate) error {
		if u.Picked == 1 {
			return stderrors.New("timeout")
		}
		return nil
	})
	d, store := startDispatcher(t, mirror)

	require.NoError(t, d.Submit(itemMutation(1)))
	require.NotNil(t, nextResult(t, d).Failure)
	require.NoError(t, d.Submit(itemMutation(2)))
	require.Nil(t, nextResult(t, d).Failure)

	pending, err := store.ListPending()
	require.NoError(t, err)
	assert.Empty(t, pending, "the older count must never be replayed over the newer one")
}

func TestDispatcher_ResendCollapsesToLatest(t *testing.T) {
	mirror := &fakeMirror{}
	mirror.setFail(func(ItemUpdate) error { return stderrors.New("offline") })
	d, store := startDispatcher(t, mirror)

	for picked := 1; picked <= 3; picked++ {
		require.NoError(t, d.Submit(itemMutation(picked)))
		require.NotNil(t, nextResult(t, d).Failure)
	}

	mirror.setFail(nil)
	n, err := d.Resend()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Nil(t, nextResult(t, d).Failure)

	mirror.mu.Lock()
	require.Len(t, mirror.updates, 1)
	assert.Equal(t, 3, mirror.updates[0].Picked)
	mirror.mu.Unlock()

	pending, err := store.ListPending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDispatcher_BinCountAndRelease(t *testing.T) {
	d, _ := startDispatcher(t, &fakeMirror{})

	count := newMutation(MutationSkipCount, "WU-1")
	count.Count = &domain.BinCount{SKU: "SKU-A", LocationID: "A-01", ActualQuantity: 4}
	require.NoError(t, d.Submit(count))
	r := nextResult(t, d)
	require.NotNil(t, r.Count)
	assert.Equal(t, domain.ReplenNone, r.Count.ReplenStatus)

	release := newMutation(MutationRelease, "WU-1")
	require.NoError(t, d.Submit(release))
	r = nextResult(t, d)
	require.NotNil(t, r.Unit)
	assert.Equal(t, "WU-1", r.Unit.Unit.UnitID)
}

func TestDispatcher_FullQueueDoesNotBlockSubmit(t *testing.T) {
	gate := make(chan struct{})
	mirror := &fakeMirror{}
	mirror.setFail(func(ItemUpdate) error {
		<-gate
		return nil
	})
	d, store := startDispatcherWithDepth(t, mirror, 1)

	var ids []string
	submitted := make(chan struct{})
	go func() {
		defer close(submitted)
		for i := 0; i < 10; i++ {
			m := newMutation(MutationUpdateItem, "WU-1")
			m.Update = &ItemUpdate{UnitID: "WU-1", ItemID: fmt.Sprintf("WU-1-%02d", i+1), Picked: 1, Method: domain.PickMethodScan}
			assert.NoError(t, d.Submit(m))
			ids = append(ids, m.ID)
		}
	}()

	// nothing reads Results and the mirror is stalled
	select {
	case <-submitted:
	case <-time.After(2 * time.Second):
		t.Fatal("submit blocked on a full queue")
	}

	close(gate)
	for i := 0; i < 10; i++ {
		require.Nil(t, nextResult(t, d).Failure)
	}

	mirror.mu.Lock()
	assert.Equal(t, ids, mirror.keys, "backlog goes out in submission order")
	mirror.mu.Unlock()

	pending, err := store.ListPending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDispatcher_ResendDoesNotWaitForResults(t *testing.T) {
	mirror := &fakeMirror{}
	mirror.setFail(func(ItemUpdate) error { return stderrors.New("offline") })
	d, _ := startDispatcherWithDepth(t, mirror, 1)

	for i := 0; i < 5; i++ {
		m := newMutation(MutationUpdateItem, "WU-1")
		m.Update = &ItemUpdate{UnitID: "WU-1", ItemID: fmt.Sprintf("WU-1-%02d", i+1), Picked: 1, Method: domain.PickMethodScan}
		require.NoError(t, d.Submit(m))
		require.NotNil(t, nextResult(t, d).Failure)
	}

	mirror.setFail(nil)
	n, err := d.Resend()
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	for i := 0; i < n; i++ {
		assert.Nil(t, nextResult(t, d).Failure)
	}
}
