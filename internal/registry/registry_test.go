package registry_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/notifier/internal/codec"
	"github.com/shaharia-lab/notifier/internal/registry"
	"github.com/shaharia-lab/notifier/internal/storage"
	"github.com/shaharia-lab/notifier/internal/storage/mocks"
)

type recordedEvent struct {
	Type    string
	Payload map[string]string
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) Publish(eventType string, payload map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Type: eventType, Payload: payload})
}

func (r *eventRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func newRegistry(t *testing.T, store storage.StateStore, opts ...registry.Option) *registry.Registry {
	t.Helper()
	r := registry.New(registry.DefaultID, registry.StateKey(registry.DefaultID), store, opts...)
	t.Cleanup(r.Close)
	return r
}

func storedMapping(t *testing.T, store *storage.MemoryStateStore) map[string]registry.Subscription {
	t.Helper()
	raw, found, err := store.Get(context.Background(), "subscriptions")
	require.NoError(t, err)
	require.True(t, found)
	m, err := codec.Decode[map[string]registry.Subscription](raw)
	require.NoError(t, err)
	return m
}

func TestSubscribe_IdenticalSubscriptionWritesOnce(t *testing.T) {
	store := storage.NewMemoryStateStore()
	events := &eventRecorder{}
	r := newRegistry(t, store, registry.WithEventPublisher(events))
	ctx := context.Background()

	s := registry.Subscription{Address: "a@x.com", DisplayName: "Alice"}
	require.NoError(t, r.Subscribe(ctx, s))
	require.NoError(t, r.Subscribe(ctx, s))

	assert.Equal(t, 1, store.Puts())
	assert.Equal(t, []string{registry.EventSubscriptionCreated}, events.types())
}

func TestSubscribe_ChangedDisplayNameWritesAgain(t *testing.T) {
	store := storage.NewMemoryStateStore()
	events := &eventRecorder{}
	r := newRegistry(t, store, registry.WithEventPublisher(events))
	ctx := context.Background()

	require.NoError(t, r.Subscribe(ctx, registry.Subscription{Address: "a@x.com", DisplayName: "Alice"}))
	require.NoError(t, r.Subscribe(ctx, registry.Subscription{Address: "a@x.com", DisplayName: "Alicia"}))

	assert.Equal(t, 2, store.Puts())
	m := storedMapping(t, store)
	require.Len(t, m, 1)
	assert.Equal(t, "Alicia", m["a@x.com"].DisplayName)
	assert.Equal(t, "a@x.com", m["a@x.com"].Address)
	assert.Equal(t, []string{registry.EventSubscriptionCreated, registry.EventSubscriptionUpdated}, events.types())
	assert.Equal(t, registry.DefaultID, events.events[1].Payload["registry_id"])
}

func TestSubscribe_EmptyAddress(t *testing.T) {
	store := storage.NewMemoryStateStore()
	r := newRegistry(t, store)

	err := r.Subscribe(context.Background(), registry.Subscription{DisplayName: "Nobody"})
	assert.ErrorIs(t, err, registry.ErrEmptyAddress)
	assert.Equal(t, 0, store.Puts())
}

func TestUnsubscribe(t *testing.T) {
	t.Run("missing address on empty registry writes nothing", func(t *testing.T) {
		store := storage.NewMemoryStateStore()
		r := newRegistry(t, store)

		require.NoError(t, r.Unsubscribe(context.Background(), "missing@x.com"))
		assert.Equal(t, 0, store.Puts())
	})

	t.Run("present address is removed", func(t *testing.T) {
		store := storage.NewMemoryStateStore()
		events := &eventRecorder{}
		r := newRegistry(t, store, registry.WithEventPublisher(events))
		ctx := context.Background()

		require.NoError(t, r.Subscribe(ctx, registry.Subscription{Address: "a@x.com", DisplayName: "A"}))
		require.NoError(t, r.Subscribe(ctx, registry.Subscription{Address: "b@x.com", DisplayName: "B"}))
		require.NoError(t, r.Unsubscribe(ctx, "a@x.com"))
		require.NoError(t, r.Unsubscribe(ctx, "a@x.com"))

		assert.Equal(t, 3, store.Puts())
		m := storedMapping(t, store)
		assert.NotContains(t, m, "a@x.com")
		assert.Contains(t, m, "b@x.com")
		assert.Contains(t, events.types(), registry.EventSubscriptionRemoved)
	})
}

func TestSnapshot(t *testing.T) {
	store := storage.NewMemoryStateStore()
	r := newRegistry(t, store)
	ctx := context.Background()

	empty, err := r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	for _, addr := range []string{"c@x.com", "a@x.com", "b@x.com"} {
		require.NoError(t, r.Subscribe(ctx, registry.Subscription{Address: addr, DisplayName: addr}))
	}

	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 3)
	assert.Equal(t, "a@x.com", snap[0].Address)
	assert.Equal(t, "c@x.com", snap[2].Address)

	// The snapshot is a copy.
	snap[0].DisplayName = "changed"
	again, err := r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", again[0].DisplayName)
}

func TestConcurrentSubscribesLoseNoUpdates(t *testing.T) {
	store := storage.NewMemoryStateStore()
	r := newRegistry(t, store)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- r.Subscribe(ctx, registry.Subscription{
				Address:     fmt.Sprintf("user%d@x.com", i),
				DisplayName: fmt.Sprintf("User %d", i),
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Len(t, storedMapping(t, store), n)
	assert.Equal(t, n, store.Puts())
}

func TestStorageUnavailable(t *testing.T) {
	ctx := context.Background()

	t.Run("read fails", func(t *testing.T) {
		store := &mocks.MockStateStore{}
		store.On("Get", mock.Anything, "subscriptions").
			Return(nil, false, fmt.Errorf("get: %w", storage.ErrUnavailable))
		r := newRegistry(t, store)

		err := r.Subscribe(ctx, registry.Subscription{Address: "a@x.com"})
		assert.ErrorIs(t, err, storage.ErrUnavailable)
		store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("write fails", func(t *testing.T) {
		store := &mocks.MockStateStore{}
		store.On("Get", mock.Anything, "subscriptions").Return(nil, false, nil)
		store.On("Put", mock.Anything, "subscriptions", mock.Anything).
			Return(fmt.Errorf("put: %w", storage.ErrUnavailable))
		r := newRegistry(t, store)

		err := r.Subscribe(ctx, registry.Subscription{Address: "a@x.com"})
		assert.ErrorIs(t, err, storage.ErrUnavailable)
		store.AssertExpectations(t)
	})

	t.Run("corrupt state", func(t *testing.T) {
		store := &mocks.MockStateStore{}
		store.On("Get", mock.Anything, "subscriptions").Return([]byte("not json"), true, nil)
		r := newRegistry(t, store)

		err := r.Unsubscribe(ctx, "a@x.com")
		var de *codec.DecodeError
		assert.True(t, errors.As(err, &de))
		store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything)
	})
}

// blockingStore holds every Put until release is closed.
type blockingStore struct {
	*storage.MemoryStateStore
	entered chan struct{}
	release chan struct{}
}

func (s *blockingStore) Put(ctx context.Context, key string, value []byte) error {
	s.entered <- struct{}{}
	<-s.release
	return s.MemoryStateStore.Put(ctx, key, value)
}

func TestAbandonedCallCompletesStartedWrite(t *testing.T) {
	store := &blockingStore{
		MemoryStateStore: storage.NewMemoryStateStore(),
		entered:          make(chan struct{}, 1),
		release:          make(chan struct{}),
	}
	r := newRegistry(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.Subscribe(ctx, registry.Subscription{Address: "a@x.com", DisplayName: "A"})
	}()

	<-store.entered
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	close(store.release)

	// The next request is served after the abandoned write finished.
	snap, err := r.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, "A", snap[0].DisplayName)
}

func TestCanceledBeforeStartIsNotRun(t *testing.T) {
	store := storage.NewMemoryStateStore()
	r := newRegistry(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Subscribe(ctx, registry.Subscription{Address: "a@x.com"})
	assert.ErrorIs(t, err, context.Canceled)

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, store.Puts())
}

func TestClosedRegistry(t *testing.T) {
	r := registry.New("subscription", "subscriptions", storage.NewMemoryStateStore())
	r.Close()
	r.Close()

	err := r.Subscribe(context.Background(), registry.Subscription{Address: "a@x.com"})
	assert.ErrorIs(t, err, registry.ErrClosed)
}

type writeCounter struct {
	mu  sync.Mutex
	ops []string
}

func (w *writeCounter) ObserveRegistryWrite(op string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ops = append(w.ops, op)
}

func TestWriteObserver(t *testing.T) {
	w := &writeCounter{}
	r := newRegistry(t, storage.NewMemoryStateStore(), registry.WithWriteObserver(w))
	ctx := context.Background()

	require.NoError(t, r.Subscribe(ctx, registry.Subscription{Address: "a@x.com"}))
	require.NoError(t, r.Subscribe(ctx, registry.Subscription{Address: "a@x.com"}))
	require.NoError(t, r.Unsubscribe(ctx, "a@x.com"))

	assert.Equal(t, []string{registry.OpSubscribe, registry.OpUnsubscribe}, w.ops)
}
