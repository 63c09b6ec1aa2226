package shardqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puer99miss/Xapiand/internal/backend"
)

// fakeBackend is a no-op backend.Backend for exercising ShardQueue
// without a real bleve index.
type fakeBackend struct {
	mu     sync.Mutex
	closed bool
}

func (f *fakeBackend) IndexDocument(ctx context.Context, doc *backend.Document) error { return nil }
func (f *fakeBackend) DeleteDocument(ctx context.Context, id string) error            { return nil }
func (f *fakeBackend) Get(ctx context.Context, id string) (*backend.Document, error) {
	return nil, backend.ErrNotFound
}
func (f *fakeBackend) Search(ctx context.Context, q backend.Query) (*backend.ResultSet, error) {
	return &backend.ResultSet{}, nil
}
func (f *fakeBackend) DocCount(ctx context.Context) (uint64, error)             { return 0, nil }
func (f *fakeBackend) GetMetadata(ctx context.Context, key string) ([]byte, error) { return nil, nil }
func (f *fakeBackend) SetMetadata(ctx context.Context, key string, val []byte) error {
	return nil
}
func (f *fakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
func (f *fakeBackend) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func newQueue(max int, opts ...func(*Options)) *ShardQueue {
	o := Options{
		Max: max,
		Open: func(ctx context.Context) (backend.Backend, error) {
			return &fakeBackend{}, nil
		},
	}
	for _, fn := range opts {
		fn(&o)
	}
	return New(o)
}

func TestCheckout_ConstructsLazily(t *testing.T) {
	q := newQueue(2)
	assert.Equal(t, 0, q.Size())
	assert.Equal(t, 0, q.CheckedOut())

	h, err := q.Checkout(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, q.CheckedOut())
	assert.Equal(t, 0, q.Size())

	h.Checkin()
	assert.Equal(t, 0, q.CheckedOut())
	assert.Equal(t, 1, q.Size())
}

func TestCheckin_IsIdempotent(t *testing.T) {
	q := newQueue(1)
	h, err := q.Checkout(context.Background(), false)
	require.NoError(t, err)
	h.Checkin()
	h.Checkin() // second call is a no-op, not a double-release
	assert.Equal(t, 1, q.Size())
	assert.Equal(t, 0, q.CheckedOut())
}

func TestCheckout_BlocksAtMaxUntilCheckin(t *testing.T) {
	q := newQueue(1)
	h1, err := q.Checkout(context.Background(), false)
	require.NoError(t, err)

	done := make(chan *Handle, 1)
	go func() {
		h2, err := q.Checkout(context.Background(), false)
		require.NoError(t, err)
		done <- h2
	}()

	select {
	case <-done:
		t.Fatal("second checkout should have blocked while the queue is at capacity")
	case <-time.After(50 * time.Millisecond):
	}

	h1.Checkin()
	select {
	case h2 := <-done:
		h2.Checkin()
	case <-time.After(time.Second):
		t.Fatal("second checkout never unblocked after checkin")
	}
}

func TestCheckout_RespectsContextCancellation(t *testing.T) {
	q := newQueue(1)
	h1, err := q.Checkout(context.Background(), false)
	require.NoError(t, err)
	defer h1.Checkin()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = q.Checkout(ctx, false)
	assert.Error(t, err)
}

func TestWritableCheckout_LocksState(t *testing.T) {
	q := newQueue(2)
	h, err := q.Checkout(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, Lock, q.State())

	h.Checkin()
	assert.Equal(t, Free, q.State())
}

func TestWritableCheckout_SerializesAgainstAnotherWritable(t *testing.T) {
	q := newQueue(2)
	h1, err := q.Checkout(context.Background(), true)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		h2, err := q.Checkout(context.Background(), true)
		require.NoError(t, err)
		close(done)
		h2.Checkin()
	}()

	select {
	case <-done:
		t.Fatal("second writable checkout should wait for the first to check in")
	case <-time.After(50 * time.Millisecond):
	}
	h1.Checkin()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second writable checkout never proceeded")
	}
}

func TestEvictionCandidate(t *testing.T) {
	q := newQueue(2)
	// Brand new queue: count == 0, pool empty, state FREE -> 0 >= 0 is
	// vacuously an eviction candidate when nothing has ever been
	// checked out.
	assert.True(t, q.EvictionCandidate())

	h, err := q.Checkout(context.Background(), false)
	require.NoError(t, err)
	// One handle on loan: pool size (0) < count (1), not a candidate.
	assert.False(t, q.EvictionCandidate())

	h.Checkin()
	// All handles idle again: pool size (1) >= count (1), FREE.
	assert.True(t, q.EvictionCandidate())
}

func TestEvictionCandidate_PersistentNeverEvicted(t *testing.T) {
	q := newQueue(1, func(o *Options) { o.Persistent = true })
	h, err := q.Checkout(context.Background(), false)
	require.NoError(t, err)
	h.Checkin()
	assert.False(t, q.EvictionCandidate())
}

func TestEvictionCandidate_NotFreeNotACandidate(t *testing.T) {
	q := newQueue(1)
	h, err := q.Checkout(context.Background(), true)
	require.NoError(t, err)
	defer h.Checkin()
	assert.False(t, q.EvictionCandidate())
}

func TestVolatileQueue_DropsOnCheckin(t *testing.T) {
	var opened *fakeBackend
	q := New(Options{
		Max:      1,
		Volatile: true,
		Open: func(ctx context.Context) (backend.Backend, error) {
			opened = &fakeBackend{}
			return opened, nil
		},
	})
	h, err := q.Checkout(context.Background(), false)
	require.NoError(t, err)
	h.Checkin()

	assert.Equal(t, 0, q.Size())
	require.NotNil(t, opened)
	assert.True(t, opened.isClosed())
}

func TestSwitchDB_SwapsPooledHandles(t *testing.T) {
	q := newQueue(2)
	h, err := q.Checkout(context.Background(), false)
	require.NoError(t, err)
	h.Checkin()
	assert.Equal(t, 1, q.Size())

	replacement := &fakeBackend{}
	err = q.SwitchDB(context.Background(), func(ctx context.Context, old []backend.Backend) ([]backend.Backend, error) {
		assert.Len(t, old, 1)
		for _, be := range old {
			be.Close()
		}
		return []backend.Backend{replacement}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, Free, q.State())
	assert.Equal(t, 1, q.Size())
}

func TestSwitchDB_WaitsForOutstandingWritableCheckin(t *testing.T) {
	q := newQueue(1)
	h, err := q.Checkout(context.Background(), true)
	require.NoError(t, err)

	switched := make(chan error, 1)
	go func() {
		switched <- q.SwitchDB(context.Background(), func(ctx context.Context, old []backend.Backend) ([]backend.Backend, error) {
			return []backend.Backend{&fakeBackend{}}, nil
		})
	}()

	select {
	case err := <-switched:
		t.Fatalf("switch_db returned before the outstanding handle was checked in: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	h.Checkin()

	select {
	case err := <-switched:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("switch_db never completed after checkin")
	}
}

func TestSwitchDB_RestoresOldPoolOnBuildFailure(t *testing.T) {
	q := newQueue(2)
	h, err := q.Checkout(context.Background(), false)
	require.NoError(t, err)
	h.Checkin()

	err = q.SwitchDB(context.Background(), func(ctx context.Context, old []backend.Backend) ([]backend.Backend, error) {
		return nil, assert.AnError
	})
	assert.Error(t, err)
	assert.Equal(t, Free, q.State())
	assert.Equal(t, 1, q.Size())
}

func TestDrain_ClosesIdleHandles(t *testing.T) {
	q := newQueue(2)
	h1, err := q.Checkout(context.Background(), false)
	require.NoError(t, err)
	be1 := h1.Backend.(*fakeBackend)
	h1.Checkin()

	q.Drain()
	assert.True(t, be1.isClosed())
	assert.Equal(t, 0, q.Size())
}
