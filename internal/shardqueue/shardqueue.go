// Package shardqueue implements ShardQueue, the ordered reusable pool
// of open shard handles for a single endpoint (spec.md §4.6, §4.6.3):
// it gates writable access through a FREE/LOCK/SWITCH replication
// state machine and caps the number of open handles. Grounded on the
// teacher's indexer.Indexer (indexer/indexer.go), whose single
// sync.Mutex-guarded bleve.Index generalizes here to a bounded set of
// handles shared by many callers, and on spec.md §9's "generic
// bounded-queue abstraction" note for ShardQueue's own mutex, which
// original_source/src/concurrent_queue.h implements as a single
// std::mutex guarding a std::deque -- the pool/mu pair below is that
// same shape, generalized from FIFO push/pop to the FREE/LOCK/SWITCH
// checkout protocol spec.md §4.6.3 needs.
package shardqueue

import (
	"context"
	"fmt"
	"sync"

	"github.com/puer99miss/Xapiand/internal/backend"
)

// State is one of the replication states of spec.md §4.6.3.
type State int

const (
	// Free accepts any checkout.
	Free State = iota
	// Lock means a writable checkout is currently in flight; further
	// writable checkouts wait for checkin.
	Lock
	// Switch means an atomic database swap is in progress; both reads
	// and writes wait until it completes.
	Switch
)

func (s State) String() string {
	switch s {
	case Free:
		return "FREE"
	case Lock:
		return "LOCK"
	case Switch:
		return "SWITCH"
	default:
		return "UNKNOWN"
	}
}

// Handle is a single exclusive or shared reference to an underlying
// backend.Backend connection, owned by exactly one ShardQueue (spec.md
// glossary's "shard handle"; §9's cyclic-weak-pointer note resolved by
// giving the handle an explicit owning reference back to its queue).
type Handle struct {
	backend.Backend
	queue    *ShardQueue
	writable bool
	returned bool
}

// Checkin returns the handle to the queue that issued it. Calling it
// more than once is a no-op.
func (h *Handle) Checkin() {
	if h.returned {
		return
	}
	h.returned = true
	h.queue.checkin(h)
}

// Persistent, when true, the queue never drops handles under LRU
// pressure (spec.md §4.6.1's "persistent writable shards").
// Volatile, when true, every checked-in handle is closed immediately
// instead of being requeued (spec.md §4.6.2's "if the queue is marked
// VOLATILE, drop the handle").
type Options struct {
	Max        int
	Persistent bool
	Volatile   bool
	Open       func(ctx context.Context) (backend.Backend, error)
}

// ShardQueue is the bounded pool of handles for one endpoint hash
// (spec.md §4.6.1). Its own mutex plus switchCond implement the
// FREE/LOCK/SWITCH machine of §4.6.3; it never blocks while holding
// DatabasePool.qmtx (spec.md §5).
type ShardQueue struct {
	mu         sync.Mutex
	switchCond *sync.Cond

	open       func(ctx context.Context) (backend.Backend, error)
	max        int
	persistent bool
	volatile   bool

	state         State
	pool          []backend.Backend
	count         int // handles ever constructed, open or checked out
	checkedOut    int
	switchPending bool // a SwitchDB call is waiting for outstanding writable checkins
}

// New creates an empty ShardQueue; no handle is constructed until the
// first checkout (spec.md §3.7's "a shard handle is created on first
// checkout of an endpoint").
func New(opts Options) *ShardQueue {
	if opts.Max <= 0 {
		opts.Max = 1
	}
	q := &ShardQueue{
		open:       opts.Open,
		max:        opts.Max,
		persistent: opts.Persistent,
		volatile:   opts.Volatile,
		state:      Free,
	}
	q.switchCond = sync.NewCond(&q.mu)
	return q
}

// State reports the current replication state, for LRU eviction
// predicates and tests.
func (q *ShardQueue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Size is the number of idle handles currently sitting in the pool
// (spec.md §8's queue-conservation invariant: pool_size + checked_out
// == count).
func (q *ShardQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pool)
}

// CheckedOut is the number of handles currently on loan.
func (q *ShardQueue) CheckedOut() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.checkedOut
}

// Persistent reports whether this queue's writable shard is exempt
// from LRU eviction (spec.md §4.6.1).
func (q *ShardQueue) Persistent() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.persistent
}

// EvictionCandidate implements the LRU drop predicate of spec.md
// §4.6.2: "drop if not persistent AND size >= count AND state == FREE".
// The source's inverted form is flagged in §9 as a likely bug; this
// is the corrected predicate, checked in shardqueue_test.go by the
// TestEvictionCandidate tests, which call it directly on a single queue.
func (q *ShardQueue) EvictionCandidate() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.persistent && len(q.pool) >= q.count && q.state == Free
}

// Checkout pops a free handle, or constructs one if under max, or
// blocks until one becomes available or ctx is cancelled (spec.md
// §4.6.2). For a writable checkout it additionally waits out any
// in-progress SWITCH and transitions FREE -> LOCK.
func (q *ShardQueue) Checkout(ctx context.Context, writable bool) (*Handle, error) {
	q.mu.Lock()
	for {
		if err := ctx.Err(); err != nil {
			q.mu.Unlock()
			return nil, fmt.Errorf("shardqueue: checkout: %w", err)
		}
		if q.state == Switch {
			q.waitLocked(ctx)
			continue
		}
		if writable && q.state == Lock {
			q.waitLocked(ctx)
			continue
		}
		break
	}

	var be backend.Backend
	if len(q.pool) > 0 {
		be = q.pool[len(q.pool)-1]
		q.pool = q.pool[:len(q.pool)-1]
	} else if q.count < q.max {
		openFn := q.open
		q.count++
		q.checkedOut++
		if writable {
			q.state = Lock
		}
		q.mu.Unlock()
		var err error
		be, err = openFn(ctx)
		if err != nil {
			q.mu.Lock()
			q.count--
			q.checkedOut--
			if writable {
				q.state = Free
				q.switchCond.Broadcast()
			}
			q.mu.Unlock()
			return nil, fmt.Errorf("shardqueue: opening new handle: %w", err)
		}
		return &Handle{Backend: be, queue: q, writable: writable}, nil
	} else {
		for len(q.pool) == 0 {
			if err := ctx.Err(); err != nil {
				q.mu.Unlock()
				return nil, fmt.Errorf("shardqueue: checkout: %w", err)
			}
			q.waitLocked(ctx)
		}
		be = q.pool[len(q.pool)-1]
		q.pool = q.pool[:len(q.pool)-1]
	}

	q.checkedOut++
	if writable {
		q.state = Lock
	}
	q.mu.Unlock()
	return &Handle{Backend: be, queue: q, writable: writable}, nil
}

// waitLocked blocks on switchCond, which is broadcast on every state
// transition and on every checkin; q.mu must be held on entry and is
// held again on return. ctx cancellation is not itself observed by
// sync.Cond, so callers re-check ctx.Err() after waking.
func (q *ShardQueue) waitLocked(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			q.switchCond.Broadcast()
		case <-done:
		}
	}()
	q.switchCond.Wait()
	close(done)
}

// checkin returns h to the queue (spec.md §4.6.2): LOCK -> FREE for a
// writable handle (or LOCK -> SWITCH if a switch was requested while
// it was checked out), and drops the handle entirely when the queue is
// VOLATILE.
func (q *ShardQueue) checkin(h *Handle) {
	q.mu.Lock()
	q.checkedOut--
	if q.volatile {
		q.mu.Unlock()
		h.Backend.Close()
		return
	}
	if h.writable {
		if q.switchPending {
			q.state = Switch
		} else {
			q.state = Free
		}
	}
	q.pool = append(q.pool, h.Backend)
	q.switchCond.Broadcast()
	q.mu.Unlock()
}

// switchPending is set by SwitchDB while writable checkouts remain
// outstanding, so the last checkin knows to land in SWITCH instead of
// FREE.
func (q *ShardQueue) markSwitchPending() { q.switchPending = true }

// SwitchDB implements spec.md §4.6.2's switch_db: wait for every
// outstanding handle to be checked in, mark the queue SWITCH, then
// atomically swap every pooled handle's underlying database for the one
// build produces (e.g. closing the old handle and opening the
// replacement at the same path). New checkouts are not blocked during
// the wait: only a switch-pending mark is set, the state stays FREE or
// LOCK until a writable checkin moves it to SWITCH, and readable
// checkouts taken meanwhile lengthen the wait. From the moment nothing
// is checked out until the swap completes, the queue is SWITCH.
func (q *ShardQueue) SwitchDB(ctx context.Context, build func(ctx context.Context, old []backend.Backend) ([]backend.Backend, error)) error {
	q.mu.Lock()
	if q.checkedOut > 0 {
		q.markSwitchPending()
		for q.checkedOut > 0 {
			if err := ctx.Err(); err != nil {
				q.mu.Unlock()
				return fmt.Errorf("shardqueue: switch_db: %w", err)
			}
			q.waitLocked(ctx)
		}
	}
	q.switchPending = false
	q.state = Switch
	old := q.pool
	q.pool = nil
	q.mu.Unlock()

	replacement, err := build(ctx, old)
	if err != nil {
		q.mu.Lock()
		q.pool = old
		q.state = Free
		q.switchCond.Broadcast()
		q.mu.Unlock()
		return fmt.Errorf("shardqueue: switch_db: building replacement: %w", err)
	}

	q.mu.Lock()
	q.pool = replacement
	q.count = len(replacement)
	q.state = Free
	q.switchCond.Broadcast()
	q.mu.Unlock()
	return nil
}

// Drain closes every idle handle in the pool, for shutdown.
func (q *ShardQueue) Drain() {
	q.mu.Lock()
	pool := q.pool
	q.pool = nil
	q.mu.Unlock()
	for _, be := range pool {
		be.Close()
	}
}
