// Package dbpool implements DatabasePool, the process-wide registry of
// internal/shardqueue.ShardQueue instances (spec.md §4.6.1-§4.6.4): two
// LRU tables partitioning readable from writable shards, reference
// counting of persistent writable shards via internal/bookkeeping, and
// the shard-selection policy for new autogenerated ids that
// internal/schema.ShardSelector is the consumer-side contract for.
package dbpool

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/puer99miss/Xapiand/internal/backend"
	"github.com/puer99miss/Xapiand/internal/bookkeeping"
	"github.com/puer99miss/Xapiand/internal/clusterclient"
	"github.com/puer99miss/Xapiand/internal/shardqueue"
)

// OpenFunc constructs one shard handle's underlying backend.Backend for
// a logical endpoint set, used lazily by a ShardQueue on first
// checkout (spec.md §3.7).
type OpenFunc func(ctx context.Context, endpoints []string, writable bool) (backend.Backend, error)

// Options configures a DatabasePool.
type Options struct {
	// ReadableCapacity/WritableCapacity size the two LRU tables
	// (spec.md §4.6.1's databases / writable_databases).
	ReadableCapacity int
	WritableCapacity int
	// HandlesPerShard bounds each ShardQueue's count (spec.md §4.6.2's
	// "count == max" gate).
	HandlesPerShard int
	Open            OpenFunc
	Bookkeeping     *bookkeeping.Bookkeeping
	Probe           *clusterclient.Client
}

// DatabasePool is spec.md §4.6's DatabasePool.
type DatabasePool struct {
	qmtx   sync.Mutex
	queues map[uint64]map[*shardqueue.ShardQueue]struct{} // fingerprint -> set, for reverse lookup (spec.md §4.6.1)

	readable *lru.Cache[uint64, *shardqueue.ShardQueue]
	writable *lru.Cache[uint64, *shardqueue.ShardQueue]

	finished atomic.Bool

	handlesPerShard int
	open            OpenFunc
	books           *bookkeeping.Bookkeeping
	probe           *clusterclient.Client

	// local, when set, lets SelectShard read a co-located shard's
	// doccount directly instead of over HTTP (spec.md §4.6.4's probe
	// step, fast-pathed for shards this process already holds open).
	localMu sync.Mutex
	local   map[string]backend.Backend
}

func New(opts Options) (*DatabasePool, error) {
	if opts.ReadableCapacity <= 0 {
		opts.ReadableCapacity = 128
	}
	if opts.WritableCapacity <= 0 {
		opts.WritableCapacity = 128
	}
	if opts.HandlesPerShard <= 0 {
		opts.HandlesPerShard = 4
	}
	p := &DatabasePool{
		queues:          make(map[uint64]map[*shardqueue.ShardQueue]struct{}),
		handlesPerShard: opts.HandlesPerShard,
		open:            opts.Open,
		books:           opts.Bookkeeping,
		probe:           opts.Probe,
		local:           make(map[string]backend.Backend),
	}

	readable, err := lru.NewWithEvict[uint64, *shardqueue.ShardQueue](opts.ReadableCapacity, p.onEvict)
	if err != nil {
		return nil, fmt.Errorf("dbpool: creating readable LRU: %w", err)
	}
	writable, err := lru.NewWithEvict[uint64, *shardqueue.ShardQueue](opts.WritableCapacity, p.onEvict)
	if err != nil {
		return nil, fmt.Errorf("dbpool: creating writable LRU: %w", err)
	}
	p.readable = readable
	p.writable = writable
	return p, nil
}

// fingerprint implements spec.md §4.6.1's hash(endpoints), grounded on
// the same xxhash routing hash internal/schema uses for shard
// placement (schema.ShardForID) so the two hashing schemes share one
// dependency rather than two.
func fingerprint(endpoints []string) uint64 {
	return xxhash.Sum64String(strings.Join(endpoints, "\x1f"))
}

// onEvict implements the LRU drop predicate of spec.md §4.6.2 and
// resolves the §9 Open Question about the source's inverted
// drop-predicate bug: only persistent==false, idle (pool size >=
// count), and FREE queues are actually drained and deregistered;
// anything else evicted from the LRU's bookkeeping is left untouched
// (not drained) and stays registered under queues for reverse lookup.
func (p *DatabasePool) onEvict(hash uint64, q *shardqueue.ShardQueue) {
	if q.EvictionCandidate() {
		q.Drain()
		p.qmtx.Lock()
		delete(p.queues[hash], q)
		if len(p.queues[hash]) == 0 {
			delete(p.queues, hash)
		}
		p.qmtx.Unlock()
	}
}

func (p *DatabasePool) register(hash uint64, q *shardqueue.ShardQueue) {
	p.qmtx.Lock()
	defer p.qmtx.Unlock()
	set, ok := p.queues[hash]
	if !ok {
		set = make(map[*shardqueue.ShardQueue]struct{})
		p.queues[hash] = set
	}
	set[q] = struct{}{}
}

// queueFor returns the ShardQueue for endpoints from the appropriate
// LRU table (spec.md §4.6.2's checkout: "select the appropriate LRU"),
// creating an empty one on first use.
func (p *DatabasePool) queueFor(endpoints []string, writable bool) *shardqueue.ShardQueue {
	hash := fingerprint(endpoints)
	table := p.readable
	if writable {
		table = p.writable
	}
	if q, ok := table.Get(hash); ok {
		return q
	}
	eps := append([]string(nil), endpoints...)
	q := shardqueue.New(shardqueue.Options{
		Max:        p.handlesPerShard,
		Persistent: writable,
		Open: func(ctx context.Context) (backend.Backend, error) {
			be, err := p.open(ctx, eps, writable)
			if err != nil {
				return nil, err
			}
			if writable && len(eps) > 0 {
				p.localMu.Lock()
				p.local[eps[0]] = be
				p.localMu.Unlock()
			}
			return be, nil
		},
	})
	table.Add(hash, q)
	p.register(hash, q)
	return q
}

// Checkout implements spec.md §4.6.2's checkout(endpoints, flags). The
// returned Handle must be released via Checkin (or *Handle.Checkin
// directly).
func (p *DatabasePool) Checkout(ctx context.Context, endpoints []string, writable bool) (*shardqueue.Handle, error) {
	if p.finished.Load() {
		return nil, fmt.Errorf("dbpool: pool is shutting down")
	}
	q := p.queueFor(endpoints, writable)
	h, err := q.Checkout(ctx, writable)
	if err != nil {
		return nil, fmt.Errorf("dbpool: checkout(%v, writable=%v): %w", endpoints, writable, err)
	}
	return h, nil
}

// Checkin returns a handle obtained from Checkout.
func (p *DatabasePool) Checkin(h *shardqueue.Handle) { h.Checkin() }

// SwitchDB implements spec.md §4.6.2's switch_db: locate the writable
// queue for endpoint and perform the atomic swap via
// ShardQueue.SwitchDB.
func (p *DatabasePool) SwitchDB(ctx context.Context, endpoints []string, build func(ctx context.Context, old []backend.Backend) ([]backend.Backend, error)) error {
	hash := fingerprint(endpoints)
	q, ok := p.writable.Get(hash)
	if !ok {
		return fmt.Errorf("dbpool: switch_db: no writable queue open for %v", endpoints)
	}
	return q.SwitchDB(ctx, build)
}

// InitRef/IncRef/DecRef implement spec.md §4.6.2's persistent-writable
// refcounting, delegating to internal/bookkeeping.
func (p *DatabasePool) InitRef(ctx context.Context, endpoint string) error {
	if p.books == nil {
		return nil
	}
	return p.books.InitRef(ctx, endpoint)
}

func (p *DatabasePool) IncRef(ctx context.Context, endpoint string) (int64, error) {
	if p.books == nil {
		return 0, nil
	}
	return p.books.IncRef(ctx, endpoint)
}

func (p *DatabasePool) DecRef(ctx context.Context, endpoint string) (int64, error) {
	if p.books == nil {
		return 0, nil
	}
	return p.books.DecRef(ctx, endpoint)
}

// SelectShard implements schema.ShardSelector and spec.md §4.6.4's
// shard-selection policy: probe every endpoint's doccount (locally
// when this process already holds the shard open, else over HTTP via
// clusterclient), and return the index of the least-loaded active
// shard.
func (p *DatabasePool) SelectShard(ctx context.Context, endpoints []string) (int, error) {
	minShard := -1
	var minCount uint64
	for i, ep := range endpoints {
		count, active := p.doccount(ctx, ep)
		if !active {
			continue
		}
		if minShard < 0 || count < minCount {
			minShard = i
			minCount = count
		}
	}
	if minShard < 0 {
		return 0, fmt.Errorf("dbpool: no active shard accepts writes among %v", endpoints)
	}
	return minShard, nil
}

func (p *DatabasePool) doccount(ctx context.Context, endpoint string) (uint64, bool) {
	p.localMu.Lock()
	be, ok := p.local[endpoint]
	p.localMu.Unlock()
	if ok {
		n, err := be.DocCount(ctx)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	if p.probe == nil {
		return 0, false
	}
	dc, err := p.probe.Probe(ctx, endpoint)
	if err != nil || !dc.Active {
		return 0, false
	}
	return dc.Count, true
}

// Shutdown marks the pool finished (spec.md §4.6.1's finished gate):
// no further checkouts succeed, and every open queue is drained.
func (p *DatabasePool) Shutdown() {
	p.finished.Store(true)
	p.qmtx.Lock()
	queues := make([]*shardqueue.ShardQueue, 0)
	for _, set := range p.queues {
		for q := range set {
			queues = append(queues, q)
		}
	}
	p.qmtx.Unlock()
	for _, q := range queues {
		q.Drain()
	}
}
