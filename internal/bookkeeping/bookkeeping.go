// Package bookkeeping implements the master refcount database of
// spec.md §4.6.2 ("persistent writable shards have an integer
// reference counter stored in the master database under a per-endpoint
// key") and §6.4. Grounded on the teacher's indexer/storage.go pattern
// of a narrow storage interface with one concrete backend: here the
// same internal/backend.Backend interface the Schema Engine and
// DatabasePool already speak, pointed at a dedicated "master" index
// instead of a document index.
package bookkeeping

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/puer99miss/Xapiand/internal/backend"
)

const refKeyPrefix = "ref:"

// Bookkeeping stores one integer refcount per persistent-writable
// endpoint. All operations serialise through mu since GetMetadata then
// SetMetadata is a non-atomic read-modify-write against the underlying
// backend.
type Bookkeeping struct {
	mu sync.Mutex
	be backend.Backend
}

func New(be backend.Backend) *Bookkeeping {
	return &Bookkeeping{be: be}
}

func refKey(endpoint string) string { return refKeyPrefix + endpoint }

// InitRef creates the refcount entry for endpoint at zero if it does
// not already exist (spec.md §4.6.2's init_ref). Re-initialising an
// existing entry is a no-op, not a reset.
func (b *Bookkeeping) InitRef(ctx context.Context, endpoint string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	existing, err := b.be.GetMetadata(ctx, refKey(endpoint))
	if err != nil {
		return fmt.Errorf("bookkeeping: init_ref(%s): %w", endpoint, err)
	}
	if existing != nil {
		return nil
	}
	return b.be.SetMetadata(ctx, refKey(endpoint), []byte("0"))
}

// IncRef adjusts endpoint's refcount by +1 and returns the new value.
func (b *Bookkeeping) IncRef(ctx context.Context, endpoint string) (int64, error) {
	return b.adjust(ctx, endpoint, 1)
}

// DecRef adjusts endpoint's refcount by -1 and returns the new value.
// A refcount of zero means the shard may be dropped (spec.md §4.6.2).
func (b *Bookkeeping) DecRef(ctx context.Context, endpoint string) (int64, error) {
	return b.adjust(ctx, endpoint, -1)
}

func (b *Bookkeeping) adjust(ctx context.Context, endpoint string, delta int64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, err := b.be.GetMetadata(ctx, refKey(endpoint))
	if err != nil {
		return 0, fmt.Errorf("bookkeeping: reading refcount for %s: %w", endpoint, err)
	}
	var n int64
	if raw != nil {
		n, err = strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("bookkeeping: corrupt refcount for %s: %w", endpoint, err)
		}
	}
	n += delta
	if err := b.be.SetMetadata(ctx, refKey(endpoint), []byte(strconv.FormatInt(n, 10))); err != nil {
		return 0, fmt.Errorf("bookkeeping: writing refcount for %s: %w", endpoint, err)
	}
	return n, nil
}

// Ref reads endpoint's current refcount without modifying it. A
// never-initialised endpoint reads as zero.
func (b *Bookkeeping) Ref(ctx context.Context, endpoint string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, err := b.be.GetMetadata(ctx, refKey(endpoint))
	if err != nil {
		return 0, fmt.Errorf("bookkeeping: reading refcount for %s: %w", endpoint, err)
	}
	if raw == nil {
		return 0, nil
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bookkeeping: corrupt refcount for %s: %w", endpoint, err)
	}
	return n, nil
}

// DroppableRef reports whether endpoint's refcount has reached zero,
// i.e. every persistent writable reference to it has been released.
func (b *Bookkeeping) DroppableRef(ctx context.Context, endpoint string) (bool, error) {
	n, err := b.Ref(ctx, endpoint)
	if err != nil {
		return false, err
	}
	return n <= 0, nil
}
