package bookkeeping

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puer99miss/Xapiand/internal/backend"
)

func newTestBookkeeping(t *testing.T) *Bookkeeping {
	be, err := backend.OpenMemBleveBackend(nil)
	require.NoError(t, err)
	return New(be)
}

func TestInitRef_CreatesAtZero(t *testing.T) {
	b := newTestBookkeeping(t)
	ctx := context.Background()

	require.NoError(t, b.InitRef(ctx, "shard-0"))
	n, err := b.Ref(ctx, "shard-0")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestInitRef_DoesNotResetExisting(t *testing.T) {
	b := newTestBookkeeping(t)
	ctx := context.Background()

	require.NoError(t, b.InitRef(ctx, "shard-0"))
	_, err := b.IncRef(ctx, "shard-0")
	require.NoError(t, err)

	require.NoError(t, b.InitRef(ctx, "shard-0"))
	n, err := b.Ref(ctx, "shard-0")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "re-initialising must not reset an existing refcount")
}

func TestIncDecRef(t *testing.T) {
	b := newTestBookkeeping(t)
	ctx := context.Background()

	n, err := b.IncRef(ctx, "shard-0")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = b.IncRef(ctx, "shard-0")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = b.DecRef(ctx, "shard-0")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRef_NeverInitialisedReadsZero(t *testing.T) {
	b := newTestBookkeeping(t)
	n, err := b.Ref(context.Background(), "shard-unknown")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestDroppableRef(t *testing.T) {
	b := newTestBookkeeping(t)
	ctx := context.Background()

	droppable, err := b.DroppableRef(ctx, "shard-0")
	require.NoError(t, err)
	assert.True(t, droppable, "an uninitialised refcount is droppable")

	_, err = b.IncRef(ctx, "shard-0")
	require.NoError(t, err)
	droppable, err = b.DroppableRef(ctx, "shard-0")
	require.NoError(t, err)
	assert.False(t, droppable)

	_, err = b.DecRef(ctx, "shard-0")
	require.NoError(t, err)
	droppable, err = b.DroppableRef(ctx, "shard-0")
	require.NoError(t, err)
	assert.True(t, droppable)
}

func TestRefcounts_AreIndependentPerEndpoint(t *testing.T) {
	b := newTestBookkeeping(t)
	ctx := context.Background()

	_, err := b.IncRef(ctx, "shard-0")
	require.NoError(t, err)
	_, err = b.IncRef(ctx, "shard-1")
	require.NoError(t, err)
	_, err = b.IncRef(ctx, "shard-1")
	require.NoError(t, err)

	n0, err := b.Ref(ctx, "shard-0")
	require.NoError(t, err)
	n1, err := b.Ref(ctx, "shard-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n0)
	assert.Equal(t, int64(2), n1)
}
