package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puer99miss/Xapiand/internal/value"
)

func doc(pairs ...interface{}) value.Value {
	m := value.NewOrderedMap()
	for i := 0; i+1 < len(pairs); i += 2 {
		m.Set(pairs[i].(string), pairs[i+1].(value.Value))
	}
	return value.Map(m)
}

func TestIndex_AssignsIDAndTerm(t *testing.T) {
	s := New(nil)
	obj := doc("title", value.String("hello world"))

	res, err := s.Index(context.Background(), obj, nil, nil, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, res.TermID)
	assert.Equal(t, res.TermID, res.Document.ID)
}

func TestIndex_CallerSuppliedID(t *testing.T) {
	s := New(nil)
	obj := doc("title", value.String("hello"))
	id := value.String("doc-42")

	res, err := s.Index(context.Background(), obj, &id, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "doc-42", res.TermID)
}

func TestIndex_StoresStoredFields(t *testing.T) {
	s := New(nil)
	title := value.NewOrderedMap()
	title.Set(KeyStore, value.Bool(true))
	title.Set(KeyValue, value.String("hello"))
	obj := doc("title", value.Map(title))

	res, err := s.Index(context.Background(), obj, nil, nil, nil)
	require.NoError(t, err)
	m, ok := res.Stored.Map()
	require.True(t, ok)
	v, ok := m.Get("title")
	require.True(t, ok)
	s2, _ := v.String()
	assert.Equal(t, "hello", s2)
}

func TestIndex_RejectsNonObjectBody(t *testing.T) {
	s := New(nil)
	_, err := s.Index(context.Background(), value.String("not an object"), nil, nil, nil)
	assert.Error(t, err)
	var ce *ClientError
	assert.ErrorAs(t, err, &ce)
}

func TestIndex_TypeIsImmutableAcrossWrites(t *testing.T) {
	s := New(nil)
	id := value.String("doc-1")

	_, err := s.Index(context.Background(), doc("age", value.IntS(10)), &id, nil, nil)
	require.NoError(t, err)

	_, err = s.Index(context.Background(), doc("age", value.String("not a number")), &id, nil, nil)
	assert.Error(t, err)
}

func TestIndex_ExplicitTypeConflictRejected(t *testing.T) {
	s := New(nil)
	m1 := value.NewOrderedMap()
	m1.Set(KeyType, value.String("integer"))
	m1.Set(KeyValue, value.IntS(1))
	id := value.String("doc-1")
	_, err := s.Index(context.Background(), doc("age", value.Map(m1)), &id, nil, nil)
	require.NoError(t, err)

	m2 := value.NewOrderedMap()
	m2.Set(KeyType, value.String("text"))
	m2.Set(KeyValue, value.String("x"))
	_, err = s.Index(context.Background(), doc("age", value.Map(m2)), &id, nil, nil)
	assert.Error(t, err)
}

func TestIndex_SlotAssignedOnceAndStable(t *testing.T) {
	s := New(nil)
	id := value.String("doc-1")

	_, err := s.Index(context.Background(), doc("age", value.IntS(1)), &id, nil, nil)
	require.NoError(t, err)
	slot1 := s.Origin()
	node, ok := slot1.Subfield("age")
	require.True(t, ok)
	firstSlot := node.Slot()

	_, err = s.Index(context.Background(), doc("age", value.IntS(2)), &id, nil, nil)
	require.NoError(t, err)
	node2, ok := s.Origin().Subfield("age")
	require.True(t, ok)
	assert.Equal(t, firstSlot, node2.Slot())
}

func TestIndex_FailedWalkDoesNotMutateOrigin(t *testing.T) {
	s := New(nil)
	id := value.String("doc-1")
	_, err := s.Index(context.Background(), doc("age", value.IntS(1)), &id, nil, nil)
	require.NoError(t, err)

	before := s.Origin()

	m := value.NewOrderedMap()
	m.Set(KeySlot, value.IntS(999))
	m.Set(KeyValue, value.IntS(2))
	_, err = s.Index(context.Background(), doc("age", value.Map(m)), &id, nil, nil)
	assert.Error(t, err)
	assert.Same(t, before, s.Origin(), "a failed walk must discard its overlay and leave origin untouched")
}

func TestUpdate_WidensSchemaButProducesNoDocument(t *testing.T) {
	s := New(nil)
	err := s.Update(context.Background(), doc("age", value.IntS(1)))
	require.NoError(t, err)

	node, ok := s.Origin().Subfield("age")
	require.True(t, ok)
	assert.True(t, node.HasType())
}

func TestWrite_ReplaceClearsExistingSchema(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Update(context.Background(), doc("age", value.IntS(1))))
	_, ok := s.Origin().Subfield("age")
	require.True(t, ok)

	require.NoError(t, s.Write(context.Background(), doc("name", value.String("x")), true))
	_, ok = s.Origin().Subfield("age")
	assert.False(t, ok, "replace=true must clear prior fields")
	_, ok = s.Origin().Subfield("name")
	assert.True(t, ok)
}

func TestMarshalUnmarshalSchema_RoundTrips(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Update(context.Background(), doc("age", value.IntS(1), "name", value.String("hi"))))

	data, err := MarshalSchema(s)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	restored, err := UnmarshalSchema(data)
	require.NoError(t, err)

	node, ok := restored.Origin().Subfield("age")
	require.True(t, ok)
	assert.True(t, node.HasType())
	assert.Equal(t, s.idSpecification(), restored.idSpecification())
}

func TestUnmarshalSchema_EmptyPayloadYieldsFreshSchema(t *testing.T) {
	s, err := UnmarshalSchema(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Origin().Raw().Len())
}

func TestUnmarshalSchema_NonObjectPayloadIsCorruption(t *testing.T) {
	data, err := value.ToMsgPack(value.String("not an object"))
	require.NoError(t, err)

	_, err = UnmarshalSchema(data)
	assert.Error(t, err)
	var ce *CorruptionError
	assert.ErrorAs(t, err, &ce)
}

type fixedShardSelector struct{ shard int }

func (f fixedShardSelector) SelectShard(ctx context.Context, endpoints []string) (int, error) {
	return f.shard, nil
}

func TestGenerateID_LandsOnSelectedShard(t *testing.T) {
	endpoints := []string{"shard-0", "shard-1", "shard-2"}
	id, err := generateID(context.Background(), endpoints, fixedShardSelector{shard: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, shardForID(id, len(endpoints)))
}

func TestGenerateID_NoSelectorFallsBackToPlainUUID(t *testing.T) {
	id, err := generateID(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestShardForID_ZeroShardsIsZero(t *testing.T) {
	assert.Equal(t, 0, shardForID("anything", 0))
}

func TestIndexResult_TermIDHashesOntoItsOwnShard(t *testing.T) {
	endpoints := []string{"shard-0", "shard-1", "shard-2", "shard-3"}
	s := New(nil)
	res, err := s.Index(context.Background(), doc("x", value.IntS(1)), nil, endpoints, fixedShardSelector{shard: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, ShardForID(res.TermID, len(endpoints)))
}
