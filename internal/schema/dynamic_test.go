package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puer99miss/Xapiand/internal/fieldtype"
	"github.com/puer99miss/Xapiand/internal/schema/uuidschema"
	"github.com/puer99miss/Xapiand/internal/value"
)

func TestGetDynamicSubproperties_PlainPath(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Update(context.Background(), doc("price", value.IntS(100))))

	info := s.GetDynamicSubproperties("price")
	assert.True(t, info.Found)
	assert.False(t, info.IsDynamic)
	assert.Equal(t, fieldtype.Positive, info.Spec.SepTypes.Concrete)
}

func TestGetDynamicSubproperties_NestedPath(t *testing.T) {
	s := New(nil)
	inner := value.NewOrderedMap()
	inner.Set("city", value.String("nyc"))
	require.NoError(t, s.Update(context.Background(), doc("address", value.Map(inner))))

	info := s.GetDynamicSubproperties("address.city")
	assert.True(t, info.Found)
	assert.Equal(t, fieldtype.Keyword, info.Spec.SepTypes.Concrete)
}

func TestGetDynamicSubproperties_UnknownPathNotFound(t *testing.T) {
	s := New(nil)
	info := s.GetDynamicSubproperties("nonexistent")
	assert.False(t, info.Found)
}

func TestGetDynamicSubproperties_NumericAccuracySuffix(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Update(context.Background(), doc("price", value.IntS(100))))

	info := s.GetDynamicSubproperties("price_1000")
	require.True(t, info.Found)
	assert.True(t, info.IsDynamic)
	assert.Equal(t, "price_1000", info.AccSuffix)
	assert.GreaterOrEqual(t, info.AccIndex, 0)
	assert.Equal(t, uint64(1000), info.Spec.Accuracy[info.AccIndex])
}

func TestGetDynamicSubproperties_UnconfiguredAccuracySuffixNotFound(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Update(context.Background(), doc("price", value.IntS(100))))

	info := s.GetDynamicSubproperties("price_7")
	assert.False(t, info.Found, "7 is not one of the default accuracy buckets")
}

func TestGetDynamicSubproperties_EmptyPathResolvesRoot(t *testing.T) {
	s := New(nil)
	info := s.GetDynamicSubproperties("")
	assert.True(t, info.Found)
}

// schemaWithReservedUUIDOwner builds a properties tree with a "owner"
// field whose canonical uuidschema.ReservedSegment sub-schema has a
// "name" keyword field, set up directly on the tree rather than through
// Update/walkField: a literal "_uuid" document key is itself a
// castKeys cast-object marker (reserved.go), so it can never survive
// splitOverridesAndSubfields as an ordinary subfield -- the reserved
// sub-schema is schema-design-time state, not something a document
// write can populate.
func schemaWithReservedUUIDOwner() *Schema {
	nameNode := NewPropertiesNode()
	nameNode.SetType(fieldtype.FullType{Concrete: fieldtype.Keyword})

	uuidNode := NewPropertiesNode()
	uuidNode.SetSubfield("name", nameNode)

	ownerNode := NewPropertiesNode()
	ownerNode.SetSubfield(uuidschema.ReservedSegment, uuidNode)

	root := NewPropertiesNode()
	root.SetSubfield("owner", ownerNode)
	return New(root)
}

func TestGetDynamicSubproperties_UUIDSegmentDescendsViaReservedSubSchema(t *testing.T) {
	s := schemaWithReservedUUIDOwner()

	info := s.GetDynamicSubproperties("owner.550e8400-e29b-41d4-a716-446655440000.name")
	require.True(t, info.Found)
	assert.False(t, info.Namespace)
	assert.Equal(t, fieldtype.Keyword, info.Spec.SepTypes.Concrete)
}

func TestGetDynamicSubproperties_UUIDSegmentCarriesItsOwnComputedPrefix(t *testing.T) {
	s := schemaWithReservedUUIDOwner()

	const uuidSeg = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	info := s.GetDynamicSubproperties("owner." + uuidSeg)
	require.True(t, info.Found)

	wantPrefix, err := uuidschema.Prefix(uuidSeg)
	require.NoError(t, err)
	assert.Equal(t, wantPrefix, info.Spec.PrefixUUID, "a literal UUID segment's prefix is derived from the segment, not inherited from the reserved placeholder")
}

func TestGetDynamicSubproperties_NonUUIDUnknownSegmentNotFound(t *testing.T) {
	s := schemaWithReservedUUIDOwner()

	info := s.GetDynamicSubproperties("owner.not-a-uuid-at-all")
	assert.False(t, info.Found)
}

func TestGetDynamicSubproperties_NamespaceFallthroughForUnknownSegment(t *testing.T) {
	s := New(nil)
	tags := value.NewOrderedMap()
	tags.Set(KeyNamespace, value.Bool(true))
	tags.Set("known", value.String("exists"))
	require.NoError(t, s.Update(context.Background(), doc("tags", value.Map(tags))))

	info := s.GetDynamicSubproperties("tags.environment.production")
	assert.True(t, info.Found)
	assert.True(t, info.IsDynamic)
	assert.True(t, info.Namespace)
	assert.Equal(t, "tags.environment.production", info.Path)
}

func TestGetDynamicSubproperties_NonNamespaceUnknownSegmentStillNotFound(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Update(context.Background(), doc("title", value.String("hello"))))

	info := s.GetDynamicSubproperties("title.nope")
	assert.False(t, info.Found)
	assert.False(t, info.Namespace)
}

func TestGetDynamicSubproperties_PathExceedingMaxDepthIsHardError(t *testing.T) {
	s := New(nil)
	deep := ""
	for i := 0; i < LimitPartialPathsDepth+2; i++ {
		if deep != "" {
			deep += "."
		}
		deep += "a"
	}

	info := s.GetDynamicSubproperties(deep)
	assert.False(t, info.Found)
	require.Error(t, info.Err)
}

func TestFieldIsOrdered(t *testing.T) {
	assert.True(t, fieldIsOrdered(fieldtype.Integer))
	assert.True(t, fieldIsOrdered(fieldtype.DateTime))
	assert.False(t, fieldIsOrdered(fieldtype.Keyword))
	assert.False(t, fieldIsOrdered(fieldtype.Boolean))
}
