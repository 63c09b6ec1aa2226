package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/puer99miss/Xapiand/internal/fieldtype"
)

func TestDefaultAccuracy_NumericTypes(t *testing.T) {
	for _, ft := range []fieldtype.FieldType{fieldtype.Integer, fieldtype.Positive, fieldtype.Floating} {
		assert.Equal(t, []uint64{100, 1_000, 10_000, 100_000, 1_000_000, 100_000_000}, DefaultAccuracy(ft))
	}
}

func TestDefaultAccuracy_GeoAscendingLevels(t *testing.T) {
	acc := DefaultAccuracy(fieldtype.Geo)
	for i := 1; i < len(acc); i++ {
		assert.Less(t, acc[i-1], acc[i])
	}
}

func TestDefaultAccuracy_UnsupportedTypeIsNil(t *testing.T) {
	assert.Nil(t, DefaultAccuracy(fieldtype.Keyword))
	assert.Nil(t, DefaultAccuracy(fieldtype.Boolean))
}

func TestSpecification_RestartClearsPerFieldStateOnly(t *testing.T) {
	s := &Specification{MetaName: "age", FullMetaName: "age"}
	s.Position = []int{1}
	s.FieldFound = true
	s.Concrete = true

	s.restart()

	assert.Nil(t, s.Position)
	assert.False(t, s.FieldFound)
	assert.False(t, s.Concrete)
	assert.Equal(t, "age", s.MetaName, "restart must preserve the path-carrying fields")
}
