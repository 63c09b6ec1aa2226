package schema

import (
	"testing"

	"github.com/blevesearch/bleve/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puer99miss/Xapiand/internal/fieldtype"
)

func TestBuildRangeQuery_RejectsUnorderedType(t *testing.T) {
	spec := RequiredSpc{SepTypes: fieldtype.FullType{Concrete: fieldtype.Boolean}}
	_, err := BuildRangeQuery(spec, 0, 10)
	assert.Error(t, err)
}

func TestBuildRangeQuery_RejectsEmptyAccuracy(t *testing.T) {
	spec := RequiredSpc{SepTypes: fieldtype.FullType{Concrete: fieldtype.Integer}}
	_, err := BuildRangeQuery(spec, 0, 10)
	assert.Error(t, err)
}

func TestBuildRangeQuery_BuildsSearchRequest(t *testing.T) {
	spec := RequiredSpc{
		SepTypes: fieldtype.FullType{Concrete: fieldtype.Integer},
		Accuracy: DefaultAccuracy(fieldtype.Integer),
	}
	prefixes := make([][]byte, len(spec.Accuracy))
	for i := range spec.Accuracy {
		prefixes[i] = []byte{byte(i)}
	}
	spec.AccPrefix = prefixes

	q, err := BuildRangeQuery(spec, 0, 500)
	require.NoError(t, err)
	_, ok := q.(*bleve.SearchRequest)
	assert.True(t, ok)
}

func TestBuildTermQuery_RejectsUntypedField(t *testing.T) {
	spec := RequiredSpc{SepTypes: fieldtype.FullType{Concrete: fieldtype.Empty}}
	_, err := BuildTermQuery(spec, []byte("x"))
	assert.Error(t, err)
}

func TestBuildTermQuery_BuildsSearchRequest(t *testing.T) {
	spec := RequiredSpc{SepTypes: fieldtype.FullType{Concrete: fieldtype.Keyword}, PrefixField: []byte{1}}
	q, err := BuildTermQuery(spec, []byte("hello"))
	require.NoError(t, err)
	_, ok := q.(*bleve.SearchRequest)
	assert.True(t, ok)
}
