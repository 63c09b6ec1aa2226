package script

import (
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

func TestRun_MapResultReplacesDocument(t *testing.T) {
	obj := doc("title", value.String("hello"))

	out, changed, err := Run(`{"title": title, "extra": "added"}`, obj)
	require.NoError(t, err)
	assert.True(t, changed)

	m, ok := out.Map()
	require.True(t, ok)
	title, _ := m.Get("title")
	s, _ := title.String()
	assert.Equal(t, "hello", s)
	extra, ok := m.Get("extra")
	require.True(t, ok)
	s2, _ := extra.String()
	assert.Equal(t, "added", s2)
}

func TestRun_NonMapResultLeavesDocumentUnchanged(t *testing.T) {
	obj := doc("age", value.IntS(1))

	out, changed, err := Run("age + 1", obj)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, obj, out)
}

func TestRun_InvalidExpressionErrors(t *testing.T) {
	obj := doc("age", value.IntS(1))
	_, _, err := Run("this is not valid expr syntax (((", obj)
	assert.Error(t, err)
}

func TestRun_ReferencesExistingField(t *testing.T) {
	obj := doc("count", value.IntS(5))
	out, changed, err := Run(`{"count": count, "doubled": count * 2}`, obj)
	require.NoError(t, err)
	require.True(t, changed)

	m, ok := out.Map()
	require.True(t, ok)
	doubled, ok := m.Get("doubled")
	require.True(t, ok)
	n, _ := doubled.IntS()
	assert.EqualValues(t, 10, n)
}
