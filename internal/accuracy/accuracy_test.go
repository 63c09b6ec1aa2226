package accuracy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puer99miss/Xapiand/internal/fieldtype"
	"github.com/puer99miss/Xapiand/internal/value"
)

func TestNumericAccuracyTerms(t *testing.T) {
	accuracyList := []uint64{100, 1000}
	accPrefix := [][]byte{[]byte("A"), []byte("B")}

	terms, err := Terms(fieldtype.Positive, value.IntU(37), accuracyList, accPrefix, nil)
	require.NoError(t, err)
	require.Len(t, terms, 2)
	assert.Equal(t, []byte("A"), terms[0].Prefix)
}

func TestRangeQueryGenerationScenario(t *testing.T) {
	// spec.md §8 scenario 3: age._accuracy=[100,1000], range [250,2750].
	// The coarsest bucket (1000) must OR anchors {0,1000,2000}; the finer
	// bucket (100) must AND in a refinement at {200,300,...,2700}.
	accuracyList := []uint64{100, 1000}
	accPrefix := [][]byte{[]byte("A"), []byte("B")}

	q, err := InverseNumericRange(accuracyList, accPrefix, 250, 2750)
	require.NoError(t, err)

	wantOR := bucketRangeTerms(1000, []byte("B"), 250, 2750)
	wantAND := bucketRangeTerms(100, []byte("A"), 250, 2750)

	assert.Equal(t, wantOR, q.OR)
	assert.Equal(t, wantAND, q.AND, "a finer bucket that also satisfies MaxTerms must refine the coarse OR, not be skipped")
	assert.Len(t, wantOR, 3)
	assert.Len(t, wantAND, 26)
	assert.LessOrEqual(t, len(q.OR), MaxTerms)
	assert.LessOrEqual(t, len(q.AND), MaxTerms)
}

func TestAccuracyBoundInvariant(t *testing.T) {
	accuracyList := []uint64{1}
	accPrefix := [][]byte{[]byte("A")}
	q, err := InverseNumericRange(accuracyList, accPrefix, 0, 1_000_000)
	if err == nil {
		assert.LessOrEqual(t, len(q.OR), MaxTerms)
	}
}

func TestDateAccuracyZeroesFinerFields(t *testing.T) {
	accuracyList := []uint64{uint64(Year)}
	accPrefix := [][]byte{[]byte("Y")}
	terms, err := Terms(fieldtype.DateTime, value.String("2024-03-15T10:30:00Z"), accuracyList, accPrefix, nil)
	require.NoError(t, err)
	require.Len(t, terms, 1)
}
