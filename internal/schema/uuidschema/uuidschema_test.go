package uuidschema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrefix_DeterministicForSameUUID(t *testing.T) {
	id := "550e8400-e29b-41d4-a716-446655440000"
	p1, err := Prefix(id)
	require.NoError(t, err)
	p2, err := Prefix(id)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	assert.Len(t, p1, 4)
}

func TestPrefix_DiffersAcrossUUIDs(t *testing.T) {
	p1, err := Prefix("550e8400-e29b-41d4-a716-446655440000")
	require.NoError(t, err)
	p2, err := Prefix("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
}

func TestPrefix_RejectsNonUUID(t *testing.T) {
	_, err := Prefix("not-a-uuid")
	assert.Error(t, err)
}
