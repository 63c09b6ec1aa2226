package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemBackend(t *testing.T) *BleveBackend {
	b, err := OpenMemBleveBackend(nil)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestIndexDocumentThenGet_ReturnsStoredFields(t *testing.T) {
	b := newMemBackend(t)
	ctx := context.Background()

	doc := &Document{
		ID: "doc-1",
		Terms: []Term{
			{Text: "hello"},
		},
		Fields: map[string]interface{}{
			"title": "hello world",
			"views": float64(7),
		},
	}
	require.NoError(t, b.IndexDocument(ctx, doc))

	got, err := b.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", got.ID)
	assert.Equal(t, "hello world", got.Fields["title"])
	assert.EqualValues(t, 7, got.Fields["views"])
}

func TestGet_MissingDocumentReturnsErrNotFound(t *testing.T) {
	b := newMemBackend(t)
	_, err := b.Get(context.Background(), "does-not-exist")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDeleteDocument_ThenGetReturnsErrNotFound(t *testing.T) {
	b := newMemBackend(t)
	ctx := context.Background()

	require.NoError(t, b.IndexDocument(ctx, &Document{ID: "doc-1", Fields: map[string]interface{}{"a": "b"}}))
	require.NoError(t, b.DeleteDocument(ctx, "doc-1"))

	_, err := b.Get(ctx, "doc-1")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDocCount(t *testing.T) {
	b := newMemBackend(t)
	ctx := context.Background()

	n, err := b.DocCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	require.NoError(t, b.IndexDocument(ctx, &Document{ID: "doc-1", Fields: map[string]interface{}{"a": "b"}}))
	require.NoError(t, b.IndexDocument(ctx, &Document{ID: "doc-2", Fields: map[string]interface{}{"a": "c"}}))

	n, err = b.DocCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestMetadata_RoundTripsAndDefaultsToNil(t *testing.T) {
	b := newMemBackend(t)
	ctx := context.Background()

	v, err := b.GetMetadata(ctx, "schema")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, b.SetMetadata(ctx, "schema", []byte("payload")))
	v, err = b.GetMetadata(ctx, "schema")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), v)
}

func TestMetadata_SurvivesClose(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	b, err := OpenBleveBackend(dir, nil)
	require.NoError(t, err)
	require.NoError(t, b.SetMetadata(ctx, "schema", []byte("payload")))
	require.NoError(t, b.Close())

	reopened, err := OpenBleveBackend(dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	v, err := reopened.GetMetadata(ctx, "schema")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), v, "metadata set before Close must survive a fresh Open of the same path")
}

func TestSearch_RejectsUnsupportedQueryType(t *testing.T) {
	b := newMemBackend(t)
	_, err := b.Search(context.Background(), "not a bleve search request")
	assert.Error(t, err)
}
