package search

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddSearchUpdateDelete(t *testing.T) {
	idx, err := OpenOrCreate(context.Background(), Options{})
	require.NoError(t, err)

	idx.AddIndex(Document{ID: "1", Fields: map[string]any{"title": "Quiet Mountain Trail"}})
	idx.AddIndex(Document{ID: "2", Fields: map[string]any{"title": "Quiet Library Hours"}})

	assert.ElementsMatch(t, []string{"1", "2"}, idx.Search("quiet", false))
	assert.Equal(t, []string{"1"}, idx.Search("mountain", false))

	idx.UpdateIndex(Document{ID: "1", Fields: map[string]any{"title": "Loud Mountain Trail"}})
	assert.Empty(t, idx.Search("quiet mountain", false))
	assert.Equal(t, []string{"1"}, idx.Search("loud", false))

	idx.DeleteIndex("2")
	assert.Empty(t, idx.Search("library", false))
}

func TestSearchOrVsAnd(t *testing.T) {
	idx, err := OpenOrCreate(context.Background(), Options{})
	require.NoError(t, err)
	idx.AddIndex(Document{ID: "1", Fields: map[string]any{"body": "alpha beta"}})
	idx.AddIndex(Document{ID: "2", Fields: map[string]any{"body": "alpha"}})

	assert.ElementsMatch(t, []string{"1", "2"}, idx.Search("alpha beta", true))
	assert.Equal(t, []string{"1"}, idx.Search("alpha beta", false))
}

func TestSerializeRoundTrip(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "index.zip")
	idx, err := OpenOrCreate(context.Background(), Options{ArchivePath: archive})
	require.NoError(t, err)
	idx.AddIndex(Document{ID: "1", Fields: map[string]any{"title": "Portable Index"}})
	require.NoError(t, idx.Serialize())

	reopened, err := OpenOrCreate(context.Background(), Options{ArchivePath: archive})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, reopened.Search("portable", false))

	require.NoError(t, reopened.Destroy())
	assert.Empty(t, reopened.Search("portable", false))
}
