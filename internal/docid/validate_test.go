package docid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateID(t *testing.T) {
	ok := []string{"x", "nara/park", "a/b/c", "日本語", "id-with.dot"}
	for _, id := range ok {
		assert.NoError(t, ValidateID(id), id)
	}

	bad := []string{"", ".", "..", "/leading", "trailing/", "trailing.", "trailing ", "bad<name", "a\x00b"}
	for _, id := range bad {
		assert.Error(t, ValidateID(id), id)
	}
}

func TestValidateCollectionPath(t *testing.T) {
	require.NoError(t, ValidateCollectionPath(""))
	require.NoError(t, ValidateCollectionPath("nara/"))
	require.NoError(t, ValidateCollectionPath("nara/temple/"))
	require.Error(t, ValidateCollectionPath("nara"))
	require.Error(t, ValidateCollectionPath("../nara/"))
}

func TestIsUnderMetadataDir(t *testing.T) {
	assert.True(t, IsUnderMetadataDir(".gitddb/info.json", ".gitddb"))
	assert.False(t, IsUnderMetadataDir("nara/park.json", ".gitddb"))
}
