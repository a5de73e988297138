package serializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalJSONKeyOrder(t *testing.T) {
	out, err := CanonicalJSON(map[string]any{"b": 1, "a": 2, "_id": "x"})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 2,\n  \"b\": 1,\n  \"_id\": \"x\"\n}", string(out))
}

func TestCanonicalJSONIdempotent(t *testing.T) {
	raw := []byte(`{"z": [3,2,1], "_meta": {"y": 1, "a": 2}, "a": "日本語"}`)
	once, err := CanonicalizeBytes(raw)
	require.NoError(t, err)
	twice, err := CanonicalizeBytes(once)
	require.NoError(t, err)
	assert.Equal(t, string(once), string(twice))
}

func TestCanonicalJSONEmptyCollections(t *testing.T) {
	out, err := CanonicalJSON(map[string]any{"a": []any{}, "b": map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": [],\n  \"b\": {}\n}", string(out))
}

func TestInjectID(t *testing.T) {
	out, err := InjectID([]byte(`{"a":1}`), "nara/park")
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1,\n  \"_id\": \"nara/park\"\n}", string(out))
}
