package serializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryDefaults(t *testing.T) {
	r := NewRegistry()
	assert.IsType(t, JSONCodec{}, r.For(".json"))
	assert.IsType(t, FrontMatterCodec{}, r.For(".md"))
	assert.IsType(t, TextCodec{}, r.For(".txt"))
	assert.IsType(t, BinaryCodec{}, r.For(".bin"))
	assert.IsType(t, BinaryCodec{}, r.For(""))
}

func TestFrontMatterRoundtrip(t *testing.T) {
	c := FrontMatterCodec{}
	in := &frontMatterDoc{Meta: map[string]any{"title": "Nara"}, Body: "hello\n"}
	raw, err := c.Encode(in)
	require.NoError(t, err)

	out, err := c.Decode(raw)
	require.NoError(t, err)
	fm, ok := out.(*frontMatterDoc)
	require.True(t, ok)
	assert.Equal(t, "Nara", fm.Meta["title"])
	assert.Equal(t, "hello\n", fm.Body)
}

func TestFrontMatterMissingDelimiter(t *testing.T) {
	_, err := FrontMatterCodec{}.Decode([]byte("no delimiter here"))
	assert.Error(t, err)
}

func TestJSONCodecRoundtrip(t *testing.T) {
	c := JSONCodec{}
	raw, err := c.Encode(map[string]any{"b": 1, "a": 2})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 2,\n  \"b\": 1\n}", string(raw))

	v, err := c.Decode(raw)
	require.NoError(t, err)
	m, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), m["a"])
}
