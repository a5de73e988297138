package sniff

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	assert.Equal(t, KindJSON, Detect([]byte(`{"a":1}`)))
	assert.Equal(t, KindText, Detect([]byte("hello world\n")))
	assert.Equal(t, KindBinary, Detect([]byte{0x50, 0x4b, 0x03, 0x04, 0x00, 0x00}))
}

func TestIsBinaryNulByte(t *testing.T) {
	assert.True(t, IsBinary([]byte("abc\x00def")))
	assert.False(t, IsBinary([]byte("abcdef")))
}

func TestDecodeFromCharsetUnknown(t *testing.T) {
	_, err := DecodeFromCharset([]byte("x"), "does-not-exist")
	assert.Error(t, err)
}
