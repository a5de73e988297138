// Package sniff classifies a document payload as JSON, text, or binary
// (Detect), and normalizes text payloads to UTF-8. The serializer registry
// picks codecs by file extension and does not call Detect.
//
// The charset table and NewReader shape are adapted directly from
// the teacher's modules/chardet/encoding.go (golang.org/x/text/encoding).
// The binary/text split mirrors git's own NUL-byte-in-first-8000-bytes
// heuristic, which modules/git shells out to for .gitattributes-driven
// diffing.
package sniff

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
)

var encodings = map[string]encoding.Encoding{
	"iso-8859-1":   charmap.ISO8859_1,
	"iso-8859-2":   charmap.ISO8859_2,
	"windows-1252": charmap.Windows1252,
	"gbk":          simplifiedchinese.GBK,
	"gb18030":      simplifiedchinese.GB18030,
	"big5":         traditionalchinese.Big5,
	"euc-jp":       japanese.EUCJP,
	"shift_jis":    japanese.ShiftJIS,
	"euc-kr":       korean.EUCKR,
	"utf-16be":     unicode.UTF16(unicode.BigEndian, unicode.UseBOM),
	"utf-16le":     unicode.UTF16(unicode.LittleEndian, unicode.UseBOM),
}

// NewReader wraps r so reads come out as UTF-8, decoding from charset.
// An unrecognized charset name passes bytes through unchanged.
func NewReader(r io.Reader, charset string) io.Reader {
	if e, ok := encodings[strings.ToLower(charset)]; ok {
		return e.NewDecoder().Reader(r)
	}
	return r
}

// DecodeFromCharset decodes input (in charset) to UTF-8.
func DecodeFromCharset(input []byte, charset string) ([]byte, error) {
	e, ok := encodings[strings.ToLower(charset)]
	if !ok {
		return nil, fmt.Errorf("sniff: unrecognized charset %q", charset)
	}
	return e.NewDecoder().Bytes(input)
}

// Kind is the coarse classification a serializer is picked from.
type Kind int

const (
	KindJSON Kind = iota
	KindText
	KindBinary
)

func (k Kind) String() string {
	switch k {
	case KindJSON:
		return "json"
	case KindText:
		return "text"
	default:
		return "binary"
	}
}

// binarySampleBytes is how much of the payload IsBinary inspects, matching
// git's own default buffer_is_binary sample size.
const binarySampleBytes = 8000

// IsBinary reports whether data looks like a binary blob: a NUL byte
// anywhere in the first 8000 bytes. Invalid UTF-8 is not checked here;
// Detect checks it separately.
func IsBinary(data []byte) bool {
	sample := data
	if len(sample) > binarySampleBytes {
		sample = sample[:binarySampleBytes]
	}
	return bytes.IndexByte(sample, 0) >= 0
}

// Detect classifies raw document bytes. JSON is tried first (a document
// whose entire payload parses as a JSON value is JSON); otherwise binary
// vs. text is decided by IsBinary.
func Detect(data []byte) Kind {
	if json.Valid(bytes.TrimSpace(data)) && len(bytes.TrimSpace(data)) > 0 {
		return KindJSON
	}
	if IsBinary(data) {
		return KindBinary
	}
	if !utf8.Valid(data) {
		return KindBinary
	}
	return KindText
}
