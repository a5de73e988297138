package serializer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cairndb/cairn/internal/sniff"
	"gopkg.in/yaml.v3"
)

// Doc is the decoded form of a document payload: a JSON-compatible value
// tree plus a tag recording which codec produced it, so Encode can invert
// the choice.
type Doc struct {
	Kind  sniff.Kind
	Value any    // for KindJSON and KindText front-matter bodies: map[string]any or string
	Text  string // raw text body for KindText, YAML body for front-matter
	Raw   []byte // raw bytes for KindBinary
}

// Codec turns a document value tree into bytes and back. cairn registers
// one per file extension (spec §4.B); unregistered extensions fall back to
// the binary passthrough codec.
type Codec interface {
	Name() string
	Encode(v any) ([]byte, error)
	Decode(raw []byte) (any, error)
}

// JSONCodec renders/parses canonical JSON documents.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Encode(v any) ([]byte, error) { return CanonicalJSON(v) }

func (JSONCodec) Decode(raw []byte) (any, error) {
	canon, err := CanonicalizeBytes(raw)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(canon, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// FrontMatterCodec renders/parses "---\n<yaml>\n---\n<body>" documents, the
// Markdown/Jekyll front-matter convention. The YAML leg reuses gopkg.in/
// yaml.v3, which the teacher already depends on for its own config/manifest
// parsing elsewhere in the pack.
type FrontMatterCodec struct{}

func (FrontMatterCodec) Name() string { return "front-matter" }

const frontMatterDelim = "---"

type frontMatterDoc struct {
	Meta map[string]any
	Body string
}

func (FrontMatterCodec) Encode(v any) ([]byte, error) {
	fm, ok := v.(*frontMatterDoc)
	if !ok {
		return nil, fmt.Errorf("serializer: front-matter encode: unexpected value type %T", v)
	}
	meta, err := yaml.Marshal(fm.Meta)
	if err != nil {
		return nil, fmt.Errorf("serializer: front-matter encode: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(frontMatterDelim)
	buf.WriteByte('\n')
	buf.Write(meta)
	buf.WriteString(frontMatterDelim)
	buf.WriteByte('\n')
	buf.WriteString(fm.Body)
	return buf.Bytes(), nil
}

func (FrontMatterCodec) Decode(raw []byte) (any, error) {
	s := string(raw)
	if !strings.HasPrefix(s, frontMatterDelim+"\n") {
		return nil, fmt.Errorf("serializer: missing front-matter delimiter")
	}
	rest := s[len(frontMatterDelim)+1:]
	end := strings.Index(rest, "\n"+frontMatterDelim+"\n")
	if end < 0 {
		return nil, fmt.Errorf("serializer: unterminated front-matter block")
	}
	metaRaw := rest[:end]
	body := rest[end+len("\n"+frontMatterDelim+"\n"):]
	var meta map[string]any
	if err := yaml.Unmarshal([]byte(metaRaw), &meta); err != nil {
		return nil, fmt.Errorf("serializer: front-matter yaml: %w", err)
	}
	return &frontMatterDoc{Meta: meta, Body: body}, nil
}

// TextCodec passes UTF-8 text through unchanged.
type TextCodec struct{}

func (TextCodec) Name() string                     { return "text" }
func (TextCodec) Encode(v any) ([]byte, error)      { return []byte(fmt.Sprint(v)), nil }
func (TextCodec) Decode(raw []byte) (any, error)    { return string(raw), nil }

// BinaryCodec passes bytes through unchanged; this is the fallback for any
// extension with no registered codec, and the codec ForKind returns for
// sniff.KindBinary.
type BinaryCodec struct{}

func (BinaryCodec) Name() string                  { return "binary" }
func (BinaryCodec) Encode(v any) ([]byte, error)   { b, _ := v.([]byte); return b, nil }
func (BinaryCodec) Decode(raw []byte) (any, error) { return raw, nil }

// Registry maps file extensions to codecs, as spec §4.B's extension table.
type Registry struct {
	byExt map[string]Codec
}

// NewRegistry returns the default registry: ".json" -> JSONCodec,
// ".md"/".markdown" -> FrontMatterCodec, ".txt" -> TextCodec, everything
// else -> BinaryCodec.
func NewRegistry() *Registry {
	return &Registry{byExt: map[string]Codec{
		".json":     JSONCodec{},
		".md":       FrontMatterCodec{},
		".markdown": FrontMatterCodec{},
		".txt":      TextCodec{},
	}}
}

// Register overrides (or adds) the codec used for ext (e.g. ".yaml").
func (r *Registry) Register(ext string, c Codec) {
	r.byExt[ext] = c
}

// For returns the codec registered for ext, or BinaryCodec if none is.
func (r *Registry) For(ext string) Codec {
	if c, ok := r.byExt[ext]; ok {
		return c
	}
	return BinaryCodec{}
}

// ForKind returns the codec for a document kind directly, bypassing the
// extension table. Used by readers honoring an explicit forceDocType
// override (spec §4.C) instead of inferring the codec from the file's
// extension.
func (r *Registry) ForKind(kind sniff.Kind) Codec {
	switch kind {
	case sniff.KindJSON:
		return JSONCodec{}
	case sniff.KindText:
		return TextCodec{}
	default:
		return BinaryCodec{}
	}
}
