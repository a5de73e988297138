// Package serializer implements the document <-> bytes codecs of spec §3/§4.B
// and the byte-stable canonical JSON encoder of §4.E.
//
// Canonical JSON is hand-rolled rather than routed through encoding/json's
// default map marshaling because Go does not let the caller control key
// order there; the teacher's own object encoders (modules/zeta/object/blob.go)
// take the same hand-rolled approach for the same reason.
package serializer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// sortKey maps a JSON object key to a sort key where keys beginning with
// '_' sort as if that leading '_' were '￿' -- i.e. after every ordinary
// key, in underscore-prefixed keys' own relative order.
func sortKey(k string) string {
	if len(k) > 0 && k[0] == '_' {
		return "￿" + k[1:]
	}
	return k
}

// CanonicalJSON renders v (expected to unmarshal into a JSON object at the
// top level, though any JSON value is accepted) as canonical, byte-stable
// JSON: object keys sorted by the rule above, 2-space indent.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return CanonicalizeBytes(raw)
}

// CanonicalizeBytes re-serializes an arbitrary JSON byte string into
// canonical form. It is idempotent: CanonicalizeBytes(CanonicalizeBytes(b))
// == CanonicalizeBytes(b).
func CanonicalizeBytes(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	var buf bytes.Buffer
	if err := encodeValue(&buf, v, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v any, depth int) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(string(t))
	case string:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(b)
	case []any:
		return encodeArray(buf, t, depth)
	case map[string]any:
		return encodeObject(buf, t, depth)
	default:
		// Fallback for concrete Go values passed directly (not via
		// json.Unmarshal), e.g. int, float64, []byte.
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		return encodeRaw(buf, b, depth)
	}
	return nil
}

// encodeRaw re-enters the canonicalizer for a marshaled-but-unsorted value.
func encodeRaw(buf *bytes.Buffer, raw []byte, depth int) error {
	canon, err := CanonicalizeBytes(raw)
	if err != nil {
		return err
	}
	buf.Write(canon)
	return nil
}

func indent(buf *bytes.Buffer, depth int) {
	for i := 0; i < depth; i++ {
		buf.WriteString("  ")
	}
}

func encodeArray(buf *bytes.Buffer, arr []any, depth int) error {
	if len(arr) == 0 {
		buf.WriteString("[]")
		return nil
	}
	buf.WriteString("[\n")
	for i, elem := range arr {
		indent(buf, depth+1)
		if err := encodeValue(buf, elem, depth+1); err != nil {
			return err
		}
		if i != len(arr)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	indent(buf, depth)
	buf.WriteByte(']')
	return nil
}

func encodeObject(buf *bytes.Buffer, obj map[string]any, depth int) error {
	if len(obj) == 0 {
		buf.WriteString("{}")
		return nil
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return compareUTF16(sortKey(keys[i]), sortKey(keys[j]))
	})
	buf.WriteString("{\n")
	for i, k := range keys {
		indent(buf, depth+1)
		kb, err := json.Marshal(k)
		if err != nil {
			return err
		}
		buf.Write(kb)
		buf.WriteString(": ")
		if err := encodeValue(buf, obj[k], depth+1); err != nil {
			return err
		}
		if i != len(keys)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	indent(buf, depth)
	buf.WriteByte('}')
	return nil
}

// compareUTF16 orders strings by UTF-16 code-unit order, matching the
// comparison JavaScript's default Array.sort uses (spec §4.E).
func compareUTF16(a, b string) bool {
	ua := utf16Units(a)
	ub := utf16Units(b)
	n := len(ua)
	if len(ub) < n {
		n = len(ub)
	}
	for i := 0; i < n; i++ {
		if ua[i] != ub[i] {
			return ua[i] < ub[i]
		}
	}
	return len(ua) < len(ub)
}

func utf16Units(s string) []uint16 {
	units := make([]uint16, 0, len(s))
	for _, r := range s {
		if r > 0xFFFF {
			r -= 0x10000
			units = append(units, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
			continue
		}
		units = append(units, uint16(r))
	}
	return units
}

// InjectID overwrites (or inserts) the "_id" key of a canonical JSON
// document with shortID, per spec §3's reader invariant.
func InjectID(raw []byte, shortID string) ([]byte, error) {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("inject id: %w", err)
	}
	obj["_id"] = shortID
	return CanonicalJSON(obj)
}

// Itoa formats n in base 10 (strconv.Itoa), for call sites that format
// array indices as object keys.
func Itoa(n int) string { return strconv.Itoa(n) }
