package search

import (
	"strings"
	"unicode"
)

// tokenize flattens the named fields (or every string-valued field when
// fields is empty) of a document into lowercase word tokens.
func tokenize(fields []string, values map[string]any) []string {
	var out []string
	if len(fields) == 0 {
		for _, v := range values {
			out = append(out, tokenizeValue(v)...)
		}
		return out
	}
	for _, f := range fields {
		out = append(out, tokenizeValue(values[f])...)
	}
	return out
}

func tokenizeValue(v any) []string {
	switch t := v.(type) {
	case string:
		return splitTokens(t)
	case []any:
		var out []string
		for _, e := range t {
			out = append(out, tokenizeValue(e)...)
		}
		return out
	default:
		return nil
	}
}

// splitTokens lowercases s and splits it on anything that isn't a letter
// or digit, discarding empty fields.
func splitTokens(s string) []string {
	lower := strings.ToLower(s)
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
