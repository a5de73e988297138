package jsonpatch

import (
	"fmt"
	"strconv"
	"strings"
)

// Apply returns a new value with delta applied to doc. doc is never
// mutated in place; nested maps/slices touched by the delta are copied.
func Apply(doc any, delta Delta) (any, error) {
	if len(delta) == 0 {
		return doc, nil
	}
	switch d := doc.(type) {
	case map[string]any:
		return applyObject(d, delta)
	case []any:
		return applyArray(d, delta)
	default:
		return nil, fmt.Errorf("jsonpatch: cannot apply delta to %T", doc)
	}
}

func applyObject(obj map[string]any, delta Delta) (map[string]any, error) {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	for k, raw := range delta {
		switch op := raw.(type) {
		case []any:
			if err := applyLeafOp(out, k, op); err != nil {
				return nil, err
			}
		case Delta:
			cur, ok := out[k]
			if !ok {
				return nil, fmt.Errorf("jsonpatch: nested delta on missing key %q", k)
			}
			merged, err := Apply(cur, op)
			if err != nil {
				return nil, err
			}
			out[k] = merged
		default:
			return nil, fmt.Errorf("jsonpatch: unrecognized delta entry for %q: %T", k, raw)
		}
	}
	return out, nil
}

func applyLeafOp(obj map[string]any, key string, op []any) error {
	switch len(op) {
	case 1:
		obj[key] = op[0]
	case 2:
		obj[key] = op[1]
	case 3:
		if toFloat(op[2]) == 2 {
			text, ok := op[0].(string)
			if !ok {
				return fmt.Errorf("jsonpatch: malformed text-patch delta for %q", key)
			}
			cur, ok := obj[key].(string)
			if !ok {
				return fmt.Errorf("jsonpatch: text patch target %q is not a string", key)
			}
			patched, err := applyTextPatch(cur, text)
			if err != nil {
				return err
			}
			obj[key] = patched
			return nil
		}
		delete(obj, key)
	default:
		return fmt.Errorf("jsonpatch: malformed leaf delta for %q", key)
	}
	return nil
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}

func applyArray(arr []any, delta Delta) ([]any, error) {
	out := make([]any, len(arr))
	copy(out, arr)

	// Apply moves first: collect (fromIdx -> toIdx) pairs and the
	// surviving elements, then deletes, then inserts/updates by index.
	moves := map[int]int{}
	deletes := map[int]bool{}
	for k, raw := range delta {
		if !strings.HasPrefix(k, "_") {
			continue
		}
		idx, err := strconv.Atoi(k[1:])
		if err != nil {
			return nil, fmt.Errorf("jsonpatch: malformed array delta key %q", k)
		}
		op, ok := raw.([]any)
		if !ok || len(op) != 3 {
			return nil, fmt.Errorf("jsonpatch: malformed array delta value for %q", k)
		}
		if s, ok := op[0].(string); ok && s == "" && toFloat(op[2]) == 3 {
			moves[idx] = int(toFloat(op[1]))
			continue
		}
		deletes[idx] = true
	}

	result := make([]any, 0, len(out))
	moved := make(map[int]any, len(moves))
	for i, v := range out {
		if toIdx, ok := moves[i]; ok {
			moved[toIdx] = v
			continue
		}
		if deletes[i] {
			continue
		}
		result = append(result, v)
	}

	// Re-insert moved elements at their destination index.
	if len(moved) > 0 {
		withMoves := make([]any, 0, len(result)+len(moved))
		maxIdx := len(result) + len(moved)
		srcI := 0
		for i := 0; i < maxIdx; i++ {
			if v, ok := moved[i]; ok {
				withMoves = append(withMoves, v)
				continue
			}
			if srcI < len(result) {
				withMoves = append(withMoves, result[srcI])
				srcI++
			}
		}
		for ; srcI < len(result); srcI++ {
			withMoves = append(withMoves, result[srcI])
		}
		result = withMoves
	}

	for _, k := range sortedKeys(delta) {
		if strings.HasPrefix(k, "_") {
			continue
		}
		idx, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("jsonpatch: malformed array delta key %q", k)
		}
		raw := delta[k]
		switch op := raw.(type) {
		case []any:
			switch len(op) {
			case 1:
				result = insertAt(result, idx, op[0])
			case 2:
				if idx < len(result) {
					result[idx] = op[1]
				}
			default:
				if idx < len(result) {
					if cur, ok := result[idx].(string); ok {
						if text, ok := op[0].(string); ok {
							patched, err := applyTextPatch(cur, text)
							if err != nil {
								return nil, err
							}
							result[idx] = patched
							continue
						}
					}
					result[idx] = nil
				}
			}
		case Delta:
			if idx < len(result) {
				merged, err := Apply(result[idx], op)
				if err != nil {
					return nil, err
				}
				result[idx] = merged
			}
		}
	}

	return result, nil
}

func insertAt(s []any, idx int, v any) []any {
	if idx >= len(s) {
		padded := make([]any, idx+1)
		copy(padded, s)
		padded[idx] = v
		return padded
	}
	out := make([]any, 0, len(s)+1)
	out = append(out, s[:idx]...)
	out = append(out, v)
	out = append(out, s[idx:]...)
	return out
}
