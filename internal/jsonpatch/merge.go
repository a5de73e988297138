package jsonpatch

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Strategy picks the winner when ours and theirs touch the same leaf.
type Strategy string

const (
	StrategyOurs      Strategy = "ours"
	StrategyOursDiff  Strategy = "ours-diff"
	StrategyTheirs    Strategy = "theirs"
	StrategyTheirsDiff Strategy = "theirs-diff"
)

// PrefersOurs reports whether strategy resolves an otherwise-undecidable
// conflict (e.g. a binary document, or a plain "ours"/"theirs" pick) in
// favor of the local side.
func (s Strategy) PrefersOurs() bool {
	return s == StrategyOurs || s == StrategyOursDiff
}

func (s Strategy) prefersOurs() bool {
	return s.PrefersOurs()
}

// Conflict records one leaf (or array-element) both sides touched where
// the merge picked a side per strategy rather than composing cleanly.
type Conflict struct {
	Path string
}

// Merge composes oursDelta and theirsDelta -- both diffs against the same
// base document -- into one delta, resolving concurrent edits to the same
// key per strategy. It implements the composition rules of spec §4.H:
// independent edits merge cleanly; concurrent scalar replacement is
// strategy-decided; concurrent update-vs-remove favors update under
// ours-diff and the chosen side otherwise; concurrent array moves of the
// same element favor the left (ours) operand; array replace beats array
// move; array remove beats array move; keyOfUniqueArray properties are
// deduplicated post-composition (see dedupeUniqueArrays).
func Merge(oursDelta, theirsDelta Delta, strategy Strategy, opts Options) (Delta, []Conflict) {
	return mergeDeltas(oursDelta, theirsDelta, strategy, opts, "")
}

func mergeDeltas(ours, theirs Delta, strategy Strategy, opts Options, pathPrefix string) (Delta, []Conflict) {
	merged := Delta{}
	var conflicts []Conflict

	keys := map[string]bool{}
	for k := range ours {
		keys[k] = true
	}
	for k := range theirs {
		keys[k] = true
	}

	for k := range keys {
		op, inOurs := ours[k]
		tp, inTheirs := theirs[k]
		path := pathPrefix + "/" + k

		switch {
		case inOurs && !inTheirs:
			merged[k] = op
		case !inOurs && inTheirs:
			merged[k] = tp
		default:
			resolved, conflicted := resolveLeaf(op, tp, strategy, opts, k)
			merged[k] = resolved
			if conflicted {
				conflicts = append(conflicts, Conflict{Path: path})
			}
		}
	}

	dedupeUniqueArrays(merged, strategy, opts)

	if len(merged) == 0 {
		return nil, conflicts
	}
	return merged, conflicts
}

// resolveLeaf decides the outcome when both sides touch key k.
func resolveLeaf(op, tp any, strategy Strategy, opts Options, key string) (any, bool) {
	oNested, oIsNested := op.(Delta)
	tNested, tIsNested := tp.(Delta)
	if oIsNested && tIsNested {
		sub, subConflicts := mergeDeltas(oNested, tNested, strategy, opts, key)
		return sub, len(subConflicts) > 0
	}

	oLeaf, oIsLeaf := op.([]any)
	tLeaf, tIsLeaf := tp.([]any)
	if oIsLeaf && tIsLeaf {
		return resolveLeafOps(oLeaf, tLeaf, strategy)
	}

	// One side is a nested recurse, the other a leaf replace/delete:
	// update vs remove. Per spec, ours-diff favors the update (the
	// nested, non-removing side); other strategies favor the chosen
	// side outright.
	if strategy == StrategyOursDiff {
		if oIsNested {
			return op, true
		}
		if tIsNested {
			return tp, true
		}
	}
	if strategy.prefersOurs() {
		return op, true
	}
	return tp, true
}

// resolveLeafOps handles two []any leaf ops on the same key: scalar
// replace, delete, text patch, or array move/insert/delete tokens.
func resolveLeafOps(op, tp []any, strategy Strategy) (any, bool) {
	oMove, oIsMove := asMove(op)
	tMove, tIsMove := asMove(tp)
	if oIsMove && tIsMove {
		// Concurrent move of the same element: left operand (ours) wins
		// silently, per spec's documented limitation.
		_ = tMove
		return op, false
	}
	if oIsMove != tIsMove {
		// Array replace/remove takes precedence over array move.
		if oIsMove {
			return tp, false
		}
		return op, false
	}
	_ = oMove

	if strategy.prefersOurs() {
		return op, true
	}
	return tp, true
}

func asMove(op []any) ([]any, bool) {
	if len(op) != 3 {
		return nil, false
	}
	s, ok := op[0].(string)
	if !ok || s != "" {
		return nil, false
	}
	return op, toFloat(op[2]) == 3
}

// MergeText three-way merges a plain-text (non-JSON) document: base is the
// common ancestor, ours/theirs are the two edited copies. Both edits are
// composed as diff-match-patch patches applied in sequence against base;
// oursFirst controls composition order (spec.md scenario 3: under
// ours-diff, ours' edit is applied before theirs', so when both sides add
// a line, ours' line ends up first). conflicted reports whether either
// patch failed to apply cleanly (diff-match-patch falls back to a fuzzy
// match rather than erroring, so this is a best-effort signal).
func MergeText(base, ours, theirs string, oursFirst bool) (merged string, conflicted bool) {
	first, second := ours, theirs
	if !oursFirst {
		first, second = theirs, ours
	}
	dmp := diffmatchpatch.New()

	d1 := dmp.DiffMain(base, first, false)
	p1 := dmp.PatchMake(base, d1)
	stage1, applied1 := dmp.PatchApply(p1, base)

	d2 := dmp.DiffMain(base, second, false)
	p2 := dmp.PatchMake(base, d2)
	stage2, applied2 := dmp.PatchApply(p2, stage1)

	for _, ok := range applied1 {
		conflicted = conflicted || !ok
	}
	for _, ok := range applied2 {
		conflicted = conflicted || !ok
	}
	return stage2, conflicted
}

// dedupeUniqueArrays post-processes merged in place: for every key in
// opts.KeyOfUniqueArray whose merged value is an array-shaped delta
// (index-keyed inserts), drop later duplicate insertions of the same
// element, keeping the insertion with the lowest index. The strategy does
// not affect which occurrence is kept: the merged delta no longer records
// which side an insertion came from.
func dedupeUniqueArrays(merged Delta, strategy Strategy, opts Options) {
	for key := range opts.KeyOfUniqueArray {
		sub, ok := merged[key].(Delta)
		if !ok {
			continue
		}
		seen := map[string]bool{}
		for _, k := range sortedKeys(sub) {
			if strings.HasPrefix(k, "_") {
				continue
			}
			op, ok := sub[k].([]any)
			if !ok || len(op) != 1 {
				continue
			}
			sig := fmt.Sprintf("%v", op[0])
			if seen[sig] {
				delete(sub, k)
				continue
			}
			seen[sig] = true
		}
	}
}
