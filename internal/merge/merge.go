// Package merge implements cairn's three-way tree merge driver (spec
// §4.I): it walks base/ours/theirs trees in lock-step, classifies every
// changed path by the 2x2x2 presence table, and dispatches conflicting
// paths to a per-document-type resolver (structural JSON merge via
// internal/jsonpatch, diff-match-patch text merge, or a strategy-decided
// pick for binaries).
//
// Directly grounded on pkg/zeta/odb/merge.go's ChangeEntry/differences/
// mergeDifferences shape (a per-path record of the base/ours/theirs
// entry, reduced by a presence-combination dispatch) and
// pkg/zeta/merge_tree.go's driver loop, adapted from the teacher's own
// zeta-object-format tree walk onto real git trees via internal/gitwire
// and internal/odb.
package merge

import (
	"context"
	"fmt"

	"github.com/cairndb/cairn/internal/gitwire"
	"github.com/cairndb/cairn/internal/jsonpatch"
	"github.com/cairndb/cairn/internal/odb"
	"github.com/cairndb/cairn/internal/serializer"
	"github.com/cairndb/cairn/internal/sniff"
)

// Operation classifies how a path's conflict was ultimately resolved,
// matching spec §4.I's AcceptedConflict.operation enum.
type Operation string

const (
	OpInsert      Operation = "insert"
	OpUpdate      Operation = "update"
	OpDelete      Operation = "delete"
	OpInsertMerge Operation = "insert-merge"
	OpUpdateMerge Operation = "update-merge"
)

// AcceptedConflict records one path where the merge strategy had to
// choose a winner (or compose a result) rather than fast-forwarding
// cleanly, per spec §4.I/§6.
type AcceptedConflict struct {
	Path      string
	Strategy  string
	Operation Operation
}

// Resolver supplies everything the merge driver needs that is specific to
// the caller's configuration: which strategy resolves conflicts, the
// jsondiffpatch-shaped options (id-of-subtree, plain-text properties,
// unique-array keys) used for JSON documents, and the doc-type
// classification for a given path.
type Resolver struct {
	Strategy    jsonpatch.Strategy
	JSONOptions jsonpatch.Options
	Classify    func(path string) sniff.Kind
}

func (r Resolver) classify(path string) sniff.Kind {
	if r.Classify != nil {
		return r.Classify(path)
	}
	return sniff.KindJSON
}

// entry mirrors one tree-entry's identity, as returned by flattenTree.
type entry struct {
	OID  string
	Mode gitwire.FileMode
}

// Merge walks baseTree/oursTree/theirsTree (any of which may be "" for an
// empty/unborn tree) and returns the resulting merged tree OID plus the
// list of conflicts the strategy had to resolve.
func Merge(ctx context.Context, gitDir string, baseTree, oursTree, theirsTree string, r Resolver) (string, []AcceptedConflict, error) {
	base, err := flattenTree(ctx, gitDir, baseTree)
	if err != nil {
		return "", nil, fmt.Errorf("merge: flatten base: %w", err)
	}
	ours, err := flattenTree(ctx, gitDir, oursTree)
	if err != nil {
		return "", nil, fmt.Errorf("merge: flatten ours: %w", err)
	}
	theirs, err := flattenTree(ctx, gitDir, theirsTree)
	if err != nil {
		return "", nil, fmt.Errorf("merge: flatten theirs: %w", err)
	}

	paths := map[string]bool{}
	for p := range base {
		paths[p] = true
	}
	for p := range ours {
		paths[p] = true
	}
	for p := range theirs {
		paths[p] = true
	}

	var mutations []odb.Mutation
	var conflicts []AcceptedConflict

	for path := range paths {
		b, bOK := base[path]
		o, oOK := ours[path]
		t, tOK := theirs[path]

		switch {
		case !bOK && !oOK && tOK:
			m, err := takeBlob(ctx, gitDir, path, t)
			if err != nil {
				return "", nil, err
			}
			mutations = append(mutations, m)
		case !bOK && oOK && !tOK:
			m, err := takeBlob(ctx, gitDir, path, o)
			if err != nil {
				return "", nil, err
			}
			mutations = append(mutations, m)
		case !bOK && oOK && tOK:
			if o.OID == t.OID {
				m, err := takeBlob(ctx, gitDir, path, o)
				if err != nil {
					return "", nil, err
				}
				mutations = append(mutations, m)
				continue
			}
			merged, label, err := r.resolveBothAdded(ctx, gitDir, path, o, t)
			if err != nil {
				return "", nil, err
			}
			mutations = append(mutations, odb.Mutation{Path: path, Data: merged})
			conflicts = append(conflicts, AcceptedConflict{Path: path, Strategy: label, Operation: OpInsertMerge})

		case bOK && !oOK && !tOK:
			mutations = append(mutations, odb.Mutation{Path: path, Delete: true})

		case bOK && !oOK && tOK:
			if t.OID == b.OID {
				mutations = append(mutations, odb.Mutation{Path: path, Delete: true})
				continue
			}
			if updateWins(r.Strategy, false) {
				m, err := takeBlob(ctx, gitDir, path, t)
				if err != nil {
					return "", nil, err
				}
				mutations = append(mutations, m)
				conflicts = append(conflicts, AcceptedConflict{Path: path, Strategy: string(r.Strategy), Operation: OpUpdate})
			} else {
				mutations = append(mutations, odb.Mutation{Path: path, Delete: true})
				conflicts = append(conflicts, AcceptedConflict{Path: path, Strategy: string(r.Strategy), Operation: OpDelete})
			}

		case bOK && oOK && !tOK:
			if o.OID == b.OID {
				mutations = append(mutations, odb.Mutation{Path: path, Delete: true})
				continue
			}
			if updateWins(r.Strategy, true) {
				m, err := takeBlob(ctx, gitDir, path, o)
				if err != nil {
					return "", nil, err
				}
				mutations = append(mutations, m)
				conflicts = append(conflicts, AcceptedConflict{Path: path, Strategy: string(r.Strategy), Operation: OpUpdate})
			} else {
				mutations = append(mutations, odb.Mutation{Path: path, Delete: true})
				conflicts = append(conflicts, AcceptedConflict{Path: path, Strategy: string(r.Strategy), Operation: OpDelete})
			}

		case bOK && oOK && tOK:
			if o.OID == t.OID {
				m, err := takeBlob(ctx, gitDir, path, o)
				if err != nil {
					return "", nil, err
				}
				mutations = append(mutations, m)
				continue
			}
			if b.OID == o.OID {
				m, err := takeBlob(ctx, gitDir, path, t)
				if err != nil {
					return "", nil, err
				}
				mutations = append(mutations, m)
				continue
			}
			if b.OID == t.OID {
				m, err := takeBlob(ctx, gitDir, path, o)
				if err != nil {
					return "", nil, err
				}
				mutations = append(mutations, m)
				continue
			}
			merged, label, err := r.resolveThreeWay(ctx, gitDir, path, b, o, t)
			if err != nil {
				return "", nil, err
			}
			mutations = append(mutations, odb.Mutation{Path: path, Data: merged})
			conflicts = append(conflicts, AcceptedConflict{Path: path, Strategy: label, Operation: OpUpdateMerge})
		}
	}

	mergedTree, err := odb.ApplyMutations(ctx, gitDir, baseTree, mutations)
	if err != nil {
		return "", nil, fmt.Errorf("merge: apply mutations: %w", err)
	}
	return mergedTree, conflicts, nil
}

// takeBlob builds a Mutation that writes path's content back unchanged.
// ApplyMutations re-hashes Data via hash-object, which is a content-
// addressed no-op here since the bytes are read from the very blob git
// already stores at e.OID.
func takeBlob(ctx context.Context, gitDir, path string, e entry) (odb.Mutation, error) {
	data, err := gitwire.CatFileBlob(ctx, gitDir, e.OID)
	if err != nil {
		return odb.Mutation{}, fmt.Errorf("merge: read %s: %w", path, err)
	}
	return odb.Mutation{Path: path, Data: data}, nil
}

// updateWins reports whether the non-deleting side's content should win
// an update-vs-delete conflict, following jsonpatch.Merge's rule at
// file-level granularity: ours-diff always prefers the update over the
// delete, regardless of which side performed it; the other strategies
// honor the named side even when that side deleted.
func updateWins(strategy jsonpatch.Strategy, updateIsOurs bool) bool {
	switch strategy {
	case jsonpatch.StrategyOursDiff:
		return true
	case jsonpatch.StrategyOurs:
		return updateIsOurs
	case jsonpatch.StrategyTheirs, jsonpatch.StrategyTheirsDiff:
		return !updateIsOurs
	default:
		return true
	}
}

func (r Resolver) resolveBothAdded(ctx context.Context, gitDir, path string, o, t entry) ([]byte, string, error) {
	oursBytes, err := gitwire.CatFileBlob(ctx, gitDir, o.OID)
	if err != nil {
		return nil, "", err
	}
	theirsBytes, err := gitwire.CatFileBlob(ctx, gitDir, t.OID)
	if err != nil {
		return nil, "", err
	}
	return r.resolveContent(path, nil, oursBytes, theirsBytes)
}

func (r Resolver) resolveThreeWay(ctx context.Context, gitDir, path string, b, o, t entry) ([]byte, string, error) {
	baseBytes, err := gitwire.CatFileBlob(ctx, gitDir, b.OID)
	if err != nil {
		return nil, "", err
	}
	oursBytes, err := gitwire.CatFileBlob(ctx, gitDir, o.OID)
	if err != nil {
		return nil, "", err
	}
	theirsBytes, err := gitwire.CatFileBlob(ctx, gitDir, t.OID)
	if err != nil {
		return nil, "", err
	}
	return r.resolveContent(path, baseBytes, oursBytes, theirsBytes)
}

// resolveContent merges base/ours/theirs blob content per the document
// type at path. base == nil means there is no common ancestor (the
// insert-merge case); it is treated as an empty object/string so the same
// diff/merge pipeline applies uniformly.
func (r Resolver) resolveContent(path string, base, ours, theirs []byte) ([]byte, string, error) {
	switch r.classify(path) {
	case sniff.KindJSON:
		return r.resolveJSON(base, ours, theirs)
	case sniff.KindText:
		merged, _ := jsonpatch.MergeText(string(base), string(ours), string(theirs), r.Strategy.PrefersOurs())
		return []byte(merged), string(r.Strategy), nil
	default:
		if r.Strategy.PrefersOurs() {
			return ours, string(r.Strategy), nil
		}
		return theirs, string(r.Strategy), nil
	}
}

func (r Resolver) resolveJSON(base, ours, theirs []byte) ([]byte, string, error) {
	baseVal, err := decodeJSONOrEmpty(base)
	if err != nil {
		return nil, "", fmt.Errorf("merge: decode base json: %w", err)
	}
	oursVal, err := decodeJSONOrEmpty(ours)
	if err != nil {
		return nil, "", fmt.Errorf("merge: decode ours json: %w", err)
	}
	theirsVal, err := decodeJSONOrEmpty(theirs)
	if err != nil {
		return nil, "", fmt.Errorf("merge: decode theirs json: %w", err)
	}

	diffOurs := jsonpatch.Diff(baseVal, oursVal, r.JSONOptions)
	diffTheirs := jsonpatch.Diff(baseVal, theirsVal, r.JSONOptions)
	merged, _ := jsonpatch.Merge(diffOurs, diffTheirs, r.Strategy, r.JSONOptions)
	mergedVal, err := jsonpatch.Apply(baseVal, merged)
	if err != nil {
		return nil, "", fmt.Errorf("merge: apply merged delta: %w", err)
	}
	out, err := serializer.CanonicalJSON(mergedVal)
	if err != nil {
		return nil, "", fmt.Errorf("merge: encode merged json: %w", err)
	}
	return out, string(r.Strategy), nil
}

func decodeJSONOrEmpty(raw []byte) (any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	v, err := serializer.JSONCodec{}.Decode(raw)
	if err != nil {
		return nil, err
	}
	return v, nil
}
