// History traversal, adapted from modules/git/commit.go's RevUniqueList
// (which shells `git rev-list --cherry-pick --right-only --no-merges
// --topo-order --reverse`). cairn's history walker (spec §4.G) reuses the
// same rev-list/diff-tree invocation shape.
package gitwire

import (
	"context"
	"fmt"
	"strings"
)

// RevList returns the OIDs reachable from rev in topological order,
// oldest first, stopping at (not including) any boundary ref passed via
// extra (e.g. "^" + since).
func RevList(ctx context.Context, gitDir string, rev string, extra ...string) ([]string, error) {
	r := &Runner{GitDir: gitDir}
	args := append([]string{"rev-list", "--topo-order", "--reverse", rev}, extra...)
	out, err := r.Exec(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("gitwire: rev-list %s: %w", rev, err)
	}
	return splitLines(out), nil
}

// CommitParents returns the parent OIDs of commit oid.
func CommitParents(ctx context.Context, gitDir, oid string) ([]string, error) {
	r := &Runner{GitDir: gitDir}
	out, err := r.OneLine(ctx, "show", "-s", "--format=%P", oid)
	if err != nil {
		return nil, fmt.Errorf("gitwire: parents of %s: %w", oid, err)
	}
	if out == "" {
		return nil, nil
	}
	return strings.Fields(out), nil
}

// CommitTreeOID returns the tree OID a commit points at.
func CommitTreeOID(ctx context.Context, gitDir, oid string) (string, error) {
	r := &Runner{GitDir: gitDir}
	return r.OneLine(ctx, "show", "-s", "--format=%T", oid)
}

// CommitMessage returns the raw commit message body.
func CommitMessage(ctx context.Context, gitDir, oid string) (string, error) {
	r := &Runner{GitDir: gitDir}
	out, err := r.Exec(ctx, "show", "-s", "--format=%B", oid)
	if err != nil {
		return "", fmt.Errorf("gitwire: message of %s: %w", oid, err)
	}
	return string(out), nil
}

// CommitSignatures returns a commit's author and committer name/email,
// used by the history walker's author/committer filter (spec §4.G).
func CommitSignatures(ctx context.Context, gitDir, oid string) (author, committer Signature, err error) {
	r := &Runner{GitDir: gitDir}
	out, err := r.Exec(ctx, "show", "-s", "--format=%an%x00%ae%x00%cn%x00%ce", oid)
	if err != nil {
		return Signature{}, Signature{}, fmt.Errorf("gitwire: signatures of %s: %w", oid, err)
	}
	fields := strings.Split(strings.TrimRight(string(out), "\n"), "\x00")
	if len(fields) != 4 {
		return Signature{}, Signature{}, fmt.Errorf("gitwire: unexpected signature format for %s", oid)
	}
	author = Signature{Name: fields[0], Email: fields[1]}
	committer = Signature{Name: fields[2], Email: fields[3]}
	return author, committer, nil
}

// DiffTreePath reports whether path differs between two tree-ish commits.
func DiffTreePath(ctx context.Context, gitDir, a, b, path string) (bool, error) {
	r := &Runner{GitDir: gitDir}
	out, err := r.Exec(ctx, "diff-tree", "--name-only", "-r", a, b, "--", path)
	if err != nil {
		return false, fmt.Errorf("gitwire: diff-tree %s..%s: %w", a, b, err)
	}
	return len(strings.TrimSpace(string(out))) > 0, nil
}

// TreeChangeStatus is a single path's change kind between two trees, per
// `git diff-tree --name-status`'s letter codes.
type TreeChangeStatus string

const (
	TreeChangeAdded    TreeChangeStatus = "A"
	TreeChangeModified TreeChangeStatus = "M"
	TreeChangeDeleted  TreeChangeStatus = "D"
)

// TreeChange is one changed path between two tree-ish revisions.
type TreeChange struct {
	Path   string
	Status TreeChangeStatus
}

// DiffTreeNameStatus lists every path that differs between a and b
// (tree-ish or commit-ish), used by the sync engine's change-set
// derivation (spec §4.J) instead of walking both trees path-by-path.
func DiffTreeNameStatus(ctx context.Context, gitDir, a, b string) ([]TreeChange, error) {
	r := &Runner{GitDir: gitDir}
	args := []string{"diff-tree", "--name-status", "--no-renames", "-r"}
	if a == "" {
		// No base tree to diff against (the first commit): diff the
		// empty tree so every path shows up as added.
		args = append(args, emptyTreeOID, b)
	} else {
		args = append(args, a, b)
	}
	out, err := r.Exec(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("gitwire: diff-tree %s..%s: %w", a, b, err)
	}
	var changes []TreeChange
	for _, line := range splitLines(out) {
		fields := strings.SplitN(line, "\t", 2)
		if len(fields) != 2 {
			continue
		}
		changes = append(changes, TreeChange{Status: TreeChangeStatus(fields[0]), Path: fields[1]})
	}
	return changes, nil
}

// emptyTreeOID is git's well-known hash of a tree with zero entries.
const emptyTreeOID = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

func splitLines(out []byte) []string {
	s := strings.TrimRight(string(out), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
