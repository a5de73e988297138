package gitwire

import (
	"context"
	"fmt"
	"strings"
)

// InitBare creates a bare git repository at gitDir with the given initial
// branch name, adapted from modules/git/repo.go's NewRepo.
func InitBare(ctx context.Context, gitDir, branch string) error {
	r := &Runner{}
	if _, err := r.Exec(ctx, "init", "--bare", "--initial-branch="+branch, gitDir); err != nil {
		return fmt.Errorf("gitwire: init %s: %w", gitDir, err)
	}
	return nil
}

// IsBareRepository reports whether gitDir's core.bare is true.
func IsBareRepository(ctx context.Context, gitDir string) bool {
	r := &Runner{GitDir: gitDir}
	v, err := r.OneLine(ctx, "config", "--get", "core.bare")
	if err != nil {
		return false
	}
	return strings.EqualFold(v, "true")
}

// RevParse resolves rev (a ref name, HEAD, or OID-ish expression) to a
// full OID. Returns an empty string and nil error if rev is unborn
// (e.g. HEAD before the first commit).
func RevParse(ctx context.Context, gitDir, rev string) (string, error) {
	r := &Runner{GitDir: gitDir}
	out, err := r.OneLine(ctx, "rev-parse", "--verify", "--quiet", rev)
	if err != nil {
		return "", nil
	}
	return out, nil
}

// MergeBase returns the best common ancestor of a and b, or "" if none
// exists (unrelated histories).
func MergeBase(ctx context.Context, gitDir, a, b string) (string, error) {
	r := &Runner{GitDir: gitDir}
	out, err := r.OneLine(ctx, "merge-base", a, b)
	if err != nil {
		return "", nil
	}
	return out, nil
}

// IsAncestor reports whether ancestor is an ancestor of (or equal to)
// descendant.
func IsAncestor(ctx context.Context, gitDir, ancestor, descendant string) bool {
	r := &Runner{GitDir: gitDir}
	_, err := r.Exec(ctx, "merge-base", "--is-ancestor", ancestor, descendant)
	return err == nil
}
