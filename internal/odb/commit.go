package odb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cairndb/cairn/internal/gitwire"
)

// Actor identifies the author/committer of a commit the commit worker
// makes (spec §4.E); cairn sets both author and committer identically,
// since every write originates from the local database's configured
// identity rather than an interactively-entered one.
type Actor struct {
	Name  string
	Email string
}

// ChangeKind classifies a single-document mutation for commit-message
// templating, mirroring the three states pkg/zeta/worktree_commit.go's
// genMessageTemplate enumerates per path (new file / modified / deleted).
type ChangeKind int

const (
	ChangeInsert ChangeKind = iota
	ChangeUpdate
	ChangeDelete
)

func (k ChangeKind) verb() string {
	switch k {
	case ChangeInsert:
		return "insert"
	case ChangeUpdate:
		return "update"
	default:
		return "delete"
	}
}

// CommitRequest is everything the commit worker needs to produce one new
// commit: the tree mutations plus a structured description used to build
// the commit message when the caller doesn't supply one explicitly.
type CommitRequest struct {
	ParentOID    string // "" for the first commit
	BaseTreeOID  string // "" for an empty tree
	Mutations    []Mutation
	Kind         ChangeKind
	Paths        []string
	Message      string // overrides the generated message when non-empty
	Actor        Actor
	CommittedAt  time.Time
}

// CommitResult is the outcome of a successful commit-worker run.
type CommitResult struct {
	CommitOID string
	TreeOID   string
}

// Commit applies req.Mutations to req.BaseTreeOID, writes the resulting
// tree, and creates a commit object pointing at it with req.ParentOID
// (if any) as its sole parent. It does not move any ref -- that is the
// caller's job (the task queue commits one change at a time and then
// calls gitwire.RefUpdater to advance the branch, so a worker crash
// between the two leaves the repository in a recoverable state: unreferenced
// but otherwise-valid commit objects are simply garbage for `git gc`).
func Commit(ctx context.Context, gitDir string, req CommitRequest) (*CommitResult, error) {
	treeOID, err := ApplyMutations(ctx, gitDir, req.BaseTreeOID, req.Mutations)
	if err != nil {
		return nil, fmt.Errorf("odb: apply mutations: %w", err)
	}

	message := req.Message
	if message == "" {
		message = generateMessage(req.Kind, req.Paths)
	}

	var parents []string
	if req.ParentOID != "" {
		parents = []string{req.ParentOID}
	}

	sig := gitwire.Signature{Name: req.Actor.Name, Email: req.Actor.Email, When: req.CommittedAt.Unix()}
	commitOID, err := gitwire.CommitTree(ctx, gitDir, treeOID, parents, sig, sig, message)
	if err != nil {
		return nil, fmt.Errorf("odb: commit-tree: %w", err)
	}
	return &CommitResult{CommitOID: commitOID, TreeOID: treeOID}, nil
}

// generateMessage builds a one-line, git-log-friendly summary, e.g.
// "insert: nara/park.json" or "delete: nara/park.json, nara/temple.json".
func generateMessage(kind ChangeKind, paths []string) string {
	return fmt.Sprintf("%s: %s", kind.verb(), strings.Join(paths, ", "))
}
