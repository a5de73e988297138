// History walking (spec §4.G): back-number lookup and per-path revision
// history. Grounded on modules/zeta/object/commit_walker_path.go's
// path-filtered topological walk, implemented here over `git rev-list` +
// `git diff-tree --name-only` via internal/gitwire rather than the
// teacher's in-process object-graph walker, since cairn's commit graph
// lives in a real git odb reached only through the git binary.
package odb

import (
	"context"
	"fmt"

	"github.com/cairndb/cairn/internal/cairnerr"
	"github.com/cairndb/cairn/internal/gitwire"
)

// Revision is one historical version of a document. FileOID is "" when
// the document did not exist in this commit (spec §4.G's "undefined").
type Revision struct {
	CommitOID string
	TreeOID   string
	Message   string
	FileOID   string
	Author    gitwire.Signature
	Committer gitwire.Signature
}

// PathHistory returns every commit reachable from headOID whose resolved
// content at filePath differs from its predecessor, newest first,
// collapsing consecutive duplicates (including undefined-undefined) per
// spec §4.G.
func PathHistory(ctx context.Context, gitDir, headOID, filePath string) ([]Revision, error) {
	if headOID == "" {
		return nil, nil
	}
	oids, err := gitwire.RevList(ctx, gitDir, headOID)
	if err != nil {
		return nil, err
	}

	var revs []Revision
	lastFileOID := "\x00unset\x00" // sentinel: never equal to a real oid or ""
	// RevList returns oldest-first; walk backwards so the result is
	// newest-first.
	for i := len(oids) - 1; i >= 0; i-- {
		oid := oids[i]
		treeOID, err := gitwire.CommitTreeOID(ctx, gitDir, oid)
		if err != nil {
			return nil, err
		}
		fileOID, _, err := resolvePath(ctx, gitDir, treeOID, filePath)
		if err != nil {
			return nil, err
		}
		if fileOID == lastFileOID {
			continue
		}
		lastFileOID = fileOID

		msg, err := gitwire.CommitMessage(ctx, gitDir, oid)
		if err != nil {
			return nil, err
		}
		author, committer, err := gitwire.CommitSignatures(ctx, gitDir, oid)
		if err != nil {
			return nil, err
		}
		revs = append(revs, Revision{
			CommitOID: oid,
			TreeOID:   treeOID,
			Message:   msg,
			FileOID:   fileOID,
			Author:    author,
			Committer: committer,
		})
	}
	return revs, nil
}

// BackNumber returns the commit that was HEAD for filePath n revisions
// ago (0 == current). Returns cairnerr.ErrInvalidBackNumber if n exceeds
// the number of revisions on record.
func BackNumber(ctx context.Context, gitDir, headOID, filePath string, n int) (*Revision, error) {
	if n < 0 {
		return nil, cairnerr.ErrInvalidBackNumber
	}
	revs, err := PathHistory(ctx, gitDir, headOID, filePath)
	if err != nil {
		return nil, fmt.Errorf("odb: back-number: %w", err)
	}
	if n >= len(revs) {
		return nil, cairnerr.ErrInvalidBackNumber
	}
	return &revs[n], nil
}
