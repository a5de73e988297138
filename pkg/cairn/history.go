package cairn

import (
	"context"

	"github.com/cairndb/cairn/internal/gitwire"
	"github.com/cairndb/cairn/internal/odb"
)

// HistoryFilter is a conjunction of author/committer equality checks; an
// empty field is a wildcard. A commit is accepted iff every non-empty
// field matches (spec §4.G).
type HistoryFilter struct {
	AuthorName     string
	AuthorEmail    string
	CommitterName  string
	CommitterEmail string
}

func (f HistoryFilter) matches(rev odb.Revision) bool {
	if f.AuthorName != "" && f.AuthorName != rev.Author.Name {
		return false
	}
	if f.AuthorEmail != "" && f.AuthorEmail != rev.Author.Email {
		return false
	}
	if f.CommitterName != "" && f.CommitterName != rev.Committer.Name {
		return false
	}
	if f.CommitterEmail != "" && f.CommitterEmail != rev.Committer.Email {
		return false
	}
	return true
}

// HistoryEntry is one revision of a document, reported alongside whether
// it existed (Exists == false means it didn't, spec's "undefined").
type HistoryEntry struct {
	CommitOID string
	Message   string
	Exists    bool
	Doc       *odb.FatDoc // nil when !Exists
}

// GetHistory walks every revision of shortID reachable from the
// collection's branch HEAD, newest first, filtering by filters (a commit
// is accepted if it satisfies at least one filter, or if filters is
// empty). If the only revision on record is a single nonexistent one,
// GetHistory returns an empty slice (the document never existed).
func (c *Collection) GetHistory(ctx context.Context, shortID string, filters []HistoryFilter) ([]HistoryEntry, error) {
	fullPath := c.fullPath(shortID)
	headOID, err := gitwire.RevParse(ctx, c.db.GitDir, c.headRef())
	if err != nil {
		return nil, err
	}
	revs, err := odb.PathHistory(ctx, c.db.GitDir, headOID, fullPath)
	if err != nil {
		return nil, err
	}

	var out []HistoryEntry
	for _, rev := range revs {
		if len(filters) > 0 && !anyFilterMatches(filters, rev) {
			continue
		}
		entry := HistoryEntry{CommitOID: rev.CommitOID, Message: rev.Message, Exists: rev.FileOID != ""}
		if entry.Exists {
			doc, _, err := odb.ReadFatDoc(ctx, c.db.GitDir, rev.TreeOID, fullPath, c.db.Registry, nil)
			if err != nil {
				return nil, err
			}
			entry.Doc = doc
		}
		out = append(out, entry)
	}

	if len(out) == 1 && !out[0].Exists {
		return nil, nil
	}
	return out, nil
}

func anyFilterMatches(filters []HistoryFilter, rev odb.Revision) bool {
	for _, f := range filters {
		if f.matches(rev) {
			return true
		}
	}
	return false
}

// BackNumber returns the document as it stood n revisions before the
// current one (0 == current), per spec §4.G.
func (c *Collection) BackNumber(ctx context.Context, shortID string, n int) (*odb.FatDoc, error) {
	fullPath := c.fullPath(shortID)
	headOID, err := gitwire.RevParse(ctx, c.db.GitDir, c.headRef())
	if err != nil {
		return nil, err
	}
	rev, err := odb.BackNumber(ctx, c.db.GitDir, headOID, fullPath, n)
	if err != nil {
		return nil, err
	}
	doc, _, err := odb.ReadFatDoc(ctx, c.db.GitDir, rev.TreeOID, fullPath, c.db.Registry, nil)
	return doc, err
}
