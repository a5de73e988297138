package cairn

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/cairndb/cairn/internal/odb"
	"github.com/cairndb/cairn/internal/sniff"
)

// FindOptions configures Find/FindFatDoc (spec §4's find()).
type FindOptions struct {
	// Prefix is appended to the collection path before splitting into a
	// target directory and a first-level name prefix (spec §4's
	// "Prefix handling for find/allDocs").
	Prefix string
	// Descending reverses the default ascending (lexicographic,
	// breadth-first-discovery) order.
	Descending bool
	// Recursive controls whether the walk descends into subdirectories
	// found under the target directory (the directory resolved from
	// collectionPath+Prefix). The target directory itself is always
	// walked once regardless of this flag (spec §4.C: "Recursive=false
	// skips subdirectories (but must still descend into the target
	// directory once)"). Zero value (false) is a single-level listing;
	// callers wanting the full recursive walk set this explicitly.
	Recursive bool
	// Limit caps the number of results; 0 means unbounded.
	Limit int
	// ForceDocType, when non-nil, overrides each document's codec/kind
	// resolution with this kind instead of deriving it from the file
	// extension (spec §4.C's forceDocType option).
	ForceDocType *sniff.Kind
}

// FindResult is one document discovered by Find/FindFatDoc.
type FindResult struct {
	ShortID string // relative to the collection, extension stripped
	Path    string // relative to the collection, extension included
	Doc     *odb.FatDoc
}

// splitFindPath implements spec §4's prefix-handling rule: if full ends in
// "/", the whole thing is the target directory and the name prefix is
// empty; otherwise the last "/"-separated component is the name prefix
// and everything before it is the target directory.
func splitFindPath(full string) (targetDir, namePrefix string) {
	if full == "" || strings.HasSuffix(full, "/") {
		return strings.TrimSuffix(full, "/"), ""
	}
	idx := strings.LastIndex(full, "/")
	if idx < 0 {
		return "", full
	}
	return full[:idx], full[idx+1:]
}

// Find walks HEAD's tree breadth-first, rooted at the collection path
// plus opts.Prefix, returning every document found whose name ends in
// the collection's extension (".json", or ".md" for front-matter). The first
// directory level is filtered (and, since git's own tree listings are
// lexicographically sorted, short-circuited) by the name prefix; deeper
// levels are walked unfiltered, matching spec §4's find()/allDocs().
func (c *Collection) Find(ctx context.Context, opts FindOptions) ([]FindResult, error) {
	_, treeOID, err := c.resolveHead(ctx)
	if err != nil {
		return nil, err
	}
	if treeOID == "" {
		return nil, nil
	}

	targetDir, namePrefix := splitFindPath(c.collectionPath + opts.Prefix)

	type queued struct {
		dir         string
		applyPrefix bool
		recurse     bool
	}
	queue := []queued{{dir: targetDir, applyPrefix: true, recurse: opts.Recursive}}

	var results []FindResult
	for len(queue) > 0 {
		q := queue[0]
		queue = queue[1:]

		entries, err := odb.ListDir(ctx, c.db.GitDir, treeOID, q.dir)
		if err != nil {
			return nil, err
		}
		matchedAny := false
		for _, e := range entries {
			if q.applyPrefix && namePrefix != "" {
				if !strings.HasPrefix(e.Name, namePrefix) {
					if matchedAny {
						break // lexicographically sorted: no later entry can match either
					}
					continue
				}
				matchedAny = true
			}

			childPath := path.Join(q.dir, e.Name)
			if e.Mode.Type() == "tree" {
				if q.recurse {
					queue = append(queue, queued{dir: childPath, applyPrefix: false, recurse: true})
				}
				continue
			}
			if !strings.HasSuffix(e.Name, c.ext()) {
				continue
			}

			doc, _, err := odb.ReadFatDoc(ctx, c.db.GitDir, treeOID, childPath, c.db.Registry, opts.ForceDocType)
			if err != nil {
				return nil, err
			}
			if doc == nil {
				continue
			}
			relPath := strings.TrimPrefix(childPath, c.collectionPath)
			results = append(results, FindResult{
				ShortID: strings.TrimSuffix(relPath, c.ext()),
				Path:    relPath,
				Doc:     doc,
			})
			if opts.Limit > 0 && len(results) >= opts.Limit {
				return sortResults(results, opts.Descending), nil
			}
		}
	}
	return sortResults(results, opts.Descending), nil
}

// FindFatDoc is Find with a result type name matching spec §4's separate
// findFatDoc() entry point; both return the same FatDoc-carrying results,
// findFatDoc historically being the variant callers use when they need
// fileOid/type alongside the value.
func (c *Collection) FindFatDoc(ctx context.Context, opts FindOptions) ([]FindResult, error) {
	return c.Find(ctx, opts)
}

func sortResults(results []FindResult, descending bool) []FindResult {
	sort.Slice(results, func(i, j int) bool {
		if descending {
			return results[i].Path > results[j].Path
		}
		return results[i].Path < results[j].Path
	})
	return results
}
