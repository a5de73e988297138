// Package search implements the optional full-text hook layer (spec
// §4.M): a lifecycle-bound inverted index the collection façade notifies
// on every successful write task, plus rebuild-from-HEAD and zip
// persistence. The index itself is opaque to the rest of cairn — nothing
// outside this package knows it is token/postings-shaped.
//
// Grounded on the same "owned value, not module-global" construction
// style used throughout internal/odb and internal/gitwire (a value you
// construct and call methods on, never a package-level singleton), and
// on modules/zeta/backend/pack's use of a zip-shaped container for a
// serialized artifact — here via github.com/klauspost/compress/zip
// instead of a bespoke pack format.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cairndb/cairn/internal/odb"
)

// Document is the minimal view of a JSON document the index cares about:
// its short id, the collection-relative path it lives at, and the field
// values to tokenize. Binary/front-matter bodies are flattened by the
// caller before calling addIndex/updateIndex.
type Document struct {
	ID     string
	Path   string
	Fields map[string]any
}

// Options configures an Index: which fields to tokenize (empty means
// "all string-valued fields") and where serialize() persists to.
type Options struct {
	Fields     []string
	ArchivePath string
}

// Index is a single collection's in-memory inverted index: token -> set
// of document ids holding that token (Search returns ids sorted). One
// Index is owned by exactly one collection and mutated only from the
// collection's task queue worker (spec §4's single-writer shared-resource
// rule); the exported methods still take mu, so concurrent readers are
// safe.
type Index struct {
	mu       sync.RWMutex
	options  Options
	postings map[string]map[string]struct{} // token -> set of doc ids
	docs     map[string]Document            // id -> last-indexed document, for rebuild diffing
}

// OpenOrCreate returns a fresh Index for a collection. If options.ArchivePath
// names an existing zip file written by a previous serialize(), its
// postings are loaded back; otherwise the index starts empty and the
// caller is expected to call Rebuild.
func OpenOrCreate(ctx context.Context, options Options) (*Index, error) {
	idx := &Index{
		options:  options,
		postings: map[string]map[string]struct{}{},
		docs:     map[string]Document{},
	}
	if options.ArchivePath == "" {
		return idx, nil
	}
	if err := idx.loadArchive(options.ArchivePath); err != nil {
		if !isNotExist(err) {
			return nil, err
		}
	}
	return idx, nil
}

// AddIndex tokenizes doc and adds it to the postings.
func (idx *Index) AddIndex(doc Document) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.addLocked(doc)
}

// UpdateIndex removes doc's previous postings (if any) and re-tokenizes.
func (idx *Index) UpdateIndex(doc Document) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(doc.ID)
	idx.addLocked(doc)
}

// DeleteIndex removes every posting for docID.
func (idx *Index) DeleteIndex(docID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(docID)
}

func (idx *Index) addLocked(doc Document) {
	idx.docs[doc.ID] = doc
	for _, tok := range tokenize(idx.options.Fields, doc.Fields) {
		set, ok := idx.postings[tok]
		if !ok {
			set = map[string]struct{}{}
			idx.postings[tok] = set
		}
		set[doc.ID] = struct{}{}
	}
}

func (idx *Index) removeLocked(docID string) {
	if _, ok := idx.docs[docID]; !ok {
		return
	}
	delete(idx.docs, docID)
	for tok, set := range idx.postings {
		delete(set, docID)
		if len(set) == 0 {
			delete(idx.postings, tok)
		}
	}
}

// Search returns the ids of documents containing keyword's tokens.
// useOr=true matches any token (union); useOr=false requires all tokens
// (intersection), the spec's default AND semantics.
func (idx *Index) Search(keyword string, useOr bool) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	toks := splitTokens(keyword)
	if len(toks) == 0 {
		return nil
	}
	var acc map[string]struct{}
	for _, tok := range toks {
		set := idx.postings[tok]
		if useOr {
			if acc == nil {
				acc = map[string]struct{}{}
			}
			for id := range set {
				acc[id] = struct{}{}
			}
			continue
		}
		if acc == nil {
			acc = map[string]struct{}{}
			for id := range set {
				acc[id] = struct{}{}
			}
			continue
		}
		next := map[string]struct{}{}
		for id := range acc {
			if _, ok := set[id]; ok {
				next[id] = struct{}{}
			}
		}
		acc = next
	}
	ids := make([]string, 0, len(acc))
	for id := range acc {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Rebuild discards the current postings and re-indexes every JSON
// document reachable from treeOID, via a full HEAD walk (supplemented
// feature: spec §4.M names rebuild() without detailing its mechanism).
func (idx *Index) Rebuild(ctx context.Context, gitDir, treeOID string, decode func(raw []byte) (map[string]any, error)) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.postings = map[string]map[string]struct{}{}
	idx.docs = map[string]Document{}
	return idx.walk(ctx, gitDir, treeOID, "", decode)
}

func (idx *Index) walk(ctx context.Context, gitDir, treeOID, prefix string, decode func([]byte) (map[string]any, error)) error {
	entries, err := odb.ListDir(ctx, gitDir, treeOID, prefix)
	if err != nil {
		return fmt.Errorf("search: rebuild: %w", err)
	}
	for _, e := range entries {
		full := strings.TrimPrefix(prefix+"/"+e.Name, "/")
		if e.Mode.Type() == "tree" {
			if err := idx.walk(ctx, gitDir, treeOID, full, decode); err != nil {
				return err
			}
			continue
		}
		if !strings.HasSuffix(e.Name, ".json") {
			continue
		}
		data, found, err := odb.ReadBlob(ctx, gitDir, treeOID, full)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		fields, err := decode(data)
		if err != nil {
			continue // a malformed document cannot be indexed; skip it
		}
		id, _ := fields["_id"].(string)
		if id == "" {
			id = full
		}
		idx.addLocked(Document{ID: id, Path: full, Fields: fields})
	}
	return nil
}

// Close releases any resources held by idx. The in-memory index has
// none; Close exists for lifecycle parity with serialize()/destroy() and
// so callers can defer it unconditionally.
func (idx *Index) Close() error { return nil }
