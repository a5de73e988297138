// Package odb implements cairn's blob & tree reader, tree writer, and
// commit worker (spec §4.C/D/E): reading a document out of a
// commit's tree, and writing a new tree + commit reflecting one or more
// document mutations.
//
// Grounded on the teacher's modules/git/{odb,tree,commit}.go for the
// object shapes, and pkg/zeta/odb/tree.go for the recursive
// tree-rebuild-on-write pattern (a write to a nested path requires
// rebuilding every tree from the leaf up to the root, since git trees are
// immutable and content-addressed). Commit message templating is adapted
// from pkg/zeta/worktree_commit.go's structured "what changed" summary,
// simplified for cairn's non-interactive, one-mutation-per-commit model.
package odb

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/cairndb/cairn/internal/gitwire"
)

// ReadBlob reads the raw bytes stored at path within the tree rooted at
// treeOID. Returns (nil, false, nil) if no entry exists at path.
func ReadBlob(ctx context.Context, gitDir, treeOID, filePath string) ([]byte, bool, error) {
	oid, mode, err := resolvePath(ctx, gitDir, treeOID, filePath)
	if err != nil {
		return nil, false, err
	}
	if oid == "" {
		return nil, false, nil
	}
	if mode.Type() != "blob" {
		return nil, false, fmt.Errorf("odb: %s is not a blob", filePath)
	}
	data, err := gitwire.CatFileBlob(ctx, gitDir, oid)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// resolvePath walks treeOID down filePath's segments, returning the
// entry's OID and mode, or ("", 0, nil) if any segment is absent.
func resolvePath(ctx context.Context, gitDir, treeOID, filePath string) (string, gitwire.FileMode, error) {
	filePath = strings.Trim(filePath, "/")
	if filePath == "" {
		return treeOID, gitwire.ModeTree, nil
	}
	segments := strings.Split(filePath, "/")
	current := treeOID
	for i, seg := range segments {
		entries, err := gitwire.LsTree(ctx, gitDir, current)
		if err != nil {
			return "", 0, err
		}
		var found *gitwire.TreeEntry
		for j := range entries {
			if entries[j].Name == seg {
				found = &entries[j]
				break
			}
		}
		if found == nil {
			return "", 0, nil
		}
		if i == len(segments)-1 {
			return found.OID, found.Mode, nil
		}
		if found.Mode.Type() != "tree" {
			return "", 0, nil
		}
		current = found.OID
	}
	return "", 0, nil
}

// ListDir lists the immediate entries under dirPath in treeOID (used by
// the collection façade's allDocs). dirPath == "" lists the tree root.
func ListDir(ctx context.Context, gitDir, treeOID, dirPath string) ([]gitwire.TreeEntry, error) {
	oid, mode, err := resolvePath(ctx, gitDir, treeOID, dirPath)
	if err != nil {
		return nil, err
	}
	if oid == "" {
		return nil, nil
	}
	if dirPath != "" && mode.Type() != "tree" {
		return nil, fmt.Errorf("odb: %s is not a directory", dirPath)
	}
	return gitwire.LsTree(ctx, gitDir, oid)
}

// Mutation describes one write against a tree: either set filePath's blob
// contents to Data, or (Delete == true) remove filePath entirely.
type Mutation struct {
	Path   string
	Data   []byte
	Delete bool
}

// ApplyMutations rebuilds treeOID (which may be "" for an empty/unborn
// tree) with every mutation applied, returning the new root tree OID.
// Blobs are written (and deduplicated by git's own content addressing)
// before any tree is rebuilt, then trees are rebuilt leaf-first so every
// intermediate tree OID is final before its parent is written.
func ApplyMutations(ctx context.Context, gitDir, treeOID string, mutations []Mutation) (string, error) {
	root, err := loadNode(ctx, gitDir, treeOID)
	if err != nil {
		return "", err
	}
	for _, m := range mutations {
		segs := strings.Split(strings.Trim(path.Clean("/"+m.Path), "/"), "/")
		// Hydrate every existing tree level along the path, so set/delete
		// see (and keep) the entries already present there.
		cur := root
		for i := 0; ; i++ {
			if err := cur.ensureHydrated(ctx, gitDir); err != nil {
				return "", err
			}
			if i == len(segs)-1 {
				break
			}
			next, ok := cur.children[segs[i]]
			if !ok || !next.isTree {
				break
			}
			cur = next
		}
		if m.Delete {
			root.delete(segs)
			continue
		}
		oid, err := gitwire.HashObject(ctx, gitDir, m.Data, true)
		if err != nil {
			return "", fmt.Errorf("odb: hash-object %s: %w", m.Path, err)
		}
		root.set(segs, oid, gitwire.ModeFile)
	}
	return root.write(ctx, gitDir)
}

// node is an in-memory mirror of one tree level, lazily hydrated from git
// only along paths a mutation touches.
type node struct {
	oid      string // "" if not yet materialized as a git object
	children map[string]*node
	blobOID  string
	blobMode gitwire.FileMode
	isTree   bool
}

func loadNode(ctx context.Context, gitDir, treeOID string) (*node, error) {
	n := &node{isTree: true, children: map[string]*node{}}
	if treeOID == "" {
		return n, nil
	}
	n.oid = treeOID
	return n, nil
}

func (n *node) ensureHydrated(ctx context.Context, gitDir string) error {
	if n.children != nil && len(n.children) > 0 {
		return nil
	}
	if n.oid == "" {
		if n.children == nil {
			n.children = map[string]*node{}
		}
		return nil
	}
	entries, err := gitwire.LsTree(ctx, gitDir, n.oid)
	if err != nil {
		return err
	}
	n.children = map[string]*node{}
	for _, e := range entries {
		if e.Mode.Type() == "tree" {
			n.children[e.Name] = &node{isTree: true, oid: e.OID}
		} else {
			n.children[e.Name] = &node{isTree: false, blobOID: e.OID, blobMode: e.Mode}
		}
	}
	return nil
}

func (n *node) set(segs []string, blobOID string, mode gitwire.FileMode) {
	if len(segs) == 1 {
		n.children[segs[0]] = &node{isTree: false, blobOID: blobOID, blobMode: mode}
		n.oid = "" // invalidate cached OID
		return
	}
	head, rest := segs[0], segs[1:]
	child, ok := n.children[head]
	if !ok || !child.isTree {
		child = &node{isTree: true, children: map[string]*node{}}
		n.children[head] = child
	}
	if child.children == nil {
		child.children = map[string]*node{}
	}
	child.set(rest, blobOID, mode)
	n.oid = ""
}

func (n *node) delete(segs []string) {
	if len(segs) == 1 {
		delete(n.children, segs[0])
		n.oid = ""
		return
	}
	head, rest := segs[0], segs[1:]
	child, ok := n.children[head]
	if !ok || !child.isTree {
		return
	}
	child.delete(rest)
	n.oid = ""
}

func (n *node) write(ctx context.Context, gitDir string) (string, error) {
	if err := n.ensureHydratedRecursive(ctx, gitDir); err != nil {
		return "", err
	}
	return n.writeOID(ctx, gitDir)
}

func (n *node) ensureHydratedRecursive(ctx context.Context, gitDir string) error {
	return n.ensureHydrated(ctx, gitDir)
}

func (n *node) writeOID(ctx context.Context, gitDir string) (string, error) {
	if n.oid != "" {
		return n.oid, nil
	}
	if err := n.ensureHydrated(ctx, gitDir); err != nil {
		return "", err
	}
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)

	var entries []gitwire.TreeEntry
	for _, name := range names {
		child := n.children[name]
		if child.isTree {
			oid, err := child.writeOID(ctx, gitDir)
			if err != nil {
				return "", err
			}
			entries = append(entries, gitwire.TreeEntry{Name: name, OID: oid, Mode: gitwire.ModeTree})
			continue
		}
		entries = append(entries, gitwire.TreeEntry{Name: name, OID: child.blobOID, Mode: child.blobMode})
	}
	if len(entries) == 0 {
		// git has no "empty tree" shortcut worth special-casing: mktree
		// with zero entries still yields the well-known empty-tree OID.
	}
	oid, err := gitwire.MkTree(ctx, gitDir, entries)
	if err != nil {
		return "", err
	}
	n.oid = oid
	return oid, nil
}
