// This file implements cairn's object-database operations -- hash-object,
// cat-file, mktree, ls-tree, commit-tree -- as thin wrappers over the real
// git binary. It plays the role the teacher's modules/git/odb.go plays for
// zeta's own gitobj.Database, but targets the real git plumbing instead,
// per the package doc in runner.go.
package gitwire

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
)

// HashObject writes data as a loose blob and returns its OID. When write is
// false, the OID is computed but nothing is stored (`git hash-object
// --stdin` without -w).
func HashObject(ctx context.Context, gitDir string, data []byte, write bool) (string, error) {
	r := &Runner{GitDir: gitDir}
	args := []string{"hash-object", "-t", "blob", "--stdin"}
	if write {
		args = append(args, "-w")
	}
	out, err := r.Pipe(ctx, data, args...)
	if err != nil {
		return "", fmt.Errorf("gitwire: hash-object: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// CatFileBlob reads the full contents of a blob OID.
func CatFileBlob(ctx context.Context, gitDir, oid string) ([]byte, error) {
	r := &Runner{GitDir: gitDir}
	out, err := r.Exec(ctx, "cat-file", "blob", oid)
	if err != nil {
		return nil, fmt.Errorf("gitwire: cat-file blob %s: %w", oid, err)
	}
	return out, nil
}

// BatchEntry is one record from a `git cat-file --batch` stream.
type BatchEntry struct {
	OID  string
	Type string
	Size int64
	Data []byte
}

// CatFileBatch resolves many OIDs in a single git process, avoiding one
// process-spawn per object on large trees/history walks.
func CatFileBatch(ctx context.Context, gitDir string, oids []string) (map[string]BatchEntry, error) {
	if len(oids) == 0 {
		return map[string]BatchEntry{}, nil
	}
	r := &Runner{GitDir: gitDir}
	var stdin bytes.Buffer
	for _, oid := range oids {
		stdin.WriteString(oid)
		stdin.WriteByte('\n')
	}
	out, err := r.Pipe(ctx, stdin.Bytes(), "cat-file", "--batch")
	if err != nil {
		return nil, fmt.Errorf("gitwire: cat-file --batch: %w", err)
	}
	return parseBatch(out)
}

func parseBatch(out []byte) (map[string]BatchEntry, error) {
	result := map[string]BatchEntry{}
	for len(out) > 0 {
		nl := bytes.IndexByte(out, '\n')
		if nl < 0 {
			break
		}
		header := string(out[:nl])
		out = out[nl+1:]
		fields := strings.Fields(header)
		if len(fields) < 3 {
			// "<oid> missing"
			if len(fields) == 2 && fields[1] == "missing" {
				continue
			}
			return nil, fmt.Errorf("gitwire: malformed cat-file --batch header %q", header)
		}
		oid := fields[0]
		typ := fields[1]
		size, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("gitwire: malformed cat-file --batch size in %q: %w", header, err)
		}
		if int64(len(out)) < size+1 {
			return nil, fmt.Errorf("gitwire: truncated cat-file --batch payload for %s", oid)
		}
		data := out[:size]
		out = out[size+1:] // skip trailing newline
		result[oid] = BatchEntry{OID: oid, Type: typ, Size: size, Data: data}
	}
	return result, nil
}

// MkTree writes a tree object from entries and returns its OID.
func MkTree(ctx context.Context, gitDir string, entries []TreeEntry) (string, error) {
	r := &Runner{GitDir: gitDir}
	var stdin bytes.Buffer
	for _, e := range entries {
		fmt.Fprintf(&stdin, "%s %s %s\t%s\n", e.Mode.String(), e.Mode.Type(), e.OID, e.Name)
	}
	out, err := r.Pipe(ctx, stdin.Bytes(), "mktree")
	if err != nil {
		return "", fmt.Errorf("gitwire: mktree: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// LsTree lists the direct entries of a tree OID (non-recursive).
func LsTree(ctx context.Context, gitDir, treeOID string) ([]TreeEntry, error) {
	r := &Runner{GitDir: gitDir}
	out, err := r.Exec(ctx, "ls-tree", treeOID)
	if err != nil {
		return nil, fmt.Errorf("gitwire: ls-tree %s: %w", treeOID, err)
	}
	return parseLsTree(out)
}

func parseLsTree(out []byte) ([]TreeEntry, error) {
	var entries []TreeEntry
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line == "" {
			continue
		}
		tab := strings.IndexByte(line, '\t')
		if tab < 0 {
			return nil, fmt.Errorf("gitwire: malformed ls-tree line %q", line)
		}
		meta := strings.Fields(line[:tab])
		if len(meta) < 3 {
			return nil, fmt.Errorf("gitwire: malformed ls-tree line %q", line)
		}
		mode, err := strconv.ParseUint(meta[0], 8, 32)
		if err != nil {
			return nil, fmt.Errorf("gitwire: malformed ls-tree mode in %q: %w", line, err)
		}
		entries = append(entries, TreeEntry{
			Mode: FileMode(mode),
			OID:  meta[2],
			Name: line[tab+1:],
		})
	}
	return entries, nil
}

// CommitTree creates a commit object pointing at treeOID with the given
// parents, author/committer signatures, and message, returning its OID.
func CommitTree(ctx context.Context, gitDir string, treeOID string, parents []string, author, committer Signature, message string) (string, error) {
	r := &Runner{GitDir: gitDir}
	args := []string{"commit-tree", treeOID}
	for _, p := range parents {
		args = append(args, "-p", p)
	}
	env := []string{
		"GIT_AUTHOR_NAME=" + author.Name,
		"GIT_AUTHOR_EMAIL=" + author.Email,
		"GIT_AUTHOR_DATE=" + formatGitDate(author),
		"GIT_COMMITTER_NAME=" + committer.Name,
		"GIT_COMMITTER_EMAIL=" + committer.Email,
		"GIT_COMMITTER_DATE=" + formatGitDate(committer),
	}
	r.Env = env
	out, err := r.Pipe(ctx, []byte(message), args...)
	if err != nil {
		return "", fmt.Errorf("gitwire: commit-tree: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

func formatGitDate(s Signature) string {
	tz := s.TZ
	if tz == "" {
		tz = "+0000"
	}
	return fmt.Sprintf("%d %s", s.When, tz)
}
