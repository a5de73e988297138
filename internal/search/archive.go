package search

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zip"
)

const (
	postingsEntry = "postings.json"
	docsEntry     = "docs.json"
)

func isNotExist(err error) bool { return errors.Is(err, os.ErrNotExist) }

// Serialize persists idx's current postings to options.ArchivePath as a
// zip file (spec §4.M's serialize()), two JSON entries: the token ->
// doc-id postings and the last-indexed document bodies rebuild needs to
// diff against.
func (idx *Index) Serialize() error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.options.ArchivePath == "" {
		return fmt.Errorf("search: serialize: no ArchivePath configured")
	}

	postings := make(map[string][]string, len(idx.postings))
	for tok, set := range idx.postings {
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		postings[tok] = ids
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if err := writeJSONEntry(zw, postingsEntry, postings); err != nil {
		return err
	}
	if err := writeJSONEntry(zw, docsEntry, idx.docs); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("search: serialize: %w", err)
	}
	return os.WriteFile(idx.options.ArchivePath, buf.Bytes(), 0o644)
}

func writeJSONEntry(zw *zip.Writer, name string, v any) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("search: serialize: create %s: %w", name, err)
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("search: serialize: encode %s: %w", name, err)
	}
	return nil
}

// loadArchive reads a zip file previously written by Serialize back into
// idx's postings.
func (idx *Index) loadArchive(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("search: load archive: %w", err)
	}

	var postings map[string][]string
	var docs map[string]Document
	for _, f := range zr.File {
		switch f.Name {
		case postingsEntry:
			if err := readJSONEntry(f, &postings); err != nil {
				return err
			}
		case docsEntry:
			if err := readJSONEntry(f, &docs); err != nil {
				return err
			}
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.postings = map[string]map[string]struct{}{}
	for tok, ids := range postings {
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		idx.postings[tok] = set
	}
	if docs == nil {
		docs = map[string]Document{}
	}
	idx.docs = docs
	return nil
}

func readJSONEntry(f *zip.File, v any) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("search: load archive: open %s: %w", f.Name, err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("search: load archive: read %s: %w", f.Name, err)
	}
	return json.Unmarshal(raw, v)
}

// Destroy removes the serialized archive file, if any (spec §4.M's
// destroy()). The in-memory index is left empty, mirroring a freshly
// created one.
func (idx *Index) Destroy() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.postings = map[string]map[string]struct{}{}
	idx.docs = map[string]Document{}
	if idx.options.ArchivePath == "" {
		return nil
	}
	err := os.Remove(idx.options.ArchivePath)
	if err != nil && isNotExist(err) {
		return nil
	}
	return err
}
