// Package docid validates short ids and collection paths per the naming
// rules a full path must satisfy before it is ever handed to the commit
// worker.
//
// Grounded on modules/zeta/refs/rules.go's precompiled-rule-table validator
// and modules/plumbing/validate.go from the teacher.
package docid

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cairndb/cairn/internal/cairnerr"
)

// MaxFullPathBytes is the hard ceiling on collectionPath+shortId+ext.
const MaxFullPathBytes = 255

// reservedChars are forbidden anywhere in a short id (OS-reserved set).
const reservedChars = `<>:"|?*` + "`"

// ValidateID checks a short id in isolation (before it is joined to a
// collection path). It allows '/' as an explicit path separator.
func ValidateID(id string) error {
	if len(id) == 0 {
		return cairnerr.ErrUndefinedDocumentID
	}
	if id == "." || id == ".." {
		return cairnerr.ErrInvalidID
	}
	if strings.HasPrefix(id, "/") || strings.HasSuffix(id, "/") {
		return cairnerr.ErrInvalidID
	}
	if strings.HasSuffix(id, ".") || isTrailingWhitespace(id) {
		return cairnerr.ErrInvalidID
	}
	for _, part := range strings.Split(id, "/") {
		if part == "." || part == ".." {
			return cairnerr.ErrInvalidID
		}
	}
	if !utf8.ValidString(id) {
		return cairnerr.ErrInvalidIDCharacter
	}
	for _, r := range id {
		if err := validateRune(r); err != nil {
			return err
		}
	}
	return nil
}

func isTrailingWhitespace(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	return unicode.IsSpace(r)
}

func validateRune(r rune) error {
	if r == 0 {
		return cairnerr.ErrInvalidIDCharacter
	}
	if r < 0x20 || r == 0x7f {
		return cairnerr.ErrInvalidIDCharacter
	}
	if strings.ContainsRune(reservedChars, r) {
		return cairnerr.ErrInvalidIDCharacter
	}
	return nil
}

// ValidateCollectionPath checks a collection prefix: must not contain '..'
// segments and, when non-empty, must end in '/'.
func ValidateCollectionPath(p string) error {
	if p == "" {
		return nil
	}
	if !strings.HasSuffix(p, "/") {
		return cairnerr.ErrInvalidCollectionPath
	}
	for _, part := range strings.Split(strings.Trim(p, "/"), "/") {
		if part == "" || part == "." || part == ".." {
			return cairnerr.ErrInvalidCollectionPath
		}
	}
	return nil
}

// ValidateFullPath validates the byte length of a composed full path.
func ValidateFullPath(fullPath string) error {
	if len(fullPath) > MaxFullPathBytes {
		return cairnerr.ErrInvalidID
	}
	return nil
}

// IsUnderMetadataDir reports whether p lives under the reserved metadata
// directory and should never be surfaced by find/allDocs.
func IsUnderMetadataDir(p, metadataDir string) bool {
	if metadataDir == "" {
		return false
	}
	prefix := strings.TrimSuffix(metadataDir, "/") + "/"
	return strings.HasPrefix(p, prefix) || p == strings.TrimSuffix(metadataDir, "/")
}
