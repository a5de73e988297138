package odb

import (
	"context"
	"path"
	"strings"

	"github.com/cairndb/cairn/internal/serializer"
	"github.com/cairndb/cairn/internal/sniff"
)

// FatDoc is a document's decoded value plus the surrounding metadata
// callers need to display or re-diff it without a second blob read: its
// collection-relative name, the git blob oid backing it, its kind (from
// the codec chosen for it), and its short id (the path without its
// extension).
type FatDoc struct {
	Name    string
	ShortID string
	FileOID string
	Type    sniff.Kind
	Value   any
}

// ReadFatDoc resolves filePath against treeOID and decodes it into a
// FatDoc. Returns (nil, false, nil) if no entry exists at filePath. For
// JSON documents, Value's "_id" key is overwritten with the path-derived
// short id, matching every other reader in this package (spec's
// "readers overwrite _id to be authoritative" rule).
//
// forceKind, when non-nil, overrides the extension-derived codec choice
// with the codec for that document kind directly (spec §4.C's
// forceDocType option on find()/allDocs()).
func ReadFatDoc(ctx context.Context, gitDir, treeOID, filePath string, reg *serializer.Registry, forceKind *sniff.Kind) (*FatDoc, bool, error) {
	oid, mode, err := resolvePath(ctx, gitDir, treeOID, filePath)
	if err != nil {
		return nil, false, err
	}
	if oid == "" || mode.Type() != "blob" {
		return nil, false, nil
	}
	data, found, err := ReadBlob(ctx, gitDir, treeOID, filePath)
	if err != nil || !found {
		return nil, found, err
	}

	var codec serializer.Codec
	var kind sniff.Kind
	if forceKind != nil {
		kind = *forceKind
		codec = reg.ForKind(kind)
	} else {
		ext := strings.ToLower(path.Ext(filePath))
		codec = reg.For(ext)
		kind = sniff.KindBinary
		switch codec.(type) {
		case serializer.JSONCodec:
			kind = sniff.KindJSON
		case serializer.FrontMatterCodec, serializer.TextCodec:
			kind = sniff.KindText
		}
	}

	value, err := codec.Decode(data)
	if err != nil {
		return nil, true, err
	}

	shortID := shortIDFromPath(filePath)
	if kind == sniff.KindJSON {
		if obj, ok := value.(map[string]any); ok {
			obj["_id"] = shortID
			value = obj
		}
	}

	return &FatDoc{
		Name:    path.Base(filePath),
		ShortID: shortID,
		FileOID: oid,
		Type:    kind,
		Value:   value,
	}, true, nil
}

// shortIDFromPath derives a document's short id from its collection-
// relative path by dropping the extension, the inverse of how the
// collection façade composes a full path from a caller-supplied id.
func shortIDFromPath(filePath string) string {
	ext := path.Ext(filePath)
	return strings.TrimSuffix(filePath, ext)
}
