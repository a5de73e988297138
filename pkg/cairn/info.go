package cairn

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/cairndb/cairn/internal/cairnerr"
	"github.com/cairndb/cairn/internal/gitwire"
	"github.com/cairndb/cairn/internal/odb"
	"github.com/cairndb/cairn/internal/serializer"
	"github.com/oklog/ulid/v2"
)

// version is stamped into every new database's info record and compared
// against on subsequent opens.
const version = "1"

// Info is the well-known `<metadataDir>/info.json` record (spec §3):
// the database's identity, stamped by the first process that ever opens
// it and compared on every later open.
type Info struct {
	DBID    string `json:"dbId"`
	Creator string `json:"creator"`
	Version string `json:"version"`
}

// OpenKind classifies a repository against its info record on open.
type OpenKind string

const (
	OpenKindNew          OpenKind = "new"          // no commits yet; info will be stamped
	OpenKindCairnCreated OpenKind = "cairn-created" // info present, version matches
	OpenKindValidVersion OpenKind = "valid-version" // info present, different creator/version but readable
)

func infoPath(metadataDir string) string {
	return path.Join(metadataDir, "info.json")
}

// loadOrStampInfo reads the info record from headOID's tree, or (when
// headOID is "" -- a brand-new repository) stamps a fresh one via an
// initial commit, returning the possibly-new HEAD OID alongside it.
func loadOrStampInfo(ctx context.Context, gitDir, metadataDir, creator string, actor odb.Actor, headOID string, reg *serializer.Registry) (*Info, OpenKind, string, error) {
	ipath := infoPath(metadataDir)

	if headOID != "" {
		treeOID, err := gitwire.CommitTreeOID(ctx, gitDir, headOID)
		if err != nil {
			return nil, "", "", err
		}
		data, found, err := odb.ReadBlob(ctx, gitDir, treeOID, ipath)
		if err != nil {
			return nil, "", "", err
		}
		if found {
			info, err := decodeInfo(data, reg)
			if err != nil {
				return nil, "", "", fmt.Errorf("cairn: decode info record: %w", err)
			}
			kind := OpenKindValidVersion
			if info.Creator == creator && info.Version == version {
				kind = OpenKindCairnCreated
			}
			return info, kind, headOID, nil
		}
	}

	info := &Info{DBID: ulid.Make().String(), Creator: creator, Version: version}
	data, err := encodeInfo(info, reg)
	if err != nil {
		return nil, "", "", err
	}

	result, err := odb.Commit(ctx, gitDir, odb.CommitRequest{
		ParentOID:   headOID,
		Mutations:   []odb.Mutation{{Path: ipath, Data: data}},
		Message:     "initialize database",
		Actor:       actor,
		CommittedAt: time.Now(),
	})
	if err != nil {
		return nil, "", "", fmt.Errorf("cairn: stamp info record: %w", cairnerr.ErrCannotCreateRepository)
	}
	return info, OpenKindNew, result.CommitOID, nil
}

func encodeInfo(info *Info, reg *serializer.Registry) ([]byte, error) {
	codec := reg.For(".json")
	raw, err := codec.Encode(map[string]any{
		"dbId":    info.DBID,
		"creator": info.Creator,
		"version": info.Version,
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func decodeInfo(data []byte, reg *serializer.Registry) (*Info, error) {
	codec := reg.For(".json")
	v, err := codec.Decode(data)
	if err != nil {
		return nil, err
	}
	obj, _ := v.(map[string]any)
	info := &Info{}
	info.DBID, _ = obj["dbId"].(string)
	info.Creator, _ = obj["creator"].(string)
	info.Version, _ = obj["version"].(string)
	return info, nil
}
