package merge

import (
	"context"
	"fmt"

	"github.com/cairndb/cairn/internal/gitwire"
)

// flattenTree recursively lists every blob in treeOID, keyed by its full
// slash-joined path. An empty treeOID (unborn tree) yields an empty map.
func flattenTree(ctx context.Context, gitDir, treeOID string) (map[string]entry, error) {
	result := map[string]entry{}
	if treeOID == "" {
		return result, nil
	}
	if err := flattenInto(ctx, gitDir, "", treeOID, result); err != nil {
		return nil, err
	}
	return result, nil
}

func flattenInto(ctx context.Context, gitDir, prefix, treeOID string, out map[string]entry) error {
	entries, err := gitwire.LsTree(ctx, gitDir, treeOID)
	if err != nil {
		return fmt.Errorf("merge: ls-tree %s: %w", treeOID, err)
	}
	for _, e := range entries {
		full := prefix + e.Name
		if e.Mode.Type() == "tree" {
			if err := flattenInto(ctx, gitDir, full+"/", e.OID, out); err != nil {
				return err
			}
			continue
		}
		out[full] = entry{OID: e.OID, Mode: e.Mode}
	}
	return nil
}
