package sync

import (
	"context"
	"fmt"

	"github.com/cairndb/cairn/internal/events"
	"github.com/cairndb/cairn/internal/gitwire"
	"github.com/cairndb/cairn/internal/odb"
	"github.com/cairndb/cairn/internal/serializer"
)

// DeriveChangeSet walks the two trees rooted at oldTreeOID/newTreeOID and
// reports each changed path's FatDoc before and after, feeding the
// façade's localChange/remoteChange events (spec §4.J "change set
// derivation").
func DeriveChangeSet(ctx context.Context, gitDir, oldTreeOID, newTreeOID string, reg *serializer.Registry) ([]events.ChangedFile, error) {
	tcs, err := gitwire.DiffTreeNameStatus(ctx, gitDir, oldTreeOID, newTreeOID)
	if err != nil {
		return nil, fmt.Errorf("sync: derive change set: %w", err)
	}
	changes := make([]events.ChangedFile, 0, len(tcs))
	for _, tc := range tcs {
		switch tc.Status {
		case gitwire.TreeChangeAdded:
			newDoc, _, err := odb.ReadFatDoc(ctx, gitDir, newTreeOID, tc.Path, reg, nil)
			if err != nil {
				return nil, err
			}
			changes = append(changes, events.ChangedFile{Op: events.OpInsert, New: newDoc})
		case gitwire.TreeChangeDeleted:
			oldDoc, _, err := odb.ReadFatDoc(ctx, gitDir, oldTreeOID, tc.Path, reg, nil)
			if err != nil {
				return nil, err
			}
			changes = append(changes, events.ChangedFile{Op: events.OpDelete, Old: oldDoc})
		default: // modified
			oldDoc, _, err := odb.ReadFatDoc(ctx, gitDir, oldTreeOID, tc.Path, reg, nil)
			if err != nil {
				return nil, err
			}
			newDoc, _, err := odb.ReadFatDoc(ctx, gitDir, newTreeOID, tc.Path, reg, nil)
			if err != nil {
				return nil, err
			}
			changes = append(changes, events.ChangedFile{Op: events.OpUpdate, Old: oldDoc, New: newDoc})
		}
	}
	return changes, nil
}
