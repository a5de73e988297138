package sync

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cairndb/cairn/internal/cairnerr"
	"github.com/cairndb/cairn/internal/gitwire"
	"github.com/cairndb/cairn/internal/odb"
	"github.com/cairndb/cairn/internal/serializer"
	"github.com/cairndb/cairn/internal/sync/transport"
)

// DuplicatedFile records one local path that collided with a remote path
// during a combine and was renamed to survive alongside it.
type DuplicatedFile struct {
	Original  string
	Duplicate string
}

// CombineResult is the outcome of Combine: the new local HEAD (now a
// clone of the remote plus the renamed local files) and the rename list.
type CombineResult struct {
	CommitOID  string
	Duplicates []DuplicatedFile
}

// cleanupTimeout bounds how long Combine waits for the temporary
// directories it no longer needs to be removed, so a slow or wedged
// filesystem can't hang the sync task indefinitely.
const cleanupTimeout = 30 * time.Second

// Combine implements spec §4.J's "no merge base found" recovery path: the
// local and remote histories share no common ancestor (most commonly,
// two independently-initialized databases pointed at the same remote),
// so there is nothing to three-way merge. Instead, the remote's history
// is adopted wholesale and every local file is folded into it, renamed
// out of the way (`-from-<dbID>` suffix) wherever a path collides.
func Combine(ctx context.Context, gitDir, dbID, branch, remoteURL string, rt transport.Remote, actor odb.Actor, reg *serializer.Registry) (*CombineResult, error) {
	sibling := filepath.Join(os.TempDir(), "cairn-combine-remote-"+uuid.NewString())
	if err := os.Mkdir(sibling, 0o700); err != nil {
		return nil, fmt.Errorf("sync: combine: %w", err)
	}

	if err := rt.Clone(ctx, remoteURL, sibling); err != nil {
		return nil, fmt.Errorf("sync: combine: clone: %w", cairnerr.ErrCombineDatabase)
	}

	localHead, err := gitwire.RevParse(ctx, gitDir, "refs/heads/"+branch)
	if err != nil {
		return nil, fmt.Errorf("sync: combine: %w", err)
	}
	localTree := ""
	if localHead != "" {
		localTree, err = gitwire.CommitTreeOID(ctx, gitDir, localHead)
		if err != nil {
			return nil, fmt.Errorf("sync: combine: %w", err)
		}
	}

	remoteHead, err := gitwire.RevParse(ctx, sibling, "refs/heads/"+branch)
	if err != nil {
		return nil, fmt.Errorf("sync: combine: %w", err)
	}
	remoteTree := ""
	if remoteHead != "" {
		remoteTree, err = gitwire.CommitTreeOID(ctx, sibling, remoteHead)
		if err != nil {
			return nil, fmt.Errorf("sync: combine: %w", err)
		}
	}

	localFiles, err := listAllFiles(ctx, gitDir, localTree)
	if err != nil {
		return nil, fmt.Errorf("sync: combine: %w", err)
	}

	var mutations []odb.Mutation
	var duplicates []DuplicatedFile
	for _, p := range localFiles {
		data, _, err := odb.ReadBlob(ctx, gitDir, localTree, p)
		if err != nil {
			return nil, fmt.Errorf("sync: combine: %w", err)
		}
		_, collides, err := odb.ReadBlob(ctx, sibling, remoteTree, p)
		if err != nil {
			return nil, fmt.Errorf("sync: combine: %w", err)
		}
		targetPath := p
		if collides {
			targetPath = suffixedPath(p, dbID)
			if strings.HasSuffix(p, ".json") {
				data, err = adjustJSONID(data, reg, targetPath)
				if err != nil {
					return nil, fmt.Errorf("sync: combine: %w", err)
				}
			}
			duplicates = append(duplicates, DuplicatedFile{Original: p, Duplicate: targetPath})
		}
		mutations = append(mutations, odb.Mutation{Path: targetPath, Data: data})
	}

	result, err := odb.Commit(ctx, sibling, odb.CommitRequest{
		ParentOID:   remoteHead,
		BaseTreeOID: remoteTree,
		Mutations:   mutations,
		Message:     "combine database",
		Actor:       actor,
		CommittedAt: time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("sync: combine: %w", err)
	}

	updater, err := gitwire.NewRefUpdater(ctx, sibling)
	if err != nil {
		return nil, fmt.Errorf("sync: combine: %w", err)
	}
	if err := updater.Start(); err != nil {
		return nil, fmt.Errorf("sync: combine: %w", err)
	}
	if err := updater.Update("refs/heads/"+branch, result.CommitOID, remoteHead); err != nil {
		return nil, fmt.Errorf("sync: combine: %w", err)
	}
	if err := updater.Commit(); err != nil {
		return nil, fmt.Errorf("sync: combine: %w", err)
	}
	if err := updater.Close(); err != nil {
		return nil, fmt.Errorf("sync: combine: %w", err)
	}

	if err := swapDirectories(ctx, gitDir, sibling); err != nil {
		return nil, fmt.Errorf("sync: combine: %w", err)
	}

	return &CombineResult{CommitOID: result.CommitOID, Duplicates: duplicates}, nil
}

// swapDirectories moves sibling into gitDir's place, keeping the old
// gitDir contents around under a ".old" suffix only long enough to
// remove them within cleanupTimeout.
func swapDirectories(ctx context.Context, gitDir, sibling string) error {
	oldDir := gitDir + ".old"
	if err := os.RemoveAll(oldDir); err != nil {
		return err
	}
	if err := os.Rename(gitDir, oldDir); err != nil {
		return err
	}
	if err := os.Rename(sibling, gitDir); err != nil {
		// best-effort restore so a failed swap doesn't orphan the database
		_ = os.Rename(oldDir, gitDir)
		return err
	}

	cleanupCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- os.RemoveAll(oldDir) }()
	select {
	case <-cleanupCtx.Done():
		// the stale directory is leaked, not the active one; a later
		// combine or manual cleanup can still remove it.
	case <-done:
	}
	return nil
}

func listAllFiles(ctx context.Context, gitDir, treeOID string) ([]string, error) {
	var out []string
	var walk func(prefix string) error
	walk = func(prefix string) error {
		entries, err := odb.ListDir(ctx, gitDir, treeOID, prefix)
		if err != nil {
			return err
		}
		for _, e := range entries {
			full := strings.TrimPrefix(prefix+"/"+e.Name, "/")
			if e.Mode.Type() == "tree" {
				if err := walk(full); err != nil {
					return err
				}
				continue
			}
			out = append(out, full)
		}
		return nil
	}
	if treeOID == "" {
		return nil, nil
	}
	if err := walk(""); err != nil {
		return nil, err
	}
	return out, nil
}

func suffixedPath(p, dbID string) string {
	ext := path.Ext(p)
	base := strings.TrimSuffix(p, ext)
	return fmt.Sprintf("%s-from-%s%s", base, dbID, ext)
}

// adjustJSONID re-encodes a JSON document's body with its _id field
// rewritten to the new path's short id, so a renamed duplicate reads back
// self-consistent per spec's "_id matches the path-derived short id" rule.
func adjustJSONID(data []byte, reg *serializer.Registry, newPath string) ([]byte, error) {
	codec := reg.For(path.Ext(newPath))
	value, err := codec.Decode(data)
	if err != nil {
		return nil, err
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return data, nil
	}
	ext := path.Ext(newPath)
	obj["_id"] = strings.TrimSuffix(newPath, ext)
	return codec.Encode(obj)
}
