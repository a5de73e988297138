package merge

import (
	"context"
	"os/exec"
	"testing"

	"github.com/cairndb/cairn/internal/gitwire"
	"github.com/cairndb/cairn/internal/jsonpatch"
	"github.com/cairndb/cairn/internal/odb"
	"github.com/cairndb/cairn/internal/sniff"
	"github.com/stretchr/testify/require"
)

func newBareRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cmd := exec.Command("git", "init", "--bare", "--initial-branch=main", dir)
	if err := cmd.Run(); err != nil {
		t.Skipf("git not available: %v", err)
	}
	return dir
}

func writeTree(t *testing.T, ctx context.Context, gitDir string, files map[string]string) string {
	t.Helper()
	var muts []odb.Mutation
	for path, content := range files {
		muts = append(muts, odb.Mutation{Path: path, Data: []byte(content)})
	}
	oid, err := odb.ApplyMutations(ctx, gitDir, "", muts)
	require.NoError(t, err)
	return oid
}

func classifyJSON(path string) sniff.Kind { return sniff.KindJSON }

func TestMergeCleanIndependentEdits(t *testing.T) {
	ctx := context.Background()
	gitDir := newBareRepo(t)

	base := writeTree(t, ctx, gitDir, map[string]string{"a.json": `{"x":1}`, "b.json": `{"y":1}`})
	ours := writeTree(t, ctx, gitDir, map[string]string{"a.json": `{"x":2}`, "b.json": `{"y":1}`})
	theirs := writeTree(t, ctx, gitDir, map[string]string{"a.json": `{"x":1}`, "b.json": `{"y":2}`})

	mergedTree, conflicts, err := Merge(ctx, gitDir, base, ours, theirs, Resolver{
		Strategy: jsonpatch.StrategyOursDiff,
		Classify: classifyJSON,
	})
	require.NoError(t, err)
	require.Empty(t, conflicts)

	entries, err := gitwire.LsTree(ctx, gitDir, mergedTree)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestMergeConcurrentUpdateConflict(t *testing.T) {
	ctx := context.Background()
	gitDir := newBareRepo(t)

	base := writeTree(t, ctx, gitDir, map[string]string{"doc.json": `{"_id":"1","n":"base"}`})
	ours := writeTree(t, ctx, gitDir, map[string]string{"doc.json": `{"_id":"1","n":"fromB"}`})
	theirs := writeTree(t, ctx, gitDir, map[string]string{"doc.json": `{"_id":"1","n":"fromA"}`})

	mergedTree, conflicts, err := Merge(ctx, gitDir, base, ours, theirs, Resolver{
		Strategy: jsonpatch.StrategyOursDiff,
		Classify: classifyJSON,
	})
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	require.Equal(t, OpUpdateMerge, conflicts[0].Operation)

	data, _, err := odb.ReadBlob(ctx, gitDir, mergedTree, "doc.json")
	require.NoError(t, err)
	require.Contains(t, string(data), `"fromB"`)
}

func TestMergeDeleteVsUpdateOursDiffPrefersUpdate(t *testing.T) {
	ctx := context.Background()
	gitDir := newBareRepo(t)

	base := writeTree(t, ctx, gitDir, map[string]string{"doc.json": `{"n":"base"}`})
	ours := writeTree(t, ctx, gitDir, map[string]string{}) // ours deletes
	theirs := writeTree(t, ctx, gitDir, map[string]string{"doc.json": `{"n":"changed"}`})

	mergedTree, conflicts, err := Merge(ctx, gitDir, base, ours, theirs, Resolver{
		Strategy: jsonpatch.StrategyOursDiff,
		Classify: classifyJSON,
	})
	require.NoError(t, err)
	require.Len(t, conflicts, 1)

	data, found, err := odb.ReadBlob(ctx, gitDir, mergedTree, "doc.json")
	require.NoError(t, err)
	require.True(t, found)
	require.Contains(t, string(data), "changed")
}
