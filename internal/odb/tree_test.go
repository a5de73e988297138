package odb

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/cairndb/cairn/internal/gitwire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

func newBareRepo(t *testing.T) string {
	t.Helper()
	gitDir := filepath.Join(t.TempDir(), "repo.git")
	require.NoError(t, gitwire.InitBare(context.Background(), gitDir, "main"))
	return gitDir
}

func TestApplyMutationsInsertNested(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	gitDir := newBareRepo(t)

	treeOID, err := ApplyMutations(ctx, gitDir, "", []Mutation{
		{Path: "nara/park.json", Data: []byte(`{"a":1}`)},
		{Path: "nara/temple.json", Data: []byte(`{"b":2}`)},
		{Path: "top.json", Data: []byte(`{"c":3}`)},
	})
	require.NoError(t, err)

	data, ok, err := ReadBlob(ctx, gitDir, treeOID, "nara/park.json")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(data))

	entries, err := ListDir(ctx, gitDir, treeOID, "nara")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestApplyMutationsDelete(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	gitDir := newBareRepo(t)

	treeOID, err := ApplyMutations(ctx, gitDir, "", []Mutation{
		{Path: "nara/park.json", Data: []byte(`{"a":1}`)},
	})
	require.NoError(t, err)

	treeOID2, err := ApplyMutations(ctx, gitDir, treeOID, []Mutation{
		{Path: "nara/park.json", Delete: true},
	})
	require.NoError(t, err)

	_, ok, err := ReadBlob(ctx, gitDir, treeOID2, "nara/park.json")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCommitAndPathHistory(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	gitDir := newBareRepo(t)

	actor := Actor{Name: "Nara", Email: "nara@example.com"}
	res1, err := Commit(ctx, gitDir, CommitRequest{
		Mutations: []Mutation{{Path: "nara/park.json", Data: []byte(`{"v":1}`)}},
		Kind:      ChangeInsert,
		Paths:     []string{"nara/park.json"},
		Actor:     actor,
	})
	require.NoError(t, err)

	res2, err := Commit(ctx, gitDir, CommitRequest{
		ParentOID:   res1.CommitOID,
		BaseTreeOID: res1.TreeOID,
		Mutations:   []Mutation{{Path: "nara/park.json", Data: []byte(`{"v":2}`)}},
		Kind:        ChangeUpdate,
		Paths:       []string{"nara/park.json"},
		Actor:       actor,
	})
	require.NoError(t, err)

	revs, err := PathHistory(ctx, gitDir, res2.CommitOID, "nara/park.json")
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, res2.CommitOID, revs[0].CommitOID)
	assert.Equal(t, res1.CommitOID, revs[1].CommitOID)
}
