package gitwire

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

func TestInitHashObjectAndMkTree(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	gitDir := filepath.Join(t.TempDir(), "repo.git")
	require.NoError(t, InitBare(ctx, gitDir, "main"))
	assert.True(t, IsBareRepository(ctx, gitDir))

	blobOID, err := HashObject(ctx, gitDir, []byte(`{"a":1}`), true)
	require.NoError(t, err)
	require.Len(t, blobOID, 40)

	data, err := CatFileBlob(ctx, gitDir, blobOID)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	treeOID, err := MkTree(ctx, gitDir, []TreeEntry{{Name: "nara.json", OID: blobOID, Mode: ModeFile}})
	require.NoError(t, err)
	require.Len(t, treeOID, 40)

	entries, err := LsTree(ctx, gitDir, treeOID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "nara.json", entries[0].Name)
	assert.Equal(t, blobOID, entries[0].OID)
}

func TestCommitTreeAndRefUpdater(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	gitDir := filepath.Join(t.TempDir(), "repo.git")
	require.NoError(t, InitBare(ctx, gitDir, "main"))

	blobOID, err := HashObject(ctx, gitDir, []byte("hello"), true)
	require.NoError(t, err)
	treeOID, err := MkTree(ctx, gitDir, []TreeEntry{{Name: "a.txt", OID: blobOID, Mode: ModeFile}})
	require.NoError(t, err)

	sig := Signature{Name: "Nara", Email: "nara@example.com", When: time.Now().Unix()}
	commitOID, err := CommitTree(ctx, gitDir, treeOID, nil, sig, sig, "initial\n")
	require.NoError(t, err)
	require.Len(t, commitOID, 40)

	u, err := NewRefUpdater(ctx, gitDir)
	require.NoError(t, err)
	require.NoError(t, u.Start())
	require.NoError(t, u.Create("refs/heads/main", commitOID))
	require.NoError(t, u.Commit())
	require.NoError(t, u.Close())

	head, err := RevParse(ctx, gitDir, "refs/heads/main")
	require.NoError(t, err)
	assert.Equal(t, commitOID, head)
}

func TestCatFileBatch(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	gitDir := filepath.Join(t.TempDir(), "repo.git")
	require.NoError(t, InitBare(ctx, gitDir, "main"))

	oid1, err := HashObject(ctx, gitDir, []byte("one"), true)
	require.NoError(t, err)
	oid2, err := HashObject(ctx, gitDir, []byte("two"), true)
	require.NoError(t, err)

	batch, err := CatFileBatch(ctx, gitDir, []string{oid1, oid2})
	require.NoError(t, err)
	assert.Equal(t, "one", string(batch[oid1].Data))
	assert.Equal(t, "two", string(batch[oid2].Data))
}
