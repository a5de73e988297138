package sync

import (
	"context"
	"os/exec"
	"testing"

	"github.com/cairndb/cairn/internal/dbconfig"
	"github.com/cairndb/cairn/internal/events"
	"github.com/cairndb/cairn/internal/gitwire"
	"github.com/cairndb/cairn/internal/jsonpatch"
	"github.com/cairndb/cairn/internal/merge"
	"github.com/cairndb/cairn/internal/odb"
	"github.com/cairndb/cairn/internal/serializer"
	"github.com/cairndb/cairn/internal/sniff"
	"github.com/cairndb/cairn/internal/sync/transport"
	"github.com/stretchr/testify/require"
)

func newBareRepo(t *testing.T, branch string) string {
	t.Helper()
	dir := t.TempDir()
	cmd := exec.Command("git", "init", "--bare", "--initial-branch="+branch, dir)
	if err := cmd.Run(); err != nil {
		t.Skipf("git not available: %v", err)
	}
	return dir
}

func commitFiles(t *testing.T, ctx context.Context, gitDir, branch, parentOID string, files map[string]string) string {
	t.Helper()
	var muts []odb.Mutation
	for p, content := range files {
		muts = append(muts, odb.Mutation{Path: p, Data: []byte(content)})
	}
	parentTree := ""
	if parentOID != "" {
		var err error
		parentTree, err = gitwire.CommitTreeOID(ctx, gitDir, parentOID)
		require.NoError(t, err)
	}
	result, err := odb.Commit(ctx, gitDir, odb.CommitRequest{
		ParentOID:   parentOID,
		BaseTreeOID: parentTree,
		Mutations:   muts,
		Message:     "test commit",
		Actor:       odb.Actor{Name: "tester", Email: "tester@example.com"},
	})
	require.NoError(t, err)
	require.NoError(t, advanceRef(ctx, gitDir, "refs/heads/"+branch, result.CommitOID, parentOID))
	return result.CommitOID
}

func newEngine(gitDir, remoteURL string) *Engine {
	return &Engine{
		GitDir:   gitDir,
		Branch:   "main",
		DBID:     "localdb",
		Remote:   dbconfig.Remote{Name: "origin", URL: remoteURL},
		Transport: transport.Local{},
		Actor:    odb.Actor{Name: "tester", Email: "tester@example.com"},
		Registry: serializer.NewRegistry(),
		MergeResolver: merge.Resolver{
			Strategy: jsonpatch.StrategyOursDiff,
			Classify: func(string) sniff.Kind { return sniff.KindJSON },
		},
		Events: &events.Bus{},
	}
}

func TestRunNopWhenBothEmpty(t *testing.T) {
	ctx := context.Background()
	local := newBareRepo(t, "main")
	remote := newBareRepo(t, "main")

	e := newEngine(local, remote)
	result, err := e.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, ActionNop, result.Action)
}

func TestRunFastForwardsWhenOnlyRemoteHasCommits(t *testing.T) {
	ctx := context.Background()
	local := newBareRepo(t, "main")
	remote := newBareRepo(t, "main")
	commitFiles(t, ctx, remote, "main", "", map[string]string{"a.json": `{"n":1}`})

	e := newEngine(local, remote)
	result, err := e.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, ActionFastForward, result.Action)

	head, err := gitwire.RevParse(ctx, local, "refs/heads/main")
	require.NoError(t, err)
	require.NotEmpty(t, head)
}

func TestRunPushesWhenOnlyLocalHasCommits(t *testing.T) {
	ctx := context.Background()
	local := newBareRepo(t, "main")
	remote := newBareRepo(t, "main")
	commitFiles(t, ctx, local, "main", "", map[string]string{"a.json": `{"n":1}`})

	e := newEngine(local, remote)
	result, err := e.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, ActionPush, result.Action)

	remoteHead, err := gitwire.RevParse(ctx, remote, "refs/heads/main")
	require.NoError(t, err)
	require.NotEmpty(t, remoteHead)
}

func TestRunMergesDivergentHistories(t *testing.T) {
	ctx := context.Background()
	local := newBareRepo(t, "main")
	remote := newBareRepo(t, "main")

	base := commitFiles(t, ctx, local, "main", "", map[string]string{"a.json": `{"n":1}`, "b.json": `{"n":1}`})
	require.NoError(t, advanceRef(ctx, remote, "refs/heads/main", base, ""))

	// diverge: remote gets a new commit on top of base...
	remoteTip := commitFiles(t, ctx, remote, "main", base, map[string]string{"a.json": `{"n":1}`, "b.json": `{"n":2}`})
	_ = remoteTip
	// ...while local independently advances past base too.
	commitFiles(t, ctx, local, "main", base, map[string]string{"a.json": `{"n":9}`, "b.json": `{"n":1}`})

	e := newEngine(local, remote)
	result, err := e.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, ActionMergeAndPush, result.Action)
	require.Empty(t, result.Conflicts)

	remoteHead, err := gitwire.RevParse(ctx, remote, "refs/heads/main")
	require.NoError(t, err)
	require.Equal(t, result.CommitOID, remoteHead)
}

func TestRunCombinesUnrelatedHistories(t *testing.T) {
	ctx := context.Background()
	local := newBareRepo(t, "main")
	remote := newBareRepo(t, "main")

	commitFiles(t, ctx, local, "main", "", map[string]string{"a.json": `{"n":1}`})
	commitFiles(t, ctx, remote, "main", "", map[string]string{"z.json": `{"n":1}`})

	e := newEngine(local, remote)
	e.CombineStrategy = CombineStrategyCombine
	result, err := e.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, ActionCombineDatabase, result.Action)

	head, err := gitwire.RevParse(ctx, local, "refs/heads/main")
	require.NoError(t, err)
	require.Equal(t, result.CommitOID, head)
}

func TestRunThrowsOnUnrelatedHistoriesWhenConfigured(t *testing.T) {
	ctx := context.Background()
	local := newBareRepo(t, "main")
	remote := newBareRepo(t, "main")

	commitFiles(t, ctx, local, "main", "", map[string]string{"a.json": `{"n":1}`})
	commitFiles(t, ctx, remote, "main", "", map[string]string{"z.json": `{"n":1}`})

	e := newEngine(local, remote)
	e.CombineStrategy = CombineStrategyThrow
	_, err := e.Run(ctx)
	require.Error(t, err)
}
