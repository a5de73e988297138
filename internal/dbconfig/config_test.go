package dbconfig

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, "main", cfg.Core.DefaultBranch)
	assert.Equal(t, ".cairn", cfg.Core.MetadataDir)
}

func TestSaveThenLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := Default()
	cfg.Author.Name = "Nara"
	cfg.Author.Email = "nara@example.com"
	require.NoError(t, cfg.AddRemote(Remote{Name: "origin", URL: "https://example.com/db.git"}))
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Nara", loaded.Author.Name)
	assert.Equal(t, "main", loaded.Core.DefaultBranch)
	require.Contains(t, loaded.Remotes, "origin")
	assert.Equal(t, "https://example.com/db.git", loaded.Remotes["origin"].URL)
}

func TestAddRemoteDuplicateRejected(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.AddRemote(Remote{Name: "origin", URL: "a"}))
	assert.Error(t, cfg.AddRemote(Remote{Name: "origin", URL: "b"}))
}
