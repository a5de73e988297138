// Package dbconfig is cairn's on-disk local configuration, loaded from
// <metadataDir>/config.toml.
//
// The struct shape -- toml-tagged fields grouped into User/Core-style
// sub-structs, each with an Overwrite(o *T) merge method that lets a
// database-level config be overlaid on top of process defaults -- is
// grounded on the teacher's modules/zeta/config/config.go (User, Core,
// Overwrite). github.com/BurntSushi/toml is the teacher's own toml library.
package dbconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/cairndb/cairn/internal/cairnerr"
)

// Author identifies the writer of commits made through this database.
type Author struct {
	Name  string `toml:"name,omitempty"`
	Email string `toml:"email,omitempty"`
}

func (a *Author) Empty() bool {
	return a == nil || a.Name == "" || a.Email == ""
}

func overwrite(a, b string) string {
	if b != "" {
		return b
	}
	return a
}

func (a *Author) Overwrite(o *Author) {
	if o == nil {
		return
	}
	a.Name = overwrite(a.Name, o.Name)
	a.Email = overwrite(a.Email, o.Email)
}

// Remote is a named push/fetch target registered against this database.
type Remote struct {
	Name          string `toml:"name"`
	URL           string `toml:"url"`
	Branch        string `toml:"branch,omitempty"`
	Connection    string `toml:"connection,omitempty"`    // "https", "ssh", or "" (local path)
	SyncDirection string `toml:"syncDirection,omitempty"` // "pull", "push", or "both" (default)
}

// Core holds the ambient database-wide settings.
type Core struct {
	DefaultBranch    string `toml:"defaultBranch,omitempty"`
	MetadataDir      string `toml:"metadataDir,omitempty"`
	Serializer       string `toml:"serializer,omitempty"` // "json" or "front-matter"
	PersistentDBName string `toml:"persistentDbName,omitempty"`
	RetryIntervalMs  int    `toml:"retryIntervalMs,omitzero"`
}

func (c *Core) Overwrite(o *Core) {
	if o == nil {
		return
	}
	c.DefaultBranch = overwrite(c.DefaultBranch, o.DefaultBranch)
	c.MetadataDir = overwrite(c.MetadataDir, o.MetadataDir)
	c.Serializer = overwrite(c.Serializer, o.Serializer)
	c.PersistentDBName = overwrite(c.PersistentDBName, o.PersistentDBName)
	if o.RetryIntervalMs > 0 {
		c.RetryIntervalMs = o.RetryIntervalMs
	}
}

// Config is the full contents of config.toml.
type Config struct {
	Core    Core              `toml:"core"`
	Author  Author            `toml:"author"`
	Remotes map[string]Remote `toml:"remotes,omitempty"`
}

// Default returns the process-level defaults applied before any on-disk
// config.toml is overlaid.
func Default() *Config {
	return &Config{
		Core: Core{
			DefaultBranch: "main",
			MetadataDir:   ".cairn",
			Serializer:    "json",
		},
		Remotes: map[string]Remote{},
	}
}

// Load reads path (if it exists) and overlays it onto Default(). A missing
// file is not an error; the caller gets the defaults back.
func Load(path string) (*Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("dbconfig: read %s: %w", path, err)
	}
	var onDisk Config
	if err := toml.Unmarshal(raw, &onDisk); err != nil {
		return nil, fmt.Errorf("dbconfig: parse %s: %w", path, err)
	}
	cfg.Core.Overwrite(&onDisk.Core)
	cfg.Author.Overwrite(&onDisk.Author)
	for name, r := range onDisk.Remotes {
		cfg.Remotes[name] = r
	}
	return cfg, nil
}

// Save writes cfg to path as TOML, creating parent directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("dbconfig: create dir for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("dbconfig: create %s: %w", path, err)
	}
	defer f.Close()
	enc := toml.NewEncoder(f)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("dbconfig: encode %s: %w", path, err)
	}
	return nil
}

// AddRemote registers a named remote. It returns
// cairnerr.ErrRemoteAlreadyRegistered if the name is already taken.
func (c *Config) AddRemote(r Remote) error {
	if _, exists := c.Remotes[r.Name]; exists {
		return cairnerr.ErrRemoteAlreadyRegistered
	}
	if c.Remotes == nil {
		c.Remotes = map[string]Remote{}
	}
	c.Remotes[r.Name] = r
	return nil
}
