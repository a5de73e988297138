// Package cairn is the public façade: Database and Collection are the
// only call-in surface a caller needs, composing internal/taskqueue,
// internal/odb, internal/sync, internal/search and internal/events
// behind CRUD, history, find, and sync operations.
//
// Grounded on pkg/zeta.Worktree's role in the teacher as the single
// entry point a CLI command reaches for (open/repo state, then one
// method call per operation); cairn generalizes that shape from "one
// working copy of a source tree" to "one collection of documents",
// per the composition-over-mixin design note.
package cairn

import (
	"context"
	"fmt"
	"path"
	"sync"
	"sync/atomic"

	"github.com/cairndb/cairn/internal/cairnerr"
	"github.com/cairndb/cairn/internal/dbconfig"
	"github.com/cairndb/cairn/internal/events"
	"github.com/cairndb/cairn/internal/gitwire"
	"github.com/cairndb/cairn/internal/odb"
	"github.com/cairndb/cairn/internal/serializer"
	"github.com/cairndb/cairn/internal/taskqueue"
	"github.com/cairndb/cairn/internal/tracelog"
)

// creatorName is stamped into every database this package creates, and
// compared against on Open to classify OpenKindCairnCreated vs.
// OpenKindValidVersion.
const creatorName = "cairn"

// OpenOptions configures Open/Init. Zero value is usable: every field
// defaults per dbconfig.Default().
type OpenOptions struct {
	// Author, if non-empty, overrides config.toml's stored author for
	// commits this process makes.
	Author dbconfig.Author
	// QueueCapacity bounds how many tasks may be enqueued ahead of the
	// worker; 0 uses taskqueue's own default.
	QueueCapacity int
	// Verbose gates debug-level logging.
	Verbose bool
}

// Database is one open cairn repository: a bare git directory, its
// resolved config, and the shared task queue/event bus/registry every
// Collection obtained from it uses.
type Database struct {
	GitDir   string
	Config   *dbconfig.Config
	Info     *Info
	OpenKind OpenKind

	Queue    *taskqueue.Queue
	Events   *events.Bus
	Registry *serializer.Registry
	Logger   tracelog.Logger

	closing atomic.Bool

	// remoteOptions carries per-remote secrets/strategy fields AddRemote
	// received that dbconfig.Remote itself has no room for (the PAT/
	// passphrase live in credstore, not config.toml).
	remoteOptionsMu sync.Mutex
	remoteOptions   map[string]RemoteOptions
}

func configPath(gitDir, metadataDir string) string {
	return path.Join(gitDir, metadataDir, "config.toml")
}

// Init creates a brand-new bare repository at gitDir, stamps its info
// record, and returns it opened. Init fails with
// cairnerr.ErrCannotCreateRepository if gitDir already holds a git
// directory.
func Init(ctx context.Context, gitDir string, opts OpenOptions) (*Database, error) {
	if gitwire.IsBareRepository(ctx, gitDir) {
		return nil, fmt.Errorf("cairn: init %s: %w", gitDir, cairnerr.ErrCannotCreateRepository)
	}
	cfg := dbconfig.Default()
	cfg.Author.Overwrite(&opts.Author)
	if err := gitwire.InitBare(ctx, gitDir, cfg.Core.DefaultBranch); err != nil {
		return nil, fmt.Errorf("cairn: init %s: %w", gitDir, err)
	}
	if err := dbconfig.Save(configPath(gitDir, cfg.Core.MetadataDir), cfg); err != nil {
		return nil, fmt.Errorf("cairn: init %s: %w", gitDir, err)
	}
	return open(ctx, gitDir, cfg, opts)
}

// Open opens an existing cairn repository at gitDir. It stamps an info
// record on first real use (an empty bare repository with no commits
// yet), classifying the result as OpenKindNew, and otherwise classifies
// the existing info record as OpenKindCairnCreated (this package's own
// creator/version) or OpenKindValidVersion (a readable but
// differently-stamped record).
func Open(ctx context.Context, gitDir string, opts OpenOptions) (*Database, error) {
	if !gitwire.IsBareRepository(ctx, gitDir) {
		return nil, fmt.Errorf("cairn: open %s: %w", gitDir, cairnerr.ErrRepositoryNotFound)
	}
	cfg, err := dbconfig.Load(configPath(gitDir, dbconfig.Default().Core.MetadataDir))
	if err != nil {
		return nil, fmt.Errorf("cairn: open %s: %w", gitDir, err)
	}
	cfg.Author.Overwrite(&opts.Author)
	return open(ctx, gitDir, cfg, opts)
}

func open(ctx context.Context, gitDir string, cfg *dbconfig.Config, opts OpenOptions) (*Database, error) {
	actor := odb.Actor{Name: cfg.Author.Name, Email: cfg.Author.Email}
	headOID, err := gitwire.RevParse(ctx, gitDir, "refs/heads/"+cfg.Core.DefaultBranch)
	if err != nil {
		return nil, fmt.Errorf("cairn: open %s: %w", gitDir, err)
	}

	reg := serializer.NewRegistry()
	info, kind, newHead, err := loadOrStampInfo(ctx, gitDir, cfg.Core.MetadataDir, creatorName, actor, headOID, reg)
	if err != nil {
		return nil, fmt.Errorf("cairn: open %s: %w", gitDir, err)
	}
	if newHead != headOID {
		if err := advanceBranch(ctx, gitDir, cfg.Core.DefaultBranch, newHead, headOID); err != nil {
			return nil, fmt.Errorf("cairn: open %s: %w", gitDir, err)
		}
	}

	logger := tracelog.Discard
	if opts.Verbose {
		logger = tracelog.New(true)
	}

	db := &Database{
		GitDir:   gitDir,
		Config:   cfg,
		Info:     info,
		OpenKind: kind,
		Queue:    taskqueue.New(opts.QueueCapacity),
		Events:   &events.Bus{},
		Registry: reg,
		Logger:   logger,
	}
	return db, nil
}

// advanceBranch moves the configured default branch to newOID, used
// once at open time to land the info-stamping commit.
func advanceBranch(ctx context.Context, gitDir, branch, newOID, oldOID string) error {
	updater, err := gitwire.NewRefUpdater(ctx, gitDir)
	if err != nil {
		return err
	}
	if err := updater.Start(); err != nil {
		return err
	}
	if oldOID == "" {
		err = updater.Create("refs/heads/"+branch, newOID)
	} else {
		err = updater.Update("refs/heads/"+branch, newOID, oldOID)
	}
	if err != nil {
		return err
	}
	if err := updater.Commit(); err != nil {
		return err
	}
	return updater.Close()
}

// Collection returns a handle scoped to collectionPath (e.g. "notes/",
// "" for the database root). collectionPath must satisfy
// docid.ValidateCollectionPath.
func (db *Database) Collection(collectionPath string, opts ...CollectionOption) (*Collection, error) {
	if err := validateCollectionPath(collectionPath); err != nil {
		return nil, err
	}
	c := &Collection{
		db:             db,
		collectionPath: collectionPath,
		branch:         db.Config.Core.DefaultBranch,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close stops the task queue, allowing the currently running task (if
// any) to finish, and rejecting every queued-but-not-started task.
// Subsequent Collection method calls on db return
// cairnerr.ErrDatabaseClosing.
func (db *Database) Close() error {
	if db.closing.Swap(true) {
		return nil
	}
	db.Queue.Stop()
	return nil
}
