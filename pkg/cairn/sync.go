package cairn

import (
	"context"
	"fmt"
	"path"
	"strings"
	stdsync "sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cairndb/cairn/internal/cairnerr"
	"github.com/cairndb/cairn/internal/credstore"
	"github.com/cairndb/cairn/internal/dbconfig"
	"github.com/cairndb/cairn/internal/jsonpatch"
	"github.com/cairndb/cairn/internal/merge"
	"github.com/cairndb/cairn/internal/sniff"
	"github.com/cairndb/cairn/internal/sync"
	"github.com/cairndb/cairn/internal/sync/transport"
	"github.com/cairndb/cairn/internal/taskqueue"
)

// RemoteOptions describes how to register a remote (spec §6's remote
// options enumeration): url, branch, connection, and the conflict/
// combine strategies the sync engine applies against it.
type RemoteOptions struct {
	Name       string
	URL        string
	Branch     string // defaults to the database's default branch
	Connection string // "", "https", or "ssh"
	// SyncDirection is spec §6's syncDirection remote option: "pull",
	// "push", or "both" (the default when left empty).
	SyncDirection sync.Direction

	// PersonalAccessToken, if Connection == "https", is stored in the
	// platform keychain (never in config.toml) under "cairn:<name>".
	PersonalAccessToken string
	// SSHKeyPath and SSHKeyPassphrase apply when Connection == "ssh";
	// the passphrase (if any) is likewise stored in the keychain.
	SSHKeyPath       string
	SSHKeyPassphrase string

	ConflictResolutionStrategy jsonpatch.Strategy
	CombineDBStrategy          sync.CombineStrategy

	// JSONMerge configures the structural JSON merge (spec §4.H):
	// IDOfSubtree names candidate id properties for array-element identity
	// matching, PlainTextProperties names string properties diffed with
	// diff-match-patch instead of replaced wholesale, and KeyOfUniqueArray
	// names array properties to deduplicate after three-way composition.
	// Zero value disables all three (position-indexed arrays, wholesale
	// string replacement, no dedup).
	JSONMerge jsonpatch.Options
}

func credentialTarget(remoteName string) string {
	return "cairn:" + remoteName
}

// AddRemote registers a new remote against db, storing any secret in the
// platform keychain rather than config.toml.
func (db *Database) AddRemote(ctx context.Context, opts RemoteOptions) error {
	if opts.URL == "" {
		return cairnerr.ErrUndefinedRemoteURL
	}
	switch opts.SyncDirection {
	case "", sync.DirectionPull, sync.DirectionPush, sync.DirectionBoth:
	default:
		return fmt.Errorf("cairn: add remote %s: unrecognized sync direction %q", opts.Name, opts.SyncDirection)
	}
	branch := opts.Branch
	if branch == "" {
		branch = db.Config.Core.DefaultBranch
	}

	switch opts.Connection {
	case "https":
		if opts.PersonalAccessToken == "" {
			return cairnerr.ErrUndefinedPersonalAccessToken
		}
		if !strings.HasPrefix(opts.URL, "http://") && !strings.HasPrefix(opts.URL, "https://") {
			return cairnerr.ErrHTTPProtocolRequired
		}
		if err := credstore.Store(ctx, credentialTarget(opts.Name), &credstore.Cred{Secret: opts.PersonalAccessToken}); err != nil {
			return fmt.Errorf("cairn: add remote %s: %w", opts.Name, err)
		}
	case "ssh":
		if opts.SSHKeyPath == "" {
			return cairnerr.ErrInvalidSSHKeyPath
		}
		if opts.SSHKeyPassphrase != "" {
			if err := credstore.Store(ctx, credentialTarget(opts.Name), &credstore.Cred{Secret: opts.SSHKeyPassphrase}); err != nil {
				return fmt.Errorf("cairn: add remote %s: %w", opts.Name, err)
			}
		}
	case "":
		// local path, no credential needed
	default:
		return fmt.Errorf("cairn: add remote %s: unrecognized connection %q", opts.Name, opts.Connection)
	}

	remote := dbconfig.Remote{Name: opts.Name, URL: opts.URL, Branch: branch, Connection: opts.Connection, SyncDirection: string(opts.SyncDirection)}
	if err := db.Config.AddRemote(remote); err != nil {
		return err
	}
	if err := dbconfig.Save(configPath(db.GitDir, db.Config.Core.MetadataDir), db.Config); err != nil {
		return fmt.Errorf("cairn: add remote %s: %w", opts.Name, err)
	}

	db.remoteOptionsMu.Lock()
	if db.remoteOptions == nil {
		db.remoteOptions = map[string]RemoteOptions{}
	}
	db.remoteOptions[opts.Name] = opts
	db.remoteOptionsMu.Unlock()
	return nil
}

func (db *Database) transportFor(remoteName string, remote dbconfig.Remote) transport.Remote {
	switch remote.Connection {
	case "https":
		return transport.PAT{CredentialTarget: credentialTarget(remoteName)}
	case "ssh":
		db.remoteOptionsMu.Lock()
		opts := db.remoteOptions[remoteName]
		db.remoteOptionsMu.Unlock()
		return transport.SSH{KeyPath: opts.SSHKeyPath, CredentialTarget: credentialTarget(remoteName)}
	default:
		return transport.Local{}
	}
}

func classifyByExtension(serializerName string) func(p string) sniff.Kind {
	return func(p string) sniff.Kind {
		ext := path.Ext(p)
		if serializerName == "front-matter" && (ext == ".md" || ext == ".markdown") {
			return sniff.KindText
		}
		if ext == ".json" {
			return sniff.KindJSON
		}
		if ext == ".txt" {
			return sniff.KindText
		}
		return sniff.KindBinary
	}
}

func (db *Database) engineFor(remoteName string) (*sync.Engine, error) {
	remote, ok := db.Config.Remotes[remoteName]
	if !ok {
		return nil, fmt.Errorf("cairn: sync: %w", cairnerr.ErrUndefinedRemoteURL)
	}
	branch := remote.Branch
	if branch == "" {
		branch = db.Config.Core.DefaultBranch
	}

	db.remoteOptionsMu.Lock()
	opts := db.remoteOptions[remoteName]
	db.remoteOptionsMu.Unlock()
	strategy := opts.ConflictResolutionStrategy
	if strategy == "" {
		strategy = jsonpatch.StrategyOursDiff
	}
	combine := opts.CombineDBStrategy
	if combine == "" {
		combine = sync.CombineStrategyCombine
	}

	return &sync.Engine{
		GitDir:    db.GitDir,
		Branch:    branch,
		DBID:      db.Info.DBID,
		Remote:    remote,
		Transport: db.transportFor(remoteName, remote),
		Actor:     db.actor(),
		Registry:  db.Registry,
		MergeResolver: merge.Resolver{
			Strategy:    strategy,
			JSONOptions: opts.JSONMerge,
			Classify:    classifyByExtension(db.Config.Core.Serializer),
		},
		CombineStrategy: combine,
		SyncDirection:   sync.Direction(remote.SyncDirection),
		Events:          db.Events,
	}, nil
}

// SyncOptions configures one Sync call.
type SyncOptions struct {
	Retry sync.RetryConfig
}

// Sync runs one fetch/dispatch/push cycle against remoteName as a task
// on the database's shared queue, so it serializes against concurrent
// CRUD operations the same way a write does.
func (db *Database) Sync(ctx context.Context, remoteName string, opts SyncOptions) (*sync.Result, error) {
	engine, err := db.engineFor(remoteName)
	if err != nil {
		return nil, err
	}
	retry := opts.Retry
	if retry.MaxAttempts == 0 {
		retry.MaxAttempts = 1
	}

	var result *sync.Result
	task := taskqueue.NewTask(taskqueue.LabelSync, func(taskCtx context.Context, hooks taskqueue.Hooks) error {
		var err error
		result, err = sync.RunWithRetry(taskCtx, engine, retry)
		if err != nil {
			return err
		}
		hooks.BeforeResolve()
		return nil
	})
	if err := db.Queue.PushAndWait(task); err != nil {
		return nil, err
	}
	return result, nil
}

// SyncAll runs Sync against every registered remote concurrently, stopping
// the other syncs (via their shared context) as soon as any one fails.
// Results are only populated for remotes that completed before an error
// (if any) cancelled the rest.
func (db *Database) SyncAll(ctx context.Context, opts SyncOptions) (map[string]*sync.Result, error) {
	names := make([]string, 0, len(db.Config.Remotes))
	for name := range db.Config.Remotes {
		names = append(names, name)
	}

	var mu stdsync.Mutex
	results := make(map[string]*sync.Result, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		g.Go(func() error {
			result, err := db.Sync(gctx, name, opts)
			if err != nil {
				return fmt.Errorf("cairn: sync %s: %w", name, err)
			}
			mu.Lock()
			results[name] = result
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// LiveSync is a handle to a running periodic sync loop started by
// StartLiveSync.
type LiveSync struct {
	ticker *sync.Ticker
}

// Pause suspends future periodic runs without stopping the loop.
func (l *LiveSync) Pause() { l.ticker.Pause() }

// Resume un-suspends periodic runs paused by Pause.
func (l *LiveSync) Resume() { l.ticker.Resume() }

// Stop ends the loop, waiting for any in-flight run to finish.
func (l *LiveSync) Stop() { l.ticker.Stop() }

// StartLiveSync begins a periodic Sync loop against remoteName every
// interval (spec §6's "live" remote option), retrying per retry before
// giving up on a single run. onResult, if non-nil, is called after every
// completed (including failed) run.
func (db *Database) StartLiveSync(ctx context.Context, remoteName string, interval time.Duration, retry sync.RetryConfig, onResult func(*sync.Result, error)) (*LiveSync, error) {
	engine, err := db.engineFor(remoteName)
	if err != nil {
		return nil, err
	}
	ticker, err := sync.NewTicker(engine, interval, retry)
	if err != nil {
		return nil, err
	}
	ticker.OnResult = onResult
	ticker.Start(ctx)
	return &LiveSync{ticker: ticker}, nil
}
