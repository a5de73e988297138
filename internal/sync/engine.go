// Package sync implements the sync engine (spec §4.J) and the remote
// engine adapter it delegates fetch/push to (spec §4.K, in the sibling
// transport package): fetch, compare HEAD against the remote-tracking
// ref, and either fast-forward, push, three-way merge, or combine two
// unrelated histories.
//
// Grounded on the teacher's pkg/zeta/fetch.go, push.go, and
// worktree_pull.go for the state-machine shape (fetch, then dispatch on
// ahead/behind distance), reimplemented against internal/gitwire's git-
// binary plumbing and internal/merge's three-way driver instead of
// zeta's own object-graph walker.
package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cairndb/cairn/internal/cairnerr"
	"github.com/cairndb/cairn/internal/dbconfig"
	"github.com/cairndb/cairn/internal/events"
	"github.com/cairndb/cairn/internal/gitwire"
	"github.com/cairndb/cairn/internal/merge"
	"github.com/cairndb/cairn/internal/odb"
	"github.com/cairndb/cairn/internal/serializer"
	"github.com/cairndb/cairn/internal/sync/transport"
)

// Direction is spec §6's syncDirection remote option: which way a sync
// run is allowed to move documents.
type Direction string

const (
	DirectionPull Direction = "pull"
	DirectionPush Direction = "push"
	DirectionBoth Direction = "both"
)

// effective treats the zero value as DirectionBoth, the default spec §6
// describes for an unconfigured remote.
func (d Direction) effective() Direction {
	if d == "" {
		return DirectionBoth
	}
	return d
}

// Action classifies what a sync run ended up doing.
type Action string

const (
	ActionNop             Action = "nop"
	ActionFastForward     Action = "fast-forward"
	ActionPush            Action = "push"
	ActionMerge           Action = "merge"
	ActionMergeAndPush    Action = "merge-and-push"
	ActionCombineDatabase Action = "combine database"
)

// CombineStrategy selects how Run reacts when fetch and HEAD share no
// merge base at all (spec §4.J's "no merge base found" branch).
type CombineStrategy string

const (
	CombineStrategyCombine CombineStrategy = "combine"
	CombineStrategyThrow   CombineStrategy = "throw"
)

// Result is the outcome of one Run.
type Result struct {
	Action     Action
	CommitOID  string
	Changes    []events.ChangedFile
	Conflicts  []merge.AcceptedConflict
	Duplicates []DuplicatedFile
}

// Engine drives one database's sync task against one remote.
type Engine struct {
	GitDir          string
	Branch          string
	DBID            string
	Remote          dbconfig.Remote
	Transport       transport.Remote
	Actor           odb.Actor
	Registry        *serializer.Registry
	MergeResolver   merge.Resolver
	CombineStrategy CombineStrategy
	SyncDirection   Direction
	Events          *events.Bus
}

func (e *Engine) remoteTrackingRef() string {
	return fmt.Sprintf("refs/remotes/%s/%s", e.Remote.Name, e.Branch)
}

func (e *Engine) localRef() string {
	return "refs/heads/" + e.Branch
}

// Run executes the full fetch -> resolve -> dispatch sequence once.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	return e.run(ctx, true)
}

// run is Run with allowRecovery controlling whether a push rejected for
// unfetched remote commits may trigger one sync-then-retry cycle (spec
// §7: "UnfetchedCommitExists during push triggers automatic sync-then-
// retry when syncDirection=both"). The recovery call passes false so a
// second rejection in a row propagates instead of looping forever.
func (e *Engine) run(ctx context.Context, allowRecovery bool) (*Result, error) {
	if e.Remote.URL == "" {
		return nil, cairnerr.ErrUndefinedRemoteURL
	}

	refspec := fmt.Sprintf("%s:%s", e.localRef(), e.remoteTrackingRef())
	if err := e.Transport.Fetch(ctx, e.GitDir, e.Remote.URL, refspec); err != nil {
		return nil, fmt.Errorf("%w: %v", cairnerr.ErrSyncWorkerFetch, err)
	}

	headOID, err := gitwire.RevParse(ctx, e.GitDir, e.localRef())
	if err != nil {
		return nil, err
	}
	remoteOID, err := gitwire.RevParse(ctx, e.GitDir, e.remoteTrackingRef())
	if err != nil {
		return nil, err
	}

	if headOID == "" && remoteOID == "" {
		return &Result{Action: ActionNop}, nil
	}

	var base string
	if headOID != "" && remoteOID != "" {
		base, err = gitwire.MergeBase(ctx, e.GitDir, headOID, remoteOID)
		if err != nil {
			return nil, err
		}
		if base == "" {
			return e.combine(ctx)
		}
	}

	ahead := headOID != "" && headOID != base
	behind := remoteOID != "" && remoteOID != base
	direction := e.SyncDirection.effective()

	switch {
	case !ahead && !behind:
		return &Result{Action: ActionNop}, nil
	case behind && !ahead:
		if direction == DirectionPush {
			return &Result{Action: ActionNop}, nil
		}
		return e.fastForward(ctx, headOID, remoteOID)
	case ahead && !behind:
		if direction == DirectionPull {
			return &Result{Action: ActionNop}, nil
		}
		return e.push(ctx, headOID, remoteOID, allowRecovery)
	default:
		if direction == DirectionPull {
			return e.mergeOnly(ctx, base, headOID, remoteOID)
		}
		return e.mergeAndPush(ctx, base, headOID, remoteOID, allowRecovery)
	}
}

func (e *Engine) fastForward(ctx context.Context, headOID, remoteOID string) (*Result, error) {
	oldTree := ""
	if headOID != "" {
		var err error
		oldTree, err = gitwire.CommitTreeOID(ctx, e.GitDir, headOID)
		if err != nil {
			return nil, err
		}
	}
	newTree, err := gitwire.CommitTreeOID(ctx, e.GitDir, remoteOID)
	if err != nil {
		return nil, err
	}

	if err := advanceRef(ctx, e.GitDir, e.localRef(), remoteOID, headOID); err != nil {
		return nil, err
	}

	changes, err := DeriveChangeSet(ctx, e.GitDir, oldTree, newTree, e.Registry)
	if err != nil {
		return nil, err
	}
	if e.Events != nil && len(changes) > 0 {
		e.Events.Emit(events.KindLocalChange, events.ChangeSetEvent{Changes: changes})
	}
	return &Result{Action: ActionFastForward, CommitOID: remoteOID, Changes: changes}, nil
}

func (e *Engine) push(ctx context.Context, headOID, remoteOID string, allowRecovery bool) (*Result, error) {
	refspec := fmt.Sprintf("%s:%s", e.localRef(), e.localRef())
	if err := e.Transport.Push(ctx, e.GitDir, e.Remote.URL, refspec, false); err != nil {
		pushErr := classifyPushError(err)
		if e.shouldRecoverFromUnfetched(pushErr, allowRecovery) {
			return e.run(ctx, false)
		}
		return nil, finalizePushError(pushErr)
	}

	oldTree := ""
	if remoteOID != "" {
		var err error
		oldTree, err = gitwire.CommitTreeOID(ctx, e.GitDir, remoteOID)
		if err != nil {
			return nil, err
		}
	}
	newTree, err := gitwire.CommitTreeOID(ctx, e.GitDir, headOID)
	if err != nil {
		return nil, err
	}
	if err := advanceRef(ctx, e.GitDir, e.remoteTrackingRef(), headOID, remoteOID); err != nil {
		return nil, err
	}

	changes, err := DeriveChangeSet(ctx, e.GitDir, oldTree, newTree, e.Registry)
	if err != nil {
		return nil, err
	}
	if e.Events != nil && len(changes) > 0 {
		e.Events.Emit(events.KindRemoteChange, events.ChangeSetEvent{Changes: changes})
	}
	return &Result{Action: ActionPush, CommitOID: headOID, Changes: changes}, nil
}

// mergeThreeWay runs the base/ours/theirs tree merge and creates the
// local merge commit shared by mergeAndPush and mergeOnly, returning the
// commit and the conflicts the strategy resolved.
func (e *Engine) mergeThreeWay(ctx context.Context, base, headOID, remoteOID string) (commitOID string, mergedTree string, conflicts []merge.AcceptedConflict, err error) {
	baseTree, err := treeOf(ctx, e.GitDir, base)
	if err != nil {
		return "", "", nil, err
	}
	headTree, err := treeOf(ctx, e.GitDir, headOID)
	if err != nil {
		return "", "", nil, err
	}
	remoteTree, err := treeOf(ctx, e.GitDir, remoteOID)
	if err != nil {
		return "", "", nil, err
	}

	mergedTree, conflicts, err = merge.Merge(ctx, e.GitDir, baseTree, headTree, remoteTree, e.MergeResolver)
	if err != nil {
		return "", "", nil, fmt.Errorf("%w: %v", cairnerr.ErrThreeWayMerge, err)
	}

	message := "merge"
	if len(conflicts) > 0 {
		message = fmt.Sprintf("merge (%d conflict(s) resolved)", len(conflicts))
	}
	sig := gitwire.Signature{Name: e.Actor.Name, Email: e.Actor.Email}
	commitOID, err = gitwire.CommitTree(ctx, e.GitDir, mergedTree, []string{headOID, remoteOID}, sig, sig, message)
	if err != nil {
		return "", "", nil, fmt.Errorf("sync: merge commit: %w", err)
	}
	if err := advanceRef(ctx, e.GitDir, e.localRef(), commitOID, headOID); err != nil {
		return "", "", nil, err
	}
	return commitOID, mergedTree, conflicts, nil
}

func (e *Engine) mergeAndPush(ctx context.Context, base, headOID, remoteOID string, allowRecovery bool) (*Result, error) {
	commitOID, mergedTree, conflicts, err := e.mergeThreeWay(ctx, base, headOID, remoteOID)
	if err != nil {
		return nil, err
	}
	headTree, err := treeOf(ctx, e.GitDir, headOID)
	if err != nil {
		return nil, err
	}

	refspec := fmt.Sprintf("%s:%s", e.localRef(), e.localRef())
	if err := e.Transport.Push(ctx, e.GitDir, e.Remote.URL, refspec, false); err != nil {
		pushErr := classifyPushError(err)
		if e.shouldRecoverFromUnfetched(pushErr, allowRecovery) {
			return e.run(ctx, false)
		}
		return nil, finalizePushError(pushErr)
	}
	if err := advanceRef(ctx, e.GitDir, e.remoteTrackingRef(), commitOID, remoteOID); err != nil {
		return nil, err
	}

	changes, err := DeriveChangeSet(ctx, e.GitDir, headTree, mergedTree, e.Registry)
	if err != nil {
		return nil, err
	}
	if e.Events != nil && len(changes) > 0 {
		e.Events.Emit(events.KindLocalChange, events.ChangeSetEvent{Changes: changes})
	}
	return &Result{Action: ActionMergeAndPush, CommitOID: commitOID, Changes: changes, Conflicts: conflicts}, nil
}

// mergeOnly performs the same local three-way merge commit as
// mergeAndPush but never pushes, for a remote configured with
// syncDirection=pull (spec §6): the merge result stays local until a
// separate push-direction sync (or a both-direction one) sends it.
func (e *Engine) mergeOnly(ctx context.Context, base, headOID, remoteOID string) (*Result, error) {
	commitOID, mergedTree, conflicts, err := e.mergeThreeWay(ctx, base, headOID, remoteOID)
	if err != nil {
		return nil, err
	}
	headTree, err := treeOf(ctx, e.GitDir, headOID)
	if err != nil {
		return nil, err
	}

	changes, err := DeriveChangeSet(ctx, e.GitDir, headTree, mergedTree, e.Registry)
	if err != nil {
		return nil, err
	}
	if e.Events != nil && len(changes) > 0 {
		e.Events.Emit(events.KindLocalChange, events.ChangeSetEvent{Changes: changes})
	}
	return &Result{Action: ActionMerge, CommitOID: commitOID, Changes: changes, Conflicts: conflicts}, nil
}

// shouldRecoverFromUnfetched reports whether a rejected push should
// trigger one sync-then-retry cycle: only when recovery hasn't already
// been attempted this Run, the remote is configured syncDirection=both,
// and the rejection was specifically due to unfetched remote commits
// (spec §7).
func (e *Engine) shouldRecoverFromUnfetched(pushErr error, allowRecovery bool) bool {
	return allowRecovery &&
		e.SyncDirection.effective() == DirectionBoth &&
		errors.Is(pushErr, cairnerr.ErrUnfetchedCommitExists)
}

// finalizePushError upgrades a rejection classified as ErrUnfetchedCommitExists
// into the terminal ErrCannotPushBecauseUnfetchedCommitExists once the one
// sync-then-retry cycle shouldRecoverFromUnfetched allows has already run
// (or was never applicable) and the rejection persists.
func finalizePushError(pushErr error) error {
	if errors.Is(pushErr, cairnerr.ErrUnfetchedCommitExists) {
		return fmt.Errorf("%w: %v", cairnerr.ErrCannotPushBecauseUnfetchedCommitExists, pushErr)
	}
	return pushErr
}

func (e *Engine) combine(ctx context.Context) (*Result, error) {
	if e.CombineStrategy == CombineStrategyThrow {
		return nil, cairnerr.ErrNoMergeBaseFound
	}
	result, err := Combine(ctx, e.GitDir, e.DBID, e.Branch, e.Remote.URL, e.Transport, e.Actor, e.Registry)
	if err != nil {
		return nil, err
	}
	if e.Events != nil {
		e.Events.Emit(events.KindLocalChange, events.ChangeSetEvent{})
	}
	return &Result{Action: ActionCombineDatabase, CommitOID: result.CommitOID, Duplicates: result.Duplicates}, nil
}

func treeOf(ctx context.Context, gitDir, commitOID string) (string, error) {
	if commitOID == "" {
		return "", nil
	}
	return gitwire.CommitTreeOID(ctx, gitDir, commitOID)
}

func advanceRef(ctx context.Context, gitDir, ref, newOID, oldOID string) error {
	updater, err := gitwire.NewRefUpdater(ctx, gitDir)
	if err != nil {
		return err
	}
	defer updater.Close()
	if err := updater.Start(); err != nil {
		return err
	}
	if oldOID == "" {
		if err := updater.Create(ref, newOID); err != nil {
			return err
		}
	} else if err := updater.Update(ref, newOID, oldOID); err != nil {
		return err
	}
	return updater.Commit()
}

// unfetchedRejectionMarkers are the substrings git's own push rejection
// message uses for a non-fast-forward update -- the remote has commits
// this repository never fetched -- across the wording real git and
// common hosting providers use.
var unfetchedRejectionMarkers = []string{
	"non-fast-forward",
	"fetch first",
	"stale info",
	"[rejected]",
}

func classifyPushError(err error) error {
	msg := strings.ToLower(err.Error())
	for _, marker := range unfetchedRejectionMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %v", cairnerr.ErrUnfetchedCommitExists, err)
		}
	}
	switch {
	case strings.Contains(msg, "authentication") || strings.Contains(msg, "401"):
		return fmt.Errorf("%w: %v", cairnerr.ErrPushAuthenticationError, err)
	case strings.Contains(msg, "permission") || strings.Contains(msg, "403"):
		return fmt.Errorf("%w: %v", cairnerr.ErrPushPermissionDenied, err)
	}
	return fmt.Errorf("sync: push: %w", err)
}
