// Package events is cairn's typed sync/task callback bus (spec §4.N).
//
// Grounded on modules/zeta/reflog/reflog.go's append-and-notify shape:
// where the teacher appends a reflog Entry and lets callers replay it,
// cairn instead fans a typed event out to subscriber callbacks
// synchronously from the task worker, preserving the causal order of
// the task that emitted it (spec §5).
package events

import "sync"

// Kind names one event channel. Task/sync/search callers subscribe per
// kind; this is the "tagged union with a variant per event name" spec.md's
// Design Notes call for, realized as a Go string enum rather than an
// actual sum type (Go has no native one).
type Kind string

const (
	KindStart        Kind = "start"
	KindComplete     Kind = "complete"
	KindError        Kind = "error"
	KindChange       Kind = "change"
	KindLocalChange  Kind = "localChange"
	KindRemoteChange Kind = "remoteChange"
	KindPause        Kind = "pause"
	KindResume       Kind = "resume"
)

// Handler receives one event payload. The concrete type of payload varies
// by Kind (a *TaskEvent for start/complete/error, a *ChangeSetEvent for
// change/localChange/remoteChange); handlers type-assert as needed.
type Handler func(payload any)

// Bus is a typed, subscribable fan-out point. Zero value is ready to use.
type Bus struct {
	mu       sync.Mutex
	handlers map[Kind][]subscriber
	nextID   uint64
}

type subscriber struct {
	id uint64
	fn Handler
}

// Subscription is an opaque handle returned by Subscribe, passed back to
// Unsubscribe.
type Subscription struct {
	kind Kind
	id   uint64
}

// Subscribe registers fn against kind, returning a handle for Unsubscribe.
func (b *Bus) Subscribe(kind Kind, fn Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers == nil {
		b.handlers = map[Kind][]subscriber{}
	}
	b.nextID++
	id := b.nextID
	b.handlers[kind] = append(b.handlers[kind], subscriber{id: id, fn: fn})
	return Subscription{kind: kind, id: id}
}

// Unsubscribe removes a previously registered handler. A no-op if sub was
// already removed.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.handlers[sub.kind]
	for i, s := range subs {
		if s.id == sub.id {
			b.handlers[sub.kind] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Emit delivers payload to every handler subscribed to kind, synchronously
// and in subscription order, matching spec §5's ordering guarantee that
// events are delivered from the worker goroutine in the causal order of
// the task that emitted them.
func (b *Bus) Emit(kind Kind, payload any) {
	b.mu.Lock()
	subs := make([]subscriber, len(b.handlers[kind]))
	copy(subs, b.handlers[kind])
	b.mu.Unlock()
	for _, s := range subs {
		s.fn(payload)
	}
}

// TaskEvent is the payload for start/complete/error.
type TaskEvent struct {
	TaskID string
	Label  string
	Err    error // nil for start/complete
}

// ChangedFileOp classifies one document mutation within a change set,
// mirroring spec.md §6's ChangedFile tagged union.
type ChangedFileOp string

const (
	OpInsert ChangedFileOp = "insert"
	OpUpdate ChangedFileOp = "update"
	OpDelete ChangedFileOp = "delete"
)

// ChangedFile describes one document's before/after state within a change
// set, sent to MN/J consumers (search hook, sync result caller).
type ChangedFile struct {
	Op  ChangedFileOp
	Old any // *FatDoc, nil on insert
	New any // *FatDoc, nil on delete
}

// ChangeSetEvent is the payload for change/localChange/remoteChange.
type ChangeSetEvent struct {
	CollectionPath string
	Changes        []ChangedFile
}
