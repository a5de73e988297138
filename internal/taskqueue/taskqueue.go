// Package taskqueue is cairn's single-writer task serializer (spec §4.F):
// every repository-mutating operation (put/insert/update/delete/sync/push)
// is submitted as a Task and executed strictly FIFO by one worker
// goroutine, giving the rest of cairn the invariant that the working
// directory, the index, and HEAD's tree are identical after every
// completed task (spec §3's Invariants).
//
// There is no teacher analogue for an ordered, cancelable, statistics-
// tracked work queue (the teacher drives everything from one CLI
// invocation per process); this package is built in the teacher's own
// channel+goroutine+context idiom (seen throughout pkg/zeta and
// modules/command) applied to a new domain component, using
// golang.org/x/sync/errgroup-style cancellation propagation and
// mutex-guarded statistics counters.
package taskqueue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cairndb/cairn/internal/cairnerr"
	"github.com/oklog/ulid/v2"
)

// Label classifies a task for statistics and ordering diagnostics.
type Label string

const (
	LabelPut    Label = "put"
	LabelInsert Label = "insert"
	LabelUpdate Label = "update"
	LabelDelete Label = "delete"
	LabelPush   Label = "push"
	LabelSync   Label = "sync"
	LabelCancel Label = "cancel"
)

// Hooks are invoked by the worker around a task's func, letting statistics
// update atomically with task completion (spec §4.F: "the hooks update
// queue statistics atomically with task completion").
type Hooks struct {
	BeforeResolve func()
	BeforeReject  func()
}

// Func is the body of a task. It receives a context that the task's own
// Cancel cancels, and the Hooks to call immediately before
// returning nil (resolve) or an error (reject).
type Func func(ctx context.Context, hooks Hooks) error

// Task is one unit of serialized work.
type Task struct {
	Label          Label
	TaskID         string
	CollectionPath string
	ShortID        string
	ShortName      string
	Func           Func
	// EnqueueCallback, if set, is invoked synchronously from push() with
	// the task's metadata, before the task has run.
	EnqueueCallback func(t *Task)

	cancel context.CancelFunc
	done   chan error
}

// NewTaskID returns a monotonic ULID suitable for Task.TaskID (spec §5:
// "taskIds and dbIds are monotonic ULIDs").
func NewTaskID() string {
	return ulid.Make().String()
}

// NewTask constructs a task ready to Push, with a freshly generated TaskID.
func NewTask(label Label, fn Func) *Task {
	return &Task{Label: label, TaskID: NewTaskID(), Func: fn}
}

// Done returns a channel that receives the task's terminal error (nil on
// success) exactly once. Callers await this after Push to block for the
// task's result; it is closed after sending.
func (t *Task) Done() <-chan error {
	return t.done
}

// Cancel cancels the context passed to t's Func while t is running; the
// running Func is not preempted and decides itself whether to stop early.
// Calling Cancel before the worker has started t does not keep t from
// running; queued tasks are rejected by Stop instead (see drain).
func (t *Task) Cancel() {
	if t.cancel != nil {
		t.cancel()
	}
}

// Queue is the single-writer FIFO serializer. Zero value is not usable;
// construct with New.
type Queue struct {
	tasks  chan *Task
	quit   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	stats  map[Label]int64
	closed atomic.Bool
}

// New starts the worker goroutine and returns a ready Queue. capacity
// bounds how many tasks may be enqueued ahead of the worker; 0 (or a
// negative value) selects a capacity of 1024. Push blocks while the queue
// is full.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	q := &Queue{
		tasks: make(chan *Task, capacity),
		quit:  make(chan struct{}),
		stats: map[Label]int64{},
	}
	q.wg.Add(1)
	go q.run()
	return q
}

// Push appends t to the queue, invoking t.EnqueueCallback synchronously
// before returning. Returns cairnerr.ErrDatabaseClosing if the queue has
// been stopped.
func (q *Queue) Push(t *Task) error {
	if q.closed.Load() {
		return cairnerr.ErrDatabaseClosing
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan error, 1)
	_ = ctx
	if t.EnqueueCallback != nil {
		t.EnqueueCallback(t)
	}
	select {
	case q.tasks <- t:
		return nil
	case <-q.quit:
		return cairnerr.ErrDatabaseClosing
	}
}

// PushAndWait enqueues t and blocks for its result.
func (q *Queue) PushAndWait(t *Task) error {
	if err := q.Push(t); err != nil {
		return err
	}
	return <-t.Done()
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		// Check quit first, so a task still queued when Stop is called is
		// drained rather than started.
		select {
		case <-q.quit:
			q.drain()
			return
		default:
		}
		select {
		case t, ok := <-q.tasks:
			if !ok {
				return
			}
			q.runOne(t)
		case <-q.quit:
			q.drain()
			return
		}
	}
}

func (q *Queue) runOne(t *Task) {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	defer cancel()

	var resolveErr error
	hooks := Hooks{
		BeforeResolve: func() { q.bump(t.Label) },
		BeforeReject:  func() { q.bump(LabelCancel) },
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				// A panic in the worker is fatal per spec §4.F; re-panic
				// after releasing the waiting caller so it doesn't hang
				// forever on a task that will never resolve.
				resolveErr = fmt.Errorf("taskqueue: task %s panicked: %v", t.TaskID, r)
				t.done <- resolveErr
				close(t.done)
				panic(r)
			}
		}()
		resolveErr = t.Func(ctx, hooks)
	}()

	t.done <- resolveErr
	close(t.done)
}

func (q *Queue) bump(l Label) {
	q.mu.Lock()
	q.stats[l]++
	q.mu.Unlock()
}

// drain cancels every task still sitting in q.tasks (enqueued but never
// started) and counts each as a cancellation, per spec §4.F/§8's
// "stop() increments the cancel counter by exactly the number of
// queued-but-not-started tasks".
func (q *Queue) drain() {
	for {
		select {
		case t := <-q.tasks:
			t.Cancel()
			t.done <- cairnerr.ErrTaskCancel
			close(t.done)
			q.bump(LabelCancel)
		default:
			return
		}
	}
}

// Stop drains the queue: every remaining (not-yet-started) task has its
// Cancel invoked and its waiter rejected with cairnerr.ErrTaskCancel. The
// currently running task, if any, is allowed to finish (spec §5's
// close(force) semantics). Statistics are left intact, so Stop raises the
// Cancel count by exactly the number of tasks it drained (spec §8:
// "stop() increments the cancel counter by exactly the number of
// queued-but-not-started tasks").
func (q *Queue) Stop() {
	if q.closed.Swap(true) {
		return
	}
	close(q.quit)
	q.wg.Wait()
}

// Statistics is the mapping spec §4.F's currentStatistics() returns:
// label -> count of tasks that called BeforeResolve, by label. Cancel
// counts tasks drained by Stop plus tasks that called BeforeReject.
type Statistics struct {
	Put    int64
	Insert int64
	Update int64
	Delete int64
	Push   int64
	Sync   int64
	Cancel int64
}

// CurrentStatistics returns a snapshot of completed-task counts by label.
func (q *Queue) CurrentStatistics() Statistics {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Statistics{
		Put:    q.stats[LabelPut],
		Insert: q.stats[LabelInsert],
		Update: q.stats[LabelUpdate],
		Delete: q.stats[LabelDelete],
		Push:   q.stats[LabelPush],
		Sync:   q.stats[LabelSync],
		Cancel: q.stats[LabelCancel],
	}
}
