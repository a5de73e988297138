package taskqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cairndb/cairn/internal/cairnerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOOrdering(t *testing.T) {
	q := New(0)
	defer q.Stop()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		task := NewTask(LabelPut, func(ctx context.Context, hooks Hooks) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			hooks.BeforeResolve()
			wg.Done()
			return nil
		})
		require.NoError(t, q.Push(task))
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		assert.Equal(t, i, order[i])
	}
}

func TestStatisticsCountCompletedTasks(t *testing.T) {
	q := New(0)
	defer q.Stop()

	for i := 0; i < 3; i++ {
		task := NewTask(LabelPut, func(ctx context.Context, hooks Hooks) error {
			hooks.BeforeResolve()
			return nil
		})
		require.NoError(t, q.PushAndWait(task))
	}
	stats := q.CurrentStatistics()
	assert.Equal(t, int64(3), stats.Put)
}

func TestStopCancelsQueuedTasks(t *testing.T) {
	q := New(0)

	blocker := make(chan struct{})
	running := NewTask(LabelPut, func(ctx context.Context, hooks Hooks) error {
		<-blocker
		hooks.BeforeResolve()
		return nil
	})
	require.NoError(t, q.Push(running))

	// Give the worker a moment to pick up the running task before queuing
	// the one we expect to be canceled.
	time.Sleep(10 * time.Millisecond)

	queued := NewTask(LabelPut, func(ctx context.Context, hooks Hooks) error {
		hooks.BeforeResolve()
		return nil
	})
	require.NoError(t, q.Push(queued))

	close(blocker)
	q.Stop()

	err := <-queued.Done()
	assert.ErrorIs(t, err, cairnerr.ErrTaskCancel)
	assert.Equal(t, int64(1), q.CurrentStatistics().Cancel)
}

func TestFailureModePropagatesErrorAndContinues(t *testing.T) {
	q := New(0)
	defer q.Stop()

	failing := NewTask(LabelPut, func(ctx context.Context, hooks Hooks) error {
		hooks.BeforeReject()
		return assert.AnError
	})
	require.Error(t, q.PushAndWait(failing))

	following := NewTask(LabelPut, func(ctx context.Context, hooks Hooks) error {
		hooks.BeforeResolve()
		return nil
	})
	require.NoError(t, q.PushAndWait(following))
}
