package sync

import (
	"context"
	"sync"
	"time"

	"github.com/cairndb/cairn/internal/cairnerr"
)

// Ticker drives a live periodic sync loop (supplemented feature: spec §5
// mentions pause()/resume() as an ordering guarantee in passing without
// detailing the mechanism). Interval must exceed RetryConfig.RetryInterval;
// NewTicker enforces this.
type Ticker struct {
	Engine   *Engine
	Interval time.Duration
	Retry    RetryConfig

	// OnResult, if set, is called after every completed (including
	// failed) run.
	OnResult func(*Result, error)

	mu      sync.Mutex
	paused  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewTicker validates interval/retryInterval and constructs a Ticker
// that is not yet running; call Start to begin.
func NewTicker(e *Engine, interval time.Duration, retry RetryConfig) (*Ticker, error) {
	if interval <= 0 {
		return nil, cairnerr.ErrIntervalTooSmall
	}
	if interval <= retry.RetryInterval {
		return nil, cairnerr.ErrSyncIntervalLessThanOrEqualToRetryInterval
	}
	return &Ticker{Engine: e, Interval: interval, Retry: retry}, nil
}

// Start begins the periodic loop in a background goroutine. Calling
// Start twice without an intervening Stop is a no-op.
func (t *Ticker) Start(ctx context.Context) {
	t.mu.Lock()
	if t.cancel != nil {
		t.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	t.mu.Unlock()

	go t.loop(runCtx)
}

func (t *Ticker) loop(ctx context.Context) {
	defer close(t.done)
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.mu.Lock()
			paused := t.paused
			t.mu.Unlock()
			if paused {
				continue
			}
			result, err := RunWithRetry(ctx, t.Engine, t.Retry)
			if t.OnResult != nil {
				t.OnResult(result, err)
			}
		}
	}
}

// Pause suspends future runs without stopping the underlying ticker, so
// Resume picks back up on the same cadence rather than restarting it.
func (t *Ticker) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paused = true
}

// Resume un-suspends runs paused by Pause.
func (t *Ticker) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paused = false
}

// Stop ends the loop and waits for any in-flight run to return.
func (t *Ticker) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	done := t.done
	t.cancel = nil
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
