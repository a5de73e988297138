package sync

import (
	"context"
	"time"

	"github.com/cairndb/cairn/internal/cairnerr"
)

// RetryConfig bounds how many times RunWithRetry re-attempts a failed
// Engine.Run and how long it waits between attempts (spec §4.J's retry
// loop wrapping the sync engine).
type RetryConfig struct {
	MaxAttempts   int
	RetryInterval time.Duration
}

// RunWithRetry calls e.Run, retrying on error up to cfg.MaxAttempts times
// total (the first attempt counts toward the budget), sleeping
// cfg.RetryInterval between attempts. A canceled ctx ends the loop
// immediately with cairnerr.ErrTaskCancel, regardless of remaining
// budget.
func RunWithRetry(ctx context.Context, e *Engine, cfg RetryConfig) (*Result, error) {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, cairnerr.ErrTaskCancel
		}
		result, err := e.Run(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, cairnerr.ErrTaskCancel
		case <-time.After(cfg.RetryInterval):
		}
	}
	return nil, lastErr
}
