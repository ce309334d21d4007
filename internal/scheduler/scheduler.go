// Package scheduler provides a minimal recurring interval task.
package scheduler

import (
	"context"
	"sync"
	"time"
)

// IntervalTask invokes a callback every interval until stopped. Ticks that
// fire while the callback is still running are dropped, so runs never
// overlap.
type IntervalTask struct {
	interval time.Duration
	fn       func(context.Context)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewIntervalTask creates an IntervalTask. The interval must be positive.
// It does not start the timer.
func NewIntervalTask(interval time.Duration, fn func(context.Context)) *IntervalTask {
	return &IntervalTask{interval: interval, fn: fn}
}

// Start begins the repeating timer. Calling Start on a running task is a
// no-op.
func (t *IntervalTask) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})

	go t.loop(ctx, t.done)
}

func (t *IntervalTask) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		t.fn(ctx)

		// Drop a tick that fired while the callback was running.
		select {
		case <-ticker.C:
		default:
		}
	}
}

// Stop cancels the timer and waits for an in-flight callback to return.
// Safe to call when not started or more than once.
func (t *IntervalTask) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel = nil
	t.done = nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
