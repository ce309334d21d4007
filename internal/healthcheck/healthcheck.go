// Package healthcheck orchestrates registered checks: it runs them on
// demand and on a schedule, aggregates their results into a single
// green/yellow/red/gray status, and publishes every change on a
// current-value stream. Startup is gated on the first passing run.
package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/hazz-dev/healthgate/internal/retry"
	"github.com/hazz-dev/healthgate/internal/scheduler"
	"github.com/hazz-dev/healthgate/internal/task"
)

// ErrCriticalCheckFailed is wrapped into the error returned by Run when a
// critical check is failing after retries are exhausted.
var ErrCriticalCheckFailed = errors.New("critical checks failed")

// defaultScheduleInterval is used when Options.ScheduleInterval is unset.
const defaultScheduleInterval = 15 * time.Minute

// RunRecorder receives every successfully published snapshot, typically to
// persist run history. Errors are logged, not propagated.
type RunRecorder interface {
	RecordRun(ctx context.Context, snap Snapshot) error
}

// RunObserver is notified after each run attempt, typically to record
// metrics.
type RunObserver interface {
	ObserveRun(ctx context.Context, snap Snapshot, elapsed time.Duration)
}

// Options configures the orchestrator.
type Options struct {
	// ScheduleInterval is the period of background re-checks. Zero or
	// negative falls back to a 15 minute default.
	ScheduleInterval time.Duration
	// RetryDelay is the fixed wait between retry attempts of a run.
	RetryDelay time.Duration
	// MaxRetries is the total attempts (including the first) for a run.
	MaxRetries int
	// ChecksEnabled restricts which registered task names are eligible for
	// scheduled and full runs. Empty means all names are eligible.
	ChecksEnabled []*regexp.Regexp
	Logger        *slog.Logger
	// Recorder and Observer are optional sinks for run history and metrics.
	Recorder RunRecorder
	Observer RunObserver
	// OnTransition is invoked when a publish changes the overall status.
	OnTransition func(prev, next Snapshot)
}

// HealthCheck owns the task registry and the status stream.
type HealthCheck struct {
	registry *task.Registry
	stream   *Stream
	opts     Options
	logger   *slog.Logger

	// publishMu serializes aggregate-and-publish so overlapping runs
	// cannot lose updates in the merge step.
	publishMu sync.Mutex

	scheduled *scheduler.IntervalTask
	stopOnce  sync.Once
}

// New constructs an orchestrator over the given registry.
func New(registry *task.Registry, opts Options) *HealthCheck {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthCheck{
		registry: registry,
		stream:   NewStream(Snapshot{Status: StatusGray, Checks: []task.Info{}}),
		opts:     opts,
		logger:   logger,
	}
}

// Registry exposes the underlying task registry for registration.
func (h *HealthCheck) Registry() *task.Registry {
	return h.registry
}

// Status returns the currently published snapshot.
func (h *HealthCheck) Status() Snapshot {
	return h.stream.Get()
}

// Subscribe registers a status stream subscriber.
func (h *HealthCheck) Subscribe() (<-chan Snapshot, func()) {
	return h.stream.Subscribe()
}

// eligibleNames returns the names that participate in full and scheduled
// runs: enabled tasks whose name matches the configured patterns.
func (h *HealthCheck) eligibleNames() []string {
	var names []string
	for _, t := range h.registry.All() {
		if !t.Meta().Enabled {
			continue
		}
		if !h.nameEnabled(t.Name()) {
			continue
		}
		names = append(names, t.Name())
	}
	return names
}

func (h *HealthCheck) nameEnabled(name string) bool {
	if len(h.opts.ChecksEnabled) == 0 {
		return true
	}
	for _, re := range h.opts.ChecksEnabled {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// Fetch returns the current snapshots of the named tasks (or all tasks)
// without executing anything, and publishes the recomputed state so the
// stream reflects what was read.
func (h *HealthCheck) Fetch(names ...string) (Snapshot, error) {
	infos, err := h.registry.Infos(names...)
	if err != nil {
		return Snapshot{}, err
	}

	h.publishMu.Lock()
	defer h.publishMu.Unlock()

	subset := newSnapshot(infos)
	if len(names) == 0 {
		h.stream.Publish(h.transition(subset))
		return subset, nil
	}

	merged := newSnapshot(mergeChecks(h.stream.Get().Checks, infos))
	h.stream.Publish(h.transition(merged))
	return subset, nil
}

// Run executes the named tasks (or all eligible tasks when no names are
// given), retrying per the configured policy while critical checks fail.
// On success the full merged state is published to the stream and only the
// requested subset's fresh results are returned. After exhausting retries
// the last error propagates. An unknown task name returns an
// UnknownTaskError immediately, without retrying.
func (h *HealthCheck) Run(ctx context.Context, names ...string) (Snapshot, error) {
	// An unknown name is a caller error, not a transient failure; reject it
	// before the retry loop runs anything.
	if len(names) > 0 {
		if _, err := h.registry.Infos(names...); err != nil {
			return Snapshot{}, err
		}
	}

	var subset Snapshot
	err := retry.Do(ctx, retry.Config{
		MaxAttempts: h.opts.MaxRetries,
		Delay:       h.opts.RetryDelay,
		OnRetry: func(attempt int, err error) {
			h.logger.Warn("health check run failed, retrying",
				"attempt", attempt, "error", err)
		},
	}, func(ctx context.Context) error {
		var err error
		subset, err = h.runOnce(ctx, names)
		return err
	})
	if err != nil {
		return Snapshot{}, err
	}
	return subset, nil
}

// runOnce performs a single run attempt: execute, aggregate, and publish
// unless a critical check failed.
func (h *HealthCheck) runOnce(ctx context.Context, names []string) (Snapshot, error) {
	start := time.Now()

	targets := names
	if len(targets) == 0 {
		if h.registry.Len() == 0 {
			// Vacuously healthy.
			h.logger.Debug("no checks registered, skipping")
			snap := Snapshot{Status: StatusGreen, Checks: []task.Info{}}
			h.publish(ctx, snap)
			return snap, nil
		}
		targets = h.eligibleNames()
		if len(targets) == 0 {
			// Everything is disabled or filtered out: publish the current
			// snapshots (gray until something runs) without executing.
			h.logger.Debug("no checks eligible to run, skipping")
			infos, err := h.registry.Infos()
			if err != nil {
				return Snapshot{}, err
			}
			snap := newSnapshot(infos)
			if snap.Status == StatusGray {
				// An empty run set is vacuously healthy.
				snap.Status = StatusGreen
			}
			h.publish(ctx, snap)
			return snap, nil
		}
	}

	results, err := h.registry.Run(ctx, targets)
	if err != nil {
		return Snapshot{}, err
	}

	subset := newSnapshot(results)
	if observer := h.opts.Observer; observer != nil {
		observer.ObserveRun(ctx, subset, time.Since(start))
	}

	failedCritical := 0
	for _, c := range results {
		if c.Status == task.StatusFinished && c.Result == task.ResultFail && c.Meta.Critical {
			failedCritical++
		}
	}
	if failedCritical > 0 {
		return Snapshot{}, fmt.Errorf("%w: [%d/%d]", ErrCriticalCheckFailed, failedCritical, len(results))
	}

	h.publishMu.Lock()
	merged := newSnapshot(mergeChecks(h.stream.Get().Checks, results))
	h.stream.Publish(h.transition(merged))
	h.publishMu.Unlock()

	h.record(ctx, merged)
	h.logger.Debug("health check run published",
		"status", merged.Status, "checks", len(merged.Checks))
	return subset, nil
}

// publish replaces the stream state with snap under the publish lock.
func (h *HealthCheck) publish(ctx context.Context, snap Snapshot) {
	h.publishMu.Lock()
	h.stream.Publish(h.transition(snap))
	h.publishMu.Unlock()
	h.record(ctx, snap)
}

// transition fires the status-change hook. Caller holds publishMu.
func (h *HealthCheck) transition(next Snapshot) Snapshot {
	prev := h.stream.Get()
	if h.opts.OnTransition != nil && prev.Status != next.Status {
		h.opts.OnTransition(prev, next)
	}
	return next
}

func (h *HealthCheck) record(ctx context.Context, snap Snapshot) {
	if h.opts.Recorder == nil {
		return
	}
	if err := h.opts.Recorder.RecordRun(ctx, snap); err != nil {
		h.logger.Error("recording run history", "error", err)
	}
}

// Start blocks until an initial run passes (green or yellow), then begins
// the scheduled background re-check loop. Failed initial runs are logged
// and retried until the context is cancelled.
func (h *HealthCheck) Start(ctx context.Context) error {
	h.logger.Debug("waiting until all checks are ok")
	if err := h.runInitialCheck(ctx); err != nil {
		return err
	}
	h.logger.Info("checks are ok")

	interval := h.opts.ScheduleInterval
	if interval <= 0 {
		interval = defaultScheduleInterval
	}
	h.scheduled = scheduler.NewIntervalTask(interval, func(ctx context.Context) {
		h.logger.Debug("running scheduled check")
		if _, err := h.Run(ctx); err != nil {
			h.logger.Error("scheduled check failed", "error", err)
		}
	})
	h.scheduled.Start(ctx)
	h.logger.Info("scheduled checks started", "interval", interval)
	return nil
}

func (h *HealthCheck) runInitialCheck(ctx context.Context) error {
	for {
		_, err := h.Run(ctx)
		if err == nil && h.Status().OK() {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		h.logger.Error("initial health check failed, waiting to retry", "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(h.opts.RetryDelay):
		}
	}
}

// Stop cancels the scheduled loop and closes the status stream. Idempotent.
func (h *HealthCheck) Stop() {
	h.stopOnce.Do(func() {
		if h.scheduled != nil {
			h.scheduled.Stop()
		}
		h.stream.Close()
		h.logger.Debug("health check stopped")
	})
}
