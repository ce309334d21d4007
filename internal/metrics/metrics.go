// Package metrics records health-check run metrics through the
// OpenTelemetry metric API. Wiring an SDK and exporter is the caller's
// concern; with none installed the instruments are no-ops.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hazz-dev/healthgate/internal/healthcheck"
	"github.com/hazz-dev/healthgate/internal/task"
)

// Recorder implements healthcheck.RunObserver.
type Recorder struct {
	runs         metric.Int64Counter
	checkFails   metric.Int64Counter
	runDuration  metric.Float64Histogram
	checkSeconds metric.Float64Histogram
}

// NewRecorder creates the instruments on the given meter.
func NewRecorder(meter metric.Meter) (*Recorder, error) {
	runs, err := meter.Int64Counter(
		"healthcheck.runs.total",
		metric.WithDescription("Total number of health check runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	checkFails, err := meter.Int64Counter(
		"healthcheck.check.failures",
		metric.WithDescription("Total number of individual check failures"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	runDuration, err := meter.Float64Histogram(
		"healthcheck.run.duration_ms",
		metric.WithDescription("Health check run duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	checkSeconds, err := meter.Float64Histogram(
		"healthcheck.check.duration_s",
		metric.WithDescription("Individual check duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Recorder{
		runs:         runs,
		checkFails:   checkFails,
		runDuration:  runDuration,
		checkSeconds: checkSeconds,
	}, nil
}

// ObserveRun records one run attempt and its per-check outcomes.
func (r *Recorder) ObserveRun(ctx context.Context, snap healthcheck.Snapshot, elapsed time.Duration) {
	statusAttr := metric.WithAttributes(attribute.String("status", string(snap.Status)))
	r.runs.Add(ctx, 1, statusAttr)
	r.runDuration.Record(ctx, float64(elapsed.Milliseconds()), statusAttr)

	for _, c := range snap.Checks {
		attrs := metric.WithAttributes(
			attribute.String("check", c.Name),
			attribute.Bool("critical", c.Meta.Critical),
		)
		if c.Result == task.ResultFail {
			r.checkFails.Add(ctx, 1, attrs)
		}
		if c.Duration != nil {
			r.checkSeconds.Record(ctx, *c.Duration, attrs)
		}
	}
}

var _ healthcheck.RunObserver = (*Recorder)(nil)
