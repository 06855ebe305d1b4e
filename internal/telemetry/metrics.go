package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// SchedulerMetricsMeterName is the name used for the scheduler metrics meter
	SchedulerMetricsMeterName = "github.com/pigeonpool/pigeonpool-sync-server/scheduler"

	// ReconcileMetricsMeterName is the name used for the reconciliation metrics meter
	ReconcileMetricsMeterName = "github.com/pigeonpool/pigeonpool-sync-server/reconcile"
)

// SchedulerMetrics holds the OpenTelemetry instruments for job scheduling.
type SchedulerMetrics struct {
	runDuration    metric.Float64Histogram
	lockContention metric.Int64Counter
	gateSkips      metric.Int64Counter
}

// NewSchedulerMetrics creates a new SchedulerMetrics instance with the given
// meter provider. If provider is nil, it returns nil (no-op metrics).
func NewSchedulerMetrics(provider metric.MeterProvider) (*SchedulerMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SchedulerMetricsMeterName)

	runDuration, err := meter.Float64Histogram(
		"pp_sync_job_duration_seconds",
		metric.WithDescription("Duration of scheduled job runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return nil, err
	}

	lockContention, err := meter.Int64Counter(
		"pp_sync_lock_contention_total",
		metric.WithDescription("Job attempts that lost the cross-process lock"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	gateSkips, err := meter.Int64Counter(
		"pp_sync_gate_skips_total",
		metric.WithDescription("Due job attempts whose readiness gate declined"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	return &SchedulerMetrics{
		runDuration:    runDuration,
		lockContention: lockContention,
		gateSkips:      gateSkips,
	}, nil
}

// RecordRunDuration records one finished job run.
func (m *SchedulerMetrics) RecordRunDuration(ctx context.Context, job string, duration time.Duration, success bool) {
	if m == nil || m.runDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("job", job),
		attribute.Bool("success", success),
	}

	m.runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordLockContention records an attempt that found the lock held elsewhere.
func (m *SchedulerMetrics) RecordLockContention(ctx context.Context, job string) {
	if m == nil || m.lockContention == nil {
		return
	}

	m.lockContention.Add(ctx, 1, metric.WithAttributes(attribute.String("job", job)))
}

// RecordGateSkip records a due attempt whose gate said not yet.
func (m *SchedulerMetrics) RecordGateSkip(ctx context.Context, job string) {
	if m == nil || m.gateSkips == nil {
		return
	}

	m.gateSkips.Add(ctx, 1, metric.WithAttributes(attribute.String("job", job)))
}

// ReconcileMetrics holds the OpenTelemetry instruments for feed reconciliation.
type ReconcileMetrics struct {
	rowsChanged metric.Int64Counter
}

// NewReconcileMetrics creates a new ReconcileMetrics instance with the given
// meter provider. If provider is nil, it returns nil (no-op metrics).
func NewReconcileMetrics(provider metric.MeterProvider) (*ReconcileMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(ReconcileMetricsMeterName)

	rowsChanged, err := meter.Int64Counter(
		"pp_sync_rows_changed_total",
		metric.WithDescription("Game rows actually changed by reconciliation"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return nil, err
	}

	return &ReconcileMetrics{
		rowsChanged: rowsChanged,
	}, nil
}

// RecordRowsChanged records how many rows an operation changed.
func (m *ReconcileMetrics) RecordRowsChanged(ctx context.Context, operation string, count int64) {
	if m == nil || m.rowsChanged == nil {
		return
	}

	m.rowsChanged.Add(ctx, count, metric.WithAttributes(attribute.String("operation", operation)))
}
