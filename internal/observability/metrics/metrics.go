package metrics

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/smallbiznis/partnerly"

var (
	schedulerOnce sync.Once
	schedulerInst *SchedulerMetrics

	engineOnce sync.Once
	engineInst *EngineMetrics
)

// SchedulerMetrics tracks background job execution.
type SchedulerMetrics struct {
	jobRuns     metric.Int64Counter
	jobErrors   metric.Int64Counter
	jobDuration metric.Float64Histogram
}

func Scheduler() *SchedulerMetrics {
	schedulerOnce.Do(func() {
		meter := otel.Meter(meterName)
		jobRuns, _ := meter.Int64Counter("scheduler_job_runs_total")
		jobErrors, _ := meter.Int64Counter("scheduler_job_errors_total")
		jobDuration, _ := meter.Float64Histogram("scheduler_job_duration_seconds")
		schedulerInst = &SchedulerMetrics{
			jobRuns:     jobRuns,
			jobErrors:   jobErrors,
			jobDuration: jobDuration,
		}
	})
	return schedulerInst
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m == nil || m.jobRuns == nil {
		return
	}
	m.jobRuns.Add(context.Background(), 1, metric.WithAttributes(attribute.String("job", job)))
}

func (m *SchedulerMetrics) IncJobError(job string) {
	if m == nil || m.jobErrors == nil {
		return
	}
	m.jobErrors.Add(context.Background(), 1, metric.WithAttributes(attribute.String("job", job)))
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil || m.jobDuration == nil {
		return
	}
	m.jobDuration.Record(context.Background(), d.Seconds(), metric.WithAttributes(attribute.String("job", job)))
}

// EngineMetrics tracks ledger and payout activity.
type EngineMetrics struct {
	credits   metric.Int64Counter
	reversals metric.Int64Counter
	held      metric.Int64Counter
	batches   metric.Int64Counter
}

func Engine() *EngineMetrics {
	engineOnce.Do(func() {
		meter := otel.Meter(meterName)
		credits, _ := meter.Int64Counter("commission_credits_total")
		reversals, _ := meter.Int64Counter("commission_reversals_total")
		held, _ := meter.Int64Counter("payout_entries_held_total")
		batches, _ := meter.Int64Counter("payout_batches_total")
		engineInst = &EngineMetrics{
			credits:   credits,
			reversals: reversals,
			held:      held,
			batches:   batches,
		}
	})
	return engineInst
}

func (m *EngineMetrics) IncCredit(ctx context.Context, level int) {
	if m == nil || m.credits == nil {
		return
	}
	m.credits.Add(ctx, 1, metric.WithAttributes(attribute.Int("level", level)))
}

func (m *EngineMetrics) IncReversal(ctx context.Context, reason string) {
	if m == nil || m.reversals == nil {
		return
	}
	m.reversals.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *EngineMetrics) IncHeld(ctx context.Context, reason string) {
	if m == nil || m.held == nil {
		return
	}
	m.held.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *EngineMetrics) AddBatches(ctx context.Context, n int) {
	if m == nil || m.batches == nil || n <= 0 {
		return
	}
	m.batches.Add(ctx, int64(n))
}
