package telemetry

import (
	"context"
	"fmt"
	"time"

	appsub "github.com/ams/backend/internal/application/subscription"
	"github.com/ams/backend/internal/domain/processing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Run outcomes
const (
	OutcomeSucceeded = "succeeded"
	OutcomePartial   = "partial"
	OutcomeFailed    = "failed"
)

var (
	attrJobType = attribute.Key("job_type")
	attrOutcome = attribute.Key("outcome")
	attrResult  = attribute.Key("result")
)

// JobDurationBuckets are histogram boundaries for batch runs, in seconds
var JobDurationBuckets = []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900, 1800}

// JobMetrics records batch run outcomes as OpenTelemetry instruments
type JobMetrics struct {
	runs     metric.Int64Counter
	records  metric.Int64Counter
	duration metric.Float64Histogram
	lastRun  metric.Int64Gauge
}

// NewJobMetrics creates the job instruments on meter
func NewJobMetrics(meter metric.Meter) (*JobMetrics, error) {
	runs, err := meter.Int64Counter("ams.job.runs",
		metric.WithDescription("Batch job runs by outcome"),
		metric.WithUnit("{run}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create runs counter: %w", err)
	}
	records, err := meter.Int64Counter("ams.job.records",
		metric.WithDescription("Records handled by batch jobs by result"),
		metric.WithUnit("{record}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create records counter: %w", err)
	}
	duration, err := meter.Float64Histogram("ams.job.duration",
		metric.WithDescription("Batch job wall time"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(JobDurationBuckets...))
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}
	lastRun, err := meter.Int64Gauge("ams.job.last_run",
		metric.WithDescription("Unix time of the last completed run"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create last run gauge: %w", err)
	}
	return &JobMetrics{runs: runs, records: records, duration: duration, lastRun: lastRun}, nil
}

// RecordJobRun implements appsub.JobMetrics
func (m *JobMetrics) RecordJobRun(ctx context.Context, jobType processing.JobType, result *appsub.BatchResult, duration time.Duration, err error) {
	outcome := Outcome(result, err)
	job := attrJobType.String(jobType.String())

	m.runs.Add(ctx, 1, metric.WithAttributes(job, attrOutcome.String(outcome)))
	m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(job, attrOutcome.String(outcome)))

	if result != nil {
		m.addRecords(ctx, job, "processed", result.Processed)
		m.addRecords(ctx, job, "skipped", result.Skipped)
		m.addRecords(ctx, job, "failed", result.Failed)
		m.lastRun.Record(ctx, result.CompletedAt.Unix(), metric.WithAttributes(job))
	}
}

func (m *JobMetrics) addRecords(ctx context.Context, job attribute.KeyValue, result string, n int) {
	if n > 0 {
		m.records.Add(ctx, int64(n), metric.WithAttributes(job, attrResult.String(result)))
	}
}

// Outcome classifies a run. Per-record failures make a run partial, not failed.
func Outcome(result *appsub.BatchResult, err error) string {
	switch {
	case err != nil || result == nil:
		return OutcomeFailed
	case result.Failed > 0:
		return OutcomePartial
	default:
		return OutcomeSucceeded
	}
}

var _ appsub.JobMetrics = (*JobMetrics)(nil)
