// Duration gauges derived from a finished workflow run
// Workflow-level gauges are always recorded; a negative job queue wait is skipped
package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/paper2/github-actions-opentelemetry-sub000/pkg/workflow"
)

// Gauge names.
const (
	MetricWorkflowQueuedDuration = "github.workflow.queued.duration"
	MetricWorkflowDuration       = "github.workflow.duration"
	MetricJobQueuedDuration      = "github.job.queued.duration"
	MetricJobDuration            = "github.job.duration"
)

// Metric attribute keys.
const (
	AttrWorkflowName    = "workflow.name"
	AttrRepository      = "repository"
	AttrJobName         = "job.name"
	AttrJobConclusion   = "job.conclusion"
	AttrRunnerName      = "runner.name"
	AttrRunnerGroupName = "runner.group.name"
)

// WorkflowMetrics records run and job duration gauges.
type WorkflowMetrics struct {
	workflowQueued   metric.Int64Gauge
	workflowDuration metric.Int64Gauge
	jobQueued        metric.Int64Gauge
	jobDuration      metric.Int64Gauge
	logger           *slog.Logger
}

// NewWorkflowMetrics creates the gauges on a meter from mp. A nil logger
// uses slog.Default().
func NewWorkflowMetrics(mp metric.MeterProvider, logger *slog.Logger) (*WorkflowMetrics, error) {
	if logger == nil {
		logger = slog.Default()
	}
	meter := mp.Meter(ScopeName)

	workflowQueued, err := meter.Int64Gauge(MetricWorkflowQueuedDuration,
		metric.WithUnit("s"),
		metric.WithDescription("Time from workflow creation until its first job started"),
	)
	if err != nil {
		return nil, err
	}

	workflowDuration, err := meter.Int64Gauge(MetricWorkflowDuration,
		metric.WithUnit("s"),
		metric.WithDescription("Time from workflow creation until its last job completed"),
	)
	if err != nil {
		return nil, err
	}

	jobQueued, err := meter.Int64Gauge(MetricJobQueuedDuration,
		metric.WithUnit("s"),
		metric.WithDescription("Time a job waited for a runner"),
	)
	if err != nil {
		return nil, err
	}

	jobDuration, err := meter.Int64Gauge(MetricJobDuration,
		metric.WithUnit("s"),
		metric.WithDescription("Time a job spent executing on a runner"),
	)
	if err != nil {
		return nil, err
	}

	return &WorkflowMetrics{
		workflowQueued:   workflowQueued,
		workflowDuration: workflowDuration,
		jobQueued:        jobQueued,
		jobDuration:      jobDuration,
		logger:           logger,
	}, nil
}

// Record emits the workflow gauges, then the gauges for each job.
// results must hold at least one job.
func (m *WorkflowMetrics) Record(ctx context.Context, results *workflow.Results) error {
	run := results.Run()

	firstStart, err := results.EarliestJobStartedAt()
	if err != nil {
		return fmt.Errorf("workflow queued duration: %w", err)
	}
	lastEnd, err := results.LatestJobCompletedAt()
	if err != nil {
		return fmt.Errorf("workflow duration: %w", err)
	}

	runAttrs := metric.WithAttributes(
		attribute.String(AttrWorkflowName, run.Name),
		attribute.String(AttrRepository, run.Repository),
	)
	m.workflowQueued.Record(ctx, workflow.Duration(run.CreatedAt, firstStart), runAttrs)
	m.workflowDuration.Record(ctx, workflow.Duration(run.CreatedAt, lastEnd), runAttrs)

	for _, job := range results.Jobs() {
		attrs := metric.WithAttributes(jobAttributes(run, job)...)

		m.jobDuration.Record(ctx, workflow.Duration(job.StartedAt, job.CompletedAt), attrs)

		queued := workflow.Duration(job.CreatedAt, job.StartedAt)
		if queued < 0 {
			m.logger.Info("skipping negative job queued duration",
				"job", job.Name,
				"job_id", job.ID,
				"created_at", job.CreatedAt,
				"started_at", job.StartedAt,
				"seconds", queued,
			)
			continue
		}
		m.jobQueued.Record(ctx, queued, attrs)
	}
	return nil
}

// jobAttributes returns the attribute set for a job gauge. Optional runner
// fields are left out entirely when GitHub did not report them.
func jobAttributes(run workflow.Run, job workflow.Job) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrWorkflowName, job.WorkflowName),
		attribute.String(AttrRepository, run.Repository),
		attribute.String(AttrJobName, job.Name),
		attribute.String(AttrJobConclusion, job.Conclusion),
	}
	if job.RunnerName != nil {
		attrs = append(attrs, attribute.String(AttrRunnerName, *job.RunnerName))
	}
	if job.RunnerGroupName != nil {
		attrs = append(attrs, attribute.String(AttrRunnerGroupName, *job.RunnerGroupName))
	}
	return attrs
}
