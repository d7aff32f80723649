// Retroactive trace construction for a finished workflow run
// Every span is started and ended at recorded timestamps; parents are threaded through context values
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/paper2/github-actions-opentelemetry-sub000/pkg/workflow"
)

// Span attribute keys from the OpenTelemetry CI/CD semantic conventions.
const (
	AttrCICDPipelineName          = "cicd.pipeline.name"
	AttrCICDPipelineRunID         = "cicd.pipeline.run.id"
	AttrCICDPipelineRunURL        = "cicd.pipeline.run.url.full"
	AttrCICDPipelineResult        = "cicd.pipeline.result"
	AttrCICDPipelineTaskName      = "cicd.pipeline.task.name"
	AttrCICDPipelineTaskRunID     = "cicd.pipeline.task.run.id"
	AttrCICDPipelineTaskRunURL    = "cicd.pipeline.task.run.url.full"
	AttrCICDPipelineTaskRunResult = "cicd.pipeline.task.run.result"
	AttrCICDWorkerName            = "cicd.worker.name"
	AttrVCSRepositoryName         = "vcs.repository.name"
	AttrVCSRefHeadName            = "vcs.ref.head.name"
	AttrVCSRefHeadRevision        = "vcs.ref.head.revision"
	AttrStepNumber                = "github.step.number"
	AttrRunAttempt                = "github.run.attempt"
)

// EnvelopeSpanName names the span covering a job's queue wait plus execution.
func EnvelopeSpanName(job string) string { return job + " with time of waiting runner" }

// WaitSpanName names the span covering a job's queue wait.
func WaitSpanName(job string) string { return "waiting runner for " + job }

// BuildTrace narrates results as one trace:
//
//	run                                   [run.created, last job completed]
//	└─ "<job> with time of waiting runner" [job.created, job.completed]
//	   ├─ "waiting runner for <job>"       [job.created, job.started]   (skipped if negative)
//	   └─ "<job>"                          [job.started, job.completed]
//	      └─ "<step>"                      [step.started, step.completed]
//
// It returns the trace id as hex, or "" if the root span has no valid
// span context (for example with a no-op tracer).
func BuildTrace(ctx context.Context, tracer trace.Tracer, results *workflow.Results, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	run := results.Run()

	end, err := results.LatestJobCompletedAt()
	if err != nil {
		return "", fmt.Errorf("building trace for %q: %w", run.Name, err)
	}

	rootAttrs := []attribute.KeyValue{
		attribute.String(AttrCICDPipelineName, run.Name),
		attribute.String(AttrCICDPipelineRunID, fmt.Sprint(run.ID)),
		attribute.String(AttrCICDPipelineResult, run.Conclusion),
		attribute.String(AttrVCSRepositoryName, run.Repository),
		attribute.Int(AttrRunAttempt, run.RunAttempt),
	}
	if run.URL != "" {
		rootAttrs = append(rootAttrs, attribute.String(AttrCICDPipelineRunURL, run.URL))
	}
	if run.HeadBranch != "" {
		rootAttrs = append(rootAttrs, attribute.String(AttrVCSRefHeadName, run.HeadBranch))
	}
	if run.HeadSHA != "" {
		rootAttrs = append(rootAttrs, attribute.String(AttrVCSRefHeadRevision, run.HeadSHA))
	}

	rootCtx, root := tracer.Start(ctx, run.Name,
		trace.WithTimestamp(run.CreatedAt),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(rootAttrs...),
	)
	for _, job := range results.Jobs() {
		buildJobSpans(rootCtx, tracer, run, job, logger)
	}
	finish(root, run.Conclusion, end)

	sc := trace.SpanContextFromContext(rootCtx)
	if !sc.TraceID().IsValid() {
		return "", nil
	}
	return sc.TraceID().String(), nil
}

// buildJobSpans creates the envelope, wait, execution and step spans for
// one job under parent.
func buildJobSpans(parent context.Context, tracer trace.Tracer, run workflow.Run, job workflow.Job, logger *slog.Logger) {
	jobAttrs := []attribute.KeyValue{
		attribute.String(AttrCICDPipelineName, job.WorkflowName),
		attribute.String(AttrCICDPipelineRunID, fmt.Sprint(run.ID)),
		attribute.String(AttrCICDPipelineTaskName, job.Name),
		attribute.String(AttrCICDPipelineTaskRunID, fmt.Sprint(job.ID)),
		attribute.String(AttrCICDPipelineTaskRunResult, job.Conclusion),
	}
	if job.URL != "" {
		jobAttrs = append(jobAttrs, attribute.String(AttrCICDPipelineTaskRunURL, job.URL))
	}

	envelopeCtx, envelope := tracer.Start(parent, EnvelopeSpanName(job.Name),
		trace.WithTimestamp(job.CreatedAt),
		trace.WithAttributes(jobAttrs...),
	)

	if job.CreatedAt.After(job.StartedAt) {
		logger.Info("skipping waiting runner span with negative duration",
			"job", job.Name,
			"created_at", job.CreatedAt,
			"started_at", job.StartedAt,
		)
	} else {
		_, wait := tracer.Start(envelopeCtx, WaitSpanName(job.Name),
			trace.WithTimestamp(job.CreatedAt),
			trace.WithAttributes(attribute.String(AttrCICDPipelineTaskName, job.Name)),
		)
		wait.End(trace.WithTimestamp(job.StartedAt))
	}

	execAttrs := jobAttrs
	if job.RunnerName != nil {
		execAttrs = append(execAttrs[:len(execAttrs):len(execAttrs)], attribute.String(AttrCICDWorkerName, *job.RunnerName))
	}
	execCtx, exec := tracer.Start(envelopeCtx, job.Name,
		trace.WithTimestamp(job.StartedAt),
		trace.WithAttributes(execAttrs...),
	)

	for _, step := range job.Steps {
		if step.StartedAt.IsZero() || step.CompletedAt.IsZero() {
			logger.Warn("skipping step span without timestamps", "job", job.Name, "step", step.Name)
			continue
		}
		_, span := tracer.Start(execCtx, step.Name,
			trace.WithTimestamp(step.StartedAt),
			trace.WithAttributes(
				attribute.String(AttrCICDPipelineTaskName, job.Name),
				attribute.Int(AttrStepNumber, step.Number),
				attribute.String(AttrCICDPipelineTaskRunResult, step.Conclusion),
			),
		)
		finish(span, step.Conclusion, step.CompletedAt)
	}

	finish(exec, job.Conclusion, job.CompletedAt)
	finish(envelope, job.Conclusion, job.CompletedAt)
}

// finish marks failed conclusions as errors and ends span at end.
func finish(span trace.Span, conclusion string, end time.Time) {
	switch conclusion {
	case "failure", "timed_out":
		span.SetStatus(codes.Error, conclusion)
	}
	span.End(trace.WithTimestamp(end))
}
