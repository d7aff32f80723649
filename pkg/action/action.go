// Pipeline for one invocation: fetch, record gauges, build the trace, flush
// The flush runs exactly once whatever happened before it
package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/paper2/github-actions-opentelemetry-sub000/pkg/telemetry"
	"github.com/paper2/github-actions-opentelemetry-sub000/pkg/workflow"
)

// Fetcher loads a completed run. *workflow.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, id workflow.RunIdentity, policy workflow.RetryPolicy) (*workflow.Results, error)
}

// Options wires the pipeline's collaborators.
type Options struct {
	Fetcher  Fetcher
	Identity workflow.RunIdentity
	Retry    workflow.RetryPolicy

	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
	// Flush drains and shuts down telemetry. It is called exactly once.
	Flush func(context.Context) error

	FeatureMetrics bool
	FeatureTrace   bool

	Logger *slog.Logger
}

// Result is the outcome of Run. TraceID is empty when no trace was built.
// Results is nil when the fetch failed.
type Result struct {
	TraceID string
	Results *workflow.Results
	Err     error
}

// Run executes the pipeline. A fetch error skips both emitters. Metrics and
// the trace are built independently; their errors and the flush error are
// joined in Result.Err.
func Run(ctx context.Context, opts Options) (res Result) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	defer func() {
		if opts.Flush == nil {
			return
		}
		if err := opts.Flush(ctx); err != nil {
			logger.Error("failed to flush telemetry", "error", err)
			res.Err = errors.Join(res.Err, err)
		}
	}()

	results, err := opts.Fetcher.Fetch(ctx, opts.Identity, opts.Retry)
	if err != nil {
		res.Err = fmt.Errorf("fetching %s: %w", opts.Identity, err)
		return res
	}
	res.Results = results
	logger.Info("fetched workflow run",
		"run", results.Run().Name,
		"conclusion", results.Run().Conclusion,
		"jobs", len(results.Jobs()),
	)

	if opts.FeatureMetrics {
		if err := recordMetrics(ctx, opts.MeterProvider, results, logger); err != nil {
			logger.Error("failed to record workflow metrics", "error", err)
			res.Err = errors.Join(res.Err, err)
		} else {
			logger.Info("recorded workflow metrics")
		}
	}

	if opts.FeatureTrace {
		tracer := opts.TracerProvider.Tracer(telemetry.ScopeName)
		traceID, err := telemetry.BuildTrace(ctx, tracer, results, logger)
		if err != nil {
			logger.Error("failed to build workflow trace", "error", err)
			res.Err = errors.Join(res.Err, fmt.Errorf("building trace: %w", err))
		} else {
			res.TraceID = traceID
			logger.Info("built workflow trace", "trace_id", traceID)
		}
	}

	return res
}

func recordMetrics(ctx context.Context, mp metric.MeterProvider, results *workflow.Results, logger *slog.Logger) error {
	m, err := telemetry.NewWorkflowMetrics(mp, logger)
	if err != nil {
		return fmt.Errorf("creating gauges: %w", err)
	}
	if err := m.Record(ctx, results); err != nil {
		return fmt.Errorf("recording metrics: %w", err)
	}
	return nil
}
