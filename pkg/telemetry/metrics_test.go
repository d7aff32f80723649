// Tests for the workflow and job duration gauges
// Uses the OTel SDK ManualReader to verify recorded data points and attribute sets
package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/paper2/github-actions-opentelemetry-sub000/pkg/workflow"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func at(seconds int) time.Time { return t0.Add(time.Duration(seconds) * time.Second) }

// testJob is created at 2s, starts at 12s and completes at 22s with two steps.
func testJob(id int64, name string) workflow.Job {
	return workflow.Job{
		ID:           id,
		Name:         name,
		Status:       workflow.StatusCompleted,
		Conclusion:   "success",
		CreatedAt:    at(2),
		StartedAt:    at(12),
		CompletedAt:  at(22),
		WorkflowName: "CI",
		RunID:        1,
		RunnerName:   ptr("runner-1"),
		URL:          "https://github.com/octo/repo/actions/runs/1/job/" + name,
		Steps: []workflow.Step{
			{Name: "checkout", Number: 1, Conclusion: "success", StartedAt: at(12), CompletedAt: at(14)},
			{Name: "test", Number: 2, Conclusion: "success", StartedAt: at(14), CompletedAt: at(22)},
		},
	}
}

func testRun() workflow.Run {
	return workflow.Run{
		ID:         1,
		Name:       "CI",
		Status:     workflow.StatusCompleted,
		Conclusion: "success",
		CreatedAt:  t0,
		RunAttempt: 1,
		Repository: "octo/repo",
		URL:        "https://github.com/octo/repo/actions/runs/1",
	}
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findGauge(t *testing.T, rm metricdata.ResourceMetrics, name string) (metricdata.Gauge[int64], bool) {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			g, ok := m.Data.(metricdata.Gauge[int64])
			require.True(t, ok, "%s should be a Gauge[int64]", name)
			assert.Equal(t, "s", m.Unit)
			return g, true
		}
	}
	return metricdata.Gauge[int64]{}, false
}

func newTestMetrics(t *testing.T) (*WorkflowMetrics, *sdkmetric.ManualReader, *bytes.Buffer) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	var logs bytes.Buffer
	m, err := NewWorkflowMetrics(mp, slog.New(slog.NewTextHandler(&logs, nil)))
	require.NoError(t, err)
	return m, reader, &logs
}

func TestRecordConcreteScenario(t *testing.T) {
	t.Parallel()

	m, reader, _ := newTestMetrics(t)
	results := workflow.NewResults(testRun(), []workflow.Job{testJob(10, "build")})
	require.NoError(t, m.Record(context.Background(), results))

	rm := collectMetrics(t, reader)

	runSet := attribute.NewSet(
		attribute.String(AttrWorkflowName, "CI"),
		attribute.String(AttrRepository, "octo/repo"),
	)
	jobSet := attribute.NewSet(
		attribute.String(AttrWorkflowName, "CI"),
		attribute.String(AttrRepository, "octo/repo"),
		attribute.String(AttrJobName, "build"),
		attribute.String(AttrJobConclusion, "success"),
		attribute.String(AttrRunnerName, "runner-1"),
	)

	tests := []struct {
		name  string
		want  int64
		attrs attribute.Set
	}{
		{MetricWorkflowQueuedDuration, 12, runSet},
		{MetricWorkflowDuration, 22, runSet},
		{MetricJobDuration, 10, jobSet},
		{MetricJobQueuedDuration, 10, jobSet},
	}
	for _, tt := range tests {
		g, ok := findGauge(t, rm, tt.name)
		require.True(t, ok, "%s should be recorded", tt.name)
		require.Len(t, g.DataPoints, 1, tt.name)
		assert.Equal(t, tt.want, g.DataPoints[0].Value, tt.name)
		assert.True(t, tt.attrs.Equals(&g.DataPoints[0].Attributes), "%s attributes: %v", tt.name, g.DataPoints[0].Attributes.ToSlice())
	}
}

func TestRecordSkipsNegativeJobQueue(t *testing.T) {
	t.Parallel()

	m, reader, logs := newTestMetrics(t)

	job := testJob(10, "build")
	job.CreatedAt = at(15)
	results := workflow.NewResults(testRun(), []workflow.Job{job})
	require.NoError(t, m.Record(context.Background(), results))

	rm := collectMetrics(t, reader)

	_, ok := findGauge(t, rm, MetricJobQueuedDuration)
	assert.False(t, ok, "negative queue wait should not be recorded")

	g, ok := findGauge(t, rm, MetricJobDuration)
	require.True(t, ok)
	require.Len(t, g.DataPoints, 1)
	assert.Equal(t, int64(10), g.DataPoints[0].Value)

	assert.Contains(t, logs.String(), "skipping negative job queued duration")
}

func TestRecordNegativeWorkflowQueueStillRecorded(t *testing.T) {
	t.Parallel()

	m, reader, _ := newTestMetrics(t)

	run := testRun()
	run.CreatedAt = at(20)
	results := workflow.NewResults(run, []workflow.Job{testJob(10, "build")})
	require.NoError(t, m.Record(context.Background(), results))

	g, ok := findGauge(t, collectMetrics(t, reader), MetricWorkflowQueuedDuration)
	require.True(t, ok)
	assert.Equal(t, int64(-8), g.DataPoints[0].Value)
}

func TestRecordOmitsAbsentRunnerAttributes(t *testing.T) {
	t.Parallel()

	m, reader, _ := newTestMetrics(t)

	job := testJob(10, "build")
	job.RunnerName = nil
	job.RunnerGroupName = nil
	other := testJob(11, "lint")
	other.RunnerGroupName = ptr("default")

	results := workflow.NewResults(testRun(), []workflow.Job{job, other})
	require.NoError(t, m.Record(context.Background(), results))

	g, ok := findGauge(t, collectMetrics(t, reader), MetricJobDuration)
	require.True(t, ok)
	require.Len(t, g.DataPoints, 2)

	for _, dp := range g.DataPoints {
		name, _ := dp.Attributes.Value(AttrJobName)
		_, hasRunner := dp.Attributes.Value(AttrRunnerName)
		group, hasGroup := dp.Attributes.Value(AttrRunnerGroupName)
		switch name.AsString() {
		case "build":
			assert.False(t, hasRunner)
			assert.False(t, hasGroup)
		case "lint":
			assert.True(t, hasRunner)
			assert.True(t, hasGroup)
			assert.Equal(t, "default", group.AsString())
		default:
			t.Fatalf("unexpected job %q", name.AsString())
		}
	}
}

func TestRecordAggregatesAcrossJobs(t *testing.T) {
	t.Parallel()

	m, reader, _ := newTestMetrics(t)

	late := testJob(11, "deploy")
	late.StartedAt = at(30)
	late.CompletedAt = at(95)
	early := testJob(10, "build")
	early.StartedAt = at(5)

	results := workflow.NewResults(testRun(), []workflow.Job{late, early})
	require.NoError(t, m.Record(context.Background(), results))

	rm := collectMetrics(t, reader)
	queued, ok := findGauge(t, rm, MetricWorkflowQueuedDuration)
	require.True(t, ok)
	assert.Equal(t, int64(5), queued.DataPoints[0].Value)

	total, ok := findGauge(t, rm, MetricWorkflowDuration)
	require.True(t, ok)
	assert.Equal(t, int64(95), total.DataPoints[0].Value)
}

func TestRecordNoJobs(t *testing.T) {
	t.Parallel()

	m, reader, _ := newTestMetrics(t)

	err := m.Record(context.Background(), workflow.NewResults(testRun(), nil))
	require.ErrorIs(t, err, workflow.ErrNoJobs)

	rm := collectMetrics(t, reader)
	_, ok := findGauge(t, rm, MetricWorkflowDuration)
	assert.False(t, ok, "nothing should be recorded without jobs")
}
