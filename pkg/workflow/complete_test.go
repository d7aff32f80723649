// Tests for the advisory completeness check and Results helpers
package workflow

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paper2/github-actions-opentelemetry-sub000/pkg/github"
)

func TestAllWorkCompleted(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	ok := AllWorkCompleted(rawRun(), []github.WorkflowJob{rawJob(1, "build")}, logger)
	assert.True(t, ok)
	assert.Empty(t, logs.String())
}

func TestCheckCompletenessFindings(t *testing.T) {
	t.Parallel()

	run := rawRun()
	run.Status = ptr("in_progress")

	pendingJob := rawJob(2, "deploy")
	pendingJob.Status = "in_progress"
	pendingJob.Conclusion = nil
	pendingJob.CompletedAt = nil

	stepJob := rawJob(3, "test")
	stepJob.Steps[1].StartedAt = nil

	findings := CheckCompleteness(run, []github.WorkflowJob{rawJob(1, "build"), pendingJob, stepJob})
	require.Len(t, findings, 5)

	assert.Equal(t, Finding{Entity: "run", ID: 1, Name: "CI", Reason: "status is in_progress"}, findings[0])
	assert.Equal(t, "job", findings[1].Entity)
	assert.Equal(t, "status is in_progress", findings[1].Reason)
	assert.Equal(t, "conclusion is missing", findings[2].Reason)
	assert.Equal(t, "completed_at is missing", findings[3].Reason)
	assert.Equal(t, Finding{Entity: "step", Name: "test", Job: "test", Reason: "started_at is missing"}, findings[4])
	assert.Equal(t, `step "test" of job "test": started_at is missing`, findings[4].String())
}

func TestAllWorkCompletedLogsReasons(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	job := rawJob(1, "build")
	job.Steps[0].Conclusion = nil

	assert.False(t, AllWorkCompleted(rawRun(), []github.WorkflowJob{job}, logger))
	assert.Contains(t, logs.String(), "conclusion is missing")
	assert.Contains(t, logs.String(), "checkout")
}

func TestResultsAggregates(t *testing.T) {
	t.Parallel()

	early, err := ConvertJob(rawJob(1, "early"), nil)
	require.NoError(t, err)
	late := early
	late.Name = "late"
	late.StartedAt = t0.Add(30 * time.Second)
	late.CompletedAt = t0.Add(90 * time.Second)

	results := NewResults(Run{Name: "CI", CreatedAt: t0}, []Job{late, early})

	start, err := results.EarliestJobStartedAt()
	require.NoError(t, err)
	assert.Equal(t, t0.Add(12*time.Second), start)

	end, err := results.LatestJobCompletedAt()
	require.NoError(t, err)
	assert.Equal(t, t0.Add(90*time.Second), end)
}

func TestResultsNoJobs(t *testing.T) {
	t.Parallel()

	results := NewResults(Run{Name: "CI"}, nil)
	_, err := results.LatestJobCompletedAt()
	assert.ErrorIs(t, err, ErrNoJobs)
	_, err = results.EarliestJobStartedAt()
	assert.ErrorIs(t, err, ErrNoJobs)
}

func TestResultsAreIsolatedFromCaller(t *testing.T) {
	t.Parallel()

	jobs := []Job{{Name: "a"}}
	results := NewResults(Run{}, jobs)
	jobs[0].Name = "mutated"

	got := results.Jobs()
	assert.Equal(t, "a", got[0].Name)
	got[0].Name = "mutated again"
	assert.Equal(t, "a", results.Jobs()[0].Name)
}
