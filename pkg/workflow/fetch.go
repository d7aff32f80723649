// Consistency-retrying fetch of a run and its jobs
// GitHub can report a run as completed before every job reflects it, so each attempt
// re-reads both and only succeeds once at least one job converts cleanly
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/paper2/github-actions-opentelemetry-sub000/pkg/github"
)

// ErrNoCompletedJobs fails an attempt in which no job survived conversion.
var ErrNoCompletedJobs = errors.New("no completed jobs in workflow run")

// ErrRetriesExhausted matches any *RetriesExhaustedError via errors.Is.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetriesExhaustedError is returned once every attempt has failed. It
// unwraps to both ErrRetriesExhausted and the last attempt's error.
type RetriesExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("fetching workflow results: retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.Err}
}

// Client is the subset of the GitHub API the fetcher needs.
type Client interface {
	GetWorkflowRunAttempt(ctx context.Context, owner, repo string, runID int64, attempt int) (*github.WorkflowRun, error)
	ListAllWorkflowRunAttemptJobs(ctx context.Context, owner, repo string, runID int64, attempt, perPage int) ([]github.WorkflowJob, error)
}

// RunIdentity names one attempt of one workflow run.
type RunIdentity struct {
	Owner   string
	Repo    string
	RunID   int64
	Attempt int
}

func (id RunIdentity) String() string {
	return fmt.Sprintf("%s/%s run %d attempt %d", id.Owner, id.Repo, id.RunID, id.Attempt)
}

// RetryPolicy bounds the fetch loop. The only timeout is
// MaxAttempts x Delay; there is no wall-clock deadline.
type RetryPolicy struct {
	Delay       time.Duration
	MaxAttempts int
}

// Default retry settings.
const (
	DefaultRetryDelay       = time.Second
	DefaultRetryMaxAttempts = 3
)

// Fetcher retrieves a consistent snapshot of a finished run.
type Fetcher struct {
	Client Client

	// PageSize for the jobs listing; <= 0 uses the API maximum.
	PageSize int

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Sleep waits between attempts. Defaults to a timer that also returns
	// early if ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Fetch runs the retry loop: fetch run, fetch all jobs, convert, and
// succeed as soon as the run converts and at least one job does. Jobs
// still reported as not completed are discarded rather than failing the
// attempt. Any other error, or zero surviving jobs, waits policy.Delay
// and tries again, up to policy.MaxAttempts attempts in total.
func (f *Fetcher) Fetch(ctx context.Context, id RunIdentity, policy RetryPolicy) (*Results, error) {
	logger := f.logger()
	maxAttempts := max(policy.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		results, err := f.fetchOnce(ctx, id)
		if err == nil {
			if attempt > 1 {
				logger.Info("fetched workflow results after retry", "run", id.String(), "attempt", attempt)
			}
			return results, nil
		}
		lastErr = err

		logger.Warn("fetching workflow results failed",
			"run", id.String(),
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", err,
		)

		if attempt == maxAttempts {
			break
		}
		if err := f.sleep(ctx, policy.Delay); err != nil {
			return nil, fmt.Errorf("waiting to retry fetch: %w", errors.Join(err, lastErr))
		}
	}

	return nil, &RetriesExhaustedError{Attempts: maxAttempts, Err: lastErr}
}

// fetchOnce performs a single attempt.
func (f *Fetcher) fetchOnce(ctx context.Context, id RunIdentity) (*Results, error) {
	rawRun, err := f.Client.GetWorkflowRunAttempt(ctx, id.Owner, id.Repo, id.RunID, id.Attempt)
	if err != nil {
		return nil, err
	}
	rawJobs, err := f.Client.ListAllWorkflowRunAttemptJobs(ctx, id.Owner, id.Repo, id.RunID, id.Attempt, f.PageSize)
	if err != nil {
		return nil, err
	}

	run, err := ConvertRun(rawRun)
	if err != nil {
		return nil, err
	}

	logger := f.logger()
	jobs := make([]Job, 0, len(rawJobs))
	for _, rawJob := range rawJobs {
		job, err := ConvertJob(rawJob, logger)
		if errors.Is(err, ErrJobNotCompleted) {
			logger.Debug("skipping job that is not completed yet", "job", rawJob.Name, "job_id", rawJob.ID, "status", rawJob.Status)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("converting job %q: %w", rawJob.Name, err)
		}
		jobs = append(jobs, job)
	}

	if len(jobs) == 0 {
		return nil, ErrNoCompletedJobs
	}
	return NewResults(run, jobs), nil
}

func (f *Fetcher) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

func (f *Fetcher) sleep(ctx context.Context, d time.Duration) error {
	if f.Sleep != nil {
		return f.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
