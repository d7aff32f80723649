// Strict domain model for a finished workflow run
// Values are only produced by the converters, which are the single validation gate
package workflow

import (
	"errors"
	"slices"
	"time"
)

// StatusCompleted is the only lifecycle status a Run or Job may carry.
const StatusCompleted = "completed"

// ErrNoJobs is returned when a derived value needs at least one job.
var ErrNoJobs = errors.New("workflow has no jobs")

// Run is a completed workflow run attempt.
type Run struct {
	ID         int64
	Name       string
	Status     string
	Conclusion string
	CreatedAt  time.Time
	RunAttempt int
	Repository string // owner/name
	URL        string

	// Optional metadata; empty when GitHub did not report it.
	Actor      string
	Event      string
	HeadBranch string
	HeadSHA    string
}

// Job is a completed job of a workflow run. Steps are in the order GitHub
// reported them, which is execution order.
type Job struct {
	ID              int64
	Name            string
	Status          string
	Conclusion      string
	CreatedAt       time.Time
	StartedAt       time.Time
	CompletedAt     time.Time
	WorkflowName    string
	RunID           int64
	RunnerName      *string
	RunnerGroupName *string
	URL             string
	Steps           []Step
}

// Step is a completed step of a job.
type Step struct {
	Name        string
	Number      int
	Conclusion  string
	StartedAt   time.Time
	CompletedAt time.Time
}

// Results pairs a run with its jobs. It is the hand-off between fetching
// and the telemetry stages and is never mutated after NewResults.
type Results struct {
	run  Run
	jobs []Job
}

// NewResults copies jobs so later changes to the caller's slice are not observed.
func NewResults(run Run, jobs []Job) *Results {
	return &Results{run: run, jobs: slices.Clone(jobs)}
}

// Run returns the workflow run.
func (r *Results) Run() Run { return r.run }

// Jobs returns a copy of the jobs in reported order.
func (r *Results) Jobs() []Job { return slices.Clone(r.jobs) }

// LatestJobCompletedAt returns the maximum CompletedAt across all jobs.
func (r *Results) LatestJobCompletedAt() (time.Time, error) {
	if len(r.jobs) == 0 {
		return time.Time{}, ErrNoJobs
	}
	latest := r.jobs[0].CompletedAt
	for _, job := range r.jobs[1:] {
		if job.CompletedAt.After(latest) {
			latest = job.CompletedAt
		}
	}
	return latest, nil
}

// EarliestJobStartedAt returns the minimum StartedAt across all jobs.
func (r *Results) EarliestJobStartedAt() (time.Time, error) {
	if len(r.jobs) == 0 {
		return time.Time{}, ErrNoJobs
	}
	earliest := r.jobs[0].StartedAt
	for _, job := range r.jobs[1:] {
		if job.StartedAt.Before(earliest) {
			earliest = job.StartedAt
		}
	}
	return earliest, nil
}
