// Converters from permissive GitHub wire types to the strict domain model
// Each missing or invalid field fails with its own sentinel so callers can match exactly
package workflow

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/paper2/github-actions-opentelemetry-sub000/pkg/github"
)

// Messages are shown to users verbatim, hence the capitalisation.
var (
	ErrRunNotCompleted       = errors.New("This workflow is not completed")
	ErrRunNameRequired       = errors.New("Workflow name is required")
	ErrRunConclusionRequired = errors.New("Workflow conclusion is required")
	ErrRunAttemptRequired    = errors.New("Workflow run attempt is required")

	ErrJobNotCompleted         = errors.New("This job is not completed")
	ErrJobConclusionRequired   = errors.New("Job conclusion is required")
	ErrJobCompletedAtRequired  = errors.New("Job completed_at is required")
	ErrJobWorkflowNameRequired = errors.New("Job workflow_name is required")

	ErrStepConclusionRequired  = errors.New("Step conclusion is required")
	ErrStepStartedAtRequired   = errors.New("Step started_at is required")
	ErrStepCompletedAtRequired = errors.New("Step completed_at is required")
)

// withID appends the entity id in the form users grep for: "<msg>. id: <id>".
func withID(err error, id int64) error {
	return fmt.Errorf("%w. id: %d", err, id)
}

// ConvertRun validates a raw run. Checks run in a fixed order: status,
// name, conclusion, attempt.
func ConvertRun(raw *github.WorkflowRun) (Run, error) {
	if raw.Status == nil || *raw.Status != StatusCompleted {
		return Run{}, withID(ErrRunNotCompleted, raw.ID)
	}
	if raw.Name == nil || *raw.Name == "" {
		return Run{}, ErrRunNameRequired
	}
	if raw.Conclusion == nil {
		return Run{}, withID(ErrRunConclusionRequired, raw.ID)
	}
	if raw.RunAttempt == nil {
		return Run{}, withID(ErrRunAttemptRequired, raw.ID)
	}

	run := Run{
		ID:         raw.ID,
		Name:       *raw.Name,
		Status:     *raw.Status,
		Conclusion: *raw.Conclusion,
		CreatedAt:  raw.CreatedAt,
		RunAttempt: *raw.RunAttempt,
		Repository: raw.Repository.FullName,
		URL:        raw.HTMLURL,
		Event:      raw.Event,
		HeadSHA:    raw.HeadSHA,
	}
	if raw.Actor != nil {
		run.Actor = raw.Actor.Login
	}
	if raw.HeadBranch != nil {
		run.HeadBranch = *raw.HeadBranch
	}
	return run, nil
}

// ConvertJob validates a raw job. Checks run in a fixed order: status,
// conclusion, completed_at, workflow_name. Steps that fail ConvertStep are
// dropped and reported to logger (nil discards); they never fail the job.
// A missing step list becomes an empty one.
func ConvertJob(raw github.WorkflowJob, logger *slog.Logger) (Job, error) {
	if raw.Status != StatusCompleted {
		return Job{}, withID(ErrJobNotCompleted, raw.ID)
	}
	if raw.Conclusion == nil {
		return Job{}, ErrJobConclusionRequired
	}
	if raw.CompletedAt == nil {
		return Job{}, ErrJobCompletedAtRequired
	}
	if raw.WorkflowName == nil {
		return Job{}, ErrJobWorkflowNameRequired
	}

	// GitHub omits started_at only for jobs that never ran; treat those
	// as starting the moment they were created.
	startedAt := raw.CreatedAt
	if raw.StartedAt != nil {
		startedAt = *raw.StartedAt
	}

	steps := make([]Step, 0, len(raw.Steps))
	for _, rawStep := range raw.Steps {
		step, err := ConvertStep(rawStep)
		if err != nil {
			if logger != nil {
				logger.Warn("dropping incomplete step",
					"job", raw.Name,
					"job_id", raw.ID,
					"step", rawStep.Name,
					"error", err,
				)
			}
			continue
		}
		steps = append(steps, step)
	}

	job := Job{
		ID:              raw.ID,
		Name:            raw.Name,
		Status:          raw.Status,
		Conclusion:      *raw.Conclusion,
		CreatedAt:       raw.CreatedAt,
		StartedAt:       startedAt,
		CompletedAt:     *raw.CompletedAt,
		WorkflowName:    *raw.WorkflowName,
		RunID:           raw.RunID,
		RunnerName:      raw.RunnerName,
		RunnerGroupName: raw.RunnerGroupName,
		Steps:           steps,
	}
	if raw.HTMLURL != nil {
		job.URL = *raw.HTMLURL
	}
	return job, nil
}

// ConvertStep validates a raw step: conclusion, started_at, completed_at.
func ConvertStep(raw github.WorkflowStep) (Step, error) {
	if raw.Conclusion == nil {
		return Step{}, ErrStepConclusionRequired
	}
	if raw.StartedAt == nil {
		return Step{}, ErrStepStartedAtRequired
	}
	if raw.CompletedAt == nil {
		return Step{}, ErrStepCompletedAtRequired
	}
	return Step{
		Name:        raw.Name,
		Number:      raw.Number,
		Conclusion:  *raw.Conclusion,
		StartedAt:   *raw.StartedAt,
		CompletedAt: *raw.CompletedAt,
	}, nil
}
