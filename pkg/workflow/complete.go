// Advisory completeness check over raw run, job, and step records
// Used for diagnostics only; the fetch loop does not retry on it
package workflow

import (
	"fmt"
	"log/slog"

	"github.com/paper2/github-actions-opentelemetry-sub000/pkg/github"
)

// Finding describes one entity that is not fully complete.
type Finding struct {
	Entity string `json:"entity" yaml:"entity"` // "run", "job" or "step"
	ID     int64  `json:"id,omitempty" yaml:"id,omitempty"`
	Name   string `json:"name" yaml:"name"`
	Job    string `json:"job,omitempty" yaml:"job,omitempty"`
	Reason string `json:"reason" yaml:"reason"`
}

func (f Finding) String() string {
	switch f.Entity {
	case "step":
		return fmt.Sprintf("step %q of job %q: %s", f.Name, f.Job, f.Reason)
	default:
		return fmt.Sprintf("%s %q (id %d): %s", f.Entity, f.Name, f.ID, f.Reason)
	}
}

// CheckCompleteness walks run, jobs, then each job's steps and returns a
// Finding for every entity that is not completed or lacks a required
// conclusion or timestamp. An empty result means all work is complete.
func CheckCompleteness(run *github.WorkflowRun, jobs []github.WorkflowJob) []Finding {
	var findings []Finding

	runName := ""
	if run.Name != nil {
		runName = *run.Name
	}
	if run.Status == nil || *run.Status != StatusCompleted {
		findings = append(findings, Finding{Entity: "run", ID: run.ID, Name: runName, Reason: "status is " + deref(run.Status)})
	}

	for _, job := range jobs {
		if job.Status != StatusCompleted {
			findings = append(findings, Finding{Entity: "job", ID: job.ID, Name: job.Name, Reason: "status is " + job.Status})
		}
		if job.Conclusion == nil {
			findings = append(findings, Finding{Entity: "job", ID: job.ID, Name: job.Name, Reason: "conclusion is missing"})
		}
		if job.StartedAt == nil {
			findings = append(findings, Finding{Entity: "job", ID: job.ID, Name: job.Name, Reason: "started_at is missing"})
		}
		if job.CompletedAt == nil {
			findings = append(findings, Finding{Entity: "job", ID: job.ID, Name: job.Name, Reason: "completed_at is missing"})
		}

		for _, step := range job.Steps {
			if step.Status != StatusCompleted {
				findings = append(findings, Finding{Entity: "step", Name: step.Name, Job: job.Name, Reason: "status is " + step.Status})
			}
			if step.Conclusion == nil {
				findings = append(findings, Finding{Entity: "step", Name: step.Name, Job: job.Name, Reason: "conclusion is missing"})
			}
			if step.StartedAt == nil {
				findings = append(findings, Finding{Entity: "step", Name: step.Name, Job: job.Name, Reason: "started_at is missing"})
			}
			if step.CompletedAt == nil {
				findings = append(findings, Finding{Entity: "step", Name: step.Name, Job: job.Name, Reason: "completed_at is missing"})
			}
		}
	}

	return findings
}

// AllWorkCompleted reports whether the run, every job and every step are
// complete, logging each offending entity at info level.
func AllWorkCompleted(run *github.WorkflowRun, jobs []github.WorkflowJob, logger *slog.Logger) bool {
	if logger == nil {
		logger = slog.Default()
	}
	findings := CheckCompleteness(run, jobs)
	for _, f := range findings {
		logger.Info("work item not complete", "entity", f.Entity, "id", f.ID, "name", f.Name, "job", f.Job, "reason", f.Reason)
	}
	return len(findings) == 0
}

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}
