// GitHub Actions endpoints for workflow run attempts and their jobs
// Jobs are paged through PageIterator with the jobs envelope unwrapped
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// DefaultJobsPageSize is the largest page the jobs endpoint accepts.
const DefaultJobsPageSize = 100

// GetWorkflowRunAttempt retrieves a specific attempt of a workflow run.
func (client *Client) GetWorkflowRunAttempt(ctx context.Context, owner, repo string, runID int64, attempt int) (*WorkflowRun, error) {
	var run WorkflowRun
	path := fmt.Sprintf("/repos/%s/%s/actions/runs/%d/attempts/%d", owner, repo, runID, attempt)
	if err := client.get(ctx, path, &run); err != nil {
		return nil, fmt.Errorf("getting workflow run %d attempt %d in %s/%s: %w", runID, attempt, owner, repo, err)
	}
	return &run, nil
}

// jobsPage is the envelope returned by the jobs list endpoints.
type jobsPage struct {
	TotalCount int           `json:"total_count"`
	Jobs       []WorkflowJob `json:"jobs"`
}

func decodeJobsPage(r io.Reader) ([]WorkflowJob, error) {
	var page jobsPage
	if err := json.NewDecoder(r).Decode(&page); err != nil {
		return nil, err
	}
	return page.Jobs, nil
}

// ListWorkflowRunAttemptJobs returns an iterator over the jobs of one run
// attempt. perPage <= 0 uses DefaultJobsPageSize.
func (client *Client) ListWorkflowRunAttemptJobs(owner, repo string, runID int64, attempt, perPage int) *PageIterator[WorkflowJob] {
	if perPage <= 0 {
		perPage = DefaultJobsPageSize
	}
	path := fmt.Sprintf("/repos/%s/%s/actions/runs/%d/attempts/%d/jobs?per_page=%d", owner, repo, runID, attempt, perPage)
	return newPageIterator(client, path, decodeJobsPage)
}

// ListAllWorkflowRunAttemptJobs fetches every page of jobs for a run
// attempt and merges them in page order.
func (client *Client) ListAllWorkflowRunAttemptJobs(ctx context.Context, owner, repo string, runID int64, attempt, perPage int) ([]WorkflowJob, error) {
	jobs, err := client.ListWorkflowRunAttemptJobs(owner, repo, runID, attempt, perPage).Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing jobs of workflow run %d attempt %d in %s/%s: %w", runID, attempt, owner, repo, err)
	}
	return jobs, nil
}
