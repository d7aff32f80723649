// Wire types for the GitHub Actions run and job endpoints
// Nullable fields are pointers so absent and zero values stay distinguishable
package github

import "time"

// User is a GitHub account reference.
type User struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
}

// Repository is the repository a workflow run belongs to.
type Repository struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Owner    User   `json:"owner"`
	HTMLURL  string `json:"html_url"`
}

// WorkflowRun is a GitHub Actions workflow run as returned by
// GET /repos/{owner}/{repo}/actions/runs/{run_id}[/attempts/{n}].
type WorkflowRun struct {
	ID           int64      `json:"id"`
	Name         *string    `json:"name"`
	DisplayTitle string     `json:"display_title"`
	Status       *string    `json:"status"`     // "queued", "in_progress", "completed", ...
	Conclusion   *string    `json:"conclusion"` // null until completed
	WorkflowID   int64      `json:"workflow_id"`
	RunNumber    int        `json:"run_number"`
	RunAttempt   *int       `json:"run_attempt"`
	Event        string     `json:"event"`
	HeadBranch   *string    `json:"head_branch"`
	HeadSHA      string     `json:"head_sha"`
	HTMLURL      string     `json:"html_url"`
	Actor        *User      `json:"actor"`
	Repository   Repository `json:"repository"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	RunStartedAt *time.Time `json:"run_started_at"`
}

// WorkflowJob is a single job of a workflow run.
type WorkflowJob struct {
	ID              int64          `json:"id"`
	RunID           int64          `json:"run_id"`
	RunAttempt      int            `json:"run_attempt"`
	Name            string         `json:"name"`
	Status          string         `json:"status"`
	Conclusion      *string        `json:"conclusion"`
	HTMLURL         *string        `json:"html_url"`
	CreatedAt       time.Time      `json:"created_at"`
	StartedAt       *time.Time     `json:"started_at"`
	CompletedAt     *time.Time     `json:"completed_at"`
	WorkflowName    *string        `json:"workflow_name"`
	HeadBranch      *string        `json:"head_branch"`
	Labels          []string       `json:"labels"`
	RunnerID        *int64         `json:"runner_id"`
	RunnerName      *string        `json:"runner_name"`
	RunnerGroupName *string        `json:"runner_group_name"`
	Steps           []WorkflowStep `json:"steps"`
}

// WorkflowStep is a step within a job.
type WorkflowStep struct {
	Name        string     `json:"name"`
	Number      int        `json:"number"`
	Status      string     `json:"status"`
	Conclusion  *string    `json:"conclusion"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
}
