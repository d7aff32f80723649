// The check command: report unfinished jobs and steps of a workflow run
// Exits non-zero so a workflow can gate on it before exporting
package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/paper2/github-actions-opentelemetry-sub000/pkg/config"
	"github.com/paper2/github-actions-opentelemetry-sub000/pkg/github"
	"github.com/paper2/github-actions-opentelemetry-sub000/pkg/telemetry"
	"github.com/paper2/github-actions-opentelemetry-sub000/pkg/workflow"
)

// checkReport is the yaml form of a completeness check.
type checkReport struct {
	Run      string             `yaml:"run"`
	Complete bool               `yaml:"complete"`
	Jobs     int                `yaml:"jobs"`
	Steps    int                `yaml:"steps"`
	Findings []workflow.Finding `yaml:"findings,omitempty"`
}

func checkCmd() *cobra.Command {
	v := config.New()
	var output string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report whether every job and step of a workflow run has completed",
		Long: "Report whether every job and step of a workflow run has completed.\n\n" +
			"Fetches the run once without retrying and lists anything still running\n" +
			"or missing a conclusion or timestamp. Exits non-zero if anything is incomplete.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "text" && output != "yaml" {
				return fmt.Errorf("unsupported output %q, supported: text, yaml", output)
			}

			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			if err := cfg.Identity(); err != nil {
				return err
			}
			level, err := telemetry.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			logger := telemetry.NewLogger(cmd.ErrOrStderr(), level, nil)

			client, err := github.NewClient(github.Config{
				BaseURL:    cfg.APIURL,
				Token:      cfg.Token,
				HTTPClient: httpClient,
				Logger:     logger,
			})
			if err != nil {
				return err
			}

			id := identity(cfg)
			run, err := client.GetWorkflowRunAttempt(cmd.Context(), id.Owner, id.Repo, id.RunID, id.Attempt)
			if err != nil {
				return explainGitHubError(err, id)
			}
			jobs, err := client.ListAllWorkflowRunAttemptJobs(cmd.Context(), id.Owner, id.Repo, id.RunID, id.Attempt, 0)
			if err != nil {
				return explainGitHubError(err, id)
			}

			report := checkReport{Run: id.String(), Jobs: len(jobs)}
			for _, job := range jobs {
				report.Steps += len(job.Steps)
			}
			report.Findings = workflow.CheckCompleteness(run, jobs)
			report.Complete = workflow.AllWorkCompleted(run, jobs, logger)

			w := cmd.OutOrStdout()
			if output == "yaml" {
				data, err := yaml.Marshal(report)
				if err != nil {
					return fmt.Errorf("encoding report: %w", err)
				}
				if _, err := w.Write(data); err != nil {
					return err
				}
			} else {
				for _, f := range report.Findings {
					_, _ = fmt.Fprintf(w, "FAIL  %s\n", f)
				}
				if report.Complete {
					_, _ = fmt.Fprintf(w, "PASS  %s: %d jobs, %d steps completed\n", report.Run, report.Jobs, report.Steps)
				}
			}

			if !report.Complete {
				return fmt.Errorf("%d work items are not complete", len(report.Findings))
			}
			return nil
		},
	}

	addIdentityFlags(cmd, v)
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or yaml")

	return cmd
}
