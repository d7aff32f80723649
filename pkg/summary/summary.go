// Markdown report of an exported run for the GitHub step summary
// Appended to $GITHUB_STEP_SUMMARY after the export, whatever its outcome
package summary

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/paper2/github-actions-opentelemetry-sub000/pkg/workflow"
)

// Conclusion renders a GitHub conclusion such as "timed_out" as "Timed Out".
func Conclusion(c string) string {
	if c == "" {
		return "-"
	}
	return cases.Title(language.English).String(strings.ReplaceAll(c, "_", " "))
}

// Render returns the Markdown report. traceID may be empty when no trace
// was exported.
func Render(results *workflow.Results, traceID string) string {
	run := results.Run()

	var b strings.Builder
	fmt.Fprintf(&b, "### OpenTelemetry export: %s (attempt %d)\n\n", run.Name, run.RunAttempt)
	fmt.Fprintf(&b, "- Repository: %s\n", run.Repository)
	fmt.Fprintf(&b, "- Conclusion: %s\n", Conclusion(run.Conclusion))
	if run.URL != "" {
		fmt.Fprintf(&b, "- Run: %s\n", run.URL)
	}
	if traceID != "" {
		fmt.Fprintf(&b, "- Trace ID: `%s`\n", traceID)
	}
	b.WriteString("\n")

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Job", "Conclusion", "Queued (s)", "Duration (s)", "Runner"})
	for _, job := range results.Jobs() {
		runner := "-"
		if job.RunnerName != nil && *job.RunnerName != "" {
			runner = *job.RunnerName
		}
		t.AppendRow(table.Row{
			job.Name,
			Conclusion(job.Conclusion),
			workflow.Duration(job.CreatedAt, job.StartedAt),
			workflow.Duration(job.StartedAt, job.CompletedAt),
			runner,
		})
	}
	b.WriteString(t.RenderMarkdown())
	b.WriteString("\n")
	return b.String()
}

// Write renders the report to w.
func Write(w io.Writer, results *workflow.Results, traceID string) error {
	_, err := io.WriteString(w, Render(results, traceID))
	return err
}

// Append adds the report to the file at path, creating it if needed.
// GitHub concatenates everything written to the step summary file.
func Append(path string, results *workflow.Results, traceID string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // path comes from GITHUB_STEP_SUMMARY
	if err != nil {
		return fmt.Errorf("opening step summary: %w", err)
	}
	if err := Write(f, results, traceID); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing step summary: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing step summary: %w", err)
	}
	return nil
}
