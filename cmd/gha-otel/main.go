// Export a finished GitHub Actions workflow run as OpenTelemetry metrics and traces
// Reads the run from the GitHub REST API and sends gauges and a span tree over OTLP
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/log"

	"github.com/paper2/github-actions-opentelemetry-sub000/pkg/action"
	"github.com/paper2/github-actions-opentelemetry-sub000/pkg/config"
	"github.com/paper2/github-actions-opentelemetry-sub000/pkg/github"
	"github.com/paper2/github-actions-opentelemetry-sub000/pkg/summary"
	"github.com/paper2/github-actions-opentelemetry-sub000/pkg/telemetry"
	"github.com/paper2/github-actions-opentelemetry-sub000/pkg/workflow"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// httpClient is used for GitHub API calls; nil means http.DefaultClient.
var httpClient *http.Client

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "gha-otel",
		Short:        "Export GitHub Actions workflow runs as OpenTelemetry signals",
		SilenceUsage: true,
	}

	root.AddCommand(runCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(versionCmd())

	return root
}

// addIdentityFlags registers the flags that select a workflow run and binds
// them to v. GitHub Actions environment variables fill anything not given.
func addIdentityFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().String("repository", "", "repository as owner/repo [$GITHUB_REPOSITORY]")
	cmd.Flags().String("owner", "", "repository owner, overrides --repository [$OWNER]")
	cmd.Flags().String("repo", "", "repository name, overrides --repository [$REPOSITORY_NAME]")
	cmd.Flags().Int64("run-id", 0, "workflow run id [$WORKFLOW_RUN_ID, $GITHUB_RUN_ID]")
	cmd.Flags().Int("attempt", config.DefaultAttempt, "workflow run attempt [$WORKFLOW_RUN_ATTEMPT, $GITHUB_RUN_ATTEMPT]")
	cmd.Flags().String("api-url", config.DefaultAPIURL, "GitHub API root [$GITHUB_API_URL]")
	cmd.Flags().String("log-level", config.DefaultLogLevel, "log level: debug, info, warn, error [$LOG_LEVEL]")

	bindFlags(cmd, v, map[string]string{
		config.KeyRepository: "repository",
		config.KeyOwner:      "owner",
		config.KeyRepo:       "repo",
		config.KeyRunID:      "run-id",
		config.KeyAttempt:    "attempt",
		config.KeyAPIURL:     "api-url",
		config.KeyLogLevel:   "log-level",
	})
}

func bindFlags(cmd *cobra.Command, v *viper.Viper, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("BUG: binding flag %q: %v", name, err))
		}
	}
}

func runCmd() *cobra.Command {
	v := config.New()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Export a completed workflow run as metrics and a trace",
		Long: "Export a completed workflow run as metrics and a trace.\n\n" +
			"The run is identified by GitHub Actions environment variables\n" +
			"(GITHUB_REPOSITORY, GITHUB_RUN_ID, GITHUB_RUN_ATTEMPT) or flags.\n" +
			"GITHUB_TOKEN must allow reading Actions data for the repository.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runExport(cmd, cfg)
		},
	}

	addIdentityFlags(cmd, v)
	cmd.Flags().String("endpoint", "", "OTLP endpoint host:port [$OTEL_EXPORTER_OTLP_ENDPOINT via the SDK]")
	cmd.Flags().String("protocol", config.DefaultProtocol, "OTLP protocol (http/protobuf or grpc)")
	cmd.Flags().Bool("stdout", false, "emit signals to stdout as JSON")
	cmd.Flags().String("signals", "", "comma-separated signals to emit: traces,metrics,logs [$FEATURE_TRACE, $FEATURE_METRICS, $FEATURE_LOGS]")
	cmd.Flags().String("service-name", "", "service.name resource attribute [$OTEL_SERVICE_NAME, else "+telemetry.DefaultServiceName+"]")
	cmd.Flags().Int64("retry-delay-ms", config.DefaultRetryDelay.Milliseconds(), "delay between fetch attempts in milliseconds [$FETCH_RETRY_DELAY_MS]")
	cmd.Flags().Int("max-attempts", config.DefaultMaxAttempts, "maximum fetch attempts [$FETCH_MAX_ATTEMPTS]")

	bindFlags(cmd, v, map[string]string{
		config.KeyEndpoint:     "endpoint",
		config.KeyProtocol:     "protocol",
		config.KeyStdout:       "stdout",
		config.KeySignals:      "signals",
		config.KeyServiceName:  "service-name",
		config.KeyRetryDelayMS: "retry-delay-ms",
		config.KeyMaxAttempts:  "max-attempts",
	})

	return cmd
}

func runExport(cmd *cobra.Command, cfg *config.Config) error {
	level, err := telemetry.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	res, err := telemetry.NewResource(cfg.ServiceName, version)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	providers, err := telemetry.NewProviders(ctx, telemetry.Options{
		Endpoint: cfg.Endpoint,
		Protocol: cfg.Protocol,
		Stdout:   cfg.Stdout,
		Writer:   cmd.OutOrStdout(),
		Traces:   cfg.Traces,
		Metrics:  cfg.Metrics,
		Logs:     cfg.Logs,
	}, res)
	if err != nil {
		return err
	}

	var lp log.LoggerProvider
	if cfg.Logs {
		lp = providers.LoggerProvider
	}
	logger := telemetry.NewLogger(cmd.ErrOrStderr(), level, lp)

	client, err := github.NewClient(github.Config{
		BaseURL:    cfg.APIURL,
		Token:      cfg.Token,
		HTTPClient: httpClient,
		Logger:     logger,
	})
	if err != nil {
		_ = providers.Flush(context.WithoutCancel(ctx))
		return err
	}

	result := action.Run(ctx, action.Options{
		Fetcher:  &workflow.Fetcher{Client: client, Logger: logger},
		Identity: identity(cfg),
		Retry:    workflow.RetryPolicy{Delay: cfg.RetryDelay, MaxAttempts: cfg.MaxAttempts},

		MeterProvider:  providers.MeterProvider,
		TracerProvider: providers.TracerProvider,
		// Flushing must still happen after SIGINT cancels ctx.
		Flush: func(ctx context.Context) error {
			return providers.Flush(context.WithoutCancel(ctx))
		},

		FeatureMetrics: cfg.Metrics,
		FeatureTrace:   cfg.Traces,
		Logger:         logger,
	})

	if cfg.StepSummary != "" && result.Results != nil {
		if err := summary.Append(cfg.StepSummary, result.Results, result.TraceID); err != nil {
			logger.Warn("failed to write step summary", "path", cfg.StepSummary, "error", err)
		}
	}

	if result.Err != nil {
		err := explainGitHubError(result.Err, identity(cfg))
		logger.Error("export failed", "error", err)
		return err
	}
	logger.Info("export finished", "trace_id", result.TraceID)
	return nil
}

func identity(cfg *config.Config) workflow.RunIdentity {
	return workflow.RunIdentity{
		Owner:   cfg.Owner,
		Repo:    cfg.Repo,
		RunID:   cfg.RunID,
		Attempt: cfg.Attempt,
	}
}

// explainGitHubError adds a hint for the API failures a user can fix:
// a token without access, or a run that does not exist.
func explainGitHubError(err error, id workflow.RunIdentity) error {
	switch {
	case github.IsUnauthorized(err):
		return fmt.Errorf("%w (check that GITHUB_TOKEN can read Actions data for %s/%s)", err, id.Owner, id.Repo)
	case github.IsNotFound(err):
		return fmt.Errorf("%w (%s not found, or the token cannot see the repository)", err, id)
	}
	return err
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "gha-otel %s (commit: %s, built: %s)\n", version, commit, buildTime)
		},
	}
}
