// Invocation settings for the exporter binary
// Values come from GitHub Actions environment variables, overridable by command-line flags
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/paper2/github-actions-opentelemetry-sub000/pkg/telemetry"
)

// Keys used with viper. Flags are bound to the same keys by the CLI.
const (
	KeyRepository     = "repository"
	KeyOwner          = "owner"
	KeyRepo           = "repo"
	KeyRunID          = "run_id"
	KeyAttempt        = "attempt"
	KeyToken          = "token"
	KeyAPIURL         = "api_url"
	KeyFeatureTrace   = "feature_trace"
	KeyFeatureMetrics = "feature_metrics"
	KeyFeatureLogs    = "feature_logs"
	KeySignals        = "signals"
	KeyRetryDelayMS   = "retry_delay_ms"
	KeyMaxAttempts    = "max_attempts"
	KeyEndpoint       = "endpoint"
	KeyProtocol       = "protocol"
	KeyStdout         = "stdout"
	KeyServiceName    = "service_name"
	KeyStepSummary    = "step_summary"
	KeyLogLevel       = "log_level"
)

// Defaults.
const (
	DefaultAPIURL      = "https://api.github.com"
	DefaultAttempt     = 1
	DefaultRetryDelay  = time.Second
	DefaultMaxAttempts = 3
	DefaultProtocol    = "http/protobuf"
	DefaultLogLevel    = "info"
)

var (
	ErrRunIDRequired      = errors.New("workflow run id is required (WORKFLOW_RUN_ID or GITHUB_RUN_ID)")
	ErrRepositoryRequired = errors.New("repository is required as owner/repo (GITHUB_REPOSITORY, or OWNER and REPOSITORY_NAME)")
	ErrTokenRequired      = errors.New("GITHUB_TOKEN is required")
)

// Config is the resolved configuration for one invocation.
type Config struct {
	Owner   string
	Repo    string
	RunID   int64
	Attempt int
	Token   string
	APIURL  string

	Traces  bool
	Metrics bool
	Logs    bool

	RetryDelay  time.Duration
	MaxAttempts int

	Endpoint    string
	Protocol    string
	Stdout      bool
	ServiceName string

	// StepSummary is the path of the GitHub step summary file; empty disables it.
	StepSummary string
	LogLevel    string
}

// New returns a viper instance with defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyAttempt, DefaultAttempt)
	v.SetDefault(KeyAPIURL, DefaultAPIURL)
	v.SetDefault(KeyFeatureTrace, true)
	v.SetDefault(KeyFeatureMetrics, true)
	v.SetDefault(KeyFeatureLogs, false)
	v.SetDefault(KeyRetryDelayMS, DefaultRetryDelay.Milliseconds())
	v.SetDefault(KeyMaxAttempts, DefaultMaxAttempts)
	v.SetDefault(KeyProtocol, DefaultProtocol)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)

	bind := func(key string, envs ...string) {
		_ = v.BindEnv(append([]string{key}, envs...)...)
	}
	bind(KeyRepository, "GITHUB_REPOSITORY")
	bind(KeyOwner, "OWNER")
	bind(KeyRepo, "REPOSITORY_NAME")
	bind(KeyRunID, "WORKFLOW_RUN_ID", "GITHUB_RUN_ID")
	bind(KeyAttempt, "WORKFLOW_RUN_ATTEMPT", "GITHUB_RUN_ATTEMPT")
	bind(KeyToken, "GITHUB_TOKEN")
	bind(KeyAPIURL, "GITHUB_API_URL")
	bind(KeyFeatureTrace, "FEATURE_TRACE")
	bind(KeyFeatureMetrics, "FEATURE_METRICS")
	bind(KeyFeatureLogs, "FEATURE_LOGS")
	bind(KeyRetryDelayMS, "FETCH_RETRY_DELAY_MS")
	bind(KeyMaxAttempts, "FETCH_MAX_ATTEMPTS")
	bind(KeyProtocol, "OTEL_EXPORTER_OTLP_PROTOCOL")
	bind(KeyStepSummary, "GITHUB_STEP_SUMMARY")
	bind(KeyLogLevel, "LOG_LEVEL")

	return v
}

// Load resolves a Config from v. It reports malformed values but does not
// check required fields; call Validate for that.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Token:       v.GetString(KeyToken),
		APIURL:      strings.TrimRight(v.GetString(KeyAPIURL), "/"),
		Endpoint:    v.GetString(KeyEndpoint),
		Protocol:    v.GetString(KeyProtocol),
		ServiceName: v.GetString(KeyServiceName),
		StepSummary: v.GetString(KeyStepSummary),
		LogLevel:    v.GetString(KeyLogLevel),
	}

	if repository := v.GetString(KeyRepository); repository != "" {
		owner, repo, ok := strings.Cut(repository, "/")
		if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
			return nil, fmt.Errorf("repository %q must be in owner/repo form", repository)
		}
		cfg.Owner, cfg.Repo = owner, repo
	}
	if owner := v.GetString(KeyOwner); owner != "" {
		cfg.Owner = owner
	}
	if repo := v.GetString(KeyRepo); repo != "" {
		cfg.Repo = repo
	}

	var err error
	if cfg.Traces, err = parseBool(v, KeyFeatureTrace, true); err != nil {
		return nil, err
	}
	if cfg.Metrics, err = parseBool(v, KeyFeatureMetrics, true); err != nil {
		return nil, err
	}
	if cfg.Logs, err = parseBool(v, KeyFeatureLogs, false); err != nil {
		return nil, err
	}
	if cfg.Stdout, err = parseBool(v, KeyStdout, false); err != nil {
		return nil, err
	}

	if cfg.RunID, err = parseInt(v, KeyRunID, 0); err != nil {
		return nil, err
	}
	attempt, err := parseInt(v, KeyAttempt, DefaultAttempt)
	if err != nil {
		return nil, err
	}
	cfg.Attempt = int(attempt)

	delayMS, err := parseInt(v, KeyRetryDelayMS, DefaultRetryDelay.Milliseconds())
	if err != nil {
		return nil, err
	}
	cfg.RetryDelay = time.Duration(delayMS) * time.Millisecond

	maxAttempts, err := parseInt(v, KeyMaxAttempts, DefaultMaxAttempts)
	if err != nil {
		return nil, err
	}
	cfg.MaxAttempts = int(maxAttempts)

	if signals := v.GetString(KeySignals); signals != "" {
		set, err := ParseSignals(signals)
		if err != nil {
			return nil, err
		}
		cfg.Traces, cfg.Metrics, cfg.Logs = set["traces"], set["metrics"], set["logs"]
	}

	return cfg, nil
}

// parseInt reads key as a base-10 integer, returning def when unset.
func parseInt(v *viper.Viper, key string, def int64) (int64, error) {
	s := strings.TrimSpace(v.GetString(key))
	if s == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, s)
	}
	return n, nil
}

// parseBool reads key with strconv.ParseBool, so "1", "t", "true", "0",
// "f" and "false" in any case are accepted and anything else is an error.
func parseBool(v *viper.Viper, key string, def bool) (bool, error) {
	s := strings.TrimSpace(v.GetString(key))
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean (true or false), got %q", key, s)
	}
	return b, nil
}

var validSignals = map[string]bool{
	"traces":  true,
	"metrics": true,
	"logs":    true,
}

// ParseSignals parses a comma-separated signal list such as "traces,metrics".
func ParseSignals(s string) (map[string]bool, error) {
	set := make(map[string]bool)
	for _, sig := range strings.Split(s, ",") {
		sig = strings.TrimSpace(sig)
		if sig == "" {
			continue
		}
		if !validSignals[sig] {
			return nil, fmt.Errorf("unknown signal %q, valid signals: traces, metrics, logs", sig)
		}
		set[sig] = true
	}
	return set, nil
}

// Identity reports whether the run identity fields are usable.
func (c *Config) Identity() error {
	if c.Owner == "" || c.Repo == "" {
		return ErrRepositoryRequired
	}
	if c.RunID == 0 {
		return ErrRunIDRequired
	}
	if c.RunID < 0 {
		return fmt.Errorf("workflow run id must be positive, got %d", c.RunID)
	}
	if c.Attempt < 1 {
		return fmt.Errorf("workflow run attempt must be at least 1, got %d", c.Attempt)
	}
	if c.Token == "" {
		return ErrTokenRequired
	}
	if !strings.HasPrefix(c.APIURL, "https://") {
		return fmt.Errorf("GitHub API URL must use https, got %q", c.APIURL)
	}
	return nil
}

// Validate checks everything the run command needs.
func (c *Config) Validate() error {
	if err := c.Identity(); err != nil {
		return err
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay must not be negative, got %s", c.RetryDelay)
	}
	return telemetry.ValidateProtocol(c.Protocol)
}
