// Tests for environment and flag resolution of invocation settings
package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Owner:       "octo",
		Repo:        "repo",
		RunID:       42,
		Attempt:     1,
		Token:       "ghs_test",
		APIURL:      DefaultAPIURL,
		RetryDelay:  time.Second,
		MaxAttempts: 3,
		Protocol:    DefaultProtocol,
	}
}

func TestLoadFromGitHubEnvironment(t *testing.T) {
	t.Setenv("GITHUB_REPOSITORY", "octo/repo")
	t.Setenv("GITHUB_RUN_ID", "1234")
	t.Setenv("GITHUB_RUN_ATTEMPT", "2")
	t.Setenv("GITHUB_TOKEN", "ghs_test")
	t.Setenv("GITHUB_STEP_SUMMARY", "/tmp/summary.md")
	t.Setenv("FEATURE_METRICS", "false")

	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, "octo", cfg.Owner)
	assert.Equal(t, "repo", cfg.Repo)
	assert.Equal(t, int64(1234), cfg.RunID)
	assert.Equal(t, 2, cfg.Attempt)
	assert.Equal(t, "ghs_test", cfg.Token)
	assert.Equal(t, DefaultAPIURL, cfg.APIURL)
	assert.Equal(t, "/tmp/summary.md", cfg.StepSummary)
	assert.True(t, cfg.Traces)
	assert.False(t, cfg.Metrics)
	assert.False(t, cfg.Logs)
	assert.Equal(t, DefaultRetryDelay, cfg.RetryDelay)
	assert.Equal(t, DefaultMaxAttempts, cfg.MaxAttempts)
	assert.Equal(t, DefaultProtocol, cfg.Protocol)
	assert.NoError(t, cfg.Validate())
}

func TestLoadExplicitOverridesWin(t *testing.T) {
	t.Setenv("GITHUB_REPOSITORY", "octo/repo")
	t.Setenv("OWNER", "other-org")
	t.Setenv("REPOSITORY_NAME", "other-repo")
	t.Setenv("GITHUB_RUN_ID", "1")
	t.Setenv("WORKFLOW_RUN_ID", "99")
	t.Setenv("GITHUB_RUN_ATTEMPT", "1")
	t.Setenv("WORKFLOW_RUN_ATTEMPT", "3")
	t.Setenv("FETCH_RETRY_DELAY_MS", "250")
	t.Setenv("FETCH_MAX_ATTEMPTS", "5")
	t.Setenv("GITHUB_API_URL", "https://ghe.example.com/api/v3/")

	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, "other-org", cfg.Owner)
	assert.Equal(t, "other-repo", cfg.Repo)
	assert.Equal(t, int64(99), cfg.RunID)
	assert.Equal(t, 3, cfg.Attempt)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryDelay)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, "https://ghe.example.com/api/v3", cfg.APIURL)
}

func TestLoadSignalsOverrideFeatures(t *testing.T) {
	t.Parallel()

	v := New()
	v.Set(KeySignals, "metrics, logs")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.False(t, cfg.Traces)
	assert.True(t, cfg.Metrics)
	assert.True(t, cfg.Logs)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{name: "repository without slash", key: KeyRepository, value: "octo", wantErr: `repository "octo" must be in owner/repo form`},
		{name: "repository with extra segment", key: KeyRepository, value: "a/b/c", wantErr: `repository "a/b/c" must be in owner/repo form`},
		{name: "run id", key: KeyRunID, value: "abc", wantErr: `run_id must be an integer, got "abc"`},
		{name: "retry delay", key: KeyRetryDelayMS, value: "1s", wantErr: `retry_delay_ms must be an integer, got "1s"`},
		{name: "signals", key: KeySignals, value: "traces,events", wantErr: `unknown signal "events", valid signals: traces, metrics, logs`},
		{name: "feature trace", key: KeyFeatureTrace, value: "yes", wantErr: `feature_trace must be a boolean (true or false), got "yes"`},
		{name: "feature logs", key: KeyFeatureLogs, value: "on", wantErr: `feature_logs must be a boolean (true or false), got "on"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v := New()
			v.Set(tt.key, tt.value)
			_, err := Load(v)
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestLoadFeatureFlagSpellings(t *testing.T) {
	t.Setenv("FEATURE_TRACE", "FALSE")
	t.Setenv("FEATURE_METRICS", "0")
	t.Setenv("FEATURE_LOGS", "T")

	cfg, err := Load(New())
	require.NoError(t, err)
	assert.False(t, cfg.Traces)
	assert.False(t, cfg.Metrics)
	assert.True(t, cfg.Logs)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
		is      error
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing repository", mutate: func(c *Config) { c.Repo = "" }, is: ErrRepositoryRequired},
		{name: "missing run id", mutate: func(c *Config) { c.RunID = 0 }, is: ErrRunIDRequired},
		{name: "negative run id", mutate: func(c *Config) { c.RunID = -1 }, wantErr: "workflow run id must be positive, got -1"},
		{name: "zero attempt", mutate: func(c *Config) { c.Attempt = 0 }, wantErr: "workflow run attempt must be at least 1, got 0"},
		{name: "missing token", mutate: func(c *Config) { c.Token = "" }, is: ErrTokenRequired},
		{name: "plain http api", mutate: func(c *Config) { c.APIURL = "http://api.github.com" }, wantErr: `GitHub API URL must use https, got "http://api.github.com"`},
		{name: "zero max attempts", mutate: func(c *Config) { c.MaxAttempts = 0 }, wantErr: "max attempts must be at least 1, got 0"},
		{name: "negative delay", mutate: func(c *Config) { c.RetryDelay = -time.Second }, wantErr: "retry delay must not be negative, got -1s"},
		{name: "bad protocol", mutate: func(c *Config) { c.Protocol = "http/json" }, wantErr: `unsupported protocol "http/json", supported: http/protobuf, grpc`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			switch {
			case tt.is != nil:
				assert.ErrorIs(t, err, tt.is)
			case tt.wantErr != "":
				assert.EqualError(t, err, tt.wantErr)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseSignals(t *testing.T) {
	t.Parallel()

	set, err := ParseSignals("traces,,metrics ")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"traces": true, "metrics": true}, set)
}
