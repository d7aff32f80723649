// Typed GitHub REST API client for the Actions endpoints
// Token authentication, pinned API version, Link-header pagination and structured errors
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// apiVersion pins the REST API behaviour regardless of GitHub's default.
const apiVersion = "2022-11-28"

// DefaultBaseURL is the public GitHub API root.
const DefaultBaseURL = "https://api.github.com"

// maxResponseBytes bounds how much of a response body is read into memory.
const maxResponseBytes = 10 << 20

// Config holds configuration for creating a Client.
type Config struct {
	// BaseURL is the API root. Defaults to DefaultBaseURL. GitHub
	// Enterprise Server installs use https://<host>/api/v3. Must use HTTPS.
	BaseURL string

	// Token is sent as a Bearer token. Required.
	Token string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client is a GitHub REST API client scoped to the endpoints needed to
// read a workflow run and its jobs.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient validates config and returns a Client.
func NewClient(config Config) (*Client, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	if !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("github: API client requires HTTPS (got %q)", baseURL)
	}
	if config.Token == "" {
		return nil, fmt.Errorf("github: no token configured")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    baseURL,
		token:      config.Token,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// doRaw executes an authenticated GET against an absolute URL and returns
// the response unparsed. The caller closes the body.
func (client *Client) doRaw(ctx context.Context, url string) (*http.Response, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("github: creating request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+client.token)
	request.Header.Set("Accept", "application/vnd.github+json")
	request.Header.Set("X-GitHub-Api-Version", apiVersion)

	response, err := client.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("github: GET %s: %w", url, err)
	}

	if remaining := response.Header.Get("X-RateLimit-Remaining"); remaining == "0" {
		client.logger.Warn("github rate limit exhausted",
			"url", url,
			"reset", response.Header.Get("X-RateLimit-Reset"),
		)
	}
	return response, nil
}

// get fetches path (relative to the base URL) and decodes the JSON body
// into result. Non-2xx responses become *APIError.
func (client *Client) get(ctx context.Context, path string, result any) error {
	response, err := client.doRaw(ctx, client.baseURL+path)
	if err != nil {
		return err
	}
	defer response.Body.Close() //nolint:errcheck // read-only body

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("github: reading response body: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return parseAPIError(response.StatusCode, body)
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("github: decoding response: %w", err)
	}
	return nil
}

// parseAPIError builds an *APIError from a status code and body. GitHub
// usually returns {"message": ..., "documentation_url": ...}; anything
// else is kept verbatim as the message.
func parseAPIError(statusCode int, body []byte) *APIError {
	apiError := &APIError{StatusCode: statusCode}

	var wire struct {
		Message          string `json:"message"`
		DocumentationURL string `json:"documentation_url"`
	}
	if json.Unmarshal(body, &wire) == nil && wire.Message != "" {
		apiError.Message = wire.Message
		apiError.DocumentationURL = wire.DocumentationURL
	} else {
		apiError.Message = strings.TrimSpace(string(body))
	}
	return apiError
}
