package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// GitHubAPIURL is the public GitHub REST endpoint.
const GitHubAPIURL = "https://api.github.com"

// Job is a request to start the hand-off for one work item remotely.
type Job struct {
	TaskID string `json:"task_id"`
	Mode   string `json:"mode,omitempty"`
}

// Dispatcher starts a remote job.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
}

// UpstreamError is returned when the job runner answers with a non-2xx status.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}

// GitHubConfig configures workflow_dispatch forwarding.
type GitHubConfig struct {
	Token    string `yaml:"token"`
	Owner    string `yaml:"owner"`
	Repo     string `yaml:"repo"`
	Workflow string `yaml:"workflow"`
	Ref      string `yaml:"ref"`
	BaseURL  string `yaml:"base_url,omitempty"`
}

// DefaultGitHubConfig returns a config targeting the main branch.
func DefaultGitHubConfig() *GitHubConfig {
	return &GitHubConfig{
		Workflow: "qa-handoff.yml",
		Ref:      "main",
		BaseURL:  GitHubAPIURL,
	}
}

// GitHubDispatcher triggers a GitHub Actions workflow_dispatch event.
type GitHubDispatcher struct {
	cfg        GitHubConfig
	httpClient *http.Client
}

// NewGitHubDispatcher validates cfg and returns a dispatcher.
func NewGitHubDispatcher(cfg GitHubConfig, httpClient *http.Client) (*GitHubDispatcher, error) {
	if cfg.Token == "" {
		return nil, errors.New("github token is required")
	}
	if cfg.Owner == "" || cfg.Repo == "" || cfg.Workflow == "" {
		return nil, errors.New("github owner, repo and workflow are required")
	}
	if cfg.Ref == "" {
		cfg.Ref = "main"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = GitHubAPIURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &GitHubDispatcher{cfg: cfg, httpClient: httpClient}, nil
}

type dispatchRequest struct {
	Ref    string            `json:"ref"`
	Inputs map[string]string `json:"inputs"`
}

// Dispatch posts the workflow_dispatch event. GitHub answers 204 on success.
func (d *GitHubDispatcher) Dispatch(ctx context.Context, job Job) error {
	inputs := map[string]string{"task_id": job.TaskID}
	if job.Mode != "" {
		inputs["mode"] = job.Mode
	}
	body, err := json.Marshal(dispatchRequest{Ref: d.cfg.Ref, Inputs: inputs})
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/actions/workflows/%s/dispatches",
		d.cfg.BaseURL, url.PathEscape(d.cfg.Owner), url.PathEscape(d.cfg.Repo), url.PathEscape(d.cfg.Workflow))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+d.cfg.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("dispatch request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &UpstreamError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	return nil
}
