// Package forge is the typed adapter for the external git forge's REST API.
// It is responsible for transport and decoding only; semantic mapping of
// failures happens in the faults package.
package forge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Error represents a failed forge call. StatusCode is 0 when the request
// never reached the forge (DNS, connect, context cancellation).
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("forge error (%d): %s", e.StatusCode, e.Message)
}

// Retryable reports whether the transport considers the failure transient.
// StatusCode 0 means the request never completed, which is always worth a
// retry.
func (e *Error) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Repo is a forge repository.
type Repo struct {
	ID            int64  `json:"id"`
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
	HTMLURL       string `json:"html_url"`
	Private       bool   `json:"private"`
}

// Branch is a forge branch with its head commit.
type Branch struct {
	Name   string `json:"name"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// WorkflowRun is a single CI workflow run record.
type WorkflowRun struct {
	ID         int64     `json:"id"`
	Status     string    `json:"status"`
	Conclusion string    `json:"conclusion"`
	HeadSHA    string    `json:"head_sha"`
	HTMLURL    string    `json:"html_url"`
	CreatedAt  time.Time `json:"created_at"`
}

// CompareFile is one changed file in a two-ref comparison.
type CompareFile struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Changes   int    `json:"changes"`
	Patch     string `json:"patch,omitempty"`
}

// Compare is the result of comparing two refs.
type Compare struct {
	AheadBy      int           `json:"ahead_by"`
	BehindBy     int           `json:"behind_by"`
	TotalCommits int           `json:"total_commits"`
	Files        []CompareFile `json:"files"`
}

// Artifact is an uploaded workflow artifact.
type Artifact struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	SizeInBytes int64  `json:"size_in_bytes"`
	Expired     bool   `json:"expired"`
}

// API is the set of forge operations the orchestrator consumes. Client is
// the production implementation; tests substitute their own.
type API interface {
	GetRepo(ctx context.Context, fullName string) (*Repo, error)
	GetBranch(ctx context.Context, repo, branch string) (*Branch, error)
	GetFileContents(ctx context.Context, repo, path, ref string) ([]byte, error)
	GenerateFromTemplate(ctx context.Context, template, owner, name string, private bool) (*Repo, error)
	AddCollaborator(ctx context.Context, repo, username, permission string) error
	GetCompare(ctx context.Context, repo, base, head string) (*Compare, error)
	DispatchWorkflow(ctx context.Context, repo, workflowFile, ref string, inputs map[string]string) error
	ListWorkflowRuns(ctx context.Context, repo, workflowFile, branch string, perPage int) ([]WorkflowRun, error)
	GetWorkflowRun(ctx context.Context, repo string, runID int64) (*WorkflowRun, error)
	ListArtifacts(ctx context.Context, repo string, runID int64) ([]Artifact, error)
	DownloadArtifactZip(ctx context.Context, repo string, artifactID int64) ([]byte, error)
}

// Client talks to the forge over HTTP with a bearer token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a forge client. baseURL defaults to the public API host.
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		logger:  logger,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// doJSON performs a request and decodes a JSON response into out (when out
// is non-nil). Non-2xx responses become *Error with the upstream status.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{StatusCode: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.decodeError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to decode response: %v", err)}
	}
	return nil
}

func (c *Client) decodeError(resp *http.Response) error {
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := strings.TrimSpace(string(respBody))
	var decoded struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(respBody, &decoded); err == nil && decoded.Message != "" {
		msg = decoded.Message
	}
	c.logger.Warn("forge request failed", "status", resp.StatusCode, "message", msg)
	return &Error{StatusCode: resp.StatusCode, Message: msg}
}

// GetRepo fetches a repository by owner/name.
func (c *Client) GetRepo(ctx context.Context, fullName string) (*Repo, error) {
	var repo Repo
	if err := c.doJSON(ctx, http.MethodGet, "/repos/"+fullName, nil, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

// GetBranch fetches a branch and its head commit SHA.
func (c *Client) GetBranch(ctx context.Context, repo, branch string) (*Branch, error) {
	var b Branch
	path := fmt.Sprintf("/repos/%s/branches/%s", repo, url.PathEscape(branch))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// GetFileContents fetches a single file at ref and returns its raw bytes.
func (c *Client) GetFileContents(ctx context.Context, repo, path, ref string) ([]byte, error) {
	var contents struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	endpoint := fmt.Sprintf("/repos/%s/contents/%s", repo, path)
	if ref != "" {
		endpoint += "?ref=" + url.QueryEscape(ref)
	}
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &contents); err != nil {
		return nil, err
	}
	if contents.Encoding != "base64" {
		return []byte(contents.Content), nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(contents.Content, "\n", ""))
	if err != nil {
		return nil, &Error{StatusCode: 0, Message: fmt.Sprintf("invalid file encoding: %v", err)}
	}
	return raw, nil
}

// GenerateFromTemplate creates a new repository from a template repository.
// This is the one non-idempotent forge call in the workspace flow.
func (c *Client) GenerateFromTemplate(ctx context.Context, template, owner, name string, private bool) (*Repo, error) {
	req := struct {
		Owner   string `json:"owner"`
		Name    string `json:"name"`
		Private bool   `json:"private"`
	}{Owner: owner, Name: name, Private: private}

	var repo Repo
	if err := c.doJSON(ctx, http.MethodPost, "/repos/"+template+"/generate", req, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

// AddCollaborator invites username to repo. permission defaults to "push".
func (c *Client) AddCollaborator(ctx context.Context, repo, username, permission string) error {
	if permission == "" {
		permission = "push"
	}
	req := struct {
		Permission string `json:"permission"`
	}{Permission: permission}
	path := fmt.Sprintf("/repos/%s/collaborators/%s", repo, url.PathEscape(username))
	return c.doJSON(ctx, http.MethodPut, path, req, nil)
}

// GetCompare compares two refs and returns commit counts and changed files.
func (c *Client) GetCompare(ctx context.Context, repo, base, head string) (*Compare, error) {
	var cmp Compare
	path := fmt.Sprintf("/repos/%s/compare/%s...%s", repo, url.PathEscape(base), url.PathEscape(head))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &cmp); err != nil {
		return nil, err
	}
	return &cmp, nil
}

// DispatchWorkflow triggers a workflow_dispatch event on ref.
func (c *Client) DispatchWorkflow(ctx context.Context, repo, workflowFile, ref string, inputs map[string]string) error {
	req := struct {
		Ref    string            `json:"ref"`
		Inputs map[string]string `json:"inputs,omitempty"`
	}{Ref: ref, Inputs: inputs}
	path := fmt.Sprintf("/repos/%s/actions/workflows/%s/dispatches", repo, url.PathEscape(workflowFile))
	return c.doJSON(ctx, http.MethodPost, path, req, nil)
}

// ListWorkflowRuns lists runs of workflowFile on branch, newest first.
func (c *Client) ListWorkflowRuns(ctx context.Context, repo, workflowFile, branch string, perPage int) ([]WorkflowRun, error) {
	if perPage <= 0 {
		perPage = 10
	}
	var resp struct {
		TotalCount   int           `json:"total_count"`
		WorkflowRuns []WorkflowRun `json:"workflow_runs"`
	}
	path := fmt.Sprintf("/repos/%s/actions/workflows/%s/runs?branch=%s&per_page=%d",
		repo, url.PathEscape(workflowFile), url.QueryEscape(branch), perPage)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.WorkflowRuns, nil
}

// GetWorkflowRun fetches a single run by id.
func (c *Client) GetWorkflowRun(ctx context.Context, repo string, runID int64) (*WorkflowRun, error) {
	var run WorkflowRun
	path := fmt.Sprintf("/repos/%s/actions/runs/%d", repo, runID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListArtifacts lists the artifacts uploaded by a run.
func (c *Client) ListArtifacts(ctx context.Context, repo string, runID int64) ([]Artifact, error) {
	var resp struct {
		TotalCount int        `json:"total_count"`
		Artifacts  []Artifact `json:"artifacts"`
	}
	path := fmt.Sprintf("/repos/%s/actions/runs/%d/artifacts", repo, runID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Artifacts, nil
}

// DownloadArtifactZip downloads an artifact archive as raw zip bytes.
func (c *Client) DownloadArtifactZip(ctx context.Context, repo string, artifactID int64) ([]byte, error) {
	path := fmt.Sprintf("/repos/%s/actions/artifacts/%d/zip", repo, artifactID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{StatusCode: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, c.decodeError(resp)
	}
	// Test-result bundles are small; reads are capped at 32 MiB.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, &Error{StatusCode: 0, Message: fmt.Sprintf("failed to read artifact: %v", err)}
	}
	return raw, nil
}
