package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tenon/pkg/api"
)

// PortalClient handles API calls to the tenon controller.
type PortalClient struct {
	BaseURL    string
	Session    string
	HTTPClient *http.Client
}

// NewPortalClient creates a new client with the given base URL and session token.
func NewPortalClient(baseURL, session string) *PortalClient {
	return &PortalClient{
		BaseURL: baseURL,
		Session: session,
		HTTPClient: &http.Client{
			// Test runs block until the workflow settles.
			Timeout: 5 * time.Minute,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Retryable  bool
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error (%d %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// do performs a request with the session header and decodes the response
// into out. Error bodies are parsed into *APIError.
func (c *PortalClient) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.Session != "" {
		httpReq.Header.Add("X-Candidate-Session", c.Session)
	}
	httpReq.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
		var errResp api.ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Code != "" {
			apiErr.Code = errResp.Code
			apiErr.Message = errResp.Error
			apiErr.Retryable = errResp.Retryable
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// Claim sends POST /candidate/claim to start or resume a session.
func (c *PortalClient) Claim(token string) (*api.ClaimResponse, error) {
	var result api.ClaimResponse
	if err := c.do(http.MethodPost, "/candidate/claim", api.ClaimRequest{Token: token}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Progress sends GET /candidate/progress.
func (c *PortalClient) Progress() (*api.ProgressResponse, error) {
	var result api.ProgressResponse
	if err := c.do(http.MethodGet, "/candidate/progress", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// InitWorkspace sends POST /candidate/tasks/{id}/workspace.
func (c *PortalClient) InitWorkspace(taskID int64, githubUser string) (*api.WorkspaceView, error) {
	var result api.WorkspaceView
	path := fmt.Sprintf("/candidate/tasks/%d/workspace", taskID)
	if err := c.do(http.MethodPost, path, api.InitWorkspaceRequest{GithubUsername: githubUser}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// WorkspaceStatus sends GET /candidate/tasks/{id}/workspace.
func (c *PortalClient) WorkspaceStatus(taskID int64) (*api.WorkspaceStatusView, error) {
	var result api.WorkspaceStatusView
	path := fmt.Sprintf("/candidate/tasks/%d/workspace", taskID)
	if err := c.do(http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RunTests sends POST /candidate/tasks/{id}/tests/run.
func (c *PortalClient) RunTests(taskID int64, req api.RunTestsRequest) (*api.RunResult, error) {
	var result api.RunResult
	path := fmt.Sprintf("/candidate/tasks/%d/tests/run", taskID)
	if err := c.do(http.MethodPost, path, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// FetchRunResult sends GET /candidate/tasks/{id}/tests/runs/{runId}.
func (c *PortalClient) FetchRunResult(taskID, runID int64) (*api.RunResult, error) {
	var result api.RunResult
	path := fmt.Sprintf("/candidate/tasks/%d/tests/runs/%d", taskID, runID)
	if err := c.do(http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Submit sends POST /candidate/tasks/{id}/submission.
func (c *PortalClient) Submit(taskID int64, req api.SubmitRequest) (*api.SubmitResponse, error) {
	var result api.SubmitResponse
	path := fmt.Sprintf("/candidate/tasks/%d/submission", taskID)
	if err := c.do(http.MethodPost, path, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
