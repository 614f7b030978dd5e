// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and the controller.
package api

import (
	"encoding/json"
	"time"
)

// ClaimRequest is the request body for claiming an invite token.
type ClaimRequest struct {
	Token string `json:"token"`
}

// ClaimResponse is returned after a successful claim.
type ClaimResponse struct {
	SessionID int64           `json:"session_id"`
	Status    string          `json:"status"`
	StartedAt *time.Time      `json:"started_at,omitempty"`
	Progress  ProgressSummary `json:"progress"`
}

// InitWorkspaceRequest is the request body for initializing a task workspace.
type InitWorkspaceRequest struct {
	GithubUsername string `json:"github_username,omitempty"`
}

// WorkspaceView is returned when a workspace is initialized or reused.
type WorkspaceView struct {
	WorkspaceID   int64  `json:"workspace_id"`
	RepoFullName  string `json:"repo_full_name"`
	RepoURL       string `json:"repo_url"`
	CodespaceURL  string `json:"codespace_url"`
	DefaultBranch string `json:"default_branch,omitempty"`
}

// WorkspaceStatusView extends WorkspaceView with the last observed run state.
type WorkspaceStatusView struct {
	WorkspaceView
	LatestCommitSHA        *string         `json:"latest_commit_sha,omitempty"`
	LastWorkflowRunID      *int64          `json:"last_workflow_run_id,omitempty"`
	LastWorkflowConclusion *string         `json:"last_workflow_conclusion,omitempty"`
	LastTestSummary        json.RawMessage `json:"last_test_summary,omitempty"`
}

// RunTestsRequest is the request body for dispatching the task test workflow.
type RunTestsRequest struct {
	Branch string            `json:"branch,omitempty"`
	Inputs map[string]string `json:"inputs,omitempty"`
}

// RunResult is the normalized view of a single workflow run outcome.
// Status is one of "queued", "running", "passed", "failed" or "timeout".
type RunResult struct {
	Status      string   `json:"status"`
	RunID       int64    `json:"run_id,omitempty"`
	Conclusion  string   `json:"conclusion,omitempty"`
	Passed      *int     `json:"passed,omitempty"`
	Failed      *int     `json:"failed,omitempty"`
	Total       *int     `json:"total,omitempty"`
	Stdout      string   `json:"stdout,omitempty"`
	Stderr      string   `json:"stderr,omitempty"`
	HeadSHA     string   `json:"head_sha,omitempty"`
	HTMLURL     string   `json:"html_url,omitempty"`
	PollAfterMs int64    `json:"poll_after_ms,omitempty"`
	Diagnostics []string `json:"diagnostics,omitempty"`
}

// DiffFile is a single changed file inside a DiffSummary.
type DiffFile struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Changes   int    `json:"changes"`
	Patch     string `json:"patch,omitempty"`
}

// DiffSummary describes the candidate's changes relative to the template base.
type DiffSummary struct {
	AheadBy      int        `json:"ahead_by"`
	BehindBy     int        `json:"behind_by"`
	TotalCommits int        `json:"total_commits"`
	Base         string     `json:"base"`
	Head         string     `json:"head"`
	Files        []DiffFile `json:"files"`
}

// SubmitRequest is the request body for submitting a task.
// Text tasks carry ContentText; code and debug tasks may send an empty body.
type SubmitRequest struct {
	ContentText string `json:"content_text,omitempty"`
	Branch      string `json:"branch,omitempty"`
}

// SubmissionView represents a persisted submission in API responses.
type SubmissionView struct {
	SubmissionID  int64        `json:"submission_id"`
	TaskID        int64        `json:"task_id"`
	SubmittedAt   time.Time    `json:"submitted_at"`
	CommitSHA     *string      `json:"commit_sha,omitempty"`
	WorkflowRunID *int64       `json:"workflow_run_id,omitempty"`
	TestsPassed   *int         `json:"tests_passed,omitempty"`
	TestsFailed   *int         `json:"tests_failed,omitempty"`
	DiffSummary   *DiffSummary `json:"diff_summary,omitempty"`
}

// SubmitResponse is the response body after a successful submit.
type SubmitResponse struct {
	Submission    SubmissionView  `json:"submission"`
	Progress      ProgressSummary `json:"progress"`
	SessionStatus string          `json:"session_status"`
}

// ProgressSummary is the candidate's completion state across all tasks.
type ProgressSummary struct {
	Completed  int  `json:"completed"`
	Total      int  `json:"total"`
	IsComplete bool `json:"is_complete"`
}

// TaskView is a single task in a progress snapshot.
type TaskView struct {
	ID        int64  `json:"id"`
	DayIndex  int    `json:"day_index"`
	Type      string `json:"type"`
	Title     string `json:"title,omitempty"`
	Submitted bool   `json:"submitted"`
}

// ProgressResponse is the response body for progress queries.
type ProgressResponse struct {
	Tasks         []TaskView      `json:"tasks"`
	CurrentTaskID *int64          `json:"current_task_id,omitempty"`
	Progress      ProgressSummary `json:"progress"`
	SessionStatus string          `json:"session_status"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error             string `json:"error"`
	Code              string `json:"code,omitempty"`
	Details           string `json:"details,omitempty"`
	Retryable         bool   `json:"retryable,omitempty"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}
