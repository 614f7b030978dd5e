// Package store contains the database layer for the tenon candidate portal.
package store

import (
	"encoding/json"
	"time"
)

// TaskType classifies a single day's activity inside a simulation.
type TaskType string

const (
	TaskTypeDesign        TaskType = "design"
	TaskTypeCode          TaskType = "code"
	TaskTypeDebug         TaskType = "debug"
	TaskTypeHandoff       TaskType = "handoff"
	TaskTypeDocumentation TaskType = "documentation"
)

// RequiresWorkspace reports whether the task type needs a forge workspace.
func (t TaskType) RequiresWorkspace() bool {
	return t == TaskTypeCode || t == TaskTypeDebug
}

// SessionStatus is the lifecycle state of a candidate session.
type SessionStatus string

const (
	SessionNotStarted SessionStatus = "not_started"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionExpired    SessionStatus = "expired"
)

// Simulation is a recruiter-owned ordered template of tasks.
type Simulation struct {
	ID          int64
	Name        string
	TemplateKey string
	CreatedBy   string
	Status      string
	CreatedAt   time.Time
}

// Task is one day's activity. TemplateRepoFullName is set for code and
// debug tasks and names the forge template the workspace is generated from.
type Task struct {
	ID                   int64
	SimulationID         int64
	DayIndex             int
	Type                 TaskType
	Title                string
	TemplateRepoFullName *string
	CreatedAt            time.Time
}

// CandidateSession is a candidate's instance of a simulation, identified by
// an invite token. InviteEmail is stored lowercased.
type CandidateSession struct {
	ID           int64
	SimulationID int64
	InviteEmail  string
	Token        string
	Status       SessionStatus
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// Expired reports whether the session's invite window has passed.
func (s *CandidateSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Workspace is the per-(session, task) repository generated from a template.
// The forge is authoritative for repo contents and runs; the row records the
// last observed run state.
type Workspace struct {
	ID                     int64
	CandidateSessionID     int64
	TaskID                 int64
	TemplateRepoFullName   string
	RepoFullName           string
	RepoID                 *int64
	DefaultBranch          *string
	BaseTemplateSHA        *string
	CodespaceURL           *string
	LatestCommitSHA        *string
	LastWorkflowRunID      *int64
	LastWorkflowConclusion *string
	LastTestSummary        json.RawMessage
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Submission is the at-most-once record of a candidate's answer to a task.
type Submission struct {
	ID                 int64
	CandidateSessionID int64
	TaskID             int64
	SubmittedAt        time.Time
	ContentText        *string
	CodeRepoPath       *string
	CommitSHA          *string
	WorkflowRunID      *int64
	DiffSummary        json.RawMessage
	TestsPassed        *int
	TestsFailed        *int
	TestOutput         *string
	LastRunAt          *time.Time
}
