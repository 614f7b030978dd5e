package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// Sentinel errors returned by store implementations. ErrDuplicate maps the
// unique constraints on (candidate_session_id, task_id).
var (
	ErrNotFound  = errors.New("store: not found")
	ErrDuplicate = errors.New("store: duplicate row")
)

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx.
// This allows passing either a connection pool or an active transaction to
// the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Tx is an active database transaction.
type Tx interface {
	DBTransaction
	Commit() error
	Rollback() error
}

// SessionStore handles candidate session lookup and lifecycle transitions.
type SessionStore interface {
	// GetSessionByToken returns the session owning an invite token.
	GetSessionByToken(ctx context.Context, token string) (*CandidateSession, error)

	// GetSessionByID returns a session by its ID.
	GetSessionByID(ctx context.Context, id int64) (*CandidateSession, error)

	// MarkSessionStarted moves a not_started session to in_progress and
	// records startedAt once.
	MarkSessionStarted(ctx context.Context, tx DBTransaction, id int64, at time.Time) error

	// MarkSessionCompleted moves a session to completed and records
	// completedAt only if it is still unset.
	MarkSessionCompleted(ctx context.Context, tx DBTransaction, id int64, at time.Time) error

	// CountActiveSessions returns the number of in_progress sessions.
	CountActiveSessions(ctx context.Context) (int64, error)
}

// TaskStore reads the fixed task sequence of a simulation.
type TaskStore interface {
	// GetTaskByID returns a task by its ID.
	GetTaskByID(ctx context.Context, id int64) (*Task, error)

	// ListTasksBySimulation returns all tasks of a simulation ordered by
	// day_index ascending with id as the tie-break.
	ListTasksBySimulation(ctx context.Context, simulationID int64) ([]Task, error)
}

// WorkspaceStore persists workspace rows keyed by (session, task).
type WorkspaceStore interface {
	// GetWorkspace returns the workspace for (sessionID, taskID) or
	// ErrNotFound.
	GetWorkspace(ctx context.Context, sessionID, taskID int64) (*Workspace, error)

	// CreateWorkspace inserts a workspace row, filling ID and CreatedAt.
	// Returns ErrDuplicate when the (session, task) row already exists.
	CreateWorkspace(ctx context.Context, tx DBTransaction, w *Workspace) error

	// UpdateWorkspaceRunResult records the outcome of the latest workflow run.
	UpdateWorkspaceRunResult(ctx context.Context, tx DBTransaction, id int64, runID int64, conclusion string, commitSHA *string, summary json.RawMessage) error

	// UpdateWorkspaceCodespaceURL rewrites the advertised codespace URL.
	UpdateWorkspaceCodespaceURL(ctx context.Context, tx DBTransaction, id int64, codespaceURL string) error
}

// SubmissionStore persists at-most-once submissions per (session, task).
type SubmissionStore interface {
	// HasSubmission reports whether a submission already exists.
	HasSubmission(ctx context.Context, sessionID, taskID int64) (bool, error)

	// CreateSubmission inserts a submission row, filling ID. Returns
	// ErrDuplicate when the (session, task) row already exists.
	CreateSubmission(ctx context.Context, tx DBTransaction, s *Submission) error

	// ListSubmittedTaskIDs returns the task ids the session has submitted.
	ListSubmittedTaskIDs(ctx context.Context, sessionID int64) ([]int64, error)
}
