package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"tenon/internal/store"
)

const workspaceColumns = `id, candidate_session_id, task_id, template_repo_full_name,
		repo_full_name, repo_id, default_branch, base_template_sha, codespace_url,
		latest_commit_sha, last_workflow_run_id, last_workflow_conclusion,
		last_test_summary, created_at, updated_at`

// GetWorkspace returns the workspace for (sessionID, taskID) or ErrNotFound.
func (s *Store) GetWorkspace(ctx context.Context, sessionID, taskID int64) (*store.Workspace, error) {
	query := "SELECT " + workspaceColumns + " FROM workspaces WHERE candidate_session_id = $1 AND task_id = $2"

	var w store.Workspace
	var summary sql.NullString
	err := s.db.QueryRowContext(ctx, query, sessionID, taskID).Scan(
		&w.ID, &w.CandidateSessionID, &w.TaskID, &w.TemplateRepoFullName,
		&w.RepoFullName, &w.RepoID, &w.DefaultBranch, &w.BaseTemplateSHA, &w.CodespaceURL,
		&w.LatestCommitSHA, &w.LastWorkflowRunID, &w.LastWorkflowConclusion,
		&summary, &w.CreatedAt, &w.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if summary.Valid {
		w.LastTestSummary = json.RawMessage(summary.String)
	}
	return &w, nil
}

// CreateWorkspace inserts a workspace row. The unique constraint on
// (candidate_session_id, task_id) guarantees idempotency under races; the
// caller re-reads on ErrDuplicate.
func (s *Store) CreateWorkspace(ctx context.Context, tx store.DBTransaction, w *store.Workspace) error {
	executor := s.getExecutor(tx)
	query := `
		INSERT INTO workspaces (
			candidate_session_id, task_id, template_repo_full_name, repo_full_name,
			repo_id, default_branch, base_template_sha, codespace_url
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	err := executor.QueryRowContext(ctx, query,
		w.CandidateSessionID, w.TaskID, w.TemplateRepoFullName, w.RepoFullName,
		w.RepoID, w.DefaultBranch, w.BaseTemplateSHA, w.CodespaceURL,
	).Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

// UpdateWorkspaceRunResult records the latest workflow run outcome.
func (s *Store) UpdateWorkspaceRunResult(ctx context.Context, tx store.DBTransaction, id int64, runID int64, conclusion string, commitSHA *string, summary json.RawMessage) error {
	executor := s.getExecutor(tx)
	var summaryText *string
	if summary != nil {
		text := string(summary)
		summaryText = &text
	}
	query := `
		UPDATE workspaces
		SET last_workflow_run_id = $1,
		    last_workflow_conclusion = $2,
		    latest_commit_sha = COALESCE($3, latest_commit_sha),
		    last_test_summary = $4,
		    updated_at = NOW()
		WHERE id = $5
	`
	_, err := executor.ExecContext(ctx, query, runID, conclusion, commitSHA, summaryText, id)
	return err
}

// UpdateWorkspaceCodespaceURL rewrites the advertised codespace URL.
func (s *Store) UpdateWorkspaceCodespaceURL(ctx context.Context, tx store.DBTransaction, id int64, codespaceURL string) error {
	executor := s.getExecutor(tx)
	query := "UPDATE workspaces SET codespace_url = $1, updated_at = NOW() WHERE id = $2"
	_, err := executor.ExecContext(ctx, query, codespaceURL, id)
	return err
}
