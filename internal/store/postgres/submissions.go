package postgres

import (
	"context"

	"tenon/internal/store"
)

// HasSubmission reports whether a submission exists for (sessionID, taskID).
func (s *Store) HasSubmission(ctx context.Context, sessionID, taskID int64) (bool, error) {
	query := "SELECT EXISTS(SELECT 1 FROM submissions WHERE candidate_session_id = $1 AND task_id = $2)"
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, sessionID, taskID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// CreateSubmission inserts a submission row. The unique constraint on
// (candidate_session_id, task_id) enforces at-most-once; a violation is
// reported as ErrDuplicate for the orchestrator to promote to a conflict.
func (s *Store) CreateSubmission(ctx context.Context, tx store.DBTransaction, sub *store.Submission) error {
	executor := s.getExecutor(tx)
	var diffText *string
	if sub.DiffSummary != nil {
		text := string(sub.DiffSummary)
		diffText = &text
	}
	query := `
		INSERT INTO submissions (
			candidate_session_id, task_id, submitted_at, content_text, code_repo_path,
			commit_sha, workflow_run_id, diff_summary, tests_passed, tests_failed,
			test_output, last_run_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`
	err := executor.QueryRowContext(ctx, query,
		sub.CandidateSessionID, sub.TaskID, sub.SubmittedAt, sub.ContentText, sub.CodeRepoPath,
		sub.CommitSHA, sub.WorkflowRunID, diffText, sub.TestsPassed, sub.TestsFailed,
		sub.TestOutput, sub.LastRunAt,
	).Scan(&sub.ID)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

// ListSubmittedTaskIDs returns the ids of all tasks the session has submitted.
func (s *Store) ListSubmittedTaskIDs(ctx context.Context, sessionID int64) ([]int64, error) {
	query := "SELECT task_id FROM submissions WHERE candidate_session_id = $1"
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
