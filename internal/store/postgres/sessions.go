package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"tenon/internal/store"
)

const sessionColumns = "id, simulation_id, invite_email, token, status, started_at, completed_at, expires_at, created_at"

func scanSession(row *sql.Row) (*store.CandidateSession, error) {
	var s store.CandidateSession
	err := row.Scan(
		&s.ID, &s.SimulationID, &s.InviteEmail, &s.Token, &s.Status,
		&s.StartedAt, &s.CompletedAt, &s.ExpiresAt, &s.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSessionByToken returns the session owning an invite token.
func (s *Store) GetSessionByToken(ctx context.Context, token string) (*store.CandidateSession, error) {
	query := "SELECT " + sessionColumns + " FROM candidate_sessions WHERE token = $1"
	return scanSession(s.db.QueryRowContext(ctx, query, strings.TrimSpace(token)))
}

// GetSessionByID returns a session by its ID.
func (s *Store) GetSessionByID(ctx context.Context, id int64) (*store.CandidateSession, error) {
	query := "SELECT " + sessionColumns + " FROM candidate_sessions WHERE id = $1"
	return scanSession(s.db.QueryRowContext(ctx, query, id))
}

// MarkSessionStarted moves a not_started session to in_progress. startedAt
// is written once; a session already in progress is left untouched.
func (s *Store) MarkSessionStarted(ctx context.Context, tx store.DBTransaction, id int64, at time.Time) error {
	executor := s.getExecutor(tx)
	query := `
		UPDATE candidate_sessions
		SET status = $1, started_at = COALESCE(started_at, $2)
		WHERE id = $3 AND status = $4
	`
	_, err := executor.ExecContext(ctx, query, store.SessionInProgress, at, id, store.SessionNotStarted)
	return err
}

// MarkSessionCompleted moves a session to completed. completedAt is written
// only if still unset; a completed session never reverts.
func (s *Store) MarkSessionCompleted(ctx context.Context, tx store.DBTransaction, id int64, at time.Time) error {
	executor := s.getExecutor(tx)
	query := `
		UPDATE candidate_sessions
		SET status = $1, completed_at = COALESCE(completed_at, $2)
		WHERE id = $3 AND status != $1
	`
	_, err := executor.ExecContext(ctx, query, store.SessionCompleted, at, id)
	return err
}

// CountActiveSessions returns the number of in_progress sessions.
func (s *Store) CountActiveSessions(ctx context.Context) (int64, error) {
	var count int64
	query := "SELECT COUNT(*) FROM candidate_sessions WHERE status = $1"
	err := s.db.QueryRowContext(ctx, query, store.SessionInProgress).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// GetTaskByID returns a task by its ID.
func (s *Store) GetTaskByID(ctx context.Context, id int64) (*store.Task, error) {
	query := `
		SELECT id, simulation_id, day_index, type, title, template_repo_full_name, created_at
		FROM tasks WHERE id = $1
	`
	var t store.Task
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.SimulationID, &t.DayIndex, &t.Type, &t.Title,
		&t.TemplateRepoFullName, &t.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTasksBySimulation returns the fixed task sequence of a simulation,
// ordered by day_index with id as the tie-break.
func (s *Store) ListTasksBySimulation(ctx context.Context, simulationID int64) ([]store.Task, error) {
	query := `
		SELECT id, simulation_id, day_index, type, title, template_repo_full_name, created_at
		FROM tasks
		WHERE simulation_id = $1
		ORDER BY day_index ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, simulationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []store.Task
	for rows.Next() {
		var t store.Task
		if err := rows.Scan(
			&t.ID, &t.SimulationID, &t.DayIndex, &t.Type, &t.Title,
			&t.TemplateRepoFullName, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
