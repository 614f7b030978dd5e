package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"tenon/internal/faults"
	"tenon/internal/store"
	"tenon/pkg/api"
)

// Claim resolves an invite token and starts the session on first use.
func (o *Orchestrator) Claim(ctx context.Context, token string) (*api.ClaimResponse, error) {
	if token == "" {
		return nil, faults.Validation("token", "must not be empty")
	}

	session, err := o.store.GetSessionByToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return nil, faults.NotAuthenticated("unknown invite token")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	now := o.now()
	if session.Expired(now) {
		return nil, faults.Forbidden("invite has expired")
	}

	if session.Status == store.SessionNotStarted {
		tx, err := o.store.BeginTx(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()
		if err := o.store.MarkSessionStarted(ctx, tx, session.ID, now); err != nil {
			return nil, fmt.Errorf("failed to start session: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit claim: %w", err)
		}
		session.Status = store.SessionInProgress
		at := now
		session.StartedAt = &at
		o.logger.Info("candidate session claimed", "session_id", session.ID)
	}

	tasks, completed, err := o.progressSnapshot(ctx, session)
	if err != nil {
		return nil, err
	}
	return &api.ClaimResponse{
		SessionID: session.ID,
		Status:    string(session.Status),
		StartedAt: session.StartedAt,
		Progress:  Summarize(tasks, completed),
	}, nil
}
