package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tenon/internal/store"
	"tenon/pkg/api"
)

// orderTasks sorts by day_index ascending with the smaller id winning ties,
// so progress is deterministic even for malformed simulations.
func orderTasks(tasks []store.Task) []store.Task {
	ordered := make([]store.Task, len(tasks))
	copy(ordered, tasks)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].DayIndex != ordered[j].DayIndex {
			return ordered[i].DayIndex < ordered[j].DayIndex
		}
		return ordered[i].ID < ordered[j].ID
	})
	return ordered
}

// NextTask returns the first task without a submission, or nil when every
// task is complete.
func NextTask(tasks []store.Task, completed map[int64]bool) *store.Task {
	for _, t := range orderTasks(tasks) {
		if !completed[t.ID] {
			task := t
			return &task
		}
	}
	return nil
}

// Summarize computes the completion counters for a task set.
func Summarize(tasks []store.Task, completed map[int64]bool) api.ProgressSummary {
	done := 0
	for _, t := range tasks {
		if completed[t.ID] {
			done++
		}
	}
	return api.ProgressSummary{
		Completed:  done,
		Total:      len(tasks),
		IsComplete: len(tasks) > 0 && done >= len(tasks),
	}
}

// progressSnapshot loads the session's task list and submitted-task set.
func (o *Orchestrator) progressSnapshot(ctx context.Context, session *store.CandidateSession) ([]store.Task, map[int64]bool, error) {
	tasks, err := o.store.ListTasksBySimulation(ctx, session.SimulationID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	submitted, err := o.store.ListSubmittedTaskIDs(ctx, session.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	completed := make(map[int64]bool, len(submitted))
	for _, id := range submitted {
		completed[id] = true
	}
	return tasks, completed, nil
}

// Progress returns the candidate's progress snapshot.
func (o *Orchestrator) Progress(ctx context.Context, session *store.CandidateSession) (*api.ProgressResponse, error) {
	tasks, completed, err := o.progressSnapshot(ctx, session)
	if err != nil {
		return nil, err
	}

	resp := &api.ProgressResponse{
		Progress:      Summarize(tasks, completed),
		SessionStatus: string(session.Status),
	}
	for _, t := range orderTasks(tasks) {
		resp.Tasks = append(resp.Tasks, api.TaskView{
			ID:        t.ID,
			DayIndex:  t.DayIndex,
			Type:      string(t.Type),
			Title:     t.Title,
			Submitted: completed[t.ID],
		})
	}
	if current := NextTask(tasks, completed); current != nil {
		resp.CurrentTaskID = &current.ID
	}
	return resp, nil
}

// advanceIfComplete transitions the session to completed once every task has
// a submission. This is the only path that writes the completed status, and
// it never reverses: a completed session stays completed. The transition
// runs in its own short transaction; losing it after a successful submit is
// recoverable because the next progress read recomputes the same result.
func (o *Orchestrator) advanceIfComplete(ctx context.Context, session *store.CandidateSession, now time.Time) (api.ProgressSummary, error) {
	tasks, completed, err := o.progressSnapshot(ctx, session)
	if err != nil {
		return api.ProgressSummary{}, err
	}
	summary := Summarize(tasks, completed)
	if !summary.IsComplete || session.Status == store.SessionCompleted {
		return summary, nil
	}

	tx, err := o.store.BeginTx(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := o.store.MarkSessionCompleted(ctx, tx, session.ID, now); err != nil {
		return summary, fmt.Errorf("failed to complete session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return summary, fmt.Errorf("failed to commit completion: %w", err)
	}

	session.Status = store.SessionCompleted
	if session.CompletedAt == nil {
		at := now
		session.CompletedAt = &at
	}
	o.logger.Info("candidate session completed", "session_id", session.ID, "tasks", summary.Total)
	return summary, nil
}
