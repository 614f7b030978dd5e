package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"tenon/internal/faults"
	"tenon/internal/forge"
	"tenon/internal/store"
	"tenon/internal/validate"
	"tenon/pkg/api"
)

// loadOwnedTask fetches a task and re-validates that it belongs to the
// session's simulation. Foreign tasks are reported as missing.
func (o *Orchestrator) loadOwnedTask(ctx context.Context, session *store.CandidateSession, taskID int64) (*store.Task, error) {
	task, err := o.store.GetTaskByID(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, faults.NotFound("task not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	if task.SimulationID != session.SimulationID {
		return nil, faults.NotFound("task not found")
	}
	return task, nil
}

// requireCurrentTask enforces strict day ordering: the target task must be
// the first unsubmitted task of the session.
func (o *Orchestrator) requireCurrentTask(ctx context.Context, session *store.CandidateSession, taskID int64) error {
	tasks, completed, err := o.progressSnapshot(ctx, session)
	if err != nil {
		return err
	}
	current := NextTask(tasks, completed)
	if current == nil {
		return faults.SimulationCompleted()
	}
	if current.ID != taskID {
		return faults.TaskOutOfOrder(fmt.Sprintf("current task is day %d", current.DayIndex))
	}
	return nil
}

// resolveBranch picks the effective branch for a run and validates it.
func resolveBranch(requested string, ws *store.Workspace) (string, error) {
	branch := requested
	if branch == "" && ws.DefaultBranch != nil {
		branch = *ws.DefaultBranch
	}
	if branch == "" {
		branch = "main"
	}
	if err := validate.BranchName(branch); err != nil {
		return "", err
	}
	return branch, nil
}

// InitWorkspace provisions or reuses the workspace for a code/debug task.
func (o *Orchestrator) InitWorkspace(ctx context.Context, session *store.CandidateSession, taskID int64, forgeUsername string) (*api.WorkspaceView, error) {
	if err := o.gate("init", session.ID); err != nil {
		return nil, err
	}
	task, err := o.loadOwnedTask(ctx, session, taskID)
	if err != nil {
		return nil, err
	}
	if err := o.requireCurrentTask(ctx, session, taskID); err != nil {
		return nil, err
	}
	if !task.Type.RequiresWorkspace() {
		return nil, faults.Validation("taskId", "workspaces exist only for code and debug tasks")
	}
	if forgeUsername != "" {
		if err := validate.GithubUsername(forgeUsername); err != nil {
			return nil, err
		}
	}

	workspace, err := o.EnsureWorkspace(ctx, session, task, forgeUsername)
	if err != nil {
		return nil, err
	}
	if workspace.RepoFullName == "" {
		return nil, faults.WorkspaceNotReady()
	}
	return workspaceView(workspace), nil
}

// WorkspaceStatus returns the workspace state for a task, enforcing the
// canonical codespace URL on read.
func (o *Orchestrator) WorkspaceStatus(ctx context.Context, session *store.CandidateSession, taskID int64) (*api.WorkspaceStatusView, error) {
	task, err := o.loadOwnedTask(ctx, session, taskID)
	if err != nil {
		return nil, err
	}
	workspace, err := o.store.GetWorkspace(ctx, session.ID, task.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, faults.NotFound("workspace not initialized for this task")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workspace: %w", err)
	}
	if err := o.canonicalizeCodespaceURL(ctx, workspace); err != nil {
		return nil, err
	}

	view := &api.WorkspaceStatusView{
		WorkspaceView:          *workspaceView(workspace),
		LatestCommitSHA:        workspace.LatestCommitSHA,
		LastWorkflowRunID:      workspace.LastWorkflowRunID,
		LastWorkflowConclusion: workspace.LastWorkflowConclusion,
		LastTestSummary:        workspace.LastTestSummary,
	}
	return view, nil
}

// RunTests dispatches the task workflow and polls it to completion.
func (o *Orchestrator) RunTests(ctx context.Context, session *store.CandidateSession, taskID int64, req api.RunTestsRequest) (*api.RunResult, error) {
	if err := o.gate("run", session.ID); err != nil {
		return nil, err
	}
	task, err := o.loadOwnedTask(ctx, session, taskID)
	if err != nil {
		return nil, err
	}
	if !task.Type.RequiresWorkspace() {
		return nil, faults.Validation("taskId", "tests run only for code and debug tasks")
	}
	workspace, err := o.store.GetWorkspace(ctx, session.ID, task.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, faults.WorkspaceNotInitialized()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workspace: %w", err)
	}
	branch, err := resolveBranch(req.Branch, workspace)
	if err != nil {
		return nil, err
	}
	return o.dispatchAndAwait(ctx, session.ID, workspace, branch, req.Inputs)
}

// FetchRunResult reads the state of an earlier dispatched run.
func (o *Orchestrator) FetchRunResult(ctx context.Context, session *store.CandidateSession, taskID, runID int64) (*api.RunResult, error) {
	if err := o.gate("poll", session.ID); err != nil {
		return nil, err
	}
	if err := o.gov.Throttle(sessionKey(session.ID, "poll", strconv.FormatInt(runID, 10)), pollThrottleInterval); err != nil {
		return nil, err
	}
	task, err := o.loadOwnedTask(ctx, session, taskID)
	if err != nil {
		return nil, err
	}
	workspace, err := o.store.GetWorkspace(ctx, session.ID, task.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, faults.WorkspaceNotInitialized()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workspace: %w", err)
	}

	release, err := o.gov.Acquire(sessionKey(session.ID, "fetch"), 1)
	if err != nil {
		return nil, err
	}
	defer release()

	run, err := o.forge.GetWorkflowRun(ctx, workspace.RepoFullName, runID)
	if err != nil {
		return nil, faults.FromForge(err)
	}
	return o.settleRun(ctx, workspace, run)
}

// dispatchAndAwait triggers the workflow and polls for the run it produced,
// bounded by the run timeout with geometric backoff between polls.
func (o *Orchestrator) dispatchAndAwait(ctx context.Context, sessionID int64, workspace *store.Workspace, branch string, inputs map[string]string) (*api.RunResult, error) {
	release, err := o.gov.Acquire(sessionKey(sessionID, "dispatch"), 1)
	if err != nil {
		return nil, err
	}
	defer release()

	dispatchedAt := o.now()
	if err := o.forge.DispatchWorkflow(ctx, workspace.RepoFullName, o.cfg.WorkflowFile, branch, inputs); err != nil {
		return nil, faults.FromForge(err)
	}
	o.ins.dispatches.Add(ctx, 1)
	o.logger.Info("workflow dispatched",
		"repo", workspace.RepoFullName, "branch", branch, "workflow", o.cfg.WorkflowFile)
	defer func() {
		o.ins.pollSeconds.Record(ctx, o.now().Sub(dispatchedAt).Seconds())
	}()

	// Forge run timestamps have second granularity; accept runs created up
	// to two seconds before the dispatch call returned.
	createdAfter := dispatchedAt.Add(-2 * time.Second)
	deadline := dispatchedAt.Add(o.cfg.RunTimeout)
	interval := o.cfg.PollInterval

	var latest *forge.WorkflowRun
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}

		runs, err := o.forge.ListWorkflowRuns(ctx, workspace.RepoFullName, o.cfg.WorkflowFile, branch, 10)
		if err != nil {
			return nil, faults.FromForge(err)
		}
		for i := range runs {
			run := &runs[i]
			if run.CreatedAt.Before(createdAfter) {
				continue
			}
			if latest == nil || run.CreatedAt.After(latest.CreatedAt) {
				latest = run
			}
		}
		if latest != nil && (latest.Status == "completed" || latest.Conclusion != "") {
			return o.settleRun(ctx, workspace, latest)
		}
		if o.now().After(deadline) {
			break
		}
		interval *= 2
		if interval > maxPollInterval {
			interval = maxPollInterval
		}
	}

	// Deadline reached with the run still in flight. Hand the client the
	// current state and a poll hint instead of failing the dispatch.
	res := api.RunResult{Status: "queued", PollAfterMs: pollAfterMs}
	if latest != nil {
		res = forge.Normalize(latest, nil)
		res.PollAfterMs = pollAfterMs
	}
	return &res, nil
}

// settleRun normalizes a run and, when it has settled, fetches its artifact
// and records the outcome on the workspace.
func (o *Orchestrator) settleRun(ctx context.Context, workspace *store.Workspace, run *forge.WorkflowRun) (*api.RunResult, error) {
	settled := run.Status == "completed" || run.Conclusion != ""
	if !settled {
		res := forge.Normalize(run, nil)
		res.PollAfterMs = pollAfterMs
		return &res, nil
	}

	raw, diagnostics := o.fetchArtifactPayload(ctx, workspace.RepoFullName, run.ID)
	res := forge.Normalize(run, raw)
	res.Diagnostics = append(res.Diagnostics, diagnostics...)

	if err := o.recordRunResult(ctx, workspace, run, &res, raw); err != nil {
		return nil, err
	}
	return &res, nil
}

// fetchArtifactPayload downloads the test-results payload for a run.
// Failures are non-fatal: the run outcome stands without counts.
func (o *Orchestrator) fetchArtifactPayload(ctx context.Context, repo string, runID int64) ([]byte, []string) {
	artifacts, err := o.forge.ListArtifacts(ctx, repo, runID)
	if err != nil {
		o.logger.Warn("failed to list run artifacts", "repo", repo, "run_id", runID, "error", err)
		return nil, nil
	}
	artifact, diagnostics := forge.PickTestArtifact(artifacts)
	if artifact == nil {
		return nil, append(diagnostics, forge.DiagnosticArtifactMissing)
	}
	zipBytes, err := o.forge.DownloadArtifactZip(ctx, repo, artifact.ID)
	if err != nil {
		o.logger.Warn("failed to download artifact", "repo", repo, "artifact_id", artifact.ID, "error", err)
		return nil, diagnostics
	}
	raw, err := forge.ExtractTestResults(zipBytes)
	if err != nil {
		o.logger.Warn("failed to extract test results", "repo", repo, "artifact_id", artifact.ID, "error", err)
		return nil, diagnostics
	}
	return raw, diagnostics
}

// recordRunResult persists the normalized outcome on the workspace row. The
// raw artifact payload is stored verbatim when present so schema violations
// remain inspectable.
func (o *Orchestrator) recordRunResult(ctx context.Context, workspace *store.Workspace, run *forge.WorkflowRun, res *api.RunResult, raw []byte) error {
	summary := json.RawMessage(raw)
	if summary == nil {
		marshaled, err := json.Marshal(res)
		if err != nil {
			return fmt.Errorf("failed to marshal run summary: %w", err)
		}
		summary = marshaled
	}
	var commitSHA *string
	if run.HeadSHA != "" {
		sha := run.HeadSHA
		commitSHA = &sha
	}

	tx, err := o.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	if err := o.store.UpdateWorkspaceRunResult(ctx, tx, workspace.ID, run.ID, run.Conclusion, commitSHA, summary); err != nil {
		return fmt.Errorf("failed to record run result: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run result: %w", err)
	}

	workspace.LastWorkflowRunID = &run.ID
	if run.Conclusion != "" {
		conclusion := run.Conclusion
		workspace.LastWorkflowConclusion = &conclusion
	}
	if commitSHA != nil {
		workspace.LatestCommitSHA = commitSHA
	}
	workspace.LastTestSummary = summary
	return nil
}

// Submit records the candidate's answer for their current task. Code and
// debug tasks re-run the workflow and capture the diff against the template
// base before the submission row is written.
func (o *Orchestrator) Submit(ctx context.Context, session *store.CandidateSession, taskID int64, req api.SubmitRequest) (*api.SubmitResponse, error) {
	if err := o.gate("submit", session.ID); err != nil {
		return nil, err
	}
	task, err := o.loadOwnedTask(ctx, session, taskID)
	if err != nil {
		return nil, err
	}

	duplicate, err := o.store.HasSubmission(ctx, session.ID, task.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check for duplicate submission: %w", err)
	}
	if duplicate {
		return nil, faults.SubmissionConflict()
	}
	if err := o.requireCurrentTask(ctx, session, taskID); err != nil {
		return nil, err
	}
	if err := validate.SubmissionPayload(task.Type, req.ContentText); err != nil {
		return nil, err
	}

	now := o.now()
	submission := &store.Submission{
		CandidateSessionID: session.ID,
		TaskID:             task.ID,
		SubmittedAt:        now,
	}
	if req.ContentText != "" {
		text := req.ContentText
		submission.ContentText = &text
	}

	var result *api.RunResult
	var diff *api.DiffSummary
	if task.Type.RequiresWorkspace() {
		workspace, err := o.store.GetWorkspace(ctx, session.ID, task.ID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, faults.WorkspaceNotInitialized()
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load workspace: %w", err)
		}
		branch, err := resolveBranch(req.Branch, workspace)
		if err != nil {
			return nil, err
		}

		result, err = o.dispatchAndAwait(ctx, session.ID, workspace, branch, nil)
		if err != nil {
			return nil, err
		}

		repoPath := workspace.RepoFullName
		submission.CodeRepoPath = &repoPath
		submission.TestsPassed = result.Passed
		submission.TestsFailed = result.Failed
		if result.RunID != 0 {
			runID := result.RunID
			submission.WorkflowRunID = &runID
		}
		if result.HeadSHA != "" {
			sha := result.HeadSHA
			submission.CommitSHA = &sha
		}
		if output := combinedOutput(result); output != "" {
			submission.TestOutput = &output
		}
		ranAt := now
		submission.LastRunAt = &ranAt

		diff = o.buildDiffSummary(ctx, workspace, branch, result.HeadSHA)
		if diff != nil {
			marshaled, err := json.Marshal(diff)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal diff summary: %w", err)
			}
			submission.DiffSummary = marshaled
		}
	}

	tx, err := o.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	if err := o.store.CreateSubmission(ctx, tx, submission); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, faults.SubmissionConflict()
		}
		return nil, fmt.Errorf("failed to persist submission: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit submission: %w", err)
	}
	o.ins.submissions.Add(ctx, 1)
	o.logger.Info("submission recorded",
		"session_id", session.ID, "task_id", task.ID, "day", task.DayIndex)

	progress, err := o.advanceIfComplete(ctx, session, now)
	if err != nil {
		// The submission is durable; the next progress read recomputes
		// the same completion state.
		o.logger.Warn("failed to advance session progress", "session_id", session.ID, "error", err)
	}

	return &api.SubmitResponse{
		Submission: api.SubmissionView{
			SubmissionID:  submission.ID,
			TaskID:        task.ID,
			SubmittedAt:   submission.SubmittedAt,
			CommitSHA:     submission.CommitSHA,
			WorkflowRunID: submission.WorkflowRunID,
			TestsPassed:   submission.TestsPassed,
			TestsFailed:   submission.TestsFailed,
			DiffSummary:   diff,
		},
		Progress:      progress,
		SessionStatus: string(session.Status),
	}, nil
}

// buildDiffSummary compares the run's head commit against the template base.
// Best-effort: a compare failure degrades the submission rather than
// rejecting it after a successful run.
func (o *Orchestrator) buildDiffSummary(ctx context.Context, workspace *store.Workspace, branch, headSHA string) *api.DiffSummary {
	if headSHA == "" {
		return nil
	}
	base := branch
	if workspace.BaseTemplateSHA != nil && *workspace.BaseTemplateSHA != "" {
		base = *workspace.BaseTemplateSHA
	}
	cmp, err := o.forge.GetCompare(ctx, workspace.RepoFullName, base, headSHA)
	if err != nil {
		o.logger.Warn("failed to build diff summary",
			"repo", workspace.RepoFullName, "base", base, "head", headSHA, "error", err)
		return nil
	}

	diff := &api.DiffSummary{
		AheadBy:      cmp.AheadBy,
		BehindBy:     cmp.BehindBy,
		TotalCommits: cmp.TotalCommits,
		Base:         base,
		Head:         headSHA,
		Files:        make([]api.DiffFile, 0, len(cmp.Files)),
	}
	for _, f := range cmp.Files {
		diff.Files = append(diff.Files, api.DiffFile{
			Filename:  f.Filename,
			Status:    f.Status,
			Additions: f.Additions,
			Deletions: f.Deletions,
			Changes:   f.Changes,
			Patch:     f.Patch,
		})
	}
	return diff
}

func combinedOutput(res *api.RunResult) string {
	switch {
	case res.Stdout != "" && res.Stderr != "":
		return res.Stdout + "\n" + res.Stderr
	case res.Stdout != "":
		return res.Stdout
	default:
		return res.Stderr
	}
}

func workspaceView(w *store.Workspace) *api.WorkspaceView {
	view := &api.WorkspaceView{
		WorkspaceID:  w.ID,
		RepoFullName: w.RepoFullName,
		RepoURL:      "https://github.com/" + w.RepoFullName,
		CodespaceURL: CanonicalCodespaceURL(w.RepoFullName),
	}
	if w.DefaultBranch != nil {
		view.DefaultBranch = *w.DefaultBranch
	}
	return view
}
