package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tenon/internal/faults"
	"tenon/internal/store"
	"tenon/internal/validate"
)

// CanonicalCodespaceURL is the sole advertised URL shape for opening a
// workspace. Any other form is rewritten on next observation.
func CanonicalCodespaceURL(repoFullName string) string {
	return "https://codespaces.new/" + repoFullName + "?quickstart=1"
}

// workspaceRepoName derives the deterministic name of a generated workspace
// repository. Determinism makes replays idempotent at the forge level.
func (o *Orchestrator) workspaceRepoName(sessionID, taskID int64) string {
	return strings.ToLower(fmt.Sprintf("%s%d-task%d", o.cfg.RepoPrefix, sessionID, taskID))
}

// EnsureWorkspace returns the existing workspace for (session, task) or
// provisions one from the task template. forgeUsername, when present, is
// invited as a collaborator; collaborator failures are swallowed because the
// workspace stays usable for CI without one.
func (o *Orchestrator) EnsureWorkspace(ctx context.Context, session *store.CandidateSession, task *store.Task, forgeUsername string) (*store.Workspace, error) {
	existing, err := o.store.GetWorkspace(ctx, session.ID, task.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to load workspace: %w", err)
	}
	if existing != nil {
		if forgeUsername != "" {
			o.addCollaborator(ctx, existing.RepoFullName, forgeUsername)
		}
		if err := o.canonicalizeCodespaceURL(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	template, err := o.resolveTemplate(task)
	if err != nil {
		return nil, err
	}

	// A missing template surfaces as not-found here rather than as an
	// opaque generate failure.
	if _, err := o.forge.GetRepo(ctx, template); err != nil {
		return nil, faults.FromForge(err)
	}

	owner := o.cfg.TemplateOwner
	if templateOwner, _, ok := strings.Cut(template, "/"); ok && templateOwner != "" {
		owner = templateOwner
	}

	name := o.workspaceRepoName(session.ID, task.ID)
	repo, err := o.forge.GenerateFromTemplate(ctx, template, owner, name, true)
	if err != nil {
		return nil, faults.FromForge(err)
	}

	workspace := &store.Workspace{
		CandidateSessionID:   session.ID,
		TaskID:               task.ID,
		TemplateRepoFullName: template,
		RepoFullName:         repo.FullName,
		RepoID:               &repo.ID,
	}
	if repo.DefaultBranch != "" {
		branch := repo.DefaultBranch
		workspace.DefaultBranch = &branch
	}

	// Base SHA is best-effort; the diff summary falls back to the branch
	// name when it is missing.
	if branch, err := o.forge.GetBranch(ctx, repo.FullName, repo.DefaultBranch); err == nil {
		sha := branch.Commit.SHA
		workspace.BaseTemplateSHA = &sha
	} else {
		o.logger.Warn("failed to read base template sha", "repo", repo.FullName, "error", err)
	}

	// A template without the test workflow still provisions; runs cannot
	// succeed until the workflow lands, so note it at init time.
	workflowPath := ".github/workflows/" + o.cfg.WorkflowFile
	if _, err := o.forge.GetFileContents(ctx, repo.FullName, workflowPath, repo.DefaultBranch); err != nil {
		o.logger.Warn("workspace repo is missing the test workflow",
			"repo", repo.FullName, "workflow", o.cfg.WorkflowFile, "error", err)
	}

	if forgeUsername != "" {
		o.addCollaborator(ctx, repo.FullName, forgeUsername)
	}

	canonical := CanonicalCodespaceURL(repo.FullName)
	workspace.CodespaceURL = &canonical

	tx, err := o.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := o.store.CreateWorkspace(ctx, tx, workspace); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Lost a provisioning race; the observed row wins.
			return o.store.GetWorkspace(ctx, session.ID, task.ID)
		}
		return nil, fmt.Errorf("failed to persist workspace: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit workspace: %w", err)
	}

	o.logger.Info("workspace provisioned",
		"session_id", session.ID, "task_id", task.ID, "repo", repo.FullName)
	return workspace, nil
}

// resolveTemplate maps a task's template reference to a repository full
// name. A reference without an owner segment is a catalog key.
func (o *Orchestrator) resolveTemplate(task *store.Task) (string, error) {
	if task.TemplateRepoFullName == nil || *task.TemplateRepoFullName == "" {
		return "", faults.Config(fmt.Sprintf("task %d has no template repository configured", task.ID))
	}
	ref := *task.TemplateRepoFullName
	if !strings.Contains(ref, "/") {
		return o.catalog.Resolve(ref)
	}
	if err := validate.RepoFullName(ref); err != nil {
		return "", err
	}
	return ref, nil
}

// addCollaborator invites username to repo, ignoring forge failures.
func (o *Orchestrator) addCollaborator(ctx context.Context, repoFullName, username string) {
	if err := o.forge.AddCollaborator(ctx, repoFullName, username, "push"); err != nil {
		o.logger.Warn("failed to add collaborator",
			"repo", repoFullName, "username", username, "error", err)
	}
}

// canonicalizeCodespaceURL rewrites a legacy codespace URL to the canonical
// shape and persists the correction.
func (o *Orchestrator) canonicalizeCodespaceURL(ctx context.Context, w *store.Workspace) error {
	if w.RepoFullName == "" {
		return nil
	}
	canonical := CanonicalCodespaceURL(w.RepoFullName)
	if w.CodespaceURL != nil && *w.CodespaceURL == canonical {
		return nil
	}

	tx, err := o.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	if err := o.store.UpdateWorkspaceCodespaceURL(ctx, tx, w.ID, canonical); err != nil {
		return fmt.Errorf("failed to rewrite codespace url: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit codespace url: %w", err)
	}
	w.CodespaceURL = &canonical
	return nil
}
