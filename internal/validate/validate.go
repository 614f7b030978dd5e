// Package validate contains the pure input predicates applied at every
// orchestrator entry point. No function here performs I/O.
package validate

import (
	"regexp"
	"strings"

	"tenon/internal/faults"
	"tenon/internal/store"
)

var (
	usernameRe = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9-]{0,37}[A-Za-z0-9])?$`)
	repoSideRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
	// ASCII-only on purpose; workspace repos live on a single forge whose
	// generated branches are ASCII.
	branchRe = regexp.MustCompile(`^[A-Za-z0-9._/-]{1,200}$`)
)

// GithubUsername checks the forge account name a workspace is shared with.
func GithubUsername(username string) error {
	if username == "" {
		return faults.Validation("githubUsername", "must not be empty")
	}
	if len(username) > 39 || !usernameRe.MatchString(username) {
		return faults.Validation("githubUsername", "must be 1-39 alphanumeric characters or hyphens, not starting or ending with a hyphen")
	}
	return nil
}

// RepoFullName checks an owner/repo pair and rejects path traversal.
func RepoFullName(fullName string) error {
	owner, name, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || name == "" {
		return faults.Validation("repoFullName", "must be in owner/repo form")
	}
	for _, side := range []string{owner, name} {
		if !repoSideRe.MatchString(side) || strings.Contains(side, "..") {
			return faults.Validation("repoFullName", "contains invalid characters")
		}
	}
	return nil
}

// BranchName checks a git branch reference.
func BranchName(branch string) error {
	if !branchRe.MatchString(branch) ||
		strings.Contains(branch, "..") ||
		strings.Contains(branch, "//") ||
		strings.HasPrefix(branch, "/") ||
		strings.HasSuffix(branch, "/") {
		return faults.Validation("branch", "is not a valid branch name")
	}
	return nil
}

// SubmissionPayload checks the submit body against the task type. Text-based
// tasks require non-blank content; code and debug tasks carry their work on
// the forge and accept an empty payload.
func SubmissionPayload(taskType store.TaskType, contentText string) error {
	switch taskType {
	case store.TaskTypeCode, store.TaskTypeDebug:
		return nil
	default:
		if strings.TrimSpace(contentText) == "" {
			return faults.Validation("contentText", "must not be blank for this task type")
		}
	}
	return nil
}
