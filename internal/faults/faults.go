// Package faults defines the stable error taxonomy shared by the
// orchestrator and the HTTP layer. Every failure carries a stable code, an
// HTTP status, and a retryable hint clients use to drive backoff.
package faults

import (
	"errors"
	"fmt"
	"strings"
)

// Stable error codes. These are part of the API contract; do not rename.
const (
	CodeValidation             = "VALIDATION_ERROR"
	CodeInvalidTemplateKey     = "INVALID_TEMPLATE_KEY"
	CodeTaskOutOfOrder         = "TASK_OUT_OF_ORDER"
	CodeSimulationCompleted    = "SIMULATION_COMPLETED"
	CodeSubmissionConflict     = "SUBMISSION_CONFLICT"
	CodeWorkspaceNotInit       = "WORKSPACE_NOT_INITIALIZED"
	CodeWorkspaceNotReady      = "WORKSPACE_NOT_READY"
	CodeSessionHeaderRequired  = "CANDIDATE_SESSION_HEADER_REQUIRED"
	CodeNotAuthenticated       = "NOT_AUTHENTICATED"
	CodeForbidden              = "FORBIDDEN"
	CodeNotFound               = "NOT_FOUND"
	CodeRateLimited            = "RATE_LIMITED"
	CodeConfig                 = "CONFIG_ERROR"
	CodeInternal               = "INTERNAL_ERROR"
	CodeGithubTokenInvalid     = "GITHUB_TOKEN_INVALID"
	CodeGithubPermissionDenied = "GITHUB_PERMISSION_DENIED"
	CodeGithubNotFound         = "GITHUB_NOT_FOUND"
	CodeGithubRateLimited      = "GITHUB_RATE_LIMITED"
	CodeGithubUnavailable      = "GITHUB_UNAVAILABLE"
)

// Fault is the tagged error type used across the orchestrator. Only the
// transport layer translates it to an HTTP response.
type Fault struct {
	Code              string
	Status            int
	Detail            string
	Field             string
	Retryable         bool
	RetryAfterSeconds int
}

func (f *Fault) Error() string {
	if f.Field != "" {
		return fmt.Sprintf("%s: %s: %s", f.Code, f.Field, f.Detail)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Detail)
}

// As unwraps err into a *Fault if one is anywhere in its chain.
func As(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// Validation reports a rejected input field with HTTP 422 semantics.
func Validation(field, reason string) *Fault {
	return &Fault{Code: CodeValidation, Status: 422, Field: field, Detail: reason}
}

// InvalidTemplateKey reports an unknown template key. The sorted list of
// known keys is surfaced so recruiters can self-correct.
func InvalidTemplateKey(key string, known []string) *Fault {
	return &Fault{
		Code:   CodeInvalidTemplateKey,
		Status: 422,
		Field:  "templateKey",
		Detail: fmt.Sprintf("unknown template key %q, expected one of: %s", key, strings.Join(known, ", ")),
	}
}

// NotFound reports a missing entity.
func NotFound(detail string) *Fault {
	return &Fault{Code: CodeNotFound, Status: 404, Detail: detail}
}

// Forbidden reports an ownership or permission failure.
func Forbidden(detail string) *Fault {
	return &Fault{Code: CodeForbidden, Status: 403, Detail: detail}
}

// NotAuthenticated reports an invalid or unknown candidate session token.
func NotAuthenticated(detail string) *Fault {
	return &Fault{Code: CodeNotAuthenticated, Status: 401, Detail: detail}
}

// SessionHeaderRequired reports a missing candidate session header.
func SessionHeaderRequired() *Fault {
	return &Fault{Code: CodeSessionHeaderRequired, Status: 401, Detail: "candidate session header is required"}
}

// TaskOutOfOrder reports a submit or init targeting a task that is not the
// candidate's current task.
func TaskOutOfOrder(detail string) *Fault {
	return &Fault{Code: CodeTaskOutOfOrder, Status: 400, Detail: detail}
}

// SimulationCompleted reports an operation against an already-finished session.
func SimulationCompleted() *Fault {
	return &Fault{Code: CodeSimulationCompleted, Status: 409, Detail: "simulation already completed"}
}

// SubmissionConflict reports a second submission for the same (session, task).
func SubmissionConflict() *Fault {
	return &Fault{Code: CodeSubmissionConflict, Status: 409, Detail: "task already submitted"}
}

// WorkspaceNotInitialized reports an operation that requires an existing
// workspace. The client should call init first and retry.
func WorkspaceNotInitialized() *Fault {
	return &Fault{Code: CodeWorkspaceNotInit, Status: 400, Detail: "workspace not initialized for this task", Retryable: true}
}

// WorkspaceNotReady reports a workspace whose repository has not settled yet.
func WorkspaceNotReady() *Fault {
	return &Fault{Code: CodeWorkspaceNotReady, Status: 409, Detail: "workspace repository is not ready yet", Retryable: true}
}

// RateLimited reports an exhausted budget. retryAfterSeconds is surfaced as
// the Retry-After header.
func RateLimited(retryAfterSeconds int) *Fault {
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	return &Fault{
		Code:              CodeRateLimited,
		Status:            429,
		Detail:            "rate limit exceeded",
		Retryable:         true,
		RetryAfterSeconds: retryAfterSeconds,
	}
}

// Config reports a misconfigured simulation or task, e.g. a code task with
// no template repository.
func Config(detail string) *Fault {
	return &Fault{Code: CodeConfig, Status: 500, Detail: detail}
}

// Internal reports an unclassified server-side failure.
func Internal(detail string) *Fault {
	return &Fault{Code: CodeInternal, Status: 500, Detail: detail}
}
