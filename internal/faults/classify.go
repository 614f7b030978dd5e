package faults

import (
	"errors"
	"net/http"

	"tenon/internal/forge"
)

// FromForge maps a failure raised inside a forge call scope to the stable
// error taxonomy. Already-classified faults pass through unchanged. A
// non-forge error (the transport never produced a status) becomes
// GITHUB_UNAVAILABLE with the retryable hint set, so no forge-scope failure
// ever escapes unclassified; a classified 5xx is not retryable.
func FromForge(err error) *Fault {
	if f, ok := As(err); ok {
		return f
	}

	var fe *forge.Error
	if !errors.As(err, &fe) {
		return &Fault{
			Code:      CodeGithubUnavailable,
			Status:    http.StatusBadGateway,
			Detail:    "git provider request failed",
			Retryable: true,
		}
	}

	f := &Fault{Status: http.StatusBadGateway, Detail: fe.Message}
	switch {
	case fe.StatusCode == http.StatusUnauthorized:
		f.Code = CodeGithubTokenInvalid
		f.Detail = "git provider credentials rejected"
	case fe.StatusCode == http.StatusForbidden:
		f.Code = CodeGithubPermissionDenied
	case fe.StatusCode == http.StatusNotFound:
		f.Code = CodeGithubNotFound
	case fe.StatusCode == http.StatusTooManyRequests:
		f.Code = CodeGithubRateLimited
		f.Retryable = true
	default:
		f.Code = CodeGithubUnavailable
	}
	if f.Detail == "" {
		f.Detail = "git provider request failed"
	}
	return f
}
