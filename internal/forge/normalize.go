package forge

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"tenon/pkg/api"
)

// Artifact contract. The workflow in every task template uploads exactly one
// archive with this name, containing one JSON payload file.
const (
	ArtifactName        = "tenon-test-results"
	artifactPayloadFile = "tenon-test-results.json"

	legacyArtifactSuffix = "-test-results"
)

// Diagnostic signals carried on RunResult. Non-fatal; clients may surface
// them but the run outcome stands on its own.
const (
	DiagnosticInvalidSchema   = "testResultsJsonInvalidSchema"
	DiagnosticLegacyArtifact  = "legacyArtifactName"
	DiagnosticArtifactMissing = "testResultsArtifactMissing"
)

// testResults is the artifact payload schema. passed, failed, total, stdout
// and stderr are required; timeout and status are optional.
type testResults struct {
	Passed  int    `json:"passed"`
	Failed  int    `json:"failed"`
	Total   int    `json:"total"`
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`
	Timeout bool   `json:"timeout,omitempty"`
	Status  string `json:"status,omitempty"`
}

// PickTestArtifact chooses the test-results artifact from a run's uploads.
// Only the exact name carries a payload; a legacy "<brand>-test-results"
// name is reported as a diagnostic and its payload is never read. Returns
// nil when no payload artifact is present.
func PickTestArtifact(artifacts []Artifact) (*Artifact, []string) {
	var diags []string
	for i := range artifacts {
		a := &artifacts[i]
		if a.Expired {
			continue
		}
		if a.Name == ArtifactName {
			return a, nil
		}
		if diags == nil && strings.HasSuffix(a.Name, legacyArtifactSuffix) {
			diags = []string{DiagnosticLegacyArtifact}
		}
	}
	return nil, diags
}

// ExtractTestResults returns the JSON payload file from an artifact archive.
func ExtractTestResults(zipBytes []byte) ([]byte, error) {
	reader, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return nil, fmt.Errorf("invalid artifact archive: %w", err)
	}
	for _, f := range reader.File {
		if f.Name != artifactPayloadFile {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
		}
		defer rc.Close()
		raw, err := io.ReadAll(io.LimitReader(rc, 8<<20))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
		}
		return raw, nil
	}
	return nil, fmt.Errorf("artifact archive does not contain %s", artifactPayloadFile)
}

// parseTestResults enforces the artifact schema strictly: passed, failed and
// total must be JSON integers and stdout/stderr must be strings. A schema
// violation returns nil so counts stay unset.
func parseTestResults(raw []byte) (*testResults, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, false
	}

	var tr testResults
	for _, req := range []struct {
		name string
		dst  any
	}{
		{"passed", &tr.Passed},
		{"failed", &tr.Failed},
		{"total", &tr.Total},
		{"stdout", &tr.Stdout},
		{"stderr", &tr.Stderr},
	} {
		v, ok := fields[req.name]
		if !ok {
			return nil, false
		}
		if err := json.Unmarshal(v, req.dst); err != nil {
			return nil, false
		}
	}
	if v, ok := fields["timeout"]; ok {
		if err := json.Unmarshal(v, &tr.Timeout); err != nil {
			return nil, false
		}
	}
	if v, ok := fields["status"]; ok {
		if err := json.Unmarshal(v, &tr.Status); err != nil {
			return nil, false
		}
	}
	return &tr, true
}

// Normalize converts a workflow run record plus its (optional) artifact
// payload into a stable RunResult.
func Normalize(run *WorkflowRun, artifactJSON []byte) api.RunResult {
	res := api.RunResult{
		RunID:      run.ID,
		Conclusion: run.Conclusion,
		HeadSHA:    run.HeadSHA,
		HTMLURL:    run.HTMLURL,
	}

	if run.Conclusion == "timed_out" {
		res.Status = "timeout"
		attachCounts(&res, artifactJSON)
		return res
	}

	settled := run.Status == "completed" || run.Conclusion != ""
	if !settled {
		switch run.Status {
		case "in_progress":
			res.Status = "running"
		default:
			res.Status = "queued"
		}
		return res
	}

	attachCounts(&res, artifactJSON)
	res.Status = deriveStatus(&res, run.Conclusion)
	return res
}

// attachCounts parses the artifact payload into res. Schema violations leave
// counts nil and add the invalid-schema diagnostic.
func attachCounts(res *api.RunResult, artifactJSON []byte) {
	if artifactJSON == nil {
		return
	}
	tr, ok := parseTestResults(artifactJSON)
	if !ok {
		res.Diagnostics = append(res.Diagnostics, DiagnosticInvalidSchema)
		return
	}
	passed, failed := tr.Passed, tr.Failed
	total := passed + failed
	res.Passed = &passed
	res.Failed = &failed
	res.Total = &total
	res.Stdout = tr.Stdout
	res.Stderr = tr.Stderr
	if tr.Timeout {
		res.Status = "timeout"
	} else if tr.Status != "" {
		res.Status = tr.Status
	}
}

// deriveStatus resolves the final status of a settled run when the artifact
// did not state one explicitly.
func deriveStatus(res *api.RunResult, conclusion string) string {
	if res.Status != "" {
		return res.Status
	}
	if res.Passed != nil && res.Failed != nil {
		if *res.Failed > 0 {
			return "failed"
		}
		if *res.Passed > 0 {
			return "passed"
		}
	}
	if res.Stderr != "" && res.Passed == nil && res.Failed == nil {
		return "failed"
	}
	if res.Passed == nil && res.Failed == nil {
		switch conclusion {
		case "failure", "cancelled", "startup_failure":
			return "failed"
		}
	}
	return "passed"
}
