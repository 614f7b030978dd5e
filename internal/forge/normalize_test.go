package forge

import (
	"archive/zip"
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zipWithFile(t *testing.T, name, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func settledRun(conclusion string) *WorkflowRun {
	return &WorkflowRun{
		ID:         314,
		Status:     "completed",
		Conclusion: conclusion,
		HeadSHA:    "abc123",
		HTMLURL:    "https://github.com/tenon-hq/candidate-1-task2/actions/runs/314",
		CreatedAt:  time.Now(),
	}
}

func TestPickTestArtifact(t *testing.T) {
	exact := Artifact{ID: 1, Name: ArtifactName}
	legacy := Artifact{ID: 2, Name: "backend-go-test-results"}
	noise := Artifact{ID: 3, Name: "coverage"}

	// Exact name wins regardless of order.
	got, diags := PickTestArtifact([]Artifact{noise, legacy, exact})
	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.ID)
	assert.Empty(t, diags)

	// Legacy names are diagnostic only; their payload is never used.
	got, diags = PickTestArtifact([]Artifact{noise, legacy})
	assert.Nil(t, got)
	assert.Equal(t, []string{DiagnosticLegacyArtifact}, diags)

	// Expired artifacts are skipped.
	got, _ = PickTestArtifact([]Artifact{{ID: 4, Name: ArtifactName, Expired: true}})
	assert.Nil(t, got)

	got, _ = PickTestArtifact([]Artifact{noise})
	assert.Nil(t, got)
}

func TestExtractTestResults(t *testing.T) {
	payload := `{"passed":3,"failed":1,"total":4,"stdout":"ok","stderr":""}`
	raw, err := ExtractTestResults(zipWithFile(t, "tenon-test-results.json", payload))
	require.NoError(t, err)
	assert.JSONEq(t, payload, string(raw))

	_, err = ExtractTestResults(zipWithFile(t, "something-else.json", payload))
	assert.Error(t, err)

	_, err = ExtractTestResults([]byte("not a zip"))
	assert.Error(t, err)
}

func TestNormalize_UnsettledRuns(t *testing.T) {
	queued := Normalize(&WorkflowRun{ID: 1, Status: "queued"}, nil)
	assert.Equal(t, "queued", queued.Status)

	running := Normalize(&WorkflowRun{ID: 1, Status: "in_progress"}, nil)
	assert.Equal(t, "running", running.Status)
	assert.Nil(t, running.Passed)
}

func TestNormalize_SettledWithArtifact(t *testing.T) {
	res := Normalize(settledRun("success"), []byte(`{"passed":5,"failed":0,"total":5,"stdout":"all green","stderr":""}`))
	assert.Equal(t, "passed", res.Status)
	require.NotNil(t, res.Passed)
	assert.Equal(t, 5, *res.Passed)
	assert.Equal(t, 0, *res.Failed)
	assert.Equal(t, 5, *res.Total)
	assert.Equal(t, "all green", res.Stdout)

	res = Normalize(settledRun("success"), []byte(`{"passed":2,"failed":3,"total":5,"stdout":"","stderr":"assertion failed"}`))
	assert.Equal(t, "failed", res.Status)
	assert.Equal(t, 3, *res.Failed)
}

func TestNormalize_TotalIsDerivedFromCounts(t *testing.T) {
	// A payload that lies about total is corrected to passed + failed.
	res := Normalize(settledRun("success"), []byte(`{"passed":2,"failed":1,"total":99,"stdout":"","stderr":""}`))
	require.NotNil(t, res.Total)
	assert.Equal(t, 3, *res.Total)
}

func TestNormalize_ArtifactStatusWins(t *testing.T) {
	res := Normalize(settledRun("success"), []byte(`{"passed":4,"failed":0,"total":4,"stdout":"","stderr":"","status":"failed"}`))
	assert.Equal(t, "failed", res.Status)

	res = Normalize(settledRun("success"), []byte(`{"passed":4,"failed":0,"total":4,"stdout":"","stderr":"","timeout":true}`))
	assert.Equal(t, "timeout", res.Status)
}

func TestNormalize_InvalidSchemaKeepsRunOutcome(t *testing.T) {
	cases := []string{
		`{"passed":"3","failed":1,"total":4,"stdout":"","stderr":""}`, // string count
		`{"passed":3,"failed":1,"stdout":"","stderr":""}`,             // missing total
		`{"passed":3.5,"failed":1,"total":4,"stdout":"","stderr":""}`, // non-integer
		`not json`,
	}
	for _, payload := range cases {
		res := Normalize(settledRun("failure"), []byte(payload))
		assert.Nil(t, res.Passed, "payload %s", payload)
		assert.Nil(t, res.Total, "payload %s", payload)
		assert.Contains(t, res.Diagnostics, DiagnosticInvalidSchema, "payload %s", payload)
		// Counts are gone but the run itself still concluded in failure.
		assert.Equal(t, "failed", res.Status, "payload %s", payload)
	}
}

func TestNormalize_NoArtifactFallsBackToConclusion(t *testing.T) {
	assert.Equal(t, "failed", Normalize(settledRun("failure"), nil).Status)
	assert.Equal(t, "failed", Normalize(settledRun("cancelled"), nil).Status)
	assert.Equal(t, "failed", Normalize(settledRun("startup_failure"), nil).Status)
	assert.Equal(t, "passed", Normalize(settledRun("success"), nil).Status)
	assert.Equal(t, "timeout", Normalize(settledRun("timed_out"), nil).Status)
}

func TestNormalize_StderrWithoutCountsMeansFailure(t *testing.T) {
	// Settled run, schema invalid, but the run printed to stderr: the
	// invalid payload leaves counts nil so conclusion drives the result.
	res := Normalize(settledRun("failure"), []byte(`{"oops":true}`))
	assert.Equal(t, "failed", res.Status)
}
