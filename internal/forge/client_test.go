package forge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"tenon/internal/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-token", logger.New())
}

func TestGenerateFromTemplate(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"id":             991,
			"full_name":      "tenon-hq/candidate-1-task2",
			"default_branch": "main",
			"private":        true,
		})
	})

	repo, err := c.GenerateFromTemplate(context.Background(), "tenon-hq/template-backend-go", "tenon-hq", "candidate-1-task2", true)
	if err != nil {
		t.Fatalf("GenerateFromTemplate failed: %v", err)
	}

	if gotPath != "/repos/tenon-hq/template-backend-go/generate" {
		t.Errorf("got path %q", gotPath)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("got auth header %q", gotAuth)
	}
	if gotBody["owner"] != "tenon-hq" || gotBody["name"] != "candidate-1-task2" || gotBody["private"] != true {
		t.Errorf("unexpected request body: %v", gotBody)
	}
	if repo.FullName != "tenon-hq/candidate-1-task2" {
		t.Errorf("got repo %q", repo.FullName)
	}
	if repo.DefaultBranch != "main" {
		t.Errorf("got default branch %q", repo.DefaultBranch)
	}
}

func TestDispatchWorkflow(t *testing.T) {
	var gotPath string
	var gotBody map[string]any

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	})

	err := c.DispatchWorkflow(context.Background(), "tenon-hq/candidate-1-task2", "tenon-tests.yml", "main", map[string]string{"suite": "all"})
	if err != nil {
		t.Fatalf("DispatchWorkflow failed: %v", err)
	}

	if gotPath != "/repos/tenon-hq/candidate-1-task2/actions/workflows/tenon-tests.yml/dispatches" {
		t.Errorf("got path %q", gotPath)
	}
	if gotBody["ref"] != "main" {
		t.Errorf("got ref %v", gotBody["ref"])
	}
}

func TestListWorkflowRuns(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("branch"); got != "main" {
			t.Errorf("got branch query %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"total_count": 2,
			"workflow_runs": []map[string]any{
				{"id": 2, "status": "completed", "conclusion": "success", "head_sha": "def"},
				{"id": 1, "status": "completed", "conclusion": "failure", "head_sha": "abc"},
			},
		})
	})

	runs, err := c.ListWorkflowRuns(context.Background(), "tenon-hq/candidate-1-task2", "tenon-tests.yml", "main", 10)
	if err != nil {
		t.Fatalf("ListWorkflowRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != 2 || runs[0].Conclusion != "success" {
		t.Errorf("unexpected first run: %+v", runs[0])
	}
}

func TestDoJSON_ErrorDecoding(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"message": "Not Found"})
	})

	_, err := c.GetRepo(context.Background(), "tenon-hq/missing")
	if err == nil {
		t.Fatal("expected error")
	}
	fe, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if fe.StatusCode != http.StatusNotFound {
		t.Errorf("got status %d", fe.StatusCode)
	}
	if fe.Message != "Not Found" {
		t.Errorf("got message %q", fe.Message)
	}
}

func TestDoJSON_TransportErrorHasZeroStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // connection refused from here on

	c := NewClient(srv.URL, "test-token", logger.New())
	_, err := c.GetRepo(context.Background(), "tenon-hq/any")
	if err == nil {
		t.Fatal("expected error")
	}
	fe, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if fe.StatusCode != 0 {
		t.Errorf("got status %d, want 0", fe.StatusCode)
	}
	if !fe.Retryable() {
		t.Error("transport errors should be retryable")
	}
}

func TestDownloadArtifactZip(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/tenon-hq/candidate-1-task2/actions/artifacts/77/zip" {
			t.Errorf("got path %q", r.URL.Path)
		}
		w.Write([]byte("PK\x03\x04zipbytes"))
	})

	raw, err := c.DownloadArtifactZip(context.Background(), "tenon-hq/candidate-1-task2", 77)
	if err != nil {
		t.Fatalf("DownloadArtifactZip failed: %v", err)
	}
	if string(raw[:2]) != "PK" {
		t.Errorf("unexpected payload %q", raw)
	}
}
