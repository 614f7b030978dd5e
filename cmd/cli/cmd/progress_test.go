package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"tenon/pkg/api"
)

func TestProgressCommand_Success(t *testing.T) {
	resetViper()

	current := int64(102)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET method, got %s", r.Method)
		}
		if !strings.HasSuffix(r.URL.Path, "/candidate/progress") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(api.ProgressResponse{
			Tasks: []api.TaskView{
				{ID: 101, DayIndex: 1, Type: "design", Title: "Design the queue", Submitted: true},
				{ID: 102, DayIndex: 2, Type: "code", Title: "Implement the worker"},
				{ID: 103, DayIndex: 3, Type: "debug"},
			},
			CurrentTaskID: &current,
			Progress:      api.ProgressSummary{Completed: 1, Total: 3},
			SessionStatus: "in_progress",
		})
	}))
	defer server.Close()

	viper.Set("api_url", server.URL)
	viper.Set("session", "tok-1")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"progress"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "1/3 complete") {
		t.Errorf("expected summary in output, got: %s", output)
	}
	if !strings.Contains(output, "Design the queue") {
		t.Errorf("expected task title in output, got: %s", output)
	}
	// The untitled task falls back to its type
	if !strings.Contains(output, "day 3  [103] debug") {
		t.Errorf("expected type fallback in output, got: %s", output)
	}
	if !strings.Contains(output, "Next up: task 102") {
		t.Errorf("expected current task hint in output, got: %s", output)
	}
}

func TestProgressCommand_Complete(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(api.ProgressResponse{
			Tasks: []api.TaskView{
				{ID: 101, DayIndex: 1, Type: "design", Submitted: true},
			},
			Progress:      api.ProgressSummary{Completed: 1, Total: 1, IsComplete: true},
			SessionStatus: "completed",
		})
	}))
	defer server.Close()

	viper.Set("api_url", server.URL)
	viper.Set("session", "tok-1")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"progress"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(stdout.String(), "Simulation complete") {
		t.Errorf("expected completion message, got: %s", stdout.String())
	}
}

func TestProgressCommand_NoSession(t *testing.T) {
	resetViper()

	viper.Set("api_url", "http://localhost:7171")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"progress"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(stdout.String(), "Session token not found") {
		t.Errorf("expected session hint, got: %s", stdout.String())
	}
}
