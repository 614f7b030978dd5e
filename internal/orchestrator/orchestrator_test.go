package orchestrator

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"tenon/internal/catalog"
	"tenon/internal/forge"
	"tenon/internal/governor"
	"tenon/internal/logger"
	"tenon/internal/store"
)

// fakeTx satisfies store.Tx without touching a database. The in-memory
// store applies writes immediately, so commit and rollback are no-ops.
type fakeTx struct{}

func (fakeTx) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, nil
}
func (fakeTx) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, nil
}
func (fakeTx) QueryRowContext(context.Context, string, ...interface{}) *sql.Row { return nil }
func (fakeTx) Commit() error                                                    { return nil }
func (fakeTx) Rollback() error                                                  { return nil }

type pair struct{ sessionID, taskID int64 }

// fakeStore is an in-memory Store honoring the same uniqueness rules as the
// postgres implementation.
type fakeStore struct {
	mu          sync.Mutex
	sessions    map[int64]*store.CandidateSession
	tasks       map[int64]*store.Task
	workspaces  map[pair]*store.Workspace
	submissions map[pair]*store.Submission
	nextID      int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions:    make(map[int64]*store.CandidateSession),
		tasks:       make(map[int64]*store.Task),
		workspaces:  make(map[pair]*store.Workspace),
		submissions: make(map[pair]*store.Submission),
		nextID:      1000,
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) BeginTx(ctx context.Context) (store.Tx, error) { return fakeTx{}, nil }
func (f *fakeStore) Ping(ctx context.Context) error                { return nil }

func (f *fakeStore) GetSessionByToken(ctx context.Context, token string) (*store.CandidateSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.Token == token {
			copied := *s
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) GetSessionByID(ctx context.Context, id int64) (*store.CandidateSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (f *fakeStore) MarkSessionStarted(ctx context.Context, tx store.DBTransaction, id int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	if s.Status == store.SessionNotStarted {
		s.Status = store.SessionInProgress
		started := at
		s.StartedAt = &started
	}
	return nil
}

func (f *fakeStore) MarkSessionCompleted(ctx context.Context, tx store.DBTransaction, id int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	s.Status = store.SessionCompleted
	if s.CompletedAt == nil {
		completed := at
		s.CompletedAt = &completed
	}
	return nil
}

func (f *fakeStore) CountActiveSessions(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, s := range f.sessions {
		if s.Status == store.SessionInProgress {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) GetTaskByID(ctx context.Context, id int64) (*store.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *t
	return &copied, nil
}

func (f *fakeStore) ListTasksBySimulation(ctx context.Context, simulationID int64) ([]store.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Task
	for _, t := range f.tasks {
		if t.SimulationID == simulationID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeStore) GetWorkspace(ctx context.Context, sessionID, taskID int64) (*store.Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.workspaces[pair{sessionID, taskID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *w
	return &copied, nil
}

func (f *fakeStore) CreateWorkspace(ctx context.Context, tx store.DBTransaction, w *store.Workspace) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := pair{w.CandidateSessionID, w.TaskID}
	if _, exists := f.workspaces[key]; exists {
		return store.ErrDuplicate
	}
	w.ID = f.id()
	w.CreatedAt = time.Now()
	copied := *w
	f.workspaces[key] = &copied
	return nil
}

func (f *fakeStore) UpdateWorkspaceRunResult(ctx context.Context, tx store.DBTransaction, id int64, runID int64, conclusion string, commitSHA *string, summary json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.workspaces {
		if w.ID == id {
			w.LastWorkflowRunID = &runID
			if conclusion != "" {
				c := conclusion
				w.LastWorkflowConclusion = &c
			}
			if commitSHA != nil {
				w.LatestCommitSHA = commitSHA
			}
			w.LastTestSummary = summary
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) UpdateWorkspaceCodespaceURL(ctx context.Context, tx store.DBTransaction, id int64, codespaceURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.workspaces {
		if w.ID == id {
			url := codespaceURL
			w.CodespaceURL = &url
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) HasSubmission(ctx context.Context, sessionID, taskID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.submissions[pair{sessionID, taskID}]
	return ok, nil
}

func (f *fakeStore) CreateSubmission(ctx context.Context, tx store.DBTransaction, s *store.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := pair{s.CandidateSessionID, s.TaskID}
	if _, exists := f.submissions[key]; exists {
		return store.ErrDuplicate
	}
	s.ID = f.id()
	copied := *s
	f.submissions[key] = &copied
	return nil
}

func (f *fakeStore) ListSubmittedTaskIDs(ctx context.Context, sessionID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int64
	for key := range f.submissions {
		if key.sessionID == sessionID {
			out = append(out, key.taskID)
		}
	}
	return out, nil
}

// fakeForge is a scripted forge.API. Unset fields mean "succeed with a
// plausible default".
type fakeForge struct {
	mu sync.Mutex

	repoErr error
	fileErr error

	generateErr    error
	generatedNames []string

	dispatchErr error
	dispatches  int

	runs       []forge.WorkflowRun
	runsErr    error
	getRunErr  error
	compare    *forge.Compare
	compareErr error

	artifacts    []forge.Artifact
	artifactZips map[int64][]byte

	collaborators   []string
	collaboratorErr error
}

func (f *fakeForge) GetRepo(ctx context.Context, fullName string) (*forge.Repo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.repoErr != nil {
		return nil, f.repoErr
	}
	return &forge.Repo{FullName: fullName, DefaultBranch: "main"}, nil
}

func (f *fakeForge) GetBranch(ctx context.Context, repo, branch string) (*forge.Branch, error) {
	b := &forge.Branch{Name: branch}
	b.Commit.SHA = "basesha"
	return b, nil
}

func (f *fakeForge) GetFileContents(ctx context.Context, repo, path, ref string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fileErr != nil {
		return nil, f.fileErr
	}
	return []byte("name: tenon-tests"), nil
}

func (f *fakeForge) GenerateFromTemplate(ctx context.Context, template, owner, name string, private bool) (*forge.Repo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	f.generatedNames = append(f.generatedNames, name)
	return &forge.Repo{
		ID:            4242,
		FullName:      owner + "/" + name,
		DefaultBranch: "main",
		Private:       private,
	}, nil
}

func (f *fakeForge) AddCollaborator(ctx context.Context, repo, username, permission string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.collaboratorErr != nil {
		return f.collaboratorErr
	}
	f.collaborators = append(f.collaborators, username)
	return nil
}

func (f *fakeForge) GetCompare(ctx context.Context, repo, base, head string) (*forge.Compare, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.compareErr != nil {
		return nil, f.compareErr
	}
	if f.compare != nil {
		return f.compare, nil
	}
	return &forge.Compare{}, nil
}

func (f *fakeForge) DispatchWorkflow(ctx context.Context, repo, workflowFile, ref string, inputs map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dispatchErr != nil {
		return f.dispatchErr
	}
	f.dispatches++
	return nil
}

func (f *fakeForge) ListWorkflowRuns(ctx context.Context, repo, workflowFile, branch string, perPage int) ([]forge.WorkflowRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.runsErr != nil {
		return nil, f.runsErr
	}
	out := make([]forge.WorkflowRun, len(f.runs))
	copy(out, f.runs)
	return out, nil
}

func (f *fakeForge) GetWorkflowRun(ctx context.Context, repo string, runID int64) (*forge.WorkflowRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getRunErr != nil {
		return nil, f.getRunErr
	}
	for _, r := range f.runs {
		if r.ID == runID {
			copied := r
			return &copied, nil
		}
	}
	return nil, &forge.Error{StatusCode: 404, Message: "run not found"}
}

func (f *fakeForge) ListArtifacts(ctx context.Context, repo string, runID int64) ([]forge.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]forge.Artifact, len(f.artifacts))
	copy(out, f.artifacts)
	return out, nil
}

func (f *fakeForge) DownloadArtifactZip(ctx context.Context, repo string, artifactID int64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.artifactZips[artifactID]
	if !ok {
		return nil, &forge.Error{StatusCode: 404, Message: "artifact not found"}
	}
	return raw, nil
}

// fixture seeds a five-day simulation with one session. Day order matches
// the production shape: design, code, debug, handoff, documentation.
type fixture struct {
	store   *fakeStore
	forge   *fakeForge
	orch    *Orchestrator
	session *store.CandidateSession
	tasks   map[string]*store.Task // keyed by type for readability
}

func newFixture(t *testing.T, gov *governor.Governor) *fixture {
	t.Helper()
	fs := newFakeStore()
	ff := &fakeForge{artifactZips: make(map[int64][]byte)}

	session := &store.CandidateSession{
		ID:           1,
		SimulationID: 10,
		InviteEmail:  "dev@example.com",
		Token:        "tok-1",
		Status:       store.SessionInProgress,
		ExpiresAt:    time.Now().Add(24 * time.Hour),
	}
	fs.sessions[session.ID] = session

	template := "tenon-hq/template-backend-go"
	taskDefs := []struct {
		id       int64
		day      int
		taskType store.TaskType
		tmpl     *string
	}{
		{101, 1, store.TaskTypeDesign, nil},
		{102, 2, store.TaskTypeCode, &template},
		{103, 3, store.TaskTypeDebug, &template},
		{104, 4, store.TaskTypeHandoff, nil},
		{105, 5, store.TaskTypeDocumentation, nil},
	}
	tasks := make(map[string]*store.Task)
	for _, d := range taskDefs {
		task := &store.Task{
			ID:                   d.id,
			SimulationID:         session.SimulationID,
			DayIndex:             d.day,
			Type:                 d.taskType,
			Title:                fmt.Sprintf("Day %d", d.day),
			TemplateRepoFullName: d.tmpl,
		}
		fs.tasks[d.id] = task
		tasks[string(d.taskType)] = task
	}

	if gov == nil {
		gov = governor.New(false)
	}
	templates, err := catalog.Load()
	if err != nil {
		t.Fatalf("failed to load template catalog: %v", err)
	}
	orch := New(fs, ff, gov, templates, Config{
		RepoPrefix:   "candidate-",
		Org:          "tenon-hq",
		RunTimeout:   100 * time.Millisecond,
		PollInterval: time.Millisecond,
	}, logger.New())

	return &fixture{store: fs, forge: ff, orch: orch, session: session, tasks: tasks}
}

// sessionCopy returns a detached copy the way the auth middleware would.
func (fx *fixture) sessionCopy() *store.CandidateSession {
	copied := *fx.session
	return &copied
}

// submitText records a text submission directly, bypassing the orchestrator.
func (fx *fixture) submitText(t *testing.T, taskID int64) {
	t.Helper()
	text := "done"
	err := fx.store.CreateSubmission(context.Background(), fakeTx{}, &store.Submission{
		CandidateSessionID: fx.session.ID,
		TaskID:             taskID,
		SubmittedAt:        time.Now(),
		ContentText:        &text,
	})
	if err != nil {
		t.Fatalf("seed submission failed: %v", err)
	}
}

// settledSuccessRun makes the fake forge report one freshly settled run.
func (fx *fixture) settledSuccessRun(runID int64) {
	fx.forge.runs = []forge.WorkflowRun{{
		ID:         runID,
		Status:     "completed",
		Conclusion: "success",
		HeadSHA:    "headsha",
		HTMLURL:    "https://github.com/tenon-hq/x/actions/runs/1",
		CreatedAt:  time.Now().Add(time.Second),
	}}
}

func buildZip(t *testing.T, name, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	if err != nil {
		t.Fatalf("failed to create zip entry: %v", err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		t.Fatalf("failed to write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
	return buf.Bytes()
}

// successArtifact uploads a passing test-results artifact for the fake run.
func (fx *fixture) successArtifact(t *testing.T, passed, failed int) {
	t.Helper()
	payload := fmt.Sprintf(`{"passed":%d,"failed":%d,"total":%d,"stdout":"ran","stderr":""}`,
		passed, failed, passed+failed)
	fx.forge.artifacts = []forge.Artifact{{ID: 7, Name: forge.ArtifactName}}
	fx.forge.artifactZips[7] = buildZip(t, "tenon-test-results.json", payload)
}
