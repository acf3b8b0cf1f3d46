package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/turbowrap/turbowrap/pkg/api"
	"github.com/turbowrap/turbowrap/pkg/artifact"
	"github.com/turbowrap/turbowrap/pkg/checkpoint"
	"github.com/turbowrap/turbowrap/pkg/config"
	"github.com/turbowrap/turbowrap/pkg/fix"
	"github.com/turbowrap/turbowrap/pkg/git"
	"github.com/turbowrap/turbowrap/pkg/loop"
	"github.com/turbowrap/turbowrap/pkg/metrics"
	"github.com/turbowrap/turbowrap/pkg/models"
	"github.com/turbowrap/turbowrap/pkg/queue"
	"github.com/turbowrap/turbowrap/pkg/review"
	"github.com/turbowrap/turbowrap/pkg/service"
	"github.com/turbowrap/turbowrap/pkg/store"
)

// TestApp boots a complete turbowrap instance against a scripted invoker and
// an in-memory store, exposed over a real HTTP listener.
type TestApp struct {
	Config  *config.Config
	Store   *store.MemoryStore
	Invoker *ScriptedInvoker
	Git     *RecordingGit
	Pool    *queue.WorkerPool
	Server  *api.Server

	BaseURL string

	t          *testing.T
	httpServer *httptest.Server
}

// RecordingGit is an in-memory git.Adapter shared by all fix tasks in a test.
type RecordingGit struct {
	mu       sync.Mutex
	Branch   string
	Applied  map[string]string
	Commits  []string
	Reverted bool
	Pushed   bool
}

func (g *RecordingGit) CreateOrCheckoutBranch(_ context.Context, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Branch = name
	return nil
}

func (g *RecordingGit) ApplyEdits(_ context.Context, edits map[string]string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Applied == nil {
		g.Applied = map[string]string{}
	}
	for k, v := range edits {
		g.Applied[k] = v
	}
	return nil
}

func (g *RecordingGit) CommitAll(_ context.Context, msg string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Commits = append(g.Commits, msg)
	return fmt.Sprintf("commit%d", len(g.Commits)), nil
}

func (g *RecordingGit) Revert(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Reverted = true
	g.Applied = map[string]string{}
	return nil
}

func (g *RecordingGit) Push(context.Context, string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Pushed = true
	return nil
}

func (g *RecordingGit) CurrentBranch(context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Branch, nil
}

func (g *RecordingGit) ListBranches(context.Context) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return []string{g.Branch}, nil
}

// NewTestApp wires the full pipeline with fast queue timings. Cleanup is
// registered on the test.
func NewTestApp(t *testing.T, invoker *ScriptedInvoker) *TestApp {
	t.Helper()

	cfg := config.Default()
	cfg.Queue.WorkerCount = 2
	cfg.Queue.PollInterval = 5 * time.Millisecond
	cfg.Queue.PollIntervalJitter = time.Millisecond
	cfg.Queue.ZombieScanInterval = time.Second
	cfg.Queue.GracefulShutdownTimeout = 2 * time.Second

	st := store.NewMemoryStore()
	recorder := artifact.NewRecorder(invoker, artifact.NewMemorySink())
	m := metrics.New()
	engine := loop.NewEngine(recorder, st, m)
	cpm := checkpoint.NewManager(st)

	gitRec := &RecordingGit{}
	reviews := review.NewOrchestrator(cfg, engine, recorder, cpm, st)
	fixes := fix.NewOrchestrator(cfg, engine, st, func(string) git.Adapter { return gitRec })

	executor := service.NewExecutor(reviews, fixes)
	pool := queue.NewWorkerPool(*cfg.Queue, executor, st, m)
	pool.Start(context.Background())

	server := api.NewServer(":0", pool, st, m)
	httpServer := httptest.NewServer(server.Handler())

	t.Cleanup(func() {
		httpServer.Close()
		pool.Stop()
	})

	return &TestApp{
		Config:     cfg,
		Store:      st,
		Invoker:    invoker,
		Git:        gitRec,
		Pool:       pool,
		Server:     server,
		BaseURL:    httpServer.URL,
		t:          t,
		httpServer: httpServer,
	}
}

// SeedRepo creates a temp repository directory with the given files.
func (a *TestApp) SeedRepo(files map[string]string) string {
	a.t.Helper()
	dir := a.t.TempDir()
	for path, content := range files {
		full := filepath.Join(dir, path)
		require.NoError(a.t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(a.t, os.WriteFile(full, []byte(content), 0o644))
	}
	return dir
}

// PostJSON sends a JSON request and decodes the response body into out when
// out is non-nil. Returns the status code.
func (a *TestApp) PostJSON(path string, body any, out any) int {
	a.t.Helper()
	blob, err := json.Marshal(body)
	require.NoError(a.t, err)

	resp, err := http.Post(a.BaseURL+path, "application/json", strings.NewReader(string(blob)))
	require.NoError(a.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(a.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// GetJSON fetches a path and decodes the response into out when the status
// is 200. Returns the status code.
func (a *TestApp) GetJSON(path string, out any) int {
	a.t.Helper()
	resp, err := http.Get(a.BaseURL + path)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(a.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// SubmitReview posts a review request and returns the task id.
func (a *TestApp) SubmitReview(req *models.ReviewRequest) string {
	a.t.Helper()
	var resp struct {
		TaskID string `json:"task_id"`
	}
	status := a.PostJSON("/api/v1/reviews", req, &resp)
	require.Equal(a.t, http.StatusAccepted, status)
	require.NotEmpty(a.t, resp.TaskID)
	return resp.TaskID
}

// SubmitFix posts a fix request and returns the task id.
func (a *TestApp) SubmitFix(req *models.FixRequest) string {
	a.t.Helper()
	var resp struct {
		TaskID string `json:"task_id"`
	}
	status := a.PostJSON("/api/v1/fixes", req, &resp)
	require.Equal(a.t, http.StatusAccepted, status)
	require.NotEmpty(a.t, resp.TaskID)
	return resp.TaskID
}

// WaitForTask polls until the task reaches a terminal state.
func (a *TestApp) WaitForTask(taskID string, timeout time.Duration) *models.Task {
	a.t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		task, err := a.Store.GetTask(context.Background(), taskID)
		if err == nil && (task.State == models.TaskStateCompleted || task.State == models.TaskStateFailed) {
			return task
		}
		time.Sleep(10 * time.Millisecond)
	}
	a.t.Fatalf("task %s did not reach a terminal state within %s", taskID, timeout)
	return nil
}

// FinalReportForTask fetches the review report for a task through the API.
func (a *TestApp) FinalReportForTask(taskID string) *models.FinalReport {
	a.t.Helper()
	var report models.FinalReport
	status := a.GetJSON("/api/v1/tasks/"+taskID+"/report", &report)
	require.Equal(a.t, http.StatusOK, status)
	return &report
}

// FixReportForTask fetches the fix report for a task through the API.
func (a *TestApp) FixReportForTask(taskID string) *models.FixReport {
	a.t.Helper()
	var report models.FixReport
	status := a.GetJSON("/api/v1/tasks/"+taskID+"/fix-report", &report)
	require.Equal(a.t, http.StatusOK, status)
	return &report
}
