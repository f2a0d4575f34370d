package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/manga-dl-go/api/handlers"
	"github.com/yourusername/manga-dl-go/internal/app"
	"github.com/yourusername/manga-dl-go/internal/domain"
	"github.com/yourusername/manga-dl-go/internal/infrastructure"
)

// scriptedBackend answers status polls from a per-job list of bodies; the
// last body repeats once the list is exhausted
type scriptedBackend struct {
	mu       sync.Mutex
	statuses map[string][]string
	nextID   string
	fetches  int
	srv      *httptest.Server
}

func newScriptedBackend(t *testing.T) *scriptedBackend {
	sb := &scriptedBackend{statuses: make(map[string][]string)}
	sb.srv = httptest.NewServer(http.HandlerFunc(sb.serve))
	t.Cleanup(sb.srv.Close)
	return sb
}

func (sb *scriptedBackend) script(jobID string, bodies ...string) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.nextID = jobID
	sb.statuses[jobID] = bodies
}

func (sb *scriptedBackend) fetchCount() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.fetches
}

func (sb *scriptedBackend) serve(w http.ResponseWriter, r *http.Request) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/download":
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"task_id":"` + sb.nextID + `"}`))
	case strings.HasPrefix(r.URL.Path, "/download/status/"):
		id := strings.TrimPrefix(r.URL.Path, "/download/status/")
		bodies := sb.statuses[id]
		if len(bodies) == 0 {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Task not found"}`))
			return
		}
		body := bodies[0]
		if len(bodies) > 1 {
			sb.statuses[id] = bodies[1:]
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	case strings.HasPrefix(r.URL.Path, "/download/file/"):
		sb.fetches++
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", `attachment; filename="Blame! Vol 1.cbz"`)
		_, _ = w.Write([]byte("archive-bytes"))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type endToEnd struct {
	router  *gin.Engine
	tracker *app.Tracker
	history *infrastructure.SQLiteJobRepository
	outDir  string
}

func newEndToEnd(t *testing.T, backendURL string) *endToEnd {
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	cfg := domain.DefaultConfig()
	cfg.Server.Mode = gin.TestMode
	cfg.Backend.BaseURL = backendURL
	cfg.Backend.RateLimit = 0
	cfg.Backend.Timeout = 2 * time.Second
	cfg.Tracker.PollInterval = 20 * time.Millisecond
	cfg.Tracker.FailurePruneDelay = 100 * time.Millisecond
	cfg.Tracker.StatusErrorPruneDelay = 100 * time.Millisecond
	cfg.Retrieval.Enabled = true
	cfg.Retrieval.Storage = "local"
	cfg.Retrieval.OutputDir = filepath.Join(dir, "out")
	cfg.Logging.LogsDir = filepath.Join(dir, "logs")

	log := zap.NewNop()
	client := infrastructure.NewBackendClient(&cfg.Backend, log)
	retriever, err := infrastructure.NewArtifactRetriever(&cfg.Retrieval, client, log)
	require.NoError(t, err)

	history, err := infrastructure.NewSQLiteJobRepository(filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { history.Close() })

	tracker := app.NewTracker(client, retriever, &cfg.Tracker, log)
	tracker.SetHistory(history)

	ctx, cancel := context.WithCancel(context.Background())
	hub := handlers.NewSnapshotHub()
	go hub.Run(ctx, tracker.Snapshots())
	require.NoError(t, tracker.Start(ctx))
	t.Cleanup(func() {
		_ = tracker.Stop()
		tracker.WaitForRetrievals()
		cancel()
	})

	router, err := SetupRouter(cfg, Dependencies{
		Tracker: tracker,
		Enqueue: app.NewEnqueueService(client, tracker, log),
		History: history,
		Hub:     hub,
		Logger:  log,
	})
	require.NoError(t, err)

	return &endToEnd{router: router, tracker: tracker, history: history, outDir: cfg.Retrieval.OutputDir}
}

func (e *endToEnd) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

const enqueueBody = `{"comic_id":"c1","comic_title":"Blame!","source":"mangadex","format":"cbz","chapters":[{"id":"ch1","chapter":"1"},{"id":"ch2","chapter":"2"}]}`

func TestEndToEnd_SuccessRetrievesAndPrunes(t *testing.T) {
	backend := newScriptedBackend(t)
	backend.script("task-ok",
		`{"state":"PENDING"}`,
		`{"state":"PROGRESS","progress":50}`,
		`{"state":"SUCCESS","progress":100}`)
	e := newEndToEnd(t, backend.srv.URL)

	w := e.do(http.MethodPost, "/tracker/jobs", enqueueBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	require.Eventually(t, func() bool {
		record, err := e.history.FindByID("task-ok")
		return err == nil && record.Outcome == domain.OutcomeRetrieved
	}, 3*time.Second, 20*time.Millisecond)

	assert.Eventually(t, func() bool { return e.tracker.Len() == 0 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, backend.fetchCount())

	record, err := e.history.FindByID("task-ok")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(e.outDir, "Blame! Vol 1.cbz"), record.ArtifactLocation)
	assert.Equal(t, domain.StateSuccess, record.State)

	data, err := os.ReadFile(record.ArtifactLocation)
	require.NoError(t, err)
	assert.Equal(t, "archive-bytes", string(data))

	w = e.do(http.MethodGet, "/tracker/history/task-ok", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"outcome":"retrieved"`)
}

func TestEndToEnd_FailureStaysVisibleThenPrunes(t *testing.T) {
	backend := newScriptedBackend(t)
	backend.script("task-bad", `{"state":"FAILURE","error":"source unavailable"}`)
	e := newEndToEnd(t, backend.srv.URL)

	w := e.do(http.MethodPost, "/tracker/jobs", enqueueBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	require.Eventually(t, func() bool {
		job, ok := e.tracker.Get("task-bad")
		return ok && job.LastKnownState == domain.StateFailure
	}, 2*time.Second, 10*time.Millisecond)

	job, _ := e.tracker.Get("task-bad")
	assert.Contains(t, job.Message, "source unavailable")

	require.Eventually(t, func() bool {
		return e.tracker.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, backend.fetchCount())

	record, err := e.history.FindByID("task-bad")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFailed, record.Outcome)

	w = e.do(http.MethodGet, "/tracker/stats", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"failed":1`)
}

func TestEndToEnd_ManualRetrieveFromHistory(t *testing.T) {
	backend := newScriptedBackend(t)
	backend.script("task-again", `{"state":"SUCCESS","progress":100}`)
	e := newEndToEnd(t, backend.srv.URL)

	w := e.do(http.MethodPost, "/tracker/jobs", enqueueBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	require.Eventually(t, func() bool {
		record, err := e.history.FindByID("task-again")
		return err == nil && record.Outcome == domain.OutcomeRetrieved
	}, 3*time.Second, 20*time.Millisecond)

	w = e.do(http.MethodPost, "/tracker/jobs/task-again/retrieve", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2, backend.fetchCount())

	// the second copy does not overwrite the first
	entries, err := os.ReadDir(e.outDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
