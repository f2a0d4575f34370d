package infrastructure

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/manga-dl-go/internal/domain"
)

func newTestBackend(t *testing.T, handler http.HandlerFunc) *BackendClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewBackendClient(&domain.BackendConfig{BaseURL: server.URL, Timeout: 5 * time.Second}, nil)
}

func TestBackendClient_EnqueueEncodesQuery(t *testing.T) {
	client := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/download", r.URL.Path)

		q := r.URL.Query()
		assert.Equal(t, []string{"ch1_1", "ch2_2.5"}, q["ids[]"])
		assert.Equal(t, "3", q.Get("source"))
		assert.Equal(t, "Berserk", q.Get("comic_title"))
		assert.Equal(t, "cbz", q.Get("format"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"task_id":"abc-123"}`))
	})

	id, err := client.Enqueue(context.Background(), domain.EnqueueRequest{
		ComicTitle: "Berserk",
		Source:     "3",
		Format:     domain.FormatCBZ,
		Chapters:   []domain.ChapterRef{{ID: "ch1", Number: "1"}, {ID: "ch2", Number: "2.5"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "abc-123", id)
}

func TestBackendClient_EnqueueDetailWithoutTaskID(t *testing.T) {
	client := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"detail":"queue full"}`))
	})

	_, err := client.Enqueue(context.Background(), domain.EnqueueRequest{Source: "0", Chapters: []domain.ChapterRef{{ID: "a", Number: "1"}}})

	var backendErr *domain.BackendError
	require.True(t, errors.As(err, &backendErr))
	assert.Equal(t, "queue full", backendErr.Detail)
}

func TestBackendClient_Status(t *testing.T) {
	client := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/download/status/t1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"state":"PROGRESS","progress":42,"status":"Downloading chapter 2/5"}`))
	})

	report, err := client.Status(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateProgress, report.State)
	require.NotNil(t, report.Progress)
	assert.Equal(t, 42, *report.Progress)
	assert.Equal(t, "Downloading chapter 2/5", report.Status)
}

func TestBackendClient_StatusProgressRounding(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"42.5", 43},
		{"99.4", 99},
		{"-0.6", 0},
		{"-50", 0},
		{"1e19", 100},
		{"250", 100},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			client := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"state":"PROGRESS","progress":` + tt.raw + `}`))
			})

			report, err := client.Status(context.Background(), "t1")
			require.NoError(t, err)
			require.NotNil(t, report.Progress)
			assert.Equal(t, tt.want, *report.Progress)
		})
	}
}

func TestBackendClient_StatusUnknownState(t *testing.T) {
	client := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"state":"RETRY"}`))
	})

	report, err := client.Status(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateUnknown, report.State)
	assert.Equal(t, "RETRY", report.RawState)
	assert.Nil(t, report.Progress)
}

func TestBackendClient_StatusErrors(t *testing.T) {
	t.Run("http error with detail", func(t *testing.T) {
		client := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"detail":"broker unavailable"}`))
		})

		_, err := client.Status(context.Background(), "t1")

		var backendErr *domain.BackendError
		require.True(t, errors.As(err, &backendErr))
		assert.Equal(t, 500, backendErr.StatusCode)
		assert.Equal(t, "broker unavailable", backendErr.Detail)
	})

	t.Run("proxy error body", func(t *testing.T) {
		client := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":"Proxy error","message":"Failed to connect to backend server"}`))
		})

		_, err := client.Status(context.Background(), "t1")

		var backendErr *domain.BackendError
		require.True(t, errors.As(err, &backendErr))
		assert.Equal(t, "Failed to connect to backend server", backendErr.Detail)
	})

	t.Run("unparseable body", func(t *testing.T) {
		client := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>oops</html>`))
		})

		_, err := client.Status(context.Background(), "t1")
		require.Error(t, err)
		assert.Contains(t, domain.FailureMessage(err), "Network error")
	})

	t.Run("transport error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()
		client := NewBackendClient(&domain.BackendConfig{BaseURL: url, Timeout: time.Second}, nil)

		_, err := client.Status(context.Background(), "t1")

		var transportErr *domain.TransportError
		require.True(t, errors.As(err, &transportErr))
	})
}

func TestBackendClient_FetchFile(t *testing.T) {
	client := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/download/file/t1", r.URL.Path)
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="Berserk.pdf"`)
		_, _ = w.Write([]byte("%PDF-1.4 data"))
	})

	artifact, err := client.FetchFile(context.Background(), "t1")
	require.NoError(t, err)
	defer artifact.Body.Close()

	data, err := io.ReadAll(artifact.Body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 data", string(data))
	assert.Equal(t, "Berserk.pdf", artifact.FileName)
	assert.Equal(t, "application/pdf", artifact.ContentType)
}

func TestBackendClient_FetchFileNotReady(t *testing.T) {
	client := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"File not found"}`))
	})

	_, err := client.FetchFile(context.Background(), "t1")

	var backendErr *domain.BackendError
	require.True(t, errors.As(err, &backendErr))
	assert.Equal(t, 404, backendErr.StatusCode)
	assert.Equal(t, "File not found", backendErr.Detail)
}

func TestBackendClient_Cancel(t *testing.T) {
	var called bool
	client := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/download/cancel/t1", r.URL.Path)
		_, _ = w.Write([]byte(`{"message":"cancelled"}`))
	})

	require.NoError(t, client.Cancel(context.Background(), "t1"))
	assert.True(t, called)
}

func TestBackendClient_SearchPlaceholder(t *testing.T) {
	client := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "naruto", r.URL.Query().Get("title"))
		_, _ = w.Write([]byte(`{"message":"No comics found"}`))
	})

	comics, err := client.Search(context.Background(), "naruto", "0")
	require.NoError(t, err)
	assert.Empty(t, comics)
}

func TestBackendClient_Search(t *testing.T) {
	client := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"7384342","title":{"en":"One Piece"},"cover_art":"x.jpg","availableLanguages":["en"]}]`))
	})

	comics, err := client.Search(context.Background(), "one piece", "0")
	require.NoError(t, err)
	require.Len(t, comics, 1)
	assert.Equal(t, "One Piece", comics[0].DisplayTitle())
	assert.Equal(t, []string{"en"}, comics[0].AvailableLanguages)
}

func TestBackendClient_ChaptersFlattenedAndSorted(t *testing.T) {
	client := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "c1", r.URL.Query().Get("id"))
		_, _ = w.Write([]byte(`{
			"Vol 2": {"volume": "Vol 2", "chapters": {"0": {"id": "d", "chapter": "10"}}},
			"Vol 1": {"volume": "Vol 1", "chapters": {
				"0": {"id": "b", "chapter": "2"},
				"1": {"id": "a", "chapter": "1"},
				"2": {"id": "c", "chapter": "2.5"}
			}}
		}`))
	})

	chapters, err := client.Chapters(context.Background(), "c1", "0")
	require.NoError(t, err)
	require.Len(t, chapters, 4)

	ids := make([]string, 0, len(chapters))
	for _, ch := range chapters {
		ids = append(ids, ch.ID)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)
	assert.Equal(t, "Vol 1", chapters[0].Volume)
}

func TestBackendClient_SourceHealth(t *testing.T) {
	client := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":{"0":"ok","1":"down"}}`))
	})

	status, err := client.SourceHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"0": "ok", "1": "down"}, status)
}

func TestFileNameFromDisposition(t *testing.T) {
	assert.Equal(t, "a.cbz", fileNameFromDisposition(`attachment; filename="a.cbz"`))
	assert.Equal(t, "", fileNameFromDisposition(""))
	assert.Equal(t, "", fileNameFromDisposition("attachment"))
}
