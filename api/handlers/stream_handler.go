package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yourusername/manga-dl-go/internal/app"
	"github.com/yourusername/manga-dl-go/internal/domain"
	"github.com/yourusername/manga-dl-go/pkg/logger"
)

const pingInterval = 30 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// SnapshotHub fans tracker snapshots out to any number of subscribers.
// Each subscriber only ever holds the latest snapshot.
type SnapshotHub struct {
	mu   sync.Mutex
	subs map[chan []domain.DownloadJob]struct{}
}

// NewSnapshotHub creates an empty hub
func NewSnapshotHub() *SnapshotHub {
	return &SnapshotHub{subs: make(map[chan []domain.DownloadJob]struct{})}
}

// Run forwards snapshots from src until ctx is done
func (h *SnapshotHub) Run(ctx context.Context, src <-chan []domain.DownloadJob) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-src:
			h.publish(snap)
		}
	}
}

func (h *SnapshotHub) publish(snap []domain.DownloadJob) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// Subscribe registers a subscriber; call the returned func to unsubscribe
func (h *SnapshotHub) Subscribe() (<-chan []domain.DownloadJob, func()) {
	ch := make(chan []domain.DownloadJob, 1)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

// StreamHandler pushes job snapshots and log entries over WebSocket
type StreamHandler struct {
	tracker   *app.Tracker
	hub       *SnapshotHub
	logReader *logger.LogReader
	logger    *zap.Logger
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(tracker *app.Tracker, hub *SnapshotHub, logsDir string, log *zap.Logger) *StreamHandler {
	return &StreamHandler{
		tracker:   tracker,
		hub:       hub,
		logReader: logger.NewLogReader(logsDir),
		logger:    log,
	}
}

func (h *StreamHandler) views(jobs []domain.DownloadJob) []JobView {
	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, JobView{
			DownloadJob: job,
			Title:       job.DisplayTitle(),
			Retrieving:  h.tracker.IsRetrieving(job.JobID),
		})
	}
	return views
}

// readUntilClosed drains client frames so pongs and close frames are processed
func readUntilClosed(conn *websocket.Conn) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return done
}

// Jobs handles GET /tracker/ws, sending the tracked set after every change
func (h *StreamHandler) Jobs(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	updates, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	h.logger.Info("Job stream client connected", zap.String("remote_addr", c.Request.RemoteAddr))

	if err := conn.WriteJSON(h.views(h.tracker.Snapshot())); err != nil {
		return
	}

	done := readUntilClosed(conn)
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case snap := <-updates:
			if err := conn.WriteJSON(h.views(snap)); err != nil {
				h.logger.Debug("Job stream write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// Logs handles GET /logs/:category/stream, sending recent then new entries
func (h *StreamHandler) Logs(c *gin.Context) {
	category, err := logger.ParseCategory(c.Param("category"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	entries, err := h.logReader.ReadLogs(category, time.Now(), 50)
	if err == nil {
		for _, entry := range entries {
			if err := conn.WriteJSON(entry); err != nil {
				return
			}
		}
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	entryChan := make(chan logger.LogEntry, 100)
	go func() {
		if err := h.logReader.TailLogs(ctx, category, entryChan); err != nil {
			h.logger.Error("Log tailing error", zap.Error(err))
		}
	}()

	done := readUntilClosed(conn)
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case entry := <-entryChan:
			if err := conn.WriteJSON(entry); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
