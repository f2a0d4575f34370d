package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/manga-dl-go/internal/app"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	tracker *app.Tracker
	backend string
	now     func() time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(tracker *app.Tracker, backend string) *HealthHandler {
	return &HealthHandler{
		tracker: tracker,
		backend: backend,
		now:     time.Now,
	}
}

// TrackerHealth summarises the tracker state
type TrackerHealth struct {
	Running bool `json:"running"`
	Tracked int  `json:"tracked"`
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status    string        `json:"status"`
	Timestamp string        `json:"timestamp"`
	Backend   string        `json:"backend"`
	Tracker   TrackerHealth `json:"tracker"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Backend:   h.backend,
		Tracker: TrackerHealth{
			Running: h.tracker.IsRunning(),
			Tracked: h.tracker.Len(),
		},
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if !h.tracker.IsRunning() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "tracker not running",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
