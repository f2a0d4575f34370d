package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/manga-dl-go/internal/app"
	"github.com/yourusername/manga-dl-go/internal/domain"
)

// TrackerHandler serves the local view of tracked jobs and job history
type TrackerHandler struct {
	tracker *app.Tracker
	enqueue *app.EnqueueService
	history domain.JobHistoryRepository
	logger  *zap.Logger
}

// NewTrackerHandler creates a new tracker handler. history may be nil.
func NewTrackerHandler(tracker *app.Tracker, enqueue *app.EnqueueService, history domain.JobHistoryRepository, logger *zap.Logger) *TrackerHandler {
	return &TrackerHandler{
		tracker: tracker,
		enqueue: enqueue,
		history: history,
		logger:  logger,
	}
}

// JobView is the JSON shape of a tracked job
type JobView struct {
	domain.DownloadJob
	Title      string `json:"title"`
	Retrieving bool   `json:"retrieving"`
}

func (h *TrackerHandler) view(job domain.DownloadJob) JobView {
	return JobView{
		DownloadJob: job,
		Title:       job.DisplayTitle(),
		Retrieving:  h.tracker.IsRetrieving(job.JobID),
	}
}

// isBackendFailure reports whether err came from talking to the backend
func isBackendFailure(err error) bool {
	var backendErr *domain.BackendError
	var transportErr *domain.TransportError
	return errors.As(err, &backendErr) || errors.As(err, &transportErr)
}

// ListJobs handles GET /tracker/jobs
func (h *TrackerHandler) ListJobs(c *gin.Context) {
	jobs := h.tracker.Snapshot()
	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, h.view(job))
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  views,
		"count": len(views),
	})
}

// GetJob handles GET /tracker/jobs/:id
func (h *TrackerHandler) GetJob(c *gin.Context) {
	job, ok := h.tracker.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not tracked"})
		return
	}
	c.JSON(http.StatusOK, h.view(job))
}

// EnqueueJob handles POST /tracker/jobs
func (h *TrackerHandler) EnqueueJob(c *gin.Context) {
	var req domain.EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.enqueue.Enqueue(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrTrackerStopped) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		if isBackendFailure(err) {
			c.JSON(http.StatusBadGateway, gin.H{"error": domain.FailureMessage(err)})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, h.view(job))
}

// CancelJob handles DELETE /tracker/jobs/:id
func (h *TrackerHandler) CancelJob(c *gin.Context) {
	id := c.Param("id")

	if err := h.tracker.CancelJob(c.Request.Context(), id); err != nil {
		if app.IsNotTracked(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not tracked"})
			return
		}
		h.logger.Error("Failed to cancel job", zap.String("job_id", id), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": domain.FailureMessage(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "job cancelled", "job_id": id})
}

// RetrieveJob handles POST /tracker/jobs/:id/retrieve, retrying the artifact
// download of a completed job recorded in history
func (h *TrackerHandler) RetrieveJob(c *gin.Context) {
	id := c.Param("id")

	job, ok := h.tracker.Get(id)
	if !ok {
		if h.history == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		record, err := h.history.FindByID(id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		job = record.ToJob()
	}

	if job.LastKnownState != domain.StateSuccess {
		c.JSON(http.StatusConflict, gin.H{"error": "job has not completed"})
		return
	}

	if err := h.tracker.RetrieveFile(c.Request.Context(), job); err != nil {
		if errors.Is(err, domain.ErrRetrievalInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": domain.FailureMessage(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "artifact retrieved", "job_id": id})
}

// ListHistory handles GET /tracker/history
func (h *TrackerHandler) ListHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusOK, gin.H{"records": []*domain.JobRecord{}, "count": 0})
		return
	}

	filters := make(map[string]interface{})
	if outcome, ok := c.GetQuery("outcome"); ok {
		filters["outcome"] = outcome
	}
	if source := c.Query("source"); source != "" {
		filters["source_id"] = source
	}
	if state := c.Query("state"); state != "" {
		filters["state"] = domain.ParseJobState(state)
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}

	records, err := h.history.FindAll(filters, limit)
	if err != nil {
		h.logger.Error("Failed to list history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"count":   len(records),
	})
}

// GetHistoryRecord handles GET /tracker/history/:id
func (h *TrackerHandler) GetHistoryRecord(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history disabled"})
		return
	}

	record, err := h.history.FindByID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, record)
}

// GetStats handles GET /tracker/stats
func (h *TrackerHandler) GetStats(c *gin.Context) {
	stats := &domain.HistoryStats{}
	if h.history != nil {
		var err error
		stats, err = h.history.GetStats()
		if err != nil {
			h.logger.Error("Failed to get stats", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get stats"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"tracked": h.tracker.Len(),
		"history": stats,
	})
}
