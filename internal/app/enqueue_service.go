package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/yourusername/manga-dl-go/internal/domain"
)

// EnqueueService submits download requests to the backend and hands the
// resulting job IDs to the tracker
type EnqueueService struct {
	queue   domain.JobQueue
	tracker *Tracker
	logger  *zap.Logger
}

// NewEnqueueService creates a new enqueue service
func NewEnqueueService(queue domain.JobQueue, tracker *Tracker, log *zap.Logger) *EnqueueService {
	if log == nil {
		log = zap.NewNop()
	}
	return &EnqueueService{
		queue:   queue,
		tracker: tracker,
		logger:  log,
	}
}

// Enqueue validates the request, submits it, and registers the job for tracking
func (s *EnqueueService) Enqueue(ctx context.Context, req domain.EnqueueRequest) (domain.DownloadJob, error) {
	if err := req.Validate(); err != nil {
		return domain.DownloadJob{}, err
	}

	jobID, err := s.queue.Enqueue(ctx, req)
	if err != nil {
		s.logger.Error("Failed to enqueue download",
			zap.String("comic_title", req.ComicTitle),
			zap.Int("chapters", len(req.Chapters)),
			zap.Error(err))
		return domain.DownloadJob{}, fmt.Errorf("failed to enqueue download: %w", err)
	}

	if !s.tracker.RegisterJob(jobID, req.Metadata()) {
		s.logger.Debug("Job not registered", zap.String("job_id", jobID))
	}

	job, ok := s.tracker.Get(jobID)
	if !ok {
		s.logger.Warn("Enqueued job is not tracked", zap.String("job_id", jobID))
		return domain.DownloadJob{}, fmt.Errorf("%w: job %s not tracked", domain.ErrTrackerStopped, jobID)
	}

	s.logger.Info("Download enqueued",
		zap.String("job_id", jobID),
		zap.String("comic_title", req.ComicTitle),
		zap.String("format", string(req.Format)),
		zap.Int("chapters", len(req.Chapters)))

	return job, nil
}
