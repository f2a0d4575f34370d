package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/manga-dl-go/internal/domain"
	"github.com/yourusername/manga-dl-go/pkg/logger"
)

// Tracker keeps the client-side view of outstanding backend download jobs
// consistent with the backend-reported state.
type Tracker struct {
	queue       domain.JobQueue
	retriever   domain.ArtifactRetriever
	notifier    domain.JobNotifier
	history     domain.JobHistoryRepository
	config      *domain.TrackerConfig
	logger      *zap.Logger
	multiLogger *logger.MultiLogger

	store      *JobStore
	polling    *keyedSet
	retrieving *keyedSet

	// lifeMu guards alive; mutations hold it for reading so none can land after teardown
	lifeMu sync.RWMutex
	alive  bool

	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}
	workerWg sync.WaitGroup

	retrievalWg sync.WaitGroup

	timersMu    sync.Mutex
	pruneTimers map[string]*time.Timer

	publishMu sync.Mutex
	snapshots chan []domain.DownloadJob

	now func() time.Time
}

// NewTracker creates a new task tracker
func NewTracker(
	queue domain.JobQueue,
	retriever domain.ArtifactRetriever,
	config *domain.TrackerConfig,
	log *zap.Logger,
) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		queue:       queue,
		retriever:   retriever,
		config:      config,
		logger:      log,
		store:       NewJobStore(),
		polling:     newKeyedSet(),
		retrieving:  newKeyedSet(),
		alive:       true,
		stopChan:    make(chan struct{}),
		pruneTimers: make(map[string]*time.Timer),
		snapshots:   make(chan []domain.DownloadJob, 1),
		now:         time.Now,
	}
}

// SetNotifier sets the receiver of user-facing events
func (t *Tracker) SetNotifier(notifier domain.JobNotifier) {
	t.notifier = notifier
}

// SetHistory sets the job history repository
func (t *Tracker) SetHistory(history domain.JobHistoryRepository) {
	t.history = history
}

// SetMultiLogger sets the categorised event logger
func (t *Tracker) SetMultiLogger(multiLogger *logger.MultiLogger) {
	t.multiLogger = multiLogger
}

// RegisterJob adds a job in the PENDING state. Registering an ID that is
// already tracked is a no-op and returns false.
func (t *Tracker) RegisterJob(jobID string, meta domain.JobMetadata) bool {
	t.lifeMu.RLock()
	defer t.lifeMu.RUnlock()
	if !t.alive || jobID == "" {
		return false
	}

	job := domain.NewDownloadJob(jobID, meta)
	if !t.store.Insert(job) {
		return false
	}

	if t.history != nil {
		if err := t.history.Save(domain.NewJobRecord(job)); err != nil {
			t.logger.Warn("Failed to record job", zap.String("job_id", jobID), zap.Error(err))
		}
	}

	t.logEvent("job_registered",
		zap.String("job_id", jobID),
		zap.String("comic_title", job.DisplayTitle()),
		zap.String("source", meta.SourceID),
		zap.Int("chapters", meta.ChapterCount))

	t.publish()
	return true
}

// Restore re-registers jobs that history still holds as active
func (t *Tracker) Restore() (int, error) {
	if t.history == nil {
		return 0, nil
	}

	records, err := t.history.FindActive()
	if err != nil {
		return 0, fmt.Errorf("failed to load active jobs: %w", err)
	}

	t.lifeMu.RLock()
	defer t.lifeMu.RUnlock()
	if !t.alive {
		return 0, nil
	}

	restored := 0
	for _, record := range records {
		job := record.ToJob()
		if job.IsTerminal() || job.LastKnownState == domain.StateUnknown {
			// Poll again to re-trigger retrieval or re-observe the failure.
			job.LastKnownState = domain.StatePending
			job.ProgressPercent = nil
			job.Message = ""
		}
		if t.store.Insert(job) {
			restored++
		}
	}

	if restored > 0 {
		t.logEvent("jobs_restored", zap.Int("count", restored))
		t.publish()
	}
	return restored, nil
}

// PollOnce issues one status request for every tracked non-terminal job whose
// previous poll has resolved, and applies the results. Per-job failures are
// converted into job state; PollOnce itself never fails.
func (t *Tracker) PollOnce(ctx context.Context) {
	if !t.isAlive() {
		return
	}

	g := new(errgroup.Group)
	if t.config.MaxConcurrentPolls > 0 {
		g.SetLimit(t.config.MaxConcurrentPolls)
	}

	for _, job := range t.store.Snapshot() {
		if job.IsTerminal() {
			continue
		}
		if !t.polling.TryAcquire(job.JobID) {
			t.logger.Debug("Skipping job with outstanding poll", zap.String("job_id", job.JobID))
			continue
		}

		id := job.JobID
		g.Go(func() error {
			defer t.polling.Release(id)
			report, err := t.fetchStatus(ctx, id)
			t.apply(ctx, id, domain.PollOutcome{Report: report, Err: err})
			return nil
		})
	}

	_ = g.Wait()
}

// fetchStatus calls the backend and turns a panic into an error
func (t *Tracker) fetchStatus(ctx context.Context, id string) (report *domain.StatusReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			report = nil
			err = fmt.Errorf("status check panicked: %v", r)
		}
	}()
	return t.queue.Status(ctx, id)
}

// apply runs the transition for one poll result and its side effects
func (t *Tracker) apply(ctx context.Context, id string, outcome domain.PollOutcome) {
	t.lifeMu.RLock()
	defer t.lifeMu.RUnlock()
	if !t.alive {
		return
	}

	var decision domain.Decision
	_, tracked := t.store.Update(id, func(current domain.DownloadJob) domain.DownloadJob {
		decision = domain.Transition(current, outcome, t.config.PruneDelays(), t.now())
		return decision.Job
	})
	if !tracked {
		t.logger.Debug("Ignoring status for untracked job", zap.String("job_id", id))
		return
	}

	if decision.Unknown != nil {
		t.logger.Warn("Unrecognized job state", zap.String("job_id", id), zap.Error(decision.Unknown))
	}
	if !decision.Changed {
		return
	}

	job := decision.Job
	if t.history != nil {
		if err := t.history.UpdateState(job); err != nil {
			t.logger.Warn("Failed to record job state", zap.String("job_id", id), zap.Error(err))
		}
	}

	switch decision.Effect {
	case domain.EffectRetrieveAndPrune:
		t.logEvent("job_succeeded", zap.String("job_id", id))
		t.startRetrieval(ctx, job)
		t.store.Delete(id)
		t.cancelPrune(id)
		t.logEvent("job_pruned", zap.String("job_id", id), zap.String("state", string(job.LastKnownState)))

	case domain.EffectPruneLater:
		t.logEvent("job_failed",
			zap.String("job_id", id),
			zap.String("message", job.Message),
			zap.Duration("prune_in", decision.PruneDelay))
		if t.multiLogger != nil {
			t.multiLogger.LogAppError("Download job failed", zap.String("job_id", id), zap.String("message", job.Message))
		}
		if t.history != nil {
			if err := t.history.MarkOutcome(id, domain.OutcomeFailed, job.Message); err != nil {
				t.logger.Warn("Failed to record job outcome", zap.String("job_id", id), zap.Error(err))
			}
		}
		if t.notifier != nil {
			t.notifier.NotifyJobFailed(job)
		}
		t.schedulePrune(id, decision.PruneDelay)

	default:
		t.logger.Debug("Job state updated",
			zap.String("job_id", id),
			zap.String("state", string(job.LastKnownState)),
			zap.Int("progress", job.Progress()))
	}

	t.publish()
}

// startRetrieval launches the automatic retrieval unless one is already running
func (t *Tracker) startRetrieval(ctx context.Context, job domain.DownloadJob) {
	if !t.retrieving.TryAcquire(job.JobID) {
		t.logger.Debug("Retrieval already in progress", zap.String("job_id", job.JobID))
		return
	}

	t.retrievalWg.Add(1)
	go func() {
		defer t.retrievalWg.Done()
		defer t.retrieving.Release(job.JobID)
		_ = t.retrieve(ctx, job)
	}()
}

// RetrieveFile fetches the artifact of a completed job. At most one retrieval
// per job runs at a time; a concurrent call returns ErrRetrievalInProgress.
func (t *Tracker) RetrieveFile(ctx context.Context, job domain.DownloadJob) error {
	if !t.retrieving.TryAcquire(job.JobID) {
		return domain.ErrRetrievalInProgress
	}
	defer t.retrieving.Release(job.JobID)

	return t.retrieve(ctx, job)
}

// IsRetrieving reports whether a retrieval for the job is in flight
func (t *Tracker) IsRetrieving(jobID string) bool {
	return t.retrieving.Contains(jobID)
}

// WaitForRetrievals blocks until all automatic retrievals have finished
func (t *Tracker) WaitForRetrievals() {
	t.retrievalWg.Wait()
}

func (t *Tracker) retrieve(ctx context.Context, job domain.DownloadJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("retrieval panicked: %v", r)
			t.retrievalFailed(job, err)
		}
	}()

	t.logEvent("retrieval_started", zap.String("job_id", job.JobID), zap.String("comic_title", job.DisplayTitle()))

	location, err := t.retriever.Retrieve(ctx, job)
	if err != nil {
		t.retrievalFailed(job, err)
		return err
	}

	t.logEvent("retrieval_completed", zap.String("job_id", job.JobID), zap.String("location", location))
	if t.history != nil {
		if herr := t.history.MarkOutcome(job.JobID, domain.OutcomeRetrieved, location); herr != nil {
			t.logger.Warn("Failed to record job outcome", zap.String("job_id", job.JobID), zap.Error(herr))
		}
	}
	if t.notifier != nil {
		t.notifier.NotifyRetrievalSucceeded(job, location)
	}
	return nil
}

func (t *Tracker) retrievalFailed(job domain.DownloadJob, err error) {
	t.logger.Error("Artifact retrieval failed", zap.String("job_id", job.JobID), zap.Error(err))
	if t.multiLogger != nil {
		t.multiLogger.LogAppError("Artifact retrieval failed", zap.String("job_id", job.JobID), zap.Error(err))
	}
	if t.history != nil {
		if herr := t.history.MarkOutcome(job.JobID, domain.OutcomeRetrievalFailed, domain.FailureMessage(err)); herr != nil {
			t.logger.Warn("Failed to record job outcome", zap.String("job_id", job.JobID), zap.Error(herr))
		}
	}
	if t.notifier != nil {
		t.notifier.NotifyRetrievalFailed(job, err)
	}
}

// CancelJob asks the backend to cancel a job. The job is removed only once
// the backend confirms; on failure it stays tracked.
func (t *Tracker) CancelJob(ctx context.Context, jobID string) error {
	if !t.store.Has(jobID) {
		return fmt.Errorf("%w: %s", domain.ErrJobNotTracked, jobID)
	}

	if err := t.queue.Cancel(ctx, jobID); err != nil {
		t.logger.Error("Failed to cancel job", zap.String("job_id", jobID), zap.Error(err))
		return fmt.Errorf("failed to cancel job %s: %w", jobID, err)
	}

	t.lifeMu.RLock()
	defer t.lifeMu.RUnlock()
	if !t.alive {
		return nil
	}

	if !t.store.Delete(jobID) {
		// A poll settled the job while the cancel was in flight; its outcome stands.
		t.logger.Debug("Cancelled job already pruned", zap.String("job_id", jobID))
		return nil
	}
	t.cancelPrune(jobID)

	if t.history != nil {
		if err := t.history.MarkOutcome(jobID, domain.OutcomeCancelled, ""); err != nil {
			t.logger.Warn("Failed to record job outcome", zap.String("job_id", jobID), zap.Error(err))
		}
	}

	t.logEvent("job_cancelled", zap.String("job_id", jobID))
	t.publish()
	return nil
}

// Get returns a tracked job
func (t *Tracker) Get(jobID string) (domain.DownloadJob, bool) {
	return t.store.Get(jobID)
}

// Snapshot returns the tracked jobs ordered by enqueue time
func (t *Tracker) Snapshot() []domain.DownloadJob {
	return t.store.Snapshot()
}

// Len returns the number of tracked jobs
func (t *Tracker) Len() int {
	return t.store.Len()
}

// Snapshots returns a stream of tracked-set snapshots. Only the latest
// unread snapshot is kept.
func (t *Tracker) Snapshots() <-chan []domain.DownloadJob {
	return t.snapshots
}

func (t *Tracker) publish() {
	t.publishMu.Lock()
	defer t.publishMu.Unlock()

	snap := t.store.Snapshot()
	select {
	case <-t.snapshots:
	default:
	}
	t.snapshots <- snap
}

func (t *Tracker) schedulePrune(jobID string, delay time.Duration) {
	t.timersMu.Lock()
	defer t.timersMu.Unlock()

	if old, ok := t.pruneTimers[jobID]; ok {
		old.Stop()
	}
	t.pruneTimers[jobID] = time.AfterFunc(delay, func() { t.prune(jobID) })
}

func (t *Tracker) cancelPrune(jobID string) {
	t.timersMu.Lock()
	defer t.timersMu.Unlock()

	if timer, ok := t.pruneTimers[jobID]; ok {
		timer.Stop()
		delete(t.pruneTimers, jobID)
	}
}

func (t *Tracker) prune(jobID string) {
	t.lifeMu.RLock()
	defer t.lifeMu.RUnlock()
	if !t.alive {
		return
	}

	t.timersMu.Lock()
	delete(t.pruneTimers, jobID)
	t.timersMu.Unlock()

	if t.store.Delete(jobID) {
		t.logEvent("job_pruned", zap.String("job_id", jobID), zap.String("state", string(domain.StateFailure)))
		t.publish()
	}
}

// Start starts the polling loop
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return fmt.Errorf("tracker already running")
	}
	if !t.isAlive() {
		t.mu.Unlock()
		return fmt.Errorf("tracker has been stopped")
	}
	t.running = true
	t.mu.Unlock()

	t.logEvent("tracker_started", zap.Duration("poll_interval", t.config.PollInterval))

	t.workerWg.Add(1)
	go t.pollLoop(ctx)

	return nil
}

// Stop stops the polling loop and tears the tracker down. Requests already
// in flight may complete but their results are discarded.
func (t *Tracker) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return fmt.Errorf("tracker not running")
	}
	t.running = false
	t.mu.Unlock()

	t.Close()
	close(t.stopChan)
	t.workerWg.Wait()

	t.logEvent("tracker_stopped")
	return nil
}

// Close marks the tracker torn down and stops all pending prune timers.
// It is safe to call more than once.
func (t *Tracker) Close() {
	t.lifeMu.Lock()
	t.alive = false
	t.lifeMu.Unlock()

	t.timersMu.Lock()
	for id, timer := range t.pruneTimers {
		timer.Stop()
		delete(t.pruneTimers, id)
	}
	t.timersMu.Unlock()
}

// IsRunning returns whether the polling loop is running
func (t *Tracker) IsRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

func (t *Tracker) isAlive() bool {
	t.lifeMu.RLock()
	defer t.lifeMu.RUnlock()
	return t.alive
}

func (t *Tracker) pollLoop(ctx context.Context) {
	defer t.workerWg.Done()

	ticker := time.NewTicker(t.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logEvent("tracker_loop_stopped", zap.String("reason", "context_cancelled"))
			return
		case <-t.stopChan:
			t.logEvent("tracker_loop_stopped", zap.String("reason", "stop_signal"))
			return
		case <-ticker.C:
			if t.store.Len() == 0 {
				continue
			}

			// Cycles are not awaited; the per-job polling guard prevents overlap.
			t.workerWg.Add(1)
			go func() {
				defer t.workerWg.Done()
				t.PollOnce(ctx)
			}()
		}
	}
}

func (t *Tracker) logEvent(event string, fields ...zap.Field) {
	if t.multiLogger != nil {
		t.multiLogger.LogTrackerEvent(event, fields...)
	}
	t.logger.Debug(event, fields...)
}

// IsNotTracked reports whether err means the job is not tracked
func IsNotTracked(err error) bool {
	return errors.Is(err, domain.ErrJobNotTracked)
}
