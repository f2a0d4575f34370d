package app

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/yourusername/manga-dl-go/internal/domain"
)

// statusStep is one scripted backend answer for a status poll
type statusStep struct {
	report *domain.StatusReport
	err    error
	panic  interface{}
}

func stateStep(state domain.JobState) statusStep {
	return statusStep{report: &domain.StatusReport{State: state, RawState: string(state)}}
}

func progressStep(p int) statusStep {
	return statusStep{report: &domain.StatusReport{State: domain.StateProgress, RawState: "PROGRESS", Progress: &p}}
}

// mockQueue implements domain.JobQueue for testing
type mockQueue struct {
	mu         sync.Mutex
	steps      map[string][]statusStep
	calls      map[string]int
	block      chan struct{}
	nextID     int
	enqueued   []domain.EnqueueRequest
	enqueueErr error
	cancelErr  error
	cancelled  []string
	// onCancel runs inside Cancel before it returns
	onCancel func(jobID string)
}

func newMockQueue() *mockQueue {
	return &mockQueue{
		steps: make(map[string][]statusStep),
		calls: make(map[string]int),
	}
}

func (m *mockQueue) script(jobID string, steps ...statusStep) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps[jobID] = append(m.steps[jobID], steps...)
}

func (m *mockQueue) statusCalls(jobID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[jobID]
}

func (m *mockQueue) Enqueue(ctx context.Context, req domain.EnqueueRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enqueueErr != nil {
		return "", m.enqueueErr
	}
	m.nextID++
	m.enqueued = append(m.enqueued, req)
	return fmt.Sprintf("task-%d", m.nextID), nil
}

func (m *mockQueue) Status(ctx context.Context, jobID string) (*domain.StatusReport, error) {
	m.mu.Lock()
	m.calls[jobID]++
	block := m.block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	steps := m.steps[jobID]
	if len(steps) == 0 {
		return &domain.StatusReport{State: domain.StatePending, RawState: "PENDING"}, nil
	}
	step := steps[0]
	if len(steps) > 1 {
		m.steps[jobID] = steps[1:]
	}
	if step.panic != nil {
		panic(step.panic)
	}
	return step.report, step.err
}

func (m *mockQueue) FetchFile(ctx context.Context, jobID string) (*domain.Artifact, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *mockQueue) Cancel(ctx context.Context, jobID string) error {
	m.mu.Lock()
	hook := m.onCancel
	if m.cancelErr != nil {
		m.mu.Unlock()
		return m.cancelErr
	}
	m.cancelled = append(m.cancelled, jobID)
	m.mu.Unlock()

	if hook != nil {
		hook(jobID)
	}
	return nil
}

// mockRetriever implements domain.ArtifactRetriever for testing
type mockRetriever struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
	err     error
}

func (m *mockRetriever) Retrieve(ctx context.Context, job domain.DownloadJob) (string, error) {
	m.mu.Lock()
	m.calls++
	release := m.release
	m.mu.Unlock()

	if release != nil {
		<-release
	}
	if m.err != nil {
		return "", m.err
	}
	return "/downloads/" + job.JobID + ".pdf", nil
}

func (m *mockRetriever) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockHistory implements domain.JobHistoryRepository for testing
type mockHistory struct {
	mu      sync.Mutex
	records map[string]*domain.JobRecord
}

func newMockHistory() *mockHistory {
	return &mockHistory{records: make(map[string]*domain.JobRecord)}
}

func (m *mockHistory) Save(record *domain.JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *record
	m.records[record.JobID] = &copied
	return nil
}

func (m *mockHistory) UpdateState(job domain.DownloadJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[job.JobID]; ok {
		r.State = job.LastKnownState
		r.Progress = job.Progress()
		r.Message = job.Message
	}
	return nil
}

func (m *mockHistory) MarkOutcome(jobID string, outcome domain.JobOutcome, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[jobID]; ok {
		r.Outcome = outcome
		if outcome == domain.OutcomeRetrieved {
			r.ArtifactLocation = detail
		} else if detail != "" {
			r.Message = detail
		}
	}
	return nil
}

func (m *mockHistory) FindByID(jobID string) (*domain.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[jobID]
	if !ok {
		return nil, fmt.Errorf("job record not found: %s", jobID)
	}
	copied := *r
	return &copied, nil
}

func (m *mockHistory) FindActive() ([]*domain.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var active []*domain.JobRecord
	for _, r := range m.records {
		if r.Outcome == domain.OutcomeActive {
			copied := *r
			active = append(active, &copied)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].EnqueuedAt.Before(active[j].EnqueuedAt) })
	return active, nil
}

func (m *mockHistory) FindAll(filters map[string]interface{}, limit int) ([]*domain.JobRecord, error) {
	return nil, nil
}

func (m *mockHistory) GetStats() (*domain.HistoryStats, error) { return &domain.HistoryStats{}, nil }

func (m *mockHistory) outcome(jobID string) domain.JobOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[jobID]; ok {
		return r.Outcome
	}
	return ""
}

// mockNotifier implements domain.JobNotifier for testing
type mockNotifier struct {
	mu        sync.Mutex
	succeeded []string
	failed    []string
	jobFailed []string
}

func (m *mockNotifier) NotifyRetrievalSucceeded(job domain.DownloadJob, location string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.succeeded = append(m.succeeded, job.JobID)
}

func (m *mockNotifier) NotifyRetrievalFailed(job domain.DownloadJob, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, job.JobID)
}

func (m *mockNotifier) NotifyJobFailed(job domain.DownloadJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobFailed = append(m.jobFailed, job.JobID)
}

func (m *mockNotifier) counts() (int, int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.succeeded), len(m.failed), len(m.jobFailed)
}
