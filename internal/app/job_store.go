package app

import (
	"sort"
	"sync"

	"github.com/yourusername/manga-dl-go/internal/domain"
)

// JobStore holds the tracked jobs keyed by job ID.
// Upsert, Update and Delete are the only mutation primitives; each runs
// under the store lock so overlapping handlers cannot lose updates.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]domain.DownloadJob
}

// NewJobStore creates an empty job store
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]domain.DownloadJob)}
}

// Insert adds the job only if its ID is not tracked yet
func (s *JobStore) Insert(job domain.DownloadJob) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.JobID]; ok {
		return false
	}
	s.jobs[job.JobID] = job.Clone()
	return true
}

// Upsert adds or replaces a job
func (s *JobStore) Upsert(job domain.DownloadJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.JobID] = job.Clone()
}

// Update replaces a tracked job with fn(current). It is a no-op returning
// false when the ID is not tracked, so late results for pruned jobs are dropped.
func (s *JobStore) Update(id string, fn func(domain.DownloadJob) domain.DownloadJob) (domain.DownloadJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[id]
	if !ok {
		return domain.DownloadJob{}, false
	}
	next := fn(current.Clone())
	s.jobs[id] = next.Clone()
	return next, true
}

// Delete removes a job and reports whether it was tracked
func (s *JobStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return false
	}
	delete(s.jobs, id)
	return true
}

// Get returns a copy of a tracked job
func (s *JobStore) Get(id string) (domain.DownloadJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.DownloadJob{}, false
	}
	return job.Clone(), true
}

// Has reports whether the ID is tracked
func (s *JobStore) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.jobs[id]
	return ok
}

// Len returns the number of tracked jobs
func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Snapshot returns copies of all tracked jobs ordered by enqueue time
func (s *JobStore) Snapshot() []domain.DownloadJob {
	s.mu.RLock()
	jobs := make([]domain.DownloadJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].EnqueuedAt.Equal(jobs[j].EnqueuedAt) {
			return jobs[i].JobID < jobs[j].JobID
		}
		return jobs[i].EnqueuedAt.Before(jobs[j].EnqueuedAt)
	})
	return jobs
}

// keyedSet is a set of job IDs used as per-job in-flight guards
type keyedSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newKeyedSet() *keyedSet {
	return &keyedSet{keys: make(map[string]struct{})}
}

// TryAcquire adds the key and returns true, or returns false if it is already held
func (k *keyedSet) TryAcquire(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, ok := k.keys[key]; ok {
		return false
	}
	k.keys[key] = struct{}{}
	return true
}

// Release removes the key
func (k *keyedSet) Release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.keys, key)
}

// Contains reports whether the key is held
func (k *keyedSet) Contains(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.keys[key]
	return ok
}
