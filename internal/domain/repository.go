package domain

import "time"

// JobOutcome is the final result recorded for a job in history
type JobOutcome string

const (
	OutcomeActive          JobOutcome = ""
	OutcomeRetrieved       JobOutcome = "retrieved"
	OutcomeRetrievalFailed JobOutcome = "retrieval_failed"
	OutcomeFailed          JobOutcome = "failed"
	OutcomeCancelled       JobOutcome = "cancelled"
)

// JobRecord is the persisted history row of a tracked job
type JobRecord struct {
	JobID            string        `json:"job_id" gorm:"primaryKey"`
	ComicID          string        `json:"comic_id"`
	ComicTitle       string        `json:"comic_title"`
	SourceID         string        `json:"source_id" gorm:"index"`
	ChapterCount     int           `json:"chapter_count"`
	Format           ArchiveFormat `json:"format"`
	State            JobState      `json:"state" gorm:"not null"`
	Progress         int           `json:"progress"`
	Message          string        `json:"message,omitempty"`
	Outcome          JobOutcome    `json:"outcome,omitempty" gorm:"index"`
	ArtifactLocation string        `json:"artifact_location,omitempty"`
	EnqueuedAt       time.Time     `json:"enqueued_at"`
	FinishedAt       *time.Time    `json:"finished_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time     `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName returns the database table name for JobRecord
func (JobRecord) TableName() string {
	return "job_records"
}

// NewJobRecord builds a history row from a tracked job
func NewJobRecord(job DownloadJob) *JobRecord {
	return &JobRecord{
		JobID:        job.JobID,
		ComicID:      job.Metadata.ComicID,
		ComicTitle:   job.Metadata.ComicTitle,
		SourceID:     job.Metadata.SourceID,
		ChapterCount: job.Metadata.ChapterCount,
		Format:       job.Metadata.Format,
		State:        job.LastKnownState,
		Progress:     job.Progress(),
		Message:      job.Message,
		EnqueuedAt:   job.EnqueuedAt,
	}
}

// ToJob rebuilds the tracked job view of a record
func (r *JobRecord) ToJob() DownloadJob {
	job := DownloadJob{
		JobID: r.JobID,
		Metadata: JobMetadata{
			ComicID:      r.ComicID,
			ComicTitle:   r.ComicTitle,
			SourceID:     r.SourceID,
			ChapterCount: r.ChapterCount,
			Format:       r.Format,
		},
		EnqueuedAt:     r.EnqueuedAt,
		LastKnownState: r.State,
		Message:        r.Message,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.Progress >= 0 && r.State == StateProgress {
		p := r.Progress
		job.ProgressPercent = &p
	}
	return job
}

// JobHistoryRepository defines the interface for job history persistence
type JobHistoryRepository interface {
	// Save inserts or replaces a record
	Save(record *JobRecord) error

	// UpdateState stores the latest polled state of a job
	UpdateState(job DownloadJob) error

	// MarkOutcome stores the final outcome of a job
	MarkOutcome(jobID string, outcome JobOutcome, detail string) error

	// FindByID finds a record by job ID
	FindByID(jobID string) (*JobRecord, error)

	// FindActive finds records without an outcome, oldest first
	FindActive() ([]*JobRecord, error)

	// FindAll finds all records with optional filters, newest first
	FindAll(filters map[string]interface{}, limit int) ([]*JobRecord, error)

	// GetStats returns history statistics
	GetStats() (*HistoryStats, error)
}

// HistoryStats represents job history statistics
type HistoryStats struct {
	Total           int64 `json:"total"`
	Active          int64 `json:"active"`
	Retrieved       int64 `json:"retrieved"`
	RetrievalFailed int64 `json:"retrieval_failed"`
	Failed          int64 `json:"failed"`
	Cancelled       int64 `json:"cancelled"`
}
