package domain

import (
	"strings"
	"time"
)

// JobState represents the backend-reported state of a download job
type JobState string

const (
	StatePending  JobState = "PENDING"
	StateProgress JobState = "PROGRESS"
	StateSuccess  JobState = "SUCCESS"
	StateFailure  JobState = "FAILURE"
	StateUnknown  JobState = "UNKNOWN"
)

// DefaultComicTitle is the display label used when a job carries no title
const DefaultComicTitle = "Chapters"

// ParseJobState maps a raw backend state onto a JobState.
// Unrecognized values map to StateUnknown.
func ParseJobState(raw string) JobState {
	switch JobState(strings.ToUpper(strings.TrimSpace(raw))) {
	case StatePending:
		return StatePending
	case StateProgress:
		return StateProgress
	case StateSuccess:
		return StateSuccess
	case StateFailure:
		return StateFailure
	default:
		return StateUnknown
	}
}

// IsTerminal reports whether no further transitions are expected
func (s JobState) IsTerminal() bool {
	return s == StateSuccess || s == StateFailure
}

// JobMetadata is the descriptive data captured when a job is enqueued
type JobMetadata struct {
	ComicID      string        `json:"comic_id"`
	ComicTitle   string        `json:"comic_title"`
	SourceID     string        `json:"source_id"`
	ChapterCount int           `json:"chapter_count"`
	Format       ArchiveFormat `json:"format,omitempty"`
}

// DownloadJob is the client-side view of a backend download job
type DownloadJob struct {
	JobID           string      `json:"job_id"`
	Metadata        JobMetadata `json:"metadata"`
	EnqueuedAt      time.Time   `json:"enqueued_at"`
	LastKnownState  JobState    `json:"state"`
	ProgressPercent *int        `json:"progress,omitempty"`
	Message         string      `json:"message,omitempty"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// NewDownloadJob creates a tracked job in the PENDING state
func NewDownloadJob(jobID string, meta JobMetadata) DownloadJob {
	now := time.Now()
	return DownloadJob{
		JobID:          jobID,
		Metadata:       meta,
		EnqueuedAt:     now,
		LastKnownState: StatePending,
		UpdatedAt:      now,
	}
}

// IsTerminal checks if the job is in a terminal state
func (j DownloadJob) IsTerminal() bool {
	return j.LastKnownState.IsTerminal()
}

// DisplayTitle returns the comic title, or a generic label when none was captured
func (j DownloadJob) DisplayTitle() string {
	if title := strings.TrimSpace(j.Metadata.ComicTitle); title != "" {
		return title
	}
	return DefaultComicTitle
}

// Progress returns the progress percentage, or -1 when unknown
func (j DownloadJob) Progress() int {
	if j.ProgressPercent == nil {
		return -1
	}
	return *j.ProgressPercent
}

// Clone returns a copy that shares no pointers with j
func (j DownloadJob) Clone() DownloadJob {
	if j.ProgressPercent != nil {
		p := *j.ProgressPercent
		j.ProgressPercent = &p
	}
	return j
}

// StatusReport is a parsed status response for one job
type StatusReport struct {
	State    JobState
	RawState string
	Progress *int
	Error    string
	Status   string
}

// clampPercent keeps a progress value inside 0..100
func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
