package domain

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// ArchiveFormat is the archive type the backend builds for a download
type ArchiveFormat string

const (
	FormatPDF  ArchiveFormat = "pdf"
	FormatCBZ  ArchiveFormat = "cbz"
	FormatCBR  ArchiveFormat = "cbr"
	FormatEPUB ArchiveFormat = "epub"
)

// ValidateFormat checks if an archive format is supported
func ValidateFormat(format ArchiveFormat) bool {
	switch format {
	case FormatPDF, FormatCBZ, FormatCBR, FormatEPUB:
		return true
	default:
		return false
	}
}

// ChapterRef identifies one chapter selected for download
type ChapterRef struct {
	ID     string `json:"id"`
	Number string `json:"chapter"`
}

// QueryID encodes the chapter as "<chapterId>_<chapterNumber>"
func (c ChapterRef) QueryID() string {
	return fmt.Sprintf("%s_%s", c.ID, c.Number)
}

// EnqueueRequest is a request to build an archive from a set of chapters
type EnqueueRequest struct {
	ComicID    string        `json:"comic_id"`
	ComicTitle string        `json:"comic_title"`
	Source     string        `json:"source" binding:"required"`
	Format     ArchiveFormat `json:"format"`
	Chapters   []ChapterRef  `json:"chapters" binding:"required"`
}

// Validate checks the request and fills defaults
func (r *EnqueueRequest) Validate() error {
	if len(r.Chapters) == 0 {
		return ErrNoChapters
	}
	if strings.TrimSpace(r.Source) == "" {
		return fmt.Errorf("source is required")
	}
	if r.Format == "" {
		r.Format = FormatPDF
	}
	r.Format = ArchiveFormat(strings.ToLower(string(r.Format)))
	if !ValidateFormat(r.Format) {
		return fmt.Errorf("%w: %s", ErrInvalidFormat, r.Format)
	}
	if strings.TrimSpace(r.ComicTitle) == "" {
		r.ComicTitle = DefaultComicTitle
	}
	return nil
}

// Metadata returns the job metadata captured for this request
func (r *EnqueueRequest) Metadata() JobMetadata {
	return JobMetadata{
		ComicID:      r.ComicID,
		ComicTitle:   r.ComicTitle,
		SourceID:     r.Source,
		ChapterCount: len(r.Chapters),
		Format:       r.Format,
	}
}

// Artifact is a completed archive streamed from the backend
type Artifact struct {
	Body        io.ReadCloser
	FileName    string
	ContentType string
	Size        int64
}

// JobQueue is the backend job-queue API
type JobQueue interface {
	// Enqueue submits a download and returns the backend task ID
	Enqueue(ctx context.Context, req EnqueueRequest) (string, error)

	// Status fetches the current state of a job
	Status(ctx context.Context, jobID string) (*StatusReport, error)

	// FetchFile opens the artifact stream of a completed job
	FetchFile(ctx context.Context, jobID string) (*Artifact, error)

	// Cancel asks the backend to cancel a job
	Cancel(ctx context.Context, jobID string) error
}

// Comic is a search result from a content source
type Comic struct {
	ID                 string            `json:"id"`
	Title              map[string]string `json:"title"`
	CoverArt           string            `json:"cover_art"`
	AvailableLanguages []string          `json:"availableLanguages"`
}

// DisplayTitle picks the English title, then any title, then the ID
func (c Comic) DisplayTitle() string {
	if t, ok := c.Title["en"]; ok && t != "" {
		return t
	}
	for _, t := range c.Title {
		if t != "" {
			return t
		}
	}
	return c.ID
}

// Chapter is one chapter of a comic, flattened out of its volume
type Chapter struct {
	ID     string `json:"id"`
	Number string `json:"chapter"`
	Volume string `json:"volume"`
}

// Ref returns the chapter reference used for enqueueing
func (c Chapter) Ref() ChapterRef {
	return ChapterRef{ID: c.ID, Number: c.Number}
}

// Catalog is the search and chapter listing side of the backend
type Catalog interface {
	Search(ctx context.Context, title, source string) ([]Comic, error)
	SearchAll(ctx context.Context, title string) (map[string][]Comic, error)
	Chapters(ctx context.Context, comicID, source string) ([]Chapter, error)
	SourceHealth(ctx context.Context) (map[string]string, error)
}

// ArtifactRetriever fetches and stores the archive of a completed job
type ArtifactRetriever interface {
	// Retrieve returns the location the artifact was stored at
	Retrieve(ctx context.Context, job DownloadJob) (string, error)
}

// JobNotifier receives user-facing tracker events
type JobNotifier interface {
	NotifyRetrievalSucceeded(job DownloadJob, location string)
	NotifyRetrievalFailed(job DownloadJob, err error)
	NotifyJobFailed(job DownloadJob)
}
