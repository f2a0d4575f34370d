package infrastructure

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/yourusername/manga-dl-go/internal/domain"
)

// ProgressFunc returns a writer that receives the bytes of an artifact as
// they are read. size is -1 when unknown.
type ProgressFunc func(job domain.DownloadJob, size int64) io.Writer

// StoringRetriever downloads a completed job's archive from the backend
// and saves it into an ArtifactStore
type StoringRetriever struct {
	queue    domain.JobQueue
	store    ArtifactStore
	logger   *zap.Logger
	progress ProgressFunc
}

// NewStoringRetriever creates a new storing retriever
func NewStoringRetriever(queue domain.JobQueue, store ArtifactStore, log *zap.Logger) *StoringRetriever {
	if log == nil {
		log = zap.NewNop()
	}
	return &StoringRetriever{queue: queue, store: store, logger: log}
}

// SetProgressFunc installs a byte-progress sink
func (r *StoringRetriever) SetProgressFunc(fn ProgressFunc) {
	r.progress = fn
}

// Retrieve fetches the archive and returns where it was stored
func (r *StoringRetriever) Retrieve(ctx context.Context, job domain.DownloadJob) (string, error) {
	artifact, err := r.queue.FetchFile(ctx, job.JobID)
	if err != nil {
		return "", err
	}
	defer artifact.Body.Close()

	if r.progress != nil {
		if w := r.progress(job, artifact.Size); w != nil {
			artifact.Body = readCloser{Reader: io.TeeReader(artifact.Body, w), Closer: artifact.Body}
		}
	}

	name := artifactFileName(job, artifact.FileName)
	location, err := r.store.Save(ctx, name, artifact)
	if err != nil {
		return "", fmt.Errorf("failed to store artifact for job %s: %w", job.JobID, err)
	}

	r.logger.Info("Artifact stored",
		zap.String("job_id", job.JobID),
		zap.String("comic_title", job.DisplayTitle()),
		zap.String("location", location))
	return location, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

var unsafeFileChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]+`)

// artifactFileName prefers the server-provided name, falling back to <job_id>.<format>
func artifactFileName(job domain.DownloadJob, serverName string) string {
	name := strings.TrimSpace(filepath.Base(filepath.Clean("/" + serverName)))
	name = unsafeFileChars.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == "/" || name == "_" {
		format := job.Metadata.Format
		if format == "" {
			format = domain.FormatPDF
		}
		name = fmt.Sprintf("%s.%s", unsafeFileChars.ReplaceAllString(job.JobID, "_"), format)
	}
	return name
}

// LinkRetriever resolves a job to the backend URL its artifact is served
// from without downloading it
type LinkRetriever struct {
	fileURL func(jobID string) string
}

// NewLinkRetriever creates a new link retriever
func NewLinkRetriever(fileURL func(jobID string) string) *LinkRetriever {
	return &LinkRetriever{fileURL: fileURL}
}

// Retrieve returns the artifact URL
func (r *LinkRetriever) Retrieve(ctx context.Context, job domain.DownloadJob) (string, error) {
	return r.fileURL(job.JobID), nil
}
