package infrastructure

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/yourusername/manga-dl-go/internal/domain"
)

// ArtifactStore persists a downloaded archive and returns its location
type ArtifactStore interface {
	Save(ctx context.Context, name string, artifact *domain.Artifact) (string, error)
}

// LocalArtifactStore writes archives into a directory
type LocalArtifactStore struct {
	dir string
}

// NewLocalArtifactStore creates a store rooted at dir
func NewLocalArtifactStore(dir string) *LocalArtifactStore {
	return &LocalArtifactStore{dir: dir}
}

// Save streams the artifact to <dir>/<name>, never overwriting an existing file
func (s *LocalArtifactStore) Save(ctx context.Context, name string, artifact *domain.Artifact) (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".partial-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, contextReader{ctx: ctx, r: artifact.Body}); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}

	target, err := claimPath(filepath.Join(s.dir, name))
	if err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		os.Remove(target)
		return "", fmt.Errorf("failed to move artifact into place: %w", err)
	}
	return target, nil
}

// claimPath reserves the first free name among path, "base (1).ext", ... by
// creating an empty placeholder with O_EXCL. The caller renames onto it.
func claimPath(path string) (string, error) {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	candidate := path
	for i := 1; ; i++ {
		f, err := os.OpenFile(candidate, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			f.Close()
			return candidate, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("failed to reserve artifact name: %w", err)
		}
		candidate = fmt.Sprintf("%s (%d)%s", base, i, ext)
	}
}

// contextReader stops a copy once ctx is done
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// NewArtifactRetriever builds the retriever selected by the retrieval config.
// With retrieval disabled jobs are resolved to their backend file URL only.
func NewArtifactRetriever(cfg *domain.RetrievalConfig, client *BackendClient, log *zap.Logger) (domain.ArtifactRetriever, error) {
	if !cfg.Enabled {
		return NewLinkRetriever(client.FileURL), nil
	}

	var store ArtifactStore
	switch cfg.Storage {
	case "local", "":
		store = NewLocalArtifactStore(cfg.OutputDir)
	case "s3":
		s3Store, err := NewS3ArtifactStore(&cfg.S3)
		if err != nil {
			return nil, err
		}
		store = s3Store
	default:
		return nil, fmt.Errorf("unknown retrieval storage: %s", cfg.Storage)
	}

	return NewStoringRetriever(client, store, log), nil
}
