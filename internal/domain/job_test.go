package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDownloadJob(t *testing.T) {
	meta := JobMetadata{ComicID: "c1", ComicTitle: "Solo Leveling", SourceID: "9", ChapterCount: 5}

	job := NewDownloadJob("t1", meta)

	assert.Equal(t, "t1", job.JobID)
	assert.Equal(t, meta, job.Metadata)
	assert.Equal(t, StatePending, job.LastKnownState)
	assert.Nil(t, job.ProgressPercent)
	assert.False(t, job.EnqueuedAt.IsZero())
	assert.False(t, job.IsTerminal())
}

func TestParseJobState(t *testing.T) {
	tests := []struct {
		raw      string
		expected JobState
	}{
		{"PENDING", StatePending},
		{"PROGRESS", StateProgress},
		{"success", StateSuccess},
		{" FAILURE ", StateFailure},
		{"STARTED", StateUnknown},
		{"", StateUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseJobState(tt.raw))
		})
	}
}

func TestJobState_IsTerminal(t *testing.T) {
	assert.True(t, StateSuccess.IsTerminal())
	assert.True(t, StateFailure.IsTerminal())
	assert.False(t, StatePending.IsTerminal())
	assert.False(t, StateProgress.IsTerminal())
	assert.False(t, StateUnknown.IsTerminal())
}

func TestDownloadJob_DisplayTitle(t *testing.T) {
	job := NewDownloadJob("t1", JobMetadata{ComicTitle: "Tower of God"})
	assert.Equal(t, "Tower of God", job.DisplayTitle())

	job = NewDownloadJob("t2", JobMetadata{ComicTitle: "   "})
	assert.Equal(t, DefaultComicTitle, job.DisplayTitle())
}

func TestDownloadJob_CloneDoesNotSharePointer(t *testing.T) {
	p := 40
	job := NewDownloadJob("t1", JobMetadata{})
	job.ProgressPercent = &p

	clone := job.Clone()
	*clone.ProgressPercent = 90

	assert.Equal(t, 40, job.Progress())
	assert.Equal(t, 90, clone.Progress())
}

func TestChapterRef_QueryID(t *testing.T) {
	ref := ChapterRef{ID: "abc-123", Number: "12.5"}
	assert.Equal(t, "abc-123_12.5", ref.QueryID())
}

func TestEnqueueRequest_Validate(t *testing.T) {
	req := EnqueueRequest{
		Source:   "0",
		Chapters: []ChapterRef{{ID: "a", Number: "1"}},
	}

	require.NoError(t, req.Validate())
	assert.Equal(t, FormatPDF, req.Format)
	assert.Equal(t, DefaultComicTitle, req.ComicTitle)
	assert.Equal(t, 1, req.Metadata().ChapterCount)

	req = EnqueueRequest{Source: "0", Format: "CBZ", Chapters: []ChapterRef{{ID: "a", Number: "1"}}}
	require.NoError(t, req.Validate())
	assert.Equal(t, FormatCBZ, req.Format)
}

func TestEnqueueRequest_ValidateErrors(t *testing.T) {
	req := EnqueueRequest{Source: "0"}
	assert.ErrorIs(t, req.Validate(), ErrNoChapters)

	req = EnqueueRequest{Source: "0", Format: "mobi", Chapters: []ChapterRef{{ID: "a", Number: "1"}}}
	assert.ErrorIs(t, req.Validate(), ErrInvalidFormat)

	req = EnqueueRequest{Chapters: []ChapterRef{{ID: "a", Number: "1"}}}
	assert.Error(t, req.Validate())
}

func TestFailureMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "backend error with detail",
			err:      &BackendError{Op: "status", StatusCode: 500, Detail: "worker offline"},
			expected: "Network error: backend responded with 500 Internal Server Error: worker offline",
		},
		{
			name:     "backend error without detail",
			err:      &BackendError{Op: "status", StatusCode: 404},
			expected: "Network error: backend responded with 404 Not Found",
		},
		{
			name:     "transport error",
			err:      &TransportError{Op: "status", Err: errors.New("connection refused")},
			expected: "Network error: could not reach backend (connection refused)",
		},
		{
			name:     "unknown state",
			err:      &UnknownStateError{JobID: "t1", State: "REVOKED"},
			expected: `Unrecognized job state "REVOKED"`,
		},
		{
			name:     "plain error",
			err:      errors.New("unexpected EOF"),
			expected: "Network error: unexpected EOF",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FailureMessage(tt.err))
		})
	}

	assert.Empty(t, FailureMessage(nil))
}

func TestJobFailureMessage(t *testing.T) {
	assert.Equal(t, "Download failed", JobFailureMessage(""))
	assert.Equal(t, "Download failed: source timed out", JobFailureMessage("source timed out"))
}

func TestJobRecord_RoundTrip(t *testing.T) {
	p := 40
	job := NewDownloadJob("t1", JobMetadata{ComicID: "c", ComicTitle: "X", SourceID: "1", ChapterCount: 3, Format: FormatCBZ})
	job.LastKnownState = StateProgress
	job.ProgressPercent = &p

	record := NewJobRecord(job)
	back := record.ToJob()

	assert.Equal(t, job.JobID, back.JobID)
	assert.Equal(t, job.Metadata, back.Metadata)
	assert.Equal(t, StateProgress, back.LastKnownState)
	assert.Equal(t, 40, back.Progress())
}
