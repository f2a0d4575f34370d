package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrJobNotTracked is returned for operations on an ID the tracker does not hold
	ErrJobNotTracked = errors.New("job not tracked")
	// ErrRetrievalInProgress is returned when a retrieval for the job is already running
	ErrRetrievalInProgress = errors.New("retrieval already in progress")
	// ErrTrackerStopped is returned when a job cannot be registered after teardown
	ErrTrackerStopped = errors.New("tracker stopped")
	// ErrInvalidFormat is returned for an unsupported archive format
	ErrInvalidFormat = errors.New("invalid archive format")
	// ErrNoChapters is returned when a download request selects no chapters
	ErrNoChapters = errors.New("no chapters selected")
)

// TransportError means the request never completed
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// BackendError is a non-2xx response, with the backend-provided detail when present
type BackendError struct {
	Op         string
	StatusCode int
	Detail     string
}

func (e *BackendError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s: backend returned %d", e.Op, e.StatusCode)
}

// UnknownStateError is a parsed status response carrying an unrecognized state
type UnknownStateError struct {
	JobID string
	State string
}

func (e *UnknownStateError) Error() string {
	return fmt.Sprintf("job %s: unrecognized state %q", e.JobID, e.State)
}

// FailureMessage normalizes any error into a single user-visible message:
// a human summary plus the backend detail when one is available.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}

	var backendErr *BackendError
	if errors.As(err, &backendErr) {
		msg := fmt.Sprintf("Network error: backend responded with %d %s",
			backendErr.StatusCode, http.StatusText(backendErr.StatusCode))
		msg = strings.TrimSpace(msg)
		if backendErr.Detail != "" {
			msg += ": " + backendErr.Detail
		}
		return msg
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return "Network error: could not reach backend (" + transportErr.Err.Error() + ")"
	}

	var unknownErr *UnknownStateError
	if errors.As(err, &unknownErr) {
		return fmt.Sprintf("Unrecognized job state %q", unknownErr.State)
	}

	return "Network error: " + err.Error()
}

// JobFailureMessage builds the message shown for a backend-reported FAILURE
func JobFailureMessage(detail string) string {
	detail = strings.TrimSpace(detail)
	if detail == "" {
		return "Download failed"
	}
	return "Download failed: " + detail
}
