package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDelays = PruneDelays{Failure: time.Second, StatusError: 3 * time.Second}

func intPtr(v int) *int { return &v }

func TestTransition_Table(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name       string
		outcome    PollOutcome
		state      JobState
		progress   int
		effect     Effect
		pruneDelay time.Duration
	}{
		{
			name:     "pending",
			outcome:  PollOutcome{Report: &StatusReport{State: StatePending}},
			state:    StatePending,
			progress: -1,
			effect:   EffectNone,
		},
		{
			name:     "progress",
			outcome:  PollOutcome{Report: &StatusReport{State: StateProgress, Progress: intPtr(40)}},
			state:    StateProgress,
			progress: 40,
			effect:   EffectNone,
		},
		{
			name:     "progress clamped",
			outcome:  PollOutcome{Report: &StatusReport{State: StateProgress, Progress: intPtr(140)}},
			state:    StateProgress,
			progress: 100,
			effect:   EffectNone,
		},
		{
			name:     "success",
			outcome:  PollOutcome{Report: &StatusReport{State: StateSuccess}},
			state:    StateSuccess,
			progress: 100,
			effect:   EffectRetrieveAndPrune,
		},
		{
			name:       "failure",
			outcome:    PollOutcome{Report: &StatusReport{State: StateFailure, Error: "boom"}},
			state:      StateFailure,
			progress:   -1,
			effect:     EffectPruneLater,
			pruneDelay: time.Second,
		},
		{
			name:       "backend error",
			outcome:    PollOutcome{Err: &BackendError{Op: "status", StatusCode: 500}},
			state:      StateFailure,
			progress:   -1,
			effect:     EffectPruneLater,
			pruneDelay: 3 * time.Second,
		},
		{
			name:       "transport error",
			outcome:    PollOutcome{Err: &TransportError{Op: "status", Err: errors.New("dial tcp")}},
			state:      StateFailure,
			progress:   -1,
			effect:     EffectPruneLater,
			pruneDelay: 3 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewDownloadJob("t1", JobMetadata{ChapterCount: 5})

			decision := Transition(job, tt.outcome, testDelays, now)

			assert.True(t, decision.Changed)
			assert.Equal(t, tt.state, decision.Job.LastKnownState)
			assert.Equal(t, tt.progress, decision.Job.Progress())
			assert.Equal(t, tt.effect, decision.Effect)
			assert.Equal(t, tt.pruneDelay, decision.PruneDelay)
			assert.Equal(t, StatePending, job.LastKnownState, "input job must not be modified")
		})
	}
}

func TestTransition_FailureMessages(t *testing.T) {
	job := NewDownloadJob("t1", JobMetadata{})

	decision := Transition(job, PollOutcome{Report: &StatusReport{State: StateFailure, Error: "source offline"}}, testDelays, time.Now())
	assert.Equal(t, "Download failed: source offline", decision.Job.Message)

	decision = Transition(job, PollOutcome{Err: &BackendError{Op: "status", StatusCode: 500}}, testDelays, time.Now())
	assert.Contains(t, decision.Job.Message, "Network error")
}

func TestTransition_ProgressWithoutValueKeepsPrevious(t *testing.T) {
	job := NewDownloadJob("t1", JobMetadata{})
	job.LastKnownState = StateProgress
	job.ProgressPercent = intPtr(30)

	decision := Transition(job, PollOutcome{Report: &StatusReport{State: StateProgress}}, testDelays, time.Now())

	assert.Equal(t, 30, decision.Job.Progress())
}

func TestTransition_UnknownStateIsNoop(t *testing.T) {
	job := NewDownloadJob("t1", JobMetadata{})
	job.LastKnownState = StateProgress
	job.ProgressPercent = intPtr(10)

	decision := Transition(job, PollOutcome{Report: &StatusReport{State: StateUnknown, RawState: "RETRY"}}, testDelays, time.Now())

	assert.False(t, decision.Changed)
	assert.Equal(t, EffectNone, decision.Effect)
	assert.Equal(t, StateProgress, decision.Job.LastKnownState)
	assert.Equal(t, 10, decision.Job.Progress())
	require.NotNil(t, decision.Unknown)
	assert.Equal(t, "RETRY", decision.Unknown.State)
}

func TestTransition_TerminalJobIsNoop(t *testing.T) {
	job := NewDownloadJob("t1", JobMetadata{})
	job.LastKnownState = StateFailure
	job.Message = "Download failed"

	decision := Transition(job, PollOutcome{Report: &StatusReport{State: StateSuccess}}, testDelays, time.Now())

	assert.False(t, decision.Changed)
	assert.Equal(t, EffectNone, decision.Effect)
	assert.Equal(t, StateFailure, decision.Job.LastKnownState)
}

func TestTransition_NilReportIsFailure(t *testing.T) {
	job := NewDownloadJob("t1", JobMetadata{})

	decision := Transition(job, PollOutcome{}, testDelays, time.Now())

	assert.Equal(t, StateFailure, decision.Job.LastKnownState)
	assert.Equal(t, EffectPruneLater, decision.Effect)
}
