package domain

import (
	"errors"
	"time"
)

// Effect is the side effect the tracker must run after applying a poll result
type Effect int

const (
	EffectNone Effect = iota
	// EffectRetrieveAndPrune triggers artifact retrieval and removes the job immediately
	EffectRetrieveAndPrune
	// EffectPruneLater removes the job after Decision.PruneDelay
	EffectPruneLater
)

// PollOutcome is the result of one status request: a report or an error
type PollOutcome struct {
	Report *StatusReport
	Err    error
}

// Decision is the output of Transition
type Decision struct {
	Job        DownloadJob
	Effect     Effect
	PruneDelay time.Duration
	// Changed is false when the outcome left the job untouched
	Changed bool
	// Unknown is set when the backend reported a state we do not recognize
	Unknown *UnknownStateError
}

// PruneDelays holds the visibility windows for failed jobs
type PruneDelays struct {
	Failure     time.Duration
	StatusError time.Duration
}

// Transition applies a poll outcome to a job. It is pure: the input job is not modified.
func Transition(job DownloadJob, outcome PollOutcome, delays PruneDelays, now time.Time) Decision {
	next := job.Clone()
	if job.IsTerminal() {
		return Decision{Job: next}
	}

	if outcome.Err != nil {
		next.LastKnownState = StateFailure
		next.ProgressPercent = nil
		next.Message = FailureMessage(outcome.Err)
		next.UpdatedAt = now
		return Decision{Job: next, Effect: EffectPruneLater, PruneDelay: delays.StatusError, Changed: true}
	}

	report := outcome.Report
	if report == nil {
		return Transition(job, PollOutcome{Err: errors.New("empty status response")}, delays, now)
	}

	switch report.State {
	case StatePending:
		next.LastKnownState = StatePending
		next.ProgressPercent = nil
	case StateProgress:
		next.LastKnownState = StateProgress
		if report.Progress != nil {
			p := clampPercent(*report.Progress)
			next.ProgressPercent = &p
		}
	case StateSuccess:
		next.LastKnownState = StateSuccess
		p := 100
		next.ProgressPercent = &p
		next.UpdatedAt = now
		return Decision{Job: next, Effect: EffectRetrieveAndPrune, Changed: true}
	case StateFailure:
		next.LastKnownState = StateFailure
		next.ProgressPercent = nil
		next.Message = JobFailureMessage(report.Error)
		next.UpdatedAt = now
		return Decision{Job: next, Effect: EffectPruneLater, PruneDelay: delays.Failure, Changed: true}
	default:
		return Decision{
			Job:     next,
			Unknown: &UnknownStateError{JobID: job.JobID, State: report.RawState},
		}
	}

	next.UpdatedAt = now
	return Decision{Job: next, Changed: true}
}
