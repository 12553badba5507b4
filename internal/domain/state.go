package domain

import (
	"time"
)

// Phase identifies the playback state variant.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePlaying
	PhasePaused
	PhaseLoading
	PhaseNavigating
	PhaseError
	PhaseDisposed
)

// String returns a human-readable representation of the phase
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePlaying:
		return "playing"
	case PhasePaused:
		return "paused"
	case PhaseLoading:
		return "loading"
	case PhaseNavigating:
		return "navigating"
	case PhaseError:
		return "error"
	case PhaseDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// PauseReason records why playback was paused.
type PauseReason int

const (
	PauseReasonUser PauseReason = iota
	PauseReasonReply
	PauseReasonHidden
)

// String returns a human-readable representation of the pause reason
func (r PauseReason) String() string {
	switch r {
	case PauseReasonReply:
		return "reply"
	case PauseReasonHidden:
		return "hidden"
	default:
		return "user"
	}
}

// PlaybackState is the tagged union of playback states. Phase selects the
// variant; only the fields belonging to that variant are meaningful.
// State values are immutable snapshots handed to observers.
type PlaybackState struct {
	Phase Phase

	// Playing / Paused / Loading
	Position StoryPosition
	Progress float64 // 0.0-1.0 display progress

	// Playing
	StartTime time.Time

	// Paused
	PauseReason PauseReason
	PausedAt    time.Time

	// Loading
	LoadingProgress float64
	LoadingKind     StoryKind
	StartedAt       time.Time // Loading / Navigating

	// Navigating
	From      StoryPosition
	To        StoryPosition
	Direction Direction

	// Error
	Err        error
	Previous   *PlaybackState // state the error interrupted
	OccurredAt time.Time
	RetryCount int
}

// Idle returns the initial state.
func Idle() PlaybackState {
	return PlaybackState{Phase: PhaseIdle}
}

// Playing returns a playing state at the given position and progress.
func Playing(pos StoryPosition, progress float64, start time.Time) PlaybackState {
	return PlaybackState{Phase: PhasePlaying, Position: pos, Progress: progress, StartTime: start}
}

// Paused returns a paused state frozen at the given progress.
func Paused(pos StoryPosition, progress float64, reason PauseReason, at time.Time) PlaybackState {
	return PlaybackState{Phase: PhasePaused, Position: pos, Progress: progress, PauseReason: reason, PausedAt: at}
}

// Loading returns a loading state for the given media kind.
func Loading(pos StoryPosition, progress float64, kind StoryKind, at time.Time) PlaybackState {
	return PlaybackState{Phase: PhaseLoading, Position: pos, LoadingProgress: progress, LoadingKind: kind, StartedAt: at}
}

// Navigating returns a transition state between two positions.
func Navigating(from, to StoryPosition, dir Direction, at time.Time) PlaybackState {
	return PlaybackState{Phase: PhaseNavigating, From: from, To: to, Direction: dir, StartedAt: at}
}

// Errored returns an error state wrapping the state it interrupted.
func Errored(err error, previous PlaybackState, at time.Time, retryCount int) PlaybackState {
	prev := previous
	return PlaybackState{Phase: PhaseError, Err: err, Previous: &prev, OccurredAt: at, RetryCount: retryCount}
}

// Disposed returns the terminal state.
func Disposed() PlaybackState {
	return PlaybackState{Phase: PhaseDisposed}
}

// CanRetry reports whether the error state still has retry budget.
// Always false outside PhaseError.
func (s PlaybackState) CanRetry(maxRetries int) bool {
	if s.Phase != PhaseError {
		return false
	}
	return Retryable(s.Err) && s.RetryCount < maxRetries
}

// Transition records one accepted state machine edge for diagnostics.
type Transition struct {
	From   Phase
	To     Phase
	At     time.Time
	Reason string
}
