package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mbecker/reel/internal/domain"
)

// ErrInvalidTransition is returned when a requested edge is not in the
// transition table.
var ErrInvalidTransition = errors.New("invalid state transition")

// DefaultHistorySize caps the transition history ring buffer.
const DefaultHistorySize = 64

// Stuck-state thresholds: how long Loading or Navigating may run before an
// external watchdog should consider the engine stuck.
const (
	DefaultLoadingStuckAfter    = 15 * time.Second
	DefaultNavigatingStuckAfter = 5 * time.Second
)

// validTransitions is the explicit adjacency table. Error and Disposed are
// reachable from every non-terminal state and are handled separately in
// canTransition.
var validTransitions = map[domain.Phase][]domain.Phase{
	domain.PhaseIdle:       {domain.PhasePlaying, domain.PhaseLoading, domain.PhaseNavigating},
	domain.PhasePlaying:    {domain.PhasePaused, domain.PhaseNavigating, domain.PhaseIdle},
	domain.PhasePaused:     {domain.PhasePlaying, domain.PhaseNavigating, domain.PhaseIdle},
	domain.PhaseLoading:    {domain.PhasePlaying, domain.PhaseIdle},
	domain.PhaseNavigating: {domain.PhasePlaying, domain.PhaseIdle, domain.PhaseLoading},
	domain.PhaseError:      {domain.PhaseLoading, domain.PhaseIdle, domain.PhasePlaying},
	domain.PhaseDisposed:   {},
}

// StateMachine holds the authoritative playback state and enforces the
// transition table. Every accepted transition is appended to a capped
// history for postmortem debugging.
type StateMachine struct {
	logger *slog.Logger

	mu      sync.Mutex
	current domain.PlaybackState
	history *transitionRing

	loadingStuckAfter    time.Duration
	navigatingStuckAfter time.Duration
}

// NewStateMachine creates a state machine starting in Idle.
func NewStateMachine(logger *slog.Logger) *StateMachine {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateMachine{
		logger:               logger,
		current:              domain.Idle(),
		history:              newTransitionRing(DefaultHistorySize),
		loadingStuckAfter:    DefaultLoadingStuckAfter,
		navigatingStuckAfter: DefaultNavigatingStuckAfter,
	}
}

// Current returns a snapshot of the live state.
func (m *StateMachine) Current() domain.PlaybackState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// TransitionTo applies a transition if the edge is in the table. Invalid
// edges are rejected with ErrInvalidTransition; a disposed machine rejects
// everything with domain.ErrDisposed.
func (m *StateMachine) TransitionTo(next domain.PlaybackState, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Phase == domain.PhaseDisposed {
		return domain.ErrDisposed
	}
	if !canTransition(m.current.Phase, next.Phase) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.current.Phase, next.Phase)
	}
	m.applyLocked(next, reason)
	return nil
}

// Update replaces the live state without changing phase: progress refreshes
// within Playing, byte counts within Loading. Not recorded in history and
// not subject to the table. Phase changes must go through TransitionTo.
func (m *StateMachine) Update(next domain.PlaybackState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Phase == domain.PhaseDisposed {
		return domain.ErrDisposed
	}
	if next.Phase != m.current.Phase {
		return fmt.Errorf("%w: update cannot change phase %s -> %s", ErrInvalidTransition, m.current.Phase, next.Phase)
	}
	m.current = next
	return nil
}

// ForceTransition applies a transition regardless of the table. Reserved
// for error recovery and teardown. Disposal stays irreversible even here.
func (m *StateMachine) ForceTransition(next domain.PlaybackState, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Phase == domain.PhaseDisposed {
		return domain.ErrDisposed
	}
	m.applyLocked(next, reason)
	return nil
}

func (m *StateMachine) applyLocked(next domain.PlaybackState, reason string) {
	m.history.append(domain.Transition{
		From:   m.current.Phase,
		To:     next.Phase,
		At:     time.Now(),
		Reason: reason,
	})
	m.logger.Debug("state transition",
		"from", m.current.Phase.String(),
		"to", next.Phase.String(),
		"reason", reason)
	m.current = next
}

// History returns the recorded transitions, oldest first.
func (m *StateMachine) History() []domain.Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history.snapshot()
}

// TakingTooLong reports whether the machine has sat in Loading or
// Navigating past its stuck threshold. External watchdogs poll this.
func (m *StateMachine) TakingTooLong(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.current.Phase {
	case domain.PhaseLoading:
		return now.Sub(m.current.StartedAt) > m.loadingStuckAfter
	case domain.PhaseNavigating:
		return now.Sub(m.current.StartedAt) > m.navigatingStuckAfter
	default:
		return false
	}
}

func canTransition(from, to domain.Phase) bool {
	// Error and Disposed are always reachable from non-terminal states.
	if to == domain.PhaseError || to == domain.PhaseDisposed {
		return true
	}
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// transitionRing is a fixed-size ring buffer of transitions. Oldest entries
// are evicted once the buffer is full, bounding memory deterministically.
type transitionRing struct {
	entries []domain.Transition
	head    int
	count   int
}

func newTransitionRing(size int) *transitionRing {
	return &transitionRing{entries: make([]domain.Transition, size)}
}

func (r *transitionRing) append(t domain.Transition) {
	r.entries[(r.head+r.count)%len(r.entries)] = t
	if r.count < len(r.entries) {
		r.count++
	} else {
		r.head = (r.head + 1) % len(r.entries)
	}
}

func (r *transitionRing) snapshot() []domain.Transition {
	out := make([]domain.Transition, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.entries[(r.head+i)%len(r.entries)]
	}
	return out
}
