package engine_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbecker/reel/internal/domain"
	"github.com/mbecker/reel/internal/engine"
)

func stateFor(phase domain.Phase) domain.PlaybackState {
	pos := domain.StoryPosition{}
	now := time.Now()
	switch phase {
	case domain.PhasePlaying:
		return domain.Playing(pos, 0, now)
	case domain.PhasePaused:
		return domain.Paused(pos, 0.4, domain.PauseReasonUser, now)
	case domain.PhaseLoading:
		return domain.Loading(pos, 0, domain.StoryKindImage, now)
	case domain.PhaseNavigating:
		return domain.Navigating(pos, domain.StoryPosition{Item: 1}, domain.DirectionForward, now)
	case domain.PhaseError:
		return domain.Errored(errors.New("boom"), domain.Idle(), now, 0)
	case domain.PhaseDisposed:
		return domain.Disposed()
	default:
		return domain.Idle()
	}
}

// driveTo walks a machine to the given phase through valid edges.
func driveTo(t *testing.T, m *engine.StateMachine, phase domain.Phase) {
	t.Helper()
	path := map[domain.Phase][]domain.Phase{
		domain.PhaseIdle:       {},
		domain.PhasePlaying:    {domain.PhasePlaying},
		domain.PhasePaused:     {domain.PhasePlaying, domain.PhasePaused},
		domain.PhaseLoading:    {domain.PhaseLoading},
		domain.PhaseNavigating: {domain.PhaseNavigating},
		domain.PhaseError:      {domain.PhaseError},
		domain.PhaseDisposed:   {domain.PhaseDisposed},
	}[phase]
	for _, p := range path {
		require.NoError(t, m.TransitionTo(stateFor(p), "test setup"))
	}
}

func TestStateMachine_TransitionTable(t *testing.T) {
	allPhases := []domain.Phase{
		domain.PhaseIdle, domain.PhasePlaying, domain.PhasePaused,
		domain.PhaseLoading, domain.PhaseNavigating, domain.PhaseError,
		domain.PhaseDisposed,
	}

	allowed := map[domain.Phase]map[domain.Phase]bool{
		domain.PhaseIdle:       {domain.PhasePlaying: true, domain.PhaseLoading: true, domain.PhaseNavigating: true},
		domain.PhasePlaying:    {domain.PhasePaused: true, domain.PhaseNavigating: true, domain.PhaseIdle: true},
		domain.PhasePaused:     {domain.PhasePlaying: true, domain.PhaseNavigating: true, domain.PhaseIdle: true},
		domain.PhaseLoading:    {domain.PhasePlaying: true, domain.PhaseIdle: true},
		domain.PhaseNavigating: {domain.PhasePlaying: true, domain.PhaseIdle: true, domain.PhaseLoading: true},
		domain.PhaseError:      {domain.PhaseLoading: true, domain.PhaseIdle: true, domain.PhasePlaying: true},
		domain.PhaseDisposed:   {},
	}

	for _, from := range allPhases {
		for _, to := range allPhases {
			t.Run(fmt.Sprintf("%s_to_%s", from, to), func(t *testing.T) {
				m := engine.NewStateMachine(nil)
				driveTo(t, m, from)

				err := m.TransitionTo(stateFor(to), "probe")

				switch {
				case from == domain.PhaseDisposed:
					assert.ErrorIs(t, err, domain.ErrDisposed)
				case to == domain.PhaseError || to == domain.PhaseDisposed:
					assert.NoError(t, err, "error/disposed are reachable from every live state")
				case allowed[from][to]:
					assert.NoError(t, err)
				default:
					assert.ErrorIs(t, err, engine.ErrInvalidTransition)
				}
			})
		}
	}
}

func TestStateMachine_ForceTransitionBypassesTable(t *testing.T) {
	m := engine.NewStateMachine(nil)
	require.NoError(t, m.TransitionTo(stateFor(domain.PhasePlaying), "start"))

	// playing -> loading is not a table edge...
	err := m.TransitionTo(stateFor(domain.PhaseLoading), "reload")
	require.ErrorIs(t, err, engine.ErrInvalidTransition)

	// ...but force applies it anyway.
	require.NoError(t, m.ForceTransition(stateFor(domain.PhaseLoading), "recovery"))
	assert.Equal(t, domain.PhaseLoading, m.Current().Phase)
}

func TestStateMachine_DisposalIsIrreversible(t *testing.T) {
	m := engine.NewStateMachine(nil)
	require.NoError(t, m.TransitionTo(domain.Disposed(), "teardown"))

	err := m.TransitionTo(stateFor(domain.PhaseIdle), "revive")
	assert.ErrorIs(t, err, domain.ErrDisposed)

	err = m.ForceTransition(stateFor(domain.PhaseIdle), "revive harder")
	assert.ErrorIs(t, err, domain.ErrDisposed, "force does not resurrect a disposed machine")
}

func TestStateMachine_HistoryIsCappedAndOrdered(t *testing.T) {
	m := engine.NewStateMachine(nil)

	// Bounce between playing and paused far past the cap.
	require.NoError(t, m.TransitionTo(stateFor(domain.PhasePlaying), "t0"))
	for i := 0; i < engine.DefaultHistorySize*2; i++ {
		var next domain.PlaybackState
		if i%2 == 0 {
			next = stateFor(domain.PhasePaused)
		} else {
			next = stateFor(domain.PhasePlaying)
		}
		require.NoError(t, m.TransitionTo(next, fmt.Sprintf("t%d", i+1)))
	}

	history := m.History()
	require.Len(t, history, engine.DefaultHistorySize, "history must stay capped")

	// Entries are oldest-first with eviction from the front.
	for i := 1; i < len(history); i++ {
		assert.Equal(t, history[i-1].To, history[i].From, "entry %d does not chain", i)
	}
	assert.Equal(t, fmt.Sprintf("t%d", engine.DefaultHistorySize*2), history[len(history)-1].Reason)
}

func TestStateMachine_TakingTooLong(t *testing.T) {
	m := engine.NewStateMachine(nil)
	now := time.Now()

	require.NoError(t, m.TransitionTo(domain.Loading(domain.StoryPosition{}, 0, domain.StoryKindVideo, now), "load"))
	assert.False(t, m.TakingTooLong(now.Add(time.Second)))
	assert.True(t, m.TakingTooLong(now.Add(engine.DefaultLoadingStuckAfter+time.Second)))

	require.NoError(t, m.TransitionTo(domain.Playing(domain.StoryPosition{}, 0, now), "play"))
	assert.False(t, m.TakingTooLong(now.Add(time.Hour)), "only loading/navigating can be stuck")
}

func TestStateMachine_ErrorCarriesInterruptedState(t *testing.T) {
	m := engine.NewStateMachine(nil)
	playing := stateFor(domain.PhasePlaying)
	require.NoError(t, m.TransitionTo(playing, "start"))

	cause := &domain.NetworkError{URL: "http://cdn/x.jpg", Err: errors.New("timeout")}
	require.NoError(t, m.TransitionTo(domain.Errored(cause, playing, time.Now(), 1), "fetch failed"))

	current := m.Current()
	require.Equal(t, domain.PhaseError, current.Phase)
	require.NotNil(t, current.Previous)
	assert.Equal(t, domain.PhasePlaying, current.Previous.Phase)
	assert.True(t, current.CanRetry(3))
}
