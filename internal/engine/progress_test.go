package engine_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbecker/reel/internal/engine"
)

// tickRecorder collects progress fractions from the timer goroutine.
type tickRecorder struct {
	mu        sync.Mutex
	fractions []float64
	completes atomic.Int32
}

func (r *tickRecorder) onTick(f float64) {
	r.mu.Lock()
	r.fractions = append(r.fractions, f)
	r.mu.Unlock()
}

func (r *tickRecorder) onComplete() { r.completes.Add(1) }

func (r *tickRecorder) ticks() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float64, len(r.fractions))
	copy(out, r.fractions)
	return out
}

func TestProgressController_CompletesExactlyOnce(t *testing.T) {
	rec := &tickRecorder{}
	pc := engine.NewProgressController(5*time.Millisecond, rec.onTick, rec.onComplete, nil)

	pc.Start(60 * time.Millisecond)

	require.Eventually(t, func() bool { return rec.completes.Load() == 1 },
		time.Second, 5*time.Millisecond)

	// Let any stray ticks land, then confirm completion stayed at one.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), rec.completes.Load())
	assert.Equal(t, 1.0, pc.Progress())
}

func TestProgressController_TicksAreMonotonic(t *testing.T) {
	rec := &tickRecorder{}
	pc := engine.NewProgressController(5*time.Millisecond, rec.onTick, rec.onComplete, nil)

	pc.Start(80 * time.Millisecond)
	require.Eventually(t, func() bool { return rec.completes.Load() == 1 },
		time.Second, 5*time.Millisecond)

	ticks := rec.ticks()
	require.NotEmpty(t, ticks)
	for i := 1; i < len(ticks); i++ {
		assert.GreaterOrEqual(t, ticks[i], ticks[i-1], "tick %d regressed", i)
	}
	assert.Equal(t, 1.0, ticks[len(ticks)-1])
}

func TestProgressController_PauseFreezesWithoutDrift(t *testing.T) {
	rec := &tickRecorder{}
	pc := engine.NewProgressController(5*time.Millisecond, rec.onTick, rec.onComplete, nil)

	pc.Start(time.Second)
	time.Sleep(100 * time.Millisecond)

	pc.Pause()
	atPause := pc.Progress()
	require.Greater(t, atPause, 0.0)

	// While paused the value is exactly constant.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, atPause, pc.Progress())

	// Resume continues from the paused fraction. Had the controller used
	// wall-clock elapsed-since-start, ~250ms would have passed and the
	// value would jump past 0.2; instead it only accrues post-resume time.
	pc.Resume()
	time.Sleep(50 * time.Millisecond)
	afterResume := pc.Progress()
	assert.Greater(t, afterResume, atPause)
	assert.Less(t, afterResume, atPause+0.12,
		"resume jumped: paused wall time leaked into progress")
}

func TestProgressController_RepeatedPauseResumeAreNoOps(t *testing.T) {
	rec := &tickRecorder{}
	pc := engine.NewProgressController(5*time.Millisecond, rec.onTick, rec.onComplete, nil)

	pc.Start(time.Second)
	time.Sleep(30 * time.Millisecond)

	pc.Pause()
	atPause := pc.Progress()
	pc.Pause() // second pause must not re-capture elapsed time
	time.Sleep(50 * time.Millisecond)
	pc.Pause()
	assert.Equal(t, atPause, pc.Progress())

	pc.Resume()
	pc.Resume() // second resume must not reset the accumulator
	time.Sleep(30 * time.Millisecond)
	assert.Greater(t, pc.Progress(), atPause)
}

func TestProgressController_SeekTo(t *testing.T) {
	rec := &tickRecorder{}
	pc := engine.NewProgressController(5*time.Millisecond, rec.onTick, rec.onComplete, nil)

	pc.Start(time.Second)
	pc.Pause()

	pc.SeekTo(0.5)
	assert.InDelta(t, 0.5, pc.Progress(), 0.001)

	pc.SeekTo(-0.2)
	assert.Equal(t, 0.0, pc.Progress())

	// Seeking past the end clamps to 1 and completes exactly once.
	pc.SeekTo(1.7)
	assert.Equal(t, 1.0, pc.Progress())
	assert.Equal(t, int32(1), rec.completes.Load())

	pc.SeekTo(1.0)
	assert.Equal(t, int32(1), rec.completes.Load(), "completion is idempotent")
}

func TestProgressController_StopDiscardsPendingTicks(t *testing.T) {
	rec := &tickRecorder{}
	pc := engine.NewProgressController(5*time.Millisecond, rec.onTick, rec.onComplete, nil)

	pc.Start(40 * time.Millisecond)
	pc.Stop()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), rec.completes.Load(), "stopped controller must not complete")
}

func TestProgressController_ZeroDurationWaits(t *testing.T) {
	rec := &tickRecorder{}
	pc := engine.NewProgressController(5*time.Millisecond, rec.onTick, rec.onComplete, nil)

	// Unknown duration (player has not reported yet): no ticking.
	pc.Start(0)
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, rec.ticks())
	assert.Equal(t, 0.0, pc.Progress())

	// Restart with the real duration takes over cleanly.
	pc.Start(40 * time.Millisecond)
	require.Eventually(t, func() bool { return rec.completes.Load() == 1 },
		time.Second, 5*time.Millisecond)
}
