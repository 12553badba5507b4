package engine_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbecker/reel/internal/domain"
	"github.com/mbecker/reel/internal/engine"
)

// orderRecorder collects handler execution order.
type orderRecorder struct {
	mu    sync.Mutex
	order []string
	done  chan struct{} // closed when expected count reached
	want  int
}

func newOrderRecorder(want int) *orderRecorder {
	return &orderRecorder{done: make(chan struct{}), want: want}
}

func (r *orderRecorder) record(name string) func() {
	return func() {
		r.mu.Lock()
		r.order = append(r.order, name)
		if len(r.order) == r.want {
			close(r.done)
		}
		r.mu.Unlock()
	}
}

func (r *orderRecorder) wait(t *testing.T) []string {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for events to drain")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func TestSequencer_PriorityOrder(t *testing.T) {
	s := engine.NewSequencer(nil)
	defer s.Close()

	rec := newOrderRecorder(4)

	// Hold the drain goroutine on a blocker so the queue accumulates,
	// then verify pop order follows priority, not insertion order.
	release := make(chan struct{})
	require.NoError(t, s.Enqueue(engine.PriorityControl, "blocker", func() { <-release }))

	require.NoError(t, s.Enqueue(engine.PriorityProgress, "tick", rec.record("tick")))
	require.NoError(t, s.Enqueue(engine.PriorityControl, "pause", rec.record("pause")))
	require.NoError(t, s.Enqueue(engine.PriorityError, "fetch-failed", rec.record("fetch-failed")))
	require.NoError(t, s.Enqueue(engine.PriorityNavigation, "advance", rec.record("advance")))
	close(release)

	assert.Equal(t, []string{"fetch-failed", "advance", "pause", "tick"}, rec.wait(t))
}

func TestSequencer_FIFOWithinPriority(t *testing.T) {
	s := engine.NewSequencer(nil)
	defer s.Close()

	const n = 20
	rec := newOrderRecorder(n)

	release := make(chan struct{})
	require.NoError(t, s.Enqueue(engine.PriorityControl, "blocker", func() { <-release }))
	for i := 0; i < n; i++ {
		require.NoError(t, s.Enqueue(engine.PriorityProgress, "tick", rec.record(fmt.Sprintf("t%d", i))))
	}
	close(release)

	order := rec.wait(t)
	for i := 0; i < n; i++ {
		assert.Equal(t, fmt.Sprintf("t%d", i), order[i])
	}
}

func TestSequencer_StrictlyOneAtATime(t *testing.T) {
	s := engine.NewSequencer(nil)
	defer s.Close()

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	done := make(chan struct{})

	const n = 50
	for i := 0; i < n; i++ {
		last := i == n-1
		require.NoError(t, s.Enqueue(engine.PriorityProgress, "work", func() {
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			if last {
				close(done)
			}
		}))
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("queue did not drain")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxInFlight, "handlers must never overlap")
}

func TestSequencer_PanicDoesNotHaltQueue(t *testing.T) {
	s := engine.NewSequencer(nil)
	defer s.Close()

	rec := newOrderRecorder(1)
	require.NoError(t, s.Enqueue(engine.PriorityMedia, "bad", func() { panic("handler bug") }))
	require.NoError(t, s.Enqueue(engine.PriorityMedia, "good", rec.record("good")))

	assert.Equal(t, []string{"good"}, rec.wait(t))
}

func TestSequencer_CloseDiscardsQueueAndRejectsEnqueue(t *testing.T) {
	s := engine.NewSequencer(nil)

	release := make(chan struct{})
	executed := make(chan struct{}, 8)
	require.NoError(t, s.Enqueue(engine.PriorityControl, "blocker", func() { <-release }))
	require.NoError(t, s.Enqueue(engine.PriorityControl, "queued", func() { executed <- struct{}{} }))

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	s.Close()

	assert.ErrorIs(t, s.Enqueue(engine.PriorityError, "late", func() {}), domain.ErrDisposed)
	select {
	case <-executed:
		t.Fatal("queued event ran after Close discarded the queue")
	case <-time.After(50 * time.Millisecond):
	}

	// Closing twice is safe.
	s.Close()
}
