package engine

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultTickInterval is the progress tick rate (~60Hz).
const DefaultTickInterval = 16 * time.Millisecond

// ProgressController drives one story's progress value from 0.0 to 1.0 over
// a duration at a fixed tick rate.
//
// Pause freezes the elapsed-time accumulator; Resume continues from the
// exact paused fraction rather than wall-clock elapsed-since-start, so a
// pause never causes the value to jump on resume. Completion is signalled
// exactly once, after which ticking stops until the next Start.
type ProgressController struct {
	interval   time.Duration
	onTick     func(fraction float64)
	onComplete func()
	logger     *slog.Logger

	mu         sync.Mutex
	duration   time.Duration
	elapsed    time.Duration // accumulated play time before the last resume
	resumedAt  time.Time     // wall-clock of the last start/resume
	paused     bool
	running    bool
	completed  bool
	stopCh     chan struct{}
}

// NewProgressController creates a controller ticking at the given interval.
// Both callbacks are invoked from the timer goroutine; pass the sequencer's
// enqueue functions so they never race with engine state.
func NewProgressController(interval time.Duration, onTick func(float64), onComplete func(), logger *slog.Logger) *ProgressController {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressController{
		interval:   interval,
		onTick:     onTick,
		onComplete: onComplete,
		logger:     logger,
	}
}

// Start resets progress to zero and begins ticking toward the given
// duration. A non-positive duration resets state but does not tick; the
// caller starts again once the real duration is known.
func (c *ProgressController) Start(duration time.Duration) {
	c.mu.Lock()
	c.stopLocked()

	c.duration = duration
	c.elapsed = 0
	c.resumedAt = time.Now()
	c.paused = false
	c.completed = false

	if duration <= 0 {
		c.mu.Unlock()
		return
	}

	stopCh := make(chan struct{})
	c.stopCh = stopCh
	c.running = true
	c.mu.Unlock()

	go c.run(stopCh)
}

// Pause freezes the accumulator. Pausing while already paused is a no-op.
func (c *ProgressController) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused || !c.running {
		return
	}
	c.elapsed += time.Since(c.resumedAt)
	c.paused = true
}

// Resume unfreezes the accumulator. Resuming while playing is a no-op.
func (c *ProgressController) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused || !c.running {
		return
	}
	c.resumedAt = time.Now()
	c.paused = false
}

// SeekTo moves progress to a fraction of the duration, clamped to [0,1].
// Seeking to 1.0 completes immediately.
func (c *ProgressController) SeekTo(fraction float64) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}

	c.mu.Lock()
	c.elapsed = time.Duration(fraction * float64(c.duration))
	c.resumedAt = time.Now()
	complete := fraction >= 1 && !c.completed
	if complete {
		c.completed = true
		c.stopLocked()
	}
	c.mu.Unlock()

	if complete && c.onComplete != nil {
		c.onComplete()
	}
}

// Progress returns the current fraction in [0,1].
func (c *ProgressController) Progress() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progressLocked()
}

// Paused reports whether the accumulator is frozen.
func (c *ProgressController) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Stop halts ticking and discards pending ticks. Progress is left at its
// current value; no completion is emitted.
func (c *ProgressController) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *ProgressController) stopLocked() {
	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
	c.running = false
}

func (c *ProgressController) progressLocked() float64 {
	if c.duration <= 0 {
		return 0
	}
	elapsed := c.elapsed
	if c.running && !c.paused && !c.completed {
		elapsed += time.Since(c.resumedAt)
	}
	fraction := float64(elapsed) / float64(c.duration)
	if fraction > 1 {
		return 1
	}
	if fraction < 0 {
		return 0
	}
	return fraction
}

func (c *ProgressController) run(stopCh chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.stopCh != stopCh {
				// Superseded by a newer Start.
				c.mu.Unlock()
				return
			}
			if c.paused {
				c.mu.Unlock()
				continue
			}
			fraction := c.progressLocked()
			complete := fraction >= 1 && !c.completed
			if complete {
				c.completed = true
				c.elapsed = c.duration
				c.stopLocked()
			}
			c.mu.Unlock()

			if c.onTick != nil {
				c.onTick(fraction)
			}
			if complete {
				if c.onComplete != nil {
					c.onComplete()
				}
				return
			}
		}
	}
}
