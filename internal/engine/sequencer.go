package engine

import (
	"container/heap"
	"log/slog"
	"sync"

	"github.com/mbecker/reel/internal/domain"
)

// EventPriority orders queued events. Lower values drain first: errors
// preempt everything, high-frequency progress updates yield to everything.
type EventPriority int

const (
	PriorityError EventPriority = iota
	PriorityNavigation
	PriorityMedia
	PriorityControl
	PriorityProgress
)

// String returns a human-readable representation of the priority
func (p EventPriority) String() string {
	switch p {
	case PriorityError:
		return "error"
	case PriorityNavigation:
		return "navigation"
	case PriorityMedia:
		return "media"
	case PriorityControl:
		return "control"
	case PriorityProgress:
		return "progress"
	default:
		return "unknown"
	}
}

// Event is one queued unit of work: a named handler with a priority. The
// handler runs on the drain goroutine, making it the single place engine
// state is mutated.
type Event struct {
	Priority EventPriority
	Name     string
	Handler  func()

	seq uint64 // FIFO tiebreaker within a priority
}

// Sequencer serializes events from independent asynchronous producers
// (timer ticks, download callbacks, UI commands) into one strict total
// order. Events are processed one at a time: the next event is not popped
// until the previous handler has returned. A panicking handler is
// recovered and logged; the queue keeps draining.
//
// Sequencers are explicitly constructed and owned by one engine instance —
// never shared globally — so independent engines stay independent in tests.
type Sequencer struct {
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   eventHeap
	closed  bool
	nextSeq uint64

	drained sync.WaitGroup
}

// NewSequencer creates a sequencer and starts its drain goroutine.
func NewSequencer(logger *slog.Logger) *Sequencer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sequencer{logger: logger}
	s.cond = sync.NewCond(&s.mu)
	s.drained.Add(1)
	go s.drain()
	return s
}

// Enqueue adds an event. Events of equal priority drain in FIFO order.
// Returns domain.ErrDisposed after Close.
func (s *Sequencer) Enqueue(priority EventPriority, name string, handler func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrDisposed
	}
	heap.Push(&s.queue, &Event{
		Priority: priority,
		Name:     name,
		Handler:  handler,
		seq:      s.nextSeq,
	})
	s.nextSeq++
	s.cond.Signal()
	return nil
}

// Pending returns the number of queued events.
func (s *Sequencer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Close stops the drain goroutine and discards queued events. The handler
// in flight, if any, finishes first. Close blocks until the goroutine has
// exited and is safe to call more than once.
func (s *Sequencer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.drained.Wait()
		return
	}
	s.closed = true
	s.queue = nil
	s.cond.Signal()
	s.mu.Unlock()

	s.drained.Wait()
}

func (s *Sequencer) drain() {
	defer s.drained.Done()

	for {
		s.mu.Lock()
		for s.queue.Len() == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		event := heap.Pop(&s.queue).(*Event)
		s.mu.Unlock()

		s.runOne(event)
	}
}

// runOne executes a single handler, containing panics so one failing
// handler cannot halt the queue.
func (s *Sequencer) runOne(event *Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("event handler panicked",
				"event", event.Name,
				"priority", event.Priority.String(),
				"panic", r)
		}
	}()
	event.Handler()
}

// eventHeap is a min-heap ordered by (priority, seq).
type eventHeap []*Event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(*Event)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	event := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return event
}
