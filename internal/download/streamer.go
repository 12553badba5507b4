package download

import (
	"log/slog"
	"sync"

	"github.com/mbecker/reel/internal/domain"
)

// streamKey identifies one subscription scope. Empty fields are wildcards:
// a subscriber for a story ID with an empty URL sees all of that story's
// transfers; the all-empty key sees everything.
type streamKey struct {
	storyID string
	url     string
}

// Streamer multiplexes DownloadProgress events to subscribers keyed by
// (storyID, url). Delivery is back-pressure safe: events are dropped when
// no listener is registered or a listener's buffer is full, never blocking
// the producing transfer.
type Streamer struct {
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[streamKey][]chan domain.DownloadProgress
	closed bool
}

// NewStreamer creates an empty streamer.
func NewStreamer(logger *slog.Logger) *Streamer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Streamer{
		logger: logger,
		subs:   make(map[streamKey][]chan domain.DownloadProgress),
	}
}

// Subscribe registers a listener for one (storyID, url) pair. Pass empty
// strings to widen the scope. The returned cancel func must be called on
// teardown; it closes the channel.
func (s *Streamer) Subscribe(storyID, url string, buffer int) (<-chan domain.DownloadProgress, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan domain.DownloadProgress, buffer)
	key := streamKey{storyID: storyID, url: url}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subs[key] = append(s.subs[key], ch)
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			removed := s.removeLocked(key, ch)
			s.mu.Unlock()
			// Close skipped when Close already owned the channel.
			if removed {
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Publish fans an event out to every matching subscription scope. Sends
// never block: a full or absent listener simply misses the event.
func (s *Streamer) Publish(p domain.DownloadProgress) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	keys := [4]streamKey{
		{storyID: p.StoryID, url: p.URL},
		{storyID: p.StoryID},
		{url: p.URL},
		{},
	}
	for _, key := range keys {
		for _, ch := range s.subs[key] {
			select {
			case ch <- p:
			default:
				// Listener is behind; the next snapshot supersedes this one.
			}
		}
	}
}

// Close drops all subscriptions and closes their channels. Publish becomes
// a no-op afterwards.
func (s *Streamer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, chans := range s.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	s.subs = make(map[streamKey][]chan domain.DownloadProgress)
}

func (s *Streamer) removeLocked(key streamKey, ch chan domain.DownloadProgress) bool {
	chans := s.subs[key]
	for i, c := range chans {
		if c == ch {
			s.subs[key] = append(chans[:i], chans[i+1:]...)
			if len(s.subs[key]) == 0 {
				delete(s.subs, key)
			}
			return true
		}
	}
	return false
}
