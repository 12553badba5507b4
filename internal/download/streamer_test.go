package download_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbecker/reel/internal/domain"
	"github.com/mbecker/reel/internal/download"
)

func event(storyID, url string, progress float64) domain.DownloadProgress {
	return domain.DownloadProgress{
		StoryID:  storyID,
		URL:      url,
		Progress: progress,
		Status:   domain.DownloadInProgress,
	}
}

func TestStreamer_ScopedDelivery(t *testing.T) {
	s := download.NewStreamer(nil)
	defer s.Close()

	exact, cancelExact := s.Subscribe("s1", "http://cdn/a.jpg", 8)
	defer cancelExact()
	storyWide, cancelStory := s.Subscribe("s1", "", 8)
	defer cancelStory()
	all, cancelAll := s.Subscribe("", "", 8)
	defer cancelAll()

	s.Publish(event("s1", "http://cdn/a.jpg", 0.5))
	s.Publish(event("s2", "http://cdn/b.jpg", 0.1))

	// Exact subscriber sees only its own pair.
	require.Len(t, exact, 1)
	got := <-exact
	assert.Equal(t, "s1", got.StoryID)

	// Story-wide subscriber sees s1 traffic only.
	require.Len(t, storyWide, 1)
	assert.Equal(t, "s1", (<-storyWide).StoryID)

	// Wildcard sees both.
	assert.Len(t, all, 2)
}

func TestStreamer_DropWhenNoListener(t *testing.T) {
	s := download.NewStreamer(nil)
	defer s.Close()

	// Publishing with no subscribers must not block or panic.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.Publish(event("s1", "http://cdn/a.jpg", float64(i)/100))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked without listeners")
	}
}

func TestStreamer_DropWhenBufferFull(t *testing.T) {
	s := download.NewStreamer(nil)
	defer s.Close()

	ch, cancel := s.Subscribe("s1", "http://cdn/a.jpg", 2)
	defer cancel()

	for i := 0; i < 10; i++ {
		s.Publish(event("s1", "http://cdn/a.jpg", float64(i)/10))
	}

	// Only the first two fit; the rest were dropped rather than blocking.
	assert.Len(t, ch, 2)
	first := <-ch
	assert.Equal(t, 0.0, first.Progress)
}

func TestStreamer_CancelStopsDelivery(t *testing.T) {
	s := download.NewStreamer(nil)
	defer s.Close()

	ch, cancel := s.Subscribe("s1", "http://cdn/a.jpg", 8)
	cancel()

	s.Publish(event("s1", "http://cdn/a.jpg", 0.5))

	// Channel is closed and empty.
	_, open := <-ch
	assert.False(t, open)

	// Double cancel is safe.
	cancel()
}

func TestStreamer_CloseClosesSubscribers(t *testing.T) {
	s := download.NewStreamer(nil)
	ch, cancel := s.Subscribe("s1", "", 8)
	defer cancel()

	s.Close()

	_, open := <-ch
	assert.False(t, open)
	s.Publish(event("s1", "http://cdn/a.jpg", 0.5)) // no-op, no panic
}
