package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbecker/reel/internal/domain"
)

type fakePlayer struct {
	duration time.Duration
	handles  []*fakeHandle
}

func (p *fakePlayer) Initialize(_ context.Context, source string) (domain.PlayerHandle, error) {
	h := &fakeHandle{source: source, known: make(chan time.Duration, 1)}
	if p.duration > 0 {
		h.known <- p.duration
	}
	close(h.known)
	p.handles = append(p.handles, h)
	return h, nil
}

type fakeHandle struct {
	source   string
	known    chan time.Duration
	playing  bool
	released bool
}

func (h *fakeHandle) Play() error                         { h.playing = true; return nil }
func (h *fakeHandle) Pause() error                        { h.playing = false; return nil }
func (h *fakeHandle) DurationKnown() <-chan time.Duration { return h.known }
func (h *fakeHandle) Release() error                      { h.released = true; return nil }

func TestControllers_VariantMismatch(t *testing.T) {
	text := domain.TextStory{StoryBase: domain.StoryBase{ID: "s1", GroupID: "g1"}, Text: "hi"}

	_, err := imageController{}.Prepare(context.Background(), text)
	require.ErrorIs(t, err, domain.ErrControllerMismatch)

	_, err = videoController{}.Prepare(context.Background(), text)
	require.ErrorIs(t, err, domain.ErrControllerMismatch)

	_, err = customController{}.Prepare(context.Background(), text)
	require.ErrorIs(t, err, domain.ErrControllerMismatch)
}

func TestTextController_DurationScalesWithLength(t *testing.T) {
	short := domain.TextStory{StoryBase: domain.StoryBase{ID: "s1", GroupID: "g1"}, Text: "hi"}
	session, err := textController{}.Prepare(context.Background(), short)
	require.NoError(t, err)
	assert.Equal(t, short.DisplayDuration(), session.Duration)
	assert.GreaterOrEqual(t, session.Duration, domain.MinTextDuration)
}

func TestImageController_FetchesMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("image-bytes"))
	}))
	defer srv.Close()

	c := imageController{downloads: testDownloads(t)}
	story := domain.ImageStory{
		StoryBase: domain.StoryBase{ID: "s1", GroupID: "g1"},
		URL:       srv.URL + "/pic.jpg",
	}

	session, err := c.Prepare(context.Background(), story)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultImageDuration, session.Duration)
	assert.NotEmpty(t, session.Media.Path)
	assert.Nil(t, session.Player)
}

func TestVideoController_PlayerLifecycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("video-bytes"))
	}))
	defer srv.Close()

	player := &fakePlayer{duration: 7 * time.Second}
	c := videoController{downloads: testDownloads(t), player: player}
	story := domain.VideoStory{
		StoryBase: domain.StoryBase{ID: "s1", GroupID: "g1"},
		URL:       srv.URL + "/clip.mp4",
	}

	session, err := c.Prepare(context.Background(), story)
	require.NoError(t, err)
	require.NotNil(t, session.Player)

	// Duration unknown at prepare time, delivered by the player signal.
	assert.Zero(t, session.Duration)
	require.NotNil(t, session.DurationKnown)
	select {
	case d := <-session.DurationKnown:
		assert.Equal(t, 7*time.Second, d)
	case <-time.After(time.Second):
		t.Fatal("duration never reported")
	}

	require.NoError(t, c.Resume(session))
	require.Len(t, player.handles, 1)
	assert.True(t, player.handles[0].playing)

	require.NoError(t, c.Pause(session))
	assert.False(t, player.handles[0].playing)

	require.NoError(t, c.Release(session))
	assert.True(t, player.handles[0].released)
	assert.Nil(t, session.Player)
}

func TestVideoController_NoPlayerFallsBackToDefaultDuration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("video-bytes"))
	}))
	defer srv.Close()

	c := videoController{downloads: testDownloads(t)}
	story := domain.VideoStory{
		StoryBase: domain.StoryBase{ID: "s1", GroupID: "g1"},
		URL:       srv.URL + "/clip.mp4",
	}

	session, err := c.Prepare(context.Background(), story)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultVideoDuration, session.Duration)
	assert.Nil(t, session.DurationKnown)
	assert.Nil(t, session.Player)
}

func TestVideoController_ExplicitDurationSkipsSignal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("video-bytes"))
	}))
	defer srv.Close()

	c := videoController{downloads: testDownloads(t), player: &fakePlayer{}}
	story := domain.VideoStory{
		StoryBase: domain.StoryBase{ID: "s1", GroupID: "g1", Duration: 9 * time.Second},
		URL:       srv.URL + "/clip.mp4",
	}

	session, err := c.Prepare(context.Background(), story)
	require.NoError(t, err)
	assert.Equal(t, 9*time.Second, session.Duration)
	assert.Nil(t, session.DurationKnown)
}
