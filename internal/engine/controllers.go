package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/mbecker/reel/internal/domain"
	"github.com/mbecker/reel/internal/download"
)

// mediaSession is the prepared playback resources for one story. Text and
// custom stories carry only a duration; image adds a local media file;
// video adds an initialized player handle.
type mediaSession struct {
	// Duration is the effective display duration. Zero means the player
	// has not reported it yet; DurationKnown delivers it when it does.
	Duration      time.Duration
	DurationKnown <-chan time.Duration

	Media  domain.MediaHandle
	Player domain.PlayerHandle
}

// mediaController prepares one story variant for display. Binding a
// controller to the wrong variant is a ControllerMismatch error, caught
// before any I/O happens.
type mediaController interface {
	Kind() domain.StoryKind
	Prepare(ctx context.Context, story domain.Story) (*mediaSession, error)
	Pause(session *mediaSession) error
	Resume(session *mediaSession) error
	Release(session *mediaSession) error
}

// controllerFor selects the controller bound to a story's variant.
func (e *Engine) controllerFor(story domain.Story) (mediaController, error) {
	c, ok := e.controllers[story.Kind()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownStoryType, story.Kind())
	}
	return c, nil
}

func checkVariant(c mediaController, story domain.Story) error {
	if story.Kind() != c.Kind() {
		return fmt.Errorf("%w: %s controller given %s story",
			domain.ErrControllerMismatch, c.Kind(), story.Kind())
	}
	return nil
}

// textController displays text with no media I/O.
type textController struct{}

func (textController) Kind() domain.StoryKind { return domain.StoryKindText }

func (c textController) Prepare(_ context.Context, story domain.Story) (*mediaSession, error) {
	if err := checkVariant(c, story); err != nil {
		return nil, err
	}
	return &mediaSession{Duration: story.DisplayDuration()}, nil
}

func (textController) Pause(*mediaSession) error   { return nil }
func (textController) Resume(*mediaSession) error  { return nil }
func (textController) Release(*mediaSession) error { return nil }

// imageController fetches the image through the download manager before
// display.
type imageController struct {
	downloads *download.Manager
}

func (imageController) Kind() domain.StoryKind { return domain.StoryKindImage }

func (c imageController) Prepare(ctx context.Context, story domain.Story) (*mediaSession, error) {
	if err := checkVariant(c, story); err != nil {
		return nil, err
	}
	img := story.(domain.ImageStory)
	handle, err := c.downloads.Fetch(ctx, img.URL, img.ID)
	if err != nil {
		return nil, err
	}
	return &mediaSession{Duration: story.DisplayDuration(), Media: handle}, nil
}

func (imageController) Pause(*mediaSession) error   { return nil }
func (imageController) Resume(*mediaSession) error  { return nil }
func (imageController) Release(*mediaSession) error { return nil }

// videoController fetches the video and hands it to the platform player.
// When the story carries no explicit duration the session's duration stays
// zero until the player's DurationKnown signal fires.
type videoController struct {
	downloads *download.Manager
	player    domain.MediaPlayer
}

func (videoController) Kind() domain.StoryKind { return domain.StoryKindVideo }

func (c videoController) Prepare(ctx context.Context, story domain.Story) (*mediaSession, error) {
	if err := checkVariant(c, story); err != nil {
		return nil, err
	}
	vid := story.(domain.VideoStory)
	handle, err := c.downloads.Fetch(ctx, vid.URL, vid.ID)
	if err != nil {
		return nil, err
	}

	session := &mediaSession{Duration: story.DisplayDuration(), Media: handle}
	if c.player == nil {
		// No player means no duration signal will ever arrive; without
		// a fallback the story would play forever at zero progress.
		if session.Duration == 0 {
			session.Duration = domain.DefaultVideoDuration
		}
		return session, nil
	}

	ph, err := c.player.Initialize(ctx, handle.Path)
	if err != nil {
		return nil, err
	}
	session.Player = ph
	if session.Duration == 0 {
		session.DurationKnown = ph.DurationKnown()
	}
	return session, nil
}

func (videoController) Pause(session *mediaSession) error {
	if session.Player != nil {
		return session.Player.Pause()
	}
	return nil
}

func (videoController) Resume(session *mediaSession) error {
	if session.Player != nil {
		return session.Player.Play()
	}
	return nil
}

func (videoController) Release(session *mediaSession) error {
	if session.Player != nil {
		err := session.Player.Release()
		session.Player = nil
		return err
	}
	return nil
}

// customController displays caller-defined payloads: no I/O, fixed
// duration.
type customController struct{}

func (customController) Kind() domain.StoryKind { return domain.StoryKindCustom }

func (c customController) Prepare(_ context.Context, story domain.Story) (*mediaSession, error) {
	if err := checkVariant(c, story); err != nil {
		return nil, err
	}
	return &mediaSession{Duration: story.DisplayDuration()}, nil
}

func (customController) Pause(*mediaSession) error   { return nil }
func (customController) Resume(*mediaSession) error  { return nil }
func (customController) Release(*mediaSession) error { return nil }
