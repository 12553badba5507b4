package domain

import (
	"context"
	"time"
)

// MediaPlayer abstracts the platform video/image player. The engine treats
// decoding as opaque: it initializes a source, drives play/pause, and waits
// on the duration signal for media whose length is player-reported.
type MediaPlayer interface {
	// Initialize prepares the player for a media source and returns a
	// handle for this playback session.
	Initialize(ctx context.Context, source string) (PlayerHandle, error)
}

// PlayerHandle is one initialized playback session.
type PlayerHandle interface {
	Play() error
	Pause() error

	// DurationKnown delivers the media duration once the player has
	// decoded enough to know it. The channel is closed after the first
	// send.
	DurationKnown() <-chan time.Duration

	// Release frees player resources for this session.
	Release() error
}

// ViewedStore persists per-user view history. The engine only calls
// MarkViewed/IsViewed; the storage schema belongs to the implementation.
type ViewedStore interface {
	MarkViewed(userID, storyID string, at time.Time) error
	IsViewed(userID, storyID string) (bool, error)
	ViewedAt(userID, storyID string) (time.Time, bool, error)
}

// MediaHandle is the result of a media fetch: a local file ready for the
// player. Stale reports whether the file is past MaxAge but still within
// StaleDuration (usable, due for refresh).
type MediaHandle struct {
	Path      string
	URL       string
	Size      int64
	FetchedAt time.Time
	FromCache bool
	Stale     bool
}
