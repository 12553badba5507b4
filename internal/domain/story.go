package domain

import (
	"time"
)

// StoryKind distinguishes story content types
type StoryKind int

const (
	StoryKindText StoryKind = iota
	StoryKindImage
	StoryKindVideo
	StoryKindCustom
)

// String returns a human-readable representation of the story kind
func (k StoryKind) String() string {
	switch k {
	case StoryKindText:
		return "text"
	case StoryKindImage:
		return "image"
	case StoryKindVideo:
		return "video"
	case StoryKindCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Default display durations per story kind. Video is player-reported,
// so its DisplayDuration is zero until the player signals the real
// duration; DefaultVideoDuration is the fallback when no player signal
// will ever arrive.
const (
	DefaultImageDuration  = 5 * time.Second
	DefaultVideoDuration  = 10 * time.Second
	DefaultCustomDuration = 10 * time.Second
	MinTextDuration       = 3 * time.Second
	MaxTextDuration       = 10 * time.Second
)

// StoryBase holds the fields common to every story variant.
// Stories are immutable value data: mutation helpers return copies.
type StoryBase struct {
	ID        string         // Unique within the owning group
	GroupID   string         // Owning group ID
	CreatedAt time.Time      // When the story was posted
	Duration  time.Duration  // Display duration (0 = variant default)
	IsViewed  bool           // Whether the current user has seen it
	IsReacted bool           // Whether the current user reacted to it
	Metadata  map[string]any // Caller-supplied extras
}

// Story is the closed interface over the four story variants.
// Exactly TextStory, ImageStory, VideoStory and CustomStory implement it.
type Story interface {
	Kind() StoryKind
	Base() StoryBase

	// DisplayDuration returns the effective display duration, applying
	// the variant default when Duration is unset. A zero return means
	// the duration is unknown until the media player reports it.
	DisplayDuration() time.Duration

	// WithViewed returns a copy with the viewed flag set.
	WithViewed(viewed bool) Story

	// WithReacted returns a copy with the reacted flag set.
	WithReacted(reacted bool) Story

	// Validate checks variant invariants.
	Validate() error
}

// TextStory is a text-only story.
type TextStory struct {
	StoryBase
	Text       string
	Background string // Optional background color hint for the renderer
}

func (s TextStory) Kind() StoryKind { return StoryKindText }
func (s TextStory) Base() StoryBase { return s.StoryBase }

// DisplayDuration scales reading time with text length, clamped to a
// 3-10 second window.
func (s TextStory) DisplayDuration() time.Duration {
	if s.Duration > 0 {
		return s.Duration
	}
	d := MinTextDuration + time.Duration(len([]rune(s.Text)))*50*time.Millisecond
	if d > MaxTextDuration {
		return MaxTextDuration
	}
	return d
}

func (s TextStory) WithViewed(viewed bool) Story {
	s.IsViewed = viewed
	return s
}

func (s TextStory) WithReacted(reacted bool) Story {
	s.IsReacted = reacted
	return s
}

func (s TextStory) Validate() error {
	if err := validateBase(s.StoryBase); err != nil {
		return err
	}
	if s.Text == "" {
		return &ValidationError{Field: "text", Reason: "text story requires non-empty text"}
	}
	return nil
}

// ImageStory is a single-image story.
type ImageStory struct {
	StoryBase
	URL     string
	AltText string
}

func (s ImageStory) Kind() StoryKind { return StoryKindImage }
func (s ImageStory) Base() StoryBase { return s.StoryBase }

func (s ImageStory) DisplayDuration() time.Duration {
	if s.Duration > 0 {
		return s.Duration
	}
	return DefaultImageDuration
}

func (s ImageStory) WithViewed(viewed bool) Story {
	s.IsViewed = viewed
	return s
}

func (s ImageStory) WithReacted(reacted bool) Story {
	s.IsReacted = reacted
	return s
}

func (s ImageStory) Validate() error {
	if err := validateBase(s.StoryBase); err != nil {
		return err
	}
	if s.URL == "" {
		return &ValidationError{Field: "url", Reason: "image story requires a URL"}
	}
	return nil
}

// VideoStory is a video story. Duration is typically unknown until the
// media player reports it.
type VideoStory struct {
	StoryBase
	URL          string
	ThumbnailURL string
	Muted        bool
}

func (s VideoStory) Kind() StoryKind { return StoryKindVideo }
func (s VideoStory) Base() StoryBase { return s.StoryBase }

// DisplayDuration returns zero when the duration has not been supplied;
// the engine waits for the player's duration signal in that case.
func (s VideoStory) DisplayDuration() time.Duration {
	return s.Duration
}

func (s VideoStory) WithViewed(viewed bool) Story {
	s.IsViewed = viewed
	return s
}

func (s VideoStory) WithReacted(reacted bool) Story {
	s.IsReacted = reacted
	return s
}

func (s VideoStory) Validate() error {
	if err := validateBase(s.StoryBase); err != nil {
		return err
	}
	if s.URL == "" {
		return &ValidationError{Field: "url", Reason: "video story requires a URL"}
	}
	return nil
}

// CustomStory carries caller-defined content rendered by a caller-supplied
// widget. The engine only drives its timing.
type CustomStory struct {
	StoryBase
	Payload any
}

func (s CustomStory) Kind() StoryKind { return StoryKindCustom }
func (s CustomStory) Base() StoryBase { return s.StoryBase }

func (s CustomStory) DisplayDuration() time.Duration {
	if s.Duration > 0 {
		return s.Duration
	}
	return DefaultCustomDuration
}

func (s CustomStory) WithViewed(viewed bool) Story {
	s.IsViewed = viewed
	return s
}

func (s CustomStory) WithReacted(reacted bool) Story {
	s.IsReacted = reacted
	return s
}

func (s CustomStory) Validate() error {
	return validateBase(s.StoryBase)
}

func validateBase(b StoryBase) error {
	if b.ID == "" {
		return &ValidationError{Field: "id", Reason: "story id must be non-empty"}
	}
	return nil
}

// Author identifies the owner of a story group.
type Author struct {
	ID        string
	Name      string
	AvatarURL string
}

// StoryGroup owns an ordered, non-empty sequence of stories by one author.
type StoryGroup struct {
	ID      string
	Author  Author
	Stories []Story
}

// Validate enforces group invariants: a non-empty story list, valid
// stories, and no duplicate story IDs. Duplicates are an error, never a
// silent merge.
func (g StoryGroup) Validate() error {
	if g.ID == "" {
		return &ValidationError{Field: "id", Reason: "group id must be non-empty"}
	}
	if len(g.Stories) == 0 {
		return &ValidationError{Field: "stories", Reason: "group must contain at least one story"}
	}
	seen := make(map[string]struct{}, len(g.Stories))
	for _, story := range g.Stories {
		if err := story.Validate(); err != nil {
			return err
		}
		id := story.Base().ID
		if _, dup := seen[id]; dup {
			return &ValidationError{Field: "id", Reason: "duplicate story id " + id + " in group " + g.ID}
		}
		seen[id] = struct{}{}
	}
	return nil
}

// AllViewed reports whether every story in the group has been seen.
func (g StoryGroup) AllViewed() bool {
	for _, story := range g.Stories {
		if !story.Base().IsViewed {
			return false
		}
	}
	return true
}

// UnviewedIndex returns the index of the first unviewed story, or 0 when
// everything has been seen.
func (g StoryGroup) UnviewedIndex() int {
	for i, story := range g.Stories {
		if !story.Base().IsViewed {
			return i
		}
	}
	return 0
}
