package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mbecker/reel/internal/domain"
	"github.com/mbecker/reel/internal/download"
	"github.com/mbecker/reel/internal/feed"
)

// Default engine tuning.
const (
	DefaultMaxRetries    = 3
	DefaultPrefetchAhead = 2
	DefaultPrefetchLimit = 2
)

// Options configures an Engine. Zero values get sensible defaults; Player
// and Viewed are optional collaborators.
type Options struct {
	UserID        string
	MaxRetries    int           // retry budget for error recovery
	TickInterval  time.Duration // progress tick granularity
	PrefetchAhead int           // upcoming stories to warm the cache with
	PrefetchLimit int           // concurrent prefetch transfers

	Player domain.MediaPlayer
	Viewed domain.ViewedStore
	Logger *slog.Logger
}

// ReplySubmission is delivered to reply subscribers when the user sends a
// reply to the story they are paused on.
type ReplySubmission struct {
	Position domain.StoryPosition
	StoryID  string
	AuthorID string
	Text     string
	At       time.Time
}

// Engine orchestrates story playback: navigation, per-story progress, media
// preparation and the playback state machine. Every mutation funnels
// through the event sequencer, whose drain goroutine is the sole writer of
// engine state; public methods only enqueue.
type Engine struct {
	opts   Options
	logger *slog.Logger

	machine     *StateMachine
	sequencer   *Sequencer
	progress    *ProgressController
	downloads   *download.Manager
	controllers map[domain.StoryKind]mediaController

	mu       sync.RWMutex
	groups   []domain.StoryGroup
	pos      domain.StoryPosition
	session  *mediaSession
	sessionC mediaController // controller that owns session
	gen      uint64          // navigation generation, guards stale async results
	retries  int             // consecutive failures at the current position
	disposed bool

	obsMu     sync.Mutex
	observers map[int]chan domain.PlaybackState
	replies   map[int]chan ReplySubmission
	nextObs   int
}

// NewEngine validates the feed and assembles the component graph. The
// download manager is injected so tests and pooled caches can share one.
func NewEngine(groups []domain.StoryGroup, downloads *download.Manager, opts Options) (*Engine, error) {
	if err := feed.Validate(groups); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.PrefetchAhead < 0 {
		opts.PrefetchAhead = DefaultPrefetchAhead
	}
	if opts.PrefetchLimit <= 0 {
		opts.PrefetchLimit = DefaultPrefetchLimit
	}

	e := &Engine{
		opts:      opts,
		logger:    opts.Logger,
		machine:   NewStateMachine(opts.Logger),
		sequencer: NewSequencer(opts.Logger),
		downloads: downloads,
		groups:    append([]domain.StoryGroup(nil), groups...),
		observers: make(map[int]chan domain.PlaybackState),
		replies:   make(map[int]chan ReplySubmission),
	}
	e.controllers = map[domain.StoryKind]mediaController{
		domain.StoryKindText:   textController{},
		domain.StoryKindImage:  imageController{downloads: downloads},
		domain.StoryKindVideo:  videoController{downloads: downloads, player: opts.Player},
		domain.StoryKindCustom: customController{},
	}
	e.progress = NewProgressController(opts.TickInterval, e.onTick, e.onProgressComplete, opts.Logger)
	return e, nil
}

// === Read surface ===

// CurrentState returns a snapshot of the playback state.
func (e *Engine) CurrentState() domain.PlaybackState {
	return e.machine.Current()
}

// CurrentPosition returns the position the engine is playing or loading.
func (e *Engine) CurrentPosition() domain.StoryPosition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pos
}

// CurrentStory returns the story at the current position.
func (e *Engine) CurrentStory() (domain.Story, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return StoryAt(e.groups, e.pos)
}

// Groups returns the engine's copy of the feed.
func (e *Engine) Groups() []domain.StoryGroup {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]domain.StoryGroup(nil), e.groups...)
}

// History exposes the state machine's transition history.
func (e *Engine) History() []domain.Transition {
	return e.machine.History()
}

// Downloads exposes the download manager for progress subscriptions.
func (e *Engine) Downloads() *download.Manager {
	return e.downloads
}

// Subscribe registers an observer for playback state transitions. Sends
// are non-blocking; a slow observer misses intermediate states, never
// stalls the engine. The cancel func unsubscribes and closes the channel.
func (e *Engine) Subscribe(buffer int) (<-chan domain.PlaybackState, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan domain.PlaybackState, buffer)

	e.obsMu.Lock()
	id := e.nextObs
	e.nextObs++
	e.observers[id] = ch
	e.obsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.obsMu.Lock()
			_, ok := e.observers[id]
			delete(e.observers, id)
			e.obsMu.Unlock()
			if ok {
				close(ch)
			}
		})
	}
	return ch, cancel
}

// SubscribeReplies registers an observer for submitted replies.
func (e *Engine) SubscribeReplies(buffer int) (<-chan ReplySubmission, func()) {
	if buffer <= 0 {
		buffer = 4
	}
	ch := make(chan ReplySubmission, buffer)

	e.obsMu.Lock()
	id := e.nextObs
	e.nextObs++
	e.replies[id] = ch
	e.obsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.obsMu.Lock()
			_, ok := e.replies[id]
			delete(e.replies, id)
			e.obsMu.Unlock()
			if ok {
				close(ch)
			}
		})
	}
	return ch, cancel
}

// === Operations ===

// Start begins playback at the first group with unviewed stories. A no-op
// outside Idle.
func (e *Engine) Start() error {
	return e.enqueue(PriorityNavigation, "start", func() {
		if e.machine.Current().Phase != domain.PhaseIdle {
			return
		}
		pos := e.firstUnviewed()
		e.setPosition(pos)
		e.playAt(pos, "start")
	})
}

// Advance moves to the next story, marking the current one viewed. At the
// end of the feed the engine returns to Idle.
func (e *Engine) Advance() error {
	return e.enqueue(PriorityNavigation, "advance", func() {
		e.markCurrentViewed()
		nav := Advance(e.groups, e.pos)
		e.applyNavigation(nav, domain.DirectionForward, "advance")
	})
}

// Retreat moves to the previous story. At the very beginning the current
// story restarts from zero progress.
func (e *Engine) Retreat() error {
	return e.enqueue(PriorityNavigation, "retreat", func() {
		nav := Retreat(e.groups, e.pos)
		e.applyNavigation(nav, domain.DirectionBackward, "retreat")
	})
}

// JumpTo navigates directly to a position, typically from author search.
func (e *Engine) JumpTo(pos domain.StoryPosition) error {
	return e.enqueue(PriorityNavigation, "jump", func() {
		nav := JumpTo(e.groups, pos)
		e.applyNavigation(nav, domain.DirectionForward, "jump")
	})
}

// Retry re-attempts the failed story while the error state has retry
// budget left.
func (e *Engine) Retry() error {
	return e.enqueue(PriorityNavigation, "retry", func() {
		state := e.machine.Current()
		if !state.CanRetry(e.opts.MaxRetries) {
			e.logger.Debug("retry rejected", "phase", state.Phase.String())
			return
		}
		e.playAt(e.pos, "retry")
	})
}

// Pause freezes progress at the current fraction.
func (e *Engine) Pause(reason domain.PauseReason) error {
	return e.enqueue(PriorityControl, "pause", func() {
		state := e.machine.Current()
		if state.Phase != domain.PhasePlaying {
			return
		}
		e.progress.Pause()
		if session, controller := e.currentSession(); session != nil && controller != nil {
			if err := controller.Pause(session); err != nil {
				e.logger.Warn("media pause failed", "error", err)
			}
		}
		next := domain.Paused(e.pos, e.progress.Progress(), reason, time.Now())
		e.transition(next, "pause:"+reason.String())
	})
}

// Resume continues playback from the paused fraction with no jump.
func (e *Engine) Resume() error {
	return e.enqueue(PriorityControl, "resume", func() {
		state := e.machine.Current()
		if state.Phase != domain.PhasePaused {
			return
		}
		if session, controller := e.currentSession(); session != nil && controller != nil {
			if err := controller.Resume(session); err != nil {
				e.logger.Warn("media resume failed", "error", err)
			}
		}
		e.progress.Resume()
		next := domain.Playing(e.pos, e.progress.Progress(), time.Now())
		e.transition(next, "resume")
	})
}

// BeginReply pauses playback for composing a reply.
func (e *Engine) BeginReply() error {
	return e.Pause(domain.PauseReasonReply)
}

// Reply submits a reply to the story the engine is paused on and resumes
// playback. Rejected with a ValidationError when the text is empty or the
// engine is not paused for a reply.
func (e *Engine) Reply(text string) error {
	if text == "" {
		return &domain.ValidationError{Field: "text", Reason: "reply text must be non-empty"}
	}
	return e.enqueue(PriorityControl, "reply", func() {
		state := e.machine.Current()
		if state.Phase != domain.PhasePaused || state.PauseReason != domain.PauseReasonReply {
			e.logger.Debug("reply dropped, not paused for reply", "phase", state.Phase.String())
			return
		}
		story, ok := StoryAt(e.groups, e.pos)
		if !ok {
			return
		}
		group := e.groups[e.pos.Group]
		sub := ReplySubmission{
			Position: e.pos,
			StoryID:  story.Base().ID,
			AuthorID: group.Author.ID,
			Text:     text,
			At:       time.Now(),
		}
		e.broadcastReply(sub)

		if session, controller := e.currentSession(); session != nil && controller != nil {
			if err := controller.Resume(session); err != nil {
				e.logger.Warn("media resume failed", "error", err)
			}
		}
		e.progress.Resume()
		e.transition(domain.Playing(e.pos, e.progress.Progress(), time.Now()), "reply-submitted")
	})
}

// React toggles the reacted flag on the engine's copy of a story in the
// current group. Story values held by callers are unaffected.
func (e *Engine) React(storyID string) error {
	return e.enqueue(PriorityControl, "react", func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.pos.Group >= len(e.groups) {
			return
		}
		group := &e.groups[e.pos.Group]
		for i, story := range group.Stories {
			if story.Base().ID == storyID {
				group.Stories[i] = story.WithReacted(!story.Base().IsReacted)
				return
			}
		}
		e.logger.Debug("react target not in current group", "story_id", storyID)
	})
}

// Dispose tears the engine down: progress controller first, then the
// download manager (in-flight transfers keep running to warm the cache),
// then the sequencer, then the state machine. Irreversible; all further
// operations are rejected. Safe to call more than once.
func (e *Engine) Dispose() {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.disposed = true
	session, controller := e.session, e.sessionC
	e.session, e.sessionC = nil, nil
	e.gen++
	e.mu.Unlock()

	e.progress.Stop()
	if session != nil && controller != nil {
		if err := controller.Release(session); err != nil {
			e.logger.Warn("media release failed", "error", err)
		}
	}
	e.downloads.Dispose()
	e.sequencer.Close()
	if err := e.machine.ForceTransition(domain.Disposed(), "dispose"); err != nil {
		e.logger.Warn("dispose transition failed", "error", err)
	}
	e.broadcast(e.machine.Current())

	e.obsMu.Lock()
	for id, ch := range e.observers {
		delete(e.observers, id)
		close(ch)
	}
	for id, ch := range e.replies {
		delete(e.replies, id)
		close(ch)
	}
	e.obsMu.Unlock()

	e.logger.Info("engine disposed")
}

// === Sequenced internals (drain goroutine only) ===

func (e *Engine) enqueue(priority EventPriority, name string, handler func()) error {
	e.mu.RLock()
	disposed := e.disposed
	e.mu.RUnlock()
	if disposed {
		return &domain.ValidationError{Field: "engine", Reason: "engine is disposed"}
	}
	if err := e.sequencer.Enqueue(priority, name, handler); err != nil {
		return &domain.ValidationError{Field: "engine", Reason: "engine is disposed"}
	}
	return nil
}

func (e *Engine) applyNavigation(nav domain.NavigationResult, dir domain.Direction, reason string) {
	switch nav.Kind {
	case domain.NavCompleted:
		e.teardownSession()
		e.transition(domain.Idle(), "feed-completed")
	case domain.NavAtBeginning:
		// Restart the current story from zero.
		e.progress.SeekTo(0)
		e.logger.Debug("at beginning, restarting story", "position", e.pos.String())
	case domain.NavFailed:
		e.logger.Warn("navigation failed", "reason", nav.Reason)
	default:
		from := e.pos
		e.teardownSession()
		state := e.machine.Current().Phase
		if state == domain.PhaseIdle || state == domain.PhasePlaying || state == domain.PhasePaused {
			e.transition(domain.Navigating(from, nav.Position, dir, time.Now()), reason)
		}
		e.setPosition(nav.Position)
		e.playAt(nav.Position, reason)
	}
}

// playAt transitions to Loading and prepares the story's media off the
// drain goroutine; the prepared session comes back as a media-ready event.
func (e *Engine) playAt(pos domain.StoryPosition, reason string) {
	story, ok := StoryAt(e.groups, pos)
	if !ok {
		e.fail(&domain.ValidationError{Field: "position", Reason: "no story at " + pos.String()})
		return
	}
	controller, err := e.controllerFor(story)
	if err != nil {
		e.fail(err)
		return
	}

	next := domain.Loading(pos, 0, story.Kind(), time.Now())
	if e.machine.Current().Phase == domain.PhaseLoading {
		// Navigating away from a story that never finished loading.
		if err := e.machine.Update(next); err == nil {
			e.broadcast(next)
		}
	} else {
		e.transition(next, reason)
	}

	gen := e.bumpGen()
	go func() {
		session, err := controller.Prepare(context.Background(), story)
		enqErr := e.sequencer.Enqueue(PriorityMedia, "media-ready", func() {
			e.onMediaReady(gen, pos, story, controller, session, err)
		})
		if enqErr != nil && session != nil {
			controller.Release(session)
		}
	}()
}

func (e *Engine) onMediaReady(gen uint64, pos domain.StoryPosition, story domain.Story, controller mediaController, session *mediaSession, err error) {
	if e.currentGen() != gen {
		// A later navigation superseded this load.
		if session != nil {
			controller.Release(session)
		}
		return
	}

	if err != nil {
		e.fail(err)
		return
	}

	e.mu.Lock()
	e.session = session
	e.sessionC = controller
	e.retries = 0
	e.mu.Unlock()

	if err := controller.Resume(session); err != nil {
		e.logger.Warn("media start failed", "error", err)
	}

	e.transition(domain.Playing(pos, 0, time.Now()), "media-ready")
	switch {
	case session.Duration > 0:
		e.progress.Start(session.Duration)
	case session.DurationKnown != nil:
		e.awaitDuration(gen, session.DurationKnown)
	default:
		// No duration and no signal to wait on. Playing with a stopped
		// timer would never complete, so fall back.
		e.logger.Warn("story has no duration source, using fallback",
			"position", pos.String())
		e.progress.Start(domain.DefaultVideoDuration)
	}

	e.prefetchAhead(pos)
}

// awaitDuration waits for the player's duration signal and starts the
// progress timer once it arrives. A player that closes the signal without
// reporting gets the fallback duration instead of an eternal story.
func (e *Engine) awaitDuration(gen uint64, known <-chan time.Duration) {
	go func() {
		d, ok := <-known
		if !ok || d <= 0 {
			d = domain.DefaultVideoDuration
		}
		e.sequencer.Enqueue(PriorityMedia, "duration-known", func() {
			if e.currentGen() != gen {
				return
			}
			e.logger.Debug("starting progress timer", "duration", d)
			e.progress.Start(d)
		})
	}()
}

// onTick runs on the progress controller's goroutine; it enqueues the
// low-priority state refresh.
func (e *Engine) onTick(fraction float64) {
	e.sequencer.Enqueue(PriorityProgress, "tick", func() {
		state := e.machine.Current()
		if state.Phase != domain.PhasePlaying {
			return
		}
		next := state
		next.Progress = fraction
		if err := e.machine.Update(next); err == nil {
			e.broadcast(next)
		}
	})
}

// onProgressComplete advances to the next story when the timer finishes.
func (e *Engine) onProgressComplete() {
	e.sequencer.Enqueue(PriorityNavigation, "auto-advance", func() {
		if e.machine.Current().Phase != domain.PhasePlaying {
			return
		}
		e.markCurrentViewed()
		nav := Advance(e.groups, e.pos)
		e.applyNavigation(nav, domain.DirectionForward, "auto-advance")
	})
}

// fail moves the machine to Error carrying the interrupted state and the
// retry count for this position.
func (e *Engine) fail(cause error) {
	e.progress.Stop()
	e.mu.Lock()
	e.retries++
	retries := e.retries
	e.mu.Unlock()

	prev := e.machine.Current()
	next := domain.Errored(cause, prev, time.Now(), retries-1)
	e.transition(next, "error")
	e.logger.Error("playback failed",
		"position", e.pos.String(),
		"retries", retries-1,
		"retryable", domain.Retryable(cause),
		"error", cause)
}

func (e *Engine) teardownSession() {
	e.progress.Stop()

	e.mu.Lock()
	session, controller := e.session, e.sessionC
	e.session, e.sessionC = nil, nil
	story, ok := StoryAt(e.groups, e.pos)
	e.mu.Unlock()

	if session != nil && controller != nil {
		if err := controller.Release(session); err != nil {
			e.logger.Warn("media release failed", "error", err)
		}
	}
	if ok {
		e.downloads.Abandon(story.Base().ID)
	}
}

// markCurrentViewed flips the viewed flag on the engine's copy and records
// the view in the store. Both completion and skipping count as a view.
func (e *Engine) markCurrentViewed() {
	e.mu.Lock()
	story, ok := StoryAt(e.groups, e.pos)
	if ok && !story.Base().IsViewed {
		e.groups[e.pos.Group].Stories[e.pos.Item] = story.WithViewed(true)
	}
	e.mu.Unlock()
	if !ok || story.Base().IsViewed {
		return
	}

	if e.opts.Viewed != nil {
		if err := e.opts.Viewed.MarkViewed(e.opts.UserID, story.Base().ID, time.Now()); err != nil {
			e.logger.Warn("viewed store write failed", "story_id", story.Base().ID, "error", err)
		}
	}
}

// prefetchAhead warms the cache with the media of upcoming stories.
func (e *Engine) prefetchAhead(pos domain.StoryPosition) {
	if e.opts.PrefetchAhead == 0 {
		return
	}

	var items []download.PrefetchItem
	cursor := pos
	for i := 0; i < e.opts.PrefetchAhead; i++ {
		nav := Advance(e.groups, cursor)
		if !nav.Moved() {
			break
		}
		cursor = nav.Position
		story, ok := StoryAt(e.groups, cursor)
		if !ok {
			break
		}
		switch s := story.(type) {
		case domain.ImageStory:
			items = append(items, download.PrefetchItem{URL: s.URL, StoryID: s.ID})
		case domain.VideoStory:
			items = append(items, download.PrefetchItem{URL: s.URL, StoryID: s.ID})
		}
	}
	if len(items) == 0 {
		return
	}

	go func() {
		if err := e.downloads.Prefetch(context.Background(), items, e.opts.PrefetchLimit); err != nil {
			e.logger.Debug("prefetch skipped", "error", err)
		}
	}()
}

// transition applies a state change and notifies observers on success.
func (e *Engine) transition(next domain.PlaybackState, reason string) {
	if err := e.machine.TransitionTo(next, reason); err != nil {
		e.logger.Warn("transition rejected",
			"to", next.Phase.String(),
			"reason", reason,
			"error", err)
		return
	}
	e.broadcast(next)
}

func (e *Engine) broadcast(state domain.PlaybackState) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	for _, ch := range e.observers {
		select {
		case ch <- state:
		default:
		}
	}
}

func (e *Engine) broadcastReply(sub ReplySubmission) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	for _, ch := range e.replies {
		select {
		case ch <- sub:
		default:
		}
	}
}

// currentSession reads the live media session. Event handlers must go
// through this rather than the fields: Dispose clears them from the
// caller's goroutine, not the drain goroutine.
func (e *Engine) currentSession() (*mediaSession, mediaController) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.session, e.sessionC
}

func (e *Engine) setPosition(pos domain.StoryPosition) {
	e.mu.Lock()
	e.pos = pos
	e.retries = 0
	e.mu.Unlock()
}

func (e *Engine) bumpGen() uint64 {
	e.mu.Lock()
	e.gen++
	gen := e.gen
	e.mu.Unlock()
	return gen
}

func (e *Engine) currentGen() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.gen
}

// firstUnviewed returns the position of the first group that still has
// unviewed stories, at its first unviewed story.
func (e *Engine) firstUnviewed() domain.StoryPosition {
	for i, g := range e.groups {
		if !g.AllViewed() {
			return domain.StoryPosition{Group: i, Item: g.UnviewedIndex()}
		}
	}
	return domain.StoryPosition{}
}
