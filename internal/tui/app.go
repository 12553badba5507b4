package tui

import (
	"log/slog"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mbecker/reel/internal/domain"
	"github.com/mbecker/reel/internal/engine"
)

// viewMode represents what the viewer is showing
type viewMode int

const (
	modeViewing viewMode = iota
	modeSearching
	modeReplying
)

// stateMsg carries a playback state transition into the Bubble Tea loop
type stateMsg domain.PlaybackState

// downloadMsg carries a download progress event
type downloadMsg domain.DownloadProgress

// engineClosedMsg signals that the engine's observer channel closed
type engineClosedMsg struct{}

// Model is the Bubble Tea model for the story viewer.
type Model struct {
	engine *engine.Engine
	logger *slog.Logger
	keys   KeyMap

	bar   progress.Model
	input textinput.Model

	states   <-chan domain.PlaybackState
	cancelSt func()
	dl       <-chan domain.DownloadProgress
	cancelDl func()

	state    domain.PlaybackState
	download domain.DownloadProgress

	mode    viewMode
	matches []int // group indices matching the search query
	cursor  int

	width    int
	height   int
	quitting bool
}

// New builds the viewer around a ready engine.
func New(eng *engine.Engine, logger *slog.Logger) Model {
	if logger == nil {
		logger = slog.Default()
	}

	states, cancelSt := eng.Subscribe(64)
	dl, cancelDl := eng.Downloads().Streamer().Subscribe("", "", 64)

	input := textinput.New()
	input.CharLimit = 120
	input.Width = 40

	return Model{
		engine:   eng,
		logger:   logger,
		keys:     DefaultKeyMap(),
		bar:      progress.New(progress.WithDefaultGradient()),
		input:    input,
		states:   states,
		cancelSt: cancelSt,
		dl:       dl,
		cancelDl: cancelDl,
		state:    eng.CurrentState(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.startEngine(),
		m.waitForState(),
		m.waitForDownload(),
	)
}

func (m Model) startEngine() tea.Cmd {
	return func() tea.Msg {
		if err := m.engine.Start(); err != nil {
			m.logger.Error("engine start failed", "error", err)
		}
		return nil
	}
}

func (m Model) waitForState() tea.Cmd {
	ch := m.states
	return func() tea.Msg {
		state, ok := <-ch
		if !ok {
			return engineClosedMsg{}
		}
		return stateMsg(state)
	}
}

func (m Model) waitForDownload() tea.Cmd {
	ch := m.dl
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return engineClosedMsg{}
		}
		return downloadMsg(ev)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = min(msg.Width-8, 60)
		return m, nil

	case stateMsg:
		m.state = domain.PlaybackState(msg)
		return m, m.waitForState()

	case downloadMsg:
		m.download = domain.DownloadProgress(msg)
		return m, m.waitForDownload()

	case engineClosedMsg:
		if !m.quitting {
			return m, nil
		}
		return m, tea.Quit

	case tea.KeyMsg:
		switch m.mode {
		case modeSearching:
			return m.updateSearching(msg)
		case modeReplying:
			return m.updateReplying(msg)
		default:
			return m.updateViewing(msg)
		}
	}
	return m, nil
}

func (m Model) updateViewing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		m.cancelSt()
		m.cancelDl()
		m.engine.Dispose()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Next):
		m.engine.Advance()

	case key.Matches(msg, m.keys.Prev):
		m.engine.Retreat()

	case key.Matches(msg, m.keys.PauseResume):
		if m.state.Phase == domain.PhasePaused {
			m.engine.Resume()
		} else {
			m.engine.Pause(domain.PauseReasonUser)
		}

	case key.Matches(msg, m.keys.Reply):
		if err := m.engine.BeginReply(); err == nil {
			m.mode = modeReplying
			m.input.Reset()
			m.input.Placeholder = "reply…"
			m.input.Focus()
			return m, textinput.Blink
		}

	case key.Matches(msg, m.keys.React):
		if story, ok := m.engine.CurrentStory(); ok {
			m.engine.React(story.Base().ID)
		}

	case key.Matches(msg, m.keys.Retry):
		m.engine.Retry()

	case key.Matches(msg, m.keys.Search):
		m.mode = modeSearching
		m.cursor = 0
		m.matches = nil
		m.input.Reset()
		m.input.Placeholder = "author…"
		m.input.Focus()
		return m, textinput.Blink
	}
	return m, nil
}

func (m Model) updateReplying(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.mode = modeViewing
		m.input.Blur()
		m.engine.Resume()
		return m, nil

	case key.Matches(msg, m.keys.Enter):
		text := m.input.Value()
		m.mode = modeViewing
		m.input.Blur()
		if text == "" {
			m.engine.Resume()
			return m, nil
		}
		if err := m.engine.Reply(text); err != nil {
			m.logger.Warn("reply rejected", "error", err)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}
