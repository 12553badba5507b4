package tui

import (
	"fmt"
	"strings"

	"github.com/mbecker/reel/internal/domain"
	"github.com/mbecker/reel/internal/tui/styles"
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n")
	b.WriteString(m.storyView())
	b.WriteString("\n")
	b.WriteString(m.progressView())

	switch m.mode {
	case modeSearching:
		b.WriteString("\n")
		b.WriteString(m.searchView())
	case modeReplying:
		b.WriteString("\n")
		b.WriteString(styles.OverlayFrame.Render("Reply: " + m.input.View()))
	}

	b.WriteString("\n")
	b.WriteString(m.footerView())
	return b.String()
}

func (m Model) headerView() string {
	groups := m.engine.Groups()
	pos := m.engine.CurrentPosition()
	if pos.Group >= len(groups) {
		return styles.TitleStyle.Render("reel")
	}

	g := groups[pos.Group]
	title := styles.TitleStyle.Render(g.Author.Name)
	count := styles.DimStyle.Render(fmt.Sprintf("  story %d/%d · group %d/%d",
		pos.Item+1, len(g.Stories), pos.Group+1, len(groups)))
	return title + count
}

func (m Model) storyView() string {
	state := m.state
	if state.Phase == domain.PhaseIdle {
		return styles.StoryFrame.Render(styles.DimStyle.Render("All caught up. Press q to quit."))
	}
	if state.Phase == domain.PhaseError {
		msg := styles.ErrorStyle.Render("playback failed: " + state.Err.Error())
		if domain.Retryable(state.Err) {
			msg += "\n" + styles.DimStyle.Render("press R to retry")
		}
		return styles.StoryFrame.Render(msg)
	}

	story, ok := m.engine.CurrentStory()
	if !ok {
		return styles.StoryFrame.Render("")
	}

	var body string
	switch s := story.(type) {
	case domain.TextStory:
		body = s.Text
	case domain.ImageStory:
		body = styles.SubtitleStyle.Render("[image] " + s.URL)
		if s.AltText != "" {
			body += "\n" + s.AltText
		}
	case domain.VideoStory:
		body = styles.SubtitleStyle.Render("[video] " + s.URL)
	case domain.CustomStory:
		body = styles.SubtitleStyle.Render(fmt.Sprintf("[custom] %v", s.Payload))
	}

	if story.Base().IsReacted {
		body += "\n" + styles.AccentStyle.Render("♥")
	}
	if state.Phase == domain.PhaseLoading {
		body += "\n" + styles.DimStyle.Render(m.loadingLine())
	}
	if state.Phase == domain.PhasePaused {
		body += "\n" + styles.HighlightStyle.Render("paused ("+state.PauseReason.String()+")")
	}
	return styles.StoryFrame.Render(body)
}

func (m Model) loadingLine() string {
	story, ok := m.engine.CurrentStory()
	if ok && m.download.StoryID == story.Base().ID &&
		m.download.Status == domain.DownloadInProgress {
		return fmt.Sprintf("loading… %d%%", int(m.download.Fraction()*100))
	}
	return "loading…"
}

func (m Model) progressView() string {
	switch m.state.Phase {
	case domain.PhasePlaying, domain.PhasePaused:
		return m.bar.ViewAs(m.state.Progress)
	default:
		return m.bar.ViewAs(0)
	}
}

func (m Model) searchView() string {
	var b strings.Builder
	b.WriteString("Search: " + m.input.View() + "\n")

	groups := m.engine.Groups()
	for i, idx := range m.matches {
		if i > 8 {
			b.WriteString(styles.DimStyle.Render("…"))
			break
		}
		name := groups[idx].Author.Name
		if i == m.cursor {
			b.WriteString(styles.HighlightStyle.Render(name))
		} else {
			b.WriteString(styles.SubtitleStyle.Render(name))
		}
		b.WriteString("\n")
	}
	return styles.OverlayFrame.Render(strings.TrimRight(b.String(), "\n"))
}

func (m Model) footerView() string {
	help := []string{
		"←/→ navigate", "space pause", "r reply", "x react", "/ search", "q quit",
	}
	return styles.DimStyle.Render(strings.Join(help, " · "))
}
