package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sahilm/fuzzy"

	"github.com/mbecker/reel/internal/domain"
)

func (m Model) updateSearching(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.mode = modeViewing
		m.input.Blur()
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.matches)-1 {
			m.cursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.Enter):
		m.mode = modeViewing
		m.input.Blur()
		if m.cursor < len(m.matches) {
			group := m.matches[m.cursor]
			m.engine.JumpTo(domain.StoryPosition{Group: group, Item: 0})
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.applyFilter()
	return m, cmd
}

// applyFilter fuzzy-matches the query against author names, case
// insensitive.
func (m *Model) applyFilter() {
	query := m.input.Value()
	if query == "" {
		m.matches = nil
		m.cursor = 0
		return
	}

	groups := m.engine.Groups()
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = strings.ToLower(g.Author.Name)
	}

	found := fuzzy.Find(strings.ToLower(query), names)
	m.matches = make([]int, len(found))
	for i, match := range found {
		m.matches[i] = match.Index
	}
	if m.cursor >= len(m.matches) {
		m.cursor = 0
	}
}
