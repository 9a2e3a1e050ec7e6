package viewer

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sahilm/fuzzy"

	"github.com/samsaffron/mdview/internal/blocks"
)

// heading is a heading slot the search can jump to.
type heading struct {
	slot  int
	title string
}

// headingSource implements fuzzy.Source for heading search
type headingSource []heading

func (h headingSource) String(i int) string {
	return h[i].title
}

func (h headingSource) Len() int {
	return len(h)
}

// headingTitle strips ATX markers and setext underlines from a heading block.
func headingTitle(content string) string {
	line, _, _ := strings.Cut(content, "\n")
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "#") {
		line = strings.TrimLeft(line, "#")
		line = strings.TrimRight(strings.TrimSpace(line), "#")
	}
	return strings.TrimSpace(line)
}

// headings lists the heading slots of the current frame in document order.
func (m *Model) headings() headingSource {
	var out headingSource
	for i, slot := range m.frame.Slots {
		if slot.Block.Type != blocks.Heading {
			continue
		}
		if title := headingTitle(slot.Block.Content); title != "" {
			out = append(out, heading{slot: i, title: title})
		}
	}
	return out
}

// searchMatches returns headings matching the query, best first. An empty
// query lists every heading.
func (m *Model) searchMatches() headingSource {
	all := m.headings()
	if m.query == "" {
		return all
	}
	matches := fuzzy.FindFrom(m.query, all)
	out := make(headingSource, 0, len(matches))
	for _, match := range matches {
		out = append(out, all[match.Index])
	}
	return out
}

// handleSearchKey edits the query while the heading search is open.
func (m *Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyCtrlC:
		m.searching = false
		return m, nil

	case tea.KeyEnter:
		m.searching = false
		matches := m.searchMatches()
		if m.matchIdx < len(matches) {
			m.scrollY = m.slotStart[matches[m.matchIdx].slot]
			m.clampScroll()
		}
		return m, m.reportViewport()

	case tea.KeyBackspace:
		if r := []rune(m.query); len(r) > 0 {
			m.query = string(r[:len(r)-1])
		}
		m.matchIdx = 0

	case tea.KeyUp, tea.KeyCtrlP:
		m.matchIdx = max(0, m.matchIdx-1)

	case tea.KeyDown, tea.KeyCtrlN, tea.KeyTab:
		m.matchIdx = min(m.matchIdx+1, max(0, len(m.searchMatches())-1))

	case tea.KeyRunes, tea.KeySpace:
		m.query += string(msg.Runes)
		m.matchIdx = 0
	}
	return m, nil
}

// searchStatus is the status row while searching: the query and the
// selected heading.
func (m *Model) searchStatus() string {
	line := "/" + m.query
	matches := m.searchMatches()
	switch {
	case m.headings().Len() == 0:
		line += "  " + m.styles.Footer.Render("no headings")
	case len(matches) == 0:
		line += "  " + m.styles.Error.Render("no match")
	default:
		idx := min(m.matchIdx, len(matches)-1)
		line += "  → " + matches[idx].title + m.styles.Footer.Render(fmt.Sprintf(" (%d/%d)", idx+1, len(matches)))
	}
	return line
}
