// Package viewer is a terminal pager for a live preview. Blocks arrive as
// placeholders sized by their estimate and fill in once the preview renders
// them; scrolling reports the visible rows back to the preview.
package viewer

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"

	"github.com/samsaffron/mdview/internal/preview"
)

// ProgressThreshold is the block count above which the header shows a
// rendering progress bar.
const ProgressThreshold = 50

// Source is the preview the viewer displays. *preview.Preview satisfies it.
type Source interface {
	Frames() <-chan preview.Frame
	SetViewport(top, height float64) error
	Measure(index int, height float64) error
}

// frameMsg carries a frame read from the source.
type frameMsg struct {
	frame preview.Frame
}

// closedMsg signals that the source stopped producing frames.
type closedMsg struct{}

// Model is the viewer model
type Model struct {
	// Dimensions
	width  int
	height int

	src   Source
	title string

	// Content
	frame      preview.Frame
	hasFrame   bool
	lines      []string
	slotStart  []int // slot index -> first content line
	totalLines int

	// Scroll state
	scrollY    int
	reportedY  int
	reportedH  int
	hasReport  bool
	sourceDone bool

	// Heading search
	searching bool
	query     string
	matchIdx  int

	spinner spinner.Model
	styles  *Styles
	keyMap  KeyMap
}

// New creates a viewer for src. title is usually the file being previewed.
func New(src Source, title string, width, height int, styles *Styles) *Model {
	if styles == nil {
		styles = NewStyles(nil)
	}
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Spinner

	return &Model{
		width:   width,
		height:  height,
		src:     src,
		title:   title,
		spinner: s,
		styles:  styles,
		keyMap:  DefaultKeyMap(),
	}
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.listen(),
		m.reportViewport(),
	)
}

// listen waits for the next frame.
func (m *Model) listen() tea.Cmd {
	frames := m.src.Frames()
	return func() tea.Msg {
		f, ok := <-frames
		if !ok {
			return closedMsg{}
		}
		return frameMsg{frame: f}
	}
}

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		return m.handleMouseMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.clampScroll()
		return m, m.reportViewport()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case frameMsg:
		m.setFrame(msg.frame)
		return m, tea.Batch(m.listen(), m.measure(), m.reportViewport())

	case closedMsg:
		m.sourceDone = true
		return m, nil
	}

	return m, nil
}

// handleMouseMsg handles mouse input
func (m *Model) handleMouseMsg(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.scrollY -= 3
	case tea.MouseButtonWheelDown:
		m.scrollY += 3
	default:
		return m, nil
	}
	m.clampScroll()
	return m, m.reportViewport()
}

// handleKeyMsg handles keyboard input
func (m *Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.searching {
		return m.handleSearchKey(msg)
	}

	switch {
	case key.Matches(msg, m.keyMap.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keyMap.Search):
		m.searching = true
		m.query = ""
		m.matchIdx = 0
		return m, nil

	case key.Matches(msg, m.keyMap.ScrollUp):
		m.scrollY--

	case key.Matches(msg, m.keyMap.ScrollDown):
		m.scrollY++

	case key.Matches(msg, m.keyMap.PageUp):
		m.scrollY -= m.viewportHeight()

	case key.Matches(msg, m.keyMap.PageDown):
		m.scrollY += m.viewportHeight()

	case key.Matches(msg, m.keyMap.HalfPageUp):
		m.scrollY -= m.viewportHeight() / 2

	case key.Matches(msg, m.keyMap.HalfPageDown):
		m.scrollY += m.viewportHeight() / 2

	case key.Matches(msg, m.keyMap.GoToTop):
		m.scrollY = 0

	case key.Matches(msg, m.keyMap.GoToBottom):
		m.scrollY = m.maxScroll()

	case key.Matches(msg, m.keyMap.NextBlock):
		m.jumpBlock(1)

	case key.Matches(msg, m.keyMap.PrevBlock):
		m.jumpBlock(-1)

	default:
		return m, nil
	}

	m.clampScroll()
	return m, m.reportViewport()
}

// jumpBlock scrolls to the start of the next or previous block.
func (m *Model) jumpBlock(dir int) {
	if len(m.slotStart) == 0 {
		return
	}
	if dir > 0 {
		for _, start := range m.slotStart {
			if start > m.scrollY {
				m.scrollY = start
				return
			}
		}
		return
	}
	for i := len(m.slotStart) - 1; i >= 0; i-- {
		if m.slotStart[i] < m.scrollY {
			m.scrollY = m.slotStart[i]
			return
		}
	}
}

// setFrame lays out a frame: rendered slots show their fragment followed by a
// blank row, the others a placeholder as tall as their estimate.
func (m *Model) setFrame(f preview.Frame) {
	m.frame = f
	m.hasFrame = true
	m.lines = m.lines[:0]
	m.slotStart = m.slotStart[:0]

	if f.Mode == preview.ModeFull {
		if f.Fragment != "" {
			m.lines = append(m.lines, strings.Split(f.Fragment, "\n")...)
		}
	} else {
		for i, slot := range f.Slots {
			m.slotStart = append(m.slotStart, len(m.lines))
			if slot.Rendered {
				if slot.Fragment != "" {
					m.lines = append(m.lines, strings.Split(slot.Fragment, "\n")...)
				}
				m.lines = append(m.lines, "")
				continue
			}
			m.lines = append(m.lines, m.placeholder(i, slot.Block.Type.String(), slot.Height())...)
		}
	}
	m.totalLines = len(m.lines)
	m.clampScroll()
}

func (m *Model) placeholder(index int, kind string, height float64) []string {
	rows := int(math.Ceil(height))
	if rows < 1 {
		rows = 1
	}
	out := make([]string, rows)
	out[0] = m.styles.Placeholder.Render(fmt.Sprintf("… %s #%d", kind, index+1))
	return out
}

// measure reports the real row count of rendered slots whose measured
// height differs.
func (m *Model) measure() tea.Cmd {
	if m.frame.Mode == preview.ModeFull {
		return nil
	}
	type report struct {
		index int
		rows  float64
	}
	var reports []report
	for i, slot := range m.frame.Slots {
		if !slot.Rendered {
			continue
		}
		rows := float64(m.slotRows(i))
		if slot.Measured != rows {
			reports = append(reports, report{index: i, rows: rows})
		}
	}
	if len(reports) == 0 {
		return nil
	}
	src := m.src
	return func() tea.Msg {
		for _, r := range reports {
			if err := src.Measure(r.index, r.rows); err != nil {
				return nil
			}
		}
		return nil
	}
}

// slotRows is the number of content lines slot i occupies.
func (m *Model) slotRows(i int) int {
	if i+1 < len(m.slotStart) {
		return m.slotStart[i+1] - m.slotStart[i]
	}
	return m.totalLines - m.slotStart[i]
}

// reportViewport tells the source which rows are visible, once per change.
func (m *Model) reportViewport() tea.Cmd {
	top, h := m.scrollY, m.viewportHeight()
	if m.hasReport && top == m.reportedY && h == m.reportedH {
		return nil
	}
	m.reportedY, m.reportedH, m.hasReport = top, h, true
	src := m.src
	return func() tea.Msg {
		_ = src.SetViewport(float64(top), float64(h))
		return nil
	}
}

// viewportHeight returns the available height for content
func (m *Model) viewportHeight() int {
	// header, footer and the optional status row
	return max(1, m.height-3)
}

// maxScroll returns the maximum scroll position
func (m *Model) maxScroll() int {
	return max(0, m.totalLines-m.viewportHeight())
}

// clampScroll ensures scroll is within bounds
func (m *Model) clampScroll() {
	m.scrollY = min(max(m.scrollY, 0), m.maxScroll())
}

// View renders the model
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(m.styles.Header.Width(m.width).Render(m.header()))
	b.WriteString("\n")

	vpHeight := m.viewportHeight()
	startIdx := min(m.scrollY, m.totalLines)
	endIdx := min(startIdx+vpHeight, m.totalLines)
	visible := make([]string, 0, endIdx-startIdx)
	for _, line := range m.lines[startIdx:endIdx] {
		// rendered at a fixed width; clip after a resize narrows the window
		if m.width > 0 && ansi.StringWidth(line) > m.width {
			line = ansi.Truncate(line, m.width, "")
		}
		visible = append(visible, line)
	}

	content := strings.Join(visible, "\n")
	if len(visible) < vpHeight {
		content += strings.Repeat("\n", vpHeight-len(visible))
	}
	b.WriteString(content)
	b.WriteString("\n")

	b.WriteString(m.status())
	b.WriteString("\n")
	b.WriteString(m.footer(startIdx, endIdx))
	return b.String()
}

func (m *Model) header() string {
	title := "mdview"
	if m.title != "" {
		title += " " + filepath.Base(m.title)
	}
	if !m.hasFrame {
		return title
	}
	f := m.frame
	title += fmt.Sprintf(" (%s chars", humanize.Comma(int64(f.Chars)))
	if f.Mode == preview.ModeVirtual {
		title += fmt.Sprintf(", %d/%d blocks", f.Rendered, f.Total)
	}
	title += ")"
	return title
}

// status is the row between content and footer: parse spinner, progress
// bar or the last error.
func (m *Model) status() string {
	if m.searching {
		return m.searchStatus()
	}
	var parts []string
	if m.frame.Parsing || !m.hasFrame {
		parts = append(parts, m.spinner.View()+" parsing")
	}
	if m.frame.Mode == preview.ModeVirtual && m.frame.Total > ProgressThreshold && m.frame.Progress < 1 {
		parts = append(parts, m.progressBar(m.frame.Progress, 30))
	}
	if m.frame.Error != "" {
		parts = append(parts, m.styles.Error.Render("error: "+m.frame.Error))
	}
	if m.sourceDone {
		parts = append(parts, m.styles.Footer.Render("preview stopped"))
	}
	return strings.Join(parts, "  ")
}

// progressBar draws a fixed-width bar for p in [0, 1].
func (m *Model) progressBar(p float64, width int) string {
	p = min(max(p, 0), 1)
	filled := int(math.Round(p * float64(width)))
	return m.styles.BarFull.Render(strings.Repeat("█", filled)) +
		m.styles.BarEmpty.Render(strings.Repeat("░", width-filled)) +
		fmt.Sprintf(" %3.0f%%", p*100)
}

func (m *Model) footer(startIdx, endIdx int) string {
	scrollInfo := ""
	if m.totalLines > m.viewportHeight() {
		pct := 0
		if m.maxScroll() > 0 {
			pct = (m.scrollY * 100) / m.maxScroll()
		}
		scrollInfo = fmt.Sprintf("%d-%d/%d (%d%%)", startIdx+1, endIdx, m.totalLines, pct)
	}

	help := "q:quit  j/k:scroll  n/p:block  /:heading  g/G:top/bottom"
	padding := max(1, m.width-lipgloss.Width(scrollInfo)-lipgloss.Width(help))
	return m.styles.Footer.Render(scrollInfo + strings.Repeat(" ", padding) + help)
}
