package blocks

import (
	"math"
	"strings"

	"github.com/mattn/go-runewidth"
)

// DefaultFontSize is the base font size, in logical pixels, used for estimates.
const DefaultFontSize = 16

// EstimateHeight guesses the rendered height of a block in logical pixels.
// It sizes placeholders before the block has been rendered.
func EstimateHeight(b Block, fontSize float64) float64 {
	if fontSize <= 0 {
		fontSize = DefaultFontSize
	}
	lineHeight := fontSize * 1.6
	lines := float64(b.Lines())

	switch b.Type {
	case Heading:
		level := b.Level
		if level == 0 {
			level = 1
		}
		return fontSize*(3-float64(level)*0.3) + 32
	case Code, Diagram:
		return math.Max(lines*lineHeight+32, 100)
	case Table:
		return lines*40 + 20
	case Image:
		return 300
	case Math:
		return lines*lineHeight + 40
	case Rule:
		return 40
	case Paragraph, List, Blockquote, HTML:
		return lines*lineHeight + 16
	}
	return lines*lineHeight + 16
}

// EstimateRows guesses how many terminal rows a block occupies at the given
// width once wrapped, plus one separating blank row.
func EstimateRows(b Block, width int) int {
	if width <= 0 {
		width = 80
	}
	switch b.Type {
	case Rule, Heading:
		return 2
	case Image:
		return 3
	case Code, Diagram, Math:
		// fenced content is not wrapped; frame adds a row above and below
		return b.Lines() + 2
	case Table:
		return b.Lines() + 1
	case Paragraph, List, Blockquote, HTML:
	}

	rows := 0
	for _, line := range strings.Split(b.Content, "\n") {
		w := runewidth.StringWidth(line)
		if w == 0 {
			rows++
			continue
		}
		rows += (w + width - 1) / width
	}
	return rows + 1
}
