package blocks

import (
	"regexp"
	"strings"
)

// DiagramLanguage is the fence info word that turns a code block into a diagram.
const DiagramLanguage = "mermaid"

var (
	headingRe = regexp.MustCompile(`^(#{1,6})\s`)
	listRe    = regexp.MustCompile(`^(\d+[.)]|[-*+])\s`)
	imageRe   = regexp.MustCompile(`^!\[.*\]\(.*\)$`)
	htmlRe    = regexp.MustCompile(`(?i)^<(?:!--|/?(?:address|article|aside|blockquote|center|details|dialog|div|dl|fieldset|figcaption|figure|footer|form|h[1-6]|header|hr|iframe|main|nav|ol|p|picture|pre|section|script|style|summary|table|ul|video)(?:[\s/>]|$))`)
)

// segmenter holds the state of a single Segment pass.
type segmenter struct {
	out    []Block
	lines  []string
	typ    Type
	nextID int

	inCode  bool
	inMath  bool
	inTable bool
}

// Segment splits raw markdown into blocks. A block never ends inside an open
// fence, math region or table. Segment never fails: unterminated regions at
// the end of input are emitted as whatever they accumulated.
func Segment(text string) []Block {
	s := &segmenter{}
	for _, line := range strings.Split(text, "\n") {
		s.line(line)
	}
	s.flush()
	return s.out
}

func (s *segmenter) line(line string) {
	trimmed := strings.TrimSpace(line)

	// any fence marker toggles, whatever its character or length
	if n := fenceRun(trimmed); n >= 3 && !s.inMath {
		if s.inCode {
			s.lines = append(s.lines, line)
			s.inCode = false
			s.flush()
			return
		}
		s.flush()
		s.inCode, s.inTable = true, false
		s.typ = Code
		if fenceLanguage(trimmed[n:]) == DiagramLanguage {
			s.typ = Diagram
		}
		s.lines = append(s.lines, line)
		return
	}

	if !s.inCode && trimmed == "$$" {
		if !s.inMath {
			s.flush()
			s.inMath, s.inTable = true, false
			s.typ = Math
			s.lines = append(s.lines, line)
		} else {
			s.lines = append(s.lines, line)
			s.inMath = false
			s.flush()
		}
		return
	}

	if s.inCode || s.inMath {
		s.lines = append(s.lines, line)
		return
	}

	if isTableRow(trimmed) {
		if !s.inTable {
			s.flush()
			s.inTable = true
			s.typ = Table
		}
		s.lines = append(s.lines, line)
		return
	} else if s.inTable {
		s.inTable = false
		s.flush()
	}

	if trimmed == "" {
		s.flush()
		return
	}

	if m := headingRe.FindStringSubmatch(line); m != nil {
		s.flush()
		s.emit(Heading, line, len(m[1]))
		return
	}

	if isRule(trimmed) {
		s.flush()
		s.emit(Rule, line, 0)
		return
	}

	if strings.HasPrefix(trimmed, ">") {
		s.accumulate(Blockquote, line)
		return
	}

	if listRe.MatchString(trimmed) {
		s.accumulate(List, line)
		return
	}

	if imageRe.MatchString(trimmed) {
		s.flush()
		s.emit(Image, line, 0)
		return
	}

	if len(s.lines) == 0 && htmlRe.MatchString(trimmed) {
		s.typ = HTML
		s.lines = append(s.lines, line)
		return
	}

	switch s.typ {
	case Paragraph, List, Blockquote, HTML:
	default:
		s.flush()
		s.typ = Paragraph
	}
	s.lines = append(s.lines, line)
}

// accumulate appends line to a block of type t, closing a different block first.
func (s *segmenter) accumulate(t Type, line string) {
	if s.typ != t {
		s.flush()
		s.typ = t
	}
	s.lines = append(s.lines, line)
}

func (s *segmenter) flush() {
	if len(s.lines) > 0 {
		content := strings.Join(s.lines, "\n")
		if strings.TrimSpace(content) != "" {
			s.out = append(s.out, Block{ID: s.nextID, Type: s.typ, Content: content})
			s.nextID++
		}
		s.lines = s.lines[:0]
	}
	s.typ = Paragraph
}

func (s *segmenter) emit(t Type, content string, level int) {
	s.out = append(s.out, Block{ID: s.nextID, Type: t, Content: content, Level: level})
	s.nextID++
}

// fenceRun is the length of the run of ` or ~ that starts a trimmed line.
func fenceRun(trimmed string) int {
	if trimmed == "" || (trimmed[0] != '`' && trimmed[0] != '~') {
		return 0
	}
	n := 0
	for n < len(trimmed) && trimmed[n] == trimmed[0] {
		n++
	}
	return n
}

func fenceLanguage(info string) string {
	fields := strings.Fields(info)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

func isTableRow(trimmed string) bool {
	return len(trimmed) >= 2 && trimmed[0] == '|' && trimmed[len(trimmed)-1] == '|'
}

func isRule(trimmed string) bool {
	compact := strings.Join(strings.Fields(trimmed), "")
	if len(compact) < 3 {
		return false
	}
	ch := compact[0]
	if ch != '-' && ch != '*' && ch != '_' {
		return false
	}
	for i := 1; i < len(compact); i++ {
		if compact[i] != ch {
			return false
		}
	}
	return true
}
