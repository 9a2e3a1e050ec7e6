package input

import (
	"fmt"
	"strconv"
	"strings"
)

// LineRange selects lines of a document. Both ends are 1-indexed and
// inclusive; zero leaves that end open.
type LineRange struct {
	First int
	Last  int
}

// Source names a document file and, optionally, the lines to show from it.
type Source struct {
	Path  string
	Lines *LineRange
}

// ParseSource splits "notes.md:10-40" into a path and a line range. The
// suffix must be digits around a single dash, either side may be empty.
// Anything else is taken as part of the path.
func ParseSource(arg string) (Source, error) {
	if arg == "" {
		return Source{}, fmt.Errorf("empty document path")
	}
	i := strings.LastIndexByte(arg, ':')
	if i <= 0 {
		return Source{Path: arg}, nil
	}
	first, last, ok := strings.Cut(arg[i+1:], "-")
	if !ok || !digits(first) || !digits(last) {
		return Source{Path: arg}, nil
	}

	r := &LineRange{}
	var err error
	if first != "" {
		if r.First, err = strconv.Atoi(first); err != nil {
			return Source{}, fmt.Errorf("line range %q: %w", arg[i+1:], err)
		}
	}
	if last != "" {
		if r.Last, err = strconv.Atoi(last); err != nil {
			return Source{}, fmt.Errorf("line range %q: %w", arg[i+1:], err)
		}
	}
	if r.First > 0 && r.Last > 0 && r.First > r.Last {
		return Source{}, fmt.Errorf("line range %q: start after end", arg[i+1:])
	}
	return Source{Path: arg[:i], Lines: r}, nil
}

func digits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Slice returns the selected lines of text. Ranges past the end are clipped.
func (r LineRange) Slice(text string) string {
	lines := strings.Split(text, "\n")
	lo := max(r.First-1, 0)
	hi := len(lines)
	if r.Last > 0 {
		hi = min(r.Last, hi)
	}
	if lo >= hi {
		return ""
	}
	return strings.Join(lines[lo:hi], "\n")
}

// String renders the range the way ParseSource accepts it.
func (r LineRange) String() string {
	var b strings.Builder
	if r.First > 0 {
		b.WriteString(strconv.Itoa(r.First))
	}
	b.WriteByte('-')
	if r.Last > 0 {
		b.WriteString(strconv.Itoa(r.Last))
	}
	return b.String()
}

// Name is the display name of the source, range included.
func (s Source) Name() string {
	if s.Lines == nil {
		return s.Path
	}
	return s.Path + ":" + s.Lines.String()
}
