package blocks

import (
	"fmt"
	"strconv"
	"strings"
)

// Type identifies how a block is rendered and how tall its placeholder is.
type Type int

const (
	Paragraph Type = iota
	Heading
	Code
	Table
	List
	Blockquote
	Rule
	Math
	Diagram
	Image
	HTML
)

// String returns the short name used in cache keys and markup classes.
func (t Type) String() string {
	switch t {
	case Paragraph:
		return "paragraph"
	case Heading:
		return "heading"
	case Code:
		return "code"
	case Table:
		return "table"
	case List:
		return "list"
	case Blockquote:
		return "blockquote"
	case Rule:
		return "hr"
	case Math:
		return "math"
	case Diagram:
		return "diagram"
	case Image:
		return "image"
	case HTML:
		return "html"
	}
	return "unknown(" + strconv.Itoa(int(t)) + ")"
}

// MarshalText lets blocks serialize with readable type names.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText accepts the names produced by String.
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseType returns the Type named s.
func ParseType(s string) (Type, error) {
	for typ := Paragraph; typ <= HTML; typ++ {
		if typ.String() == s {
			return typ, nil
		}
	}
	return Paragraph, fmt.Errorf("unknown block type %q", s)
}

// Block is a structurally complete piece of the document. Content is the exact
// source span, delimiters included, with lines joined by "\n".
type Block struct {
	ID      int    `json:"id" yaml:"id"`
	Type    Type   `json:"type" yaml:"type"`
	Content string `json:"content" yaml:"content"`
	Level   int    `json:"level,omitempty" yaml:"level,omitempty"`
}

// Anchor is the DOM-friendly identifier of the block.
func (b Block) Anchor() string {
	return "block-" + strconv.Itoa(b.ID)
}

// Lines returns the number of source lines in the block.
func (b Block) Lines() int {
	return strings.Count(b.Content, "\n") + 1
}

// KeyPrefixLen bounds how much content participates in a block key.
const KeyPrefixLen = 100

// Key identifies blocks for caching and diffing. Only the first KeyPrefixLen
// runes of content take part, so long blocks sharing a prefix collide.
func Key(b Block) string {
	return b.Type.String() + ":" + prefix(b.Content, KeyPrefixLen)
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Contents returns the content of each block, in order.
func Contents(bs []Block) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.Content
	}
	return out
}
