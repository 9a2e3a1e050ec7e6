// Package blockdiff reconciles block lists across edits so that only blocks
// whose content changed need to be rendered again.
package blockdiff

import (
	"fmt"

	diff "github.com/shogoki/gotextdiff"

	"github.com/samsaffron/mdview/internal/blocks"
)

// Kind is the type of a Change.
type Kind int

const (
	Add Kind = iota
	Remove
	Update
	Move
)

func (k Kind) String() string {
	switch k {
	case Add:
		return "add"
	case Remove:
		return "remove"
	case Update:
		return "update"
	case Move:
		return "move"
	}
	return "unknown"
}

// MarshalText renders the kind by name in JSON and YAML output.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	for kind := Add; kind <= Move; kind++ {
		if kind.String() == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown change kind %q", text)
}

// Change is one entry of the edit script between two block lists.
// Index is the position in the new list, except for Remove where it is the
// position in the old list.
type Change struct {
	Kind  Kind          `json:"kind" yaml:"kind"`
	Index int           `json:"index" yaml:"index"`
	Block *blocks.Block `json:"block,omitempty" yaml:"block,omitempty"`
	Old   *blocks.Block `json:"old,omitempty" yaml:"old,omitempty"`
}

// Patch returns a unified diff from the old to the new content of an Update.
// Other kinds yield an empty string.
func (c Change) Patch() string {
	if c.Kind != Update || c.Block == nil || c.Old == nil || c.Old.Content == c.Block.Content {
		return ""
	}
	name := c.Block.Anchor()
	return string(diff.Diff(name, []byte(c.Old.Content+"\n"), name, []byte(c.Block.Content+"\n")))
}

type candidate struct {
	block *blocks.Block
	index int
}

// Diff computes the changes that turn prev into next. Blocks are matched by
// blocks.Key; when several unused blocks of prev share a key the first one in prev
// order wins. The result lists moves (in next order), then removals (in prev
// order), then updates and additions (in next order).
func Diff(prev, next []blocks.Block) []Change {
	var changes []Change

	byKey := make(map[string][]candidate, len(prev))
	for i := range prev {
		key := blocks.Key(prev[i])
		byKey[key] = append(byKey[key], candidate{block: &prev[i], index: i})
	}

	usedOld := make([]bool, len(prev))
	matchedNew := make([]bool, len(next))

	for i := range next {
		for _, c := range byKey[blocks.Key(next[i])] {
			if usedOld[c.index] {
				continue
			}
			usedOld[c.index] = true
			matchedNew[i] = true
			if c.index != i {
				changes = append(changes, Change{Kind: Move, Index: i, Block: &next[i], Old: c.block})
			}
			break
		}
	}

	for i := range prev {
		if !usedOld[i] {
			changes = append(changes, Change{Kind: Remove, Index: i, Old: &prev[i]})
		}
	}

	for i := range next {
		if matchedNew[i] {
			continue
		}
		if i < len(prev) && !usedOld[i] {
			changes = append(changes, Change{Kind: Update, Index: i, Block: &next[i], Old: &prev[i]})
		} else {
			changes = append(changes, Change{Kind: Add, Index: i, Block: &next[i]})
		}
	}

	return changes
}

// FullRerenderRatio is the share of changed blocks above which applying the
// edit script costs more than rendering everything again.
const FullRerenderRatio = 0.5

// ShouldFullRerender reports whether a caller should discard targeted updates
// and render the whole block list again.
func ShouldFullRerender(changes []Change, totalBlocks int) bool {
	if totalBlocks == 0 {
		return true
	}
	return float64(len(changes))/float64(totalBlocks) > FullRerenderRatio
}

// Stats counts changes by kind.
type Stats struct {
	Added   int `json:"added" yaml:"added"`
	Removed int `json:"removed" yaml:"removed"`
	Updated int `json:"updated" yaml:"updated"`
	Moved   int `json:"moved" yaml:"moved"`
}

// Summarize counts the changes of each kind.
func Summarize(changes []Change) Stats {
	var s Stats
	for _, c := range changes {
		switch c.Kind {
		case Add:
			s.Added++
		case Remove:
			s.Removed++
		case Update:
			s.Updated++
		case Move:
			s.Moved++
		}
	}
	return s
}
