// Package render turns blocks into fragments lazily: a block is converted only
// once its placeholder comes near the viewport, and converted fragments are
// kept in a bounded cache.
package render

import (
	"html"
	"log/slog"

	"github.com/samsaffron/mdview/internal/blockdiff"
	"github.com/samsaffron/mdview/internal/blocks"
)

// DefaultVisibilityMargin is how far outside the viewport, in layout units,
// a placeholder starts rendering.
const DefaultVisibilityMargin = 200

// Converter turns the markdown of one block into a fragment.
type Converter func(content string) (string, error)

// PostProcessor renders the specialized parts of a fragment (math, diagrams)
// after the fragment itself has been inserted.
type PostProcessor interface {
	// Needs reports whether the fragment of b contains anything to process.
	Needs(b blocks.Block, fragment string) bool
	// Process returns the fragment with specialized parts rendered. Failures
	// must be turned into error markup, not returned.
	Process(fragment string) string
}

// Slot is the placeholder of one block in the layout.
type Slot struct {
	Block    blocks.Block `json:"block"`
	Fragment string       `json:"fragment,omitempty"`
	Rendered bool         `json:"rendered"`
	Seen     bool         `json:"-"`
	Estimate float64      `json:"estimate"`
	Measured float64      `json:"measured,omitempty"`
	Offset   float64      `json:"offset"`
}

// Height is the measured height when known, the estimate otherwise.
func (s Slot) Height() float64 {
	if s.Measured > 0 {
		return s.Measured
	}
	return s.Estimate
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	// Margin extends the viewport on both sides. Zero means
	// DefaultVisibilityMargin; use a negative value for no margin.
	Margin float64
	// FontSize feeds blocks.EstimateHeight when Estimate is nil.
	FontSize float64
	// Estimate overrides the placeholder height estimate.
	Estimate func(blocks.Block) float64
	// Post renders math and diagrams at the next frame boundary. Optional.
	Post PostProcessor
	// ErrorFragment builds the fragment shown when conversion fails.
	ErrorFragment func(b blocks.Block, err error) string
	Logger        *slog.Logger
}

// Scheduler owns the placeholders of one preview and renders them on demand.
// It must only be used from the preview's rendering goroutine.
type Scheduler struct {
	cache    *Cache
	convert  Converter
	post     PostProcessor
	errFrag  func(blocks.Block, error) string
	estimate func(blocks.Block) float64
	margin   float64
	logger   *slog.Logger

	slots    []*Slot
	rendered int
	frames   FrameQueue

	top, height float64
	hasViewport bool
}

// NewScheduler creates a scheduler rendering through convert and cache.
func NewScheduler(cache *Cache, convert Converter, opts SchedulerOptions) *Scheduler {
	if cache == nil {
		cache = NewCache(DefaultCacheCapacity)
	}
	s := &Scheduler{
		cache:    cache,
		convert:  convert,
		post:     opts.Post,
		errFrag:  opts.ErrorFragment,
		estimate: opts.Estimate,
		margin:   opts.Margin,
		logger:   opts.Logger,
	}
	if s.margin == 0 {
		s.margin = DefaultVisibilityMargin
	} else if s.margin < 0 {
		s.margin = 0
	}
	if s.estimate == nil {
		fontSize := opts.FontSize
		s.estimate = func(b blocks.Block) float64 { return blocks.EstimateHeight(b, fontSize) }
	}
	if s.errFrag == nil {
		s.errFrag = ErrorFragment
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// ErrorFragment is the default markup for a block that failed to convert.
func ErrorFragment(b blocks.Block, err error) string {
	return `<div class="md-error" data-block="` + b.Anchor() + `">` + html.EscapeString(err.Error()) + `</div>`
}

// SetBlocks replaces the whole layout. Placeholders are matched by position:
// a position that was already seen stays seen and renders its new block
// right away, which keeps the seen count from growing on every edit.
func (s *Scheduler) SetBlocks(bs []blocks.Block) []int {
	slots := make([]*Slot, len(bs))
	var rendered []int
	for i, b := range bs {
		slot := &Slot{Block: b, Estimate: s.estimate(b)}
		if i < len(s.slots) && s.slots[i].Seen {
			slot.Seen = true
		}
		slots[i] = slot
	}
	s.slots = slots
	for i, slot := range s.slots {
		if slot.Seen {
			s.render(slot)
			rendered = append(rendered, i)
		}
	}
	return append(rendered, s.evaluate()...)
}

// Apply moves the layout to next using an edit script from blockdiff.Diff
// computed against the current blocks. Unchanged and moved blocks keep their
// fragments; updated blocks that were already seen render again at once.
func (s *Scheduler) Apply(next []blocks.Block, changes []blockdiff.Change) []int {
	prev := s.slots
	slots := make([]*Slot, len(next))

	for _, c := range changes {
		switch c.Kind {
		case blockdiff.Move:
			if c.Old == nil {
				continue
			}
			if old := s.findSlot(prev, c.Old); old != nil {
				old.Block = next[c.Index]
				slots[c.Index] = old
			}
		case blockdiff.Update:
			if c.Index >= len(prev) {
				slots[c.Index] = &Slot{Block: next[c.Index], Estimate: s.estimate(next[c.Index])}
				continue
			}
			// same placeholder, new content; Seen carries over
			slot := prev[c.Index]
			slot.Block = next[c.Index]
			slot.Estimate = s.estimate(next[c.Index])
			slot.Fragment, slot.Rendered, slot.Measured = "", false, 0
			slots[c.Index] = slot
		case blockdiff.Add:
			slots[c.Index] = &Slot{Block: next[c.Index], Estimate: s.estimate(next[c.Index])}
		case blockdiff.Remove:
			// drop the fragment so pending frame jobs for it are skipped
			if c.Index < len(prev) {
				prev[c.Index].Fragment, prev[c.Index].Rendered = "", false
			}
		}
	}

	var rendered []int
	for i, slot := range slots {
		if slot != nil {
			if slot.Seen && !slot.Rendered {
				s.render(slot)
				rendered = append(rendered, i)
			}
			continue
		}
		// no change record: matched in place
		if i < len(prev) {
			prev[i].Block = next[i]
			slots[i] = prev[i]
			continue
		}
		slots[i] = &Slot{Block: next[i], Estimate: s.estimate(next[i])}
	}

	s.slots = slots
	return append(rendered, s.evaluate()...)
}

// findSlot locates the slot holding old by block ID.
func (s *Scheduler) findSlot(prev []*Slot, old *blocks.Block) *Slot {
	if old.ID >= 0 && old.ID < len(prev) && prev[old.ID].Block.ID == old.ID {
		return prev[old.ID]
	}
	for _, slot := range prev {
		if slot.Block.ID == old.ID {
			return slot
		}
	}
	return nil
}

// SetViewport records the visible region, in the same units as the height
// estimate, and renders every placeholder within the margin of it. It returns
// the indices rendered by this call.
func (s *Scheduler) SetViewport(top, height float64) []int {
	s.top, s.height = top, height
	s.hasViewport = true
	return s.evaluate()
}

// Measure records the real height of a rendered block.
func (s *Scheduler) Measure(index int, height float64) {
	if index < 0 || index >= len(s.slots) {
		return
	}
	s.slots[index].Measured = height
	s.layout()
}

// evaluate renders unseen placeholders that intersect the extended viewport.
func (s *Scheduler) evaluate() []int {
	s.layout()
	if !s.hasViewport {
		return nil
	}

	lo := s.top - s.margin
	hi := s.top + s.height + s.margin
	var rendered []int
	for i, slot := range s.slots {
		if slot.Offset > hi {
			break
		}
		if slot.Offset+slot.Height() < lo || slot.Seen {
			continue
		}
		slot.Seen = true
		s.rendered++
		s.render(slot)
		rendered = append(rendered, i)
	}
	if len(rendered) > 0 {
		s.layout()
	}
	return rendered
}

func (s *Scheduler) layout() {
	offset := 0.0
	for _, slot := range s.slots {
		slot.Offset = offset
		offset += slot.Height()
	}
}

// render fills a slot's fragment from the cache, converting on a miss, and
// queues the specialized pass for the next frame.
func (s *Scheduler) render(slot *Slot) {
	b := slot.Block
	fragment, ok := s.cache.Get(b)
	if !ok {
		var err error
		fragment, err = s.convertBlock(b)
		if err != nil {
			s.logger.Warn("block conversion failed", "block", b.Anchor(), "type", b.Type.String(), "error", err)
			fragment = s.errFrag(b, err)
		} else {
			s.cache.Put(b, fragment)
		}
	}
	slot.Fragment = fragment
	slot.Rendered = true
	slot.Measured = 0

	if s.post == nil || !s.needsPost(b, fragment) {
		return
	}
	s.frames.Schedule(func() {
		// skip if the slot was re-rendered since
		if slot.Fragment != fragment {
			return
		}
		slot.Fragment = s.post.Process(fragment)
	})
}

func (s *Scheduler) convertBlock(b blocks.Block) (string, error) {
	if s.convert == nil {
		return html.EscapeString(b.Content), nil
	}
	return s.convert(b.Content)
}

// needsPost decides whether the specialized pass must run for a block.
// Math and diagram blocks always go through it.
func (s *Scheduler) needsPost(b blocks.Block, fragment string) bool {
	if b.Type == blocks.Math || b.Type == blocks.Diagram {
		return true
	}
	return s.post.Needs(b, fragment)
}

// Frames returns the queue of work deferred to the next frame boundary.
func (s *Scheduler) Frames() *FrameQueue {
	return &s.frames
}

// Slots returns a snapshot of the layout.
func (s *Scheduler) Slots() []Slot {
	out := make([]Slot, len(s.slots))
	for i, slot := range s.slots {
		out[i] = *slot
	}
	return out
}

// Blocks returns the blocks currently laid out.
func (s *Scheduler) Blocks() []blocks.Block {
	out := make([]blocks.Block, len(s.slots))
	for i, slot := range s.slots {
		out[i] = slot.Block
	}
	return out
}

// Total returns the number of placeholders.
func (s *Scheduler) Total() int {
	return len(s.slots)
}

// RenderedCount returns how many placeholders became visible at least once.
// It is not reduced when blocks are removed.
func (s *Scheduler) RenderedCount() int {
	return s.rendered
}

// Progress is RenderedCount over Total, capped at 1. An empty layout is
// complete.
func (s *Scheduler) Progress() float64 {
	if len(s.slots) == 0 {
		return 1
	}
	p := float64(s.rendered) / float64(len(s.slots))
	if p > 1 {
		return 1
	}
	return p
}

// TotalHeight is the height of the whole layout.
func (s *Scheduler) TotalHeight() float64 {
	if len(s.slots) == 0 {
		return 0
	}
	last := s.slots[len(s.slots)-1]
	return last.Offset + last.Height()
}

// Cache returns the cache the scheduler renders through.
func (s *Scheduler) Cache() *Cache {
	return s.cache
}
