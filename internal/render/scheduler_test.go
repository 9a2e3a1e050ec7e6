package render

import (
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/samsaffron/mdview/internal/blockdiff"
	"github.com/samsaffron/mdview/internal/blocks"
)

// countingConverter wraps content in <p> and records every conversion.
type countingConverter struct {
	calls []string
}

func (c *countingConverter) convert(content string) (string, error) {
	c.calls = append(c.calls, content)
	return "<p>" + content + "</p>", nil
}

func paragraphs(n int) []blocks.Block {
	bs := make([]blocks.Block, n)
	for i := range bs {
		bs[i] = blocks.Block{ID: i, Type: blocks.Paragraph, Content: "para " + strconv.Itoa(i)}
	}
	return bs
}

// fixedScheduler lays out every block at height 100 with no margin.
func fixedScheduler(conv *countingConverter, post PostProcessor) *Scheduler {
	return NewScheduler(NewCache(DefaultCacheCapacity), conv.convert, SchedulerOptions{
		Margin:   -1,
		Estimate: func(blocks.Block) float64 { return 100 },
		Post:     post,
	})
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestScheduler_RendersOnlyVisible(t *testing.T) {
	conv := &countingConverter{}
	s := fixedScheduler(conv, nil)

	if got := s.SetBlocks(paragraphs(10)); len(got) != 0 {
		t.Fatalf("SetBlocks without viewport rendered %v", got)
	}
	if s.Progress() != 0 {
		t.Errorf("Progress() = %v before any viewport", s.Progress())
	}

	got := s.SetViewport(0, 250)
	if want := []int{0, 1, 2}; !equalInts(got, want) {
		t.Fatalf("SetViewport(0, 250) rendered %v, want %v", got, want)
	}
	slots := s.Slots()
	for i, slot := range slots {
		if slot.Rendered != (i < 3) {
			t.Errorf("slot %d Rendered = %v", i, slot.Rendered)
		}
	}
	if slots[1].Fragment != "<p>para 1</p>" {
		t.Errorf("slot 1 fragment = %q", slots[1].Fragment)
	}
	if s.RenderedCount() != 3 || s.Progress() != 0.3 {
		t.Errorf("RenderedCount() = %d, Progress() = %v", s.RenderedCount(), s.Progress())
	}

	// scrolling back over seen blocks renders nothing new
	s.SetViewport(500, 100)
	before := len(conv.calls)
	if got := s.SetViewport(0, 250); len(got) != 0 {
		t.Errorf("revisiting rendered %v", got)
	}
	if len(conv.calls) != before {
		t.Error("revisiting should not convert again")
	}
}

func TestScheduler_Margin(t *testing.T) {
	conv := &countingConverter{}
	s := NewScheduler(nil, conv.convert, SchedulerOptions{
		Margin:   150,
		Estimate: func(blocks.Block) float64 { return 100 },
	})
	s.SetBlocks(paragraphs(10))

	// viewport [400,500] extended to [250,650] touches blocks 2..6
	got := s.SetViewport(400, 100)
	if want := []int{2, 3, 4, 5, 6}; !equalInts(got, want) {
		t.Errorf("SetViewport with margin rendered %v, want %v", got, want)
	}
}

func TestScheduler_LargeDocumentRendersLittle(t *testing.T) {
	conv := &countingConverter{}
	s := NewScheduler(nil, conv.convert, SchedulerOptions{FontSize: blocks.DefaultFontSize})
	s.SetBlocks(paragraphs(1000))
	s.SetViewport(0, 800)

	if n := len(conv.calls); n == 0 || n > 50 {
		t.Errorf("converted %d of 1000 blocks for one screen", n)
	}
	if s.Progress() >= 0.05 {
		t.Errorf("Progress() = %v, want < 0.05", s.Progress())
	}
}

func TestScheduler_ApplyKeepsFragments(t *testing.T) {
	conv := &countingConverter{}
	s := fixedScheduler(conv, nil)
	prev := paragraphs(4)
	s.SetBlocks(prev)
	s.SetViewport(0, 1000)
	conv.calls = nil

	// insert a new block at the front: everything else moves down
	next := append([]blocks.Block{{Type: blocks.Paragraph, Content: "new"}}, paragraphs(4)...)
	for i := range next {
		next[i].ID = i
	}
	rendered := s.Apply(next, blockdiff.Diff(prev, next))

	slots := s.Slots()
	if len(slots) != 5 {
		t.Fatalf("len(Slots()) = %d, want 5", len(slots))
	}
	for i := 1; i < 5; i++ {
		want := "<p>para " + strconv.Itoa(i-1) + "</p>"
		if slots[i].Fragment != want {
			t.Errorf("slot %d fragment = %q, want %q", i, slots[i].Fragment, want)
		}
		if slots[i].Block.ID != i {
			t.Errorf("slot %d block ID = %d", i, slots[i].Block.ID)
		}
	}
	if !equalInts(rendered, []int{0}) {
		t.Errorf("Apply rendered %v, want [0]", rendered)
	}
	if len(conv.calls) != 1 || conv.calls[0] != "new" {
		t.Errorf("conversions = %v, want only the new block", conv.calls)
	}
}

func TestScheduler_ApplyUpdateRerendersSeen(t *testing.T) {
	conv := &countingConverter{}
	s := fixedScheduler(conv, nil)
	prev := paragraphs(3)
	s.SetBlocks(prev)
	s.SetViewport(0, 150)

	next := paragraphs(3)
	next[1].Content = "edited"
	next[2].Content = "edited too"
	rendered := s.Apply(next, blockdiff.Diff(prev, next))

	if !equalInts(rendered, []int{1}) {
		t.Errorf("Apply rendered %v, want [1]", rendered)
	}
	slots := s.Slots()
	if slots[1].Fragment != "<p>edited</p>" {
		t.Errorf("slot 1 fragment = %q", slots[1].Fragment)
	}
	if slots[2].Rendered {
		t.Error("slot 2 was never visible and should stay a placeholder")
	}
	if s.RenderedCount() != 2 {
		t.Errorf("RenderedCount() = %d, want 2", s.RenderedCount())
	}
}

func TestScheduler_SetBlocksKeepsSeenPositions(t *testing.T) {
	conv := &countingConverter{}
	s := fixedScheduler(conv, nil)
	s.SetBlocks(paragraphs(5))
	s.SetViewport(0, 150)

	next := paragraphs(5)
	for i := range next {
		next[i].Content = "v2 " + next[i].Content
	}
	s.SetBlocks(next)

	if s.RenderedCount() != 2 {
		t.Errorf("RenderedCount() = %d, want 2", s.RenderedCount())
	}
	slots := s.Slots()
	if slots[0].Fragment != "<p>v2 para 0</p>" || slots[2].Rendered {
		t.Errorf("unexpected layout after SetBlocks: %+v", slots[:3])
	}
}

func TestScheduler_ProgressNeverDecreasesBelowCount(t *testing.T) {
	conv := &countingConverter{}
	s := fixedScheduler(conv, nil)
	prev := paragraphs(4)
	s.SetBlocks(prev)
	s.SetViewport(0, 1000)

	next := prev[:1]
	s.Apply(next, blockdiff.Diff(prev, next))
	if s.RenderedCount() != 4 {
		t.Errorf("RenderedCount() = %d after removals, want 4", s.RenderedCount())
	}
	if s.Progress() != 1 {
		t.Errorf("Progress() = %v, want capped at 1", s.Progress())
	}

	s.SetBlocks(nil)
	if s.Progress() != 1 {
		t.Errorf("Progress() of empty layout = %v, want 1", s.Progress())
	}
}

func TestScheduler_CacheHitSkipsConversion(t *testing.T) {
	conv := &countingConverter{}
	cache := NewCache(10)
	cache.Put(blocks.Block{Type: blocks.Paragraph, Content: "para 0"}, "<p>cached</p>")
	s := NewScheduler(cache, conv.convert, SchedulerOptions{
		Margin:   -1,
		Estimate: func(blocks.Block) float64 { return 100 },
	})
	s.SetBlocks(paragraphs(2))
	s.SetViewport(0, 50)

	if len(conv.calls) != 0 {
		t.Errorf("conversions = %v, want none", conv.calls)
	}
	if got := s.Slots()[0].Fragment; got != "<p>cached</p>" {
		t.Errorf("fragment = %q", got)
	}
}

func TestScheduler_ConversionError(t *testing.T) {
	s := NewScheduler(nil, func(string) (string, error) {
		return "", errors.New("bad <input>")
	}, SchedulerOptions{Margin: -1, Estimate: func(blocks.Block) float64 { return 10 }})
	s.SetBlocks(paragraphs(1))
	s.SetViewport(0, 10)

	slot := s.Slots()[0]
	if !slot.Rendered || !strings.Contains(slot.Fragment, "md-error") {
		t.Fatalf("fragment = %q, want error markup", slot.Fragment)
	}
	if !strings.Contains(slot.Fragment, "bad &lt;input&gt;") {
		t.Errorf("error text should be escaped: %q", slot.Fragment)
	}
	if s.Cache().Len() != 0 {
		t.Error("failed conversions must not be cached")
	}
}

type upperPost struct{ processed int }

func (p *upperPost) Needs(_ blocks.Block, fragment string) bool {
	return strings.Contains(fragment, "$")
}

func (p *upperPost) Process(fragment string) string {
	p.processed++
	return strings.ToUpper(fragment)
}

func TestScheduler_PostPassRunsAtNextFrame(t *testing.T) {
	conv := &countingConverter{}
	post := &upperPost{}
	s := fixedScheduler(conv, post)
	s.SetBlocks([]blocks.Block{
		{ID: 0, Type: blocks.Paragraph, Content: "inline $x$"},
		{ID: 1, Type: blocks.Paragraph, Content: "plain"},
		{ID: 2, Type: blocks.Math, Content: "$$\nx\n$$"},
	})
	s.SetViewport(0, 300)

	// fragments are inserted first, untouched
	if got := s.Slots()[0].Fragment; got != "<p>inline $x$</p>" {
		t.Fatalf("fragment before flush = %q", got)
	}
	if n := s.Frames().Len(); n != 2 {
		t.Fatalf("pending frame jobs = %d, want 2", n)
	}

	if n := s.Frames().Flush(); n != 2 {
		t.Errorf("Flush() = %d, want 2", n)
	}
	slots := s.Slots()
	if slots[0].Fragment != "<P>INLINE $X$</P>" {
		t.Errorf("fragment after flush = %q", slots[0].Fragment)
	}
	if slots[1].Fragment != "<p>plain</p>" {
		t.Errorf("plain fragment changed: %q", slots[1].Fragment)
	}
	if post.processed != 2 {
		t.Errorf("processed = %d, want 2", post.processed)
	}
}

func TestScheduler_StalePostPassSkipped(t *testing.T) {
	conv := &countingConverter{}
	post := &upperPost{}
	s := fixedScheduler(conv, post)
	prev := []blocks.Block{{ID: 0, Type: blocks.Paragraph, Content: "$a$"}}
	s.SetBlocks(prev)
	s.SetViewport(0, 100)

	next := []blocks.Block{{ID: 0, Type: blocks.Paragraph, Content: "$b$"}}
	s.Apply(next, blockdiff.Diff(prev, next))
	s.Frames().Flush()

	if got := s.Slots()[0].Fragment; got != "<P>$B$</P>" {
		t.Errorf("fragment = %q, want the processed new content", got)
	}
	if post.processed != 1 {
		t.Errorf("processed = %d, want 1 (stale job skipped)", post.processed)
	}
}

func TestScheduler_Measure(t *testing.T) {
	conv := &countingConverter{}
	s := fixedScheduler(conv, nil)
	s.SetBlocks(paragraphs(3))
	s.SetViewport(0, 50)

	s.Measure(0, 40)
	slots := s.Slots()
	if slots[1].Offset != 40 {
		t.Errorf("slot 1 offset = %v, want 40", slots[1].Offset)
	}
	if s.TotalHeight() != 240 {
		t.Errorf("TotalHeight() = %v, want 240", s.TotalHeight())
	}
	s.Measure(10, 5) // out of range is ignored
}

func TestFrameQueue_NestedScheduleWaits(t *testing.T) {
	var q FrameQueue
	var ran []string
	q.Schedule(func() {
		ran = append(ran, "first")
		q.Schedule(func() { ran = append(ran, "second") })
	})

	if n := q.Flush(); n != 1 {
		t.Errorf("Flush() = %d, want 1", n)
	}
	if len(ran) != 1 || q.Len() != 1 {
		t.Fatalf("ran = %v, pending = %d", ran, q.Len())
	}
	q.Flush()
	if len(ran) != 2 || ran[1] != "second" {
		t.Errorf("ran = %v", ran)
	}
}
