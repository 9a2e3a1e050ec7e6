// Package preview keeps a continuously edited document rendered. A Preview
// owns one rendering goroutine (Run) that debounces edits, hands them to the
// parse coordinator, reconciles the resulting block list with the previous
// one and renders what the viewport shows.
package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samsaffron/mdview/internal/blockdiff"
	"github.com/samsaffron/mdview/internal/blocks"
	"github.com/samsaffron/mdview/internal/debounce"
	"github.com/samsaffron/mdview/internal/parse"
	"github.com/samsaffron/mdview/internal/render"
)

// ErrClosed is returned by calls on a closed preview.
var ErrClosed = errors.New("preview closed")

// Mode selects between block-by-block rendering and converting the whole
// document at once.
type Mode int

const (
	ModeVirtual Mode = iota
	ModeFull
)

func (m Mode) String() string {
	switch m {
	case ModeVirtual:
		return "virtual"
	case ModeFull:
		return "full"
	}
	return "unknown"
}

// MarshalText renders the mode by name.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMode parses "virtual" or "full".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "virtual":
		return ModeVirtual, nil
	case "full":
		return ModeFull, nil
	}
	return ModeVirtual, fmt.Errorf("unknown preview mode %q", s)
}

// Options configures a Preview.
type Options struct {
	Mode     Mode
	Parse    parse.Options
	Debounce debounce.Policy

	// Cache is shared by every render of this preview. When nil a cache of
	// CacheCapacity entries is created.
	Cache         *render.Cache
	CacheCapacity int

	Margin        float64
	FontSize      float64
	Estimate      func(blocks.Block) float64
	Converter     render.Converter
	Post          render.PostProcessor
	ErrorFragment func(blocks.Block, error) string
}

// DefaultOptions renders blocks lazily with the default thresholds.
func DefaultOptions() Options {
	return Options{
		Mode:          ModeVirtual,
		Parse:         parse.DefaultOptions(),
		Debounce:      debounce.DefaultPolicy(),
		CacheCapacity: render.DefaultCacheCapacity,
		Margin:        render.DefaultVisibilityMargin,
		FontSize:      blocks.DefaultFontSize,
	}
}

// Frame is a snapshot of the preview handed to the presentation layer.
type Frame struct {
	Seq  uint64 `json:"seq"`
	Mode Mode   `json:"mode"`

	Slots    []render.Slot `json:"slots,omitempty"`
	Fragment string        `json:"fragment,omitempty"`

	Changes      []blockdiff.Change `json:"changes,omitempty"`
	Stats        blockdiff.Stats    `json:"stats"`
	FullRerender bool               `json:"fullRerender"`

	Rendered int     `json:"rendered"`
	Total    int     `json:"total"`
	Progress float64 `json:"progress"`
	Height   float64 `json:"height"`

	Parsing    bool              `json:"parsing"`
	ParsePath  parse.Path        `json:"parsePath"`
	ParseTime  time.Duration     `json:"parseTime"`
	RenderTime time.Duration     `json:"renderTime"`
	Cache      render.CacheStats `json:"cache"`
	Chars      int               `json:"chars"`

	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

type viewport struct {
	top, height float64
}

type measurement struct {
	index  int
	height float64
}

// Preview renders one document. Create it with New, start Run in its own
// goroutine and feed it with SetText and SetViewport.
type Preview struct {
	opts   Options
	logger *slog.Logger

	coord *parse.Coordinator
	sched *render.Scheduler
	timer *debounce.Timer

	edits     chan string
	viewports chan viewport
	measures  chan measurement
	frames    chan Frame
	done      chan struct{}
	closeOnce sync.Once

	// owned by Run
	seq       uint64
	blocks    []blocks.Block
	fragment  string
	chars     int
	lastParse parse.Result
	lastErr   error
	changes   []blockdiff.Change
	full      bool
	rendering time.Duration
}

// New creates a preview. Nothing happens until Run is called.
func New(opts Options, logger *slog.Logger) *Preview {
	if logger == nil {
		logger = slog.Default()
	}
	if len(opts.Debounce.Delays) == 0 {
		opts.Debounce = debounce.DefaultPolicy()
	}
	cache := opts.Cache
	if cache == nil {
		cache = render.NewCache(opts.CacheCapacity)
	}

	p := &Preview{
		opts:      opts,
		logger:    logger,
		coord:     parse.New(opts.Parse, logger),
		timer:     debounce.NewTimer(opts.Debounce),
		edits:     make(chan string),
		viewports: make(chan viewport),
		measures:  make(chan measurement, 16),
		frames:    make(chan Frame, 1),
		done:      make(chan struct{}),
	}
	p.sched = render.NewScheduler(cache, opts.Converter, render.SchedulerOptions{
		Margin:        opts.Margin,
		FontSize:      opts.FontSize,
		Estimate:      opts.Estimate,
		Post:          opts.Post,
		ErrorFragment: opts.ErrorFragment,
		Logger:        logger,
	})
	return p
}

// Run is the rendering goroutine. It returns when ctx is cancelled or the
// preview is closed, and closes the Frames channel on the way out.
func (p *Preview) Run(ctx context.Context) error {
	p.coord.Start(ctx)
	defer close(p.frames)
	defer p.coord.Close()
	defer p.timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.done:
			return nil

		case text := <-p.edits:
			d := p.timer.Trigger(text)
			p.logger.Debug("edit debounced", "chars", len(text), "delay", d)

		case <-p.timer.C():
			p.fire(ctx, p.timer.Take())

		case res := <-p.coord.Results():
			p.accept(res)

		case v := <-p.viewports:
			if p.opts.Mode == ModeFull {
				continue
			}
			start := time.Now()
			if rendered := p.sched.SetViewport(v.top, v.height); len(rendered) > 0 {
				p.rendering = time.Since(start)
				p.logger.Debug("viewport rendered blocks", "count", len(rendered), "elapsed", p.rendering)
				p.emit()
			}

		case m := <-p.measures:
			p.sched.Measure(m.index, m.height)
		}
	}
}

// fire handles a debounced edit.
func (p *Preview) fire(ctx context.Context, text string) {
	p.chars = len([]rune(text))

	if p.opts.Mode == ModeFull {
		start := time.Now()
		p.fragment = p.convertAll(text)
		p.rendering = time.Since(start)
		p.lastParse = parse.Result{}
		p.emit()
		return
	}

	if _, err := p.coord.Request(ctx, text); err != nil {
		if !errors.Is(err, context.Canceled) {
			p.logger.Warn("parse request failed", "error", err)
		}
		return
	}
	p.emit()
}

// convertAll renders the whole document in one fragment. The specialized
// pass is queued for the next frame like block fragments are.
func (p *Preview) convertAll(text string) string {
	if p.opts.Converter == nil {
		return text
	}
	fragment, err := p.opts.Converter(text)
	if err != nil {
		p.logger.Warn("document conversion failed", "error", err)
		return render.ErrorFragment(blocks.Block{}, err)
	}
	if p.opts.Post != nil && p.opts.Post.Needs(blocks.Block{}, fragment) {
		p.sched.Frames().Schedule(func() {
			if p.fragment == fragment {
				p.fragment = p.opts.Post.Process(fragment)
			}
		})
	}
	return fragment
}

// accept applies a parse result if it answers the latest request.
func (p *Preview) accept(res parse.Result) {
	if !p.coord.Accept(res) {
		return
	}
	p.lastParse = res
	if res.Err != nil {
		// keep showing the previous blocks
		p.logger.Warn("background parse failed", "id", res.ID, "error", res.Err)
		p.lastErr = res.Err
		p.emit()
		return
	}
	p.lastErr = nil

	start := time.Now()
	changes := blockdiff.Diff(p.blocks, res.Blocks)
	p.changes = changes
	p.full = blockdiff.ShouldFullRerender(changes, len(res.Blocks))
	if p.full {
		p.sched.SetBlocks(res.Blocks)
	} else {
		p.sched.Apply(res.Blocks, changes)
	}
	p.blocks = res.Blocks
	p.rendering = time.Since(start)
	p.logger.Debug("blocks reconciled", "blocks", len(res.Blocks), "changes", len(changes), "full", p.full)
	p.emit()
}

// emit publishes a frame, then runs the work deferred to the next frame and
// publishes again if there was any.
func (p *Preview) emit() {
	p.publish(p.frame())
	if p.sched.Frames().Len() == 0 {
		return
	}
	start := time.Now()
	n := p.sched.Frames().Flush()
	p.rendering = time.Since(start)
	p.logger.Debug("deferred render pass", "jobs", n, "elapsed", p.rendering)
	p.changes = nil
	p.publish(p.frame())
}

func (p *Preview) frame() Frame {
	p.seq++
	f := Frame{
		Seq:        p.seq,
		Mode:       p.opts.Mode,
		Parsing:    p.coord.Parsing(),
		ParsePath:  p.lastParse.Path,
		ParseTime:  p.lastParse.Elapsed,
		RenderTime: p.rendering,
		Cache:      p.sched.Cache().Stats(),
		Chars:      p.chars,
		Err:        p.lastErr,
	}
	if p.lastErr != nil {
		f.Error = p.lastErr.Error()
	}
	if p.opts.Mode == ModeFull {
		f.Fragment = p.fragment
		f.Progress = 1
		return f
	}

	f.Slots = p.sched.Slots()
	f.Changes = p.changes
	f.Stats = blockdiff.Summarize(p.changes)
	f.FullRerender = p.full
	f.Rendered = p.sched.RenderedCount()
	f.Total = p.sched.Total()
	f.Progress = p.sched.Progress()
	f.Height = p.sched.TotalHeight()
	return f
}

// publish hands f to the presentation layer, replacing a frame it has not
// picked up yet.
func (p *Preview) publish(f Frame) {
	select {
	case p.frames <- f:
		return
	default:
	}
	select {
	case old := <-p.frames:
		p.logger.Debug("frame superseded", "seq", old.Seq, "by", f.Seq)
	default:
	}
	p.frames <- f
}

// SetText submits a new version of the document. It blocks until Run takes
// it and fails once the preview is closed.
func (p *Preview) SetText(text string) error {
	select {
	case p.edits <- text:
		return nil
	case <-p.done:
		return ErrClosed
	}
}

// SetViewport reports the visible region in layout units.
func (p *Preview) SetViewport(top, height float64) error {
	select {
	case p.viewports <- viewport{top: top, height: height}:
		return nil
	case <-p.done:
		return ErrClosed
	}
}

// Measure reports the real height of a rendered block.
func (p *Preview) Measure(index int, height float64) error {
	select {
	case p.measures <- measurement{index: index, height: height}:
		return nil
	case <-p.done:
		return ErrClosed
	}
}

// Frames delivers snapshots. Only the newest unread frame is kept.
func (p *Preview) Frames() <-chan Frame {
	return p.frames
}

// Close stops Run. Pending edits are dropped.
func (p *Preview) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}

// Render converts a whole document synchronously, every block rendered and
// the specialized pass applied. It serves one-shot output where nothing
// scrolls.
func Render(text string, opts Options) Frame {
	cache := opts.Cache
	if cache == nil {
		cache = render.NewCache(opts.CacheCapacity)
	}
	sched := render.NewScheduler(cache, opts.Converter, render.SchedulerOptions{
		Margin:        -1,
		FontSize:      opts.FontSize,
		Estimate:      opts.Estimate,
		Post:          opts.Post,
		ErrorFragment: opts.ErrorFragment,
	})

	start := time.Now()
	bs := blocks.Segment(text)
	parseTime := time.Since(start)

	start = time.Now()
	sched.SetBlocks(bs)
	sched.SetViewport(0, sched.TotalHeight())
	sched.Frames().Flush()

	return Frame{
		Seq:        1,
		Mode:       ModeVirtual,
		Slots:      sched.Slots(),
		Rendered:   sched.RenderedCount(),
		Total:      sched.Total(),
		Progress:   sched.Progress(),
		Height:     sched.TotalHeight(),
		ParsePath:  parse.PathInline,
		ParseTime:  parseTime,
		RenderTime: time.Since(start),
		Cache:      cache.Stats(),
		Chars:      len([]rune(text)),
	}
}

// Fragments returns the fragments of f in document order.
func (f Frame) Fragments() []string {
	if f.Mode == ModeFull {
		return []string{f.Fragment}
	}
	out := make([]string, 0, len(f.Slots))
	for _, s := range f.Slots {
		if s.Rendered {
			out = append(out, s.Fragment)
		}
	}
	return out
}
