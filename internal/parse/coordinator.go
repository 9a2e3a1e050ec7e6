// Package parse runs block segmentation off the rendering goroutine.
// Large documents go to a dedicated worker goroutine, small ones run inline
// when the caller is idle. Results carry the id of the request that produced
// them and only the most recent request's result is accepted.
package parse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/samsaffron/mdview/internal/blocks"
)

var (
	// ErrParseFailed marks a result whose segmentation failed. The result
	// carries an empty block list.
	ErrParseFailed = errors.New("parse failed")
	// ErrClosed is returned by Request after Close.
	ErrClosed = errors.New("parse: coordinator closed")
)

// DefaultSizeThreshold is the document length, in characters, above which
// parsing moves to the worker.
const DefaultSizeThreshold = 30000

// Path says where a request is parsed.
type Path int

const (
	PathInline Path = iota
	PathWorker
)

func (p Path) String() string {
	switch p {
	case PathInline:
		return "inline"
	case PathWorker:
		return "worker"
	}
	return "unknown"
}

// MarshalText renders the path by name.
func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Path) UnmarshalText(text []byte) error {
	switch string(text) {
	case "inline":
		*p = PathInline
	case "worker":
		*p = PathWorker
	default:
		return fmt.Errorf("unknown parse path %q", text)
	}
	return nil
}

// Options configures a Coordinator.
type Options struct {
	UseWorker     bool
	SizeThreshold int
	// Idle schedules fn for when the caller is idle. When nil, inline parses
	// run as a zero-delay deferred call.
	Idle func(fn func())
	// Segment replaces blocks.Segment.
	Segment func(string) []blocks.Block
}

// DefaultOptions enables the worker with the default threshold.
func DefaultOptions() Options {
	return Options{UseWorker: true, SizeThreshold: DefaultSizeThreshold}
}

// Request is one document snapshot to segment.
type Request struct {
	ID      uint64
	Content string
}

// Result is the outcome of a Request.
type Result struct {
	ID      uint64         `json:"id"`
	Blocks  []blocks.Block `json:"blocks"`
	Elapsed time.Duration  `json:"elapsed"`
	Path    Path           `json:"path"`
	Err     error          `json:"-"`
}

// Coordinator dispatches segmentation requests and filters stale results.
type Coordinator struct {
	opts    Options
	logger  *slog.Logger
	segment func(string) []blocks.Block

	results chan Result
	closed  chan struct{}
	once    sync.Once
	wg      sync.WaitGroup

	nextID   atomic.Uint64
	workerUp atomic.Bool

	// worker mailbox; a newer request replaces one not yet picked up
	mu      sync.Mutex
	pending *Request
	wake    chan struct{}

	acceptMu sync.Mutex
	accepted uint64
}

// New creates a coordinator. Call Start to launch the worker.
func New(opts Options, logger *slog.Logger) *Coordinator {
	if opts.SizeThreshold <= 0 {
		opts.SizeThreshold = DefaultSizeThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	segment := opts.Segment
	if segment == nil {
		segment = blocks.Segment
	}
	return &Coordinator{
		opts:    opts,
		logger:  logger,
		segment: segment,
		results: make(chan Result, 8),
		closed:  make(chan struct{}),
		wake:    make(chan struct{}, 1),
	}
}

// Start launches the worker goroutine when the worker is enabled. The worker
// stops when ctx is cancelled or the coordinator is closed; after that every
// request is parsed inline.
func (c *Coordinator) Start(ctx context.Context) {
	if !c.opts.UseWorker {
		return
	}
	c.workerUp.Store(true)
	c.wg.Add(1)
	go c.work(ctx)
}

func (c *Coordinator) work(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			c.workerUp.Store(false)
			// hand a request the worker never picked up to the inline path
			if req := c.take(); req != nil {
				c.runInline(*req)
			}
			return
		case <-c.closed:
			c.workerUp.Store(false)
			return
		case <-c.wake:
		}

		if req := c.take(); req != nil {
			c.deliver(c.parse(*req, PathWorker))
		}
	}
}

func (c *Coordinator) take() *Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	req := c.pending
	c.pending = nil
	return req
}

// PathFor returns where a document of n characters would be parsed.
func (c *Coordinator) PathFor(n int) Path {
	if n > c.opts.SizeThreshold && c.opts.UseWorker && c.workerUp.Load() {
		return PathWorker
	}
	return PathInline
}

// Request issues a new parse of content and returns its id. It never waits
// for the parse; the result arrives on Results.
func (c *Coordinator) Request(ctx context.Context, content string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	select {
	case <-c.closed:
		return 0, ErrClosed
	default:
	}

	req := Request{ID: c.nextID.Add(1), Content: content}
	path := c.PathFor(utf8.RuneCountInString(content))
	c.logger.Debug("parse requested", "id", req.ID, "path", path.String(), "bytes", len(content))

	if path == PathWorker {
		c.mu.Lock()
		if c.pending != nil {
			c.logger.Debug("parse request superseded", "id", c.pending.ID, "by", req.ID)
		}
		c.pending = &req
		c.mu.Unlock()
		select {
		case c.wake <- struct{}{}:
		default:
		}
		return req.ID, nil
	}

	c.runInline(req)
	return req.ID, nil
}

func (c *Coordinator) runInline(req Request) {
	run := func() { c.deliver(c.parse(req, PathInline)) }
	if c.opts.Idle != nil {
		c.opts.Idle(run)
		return
	}
	time.AfterFunc(0, run)
}

// parse segments one request. A panic in segmentation becomes a result with
// no blocks and ErrParseFailed.
func (c *Coordinator) parse(req Request, path Path) (res Result) {
	res = Result{ID: req.ID, Path: path, Blocks: []blocks.Block{}}
	if req.Content == "" {
		return res
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("segmentation failed", "id", req.ID, "path", path.String(), "panic", r)
			res.Blocks = []blocks.Block{}
			res.Elapsed = 0
			res.Err = fmt.Errorf("%w: %v", ErrParseFailed, r)
		}
	}()

	start := time.Now()
	res.Blocks = c.segment(req.Content)
	res.Elapsed = time.Since(start)
	c.logger.Debug("parse finished", "id", req.ID, "path", path.String(), "blocks", len(res.Blocks), "elapsed", res.Elapsed)
	return res
}

func (c *Coordinator) deliver(res Result) {
	select {
	case c.results <- res:
	case <-c.closed:
	}
}

// Results delivers finished parses, possibly out of order. Pass each one to
// Accept before using it.
func (c *Coordinator) Results() <-chan Result {
	return c.results
}

// Accept reports whether res answers the most recent request. Stale results
// must be dropped by the caller.
func (c *Coordinator) Accept(res Result) bool {
	latest := c.nextID.Load()
	if res.ID != latest {
		c.logger.Debug("dropping stale parse result", "id", res.ID, "latest", latest)
		return false
	}
	c.acceptMu.Lock()
	c.accepted = res.ID
	c.acceptMu.Unlock()
	return true
}

// Parsing reports whether the most recent request is still outstanding.
func (c *Coordinator) Parsing() bool {
	c.acceptMu.Lock()
	defer c.acceptMu.Unlock()
	return c.accepted != c.nextID.Load()
}

// Latest returns the id of the most recent request.
func (c *Coordinator) Latest() uint64 {
	return c.nextID.Load()
}

// Close stops the worker and unblocks pending deliveries. Results of
// in-flight parses are discarded.
func (c *Coordinator) Close() {
	c.once.Do(func() { close(c.closed) })
	c.wg.Wait()
}
