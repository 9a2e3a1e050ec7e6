package parse

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/samsaffron/mdview/internal/blocks"
)

func receive(t *testing.T, c *Coordinator) Result {
	t.Helper()
	select {
	case res := <-c.Results():
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("no parse result")
	}
	return Result{}
}

// idleQueue collects inline parses so tests can run them in any order.
type idleQueue struct {
	fns []func()
}

func (q *idleQueue) schedule(fn func()) {
	q.fns = append(q.fns, fn)
}

func TestPathFor(t *testing.T) {
	c := New(Options{UseWorker: true, SizeThreshold: 30000}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Close()

	tests := []struct {
		n    int
		want Path
	}{
		{40000, PathWorker},
		{10000, PathInline},
		{30000, PathInline},
		{30001, PathWorker},
	}
	for _, tt := range tests {
		if got := c.PathFor(tt.n); got != tt.want {
			t.Errorf("PathFor(%d) = %s, want %s", tt.n, got, tt.want)
		}
	}
}

func TestPathFor_WorkerUnavailable(t *testing.T) {
	disabled := New(Options{UseWorker: false, SizeThreshold: 10}, nil)
	if got := disabled.PathFor(1000); got != PathInline {
		t.Errorf("worker disabled: PathFor() = %s, want inline", got)
	}

	notStarted := New(Options{UseWorker: true, SizeThreshold: 10}, nil)
	if got := notStarted.PathFor(1000); got != PathInline {
		t.Errorf("worker not started: PathFor() = %s, want inline", got)
	}
}

func TestCoordinator_Inline(t *testing.T) {
	c := New(Options{SizeThreshold: 1000}, nil)
	defer c.Close()

	id, err := c.Request(context.Background(), "# Title\n\nHello world\n")
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if !c.Parsing() {
		t.Error("Parsing() = false with a request outstanding")
	}

	res := receive(t, c)
	if res.ID != id || res.Path != PathInline || res.Err != nil {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Blocks) != 2 || res.Blocks[0].Type != blocks.Heading {
		t.Errorf("blocks = %+v", res.Blocks)
	}
	if !c.Accept(res) {
		t.Error("Accept() = false for the latest result")
	}
	if c.Parsing() {
		t.Error("Parsing() = true after accepting the latest result")
	}
}

func TestCoordinator_Worker(t *testing.T) {
	c := New(Options{UseWorker: true, SizeThreshold: 10}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Close()

	text := strings.Repeat("paragraph text\n\n", 20)
	if _, err := c.Request(ctx, text); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	res := receive(t, c)
	if res.Path != PathWorker {
		t.Errorf("Path = %s, want worker", res.Path)
	}
	if len(res.Blocks) != 20 {
		t.Errorf("len(Blocks) = %d, want 20", len(res.Blocks))
	}
	if !c.Accept(res) {
		t.Error("Accept() = false")
	}
}

func TestCoordinator_LastWriteWins(t *testing.T) {
	q := &idleQueue{}
	c := New(Options{Idle: q.schedule}, nil)
	defer c.Close()
	ctx := context.Background()

	first, _ := c.Request(ctx, "first")
	second, _ := c.Request(ctx, "second")
	if len(q.fns) != 2 {
		t.Fatalf("scheduled %d parses, want 2", len(q.fns))
	}

	// the newer parse finishes first
	go func() {
		q.fns[1]()
		q.fns[0]()
	}()

	res := receive(t, c)
	if res.ID != second || !c.Accept(res) {
		t.Fatalf("newest result %d not accepted", res.ID)
	}
	if c.Parsing() {
		t.Error("Parsing() = true after accepting the newest result")
	}

	stale := receive(t, c)
	if stale.ID != first {
		t.Fatalf("got id %d, want %d", stale.ID, first)
	}
	if c.Accept(stale) {
		t.Error("a stale result was accepted")
	}
	if c.Parsing() {
		t.Error("a stale result must not change Parsing()")
	}
}

func TestCoordinator_SegmentPanic(t *testing.T) {
	c := New(Options{Segment: func(string) []blocks.Block { panic("boom") }}, nil)
	defer c.Close()

	if _, err := c.Request(context.Background(), "text"); err != nil {
		t.Fatal(err)
	}
	res := receive(t, c)
	if !errors.Is(res.Err, ErrParseFailed) {
		t.Errorf("Err = %v, want ErrParseFailed", res.Err)
	}
	if len(res.Blocks) != 0 || res.Elapsed != 0 {
		t.Errorf("failed result = %+v, want empty blocks and zero elapsed", res)
	}
}

func TestCoordinator_EmptyDocument(t *testing.T) {
	called := false
	c := New(Options{Segment: func(s string) []blocks.Block {
		called = true
		return blocks.Segment(s)
	}}, nil)
	defer c.Close()

	c.Request(context.Background(), "")
	res := receive(t, c)
	if res.Err != nil || len(res.Blocks) != 0 || res.Blocks == nil {
		t.Errorf("empty result = %+v", res)
	}
	if called {
		t.Error("empty documents should not be segmented")
	}
	if !c.Accept(res) {
		t.Error("Accept() = false")
	}
}

func TestCoordinator_Closed(t *testing.T) {
	c := New(DefaultOptions(), nil)
	c.Start(context.Background())
	c.Close()
	c.Close()

	if _, err := c.Request(context.Background(), "x"); !errors.Is(err, ErrClosed) {
		t.Errorf("Request() after Close error = %v, want ErrClosed", err)
	}
}

func TestCoordinator_CancelledContext(t *testing.T) {
	c := New(DefaultOptions(), nil)
	defer c.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Request(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("Request() error = %v, want context.Canceled", err)
	}
}
