package serve

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/samsaffron/mdview/internal/blocks"
	"github.com/samsaffron/mdview/internal/preview"
	"github.com/samsaffron/mdview/internal/render"
)

type fakePreview struct {
	mu        sync.Mutex
	texts     []string
	viewports []viewportRequest
	measures  []measureRequest
	frames    chan preview.Frame
	err       error
}

func newFake() *fakePreview {
	return &fakePreview{frames: make(chan preview.Frame, 4)}
}

func (f *fakePreview) SetText(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return f.err
}

func (f *fakePreview) SetViewport(top, height float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.viewports = append(f.viewports, viewportRequest{top, height})
	return f.err
}

func (f *fakePreview) Measure(index int, height float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.measures = append(f.measures, measureRequest{index, height})
	return f.err
}

func (f *fakePreview) Frames() <-chan preview.Frame { return f.frames }

func frameWith(seq uint64, contents ...string) preview.Frame {
	f := preview.Frame{Seq: seq, Total: len(contents), Progress: 1}
	for i, c := range contents {
		f.Slots = append(f.Slots, render.Slot{
			Block:    blocks.Block{ID: i, Type: blocks.Paragraph, Content: c},
			Fragment: "<p>" + c + "</p>",
			Rendered: true,
		})
	}
	return f
}

func TestHandlers(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"index", http.MethodGet, "/", "", nil, http.StatusOK, "EventSource"},
		{"health", http.MethodGet, "/healthz", "", nil, http.StatusOK, `"ok"`},
		{"css", http.MethodGet, "/api/style.css", "", nil, http.StatusOK, ".chroma"},
		{"empty frame", http.MethodGet, "/api/frame", "", nil, http.StatusOK, "{}"},
		{"document", http.MethodPut, "/api/document", "# hi", nil, http.StatusAccepted, ""},
		{"document closed", http.MethodPut, "/api/document", "# hi", preview.ErrClosed, http.StatusServiceUnavailable, "preview closed"},
		{"viewport", http.MethodPost, "/api/viewport", `{"top":10,"height":500}`, nil, http.StatusNoContent, ""},
		{"viewport bad json", http.MethodPost, "/api/viewport", `{"top":`, nil, http.StatusBadRequest, "error"},
		{"viewport negative", http.MethodPost, "/api/viewport", `{"top":0,"height":-1}`, nil, http.StatusBadRequest, "negative"},
		{"viewport trailing data", http.MethodPost, "/api/viewport", `{"top":0,"height":1}{}`, nil, http.StatusBadRequest, "single JSON object"},
		{"measure", http.MethodPost, "/api/measure", `{"index":2,"height":40}`, nil, http.StatusNoContent, ""},
		{"wrong method", http.MethodGet, "/api/document", "", nil, http.StatusMethodNotAllowed, ""},
		{"unknown path", http.MethodGet, "/api/nope", "", nil, http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFake()
			fake.err = tt.err
			s := New(fake, ".chroma { }", nil)

			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %q)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantBody != "" && !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, missing %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestHandlers_ForwardToPreview(t *testing.T) {
	fake := newFake()
	s := New(fake, "", nil)
	h := s.Handler()

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/api/document", strings.NewReader("# doc")))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/viewport", strings.NewReader(`{"top":5,"height":50}`)))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/measure", strings.NewReader(`{"index":1,"height":33}`)))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.texts) != 1 || fake.texts[0] != "# doc" {
		t.Errorf("texts = %q", fake.texts)
	}
	if len(fake.viewports) != 1 || fake.viewports[0] != (viewportRequest{5, 50}) {
		t.Errorf("viewports = %+v", fake.viewports)
	}
	if len(fake.measures) != 1 || fake.measures[0] != (measureRequest{1, 33}) {
		t.Errorf("measures = %+v", fake.measures)
	}
}

func TestPublish_PatchesAndResync(t *testing.T) {
	s := New(newFake(), "", nil)
	sub, initial := s.subscribe()
	if string(initial) != "{}" {
		t.Fatalf("initial = %s", initial)
	}

	if err := s.publish(frameWith(1, "a")); err != nil {
		t.Fatal(err)
	}
	if err := s.publish(frameWith(2, "a", "b")); err != nil {
		t.Fatal(err)
	}
	<-sub.ch
	ev := <-sub.ch
	if ev.name != "patch" {
		t.Fatalf("event = %s, want patch", ev.name)
	}
	var ops []map[string]any
	if err := json.Unmarshal(ev.data, &ops); err != nil {
		t.Fatalf("patch is not JSON: %v", err)
	}
	var added bool
	for _, op := range ops {
		if op["op"] == "add" && op["path"] == "/slots/1" {
			added = true
		}
	}
	if !added {
		t.Errorf("patch %s does not add /slots/1", ev.data)
	}

	// overflow the subscriber, then expect a full frame
	for i := 0; i < cap(sub.ch)+1; i++ {
		s.publish(frameWith(uint64(10+i), "x", strings.Repeat("y", i)))
	}
	if !sub.stale {
		t.Fatal("subscriber should be stale after overflowing")
	}
	for len(sub.ch) > 0 {
		<-sub.ch
	}
	s.publish(frameWith(100, "z"))
	if ev := <-sub.ch; ev.name != "frame" || !strings.Contains(string(ev.data), `"seq":100`) {
		t.Errorf("resync event = %s %s", ev.name, ev.data)
	}

	s.unsubscribe(sub)
	if s.Subscribers() != 0 {
		t.Errorf("Subscribers() = %d", s.Subscribers())
	}
}

func TestRun_ServesLatestFrame(t *testing.T) {
	fake := newFake()
	s := New(fake, "", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	fake.frames <- frameWith(7, "hello")
	close(fake.frames)
	if err := <-done; err != nil {
		t.Fatalf("Run() = %v", err)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/frame", nil))
	var f preview.Frame
	if err := json.Unmarshal(rec.Body.Bytes(), &f); err != nil {
		t.Fatalf("frame is not JSON: %v", err)
	}
	if f.Seq != 7 || len(f.Slots) != 1 || f.Slots[0].Fragment != "<p>hello</p>" {
		t.Errorf("frame = %+v", f)
	}
}

func TestEvents_Stream(t *testing.T) {
	fake := newFake()
	s := New(fake, "", nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	expect := func(prefix string) string {
		t.Helper()
		timeout := time.After(5 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatalf("stream ended before %q", prefix)
				}
				if strings.HasPrefix(line, prefix) {
					return line
				}
			case <-timeout:
				t.Fatalf("timed out waiting for %q", prefix)
			}
		}
	}

	expect("event: frame")
	expect("data: {}")

	fake.frames <- frameWith(1, "streamed")
	expect("event: patch")
	if data := expect("data: "); !strings.Contains(data, "streamed") {
		t.Errorf("patch data = %q", data)
	}
}
