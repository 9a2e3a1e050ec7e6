// Package serve exposes a Preview over HTTP: a shell page, the current frame
// as JSON, and a server-sent event stream of JSON Patch deltas between frames.
package serve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/wI2L/jsondiff"

	"github.com/samsaffron/mdview/internal/preview"
	"github.com/samsaffron/mdview/internal/serveui"
)

// maxDocumentBytes bounds PUT /api/document bodies.
const maxDocumentBytes = 10 << 20

// Previewer is the part of preview.Preview the server drives.
type Previewer interface {
	SetText(text string) error
	SetViewport(top, height float64) error
	Measure(index int, height float64) error
	Frames() <-chan preview.Frame
}

// Server publishes frames of one preview to any number of browsers.
type Server struct {
	preview Previewer
	css     string
	logger  *slog.Logger
	router  *mux.Router

	token       string
	corsOrigins []string

	mu     sync.Mutex
	latest []byte // JSON of the newest frame
	seq    uint64
	subs   map[*subscriber]struct{}
}

type subscriber struct {
	ch    chan event
	stale bool // missed a patch; next event must be a full frame
}

type event struct {
	name string
	data []byte
}

// New creates a server for p. css is served as the page stylesheet next to
// the built-in one.
func New(p Previewer, css string, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		preview: p,
		css:     css,
		logger:  logger,
		latest:  []byte("{}"),
		subs:    make(map[*subscriber]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/frame", s.handleFrame).Methods(http.MethodGet)
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	api.HandleFunc("/style.css", s.handleCSS).Methods(http.MethodGet)
	api.HandleFunc("/document", s.auth(s.handleDocument)).Methods(http.MethodPut)
	api.HandleFunc("/viewport", s.handleViewport).Methods(http.MethodPost)
	api.HandleFunc("/measure", s.handleMeasure).Methods(http.MethodPost)
	if len(s.corsOrigins) > 0 {
		r.Use(s.cors())
		// preflight requests need a matching route for the middleware to run
		api.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	}
	s.router = r
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run consumes frames until the preview stops or ctx is done, fanning each
// one out to subscribers as a patch against the previous frame.
func (s *Server) Run(ctx context.Context) error {
	frames := s.preview.Frames()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			if err := s.publish(f); err != nil {
				s.logger.Warn("failed to publish frame", "seq", f.Seq, "error", err)
			}
		}
	}
}

func (s *Server) publish(f preview.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	patch, err := jsondiff.CompareJSON(s.latest, data)
	if err != nil {
		return fmt.Errorf("diff frames: %w", err)
	}
	s.latest = data
	s.seq = f.Seq
	if len(patch) == 0 {
		return nil
	}
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}

	for sub := range s.subs {
		ev := event{name: "patch", data: patchJSON}
		if sub.stale {
			ev = event{name: "frame", data: data}
		}
		select {
		case sub.ch <- ev:
			sub.stale = false
		default:
			sub.stale = true
		}
	}
	return nil
}

func (s *Server) subscribe() (*subscriber, []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := &subscriber{ch: make(chan event, 16)}
	s.subs[sub] = struct{}{}
	return sub, s.latest
}

func (s *Server) unsubscribe(sub *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, sub)
}

// Subscribers returns the number of connected event streams.
func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(serveui.IndexHTML())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleCSS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	_, _ = io.WriteString(w, s.css)
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	data := s.latest
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	sub, initial := s.subscribe()
	defer s.unsubscribe(sub)

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := writeSSEEvent(w, "frame", initial); err != nil {
		return
	}
	flusher.Flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-sub.ch:
			if err := writeSSEEvent(w, ev.name, ev.data); err != nil {
				s.logger.Debug("event stream closed", "error", err)
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	if len(body) > maxDocumentBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "document too large")
		return
	}
	if err := s.preview.SetText(string(body)); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type viewportRequest struct {
	Top    float64 `json:"top"`
	Height float64 `json:"height"`
}

func (s *Server) handleViewport(w http.ResponseWriter, r *http.Request) {
	var req viewportRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Height < 0 {
		writeError(w, http.StatusBadRequest, "height must not be negative")
		return
	}
	if err := s.preview.SetViewport(req.Top, req.Height); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type measureRequest struct {
	Index  int     `json:"index"`
	Height float64 `json:"height"`
}

func (s *Server) handleMeasure(w http.ResponseWriter, r *http.Request) {
	var req measureRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.preview.Measure(req.Index, req.Height); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListenAndServe serves on addr until ctx is done, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("serving preview", "addr", addr)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("start server: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func writeSSEEvent(w io.Writer, name string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", name); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func decodeJSONBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return nil
}
