// Package watch follows markdown files on disk and reports their contents
// whenever they change. A target is either a single file or a doublestar
// pattern such as "docs/**/*.md".
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// Event carries the new contents of a changed file.
type Event struct {
	Path string
	Text string
}

// Watcher reports changes to the files selected by its target.
type Watcher struct {
	base    string // directory the pattern is relative to
	pattern string // slash-separated, relative to base
	logger  *slog.Logger

	fs     *fsnotify.Watcher
	events chan Event
}

// New watches target. A target without glob metacharacters names one file.
func New(target string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	base, pattern := split(target)

	info, err := os.Stat(base)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", target, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch %s: %s is not a directory", target, base)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		base:    base,
		pattern: pattern,
		logger:  logger,
		fs:      fw,
		events:  make(chan Event, 1),
	}
	if err := w.addDirs(base); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// split turns a target into a base directory and a pattern relative to it.
func split(target string) (string, string) {
	slashed := filepath.ToSlash(target)
	if !hasMeta(slashed) {
		return filepath.Dir(target), doublestar.EscapeMeta(filepath.Base(slashed))
	}
	base, pattern := doublestar.SplitPattern(slashed)
	return filepath.FromSlash(base), pattern
}

func hasMeta(s string) bool {
	for _, c := range s {
		switch c {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}

// addDirs watches dir and, when the pattern can cross directories, every
// directory below it.
func (w *Watcher) addDirs(dir string) error {
	if !w.recursive() {
		return w.fs.Add(dir)
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fs.Add(path)
		}
		return nil
	})
}

func (w *Watcher) recursive() bool {
	for i := 0; i < len(w.pattern); i++ {
		if w.pattern[i] == '/' {
			return true
		}
	}
	return false
}

// Matches reports whether path is selected by the target.
func (w *Watcher) Matches(path string) bool {
	rel, err := filepath.Rel(w.base, path)
	if err != nil {
		return false
	}
	ok, err := doublestar.Match(w.pattern, filepath.ToSlash(rel))
	return err == nil && ok
}

// Files lists the existing files selected by the target, sorted.
func (w *Watcher) Files() ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(w.base), w.pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("match %s: %w", w.pattern, err)
	}
	sort.Strings(matches)
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = filepath.Join(w.base, filepath.FromSlash(m))
	}
	return out, nil
}

// Events delivers file contents after each write. Only the newest undelivered
// event is kept.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Run forwards file system notifications until ctx is done, then closes the
// watcher and the Events channel.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)
	defer w.fs.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(event)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	if event.Has(fsnotify.Create) && w.recursive() {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addDirs(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "dir", event.Name, "error", err)
			}
			return
		}
	}

	if !w.Matches(event.Name) {
		return
	}

	data, err := os.ReadFile(event.Name)
	if err != nil {
		w.logger.Warn("failed to read changed file", "path", event.Name, "error", err)
		return
	}
	w.logger.Debug("file changed", "path", event.Name, "op", event.Op.String())
	w.publish(Event{Path: event.Name, Text: string(data)})
}

func (w *Watcher) publish(e Event) {
	select {
	case w.events <- e:
		return
	default:
	}
	select {
	case <-w.events:
	default:
	}
	w.events <- e
}
