package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/samsaffron/mdview/internal/input"
	"github.com/samsaffron/mdview/internal/preview"
	"github.com/samsaffron/mdview/internal/watch"
)

// liveDocument is the document a long-running command previews, plus the
// watcher that reloads it. watcher is nil for stdin or --no-watch.
type liveDocument struct {
	name    string
	text    string
	watcher *watch.Watcher
}

// openLive resolves a file or doublestar pattern. For a pattern the first
// matching file is loaded; later writes to any match replace the document.
// Stdin, the clipboard and line ranges are read once.
func openLive(args []string, noWatch bool, logger *slog.Logger) (*liveDocument, error) {
	if len(args) == 0 || input.IsStatic(args[0]) {
		text, name, err := readDocument(args)
		if err != nil {
			return nil, err
		}
		return &liveDocument{name: name, text: text}, nil
	}

	target := args[0]
	w, err := watch.New(target, logger)
	if err != nil {
		return nil, err
	}
	files, err := w.Files()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no markdown files match %s", target)
	}
	data, err := os.ReadFile(files[0])
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", files[0], err)
	}

	doc := &liveDocument{name: files[0], text: string(data), watcher: w}
	if noWatch {
		doc.watcher = nil
	}
	return doc, nil
}

// run feeds the initial text and every watched change into p until ctx ends.
func (d *liveDocument) run(ctx context.Context, p *preview.Preview, logger *slog.Logger) error {
	if err := p.SetText(d.text); err != nil {
		return err
	}
	if d.watcher == nil {
		<-ctx.Done()
		return nil
	}

	go func() {
		if err := d.watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("watcher stopped", "error", err)
		}
	}()
	for e := range d.watcher.Events() {
		logger.Debug("reloading document", "path", e.Path, "chars", len(e.Text))
		if err := p.SetText(e.Text); err != nil {
			if errors.Is(err, preview.ErrClosed) {
				return nil
			}
			return err
		}
	}
	return nil
}
