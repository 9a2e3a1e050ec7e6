package cmd

import (
	"log/slog"
	"os"

	"github.com/samsaffron/mdview/internal/blocks"
	"github.com/samsaffron/mdview/internal/config"
	"github.com/samsaffron/mdview/internal/input"
	"github.com/samsaffron/mdview/internal/markup"
	"github.com/samsaffron/mdview/internal/preview"
	"golang.org/x/term"
)

// readDocument reads a markdown file spec ("doc.md", "doc.md:10-40"), the
// clipboard, or stdin for "-" and no argument.
func readDocument(args []string) (text, name string, err error) {
	var arg string
	if len(args) > 0 {
		arg = args[0]
	}
	doc, err := input.Read(arg, os.Stdin)
	if err != nil {
		return "", "", err
	}
	return doc.Text, doc.Name, nil
}

// terminalSize returns the size of stdout, 80x24 when it is not a terminal.
func terminalSize() (int, int) {
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w, h
	}
	return 80, 24
}

// htmlOptions configures a preview that renders HTML fragments, with math and
// diagram containers filled on the following frame.
func htmlOptions(cfg *config.Config, mode string, logger *slog.Logger) (preview.Options, *markup.HTML, error) {
	opts, err := baseOptions(cfg, mode)
	if err != nil {
		return opts, nil, err
	}
	h := markup.NewHTML(cfg.HTML.HighlightStyle)
	opts.Converter = h.Convert
	opts.Post = markup.NewSpecials(logger)
	return opts, h, nil
}

// termOptions configures a preview that renders ANSI text wrapped at width.
// Heights are terminal rows.
func termOptions(cfg *config.Config, mode, style string, width int) (preview.Options, error) {
	opts, err := baseOptions(cfg, mode)
	if err != nil {
		return opts, err
	}
	if style == "" {
		style = cfg.Terminal.Style
	}
	t, err := markup.NewTerminal(style)
	if err != nil {
		return opts, err
	}
	opts.Converter = t.Converter(width)
	opts.Estimate = func(b blocks.Block) float64 {
		return float64(blocks.EstimateRows(b, width))
	}
	// rows, not pixels: one screen of margin is plenty
	if opts.Margin > 0 {
		_, h := terminalSize()
		opts.Margin = float64(h)
	}
	return opts, nil
}

func baseOptions(cfg *config.Config, mode string) (preview.Options, error) {
	opts := cfg.PreviewOptions()
	if mode != "" {
		m, err := preview.ParseMode(mode)
		if err != nil {
			return opts, err
		}
		opts.Mode = m
	}
	return opts, nil
}
