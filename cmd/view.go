package cmd

import (
	"context"
	"errors"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/samsaffron/mdview/internal/preview"
	"github.com/samsaffron/mdview/internal/signal"
	"github.com/samsaffron/mdview/internal/tui/viewer"
	"github.com/spf13/cobra"
)

var (
	viewStyle   string
	viewMode    string
	viewNoWatch bool
)

var viewCmd = &cobra.Command{
	Use:   "view [file|pattern]",
	Short: "Live terminal preview of a markdown document",
	Long: `Open a scrollable terminal preview. Blocks are rendered as they scroll
into view and the document reloads whenever the file is written.

A pattern such as 'docs/**/*.md' previews the first match and follows writes
to any matching file.

Examples:
  mdview view README.md
  mdview view 'notes/**/*.md'
  mdview view big.md --mode full --style dark`,
	Args:              cobra.MaximumNArgs(1),
	ValidArgsFunction: MarkdownArgCompletion,
	RunE:              runView,
}

func init() {
	AddStyleFlag(viewCmd, &viewStyle)
	AddModeFlag(viewCmd, &viewMode)
	AddWatchFlag(viewCmd, &viewNoWatch)
	rootCmd.AddCommand(viewCmd)
}

func runView(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := slog.Default()

	doc, err := openLive(args, viewNoWatch, logger)
	if err != nil {
		return err
	}

	width, height := terminalSize()
	opts, err := termOptions(cfg, viewMode, viewStyle, width)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context())
	defer cancel()

	p := preview.New(opts, logger)
	defer p.Close()
	go func() {
		if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("preview stopped", "error", err)
		}
	}()
	go func() {
		if err := doc.run(ctx, p, logger); err != nil {
			logger.Warn("document feed stopped", "error", err)
		}
	}()

	model := viewer.New(p, doc.name, width, height, nil)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
