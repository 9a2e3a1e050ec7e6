package cmd

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/samsaffron/mdview/internal/clipboard"
	"github.com/samsaffron/mdview/internal/preview"
	"github.com/spf13/cobra"
)

var (
	renderFormat     string
	renderWidth      int
	renderStyle      string
	renderStandalone bool
	renderStats      bool
	renderCopy       bool
)

var renderCmd = &cobra.Command{
	Use:   "render [file]",
	Short: "Render a markdown document once",
	Long: `Render a whole markdown document to HTML or styled terminal text.
Reads stdin when no file (or "-") is given, and the system clipboard for
"clipboard". A line range such as README.md:10-40 renders just those lines.

Examples:
  mdview render README.md
  mdview render README.md:10-40 -f term
  mdview render clipboard --copy > /dev/null
  mdview render README.md --standalone > readme.html
  cat notes.md | mdview render -f term
  mdview render big.md --stats > /dev/null`,
	Args:              cobra.MaximumNArgs(1),
	ValidArgsFunction: MarkdownArgCompletion,
	RunE:              runRender,
}

func init() {
	AddFormatFlag(renderCmd, &renderFormat, "html", []string{"html", "term"})
	AddWidthFlag(renderCmd, &renderWidth)
	AddStyleFlag(renderCmd, &renderStyle)
	renderCmd.Flags().BoolVar(&renderStandalone, "standalone", false, "Wrap HTML output in a complete page with styles")
	renderCmd.Flags().BoolVar(&renderStats, "stats", false, "Print block, cache and timing statistics to stderr")
	renderCmd.Flags().BoolVar(&renderCopy, "copy", false, "Also copy the rendered output to the clipboard")
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	text, name, err := readDocument(args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var copied bytes.Buffer
	if renderCopy {
		out = io.MultiWriter(out, &copied)
	}
	start := time.Now()
	var frame preview.Frame

	switch renderFormat {
	case "html":
		opts, h, err := htmlOptions(cfg, "", slog.Default())
		if err != nil {
			return err
		}
		frame = preview.Render(text, opts)
		body := strings.Join(frame.Fragments(), "\n")
		if renderStandalone {
			writeStandalone(out, name, h.CSS(), body)
		} else {
			fmt.Fprintln(out, body)
		}

	case "term":
		width := renderWidth
		if width <= 0 {
			width, _ = terminalSize()
		}
		opts, err := termOptions(cfg, "", renderStyle, width)
		if err != nil {
			return err
		}
		frame = preview.Render(text, opts)
		for _, fragment := range frame.Fragments() {
			fmt.Fprintln(out, fragment)
			fmt.Fprintln(out)
		}

	default:
		return fmt.Errorf("unknown format %q (want html or term)", renderFormat)
	}

	if renderStats {
		printFrameStats(cmd.ErrOrStderr(), frame, time.Since(start))
	}
	if renderCopy {
		if err := clipboard.CopyText(copied.String()); err != nil {
			return fmt.Errorf("copy to clipboard: %w", err)
		}
	}
	return nil
}

func printFrameStats(w io.Writer, f preview.Frame, total time.Duration) {
	fmt.Fprintf(w, "%d blocks, %s chars (%s)\n",
		f.Total, humanize.Comma(int64(f.Chars)), humanize.Bytes(uint64(f.Chars)))
	fmt.Fprintf(w, "parse %s via %s, render %s, total %s\n",
		f.ParseTime.Round(time.Microsecond), f.ParsePath, f.RenderTime.Round(time.Microsecond), total.Round(time.Microsecond))
	fmt.Fprintf(w, "cache %d/%d entries, %d hits, %d misses, %d evictions\n",
		f.Cache.Size, f.Cache.Capacity, f.Cache.Hits, f.Cache.Misses, f.Cache.Evictions)
}

func writeStandalone(w io.Writer, title, css, body string) {
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { max-width: 860px; margin: 2rem auto; padding: 0 1rem; font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; line-height: 1.5; }
pre.hljs { padding: 1rem; overflow: auto; border-radius: 6px; background: #f6f8fa; }
.md-error, .math-error, .mermaid-error { color: #cf222e; }
%s
</style>
</head>
<body>
%s
</body>
</html>
`, html.EscapeString(title), css, body)
}
