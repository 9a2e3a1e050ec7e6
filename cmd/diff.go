package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/samsaffron/mdview/internal/blockdiff"
	"github.com/samsaffron/mdview/internal/blocks"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

var (
	diffPatch  bool
	diffFormat string
)

var diffCmd = &cobra.Command{
	Use:   "diff <old> <new>",
	Short: "Show the block-level changes between two documents",
	Long: `Segment both documents and print the edit script the previewer would
apply: moved, removed, updated and added blocks.

Examples:
  mdview diff draft.md final.md
  mdview diff draft.md final.md --patch
  mdview diff draft.md final.md -f json`,
	Args:              cobra.ExactArgs(2),
	ValidArgsFunction: MarkdownArgCompletion,
	RunE:              runDiff,
}

func init() {
	AddFormatFlag(diffCmd, &diffFormat, "text", []string{"text", "json", "yaml"})
	diffCmd.Flags().BoolVarP(&diffPatch, "patch", "p", false, "Show a unified diff for updated blocks")
	rootCmd.AddCommand(diffCmd)
}

// diffReport is the structured output of the diff command.
type diffReport struct {
	OldBlocks    int                `json:"oldBlocks" yaml:"old_blocks"`
	NewBlocks    int                `json:"newBlocks" yaml:"new_blocks"`
	Stats        blockdiff.Stats    `json:"stats" yaml:"stats"`
	FullRerender bool               `json:"fullRerender" yaml:"full_rerender"`
	Changes      []blockdiff.Change `json:"changes" yaml:"changes"`
}

func runDiff(cmd *cobra.Command, args []string) error {
	oldText, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	newText, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[1], err)
	}

	prev := blocks.Segment(string(oldText))
	next := blocks.Segment(string(newText))
	changes := blockdiff.Diff(prev, next)
	report := diffReport{
		OldBlocks:    len(prev),
		NewBlocks:    len(next),
		Stats:        blockdiff.Summarize(changes),
		FullRerender: blockdiff.ShouldFullRerender(changes, len(next)),
		Changes:      changes,
	}
	if report.Changes == nil {
		report.Changes = []blockdiff.Change{}
	}

	out := cmd.OutOrStdout()
	switch diffFormat {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(report)
	case "text":
		color := out == os.Stdout && term.IsTerminal(int(os.Stdout.Fd()))
		printDiffText(out, report, diffPatch, color)
		return nil
	}
	return fmt.Errorf("unknown format %q (want text, json or yaml)", diffFormat)
}

func printDiffText(w io.Writer, r diffReport, patch, color bool) {
	add := lipgloss.NewStyle().Foreground(lipgloss.Color("#b8bb26"))
	del := lipgloss.NewStyle().Foreground(lipgloss.Color("#fb4934"))
	hunk := lipgloss.NewStyle().Foreground(lipgloss.Color("#83a598"))
	paint := func(s lipgloss.Style, text string) string {
		if !color {
			return text
		}
		return s.Render(text)
	}

	for _, c := range r.Changes {
		b := c.Block
		if b == nil {
			b = c.Old
		}
		fmt.Fprintf(w, "%-6s #%-4d %-10s %s\n", c.Kind, c.Index+1, b.Type, firstLine(b.Content, 60))
		if !patch {
			continue
		}
		for _, line := range strings.Split(strings.TrimRight(c.Patch(), "\n"), "\n") {
			switch {
			case line == "":
				continue
			case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
				fmt.Fprintln(w, "    "+line)
			case strings.HasPrefix(line, "@@"):
				fmt.Fprintln(w, "    "+paint(hunk, line))
			case strings.HasPrefix(line, "+"):
				fmt.Fprintln(w, "    "+paint(add, line))
			case strings.HasPrefix(line, "-"):
				fmt.Fprintln(w, "    "+paint(del, line))
			default:
				fmt.Fprintln(w, "    "+line)
			}
		}
	}

	s := r.Stats
	fmt.Fprintf(w, "%d -> %d blocks: %d added, %d removed, %d updated, %d moved",
		r.OldBlocks, r.NewBlocks, s.Added, s.Removed, s.Updated, s.Moved)
	if r.FullRerender {
		fmt.Fprint(w, " (full re-render)")
	}
	fmt.Fprintln(w)
}

// firstLine shortens content to its first line, at most n runes.
func firstLine(content string, n int) string {
	line, _, more := strings.Cut(content, "\n")
	runes := []rune(line)
	if len(runes) > n {
		return string(runes[:n-1]) + "…"
	}
	if more {
		return line + " …"
	}
	return line
}
