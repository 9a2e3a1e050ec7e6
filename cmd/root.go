package cmd

import (
	"io"
	"log/slog"
	"os"

	"github.com/samsaffron/mdview/internal/config"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "mdview",
	Short: "Preview large markdown documents as you edit them",
	Long: `mdview renders markdown incrementally: the document is split into blocks,
only changed blocks are rendered again and blocks far from the viewport wait
until they scroll into view.

Examples:
  mdview render README.md               # HTML to stdout
  mdview render README.md -f term       # styled terminal output
  mdview view notes.md                  # live terminal preview
  mdview serve 'docs/**/*.md'           # live browser preview
  mdview blocks README.md -o yaml       # show the block segmentation
  mdview diff old.md new.md --patch     # block-level diff

  mdview config                         # view configuration
  mdview config completion zsh          # shell completions`,
	Version:           Version,
	SilenceUsage:      true,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(cmd.ErrOrStderr(), debugLog)
	},
}

var (
	debugLog   bool
	configFile string
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugLog, "debug", false, "Emit debug logs to stderr")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default $XDG_CONFIG_HOME/mdview/config.yaml)")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogging installs the default slog logger.
func setupLogging(w io.Writer, debug bool) {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// loadConfig reads --config when given, the default locations otherwise.
func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadFile(configFile)
	}
	return config.Load()
}
