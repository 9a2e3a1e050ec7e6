package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

// AddFormatFlag adds the --format/-f flag with completion
func AddFormatFlag(cmd *cobra.Command, dest *string, defaultValue string, formats []string) {
	cmd.Flags().StringVarP(dest, "format", "f", defaultValue, "Output format ("+strings.Join(formats, ", ")+")")
	if err := cmd.RegisterFlagCompletionFunc("format", fixedCompletion(formats)); err != nil {
		panic("failed to register format completion: " + err.Error())
	}
}

// AddOutputFlag adds the --output/-o flag for structured output
func AddOutputFlag(cmd *cobra.Command, dest *string) {
	cmd.Flags().StringVarP(dest, "output", "o", "json", "Output encoding (json, yaml)")
	if err := cmd.RegisterFlagCompletionFunc("output", fixedCompletion([]string{"json", "yaml"})); err != nil {
		panic("failed to register output completion: " + err.Error())
	}
}

// AddWidthFlag adds the --width/-w flag
func AddWidthFlag(cmd *cobra.Command, dest *int) {
	cmd.Flags().IntVarP(dest, "width", "w", 0, "Wrap terminal output at this width (default: terminal width)")
}

// AddStyleFlag adds the --style flag with completion
func AddStyleFlag(cmd *cobra.Command, dest *string) {
	cmd.Flags().StringVar(dest, "style", "", "Terminal style (auto, dark, light, notty; overrides config)")
	if err := cmd.RegisterFlagCompletionFunc("style", StyleFlagCompletion); err != nil {
		panic("failed to register style completion: " + err.Error())
	}
}

// AddModeFlag adds the --mode flag with completion
func AddModeFlag(cmd *cobra.Command, dest *string) {
	cmd.Flags().StringVar(dest, "mode", "", "Preview mode (virtual, full; overrides config)")
	if err := cmd.RegisterFlagCompletionFunc("mode", ModeFlagCompletion); err != nil {
		panic("failed to register mode completion: " + err.Error())
	}
}

// AddWatchFlag adds the --no-watch flag
func AddWatchFlag(cmd *cobra.Command, dest *bool) {
	cmd.Flags().BoolVar(dest, "no-watch", false, "Do not reload when the file changes")
}
