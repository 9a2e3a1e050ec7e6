package cmd

import (
	"strings"

	"github.com/samsaffron/mdview/internal/markup"
	"github.com/spf13/cobra"
)

// fixedCompletion completes a flag from a fixed list of values.
func fixedCompletion(values []string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var completions []string
		for _, v := range values {
			if strings.HasPrefix(v, toComplete) {
				completions = append(completions, v)
			}
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	}
}

// StyleFlagCompletion handles --style flag completion
func StyleFlagCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return fixedCompletion([]string{markup.StyleAuto, markup.StyleDark, markup.StyleLight, markup.StyleNoTTY})(cmd, args, toComplete)
}

// ModeFlagCompletion handles --mode flag completion
func ModeFlagCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return fixedCompletion([]string{"virtual", "full"})(cmd, args, toComplete)
}

// MarkdownArgCompletion completes markdown files for positional arguments.
func MarkdownArgCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{"md", "markdown"}, cobra.ShellCompDirectiveFilterFileExt
}
