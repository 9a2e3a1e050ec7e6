package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/google/renameio"
	"github.com/samsaffron/mdview/internal/config"
	"github.com/samsaffron/mdview/internal/markup"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage mdview configuration",
	Long: `View or edit your mdview configuration.

Examples:
  mdview config                       # show effective config
  mdview config edit                  # edit in $EDITOR
  mdview config init                  # write defaults
  mdview config set preview.mode full
  mdview config set debounce.delays_ms 50,100,200,400
  mdview config completion zsh        # generate shell completions`,
	RunE: configShow, // Default to show
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file in $EDITOR",
	RunE:  configEdit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print configuration file path",
	RunE:  configPath,
}

var configInitCmd = &cobra.Command{
	Use:     "init",
	Aliases: []string{"reset"},
	Short:   "Write the default configuration",
	Long: `Write the default configuration file. An existing file is only replaced with --force.
With --interactive the common settings are chosen in a form first.`,
	RunE:    configInit,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value while preserving comments. Comma-separated
values set lists.

Examples:
  mdview config set preview.mode full
  mdview config set preview.use_worker false
  mdview config set debounce.thresholds 5000,20000,50000`,
	Args:              cobra.ExactArgs(2),
	RunE:              configSet,
	ValidArgsFunction: configKeyCompletion,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get an effective configuration value",
	Long: `Get a configuration value, defaults included.

Examples:
  mdview config get preview.mode
  mdview config get debounce`,
	Args:              cobra.ExactArgs(1),
	RunE:              configGet,
	ValidArgsFunction: configKeyCompletion,
}

var configCompletionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script and print setup instructions.

Examples:
  mdview config completion bash
  mdview config completion zsh --install`,
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE:      configCompletion,
}

var (
	configForce        bool
	configInteractive  bool
	installCompletions bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configCompletionCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config file")
	configInitCmd.Flags().BoolVarP(&configInteractive, "interactive", "i", false, "Choose settings in a form")
	configCompletionCmd.Flags().BoolVar(&installCompletions, "install", false, "Install completions to standard location")
}

// targetConfigPath is --config when given, the default location otherwise.
func targetConfigPath() (string, error) {
	if configFile != "" {
		return configFile, nil
	}
	return config.GetConfigPath()
}

func configShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if cfg.File != "" {
		fmt.Fprintf(out, "# %s\n", cfg.File)
	} else {
		path, _ := targetConfigPath()
		fmt.Fprintf(out, "# defaults (no file at %s)\n", path)
	}
	data, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	_, err = out.Write(data)
	return err
}

func configPath(cmd *cobra.Command, args []string) error {
	path, err := targetConfigPath()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func configInit(cmd *cobra.Command, args []string) error {
	path, err := targetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	cfg := config.Default()
	if configInteractive {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("--interactive needs a terminal")
		}
		if err := initForm(cfg).Run(); err != nil {
			return fmt.Errorf("config form: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if err := config.SaveFile(path, cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote config: %s\n", path)
	return nil
}

// initForm edits the settings people change most, in place on cfg.
func initForm(cfg *config.Config) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Preview mode").
				Description("virtual renders blocks near the viewport, full renders everything").
				Options(huh.NewOptions("virtual", "full")...).
				Value(&cfg.Preview.Mode),
			huh.NewSelect[string]().
				Title("Terminal style").
				Options(huh.NewOptions(markup.StyleAuto, markup.StyleDark, markup.StyleLight, markup.StyleNoTTY)...).
				Value(&cfg.Terminal.Style),
			huh.NewSelect[string]().
				Title("Code highlight style (HTML)").
				Options(huh.NewOptions(markup.DefaultHighlightStyle, "monokai", "dracula", "solarized-light", "nord")...).
				Value(&cfg.HTML.HighlightStyle),
			huh.NewInput().
				Title("Serve address").
				Value(&cfg.Serve.Addr).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("address is required")
					}
					return nil
				}),
			huh.NewConfirm().
				Title("Parse large documents on a worker?").
				Value(&cfg.Preview.UseWorker),
		),
	).WithShowHelp(false)
}

func writeDefaultConfig(path string) error {
	return config.SaveFile(path, config.Default())
}

func configEdit(cmd *cobra.Command, args []string) error {
	path, err := targetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	// Create default config if it doesn't exist
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeDefaultConfig(path); err != nil {
			return err
		}
	}

	// Get editor from environment
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		editor = "vi"
	}

	editorCmd := exec.Command(editor, path)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr
	if err := editorCmd.Run(); err != nil {
		return err
	}
	if _, err := config.LoadFile(path); err != nil {
		return fmt.Errorf("config saved but invalid: %w", err)
	}
	return nil
}

// configSet sets a configuration value while preserving comments. The file is
// left untouched when the result does not validate.
func configSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	path, err := targetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Read existing file or create empty document
	var root yaml.Node
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		root = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode}},
		}
	case err != nil:
		return fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &root); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
		if root.Kind == 0 {
			root = yaml.Node{
				Kind:    yaml.DocumentNode,
				Content: []*yaml.Node{{Kind: yaml.MappingNode}},
			}
		}
	}

	if err := setYAMLValue(&root, strings.Split(key, "."), value); err != nil {
		return fmt.Errorf("failed to set value: %w", err)
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&root); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	encoder.Close()

	if err := validateConfigBytes(buf.Bytes()); err != nil {
		return err
	}
	if err := renameio.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, value)
	return nil
}

// validateConfigBytes loads data through the regular config path.
func validateConfigBytes(data []byte) error {
	tmp, err := os.CreateTemp("", "mdview-config-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if _, err := config.LoadFile(tmp.Name()); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// setYAMLValue navigates/creates the path in a yaml.Node tree and sets the
// value. A value containing commas becomes a sequence.
func setYAMLValue(root *yaml.Node, path []string, value string) error {
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return fmt.Errorf("invalid document structure")
	}

	current := root.Content[0]
	if current.Kind != yaml.MappingNode {
		return fmt.Errorf("root is not a mapping")
	}

	for i, part := range path {
		isLast := i == len(path)-1

		var next *yaml.Node
		for j := 0; j+1 < len(current.Content); j += 2 {
			if current.Content[j].Value == part {
				next = current.Content[j+1]
				break
			}
		}

		if next == nil {
			next = &yaml.Node{Kind: yaml.MappingNode}
			current.Content = append(current.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: part}, next)
		}

		if isLast {
			*next = valueNode(value, next)
			return nil
		}
		if next.Kind != yaml.MappingNode {
			// Convert to mapping if needed
			next.Kind = yaml.MappingNode
			next.Content = nil
			next.Value = ""
			next.Tag = ""
		}
		current = next
	}
	return nil
}

// valueNode builds the node for value, keeping the comments of old.
func valueNode(value string, old *yaml.Node) yaml.Node {
	n := yaml.Node{
		Kind:        yaml.ScalarNode,
		Value:       value,
		HeadComment: old.HeadComment,
		LineComment: old.LineComment,
		FootComment: old.FootComment,
	}
	if strings.Contains(value, ",") {
		n.Kind = yaml.SequenceNode
		n.Value = ""
		n.Style = yaml.FlowStyle
		for _, item := range strings.Split(value, ",") {
			n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: strings.TrimSpace(item)})
		}
	}
	return n
}

// configGet prints an effective value: the file merged with defaults.
func configGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	data, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	value, err := getYAMLValue(&root, strings.Split(args[0], "."))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

// getYAMLValue navigates the yaml.Node tree and returns the value at path.
// Non-scalar values are returned as YAML.
func getYAMLValue(root *yaml.Node, path []string) (string, error) {
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return "", fmt.Errorf("invalid document structure")
	}

	current := root.Content[0]
	for _, part := range path {
		if current.Kind != yaml.MappingNode {
			return "", fmt.Errorf("path not found: %s is not a mapping", part)
		}
		found := false
		for j := 0; j+1 < len(current.Content); j += 2 {
			if current.Content[j].Value == part {
				current = current.Content[j+1]
				found = true
				break
			}
		}
		if !found {
			return "", fmt.Errorf("key not found: %s", strings.Join(path, "."))
		}
	}

	if current.Kind == yaml.ScalarNode {
		return current.Value, nil
	}
	out, err := yaml.Marshal(current)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(out), "\n"), nil
}

// configKeyCompletion completes dotted config keys.
func configKeyCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	data, err := config.Default().Marshal()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil || len(root.Content) == 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var keys []string
	var walk func(n *yaml.Node, prefix string)
	walk = func(n *yaml.Node, prefix string) {
		for j := 0; j+1 < len(n.Content); j += 2 {
			key := prefix + n.Content[j].Value
			if n.Content[j+1].Kind == yaml.MappingNode {
				walk(n.Content[j+1], key+".")
				continue
			}
			if strings.HasPrefix(key, toComplete) {
				keys = append(keys, key)
			}
		}
	}
	walk(root.Content[0], "")
	return keys, cobra.ShellCompDirectiveNoFileComp
}

func configCompletion(cmd *cobra.Command, args []string) error {
	shell := args[0]

	if installCompletions {
		return installShellCompletion(shell)
	}

	// Just output to stdout
	out := cmd.OutOrStdout()
	switch shell {
	case "bash":
		return rootCmd.GenBashCompletion(out)
	case "zsh":
		return rootCmd.GenZshCompletion(out)
	case "fish":
		return rootCmd.GenFishCompletion(out, true)
	case "powershell":
		return rootCmd.GenPowerShellCompletionWithDesc(out)
	}
	return nil
}

func installShellCompletion(shell string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	var path string
	var buf bytes.Buffer

	switch shell {
	case "bash":
		path = filepath.Join(home, ".bash_completion.d", "mdview")
		err = rootCmd.GenBashCompletion(&buf)
	case "zsh":
		// Use ~/.local/share/zsh/site-functions which is the XDG standard
		path = filepath.Join(home, ".local", "share", "zsh", "site-functions", "_mdview")
		err = rootCmd.GenZshCompletion(&buf)
	case "fish":
		path = filepath.Join(home, ".config", "fish", "completions", "mdview.fish")
		err = rootCmd.GenFishCompletion(&buf, true)
	case "powershell":
		path = filepath.Join(home, ".config", "powershell", "completions", "mdview.ps1")
		err = rootCmd.GenPowerShellCompletionWithDesc(&buf)
	default:
		return fmt.Errorf("unknown shell: %s", shell)
	}
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write completion file: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Installed completions to %s\n", path)

	// Print shell-specific instructions
	switch shell {
	case "bash":
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Add to ~/.bashrc:")
		fmt.Fprintf(os.Stderr, "  source %s\n", path)
	case "zsh":
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Ensure ~/.zshrc has (before compinit):")
		fmt.Fprintf(os.Stderr, "  fpath+=(%s)\n", dir)
		fmt.Fprintln(os.Stderr, "  autoload -U compinit && compinit")
	case "fish":
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Completions will be loaded automatically.")
	case "powershell":
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Add to your PowerShell profile:")
		fmt.Fprintf(os.Stderr, "  . %s\n", path)
	}
	return nil
}
