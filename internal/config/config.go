package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/samsaffron/mdview/internal/debounce"
	"github.com/samsaffron/mdview/internal/markup"
	"github.com/samsaffron/mdview/internal/parse"
	"github.com/samsaffron/mdview/internal/preview"
	"github.com/samsaffron/mdview/internal/render"
)

type Config struct {
	Preview  PreviewConfig  `mapstructure:"preview" yaml:"preview"`
	Debounce DebounceConfig `mapstructure:"debounce" yaml:"debounce"`
	HTML     HTMLConfig     `mapstructure:"html" yaml:"html"`
	Terminal TerminalConfig `mapstructure:"terminal" yaml:"terminal"`
	Serve    ServeConfig    `mapstructure:"serve" yaml:"serve"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-" yaml:"-"`
}

// PreviewConfig tunes the rendering pipeline
type PreviewConfig struct {
	UseWorker          bool    `mapstructure:"use_worker" yaml:"use_worker"`                     // parse large documents off the render goroutine
	SizeThresholdChars int     `mapstructure:"size_threshold_chars" yaml:"size_threshold_chars"` // worker cutoff
	CacheCapacity      int     `mapstructure:"cache_capacity" yaml:"cache_capacity"`             // rendered fragments kept
	VisibilityMargin   float64 `mapstructure:"visibility_margin" yaml:"visibility_margin"`       // render this far outside the viewport
	FontSize           float64 `mapstructure:"font_size" yaml:"font_size"`                       // base for height estimates
	Mode               string  `mapstructure:"mode" yaml:"mode"`                                 // "virtual" or "full"
}

// DebounceConfig maps document length to re-render delay.
// Delays has one entry more than Thresholds.
type DebounceConfig struct {
	Thresholds []int `mapstructure:"thresholds" yaml:"thresholds"`
	DelaysMS   []int `mapstructure:"delays_ms" yaml:"delays_ms"`
}

type HTMLConfig struct {
	HighlightStyle string `mapstructure:"highlight_style" yaml:"highlight_style"` // chroma style name
}

type TerminalConfig struct {
	Style string `mapstructure:"style" yaml:"style"` // auto, dark, light or notty
}

type ServeConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("preview.use_worker", true)
	v.SetDefault("preview.size_threshold_chars", parse.DefaultSizeThreshold)
	v.SetDefault("preview.cache_capacity", render.DefaultCacheCapacity)
	v.SetDefault("preview.visibility_margin", render.DefaultVisibilityMargin)
	v.SetDefault("preview.font_size", 16)
	v.SetDefault("preview.mode", "virtual")
	v.SetDefault("debounce.thresholds", []int{5000, 20000, 50000})
	v.SetDefault("debounce.delays_ms", []int{100, 200, 300, 500})
	v.SetDefault("html.highlight_style", markup.DefaultHighlightStyle)
	v.SetDefault("terminal.style", markup.StyleAuto)
	v.SetDefault("serve.addr", "127.0.0.1:6419")
}

// Load reads config.yaml from the config directory or the working directory.
// A missing file is not an error. MDVIEW_* environment variables override
// file values (MDVIEW_PREVIEW_MODE=full).
func Load() (*Config, error) {
	configPath, err := GetConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config dir: %w", err)
	}

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")

	// Read config file (optional - won't error if missing)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return unmarshal(v)
}

// LoadFile reads an explicit config file, which must exist.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("mdview")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg, err := unmarshal(newViper())
	if err != nil {
		// defaults always validate
		panic(err)
	}
	return cfg
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	if _, err := preview.ParseMode(c.Preview.Mode); err != nil {
		return fmt.Errorf("preview.mode: %w", err)
	}
	if c.Preview.SizeThresholdChars <= 0 {
		return fmt.Errorf("preview.size_threshold_chars must be positive, got %d", c.Preview.SizeThresholdChars)
	}
	if c.Preview.CacheCapacity <= 0 {
		return fmt.Errorf("preview.cache_capacity must be positive, got %d", c.Preview.CacheCapacity)
	}
	if c.Preview.VisibilityMargin < 0 {
		return fmt.Errorf("preview.visibility_margin must not be negative, got %v", c.Preview.VisibilityMargin)
	}
	if err := c.DebouncePolicy().Validate(); err != nil {
		return err
	}
	switch c.Terminal.Style {
	case markup.StyleAuto, markup.StyleDark, markup.StyleLight, markup.StyleNoTTY:
	default:
		return fmt.Errorf("terminal.style: unknown style %q", c.Terminal.Style)
	}
	return nil
}

// DebouncePolicy converts the debounce section.
func (c *Config) DebouncePolicy() debounce.Policy {
	p := debounce.Policy{Thresholds: append([]int(nil), c.Debounce.Thresholds...)}
	for _, ms := range c.Debounce.DelaysMS {
		p.Delays = append(p.Delays, time.Duration(ms)*time.Millisecond)
	}
	return p
}

// PreviewOptions converts the preview and debounce sections. Converter and
// post-processor are left for the caller, who knows the output format.
func (c *Config) PreviewOptions() preview.Options {
	mode, _ := preview.ParseMode(c.Preview.Mode)
	margin := c.Preview.VisibilityMargin
	if margin == 0 {
		margin = -1
	}
	return preview.Options{
		Mode: mode,
		Parse: parse.Options{
			UseWorker:     c.Preview.UseWorker,
			SizeThreshold: c.Preview.SizeThresholdChars,
		},
		Debounce:      c.DebouncePolicy(),
		CacheCapacity: c.Preview.CacheCapacity,
		Margin:        margin,
		FontSize:      c.Preview.FontSize,
	}
}

// GetConfigDir returns the XDG config directory for mdview.
// Uses $XDG_CONFIG_HOME if set, otherwise ~/.config
func GetConfigDir() (string, error) {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, "mdview"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "mdview"), nil
}

// GetConfigPath returns the path where the config file should be located
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// Exists returns true if a config file exists
func Exists() bool {
	path, err := GetConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Marshal renders the config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Header is written above the settings in every saved config file.
const Header = "# mdview configuration\n# Run 'mdview config edit' to modify\n\n"

// Save writes the config to the default path.
func Save(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	return SaveFile(path, cfg)
}

// SaveFile atomically replaces path with cfg, creating its directory.
func SaveFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	content, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := renameio.WriteFile(path, append([]byte(Header), content...), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
