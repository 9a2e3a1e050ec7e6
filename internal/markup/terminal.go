package markup

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/glamour/styles"
	"github.com/muesli/termenv"
)

// Terminal styles accepted by NewTerminal.
const (
	StyleAuto  = "auto"
	StyleDark  = "dark"
	StyleLight = "light"
	StyleNoTTY = "notty"
)

// Terminal renders markdown to ANSI text with glamour. Renderers are cached
// per width.
type Terminal struct {
	style     ansi.StyleConfig
	renderers sync.Map // map[int]*glamour.TermRenderer
}

// NewTerminal creates a terminal converter. "auto" picks dark or light from
// the terminal background.
func NewTerminal(style string) (*Terminal, error) {
	cfg, err := terminalStyle(style)
	if err != nil {
		return nil, err
	}
	margin := uint(0)
	cfg.Document.Margin = &margin
	cfg.Document.BlockPrefix = ""
	cfg.Document.BlockSuffix = ""
	cfg.CodeBlock.Margin = &margin
	return &Terminal{style: cfg}, nil
}

func terminalStyle(name string) (ansi.StyleConfig, error) {
	switch name {
	case "", StyleAuto:
		if termenv.ColorProfile() == termenv.Ascii {
			return styles.NoTTYStyleConfig, nil
		}
		if termenv.HasDarkBackground() {
			return styles.DarkStyleConfig, nil
		}
		return styles.LightStyleConfig, nil
	case StyleDark:
		return styles.DarkStyleConfig, nil
	case StyleLight:
		return styles.LightStyleConfig, nil
	case StyleNoTTY:
		return styles.NoTTYStyleConfig, nil
	}
	return ansi.StyleConfig{}, fmt.Errorf("unknown terminal style %q", name)
}

func (t *Terminal) renderer(width int) (*glamour.TermRenderer, error) {
	if cached, ok := t.renderers.Load(width); ok {
		return cached.(*glamour.TermRenderer), nil
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStyles(t.style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}
	t.renderers.Store(width, r)
	return r, nil
}

// Convert renders content wrapped at width columns.
func (t *Terminal) Convert(content string, width int) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", nil
	}
	r, err := t.renderer(width)
	if err != nil {
		return "", fmt.Errorf("create terminal renderer: %w", err)
	}
	out, err := r.Render(content)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return strings.Trim(out, "\n"), nil
}

// Converter binds a width, giving a render.Converter-compatible function.
func (t *Terminal) Converter(width int) func(string) (string, error) {
	return func(content string) (string, error) {
		return t.Convert(content, width)
	}
}
