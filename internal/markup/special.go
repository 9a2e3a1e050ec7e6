package markup

import (
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"strings"

	nethtml "golang.org/x/net/html"

	"github.com/samsaffron/mdview/internal/blocks"
)

// SpecialRenderer renders the source of a math formula or a diagram into
// markup.
type SpecialRenderer interface {
	Render(source string) (string, error)
}

// SpecialFunc adapts a function to SpecialRenderer.
type SpecialFunc func(source string) (string, error)

func (f SpecialFunc) Render(source string) (string, error) { return f(source) }

// Specials fills the marker containers left by HTML.Convert. It satisfies
// render.PostProcessor.
type Specials struct {
	Math    SpecialRenderer
	Diagram SpecialRenderer
	Logger  *slog.Logger
}

// NewSpecials uses the built-in TeX and mermaid renderers.
func NewSpecials(logger *slog.Logger) *Specials {
	if logger == nil {
		logger = slog.Default()
	}
	return &Specials{Math: TeX{}, Diagram: Mermaid{}, Logger: logger}
}

// Needs reports whether fragment still has containers to fill.
func (s *Specials) Needs(_ blocks.Block, fragment string) bool {
	return strings.Contains(fragment, `class="`+ClassMathBlock+`"`) ||
		strings.Contains(fragment, `class="`+ClassMathInline+`"`) ||
		strings.Contains(fragment, `class="`+ClassDiagram+`"`)
}

// Process renders every unfilled container in fragment. Failures become error
// markup inside the container; the rest of the fragment is untouched.
func (s *Specials) Process(fragment string) string {
	if !s.Needs(blocks.Block{}, fragment) {
		return fragment
	}

	z := nethtml.NewTokenizer(strings.NewReader(fragment))
	var sb strings.Builder
	for {
		tt := z.Next()
		if tt == nethtml.ErrorToken {
			break
		}
		raw := string(z.Raw())
		if tt != nethtml.StartTagToken {
			sb.WriteString(raw)
			continue
		}

		tok := z.Token()
		class := attrVal(tok.Attr, "class")
		switch class {
		case ClassMathBlock, ClassMathInline:
			tex := decodeSource(attrVal(tok.Attr, "data-tex"))
			inner := s.renderMath(tex)
			tok.Attr = appendClass(tok.Attr, "math-rendered")
			sb.WriteString(tok.String())
			sb.WriteString(inner)
		case ClassDiagram:
			code := decodeSource(attrVal(tok.Attr, "data-code"))
			inner := s.renderDiagram(code)
			tok.Attr = appendClass(tok.Attr, "mermaid-rendered")
			sb.WriteString(tok.String())
			sb.WriteString(inner)
		default:
			sb.WriteString(raw)
		}
	}
	return sb.String()
}

func (s *Specials) renderMath(tex string) string {
	if tex == "" || s.Math == nil {
		return ""
	}
	out, err := safeRender(s.Math, tex)
	if err != nil {
		s.logger().Warn("math render failed", "error", err)
		return `<span class="math-error">formula error: ` + html.EscapeString(tex) + `</span>`
	}
	return out
}

func (s *Specials) renderDiagram(code string) string {
	if code == "" || s.Diagram == nil {
		return ""
	}
	out, err := safeRender(s.Diagram, code)
	if err != nil {
		s.logger().Warn("diagram render failed", "error", err)
		return `<div class="mermaid-error">diagram syntax error, check the Mermaid code</div>`
	}
	return out
}

func (s *Specials) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// safeRender turns a renderer panic into an error.
func safeRender(r SpecialRenderer, source string) (out string, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = "", fmt.Errorf("renderer panic: %v", p)
		}
	}()
	return r.Render(source)
}

func decodeSource(v string) string {
	if s, err := url.PathUnescape(v); err == nil {
		return s
	}
	return v
}

func appendClass(attrs []nethtml.Attribute, class string) []nethtml.Attribute {
	for i, a := range attrs {
		if a.Key == "class" {
			attrs[i].Val = a.Val + " " + class
			return attrs
		}
	}
	return append(attrs, nethtml.Attribute{Key: "class", Val: class})
}

// TeX checks that a formula is well formed and emits it for client-side
// typesetting.
type TeX struct{}

var errUnbalanced = errors.New("unbalanced braces")

func (TeX) Render(source string) (string, error) {
	depth := 0
	var envs []string
	for i := 0; i < len(source); i++ {
		switch source[i] {
		case '\\':
			rest := source[i:]
			if name, ok := envName(rest, `\begin{`); ok {
				envs = append(envs, name)
			} else if name, ok := envName(rest, `\end{`); ok {
				if len(envs) == 0 || envs[len(envs)-1] != name {
					return "", fmt.Errorf("unexpected \\end{%s}", name)
				}
				envs = envs[:len(envs)-1]
			}
			i++ // skip the escaped character
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return "", errUnbalanced
			}
		}
	}
	if depth != 0 {
		return "", errUnbalanced
	}
	if len(envs) > 0 {
		return "", fmt.Errorf("unclosed \\begin{%s}", envs[len(envs)-1])
	}
	return `<span class="tex">` + html.EscapeString(source) + `</span>`, nil
}

func envName(s, prefix string) (string, bool) {
	if !strings.HasPrefix(s, prefix) {
		return "", false
	}
	end := strings.IndexByte(s[len(prefix):], '}')
	if end < 0 {
		return "", false
	}
	return s[len(prefix) : len(prefix)+end], true
}

// mermaidKinds are the diagram declarations mermaid accepts on the first line.
var mermaidKinds = []string{
	"graph", "flowchart", "sequenceDiagram", "classDiagram", "stateDiagram",
	"stateDiagram-v2", "erDiagram", "gantt", "pie", "journey", "gitGraph",
	"mindmap", "timeline", "quadrantChart", "requirementDiagram", "C4Context",
	"sankey-beta", "xychart-beta", "block-beta",
}

// Mermaid checks the diagram declaration and emits the source for
// client-side rendering.
type Mermaid struct{}

func (Mermaid) Render(source string) (string, error) {
	first := strings.TrimSpace(strings.SplitN(strings.TrimSpace(source), "\n", 2)[0])
	kind := strings.Fields(first)
	if len(kind) == 0 {
		return "", errors.New("empty diagram")
	}
	for _, k := range mermaidKinds {
		if kind[0] == k {
			return `<pre class="mermaid">` + html.EscapeString(source) + `</pre>`, nil
		}
	}
	return "", fmt.Errorf("unknown diagram type %q", kind[0])
}
