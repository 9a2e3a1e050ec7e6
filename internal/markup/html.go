// Package markup converts block markdown into fragments: HTML for the browser
// preview, ANSI text for the terminal, plus the deferred pass that renders
// math and diagrams inside converted HTML.
package markup

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
	"golang.org/x/net/html"
)

// DefaultHighlightStyle is the chroma style used for code blocks.
const DefaultHighlightStyle = "github"

// HTML converts markdown to HTML with GFM tables, task lists, strikethrough
// and autolinks, hard line breaks, and chroma-highlighted code.
type HTML struct {
	md    goldmark.Markdown
	style *chroma.Style
}

// NewHTML creates a converter highlighting code with the named chroma style.
func NewHTML(highlightStyle string) *HTML {
	style := styles.Get(highlightStyle)
	if style == nil {
		style = styles.Fallback
	}
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(
			gmhtml.WithHardWraps(),
			gmhtml.WithUnsafe(),
			renderer.WithNodeRenderers(util.Prioritized(&codeRenderer{}, 200)),
		),
	)
	return &HTML{md: md, style: style}
}

// Convert renders one block (or a whole document) to HTML. Math and mermaid
// sources come out as empty marker containers for the specialized pass.
func (h *HTML) Convert(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", nil
	}

	text, p := protect(content)
	var buf bytes.Buffer
	if err := h.md.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return decorate(p.restore(buf.String())), nil
}

// CSS returns the stylesheet for highlighted code.
func (h *HTML) CSS() string {
	var buf bytes.Buffer
	if err := chromahtml.New(chromahtml.WithClasses(true)).WriteCSS(&buf, h.style); err != nil {
		return ""
	}
	return buf.String()
}

// codeRenderer replaces goldmark's fenced code output with chroma markup.
type codeRenderer struct{}

func (r *codeRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, r.renderFencedCode)
}

func (r *codeRenderer) renderFencedCode(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.FencedCodeBlock)
	lang := string(n.Language(source))

	var code strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		code.Write(seg.Value(source))
	}

	class := "hljs"
	if lang != "" {
		class += " language-" + html.EscapeString(lang)
	}
	_, _ = w.WriteString(`<pre class="` + class + `"><code>`)
	if !highlight(w, lang, code.String()) {
		_, _ = w.WriteString(html.EscapeString(code.String()))
	}
	_, _ = w.WriteString("</code></pre>\n")
	return ast.WalkSkipChildren, nil
}

// highlight writes chroma class-based markup for code. It reports false when
// the language is unknown or tokenising fails, leaving w untouched.
func highlight(w util.BufWriter, lang, code string) bool {
	if lang == "" {
		return false
	}
	lexer := lexers.Get(lang)
	if lexer == nil {
		return false
	}
	iterator, err := chroma.Coalesce(lexer).Tokenise(nil, code)
	if err != nil {
		return false
	}
	var buf bytes.Buffer
	formatter := chromahtml.New(chromahtml.WithClasses(true), chromahtml.PreventSurroundingPre(true))
	if err := formatter.Format(&buf, styles.Fallback, iterator); err != nil {
		return false
	}
	_, _ = w.Write(buf.Bytes())
	return true
}

// decorate adds lazy loading to images and opens external links in a new
// window.
func decorate(src string) string {
	if !strings.Contains(src, "<img") && !strings.Contains(src, "<a ") {
		return src
	}

	z := html.NewTokenizer(strings.NewReader(src))
	var sb strings.Builder
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := string(z.Raw())
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			sb.WriteString(raw)
			continue
		}

		tok := z.Token()
		switch tok.Data {
		case "img":
			tok.Attr = setAttr(tok.Attr, "loading", "lazy")
			tok.Attr = setAttr(tok.Attr, "class", "md-image")
			sb.WriteString(tok.String())
		case "a":
			if href := attrVal(tok.Attr, "href"); href == "" || strings.HasPrefix(href, "#") {
				sb.WriteString(raw)
				continue
			}
			tok.Attr = setAttr(tok.Attr, "target", "_blank")
			tok.Attr = setAttr(tok.Attr, "rel", "noopener noreferrer")
			sb.WriteString(tok.String())
		default:
			sb.WriteString(raw)
		}
	}
	return sb.String()
}

func attrVal(attrs []html.Attribute, key string) string {
	for _, a := range attrs {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// setAttr sets key to val unless the attribute is already present.
func setAttr(attrs []html.Attribute, key, val string) []html.Attribute {
	for _, a := range attrs {
		if a.Key == key {
			return attrs
		}
	}
	return append(attrs, html.Attribute{Key: key, Val: val})
}
