package markup

import (
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	displayMathRe = regexp.MustCompile(`(?s)\$\$(.*?)\$\$`)
	inlineMathRe  = regexp.MustCompile(`\$([^$\n]+?)\$`)
	diagramRe     = regexp.MustCompile("(?s)```mermaid\n(.*?)```")
)

// Marker classes of the containers left in converted markup. The specialized
// pass fills them in and adds the matching "-rendered" class.
const (
	ClassMathBlock  = "math-block"
	ClassMathInline = "math-inline"
	ClassDiagram    = "mermaid-block"
)

// protected holds the markup standing in for math and diagram sources while
// the rest of the text goes through the markdown converter.
type protected struct {
	tokens []string
	markup []string
}

func (p *protected) add(prefix, markup string) string {
	token := "%%" + prefix + "_" + strconv.Itoa(len(p.tokens)) + "%%"
	p.tokens = append(p.tokens, token)
	p.markup = append(p.markup, markup)
	return token
}

// protect replaces display math, inline math and mermaid fences with opaque
// tokens. Display math is taken first so "$$" never reads as two inline
// delimiters.
func protect(content string) (string, *protected) {
	p := &protected{}
	out := displayMathRe.ReplaceAllStringFunc(content, func(m string) string {
		tex := displayMathRe.FindStringSubmatch(m)[1]
		return p.add("MATH_BLOCK", container("div", ClassMathBlock, "data-tex", tex))
	})
	out = inlineMathRe.ReplaceAllStringFunc(out, func(m string) string {
		tex := inlineMathRe.FindStringSubmatch(m)[1]
		return p.add("MATH_BLOCK", container("span", ClassMathInline, "data-tex", tex))
	})
	out = diagramRe.ReplaceAllStringFunc(out, func(m string) string {
		code := diagramRe.FindStringSubmatch(m)[1]
		return p.add("MERMAID_BLOCK", container("div", ClassDiagram, "data-code", code))
	})
	return out, p
}

// restore puts the container markup back. A token the converter wrapped in a
// paragraph of its own loses the paragraph.
func (p *protected) restore(converted string) string {
	if len(p.tokens) == 0 {
		return converted
	}
	pairs := make([]string, 0, 4*len(p.tokens))
	for i, token := range p.tokens {
		pairs = append(pairs, "<p>"+token+"</p>", p.markup[i], token, p.markup[i])
	}
	return strings.NewReplacer(pairs...).Replace(converted)
}

func container(tag, class, attr, source string) string {
	value := html.EscapeString(url.PathEscape(strings.TrimSpace(source)))
	return "<" + tag + ` class="` + class + `" ` + attr + `="` + value + `"></` + tag + ">"
}
