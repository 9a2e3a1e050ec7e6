package markup

import (
	"strings"
	"testing"

	"github.com/samsaffron/mdview/internal/blocks"
)

func TestHTMLConvert(t *testing.T) {
	conv := NewHTML(DefaultHighlightStyle)

	tests := []struct {
		name     string
		input    string
		contains []string
		absent   []string
	}{
		{
			name:     "heading gets an id",
			input:    "# Title",
			contains: []string{`<h1 id="title">Title</h1>`},
		},
		{
			name:     "hard line breaks",
			input:    "one\ntwo",
			contains: []string{"one<br", "two</p>"},
		},
		{
			name:     "highlighted code",
			input:    "```go\nfunc main() {}\n```",
			contains: []string{`<pre class="hljs language-go"><code>`, `<span class=`, "main"},
		},
		{
			name:     "unknown language is escaped",
			input:    "```nosuchlang\n<tag>\n```",
			contains: []string{"&lt;tag&gt;", `language-nosuchlang`},
		},
		{
			name:     "gfm table",
			input:    "| a | b |\n|---|---|\n| 1 | 2 |",
			contains: []string{"<table>", "<td>1</td>"},
		},
		{
			name:     "display math becomes a container",
			input:    "$$\nx^2\n$$",
			contains: []string{`<div class="math-block" data-tex="x%5E2"></div>`},
			absent:   []string{"<p><div", "$$"},
		},
		{
			name:     "inline math",
			input:    "value $a+b$ here",
			contains: []string{`<span class="math-inline" data-tex="a+b"></span>`, "value ", " here"},
		},
		{
			name:     "mermaid fence",
			input:    "```mermaid\ngraph TD\nA-->B\n```",
			contains: []string{`<div class="mermaid-block" data-code="`},
			absent:   []string{"<pre"},
		},
		{
			name:     "images load lazily",
			input:    "![alt](pic.png)",
			contains: []string{`loading="lazy"`, `class="md-image"`, `src="pic.png"`},
		},
		{
			name:     "external links open a new window",
			input:    "[site](https://example.com)",
			contains: []string{`target="_blank"`, `rel="noopener noreferrer"`},
		},
		{
			name:   "anchors stay in place",
			input:  "[top](#title)",
			absent: []string{"_blank"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := conv.Convert(tt.input)
			if err != nil {
				t.Fatalf("Convert() error = %v", err)
			}
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("Convert(%q) = %q, missing %q", tt.input, got, want)
				}
			}
			for _, bad := range tt.absent {
				if strings.Contains(got, bad) {
					t.Errorf("Convert(%q) = %q, should not contain %q", tt.input, got, bad)
				}
			}
		})
	}
}

func TestHTMLConvert_Empty(t *testing.T) {
	got, err := NewHTML("").Convert("  \n")
	if err != nil || got != "" {
		t.Errorf("Convert(blank) = %q, %v", got, err)
	}
}

func TestHTMLCSS(t *testing.T) {
	if css := NewHTML("monokai").CSS(); !strings.Contains(css, ".chroma") {
		t.Errorf("CSS() missing chroma rules: %q", css)
	}
}

func TestSpecialsProcess(t *testing.T) {
	conv := NewHTML(DefaultHighlightStyle)
	s := NewSpecials(nil)

	fragment, err := conv.Convert("energy $E=mc^2$ and\n\n$$\n\\frac{a}{b}\n$$")
	if err != nil {
		t.Fatal(err)
	}
	if !s.Needs(blocks.Block{}, fragment) {
		t.Fatalf("Needs() = false for %q", fragment)
	}

	out := s.Process(fragment)
	for _, want := range []string{
		`<span class="tex">E=mc^2</span>`,
		`<span class="tex">\frac{a}{b}</span>`,
		"math-rendered",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Process() = %q, missing %q", out, want)
		}
	}
	if s.Needs(blocks.Block{}, out) {
		t.Error("processed fragment should not need another pass")
	}
	if again := s.Process(out); again != out {
		t.Errorf("second Process() changed the fragment:\n%s\n%s", out, again)
	}
}

func TestSpecialsProcess_Errors(t *testing.T) {
	conv := NewHTML(DefaultHighlightStyle)

	tests := []struct {
		name  string
		input string
		post  *Specials
		want  string
	}{
		{
			name:  "unbalanced formula",
			input: "$$\n\\frac{a\n$$",
			post:  NewSpecials(nil),
			want:  `<span class="math-error">formula error: \frac{a</span>`,
		},
		{
			name:  "unknown diagram",
			input: "```mermaid\nnotadiagram\n```",
			post:  NewSpecials(nil),
			want:  `class="mermaid-error"`,
		},
		{
			name:  "renderer panic",
			input: "$x$",
			post: &Specials{Math: SpecialFunc(func(string) (string, error) {
				panic("kaboom")
			})},
			want: "math-error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fragment, err := conv.Convert(tt.input)
			if err != nil {
				t.Fatal(err)
			}
			if out := tt.post.Process(fragment); !strings.Contains(out, tt.want) {
				t.Errorf("Process() = %q, missing %q", out, tt.want)
			}
		})
	}
}

func TestSpecialsProcess_Diagram(t *testing.T) {
	fragment, err := NewHTML("").Convert("```mermaid\ngraph TD\n  A-->B\n```")
	if err != nil {
		t.Fatal(err)
	}
	out := NewSpecials(nil).Process(fragment)
	if !strings.Contains(out, `<pre class="mermaid">graph TD`) || !strings.Contains(out, "A--&gt;B") {
		t.Errorf("Process() = %q", out)
	}
	if !strings.Contains(out, "mermaid-rendered") {
		t.Errorf("container not marked rendered: %q", out)
	}
}

func TestTeX(t *testing.T) {
	tests := []struct {
		src     string
		wantErr bool
	}{
		{`x^2`, false},
		{`\frac{1}{2}`, false},
		{`\{ a \}`, false},
		{`\begin{matrix} a & b \end{matrix}`, false},
		{`{a`, true},
		{`a}`, true},
		{`\begin{matrix} a`, true},
		{`\begin{a} \end{b}`, true},
	}
	for _, tt := range tests {
		_, err := TeX{}.Render(tt.src)
		if (err != nil) != tt.wantErr {
			t.Errorf("TeX.Render(%q) error = %v, wantErr %v", tt.src, err, tt.wantErr)
		}
	}
}

func TestTerminalConvert(t *testing.T) {
	term, err := NewTerminal(StyleNoTTY)
	if err != nil {
		t.Fatal(err)
	}
	out, err := term.Convert("# Hello\n\nsome words", 40)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if !strings.Contains(out, "Hello") || !strings.Contains(out, "some words") {
		t.Errorf("Convert() = %q", out)
	}
	if got, _ := term.Converter(40)(""); got != "" {
		t.Errorf("Converter()(\"\") = %q, want empty", got)
	}

	if _, err := NewTerminal("neon"); err == nil {
		t.Error("NewTerminal(neon) should fail")
	}
}
