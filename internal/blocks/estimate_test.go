package blocks

import "testing"

func TestEstimateHeight(t *testing.T) {
	tests := []struct {
		name  string
		block Block
		want  float64
	}{
		{"h1", Block{Type: Heading, Level: 1, Content: "# a"}, 16*2.7 + 32},
		{"h6 is shorter", Block{Type: Heading, Level: 6, Content: "###### a"}, 16*1.2 + 32},
		{"short code has a floor", Block{Type: Code, Content: "```\nx\n```"}, 100},
		{"long code scales", Block{Type: Code, Content: "```\n1\n2\n3\n4\n5\n```"}, 7*25.6 + 32},
		{"table rows", Block{Type: Table, Content: "|a|\n|-|\n|1|"}, 3*40 + 20},
		{"image", Block{Type: Image, Content: "![x](y)"}, 300},
		{"rule", Block{Type: Rule, Content: "---"}, 40},
		{"math", Block{Type: Math, Content: "$$\nx\n$$"}, 3*25.6 + 40},
		{"paragraph", Block{Type: Paragraph, Content: "a\nb"}, 2*25.6 + 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateHeight(tt.block, 16)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("EstimateHeight() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEstimateHeight_DefaultFontSize(t *testing.T) {
	b := Block{Type: Paragraph, Content: "x"}
	if EstimateHeight(b, 0) != EstimateHeight(b, DefaultFontSize) {
		t.Error("zero font size should fall back to the default")
	}
}

func TestEstimateRows(t *testing.T) {
	wide := Block{Type: Paragraph, Content: "日本語日本語"} // 12 cells
	if got := EstimateRows(wide, 5); got != 3+1 {
		t.Errorf("EstimateRows(wide, 5) = %d, want 4", got)
	}
	code := Block{Type: Code, Content: "```\na very long line that is never wrapped by the estimate\n```"}
	if got := EstimateRows(code, 10); got != 5 {
		t.Errorf("EstimateRows(code) = %d, want 5", got)
	}
	if got := EstimateRows(Block{Type: Rule, Content: "---"}, 80); got != 2 {
		t.Errorf("EstimateRows(rule) = %d, want 2", got)
	}
}
