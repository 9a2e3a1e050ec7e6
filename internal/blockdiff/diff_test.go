package blockdiff

import (
	"strings"
	"testing"

	"github.com/samsaffron/mdview/internal/blocks"
)

func para(id int, content string) blocks.Block {
	return blocks.Block{ID: id, Type: blocks.Paragraph, Content: content}
}

type brief struct {
	kind  Kind
	index int
}

func briefs(changes []Change) []brief {
	out := make([]brief, len(changes))
	for i, c := range changes {
		out[i] = brief{c.Kind, c.Index}
	}
	return out
}

func equalBriefs(a, b []brief) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDiff_Identical(t *testing.T) {
	bs := blocks.Segment("# Title\n\npara\n\n```\ncode\n```\n\n- a\n- b")
	if got := Diff(bs, bs); len(got) != 0 {
		t.Errorf("Diff(bs, bs) = %v, want no changes", briefs(got))
	}
	if got := Diff(nil, nil); len(got) != 0 {
		t.Errorf("Diff(nil, nil) = %v, want no changes", briefs(got))
	}
}

func TestDiff(t *testing.T) {
	a, b, c, d := para(0, "A"), para(1, "B"), para(2, "C"), para(3, "D")

	tests := []struct {
		name string
		prev []blocks.Block
		next []blocks.Block
		want []brief
	}{
		{
			name: "append",
			prev: []blocks.Block{a, b},
			next: []blocks.Block{a, b, c},
			want: []brief{{Add, 2}},
		},
		{
			name: "remove from the middle",
			prev: []blocks.Block{a, b, c},
			next: []blocks.Block{a, c},
			want: []brief{{Move, 1}, {Remove, 1}},
		},
		{
			name: "edit in place",
			prev: []blocks.Block{a, b, c},
			next: []blocks.Block{a, d, c},
			want: []brief{{Remove, 1}, {Update, 1}},
		},
		{
			name: "insert at front shifts everything",
			prev: []blocks.Block{a, b},
			next: []blocks.Block{d, a, b},
			want: []brief{{Move, 1}, {Move, 2}, {Add, 0}},
		},
		{
			name: "everything new",
			prev: nil,
			next: []blocks.Block{a, b},
			want: []brief{{Add, 0}, {Add, 1}},
		},
		{
			name: "everything removed",
			prev: []blocks.Block{a, b},
			next: nil,
			want: []brief{{Remove, 0}, {Remove, 1}},
		},
		{
			name: "swap",
			prev: []blocks.Block{a, b},
			next: []blocks.Block{b, a},
			want: []brief{{Move, 0}, {Move, 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := briefs(Diff(tt.prev, tt.next))
			if !equalBriefs(got, tt.want) {
				t.Errorf("Diff() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDiff_TieBreakMatchesFirstUnused(t *testing.T) {
	a0, a1, b := para(0, "A"), para(1, "A"), para(2, "B")
	prev := []blocks.Block{a0, a1, b}
	next := []blocks.Block{para(0, "A"), para(1, "B"), para(2, "A")}

	got := Diff(prev, next)
	want := []brief{{Move, 1}, {Move, 2}}
	if !equalBriefs(briefs(got), want) {
		t.Fatalf("Diff() = %v, want %v", briefs(got), want)
	}
	// new index 2 must have been matched with old index 1, not old index 0
	if got[1].Old.ID != 1 {
		t.Errorf("second A matched old block %d, want 1", got[1].Old.ID)
	}
	if got[0].Old.ID != 2 {
		t.Errorf("B matched old block %d, want 2", got[0].Old.ID)
	}
}

func TestDiff_TypeIsPartOfIdentity(t *testing.T) {
	prev := []blocks.Block{{Type: blocks.Paragraph, Content: "x"}}
	next := []blocks.Block{{Type: blocks.Blockquote, Content: "x"}}
	got := briefs(Diff(prev, next))
	want := []brief{{Remove, 0}, {Update, 0}}
	if !equalBriefs(got, want) {
		t.Errorf("Diff() = %v, want %v", got, want)
	}
}

func TestDiff_LongPrefixCollision(t *testing.T) {
	prefix := strings.Repeat("x", blocks.KeyPrefixLen)
	prev := []blocks.Block{para(0, prefix+"one")}
	next := []blocks.Block{para(0, prefix+"two")}
	if got := Diff(prev, next); len(got) != 0 {
		t.Errorf("blocks sharing a key prefix should be treated as unchanged, got %v", briefs(got))
	}
}

func TestShouldFullRerender(t *testing.T) {
	six := make([]Change, 6)
	four := make([]Change, 4)
	five := make([]Change, 5)

	if !ShouldFullRerender(six, 10) {
		t.Error("6/10 changes should trigger a full rerender")
	}
	if ShouldFullRerender(four, 10) {
		t.Error("4/10 changes should not trigger a full rerender")
	}
	if ShouldFullRerender(five, 10) {
		t.Error("exactly half should not trigger a full rerender")
	}
	if !ShouldFullRerender(nil, 0) {
		t.Error("an empty block list always rerenders")
	}
}

func TestSummarize(t *testing.T) {
	a, b, c, d := para(0, "A"), para(1, "B"), para(2, "C"), para(3, "D")
	got := Summarize(Diff([]blocks.Block{a, b, c}, []blocks.Block{c, d, a, b}))
	want := Stats{Added: 1, Moved: 3}
	if got != want {
		t.Errorf("Summarize() = %+v, want %+v", got, want)
	}
}

func TestChangePatch(t *testing.T) {
	prev := []blocks.Block{para(0, "line one\nline two")}
	next := []blocks.Block{para(0, "line one\nline 2")}
	changes := Diff(prev, next)

	var update *Change
	for i := range changes {
		if changes[i].Kind == Update {
			update = &changes[i]
		}
	}
	if update == nil {
		t.Fatalf("expected an update, got %v", briefs(changes))
	}
	patch := update.Patch()
	if !strings.Contains(patch, "-line two") || !strings.Contains(patch, "+line 2") {
		t.Errorf("Patch() missing expected lines:\n%s", patch)
	}
	if (Change{Kind: Add, Block: &next[0]}).Patch() != "" {
		t.Error("Patch() of an add should be empty")
	}
}
