package cli

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/go-cmp/cmp"
)

func newSizedPager(t *testing.T, content string) *pagerModel {
	t.Helper()
	m := NewPager("Attention Is All You Need", content)
	m.Update(tea.WindowSizeMsg{Width: 80, Height: 12})
	if !m.ready {
		t.Fatal("pager should be ready after a window size message")
	}
	return m
}

func TestPagerFind(t *testing.T) {
	content := "Attention\nself-attention layers\nno match here\nmulti-head ATTENTION\n"

	tests := []struct {
		name      string
		query     string
		wantLines []int
	}{
		{name: "lowercase ignores case", query: "attention", wantLines: []int{0, 1, 3}},
		{name: "uppercase is exact", query: "ATTENTION", wantLines: []int{3}},
		{name: "no match", query: "transformer", wantLines: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newSizedPager(t, content)
			m.find(tt.query)

			var lines []int
			for _, hit := range m.search.matches {
				lines = append(lines, hit.line)
			}
			if diff := cmp.Diff(tt.wantLines, lines); diff != "" {
				t.Errorf("match lines mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPagerJumpWraps(t *testing.T) {
	m := newSizedPager(t, "a x\nb x\nc x\n")
	m.find("x")
	if m.search.current != 0 {
		t.Fatalf("current = %d, want 0", m.search.current)
	}

	var got []int
	for range 4 {
		m.jump(1)
		got = append(got, m.search.current)
	}
	m.jump(-1)
	got = append(got, m.search.current)

	if diff := cmp.Diff([]int{1, 2, 0, 1, 0}, got); diff != "" {
		t.Errorf("jump sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestPagerScrollsToMatch(t *testing.T) {
	var b strings.Builder
	for range 100 {
		b.WriteString("filler\n")
	}
	b.WriteString("needle\n")

	m := newSizedPager(t, b.String())
	m.find("needle")
	if len(m.search.matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(m.search.matches))
	}
	if top := m.viewport.YOffset; top > 100 || top+m.viewport.Height <= 100 {
		t.Errorf("line 100 should be visible, viewport starts at %d with height %d", top, m.viewport.Height)
	}
}

func TestPagerView(t *testing.T) {
	m := newSizedPager(t, "one\ntwo\n")
	if !strings.Contains(m.View(), "Attention Is All You Need") {
		t.Error("view should show the title")
	}

	m.find("three")
	if !strings.Contains(m.View(), "Pattern not found: three") {
		t.Errorf("view should report a missing pattern:\n%s", m.View())
	}

	m.clearSearch()
	if m.search.query != "" || len(m.search.matches) != 0 {
		t.Errorf("search should be cleared, got %+v", m.search)
	}
}
