package cli

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	searchHighlight = lipgloss.NewStyle().
			Background(lipgloss.Color("228")). // yellow
			Foreground(lipgloss.Color("0"))    // black

	currentMatchHighlight = lipgloss.NewStyle().
				Background(lipgloss.Color("196")). // red
				Foreground(lipgloss.Color("15"))   // white

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			PaddingLeft(2)
)

// chromeHeight is the number of lines taken by the title and help bars
const chromeHeight = 2

// match is one search hit, start is a byte offset into the content
type match struct {
	start int
	line  int
}

type searchState struct {
	active  bool
	input   textinput.Model
	query   string
	matches []match
	current int
}

// pagerModel shows a rendered paper with less-like navigation and search
type pagerModel struct {
	viewport viewport.Model
	title    string
	content  string
	ready    bool
	search   searchState
}

// NewPager creates a pager for content, title is shown in the top bar
func NewPager(title, content string) *pagerModel {
	ti := textinput.New()
	ti.Prompt = "/"
	ti.PromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	ti.PlaceholderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	return &pagerModel{
		title:   title,
		content: content,
		search:  searchState{input: ti},
	}
}

func (m *pagerModel) Init() tea.Cmd {
	return nil
}

func (m *pagerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.search.active {
			return m.updateSearchInput(msg)
		}

		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "esc":
			m.clearSearch()
		case "j", "down":
			m.viewport.ScrollDown(1)
		case "k", "up":
			m.viewport.ScrollUp(1)
		case "f", "pgdown", " ":
			m.viewport.ScrollDown(m.viewport.Height)
		case "b", "pgup":
			m.viewport.ScrollUp(m.viewport.Height)
		case "d":
			m.viewport.ScrollDown(m.viewport.Height / 2)
		case "u":
			m.viewport.ScrollUp(m.viewport.Height / 2)
		case "g", "home":
			m.viewport.GotoTop()
		case "G", "end":
			m.viewport.GotoBottom()
		case "/":
			m.search.active = true
			m.search.input.Focus()
			return m, textinput.Blink
		case "n":
			m.jump(1)
		case "N":
			m.jump(-1)
		}
		return m, nil

	case tea.WindowSizeMsg:
		height := max(msg.Height-chromeHeight, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.viewport.Style = lipgloss.NewStyle().PaddingLeft(1).PaddingRight(1)
			m.viewport.SetContent(m.content)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *pagerModel) updateSearchInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEscape:
		m.search.active = false
		m.search.input.Reset()
	case tea.KeyEnter:
		m.search.active = false
		m.search.input.Blur()
		m.find(m.search.input.Value())
	default:
		var cmd tea.Cmd
		m.search.input, cmd = m.search.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *pagerModel) View() string {
	if !m.ready {
		return "\nLoading..."
	}

	title := titleStyle.Render(m.title)
	if m.viewport.TotalLineCount() > 0 {
		title += helpStyle.Render(fmt.Sprintf("%3.f%%", m.viewport.ScrollPercent()*100))
	}

	var footer string
	switch {
	case m.search.active:
		footer = m.search.input.View()
	case m.search.query != "" && len(m.search.matches) == 0:
		footer = helpStyle.Render("Pattern not found: " + m.search.query + " • esc clear • q quit")
	case len(m.search.matches) > 0:
		footer = helpStyle.Render(fmt.Sprintf("/%s (%d/%d) • n next • N previous • esc clear • q quit",
			m.search.query, m.search.current+1, len(m.search.matches)))
	default:
		footer = helpStyle.Render("j/k scroll • f/b page • d/u half page • g/G top/bottom • / search • q quit")
	}
	return title + "\n" + m.viewport.View() + "\n" + footer
}

// find records every occurrence of query. Lowercase queries match case-insensitively.
func (m *pagerModel) find(query string) {
	m.search.query = query
	m.search.matches = nil
	m.search.current = 0
	if query == "" {
		m.viewport.SetContent(m.content)
		return
	}

	haystack := m.content
	if !hasUpper(query) {
		// offsets must stay valid in content
		if lower := strings.ToLower(haystack); len(lower) == len(haystack) {
			haystack = lower
		}
	}

	line, counted := 0, 0
	for off := 0; off < len(haystack); {
		i := strings.Index(haystack[off:], query)
		if i < 0 {
			break
		}
		start := off + i
		line += strings.Count(haystack[counted:start], "\n")
		counted = start
		m.search.matches = append(m.search.matches, match{start: start, line: line})
		off = start + len(query)
	}
	if len(m.search.matches) == 0 {
		m.viewport.SetContent(m.content)
		return
	}

	// start from the first hit at or below the top of the screen
	for i, hit := range m.search.matches {
		if hit.line >= m.viewport.YOffset {
			m.search.current = i
			break
		}
	}
	m.highlight(len(query))
	m.scrollTo(m.search.matches[m.search.current].line)
}

func hasUpper(s string) bool {
	return strings.IndexFunc(s, unicode.IsUpper) >= 0
}

// jump moves the current match by step, wrapping around
func (m *pagerModel) jump(step int) {
	n := len(m.search.matches)
	if n == 0 {
		return
	}
	m.search.current = ((m.search.current+step)%n + n) % n
	m.highlight(len(m.search.query))
	m.scrollTo(m.search.matches[m.search.current].line)
}

func (m *pagerModel) highlight(width int) {
	var b strings.Builder
	last := 0
	for i, hit := range m.search.matches {
		b.WriteString(m.content[last:hit.start])
		text := m.content[hit.start : hit.start+width]
		if i == m.search.current {
			b.WriteString(currentMatchHighlight.Render(text))
		} else {
			b.WriteString(searchHighlight.Render(text))
		}
		last = hit.start + width
	}
	b.WriteString(m.content[last:])
	m.viewport.SetContent(b.String())
}

// scrollTo brings line into view, leaving it where it is if already visible
func (m *pagerModel) scrollTo(line int) {
	if line < m.viewport.YOffset || line >= m.viewport.YOffset+m.viewport.Height {
		m.viewport.SetYOffset(max(line-m.viewport.Height/3, 0))
	}
}

func (m *pagerModel) clearSearch() {
	m.search.query = ""
	m.search.matches = nil
	m.search.current = 0
	m.search.input.Reset()
	m.viewport.SetContent(m.content)
}

// RunPager shows content full screen until the user quits
func RunPager(title, content string) error {
	_, err := tea.NewProgram(NewPager(title, content), tea.WithAltScreen()).Run()
	return err
}
