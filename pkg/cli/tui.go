package cli

import (
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the color scheme for the TUI.
type Theme struct {
	Primary lipgloss.Color // Main accent color
	Dim     lipgloss.Color // Dimmed/help text color
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Border  lipgloss.Style
	Help    lipgloss.Style
	Interim lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Padding(0, 1),
		Label:   lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Border:  lipgloss.NewStyle().Foreground(t.Primary),
		Help:    lipgloss.NewStyle().Foreground(t.Dim),
		Interim: lipgloss.NewStyle().Italic(true).Foreground(t.Dim),
	}
}

// Section represents a labeled section with content.
type Section struct {
	Label   string
	Content func() []string

	// Weight is the share of the free height this section gets relative
	// to the others. Zero counts as one.
	Weight int
}

// Frame renders a complete TUI frame with title, sections, and help text.
type Frame struct {
	Styles   Styles
	Title    string
	Status   string
	Sections []Section
	Help     string
}

// Render renders the frame to a string.
func (f Frame) Render(width, height int) string {
	if width < 8 || height < 4 {
		return "Loading..."
	}

	bc := f.Styles.Border
	maxContentWidth := width - 4

	var lines []string
	lines = append(lines, bc.Render("╭"+strings.Repeat("─", width-2)+"╮"))

	// │ title [status]<padding> │
	title := f.Styles.Title.Render(f.Title)
	status := f.Styles.Help.Render("[" + f.Status + "]")
	padding := max(0, width-5-lipgloss.Width(title)-lipgloss.Width(status))
	lines = append(lines, bc.Render("│")+" "+title+" "+status+
		strings.Repeat(" ", padding)+" "+bc.Render("│"))
	lines = append(lines, bc.Render("│")+strings.Repeat(" ", width-2)+bc.Render("│"))

	// Fixed rows: top, title, spacer, one label per section, bottom, help.
	heights := sectionHeights(f.Sections, height-5-len(f.Sections))
	for i, sec := range f.Sections {
		lines = append(lines, f.renderSection(bc, sec.Label, sec.Content(), heights[i], width, maxContentWidth)...)
	}

	lines = append(lines, bc.Render("╰"+strings.Repeat("─", width-2)+"╯"))
	lines = append(lines, f.Styles.Help.Render(f.Help))
	return strings.Join(lines, "\n")
}

// sectionHeights splits avail rows by weight, giving every section at
// least two rows and the rounding remainder to the first one.
func sectionHeights(sections []Section, avail int) []int {
	heights := make([]int, len(sections))
	if len(sections) == 0 {
		return heights
	}
	total := 0
	for _, s := range sections {
		total += max(s.Weight, 1)
	}
	used := 0
	for i, s := range sections {
		heights[i] = max(avail*max(s.Weight, 1)/total, 2)
		used += heights[i]
	}
	if rest := avail - used; rest > 0 {
		heights[0] += rest
	}
	return heights
}

func (f Frame) renderSection(bc lipgloss.Style, label string, content []string, height, width, maxContentWidth int) []string {
	var lines []string

	// ├─Label──────┤
	labelText := f.Styles.Label.Render(label)
	padding := max(0, width-3-lipgloss.Width(labelText))
	lines = append(lines, bc.Render("├")+bc.Render("─")+labelText+
		bc.Render(strings.Repeat("─", padding))+bc.Render("┤"))

	// Tail of the content.
	start := max(0, len(content)-height)
	for i := 0; i < height; i++ {
		text := ""
		if idx := start + i; idx < len(content) {
			text = content[idx]
		}
		if maxContentWidth > 1 && lipgloss.Width(text) > maxContentWidth {
			text = truncateString(text, maxContentWidth-1) + "…"
		}
		lines = append(lines, bc.Render("│")+" "+text+
			strings.Repeat(" ", max(0, maxContentWidth-lipgloss.Width(text)))+" "+bc.Render("│"))
	}
	return lines
}

// truncateString truncates s to the given display width, never splitting
// a multi-byte character.
func truncateString(s string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	currentWidth := 0
	for i, r := range runes {
		w := lipgloss.Width(string(r))
		if currentWidth+w > width {
			return string(runes[:i])
		}
		currentWidth += w
	}
	return s
}

// Transcript accumulates live transcription for display: finalized lines
// plus the current interim hypothesis. It is safe for concurrent use.
type Transcript struct {
	mu       sync.Mutex
	max      int
	finals   []string
	interim  string
	rendered func(string) string
}

// NewTranscript keeps at most maxLines finalized lines. style renders the
// interim line; nil leaves it plain.
func NewTranscript(maxLines int, style *lipgloss.Style) *Transcript {
	t := &Transcript{max: max(maxLines, 1), rendered: func(s string) string { return s }}
	if style != nil {
		st := *style
		t.rendered = func(s string) string { return st.Render(s) }
	}
	return t
}

// Update records a result. Final text is appended and clears the interim
// line; non-final text replaces it. Blank final results only clear.
func (t *Transcript) Update(text string, final bool) {
	text = strings.TrimSpace(text)
	t.mu.Lock()
	defer t.mu.Unlock()
	if !final {
		t.interim = text
		return
	}
	t.interim = ""
	if text == "" {
		return
	}
	t.finals = append(t.finals, text)
	if len(t.finals) > t.max {
		t.finals = t.finals[len(t.finals)-t.max:]
	}
}

// Lines returns the finalized lines followed by the interim line, if any.
func (t *Transcript) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := append([]string(nil), t.finals...)
	if t.interim != "" {
		out = append(out, t.rendered(t.interim+" …"))
	}
	return out
}

// Finals returns a copy of the finalized lines.
func (t *Transcript) Finals() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.finals...)
}
