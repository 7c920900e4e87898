package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/kalambet/jobwatch/internal/sites"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	nameStyle  = lipgloss.NewStyle().Bold(true)
	flashStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	bulkStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
	selectedCardStyle = cardStyle.BorderForeground(lipgloss.Color("#5B8DEF"))

	formStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#5B8DEF")).
			Padding(1, 2)

	badgeStyles = map[sites.Status]lipgloss.Style{
		sites.StatusIdle:     lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA")),
		sites.StatusScanning: lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true),
		sites.StatusSuccess:  lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true),
		sites.StatusFailed:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true),
	}
)

// cardHeight is the rendered height of one card including its border.
const cardHeight = 5

// View implements tea.Model.
func (m *Model) View() string {
	switch m.mode {
	case modeAdd, modeRename:
		return m.viewForm()
	case modeResult:
		return m.viewResult()
	}

	var b strings.Builder
	b.WriteString(m.viewHeader())
	b.WriteString("\n\n")

	if len(m.entries) == 0 {
		b.WriteString(mutedStyle.Render("No sites yet. Press n to add a careers page."))
		b.WriteString("\n")
	} else {
		from, to := m.visibleRange()
		for i := from; i < to; i++ {
			b.WriteString(m.viewCard(m.entries[i], i == m.cursor))
			b.WriteString("\n")
		}
	}

	if m.mode == modeConfirmDelete {
		if e, ok := m.selected(); ok {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Delete %s? (y/n)", e.Name)))
			b.WriteString("\n")
		}
	}
	b.WriteString(m.viewFooter())
	return b.String()
}

func (m *Model) viewHeader() string {
	head := titleStyle.Render("jobwatch") + mutedStyle.Render(fmt.Sprintf("  %d sites", len(m.entries)))
	if m.reg.BulkScanning() {
		head += "  " + bulkStyle.Render("● scanning all sites")
	}
	return head
}

func (m *Model) viewFooter() string {
	var b strings.Builder
	if m.flash != "" {
		style := flashStyle
		if m.flashErr {
			style = errorStyle
		}
		b.WriteString(style.Render(m.flash))
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

// visibleRange returns the half-open window of cards that fits the terminal
// and contains the cursor.
func (m *Model) visibleRange() (int, int) {
	n := max(1, (m.height-6)/cardHeight)
	if n >= len(m.entries) {
		return 0, len(m.entries)
	}
	from := max(0, m.cursor-n/2)
	to := min(len(m.entries), from+n)
	return to - n, to
}

func (m *Model) viewCard(e sites.Entry, selected bool) string {
	width := max(30, m.width-4)
	style := cardStyle
	if selected {
		style = selectedCardStyle
	}

	top := nameStyle.Render(e.Name) + "  " + mutedStyle.Render(e.Domain())
	gap := width - 4 - lipgloss.Width(top) - lipgloss.Width(badge(e.Status))
	if gap < 1 {
		gap = 1
	}
	top += strings.Repeat(" ", gap) + badge(e.Status)

	keywords := "all openings"
	if kw := e.KeywordList(); len(kw) > 0 {
		keywords = strings.Join(kw, " · ")
	}

	lines := []string{
		top,
		mutedStyle.Render("keywords: ") + keywords,
		mutedStyle.Render("checked:  " + lastChecked(e.LastChecked)),
	}
	return style.Width(width).Render(strings.Join(lines, "\n"))
}

func badge(s sites.Status) string {
	style, ok := badgeStyles[s]
	if !ok {
		style = badgeStyles[sites.StatusIdle]
	}
	label := strings.ToUpper(string(s))
	if s == sites.StatusScanning {
		label += "…"
	}
	return style.Render(label)
}

func lastChecked(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func (m *Model) viewForm() string {
	title := "New site"
	labels := []string{"Name", "URL", "Keywords"}
	if m.mode == modeRename {
		title = "Rename site"
		labels = []string{"Name"}
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")
	for i, in := range m.inputs {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("%-9s", labels[i])))
		b.WriteString(in.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("enter next/save · tab switch field · esc cancel"))

	out := formStyle.Render(b.String())
	if m.flash != "" && m.flashErr {
		out += "\n" + errorStyle.Render(m.flash)
	}
	return out
}

func (m *Model) viewResult() string {
	header := titleStyle.Render("Scan result")
	if e, ok := m.selected(); ok {
		header += mutedStyle.Render("  " + e.Name)
	}
	footer := mutedStyle.Render(fmt.Sprintf("%3.f%% · ↑/↓ scroll · o open · e export · esc back", m.viewport.ScrollPercent()*100))
	if m.flash != "" {
		style := flashStyle
		if m.flashErr {
			style = errorStyle
		}
		footer = style.Render(m.flash) + "\n" + footer
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, "", m.viewport.View(), "", footer)
}

func renderResult(e sites.Entry, res sites.ScanResult, width int) string {
	var b strings.Builder
	b.WriteString(nameStyle.Render(e.Name))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(e.URL + " · checked " + lastChecked(e.LastChecked)))
	b.WriteString("\n\n")
	b.WriteString(lipgloss.NewStyle().Width(max(20, width)).Render(res.Text))
	b.WriteString("\n")

	if len(res.Sources) > 0 {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render("Sources"))
		b.WriteString("\n")
		for i, s := range res.Sources {
			fmt.Fprintf(&b, "%2d. %s\n    %s\n", i+1, s.Title, mutedStyle.Render(s.URI))
		}
	}
	return b.String()
}
