package cli

import (
	"fmt"
	"strings"

	"github.com/bastiangx/tagserve/pkg/autocomplete"
	"github.com/bastiangx/tagserve/pkg/suggest"
	"github.com/charmbracelet/lipgloss"
)

var (
	stateStyle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#907aa9", Dark: "#c4a7e7"})
	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	popupStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.AdaptiveColor{Light: "#9893a5", Dark: "#6e6a86"}).
			Padding(0, 1)
	selectedStyle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#286983", Dark: "#9ccfd8"})
	historyStyle = lipgloss.NewStyle().Italic(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#797593", Dark: "#908caa"})
	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Render draws the field with a cursor mark and, below it, the popup.
func Render(v autocomplete.View) string {
	var b strings.Builder

	cursor := max(0, min(v.Cursor, len(v.Value)))
	b.WriteString(stateStyle.Render("[" + v.State.String() + "]"))
	b.WriteString(" ")
	b.WriteString(valueStyle.Render(v.Value[:cursor] + "▏" + v.Value[cursor:]))

	if len(v.Items) == 0 {
		return b.String()
	}

	rows := make([]string, 0, len(v.Items))
	for i, it := range v.Items {
		rows = append(rows, renderItem(i, it, i == v.Selected))
	}
	b.WriteString("\n")
	b.WriteString(popupStyle.Render(strings.Join(rows, "\n")))
	return b.String()
}

func renderItem(i int, it suggest.Item, selected bool) string {
	if it.Kind == suggest.KindSeparator {
		return dimStyle.Render("────")
	}

	mark := "  "
	if selected {
		mark = "› "
	}
	row := fmt.Sprintf("%s%2d. %s", mark, i+1, it.Label())

	switch {
	case selected:
		return selectedStyle.Render(row)
	case it.Kind == suggest.KindHistory:
		return historyStyle.Render(row)
	default:
		return row
	}
}
