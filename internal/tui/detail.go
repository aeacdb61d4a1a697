package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lotas/keeptabs/internal/types"
)

// DetailModel renders the right-hand pane: the tabs of whatever is
// selected on the left.
type DetailModel struct {
	Width  int
	Height int
}

var (
	detailTitleStyle = lipgloss.NewStyle().Bold(true)
	detailMetaStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	detailURLStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	pinStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("178"))
	tagStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
)

func (d DetailModel) ViewCollection(c types.Collection) string {
	var b strings.Builder

	b.WriteString(detailTitleStyle.Render(c.Name))
	b.WriteString("\n")
	if c.Description != "" {
		b.WriteString(c.Description)
		b.WriteString("\n")
	}

	meta := fmt.Sprintf("%d tabs · saved %s", c.TabCount(), c.CreatedAt.Format("2006-01-02 15:04"))
	if !c.UpdatedAt.Equal(c.CreatedAt) {
		meta += fmt.Sprintf(" · updated %s", c.UpdatedAt.Format("2006-01-02 15:04"))
	}
	b.WriteString(detailMetaStyle.Render(meta))
	b.WriteString("\n")

	if c.Category != "" {
		b.WriteString(detailMetaStyle.Render("category: " + c.Category))
		b.WriteString("\n")
	}
	if len(c.Tags) > 0 {
		b.WriteString(tagStyle.Render("#" + strings.Join(c.Tags, " #")))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(d.viewTabs(c.Tabs))
	return b.String()
}

func (d DetailModel) ViewLiveTabs(tabs []types.Tab, groups []types.TabGroup) string {
	var b strings.Builder
	b.WriteString(detailTitleStyle.Render("Current tabs"))
	b.WriteString("\n")
	meta := fmt.Sprintf("%d open", len(tabs))
	if len(groups) > 0 {
		meta += fmt.Sprintf(" · %d groups", len(groups))
	}
	b.WriteString(detailMetaStyle.Render(meta))
	b.WriteString("\n\n")
	b.WriteString(d.viewTabs(tabs))
	return b.String()
}

func (d DetailModel) viewTabs(tabs []types.Tab) string {
	if len(tabs) == 0 {
		return detailMetaStyle.Render("no tabs")
	}

	// Leave room for the header lines above.
	maxRows := d.Height - 6
	if maxRows < 1 {
		maxRows = 1
	}

	var b strings.Builder
	for i, t := range tabs {
		if i >= maxRows {
			b.WriteString(detailMetaStyle.Render(fmt.Sprintf("… and %d more", len(tabs)-maxRows)))
			break
		}
		title := t.Title
		if t.Pinned {
			title = pinStyle.Render("⁕ ") + title
		}
		b.WriteString(truncate(title, d.Width-4))
		b.WriteString("\n")
		b.WriteString(detailURLStyle.Render("  " + truncate(t.URL, d.Width-6)))
		b.WriteString("\n")
	}
	return b.String()
}

func truncate(s string, max int) string {
	if max < 1 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
