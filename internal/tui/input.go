package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// InputModel is a minimal single-line text input.
type InputModel struct {
	Prompt string
	Value  string
}

func (i *InputModel) Handle(msg tea.KeyMsg) {
	switch msg.Type {
	case tea.KeyBackspace:
		if len(i.Value) > 0 {
			runes := []rune(i.Value)
			i.Value = string(runes[:len(runes)-1])
		}
	case tea.KeySpace:
		i.Value += " "
	case tea.KeyRunes:
		i.Value += string(msg.Runes)
	}
}

var (
	inputPromptStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	inputCursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func (i InputModel) View() string {
	var b strings.Builder
	b.WriteString(inputPromptStyle.Render(i.Prompt))
	b.WriteString(" ")
	b.WriteString(i.Value)
	b.WriteString(inputCursorStyle.Render("█"))
	return b.String()
}
