// Package tui is the interactive terminal frontend: browse saved
// collections, search them, snapshot the browser's current tabs and
// restore a collection back into the browser.
package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lotas/keeptabs/internal/mirror"
	"github.com/lotas/keeptabs/internal/naming"
	"github.com/lotas/keeptabs/internal/state"
	"github.com/lotas/keeptabs/internal/types"
)

// --- Messages ---

type refreshDoneMsg struct{ err error }

type sourceEventMsg struct{}

type restoreDoneMsg struct{ err error }

type suggestDoneMsg struct {
	suggestion naming.Suggestion
	err        error
}

type inputMode int

const (
	modeNormal inputMode = iota
	modeSearch
	modeSave
	modeConfirmDelete
)

// --- Model ---

type Model struct {
	store  *state.Store
	mir    *mirror.Mirror
	namer  *naming.Client
	events <-chan struct{}

	// Filtered collections; index 0 of the visible list is the live
	// tab view, collections follow.
	filtered []types.Collection
	cursor   int

	detail DetailModel

	mode       inputMode
	input      InputModel
	suggesting bool
	restoring  bool

	status string
	err    error
	width  int
	height int
}

// NewModel builds the app model. mir, namer and events may be nil when
// no browser source or API key is configured.
func NewModel(store *state.Store, mir *mirror.Mirror, namer *naming.Client, events <-chan struct{}) Model {
	m := Model{
		store:  store,
		mir:    mir,
		namer:  namer,
		events: events,
	}
	m.rebuild()
	return m
}

func (m Model) Init() tea.Cmd {
	var cmds []tea.Cmd
	if m.mir != nil {
		cmds = append(cmds, refreshCmd(m.mir))
	}
	if m.events != nil {
		cmds = append(cmds, listenEvents(m.events))
	}
	return tea.Batch(cmds...)
}

// --- Commands ---

func refreshCmd(mir *mirror.Mirror) tea.Cmd {
	return func() tea.Msg {
		return refreshDoneMsg{err: mir.RefreshAll(context.Background())}
	}
}

func listenEvents(events <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-events; !ok {
			return nil
		}
		return sourceEventMsg{}
	}
}

func restoreCmd(mir *mirror.Mirror, c types.Collection) tea.Cmd {
	return func() tea.Msg {
		return restoreDoneMsg{err: mir.Restore(context.Background(), c)}
	}
}

func suggestCmd(namer *naming.Client, tabs []types.Tab) tea.Cmd {
	return func() tea.Msg {
		s, err := namer.Suggest(context.Background(), tabs)
		return suggestDoneMsg{suggestion: s, err: err}
	}
}

// --- Update ---

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.detail.Width = m.width - m.listWidth() - 6
		m.detail.Height = m.height - 5
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case refreshDoneMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
		}
		return m, nil

	case sourceEventMsg:
		return m, tea.Batch(refreshCmd(m.mir), listenEvents(m.events))

	case restoreDoneMsg:
		m.restoring = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.status = "restored"
		}
		return m, nil

	case suggestDoneMsg:
		m.suggesting = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		if m.mode == modeSave && msg.suggestion.Name != "" {
			m.input.Value = msg.suggestion.Name
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.mode {

	case modeSearch:
		switch msg.String() {
		case "enter", "esc":
			if msg.String() == "esc" {
				m.store.SetSearchQuery("")
			}
			m.mode = modeNormal
			m.rebuild()
		case "ctrl+c":
			return m, tea.Quit
		default:
			m.input.Handle(msg)
			m.store.SetSearchQuery(m.input.Value)
			m.rebuild()
		}
		return m, nil

	case modeSave:
		switch msg.String() {
		case "enter":
			name := strings.TrimSpace(m.input.Value)
			if name == "" {
				return m, nil
			}
			m.store.SaveCurrentTabs(name, "")
			m.status = fmt.Sprintf("saved %q", name)
			m.mode = modeNormal
			m.rebuild()
		case "esc":
			m.mode = modeNormal
		case "ctrl+c":
			return m, tea.Quit
		case "tab":
			if m.namer != nil && !m.suggesting {
				m.suggesting = true
				return m, suggestCmd(m.namer, m.store.CurrentTabs())
			}
		default:
			m.input.Handle(msg)
		}
		return m, nil

	case modeConfirmDelete:
		if msg.String() == "y" {
			if c, ok := m.selectedCollection(); ok {
				if err := m.store.Delete(c.ID); err != nil {
					m.err = err
				} else {
					m.status = fmt.Sprintf("deleted %q", c.Name)
				}
			}
		}
		m.mode = modeNormal
		m.rebuild()
		return m, nil
	}

	// Normal mode.
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.filtered) {
			m.cursor++
		}
	case "enter":
		if c, ok := m.selectedCollection(); ok {
			m.store.SelectCollection(c.ID)
		} else {
			m.store.ClearSelection()
		}
	case "/":
		m.mode = modeSearch
		m.input = InputModel{Prompt: "search:", Value: m.store.SearchQuery()}
	case "s":
		if len(m.store.CurrentTabs()) == 0 {
			m.status = "no current tabs to save"
			return m, nil
		}
		m.mode = modeSave
		m.input = InputModel{Prompt: "save as:"}
	case "d":
		if _, ok := m.selectedCollection(); ok {
			m.mode = modeConfirmDelete
		}
	case "r":
		if m.mir == nil || m.restoring {
			return m, nil
		}
		if c, ok := m.selectedCollection(); ok {
			m.restoring = true
			m.status = ""
			return m, restoreCmd(m.mir, c)
		}
	case "R":
		if m.mir != nil {
			return m, refreshCmd(m.mir)
		}
	case "esc":
		if m.store.SearchQuery() != "" {
			m.store.SetSearchQuery("")
			m.rebuild()
		}
		m.status = ""
	}
	return m, nil
}

// --- Helpers ---

// rebuild refreshes the filtered collection list and clamps the cursor.
// Index 0 is the live tab view.
func (m *Model) rebuild() {
	m.filtered = m.store.Search(m.store.SearchQuery())
	if m.cursor > len(m.filtered) {
		m.cursor = len(m.filtered)
	}
}

func (m *Model) selectedCollection() (types.Collection, bool) {
	if m.cursor == 0 || m.cursor > len(m.filtered) {
		return types.Collection{}, false
	}
	return m.filtered[m.cursor-1], true
}

func (m Model) listWidth() int {
	return m.width * 40 / 100
}

// --- View ---

var (
	topBarStyle    = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("70"))
	errStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("160"))
	bottomBarStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Padding(0, 1)
	cursorStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	liveItemStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("70"))
	countStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func (m Model) View() string {
	if m.width == 0 {
		return "loading..."
	}

	topBar := topBarStyle.Render(m.topBarText())

	listWidth := m.listWidth()
	paneHeight := m.height - 5

	listBorder := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Width(listWidth).
		Height(paneHeight)

	detailBorder := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.width - listWidth - 6).
		Height(paneHeight)

	left := listBorder.Render(m.listView(listWidth, paneHeight))

	var detailContent string
	if c, ok := m.selectedCollection(); ok {
		detailContent = m.detail.ViewCollection(c)
	} else {
		detailContent = m.detail.ViewLiveTabs(m.store.CurrentTabs(), m.store.TabGroups())
	}
	right := detailBorder.Render(detailContent)

	panes := lipgloss.JoinHorizontal(lipgloss.Top, left, right)

	return lipgloss.JoinVertical(lipgloss.Left, topBar, panes, m.bottomBar())
}

func (m Model) topBarText() string {
	title := "keep-tabs"
	var src string
	if m.mir != nil {
		src = " · " + m.mir.Source().Name()
	}
	counts := fmt.Sprintf("  %d collections · %d saved tabs",
		len(m.store.Collections()), m.store.TotalTabCount())
	if q := m.store.SearchQuery(); q != "" {
		counts += fmt.Sprintf(" · search: %q", q)
	}
	return title + src + counts
}

func (m Model) listView(width, height int) string {
	var b strings.Builder

	live := fmt.Sprintf("Current tabs (%d)", len(m.store.CurrentTabs()))
	b.WriteString(m.listLine(0, liveItemStyle.Render(live)))

	maxRows := height - 2
	for i, c := range m.filtered {
		if i >= maxRows {
			b.WriteString(countStyle.Render(fmt.Sprintf("  … and %d more", len(m.filtered)-maxRows)))
			break
		}
		line := truncate(c.Name, width-12) + countStyle.Render(fmt.Sprintf(" (%d)", c.TabCount()))
		b.WriteString(m.listLine(i+1, line))
	}

	if len(m.filtered) == 0 {
		if m.store.SearchQuery() != "" {
			b.WriteString(countStyle.Render("  no matches"))
		} else {
			b.WriteString(countStyle.Render("  no collections yet — press s to save"))
		}
	}
	return b.String()
}

func (m Model) listLine(idx int, text string) string {
	if idx == m.cursor {
		return cursorStyle.Render("▸ ") + text + "\n"
	}
	return "  " + text + "\n"
}

func (m Model) bottomBar() string {
	switch m.mode {
	case modeSearch:
		return bottomBarStyle.Render(m.input.View() + "  (enter done · esc clear)")
	case modeSave:
		hint := "  (enter save · esc cancel"
		if m.namer != nil {
			hint += " · tab suggest"
		}
		hint += ")"
		if m.suggesting {
			hint += " …asking"
		}
		return bottomBarStyle.Render(m.input.View() + hint)
	case modeConfirmDelete:
		if c, ok := m.selectedCollection(); ok {
			return bottomBarStyle.Render(fmt.Sprintf("delete %q? y/n", c.Name))
		}
	}

	var parts []string
	if m.err != nil {
		parts = append(parts, errStyle.Render(truncate(m.err.Error(), m.width/2)))
	} else if m.status != "" {
		parts = append(parts, statusStyle.Render(m.status))
	}
	if m.restoring {
		parts = append(parts, "restoring…")
	}
	keys := "↑↓/jk navigate · / search · s save · r restore · d delete · q quit"
	if m.mir != nil {
		keys = "↑↓/jk navigate · / search · s save · r restore · R refresh · d delete · q quit"
	}
	parts = append(parts, keys)
	return bottomBarStyle.Render(strings.Join(parts, "  ·  "))
}
