package main

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/lushly-dev/afd/pkg/tui"
)

// toolItem adapts a toolRow to list.Item for the bubbles list delegate.
type toolItem struct{ row toolRow }

func (i toolItem) Title() string { return i.row.Name }
func (i toolItem) Description() string {
	if i.row.Mutation {
		return "⚠ mutation — " + i.row.Description
	}
	return i.row.Description
}
func (i toolItem) FilterValue() string { return i.row.Name + " " + i.row.Description }

// paletteModel is the bubbletea model backing `afd shell`'s "palette"
// command — the interactive tool picker that is the `palette` surface from
// the exposure map.
type paletteModel struct {
	list     list.Model
	selected *toolRow
	quitting bool
}

func newPaletteModel(rows []toolRow) paletteModel {
	items := make([]list.Item, 0, len(rows))
	for _, r := range rows {
		items = append(items, toolItem{row: r})
	}
	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "afd command palette"
	l.Styles.Title = lipgloss.NewStyle().Bold(true).Foreground(tui.ColorPrimary)
	return paletteModel{list: l}
}

func (m paletteModel) Init() tea.Cmd { return nil }

func (m paletteModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height-2)
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			if sel, ok := m.list.SelectedItem().(toolItem); ok {
				row := sel.row
				m.selected = &row
			}
			m.quitting = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m paletteModel) View() string {
	if m.quitting {
		return ""
	}
	return m.list.View()
}

// runPalette opens the interactive tool picker and, on selection, invokes
// the chosen command with an empty JSON argument object ({}); no argument
// body is prompted for.
func runPalette(cmd *cobra.Command) error {
	rows, err := listTools(cmd.Context())
	if err != nil {
		return err
	}

	model := newPaletteModel(rows)
	p := tea.NewProgram(model, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return err
	}

	result, ok := final.(paletteModel)
	if !ok || result.selected == nil {
		return nil
	}

	fmt.Println(tui.SecondaryText.Render(result.selected.Name))
	fmt.Println(tui.MutedText.Render(result.selected.Description))

	out, err := callCommand(cmd.Context(), result.selected.Name, json.RawMessage(`{}`))
	if err != nil {
		fmt.Println(tui.ErrorText.Render(err.Error()))
		return nil
	}
	printEnvelope(out, true)
	return nil
}
