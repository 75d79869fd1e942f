package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/opcda/store"
)

// defaultTableHeight is the row count used before the first resize.
const defaultTableHeight = 15

var valueColumns = []table.Column{
	{Title: "Path", Width: 32},
	{Title: "Value", Width: 16},
	{Title: "Quality", Width: 12},
	{Title: "Type", Width: 10},
	{Title: "Timestamp", Width: 24},
}

// ValuesModel is a Bubble Tea model listing the tags of one read batch.
type ValuesModel struct {
	records    []store.TagRecord
	visible    []int
	errorsOnly bool
	table      table.Model
	width      int
	height     int
	quitting   bool
}

// NewValuesModel creates a values model over records.
func NewValuesModel(records []store.TagRecord) ValuesModel {
	t := table.New(
		table.WithColumns(valueColumns),
		table.WithFocused(true),
		table.WithHeight(defaultTableHeight),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(muted).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(accent)
	t.SetStyles(s)

	m := ValuesModel{records: records, table: t}
	m.refresh()
	return m
}

// refresh rebuilds the visible rows from the current filter.
func (m *ValuesModel) refresh() {
	m.visible = make([]int, 0, len(m.records))
	rows := make([]table.Row, 0, len(m.records))
	for i, r := range m.records {
		if m.errorsOnly && r.Error == "" {
			continue
		}
		m.visible = append(m.visible, i)
		rows = append(rows, table.Row{r.BrowsePath, r.Value, r.QualityString, r.VarType, r.Timestamp})
	}
	m.table.SetRows(rows)
	m.table.SetCursor(0)
}

// Selected returns the record under the cursor.
func (m ValuesModel) Selected() (store.TagRecord, bool) {
	c := m.table.Cursor()
	if c < 0 || c >= len(m.visible) {
		return store.TagRecord{}, false
	}
	return m.records[m.visible[c]], true
}

// Init implements tea.Model.
func (m ValuesModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ValuesModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		// title, border, detail and help lines
		if h := msg.Height - 10; h > 3 {
			m.table.SetHeight(h)
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.ErrorsOnly):
			m.errorsOnly = !m.errorsOnly
			m.refresh()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m ValuesModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	failed := 0
	for _, r := range m.records {
		if r.Error != "" {
			failed++
		}
	}
	title := fmt.Sprintf("Read Values (%d tags, %d failed)", len(m.records), failed)
	if m.errorsOnly {
		title += " [errors only]"
	}
	b.WriteString(TitleStyle.Render(title))
	b.WriteString("\n")
	b.WriteString(BoxStyle.Render(m.table.View()))
	b.WriteString("\n")
	b.WriteString(m.detail())

	help := HelpStyle.Render("↑/↓ move • e toggle errors only • q quit")
	return b.String() + "\n" + help
}

// detail describes the selected record on one line.
func (m ValuesModel) detail() string {
	r, ok := m.Selected()
	if !ok {
		return DetailStyle.Render("(no tags)")
	}
	line := fmt.Sprintf("%s  %s  rights=%s", r.ItemID, r.FormattedCode, r.AccessRights)
	if r.Error != "" {
		return DetailStyle.Render(line) + "  " + ErrorStyle.Render(r.Error)
	}
	return DetailStyle.Render(line) + "  " + QualityStyle(r.QualityString).Render(r.QualityString)
}

// keyMap defines key bindings.
type keyMap struct {
	Quit       key.Binding
	ErrorsOnly key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	ErrorsOnly: key.NewBinding(
		key.WithKeys("e"),
		key.WithHelp("e", "errors only"),
	),
}

// RunValuesTUI runs the values viewer. data must be []store.TagRecord.
func RunValuesTUI(data any) error {
	records, ok := data.([]store.TagRecord)
	if !ok {
		return fmt.Errorf("invalid data type for %s: %T", ViewReadValues, data)
	}
	p := tea.NewProgram(NewValuesModel(records), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderValuesStatic renders the values view without a running program.
func RenderValuesStatic(records []store.TagRecord) string {
	m := NewValuesModel(records)
	m.width = 80
	m.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(m.View())
}
