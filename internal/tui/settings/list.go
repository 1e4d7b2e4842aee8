// Package settings is the interactive editor behind `ebref settings`.
package settings

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/erikgeiser/promptkit/selection"
)

// Entry is one editable setting. Entries with choices are edited with a
// selection prompt, all others with a text input.
type Entry struct {
	Key     string
	Value   string
	Choices []string
}

// ApplyFunc validates and persists a new value for key.
type ApplyFunc func(key, value string) error

type ListItem struct {
	entry Entry
}

func (i ListItem) Title() string       { return i.entry.Key }
func (i ListItem) Description() string { return i.entry.Value }
func (i ListItem) FilterValue() string { return i.entry.Key }

type listKeyMap struct {
	editItem      key.Binding
	exitInputMode key.Binding
	toggleHelp    key.Binding
}

func newListKeyMap() *listKeyMap {
	return &listKeyMap{
		editItem: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "edit setting"),
		),
		exitInputMode: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel edit"),
		),
		toggleHelp: key.NewBinding(
			key.WithKeys("H"),
			key.WithHelp("H", "toggle help"),
		),
	}
}

type ListModel struct {
	list  list.Model
	keys  *listKeyMap
	apply ApplyFunc

	input       textinput.Model
	inputActive bool

	sel       *selection.Model[string]
	selActive bool

	editing string
	status  string
}

func NewListModel(entries []Entry, apply ApplyFunc) ListModel {
	keys := newListKeyMap()

	items := make([]list.Item, 0, len(entries))
	for _, e := range entries {
		items = append(items, ListItem{entry: e})
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Reader settings"
	l.Styles.Title = titleStyle
	l.AdditionalShortHelpKeys = func() []key.Binding {
		return []key.Binding{keys.editItem}
	}
	l.AdditionalFullHelpKeys = func() []key.Binding {
		return []key.Binding{keys.editItem, keys.exitInputMode, keys.toggleHelp}
	}

	in := textinput.New()
	in.Cursor.Style = cursorStyle
	in.PromptStyle = focusedStyle
	in.TextStyle = focusedStyle

	return ListModel{
		list:  l,
		keys:  keys,
		apply: apply,
		input: in,
	}
}

func (m ListModel) Init() tea.Cmd {
	return nil
}

func (m ListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		h, v := appStyle.GetFrameSize()
		m.list.SetSize(msg.Width-h, msg.Height-v)

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}

		if m.selActive {
			return m.updateSelection(msg)
		}
		if m.inputActive {
			return m.updateInput(msg)
		}

		switch {
		case key.Matches(msg, m.keys.editItem):
			return m.startEdit()
		case key.Matches(msg, m.keys.toggleHelp):
			m.list.SetShowHelp(!m.list.ShowHelp())
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m ListModel) startEdit() (tea.Model, tea.Cmd) {
	item, ok := m.list.SelectedItem().(ListItem)
	if !ok {
		return m, nil
	}
	m.editing = item.entry.Key

	if len(item.entry.Choices) > 0 {
		sel := selection.New("Select a value for "+item.entry.Key+".", item.entry.Choices)
		sel.Filter = nil
		m.sel = selection.NewModel(sel)
		m.selActive = true
		return m, m.sel.Init()
	}

	m.input.SetValue(item.entry.Value)
	m.input.CursorEnd()
	m.inputActive = true
	return m, m.input.Focus()
}

func (m ListModel) updateSelection(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.exitInputMode):
		m.selActive = false
		return m, nil
	case key.Matches(msg, m.keys.editItem):
		value, err := m.sel.Value()
		if err != nil {
			m.selActive = false
			return m, nil
		}
		cmd := m.save(value)
		m.selActive = false
		return m, cmd
	}

	_, cmd := m.sel.Update(msg)
	return m, cmd
}

func (m ListModel) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.exitInputMode):
		m.input.Reset()
		m.input.Blur()
		m.inputActive = false
		return m, nil
	case key.Matches(msg, m.keys.editItem):
		value := m.input.Value()
		if err := m.apply(m.editing, value); err != nil {
			m.status = fmt.Sprintf("Failed to update %s: %v", m.editing, err)
			return m, m.list.NewStatusMessage(errorMessageStyle(m.status))
		}
		cmd := m.saved(value)
		m.input.Reset()
		m.input.Blur()
		m.inputActive = false
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// save applies a value picked from a selection prompt.
func (m *ListModel) save(value string) tea.Cmd {
	if err := m.apply(m.editing, value); err != nil {
		m.status = fmt.Sprintf("Failed to update %s: %v", m.editing, err)
		return m.list.NewStatusMessage(errorMessageStyle(m.status))
	}
	return m.saved(value)
}

func (m *ListModel) saved(value string) tea.Cmd {
	for i, it := range m.list.Items() {
		item, ok := it.(ListItem)
		if !ok || item.entry.Key != m.editing {
			continue
		}
		item.entry.Value = value
		m.list.SetItem(i, item)
	}
	m.status = "Updated and saved: " + m.editing
	return m.list.NewStatusMessage(statusMessageStyle(m.status))
}

func (m ListModel) View() string {
	if m.selActive {
		return appStyle.Render(m.sel.View())
	}
	if m.inputActive {
		return appStyle.Render(inputStyle.Render(
			textStyle.Render("Editing: "+m.editing) + "\n" + m.input.View(),
		))
	}
	return appStyle.Render(m.list.View())
}

// Run opens the editor full screen until the user quits.
func Run(entries []Entry, apply ApplyFunc) error {
	if _, err := tea.NewProgram(NewListModel(entries, apply), tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("settings editor failed: %w", err)
	}
	return nil
}
