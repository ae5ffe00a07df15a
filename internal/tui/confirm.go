// Package tui renders import previews and runs the interactive confirmation
// step of an import.
package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jask/moneyimport/internal/service"
)

// ConfirmModel lets the user pick which previewed files to commit.
type ConfirmModel struct {
	preview   service.PreviewResult
	selected  []bool
	cursor    int
	done      bool
	confirmed bool
	width     int
	keys      keyMap
}

// NewConfirmModel starts with every importable file selected.
func NewConfirmModel(p service.PreviewResult) ConfirmModel {
	m := ConfirmModel{preview: p, selected: make([]bool, len(p.Files)), keys: defaultKeys()}
	for i, f := range p.Files {
		m.selected[i] = importable(f)
	}
	return m
}

func importable(f service.FilePreview) bool { return f.Error == "" }

func (m ConfirmModel) Init() tea.Cmd { return nil }

func (m ConfirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Cancel):
			m.done = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Confirm):
			if len(m.Included()) == 0 {
				return m, nil
			}
			m.done, m.confirmed = true, true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.selected)-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Toggle):
			if m.cursor < len(m.selected) && importable(m.preview.Files[m.cursor]) {
				m.selected[m.cursor] = !m.selected[m.cursor]
			}
		case key.Matches(msg, m.keys.All):
			all := !m.allSelected()
			for i, f := range m.preview.Files {
				m.selected[i] = all && importable(f)
			}
		}
	}
	return m, nil
}

func (m ConfirmModel) allSelected() bool {
	for i, f := range m.preview.Files {
		if importable(f) && !m.selected[i] {
			return false
		}
	}
	return true
}

func (m ConfirmModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	b.WriteString(RenderPreview(m.preview, m.width))
	b.WriteString("\n\n")
	b.WriteString(titleStyle.Render("Files to import"))
	b.WriteString("\n")
	newRows := 0
	for i, f := range m.preview.Files {
		prefix := "  "
		if i == m.cursor {
			prefix = cursorStyle.Render("> ")
		}
		box := "[ ]"
		switch {
		case !importable(f):
			box = mutedStyle.Render("[-]")
		case m.selected[i]:
			box = creditStyle.Render("[x]")
			newRows += f.Counts.New
		}
		fmt.Fprintf(&b, "%s%s %s  %s\n", prefix, box, padRight(f.Filename, 32), mutedStyle.Render(fmt.Sprintf("%d new", f.Counts.New)))
	}
	b.WriteString(labelStyle.Render(fmt.Sprintf("about %d new transactions selected", newRows)))
	b.WriteString("\n")
	b.WriteString(renderFooter(m.keys.bindings()))
	return b.String()
}

// Confirmed reports whether the user accepted the import.
func (m ConfirmModel) Confirmed() bool { return m.confirmed }

// Included lists the selected filenames in upload order.
func (m ConfirmModel) Included() []string {
	out := []string{}
	for i, f := range m.preview.Files {
		if m.selected[i] {
			out = append(out, f.Filename)
		}
	}
	return out
}

// Confirm runs the selection step on in/out and returns the chosen files.
// ok is false when the user cancelled.
func Confirm(p service.PreviewResult, in io.Reader, out io.Writer) (included []string, ok bool, err error) {
	final, err := tea.NewProgram(NewConfirmModel(p), tea.WithInput(in), tea.WithOutput(out)).Run()
	if err != nil {
		return nil, false, err
	}
	m := final.(ConfirmModel)
	return m.Included(), m.Confirmed(), nil
}
