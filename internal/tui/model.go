// Package tui is the bubbletea control surface described by the runner's
// TUI contract: one Kanban-style column per project (generalizing the
// teacher's fixed todo/inProgress/done board to N project columns), a
// glamour-rendered detail popup, and commands sent back to the runner loop
// over an internal/control.Command channel.
package tui

import (
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"brain/internal/control"
	"brain/internal/task"
)

// editDoneMsg reports the outcome of a suspended $EDITOR session.
type editDoneMsg struct {
	project, taskID string
	err             error
}

type snapshotMsg control.Snapshot

// Model is the root bubbletea model. One list.Model column is kept per
// project, rebuilt from each incoming Snapshot the same way the teacher's
// BoardModel rebuilds its three status columns.
type Model struct {
	snapshots <-chan control.Snapshot
	commands  chan<- control.Command

	projects []string // stable left-to-right column order
	columns  map[string]list.Model
	latest   control.Snapshot

	focused int
	width   int
	height  int

	showDetail bool
	detail     string
	renderer   *glamour.TermRenderer

	quitting bool
	status   string
}

// New builds a Model that receives read-model updates on snapshots and
// issues commands on commands. Both are owned by the caller (typically
// cmd/brain wiring a runnerloop.Loop's Commands() channel and a goroutine
// that periodically reads the loop's Snapshot and forwards it).
func New(snapshots <-chan control.Snapshot, commands chan<- control.Command) Model {
	renderer, _ := glamour.NewTermRenderer(glamour.WithAutoStyle())
	return Model{
		snapshots: snapshots,
		commands:  commands,
		columns:   map[string]list.Model{},
		renderer:  renderer,
	}
}

func (m Model) Init() tea.Cmd {
	return m.listen()
}

func (m Model) listen() tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-m.snapshots
		if !ok {
			return nil
		}
		return snapshotMsg(snap)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case snapshotMsg:
		m.applySnapshot(control.Snapshot(msg))
		return m, m.listen()

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resizeColumns()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case editDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("edit of %s failed: %v", msg.taskID, msg.err)
		} else {
			m.status = ""
		}
		m.send(control.Command{Kind: control.CmdRefresh})
		return m, nil
	}

	return m, nil
}

func (m *Model) applySnapshot(snap control.Snapshot) {
	m.latest = snap

	seen := make(map[string]struct{}, len(snap.Projects))
	for _, ps := range snap.Projects {
		seen[ps.Project] = struct{}{}
		items := make([]list.Item, 0, len(ps.Tasks))
		for _, t := range ps.Tasks {
			items = append(items, taskItem{task: t})
		}

		col, ok := m.columns[ps.Project]
		if !ok {
			col = list.New(items, list.NewDefaultDelegate(), 0, 0)
			col.SetShowHelp(false)
		} else {
			col.SetItems(items)
		}
		title := ps.Project
		if ps.Paused {
			title += " (paused)"
		}
		col.Title = title
		m.columns[ps.Project] = col
	}

	m.projects = m.projects[:0]
	for p := range seen {
		m.projects = append(m.projects, p)
	}
	sort.Strings(m.projects)

	if m.focused >= len(m.projects) {
		m.focused = 0
	}
	m.resizeColumns()
}

func (m *Model) resizeColumns() {
	if len(m.projects) == 0 || m.width == 0 {
		return
	}
	colWidth := m.width/len(m.projects) - 4
	colHeight := m.height - 6
	for _, p := range m.projects {
		col := m.columns[p]
		col.SetSize(colWidth, colHeight)
		m.columns[p] = col
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showDetail {
		switch msg.String() {
		case "esc", "enter", "q":
			m.showDetail = false
		}
		return m, nil
	}

	switch msg.String() {
	case "ctrl+c", "q":
		m.quitting = true
		return m, tea.Quit

	case "tab", "right", "l":
		if len(m.projects) > 0 {
			m.focused = (m.focused + 1) % len(m.projects)
		}
		return m, nil

	case "shift+tab", "left", "h":
		if len(m.projects) > 0 {
			m.focused--
			if m.focused < 0 {
				m.focused = len(m.projects) - 1
			}
		}
		return m, nil

	case "r":
		m.send(control.Command{Kind: control.CmdRefresh})
		return m, nil

	case "p":
		return m, m.togglePauseFocused()

	case "c":
		return m, m.cancelSelected()

	case "enter":
		m.openDetail()
		return m, nil

	case "e":
		return m, m.editSelected()
	}

	return m.updateFocusedColumn(msg)
}

// editSelected suspends the bubbletea program to run $EDITOR/$VISUAL on the
// selected task's file, the same pattern the teacher uses to hand the
// terminal to an external editor for commit messages.
func (m Model) editSelected() tea.Cmd {
	t, ok := m.selectedTask()
	if !ok {
		return nil
	}
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		editor = "vi"
	}

	c := exec.Command(editor, t.Path)
	return tea.ExecProcess(c, func(err error) tea.Msg {
		return editDoneMsg{project: t.Project, taskID: t.ID, err: err}
	})
}

func (m Model) updateFocusedColumn(msg tea.Msg) (tea.Model, tea.Cmd) {
	if len(m.projects) == 0 {
		return m, nil
	}
	p := m.projects[m.focused]
	col := m.columns[p]
	var cmd tea.Cmd
	col, cmd = col.Update(msg)
	m.columns[p] = col
	return m, cmd
}

func (m Model) send(cmd control.Command) {
	if m.commands == nil {
		return
	}
	select {
	case m.commands <- cmd:
	default:
	}
}

func (m Model) focusedProject() (control.ProjectSnapshot, bool) {
	if len(m.projects) == 0 {
		return control.ProjectSnapshot{}, false
	}
	name := m.projects[m.focused]
	for _, ps := range m.latest.Projects {
		if ps.Project == name {
			return ps, true
		}
	}
	return control.ProjectSnapshot{}, false
}

func (m Model) selectedTask() (*task.Resolved, bool) {
	p := m.projects[m.focused]
	col := m.columns[p]
	it, ok := col.SelectedItem().(taskItem)
	if !ok {
		return nil, false
	}
	return it.task, true
}

func (m Model) togglePauseFocused() tea.Cmd {
	ps, ok := m.focusedProject()
	if !ok {
		return nil
	}
	kind := control.CmdPause
	if ps.Paused {
		kind = control.CmdResume
	}
	m.send(control.Command{Kind: kind, Project: ps.Project})
	return nil
}

func (m Model) cancelSelected() tea.Cmd {
	if len(m.projects) == 0 {
		return nil
	}
	t, ok := m.selectedTask()
	if !ok {
		return nil
	}
	m.send(control.Command{Kind: control.CmdCancelTask, Project: t.Project, TaskID: t.ID})
	return nil
}

func (m *Model) openDetail() {
	t, ok := m.selectedTask()
	if !ok {
		return
	}
	body := fmt.Sprintf("# %s\n\n**status:** %s  **priority:** %s  **classification:** %s\n\n%s",
		t.Title, t.Status, t.Priority, t.Classification, t.Content)
	if m.renderer != nil {
		if out, err := m.renderer.Render(body); err == nil {
			body = out
		}
	}
	m.detail = body
	m.showDetail = true
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.showDetail {
		return m.detail
	}

	cols := make([]string, 0, len(m.projects))
	for i, p := range m.projects {
		view := m.columns[p].View()
		if i == m.focused {
			view = focusedStyle.Render(view)
		} else {
			view = columnStyle.Render(view)
		}
		cols = append(cols, view)
	}

	board := lipgloss.JoinHorizontal(lipgloss.Top, cols...)
	footer := m.footer()
	return lipgloss.JoinVertical(lipgloss.Left, board, footer)
}

func (m Model) footer() string {
	r := m.latest.Resources
	resourceLine := resourceStyle.Render(fmt.Sprintf("cpu %.0f%%  mem %dMB (%.0f%% avail)  agents %d",
		r.CPUPercent, r.ResidentMB, r.MemAvailPct, r.AgentProcs))

	var errs []string
	for _, ps := range m.latest.Projects {
		if ps.LastError != "" {
			errs = append(errs, fmt.Sprintf("%s: %s", ps.Project, ps.LastError))
		}
	}
	if m.status != "" {
		errs = append(errs, m.status)
	}
	errLine := ""
	if len(errs) > 0 {
		errLine = "\n" + errorStyle.Render(strings.Join(errs, " · "))
	}

	help := helpStyle.Render("tab/shift+tab switch · enter detail · e edit · p pause/resume · c cancel · r refresh · q quit")
	return resourceLine + errLine + "\n" + help
}
