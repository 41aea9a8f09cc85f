package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"brain/internal/control"
)

// Run starts the bubbletea program, blocking until the user quits or ctx is
// cancelled. snapshots is fed by the caller (cmd/brain polls the loop's
// Snapshot on a timer and forwards each one); commands is typically a
// runnerloop.Loop's Commands() channel.
func Run(ctx context.Context, snapshots <-chan control.Snapshot, commands chan<- control.Command) error {
	p := tea.NewProgram(New(snapshots, commands), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
