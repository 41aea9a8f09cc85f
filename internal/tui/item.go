package tui

import (
	"fmt"

	"brain/internal/task"
)

// taskItem adapts a Resolved task to bubbles/list.Item, the same way the
// teacher's TicketItem adapts a ticket.
type taskItem struct {
	task *task.Resolved
}

func (i taskItem) Title() string {
	return fmt.Sprintf("[%s] %s", i.task.ID, i.task.Title)
}

func (i taskItem) Description() string {
	switch i.task.Classification {
	case task.ClassificationBlocked:
		return "blocked: " + i.task.BlockedByReason
	case task.ClassificationWaiting:
		return fmt.Sprintf("waiting on %d dep(s)", len(i.task.WaitingOn))
	default:
		return string(i.task.Status) + " · " + string(i.task.Priority)
	}
}

func (i taskItem) FilterValue() string {
	return i.task.Title
}
