// Package control defines the command/snapshot contract shared by the
// runner loop and the TUI: the full set of commands a TUI may issue, and
// the read-model snapshot the loop produces each poll for display.
package control

import "brain/internal/task"

// CommandKind identifies which operation a Command requests.
type CommandKind string

const (
	CmdRefresh         CommandKind = "refresh"
	CmdPause           CommandKind = "pause"
	CmdResume          CommandKind = "resume"
	CmdPauseAll        CommandKind = "pause_all"
	CmdResumeAll       CommandKind = "resume_all"
	CmdEnableFeature   CommandKind = "enable_feature"
	CmdDisableFeature  CommandKind = "disable_feature"
	CmdExecuteTask     CommandKind = "execute_task"
	CmdCancelTask      CommandKind = "cancel_task"
	CmdUpdateStatus    CommandKind = "update_status"
	CmdEditTask        CommandKind = "edit_task"
	CmdSetProjectLimit CommandKind = "set_project_limit"
)

// Command is one fire-and-forget instruction from the TUI to the runner
// loop. Only the fields relevant to Kind are populated.
type Command struct {
	Kind    CommandKind
	Project string
	Feature string
	TaskID  string
	Path    string
	Status  task.Status
	Limit   *int // nil clears a per-project override

	// Result receives the outcome of commands that report success/failure
	// (executeTask, updateStatus, editTask). Nil for fire-and-forget commands.
	Result chan CommandResult
}

// CommandResult is delivered on Command.Result, if present, once the loop
// has applied the command.
type CommandResult struct {
	OK      bool
	Err     error
	Changed bool // for editTask: false means the file was unchanged
}

// ProjectSnapshot is one project's read-model view as of the last poll.
type ProjectSnapshot struct {
	Project         string
	Paused          bool
	Limit           *int
	EnabledFeatures []string
	Stats           task.Stats
	Tasks           []*task.Resolved
	LastPollAt      string
	LastError       string
}

// ResourceMetrics summarizes runner-wide resource usage for display.
type ResourceMetrics struct {
	CPUPercent  float64
	ResidentMB  uint64
	AgentProcs  int
	MemAvailPct float64
}

// Snapshot is the full read model delivered to the TUI each poll.
type Snapshot struct {
	Projects  []ProjectSnapshot
	Resources ResourceMetrics
	RecentLog []string // ring buffer tail, most recent last
}
