package runnerloop

import (
	"context"
	"os"
	"os/exec"

	"brain/internal/control"
	"brain/internal/entrystore"
	"brain/internal/graph"
	"brain/internal/scheduler"
	"brain/internal/task"
)

// applyCommand executes one TUI command synchronously, per spec.md §4.5:
// commands take effect immediately rather than waiting for the next tick.
func (l *Loop) applyCommand(ctx context.Context, cmd control.Command) {
	switch cmd.Kind {
	case control.CmdRefresh:
		l.tick(ctx)
		l.reply(cmd, true, nil)

	case control.CmdPause:
		if st := l.projects[cmd.Project]; st != nil {
			st.Paused = true
		}
		l.reply(cmd, true, nil)

	case control.CmdResume:
		if st := l.projects[cmd.Project]; st != nil {
			st.Paused = false
		}
		l.reply(cmd, true, nil)

	case control.CmdPauseAll:
		for _, st := range l.projects {
			st.Paused = true
		}
		l.reply(cmd, true, nil)

	case control.CmdResumeAll:
		for _, st := range l.projects {
			st.Paused = false
		}
		l.reply(cmd, true, nil)

	case control.CmdEnableFeature:
		if st := l.projects[cmd.Project]; st != nil {
			st.EnabledFeatures[cmd.Feature] = struct{}{}
		}
		l.reply(cmd, true, nil)

	case control.CmdDisableFeature:
		if st := l.projects[cmd.Project]; st != nil {
			delete(st.EnabledFeatures, cmd.Feature)
		}
		l.reply(cmd, true, nil)

	case control.CmdSetProjectLimit:
		if st := l.projects[cmd.Project]; st != nil {
			st.Limit = cmd.Limit
		}
		l.reply(cmd, true, nil)

	case control.CmdExecuteTask:
		l.executeTask(ctx, cmd)

	case control.CmdCancelTask:
		err := l.Supervisor.Cancel(ctx, cmd.TaskID)
		l.reply(cmd, err == nil, err)

	case control.CmdUpdateStatus:
		status := cmd.Status
		err := l.Store.Update(ctx, cmd.Path, entrystore.UpdateRequest{Status: &status})
		l.reply(cmd, err == nil, err)

	case control.CmdEditTask:
		l.editTask(ctx, cmd)

	default:
		l.reply(cmd, false, nil)
	}
}

// executeTask bypasses the scheduler's feature filter but still honors
// capacity and the memory guard; it reports failure rather than queueing.
func (l *Loop) executeTask(ctx context.Context, cmd control.Command) {
	st := l.projects[cmd.Project]
	if st == nil || st.Paused {
		l.reply(cmd, false, nil)
		return
	}

	limit := l.Limits.GlobalCap
	if st.Limit != nil && *st.Limit < limit {
		limit = *st.Limit
	}
	total := 0
	for _, ps := range l.projects {
		total += len(ps.Running)
	}
	if len(st.Running) >= limit || total >= l.Limits.GlobalCap {
		l.reply(cmd, false, nil)
		return
	}

	guardLimits := l.Limits
	guardLimits.MemoryProvider = l.memoryProviderOrDefault()
	if scheduler.MemoryGuardTripped(guardLimits) {
		l.reply(cmd, false, nil)
		return
	}

	resp, err := l.Store.List(ctx, cmd.Project)
	if err != nil {
		l.reply(cmd, false, err)
		return
	}
	g := graph.Resolve(resp.Tasks)

	var target *task.Resolved
	for _, r := range g.Tasks {
		if r.ID == cmd.TaskID {
			target = r
			break
		}
	}
	if target == nil || target.Classification != task.ClassificationReady {
		l.reply(cmd, false, nil)
		return
	}

	l.dispatch(ctx, target)
	l.reply(cmd, true, nil)
}

// editTask suspends for an external editor invocation and reports whether
// the file changed.
func (l *Loop) editTask(ctx context.Context, cmd control.Command) {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		editor = "vi"
	}

	before, _ := os.ReadFile(cmd.Path)

	c := exec.CommandContext(ctx, editor, cmd.Path)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	err := c.Run()
	if err != nil {
		l.reply(cmd, false, err)
		return
	}

	after, _ := os.ReadFile(cmd.Path)
	changed := string(before) != string(after)

	if cmd.Result != nil {
		cmd.Result <- control.CommandResult{OK: true, Changed: changed}
	}
}

func (l *Loop) reply(cmd control.Command, ok bool, err error) {
	if cmd.Result == nil {
		return
	}
	cmd.Result <- control.CommandResult{OK: ok, Err: err}
}
