// Package runnerloop runs the cooperatively-scheduled per-process loop that
// ties the entry store, graph resolver, scheduler, and supervisor together:
// poll, resolve, dispatch, drain commands, repeat.
package runnerloop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"brain/internal/control"
	"brain/internal/entrystore"
	"brain/internal/graph"
	"brain/internal/memprobe"
	"brain/internal/notify"
	"brain/internal/scheduler"
	"brain/internal/supervisor"
	"brain/internal/task"
)

// AgentSpec describes how to invoke the agent CLI for a task.
type AgentSpec struct {
	Command string
	Args    func(t *task.Resolved) []string
	Env     func(t *task.Resolved) []string
}

// Loop owns all per-project state and drives ticks against a Store,
// Supervisor, and Scheduler.
type Loop struct {
	Store        entrystore.Store
	Supervisor   *supervisor.Supervisor
	Agent        AgentSpec
	Logger       *slog.Logger
	Notifier     *notify.Notifier
	PollInterval time.Duration
	CancelGrace  time.Duration
	Limits       scheduler.Limits

	projects map[string]*task.ProjectState
	commands chan control.Command

	mu         sync.Mutex
	lastGraphs map[string]*task.ResolvedGraph
	recentLog  []string
}

// New constructs a Loop watching the given projects, all initially unpaused
// with no feature whitelist (accept everything).
func New(store entrystore.Store, sup *supervisor.Supervisor, agent AgentSpec, logger *slog.Logger, projects []string, limits scheduler.Limits, pollInterval, cancelGrace time.Duration) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	states := make(map[string]*task.ProjectState, len(projects))
	for _, p := range projects {
		states[p] = task.NewProjectState(p)
	}
	return &Loop{
		Store:        store,
		Supervisor:   sup,
		Agent:        agent,
		Logger:       logger,
		PollInterval: pollInterval,
		CancelGrace:  cancelGrace,
		Limits:       limits,
		projects:     states,
		commands:     make(chan control.Command, 64),
	}
}

// Commands returns the channel the TUI (or any caller) sends Command values
// on; Run drains it between ticks.
func (l *Loop) Commands() chan<- control.Command {
	return l.commands
}

// Run blocks, ticking every PollInterval until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-l.commands:
			l.applyCommand(ctx, cmd)
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// tick polls every configured project once, dispatching at most one task
// per project to keep the loop responsive.
func (l *Loop) tick(ctx context.Context) {
	graphs := make(map[string]*task.ResolvedGraph, len(l.projects))

	for project, st := range l.projects {
		resp, err := l.Store.List(ctx, project)
		if err != nil {
			l.Logger.Warn("poll failed, retaining last graph", "project", project, "error", err)
			st.LastError = err.Error()
			continue
		}
		st.LastError = ""
		st.LastPollAt = time.Now().UTC().Format(time.RFC3339)

		g := graph.Resolve(resp.Tasks)
		graphs[project] = g

		// Demote after resolving so the crashed task is not re-dispatched in
		// this same tick; the next tick sees it pending.
		l.reconcileCrashed(resp.Tasks, st)
		l.checkFocusAutoExit(st, g)
	}

	l.mu.Lock()
	l.lastGraphs = graphs
	l.mu.Unlock()

	l.Limits.MemoryProvider = l.memoryProviderOrDefault()

	// One dispatch per project per tick: loop until no project has a pick,
	// or every already-picked project is removed from contention this tick.
	picked := make(map[string]struct{})
	for {
		remaining := map[string]*task.ResolvedGraph{}
		for p, g := range graphs {
			if _, done := picked[p]; !done {
				remaining[p] = g
			}
		}
		if len(remaining) == 0 {
			break
		}

		next := scheduler.Pick(remaining, l.projects, l.Limits)
		if next == nil {
			break
		}

		l.dispatch(ctx, next)
		picked[next.Project] = struct{}{}
	}
}

// checkFocusAutoExit clears a project's feature whitelist once no pending or
// in_progress task remains in any focused feature, per spec.md §4.4/§8
// scenario 4: focus mode auto-exits rather than staying sticky forever.
func (l *Loop) checkFocusAutoExit(st *task.ProjectState, g *task.ResolvedGraph) {
	if len(st.EnabledFeatures) == 0 {
		return
	}
	for _, r := range g.Tasks {
		if _, focused := st.EnabledFeatures[task.FeatureOf(&r.Task)]; !focused {
			continue
		}
		if r.Status == task.StatusPending || r.Status == task.StatusInProgress {
			return
		}
	}
	st.EnabledFeatures = make(map[string]struct{})
}

func (l *Loop) memoryProviderOrDefault() memprobe.Provider {
	if l.Limits.MemoryProvider != nil {
		return l.Limits.MemoryProvider
	}
	return memprobe.New()
}

// reconcileCrashed implements crash recovery: a task persisted as
// in_progress with no corresponding supervised process is demoted back to
// pending after one tick.
func (l *Loop) reconcileCrashed(tasks []*task.Task, st *task.ProjectState) {
	running := l.Supervisor.RunningIDs()
	for _, t := range tasks {
		if t.Status != task.StatusInProgress {
			continue
		}
		if _, ok := running[t.ID]; ok {
			continue
		}
		if _, ok := st.Running[t.ID]; ok {
			continue
		}
		l.Logger.Warn("reconciling crashed task to pending", "project", st.Project, "task", t.ID)
		pending := task.StatusPending
		if err := l.Store.Update(context.Background(), t.Path, entrystore.UpdateRequest{Status: &pending}); err != nil {
			l.Logger.Error("crash recovery write-back failed", "task", t.ID, "error", err)
		}
	}
}

func (l *Loop) dispatch(ctx context.Context, t *task.Resolved) {
	st := l.projects[t.Project]

	inProgress := task.StatusInProgress
	if err := l.Store.Update(ctx, t.Path, entrystore.UpdateRequest{Status: &inProgress}); err != nil {
		l.Logger.Error("dispatch write-back failed", "task", t.ID, "error", err)
		st.LastError = err.Error()
		return
	}

	var args, env []string
	if l.Agent.Args != nil {
		args = l.Agent.Args(t)
	}
	if l.Agent.Env != nil {
		env = l.Agent.Env(t)
	}

	if err := l.Supervisor.Launch(ctx, t, l.Agent.Command, args, env); err != nil {
		l.Logger.Error("spawn failed", "task", t.ID, "error", err)
		pending := task.StatusPending
		_ = l.Store.Update(ctx, t.Path, entrystore.UpdateRequest{Status: &pending})
		st.LastError = err.Error()
		return
	}

	st.Running[t.ID] = struct{}{}
	go l.awaitOutcome(t, st)
}

func (l *Loop) awaitOutcome(t *task.Resolved, st *task.ProjectState) {
	out, err := l.Supervisor.Await(t.ID)
	delete(st.Running, t.ID)

	if err != nil {
		l.Logger.Error("await failed", "task", t.ID, "error", err)
		return
	}

	var status task.Status
	switch out.Outcome {
	case supervisor.OutcomeCompleted:
		status = task.StatusCompleted
	case supervisor.OutcomeCancelled:
		status = task.StatusCancelled
	default:
		status = task.StatusBlocked
	}

	note := out.Reason
	req := entrystore.UpdateRequest{Status: &status}
	if note != "" {
		req.Note = &note
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := l.Store.Update(ctx, t.Path, req); err != nil {
		l.Logger.Error("outcome write-back failed, retrying once", "task", t.ID, "error", err)
		if err := l.Store.Update(ctx, t.Path, req); err != nil {
			l.Logger.Error("outcome write-back failed twice, surfacing runner error", "task", t.ID, "error", err)
			st.LastError = fmt.Sprintf("failed to persist outcome for %s: %v", t.ID, err)
			l.notify(ctx, notify.EventRunnerFatal, t.Project, t.ID, err.Error())
			return
		}
	}

	switch out.Outcome {
	case supervisor.OutcomeBlocked:
		l.notify(ctx, notify.EventTaskBlocked, t.Project, t.ID, out.Reason)
	case supervisor.OutcomeCancelled:
		l.notify(ctx, notify.EventTaskCancelled, t.Project, t.ID, "")
	}
}

// Snapshot builds the control.Snapshot read model from the last completed
// tick's resolved graphs and project state, for a TUI or status command to
// render. Safe to call concurrently with Run.
func (l *Loop) Snapshot() control.Snapshot {
	l.mu.Lock()
	graphs := l.lastGraphs
	recentLog := append([]string(nil), l.recentLog...)
	l.mu.Unlock()

	snap := control.Snapshot{RecentLog: recentLog}

	for project, st := range l.projects {
		ps := control.ProjectSnapshot{
			Project:    project,
			Paused:     st.Paused,
			Limit:      st.Limit,
			LastPollAt: st.LastPollAt,
			LastError:  st.LastError,
		}
		for f := range st.EnabledFeatures {
			ps.EnabledFeatures = append(ps.EnabledFeatures, f)
		}
		if g, ok := graphs[project]; ok {
			ps.Tasks = g.Tasks
			ps.Stats = g.Stats
		}
		snap.Projects = append(snap.Projects, ps)
	}

	if l.Limits.MemoryProvider != nil {
		if pct, err := memprobe.AvailablePct(l.Limits.MemoryProvider); err == nil {
			snap.Resources.MemAvailPct = pct
		}
	}
	agents := 0
	for _, st := range l.projects {
		agents += len(st.Running)
	}
	snap.Resources.AgentProcs = agents

	return snap
}

// RecordLog appends a line to the ring buffer surfaced on Snapshot.RecentLog,
// trimming to the last 200 lines.
func (l *Loop) RecordLog(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recentLog = append(l.recentLog, line)
	if len(l.recentLog) > 200 {
		l.recentLog = l.recentLog[len(l.recentLog)-200:]
	}
}

func (l *Loop) notify(ctx context.Context, kind notify.EventKind, project, taskID, detail string) {
	if l.Notifier == nil {
		return
	}
	if err := l.Notifier.Notify(ctx, kind, project, taskID, detail); err != nil {
		l.Logger.Warn("slack notification failed", "event", kind, "error", err)
	}
}
