package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"brain/internal/task"
)

// Outcome is the final state a supervised task settles into.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeBlocked   Outcome = "blocked"
	OutcomeCancelled Outcome = "cancelled"
)

// AwaitResult is what await(taskId) reports: the outcome plus, for blocked
// outcomes, the reason (exit code or "timeout").
type AwaitResult struct {
	Outcome Outcome
	Reason  string
}

// BlockedSentinel is the marker an agent writes into its outcome file to
// report a deliberate "blocked" completion rather than success or crash.
const BlockedSentinel = "BRAIN_BLOCKED"

// OutcomeFileName is the file an agent writes, relative to its resolved
// workdir, to report a deliberate blocked completion on exit 0.
const OutcomeFileName = ".brain-outcome"

type running struct {
	handle          Handle
	spec            Spec
	cancelRequested bool
	startedAt       time.Time
	deadline        time.Time
	done            chan AwaitResult
}

// Supervisor owns every in-flight child process for one runner, dispatching
// Start/Signal/Kill/Wait calls to the configured Backend and fanning each
// process's output through a LogBroadcaster.
type Supervisor struct {
	backend     Backend
	broadcaster *LogBroadcaster
	cancelGrace time.Duration
	taskTimeout time.Duration

	mu    sync.Mutex
	procs map[string]*running
}

// New returns a Supervisor dispatching to backend. cancelGrace bounds the
// soft-to-hard cancellation window; taskTimeout is the deadline applied to
// every launched task.
func New(backend Backend, broadcaster *LogBroadcaster, cancelGrace, taskTimeout time.Duration) *Supervisor {
	return &Supervisor{
		backend:     backend,
		broadcaster: broadcaster,
		cancelGrace: cancelGrace,
		taskTimeout: taskTimeout,
		procs:       make(map[string]*running),
	}
}

// Launch spawns the agent CLI for t and returns once the child has been
// accepted, without waiting for it to exit. The caller is responsible for
// having already transitioned the task's persisted status to in_progress.
func (s *Supervisor) Launch(ctx context.Context, t *task.Resolved, agent string, args, env []string) error {
	spec := Spec{
		TaskID:  t.ID,
		Project: t.Project,
		Workdir: t.ResolvedWorkdir,
		Agent:   agent,
		Args:    args,
		Env:     env,
	}

	onLine := func(line string) {
		if s.broadcaster != nil {
			s.broadcaster.Publish(t.ID, t.Project, line)
		}
	}

	h, err := s.backend.Start(ctx, spec, onLine)
	if err != nil {
		return fmt.Errorf("launch %s: %w", t.ID, err)
	}

	deadline := time.Now().Add(s.taskTimeout)
	r := &running{
		handle:    h,
		spec:      spec,
		startedAt: time.Now(),
		deadline:  deadline,
		done:      make(chan AwaitResult, 1),
	}

	s.mu.Lock()
	s.procs[t.ID] = r
	s.mu.Unlock()

	go s.supervise(ctx, t.ID, r)

	return nil
}

func (s *Supervisor) supervise(ctx context.Context, taskID string, r *running) {
	waitCtx, cancel := context.WithDeadline(ctx, r.deadline)
	defer cancel()

	result := s.backend.Wait(waitCtx, r.handle)

	s.mu.Lock()
	cancelRequested := r.cancelRequested
	s.mu.Unlock()

	var out AwaitResult
	switch {
	case cancelRequested:
		out = AwaitResult{Outcome: OutcomeCancelled}
	case result.TimedOut:
		out = AwaitResult{Outcome: OutcomeBlocked, Reason: "timeout"}
	case result.ExitCode == 0 && result.Err == nil:
		if reason, blocked := blockedSentinelReason(r.spec.Workdir); blocked {
			out = AwaitResult{Outcome: OutcomeBlocked, Reason: reason}
		} else {
			out = AwaitResult{Outcome: OutcomeCompleted}
		}
	default:
		out = AwaitResult{Outcome: OutcomeBlocked, Reason: fmt.Sprintf("exit code %d", result.ExitCode)}
	}

	r.done <- out
}

// blockedSentinelReason reads workdir/OutcomeFileName, if present, and
// reports whether any line in it trips ClassifyOutcomeLine. A missing or
// unreadable outcome file is not an error: most tasks never write one.
func blockedSentinelReason(workdir string) (string, bool) {
	if workdir == "" {
		return "", false
	}
	data, err := os.ReadFile(filepath.Join(workdir, OutcomeFileName))
	if err != nil {
		return "", false
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if ClassifyOutcomeLine(line) {
			return line, true
		}
	}
	return "", false
}

// Cancel requests cooperative shutdown of taskId's process, escalating to a
// hard kill if it is still alive after grace.
func (s *Supervisor) Cancel(ctx context.Context, taskID string) error {
	s.mu.Lock()
	r, ok := s.procs[taskID]
	if ok {
		r.cancelRequested = true
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}

	if err := s.backend.Signal(ctx, r.handle); err != nil {
		return fmt.Errorf("signal %s: %w", taskID, err)
	}

	grace := s.cancelGrace
	if grace <= 0 {
		grace = 30 * time.Second
	}

	select {
	case out := <-r.done:
		// Put the outcome back so Await still receives it.
		r.done <- out
		return nil
	case <-time.After(grace):
		return s.backend.Kill(ctx, r.handle)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Await blocks until taskId's process reaches a terminal outcome.
func (s *Supervisor) Await(taskID string) (AwaitResult, error) {
	s.mu.Lock()
	r, ok := s.procs[taskID]
	s.mu.Unlock()
	if !ok {
		return AwaitResult{}, fmt.Errorf("no running process for task %s", taskID)
	}

	out := <-r.done

	s.mu.Lock()
	delete(s.procs, taskID)
	s.mu.Unlock()

	return out, nil
}

// RunningIDs returns a snapshot of currently-supervised task ids, for the
// scheduler's capacity accounting.
func (s *Supervisor) RunningIDs() map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[string]struct{}, len(s.procs))
	for id := range s.procs {
		ids[id] = struct{}{}
	}
	return ids
}

// ClassifyOutcomeLine reports whether a line written by the agent to its
// outcome file signals a deliberate blocked completion rather than success.
func ClassifyOutcomeLine(line string) bool {
	return strings.Contains(line, BlockedSentinel)
}
