// Package graph resolves a flat list of tasks into a ResolvedGraph: per-task
// classification (ready/waiting/blocked), cycle detection, and working
// directory resolution. Resolve is pure and deterministic for a given input.
package graph

import (
	"os"
	"path/filepath"
	"sort"

	"brain/internal/task"
)

// HomeDirFunc is overridable in tests; it mirrors os.UserHomeDir.
var HomeDirFunc = os.UserHomeDir

// Resolve classifies every task in tasks and returns the ordered ResolvedGraph.
func Resolve(tasks []*task.Task) *task.ResolvedGraph {
	byID := make(map[string]*task.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	inCycle := detectCycles(tasks, byID)

	resolved := make([]*task.Resolved, 0, len(tasks))
	for _, t := range tasks {
		r := &task.Resolved{Task: *t, InCycle: inCycle[t.ID]}
		classify(r, t, byID)
		resolveWorkdir(r, t)
		resolved = append(resolved, r)
	}

	sort.SliceStable(resolved, func(i, j int) bool {
		return lessResolved(resolved[i], resolved[j])
	})

	return &task.ResolvedGraph{Tasks: resolved, Stats: computeStats(resolved)}
}

// detectCycles runs three-color DFS over the union of depends_on and
// parent_id edges (child -> prerequisite, child -> parent) and returns the
// set of task ids that sit on a cycle.
func detectCycles(tasks []*task.Task, byID map[string]*task.Task) map[string]bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(tasks))
	inCycle := make(map[string]bool)

	edges := func(id string) []string {
		t, ok := byID[id]
		if !ok {
			return nil
		}
		out := make([]string, 0, len(t.DependsOn)+1)
		for _, d := range t.DependsOn {
			if _, ok := byID[d]; ok {
				out = append(out, d)
			}
		}
		if t.ParentID != "" {
			if _, ok := byID[t.ParentID]; ok {
				out = append(out, t.ParentID)
			}
		}
		return out
	}

	var stack []string
	var dfs func(id string)
	dfs = func(id string) {
		color[id] = gray
		stack = append(stack, id)
		for _, next := range edges(id) {
			switch color[next] {
			case white:
				dfs(next)
			case gray:
				// back-edge: every node currently on the stack from next onward is on the cycle.
				start := len(stack) - 1
				for start >= 0 && stack[start] != next {
					start--
				}
				if start < 0 {
					start = 0
				}
				for _, id2 := range stack[start:] {
					inCycle[id2] = true
				}
				inCycle[next] = true
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
	}

	for _, t := range tasks {
		if color[t.ID] == white {
			dfs(t.ID)
		}
	}

	return inCycle
}

func classify(r *task.Resolved, t *task.Task, byID map[string]*task.Task) {
	if t.Status.Terminal() {
		r.Classification = task.ClassificationCompleted
		return
	}

	if r.InCycle {
		r.Classification = task.ClassificationBlocked
		r.BlockedByReason = "cycle"
		return
	}

	var blockedBy, waitingOn, unresolved []string
	for _, d := range t.DependsOn {
		dep, ok := byID[d]
		if !ok {
			unresolved = append(unresolved, d)
			continue
		}
		switch {
		case dep.Status == task.StatusBlocked || dep.Status == task.StatusCancelled:
			blockedBy = append(blockedBy, d)
		case !dep.Status.Terminal():
			waitingOn = append(waitingOn, d)
		}
	}
	r.UnresolvedDeps = unresolved

	switch {
	case len(blockedBy) > 0:
		r.Classification = task.ClassificationBlocked
		r.BlockedBy = blockedBy
	case len(waitingOn) > 0:
		r.Classification = task.ClassificationWaiting
		r.WaitingOn = waitingOn
	case t.Status == task.StatusDraft:
		r.Classification = task.ClassificationWaiting
	case t.Status == task.StatusBlocked:
		r.Classification = task.ClassificationBlocked
	case t.Status == task.StatusPending || t.Status == task.StatusActive:
		r.Classification = task.ClassificationReady
	case t.Status == task.StatusInProgress:
		r.Classification = task.ClassificationReady
	default:
		r.Classification = task.ClassificationWaiting
	}
}

// resolveWorkdir prefers worktree over workdir, both resolved against $HOME.
// If neither exists, ResolvedWorkdir stays empty; the scheduler's configured
// default workdir fallback and the "workdir not found" reclassification both
// happen one layer up, in scheduler.Pick, since only the scheduler carries
// that config.
func resolveWorkdir(r *task.Resolved, t *task.Task) {
	home, err := HomeDirFunc()
	if err != nil {
		home = ""
	}

	candidates := []string{t.Worktree, t.Workdir}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		abs := c
		if !filepath.IsAbs(c) && home != "" {
			abs = filepath.Join(home, c)
		}
		if _, err := os.Stat(abs); err == nil {
			r.ResolvedWorkdir = abs
			return
		}
	}
}

func lessResolved(a, b *task.Resolved) bool {
	if a.Priority.Rank() != b.Priority.Rank() {
		return a.Priority.Rank() < b.Priority.Rank()
	}
	if statusRank(a.Status) != statusRank(b.Status) {
		return statusRank(a.Status) < statusRank(b.Status)
	}
	return a.ID < b.ID
}

func statusRank(s task.Status) int {
	switch s {
	case task.StatusInProgress:
		return 0
	case task.StatusPending, task.StatusActive:
		return 1
	case task.StatusBlocked:
		return 2
	case task.StatusDraft:
		return 3
	default:
		return 4
	}
}

func computeStats(resolved []*task.Resolved) task.Stats {
	var s task.Stats
	s.Total = len(resolved)
	for _, r := range resolved {
		switch r.Classification {
		case task.ClassificationReady:
			s.Ready++
		case task.ClassificationWaiting:
			s.Waiting++
		case task.ClassificationBlocked:
			s.Blocked++
		case task.ClassificationCompleted:
			s.Completed++
		}
		if r.Status == task.StatusInProgress {
			s.InProgress++
		}
	}
	return s
}
