// Package scheduler selects the next dispatchable task from a resolved
// graph, honoring pause state, feature whitelists, and capacity and memory
// limits. Pick touches no entry store and no process, but it is not pure:
// applyWorkdirFallback rewrites ready tasks' ResolvedWorkdir, Classification
// and the Stats of the graphs it is given, in place.
package scheduler

import (
	"os"

	"brain/internal/memprobe"
	"brain/internal/task"
)

// Limits bundles the capacity configuration Pick enforces.
type Limits struct {
	GlobalCap          int
	MemoryThresholdPct float64
	MemoryProvider     memprobe.Provider

	// DefaultWorkdir is the fallback cwd used when a task's own
	// worktree/workdir don't resolve to anything on disk.
	DefaultWorkdir string
}

// workdirExists is overridable in tests; it mirrors os.Stat's existence check.
var workdirExists = func(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Pick returns the single task to dispatch next, or nil if none qualifies.
// graphs maps project name to that project's ResolvedGraph; states maps
// project name to its ProjectState (pause, per-project limit, running set,
// enabled features).
func Pick(graphs map[string]*task.ResolvedGraph, states map[string]*task.ProjectState, limits Limits) *task.Resolved {
	if MemoryGuardTripped(limits) {
		return nil
	}

	for _, g := range graphs {
		applyWorkdirFallback(g, limits)
	}

	totalRunning := 0
	for _, st := range states {
		totalRunning += len(st.Running)
	}
	if limits.GlobalCap <= totalRunning {
		return nil
	}

	var candidates []*task.Resolved
	for project, g := range graphs {
		st := states[project]
		if st == nil || st.Paused {
			continue
		}

		projectLimit := limits.GlobalCap
		if st.Limit != nil {
			projectLimit = *st.Limit
			if projectLimit > limits.GlobalCap {
				projectLimit = limits.GlobalCap
			}
		}
		if len(st.Running) >= projectLimit {
			continue
		}

		for _, r := range g.Tasks {
			if r.Classification != task.ClassificationReady {
				continue
			}
			if r.Status == task.StatusInProgress {
				continue
			}
			if !featureAllowed(st, &r.Task) {
				continue
			}
			candidates = append(candidates, r)
		}
	}

	if len(candidates) == 0 {
		return nil
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if less(c, best) {
			best = c
		}
	}
	return best
}

// applyWorkdirFallback implements spec step 5's second half: a ready task
// whose resolver-computed workdir didn't resolve gets the configured
// default workdir; if that default doesn't exist either, the task is
// reclassified blocked with reason "workdir not found" rather than
// dispatched with an empty cwd. Mutates g in place, including its Stats,
// since g.Stats was computed before this reclassification ran.
func applyWorkdirFallback(g *task.ResolvedGraph, limits Limits) {
	for _, r := range g.Tasks {
		if r.Classification != task.ClassificationReady || r.ResolvedWorkdir != "" {
			continue
		}
		if limits.DefaultWorkdir != "" && workdirExists(limits.DefaultWorkdir) {
			r.ResolvedWorkdir = limits.DefaultWorkdir
			continue
		}
		r.Classification = task.ClassificationBlocked
		r.BlockedByReason = "workdir not found"
		g.Stats.Ready--
		g.Stats.Blocked++
	}
}

// MemoryGuardTripped reports whether available memory is currently below
// limits.MemoryThresholdPct. Exported so callers that dispatch outside
// Pick — manual execute bypasses the scheduler's feature filter but must
// still honor this guard — can check the same condition.
func MemoryGuardTripped(limits Limits) bool {
	if limits.MemoryProvider == nil {
		return false
	}
	pct, err := memprobe.AvailablePct(limits.MemoryProvider)
	if err != nil {
		return false
	}
	return pct < limits.MemoryThresholdPct
}

func featureAllowed(st *task.ProjectState, t *task.Task) bool {
	if len(st.EnabledFeatures) == 0 {
		return true
	}
	_, ok := st.EnabledFeatures[task.FeatureOf(t)]
	return ok
}

func less(a, b *task.Resolved) bool {
	if a.Priority.Rank() != b.Priority.Rank() {
		return a.Priority.Rank() < b.Priority.Rank()
	}
	if a.Created != b.Created {
		return a.Created < b.Created
	}
	return a.ID < b.ID
}
