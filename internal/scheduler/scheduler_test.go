package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brain/internal/memprobe"
	"brain/internal/task"
)

func readyGraph(project string, ids ...string) *task.ResolvedGraph {
	g := &task.ResolvedGraph{}
	for _, id := range ids {
		g.Tasks = append(g.Tasks, &task.Resolved{
			Task: task.Task{
				ID:       id,
				Project:  project,
				Status:   task.StatusPending,
				Priority: task.PriorityMedium,
			},
			Classification:  task.ClassificationReady,
			ResolvedWorkdir: "/resolved/" + project,
		})
	}
	g.Stats.Ready = len(ids)
	return g
}

func TestPick_PausedProjectNeverSelected(t *testing.T) {
	graphs := map[string]*task.ResolvedGraph{"acme": readyGraph("acme", "aaaaaaaa")}
	states := map[string]*task.ProjectState{"acme": {Paused: true, Running: map[string]struct{}{}}}

	got := Pick(graphs, states, Limits{GlobalCap: 10})
	assert.Nil(t, got)
}

func TestPick_CapacityFilter(t *testing.T) {
	graphs := map[string]*task.ResolvedGraph{"acme": readyGraph("acme", "aaaaaaaa")}
	limit := 1
	states := map[string]*task.ProjectState{
		"acme": {Limit: &limit, Running: map[string]struct{}{"running-task": {}}},
	}

	got := Pick(graphs, states, Limits{GlobalCap: 10})
	assert.Nil(t, got, "project at its own limit must not dispatch")
}

func TestPick_GlobalCapZeroDisablesAll(t *testing.T) {
	graphs := map[string]*task.ResolvedGraph{"acme": readyGraph("acme", "aaaaaaaa")}
	states := map[string]*task.ProjectState{"acme": {Running: map[string]struct{}{}}}

	got := Pick(graphs, states, Limits{GlobalCap: 0})
	assert.Nil(t, got)
}

func TestPick_MemoryGuard(t *testing.T) {
	graphs := map[string]*task.ResolvedGraph{"acme": readyGraph("acme", "aaaaaaaa")}
	states := map[string]*task.ProjectState{"acme": {Running: map[string]struct{}{}}}

	low := &memprobe.Fake{AvailableBytes: 1, TotalBytes: 100} // 1%
	got := Pick(graphs, states, Limits{GlobalCap: 10, MemoryThresholdPct: 10, MemoryProvider: low})
	assert.Nil(t, got, "scheduler must defer when available memory is below threshold")
}

func TestPick_FeatureFilter(t *testing.T) {
	g := &task.ResolvedGraph{Tasks: []*task.Resolved{
		{Task: task.Task{ID: "aaaaaaaa", Project: "acme", FeatureID: "auth", Status: task.StatusPending, Priority: task.PriorityMedium}, Classification: task.ClassificationReady, ResolvedWorkdir: "/resolved/acme"},
		{Task: task.Task{ID: "bbbbbbbb", Project: "acme", FeatureID: "billing", Status: task.StatusPending, Priority: task.PriorityMedium}, Classification: task.ClassificationReady, ResolvedWorkdir: "/resolved/acme"},
	}}
	states := map[string]*task.ProjectState{
		"acme": {Running: map[string]struct{}{}, EnabledFeatures: map[string]struct{}{"auth": {}}},
	}

	got := Pick(map[string]*task.ResolvedGraph{"acme": g}, states, Limits{GlobalCap: 10})
	require.NotNil(t, got)
	assert.Equal(t, "aaaaaaaa", got.ID)
}

func TestPick_PriorityOrdering(t *testing.T) {
	g := &task.ResolvedGraph{Tasks: []*task.Resolved{
		{Task: task.Task{ID: "bbbbbbbb", Project: "acme", Status: task.StatusPending, Priority: task.PriorityLow}, Classification: task.ClassificationReady, ResolvedWorkdir: "/resolved/acme"},
		{Task: task.Task{ID: "aaaaaaaa", Project: "acme", Status: task.StatusPending, Priority: task.PriorityHigh}, Classification: task.ClassificationReady, ResolvedWorkdir: "/resolved/acme"},
	}}
	states := map[string]*task.ProjectState{"acme": {Running: map[string]struct{}{}}}

	got := Pick(map[string]*task.ResolvedGraph{"acme": g}, states, Limits{GlobalCap: 10})
	require.NotNil(t, got)
	assert.Equal(t, "aaaaaaaa", got.ID, "high priority task must be picked first")
}

func TestPick_CapacityScenario(t *testing.T) {
	// Global cap 3, project P limit 2, project Q unbounded; 2 ready in each.
	pGraph := readyGraph("P", "p1111111", "p2222222")
	qGraph := readyGraph("Q", "q1111111", "q2222222")
	limitP := 2
	states := map[string]*task.ProjectState{
		"P": {Limit: &limitP, Running: map[string]struct{}{}},
		"Q": {Running: map[string]struct{}{}},
	}
	graphs := map[string]*task.ResolvedGraph{"P": pGraph, "Q": qGraph}

	dispatched := map[string]struct{}{}
	for i := 0; i < 3; i++ {
		got := Pick(graphs, states, Limits{GlobalCap: 3})
		require.NotNil(t, got, "expected a dispatch on iteration %d", i)
		dispatched[got.ID] = struct{}{}
		states[got.Project].Running[got.ID] = struct{}{}
	}
	assert.Len(t, dispatched, 3)

	// A 4th pick must fail: global cap reached.
	got := Pick(graphs, states, Limits{GlobalCap: 3})
	assert.Nil(t, got)
}

func TestPick_MissingWorkdirFallsBackToConfiguredDefault(t *testing.T) {
	defer func(orig func(string) bool) { workdirExists = orig }(workdirExists)
	workdirExists = func(path string) bool { return path == "/default" }

	g := &task.ResolvedGraph{Tasks: []*task.Resolved{
		{Task: task.Task{ID: "aaaaaaaa", Project: "acme", Status: task.StatusPending, Priority: task.PriorityMedium}, Classification: task.ClassificationReady},
	}}
	g.Stats.Ready = 1
	states := map[string]*task.ProjectState{"acme": {Running: map[string]struct{}{}}}

	got := Pick(map[string]*task.ResolvedGraph{"acme": g}, states, Limits{GlobalCap: 10, DefaultWorkdir: "/default"})
	require.NotNil(t, got)
	assert.Equal(t, "/default", got.ResolvedWorkdir)
	assert.Equal(t, task.ClassificationReady, got.Classification)
}

func TestPick_MissingWorkdirAndNoDefaultIsReclassifiedBlocked(t *testing.T) {
	defer func(orig func(string) bool) { workdirExists = orig }(workdirExists)
	workdirExists = func(string) bool { return false }

	r := &task.Resolved{Task: task.Task{ID: "aaaaaaaa", Project: "acme", Status: task.StatusPending, Priority: task.PriorityMedium}, Classification: task.ClassificationReady}
	g := &task.ResolvedGraph{Tasks: []*task.Resolved{r}}
	g.Stats.Ready = 1
	states := map[string]*task.ProjectState{"acme": {Running: map[string]struct{}{}}}

	got := Pick(map[string]*task.ResolvedGraph{"acme": g}, states, Limits{GlobalCap: 10, DefaultWorkdir: "/default"})
	assert.Nil(t, got, "a task with no resolvable workdir must not be dispatched")
	assert.Equal(t, task.ClassificationBlocked, r.Classification)
	assert.Equal(t, "workdir not found", r.BlockedByReason)
	assert.Equal(t, 0, g.Stats.Ready)
	assert.Equal(t, 1, g.Stats.Blocked)
}

func TestPick_NoCandidatesReturnsNil(t *testing.T) {
	got := Pick(map[string]*task.ResolvedGraph{}, map[string]*task.ProjectState{}, Limits{GlobalCap: 10})
	assert.Nil(t, got)
}
