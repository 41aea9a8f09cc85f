package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brain/internal/task"
)

func mkTask(id string, status task.Status, deps ...string) *task.Task {
	return &task.Task{
		ID:        id,
		Project:   "acme",
		Status:    status,
		Priority:  task.PriorityMedium,
		DependsOn: deps,
	}
}

func findResolved(g *task.ResolvedGraph, id string) *task.Resolved {
	for _, r := range g.Tasks {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func TestResolve_DiamondGraph(t *testing.T) {
	a := mkTask("aaaaaaaa", task.StatusPending)
	b := mkTask("bbbbbbbb", task.StatusPending, "aaaaaaaa")
	c := mkTask("cccccccc", task.StatusPending, "aaaaaaaa")
	d := mkTask("dddddddd", task.StatusPending, "bbbbbbbb", "cccccccc")

	g := Resolve([]*task.Task{a, b, c, d})
	assert.Equal(t, task.ClassificationReady, findResolved(g, "aaaaaaaa").Classification)
	assert.Equal(t, task.ClassificationWaiting, findResolved(g, "bbbbbbbb").Classification)
	assert.Equal(t, task.ClassificationWaiting, findResolved(g, "cccccccc").Classification)
	assert.Equal(t, task.ClassificationWaiting, findResolved(g, "dddddddd").Classification)

	a.Status = task.StatusCompleted
	g = Resolve([]*task.Task{a, b, c, d})
	assert.Equal(t, task.ClassificationReady, findResolved(g, "bbbbbbbb").Classification)
	assert.Equal(t, task.ClassificationReady, findResolved(g, "cccccccc").Classification)
	assert.Equal(t, task.ClassificationWaiting, findResolved(g, "dddddddd").Classification)

	b.Status = task.StatusCompleted
	c.Status = task.StatusCompleted
	g = Resolve([]*task.Task{a, b, c, d})
	assert.Equal(t, task.ClassificationReady, findResolved(g, "dddddddd").Classification)
}

func TestResolve_Cycle(t *testing.T) {
	x := mkTask("xxxxxxxx", task.StatusPending, "yyyyyyyy")
	y := mkTask("yyyyyyyy", task.StatusPending, "xxxxxxxx")

	g := Resolve([]*task.Task{x, y})

	rx := findResolved(g, "xxxxxxxx")
	ry := findResolved(g, "yyyyyyyy")
	require.NotNil(t, rx)
	require.NotNil(t, ry)

	assert.True(t, rx.InCycle)
	assert.Equal(t, task.ClassificationBlocked, rx.Classification)
	assert.Equal(t, "cycle", rx.BlockedByReason)
	assert.True(t, ry.InCycle)
	assert.Equal(t, task.ClassificationBlocked, ry.Classification)
	assert.Equal(t, "cycle", ry.BlockedByReason)
	assert.Equal(t, 2, g.Stats.Blocked)
}

func TestResolve_UnresolvedDependency(t *testing.T) {
	a := mkTask("aaaaaaaa", task.StatusPending, "zzzzzzzz")

	g := Resolve([]*task.Task{a})
	ra := findResolved(g, "aaaaaaaa")
	require.NotNil(t, ra)

	// P1: external/missing deps are treated as satisfied.
	assert.Equal(t, task.ClassificationReady, ra.Classification)
	assert.Equal(t, []string{"zzzzzzzz"}, ra.UnresolvedDeps)
}

func TestResolve_BlockedDependencyPropagates(t *testing.T) {
	a := mkTask("aaaaaaaa", task.StatusBlocked)
	b := mkTask("bbbbbbbb", task.StatusPending, "aaaaaaaa")

	g := Resolve([]*task.Task{a, b})
	rb := findResolved(g, "bbbbbbbb")
	require.NotNil(t, rb)
	assert.Equal(t, task.ClassificationBlocked, rb.Classification)
	assert.Contains(t, rb.BlockedBy, "aaaaaaaa")
}

func TestResolve_TerminalStatusesAreCompleted(t *testing.T) {
	for _, s := range []task.Status{task.StatusCompleted, task.StatusValidated, task.StatusCancelled, task.StatusSuperseded, task.StatusArchived} {
		a := mkTask("aaaaaaaa", s)
		g := Resolve([]*task.Task{a})
		assert.Equal(t, task.ClassificationCompleted, findResolved(g, "aaaaaaaa").Classification, "status %s", s)
	}
}

func TestResolve_DraftAlwaysWaiting(t *testing.T) {
	a := mkTask("aaaaaaaa", task.StatusDraft)
	g := Resolve([]*task.Task{a})
	assert.Equal(t, task.ClassificationWaiting, findResolved(g, "aaaaaaaa").Classification)
}

func TestResolve_CompletedOnlyProjectYieldsZeroStats(t *testing.T) {
	a := mkTask("aaaaaaaa", task.StatusCompleted)
	b := mkTask("bbbbbbbb", task.StatusArchived)

	g := Resolve([]*task.Task{a, b})
	assert.Equal(t, 0, g.Stats.Ready)
	assert.Equal(t, 0, g.Stats.Waiting)
	assert.Equal(t, 0, g.Stats.Blocked)
}

func TestResolve_DeterministicOrdering(t *testing.T) {
	a := mkTask("bbbbbbbb", task.StatusPending)
	a.Priority = task.PriorityLow
	b := mkTask("aaaaaaaa", task.StatusPending)
	b.Priority = task.PriorityHigh

	g1 := Resolve([]*task.Task{a, b})
	g2 := Resolve([]*task.Task{a, b})

	require.Equal(t, len(g1.Tasks), len(g2.Tasks))
	for i := range g1.Tasks {
		assert.Equal(t, g1.Tasks[i].ID, g2.Tasks[i].ID)
	}
	// High priority task sorts first regardless of input order.
	assert.Equal(t, "aaaaaaaa", g1.Tasks[0].ID)
}
