package runnerloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brain/internal/control"
	"brain/internal/entrystore"
	"brain/internal/memprobe"
	"brain/internal/scheduler"
	"brain/internal/supervisor"
	"brain/internal/task"
)

func newTestLoop(t *testing.T, store *entrystore.Fake, projects ...string) *Loop {
	t.Helper()
	sup := supervisor.New(supervisor.NewLocalBackend(), supervisor.NewLogBroadcaster(10, nil), 200*time.Millisecond, time.Minute)
	agent := AgentSpec{Command: "true"}
	return New(store, sup, agent, nil, projects, scheduler.Limits{GlobalCap: 10}, time.Hour, 200*time.Millisecond)
}

func mkTask(id, project string, status task.Status) *task.Task {
	return &task.Task{ID: id, Path: "/tmp/" + id + ".md", Project: project, Status: status, Priority: task.PriorityMedium, Workdir: "/tmp"}
}

// TestTick_DispatchesReadyTask covers the basic poll-resolve-dispatch path.
func TestTick_DispatchesReadyTask(t *testing.T) {
	store := entrystore.NewFake()
	store.Seed("acme", []*task.Task{mkTask("aaaaaaaa", "acme", task.StatusPending)})

	l := newTestLoop(t, store, "acme")
	l.tick(context.Background())

	st := l.projects["acme"]
	assert.Len(t, st.Running, 1)
	assert.Contains(t, st.Running, "aaaaaaaa")
}

// TestPauseThenResume covers P7: pause then resume without intervening
// changes leaves ProjectState observationally identical.
func TestPauseThenResume(t *testing.T) {
	store := entrystore.NewFake()
	l := newTestLoop(t, store, "acme")

	before := *l.projects["acme"]

	result := make(chan control.CommandResult, 1)
	l.applyCommand(context.Background(), control.Command{Kind: control.CmdPause, Project: "acme", Result: result})
	require.True(t, (<-result).OK)
	l.applyCommand(context.Background(), control.Command{Kind: control.CmdResume, Project: "acme", Result: result})
	require.True(t, (<-result).OK)

	after := *l.projects["acme"]
	assert.Equal(t, before.Paused, after.Paused)
}

// TestPause_UnknownProjectIsNoop covers the spec's explicit no-op behavior.
func TestPause_UnknownProjectIsNoop(t *testing.T) {
	store := entrystore.NewFake()
	l := newTestLoop(t, store, "acme")

	result := make(chan control.CommandResult, 1)
	l.applyCommand(context.Background(), control.Command{Kind: control.CmdPause, Project: "ghost", Result: result})
	assert.True(t, (<-result).OK)
}

// TestReconcileCrashed covers the crash-recovery scenario: a task persisted
// in_progress with no supervised process is demoted to pending.
func TestReconcileCrashed(t *testing.T) {
	store := entrystore.NewFake()
	store.Seed("acme", []*task.Task{mkTask("aaaaaaaa", "acme", task.StatusInProgress)})

	l := newTestLoop(t, store, "acme")
	l.tick(context.Background())

	resp, err := store.List(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, resp.Tasks, 1)
	assert.Equal(t, task.StatusPending, resp.Tasks[0].Status)
}

// TestExecuteTask_RespectsCapacity covers manual execute failing cleanly at
// capacity rather than queueing.
func TestExecuteTask_RespectsCapacity(t *testing.T) {
	store := entrystore.NewFake()
	store.Seed("acme", []*task.Task{mkTask("aaaaaaaa", "acme", task.StatusPending)})

	l := newTestLoop(t, store, "acme")
	limit := 0
	l.projects["acme"].Limit = &limit

	result := make(chan control.CommandResult, 1)
	l.applyCommand(context.Background(), control.Command{
		Kind: control.CmdExecuteTask, Project: "acme", TaskID: "aaaaaaaa", Result: result,
	})
	assert.False(t, (<-result).OK)
}

// TestExecuteTask_RespectsMemoryGuard covers manual execute still honoring
// the memory guard even though it bypasses the scheduler's feature filter.
func TestExecuteTask_RespectsMemoryGuard(t *testing.T) {
	store := entrystore.NewFake()
	store.Seed("acme", []*task.Task{mkTask("aaaaaaaa", "acme", task.StatusPending)})

	l := newTestLoop(t, store, "acme")
	l.Limits.MemoryThresholdPct = 10
	l.Limits.MemoryProvider = &memprobe.Fake{AvailableBytes: 1, TotalBytes: 100} // 1%

	result := make(chan control.CommandResult, 1)
	l.applyCommand(context.Background(), control.Command{
		Kind: control.CmdExecuteTask, Project: "acme", TaskID: "aaaaaaaa", Result: result,
	})
	assert.False(t, (<-result).OK, "manual execute must defer when available memory is below threshold")
	assert.Empty(t, l.projects["acme"].Running)
}

// TestTick_FocusModeAutoExits covers spec.md §8 scenario 4: once every task
// in a focused feature reaches terminal status, the whitelist clears itself.
func TestTick_FocusModeAutoExits(t *testing.T) {
	store := entrystore.NewFake()
	authTask := mkTask("aaaaaaaa", "acme", task.StatusCompleted)
	authTask.FeatureID = "auth"
	billingTask := mkTask("bbbbbbbb", "acme", task.StatusPending)
	billingTask.FeatureID = "billing"
	store.Seed("acme", []*task.Task{authTask, billingTask})

	l := newTestLoop(t, store, "acme")
	l.projects["acme"].EnabledFeatures["auth"] = struct{}{}

	l.tick(context.Background())

	assert.Empty(t, l.projects["acme"].EnabledFeatures, "focus must auto-exit once its feature's tasks all finish")
}

func TestTick_FocusModeStaysActiveWhilePending(t *testing.T) {
	store := entrystore.NewFake()
	authTask := mkTask("aaaaaaaa", "acme", task.StatusPending)
	authTask.FeatureID = "auth"
	store.Seed("acme", []*task.Task{authTask})

	l := newTestLoop(t, store, "acme")
	l.projects["acme"].EnabledFeatures["auth"] = struct{}{}

	l.tick(context.Background())

	assert.Contains(t, l.projects["acme"].EnabledFeatures, "auth", "focus must stay active while its own tasks are still pending/in_progress")
}

func TestUpdateStatus_ProxiesToStore(t *testing.T) {
	store := entrystore.NewFake()
	store.Seed("acme", []*task.Task{mkTask("aaaaaaaa", "acme", task.StatusPending)})

	l := newTestLoop(t, store, "acme")
	result := make(chan control.CommandResult, 1)
	l.applyCommand(context.Background(), control.Command{
		Kind: control.CmdUpdateStatus, Path: "/tmp/aaaaaaaa.md", Status: task.StatusCancelled, Result: result,
	})
	assert.True(t, (<-result).OK)

	resp, _ := store.List(context.Background(), "acme")
	assert.Equal(t, task.StatusCancelled, resp.Tasks[0].Status)
}
