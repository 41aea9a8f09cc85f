package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brain/internal/task"
)

func mkResolved(id, project string) *task.Resolved {
	return &task.Resolved{
		Task: task.Task{ID: id, Project: project, Status: task.StatusInProgress},
	}
}

func TestSupervisor_LaunchAwaitCompleted(t *testing.T) {
	s := New(NewLocalBackend(), NewLogBroadcaster(10, nil), 30*time.Second, time.Minute)

	err := s.Launch(context.Background(), mkResolved("aaaaaaaa", "acme"), "true", nil, nil)
	require.NoError(t, err)

	out, err := s.Await("aaaaaaaa")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, out.Outcome)
}

func TestSupervisor_NonZeroExitIsBlocked(t *testing.T) {
	s := New(NewLocalBackend(), NewLogBroadcaster(10, nil), 30*time.Second, time.Minute)

	err := s.Launch(context.Background(), mkResolved("bbbbbbbb", "acme"), "false", nil, nil)
	require.NoError(t, err)

	out, err := s.Await("bbbbbbbb")
	require.NoError(t, err)
	assert.Equal(t, OutcomeBlocked, out.Outcome)
	assert.Contains(t, out.Reason, "exit code")
}

// TestSupervisor_CancelIsPrompt covers P5: cancelTask results in a
// cancelled outcome within grace of the call.
func TestSupervisor_CancelIsPrompt(t *testing.T) {
	s := New(NewLocalBackend(), NewLogBroadcaster(10, nil), 200*time.Millisecond, time.Minute)

	err := s.Launch(context.Background(), mkResolved("cccccccc", "acme"), "sleep", []string{"30"}, nil)
	require.NoError(t, err)

	start := time.Now()
	err = s.Cancel(context.Background(), "cccccccc")
	require.NoError(t, err)

	out, err := s.Await("cccccccc")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, out.Outcome)
	assert.Less(t, time.Since(start), 2*time.Second, "cancellation must complete within grace + epsilon")
}

func TestSupervisor_RunningIDsSnapshot(t *testing.T) {
	s := New(NewLocalBackend(), NewLogBroadcaster(10, nil), 30*time.Second, time.Minute)

	require.NoError(t, s.Launch(context.Background(), mkResolved("dddddddd", "acme"), "sleep", []string{"1"}, nil))
	ids := s.RunningIDs()
	assert.Contains(t, ids, "dddddddd")

	_, err := s.Await("dddddddd")
	require.NoError(t, err)
	assert.NotContains(t, s.RunningIDs(), "dddddddd")
}

// TestLogBroadcaster_PreservesOrder covers P6: frames from one process
// arrive at a subscriber in emission order.
func TestLogBroadcaster_PreservesOrder(t *testing.T) {
	b := NewLogBroadcaster(100, nil)
	ch := b.Subscribe("tui")

	for i := 0; i < 20; i++ {
		b.Publish("taskid1", "acme", string(rune('a'+i)))
	}

	for i := 0; i < 20; i++ {
		rec := <-ch
		assert.Equal(t, string(rune('a'+i)), rec.Message)
	}
}

func TestLogBroadcaster_DropsOldestWhenFull(t *testing.T) {
	dropped := 0
	b := NewLogBroadcaster(2, func(name string) { dropped++ })
	ch := b.Subscribe("tui")

	for i := 0; i < 5; i++ {
		b.Publish("taskid1", "acme", "line")
	}

	assert.Positive(t, dropped)
	// Channel should still be readable without blocking.
	select {
	case <-ch:
	default:
		t.Fatal("expected at least one buffered record")
	}
}

func TestLogBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := NewLogBroadcaster(10, nil)
	ch := b.Subscribe("tui")
	b.Unsubscribe("tui")

	_, ok := <-ch
	assert.False(t, ok)
}

func TestClassifyOutcomeLine(t *testing.T) {
	assert.True(t, ClassifyOutcomeLine("status="+BlockedSentinel))
	assert.False(t, ClassifyOutcomeLine("status=ok"))
}

// TestSupervisor_ZeroExitWithBlockedSentinelIsBlocked covers the case where
// an agent exits 0 but wrote a deliberate blocked sentinel into its outcome
// file instead of completing the task.
func TestSupervisor_ZeroExitWithBlockedSentinelIsBlocked(t *testing.T) {
	workdir := t.TempDir()
	outcomePath := filepath.Join(workdir, OutcomeFileName)
	require.NoError(t, os.WriteFile(outcomePath, []byte("status="+BlockedSentinel+": needs human input\n"), 0644))

	r := mkResolved("eeeeeeee", "acme")
	r.ResolvedWorkdir = workdir

	s := New(NewLocalBackend(), NewLogBroadcaster(10, nil), 30*time.Second, time.Minute)
	require.NoError(t, s.Launch(context.Background(), r, "true", nil, nil))

	out, err := s.Await("eeeeeeee")
	require.NoError(t, err)
	assert.Equal(t, OutcomeBlocked, out.Outcome)
	assert.Contains(t, out.Reason, BlockedSentinel)
}

func TestSupervisor_ZeroExitWithNoOutcomeFileIsCompleted(t *testing.T) {
	r := mkResolved("ffffffff", "acme")
	r.ResolvedWorkdir = t.TempDir()

	s := New(NewLocalBackend(), NewLogBroadcaster(10, nil), 30*time.Second, time.Minute)
	require.NoError(t, s.Launch(context.Background(), r, "true", nil, nil))

	out, err := s.Await("ffffffff")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, out.Outcome)
}
