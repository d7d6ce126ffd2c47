package pool

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/procpool/pkg/config"
	"github.com/cuemby/procpool/pkg/events"
	"github.com/cuemby/procpool/pkg/store"
	"github.com/cuemby/procpool/pkg/task"
	"github.com/cuemby/procpool/pkg/types"
)

func testPool(t *testing.T, concurrency int) (*Pool, *task.Registry, *events.Stream, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Startup.DB.URL = filepath.Join(dir, "tasks.db")
	cfg.Startup.DB.Name = "task"
	cfg.Startup.Concurrency = concurrency
	cfg.Runtime.Task.States = config.DefaultStates()
	cfg.Runtime.Task.Actions = config.DefaultActions()
	cfg.Runtime.Task.PollInterval = 1
	cfg.Runtime.Task.KillGrace = 2
	cfg.Runtime.Task.Recover = config.RecoverRelaunch
	cfg.Runtime.App.Endpoints = config.DefaultEndpoints()

	st, err := store.NewBoltStore(cfg.Startup.DB.URL, cfg.Startup.DB.Name)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	stream := events.NewStream()
	t.Cleanup(stream.Close)
	return New(cfg, stream), task.NewRegistry(st, cfg), stream, cfg
}

// nextTerminal discards artifacts until a terminal one arrives.
func nextTerminal(t *testing.T, stream *events.Stream, timeout time.Duration) types.Artifact {
	t.Helper()
	got := make(chan types.Artifact, 1)
	go func() {
		for {
			a, ok := stream.Next()
			if !ok {
				return
			}
			if a.ToDelete != nil {
				got <- a
				return
			}
		}
	}()
	select {
	case a := <-got:
		return a
	case <-time.After(timeout):
		t.Fatalf("no terminal artifact within %v", timeout)
		return types.Artifact{}
	}
}

func TestLaunchRunsTaskToCompletion(t *testing.T) {
	p, reg, stream, _ := testPool(t, 1)

	rec, err := reg.Build(map[string]any{"cmd": []any{"echo", "hi"}})
	require.NoError(t, err)
	p.Launch(rec)

	terminal := nextTerminal(t, stream, 5*time.Second)
	assert.Equal(t, types.StatusFinished, terminal.Status)
	require.NotNil(t, terminal.ToDelete)
	assert.Equal(t, rec.Task.ID, terminal.ToDelete.ID)
	assert.Equal(t, 0, terminal.ToDelete.ExitCode)

	// The slot comes back and the supervisor unregisters
	require.Eventually(t, func() bool {
		return p.Available() == 1 && p.Get(rec.Task.ID) == nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestInputStreamPriorityOrder(t *testing.T) {
	p, reg, stream, _ := testPool(t, 1)

	var recs []*task.Record
	for _, priority := range []int{100, 10, 55} {
		rec, err := reg.Build(map[string]any{
			"cmd":      []any{"echo", "x"},
			"priority": priority,
		})
		require.NoError(t, err)
		recs = append(recs, rec)
	}

	q, err := p.InputStream(recs)
	require.NoError(t, err)

	// One slot means completions follow ascending priority
	var order []int
	for i := 0; i < 3; i++ {
		terminal := nextTerminal(t, stream, 5*time.Second)
		order = append(order, terminal.ToDelete.Priority)
	}
	assert.Equal(t, []int{10, 55, 100}, order)

	// Terminal records are forgotten by the queue
	require.Eventually(t, func() bool { return q.Len() == 0 }, 5*time.Second, 10*time.Millisecond)
	for _, rec := range recs {
		assert.Nil(t, q.Get(rec.Task.ID))
	}
}

func TestSlotsReturnAfterBurst(t *testing.T) {
	p, reg, stream, _ := testPool(t, 2)

	var recs []*task.Record
	for i := 0; i < 5; i++ {
		rec, err := reg.Build(map[string]any{"cmd": []any{"echo", "x"}})
		require.NoError(t, err)
		recs = append(recs, rec)
	}

	_, err := p.InputStream(recs)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		nextTerminal(t, stream, 5*time.Second)
	}

	require.Eventually(t, func() bool {
		return p.Available() == 2 && len(p.Running()) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestLaunchBlocksWhenPoolFull(t *testing.T) {
	p, reg, stream, _ := testPool(t, 1)

	slow, err := reg.Build(map[string]any{"cmd": []any{"sleep", "30"}})
	require.NoError(t, err)
	p.Launch(slow)
	require.Eventually(t, func() bool {
		pr := p.Get(slow.Task.ID)
		return pr != nil && pr.PID() != 0
	}, 5*time.Second, 10*time.Millisecond)

	quick, err := reg.Build(map[string]any{"cmd": []any{"echo", "x"}})
	require.NoError(t, err)
	launched := make(chan struct{})
	go func() {
		p.Launch(quick)
		close(launched)
	}()

	select {
	case <-launched:
		t.Fatal("Launch returned while the only slot was busy")
	case <-time.After(100 * time.Millisecond):
	}

	p.Get(slow.Task.ID).Kill()
	select {
	case <-launched:
	case <-time.After(5 * time.Second):
		t.Fatal("Launch never proceeded after the slot freed")
	}

	// Both tasks reach terminal states
	nextTerminal(t, stream, 5*time.Second)
	nextTerminal(t, stream, 5*time.Second)
}

func TestDispatcherClaimsFromStore(t *testing.T) {
	p, reg, stream, _ := testPool(t, 1)

	first, err := reg.Build(map[string]any{"cmd": []any{"echo", "one"}})
	require.NoError(t, err)
	second, err := reg.Build(map[string]any{"cmd": []any{"echo", "two"}})
	require.NoError(t, err)

	require.NoError(t, p.Start(nil, reg.NextQueued))

	done := map[string]bool{}
	for i := 0; i < 2; i++ {
		terminal := nextTerminal(t, stream, 10*time.Second)
		done[terminal.ToDelete.ID] = true
	}
	assert.True(t, done[first.Task.ID])
	assert.True(t, done[second.Task.ID])

	for _, rec := range []*task.Record{first, second} {
		again, err := reg.FromID(rec.Task.ID)
		require.NoError(t, err)
		require.NotNil(t, again)
		assert.Equal(t, types.StatusFinished, again.Task.Status)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, p.Stop(ctx))
}

func TestRecoveryRelaunch(t *testing.T) {
	p, reg, stream, _ := testPool(t, 1)

	_, err := reg.Build(map[string]any{"cmd": []any{"echo", "again"}})
	require.NoError(t, err)

	// Claim the task the way a dispatcher would, then "crash"
	claimed, err := reg.NextQueued()
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.Equal(t, types.StatusFetched, claimed.Task.Status)

	require.NoError(t, p.Start(reg.InProgress, nil))

	terminal := nextTerminal(t, stream, 5*time.Second)
	assert.Equal(t, types.StatusFinished, terminal.Status)
	assert.Equal(t, claimed.Task.ID, terminal.ToDelete.ID)
}

func TestRecoveryFail(t *testing.T) {
	p, reg, stream, cfg := testPool(t, 1)
	cfg.Runtime.Task.Recover = config.RecoverFail

	_, err := reg.Build(map[string]any{"cmd": []any{"echo", "never"}})
	require.NoError(t, err)
	claimed, err := reg.NextQueued()
	require.NoError(t, err)
	require.NotNil(t, claimed)

	require.NoError(t, p.Start(reg.InProgress, nil))

	terminal := nextTerminal(t, stream, 5*time.Second)
	assert.Equal(t, types.StatusErrored, terminal.Status)
	assert.Equal(t, types.ExitCodeNone, terminal.ToDelete.ExitCode)

	again, err := reg.FromID(claimed.Task.ID)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, types.StatusErrored, again.Task.Status)
	notes := again.Task.Notes
	require.NotEmpty(t, notes)
	assert.Equal(t, "recovered at startup -- not relaunched", notes[len(notes)-1].Text)

	// The failed task never ran, so no slot was consumed
	assert.Equal(t, 1, p.Available())
}

func TestStopKillsSlowTasks(t *testing.T) {
	p, reg, stream, _ := testPool(t, 1)

	rec, err := reg.Build(map[string]any{"cmd": []any{"sleep", "30"}})
	require.NoError(t, err)
	p.Launch(rec)
	require.Eventually(t, func() bool {
		pr := p.Get(rec.Task.ID)
		return pr != nil && pr.PID() != 0
	}, 5*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err = p.Stop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	terminal := nextTerminal(t, stream, 5*time.Second)
	assert.Equal(t, rec.Task.ID, terminal.ToDelete.ID)
	assert.Negative(t, rec.Task.ExitCode, "a killed child reports the signal as a negative code")
	assert.Empty(t, p.Running())
}
