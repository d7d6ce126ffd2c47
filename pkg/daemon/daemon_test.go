package daemon

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/procpool/pkg/config"
	"github.com/cuemby/procpool/pkg/store"
	"github.com/cuemby/procpool/pkg/task"
	"github.com/cuemby/procpool/pkg/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Startup.DB.URL = filepath.Join(dir, "tasks.db")
	cfg.Startup.DB.Name = "task"
	cfg.Startup.Concurrency = 2
	cfg.Startup.Listen = "127.0.0.1:0"
	cfg.Startup.Log.Path = filepath.Join(dir, "daemon.log")
	cfg.Startup.Log.Level = "error"
	cfg.Startup.ShutdownGrace = 5
	cfg.Runtime.Task.States = config.DefaultStates()
	cfg.Runtime.Task.Actions = config.DefaultActions()
	cfg.Runtime.Task.Log = filepath.Join(dir, "logs", "{name}.log")
	cfg.Runtime.Task.FinishedTaskLog = filepath.Join(dir, "finished_procs.log")
	cfg.Runtime.Task.PollInterval = 1
	cfg.Runtime.Task.KillGrace = 2
	cfg.Runtime.Task.Recover = config.RecoverRelaunch
	cfg.Runtime.App.Endpoints = config.DefaultEndpoints()
	return cfg
}

func reopen(t *testing.T, cfg *config.Config) *task.Registry {
	t.Helper()
	st, err := store.NewBoltStore(cfg.Startup.DB.URL, cfg.Startup.DB.Name)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return task.NewRegistry(st, cfg)
}

func TestDaemonRunsQueuedTasks(t *testing.T) {
	cfg := testConfig(t)

	d, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, d.Start())

	rec, err := d.Registry().Build(map[string]any{"cmd": []any{"echo", "all the way through"}})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := d.Registry().FromID(rec.Task.ID)
		return err == nil && got != nil && got.Task.Status == types.StatusFinished
	}, 10*time.Second, 50*time.Millisecond, "the dispatcher should claim and run the task")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))

	data, err := os.ReadFile(cfg.Runtime.Task.FinishedTaskLog)
	require.NoError(t, err)
	assert.Contains(t, string(data), rec.Task.ID, "a completion record lands on the sink")
	assert.Contains(t, string(data), "finished: ")
}

func TestDaemonRecoversLeftoverTask(t *testing.T) {
	cfg := testConfig(t)

	// A record left in processing looks like a crash mid-run. The seed
	// store has to be closed again before the daemon takes the file lock.
	seedStore, err := store.NewBoltStore(cfg.Startup.DB.URL, cfg.Startup.DB.Name)
	require.NoError(t, err)
	rec, err := task.NewRegistry(seedStore, cfg).Build(map[string]any{"cmd": []any{"echo", "back from the dead"}})
	require.NoError(t, err)
	require.NoError(t, rec.Commit(types.StatusProcessing, ""))
	require.NoError(t, seedStore.Close())

	d, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, d.Start())

	require.Eventually(t, func() bool {
		got, err := d.Registry().FromID(rec.Task.ID)
		return err == nil && got != nil && got.Task.Status == types.StatusFinished
	}, 10*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))
}

func TestDaemonStopKillsSlowChild(t *testing.T) {
	cfg := testConfig(t)

	d, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, d.Start())

	rec, err := d.Registry().Build(map[string]any{"cmd": []any{"sleep", "30"}})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := d.Registry().FromID(rec.Task.ID)
		return err == nil && got != nil && got.Task.Status == types.StatusProcessing
	}, 10*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	err = d.Stop(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	got, err := reopen(t, cfg).FromID(rec.Task.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Task.Status.In(cfg.Runtime.Task.States.Complete), "status: %s", got.Task.Status)
	assert.Negative(t, got.Task.ExitCode, "killed children report the signal")
}

func TestDaemonSurfacesListenerFailure(t *testing.T) {
	cfg := testConfig(t)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()
	cfg.Startup.Listen = lis.Addr().String()

	d, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, d.Start())

	select {
	case err := <-d.Err():
		assert.Contains(t, err.Error(), "address already in use")
	case <-time.After(5 * time.Second):
		t.Fatal("no listener failure reported")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))
}
