package framework

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/procpool/pkg/client"
	"github.com/cuemby/procpool/pkg/config"
	"github.com/cuemby/procpool/pkg/daemon"
)

// DefaultHarnessConfig returns a default harness configuration
func DefaultHarnessConfig() *HarnessConfig {
	dataDir := os.Getenv("PROC_POOL_TEST_DATA_DIR")

	return &HarnessConfig{
		Concurrency:   2,
		PollInterval:  1,
		Recover:       config.RecoverRelaunch,
		DataDir:       dataDir,
		LogLevel:      "error",
		KeepOnFailure: false,
	}
}

// Harness runs one daemon in-process on an ephemeral port with an
// isolated store, and exposes the HTTP client tests drive it with.
type Harness struct {
	// Config is the harness configuration
	Config *HarnessConfig
	// Addr is the base URL of the running daemon
	Addr string
	// Client talks to the daemon's HTTP API
	Client *client.Client

	cfg    *config.Config
	daemon *daemon.Daemon
}

// NewHarness creates a new test harness with the given configuration
func NewHarness(hc *HarnessConfig) (*Harness, error) {
	if hc == nil {
		hc = DefaultHarnessConfig()
	}
	if hc.DataDir == "" {
		dir, err := os.MkdirTemp("", "procpool-e2e-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		hc.DataDir = dir
	}

	cfg := &config.Config{}
	cfg.Startup.DB.URL = filepath.Join(hc.DataDir, "tasks.db")
	cfg.Startup.DB.Name = "task"
	cfg.Startup.Concurrency = hc.Concurrency
	cfg.Startup.Log.Path = filepath.Join(hc.DataDir, "daemon.log")
	cfg.Startup.Log.Level = hc.LogLevel
	cfg.Startup.ShutdownGrace = 10
	cfg.Runtime.Task.States = config.DefaultStates()
	cfg.Runtime.Task.Actions = config.DefaultActions()
	cfg.Runtime.Task.Log = filepath.Join(hc.DataDir, "logs", "{name}.log")
	cfg.Runtime.Task.FinishedTaskLog = filepath.Join(hc.DataDir, "finished_procs.log")
	cfg.Runtime.Task.PollInterval = hc.PollInterval
	cfg.Runtime.Task.KillGrace = 2
	cfg.Runtime.Task.Recover = hc.Recover
	cfg.Runtime.App.NotifyParents = hc.NotifyParents
	cfg.Runtime.App.Endpoints = config.DefaultEndpoints()

	return &Harness{Config: hc, cfg: cfg}, nil
}

// Start boots the daemon and waits until its API answers
func (h *Harness) Start() error {
	// Reserve an ephemeral port for the listener
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to pick a port: %w", err)
	}
	addr := lis.Addr().String()
	_ = lis.Close()

	h.cfg.Startup.Listen = addr
	h.Addr = "http://" + addr

	d, err := daemon.New(h.cfg)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}
	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	h.daemon = d
	h.Client = client.New(h.Addr)

	// Wait for the listener to come up
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(h.Addr + "/livez")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case err := <-d.Err():
			return fmt.Errorf("daemon failed during boot: %w", err)
		case <-time.After(50 * time.Millisecond):
		}
	}
	return fmt.Errorf("daemon did not come up at %s", h.Addr)
}

// Stop shuts the daemon down gracefully
func (h *Harness) Stop() error {
	if h.daemon == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(h.cfg.Startup.ShutdownGrace)*time.Second)
	defer cancel()

	err := h.daemon.Stop(ctx)
	h.daemon = nil
	return err
}

// Restart stops the daemon and boots a fresh one over the same store,
// which is how recovery behaviour is exercised end to end.
func (h *Harness) Restart() error {
	if err := h.Stop(); err != nil {
		return fmt.Errorf("failed to stop for restart: %w", err)
	}
	return h.Start()
}

// Cleanup stops the daemon and removes the data directory
func (h *Harness) Cleanup() error {
	if err := h.Stop(); err != nil {
		// Log but don't fail cleanup on stop errors
		fmt.Printf("Warning: error during stop: %v\n", err)
	}

	if !h.Config.KeepOnFailure {
		if err := os.RemoveAll(h.Config.DataDir); err != nil {
			return fmt.Errorf("failed to remove data dir: %w", err)
		}
	}
	return nil
}
