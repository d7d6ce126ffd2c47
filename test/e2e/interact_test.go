package e2e

import (
	"context"
	"strings"
	"testing"

	"github.com/cuemby/procpool/pkg/client"
	"github.com/cuemby/procpool/pkg/types"
	"github.com/cuemby/procpool/test/framework"
)

// TestSignalActions drives a running child through the configured
// actions over the HTTP API
func TestSignalActions(t *testing.T) {
	harness, err := framework.NewHarness(nil)
	if err != nil {
		t.Fatalf("Failed to create harness: %v", err)
	}
	defer func() { _ = harness.Cleanup() }()

	if err := harness.Start(); err != nil {
		t.Fatalf("Failed to start daemon: %v", err)
	}

	assert := framework.NewAssertions(t)
	waiter := framework.DefaultWaiter()
	ctx := context.Background()

	inserted, err := harness.Client.Submit([]client.TaskRequest{{
		Cmd: []string{"sleep", "30"},
	}})
	if err != nil {
		t.Fatalf("Failed to submit task: %v", err)
	}
	id := inserted[0].ID

	if err := waiter.WaitForStatus(ctx, harness.Client, id, "processing"); err != nil {
		t.Fatalf("Task never started: %v", err)
	}

	t.Run("Pause", func(t *testing.T) {
		updated, err := harness.Client.Interact(id, "pause")
		if err != nil {
			t.Fatalf("Failed to pause: %v", err)
		}
		if string(updated.Status) != "paused" {
			t.Errorf("Expected status paused, got %s", updated.Status)
		}
		assert.TaskStatus(id, "paused", harness.Client)
		assert.TaskHasNote(id, `Action sent to process: "pause"`, harness.Client)
	})

	t.Run("Resume", func(t *testing.T) {
		updated, err := harness.Client.Interact(id, "resume")
		if err != nil {
			t.Fatalf("Failed to resume: %v", err)
		}
		if string(updated.Status) != "processing" {
			t.Errorf("Expected status processing, got %s", updated.Status)
		}
	})

	t.Run("UnknownAction", func(t *testing.T) {
		_, err := harness.Client.Interact(id, "defenestrate")
		if err == nil {
			t.Fatal("Expected an error for an unknown action")
		}
		if !strings.Contains(err.Error(), "Action not permitted: defenestrate") {
			t.Errorf("Unexpected error: %v", err)
		}
	})

	t.Run("Terminate", func(t *testing.T) {
		updated, err := harness.Client.Interact(id, "terminate")
		if err != nil {
			t.Fatalf("Failed to terminate: %v", err)
		}
		if string(updated.Status) != "terminated" {
			t.Errorf("Expected status terminated, got %s", updated.Status)
		}

		// The supervisor owns the last word: once the wait returns it
		// records the signal exit and the outcome it computed
		err = waiter.WaitFor(ctx, func() bool {
			task, err := harness.Client.Get(id)
			return err == nil && task != nil && task.ExitCode != types.ExitCodeNone
		}, "the supervisor to record the exit")
		if err != nil {
			t.Fatal(err)
		}

		task := assert.TaskExists(id, harness.Client)
		if task.ExitCode >= 0 {
			t.Errorf("Expected a negative exit code for a signalled child, got %d", task.ExitCode)
		}
		assert.TaskStatus(id, "finished", harness.Client)
	})

	t.Run("CompletedTask", func(t *testing.T) {
		_, err := harness.Client.Interact(id, "kill")
		if err == nil {
			t.Fatal("Expected an error interacting with a completed task")
		}
		if !strings.Contains(err.Error(), "nothing to do here") {
			t.Errorf("Unexpected error: %v", err)
		}
	})
}
