package e2e

import (
	"context"
	"testing"

	"github.com/cuemby/procpool/pkg/client"
	"github.com/cuemby/procpool/test/framework"
)

// TestRestartDurability checks that task records survive a full daemon
// restart over the same store
func TestRestartDurability(t *testing.T) {
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
		Cmd: []string{"echo", "outlive the daemon"},
	}})
	if err != nil {
		t.Fatalf("Failed to submit task: %v", err)
	}
	id := inserted[0].ID

	if err := waiter.WaitForComplete(ctx, harness.Client, id); err != nil {
		t.Fatalf("Task did not complete: %v", err)
	}

	if err := harness.Restart(); err != nil {
		t.Fatalf("Failed to restart daemon: %v", err)
	}

	assert.TaskStatus(id, "finished", harness.Client)
	assert.TaskExitCode(id, 0, harness.Client)

	done, err := harness.Client.ByState("complete")
	if err != nil {
		t.Fatalf("Failed to list complete tasks: %v", err)
	}
	found := false
	for _, task := range done {
		if task.ID == id {
			found = true
		}
	}
	if !found {
		t.Errorf("Task %s missing from the complete bucket after restart", id)
	}
}

// TestRequeueErroredTask requeues a failed task through the update
// route and watches the dispatcher run it a second time
func TestRequeueErroredTask(t *testing.T) {
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
		Cmd: []string{"sh", "-c", "exit 3"},
	}})
	if err != nil {
		t.Fatalf("Failed to submit task: %v", err)
	}
	id := inserted[0].ID

	if err := waiter.WaitForStatus(ctx, harness.Client, id, "errored"); err != nil {
		t.Fatalf("Task did not error: %v", err)
	}
	assert.TaskExitCode(id, 3, harness.Client)

	// Putting it back in the queue is a plain field update
	updated, err := harness.Client.Update(id, map[string]any{"status": "queued"})
	if err != nil {
		t.Fatalf("Failed to requeue: %v", err)
	}
	if string(updated.Status) != "queued" {
		t.Errorf("Expected status queued, got %s", updated.Status)
	}

	// The second run leaves a second start note behind
	err = waiter.WaitFor(ctx, func() bool {
		task, err := harness.Client.Get(id)
		if err != nil || task == nil {
			return false
		}
		starts := 0
		for _, note := range task.Notes {
			if note.Text == "task started" {
				starts++
			}
		}
		return starts >= 2 && string(task.Status) == "errored"
	}, "the task to run a second time")
	if err != nil {
		t.Fatal(err)
	}
	assert.TaskExitCode(id, 3, harness.Client)
}
