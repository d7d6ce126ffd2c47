package e2e

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cuemby/procpool/pkg/client"
	"github.com/cuemby/procpool/test/framework"
)

func intPtr(n int) *int { return &n }

// TestPriorityOrdering holds the single slot with a blocker, stacks up
// tasks with distinct priorities, and checks the order they ran in.
func TestPriorityOrdering(t *testing.T) {
	config := framework.DefaultHarnessConfig()
	config.Concurrency = 1

	harness, err := framework.NewHarness(config)
	if err != nil {
		t.Fatalf("Failed to create harness: %v", err)
	}
	defer func() { _ = harness.Cleanup() }()

	if err := harness.Start(); err != nil {
		t.Fatalf("Failed to start daemon: %v", err)
	}

	waiter := framework.DefaultWaiter()
	ctx := context.Background()

	// Occupy the only slot so the writers pile up in the queue
	blocker, err := harness.Client.Submit([]client.TaskRequest{{
		Cmd:      []string{"sleep", "3"},
		Priority: intPtr(1),
	}})
	if err != nil {
		t.Fatalf("Failed to submit blocker: %v", err)
	}
	if err := waiter.WaitForStatus(ctx, harness.Client, blocker[0].ID, "processing"); err != nil {
		t.Fatalf("Blocker never started: %v", err)
	}

	orderFile := filepath.Join(harness.Config.DataDir, "order")
	for _, priority := range []int{30, 10, 20} {
		_, err := harness.Client.Submit([]client.TaskRequest{{
			Cmd:      []string{"sh", "-c", fmt.Sprintf("echo %d >> %s", priority, orderFile)},
			Priority: intPtr(priority),
		}})
		if err != nil {
			t.Fatalf("Failed to submit writer %d: %v", priority, err)
		}
	}

	queued, err := harness.Client.Queued()
	if err != nil {
		t.Fatalf("Failed to list queued tasks: %v", err)
	}
	if len(queued) != 3 {
		t.Fatalf("Expected 3 queued writers behind the blocker, got %d", len(queued))
	}

	if err := waiter.WaitForDrained(ctx, harness.Client); err != nil {
		t.Fatalf("Pool never drained: %v", err)
	}

	data, err := os.ReadFile(orderFile)
	if err != nil {
		t.Fatalf("Failed to read order file: %v", err)
	}
	got := strings.Fields(string(data))
	want := []string{"10", "20", "30"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d runs, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Writers ran out of priority order: %v", got)
		}
	}
}
