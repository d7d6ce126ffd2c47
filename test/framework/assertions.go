package framework

import (
	"strings"

	"github.com/cuemby/procpool/pkg/client"
	"github.com/cuemby/procpool/pkg/task"
)

// Assertions provides test assertion helpers
type Assertions struct {
	t TestingT
}

// NewAssertions creates a new Assertions instance
func NewAssertions(t TestingT) *Assertions {
	return &Assertions{t: t}
}

// TaskExists asserts that a task exists and returns its slim view
func (a *Assertions) TaskExists(id string, c *client.Client) *task.Slim {
	a.t.Helper()

	t, err := c.Get(id)
	if err != nil {
		a.t.Fatalf("Failed to get task %s: %v", id, err)
	}
	if t == nil {
		a.t.Fatalf("Task %s does not exist", id)
	}
	return t
}

// TaskStatus asserts that a task reports the expected status
func (a *Assertions) TaskStatus(id, expected string, c *client.Client) {
	a.t.Helper()

	t := a.TaskExists(id, c)
	if string(t.Status) != expected {
		a.t.Fatalf("Task %s has status %s, expected %s", id, t.Status, expected)
	}
}

// TaskExitCode asserts that a task recorded the expected exit code
func (a *Assertions) TaskExitCode(id string, expected int, c *client.Client) {
	a.t.Helper()

	t := a.TaskExists(id, c)
	if t.ExitCode != expected {
		a.t.Fatalf("Task %s has exit code %d, expected %d", id, t.ExitCode, expected)
	}
}

// TaskHasNote asserts that one of the task's notes contains the substring
func (a *Assertions) TaskHasNote(id, substr string, c *client.Client) {
	a.t.Helper()

	t := a.TaskExists(id, c)
	for _, note := range t.Notes {
		if strings.Contains(note.Text, substr) {
			return
		}
	}
	a.t.Fatalf("Task %s has no note containing %q (notes: %+v)", id, substr, t.Notes)
}

// LogContains asserts that the task's log file contains the substring
func (a *Assertions) LogContains(id, substr string, c *client.Client) {
	a.t.Helper()

	data, err := c.Log(id)
	if err != nil {
		a.t.Fatalf("Failed to fetch log for task %s: %v", id, err)
	}
	if !strings.Contains(string(data), substr) {
		a.t.Fatalf("Log for task %s does not contain %q:\n%s", id, substr, data)
	}
}

// NothingRunning asserts that no task is currently processing
func (a *Assertions) NothingRunning(c *client.Client) {
	a.t.Helper()

	running, err := c.Running()
	if err != nil {
		a.t.Fatalf("Failed to list running tasks: %v", err)
	}
	if len(running) != 0 {
		a.t.Fatalf("Expected nothing running, found %d tasks", len(running))
	}
}

// QueueEmpty asserts that no task is waiting in the queue
func (a *Assertions) QueueEmpty(c *client.Client) {
	a.t.Helper()

	queued, err := c.Queued()
	if err != nil {
		a.t.Fatalf("Failed to list queued tasks: %v", err)
	}
	if len(queued) != 0 {
		a.t.Fatalf("Expected an empty queue, found %d tasks", len(queued))
	}
}
