// Package proc supervises a single child process on behalf of a task
// record.
//
// A Proc owns the full child lifecycle: it opens the task's log sink,
// spawns the command with the record's environment, working directory,
// and stdin, commits the processing state, awaits the exit, and
// interprets the result into a terminal status. Stdout goes to the log
// file when one is configured and is captured on the record otherwise;
// stderr is always captured and appended to the log file after exit.
//
// # Outcome Interpretation
//
// A child that produced stderr output and exited non-zero is errored.
// A child that outlived its timeout is timed-out; the supervisor sends
// SIGTERM at the deadline and escalates to SIGKILL after a grace
// period. Everything else is finished, whatever the exit code, so
// callers can distinguish "ran and failed" from "could not run" by the
// recorded status and code. A child that never spawned keeps the
// ExitCodeNone sentinel.
//
// # Signals
//
// Terminate, Kill, Pause, and Resume deliver signals to a live child
// and do nothing once the child is gone. Pause marks the supervisor
// suspended until a Resume clears it.
//
// # Usage
//
//	p := proc.New(rec, 10*time.Second)
//	if err := p.Run(); err != nil {
//		// the task store rejected a state commit
//	}
//
// # See Also
//
//   - pkg/task for the record the supervisor mutates
//   - pkg/pool for the executor that owns supervisor goroutines
package proc
