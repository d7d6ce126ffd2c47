package proc

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/procpool/pkg/log"
	"github.com/cuemby/procpool/pkg/task"
	"github.com/cuemby/procpool/pkg/types"
)

// DefaultKillGrace is how long a timed-out child gets between SIGTERM
// and SIGKILL when no grace is configured.
const DefaultKillGrace = 10 * time.Second

// Proc supervises one child process for one task record. Run drives the
// full lifecycle; the signal methods are safe to call from other
// goroutines at any point.
type Proc struct {
	rec       *task.Record
	killGrace time.Duration
	logger    zerolog.Logger

	mu        sync.Mutex
	cmd       *exec.Cmd
	exitCode  int
	awaited   bool
	suspended bool
	timedOut  bool
	killTimer *time.Timer
}

// New wraps a record in a supervisor. killGrace bounds how long a
// timed-out child may ignore SIGTERM; zero picks the default.
func New(rec *task.Record, killGrace time.Duration) *Proc {
	if killGrace <= 0 {
		killGrace = DefaultKillGrace
	}
	return &Proc{
		rec:       rec,
		killGrace: killGrace,
		exitCode:  types.ExitCodeNone,
		logger:    log.WithTaskID(rec.Task.ID),
	}
}

// Run executes the supervisor protocol: open the log sink, spawn the
// child, commit processing, feed stdin, await exit, interpret the
// outcome, and commit the terminal state. Child failures land on the
// task record; the returned error reports store trouble only.
func (p *Proc) Run() error {
	t := p.rec.Task

	var logFile *os.File
	if t.Log != "" {
		f, err := os.OpenFile(t.Log, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			t.Stderr = err.Error()
			p.logger.Error().Err(err).Str("log", t.Log).Msg("failed to open task log")
			return p.finish(types.StatusErrored, nil)
		}
		logFile = f
	}

	if len(t.Cmd) == 0 {
		t.Stderr = "task has no command"
		return p.finish(types.StatusErrored, logFile)
	}

	cmd := exec.Command(t.Cmd[0], t.Cmd[1:]...)
	if t.Cwd != "" {
		cmd.Dir = t.Cwd
	}
	if len(t.Env) > 0 {
		cmd.Env = envSlice(t.Env)
	}
	if t.Stdin != "" {
		cmd.Stdin = strings.NewReader(t.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stderr = &stderr
	if logFile != nil {
		cmd.Stdout = logFile
	} else {
		cmd.Stdout = &stdout
	}

	if err := cmd.Start(); err != nil {
		t.Stderr = err.Error()
		p.logger.Error().Err(err).Strs("cmd", t.Cmd).Msg("failed to spawn child")
		return p.finish(types.StatusErrored, logFile)
	}

	p.mu.Lock()
	p.cmd = cmd
	p.mu.Unlock()

	t.PID = cmd.Process.Pid
	t.StartTime = types.Timestamp()
	if err := p.rec.Commit(types.StatusProcessing, "task started"); err != nil {
		p.logger.Error().Err(err).Msg("failed to commit processing state")
	}
	p.logger.Info().Int("pid", t.PID).Strs("cmd", t.Cmd).Msg("task started")

	var deadline *time.Timer
	if t.Timeout > 0 {
		deadline = time.AfterFunc(time.Duration(t.Timeout)*time.Second, p.onDeadline)
	}

	waitErr := cmd.Wait()
	if deadline != nil {
		deadline.Stop()
	}

	p.mu.Lock()
	if p.killTimer != nil {
		p.killTimer.Stop()
	}
	p.exitCode = exitCodeOf(cmd)
	p.awaited = true
	timedOut := p.timedOut
	p.mu.Unlock()

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			// Stdin or stdout plumbing failed, not the child itself
			t.Stderr = waitErr.Error()
		}
	}
	if s := stderr.String(); s != "" {
		t.Stderr = s
	}
	if logFile == nil {
		t.Stdout = stdout.String()
	}

	status := types.StatusFinished
	switch {
	case timedOut:
		status = types.StatusTimedOut
	case t.Stderr != "" && p.ExitCode() != 0:
		status = types.StatusErrored
	}

	return p.finish(status, logFile)
}

// finish appends captured stderr to the log sink, stamps the exit code
// and end time, and commits the terminal state.
func (p *Proc) finish(status types.Status, logFile *os.File) error {
	t := p.rec.Task

	if logFile != nil {
		if t.Stderr != "" {
			if _, err := logFile.WriteString(t.Stderr); err != nil {
				p.logger.Error().Err(err).Msg("failed to append stderr to task log")
			}
		}
		if err := logFile.Close(); err != nil {
			p.logger.Error().Err(err).Msg("failed to close task log")
		}
	}

	t.ExitCode = p.ExitCode()
	t.EndTime = types.Timestamp()

	note := fmt.Sprintf("task complete -- code: %d, status: %s", t.ExitCode, status)
	if err := p.rec.Commit(status, note); err != nil {
		return fmt.Errorf("failed to commit terminal state for task %s: %w", t.ID, err)
	}
	p.logger.Info().Int("exit_code", t.ExitCode).Str("status", string(status)).Msg("task complete")
	return nil
}

// onDeadline fires when the task outlives its timeout: SIGTERM now,
// SIGKILL after the grace period if the child is still around.
func (p *Proc) onDeadline() {
	p.mu.Lock()
	p.timedOut = true
	cmd := p.cmd
	p.killTimer = time.AfterFunc(p.killGrace, func() {
		p.mu.Lock()
		awaited := p.awaited
		p.mu.Unlock()
		if !awaited && cmd != nil && cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	})
	p.mu.Unlock()

	p.logger.Warn().Int("timeout", p.rec.Task.Timeout).Msg("task deadline exceeded, terminating")
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}
}

// Terminate sends SIGTERM. No-op without a live child.
func (p *Proc) Terminate() {
	p.signal(syscall.SIGTERM, false)
}

// Kill sends SIGKILL. No-op without a live child.
func (p *Proc) Kill() {
	p.signal(syscall.SIGKILL, false)
}

// Pause sends SIGSTOP and marks the supervisor suspended.
func (p *Proc) Pause() {
	p.signal(syscall.SIGSTOP, true)
}

// Resume sends SIGCONT and clears the suspended mark.
func (p *Proc) Resume() {
	p.signal(syscall.SIGCONT, false)
}

func (p *Proc) signal(sig syscall.Signal, suspended bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil || p.awaited {
		return
	}
	// Delivery may race with exit; a failed send is benign
	if err := p.cmd.Process.Signal(sig); err != nil {
		return
	}
	p.suspended = suspended
}

// Record returns the supervised task record.
func (p *Proc) Record() *task.Record {
	return p.rec
}

// Name returns the task id.
func (p *Proc) Name() string {
	return p.rec.Task.ID
}

// Cmd returns the task command line.
func (p *Proc) Cmd() []string {
	return p.rec.Task.Cmd
}

// PID returns the child's pid, or zero before the child starts.
func (p *Proc) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// ExitCode returns the child's exit code, or ExitCodeNone until the
// child has been awaited. Signal deaths report as the negated signal.
func (p *Proc) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// Finished reports whether the child has been awaited.
func (p *Proc) Finished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.awaited
}

// Suspended reports whether the last delivered signal was a pause.
func (p *Proc) Suspended() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.suspended
}

// exitCodeOf reads the awaited child's exit code, mapping signal deaths
// to -(signal number) the way the rest of the system expects them.
func exitCodeOf(cmd *exec.Cmd) int {
	state := cmd.ProcessState
	if state == nil {
		return types.ExitCodeNone
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -int(ws.Signal())
	}
	return state.ExitCode()
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
