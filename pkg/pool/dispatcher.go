package pool

import (
	"fmt"
	"time"

	"github.com/cuemby/procpool/pkg/config"
	"github.com/cuemby/procpool/pkg/metrics"
	"github.com/cuemby/procpool/pkg/queue"
	"github.com/cuemby/procpool/pkg/task"
	"github.com/cuemby/procpool/pkg/types"
)

// StartupFunc loads the tasks found in progress when the daemon boots.
type StartupFunc func() ([]*task.Record, error)

// NextFunc claims the next queued task from the store, nil when the
// queue is empty.
type NextFunc func() (*task.Record, error)

// Start recovers in-progress tasks per the configured policy, then
// boots the store dispatcher. Either callback may be nil to skip its
// phase.
func (p *Pool) Start(startup StartupFunc, next NextFunc) error {
	if startup != nil {
		recs, err := startup()
		if err != nil {
			return fmt.Errorf("failed to load in-progress tasks: %w", err)
		}
		for _, rec := range recs {
			p.recover(rec)
		}
	}
	if next != nil {
		p.dispatchWg.Add(1)
		go p.dispatch(next)
	}
	return nil
}

// recover applies the startup policy to one task left in progress by a
// previous daemon run.
func (p *Pool) recover(rec *task.Record) {
	if p.cfg.Runtime.Task.Recover == config.RecoverFail {
		p.logger.Warn().Str("task_id", rec.Task.ID).Msg("failing task recovered at startup")
		if err := rec.Commit(types.StatusErrored, "recovered at startup -- not relaunched"); err != nil {
			p.logger.Error().Err(err).Str("task_id", rec.Task.ID).Msg("failed to commit recovery failure")
		}
		metrics.TasksCompleted.WithLabelValues(string(rec.Task.Status)).Inc()
		p.stream.Publish(types.Artifact{
			Status:    rec.Task.Status,
			ParentURL: rec.Task.ParentURL,
			ToDelete:  rec.Task,
		})
		return
	}

	p.logger.Info().Str("task_id", rec.Task.ID).Msg("relaunching task recovered at startup")
	<-p.slots
	p.launch(rec, nil)
}

// dispatch is the steady-state loop: take a slot token, poll the store
// until a task arrives, hand the token to its supervisor, repeat.
func (p *Pool) dispatch(next NextFunc) {
	defer p.dispatchWg.Done()
	poll := time.Duration(p.cfg.Runtime.Task.PollInterval) * time.Second
	if poll <= 0 {
		poll = 10 * time.Second
	}

	for {
		select {
		case <-p.stopCh:
			return
		case <-p.slots:
		}
		if !p.pollAndLaunch(next, poll) {
			return
		}
	}
}

// pollAndLaunch holds one slot token while waiting for work. It
// returns false when the pool stops first, putting the token back.
func (p *Pool) pollAndLaunch(next NextFunc, poll time.Duration) bool {
	for {
		rec, err := next()
		if err != nil {
			p.logger.Error().Err(err).Msg("failed to fetch next queued task")
		} else if rec != nil {
			p.launch(rec, nil)
			return true
		}
		select {
		case <-p.stopCh:
			p.slots <- struct{}{}
			return false
		case <-time.After(poll):
		}
	}
}

// InputStream seeds a priority queue with recs and boots a dispatcher
// that drains it, bypassing the store poll. More records may be added
// through the returned queue while the pool runs.
func (p *Pool) InputStream(recs []*task.Record) (*queue.PriorityPool, error) {
	q, err := queue.New(recs...)
	if err != nil {
		return nil, fmt.Errorf("failed to seed input stream: %w", err)
	}
	p.mu.Lock()
	p.queues = append(p.queues, q)
	p.mu.Unlock()

	p.dispatchWg.Add(1)
	go p.drainQueue(q)
	return q, nil
}

func (p *Pool) drainQueue(q *queue.PriorityPool) {
	defer p.dispatchWg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.slots:
		}
		rec, ok := q.Pop()
		if !ok {
			p.slots <- struct{}{}
			return
		}
		p.launch(rec, q)
	}
}
