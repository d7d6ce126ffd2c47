package pool

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/procpool/pkg/config"
	"github.com/cuemby/procpool/pkg/events"
	"github.com/cuemby/procpool/pkg/log"
	"github.com/cuemby/procpool/pkg/metrics"
	"github.com/cuemby/procpool/pkg/proc"
	"github.com/cuemby/procpool/pkg/queue"
	"github.com/cuemby/procpool/pkg/task"
	"github.com/cuemby/procpool/pkg/types"
)

// Pool runs tasks under supervisors, never more than size at once. A
// buffered channel of slot tokens gates admission: dispatchers take a
// token before launching and the supervisor returns it after the
// terminal state is durable and published.
type Pool struct {
	size   int
	slots  chan struct{}
	stream *events.Stream
	cfg    *config.Config
	logger zerolog.Logger

	mu      sync.RWMutex
	running map[string]*proc.Proc
	queues  []*queue.PriorityPool

	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	dispatchWg sync.WaitGroup
}

// New builds a pool of startup.concurrency slots publishing lifecycle
// artifacts to stream.
func New(cfg *config.Config, stream *events.Stream) *Pool {
	size := cfg.Startup.Concurrency
	if size < 1 {
		size = 1
	}
	p := &Pool{
		size:    size,
		slots:   make(chan struct{}, size),
		stream:  stream,
		cfg:     cfg,
		logger:  log.WithComponent("pool"),
		running: make(map[string]*proc.Proc),
		stopCh:  make(chan struct{}),
	}
	for i := 0; i < size; i++ {
		p.slots <- struct{}{}
	}
	return p
}

// Launch blocks until a slot token is free, then runs rec under a
// supervisor goroutine. The token comes back once the terminal state is
// committed and published.
func (p *Pool) Launch(rec *task.Record) {
	<-p.slots
	p.launch(rec, nil)
}

// launch starts a supervisor for rec. The caller must hold a slot
// token; the supervisor releases it. A non-nil from queue is told to
// forget the record once it is terminal.
func (p *Pool) launch(rec *task.Record, from *queue.PriorityPool) {
	pr := proc.New(rec, time.Duration(p.cfg.Runtime.Task.KillGrace)*time.Second)
	p.wg.Add(1)
	go p.supervise(pr, from)
}

func (p *Pool) supervise(pr *proc.Proc, from *queue.PriorityPool) {
	defer p.wg.Done()
	t := pr.Record().Task

	p.register(pr)
	p.stream.Publish(types.Artifact{Status: types.StatusProcessing, ParentURL: t.ParentURL})

	timer := metrics.NewTimer()
	if err := pr.Run(); err != nil {
		p.logger.Error().Err(err).Str("task_id", t.ID).Msg("failed to commit task state")
	}
	timer.ObserveDuration(metrics.TaskDuration)
	metrics.TasksCompleted.WithLabelValues(string(t.Status)).Inc()

	p.stream.Publish(types.Artifact{Status: t.Status, ParentURL: t.ParentURL, ToDelete: t})
	if from != nil {
		from.Forget(t.ID)
	}
	p.slots <- struct{}{}
	p.unregister(t.ID)
}

func (p *Pool) register(pr *proc.Proc) {
	p.mu.Lock()
	p.running[pr.Name()] = pr
	p.mu.Unlock()
}

func (p *Pool) unregister(id string) {
	p.mu.Lock()
	delete(p.running, id)
	p.mu.Unlock()
}

// Running returns a snapshot of the supervisors currently registered.
func (p *Pool) Running() []*proc.Proc {
	p.mu.RLock()
	defer p.mu.RUnlock()
	procs := make([]*proc.Proc, 0, len(p.running))
	for _, pr := range p.running {
		procs = append(procs, pr)
	}
	return procs
}

// Get returns the supervisor for a task id, or nil.
func (p *Pool) Get(id string) *proc.Proc {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running[id]
}

// Available reports how many slot tokens are free right now.
func (p *Pool) Available() int {
	return len(p.slots)
}

// Size reports the slot count.
func (p *Pool) Size() int {
	return p.size
}

// Stop halts the dispatchers and waits for running supervisors to
// drain. Once ctx expires, survivors get SIGKILL and Stop waits for
// their supervisors to observe the death before returning ctx's error.
func (p *Pool) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.stopCh) })

	p.mu.Lock()
	for _, q := range p.queues {
		q.Close()
	}
	p.mu.Unlock()
	p.dispatchWg.Wait()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}

	for _, pr := range p.Running() {
		p.logger.Warn().Str("task_id", pr.Name()).Msg("killing task that outlived the shutdown grace")
		pr.Kill()
	}
	<-done
	return ctx.Err()
}
