package daemon

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cuemby/procpool/pkg/api"
	"github.com/cuemby/procpool/pkg/config"
	"github.com/cuemby/procpool/pkg/events"
	"github.com/cuemby/procpool/pkg/log"
	"github.com/cuemby/procpool/pkg/metrics"
	"github.com/cuemby/procpool/pkg/pool"
	"github.com/cuemby/procpool/pkg/store"
	"github.com/cuemby/procpool/pkg/task"
)

// Daemon owns every long-lived component and their start/stop order.
type Daemon struct {
	cfg       *config.Config
	store     store.Store
	registry  *task.Registry
	stream    *events.Stream
	consumer  *events.Consumer
	pool      *pool.Pool
	api       *api.Server
	collector *metrics.Collector
	logger    zerolog.Logger

	apiErr chan error
}

// New wires a daemon from config. Logging initializes here, the store
// opens, and every component is constructed idle; nothing runs until
// Start.
func New(cfg *config.Config) (*Daemon, error) {
	log.Init(log.Config{
		Level:      log.Level(cfg.Startup.Log.Level),
		JSONOutput: cfg.Startup.Log.JSON,
		FilePath:   cfg.Startup.Log.Path,
		MaxSizeMB:  cfg.Startup.Log.MaxSizeMB,
		MaxBackups: cfg.Startup.Log.MaxBackups,
		MaxAgeDays: cfg.Startup.Log.MaxAgeDays,
	})

	st, err := store.NewBoltStore(cfg.Startup.DB.URL, cfg.Startup.DB.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to open task store: %w", err)
	}
	metrics.SetComponent("store", true, "")

	registry := task.NewRegistry(st, cfg)
	stream := events.NewStream()
	consumer := events.NewConsumer(stream, events.NewNotifier(cfg), cfg)
	p := pool.New(cfg, stream)
	server := api.NewServer(cfg, registry)

	collector := metrics.NewCollector(func() metrics.Snapshot {
		queued, err := registry.ByStates(cfg.Runtime.Task.States.Queued)
		if err != nil {
			queued = nil
		}
		return metrics.Snapshot{
			Running:   len(p.Running()),
			OpenSlots: p.Available(),
			Queued:    len(queued),
		}
	})

	return &Daemon{
		cfg:       cfg,
		store:     st,
		registry:  registry,
		stream:    stream,
		consumer:  consumer,
		pool:      p,
		api:       server,
		collector: collector,
		logger:    log.WithComponent("daemon"),
		apiErr:    make(chan error, 1),
	}, nil
}

// Start brings the daemon up: the event consumer, the pool with its
// startup recovery and store dispatcher, the metrics sampler, and the
// control plane listener.
func (d *Daemon) Start() error {
	d.logger.Info().
		Int("concurrency", d.pool.Size()).
		Str("db", d.cfg.Startup.DB.URL).
		Msg("starting daemon")

	d.consumer.Start()

	if err := d.pool.Start(d.registry.InProgress, d.registry.NextQueued); err != nil {
		return fmt.Errorf("failed to start pool: %w", err)
	}
	metrics.SetComponent("pool", true, "")

	d.collector.Start()

	go func() {
		if err := d.api.Start(); err != nil {
			metrics.SetComponent("api", false, err.Error())
			d.logger.Error().Err(err).Msg("control plane failed")
			d.apiErr <- err
		}
	}()
	metrics.SetComponent("api", true, "")

	return nil
}

// Err surfaces a fatal control plane failure, such as a busy listen
// address at boot.
func (d *Daemon) Err() <-chan error {
	return d.apiErr
}

// Registry exposes the task registry for in-process callers and tests.
func (d *Daemon) Registry() *task.Registry {
	return d.registry
}

// Pool exposes the execution pool.
func (d *Daemon) Pool() *pool.Pool {
	return d.pool
}

// Stop shuts the daemon down in dependency order: the listener stops
// taking work, the pool drains under ctx, the event stream closes and
// the consumer finishes the backlog, then the store closes. The first
// error wins but every stage still runs.
func (d *Daemon) Stop(ctx context.Context) error {
	var firstErr error

	if err := d.api.Stop(ctx); err != nil {
		firstErr = err
		d.logger.Error().Err(err).Msg("failed to stop control plane cleanly")
	}

	if err := d.pool.Stop(ctx); err != nil {
		if firstErr == nil {
			firstErr = err
		}
		d.logger.Warn().Err(err).Msg("pool shutdown exceeded the grace period")
	}

	d.stream.Close()
	d.consumer.Wait()
	d.collector.Stop()

	if err := d.store.Close(); err != nil {
		if firstErr == nil {
			firstErr = err
		}
		d.logger.Error().Err(err).Msg("failed to close store")
	}

	d.logger.Info().Msg("daemon stopped")
	return firstErr
}
