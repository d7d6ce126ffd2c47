/*
Package daemon composes the process pool service.

It is the only package that knows the full wiring: which components
exist, what they depend on, and the order they start and stop in.
Everything else stays pairwise-ignorant; the pool never imports the
API, the consumer never imports the pool.

# Wiring

	                 ┌──────────────┐
	   HTTP ────────▶│   pkg/api    │──────┐
	                 └──────────────┘      │ task.Registry
	                 ┌──────────────┐      ▼
	   dispatch ◀────│   pkg/pool   │───▶ pkg/store (bbolt)
	                 └──────┬───────┘      ▲
	                        │ artifacts    │
	                 ┌──────▼───────┐      │
	                 │ pkg/events   │──────┘
	                 │ stream +     │───▶ parent notify (HTTP)
	                 │ consumer     │───▶ finished-procs sink
	                 └──────────────┘

# Lifecycle

Start order: event consumer, pool (startup recovery, then the store
dispatcher), metrics sampler, control plane listener.

Stop order is the reverse dependency order: the listener stops taking
work, the pool drains running children under the caller's context, the
event stream closes so the consumer can finish its backlog, and the
store closes last. Stop runs every stage even after a failure and
returns the first error.

# Usage

	cfg, err := config.Load(path)
	d, err := daemon.New(cfg)
	if err := d.Start(); err != nil { ... }

	select {
	case <-sigCh:
	case err := <-d.Err():
	}

	ctx, cancel := context.WithTimeout(context.Background(),
	    time.Duration(cfg.Startup.ShutdownGrace)*time.Second)
	defer cancel()
	err = d.Stop(ctx)
*/
package daemon
