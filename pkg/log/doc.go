/*
Package log provides structured logging for the proc pool daemon using
zerolog.

The package wraps zerolog behind a small bootstrap: a global logger
initialized once via Init, component child loggers, and size-based file
rotation through lumberjack for the daemon log and the finished-procs
sink.

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Thread-safe concurrent writes

Log Levels:
  - Debug: detailed debugging information
  - Info: general informational messages
  - Warning: potential issues ("warn" accepted as an alias)
  - Error: operation failures
  - Fatal: logs and exits the process

Configuration:
  - Level: filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer destination when no FilePath is set
  - FilePath + MaxSizeMB/MaxBackups/MaxAgeDays: rotated file sink

File sinks always emit JSON; the console writer is only used for
interactive output.

# Usage

Initializing from daemon config:

	log.Init(log.Config{
		Level:      log.Level(cfg.Startup.Log.Level),
		JSONOutput: cfg.Startup.Log.JSON,
		FilePath:   cfg.Startup.Log.Path,
		MaxSizeMB:  cfg.Startup.Log.MaxSizeMB,
		MaxBackups: cfg.Startup.Log.MaxBackups,
		MaxAgeDays: cfg.Startup.Log.MaxAgeDays,
	})

Component loggers:

	poolLog := log.WithComponent("pool")
	poolLog.Info().Int("size", 4).Msg("pool started")

	taskLog := log.WithTaskID(task.ID)
	taskLog.Debug().Msg("task fetched")

Dedicated sinks (the event consumer's completion log):

	w := log.FileWriter(cfg.Runtime.Task.FinishedTaskLog, 100, 3, 28)
	finished := zerolog.New(w).With().Timestamp().Logger()

# Integration Points

  - pkg/daemon: initializes the global logger from config at boot
  - pkg/pool, pkg/proc, pkg/events, pkg/api: component loggers
  - pkg/events: FileWriter for the finished-procs sink

Never log task stdin or environment values; both may carry credentials.
*/
package log
