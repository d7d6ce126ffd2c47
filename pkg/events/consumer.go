package events

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cuemby/procpool/pkg/config"
	"github.com/cuemby/procpool/pkg/log"
)

// Consumer drains the lifecycle stream: parent-linked artifacts go to
// the notifier, terminal artifacts land on the finished-procs sink.
type Consumer struct {
	stream   *Stream
	notifier *Notifier
	dump     zerolog.Logger
	logger   zerolog.Logger
	done     chan struct{}
}

// NewConsumer wires a consumer to the stream and the completion-record
// sink at runtime.task.finished_task_log. Without a configured sink the
// records are dropped.
func NewConsumer(stream *Stream, notifier *Notifier, cfg *config.Config) *Consumer {
	var sink io.Writer = io.Discard
	if cfg.Runtime.Task.FinishedTaskLog != "" {
		sink = log.FileWriter(
			cfg.Runtime.Task.FinishedTaskLog,
			cfg.Startup.Log.MaxSizeMB,
			cfg.Startup.Log.MaxBackups,
			cfg.Startup.Log.MaxAgeDays,
		)
	}
	return &Consumer{
		stream:   stream,
		notifier: notifier,
		dump:     zerolog.New(sink).With().Timestamp().Logger(),
		logger:   log.WithComponent("events"),
		done:     make(chan struct{}),
	}
}

// Start launches the drain loop. The loop ends once the stream is
// closed and every queued artifact has been handled.
func (c *Consumer) Start() {
	go c.run()
}

// Wait blocks until the drain loop has finished.
func (c *Consumer) Wait() {
	<-c.done
}

func (c *Consumer) run() {
	defer close(c.done)
	for {
		artifact, ok := c.stream.Next()
		if !ok {
			return
		}
		c.logger.Debug().Str("status", string(artifact.Status)).
			Str("parent_url", artifact.ParentURL).Msg("artifact fetched")

		if artifact.ParentURL != "" {
			// Failures already logged inside the notifier
			_ = c.notifier.Notify(artifact.ParentURL, artifact.Status)
		}
		if artifact.ToDelete != nil {
			t := artifact.ToDelete
			c.dump.Info().Msg(fmt.Sprintf("%s: %s -- %d -- %d -- %s -- %d",
				t.Status, t.ID, t.PID, t.Priority, strings.Join(t.Cmd, " "), t.ExitCode))
		}
	}
}
