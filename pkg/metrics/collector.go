package metrics

import (
	"time"
)

// Snapshot is one sample of daemon state for the pool gauges.
type Snapshot struct {
	Running   int
	OpenSlots int
	Queued    int
}

// Collector periodically samples daemon state and publishes it to the
// gauges. The sample function is composed by the daemon from the pool
// and the task registry so this package stays free of their types.
type Collector struct {
	sample   func() Snapshot
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a collector around a sample function.
func NewCollector(sample func() Snapshot) *Collector {
	return &Collector{
		sample:   sample,
		interval: 15 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	s := c.sample()
	RunningProcs.Set(float64(s.Running))
	OpenSlots.Set(float64(s.OpenSlots))
	QueuedTasks.Set(float64(s.Queued))
}
