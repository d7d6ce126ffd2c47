/*
Package metrics exposes Prometheus instrumentation and component health
for the daemon.

Counters and histograms are incremented where the events happen: the
submit handler counts accepted tasks, the pool counts completions by
terminal status and observes child durations, the API middleware tracks
request rates and latency. Gauges describing pool occupancy come from a
Collector that samples daemon state on a fixed interval, composed by the
daemon from the pool and the task registry so this package depends on
neither.

# Health

A process-wide registry tracks per-component health. Components call
SetComponent as they come up and shut down; the health route turns
unhealthy when any component degrades, and the readiness route stays
not_ready until every critical component (store, pool, api) has
reported in. The liveness route answers as long as the process serves
HTTP at all.

# Usage

	metrics.TasksCompleted.WithLabelValues("finished").Inc()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.TaskDuration)

	metrics.SetComponent("store", true, "")

The API server mounts Handler() under /metrics and the health handlers
under /healthz, /readyz, and /livez.
*/
package metrics
