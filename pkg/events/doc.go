/*
Package events carries task lifecycle artifacts from the execution pool
to downstream consumers.

The pool publishes one artifact when a task enters processing and one
when it reaches a terminal state. A single consumer goroutine drains the
stream in publish order:

	Supervisor ──▶ Stream (unbounded FIFO) ──▶ Consumer
	                                             │
	                 ┌───────────────────────────┤
	                 ▼                           ▼
	          Parent notifier            Finished-procs sink
	          (HTTP, backoff)            (rotated completion log)

The stream is unbounded so supervisors never block on a slow consumer,
and it keeps draining after Close so shutdown cannot drop completion
records. Per-task ordering is guaranteed by construction: the processing
artifact is published before the supervisor runs, the terminal one after
it commits.

# Parent Notification

Tasks submitted with a parent_url belong to a chain of daemons. When one
changes state, the notifier posts {"update_data": {"status": ...}} back
to the parent's update endpoint, retrying transient failures with
exponential backoff until the runtime.app.notify_timeout budget runs
out. The hook is always wired; runtime.app.notify_parents decides
whether it sends anything.

# Completion Records

Terminal artifacts carry the finished task. The consumer writes one
record per completion to runtime.task.finished_task_log, rotated like
the daemon log, so operators can tail completions without querying the
store.

# See Also

  - pkg/pool for the publisher
  - pkg/proc for the supervisor whose terminal commit precedes the
    terminal artifact
*/
package events
