/*
Package types defines the core data structures used throughout the proc
pool daemon.

The central type is Task: the persisted description of one external
command plus its lifecycle metadata. Tasks are the sole durable entity;
everything else in the system either produces them (the HTTP facade),
schedules them (the priority queue and pool), runs them (the supervisor),
or observes them (the event stream).

# Task Lifecycle

Tasks follow a fixed state machine:

	queued ──► fetched ──► processing ─┬─► finished   (clean exit)
	                                   ├─► errored    (spawn failed, or stderr + nonzero exit)
	                                   └─► timed-out  (deadline exceeded)

Once a task reaches a terminal status only its Notes may grow. Config
state buckets (pkg/config) may extend the status vocabulary, for example
with the resulting statuses of interact actions.

# Serialization

Tasks serialize to JSON for both the store and the HTTP API. The Extra
map carries config-driven extension fields and is folded into the
top-level document on marshal, so a task with Extra["ticket"] produces
{"ticket": ...} rather than {"extra": {"ticket": ...}}. Unmarshal is the
inverse: unrecognized top-level keys land in Extra.

# Conventions

  - Timestamps are strings in TimeFormat ("2006-01-02 15:04:05"); the
    store compares them lexically, which matches chronological order.
  - ExitCode holds ExitCodeNone (-9999) until a child has been awaited.
  - Priority orders tasks with smaller numbers first.
  - Ids are 32-character hex tokens (Hex), assigned by the store.

Artifact is the payload of one lifecycle event published by pkg/pool and
drained by pkg/events. An artifact with ToDelete set marks a terminal
transition and carries the finished task for the completion log.
*/
package types
