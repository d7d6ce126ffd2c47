/*
Package task implements the task record layer: building new records from
submit requests, loading and querying stored ones, and committing state
transitions back to the store.

A Record couples one types.Task with the collection it is persisted in.
The Registry is the only way records come into existence; it owns
validation, field interpolation, and the insert that assigns queued
status.

# Building

Build takes the raw request document a client submitted:

	rec, err := registry.Build(map[string]any{
		"cmd":      []any{"ffmpeg", "-i", "{name}.mov"},
		"priority": 10,
		"log":      "/var/log/procpool/{date}/{name}.log",
		"host":     "http://localhost:9998/",
	})

Validation mirrors the submit contract: cmd must be a list (elements are
stringified), priority and timeout integers, env a mapping, cwd a
string. Violations come back as user faults with the offending argument
named, and nothing is inserted.

Formattable fields (cmd and log by default, extendable via
runtime.task.formattable_fields) go through one {placeholder} pass. The
namespace holds name (the task id, assigned before interpolation), date
(today), and every task field. Doubled braces escape. The log directory
is created before insert so the child process can open its log on the
first write.

# Committing

Commit refreshes updated_at, optionally appends a note, optionally
replaces the status, and writes the merged document:

	rec.Commit(types.StatusProcessing, "task started")

Notes appended through Commit are attributed to internal_default; notes
from callers carry their own user.

# Claiming work

NextQueued is the dispatcher's fetch: it takes the queued record with the
smallest priority and commits it fetched in the same call, so two
dispatchers never claim the same record twice off one store read.
InProgress returns what a previous daemon run left fetched or processing;
the pool decides what recovery does with them.

Package task does not spawn processes and does not know about the pool.
It is the boundary between HTTP handlers, the dispatcher, and storage.
*/
package task
