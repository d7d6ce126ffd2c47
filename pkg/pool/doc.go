/*
Package pool bounds concurrent task execution with a fixed set of slot
tokens.

The pool owns two kinds of goroutines. Dispatchers find work: the store
dispatcher claims queued tasks from the registry, input-stream
dispatchers drain in-memory priority queues. Supervisors run work: one
per launched task, executing the child process protocol from pkg/proc.

A buffered channel pre-filled with startup.concurrency tokens gates
admission. A dispatcher takes a token before it even looks for work, so
an idle slot is what triggers the next claim; the supervisor returns
the token only after the terminal state is committed to the store and
the terminal artifact is published. At every quiescent moment free
tokens plus registered supervisors equal the slot count.

# Startup Recovery

Tasks left in fetched or processing by a previous daemon run are handed
to Start by the registry. runtime.task.recover picks the policy:
relaunch runs each one again (a task may therefore execute twice,
at-least-once semantics), fail commits errored without running and
publishes the terminal artifact so completion records and parent
notification still happen.

# Shutdown

Stop halts the dispatchers, putting held tokens back, then waits for
supervisors to drain. When the context expires first, survivors are
killed and Stop waits for their supervisors to observe the death, so
the store holds a terminal state for every launched task before Stop
returns.

# See Also

  - pkg/proc for the supervisor protocol
  - pkg/queue for the input-stream priority queue
  - pkg/events for what the published artifacts feed
*/
package pool
