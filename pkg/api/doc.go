/*
Package api implements the HTTP control plane of the daemon.

Every route answers JSON except the task log route, which serves the
raw log file as plain text. The route paths are not hardcoded: they
come from the runtime config's endpoint map, so deployments can remap
the surface without a rebuild.

# Architecture

	┌──────────────────────── CLIENT ────────────────────────┐
	│   curl / pkg/client / a parent pool polling children    │
	└───────────────────────────┬────────────────────────────┘
	                            │ HTTP + JSON
	┌───────────────────────────▼────────────────────────────┐
	│                    Server (pkg/api)                     │
	│   gin router                                            │
	│   - request logging + metrics middleware                │
	│   - panic recovery                                      │
	│   - permissive CORS                                     │
	└───────────────────────────┬────────────────────────────┘
	                            │
	┌───────────────────────────▼────────────────────────────┐
	│                 task.Registry (pkg/task)                │
	│   build, load, query, and commit task records           │
	└─────────────────────────────────────────────────────────┘

The server never touches the execution pool. Interactions reach a
running process by signalling its recorded pid directly; the supervisor
that owns the child observes the outcome through the child's exit.

# Response Envelope

POST routes answer with a common envelope:

	{
	    "method":  "add_task",
	    "input":   "",
	    "output":  [],
	    "message": ""
	}

The method names the handler, input echoes undecodable request bodies
back, output carries the route's result, and message carries either an
error or a success note. GET routes drop the input field. The submit
route is the exception: a successful batch answers {"inserted": [...]}
alone.

# Routes

Task routes (paths shown with their defaults):

  - POST /proc_pool/tasks/add        submit a batch of task requests
  - GET  /proc_pool/tasks            list tasks by status bucket
  - GET  /proc_pool/tasks/running    list running tasks
  - GET  /proc_pool/tasks/queued     list queued tasks
  - POST /proc_pool/tasks/query      run a raw document query
  - POST /proc_pool/tasks/update     bulk field updates keyed by id
  - GET  /proc_pool/task/:id         fetch one task
  - GET  /proc_pool/task/:id/log     fetch the task's log as text
  - POST /proc_pool/task/:id/update  apply fields to one task
  - POST /proc_pool/task/:id/interact  signal the task's process

Help routes serve the daemon's own shape: status buckets, the endpoint
map, and the loaded config. Operational routes are fixed: /metrics
serves Prometheus metrics, /healthz /readyz /livez serve the health
probes from pkg/metrics.

List routes return the slim projection by default. Appending ?full to
the URL switches to the complete stored document.

# Usage

	srv := api.NewServer(cfg, registry)

	go func() {
	    if err := srv.Start(); err != nil {
	        log.Fatal(err.Error())
	    }
	}()

	// on shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Stop(ctx)

# See Also

  - pkg/task for record construction and commits
  - pkg/client for the Go client of this surface
  - pkg/metrics for the health probe handlers
*/
package api
