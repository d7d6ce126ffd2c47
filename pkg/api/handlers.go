package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/cuemby/procpool/pkg/config"
	"github.com/cuemby/procpool/pkg/metrics"
	"github.com/cuemby/procpool/pkg/store"
	"github.com/cuemby/procpool/pkg/task"
	"github.com/cuemby/procpool/pkg/types"
)

// envelope is the body shape shared by the POST routes.
func envelope(method string) gin.H {
	return gin.H{"method": method, "input": "", "output": []any{}, "message": ""}
}

// listing is the body shape shared by the GET routes.
func listing(method string) gin.H {
	return gin.H{"method": method, "output": []any{}, "message": "Successful request"}
}

// validatePost decodes the request body and extracts the required key.
// A missing body is rejected as not acceptable; undecodable JSON, an
// empty document, and a missing or null key are caller errors. On
// failure the response has already been written.
func validatePost(c *gin.Context, method, key string) (any, bool) {
	resp := envelope(method)

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil || len(raw) == 0 {
		resp["message"] = "No Post JSON sent - required"
		c.JSON(http.StatusNotAcceptable, resp)
		return nil, false
	}

	var posted map[string]any
	if err := json.Unmarshal(raw, &posted); err != nil {
		resp["message"] = err.Error()
		resp["input"] = string(raw)
		c.JSON(http.StatusInternalServerError, resp)
		return nil, false
	}
	if len(posted) == 0 {
		resp["message"] = "No posted data received"
		c.JSON(http.StatusInternalServerError, resp)
		return nil, false
	}

	value, ok := posted[key]
	if !ok || value == nil {
		resp["message"] = fmt.Sprintf("%s key not found in post data or %s has an empty value", key, key)
		c.JSON(http.StatusInternalServerError, resp)
		return nil, false
	}
	return value, true
}

// index lists every registered route path.
func (s *Server) index(c *gin.Context) {
	routes := s.engine.Routes()
	paths := make([]string, 0, len(routes))
	for _, route := range routes {
		paths = append(paths, route.Path)
	}
	sort.Strings(paths)
	c.JSON(http.StatusOK, gin.H{"output": paths})
}

// submit inserts a batch of task requests as queued records. The batch
// fails on the first bad request; everything inserted up to that point
// stays inserted and is reported back.
func (s *Server) submit(c *gin.Context) {
	value, ok := validatePost(c, "add_task", "requests")
	if !ok {
		return
	}
	resp := envelope("add_task")

	reqs, ok := value.([]any)
	if !ok {
		reqs = []any{value}
	}

	inserted := make([]task.Slim, 0, len(reqs))
	for _, raw := range reqs {
		req, ok := raw.(map[string]any)
		if !ok {
			resp["message"] = fmt.Sprintf(
				"Each request must be a dict -- this was what was received: req = '%v', type = '%T'", raw, raw)
			resp["inserted"] = inserted
			c.JSON(http.StatusInternalServerError, resp)
			return
		}
		req["host"] = hostURL(c)
		rec, err := s.registry.Build(req)
		if err != nil {
			resp["message"] = err.Error()
			resp["inserted"] = inserted
			c.JSON(http.StatusInternalServerError, resp)
			return
		}
		metrics.TasksSubmitted.Inc()
		inserted = append(inserted, rec.Slim())
	}

	c.JSON(http.StatusOK, gin.H{"inserted": inserted})
}

func (s *Server) running(c *gin.Context) {
	s.listBucket(c, "get_running", s.cfg.Runtime.Task.States.Running)
}

func (s *Server) queued(c *gin.Context) {
	s.listBucket(c, "get_queued", s.cfg.Runtime.Task.States.Queued)
}

func (s *Server) listBucket(c *gin.Context, method string, bucket []string) {
	resp := listing(method)
	recs, err := s.registry.ByStates(bucket)
	if err != nil {
		resp["message"] = err.Error()
		c.JSON(http.StatusInternalServerError, resp)
		return
	}
	resp["output"] = projections(recs, wantFull(c))
	c.JSON(http.StatusOK, resp)
}

// byState lists the tasks of one named status bucket.
func (s *Server) byState(c *gin.Context) {
	resp := listing("query_task_states")

	state := c.Query("state")
	if state == "" {
		resp["message"] = `Add a "state=<state>" argument to the url`
		c.JSON(http.StatusInternalServerError, resp)
		return
	}
	bucket, ok := s.cfg.Runtime.Task.States.Bucket(state)
	if !ok {
		resp["message"] = fmt.Sprintf("State %q not found -- available states: %s",
			state, strings.Join(s.cfg.Runtime.Task.States.Keys(), ", "))
		c.JSON(http.StatusNotFound, resp)
		return
	}

	recs, err := s.registry.ByStates(bucket)
	if err != nil {
		resp["message"] = err.Error()
		c.JSON(http.StatusInternalServerError, resp)
		return
	}
	resp["output"] = projections(recs, wantFull(c))
	c.JSON(http.StatusOK, resp)
}

// query runs a caller-supplied document query against the task
// collection.
func (s *Server) query(c *gin.Context) {
	value, ok := validatePost(c, "tasks_query", "query")
	if !ok {
		return
	}
	resp := envelope("tasks_query")

	q, ok := value.(map[string]any)
	if !ok {
		resp["message"] = "The query argument must be a dict"
		c.JSON(http.StatusInternalServerError, resp)
		return
	}

	recs, err := s.registry.Query(store.Query(q))
	if err != nil {
		resp["message"] = err.Error()
		c.JSON(http.StatusInternalServerError, resp)
		return
	}
	resp["output"] = projections(recs, wantFull(c))
	c.JSON(http.StatusOK, resp)
}

// bulkUpdate applies per-task field updates keyed by id. Unknown ids
// are skipped; a malformed id fails the whole batch.
func (s *Server) bulkUpdate(c *gin.Context) {
	value, ok := validatePost(c, "update_tasks", "ids")
	if !ok {
		return
	}
	resp := envelope("update_tasks")

	ids, ok := value.(map[string]any)
	if !ok {
		resp["message"] = "The ids argument must be a dict of id to update fields"
		c.JSON(http.StatusInternalServerError, resp)
		return
	}

	updated := make([]task.Slim, 0, len(ids))
	for id, raw := range ids {
		rec, err := s.registry.FromID(id)
		if err != nil {
			if store.IsUserFault(err) {
				resp["message"] = fmt.Sprintf("Invalid ID received: %q", id)
			} else {
				resp["message"] = err.Error()
			}
			c.JSON(http.StatusInternalServerError, resp)
			return
		}
		if rec == nil {
			continue
		}

		if fields, ok := raw.(map[string]any); ok {
			rec.Apply(fields, s.cfg.Runtime.Task.ExtraFields)
		}
		updated = append(updated, rec.Slim())

		if err := rec.Commit("", ""); err != nil {
			resp["message"] = err.Error()
			c.JSON(http.StatusInternalServerError, resp)
			return
		}
	}

	resp["output"] = updated
	c.JSON(http.StatusOK, resp)
}

// get returns one task by id. A well-formed id that matches nothing
// still answers 200 with a null output, so pollers can tell "not here"
// from "bad request".
func (s *Server) get(c *gin.Context) {
	resp := gin.H{"method": "get_task", "output": nil, "message": "Successful request"}

	rec, err := s.registry.FromID(c.Param("id"))
	if err != nil {
		resp["message"] = err.Error()
		c.JSON(http.StatusInternalServerError, resp)
		return
	}
	if rec != nil {
		if wantFull(c) {
			resp["output"] = rec.Full()
		} else {
			resp["output"] = rec.Slim()
		}
	}
	c.JSON(http.StatusOK, resp)
}

// taskLog streams the task's log file back as plain text.
func (s *Server) taskLog(c *gin.Context) {
	id := c.Param("id")

	rec, err := s.registry.FromID(id)
	if err != nil || rec == nil {
		c.String(http.StatusNotFound,
			"Task %s not found at this service -- try another service or double check the id", id)
		return
	}

	content, err := os.ReadFile(rec.Task.Log)
	if err != nil {
		c.String(http.StatusInternalServerError, "Unable to read from log file -- %v", err)
		return
	}
	c.Data(http.StatusOK, "text/plain", content)
}

// update applies fields to one task.
func (s *Server) update(c *gin.Context) {
	value, ok := validatePost(c, "update_task", "update_data")
	if !ok {
		return
	}
	resp := envelope("update_task")
	id := c.Param("id")

	rec, ok := s.loadForWrite(c, resp, id)
	if !ok {
		return
	}

	if fields, ok := value.(map[string]any); ok {
		rec.Apply(fields, s.cfg.Runtime.Task.ExtraFields)
	}
	if err := rec.Commit("", ""); err != nil {
		resp["message"] = err.Error()
		c.JSON(http.StatusInternalServerError, resp)
		return
	}

	resp["output"] = rec.Slim()
	c.JSON(http.StatusOK, resp)
}

// interact delivers a configured action's signal to the task's process
// and commits the status the action maps to.
func (s *Server) interact(c *gin.Context) {
	value, ok := validatePost(c, "task_interact", "action")
	if !ok {
		return
	}
	resp := envelope("task_interact")
	id := c.Param("id")

	rec, ok := s.loadForWrite(c, resp, id)
	if !ok {
		return
	}

	name := fmt.Sprintf("%v", value)
	action, ok := s.cfg.Runtime.Task.Actions[name]
	if !ok {
		resp["message"] = fmt.Sprintf("Action not permitted: %s -- allowed actions: %s",
			name, strings.Join(actionNames(s.cfg.Runtime.Task.Actions), ", "))
		c.JSON(http.StatusInternalServerError, resp)
		return
	}

	if rec.Task.Status.In(s.cfg.Runtime.Task.States.Complete) {
		resp["message"] = fmt.Sprintf("The task is %s -- nothing to do here", rec.Task.Status)
		c.JSON(http.StatusInternalServerError, resp)
		return
	}
	if rec.Task.PID == 0 {
		resp["message"] = "You can only interact with a running task"
		c.JSON(http.StatusInternalServerError, resp)
		return
	}

	if err := syscall.Kill(rec.Task.PID, syscall.Signal(action.Signal)); err != nil {
		resp["message"] = fmt.Sprintf("Unable to %s the task -- %v", name, err)
		c.JSON(http.StatusInternalServerError, resp)
		return
	}

	note := fmt.Sprintf("Action sent to process: %q", name)
	if err := rec.Commit(types.Status(action.Status), note); err != nil {
		resp["message"] = err.Error()
		c.JSON(http.StatusInternalServerError, resp)
		return
	}

	resp["message"] = fmt.Sprintf("Action success: %s", name)
	resp["output"] = rec.Slim()
	c.JSON(http.StatusOK, resp)
}

// loadForWrite resolves the id of a mutating route. A malformed or
// unknown id fails the request; the response has been written when ok
// is false.
func (s *Server) loadForWrite(c *gin.Context, resp gin.H, id string) (*task.Record, bool) {
	rec, err := s.registry.FromID(id)
	if err != nil {
		if store.IsUserFault(err) {
			resp["message"] = fmt.Sprintf("Invalid ID received: %q", id)
		} else {
			resp["message"] = err.Error()
		}
		c.JSON(http.StatusInternalServerError, resp)
		return nil, false
	}
	if rec == nil {
		resp["message"] = fmt.Sprintf("Task '%s' does not exist at %s", id, c.Request.Host)
		c.JSON(http.StatusInternalServerError, resp)
		return nil, false
	}
	return rec, true
}

func (s *Server) helpStatuses(c *gin.Context) {
	resp := listing("help_statuses")
	resp["output"] = s.cfg.Runtime.Task.States.Map()
	c.JSON(http.StatusOK, resp)
}

func (s *Server) helpComplete(c *gin.Context) {
	resp := listing("help_statuses_complete")
	resp["output"] = s.cfg.Runtime.Task.States.Complete
	c.JSON(http.StatusOK, resp)
}

func (s *Server) helpInProgress(c *gin.Context) {
	resp := listing("help_statuses_in_progress")
	resp["output"] = s.cfg.Runtime.Task.States.InProgress
	c.JSON(http.StatusOK, resp)
}

func (s *Server) helpEndpoints(c *gin.Context) {
	resp := listing("get_endpoints")
	paths := s.cfg.EndpointPaths()
	sort.Strings(paths)
	resp["output"] = paths
	c.JSON(http.StatusOK, resp)
}

func (s *Server) helpConfig(c *gin.Context) {
	resp := listing("get_config")
	resp["output"] = s.cfg
	c.JSON(http.StatusOK, resp)
}

// wantFull reports whether the request asked for full task documents.
// Presence of the argument is enough, no value needed.
func wantFull(c *gin.Context) bool {
	_, ok := c.GetQuery("full")
	return ok
}

func projections(recs []*task.Record, full bool) []any {
	out := make([]any, 0, len(recs))
	for _, rec := range recs {
		if full {
			out = append(out, rec.Full())
		} else {
			out = append(out, rec.Slim())
		}
	}
	return out
}

// hostURL rebuilds the base URL the client used to reach this daemon.
// Submitted tasks carry it so their canonical task URL points back at
// the service that owns them.
func hostURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host + "/"
}

func actionNames(actions map[string]config.Action) []string {
	names := make([]string, 0, len(actions))
	for name := range actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
