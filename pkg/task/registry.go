package task

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cuemby/procpool/pkg/config"
	"github.com/cuemby/procpool/pkg/store"
	"github.com/cuemby/procpool/pkg/types"
)

// buildKeys are the fields a submit request may carry. Everything else
// reaches a task through the update endpoints.
var buildKeys = map[string]struct{}{
	"cmd": {}, "priority": {}, "log": {}, "env": {}, "cwd": {},
	"timeout": {}, "host": {}, "user": {}, "parent_url": {},
}

// Registry builds, loads, and queries task records in one collection.
type Registry struct {
	store store.Store
	cfg   *config.Config
	coll  string
}

// NewRegistry creates a registry over the configured collection.
func NewRegistry(st store.Store, cfg *config.Config) *Registry {
	return &Registry{
		store: st,
		cfg:   cfg,
		coll:  cfg.Startup.DB.Name,
	}
}

// Collection returns the collection name records live in.
func (r *Registry) Collection() string {
	return r.coll
}

// Build validates a submit request, interpolates the formattable fields,
// prepares the log directory, and inserts the record as queued. The task
// id is assigned before interpolation so {name} resolves to it.
func (r *Registry) Build(req map[string]any) (*Record, error) {
	for key := range req {
		if _, ok := buildKeys[key]; !ok {
			return nil, store.NewUserFault(
				"unexpected task field %q, allowed fields: %s", key, strings.Join(sortedBuildKeys(), ", "))
		}
	}

	t := &types.Task{
		ID:       types.Hex(),
		Priority: 100,
		Log:      r.cfg.Runtime.Task.Log,
		User:     ExternalUser,
		ExitCode: types.ExitCodeNone,
		InitTime: types.Timestamp(),
	}

	rawCmd, ok := req["cmd"].([]any)
	if !ok {
		if typed, isTyped := req["cmd"].([]string); isTyped {
			rawCmd = make([]any, len(typed))
			for i, s := range typed {
				rawCmd[i] = s
			}
		} else {
			return nil, store.NewUserFault("The command argument must be a list")
		}
	}
	t.Cmd = make([]string, len(rawCmd))
	for i, arg := range rawCmd {
		t.Cmd[i] = stringify(arg)
	}

	if v, ok := req["priority"]; ok {
		p, ok := intFrom(v)
		if !ok {
			return nil, store.NewUserFault("The priority argument should be an int")
		}
		t.Priority = p
	}
	if v, ok := req["timeout"]; ok && v != nil {
		n, ok := intFrom(v)
		if !ok {
			return nil, store.NewUserFault("The timeout argument should be an integer")
		}
		t.Timeout = n
	}
	if v, ok := req["env"]; ok && v != nil {
		raw, ok := v.(map[string]any)
		if !ok {
			if typed, isTyped := v.(map[string]string); isTyped {
				t.Env = typed
			} else {
				return nil, store.NewUserFault("The env argument should be a dict")
			}
		} else {
			t.Env = make(map[string]string, len(raw))
			for k, val := range raw {
				t.Env[k] = stringify(val)
			}
		}
	}
	if v, ok := req["cwd"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return nil, store.NewUserFault("The cwd argument should be a string")
		}
		t.Cwd = s
	}
	if v, ok := req["log"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return nil, store.NewUserFault("The log argument should be a string")
		}
		t.Log = s
	}
	if v, ok := req["user"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return nil, store.NewUserFault("The user argument should be a string")
		}
		t.User = s
	}
	if v, ok := req["host"]; ok && v != nil {
		if s, isStr := v.(string); isStr {
			t.Host = s
		}
	}
	if v, ok := req["parent_url"]; ok && v != nil {
		if s, isStr := v.(string); isStr {
			t.ParentURL = s
		}
	}

	t.Notes = []types.Note{{
		Text:      "task created",
		Timestamp: types.Timestamp(),
		User:      t.User,
	}}

	if err := r.interpolateTask(t); err != nil {
		return nil, err
	}

	if t.Log != "" {
		if dir := filepath.Dir(t.Log); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, store.NewUserFault("unable to create log directory %q: %v", dir, err)
			}
		}
	}

	t.Status = types.StatusQueued
	t.UpdatedAt = types.Timestamp()

	doc, err := docOf(t)
	if err != nil {
		return nil, store.NewApplicationFault("failed to encode task: %v", err)
	}
	if _, err := r.store.Insert(r.coll, doc); err != nil {
		return nil, err
	}

	return &Record{Task: t, store: r.store, coll: r.coll}, nil
}

// interpolateTask substitutes {placeholder} tokens in the formattable
// fields and writes the result back into the task.
func (r *Registry) interpolateTask(t *types.Task) error {
	doc, err := docOf(t)
	if err != nil {
		return store.NewApplicationFault("failed to encode task: %v", err)
	}

	fields := append([]string{"cmd", "log"}, r.cfg.Runtime.Task.FormattableFields...)
	if err := interpolateDoc(doc, fields, namespace(doc, t.ID)); err != nil {
		return err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return store.NewApplicationFault("failed to encode task: %v", err)
	}
	return json.Unmarshal(data, t)
}

// FromID loads the record stored under id. A malformed id is a user
// fault; a missing record returns nil without error.
func (r *Registry) FromID(id string) (*Record, error) {
	if err := store.ValidateID(id); err != nil {
		return nil, err
	}
	doc, err := r.store.FindOne(r.coll, store.Query{"id": id})
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	return r.recordFrom(doc)
}

// Query returns every record matching q.
func (r *Registry) Query(q store.Query) ([]*Record, error) {
	docs, err := r.store.Find(r.coll, q)
	if err != nil {
		return nil, err
	}
	recs := make([]*Record, 0, len(docs))
	for _, doc := range docs {
		rec, err := r.recordFrom(doc)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// ByStates returns every record whose status is in the bucket.
func (r *Registry) ByStates(bucket []string) ([]*Record, error) {
	return r.Query(store.Query{"status": map[string]any{"$in": bucket}})
}

// NextQueued claims the queued record with the smallest priority, commits
// it as fetched, and returns it. Returns nil when nothing is queued.
func (r *Registry) NextQueued() (*Record, error) {
	doc, err := r.store.Next(r.coll, store.Query{
		"status": map[string]any{"$in": r.cfg.Runtime.Task.States.Queued},
	}, "priority")
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	rec, err := r.recordFrom(doc)
	if err != nil {
		return nil, err
	}
	if err := rec.Commit(types.StatusFetched, ""); err != nil {
		return nil, err
	}
	return rec, nil
}

// InProgress returns the records to recover at startup: everything left
// in an in-progress state by a previous run.
func (r *Registry) InProgress() ([]*Record, error) {
	return r.ByStates(r.cfg.Runtime.Task.States.InProgress)
}

func (r *Registry) recordFrom(doc map[string]any) (*Record, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, store.NewApplicationFault("failed to encode task document: %v", err)
	}
	var t types.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, store.NewApplicationFault("failed to decode task document: %v", err)
	}
	return &Record{Task: &t, store: r.store, coll: r.coll}, nil
}

func intFrom(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
	}
	return 0, false
}

func sortedBuildKeys() []string {
	keys := make([]string, 0, len(buildKeys))
	for k := range buildKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
