package task

import (
	"encoding/json"

	"github.com/cuemby/procpool/pkg/store"
	"github.com/cuemby/procpool/pkg/types"
)

// InternalUser attributes notes written by the daemon itself.
const InternalUser = "internal_default"

// ExternalUser attributes tasks submitted without an explicit user.
const ExternalUser = "external_default"

// Record couples one task document with the store it lives in.
type Record struct {
	Task *types.Task

	store store.Store
	coll  string
}

// Slim is the compact task projection returned by list endpoints.
type Slim struct {
	ID        string       `json:"id"`
	Cmd       []string     `json:"cmd"`
	Priority  int          `json:"priority"`
	Status    types.Status `json:"status"`
	URL       string       `json:"url"`
	ParentURL string       `json:"parent_url"`
	Notes     []types.Note `json:"notes"`
	User      string       `json:"user"`
	ExitCode  int          `json:"exit_code"`
}

// URL is the canonical address of this task on its submitting host.
func (rec *Record) URL() string {
	return rec.Task.Host + "proc_pool/task/" + rec.Task.ID
}

// Slim returns the compact projection.
func (rec *Record) Slim() Slim {
	return Slim{
		ID:        rec.Task.ID,
		Cmd:       rec.Task.Cmd,
		Priority:  rec.Task.Priority,
		Status:    rec.Task.Status,
		URL:       rec.URL(),
		ParentURL: rec.Task.ParentURL,
		Notes:     rec.Task.Notes,
		User:      rec.Task.User,
		ExitCode:  rec.Task.ExitCode,
	}
}

// Full returns the complete document plus the derived url field.
func (rec *Record) Full() map[string]any {
	doc, err := docOf(rec.Task)
	if err != nil {
		doc = map[string]any{"id": rec.Task.ID}
	}
	doc["url"] = rec.URL()
	return doc
}

// AddNote appends an annotation attributed to user.
func (rec *Record) AddNote(text, user string) {
	rec.Task.Notes = append(rec.Task.Notes, types.Note{
		Text:      text,
		Timestamp: types.Timestamp(),
		User:      user,
	})
}

// Commit persists the record, refreshing updated_at. A non-empty status
// replaces the task's status first; a non-empty note is appended and
// attributed to the daemon.
func (rec *Record) Commit(status types.Status, note string) error {
	if rec.Task.ID == "" {
		return store.NewApplicationFault("cannot commit a task that was never inserted")
	}
	rec.Task.UpdatedAt = types.Timestamp()
	if note != "" {
		rec.AddNote(note, InternalUser)
	}
	if status != "" {
		rec.Task.Status = status
	}
	doc, err := docOf(rec.Task)
	if err != nil {
		return store.NewApplicationFault("failed to encode task %s: %v", rec.Task.ID, err)
	}
	return rec.store.UpdateOne(rec.coll, rec.Task.ID, doc)
}

// Apply sets each named field on the task. Fields outside the task
// schema (built-in keys plus the configured extras) are dropped, as are
// values that do not fit the field's type. The id is never settable.
func (rec *Record) Apply(fields map[string]any, extraFields []string) {
	for key, value := range fields {
		if key == "id" || len(key) == 0 || key[0] == '_' {
			continue
		}
		if !types.IsTaskKey(key) && !contains(extraFields, key) {
			continue
		}
		rec.setField(key, value)
	}
}

// setField routes one field through the document codec so typed fields
// keep their types. A value that fails to decode leaves the task as is.
func (rec *Record) setField(key string, value any) {
	doc, err := docOf(rec.Task)
	if err != nil {
		return
	}
	doc[key] = value
	data, err := json.Marshal(doc)
	if err != nil {
		return
	}
	var updated types.Task
	if err := json.Unmarshal(data, &updated); err != nil {
		return
	}
	*rec.Task = updated
}

// docOf converts a task into its document form, with Extra fields folded
// into the top level.
func docOf(t *types.Task) (map[string]any, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
