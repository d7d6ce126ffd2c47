package types

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TimeFormat is the layout used for every persisted timestamp.
const TimeFormat = "2006-01-02 15:04:05"

// DateFormat is the layout used for the {date} interpolation token.
const DateFormat = "2006-01-02"

// Timestamp returns the current time in TimeFormat.
func Timestamp() string {
	return time.Now().Format(TimeFormat)
}

// Today returns the current date in DateFormat.
func Today() string {
	return time.Now().Format(DateFormat)
}

// Hex returns a fresh 32-character hex token (uuid4 without dashes).
// Used for store ids and for the {name} token of tasks not yet inserted.
func Hex() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// Status is the lifecycle state of a task.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusFetched    Status = "fetched"
	StatusProcessing Status = "processing"
	StatusFinished   Status = "finished"
	StatusErrored    Status = "errored"
	StatusTimedOut   Status = "timed-out"
)

// ExitCodeNone is the exit code of a task whose child was never awaited.
const ExitCodeNone = -9999

// Statuses returns every built-in status.
func Statuses() []string {
	return []string{
		string(StatusQueued),
		string(StatusFetched),
		string(StatusProcessing),
		string(StatusFinished),
		string(StatusErrored),
		string(StatusTimedOut),
	}
}

// Terminal returns the built-in terminal statuses. Config state buckets may
// extend this set at runtime; see pkg/config.
func Terminal() []string {
	return []string{
		string(StatusFinished),
		string(StatusErrored),
		string(StatusTimedOut),
	}
}

// InProgress returns the statuses recovered at daemon startup.
func InProgress() []string {
	return []string{
		string(StatusProcessing),
		string(StatusFetched),
	}
}

// In reports whether the status appears in a configured bucket.
func (s Status) In(bucket []string) bool {
	for _, b := range bucket {
		if string(s) == b {
			return true
		}
	}
	return false
}

// Note is one append-only annotation on a task.
type Note struct {
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	User      string `json:"user"`
}

// Task is the persisted description of one external command plus its
// lifecycle metadata. Empty Cwd and Env mean the child inherits the
// daemon's working directory and environment. ID is empty until the store
// assigns one at insert.
type Task struct {
	ID        string            `json:"id"`
	Cmd       []string          `json:"cmd"`
	Env       map[string]string `json:"env"`
	Cwd       string            `json:"cwd"`
	Stdin     string            `json:"stdin"`
	Stdout    string            `json:"stdout"`
	Stderr    string            `json:"stderr"`
	Log       string            `json:"log"`
	Priority  int               `json:"priority"`
	Timeout   int               `json:"timeout"`
	Status    Status            `json:"status"`
	PID       int               `json:"pid"`
	InitTime  string            `json:"init_time"`
	StartTime string            `json:"start_time"`
	EndTime   string            `json:"end_time"`
	UpdatedAt string            `json:"updated_at"`
	ExitCode  int               `json:"exit_code"`
	Host      string            `json:"host"`
	User      string            `json:"user"`
	ParentURL string            `json:"parent_url"`
	Notes     []Note            `json:"notes"`

	// Extra holds config-driven extension fields. They serialize as
	// top-level document keys, not under an "extra" key.
	Extra map[string]any `json:"-"`
}

// knownTaskKeys is the set of JSON keys owned by the typed fields above.
var knownTaskKeys = map[string]struct{}{
	"id": {}, "cmd": {}, "env": {}, "cwd": {}, "stdin": {}, "stdout": {},
	"stderr": {}, "log": {}, "priority": {}, "timeout": {}, "status": {},
	"pid": {}, "init_time": {}, "start_time": {}, "end_time": {},
	"updated_at": {}, "exit_code": {}, "host": {}, "user": {},
	"parent_url": {}, "notes": {},
}

// IsTaskKey reports whether key belongs to the typed task fields.
func IsTaskKey(key string) bool {
	_, ok := knownTaskKeys[key]
	return ok
}

// MarshalJSON folds Extra fields into the top-level document.
func (t Task) MarshalJSON() ([]byte, error) {
	type alias Task
	raw, err := json.Marshal(alias(t))
	if err != nil {
		return nil, err
	}
	if len(t.Extra) == 0 {
		return raw, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	for k, v := range t.Extra {
		if !IsTaskKey(k) {
			doc[k] = v
		}
	}
	return json.Marshal(doc)
}

// UnmarshalJSON collects unrecognized top-level keys into Extra.
func (t *Task) UnmarshalJSON(data []byte) error {
	type alias Task
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*t = Task(a)
	for k, v := range doc {
		if IsTaskKey(k) {
			continue
		}
		if t.Extra == nil {
			t.Extra = make(map[string]any)
		}
		t.Extra[k] = v
	}
	return nil
}

// Artifact is the payload of one lifecycle event. ToDelete carries the
// terminal task for the completion log and is nil on processing events.
type Artifact struct {
	Status    Status `json:"status"`
	ParentURL string `json:"parent_url"`
	ToDelete  *Task  `json:"to_delete,omitempty"`
}
