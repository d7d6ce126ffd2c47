package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuemby/procpool/pkg/config"
	"github.com/cuemby/procpool/pkg/task"
)

const defaultTimeout = 10 * time.Second

// Client wraps the daemon's HTTP API for CLI and parent-pool usage.
type Client struct {
	base string
	http *http.Client
}

// TaskRequest is one entry of a submit batch. Priority is a pointer so
// an explicit zero (most urgent) survives encoding.
type TaskRequest struct {
	Cmd       []string          `json:"cmd"`
	Priority  *int              `json:"priority,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	Cwd       string            `json:"cwd,omitempty"`
	Log       string            `json:"log,omitempty"`
	Timeout   int               `json:"timeout,omitempty"`
	User      string            `json:"user,omitempty"`
	ParentURL string            `json:"parent_url,omitempty"`
}

// New creates a client for the daemon at addr. A bare host:port gets an
// http scheme.
func New(addr string) *Client {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return &Client{
		base: strings.TrimRight(addr, "/"),
		http: &http.Client{Timeout: defaultTimeout},
	}
}

// Submit posts a batch of task requests and returns the inserted slim
// records. A failed batch still returns everything inserted before the
// failure, alongside the error.
func (c *Client) Submit(reqs []TaskRequest) ([]task.Slim, error) {
	data, status, err := c.do(http.MethodPost, route("tasks_add", ""),
		map[string]any{"requests": reqs})
	if err != nil {
		return nil, err
	}

	var result struct {
		Inserted []task.Slim `json:"inserted"`
		Message  string      `json:"message"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode submit response: %w", err)
	}
	if status != http.StatusOK {
		return result.Inserted, fmt.Errorf("submit failed (%d): %s", status, result.Message)
	}
	return result.Inserted, nil
}

// Running lists the tasks currently executing.
func (c *Client) Running() ([]task.Slim, error) {
	return c.list(route("tasks_running", ""))
}

// Queued lists the tasks waiting for a slot.
func (c *Client) Queued() ([]task.Slim, error) {
	return c.list(route("tasks_queued", ""))
}

// ByState lists the tasks of one status bucket (queued, running,
// in_progress, complete).
func (c *Client) ByState(state string) ([]task.Slim, error) {
	return c.list(route("tasks", "") + "?state=" + url.QueryEscape(state))
}

// Query runs a raw document query against the task collection.
func (c *Client) Query(q map[string]any) ([]task.Slim, error) {
	var resp struct {
		Output []task.Slim `json:"output"`
	}
	err := c.call(http.MethodPost, route("tasks_query", ""), map[string]any{"query": q}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Output, nil
}

// Get fetches one task. A well-formed id that the daemon does not know
// returns nil without error.
func (c *Client) Get(id string) (*task.Slim, error) {
	var resp struct {
		Output *task.Slim `json:"output"`
	}
	if err := c.call(http.MethodGet, route("task", id), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Output, nil
}

// GetFull fetches one task as its complete stored document.
func (c *Client) GetFull(id string) (map[string]any, error) {
	var resp struct {
		Output map[string]any `json:"output"`
	}
	if err := c.call(http.MethodGet, route("task", id)+"?full", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Output, nil
}

// Log fetches the task's log file.
func (c *Client) Log(id string) ([]byte, error) {
	data, status, err := c.do(http.MethodGet, route("task_log", id), nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("log fetch failed (%d): %s", status, strings.TrimSpace(string(data)))
	}
	return data, nil
}

// Update applies fields to one task and returns the updated record.
func (c *Client) Update(id string, fields map[string]any) (*task.Slim, error) {
	var resp struct {
		Output *task.Slim `json:"output"`
	}
	err := c.call(http.MethodPost, route("task_update", id),
		map[string]any{"update_data": fields}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Output, nil
}

// BulkUpdate applies per-task field updates keyed by id and returns the
// records that were found and updated.
func (c *Client) BulkUpdate(updates map[string]map[string]any) ([]task.Slim, error) {
	var resp struct {
		Output []task.Slim `json:"output"`
	}
	err := c.call(http.MethodPost, route("tasks_update", ""),
		map[string]any{"ids": updates}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Output, nil
}

// Interact sends a configured action (pause, resume, terminate, kill)
// to the task's process.
func (c *Client) Interact(id, action string) (*task.Slim, error) {
	var resp struct {
		Output *task.Slim `json:"output"`
	}
	err := c.call(http.MethodPost, route("task_interact", id),
		map[string]any{"action": action}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Output, nil
}

// Statuses fetches the daemon's status buckets.
func (c *Client) Statuses() (map[string][]string, error) {
	var resp struct {
		Output map[string][]string `json:"output"`
	}
	if err := c.call(http.MethodGet, route("help_statuses", ""), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Output, nil
}

// Endpoints fetches the daemon's route paths.
func (c *Client) Endpoints() ([]string, error) {
	var resp struct {
		Output []string `json:"output"`
	}
	if err := c.call(http.MethodGet, route("help_endpoints", ""), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Output, nil
}

// Config fetches the daemon's loaded configuration.
func (c *Client) Config() (map[string]any, error) {
	var resp struct {
		Output map[string]any `json:"output"`
	}
	if err := c.call(http.MethodGet, route("config", ""), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Output, nil
}

func (c *Client) list(path string) ([]task.Slim, error) {
	var resp struct {
		Output []task.Slim `json:"output"`
	}
	if err := c.call(http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Output, nil
}

// call performs a JSON round trip. Non-OK answers become errors carrying
// the envelope message.
func (c *Client) call(method, path string, body, out any) error {
	data, status, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%s %s failed (%d): %s", method, path, status, messageOf(data))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) do(method, path string, body any) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}

// messageOf digs the envelope message out of an error body, falling
// back to the raw body for non-JSON answers like the log route's.
func messageOf(data []byte) string {
	var env struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &env); err == nil && env.Message != "" {
		return env.Message
	}
	return strings.TrimSpace(string(data))
}

// route resolves a named endpoint to its default path, substituting the
// id parameter when given.
func route(name, id string) string {
	path := config.DefaultEndpoints()[name]
	if id != "" {
		path = strings.Replace(path, ":id", id, 1)
	}
	return path
}
