package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvConfigPath names the config file when no explicit path is passed.
const EnvConfigPath = "PROC_POOL_CONFIG"

// Config is the full daemon configuration tree.
type Config struct {
	Startup Startup `json:"startup"`
	Runtime Runtime `json:"runtime"`
}

// Startup holds boot-time settings.
type Startup struct {
	DB            DB        `json:"db"`
	Concurrency   int       `json:"concurrency"`
	Listen        string    `json:"listen"`
	Log           LogConfig `json:"log"`
	ShutdownGrace int       `json:"shutdown_grace"`
}

// DB locates the task store.
type DB struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// LogConfig configures the daemon log sink.
type LogConfig struct {
	Path       string `json:"path"`
	Level      string `json:"level"`
	JSON       bool   `json:"json"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// Runtime holds settings consulted while the daemon runs.
type Runtime struct {
	Task TaskConfig `json:"task"`
	App  AppConfig  `json:"app"`
}

// TaskConfig controls task records and the execution pool.
type TaskConfig struct {
	States            States            `json:"states"`
	Actions           map[string]Action `json:"actions"`
	Log               string            `json:"log"`
	ExtraFields       []string          `json:"extra_fields"`
	FormattableFields []string          `json:"formattable_fields"`
	FinishedTaskLog   string            `json:"finished_task_log"`
	PollInterval      int               `json:"poll_interval"`
	KillGrace         int               `json:"kill_grace"`
	Recover           string            `json:"recover"`
}

// AppConfig controls the HTTP facade and the event consumer.
type AppConfig struct {
	Endpoints     map[string]string `json:"endpoints"`
	NotifyParents bool              `json:"notify_parents"`
	NotifyTimeout int               `json:"notify_timeout"`
}

// States buckets status strings by category.
type States struct {
	Queued     []string `json:"queued"`
	Running    []string `json:"running"`
	InProgress []string `json:"in_progress"`
	Complete   []string `json:"complete"`
}

// Keys lists the bucket names.
func (s States) Keys() []string {
	return []string{"queued", "running", "in_progress", "complete"}
}

// Bucket returns the statuses of a named bucket.
func (s States) Bucket(name string) ([]string, bool) {
	switch name {
	case "queued":
		return s.Queued, true
	case "running":
		return s.Running, true
	case "in_progress":
		return s.InProgress, true
	case "complete":
		return s.Complete, true
	}
	return nil, false
}

// Map returns every bucket keyed by name.
func (s States) Map() map[string][]string {
	return map[string][]string{
		"queued":      s.Queued,
		"running":     s.Running,
		"in_progress": s.InProgress,
		"complete":    s.Complete,
	}
}

// Action maps an interact verb onto a signal and the status committed
// after delivery. The config wire form is a two-element array
// [signal_number, resulting_status].
type Action struct {
	Signal int    `json:"signal"`
	Status string `json:"status"`
}

// Recovery policies for in-progress tasks found at startup.
const (
	RecoverRelaunch = "relaunch"
	RecoverFail     = "fail"
)

const (
	defaultListen        = ":9998"
	defaultLogPath       = "/tmp/proc_pool.log"
	defaultLogLevel      = "debug"
	defaultPollInterval  = 10
	defaultKillGrace     = 10
	defaultShutdownGrace = 30
	defaultNotifyTimeout = 30
)

// DefaultStates returns the built-in status buckets.
func DefaultStates() States {
	return States{
		Queued:     []string{"queued"},
		Running:    []string{"processing"},
		InProgress: []string{"processing", "fetched"},
		Complete:   []string{"finished", "errored", "timed-out", "killed", "terminated"},
	}
}

// DefaultActions returns the built-in interact actions.
func DefaultActions() map[string]Action {
	return map[string]Action{
		"pause":     {Signal: 19, Status: "paused"},
		"resume":    {Signal: 18, Status: "processing"},
		"terminate": {Signal: 15, Status: "terminated"},
		"kill":      {Signal: 9, Status: "killed"},
	}
}

// DefaultEndpoints returns the built-in route map. Paths use gin-style
// ":id" parameters; "<oid>"/"<id>" spellings in config files are
// normalized on load.
func DefaultEndpoints() map[string]string {
	return map[string]string{
		"tasks":            "/proc_pool/tasks",
		"tasks_add":        "/proc_pool/tasks/add",
		"tasks_running":    "/proc_pool/tasks/running",
		"tasks_queued":     "/proc_pool/tasks/queued",
		"tasks_query":      "/proc_pool/tasks/query",
		"tasks_update":     "/proc_pool/tasks/update",
		"task":             "/proc_pool/task/:id",
		"task_log":         "/proc_pool/task/:id/log",
		"task_update":      "/proc_pool/task/:id/update",
		"task_interact":    "/proc_pool/task/:id/interact",
		"help_statuses":    "/proc_pool/help/statuses",
		"help_complete":    "/proc_pool/help/statuses/complete",
		"help_in_progress": "/proc_pool/help/statuses/in_progress",
		"help_endpoints":   "/proc_pool/help/endpoints",
		"config":           "/proc_pool/help/config",
	}
}

// Load reads the JSON config at path, falling back to the PROC_POOL_CONFIG
// environment variable when path is empty. Environment variables prefixed
// PROC_POOL_ override file values (PROC_POOL_STARTUP_CONCURRENCY and so on).
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		return nil, fmt.Errorf("no config path given and %s is not set", EnvConfigPath)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %q: %w", path, err)
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetConfigFile(path)
	v.SetEnvPrefix("PROC_POOL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("startup.concurrency", 1)
	v.SetDefault("startup.listen", defaultListen)
	v.SetDefault("startup.log.path", defaultLogPath)
	v.SetDefault("startup.log.level", defaultLogLevel)
	v.SetDefault("startup.log.json", false)
	v.SetDefault("startup.log.max_size_mb", 100)
	v.SetDefault("startup.log.max_backups", 3)
	v.SetDefault("startup.log.max_age_days", 28)
	v.SetDefault("startup.shutdown_grace", defaultShutdownGrace)
	v.SetDefault("runtime.task.log", "")
	v.SetDefault("runtime.task.poll_interval", defaultPollInterval)
	v.SetDefault("runtime.task.kill_grace", defaultKillGrace)
	v.SetDefault("runtime.task.recover", RecoverRelaunch)
	v.SetDefault("runtime.app.notify_parents", false)
	v.SetDefault("runtime.app.notify_timeout", defaultNotifyTimeout)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %q: %w", path, err)
	}

	cfg := &Config{
		Startup: Startup{
			DB: DB{
				URL:  v.GetString("startup.db.url"),
				Name: v.GetString("startup.db.name"),
			},
			Concurrency: v.GetInt("startup.concurrency"),
			Listen:      v.GetString("startup.listen"),
			Log: LogConfig{
				Path:       v.GetString("startup.log.path"),
				Level:      v.GetString("startup.log.level"),
				JSON:       v.GetBool("startup.log.json"),
				MaxSizeMB:  v.GetInt("startup.log.max_size_mb"),
				MaxBackups: v.GetInt("startup.log.max_backups"),
				MaxAgeDays: v.GetInt("startup.log.max_age_days"),
			},
			ShutdownGrace: v.GetInt("startup.shutdown_grace"),
		},
		Runtime: Runtime{
			Task: TaskConfig{
				States:            DefaultStates(),
				Actions:           DefaultActions(),
				Log:               v.GetString("runtime.task.log"),
				ExtraFields:       v.GetStringSlice("runtime.task.extra_fields"),
				FormattableFields: v.GetStringSlice("runtime.task.formattable_fields"),
				FinishedTaskLog:   v.GetString("runtime.task.finished_task_log"),
				PollInterval:      v.GetInt("runtime.task.poll_interval"),
				KillGrace:         v.GetInt("runtime.task.kill_grace"),
				Recover:           v.GetString("runtime.task.recover"),
			},
			App: AppConfig{
				Endpoints:     DefaultEndpoints(),
				NotifyParents: v.GetBool("runtime.app.notify_parents"),
				NotifyTimeout: v.GetInt("runtime.app.notify_timeout"),
			},
		},
	}

	if v.IsSet("runtime.task.states") {
		overlayStates(&cfg.Runtime.Task.States, v.GetStringMapStringSlice("runtime.task.states"))
	}
	if v.IsSet("runtime.task.actions") {
		actions, err := parseActions(v.GetStringMap("runtime.task.actions"))
		if err != nil {
			return nil, err
		}
		for name, action := range actions {
			cfg.Runtime.Task.Actions[name] = action
		}
	}
	if v.IsSet("runtime.app.endpoints") {
		for name, route := range v.GetStringMapString("runtime.app.endpoints") {
			cfg.Runtime.App.Endpoints[name] = normalizeRoute(route)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first missing or malformed setting.
func (c *Config) Validate() error {
	switch {
	case c.Startup.DB.URL == "":
		return fmt.Errorf("config: startup.db.url is required")
	case c.Startup.DB.Name == "":
		return fmt.Errorf("config: startup.db.name is required")
	case c.Runtime.Task.FinishedTaskLog == "":
		return fmt.Errorf("config: runtime.task.finished_task_log is required")
	case c.Startup.Concurrency < 1:
		return fmt.Errorf("config: startup.concurrency must be at least 1, got %d", c.Startup.Concurrency)
	case len(c.Runtime.Task.States.Queued) == 0:
		return fmt.Errorf("config: runtime.task.states.queued must not be empty")
	case len(c.Runtime.App.Endpoints) == 0:
		return fmt.Errorf("config: runtime.app.endpoints must not be empty")
	}
	if r := c.Runtime.Task.Recover; r != RecoverRelaunch && r != RecoverFail {
		return fmt.Errorf("config: runtime.task.recover must be %q or %q, got %q", RecoverRelaunch, RecoverFail, r)
	}
	for name, action := range c.Runtime.Task.Actions {
		if action.Signal <= 0 || action.Status == "" {
			return fmt.Errorf("config: runtime.task.actions.%s must be [signal_number, resulting_status]", name)
		}
	}
	return nil
}

// Endpoint returns the route path registered under name.
func (c *Config) Endpoint(name string) (string, bool) {
	route, ok := c.Runtime.App.Endpoints[name]
	return route, ok
}

// EndpointPaths returns every configured route path.
func (c *Config) EndpointPaths() []string {
	paths := make([]string, 0, len(c.Runtime.App.Endpoints))
	for _, route := range c.Runtime.App.Endpoints {
		paths = append(paths, route)
	}
	return paths
}

func overlayStates(states *States, raw map[string][]string) {
	for bucket, statuses := range raw {
		switch bucket {
		case "queued":
			states.Queued = statuses
		case "running":
			states.Running = statuses
		case "in_progress":
			states.InProgress = statuses
		case "complete":
			states.Complete = statuses
		}
	}
}

// parseActions converts the raw [signal, status] tuples viper hands back.
func parseActions(raw map[string]any) (map[string]Action, error) {
	actions := make(map[string]Action, len(raw))
	for name, value := range raw {
		pair, ok := value.([]any)
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("config: runtime.task.actions.%s must be [signal_number, resulting_status]", name)
		}
		signal, ok := toInt(pair[0])
		if !ok {
			return nil, fmt.Errorf("config: runtime.task.actions.%s signal must be a number, got %v", name, pair[0])
		}
		status, ok := pair[1].(string)
		if !ok {
			return nil, fmt.Errorf("config: runtime.task.actions.%s status must be a string, got %v", name, pair[1])
		}
		actions[name] = Action{Signal: signal, Status: status}
	}
	return actions, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}

// normalizeRoute rewrites flask-style path params to gin-style.
func normalizeRoute(route string) string {
	route = strings.ReplaceAll(route, "<oid>", ":id")
	route = strings.ReplaceAll(route, "<id>", ":id")
	return route
}
