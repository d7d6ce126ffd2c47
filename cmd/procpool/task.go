package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuemby/procpool/pkg/client"
)

// Task commands
var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
}

var taskSubmitCmd = &cobra.Command{
	Use:   "submit -- COMMAND [ARGS...]",
	Short: "Submit a command for execution",
	Long: `Submit a command to the pool.

Examples:
  # Run a backup at default priority
  procpool task submit -- pg_dump -Fc warehouse

  # Jump the queue and cap the runtime at five minutes
  procpool task submit --priority 1 --timeout 300 -- ./rebuild-index.sh`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTaskSubmit,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks by state bucket",
	RunE:  runTaskList,
}

var taskGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show one task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskGet,
}

var taskLogsCmd = &cobra.Command{
	Use:   "logs ID",
	Short: "Print a task's log file",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskLogs,
}

var taskSignalCmd = &cobra.Command{
	Use:   "signal ID ACTION",
	Short: "Send an action (pause, resume, terminate, kill) to a running task",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskSignal,
}

var taskUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Update fields on a task record",
	Long: `Update fields on a task record.

Examples:
  # Requeue an errored task
  procpool task update 4f1f... --set status=queued

  # Raise its priority while it waits
  procpool task update 4f1f... --set priority=5`,
	Args: cobra.ExactArgs(1),
	RunE: runTaskUpdate,
}

func init() {
	taskCmd.PersistentFlags().String("server", "http://localhost:9998", "Daemon address")

	taskCmd.AddCommand(taskSubmitCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskGetCmd)
	taskCmd.AddCommand(taskLogsCmd)
	taskCmd.AddCommand(taskSignalCmd)
	taskCmd.AddCommand(taskUpdateCmd)

	// Flags for submit
	taskSubmitCmd.Flags().Int("priority", 100, "Smaller numbers run first")
	taskSubmitCmd.Flags().StringArray("env", nil, "Environment variable KEY=VALUE (repeatable)")
	taskSubmitCmd.Flags().String("cwd", "", "Working directory for the child")
	taskSubmitCmd.Flags().String("log", "", "Log file path (default from server config)")
	taskSubmitCmd.Flags().Int("timeout", 0, "Kill the child after this many seconds (0 = no limit)")
	taskSubmitCmd.Flags().String("user", "", "User recorded on the task")
	taskSubmitCmd.Flags().String("parent-url", "", "Callback URL notified on completion")

	// Flags for list
	taskListCmd.Flags().String("state", "in_progress", "State bucket: queued, running, in_progress or complete")

	// Flags for get
	taskGetCmd.Flags().Bool("full", false, "Print the full document instead of the slim view")

	// Flags for update
	taskUpdateCmd.Flags().StringArray("set", nil, "Field to set as FIELD=VALUE (repeatable)")
	_ = taskUpdateCmd.MarkFlagRequired("set")
}

func apiClient(cmd *cobra.Command) *client.Client {
	server, _ := cmd.Flags().GetString("server")
	return client.New(server)
}

func runTaskSubmit(cmd *cobra.Command, args []string) error {
	req := client.TaskRequest{Cmd: args}

	if cmd.Flags().Changed("priority") {
		priority, _ := cmd.Flags().GetInt("priority")
		req.Priority = &priority
	}
	if entries, _ := cmd.Flags().GetStringArray("env"); len(entries) > 0 {
		req.Env = make(map[string]string, len(entries))
		for _, entry := range entries {
			key, value, ok := strings.Cut(entry, "=")
			if !ok {
				return fmt.Errorf("invalid --env entry %q, expected KEY=VALUE", entry)
			}
			req.Env[key] = value
		}
	}
	req.Cwd, _ = cmd.Flags().GetString("cwd")
	req.Log, _ = cmd.Flags().GetString("log")
	req.Timeout, _ = cmd.Flags().GetInt("timeout")
	req.User, _ = cmd.Flags().GetString("user")
	req.ParentURL, _ = cmd.Flags().GetString("parent-url")

	inserted, err := apiClient(cmd).Submit([]client.TaskRequest{req})
	if err != nil {
		return fmt.Errorf("failed to submit task: %v", err)
	}

	for _, t := range inserted {
		fmt.Printf("✓ Task submitted: %s (priority=%d)\n", t.ID, t.Priority)
	}
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	state, _ := cmd.Flags().GetString("state")

	tasks, err := apiClient(cmd).ByState(state)
	if err != nil {
		return fmt.Errorf("failed to list tasks: %v", err)
	}
	if len(tasks) == 0 {
		fmt.Printf("No tasks in '%s'\n", state)
		return nil
	}

	fmt.Printf("%-32s  %-12s  %8s  %s\n", "ID", "STATUS", "PRIORITY", "CMD")
	for _, t := range tasks {
		fmt.Printf("%-32s  %-12s  %8d  %s\n",
			t.ID, t.Status, t.Priority, strings.Join(t.Cmd, " "))
	}
	return nil
}

func runTaskGet(cmd *cobra.Command, args []string) error {
	id := args[0]
	full, _ := cmd.Flags().GetBool("full")
	c := apiClient(cmd)

	var doc any
	if full {
		m, err := c.GetFull(id)
		if err != nil {
			return fmt.Errorf("failed to get task: %v", err)
		}
		if m == nil {
			return fmt.Errorf("task %s not found", id)
		}
		doc = m
	} else {
		t, err := c.Get(id)
		if err != nil {
			return fmt.Errorf("failed to get task: %v", err)
		}
		if t == nil {
			return fmt.Errorf("task %s not found", id)
		}
		doc = t
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runTaskLogs(cmd *cobra.Command, args []string) error {
	data, err := apiClient(cmd).Log(args[0])
	if err != nil {
		return fmt.Errorf("failed to fetch log: %v", err)
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runTaskSignal(cmd *cobra.Command, args []string) error {
	id, action := args[0], args[1]

	t, err := apiClient(cmd).Interact(id, action)
	if err != nil {
		return fmt.Errorf("failed to signal task: %v", err)
	}
	fmt.Printf("✓ Action sent: %s is now %s\n", t.ID, t.Status)
	return nil
}

func runTaskUpdate(cmd *cobra.Command, args []string) error {
	id := args[0]
	entries, _ := cmd.Flags().GetStringArray("set")

	fields := make(map[string]any, len(entries))
	for _, entry := range entries {
		key, raw, ok := strings.Cut(entry, "=")
		if !ok {
			return fmt.Errorf("invalid --set entry %q, expected FIELD=VALUE", entry)
		}
		// Numeric fields (priority, timeout, exit_code) go over the
		// wire as numbers, everything else as strings.
		if n, err := strconv.Atoi(raw); err == nil {
			fields[key] = n
		} else {
			fields[key] = raw
		}
	}

	t, err := apiClient(cmd).Update(id, fields)
	if err != nil {
		return fmt.Errorf("failed to update task: %v", err)
	}
	fmt.Printf("✓ Task updated: %s (status=%s, priority=%d)\n", t.ID, t.Status, t.Priority)
	return nil
}
