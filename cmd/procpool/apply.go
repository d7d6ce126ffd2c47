package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/procpool/pkg/client"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Submit tasks from a manifest file",
	Long: `Submit every task in a YAML manifest to the pool.

Examples:
  # Submit a batch of jobs
  procpool apply -f nightly-jobs.yaml

  # Against a remote daemon
  procpool apply -f nightly-jobs.yaml --server http://jobs-1:9998`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML manifest to apply (required)")
	applyCmd.Flags().String("server", "http://localhost:9998", "Daemon address")
	_ = applyCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(applyCmd)
}

// TaskSet is the manifest schema accepted by apply.
type TaskSet struct {
	APIVersion string          `yaml:"apiVersion"`
	Kind       string          `yaml:"kind"`
	Metadata   TaskSetMetadata `yaml:"metadata"`
	Spec       TaskSetSpec     `yaml:"spec"`
}

type TaskSetMetadata struct {
	Name   string            `yaml:"name"`
	Labels map[string]string `yaml:"labels,omitempty"`
}

type TaskSetSpec struct {
	Tasks []ManifestTask `yaml:"tasks"`
}

type ManifestTask struct {
	Cmd       []string          `yaml:"cmd"`
	Priority  *int              `yaml:"priority,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	Cwd       string            `yaml:"cwd,omitempty"`
	Log       string            `yaml:"log,omitempty"`
	Timeout   int               `yaml:"timeout,omitempty"`
	User      string            `yaml:"user,omitempty"`
	ParentURL string            `yaml:"parentUrl,omitempty"`
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	server, _ := cmd.Flags().GetString("server")

	// Read YAML file
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %v", err)
	}

	// Parse YAML
	var set TaskSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return fmt.Errorf("failed to parse YAML: %v", err)
	}

	if set.Kind != "TaskSet" {
		return fmt.Errorf("unsupported resource kind: %s", set.Kind)
	}
	if set.APIVersion != "" && set.APIVersion != "procpool/v1" {
		return fmt.Errorf("unsupported apiVersion: %s", set.APIVersion)
	}
	if len(set.Spec.Tasks) == 0 {
		return fmt.Errorf("manifest contains no tasks")
	}

	reqs := make([]client.TaskRequest, 0, len(set.Spec.Tasks))
	for i, mt := range set.Spec.Tasks {
		if len(mt.Cmd) == 0 {
			return fmt.Errorf("task %d in the manifest has no cmd", i)
		}
		reqs = append(reqs, client.TaskRequest{
			Cmd:       mt.Cmd,
			Priority:  mt.Priority,
			Env:       mt.Env,
			Cwd:       mt.Cwd,
			Log:       mt.Log,
			Timeout:   mt.Timeout,
			User:      mt.User,
			ParentURL: mt.ParentURL,
		})
	}

	name := set.Metadata.Name
	if name == "" {
		name = filename
	}
	fmt.Printf("Applying task set: %s\n", name)

	// On a partial failure the daemon reports what it did insert
	inserted, err := client.New(server).Submit(reqs)
	for _, t := range inserted {
		fmt.Printf("✓ Task submitted: %s (priority=%d) %s\n",
			t.ID, t.Priority, strings.Join(t.Cmd, " "))
	}
	if err != nil {
		return fmt.Errorf("failed to apply: %v", err)
	}

	fmt.Printf("✓ %d task(s) submitted\n", len(inserted))
	return nil
}
