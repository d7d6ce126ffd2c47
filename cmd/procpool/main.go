package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/procpool/pkg/config"
	"github.com/cuemby/procpool/pkg/daemon"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "procpool",
	Short: "Procpool - Durable local process execution pool",
	Long: `Procpool runs commands as supervised child processes with bounded
concurrency and priority ordering, keeping a durable record of every
run in an embedded store and exposing a small HTTP JSON API for
submission, inspection and signalling.`,
	Version: Version,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Procpool version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(versionCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the process pool daemon",
	Long: `Run the process pool daemon in the foreground.

On startup the daemon recovers tasks a previous run left in progress,
then serves the HTTP API and keeps claiming queued tasks until it is
stopped. Configuration comes from --config or the PROC_POOL_CONFIG
environment variable; with neither, built-in defaults apply.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %v", err)
		}

		fmt.Println("Starting procpool daemon...")
		fmt.Printf("  Listen: %s\n", cfg.Startup.Listen)
		fmt.Printf("  Store: %s\n", cfg.Startup.DB.URL)
		fmt.Printf("  Concurrency: %d\n", cfg.Startup.Concurrency)
		fmt.Println()

		d, err := daemon.New(cfg)
		if err != nil {
			return fmt.Errorf("failed to create daemon: %v", err)
		}
		if err := d.Start(); err != nil {
			return fmt.Errorf("failed to start daemon: %v", err)
		}
		fmt.Println("✓ Daemon started")

		fmt.Println()
		fmt.Println("Daemon is running. Press Ctrl+C to stop.")

		// Wait for interrupt signal or daemon error
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
		case err := <-d.Err():
			fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(),
			time.Duration(cfg.Startup.ShutdownGrace)*time.Second)
		defer cancel()
		if err := d.Stop(ctx); err != nil {
			return fmt.Errorf("failed to shut down cleanly: %v", err)
		}

		fmt.Println("✓ Shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("config", "", "Path to JSON config file")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Procpool version %s\nCommit: %s\nBuilt: %s\n",
			Version, Commit, BuildTime)
	},
}
