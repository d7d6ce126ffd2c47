package framework

// HarnessConfig defines the configuration for a test daemon
type HarnessConfig struct {
	// Concurrency is the number of pool slots
	Concurrency int
	// PollInterval is the dispatcher poll interval in seconds
	PollInterval int
	// Recover selects how tasks left in progress are handled on boot
	Recover string
	// NotifyParents enables completion callbacks to parent URLs
	NotifyParents bool
	// DataDir is the directory for the store and all log files
	// (a fresh temporary directory when empty)
	DataDir string
	// LogLevel sets the daemon log level
	LogLevel string
	// KeepOnFailure keeps the data directory after Cleanup (for debugging)
	KeepOnFailure bool
}

// TestingT is an interface matching testing.T
type TestingT interface {
	Logf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	FailNow()
	Failed() bool
	Name() string
	Helper()
}
