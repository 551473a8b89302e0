// Package cli parses command-line arguments into an application config.
package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/vk/taskgrid/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated app config,
// a boolean indicating the program should exit cleanly (help or no grid
// given), or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("taskgrid", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
taskgrid - a dependency-aware task grid executor.

Usage:
  taskgrid [options] [GRID_PATH]

Arguments:
  GRID_PATH
    Path to a single .hcl file or a directory containing .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	gridFlag := flagSet.String("grid", "", "Path to the grid file or directory.")
	gFlag := flagSet.String("g", "", "Path to the grid file or directory (shorthand).")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", 0, "Number of worker goroutines. 0 uses the grid setting or the CPU count.")
	policyFlag := flagSet.String("policy", "", "Execution policy: 'fifo', 'lifo', 'priority', 'deadline', or 'fair'.")
	capacityFlag := flagSet.Int("queue-capacity", 0, "Ready queue capacity. 0 uses the grid setting or the default.")
	rejectionFlag := flagSet.String("rejection-policy", "", "Rejection policy: 'abort', 'caller_runs', 'requeue', or 'discard'.")
	shutdownFlag := flagSet.String("shutdown-policy", "", "Shutdown policy: 'await_completion', 'await_termination', or 'force_termination'.")
	monitorFlag := flagSet.Int64("monitor-interval-ms", 0, "Resource monitor sampling interval in milliseconds. 0 disables the monitor.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	path := ""
	if *gridFlag != "" {
		path = *gridFlag
	} else if *gFlag != "" {
		path = *gFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}

	if path == "" {
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	config, err := app.NewConfig(app.Config{
		GridPath:          path,
		LogFormat:         logFormat,
		LogLevel:          logLevel,
		Workers:           *workersFlag,
		Policy:            strings.ToLower(*policyFlag),
		QueueCapacity:     *capacityFlag,
		RejectionPolicy:   strings.ToLower(*rejectionFlag),
		ShutdownPolicy:    strings.ToLower(*shutdownFlag),
		MonitorIntervalMs: *monitorFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	return config, false, nil
}
