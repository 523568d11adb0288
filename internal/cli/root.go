// Package cli is the command surface. Exit codes: 0 when every
// episode succeeded, 1 when any failed, 2 when any aborted, 3 on a
// configuration error.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pcastell/mend/internal/models"
)

const (
	ExitSucceeded   = 0
	ExitFailed      = 1
	ExitAborted     = 2
	ExitConfigError = 3
)

var cfgFile string

// exitStatus is set by the run command from the run outcome; command
// errors override it in Execute.
var exitStatus = ExitSucceeded

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mend",
		Short:         "Self-correcting coding agent",
		Long:          "mend generates code for a task, executes it in an isolated sandbox,\nand revises it from the execution feedback until it succeeds or a bound is reached.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "run.yaml", "path to run config")
	root.AddCommand(newRunCmd())
	root.AddCommand(newShowCmd())
	root.AddCommand(newListCmd())
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var cfgErr *models.ConfigurationError
		if errors.As(err, &cfgErr) {
			return ExitConfigError
		}
		return ExitFailed
	}
	return exitStatus
}

// setupLogging configures the process-wide logger from the config's
// log level.
func setupLogging(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}
