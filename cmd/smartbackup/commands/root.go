// Package commands implements the CLI commands for smartbackup.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/alphagoones/smartbackup/pkg/buildinfo"
	"github.com/alphagoones/smartbackup/pkg/engine"
	"github.com/alphagoones/smartbackup/pkg/paths"
	"github.com/alphagoones/smartbackup/pkg/plog"
)

// Exit codes of the backup command. Schedulers use these to tell a clean
// run from a degraded or failed one.
const (
	ExitSuccess        = 0
	ExitFailed         = 1
	ExitPartial        = 2
	ExitAlreadyRunning = 3
)

// stateDir holds the value of the --state-dir flag.
var stateDir string

// logLevel holds the value of the --log-level flag.
var logLevel string

// quiet holds the value of the -q/--quiet flag.
var quiet bool

// layout is the resolved state layout, available to all commands.
var layout *paths.Layout

// exitCodeError carries a specific process exit code through cobra.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

func init() {
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "",
		"override the state directory (default: $XDG_CONFIG_HOME/smartbackup)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log verbosity: debug, notice, info, warn, error")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"suppress non-error output")

	rootCmd.Version = buildinfo.Version
	rootCmd.SetVersionTemplate("smartbackup version {{.Version}}\n")

	// Silence errors and usage so we can control error output
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
}

var rootCmd = &cobra.Command{
	Use:   "smartbackup",
	Short: "Incremental backups with retention for named configurations",
	Long: `smartbackup runs incremental backups of named configurations.

A configuration names one or more source directories, a destination,
exclusion patterns and a retention limit. Each run copies only the files
that changed since the last successful run, optionally compresses the
result into a single archive, and prunes the oldest backups beyond the
retention limit.`,
	Example: `  # Register a configuration
  smartbackup add docs --source ~/Documents --dest /mnt/backup/docs

  # Run it
  smartbackup backup docs

  # Show the crontab line for unattended runs
  smartbackup schedule docs`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if quiet {
			plog.SetLevel(slog.LevelError)
		} else {
			plog.SetLevel(plog.LevelFromString(logLevel))
		}

		var err error
		layout, err = paths.Resolve(stateDir)
		if err != nil {
			return err
		}
		if err := layout.Ensure(); err != nil {
			return err
		}
		if err := plog.EnableFileLogging(layout.LogDir); err != nil {
			plog.Warn("Could not open log file, continuing without", "error", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		plog.CloseFileLogging()
	},
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context) int {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	var coded *exitCodeError
	if errors.As(err, &coded) {
		if coded.err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", coded.err)
		}
		return coded.code
	}
	if errors.Is(err, engine.ErrAlreadyRunning) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitAlreadyRunning
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return ExitFailed
}
