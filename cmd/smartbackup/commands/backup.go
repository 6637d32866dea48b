package commands

import (
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/alphagoones/smartbackup/pkg/engine"
	"github.com/alphagoones/smartbackup/pkg/history"
)

var backupWorkers int

func init() {
	backupCmd.Flags().IntVar(&backupWorkers, "workers", 0,
		"number of parallel copy workers (0 = default)")
	rootCmd.AddCommand(backupCmd)
}

var backupCmd = &cobra.Command{
	Use:   "backup <name>",
	Short: "Run a backup for a configuration",
	Long: `Run one backup for the named configuration. Only files changed since
the last successful run are copied.

Exit codes: 0 on success, 2 when the run completed with problems (some
files skipped or compression failed), 1 on failure, 3 when a run for the
same configuration is already in progress.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e := engine.New(layout)
		e.Workers = backupWorkers

		rec, err := e.Run(cmd.Context(), args[0])
		if err != nil {
			if errors.Is(err, engine.ErrAlreadyRunning) {
				return &exitCodeError{code: ExitAlreadyRunning, err: err}
			}
			return &exitCodeError{code: ExitFailed, err: err}
		}
		if rec.Outcome == history.Partial {
			return &exitCodeError{
				code: ExitPartial,
				err:  errors.Newf("backup completed with problems: %s", rec.ErrorDetail),
			}
		}
		return nil
	},
}
