package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/alphagoones/smartbackup/pkg/configstore"
)

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule <name>",
	Short: "Print the crontab line for unattended runs",
	Long: `Print the crontab entry that runs the named configuration on its
stored schedule. Install it with:

  smartbackup schedule <name> | crontab -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := configstore.NewStore(layout.ConfigFile)
		cfg, err := store.Get(args[0])
		if err != nil {
			return err
		}

		exe, err := os.Executable()
		if err != nil {
			return errors.Wrap(err, "could not resolve executable path")
		}
		exe, err = filepath.EvalSymlinks(exe)
		if err != nil {
			return errors.Wrap(err, "could not resolve executable path")
		}

		line := fmt.Sprintf("%s %s", cfg.Schedule, exe)
		if stateDir != "" {
			line += fmt.Sprintf(" --state-dir %s", layout.Root)
		}
		line += fmt.Sprintf(" backup %s", cfg.Name)
		fmt.Println(line)
		return nil
	},
}
