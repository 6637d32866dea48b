package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alphagoones/smartbackup/pkg/configstore"
	"github.com/alphagoones/smartbackup/pkg/history"
	"github.com/alphagoones/smartbackup/pkg/plog"
)

func init() {
	rootCmd.AddCommand(removeCmd)
}

var removeCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"rm"},
	Short:   "Remove a backup configuration",
	Long: `Remove a backup configuration together with its run history and
file index. Backup artifacts in the destination are left untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		store := configstore.NewStore(layout.ConfigFile)
		if err := store.Remove(name); err != nil {
			return err
		}

		hist := history.NewStore(layout.HistoryDir, layout.IndexDir)
		if err := hist.DeleteState(name); err != nil {
			plog.Warn("Could not remove run history", "config", name, "error", err)
		}

		fmt.Printf("Removed backup configuration %q\n", name)
		return nil
	},
}
