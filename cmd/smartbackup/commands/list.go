package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alphagoones/smartbackup/pkg/configstore"
	"github.com/alphagoones/smartbackup/pkg/history"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List backup configurations and their last run",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store := configstore.NewStore(layout.ConfigFile)
		configs, err := store.List()
		if err != nil {
			return err
		}
		if len(configs) == 0 {
			fmt.Println("No backup configurations. Use 'smartbackup add' to create one.")
			return nil
		}

		hist := history.NewStore(layout.HistoryDir, layout.IndexDir)
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSOURCES\tDESTINATION\tSCHEDULE\tKEEP\tLAST RUN\tOUTCOME")
		for _, cfg := range configs {
			lastRun, outcome := "never", "-"
			if records, err := hist.Records(cfg.Name); err == nil && len(records) > 0 {
				last := records[len(records)-1]
				lastRun = last.CompletedAt.Local().Format(time.DateTime)
				outcome = last.Outcome.String()
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
				cfg.Name,
				strings.Join(cfg.Sources, ","),
				cfg.Destination,
				cfg.Schedule,
				cfg.MaxBackups,
				lastRun,
				outcome,
			)
		}
		return w.Flush()
	},
}
