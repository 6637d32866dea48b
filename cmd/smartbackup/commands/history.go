package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alphagoones/smartbackup/pkg/configstore"
	"github.com/alphagoones/smartbackup/pkg/history"
)

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20,
		"show at most this many runs, newest last")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history <name>",
	Short: "Show past runs of a configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		// Resolve through the config store so typos surface as "not found"
		// instead of an empty listing.
		if _, err := configstore.NewStore(layout.ConfigFile).Get(name); err != nil {
			return err
		}

		hist := history.NewStore(layout.HistoryDir, layout.IndexDir)
		records, err := hist.Records(name)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Printf("No runs recorded for %q yet.\n", name)
			return nil
		}
		if historyLimit > 0 && len(records) > historyLimit {
			records = records[len(records)-historyLimit:]
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "COMPLETED\tOUTCOME\tFILES\tBYTES\tARTIFACT\tDETAIL")
		for _, rec := range records {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
				rec.CompletedAt.Local().Format(time.DateTime),
				rec.Outcome.String(),
				rec.FileCount,
				rec.BytesWritten,
				rec.ArtifactPath,
				rec.ErrorDetail,
			)
		}
		return w.Flush()
	},
}
