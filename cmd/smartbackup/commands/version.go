package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/alphagoones/smartbackup/pkg/buildinfo"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("smartbackup %s (%s/%s)\n", buildinfo.Version, runtime.GOOS, runtime.GOARCH)
	},
}
