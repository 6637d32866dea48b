package commands

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/alphagoones/smartbackup/pkg/compress"
	"github.com/alphagoones/smartbackup/pkg/configstore"
	"github.com/alphagoones/smartbackup/pkg/util"
)

var (
	addSources    []string
	addDest       string
	addExclusions []string
	addSchedule   string
	addMaxBackups int
	addNoCompress bool
	addFormat     string
)

func init() {
	addCmd.Flags().StringArrayVarP(&addSources, "source", "s", nil,
		"additional source path to back up (repeatable)")
	addCmd.Flags().StringVarP(&addDest, "dest", "d", "",
		"destination directory for backup artifacts")
	addCmd.Flags().StringArrayVarP(&addExclusions, "exclude", "e", nil,
		"glob pattern to exclude (repeatable)")
	addCmd.Flags().StringVar(&addSchedule, "schedule", configstore.DefaultSchedule,
		"cron schedule for unattended runs")
	addCmd.Flags().IntVar(&addMaxBackups, "max-backups", configstore.DefaultMaxBackups,
		"number of backups to keep")
	addCmd.Flags().BoolVar(&addNoCompress, "no-compression", false,
		"keep the staged directory instead of producing an archive")
	addCmd.Flags().StringVar(&addFormat, "format", configstore.DefaultFormat,
		"archive format: tar.gz, tar.zst")
	_ = addCmd.MarkFlagRequired("dest")

	rootCmd.AddCommand(addCmd)
}

// absolutize expands a leading tilde and resolves the path against the
// working directory, scheduled runs must not depend on the caller's cwd.
func absolutize(path string) (string, error) {
	expanded, err := util.ExpandPath(path)
	if err != nil {
		return "", err
	}
	return filepath.Abs(expanded)
}

var addCmd = &cobra.Command{
	Use:   "add <name> [source]...",
	Short: "Register a new backup configuration",
	Example: `  smartbackup add docs ~/Documents ~/Desktop/notes \
    --dest /mnt/backup/docs --exclude '*.tmp' --exclude node_modules`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := compress.ParseFormat(addFormat); err != nil {
			return err
		}

		rawSources := append(append([]string{}, args[1:]...), addSources...)
		sources := make([]string, 0, len(rawSources))
		for _, src := range rawSources {
			abs, err := absolutize(src)
			if err != nil {
				return err
			}
			sources = append(sources, abs)
		}
		// The same path given both positionally and via --source counts once.
		sources = util.MergeAndDeduplicate(sources)
		sort.Strings(sources)
		dest, err := absolutize(addDest)
		if err != nil {
			return err
		}

		exclusions := util.MergeAndDeduplicate(addExclusions)
		sort.Strings(exclusions)

		cfg := configstore.Config{
			Name:        args[0],
			Sources:     sources,
			Destination: dest,
			Exclusions:  exclusions,
			Schedule:    addSchedule,
			MaxBackups:  addMaxBackups,
			Compression: !addNoCompress,
			Format:      addFormat,
		}
		store := configstore.NewStore(layout.ConfigFile)
		if err := store.Add(cfg); err != nil {
			return err
		}
		fmt.Printf("Added backup configuration %q (%d source(s) -> %s)\n",
			cfg.Name, len(cfg.Sources), cfg.Destination)
		return nil
	},
}
