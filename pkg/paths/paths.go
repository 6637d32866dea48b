// Package paths resolves the on-disk locations of smartbackup's state.
//
// All state lives under a single root directory. By default this is
// $XDG_CONFIG_HOME/smartbackup, but the root can be overridden (the CLI
// exposes a --state-dir flag for tests and portable setups).
package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/cockroachdb/errors"

	"github.com/alphagoones/smartbackup/pkg/util"
)

// Layout describes the resolved state directories of one smartbackup root.
type Layout struct {
	Root       string // top level state directory
	ConfigFile string // named backup configurations
	HistoryDir string // per-config run history
	IndexDir   string // per-config file indexes for incremental runs
	LogDir     string // daily log files
}

// Resolve builds the state layout. An empty root selects the default
// XDG location.
func Resolve(root string) (*Layout, error) {
	if root == "" {
		root = filepath.Join(xdg.ConfigHome, "smartbackup")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve state directory %q", root)
	}
	return &Layout{
		Root:       abs,
		ConfigFile: filepath.Join(abs, "configs.json"),
		HistoryDir: filepath.Join(abs, "history"),
		IndexDir:   filepath.Join(abs, "index"),
		LogDir:     filepath.Join(abs, "logs"),
	}, nil
}

// Ensure creates the state directories if they do not exist yet.
func (l *Layout) Ensure() error {
	for _, dir := range []string{l.Root, l.HistoryDir, l.IndexDir, l.LogDir} {
		if err := os.MkdirAll(dir, util.UserWritableDirPerms); err != nil {
			return errors.Wrapf(err, "failed to create state directory %q", dir)
		}
	}
	return nil
}
