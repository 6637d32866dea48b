//go:build !windows

package preflight

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// checkVolumeExists is a no-op on Unix. Drive letter checks only apply to
// Windows.
func checkVolumeExists(string) error {
	return nil
}

// validateMountPoint checks if the path resides on the root filesystem.
// If it does, it assumes the drive is NOT mounted (Ghost detection).
func validateMountPoint(path string) error {
	// 1. Allow Home Directory (backups to local user folders are usually intentional)
	homeDir, _ := os.UserHomeDir()
	if homeDir != "" && strings.HasPrefix(path, homeDir) {
		return nil
	}

	// Allow temp locations. Test runs and scratch setups back up into the
	// system temp directory, which always lives on the root filesystem.
	if strings.HasPrefix(path, os.TempDir()) {
		return nil
	}

	// 2. Get the Device ID of the Root partition
	rootInfo, err := os.Stat("/")
	if err != nil {
		return errors.Wrap(err, "failed to stat root")
	}
	rootStat, ok := rootInfo.Sys().(*unix.Stat_t)
	if !ok {
		return errors.New("unsupported platform for unix.Stat_t")
	}

	// 3. Get the Device ID of the Target path
	pathInfo, err := os.Stat(path)
	if err != nil {
		return errors.Wrap(err, "failed to stat target path")
	}
	pathStat, ok := pathInfo.Sys().(*unix.Stat_t)
	if !ok {
		return errors.New("unsupported platform for unix.Stat_t")
	}

	// 4. Compare Device IDs
	// If pathDev == rootDev, we are writing to the system partition (Ghost).
	// Exception: The user specifically targeted "/" (unlikely, but valid).
	if pathStat.Dev == rootStat.Dev && path != "/" {
		return errors.Wrapf(ErrRootFilesystem,
			"path '%s' is on the system disk, ensure your external drive is mounted", path)
	}

	return nil
}
