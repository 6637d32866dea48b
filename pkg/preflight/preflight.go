// Package preflight provides validation checks that run before a backup
// begins. The checks are designed to be stateless and idempotent, with the
// exception of the writability probe, ensuring the system is in a suitable
// state for a run to proceed.
package preflight

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/alphagoones/smartbackup/pkg/util"
)

// ErrRootFilesystem marks mount point validation failures. Callers may treat
// these as a warning when a destination on the system disk is intentional.
var ErrRootFilesystem = errors.New("target is on the root filesystem")

// CheckBackupTargetAccessible performs pre-flight checks to ensure the backup
// destination is usable. It provides more user-friendly errors than letting
// os.MkdirAll fail.
//
// The checks include:
//  1. On Windows, verifies that the drive or network share (e.g., "Z:", "\\Server\Share") exists.
//  2. If the target path exists, confirms it is a directory.
//  3. If the target path does not exist, confirms its parent directory is accessible.
//  4. On Unix, if the path looks like a mount point, it verifies the device is actually mounted
//     to prevent writing to a "ghost" directory on the root filesystem. This is done by walking
//     up from the target path and checking the highest-level existing directory.
func CheckBackupTargetAccessible(targetPath string) error {
	// --- 1. Check if the Volume/Drive exists, windows only ---
	if err := checkVolumeExists(targetPath); err != nil {
		return err
	}

	// --- 2. Check existence and type ---
	info, err := os.Stat(targetPath)
	if os.IsNotExist(err) {
		// Target doesn't exist. We must check the potential parent.
		// If /mnt/backup/my-backup doesn't exist, is /mnt/backup mounted?

		// Find the Deepest Existing Ancestor
		ancestor := targetPath
		for {
			parent := filepath.Dir(ancestor)
			if parent == ancestor {
				break // Hit root
			}
			if _, err := os.Stat(parent); err == nil {
				ancestor = parent
				break // Found the deepest directory that actually exists
			}
			ancestor = parent
		}

		// Validate the ancestor
		if err := validateMountPoint(ancestor); err != nil {
			return err
		}

		return nil
	} else if err != nil {
		return errors.Wrap(err, "cannot access target path")
	}

	// --- 3. The Target Path Exists ---
	if !info.IsDir() {
		return errors.Newf("target path exists but is not a directory: %s", targetPath)
	}

	// If the folder exists, we check it specifically.
	if err := validateMountPoint(targetPath); err != nil {
		return err
	}

	return nil
}

// CheckBackupSourceAccessible validates that the source path exists. Both
// directories and single files are valid backup sources.
func CheckBackupSourceAccessible(srcPath string) error {
	if _, err := os.Stat(srcPath); err != nil {
		if os.IsNotExist(err) {
			return errors.Newf("source path %s does not exist", srcPath)
		}
		return errors.Wrapf(err, "cannot stat source path %s", srcPath)
	}
	return nil
}

// CheckBackupTargetWritable ensures the target directory can be created and
// is writable by performing filesystem modifications.
func CheckBackupTargetWritable(targetPath string) error {
	// Ensure the destination directory can be created.
	if err := os.MkdirAll(targetPath, util.UserWritableDirPerms); err != nil {
		return errors.Wrapf(err, "failed to create target directory %s", targetPath)
	}

	// Perform a thorough write check by creating and deleting a temporary file.
	tempFile := filepath.Join(targetPath, ".smartbackup-writetest.tmp")
	f, err := os.Create(tempFile)
	if err != nil {
		return errors.Wrapf(err, "target directory %s is not writable", targetPath)
	}
	f.Close()
	_ = os.Remove(tempFile)
	return nil
}
