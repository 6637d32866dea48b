//go:build windows

package preflight

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// checkVolumeExists verifies that the drive or network share root for a given
// path exists. For example, for "Z:\backup", it checks if "Z:\" exists. This
// is analogous to the Unix "ghost directory" check, ensuring the target
// volume is actually available.
func checkVolumeExists(path string) error {
	volume := filepath.VolumeName(path)
	if volume == "" {
		return nil // Not a path with a volume name (e.g., relative path), so nothing to check.
	}

	// 1. Start with the volume name (e.g., "C:" or "\\Server\Share")
	checkVol := volume

	// 2. Append the separator if it's missing (converts "C:" to "C:\")
	if !strings.HasSuffix(checkVol, string(filepath.Separator)) {
		checkVol += string(filepath.Separator)
	}

	// 3. Clean the resulting path for normalization.
	checkVol = filepath.Clean(checkVol)

	if _, err := os.Stat(checkVol); os.IsNotExist(err) {
		return errors.Newf("volume root does not exist: %s. Ensure the drive is connected", checkVol)
	}
	return nil
}

// validateMountPoint is a no-op on Windows, the volume existence check above
// already covers disconnected drives.
func validateMountPoint(string) error {
	return nil
}
