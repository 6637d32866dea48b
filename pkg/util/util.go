// Package util provides small filesystem and slice helpers shared across
// the backup packages.
package util

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// Permission constants for file and directory modes.
const (
	// PermUserWrite is the user-write permission bit (0200).
	PermUserWrite os.FileMode = 0200

	// UserWritableDirPerms represents the standard permissions for newly created directories (rwxr-xr-x).
	UserWritableDirPerms os.FileMode = 0755
	// UserWritableFilePerms represents the standard permissions for newly created files (rw-r--r--).
	UserWritableFilePerms os.FileMode = 0644
	// UserGroupWritableFilePerms represents permissions for files that should be writable by the user and group (rw-rw-r--).
	UserGroupWritableFilePerms os.FileMode = 0664
)

// WithUserWritePermission ensures that any directory/file permission has the owner-write
// bit (0200) set. This prevents the backup user from being locked out on subsequent runs.
func WithUserWritePermission(basePerm os.FileMode) os.FileMode {
	return basePerm | PermUserWrite
}

// ExpandPath expands the tilde (~) prefix in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil // No tilde, return as-is.
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "could not get user home directory")
	}

	// Replace the tilde with the home directory.
	return filepath.Join(home, path[1:]), nil
}

// NormalizePath converts an OS-specific path into a normalized, forward-slash
// key. Keys are used for matching, indexing and logging; they are NOT suitable
// for direct filesystem access.
func NormalizePath(path string) string {
	return filepath.ToSlash(path)
}

// DenormalizePath converts a normalized key back into an OS-specific path.
func DenormalizePath(key string) string {
	return filepath.FromSlash(key)
}

// InvertMap takes a map[K]V and returns a map[V]K.
// It's a generic helper for creating reverse lookup maps for enums.
func InvertMap[K comparable, V comparable](m map[K]V) map[V]K {
	inv := make(map[V]K, len(m))
	for k, v := range m {
		inv[v] = k
	}
	return inv
}

// MergeAndDeduplicate combines multiple string slices into a single slice,
// removing any duplicate entries.
func MergeAndDeduplicate(slices ...[]string) []string {
	combined := make(map[string]struct{})
	for _, s := range slices {
		for _, item := range s {
			combined[item] = struct{}{}
		}
	}

	result := make([]string, 0, len(combined))
	for item := range combined {
		result = append(result, item)
	}
	return result
}

// AtomicWriteFile writes data to a temporary file in the same directory as
// path and then renames it into place, so a crash mid-write never leaves a
// partially written file at the final name. os.Rename is atomic on POSIX
// and replaces an existing file on Windows as well (since Go 1.5).
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmpF, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	tmpName := tmpF.Name()

	// Clean up the temp file on any failure path. On success the rename has
	// already consumed it and the remove is a no-op.
	defer os.Remove(tmpName)

	if _, err := tmpF.Write(data); err != nil {
		tmpF.Close()
		return errors.Wrapf(err, "failed to write temp file %s", tmpName)
	}
	// Sync ensures data is flushed to disk before the rename makes it visible.
	if err := tmpF.Sync(); err != nil {
		tmpF.Close()
		return errors.Wrapf(err, "failed to sync temp file %s", tmpName)
	}
	if err := tmpF.Close(); err != nil {
		return errors.Wrapf(err, "failed to close temp file %s", tmpName)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return errors.Wrapf(err, "failed to chmod temp file %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "failed to rename temp file to %s", path)
	}
	return nil
}
