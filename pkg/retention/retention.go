// Package retention prunes old backup artifacts from a destination.
//
// Artifacts follow the naming scheme <name>_<YYYYMMDD_HHMMSS>, either as a
// staging directory or as a compressed archive. A directory and an archive
// carrying the same timestamp belong to the same logical backup and are
// pruned together. Retention keeps the newest maxBackups logical backups
// and deletes the rest, oldest first.
package retention

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/alphagoones/smartbackup/pkg/plog"
)

// TimestampLayout is the artifact timestamp format.
const TimestampLayout = "20060102_150405"

const deleteWorkers = 4

// Artifact is one on-disk piece of a logical backup.
type Artifact struct {
	Path  string
	IsDir bool
}

// backupGroup collects the artifacts sharing one timestamp.
type backupGroup struct {
	stamp     time.Time
	artifacts []Artifact
}

// Result reports what an Enforce pass did.
type Result struct {
	Kept    int // logical backups still present
	Deleted int // logical backups removed
	Failed  int // artifacts that could not be removed
}

// ParseArtifactName extracts the timestamp from an artifact name belonging
// to the given configuration. ok is false for foreign files.
func ParseArtifactName(configName, fileName string) (stamp time.Time, ok bool) {
	prefix := configName + "_"
	if !strings.HasPrefix(fileName, prefix) {
		return time.Time{}, false
	}
	rest := fileName[len(prefix):]
	// Strip the archive extension, if any.
	if idx := strings.Index(rest, "."); idx != -1 {
		rest = rest[:idx]
	}
	stamp, err := time.Parse(TimestampLayout, rest)
	if err != nil {
		return time.Time{}, false
	}
	return stamp, true
}

// Enforce deletes the oldest logical backups of a configuration beyond
// maxBackups. Unrecognized files in the destination are never touched.
// Individual delete failures are logged and counted, they do not abort the
// pass.
func Enforce(ctx context.Context, configName, destination string, maxBackups int) (*Result, error) {
	if maxBackups < 1 {
		return nil, errors.Newf("maxBackups must be at least 1, got %d", maxBackups)
	}

	entries, err := os.ReadDir(destination)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list destination %q", destination)
	}

	groups := make(map[time.Time]*backupGroup)
	for _, entry := range entries {
		stamp, ok := ParseArtifactName(configName, entry.Name())
		if !ok {
			continue
		}
		g, exists := groups[stamp]
		if !exists {
			g = &backupGroup{stamp: stamp}
			groups[stamp] = g
		}
		g.artifacts = append(g.artifacts, Artifact{
			Path:  filepath.Join(destination, entry.Name()),
			IsDir: entry.IsDir(),
		})
	}

	ordered := make([]*backupGroup, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].stamp.Before(ordered[j].stamp) })

	result := &Result{Kept: len(ordered)}
	if len(ordered) <= maxBackups {
		return result, nil
	}
	doomed := ordered[:len(ordered)-maxBackups]

	// Fan the deletes out to a small worker pool. Removing large staging
	// trees is IO bound and benefits from overlap.
	tasks := make(chan Artifact)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i := 0; i < deleteWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for artifact := range tasks {
				plog.Notice("DELETE", "path", artifact.Path)
				if err := os.RemoveAll(artifact.Path); err != nil {
					plog.Warn("Failed to delete old backup artifact", "path", artifact.Path, "error", err)
					mu.Lock()
					result.Failed++
					mu.Unlock()
				}
			}
		}()
	}

produce:
	for _, g := range doomed {
		for _, artifact := range g.artifacts {
			select {
			case tasks <- artifact:
			case <-ctx.Done():
				break produce
			}
		}
	}
	close(tasks)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return result, err
	}

	result.Deleted = len(doomed)
	result.Kept = len(ordered) - len(doomed)
	return result, nil
}
