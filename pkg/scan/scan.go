// Package scan walks backup sources and selects the files a run must copy.
//
// Selection is incremental: a file is selected when it is absent from the
// previous run's index, when its size differs from the indexed size, or when
// its modification time is newer than the completion time of the last
// successful run. Without a prior successful run every file is selected.
package scan

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/alphagoones/smartbackup/pkg/history"
	"github.com/alphagoones/smartbackup/pkg/pathmatch"
	"github.com/alphagoones/smartbackup/pkg/plog"
	"github.com/alphagoones/smartbackup/pkg/util"
)

// ErrAllSourcesUnavailable is returned when not a single source root could
// be read.
var ErrAllSourcesUnavailable = errors.New("no backup source is accessible")

// Entry describes one file selected for copying.
type Entry struct {
	AbsPath    string      // absolute path in the source tree
	RelPath    string      // path relative to the source parent, starts with the source basename
	Size       int64       // regular file size in bytes
	Mode       fs.FileMode // permission bits of the source file
	ModTime    time.Time   // modification time of the source file
	Symlink    bool        // entry is a symbolic link
	LinkTarget string      // symlink target, only set when Symlink is true
}

// Report summarizes a completed scan.
type Report struct {
	SeenFiles     int64            // regular files visited after exclusion
	SelectedFiles int64            // files handed to emit
	SelectedBytes int64            // total size of selected regular files
	SkippedDirs   int64            // directories pruned by exclusion patterns
	Unavailable   map[string]error // source roots that could not be read
}

// Scanner walks the configured sources.
type Scanner struct {
	Sources  []string
	Matcher  *pathmatch.Matcher
	Baseline *time.Time        // completion time of the last successful run, nil for full runs
	Index    history.FileIndex // file attributes recorded by the last successful run
}

// selected reports whether a regular file needs to be copied this run.
func (s *Scanner) selected(relKey string, info fs.FileInfo) bool {
	if s.Baseline == nil {
		return true
	}
	prev, ok := s.Index[relKey]
	if !ok {
		return true
	}
	if info.Size() != prev.Size {
		return true
	}
	return info.ModTime().After(*s.Baseline)
}

// Scan walks all sources and calls emit for every selected entry. Emission
// stops at the first emit error or context cancellation. Individual
// unreadable files or subtrees are logged and recorded, they do not abort
// the walk. Only when every source root is unavailable does Scan return
// ErrAllSourcesUnavailable.
func (s *Scanner) Scan(ctx context.Context, emit func(Entry) error) (*Report, error) {
	report := &Report{Unavailable: make(map[string]error)}

	for _, src := range s.Sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := s.scanSource(ctx, src, emit, report); err != nil {
			return report, err
		}
	}

	if len(report.Unavailable) == len(s.Sources) && len(s.Sources) > 0 {
		return report, errors.WithDetailf(ErrAllSourcesUnavailable,
			"%d source(s) checked", len(s.Sources))
	}
	return report, nil
}

func (s *Scanner) scanSource(ctx context.Context, src string, emit func(Entry) error, report *Report) error {
	rootInfo, err := os.Lstat(src)
	if err != nil {
		plog.Warn("Backup source is not accessible", "source", src, "error", err)
		report.Unavailable[src] = err
		return nil
	}
	// The source basename anchors all relative paths so that multiple
	// sources never collide inside one artifact.
	base := filepath.Base(src)

	if !rootInfo.IsDir() {
		// A source may point at a single file.
		return s.visit(src, base, rootInfo, emit, report)
	}

	walkErr := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == src {
				report.Unavailable[src] = err
				return filepath.SkipAll
			}
			plog.Warn("Skipping unreadable path", "path", path, "error", err)
			return nil
		}

		rel, relErr := filepath.Rel(src, path)
		if relErr != nil {
			plog.Warn("Skipping path outside source", "path", path, "error", relErr)
			return nil
		}
		relKey := base
		if rel != "." {
			relKey = util.NormalizePath(filepath.Join(base, rel))
		}

		if d.IsDir() {
			if path != src && s.Matcher != nil && s.Matcher.Matches(relKey) {
				report.SkippedDirs++
				return filepath.SkipDir
			}
			return nil
		}
		if s.Matcher != nil && s.Matcher.Matches(relKey) {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			plog.Warn("Skipping unreadable path", "path", path, "error", infoErr)
			return nil
		}
		return s.visit(path, relKey, info, emit, report)
	})
	if walkErr != nil && !errors.Is(walkErr, filepath.SkipAll) {
		return walkErr
	}
	return nil
}

// visit classifies a single non-directory entry and emits it if selected.
func (s *Scanner) visit(path, relKey string, info fs.FileInfo, emit func(Entry) error, report *Report) error {
	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			plog.Warn("Skipping unreadable symlink", "path", path, "error", err)
			return nil
		}
		report.SeenFiles++
		// A symlink is unchanged when the index saw the same target, its
		// mtime and size are irrelevant.
		if s.Baseline != nil {
			if prev, ok := s.Index[relKey]; ok && prev.LinkTarget == target {
				return nil
			}
		}
		report.SelectedFiles++
		return emit(Entry{
			AbsPath:    path,
			RelPath:    relKey,
			Mode:       info.Mode(),
			ModTime:    info.ModTime(),
			Symlink:    true,
			LinkTarget: target,
		})
	case info.Mode().IsRegular():
		report.SeenFiles++
		if !s.selected(relKey, info) {
			return nil
		}
		report.SelectedFiles++
		report.SelectedBytes += info.Size()
		return emit(Entry{
			AbsPath: path,
			RelPath: relKey,
			Size:    info.Size(),
			Mode:    info.Mode(),
			ModTime: info.ModTime(),
		})
	default:
		// Sockets, devices and pipes are not backed up.
		plog.Debug("Skipping special file", "path", path, "mode", info.Mode().String())
		return nil
	}
}
