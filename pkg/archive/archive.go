// Package archive builds backup artifacts. A run stages the selected files
// into a timestamped directory inside the destination, then optionally
// compresses the staging tree into a single archive.
//
// Every file lands via a temp-then-rename cycle, so a crash mid-run never
// leaves a half-written file under its final name. When compression fails
// the staging directory is kept, the run still produced usable data.
package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alphagoones/smartbackup/pkg/buildinfo"
	"github.com/alphagoones/smartbackup/pkg/compress"
	"github.com/alphagoones/smartbackup/pkg/history"
	"github.com/alphagoones/smartbackup/pkg/metafile"
	"github.com/alphagoones/smartbackup/pkg/plog"
	"github.com/alphagoones/smartbackup/pkg/pool"
	"github.com/alphagoones/smartbackup/pkg/retention"
	"github.com/alphagoones/smartbackup/pkg/scan"
	"github.com/alphagoones/smartbackup/pkg/util"
)

const (
	defaultWorkers = 4
	copyBufferSize = 256 * 1024
)

// FileError records one file that could not be copied.
type FileError struct {
	RelPath string
	Err     error
}

// Result describes what a build produced.
type Result struct {
	ArtifactPath string            // final artifact, staging dir or archive
	Timestamp    time.Time         // artifact timestamp, also encoded in its name
	RunID        string            // uuid written into the metafile
	FilesCopied  int64             // files that reached the staging dir
	BytesWritten int64             // payload bytes written
	FileErrors   []FileError       // per-file copy failures, sorted by path
	CompressErr  error             // set when compression failed and staging was kept
	CopiedIndex  history.FileIndex // attributes of successfully copied files
	ScanReport   *scan.Report
}

// Builder stages and archives one backup run.
type Builder struct {
	ConfigName  string
	Destination string
	Scanner     *scan.Scanner
	Compression bool
	Format      compress.Format
	Workers     int

	// Now is the clock used for artifact timestamps, nil means time.Now.
	Now func() time.Time
}

func (b *Builder) workers() int {
	if b.Workers > 0 {
		return b.Workers
	}
	return defaultWorkers
}

// Build runs scan, copy, metadata and compression for one backup. A non-nil
// error means no usable artifact exists, per-file problems are reported via
// Result.FileErrors instead.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}

	result := &Result{
		Timestamp:   now().UTC(),
		RunID:       uuid.NewString(),
		CopiedIndex: make(history.FileIndex),
	}
	stagingName := b.ConfigName + "_" + result.Timestamp.Format(retention.TimestampLayout)
	stagingPath := filepath.Join(b.Destination, stagingName)

	if err := os.MkdirAll(stagingPath, util.UserWritableDirPerms); err != nil {
		return nil, errors.Wrapf(err, "failed to create staging directory %q", stagingPath)
	}

	if err := b.copyAll(ctx, stagingPath, result); err != nil {
		// A hard failure, the partial staging tree is of no use.
		os.RemoveAll(stagingPath)
		return nil, err
	}

	if err := b.writeMetafile(stagingPath, result); err != nil {
		os.RemoveAll(stagingPath)
		return nil, err
	}

	result.ArtifactPath = stagingPath
	if !b.Compression {
		return result, nil
	}

	archivePath := filepath.Join(b.Destination, stagingName+b.Format.Extension())
	plog.Info("Compressing backup", "config", b.ConfigName, "format", b.Format.String())
	if err := compress.Compress(ctx, stagingPath, archivePath, b.Format); err != nil {
		if ctx.Err() != nil {
			os.RemoveAll(stagingPath)
			return nil, ctx.Err()
		}
		// The staging directory stays usable, report a degraded run.
		plog.Warn("Compression failed, keeping staging directory", "config", b.ConfigName, "error", err)
		result.CompressErr = err
		return result, nil
	}

	if err := os.RemoveAll(stagingPath); err != nil {
		plog.Warn("Failed to remove staging directory after compression", "path", stagingPath, "error", err)
	}
	result.ArtifactPath = archivePath
	return result, nil
}

// copyAll drives the scanner and fans entries out to copy workers.
func (b *Builder) copyAll(ctx context.Context, stagingPath string, result *Result) error {
	bufPool := pool.NewFixedBuffer(copyBufferSize)
	entriesChan := make(chan scan.Entry, b.workers()*4)

	var mu sync.Mutex
	var filesCopied, bytesWritten atomic.Int64

	g, gctx := errgroup.WithContext(ctx)

	// Producer: the scanner feeds selected entries into the channel.
	g.Go(func() error {
		defer close(entriesChan)
		report, err := b.Scanner.Scan(gctx, func(e scan.Entry) error {
			select {
			case entriesChan <- e:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
		mu.Lock()
		result.ScanReport = report
		mu.Unlock()
		return err
	})

	// Consumers: copy workers drain the channel.
	for i := 0; i < b.workers(); i++ {
		g.Go(func() error {
			bufPtr := bufPool.Get()
			defer bufPool.Put(bufPtr)

			for entry := range entriesChan {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := b.copyEntry(entry, stagingPath, *bufPtr); err != nil {
					plog.Warn("Failed to copy file", "file", entry.RelPath, "error", err)
					mu.Lock()
					result.FileErrors = append(result.FileErrors, FileError{RelPath: entry.RelPath, Err: err})
					mu.Unlock()
					continue
				}
				filesCopied.Add(1)
				if !entry.Symlink {
					bytesWritten.Add(entry.Size)
				}
				mu.Lock()
				result.CopiedIndex[entry.RelPath] = history.IndexEntry{
					Size:          entry.Size,
					MTimeUnixNano: entry.ModTime.UnixNano(),
					LinkTarget:    entry.LinkTarget,
				}
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	result.FilesCopied = filesCopied.Load()
	result.BytesWritten = bytesWritten.Load()
	sort.Slice(result.FileErrors, func(i, j int) bool {
		return result.FileErrors[i].RelPath < result.FileErrors[j].RelPath
	})
	return nil
}

// copyEntry places one scanned entry into the staging tree.
func (b *Builder) copyEntry(entry scan.Entry, stagingPath string, buf []byte) error {
	trgPath := filepath.Join(stagingPath, util.DenormalizePath(entry.RelPath))
	if err := os.MkdirAll(filepath.Dir(trgPath), util.UserWritableDirPerms); err != nil {
		return errors.Wrap(err, "failed to create parent directory")
	}

	plog.Notice("COPY", "file", entry.RelPath)

	if entry.Symlink {
		if err := os.Symlink(entry.LinkTarget, trgPath); err != nil {
			return errors.Wrap(err, "failed to create symlink")
		}
		return nil
	}

	srcF, err := os.Open(entry.AbsPath)
	if err != nil {
		return errors.Wrap(err, "failed to open source file")
	}
	defer srcF.Close()

	// Write to a temp file in the target directory and rename into place.
	tmpF, err := os.CreateTemp(filepath.Dir(trgPath), ".smartbackup-*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	tmpName := tmpF.Name()
	defer func() {
		tmpF.Close()
		os.Remove(tmpName) // no-op after a successful rename
	}()

	// Keep the owner-write bit even when the source lacks it, so later runs
	// and retention can replace or delete the copy.
	if err := tmpF.Chmod(util.WithUserWritePermission(entry.Mode.Perm())); err != nil {
		return errors.Wrap(err, "failed to set file mode")
	}
	if _, err := io.CopyBuffer(tmpF, srcF, buf); err != nil {
		return errors.Wrap(err, "failed to copy file content")
	}
	if err := tmpF.Sync(); err != nil {
		return errors.Wrap(err, "failed to sync file")
	}
	if err := tmpF.Close(); err != nil {
		return errors.Wrap(err, "failed to close temp file")
	}
	// Preserve the source modification time so incremental comparisons treat
	// restored files like originals.
	if err := os.Chtimes(tmpName, time.Now(), entry.ModTime); err != nil {
		return errors.Wrap(err, "failed to set modification time")
	}
	if err := os.Rename(tmpName, trgPath); err != nil {
		return errors.Wrap(err, "failed to rename temp file")
	}
	return nil
}

func (b *Builder) writeMetafile(stagingPath string, result *Result) error {
	content := &metafile.MetafileContent{
		Version:      buildinfo.Version,
		UUID:         result.RunID,
		ConfigName:   b.ConfigName,
		TimestampUTC: result.Timestamp,
		FileCount:    result.FilesCopied,
		BytesWritten: result.BytesWritten,
		IsCompressed: b.Compression,
	}
	if b.Compression {
		content.CompressionFormat = b.Format.String()
	}
	if err := metafile.Write(stagingPath, content); err != nil {
		return errors.Wrap(err, "failed to write backup metadata")
	}
	return nil
}
