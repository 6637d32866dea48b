// Package compress turns a staging directory into a single compressed tar
// archive. The archive is written to a temp file in the target directory
// and renamed into place, so a readable archive at the final path is always
// complete.
package compress

import (
	"archive/tar"
	"bufio"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"github.com/alphagoones/smartbackup/pkg/plog"
	"github.com/alphagoones/smartbackup/pkg/util"
)

const ioBufferSize = 256 * 1024

// Compress archives the contents of srcDir (not the directory itself) into
// archivePath using the given format.
func Compress(ctx context.Context, srcDir, archivePath string, format Format) (retErr error) {
	tmpF, err := os.CreateTemp(filepath.Dir(archivePath), "smartbackup-*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temp archive")
	}
	tmpPath := tmpF.Name()

	defer func() {
		if retErr != nil {
			tmpF.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := writeArchive(ctx, tmpF, srcDir, format); err != nil {
		return err
	}

	if err := tmpF.Sync(); err != nil {
		return errors.Wrap(err, "failed to sync temp archive")
	}
	if err := tmpF.Close(); err != nil {
		return errors.Wrap(err, "failed to close temp archive")
	}
	if err := os.Rename(tmpPath, archivePath); err != nil {
		return errors.Wrap(err, "failed to rename temp archive to final path")
	}
	return nil
}

func writeArchive(ctx context.Context, trg *os.File, srcDir string, format Format) (retErr error) {
	bufWriter := bufio.NewWriterSize(trg, ioBufferSize)

	var compressedWriter io.WriteCloser
	switch format {
	case TarZst:
		zstdWriter, err := zstd.NewWriter(bufWriter)
		if err != nil {
			return errors.Wrap(err, "failed to create zstd writer")
		}
		compressedWriter = zstdWriter
	case TarGz:
		pgzipWriter, err := pgzip.NewWriterLevel(bufWriter, pgzip.DefaultCompression)
		if err != nil {
			return errors.Wrap(err, "failed to create gzip writer")
		}
		compressedWriter = pgzipWriter
	default:
		return errors.Newf("unsupported compression format %q", format)
	}

	tarWriter := tar.NewWriter(compressedWriter)

	defer func() {
		if err := tarWriter.Close(); err != nil && retErr == nil {
			retErr = errors.Wrap(err, "tar writer close failed")
		}
		if err := compressedWriter.Close(); err != nil && retErr == nil {
			retErr = errors.Wrap(err, "compressed writer close failed")
		}
		if err := bufWriter.Flush(); err != nil && retErr == nil {
			retErr = errors.Wrap(err, "buffer flush failed")
		}
	}()

	buf := make([]byte, ioBufferSize)

	return filepath.WalkDir(srcDir, func(absSrcPath string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			return walkErr
		}
		if absSrcPath == srcDir {
			return nil
		}

		relPathKey, err := filepath.Rel(srcDir, absSrcPath)
		if err != nil {
			return errors.Wrapf(err, "failed to get relative path for %s", absSrcPath)
		}
		relPathKey = util.NormalizePath(relPathKey)

		info, err := d.Info()
		if err != nil {
			return errors.Wrapf(err, "failed to get file info for %s", absSrcPath)
		}

		var linkTarget string
		if info.Mode()&fs.ModeSymlink != 0 {
			linkTarget, err = os.Readlink(absSrcPath)
			if err != nil {
				return errors.Wrapf(err, "failed to read link %s", absSrcPath)
			}
		}

		header, err := tar.FileInfoHeader(info, linkTarget)
		if err != nil {
			return errors.Wrapf(err, "failed to create tar header for %s", relPathKey)
		}
		header.Name = relPathKey
		if info.IsDir() {
			header.Name += "/"
		}

		plog.Notice("ADD", "file", relPathKey)
		if err := tarWriter.WriteHeader(header); err != nil {
			return errors.Wrapf(err, "failed to write tar header for %s", relPathKey)
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(absSrcPath)
		if err != nil {
			return errors.Wrapf(err, "failed to open file %s", absSrcPath)
		}
		defer f.Close()
		if _, err := io.CopyBuffer(tarWriter, f, buf); err != nil {
			return errors.Wrapf(err, "failed to archive file %s", relPathKey)
		}
		return nil
	})
}

// Extract unpacks an archive produced by Compress into trgDir. It exists
// for restore tooling and round-trip verification.
func Extract(ctx context.Context, archivePath, trgDir string, format Format) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return errors.Wrap(err, "failed to open archive")
	}
	defer f.Close()

	var decompressedReader io.Reader
	switch format {
	case TarZst:
		zstdReader, err := zstd.NewReader(f)
		if err != nil {
			return errors.Wrap(err, "failed to create zstd reader")
		}
		defer zstdReader.Close()
		decompressedReader = zstdReader
	case TarGz:
		pgzipReader, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrap(err, "failed to create gzip reader")
		}
		defer pgzipReader.Close()
		decompressedReader = pgzipReader
	default:
		return errors.Newf("unsupported compression format %q", format)
	}

	tarReader := tar.NewReader(decompressedReader)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		header, err := tarReader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "failed to read tar entry")
		}

		// Reject entries that would escape the target directory.
		cleaned := filepath.Clean(filepath.FromSlash(header.Name))
		if strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
			return errors.Newf("archive entry %q escapes target directory", header.Name)
		}
		trgPath := filepath.Join(trgDir, cleaned)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(trgPath, fs.FileMode(header.Mode)); err != nil {
				return errors.Wrapf(err, "failed to create directory %s", trgPath)
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(trgPath), 0755); err != nil {
				return errors.Wrapf(err, "failed to create parent of %s", trgPath)
			}
			if err := os.Symlink(header.Linkname, trgPath); err != nil {
				return errors.Wrapf(err, "failed to create symlink %s", trgPath)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(trgPath), 0755); err != nil {
				return errors.Wrapf(err, "failed to create parent of %s", trgPath)
			}
			out, err := os.OpenFile(trgPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fs.FileMode(header.Mode))
			if err != nil {
				return errors.Wrapf(err, "failed to create file %s", trgPath)
			}
			if _, err := io.Copy(out, tarReader); err != nil {
				out.Close()
				return errors.Wrapf(err, "failed to extract file %s", trgPath)
			}
			if err := out.Close(); err != nil {
				return errors.Wrapf(err, "failed to close file %s", trgPath)
			}
		}
	}
}
