// Package history records the outcome of backup runs and the per-file
// indexes that drive incremental change detection.
//
// Each configuration gets two JSON files in the state directory: a run
// history (history/<name>.json, append-only) and a file index
// (index/<name>.json, replaced after every run that copies files).
package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/alphagoones/smartbackup/pkg/util"
)

// Record is the durable result of one backup run.
type Record struct {
	ID           string    `json:"id"`
	ConfigName   string    `json:"configName"`
	StartedAt    time.Time `json:"startedAt"`
	CompletedAt  time.Time `json:"completedAt"`
	Outcome      Outcome   `json:"outcome"`
	ArtifactPath string    `json:"artifactPath,omitempty"`
	BytesWritten int64     `json:"bytesWritten"`
	FileCount    int64     `json:"fileCount"`
	ErrorDetail  string    `json:"errorDetail,omitempty"`
}

// IndexEntry holds the attributes used to decide whether a file changed
// since the last successful run.
type IndexEntry struct {
	Size          int64  `json:"size"`
	MTimeUnixNano int64  `json:"mtimeUnixNano"`
	LinkTarget    string `json:"linkTarget,omitempty"` // set for symlinks, compared instead of size and mtime
}

// FileIndex maps source-relative path keys to their last-seen attributes.
type FileIndex map[string]IndexEntry

// Store persists run records and file indexes per configuration.
type Store struct {
	historyDir string
	indexDir   string
}

// NewStore creates a store rooted in the given state directories.
func NewStore(historyDir, indexDir string) *Store {
	return &Store{historyDir: historyDir, indexDir: indexDir}
}

func (s *Store) historyPath(name string) string {
	return filepath.Join(s.historyDir, name+".json")
}

func (s *Store) indexPath(name string) string {
	return filepath.Join(s.indexDir, name+".json")
}

// Append adds a record to the configuration's run history.
func (s *Store) Append(rec Record) error {
	records, err := s.Records(rec.ConfigName)
	if err != nil {
		return err
	}
	records = append(records, rec)
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal run history")
	}
	if err := os.MkdirAll(s.historyDir, util.UserWritableDirPerms); err != nil {
		return errors.Wrap(err, "failed to create history directory")
	}
	return util.AtomicWriteFile(s.historyPath(rec.ConfigName), data, util.UserWritableFilePerms)
}

// Records returns all run records of a configuration, oldest first. A
// missing history file yields an empty slice.
func (s *Store) Records(name string) ([]Record, error) {
	data, err := os.ReadFile(s.historyPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to read run history for %q", name)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Wrapf(err, "run history for %q is corrupt", name)
	}
	return records, nil
}

// LatestSuccess returns the most recent record with outcome success, or nil
// when the configuration has never completed successfully. Partial and
// failed runs are skipped, so the next run re-evaluates everything those
// runs missed.
func (s *Store) LatestSuccess(name string) (*Record, error) {
	records, err := s.Records(name)
	if err != nil {
		return nil, err
	}
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Outcome == Success {
			rec := records[i]
			return &rec, nil
		}
	}
	return nil, nil
}

// LoadIndex reads the configuration's file index. A missing index file
// yields an empty index, which makes every file look new.
func (s *Store) LoadIndex(name string) (FileIndex, error) {
	data, err := os.ReadFile(s.indexPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return FileIndex{}, nil
		}
		return nil, errors.Wrapf(err, "failed to read file index for %q", name)
	}
	var idx FileIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, errors.Wrapf(err, "file index for %q is corrupt", name)
	}
	return idx, nil
}

// SaveIndex atomically replaces the configuration's file index.
func (s *Store) SaveIndex(name string, idx FileIndex) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal file index")
	}
	if err := os.MkdirAll(s.indexDir, util.UserWritableDirPerms); err != nil {
		return errors.Wrap(err, "failed to create index directory")
	}
	return util.AtomicWriteFile(s.indexPath(name), data, util.UserWritableFilePerms)
}

// DeleteState removes the run history and file index of a configuration.
// Used when a configuration is removed from the store.
func (s *Store) DeleteState(name string) error {
	var firstErr error
	for _, p := range []string{s.historyPath(name), s.indexPath(name)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = errors.Wrapf(err, "failed to remove state file %q", p)
		}
	}
	return firstErr
}
