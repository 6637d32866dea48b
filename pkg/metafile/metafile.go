// Package metafile reads and writes the metadata file embedded in every
// backup artifact.
package metafile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alphagoones/smartbackup/pkg/util"
)

// MetaFileName is the name of the backup metadata file.
const MetaFileName = ".smartbackup.meta.json"

// MetafileContent holds the contents of the metadata file.
type MetafileContent struct {
	Version           string    `json:"version"`
	UUID              string    `json:"uuid"`
	ConfigName        string    `json:"configName"`
	TimestampUTC      time.Time `json:"timestampUTC"`
	FileCount         int64     `json:"fileCount"`
	BytesWritten      int64     `json:"bytesWritten"`
	IsCompressed      bool      `json:"isCompressed,omitempty"`
	CompressionFormat string    `json:"compressionFormat,omitempty"`
}

// Write creates the .smartbackup.meta.json file inside a given directory.
func Write(dirPath string, content *MetafileContent) error {
	metaFilePath := filepath.Join(dirPath, MetaFileName)
	jsonData, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal meta data: %w", err)
	}

	// Use group-writable permissions for the metafile. Unlike the top-level
	// config and lock files, the metafile is part of the backup data itself.
	// In multi-user environments, allowing group members to write to backup
	// contents is a common and useful scenario.
	if err := os.WriteFile(metaFilePath, jsonData, util.UserGroupWritableFilePerms); err != nil {
		return fmt.Errorf("could not write meta file %s: %w", metaFilePath, err)
	}

	return nil
}

// Read opens and parses the .smartbackup.meta.json file in a given directory.
func Read(dirPath string) (MetafileContent, error) {
	metaFilePath := filepath.Join(dirPath, MetaFileName)
	metaFile, err := os.Open(metaFilePath)
	if err != nil {
		// Note: os.IsNotExist errors are handled by the caller.
		return MetafileContent{}, err // Return the original error so os.IsNotExist works.
	}
	defer metaFile.Close()

	var content MetafileContent
	decoder := json.NewDecoder(metaFile)
	if err := decoder.Decode(&content); err != nil {
		return MetafileContent{}, fmt.Errorf("could not parse metafile %s: %w. It may be corrupt", metaFilePath, err)
	}

	return content, nil
}
