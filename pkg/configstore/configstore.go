// Package configstore manages the named backup configurations.
//
// Configurations are persisted as a single JSON document in the state
// directory and written atomically, so a crash mid-write never corrupts the
// store.
package configstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"

	"github.com/alphagoones/smartbackup/pkg/util"
)

// Sentinel errors returned by store operations.
var (
	ErrNotFound      = errors.New("backup configuration not found")
	ErrDuplicateName = errors.New("backup configuration already exists")
	ErrInvalidPath   = errors.New("path must be absolute")
	ErrInvalidName   = errors.New("backup configuration name is invalid")
)

// Defaults applied to new configurations.
const (
	DefaultSchedule   = "0 2 * * *"
	DefaultMaxBackups = 10
	DefaultFormat     = "tar.gz"
)

// Config is one named backup configuration.
type Config struct {
	Name        string    `json:"name"`
	Sources     []string  `json:"sources"`
	Destination string    `json:"destination"`
	Exclusions  []string  `json:"exclusions,omitempty"`
	Schedule    string    `json:"schedule"`
	MaxBackups  int       `json:"maxBackups"`
	Compression bool      `json:"compression"`
	Format      string    `json:"format"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ApplyDefaults fills unset optional fields.
func (c *Config) ApplyDefaults() {
	if c.Schedule == "" {
		c.Schedule = DefaultSchedule
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = DefaultMaxBackups
	}
	if c.Format == "" {
		c.Format = DefaultFormat
	}
}

// Validate checks the configuration for structural problems. Source and
// destination paths must be absolute so that scheduled runs do not depend on
// the working directory of the invoking process.
func (c *Config) Validate() error {
	if c.Name == "" || filepath.Base(c.Name) != c.Name || c.Name == "." || c.Name == ".." {
		return errors.Wrapf(ErrInvalidName, "%q", c.Name)
	}
	if len(c.Sources) == 0 {
		return errors.New("at least one source path is required")
	}
	for _, src := range c.Sources {
		if !filepath.IsAbs(src) {
			return errors.Wrapf(ErrInvalidPath, "source %q", src)
		}
	}
	if !filepath.IsAbs(c.Destination) {
		return errors.Wrapf(ErrInvalidPath, "destination %q", c.Destination)
	}
	if c.MaxBackups < 1 {
		return errors.Newf("maxBackups must be at least 1, got %d", c.MaxBackups)
	}
	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		return errors.Wrapf(err, "invalid schedule %q", c.Schedule)
	}
	return nil
}

// Store is the persistent registry of backup configurations.
type Store struct {
	path string
}

// NewStore creates a store backed by the given JSON file. The file is
// created lazily on the first Add.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// storeDoc is the on-disk shape of the store.
type storeDoc struct {
	Version int      `json:"version"`
	Configs []Config `json:"configs"`
}

const storeVersion = 1

// load reads the store file. A missing file is an empty store.
func (s *Store) load() (*storeDoc, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &storeDoc{Version: storeVersion}, nil
		}
		return nil, errors.Wrapf(err, "failed to read config store %q", s.path)
	}
	var doc storeDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, "config store %q is corrupt", s.path)
	}
	return &doc, nil
}

// save writes the store file atomically.
func (s *Store) save(doc *storeDoc) error {
	doc.Version = storeVersion
	sort.Slice(doc.Configs, func(i, j int) bool {
		return doc.Configs[i].Name < doc.Configs[j].Name
	})
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal config store")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), util.UserWritableDirPerms); err != nil {
		return errors.Wrap(err, "failed to create state directory")
	}
	return util.AtomicWriteFile(s.path, data, util.UserWritableFilePerms)
}

// Add validates and stores a new configuration. The name must be unique.
func (s *Store) Add(cfg Config) error {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = time.Now().UTC()
	}

	doc, err := s.load()
	if err != nil {
		return err
	}
	for _, existing := range doc.Configs {
		if existing.Name == cfg.Name {
			return errors.Wrapf(ErrDuplicateName, "%q", cfg.Name)
		}
	}
	doc.Configs = append(doc.Configs, cfg)
	return s.save(doc)
}

// Get returns the configuration with the given name.
func (s *Store) Get(name string) (*Config, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range doc.Configs {
		if doc.Configs[i].Name == name {
			cfg := doc.Configs[i]
			return &cfg, nil
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "%q", name)
}

// List returns all configurations sorted by name.
func (s *Store) List() ([]Config, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	sort.Slice(doc.Configs, func(i, j int) bool {
		return doc.Configs[i].Name < doc.Configs[j].Name
	})
	return doc.Configs, nil
}

// Remove deletes the configuration with the given name.
func (s *Store) Remove(name string) error {
	doc, err := s.load()
	if err != nil {
		return err
	}
	for i := range doc.Configs {
		if doc.Configs[i].Name == name {
			doc.Configs = append(doc.Configs[:i], doc.Configs[i+1:]...)
			return s.save(doc)
		}
	}
	return errors.Wrapf(ErrNotFound, "%q", name)
}
