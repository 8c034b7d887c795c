// Package settings holds store configuration: process-wide defaults and a
// Config struct that can be loaded from a YAML or JSON file.
package settings

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultChunkSize   = 3
	DefaultExtension   = ".json"
	DefaultIndexKey    = "_keys"
	DefaultStoragePath = "./storage"
	DefaultLogLevel    = "info"
)

var (
	mu            sync.RWMutex
	globalChunkSz int
	globalIndex   string
)

func init() {
	globalChunkSz = DefaultChunkSize
	globalIndex = DefaultIndexKey
}

// SetChunkSize sets the global chunk size used when a store does not
// configure one.
func SetChunkSize(size int) {
	mu.Lock()
	defer mu.Unlock()
	if size <= 0 {
		size = DefaultChunkSize
	}
	globalChunkSz = size
}

// GetChunkSize gets the global chunk size.
func GetChunkSize() int {
	mu.RLock()
	defer mu.RUnlock()
	return globalChunkSz
}

// SetIndexKey sets the global index key.
func SetIndexKey(key string) {
	mu.Lock()
	defer mu.Unlock()
	if key == "" {
		key = DefaultIndexKey
	}
	globalIndex = key
}

// GetIndexKey gets the global index key.
func GetIndexKey() string {
	mu.RLock()
	defer mu.RUnlock()
	return globalIndex
}

// Config configures a store.
type Config struct {
	StoragePath  string `yaml:"storage_path" json:"storage_path"`
	ChunkSize    int    `yaml:"chunk_size" json:"chunk_size"`
	Extension    string `yaml:"extension" json:"extension"`
	IndexKey     string `yaml:"index_key" json:"index_key"`
	DisableIndex bool   `yaml:"disable_index" json:"disable_index"`
	LogLevel     string `yaml:"log_level" json:"log_level"`
}

// Default returns a Config populated from the global defaults.
func Default() Config {
	return Config{
		StoragePath: DefaultStoragePath,
		ChunkSize:   GetChunkSize(),
		Extension:   DefaultExtension,
		IndexKey:    GetIndexKey(),
		LogLevel:    DefaultLogLevel,
	}
}

// Validate checks the config for values a store cannot work with.
func (c Config) Validate() error {
	if c.ChunkSize < 0 {
		return errors.Errorf("chunk_size must not be negative, got %d", c.ChunkSize)
	}
	if strings.ContainsAny(c.Extension, `/\`) {
		return errors.Errorf("extension %q must not contain path separators", c.Extension)
	}
	if !c.DisableIndex {
		for _, seg := range strings.Split(c.IndexKey, ".") {
			if seg == "" {
				return errors.Errorf("index_key %q is not a valid key", c.IndexKey)
			}
		}
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Load reads a Config from path, starting from Default. Files ending in
// .json are decoded as JSON, anything else as YAML.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "failed to read config %s", path)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, errors.Wrapf(err, "failed to parse config %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

// ParseLevel converts a log level name into a slog.Level. An empty name is
// treated as info.
func ParseLevel(name string) (slog.Level, error) {
	if name == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, errors.Wrapf(err, "invalid log_level %q", name)
	}
	return level, nil
}
