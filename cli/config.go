package main

import (
	"github.com/aqua777/go-friendkv/settings"
)

const (
	FriendKV    = "friendkv"
	FriendKVCli = "friendkv-cli"
)

// Config keys for krait. They match the settings.Config file keys, so a
// config file passed with --config is read the same way by the CLI and by
// settings.Load.
const (
	KeyStoragePath  = "storage_path"
	KeyChunkSize    = "chunk_size"
	KeyExtension    = "extension"
	KeyIndexKey     = "index_key"
	KeyDisableIndex = "disable_index"
	KeyLogLevel     = "log_level"
	KeyRaw          = "raw"
)

// Overrides holds resolved flag, environment and config file values. Zero
// values leave the default setting in place.
type Overrides struct {
	StoragePath  string
	ChunkSize    int
	Extension    string
	IndexKey     string
	DisableIndex bool
	LogLevel     string
}

// BuildConfig applies overrides to the default config and validates it.
func BuildConfig(o Overrides) (settings.Config, error) {
	cfg := settings.Default()

	if o.StoragePath != "" {
		cfg.StoragePath = o.StoragePath
	}
	if o.ChunkSize > 0 {
		cfg.ChunkSize = o.ChunkSize
	}
	if o.Extension != "" {
		cfg.Extension = o.Extension
	}
	if o.IndexKey != "" {
		cfg.IndexKey = o.IndexKey
	}
	if o.DisableIndex {
		cfg.DisableIndex = true
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	return cfg, cfg.Validate()
}
