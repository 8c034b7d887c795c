// Package storage opens a ready-to-use store from configuration.
package storage

import (
	"context"
	"log/slog"
	"os"

	"github.com/pkg/errors"

	"github.com/aqua777/go-friendkv/settings"
	"github.com/aqua777/go-friendkv/storage/kvstore"
)

// DefaultPersistDir is the default storage root.
const DefaultPersistDir = settings.DefaultStoragePath

// StorageContext bundles a store with the configuration and logger it was
// opened with.
type StorageContext struct {
	// Config is the validated configuration the store was opened with.
	Config settings.Config
	// Logger is shared by the store and its key index.
	Logger *slog.Logger
	// Store is the opened store.
	Store *kvstore.ShardedKVStore
}

// StorageContextOptions configures StorageContext creation.
type StorageContextOptions struct {
	// Config is used as is when set. Otherwise ConfigPath is loaded, or the
	// defaults are used.
	Config *settings.Config
	// ConfigPath is a YAML or JSON config file.
	ConfigPath string
	// InMemory opens the store on an in-memory filesystem and ignores
	// Config.StoragePath.
	InMemory bool
	// Logger overrides the logger built from Config.LogLevel.
	Logger *slog.Logger
	// StoreOptions are applied after the config.
	StoreOptions []kvstore.Option
}

// NewLogger returns a JSON logger writing to stderr at the named level.
func NewLogger(level string) (*slog.Logger, error) {
	lvl, err := settings.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

// NewStorageContext opens a store from opts.
func NewStorageContext(opts StorageContextOptions) (*StorageContext, error) {
	var cfg settings.Config
	switch {
	case opts.Config != nil:
		cfg = *opts.Config
		if err := cfg.Validate(); err != nil {
			return nil, errors.Wrap(err, "invalid config")
		}
	case opts.ConfigPath != "":
		loaded, err := settings.Load(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	default:
		cfg = settings.Default()
	}

	logger := opts.Logger
	if logger == nil {
		var err error
		if logger, err = NewLogger(cfg.LogLevel); err != nil {
			return nil, err
		}
	}

	storeOpts := append([]kvstore.Option{
		kvstore.WithConfig(cfg),
		kvstore.WithLogger(logger),
	}, opts.StoreOptions...)

	var (
		store *kvstore.ShardedKVStore
		err   error
	)
	if opts.InMemory {
		store, err = kvstore.NewSimpleKVStore(storeOpts...)
	} else {
		if cfg.StoragePath == "" {
			cfg.StoragePath = DefaultPersistDir
		}
		store, err = kvstore.NewFileKVStore(cfg.StoragePath, storeOpts...)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open store at %s", cfg.StoragePath)
	}

	return &StorageContext{
		Config: cfg,
		Logger: logger,
		Store:  store,
	}, nil
}

// StorageContextFromPersistDir opens a store rooted at persistDir with the
// default configuration.
func StorageContextFromPersistDir(persistDir string, opts ...kvstore.Option) (*StorageContext, error) {
	cfg := settings.Default()
	cfg.StoragePath = persistDir
	return NewStorageContext(StorageContextOptions{Config: &cfg, StoreOptions: opts})
}

// Persist writes the key index and waits for it.
func (sc *StorageContext) Persist(ctx context.Context) error {
	if err := sc.Store.SyncIndex(ctx); err != nil {
		return errors.Wrap(err, "failed to write key index")
	}
	return nil
}

// Close persists the key index and waits for background writes.
func (sc *StorageContext) Close(ctx context.Context) error {
	persistErr := sc.Persist(ctx)
	if err := sc.Store.Close(ctx); err != nil {
		return err
	}
	return persistErr
}
