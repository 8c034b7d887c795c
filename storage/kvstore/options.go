package kvstore

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aqua777/go-friendkv/settings"
	"github.com/aqua777/go-friendkv/storage/keylock"
)

// DefaultIndexKey is the key the key index is persisted under unless
// configured otherwise.
const DefaultIndexKey = settings.DefaultIndexKey

type options struct {
	chunkSize    int
	extension    string
	indexKey     string
	disableIndex bool
	logger       *slog.Logger
	registerer   prometheus.Registerer
	locks        *keylock.Registry
	onIndexError func(error)
}

func defaultOptions() options {
	return options{
		chunkSize: settings.GetChunkSize(),
		extension: settings.DefaultExtension,
		indexKey:  settings.GetIndexKey(),
	}
}

// Option is a functional option for ShardedKVStore.
type Option func(*options)

// WithChunkSize sets how many characters of a key's last segment name its
// shard file.
func WithChunkSize(n int) Option {
	return func(o *options) {
		o.chunkSize = n
	}
}

// WithExtension sets the shard file extension.
func WithExtension(ext string) Option {
	return func(o *options) {
		o.extension = ext
	}
}

// WithIndexKey sets the key the key index is persisted under.
func WithIndexKey(key string) Option {
	return func(o *options) {
		o.indexKey = key
	}
}

// WithoutIndex disables the key index. Keys then always returns an empty
// list.
func WithoutIndex() Option {
	return func(o *options) {
		o.disableIndex = true
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics registers store metrics with registerer. Collectors are keyed
// by the store root: a second store opened on the same root and registerer
// reuses the first store's collectors, so its friendkv_index_keys gauge
// reports the first store's index.
func WithMetrics(registerer prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = registerer
	}
}

// WithLockRegistry shares a lock registry between stores, so that stores
// opened on the same root in one process serialize on the same shards.
func WithLockRegistry(r *keylock.Registry) Option {
	return func(o *options) {
		o.locks = r
	}
}

// WithIndexErrorHandler registers a callback for failed background index
// writes.
func WithIndexErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.onIndexError = fn
	}
}

// WithConfig applies the store fields of cfg.
func WithConfig(cfg settings.Config) Option {
	return func(o *options) {
		if cfg.ChunkSize > 0 {
			o.chunkSize = cfg.ChunkSize
		}
		if cfg.Extension != "" {
			o.extension = cfg.Extension
		}
		if cfg.IndexKey != "" {
			o.indexKey = cfg.IndexKey
		}
		o.disableIndex = cfg.DisableIndex
	}
}
