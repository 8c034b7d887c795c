package kvstore

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/pkg/errors"

	"github.com/aqua777/go-friendkv/storage/fsutil"
	"github.com/aqua777/go-friendkv/storage/indexstore"
	"github.com/aqua777/go-friendkv/storage/keylock"
	"github.com/aqua777/go-friendkv/storage/keypath"
	"github.com/aqua777/go-friendkv/storage/shard"
)

// ShardedKVStore stores each key in the shard file chosen by a
// keypath.Mapper under a root directory.
//
// Every operation resolves the shard path, makes sure its directory exists
// while holding a lock on that directory, then performs the shard
// read-modify-write while holding a lock on the shard path. Operations on
// different shards run in parallel.
type ShardedKVStore struct {
	fs     billy.Filesystem
	root   string
	mapper keypath.Mapper
	shards *shard.Store
	locks  *keylock.Registry

	index    *indexstore.KeyIndex
	indexKey string

	logger  *slog.Logger
	metrics *storeMetrics
}

// New creates a store over fs. root is only used to label lock identifiers,
// metrics and ShardPath results; pass "" to derive it from fs.
func New(fs billy.Filesystem, root string, opts ...Option) (*ShardedKVStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if root == "" {
		root = fs.Root()
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	if o.locks == nil {
		o.locks = keylock.NewRegistry()
	}

	s := &ShardedKVStore{
		fs:     fs,
		root:   root,
		mapper: keypath.NewMapper(o.chunkSize, o.extension),
		shards: shard.NewStore(fs, shard.WithLogger(o.logger)),
		locks:  o.locks,
		logger: o.logger.With("root", root),
	}

	if !o.disableIndex {
		if err := keypath.Validate(o.indexKey); err != nil {
			return nil, errors.Wrap(err, "invalid index key")
		}
		s.indexKey = o.indexKey
	}

	if err := fsutil.EnsureDir(fs, "."); err != nil {
		return nil, &IOError{Op: "mkdir", Path: root, Err: err}
	}

	metrics, err := newStoreMetrics(o.registerer, root, s.indexedKeys)
	if err != nil {
		return nil, err
	}
	s.metrics = metrics

	if s.indexKey != "" {
		s.index = indexstore.NewKeyIndex(indexBackend{s},
			indexstore.WithLogger(s.logger),
			indexstore.WithErrorHandler(func(err error) {
				s.metrics.indexFailed()
				if o.onIndexError != nil {
					o.onIndexError(err)
				}
			}),
		)
		s.index.Load(context.Background())
	}

	s.logger.Debug("Opened store", "chunk_size", s.mapper.ChunkSize, "index_key", s.indexKey)
	return s, nil
}

// Get returns the value stored under key, or an absent Value.
func (s *ShardedKVStore) Get(ctx context.Context, key string) (shard.Value, error) {
	start := time.Now()
	v, err := s.get(ctx, key)
	s.metrics.observe("get", start, err)
	return v, err
}

// GetInto decodes the value stored under key into dst. It returns false
// without touching dst when the key is not set.
func (s *ShardedKVStore) GetInto(ctx context.Context, key string, dst any) (bool, error) {
	v, err := s.Get(ctx, key)
	if err != nil || v.IsAbsent() {
		return false, err
	}
	if err := v.Decode(dst); err != nil {
		return false, errors.Wrapf(err, "failed to decode value of %s", key)
	}
	return true, nil
}

// Set stores value under key. value may be any JSON-encodable value or a
// shard.Value; shard.Absent() deletes the key. A nil value is stored as null.
func (s *ShardedKVStore) Set(ctx context.Context, key string, value any) error {
	v, err := shard.ValueOf(value)
	if err != nil {
		return errors.Wrapf(err, "failed to set %s", key)
	}
	return s.SetValue(ctx, key, v)
}

// SetValue stores value under key.
//
// The key index is updated after the shard write succeeds: a present value
// records key and an absent one forgets it. Index persistence runs in the
// background and never affects the returned error; failures are reported
// through IndexErrors and the index error handler.
func (s *ShardedKVStore) SetValue(ctx context.Context, key string, value shard.Value) error {
	start := time.Now()
	err := s.checkWritable(key)
	if err == nil {
		err = s.set(ctx, key, value)
	}
	s.metrics.observe("set", start, err)
	if err != nil {
		return err
	}

	if s.index == nil {
		return nil
	}
	var changed bool
	if value.IsAbsent() {
		changed = s.index.Forget(key)
	} else {
		changed = s.index.Record(key)
	}
	if changed {
		s.index.Persist(ctx)
	}
	return nil
}

// SetMany writes several keys. Keys sharing a shard are merged in a single
// read-modify-write; shards are written one after another and a failure
// stops the remaining writes. There is no atomicity across shards.
func (s *ShardedKVStore) SetMany(ctx context.Context, entries map[string]any) error {
	start := time.Now()
	err := s.setMany(ctx, entries)
	s.metrics.observe("set_many", start, err)
	return err
}

// Unset removes key from the key index and from its shard. Sibling keys in
// the same shard are kept.
func (s *ShardedKVStore) Unset(ctx context.Context, key string) error {
	if err := s.checkWritable(key); err != nil {
		return err
	}

	if s.index != nil {
		s.index.Forget(key)
		s.index.Persist(ctx)
	}
	return s.SetValue(ctx, key, shard.Absent())
}

// Clear deletes the filesystem subtree at the shard path of key.
//
// Every key sharing that shard is deleted with it, and the key index is not
// updated, so Keys may still list the removed keys.
func (s *ShardedKVStore) Clear(ctx context.Context, key string) error {
	start := time.Now()
	err := s.checkWritable(key)
	if err == nil {
		err = s.clear(ctx, key)
	}
	s.metrics.observe("clear", start, err)
	return err
}

// Keys returns the indexed keys containing filter, in insertion order.
func (s *ShardedKVStore) Keys(filter string) []string {
	if s.index == nil {
		return []string{}
	}
	return s.index.List(filter)
}

// ShardPath returns the path of the shard that holds key.
func (s *ShardedKVStore) ShardPath(key string) (string, error) {
	rel, err := s.mapper.Relative(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, rel), nil
}

// IndexKey returns the key the index is persisted under, or "" when the
// index is disabled.
func (s *ShardedKVStore) IndexKey() string {
	return s.indexKey
}

// IndexErrors delivers failed background index writes. It returns nil when
// the index is disabled.
func (s *ShardedKVStore) IndexErrors() <-chan error {
	if s.index == nil {
		return nil
	}
	return s.index.Errors()
}

// SyncIndex writes the key index and waits for the result.
func (s *ShardedKVStore) SyncIndex(ctx context.Context) error {
	if s.index == nil {
		return nil
	}
	if err := s.index.Wait(ctx); err != nil {
		return err
	}
	return s.index.Sync(ctx)
}

// WaitIndex waits until background index writes started so far finish.
func (s *ShardedKVStore) WaitIndex(ctx context.Context) error {
	if s.index == nil {
		return nil
	}
	return s.index.Wait(ctx)
}

// Close waits for background index writes. The store holds no other
// resources.
func (s *ShardedKVStore) Close(ctx context.Context) error {
	return s.WaitIndex(ctx)
}

func (s *ShardedKVStore) get(ctx context.Context, key string) (shard.Value, error) {
	rel, err := s.prepare(ctx, key)
	if err != nil {
		return shard.Absent(), err
	}

	var doc shard.Document
	err = s.withShard(ctx, rel, func(ctx context.Context) error {
		var err error
		doc, err = s.shards.Read(ctx, rel)
		return err
	})
	if err != nil {
		return shard.Absent(), errors.Wrapf(err, "failed to get %s", key)
	}
	return doc.Get(key), nil
}

func (s *ShardedKVStore) set(ctx context.Context, key string, value shard.Value) error {
	rel, err := s.prepare(ctx, key)
	if err != nil {
		return err
	}

	err = s.withShard(ctx, rel, func(ctx context.Context) error {
		return s.shards.UpdateKey(ctx, rel, key, value)
	})
	if err != nil {
		return errors.Wrapf(err, "failed to set %s", key)
	}
	s.logger.Debug("Set key", "key", key, "shard", rel, "absent", value.IsAbsent())
	return nil
}

func (s *ShardedKVStore) setMany(ctx context.Context, entries map[string]any) error {
	patches := make(map[string]shard.Patch)
	for key, value := range entries {
		if err := s.checkWritable(key); err != nil {
			return err
		}
		v, err := shard.ValueOf(value)
		if err != nil {
			return errors.Wrapf(err, "failed to set %s", key)
		}
		rel, err := s.mapper.Relative(key)
		if err != nil {
			return err
		}
		if patches[rel] == nil {
			patches[rel] = shard.Patch{}
		}
		patches[rel][key] = v
	}

	paths := make([]string, 0, len(patches))
	for rel := range patches {
		paths = append(paths, rel)
	}
	sort.Strings(paths)

	indexed := false
	defer func() {
		if indexed {
			s.index.Persist(ctx)
		}
	}()

	for _, rel := range paths {
		patch := patches[rel]
		if err := s.ensureDir(ctx, filepath.Dir(rel)); err != nil {
			return err
		}
		err := s.withShard(ctx, rel, func(ctx context.Context) error {
			return s.shards.Update(ctx, rel, patch)
		})
		if err != nil {
			return errors.Wrapf(err, "failed to update shard %s", rel)
		}

		if s.index == nil {
			continue
		}
		keys := make([]string, 0, len(patch))
		for key := range patch {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if patch[key].IsAbsent() {
				indexed = s.index.Forget(key) || indexed
			} else {
				indexed = s.index.Record(key) || indexed
			}
		}
	}
	return nil
}

func (s *ShardedKVStore) clear(ctx context.Context, key string) error {
	rel, err := s.mapper.Relative(key)
	if err != nil {
		return err
	}

	err = s.withShard(ctx, rel, func(ctx context.Context) error {
		if err := fsutil.RemoveAll(s.fs, rel); err != nil {
			return &IOError{Op: "remove", Path: rel, Err: err}
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "failed to clear %s", key)
	}
	s.logger.Debug("Cleared shard", "key", key, "shard", rel)
	return nil
}

// prepare maps key to its shard path and makes sure the shard directory
// exists.
func (s *ShardedKVStore) prepare(ctx context.Context, key string) (string, error) {
	rel, err := s.mapper.Relative(key)
	if err != nil {
		return "", err
	}
	if err := s.ensureDir(ctx, filepath.Dir(rel)); err != nil {
		return "", err
	}
	return rel, nil
}

func (s *ShardedKVStore) ensureDir(ctx context.Context, dir string) error {
	err := s.locks.WithLock(ctx, "dir:"+filepath.Join(s.root, dir), func(context.Context) error {
		if err := fsutil.EnsureDir(s.fs, dir); err != nil {
			return &IOError{Op: "mkdir", Path: dir, Err: err}
		}
		return nil
	})
	return errors.Wrapf(err, "failed to prepare directory %s", dir)
}

func (s *ShardedKVStore) withShard(ctx context.Context, rel string, fn func(ctx context.Context) error) error {
	return s.locks.WithLock(ctx, "shard:"+filepath.Join(s.root, rel), fn)
}

func (s *ShardedKVStore) checkWritable(key string) error {
	if err := keypath.Validate(key); err != nil {
		return err
	}
	if s.indexKey != "" && key == s.indexKey {
		return errors.Wrapf(ErrReservedKey, "cannot write %s", key)
	}
	return nil
}

func (s *ShardedKVStore) indexedKeys() float64 {
	if s.index == nil {
		return 0
	}
	return float64(s.index.Len())
}

// indexBackend persists the key index as an ordinary key of the store, so
// index writes take the same mapping, locking and shard path as user keys.
type indexBackend struct {
	s *ShardedKVStore
}

func (b indexBackend) LoadKeys(ctx context.Context) ([]string, error) {
	v, err := b.s.get(ctx, b.s.indexKey)
	if err != nil || v.IsAbsent() {
		return nil, err
	}
	var keys []string
	if err := v.Decode(&keys); err != nil {
		return nil, errors.Wrapf(err, "failed to decode key index %s", b.s.indexKey)
	}
	return keys, nil
}

func (b indexBackend) StoreKeys(ctx context.Context, keys []string) error {
	v, err := shard.ValueOf(keys)
	if err != nil {
		return err
	}
	start := time.Now()
	err = b.s.set(ctx, b.s.indexKey, v)
	b.s.metrics.observe("index_persist", start, err)
	return err
}

// Ensure ShardedKVStore implements the interfaces.
var (
	_ KVStore            = (*ShardedKVStore)(nil)
	_ PersistableKVStore = (*ShardedKVStore)(nil)
)
