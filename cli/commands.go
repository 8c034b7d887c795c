package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aqua777/krait"
	"github.com/pkg/errors"

	"github.com/aqua777/go-friendkv/storage"
	"github.com/aqua777/go-friendkv/storage/kvstore"
)

// openContext builds the store from flags, environment and the config file,
// as layered by krait.
func openContext() (*storage.StorageContext, error) {
	cfg, err := BuildConfig(Overrides{
		StoragePath:  krait.GetString(KeyStoragePath),
		ChunkSize:    krait.GetInt(KeyChunkSize),
		Extension:    krait.GetString(KeyExtension),
		IndexKey:     krait.GetString(KeyIndexKey),
		DisableIndex: krait.GetBool(KeyDisableIndex),
		LogLevel:     krait.GetString(KeyLogLevel),
	})
	if err != nil {
		return nil, err
	}
	return storage.NewStorageContext(storage.StorageContextOptions{Config: &cfg})
}

// withStore opens the store, runs fn and flushes the key index before
// returning.
func withStore(fn func(ctx context.Context, store *kvstore.ShardedKVStore) error) error {
	ctx := context.Background()

	sc, err := openContext()
	if err != nil {
		return err
	}

	runErr := fn(ctx, sc.Store)
	if err := sc.Close(ctx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func runGet(args []string) error {
	return withStore(func(ctx context.Context, store *kvstore.ShardedKVStore) error {
		v, err := store.Get(ctx, args[0])
		if err != nil {
			return err
		}
		if v.IsAbsent() {
			return errors.Errorf("key %s is not set", args[0])
		}

		if krait.GetBool(KeyRaw) {
			var s string
			if err := v.Decode(&s); err == nil {
				fmt.Println(s)
				return nil
			}
		}
		fmt.Println(string(v.Raw()))
		return nil
	})
}

func runSet(args []string) error {
	return withStore(func(ctx context.Context, store *kvstore.ShardedKVStore) error {
		return store.Set(ctx, args[0], ParseValue(args[1]))
	})
}

func runUnset(args []string) error {
	return withStore(func(ctx context.Context, store *kvstore.ShardedKVStore) error {
		return store.Unset(ctx, args[0])
	})
}

func runClear(args []string) error {
	return withStore(func(ctx context.Context, store *kvstore.ShardedKVStore) error {
		return store.Clear(ctx, args[0])
	})
}

func runKeys(args []string) error {
	filter := ""
	if len(args) > 0 {
		filter = args[0]
	}
	return withStore(func(ctx context.Context, store *kvstore.ShardedKVStore) error {
		for _, key := range store.Keys(filter) {
			fmt.Println(key)
		}
		return nil
	})
}

func runPath(args []string) error {
	return withStore(func(ctx context.Context, store *kvstore.ShardedKVStore) error {
		path, err := store.ShardPath(args[0])
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	})
}

// ParseValue interprets a command-line argument as JSON, falling back to a
// plain string.
func ParseValue(arg string) json.RawMessage {
	trimmed := strings.TrimSpace(arg)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	data, _ := json.Marshal(arg)
	return data
}
