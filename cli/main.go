package main

import (
	"fmt"
	"os"

	"github.com/aqua777/krait"

	"github.com/aqua777/go-friendkv/settings"
)

// withStoreOptions adds the flags every store command shares.
func withStoreOptions(cmd *krait.Command) *krait.Command {
	return cmd.
		WithConfig("", "config", "c", "FRIENDKV_CONFIG").
		WithStringP(KeyStoragePath, "Storage root directory", "storage", "s", "FRIENDKV_STORAGE", settings.DefaultStoragePath).
		WithInt(KeyChunkSize, "Characters of the last key segment used for shard names", "chunk-size", "FRIENDKV_CHUNK_SIZE", settings.DefaultChunkSize).
		WithString(KeyExtension, "Shard file extension", "extension", "FRIENDKV_EXTENSION", settings.DefaultExtension).
		WithString(KeyIndexKey, "Key the key index is stored under", "index-key", "FRIENDKV_INDEX_KEY", settings.DefaultIndexKey).
		WithBool(KeyDisableIndex, "Disable the key index", "no-index", "FRIENDKV_NO_INDEX", false).
		WithString(KeyLogLevel, "Log level (debug, info, warn, error)", "log-level", "FRIENDKV_LOG_LEVEL", settings.DefaultLogLevel)
}

func main() {
	getCmd := withStoreOptions(krait.New("get", "Print a value", "Print the JSON value stored under a key")).
		WithBoolP(KeyRaw, "Print strings without JSON quoting", "raw", "r", "FRIENDKV_RAW", false).
		WithExactArgs(1).
		WithRun(runGet)

	setCmd := withStoreOptions(krait.New("set", "Store a value",
		"Store a value under a key. The value is parsed as JSON; anything that is not valid JSON is stored as a string")).
		WithExactArgs(2).
		WithRun(runSet)

	unsetCmd := withStoreOptions(krait.New("unset", "Delete a key", "Delete a key from its shard and from the key index")).
		WithExactArgs(1).
		WithRun(runUnset)

	clearCmd := withStoreOptions(krait.New("clear", "Delete a shard",
		"Delete the shard holding a key, including every other key stored in it")).
		WithExactArgs(1).
		WithRun(runClear)

	keysCmd := withStoreOptions(krait.New("keys", "List keys", "List indexed keys, optionally only those containing a filter")).
		WithMaximumNArgs(1).
		WithRun(runKeys)

	pathCmd := withStoreOptions(krait.New("path", "Print a shard path", "Print the shard file a key maps to")).
		WithExactArgs(1).
		WithRun(runPath)

	app := krait.App(FriendKV, "friendkv CLI tool", "A command-line interface for a sharded JSON key-value store").
		WithCommand(getCmd).
		WithCommand(setCmd).
		WithCommand(unsetCmd).
		WithCommand(clearCmd).
		WithCommand(keysCmd).
		WithCommand(pathCmd).
		WithRun(func(args []string) error {
			// Default action: show help
			fmt.Printf("friendkv CLI - Use '%s --help' for commands (storage defaults to %s)\n", FriendKV, settings.DefaultStoragePath)
			return nil
		})

	if err := app.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
