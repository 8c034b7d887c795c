package settings

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalDefaults(t *testing.T) {
	t.Cleanup(func() {
		SetChunkSize(DefaultChunkSize)
		SetIndexKey(DefaultIndexKey)
	})

	assert.Equal(t, DefaultChunkSize, GetChunkSize())
	assert.Equal(t, DefaultIndexKey, GetIndexKey())

	SetChunkSize(5)
	SetIndexKey("_index")
	cfg := Default()
	assert.Equal(t, 5, cfg.ChunkSize)
	assert.Equal(t, "_index", cfg.IndexKey)

	SetChunkSize(0)
	SetIndexKey("")
	assert.Equal(t, DefaultChunkSize, GetChunkSize())
	assert.Equal(t, DefaultIndexKey, GetIndexKey())
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "friendkv.yaml")
	content := "storage_path: /var/lib/bot\nchunk_size: 5\nindex_key: _index\nlog_level: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/bot", cfg.StoragePath)
	assert.Equal(t, 5, cfg.ChunkSize)
	assert.Equal(t, "_index", cfg.IndexKey)
	assert.Equal(t, DefaultExtension, cfg.Extension, "unset fields keep defaults")
	assert.False(t, cfg.DisableIndex)
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "friendkv.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"chunk_size": 4, "disable_index": true}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.ChunkSize)
	assert.True(t, cfg.DisableIndex)
	assert.Equal(t, DefaultStoragePath, cfg.StoragePath)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("chunk_size: [1"), 0644))
	_, err = Load(bad)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("chunk_size: -1\n"), 0644))
	_, err = Load(invalid)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"negative chunk", func(c *Config) { c.ChunkSize = -2 }, true},
		{"separator in extension", func(c *Config) { c.Extension = "a/b" }, true},
		{"bad index key", func(c *Config) { c.IndexKey = "a..b" }, true},
		{"bad index key ignored when disabled", func(c *Config) { c.IndexKey = ""; c.DisableIndex = true }, false},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	level, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}
