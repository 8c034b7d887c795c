// Package keypath maps dot-delimited keys to shard document paths.
package keypath

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const (
	// DefaultChunkSize is the number of characters of the last key segment
	// used as the shard filename.
	DefaultChunkSize = 3
	// DefaultExtension is the shard document extension.
	DefaultExtension = ".json"
	// Separator splits a key into namespace segments.
	Separator = "."
)

// ErrInvalidKey is returned for empty keys or keys with an empty segment.
var ErrInvalidKey = errors.New("invalid key")

// Mapper computes shard paths relative to the storage root.
// Two keys whose directory segments match and whose last segments share the
// first ChunkSize characters map to the same shard.
type Mapper struct {
	ChunkSize int
	Extension string
}

// NewMapper creates a Mapper, falling back to defaults for zero values.
func NewMapper(chunkSize int, extension string) Mapper {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if extension == "" {
		extension = DefaultExtension
	}
	if !strings.HasPrefix(extension, ".") {
		extension = "." + extension
	}
	return Mapper{ChunkSize: chunkSize, Extension: extension}
}

// Validate checks that key is non-empty and has no empty segments.
func Validate(key string) error {
	if key == "" {
		return errors.Wrap(ErrInvalidKey, "key is empty")
	}
	for _, seg := range strings.Split(key, Separator) {
		if seg == "" {
			return errors.Wrapf(ErrInvalidKey, "key %q has an empty segment", key)
		}
	}
	return nil
}

// Segments returns the path components for key: every segment but the last
// as directories, followed by the truncated filename.
func (m Mapper) Segments(key string) ([]string, error) {
	if err := Validate(key); err != nil {
		return nil, err
	}
	m = NewMapper(m.ChunkSize, m.Extension)

	parts := strings.Split(key, Separator)
	last := []rune(parts[len(parts)-1])
	if len(last) > m.ChunkSize {
		last = last[:m.ChunkSize]
	}
	parts[len(parts)-1] = string(last) + m.Extension
	return parts, nil
}

// Relative returns the shard path for key relative to the storage root.
func (m Mapper) Relative(key string) (string, error) {
	parts, err := m.Segments(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(parts...), nil
}

// Dir returns the directory holding the shard for key. Single-segment keys
// live directly under the root and yield ".".
func (m Mapper) Dir(key string) (string, error) {
	rel, err := m.Relative(key)
	if err != nil {
		return "", err
	}
	return filepath.Dir(rel), nil
}
