// Package shard reads and writes shard documents: JSON objects holding a flat
// mapping from full keys to values.
//
// A Store never locks. Callers must serialize access to a given shard path;
// the kvstore package does so with a keyed lock registry.
package shard

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/aqua777/go-friendkv/storage/fsutil"
)

// Document is the decoded content of a shard.
type Document map[string]json.RawMessage

// Patch is a set of top-level entries merged into a shard. Absent values
// delete their key.
type Patch map[string]Value

var emptyDocument = []byte("{}")

// Store performs whole-document reads and writes on a billy filesystem.
type Store struct {
	fs     billy.Filesystem
	logger *slog.Logger
}

// StoreOption is a functional option for Store.
type StoreOption func(*Store)

// WithLogger sets the logger used by the store.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates a Store over fs. Paths passed to its methods are relative
// to the root of fs.
func NewStore(fs billy.Filesystem, opts ...StoreOption) *Store {
	s := &Store{
		fs:     fs,
		logger: slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Filesystem returns the underlying filesystem.
func (s *Store) Filesystem() billy.Filesystem {
	return s.fs
}

// Read returns the document at path. A missing shard is created empty, so
// after a successful Read the file always exists.
func (s *Store) Read(ctx context.Context, path string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}

	data, err := util.ReadFile(s.fs, path)
	if errors.Is(err, os.ErrNotExist) {
		if err := s.writeRaw(path, emptyDocument); err != nil {
			return nil, err
		}
		s.logger.Debug("Created empty shard", "path", path)
		return Document{}, nil
	}
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}

	return decode(path, data)
}

// Write replaces the document at path. The content goes to a sibling temp
// file first and is renamed over the target, so readers never observe a
// partial document.
func (s *Store) Write(ctx context.Context, path string, doc Document) error {
	if err := ctx.Err(); err != nil {
		return &IOError{Op: "write", Path: path, Err: err}
	}

	data, err := encode(doc)
	if err != nil {
		return &IOError{Op: "encode", Path: path, Err: err}
	}
	return s.writeRaw(path, data)
}

// Update reads the document at path, merges patch into it at the top level
// and writes the result back. Keys not named in patch are preserved.
func (s *Store) Update(ctx context.Context, path string, patch Patch) error {
	doc, err := s.Read(ctx, path)
	if err != nil {
		return err
	}
	return s.Write(ctx, path, Merge(doc, patch))
}

// UpdateKey is Update with a single entry.
func (s *Store) UpdateKey(ctx context.Context, path, key string, value Value) error {
	return s.Update(ctx, path, Patch{key: value})
}

// Merge returns a copy of doc with patch applied, last write wins per key.
func Merge(doc Document, patch Patch) Document {
	merged := make(Document, len(doc)+len(patch))
	for k, v := range doc {
		merged[k] = v
	}
	for k, v := range patch {
		if v.IsAbsent() {
			delete(merged, k)
			continue
		}
		merged[k] = v.Raw()
	}
	return merged
}

// Get returns the entry for key, or Absent.
func (d Document) Get(key string) Value {
	raw, ok := d[key]
	if !ok {
		return Absent()
	}
	return Value{raw: append(json.RawMessage(nil), raw...), present: true}
}

func (s *Store) writeRaw(path string, data []byte) error {
	tmp := path + ".tmp-" + uuid.NewString()

	f, err := s.fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fsutil.FileMode)
	if err != nil {
		return &IOError{Op: "write", Path: path, Err: err}
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return &IOError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return &IOError{Op: "write", Path: path, Err: err}
	}

	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return &IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

func encode(doc Document) ([]byte, error) {
	if doc == nil {
		doc = Document{}
	}
	return json.Marshal(doc)
}

func decode(path string, data []byte) (Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Document{}, nil
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}
