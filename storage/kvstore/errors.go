package kvstore

import (
	"github.com/pkg/errors"

	"github.com/aqua777/go-friendkv/storage/keylock"
	"github.com/aqua777/go-friendkv/storage/keypath"
	"github.com/aqua777/go-friendkv/storage/shard"
)

type (
	// IOError reports a failed read, write, mkdir or remove.
	IOError = shard.IOError
	// DecodeError reports a shard whose content is not a JSON object.
	DecodeError = shard.DecodeError
	// LockError reports that the lock registry could not run an operation.
	LockError = keylock.LockError
)

var (
	// ErrInvalidKey is returned for empty keys or keys with empty segments.
	ErrInvalidKey = keypath.ErrInvalidKey
	// ErrReservedKey is returned when writing the key the index is stored under.
	ErrReservedKey = errors.New("key is reserved for the key index")
)

// IsIOError reports whether err wraps an *IOError.
func IsIOError(err error) bool {
	var e *IOError
	return errors.As(err, &e)
}

// IsDecodeError reports whether err wraps a *DecodeError.
func IsDecodeError(err error) bool {
	var e *DecodeError
	return errors.As(err, &e)
}

// IsLockError reports whether err wraps a *LockError.
func IsLockError(err error) bool {
	var e *LockError
	return errors.As(err, &e)
}
