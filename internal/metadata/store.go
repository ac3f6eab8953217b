// Package metadata defines the key-value Store that backs topic
// configuration and committed consumer offsets.
//
// Keys are slash-separated paths (see package keys). List treats an empty
// end key as a prefix scan, which is how per-topic and per-group listings
// are done.
package metadata

import (
	"context"
	"errors"
)

// Common errors returned by Store operations.
var (
	// ErrKeyNotFound is returned when a key does not exist.
	ErrKeyNotFound = errors.New("metadata: key not found")

	// ErrVersionMismatch is returned when the expected version does not match
	// the current version during a compare-and-set.
	ErrVersionMismatch = errors.New("metadata: version mismatch")

	// ErrStoreClosed is returned when operations are attempted on a closed store.
	ErrStoreClosed = errors.New("metadata: store closed")
)

// Version is a key's version. Versions increase on every write; zero means
// the key has never been written.
type Version int64

// KV is a key-value pair with its version.
type KV struct {
	Key     string
	Value   []byte
	Version Version
}

// GetResult is the result of a Get operation.
type GetResult struct {
	Value   []byte
	Version Version
	Exists  bool
}

// PutOption configures a Put operation.
type PutOption func(*putOptions)

type putOptions struct {
	expectedVersion *Version
}

// WithExpectedVersion makes Put fail with ErrVersionMismatch unless the
// key's current version is v. Use 0 to require that the key is absent.
func WithExpectedVersion(v Version) PutOption {
	return func(o *putOptions) {
		o.expectedVersion = &v
	}
}

// ExtractExpectedVersion returns the version required by opts, or nil when
// the Put is unconditional. Store implementations outside this package use it.
func ExtractExpectedVersion(opts []PutOption) *Version {
	var o putOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o.expectedVersion
}

// Txn is an atomic batch of writes. Reads see committed state only.
type Txn interface {
	// Get returns ErrKeyNotFound if the key does not exist.
	Get(key string) (value []byte, version Version, err error)
	Put(key string, value []byte)
	PutWithVersion(key string, value []byte, expectedVersion Version)
	Delete(key string)
}

// Store is the interface for metadata storage.
type Store interface {
	// Get returns Exists=false for a missing key; that is not an error.
	Get(ctx context.Context, key string) (GetResult, error)

	// Put stores a value and returns its new version.
	Put(ctx context.Context, key string, value []byte, opts ...PutOption) (Version, error)

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns keys in [startKey, endKey) in lexicographic order. An
	// empty endKey lists every key with prefix startKey. A non-positive
	// limit means no limit.
	List(ctx context.Context, startKey, endKey string, limit int) ([]KV, error)

	// Txn runs fn and applies its queued writes atomically if fn returns nil.
	Txn(ctx context.Context, fn func(Txn) error) error

	Close() error
}
