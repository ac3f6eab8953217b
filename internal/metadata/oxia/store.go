package oxia

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	oxiaclient "github.com/oxia-db/oxia/oxia"

	"github.com/dray-io/brokerstats/internal/metadata"
)

// Config configures the Oxia metadata store.
type Config struct {
	// ServiceAddress is the Oxia service endpoint (e.g., "localhost:6648").
	ServiceAddress string

	// Namespace scopes every key.
	Namespace string

	// RequestTimeout bounds individual requests. Zero keeps the client default.
	RequestTimeout time.Duration
}

// Store implements metadata.Store using Oxia.
type Store struct {
	client oxiaclient.SyncClient

	mu     sync.RWMutex
	closed bool
}

// New connects to Oxia.
func New(cfg Config) (*Store, error) {
	if cfg.ServiceAddress == "" {
		return nil, errors.New("oxia: service address is required")
	}
	if cfg.Namespace == "" {
		return nil, errors.New("oxia: namespace is required")
	}

	opts := []oxiaclient.ClientOption{
		oxiaclient.WithNamespace(cfg.Namespace),
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, oxiaclient.WithRequestTimeout(cfg.RequestTimeout))
	}

	client, err := oxiaclient.NewSyncClient(cfg.ServiceAddress, opts...)
	if err != nil {
		return nil, fmt.Errorf("oxia: failed to create client: %w", err)
	}
	return &Store{client: client}, nil
}

const separator = "\x01"

func encodeKey(key string) string {
	return strings.ReplaceAll(key, "/", separator)
}

func decodeKey(key string) string {
	return strings.ReplaceAll(key, separator, "/")
}

// Oxia versions start at 0; metadata.Version 0 means "absent".
func toMetadataVersion(oxiaVersion int64) metadata.Version {
	return metadata.Version(oxiaVersion + 1)
}

func toOxiaVersion(v metadata.Version) int64 {
	return int64(v - 1)
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return metadata.ErrStoreClosed
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (metadata.GetResult, error) {
	if err := s.checkOpen(); err != nil {
		return metadata.GetResult{}, err
	}

	_, value, version, err := s.client.Get(ctx, encodeKey(key))
	if err != nil {
		if errors.Is(err, oxiaclient.ErrKeyNotFound) {
			return metadata.GetResult{}, nil
		}
		return metadata.GetResult{}, fmt.Errorf("oxia: get failed: %w", err)
	}
	return metadata.GetResult{
		Value:   value,
		Version: toMetadataVersion(version.VersionId),
		Exists:  true,
	}, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte, opts ...metadata.PutOption) (metadata.Version, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	return s.put(ctx, key, value, metadata.ExtractExpectedVersion(opts))
}

func (s *Store) put(ctx context.Context, key string, value []byte, expected *metadata.Version) (metadata.Version, error) {
	var oxiaOpts []oxiaclient.PutOption
	if expected != nil {
		if *expected == 0 {
			oxiaOpts = append(oxiaOpts, oxiaclient.ExpectedRecordNotExists())
		} else {
			oxiaOpts = append(oxiaOpts, oxiaclient.ExpectedVersionId(toOxiaVersion(*expected)))
		}
	}

	_, version, err := s.client.Put(ctx, encodeKey(key), value, oxiaOpts...)
	if err != nil {
		if errors.Is(err, oxiaclient.ErrUnexpectedVersionId) {
			return 0, metadata.ErrVersionMismatch
		}
		return 0, fmt.Errorf("oxia: put failed: %w", err)
	}
	return toMetadataVersion(version.VersionId), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.delete(ctx, key, nil)
}

func (s *Store) delete(ctx context.Context, key string, expected *metadata.Version) error {
	var oxiaOpts []oxiaclient.DeleteOption
	if expected != nil {
		oxiaOpts = append(oxiaOpts, oxiaclient.ExpectedVersionId(toOxiaVersion(*expected)))
	}

	err := s.client.Delete(ctx, encodeKey(key), oxiaOpts...)
	if err != nil {
		if errors.Is(err, oxiaclient.ErrKeyNotFound) {
			if expected != nil {
				return metadata.ErrVersionMismatch
			}
			return nil
		}
		if errors.Is(err, oxiaclient.ErrUnexpectedVersionId) {
			return metadata.ErrVersionMismatch
		}
		return fmt.Errorf("oxia: delete failed: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, startKey, endKey string, limit int) ([]metadata.KV, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	minKey := encodeKey(startKey)
	maxKey := encodeKey(endKey)
	if endKey == "" {
		maxKey = prefixEnd(minKey)
	}

	results := s.client.RangeScan(ctx, minKey, maxKey)
	var kvs []metadata.KV
	for result := range results {
		if result.Err != nil {
			go drainRangeScan(results)
			return nil, fmt.Errorf("oxia: list failed: %w", result.Err)
		}
		kvs = append(kvs, metadata.KV{
			Key:     decodeKey(result.Key),
			Value:   result.Value,
			Version: toMetadataVersion(result.Version.VersionId),
		})
	}

	slices.SortFunc(kvs, func(a, b metadata.KV) int {
		return strings.Compare(a.Key, b.Key)
	})
	if limit > 0 && len(kvs) > limit {
		kvs = kvs[:limit]
	}
	return kvs, nil
}

func (s *Store) Txn(ctx context.Context, fn func(metadata.Txn) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	txn := &transaction{store: s, ctx: ctx}
	if err := fn(txn); err != nil {
		return err
	}
	return txn.commit()
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}

// prefixEnd returns the smallest key greater than every key with prefix.
func prefixEnd(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xFF {
			b[i]++
			return string(b[:i+1])
		}
	}
	return ""
}

func drainRangeScan(results <-chan oxiaclient.GetResult) {
	for range results {
	}
}

var _ metadata.Store = (*Store)(nil)
