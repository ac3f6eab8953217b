// Package offsets stores committed consumer offsets per group, topic and
// queue.
package offsets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dray-io/brokerstats/internal/metadata"
	"github.com/dray-io/brokerstats/internal/metadata/keys"
)

// NoOffset is returned by QueryOffset when nothing was committed.
const NoOffset int64 = -1

var (
	ErrInvalidGroup   = errors.New("offsets: invalid group")
	ErrOffsetNotFound = errors.New("offsets: offset not found")
)

// CommittedOffset is a consumer group's position in one queue.
type CommittedOffset struct {
	Group           string `json:"group"`
	Topic           string `json:"topic"`
	QueueID         int32  `json:"queueId"`
	Offset          int64  `json:"offset"`
	CommitTimestamp int64  `json:"commitTimestamp"` // unix ms
	ExpireTimestamp int64  `json:"expireTimestamp"` // unix ms, -1 means no expiry
}

// CommitRequest holds parameters for committing an offset.
type CommitRequest struct {
	Group           string
	Topic           string
	QueueID         int32
	Offset          int64
	RetentionTimeMs int64 // <= 0 means no expiry
	NowMs           int64
}

// Store provides committed offset operations backed by a metadata.Store.
type Store struct {
	meta metadata.Store
}

// NewStore creates an offset store.
func NewStore(meta metadata.Store) *Store {
	return &Store{meta: meta}
}

func newCommitted(req CommitRequest) CommittedOffset {
	expire := int64(-1)
	if req.RetentionTimeMs > 0 {
		expire = req.NowMs + req.RetentionTimeMs
	}
	return CommittedOffset{
		Group:           req.Group,
		Topic:           req.Topic,
		QueueID:         req.QueueID,
		Offset:          req.Offset,
		CommitTimestamp: req.NowMs,
		ExpireTimestamp: expire,
	}
}

// CommitOffset stores one committed offset.
func (s *Store) CommitOffset(ctx context.Context, req CommitRequest) (*CommittedOffset, error) {
	if req.Group == "" {
		return nil, ErrInvalidGroup
	}
	key, err := keys.OffsetKeyPath(req.Group, req.Topic, req.QueueID)
	if err != nil {
		return nil, fmt.Errorf("offsets: commit: %w", err)
	}

	offset := newCommitted(req)
	data, err := json.Marshal(offset)
	if err != nil {
		return nil, fmt.Errorf("offsets: marshal offset: %w", err)
	}
	if _, err := s.meta.Put(ctx, key, data); err != nil {
		return nil, fmt.Errorf("offsets: put offset: %w", err)
	}
	return &offset, nil
}

// CommitOffsets stores several offsets of one group atomically.
func (s *Store) CommitOffsets(ctx context.Context, group string, reqs []CommitRequest) ([]CommittedOffset, error) {
	if group == "" {
		return nil, ErrInvalidGroup
	}
	if len(reqs) == 0 {
		return nil, nil
	}

	committed := make([]CommittedOffset, len(reqs))
	err := s.meta.Txn(ctx, func(txn metadata.Txn) error {
		for i, req := range reqs {
			req.Group = group
			key, err := keys.OffsetKeyPath(group, req.Topic, req.QueueID)
			if err != nil {
				return err
			}
			committed[i] = newCommitted(req)
			data, err := json.Marshal(committed[i])
			if err != nil {
				return fmt.Errorf("marshal offset: %w", err)
			}
			txn.Put(key, data)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("offsets: commit batch: %w", err)
	}
	return committed, nil
}

// GetCommittedOffset returns ErrOffsetNotFound if nothing was committed.
func (s *Store) GetCommittedOffset(ctx context.Context, group, topic string, queueID int32) (*CommittedOffset, error) {
	if group == "" {
		return nil, ErrInvalidGroup
	}
	key, err := keys.OffsetKeyPath(group, topic, queueID)
	if err != nil {
		return nil, fmt.Errorf("offsets: get: %w", err)
	}

	result, err := s.meta.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("offsets: get offset: %w", err)
	}
	if !result.Exists {
		return nil, ErrOffsetNotFound
	}

	var offset CommittedOffset
	if err := json.Unmarshal(result.Value, &offset); err != nil {
		return nil, fmt.Errorf("offsets: unmarshal offset: %w", err)
	}
	return &offset, nil
}

// QueryOffset returns the committed offset, or NoOffset if none exists.
func (s *Store) QueryOffset(ctx context.Context, group, topic string, queueID int32) (int64, error) {
	offset, err := s.GetCommittedOffset(ctx, group, topic, queueID)
	if errors.Is(err, ErrOffsetNotFound) {
		return NoOffset, nil
	}
	if err != nil {
		return NoOffset, err
	}
	return offset.Offset, nil
}

// ListGroupOffsets returns every offset committed by a group, ordered by
// topic then queue.
func (s *Store) ListGroupOffsets(ctx context.Context, group string) ([]CommittedOffset, error) {
	if group == "" {
		return nil, ErrInvalidGroup
	}
	kvs, err := s.meta.List(ctx, keys.GroupOffsetsPrefix(group), "", 0)
	if err != nil {
		return nil, fmt.Errorf("offsets: list offsets: %w", err)
	}

	out := make([]CommittedOffset, 0, len(kvs))
	for _, kv := range kvs {
		var o CommittedOffset
		if err := json.Unmarshal(kv.Value, &o); err != nil {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// DeleteOffset removes a committed offset.
func (s *Store) DeleteOffset(ctx context.Context, group, topic string, queueID int32) error {
	key, err := keys.OffsetKeyPath(group, topic, queueID)
	if err != nil {
		return fmt.Errorf("offsets: delete: %w", err)
	}
	return s.meta.Delete(ctx, key)
}

// DeleteExpired removes offsets whose expiry is at or before nowMs and
// returns how many were removed.
func (s *Store) DeleteExpired(ctx context.Context, nowMs int64) (int, error) {
	kvs, err := s.meta.List(ctx, keys.GroupsPrefix+"/", "", 0)
	if err != nil {
		return 0, fmt.Errorf("offsets: list offsets: %w", err)
	}

	deleted := 0
	for _, kv := range kvs {
		if _, _, _, err := keys.ParseOffsetKey(kv.Key); err != nil {
			continue
		}
		var o CommittedOffset
		if err := json.Unmarshal(kv.Value, &o); err != nil {
			continue
		}
		if o.ExpireTimestamp < 0 || o.ExpireTimestamp > nowMs {
			continue
		}
		if err := s.meta.Delete(ctx, kv.Key); err != nil {
			return deleted, fmt.Errorf("offsets: delete expired: %w", err)
		}
		deleted++
	}
	return deleted, nil
}
