// Package topics stores topic configuration: queue counts and attributes.
package topics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dray-io/brokerstats/internal/metadata"
	"github.com/dray-io/brokerstats/internal/metadata/keys"
)

// Common errors.
var (
	ErrTopicNotFound    = errors.New("topics: topic not found")
	ErrTopicExists      = errors.New("topics: topic already exists")
	ErrInvalidTopicName = errors.New("topics: invalid topic name")
	ErrInvalidQueueNums = errors.New("topics: invalid queue count")
)

// TopicMeta holds the configuration of a topic.
type TopicMeta struct {
	Name           string            `json:"name"`
	TopicID        string            `json:"topicId"`
	ReadQueueNums  int32             `json:"readQueueNums"`
	WriteQueueNums int32             `json:"writeQueueNums"`
	Config         map[string]string `json:"config,omitempty"`
	CreatedAtMs    int64             `json:"createdAtMs"`
}

// Store provides topic operations backed by a metadata.Store.
type Store struct {
	meta metadata.Store
}

// NewStore creates a new topic store.
func NewStore(meta metadata.Store) *Store {
	return &Store{meta: meta}
}

// GetTopic retrieves a topic by name.
func (s *Store) GetTopic(ctx context.Context, name string) (*TopicMeta, error) {
	result, err := s.meta.Get(ctx, keys.TopicKeyPath(name))
	if err != nil {
		return nil, fmt.Errorf("topics: get topic: %w", err)
	}
	if !result.Exists {
		return nil, ErrTopicNotFound
	}

	var topic TopicMeta
	if err := json.Unmarshal(result.Value, &topic); err != nil {
		return nil, fmt.Errorf("topics: unmarshal topic: %w", err)
	}
	return &topic, nil
}

// ReadQueueNums returns the number of readable queues of a topic and
// whether the topic exists. A topic whose perm denies reads has none.
func (s *Store) ReadQueueNums(ctx context.Context, name string) (int32, bool, error) {
	topic, err := s.GetTopic(ctx, name)
	if errors.Is(err, ErrTopicNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if !Readable(topic.Config) {
		return 0, true, nil
	}
	return topic.ReadQueueNums, true, nil
}

// ListTopics returns every topic in name order.
func (s *Store) ListTopics(ctx context.Context) ([]TopicMeta, error) {
	kvs, err := s.meta.List(ctx, keys.TopicsPrefix+"/", "", 0)
	if err != nil {
		return nil, fmt.Errorf("topics: list topics: %w", err)
	}

	topics := make([]TopicMeta, 0, len(kvs))
	for _, kv := range kvs {
		if _, err := keys.ParseTopicKey(kv.Key); err != nil {
			continue
		}
		var t TopicMeta
		if err := json.Unmarshal(kv.Value, &t); err != nil {
			continue
		}
		topics = append(topics, t)
	}
	return topics, nil
}

// CreateTopicRequest holds parameters for topic creation.
type CreateTopicRequest struct {
	Name           string
	ReadQueueNums  int32
	WriteQueueNums int32
	Config         map[string]string
	NowMs          int64
}

// CreateTopic creates a topic. WriteQueueNums defaults to ReadQueueNums.
func (s *Store) CreateTopic(ctx context.Context, req CreateTopicRequest) (*TopicMeta, error) {
	if req.Name == "" {
		return nil, ErrInvalidTopicName
	}
	if req.WriteQueueNums == 0 {
		req.WriteQueueNums = req.ReadQueueNums
	}
	if req.ReadQueueNums <= 0 || req.WriteQueueNums <= 0 {
		return nil, ErrInvalidQueueNums
	}
	if err := ValidateConfigs(req.Config); err != nil {
		return nil, err
	}

	topic := TopicMeta{
		Name:           req.Name,
		TopicID:        uuid.New().String(),
		ReadQueueNums:  req.ReadQueueNums,
		WriteQueueNums: req.WriteQueueNums,
		Config:         MergeWithDefaults(req.Config),
		CreatedAtMs:    req.NowMs,
	}
	data, err := json.Marshal(topic)
	if err != nil {
		return nil, fmt.Errorf("topics: marshal topic: %w", err)
	}

	if _, err := s.meta.Put(ctx, keys.TopicKeyPath(req.Name), data, metadata.WithExpectedVersion(0)); err != nil {
		if errors.Is(err, metadata.ErrVersionMismatch) {
			return nil, ErrTopicExists
		}
		return nil, fmt.Errorf("topics: create topic: %w", err)
	}
	return &topic, nil
}

// UpdateQueueNums changes a topic's queue counts.
func (s *Store) UpdateQueueNums(ctx context.Context, name string, readQueueNums, writeQueueNums int32) (*TopicMeta, error) {
	if readQueueNums <= 0 || writeQueueNums <= 0 {
		return nil, ErrInvalidQueueNums
	}

	key := keys.TopicKeyPath(name)
	var updated TopicMeta
	err := s.meta.Txn(ctx, func(txn metadata.Txn) error {
		value, version, err := txn.Get(key)
		if errors.Is(err, metadata.ErrKeyNotFound) {
			return ErrTopicNotFound
		}
		if err != nil {
			return err
		}
		if err := json.Unmarshal(value, &updated); err != nil {
			return fmt.Errorf("topics: unmarshal topic: %w", err)
		}
		updated.ReadQueueNums = readQueueNums
		updated.WriteQueueNums = writeQueueNums
		data, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("topics: marshal topic: %w", err)
		}
		txn.PutWithVersion(key, data, version)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteTopic removes a topic. Deleting a missing topic returns ErrTopicNotFound.
func (s *Store) DeleteTopic(ctx context.Context, name string) error {
	exists, err := s.TopicExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return ErrTopicNotFound
	}
	return s.meta.Delete(ctx, keys.TopicKeyPath(name))
}

// TopicExists checks if a topic exists.
func (s *Store) TopicExists(ctx context.Context, name string) (bool, error) {
	result, err := s.meta.Get(ctx, keys.TopicKeyPath(name))
	if err != nil {
		return false, err
	}
	return result.Exists, nil
}
