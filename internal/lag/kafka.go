package lag

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSource answers lag queries against a Kafka-protocol cluster.
// Partitions stand in for queues and committed group offsets for consumer
// offsets. Kafka has no timed messages, so TimingMessageCount is always 0.
type KafkaSource struct {
	client *kgo.Client
	admin  *kadm.Client
	owned  bool
}

var (
	_ MessageStore = (*KafkaSource)(nil)
	_ OffsetStore  = (*KafkaSource)(nil)
	_ TopicConfigs = (*KafkaSource)(nil)
)

// NewKafkaSource wraps an existing client. Close does not close it.
func NewKafkaSource(client *kgo.Client) *KafkaSource {
	return &KafkaSource{client: client, admin: kadm.NewClient(client)}
}

// DialKafka creates a client for seeds. No connection is made until the
// first query.
func DialKafka(seeds []string, opts ...kgo.Opt) (*KafkaSource, error) {
	if len(seeds) == 0 {
		return nil, errors.New("lag: no seed brokers")
	}
	client, err := kgo.NewClient(append([]kgo.Opt{kgo.SeedBrokers(seeds...)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("lag: create kafka client: %w", err)
	}
	s := NewKafkaSource(client)
	s.owned = true
	return s, nil
}

// Close releases the client if DialKafka created it.
func (s *KafkaSource) Close() {
	if s.owned {
		s.client.Close()
	}
}

func (s *KafkaSource) MaxOffset(ctx context.Context, topic string, queueID int32) (int64, error) {
	listed, err := s.admin.ListEndOffsets(ctx, topic)
	if err != nil {
		return 0, err
	}
	return lookupListed(listed, topic, queueID, 0)
}

func (s *KafkaSource) MinOffset(ctx context.Context, topic string, queueID int32) (int64, error) {
	listed, err := s.admin.ListStartOffsets(ctx, topic)
	if err != nil {
		return 0, err
	}
	return lookupListed(listed, topic, queueID, 0)
}

// OffsetByTime returns the first offset whose timestamp is at or after
// timestampMs, or -1 if the partition holds no such record.
func (s *KafkaSource) OffsetByTime(ctx context.Context, topic string, queueID int32, timestampMs int64) (int64, error) {
	listed, err := s.admin.ListOffsetsAfterMilli(ctx, timestampMs, topic)
	if err != nil {
		return -1, err
	}
	offset, err := lookupListed(listed, topic, queueID, -1)
	if err != nil || offset < 0 {
		return -1, err
	}
	// Past the last record the broker answers with the end offset.
	end, err := s.MaxOffset(ctx, topic, queueID)
	if err != nil {
		return -1, err
	}
	if offset >= end {
		return -1, nil
	}
	return offset, nil
}

func (s *KafkaSource) TimingMessageCount(context.Context, string) (int64, error) {
	return 0, nil
}

func (s *KafkaSource) QueryOffset(ctx context.Context, group, topic string, queueID int32) (int64, error) {
	resp, err := s.admin.FetchOffsets(ctx, group)
	if err != nil {
		if errors.Is(err, kerr.GroupIDNotFound) {
			return -1, nil
		}
		return -1, err
	}
	o, ok := resp.Offsets().Lookup(topic, queueID)
	if !ok || o.At < 0 {
		return -1, nil
	}
	return o.At, nil
}

func (s *KafkaSource) ReadQueueNums(ctx context.Context, topic string) (int32, bool, error) {
	details, err := s.admin.ListTopics(ctx, topic)
	if err != nil {
		return 0, false, err
	}
	d, ok := details[topic]
	if !ok {
		return 0, false, nil
	}
	if d.Err != nil {
		if errors.Is(d.Err, kerr.UnknownTopicOrPartition) {
			return 0, false, nil
		}
		return 0, false, d.Err
	}
	return int32(len(d.Partitions)), true, nil
}

func lookupListed(listed kadm.ListedOffsets, topic string, partition int32, missing int64) (int64, error) {
	lo, ok := listed.Lookup(topic, partition)
	if !ok {
		return missing, nil
	}
	if lo.Err != nil {
		if errors.Is(lo.Err, kerr.UnknownTopicOrPartition) {
			return missing, nil
		}
		return missing, lo.Err
	}
	return lo.Offset, nil
}
