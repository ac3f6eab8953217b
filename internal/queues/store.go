// Package queues keeps per-queue offset and store-time bookkeeping for
// topics: the minimum and maximum logical offsets of each queue, a
// timestamp per retained message for time lookups, and a per-topic count
// of delayed messages.
//
// Offsets follow broker convention: MaxOffset is the offset the next
// message will get, so a queue holds MaxOffset-MinOffset messages.
package queues

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// NotFound is returned by OffsetByTime when no retained message was
// stored at or after the requested time.
const NotFound int64 = -1

// ErrInvalidQueue is returned for a negative queue id or empty topic.
var ErrInvalidQueue = errors.New("queues: invalid topic or queue id")

type queueKey struct {
	topic   string
	queueID int32
}

type queue struct {
	minOffset  int64
	timestamps []int64 // unix ms of offsets minOffset, minOffset+1, ...
}

func (q *queue) maxOffset() int64 {
	return q.minOffset + int64(len(q.timestamps))
}

// Store is an in-memory queue store. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	queues map[queueKey]*queue
	timing map[string]int64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		queues: make(map[queueKey]*queue),
		timing: make(map[string]int64),
	}
}

// Append records one message stored at storeTimeMs and returns its offset.
// Store times are kept non-decreasing within a queue; an earlier time is
// recorded as the previous message's time.
func (s *Store) Append(topic string, queueID int32, storeTimeMs int64) (int64, error) {
	if topic == "" || queueID < 0 {
		return NotFound, ErrInvalidQueue
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := queueKey{topic, queueID}
	q, ok := s.queues[key]
	if !ok {
		q = &queue{}
		s.queues[key] = q
	}
	if n := len(q.timestamps); n > 0 && storeTimeMs < q.timestamps[n-1] {
		storeTimeMs = q.timestamps[n-1]
	}
	offset := q.maxOffset()
	q.timestamps = append(q.timestamps, storeTimeMs)
	return offset, nil
}

// AppendNow appends count messages stored at the current time and returns
// the offset of the last one.
func (s *Store) AppendNow(topic string, queueID int32, count int) (int64, error) {
	now := time.Now().UnixMilli()
	last := NotFound
	for i := 0; i < count; i++ {
		off, err := s.Append(topic, queueID, now)
		if err != nil {
			return NotFound, err
		}
		last = off
	}
	return last, nil
}

// TruncateBefore drops messages with offset < offset, advancing the
// queue's minimum offset. Truncating past the maximum empties the queue
// and moves both bounds to offset.
func (s *Store) TruncateBefore(topic string, queueID int32, offset int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[queueKey{topic, queueID}]
	if !ok || offset <= q.minOffset {
		return
	}
	drop := offset - q.minOffset
	if drop >= int64(len(q.timestamps)) {
		q.timestamps = q.timestamps[:0]
	} else {
		q.timestamps = append(q.timestamps[:0], q.timestamps[drop:]...)
	}
	q.minOffset = offset
}

// AddTimingMessages adjusts the delayed message count of a topic. The
// count never goes below zero.
func (s *Store) AddTimingMessages(topic string, delta int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.timing[topic] + delta
	if n < 0 {
		n = 0
	}
	s.timing[topic] = n
}

// MaxOffset returns the next offset of the queue, or 0 for an unknown queue.
func (s *Store) MaxOffset(ctx context.Context, topic string, queueID int32) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if q, ok := s.queues[queueKey{topic, queueID}]; ok {
		return q.maxOffset(), nil
	}
	return 0, nil
}

// MinOffset returns the smallest retained offset, or 0 for an unknown queue.
func (s *Store) MinOffset(ctx context.Context, topic string, queueID int32) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if q, ok := s.queues[queueKey{topic, queueID}]; ok {
		return q.minOffset, nil
	}
	return 0, nil
}

// OffsetByTime returns the offset of the first retained message stored at
// or after timestampMs, or NotFound.
func (s *Store) OffsetByTime(ctx context.Context, topic string, queueID int32, timestampMs int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return NotFound, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.queues[queueKey{topic, queueID}]
	if !ok {
		return NotFound, nil
	}
	idx := sort.Search(len(q.timestamps), func(i int) bool {
		return q.timestamps[i] >= timestampMs
	})
	if idx == len(q.timestamps) {
		return NotFound, nil
	}
	return q.minOffset + int64(idx), nil
}

// TimingMessageCount returns the number of delayed messages of a topic.
func (s *Store) TimingMessageCount(ctx context.Context, topic string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timing[topic], nil
}

// QueueIDs returns the queue ids of a topic that have ever been written.
func (s *Store) QueueIDs(topic string) []int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []int32
	for k := range s.queues {
		if k.topic == topic {
			ids = append(ids, k.queueID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
