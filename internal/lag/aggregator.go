// Package lag answers consumer-lag statistics queries: for a topic and a
// consumer group it sums, over every readable queue of the topic and of
// the group's retry topic, how many messages are still to be consumed
// (active) and how many lie in the queried range (total).
package lag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dray-io/brokerstats/internal/logging"
	"github.com/dray-io/brokerstats/internal/perf"
	"github.com/dray-io/brokerstats/internal/stats"
)

// RetryTopicPrefix prefixes the per-group retry topic of a base topic.
const RetryTopicPrefix = "%RETRY%"

// StatsKind is the statistics kind under which queries are recorded.
const StatsKind = "LAG_QUERY"

// StatsItemNames are the accumulators of a StatsKind item.
var StatsItemNames = []string{"active", "total", "latencyUs"}

var (
	// ErrTopicNotExist matches any *TopicNotExistError.
	ErrTopicNotExist = errors.New("lag: topic not exist")
	// ErrInvalidRequest is returned for a request without topic or group.
	ErrInvalidRequest = errors.New("lag: topic and group are required")
)

// TopicNotExistError reports a query for a topic without configuration.
type TopicNotExistError struct {
	Topic string
}

func (e *TopicNotExistError) Error() string {
	return "consumeStats, topic config not exist, " + e.Topic
}

func (e *TopicNotExistError) Is(target error) bool {
	return target == ErrTopicNotExist
}

// MessageStore supplies queue offsets and delayed message counts.
type MessageStore interface {
	MaxOffset(ctx context.Context, topic string, queueID int32) (int64, error)
	MinOffset(ctx context.Context, topic string, queueID int32) (int64, error)
	// OffsetByTime returns -1 when no message matches.
	OffsetByTime(ctx context.Context, topic string, queueID int32, timestampMs int64) (int64, error)
	TimingMessageCount(ctx context.Context, topic string) (int64, error)
}

// OffsetStore supplies committed consumer offsets.
type OffsetStore interface {
	// QueryOffset returns a negative offset when nothing was committed.
	QueryOffset(ctx context.Context, group, topic string, queueID int32) (int64, error)
}

// TopicConfigs supplies the number of readable queues of a topic.
type TopicConfigs interface {
	ReadQueueNums(ctx context.Context, topic string) (n int32, exists bool, err error)
}

// Request is a lag statistics query. FromTime and ToTime are unix
// milliseconds; zero or negative means the queue's current bound.
type Request struct {
	Topic    string `json:"topic"`
	Group    string `json:"consumerGroup"`
	FromTime int64  `json:"fromTime"`
	ToTime   int64  `json:"toTime"`
}

// Result holds the query answer. All counts are non-negative.
type Result struct {
	DelayMessages  int64 `json:"delayMessages" yaml:"delayMessages"`
	ActiveMessages int64 `json:"activeMessages" yaml:"activeMessages"`
	TotalMessages  int64 `json:"totalMessages" yaml:"totalMessages"`

	// QueuesScanned counts base and retry topic queues visited.
	QueuesScanned int `json:"-" yaml:"-"`
}

// RetryTopic returns the retry topic of group for topic.
func RetryTopic(topic, group string) string {
	return RetryTopicPrefix + group + "_" + topic
}

// Aggregator computes lag statistics from its collaborators.
type Aggregator struct {
	messages MessageStore
	offsets  OffsetStore
	topics   TopicConfigs
	logger   *logging.Logger

	ticks *perf.Ticks
	stats *stats.Manager
}

// NewAggregator creates an aggregator over the given collaborators.
func NewAggregator(messages MessageStore, offsets OffsetStore, topics TopicConfigs, logger *logging.Logger) *Aggregator {
	if logger == nil {
		logger = logging.Global()
	}
	return &Aggregator{
		messages: messages,
		offsets:  offsets,
		topics:   topics,
		logger:   logger.Named("lag"),
	}
}

// TicksName is the perf counter that times queries of topic.
func TicksName(topic string) string {
	return "lag." + topic
}

// WithTicks times every query of an existing topic in the perf counter
// TicksName(topic).
func (a *Aggregator) WithTicks(t *perf.Ticks) *Aggregator {
	a.ticks = t
	return a
}

// WithStats records every successful query as an increment of the
// StatsKind item of its topic. Groups are not part of the key: they are
// caller-chosen and every item carries scheduled tasks. The kind is
// registered on m if absent.
func (a *Aggregator) WithStats(m *stats.Manager) *Aggregator {
	if _, ok := m.Kind(StatsKind); !ok {
		m.AddKind(stats.KindMeta{Name: StatsKind, ItemNames: StatsItemNames})
	}
	a.stats = m
	return a
}

// Statistics answers req.
func (a *Aggregator) Statistics(ctx context.Context, req Request) (*Result, error) {
	if req.Topic == "" || req.Group == "" {
		return nil, ErrInvalidRequest
	}

	start := time.Now()
	logger := logging.ContextLogger(ctx, a.logger)

	queueNums, ok, err := a.topics.ReadQueueNums(ctx, req.Topic)
	if err != nil {
		return nil, fmt.Errorf("lag: topic config %s: %w", req.Topic, err)
	}
	if !ok {
		notExist := &TopicNotExistError{Topic: req.Topic}
		logger.Warn(notExist.Error())
		return nil, notExist
	}
	// Counters and items are created only for topics that exist, so callers
	// cannot grow them with made-up names.
	var tick perf.Tick
	if a.ticks != nil {
		tick = a.ticks.StartTick(TicksName(req.Topic))
	}

	result := &Result{}
	delay, err := a.messages.TimingMessageCount(ctx, req.Topic)
	if err != nil {
		return nil, fmt.Errorf("lag: timing messages %s: %w", req.Topic, err)
	}
	result.DelayMessages += delay

	if err := a.accumulate(ctx, req.Topic, req.Group, queueNums, req.FromTime, req.ToTime, result); err != nil {
		return nil, err
	}

	retryTopic := RetryTopic(req.Topic, req.Group)
	retryQueueNums, ok, err := a.topics.ReadQueueNums(ctx, retryTopic)
	if err != nil {
		return nil, fmt.Errorf("lag: topic config %s: %w", retryTopic, err)
	}
	if ok {
		if err := a.accumulate(ctx, retryTopic, req.Group, retryQueueNums, req.FromTime, req.ToTime, result); err != nil {
			return nil, err
		}
	}

	if a.ticks != nil {
		a.ticks.EndTick(TicksName(req.Topic), tick)
	}
	if a.stats != nil {
		a.stats.Inc(StatsKind, req.Topic,
			result.ActiveMessages, result.TotalMessages, time.Since(start).Microseconds())
	}
	logger.Debugf("lag statistics", map[string]any{
		"topic":  req.Topic,
		"group":  req.Group,
		"active": result.ActiveMessages,
		"total":  result.TotalMessages,
		"delay":  result.DelayMessages,
		"queues": result.QueuesScanned,
	})
	return result, nil
}

func (a *Aggregator) accumulate(ctx context.Context, topic, group string, queueNums int32, fromTime, toTime int64, result *Result) error {
	var active, total int64
	for i := int32(0); i < queueNums; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		maxOffset, err := a.bound(ctx, topic, i, toTime, a.messages.MaxOffset)
		if err != nil {
			return fmt.Errorf("lag: max offset %s/%d: %w", topic, i, err)
		}
		minOffset, err := a.bound(ctx, topic, i, fromTime, a.messages.MinOffset)
		if err != nil {
			return fmt.Errorf("lag: min offset %s/%d: %w", topic, i, err)
		}
		consumerOffset, err := a.offsets.QueryOffset(ctx, group, topic, i)
		if err != nil {
			return fmt.Errorf("lag: consumer offset %s/%s/%d: %w", group, topic, i, err)
		}

		qa, qt := queueCounts(minOffset, maxOffset, consumerOffset)
		active += qa
		total += qt
		result.QueuesScanned++
	}
	result.ActiveMessages += active
	result.TotalMessages += total
	return nil
}

// bound resolves one end of a queue's range: the current bound when
// timestampMs <= 0, otherwise the offset at that time. Negative results
// become 0.
func (a *Aggregator) bound(ctx context.Context, topic string, queueID int32, timestampMs int64,
	current func(context.Context, string, int32) (int64, error)) (int64, error) {
	var (
		offset int64
		err    error
	)
	if timestampMs <= 0 {
		offset, err = current(ctx, topic, queueID)
	} else {
		offset, err = a.messages.OffsetByTime(ctx, topic, queueID, timestampMs)
	}
	if err != nil {
		return 0, err
	}
	return max(offset, 0), nil
}

// queueCounts returns the active and total message counts of one queue.
// A missing or negative consumer offset counts from minOffset; the
// consumer offset is clamped into [minOffset, maxOffset]. A range whose
// start lies past its end is empty.
func queueCounts(minOffset, maxOffset, consumerOffset int64) (active, total int64) {
	if minOffset > maxOffset {
		minOffset = maxOffset
	}
	if consumerOffset < 0 {
		consumerOffset = minOffset
	}
	consumerOffset = min(max(consumerOffset, minOffset), maxOffset)
	return maxOffset - consumerOffset, maxOffset - minOffset
}
