package lag

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dray-io/brokerstats/internal/logging"
	"github.com/dray-io/brokerstats/internal/metadata"
	"github.com/dray-io/brokerstats/internal/offsets"
	"github.com/dray-io/brokerstats/internal/perf"
	"github.com/dray-io/brokerstats/internal/queues"
	"github.com/dray-io/brokerstats/internal/stats"
	"github.com/dray-io/brokerstats/internal/topics"
)

type fixture struct {
	topics  *topics.Store
	offsets *offsets.Store
	queues  *queues.Store
	agg     *Aggregator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	meta := metadata.NewMemoryStore()
	f := &fixture{
		topics:  topics.NewStore(meta),
		offsets: offsets.NewStore(meta),
		queues:  queues.NewStore(),
	}
	f.agg = NewAggregator(f.queues, f.offsets, f.topics, logging.Discard())
	return f
}

func (f *fixture) createTopic(t *testing.T, name string, readQueues, writeQueues int32) {
	t.Helper()
	_, err := f.topics.CreateTopic(context.Background(), topics.CreateTopicRequest{
		Name:           name,
		ReadQueueNums:  readQueues,
		WriteQueueNums: writeQueues,
	})
	require.NoError(t, err)
}

// fill appends n messages stored 10ms apart starting at t=1000.
func (f *fixture) fill(t *testing.T, topic string, queueID int32, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := f.queues.Append(topic, queueID, 1000+int64(i)*10)
		require.NoError(t, err)
	}
}

func (f *fixture) commit(t *testing.T, group, topic string, queueID int32, offset int64) {
	t.Helper()
	_, err := f.offsets.CommitOffset(context.Background(), offsets.CommitRequest{
		Group:   group,
		Topic:   topic,
		QueueID: queueID,
		Offset:  offset,
	})
	require.NoError(t, err)
}

func TestStatistics_SumsQueues(t *testing.T) {
	f := newFixture(t)
	f.createTopic(t, "orders", 2, 2)
	f.fill(t, "orders", 0, 100)
	f.fill(t, "orders", 1, 40)
	f.commit(t, "g1", "orders", 0, 40)

	res, err := f.agg.Statistics(context.Background(), Request{Topic: "orders", Group: "g1"})
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.ActiveMessages)
	assert.Equal(t, int64(140), res.TotalMessages)
	assert.Equal(t, int64(0), res.DelayMessages)
	assert.Equal(t, 2, res.QueuesScanned)
}

func TestStatistics_ConsumerOffsetClamped(t *testing.T) {
	f := newFixture(t)
	f.createTopic(t, "orders", 2, 2)
	f.fill(t, "orders", 0, 100)
	f.fill(t, "orders", 1, 40)
	f.queues.TruncateBefore("orders", 1, 10)
	f.commit(t, "g1", "orders", 0, 150)
	f.commit(t, "g1", "orders", 1, 3)

	res, err := f.agg.Statistics(context.Background(), Request{Topic: "orders", Group: "g1"})
	require.NoError(t, err)
	// Queue 0 is fully consumed; queue 1 counts from its minimum.
	assert.Equal(t, int64(30), res.ActiveMessages)
	assert.Equal(t, int64(130), res.TotalMessages)
}

func TestStatistics_OnlyReadableQueues(t *testing.T) {
	f := newFixture(t)
	f.createTopic(t, "orders", 1, 4)
	f.fill(t, "orders", 0, 5)
	f.fill(t, "orders", 3, 50)

	res, err := f.agg.Statistics(context.Background(), Request{Topic: "orders", Group: "g1"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.TotalMessages)
	assert.Equal(t, 1, res.QueuesScanned)
}

func TestStatistics_RetryTopicAndDelay(t *testing.T) {
	f := newFixture(t)
	f.createTopic(t, "orders", 1, 1)
	f.createTopic(t, RetryTopic("orders", "g1"), 1, 1)
	f.fill(t, "orders", 0, 10)
	f.fill(t, RetryTopic("orders", "g1"), 0, 5)
	f.commit(t, "g1", RetryTopic("orders", "g1"), 0, 2)
	f.queues.AddTimingMessages("orders", 7)
	f.queues.AddTimingMessages(RetryTopic("orders", "g1"), 3)

	res, err := f.agg.Statistics(context.Background(), Request{Topic: "orders", Group: "g1"})
	require.NoError(t, err)
	assert.Equal(t, int64(13), res.ActiveMessages)
	assert.Equal(t, int64(15), res.TotalMessages)
	assert.Equal(t, int64(7), res.DelayMessages)
	assert.Equal(t, 2, res.QueuesScanned)

	// Another group has no retry topic.
	res, err = f.agg.Statistics(context.Background(), Request{Topic: "orders", Group: "g2"})
	require.NoError(t, err)
	assert.Equal(t, int64(10), res.TotalMessages)
	assert.Equal(t, 1, res.QueuesScanned)
}

func TestStatistics_TimeRange(t *testing.T) {
	f := newFixture(t)
	f.createTopic(t, "orders", 2, 2)
	f.fill(t, "orders", 0, 100) // stored 1000..1990
	f.fill(t, "orders", 1, 40)  // stored 1000..1390
	f.commit(t, "g1", "orders", 0, 40)

	res, err := f.agg.Statistics(context.Background(), Request{
		Topic: "orders", Group: "g1", FromTime: 1200, ToTime: 1500,
	})
	require.NoError(t, err)
	// Queue 0 spans [20, 50) with the consumer at 40. Queue 1 has nothing
	// at or after toTime, so its range is empty.
	assert.Equal(t, int64(10), res.ActiveMessages)
	assert.Equal(t, int64(30), res.TotalMessages)

	res, err = f.agg.Statistics(context.Background(), Request{Topic: "orders", Group: "g1", FromTime: 1200})
	require.NoError(t, err)
	assert.Equal(t, int64(80+20), res.TotalMessages)
	assert.Equal(t, int64(60+20), res.ActiveMessages)
}

func TestStatistics_TopicNotExist(t *testing.T) {
	f := newFixture(t)

	_, err := f.agg.Statistics(context.Background(), Request{Topic: "missing", Group: "g1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTopicNotExist)
	assert.Equal(t, "consumeStats, topic config not exist, missing", err.Error())

	var notExist *TopicNotExistError
	require.True(t, errors.As(err, &notExist))
	assert.Equal(t, "missing", notExist.Topic)
}

func TestStatistics_InvalidRequest(t *testing.T) {
	f := newFixture(t)
	_, err := f.agg.Statistics(context.Background(), Request{Topic: "orders"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestStatistics_CancelledContext(t *testing.T) {
	f := newFixture(t)
	f.createTopic(t, "orders", 2, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.agg.Statistics(ctx, Request{Topic: "orders", Group: "g1"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStatistics_RecordsTicksAndStats(t *testing.T) {
	f := newFixture(t)
	f.createTopic(t, "orders", 1, 1)
	f.fill(t, "orders", 0, 10)

	ticks := perf.NewTicks(perf.DefaultConfig())
	mgr := stats.NewManager(perf.DefaultConfig(), logging.Discard())
	f.agg.WithTicks(ticks).WithStats(mgr)

	for i := 0; i < 2; i++ {
		_, err := f.agg.Statistics(context.Background(), Request{Topic: "orders", Group: "g1"})
		require.NoError(t, err)
	}

	assert.Equal(t, 2, ticks.Counter(TicksName("orders")).Len())
	item, ok := mgr.Item(StatsKind, "orders")
	require.True(t, ok)
	assert.Equal(t, int64(2), item.InvokeTimes())
	assert.Equal(t, int64(20), item.Value("active"))
	assert.Equal(t, int64(20), item.Value("total"))
}

func TestStatistics_UnknownTopicsAndGroupsDoNotGrowState(t *testing.T) {
	f := newFixture(t)
	f.createTopic(t, "orders", 1, 1)
	f.fill(t, "orders", 0, 10)

	ticks := perf.NewTicks(perf.DefaultConfig())
	mgr := stats.NewManager(perf.DefaultConfig(), logging.Discard())
	f.agg.WithTicks(ticks).WithStats(mgr)

	ctx := context.Background()
	for i := 0; i < 500; i++ {
		_, err := f.agg.Statistics(ctx, Request{Topic: fmt.Sprintf("nope-%d", i), Group: "g1"})
		require.ErrorIs(t, err, ErrTopicNotExist)
	}
	assert.Empty(t, ticks.Names(), "no counter for topics that do not exist")
	assert.Empty(t, mgr.Items())

	for i := 0; i < 500; i++ {
		_, err := f.agg.Statistics(ctx, Request{Topic: "orders", Group: fmt.Sprintf("g-%d", i)})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{TicksName("orders")}, ticks.Names())
	items := mgr.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "orders", items[0].Object())
	assert.Equal(t, int64(500), items[0].InvokeTimes())
}

func TestStatistics_ReferenceScenarios(t *testing.T) {
	t.Run("uncommitted queue counts from its minimum", func(t *testing.T) {
		f := newFixture(t)
		f.createTopic(t, "orders", 2, 2)
		f.fill(t, "orders", 0, 100)
		f.fill(t, "orders", 1, 50)
		f.queues.TruncateBefore("orders", 1, 10)
		f.commit(t, "g1", "orders", 0, 40)

		res, err := f.agg.Statistics(context.Background(), Request{Topic: "orders", Group: "g1"})
		require.NoError(t, err)
		// queue0 [0,100] at 40: 60 active. queue1 [10,50] uncommitted: 40.
		assert.Equal(t, int64(100), res.ActiveMessages)
		assert.Equal(t, int64(140), res.TotalMessages)
	})

	t.Run("commit below minimum is clamped", func(t *testing.T) {
		f := newFixture(t)
		f.createTopic(t, "orders", 1, 1)
		f.fill(t, "orders", 0, 100)
		f.queues.TruncateBefore("orders", 0, 10)
		f.commit(t, "g1", "orders", 0, 5)

		res, err := f.agg.Statistics(context.Background(), Request{Topic: "orders", Group: "g1"})
		require.NoError(t, err)
		assert.Equal(t, int64(90), res.ActiveMessages)
		assert.Equal(t, int64(90), res.TotalMessages)
	})
}

func TestQueueCounts(t *testing.T) {
	tests := []struct {
		name                string
		min, max, consumer  int64
		wantActive, wantTot int64
	}{
		{"no commit", 0, 100, -1, 100, 100},
		{"no commit from min", 10, 50, -1, 40, 40},
		{"commit 5 on [10,100]", 10, 100, 5, 90, 90},
		{"midway", 10, 100, 40, 60, 90},
		{"behind min", 10, 100, 3, 90, 90},
		{"past max", 10, 100, 150, 0, 90},
		{"inverted range", 50, 20, 30, 0, 0},
		{"empty queue", 0, 0, -1, 0, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			active, total := queueCounts(tc.min, tc.max, tc.consumer)
			assert.Equal(t, tc.wantActive, active)
			assert.Equal(t, tc.wantTot, total)
			assert.LessOrEqual(t, active, total)
		})
	}
}

func TestRetryTopic(t *testing.T) {
	assert.Equal(t, "%RETRY%g1_orders", RetryTopic("orders", "g1"))
}
