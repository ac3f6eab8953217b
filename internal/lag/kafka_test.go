package lag

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestDialKafka_NoSeeds(t *testing.T) {
	_, err := DialKafka(nil)
	assert.Error(t, err)
}

func TestKafkaSource_TimingMessageCount(t *testing.T) {
	s, err := DialKafka([]string{"127.0.0.1:1"})
	require.NoError(t, err)
	defer s.Close()

	n, err := s.TimingMessageCount(context.Background(), "orders")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestKafkaSource_UnreachableBroker(t *testing.T) {
	s, err := DialKafka([]string{"127.0.0.1:1"}, kgo.RequestRetries(0))
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	agg := NewAggregator(s, s, s, nil)
	_, err = agg.Statistics(ctx, Request{Topic: "orders", Group: "g1"})
	assert.Error(t, err)
}
