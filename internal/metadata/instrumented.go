package metadata

import (
	"context"
	"time"
)

// MetricsRecorder receives the outcome of every Store operation. It keeps
// this package free of a metrics dependency.
type MetricsRecorder interface {
	RecordGet(durationSeconds float64, success bool)
	RecordPut(durationSeconds float64, success bool)
	RecordDelete(durationSeconds float64, success bool)
	RecordList(durationSeconds float64, success bool)
	RecordTxn(durationSeconds float64, success bool)
}

// InstrumentedStore wraps a Store and records latency and outcome of each
// operation.
type InstrumentedStore struct {
	store   Store
	metrics MetricsRecorder
}

// NewInstrumentedStore wraps store. A nil metrics records nothing.
func NewInstrumentedStore(store Store, metrics MetricsRecorder) *InstrumentedStore {
	return &InstrumentedStore{
		store:   store,
		metrics: metrics,
	}
}

func (s *InstrumentedStore) Get(ctx context.Context, key string) (GetResult, error) {
	start := time.Now()
	result, err := s.store.Get(ctx, key)
	if s.metrics != nil {
		s.metrics.RecordGet(time.Since(start).Seconds(), err == nil)
	}
	return result, err
}

func (s *InstrumentedStore) Put(ctx context.Context, key string, value []byte, opts ...PutOption) (Version, error) {
	start := time.Now()
	v, err := s.store.Put(ctx, key, value, opts...)
	if s.metrics != nil {
		s.metrics.RecordPut(time.Since(start).Seconds(), err == nil)
	}
	return v, err
}

func (s *InstrumentedStore) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.store.Delete(ctx, key)
	if s.metrics != nil {
		s.metrics.RecordDelete(time.Since(start).Seconds(), err == nil)
	}
	return err
}

func (s *InstrumentedStore) List(ctx context.Context, startKey, endKey string, limit int) ([]KV, error) {
	start := time.Now()
	result, err := s.store.List(ctx, startKey, endKey, limit)
	if s.metrics != nil {
		s.metrics.RecordList(time.Since(start).Seconds(), err == nil)
	}
	return result, err
}

// Txn counts a failure of fn as a failed transaction.
func (s *InstrumentedStore) Txn(ctx context.Context, fn func(Txn) error) error {
	start := time.Now()
	err := s.store.Txn(ctx, fn)
	if s.metrics != nil {
		s.metrics.RecordTxn(time.Since(start).Seconds(), err == nil)
	}
	return err
}

func (s *InstrumentedStore) Close() error {
	return s.store.Close()
}

var _ Store = (*InstrumentedStore)(nil)
