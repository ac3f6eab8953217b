package offsets

import (
	"context"
	"time"

	"github.com/dray-io/brokerstats/internal/logging"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RetentionSweeper deletes committed offsets past their expiry. Run it
// periodically with Sweep, typically from a scheduler task.
type RetentionSweeper struct {
	store  *Store
	clock  Clock
	logger *logging.Logger
}

// NewRetentionSweeper creates a sweeper over store.
func NewRetentionSweeper(store *Store, logger *logging.Logger) *RetentionSweeper {
	if logger == nil {
		logger = logging.Global()
	}
	return &RetentionSweeper{
		store:  store,
		clock:  realClock{},
		logger: logger.Named("offsets"),
	}
}

// SetClock sets the clock for testing.
func (s *RetentionSweeper) SetClock(c Clock) {
	s.clock = c
}

// Sweep runs one pass and returns the number of offsets deleted.
func (s *RetentionSweeper) Sweep(ctx context.Context) (int, error) {
	deleted, err := s.store.DeleteExpired(ctx, s.clock.Now().UnixMilli())
	if err != nil {
		s.logger.Warnf("offset retention sweep error", map[string]any{
			"error": err.Error(),
		})
		return deleted, err
	}
	if deleted > 0 {
		s.logger.Infof("offset retention sweep completed", map[string]any{
			"offsetsDeleted": deleted,
		})
	}
	return deleted, nil
}
