package worker

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/observability"
	"github.com/spec-kit/support-bot/internal/repository"
)

// StartSelectionJanitor evicts expired pending selections every interval.
func StartSelectionJanitor(tasks *TaskGroup, clock clockwork.Clock, table repository.SelectionTable, interval time.Duration, metrics *observability.Metrics, logger *zap.Logger) context.CancelFunc {
	return tasks.Go("selection-janitor", func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case <-clock.After(interval):
			}
			if evicted := table.Sweep(); evicted > 0 {
				logger.Debug("expired selections evicted", zap.Int("count", evicted))
			}
			metrics.SetPendingSelections(table.Len())
		}
	})
}
