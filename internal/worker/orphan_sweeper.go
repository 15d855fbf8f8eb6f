package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/repository"
)

// SweepOrphans re-arms channel teardowns recorded by a previous process.
// Overdue channels are deleted right away, the rest at their recorded deadline.
func SweepOrphans(ctx context.Context, journal repository.ClosureJournal, scheduler *ClosureScheduler, logger *zap.Logger) (int, error) {
	pending, err := journal.Pending(ctx)
	if err != nil {
		return 0, err
	}
	for _, p := range pending {
		logger.Info("re-arming orphan channel teardown",
			zap.String("channel_id", p.ChannelID),
			zap.Time("deadline", p.Deadline))
		scheduler.ScheduleOrphan(p.ChannelID, p.Deadline)
	}
	return len(pending), nil
}
