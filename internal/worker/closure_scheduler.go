package worker

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/events"
	"github.com/spec-kit/support-bot/internal/platform"
	"github.com/spec-kit/support-bot/internal/repository"
)

// ClosureScheduler tears down ticket channels once their closing delay elapses.
type ClosureScheduler struct {
	clock      clockwork.Clock
	registry   repository.TicketRegistry
	channels   platform.ChannelProvider
	journal    repository.ClosureJournal
	tasks      *TaskGroup
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// ClosureSchedulerDependencies bundles scheduler collaborators.
type ClosureSchedulerDependencies struct {
	Clock      clockwork.Clock
	Registry   repository.TicketRegistry
	Channels   platform.ChannelProvider
	Journal    repository.ClosureJournal
	Tasks      *TaskGroup
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewClosureScheduler constructs the scheduler.
func NewClosureScheduler(deps ClosureSchedulerDependencies) *ClosureScheduler {
	journal := deps.Journal
	if journal == nil {
		journal = repository.NewClosureJournal(nil, "")
	}
	return &ClosureScheduler{
		clock:      deps.Clock,
		registry:   deps.Registry,
		channels:   deps.Channels,
		journal:    journal,
		tasks:      deps.Tasks,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
	}
}

// Schedule arranges the teardown of a ticket in CLOSING_ANNOUNCED at its close deadline.
func (s *ClosureScheduler) Schedule(ctx context.Context, ticket domain.Ticket) {
	log := s.logger.With(zap.String("owner", ticket.Owner), zap.String("channel_id", ticket.Channel.ID))
	if err := s.journal.Record(ctx, ticket.Channel.ID, ticket.CloseDeadline); err != nil {
		log.Warn("closure journal unavailable", zap.Error(err))
	}

	delay := s.clock.Until(ticket.CloseDeadline)
	cancel := s.tasks.Go("closure", func(taskCtx context.Context) {
		if !s.wait(taskCtx, delay) {
			log.Info("channel teardown abandoned")
			return
		}
		s.teardown(context.WithoutCancel(taskCtx), ticket)
	})
	s.registry.AttachClosure(ticket.Owner, cancel)
	log.Info("channel teardown scheduled", zap.Duration("delay", delay))
}

// ScheduleOrphan deletes a channel left behind by a previous process at deadline.
func (s *ClosureScheduler) ScheduleOrphan(channelID string, deadline time.Time) {
	delay := s.clock.Until(deadline)
	s.tasks.Go("orphan-closure", func(taskCtx context.Context) {
		if !s.wait(taskCtx, delay) {
			return
		}
		ctx := context.WithoutCancel(taskCtx)
		if err := s.deleteChannel(ctx, channelID); err != nil {
			s.logger.Warn("orphan channel teardown failed", zap.String("channel_id", channelID), zap.Error(err))
		} else {
			s.logger.Info("orphan channel deleted", zap.String("channel_id", channelID))
		}
		s.forget(ctx, channelID)
	})
}

func (s *ClosureScheduler) wait(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-s.clock.After(delay):
		return true
	}
}

func (s *ClosureScheduler) teardown(ctx context.Context, ticket domain.Ticket) {
	log := s.logger.With(zap.String("owner", ticket.Owner), zap.String("channel_id", ticket.Channel.ID))

	payload := events.TicketDeletedPayload{ChannelDeleted: true}
	if err := s.deleteChannel(ctx, ticket.Channel.ID); err != nil {
		// Not retried: the registry is the source of truth and is cleaned up regardless.
		log.Warn("channel teardown failed", zap.Error(err))
		payload.ChannelDeleted = false
		payload.Error = err.Error()
	}

	if current, ok := s.registry.Get(ticket.Owner); ok && current.ID == ticket.ID {
		s.registry.Remove(ticket.Owner)
	}
	s.forget(ctx, ticket.Channel.ID)

	event := events.ForTicket(events.EventTicketDeleted, ticket)
	event.Payload = payload
	if err := events.Emit(ctx, s.dispatcher, s.clock.Now(), event); err != nil {
		log.Debug("publish ticket_deleted", zap.Error(err))
	}
	log.Info("ticket removed")
}

func (s *ClosureScheduler) deleteChannel(ctx context.Context, channelID string) error {
	err := s.channels.DeleteChannel(ctx, channelID)
	if errors.Is(err, platform.ErrNotFound) {
		s.logger.Debug("channel already gone", zap.String("channel_id", channelID))
		return nil
	}
	return err
}

func (s *ClosureScheduler) forget(ctx context.Context, channelID string) {
	if err := s.journal.Forget(ctx, channelID); err != nil {
		s.logger.Warn("closure journal forget failed", zap.String("channel_id", channelID), zap.Error(err))
	}
}
