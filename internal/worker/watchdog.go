package worker

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/repository"
)

// IdleHandler closes a ticket that went quiet and reports whether it did. It must be
// safe to call when the ticket has already left the OPEN state or saw fresh activity;
// on false the watchdog keeps polling.
type IdleHandler = func(ctx context.Context, ticket domain.Ticket) bool

// Watchdog closes tickets after a period without activity.
type Watchdog struct {
	clock    clockwork.Clock
	registry repository.TicketRegistry
	tasks    *TaskGroup
	poll     time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// WatchdogDependencies bundles watchdog collaborators.
type WatchdogDependencies struct {
	Clock        clockwork.Clock
	Registry     repository.TicketRegistry
	Tasks        *TaskGroup
	PollInterval time.Duration
	Timeout      time.Duration
	Logger       *zap.Logger
}

// NewWatchdog constructs the watchdog.
func NewWatchdog(deps WatchdogDependencies) *Watchdog {
	return &Watchdog{
		clock:    deps.Clock,
		registry: deps.Registry,
		tasks:    deps.Tasks,
		poll:     deps.PollInterval,
		timeout:  deps.Timeout,
		logger:   deps.Logger,
	}
}

// Watch starts the watchdog task of ticket and stores its handle on the ticket.
// It returns false when the ticket left OPEN before the handle could be stored.
func (w *Watchdog) Watch(ticket domain.Ticket, onIdle IdleHandler) bool {
	cancel := w.tasks.Go("watchdog", func(ctx context.Context) {
		w.run(ctx, ticket.Owner, ticket.ID, onIdle)
	})
	return w.registry.AttachWatchdog(ticket.Owner, cancel)
}

func (w *Watchdog) run(ctx context.Context, owner string, ticketID int64, onIdle IdleHandler) {
	log := w.logger.With(zap.String("owner", owner), zap.Int64("ticket_id", ticketID))
	for {
		select {
		case <-ctx.Done():
			log.Debug("watchdog stopped")
			return
		case <-w.clock.After(w.poll):
		}

		ticket, ok := w.registry.Get(owner)
		if !ok || ticket.ID != ticketID || ticket.State != domain.TicketStateOpen {
			log.Debug("watchdog exiting, ticket no longer open")
			return
		}
		idle := ticket.IdleFor(w.clock.Now())
		if idle > w.timeout {
			log.Info("ticket idle, closing", zap.Duration("idle", idle))
			// The closure outlives this task: MarkClosing cancels our context.
			if onIdle(context.WithoutCancel(ctx), ticket) {
				return
			}
			log.Debug("ticket not closed, watching on")
		}
	}
}
