package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/support-bot/internal/domain"
)

// Emit fills in the event id and timestamp and publishes it. A nil dispatcher is a no-op.
func Emit(ctx context.Context, d Dispatcher, now time.Time, event Event) error {
	if d == nil {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}
	return d.Publish(ctx, event)
}

// ForTicket starts an event describing ticket.
func ForTicket(eventType EventType, ticket domain.Ticket) Event {
	return Event{
		Type:      eventType,
		TicketID:  ticket.ID,
		Owner:     ticket.Owner,
		ChannelID: ticket.Channel.ID,
	}
}
