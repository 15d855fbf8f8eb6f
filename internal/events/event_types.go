package events

import (
	"time"

	"github.com/spec-kit/support-bot/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketOpened      EventType = "ticket_opened"
	EventTicketClaimed     EventType = "ticket_claimed"
	EventTicketClosing     EventType = "ticket_closing"
	EventTicketDeleted     EventType = "ticket_deleted"
	EventSelectionRecorded EventType = "selection_recorded"
	EventMessageForwarded  EventType = "message_forwarded"
	EventStaffReplied      EventType = "staff_replied"
)

// AllEventTypes lists every event the bot emits.
var AllEventTypes = []EventType{
	EventTicketOpened,
	EventTicketClaimed,
	EventTicketClosing,
	EventTicketDeleted,
	EventSelectionRecorded,
	EventMessageForwarded,
	EventStaffReplied,
}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  int64       `json:"ticket_id,omitempty"`
	Owner     string      `json:"owner"`
	ChannelID string      `json:"channel_id,omitempty"`
	Actor     *Actor      `json:"actor,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// TicketOpenedPayload payload.
type TicketOpenedPayload struct {
	ChannelName string `json:"channel_name"`
	GuildID     string `json:"guild_id"`
}

// TicketClosingPayload payload.
type TicketClosingPayload struct {
	Reason   domain.CloseReason `json:"reason"`
	Deadline time.Time          `json:"deadline"`
}

// TicketDeletedPayload payload.
type TicketDeletedPayload struct {
	ChannelDeleted bool   `json:"channel_deleted"`
	Error          string `json:"error,omitempty"`
}

// SelectionRecordedPayload payload.
type SelectionRecordedPayload struct {
	Category  domain.Category `json:"category"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// MessageForwardedPayload payload.
type MessageForwardedPayload struct {
	Category    domain.Category `json:"category"`
	BodyPreview string          `json:"body_preview"`
}

// StaffRepliedPayload payload.
type StaffRepliedPayload struct {
	Delivered   bool   `json:"delivered"`
	Reason      string `json:"reason,omitempty"`
	BodyPreview string `json:"body_preview"`
}

// ActorFrom converts a platform actor into event metadata.
func ActorFrom(a domain.Actor) *Actor {
	return &Actor{ID: a.ID, Name: a.Name}
}
