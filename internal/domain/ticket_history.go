package domain

import "time"

// TicketChangeType captures what happened in a history entry.
type TicketChangeType string

const (
	ChangeTypeOpened  TicketChangeType = "OPENED"
	ChangeTypeClaimed TicketChangeType = "CLAIMED"
	ChangeTypeClosing TicketChangeType = "CLOSING"
	ChangeTypeDeleted TicketChangeType = "DELETED"
)

// TicketHistory is an immutable audit trail entry.
type TicketHistory struct {
	ID          int64
	TicketID    int64
	OwnerID     string
	ChannelID   string
	ChangedByID *string
	ChangeType  TicketChangeType
	Details     map[string]any
	CreatedAt   time.Time
}
