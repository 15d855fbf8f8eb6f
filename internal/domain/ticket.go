package domain

import "time"

// TicketState enumerates lifecycle states for tickets.
type TicketState string

const (
	TicketStateOpen             TicketState = "OPEN"
	TicketStateClosingAnnounced TicketState = "CLOSING_ANNOUNCED"
	TicketStateDeleted          TicketState = "DELETED"
)

// CloseReason records which path moved a ticket out of OPEN.
type CloseReason string

const (
	CloseReasonStaffReject CloseReason = "STAFF_REJECT"
	CloseReasonInactivity  CloseReason = "INACTIVITY"
)

// ChannelRef points at the dedicated channel of a ticket.
type ChannelRef struct {
	ID      string
	GuildID string
	Name    string
}

// Ticket is the aggregate for one user's support request.
type Ticket struct {
	ID             int64
	Owner          string
	OwnerName      string
	Channel        ChannelRef
	State          TicketState
	CreatedAt      time.Time
	LastActivityAt time.Time
	CloseDeadline  time.Time
	CloseReason    CloseReason
}

// Active reports whether the ticket still blocks its owner from opening another one.
func (t Ticket) Active() bool {
	return t.State == TicketStateOpen || t.State == TicketStateClosingAnnounced
}

// IdleFor returns how long the ticket has gone without activity.
func (t Ticket) IdleFor(now time.Time) time.Duration {
	return now.Sub(t.LastActivityAt)
}
