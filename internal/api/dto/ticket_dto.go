package dto

import (
	"strconv"
	"time"

	"github.com/spec-kit/support-bot/internal/domain"
)

// TicketSummary is one entry of the active ticket listing.
type TicketSummary struct {
	ID             string             `json:"id"`
	Owner          string             `json:"owner_id"`
	OwnerName      string             `json:"owner_name"`
	ChannelID      string             `json:"channel_id"`
	ChannelName    string             `json:"channel_name"`
	State          domain.TicketState `json:"state"`
	CreatedAt      time.Time          `json:"created_at"`
	LastActivityAt time.Time          `json:"last_activity_at"`
	CloseDeadline  *time.Time         `json:"close_deadline,omitempty"`
	CloseReason    domain.CloseReason `json:"close_reason,omitempty"`
}

// TicketHistoryEntry is one audit row of a ticket.
type TicketHistoryEntry struct {
	ID          string                  `json:"id"`
	ChangeType  domain.TicketChangeType `json:"change_type"`
	ChangedByID *string                 `json:"changed_by_id"`
	ChannelID   string                  `json:"channel_id"`
	Details     map[string]any          `json:"details"`
	CreatedAt   time.Time               `json:"created_at"`
}

// NewTicketSummary converts a registry entry.
func NewTicketSummary(t domain.Ticket) TicketSummary {
	summary := TicketSummary{
		ID:             strconv.FormatInt(t.ID, 10),
		Owner:          t.Owner,
		OwnerName:      t.OwnerName,
		ChannelID:      t.Channel.ID,
		ChannelName:    t.Channel.Name,
		State:          t.State,
		CreatedAt:      t.CreatedAt,
		LastActivityAt: t.LastActivityAt,
		CloseReason:    t.CloseReason,
	}
	if !t.CloseDeadline.IsZero() {
		deadline := t.CloseDeadline
		summary.CloseDeadline = &deadline
	}
	return summary
}

// NewTicketHistoryEntry converts a history row.
func NewTicketHistoryEntry(h domain.TicketHistory) TicketHistoryEntry {
	return TicketHistoryEntry{
		ID:          strconv.FormatInt(h.ID, 10),
		ChangeType:  h.ChangeType,
		ChangedByID: h.ChangedByID,
		ChannelID:   h.ChannelID,
		Details:     h.Details,
		CreatedAt:   h.CreatedAt,
	}
}
