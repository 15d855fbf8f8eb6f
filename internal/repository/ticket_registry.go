package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jonboulle/clockwork"

	"github.com/spec-kit/support-bot/internal/domain"
	apperrors "github.com/spec-kit/support-bot/pkg/util/errorutil"
)

// TicketRegistry is the authoritative table of active tickets, keyed by owner.
type TicketRegistry interface {
	Open(owner, ownerName string, channel domain.ChannelRef) (domain.Ticket, error)
	Get(owner string) (domain.Ticket, bool)
	Touch(owner string) bool
	MarkClosing(owner string, delay time.Duration, reason domain.CloseReason) (domain.Ticket, error)
	MarkIdleClosing(owner string, threshold, delay time.Duration) (domain.Ticket, error)
	Remove(owner string)
	FindByChannel(channelID string) (domain.Ticket, bool)
	AttachWatchdog(owner string, cancel context.CancelFunc) bool
	AttachClosure(owner string, cancel context.CancelFunc) bool
	Snapshot() []domain.Ticket
	Count() int
}

// ErrStillActive is returned by MarkIdleClosing when the ticket saw activity within
// the inactivity threshold.
var ErrStillActive = errors.New("ticket still active")

type registryEntry struct {
	ticket      domain.Ticket
	cancelWatch context.CancelFunc
	cancelClose context.CancelFunc
}

type ticketRegistry struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	ids       *snowflake.Node
	byOwner   map[string]*registryEntry
	byChannel map[string]string
	// snapshot is rebuilt lazily; nil means the table changed since the last build.
	snapshot atomic.Pointer[[]domain.Ticket]
	count    atomic.Int64
}

// NewTicketRegistry builds an empty in-memory registry.
func NewTicketRegistry(clock clockwork.Clock, ids *snowflake.Node) TicketRegistry {
	r := &ticketRegistry{
		clock:     clock,
		ids:       ids,
		byOwner:   make(map[string]*registryEntry),
		byChannel: make(map[string]string),
	}
	return r
}

func (r *ticketRegistry) Open(owner, ownerName string, channel domain.ChannelRef) (domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byOwner[owner]; ok && existing.ticket.Active() {
		return existing.ticket, apperrors.NewAlreadyOpen("Masz już otwarty ticket.", map[string]any{
			"channel_id": existing.ticket.Channel.ID,
		})
	}

	now := r.clock.Now()
	ticket := domain.Ticket{
		ID:             r.ids.Generate().Int64(),
		Owner:          owner,
		OwnerName:      ownerName,
		Channel:        channel,
		State:          domain.TicketStateOpen,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	r.byOwner[owner] = &registryEntry{ticket: ticket}
	r.byChannel[channel.ID] = owner
	r.publishLocked()
	return ticket, nil
}

func (r *ticketRegistry) Get(owner string) (domain.Ticket, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.byOwner[owner]
	if !ok {
		return domain.Ticket{}, false
	}
	return entry.ticket, true
}

func (r *ticketRegistry) Touch(owner string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.byOwner[owner]
	if !ok || entry.ticket.State != domain.TicketStateOpen {
		return false
	}
	entry.ticket.LastActivityAt = r.clock.Now()
	r.snapshot.Store(nil)
	return true
}

// MarkClosing is the single close-once transition: only one caller per ticket succeeds.
func (r *ticketRegistry) MarkClosing(owner string, delay time.Duration, reason domain.CloseReason) (domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, err := r.openEntryLocked(owner)
	if err != nil {
		return entry.ticket, err
	}
	return r.closeLocked(entry, delay, reason), nil
}

// MarkIdleClosing is MarkClosing for the inactivity path. The idle check runs under
// the same lock as the transition, so a Touch that lands first keeps the ticket open.
func (r *ticketRegistry) MarkIdleClosing(owner string, threshold, delay time.Duration) (domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, err := r.openEntryLocked(owner)
	if err != nil {
		return entry.ticket, err
	}
	if entry.ticket.IdleFor(r.clock.Now()) <= threshold {
		return entry.ticket, ErrStillActive
	}
	return r.closeLocked(entry, delay, domain.CloseReasonInactivity), nil
}

func (r *ticketRegistry) openEntryLocked(owner string) (*registryEntry, error) {
	entry, ok := r.byOwner[owner]
	if !ok {
		return &registryEntry{}, apperrors.NewNotOpen("Ticket nie istnieje.", map[string]any{"owner": owner})
	}
	if entry.ticket.State != domain.TicketStateOpen {
		return entry, apperrors.NewNotOpen("Ticket jest już zamknięty.", map[string]any{
			"owner": owner,
			"state": entry.ticket.State,
		})
	}
	return entry, nil
}

func (r *ticketRegistry) closeLocked(entry *registryEntry, delay time.Duration, reason domain.CloseReason) domain.Ticket {
	entry.ticket.State = domain.TicketStateClosingAnnounced
	entry.ticket.CloseDeadline = r.clock.Now().Add(delay)
	entry.ticket.CloseReason = reason
	if entry.cancelWatch != nil {
		entry.cancelWatch()
		entry.cancelWatch = nil
	}
	r.publishLocked()
	return entry.ticket
}

func (r *ticketRegistry) Remove(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.byOwner[owner]
	if !ok {
		return
	}
	if entry.cancelWatch != nil {
		entry.cancelWatch()
	}
	if entry.cancelClose != nil {
		entry.cancelClose()
	}
	entry.ticket.State = domain.TicketStateDeleted
	delete(r.byOwner, owner)
	if r.byChannel[entry.ticket.Channel.ID] == owner {
		delete(r.byChannel, entry.ticket.Channel.ID)
	}
	r.publishLocked()
}

func (r *ticketRegistry) FindByChannel(channelID string) (domain.Ticket, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.byChannel[channelID]
	if !ok {
		return domain.Ticket{}, false
	}
	entry, ok := r.byOwner[owner]
	if !ok {
		return domain.Ticket{}, false
	}
	return entry.ticket, true
}

// AttachWatchdog stores the cancel handle of the ticket's watchdog.
// It returns false, after cancelling the handle, when the ticket is no longer open.
func (r *ticketRegistry) AttachWatchdog(owner string, cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.byOwner[owner]
	if !ok || entry.ticket.State != domain.TicketStateOpen {
		cancel()
		return false
	}
	if entry.cancelWatch != nil {
		entry.cancelWatch()
	}
	entry.cancelWatch = cancel
	return true
}

// AttachClosure stores the cancel handle of the ticket's deferred deletion.
func (r *ticketRegistry) AttachClosure(owner string, cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.byOwner[owner]
	if !ok || entry.ticket.State != domain.TicketStateClosingAnnounced {
		return false
	}
	if entry.cancelClose != nil {
		entry.cancelClose()
	}
	entry.cancelClose = cancel
	return true
}

// Snapshot returns a copy of the table ordered by creation. Activity updates only
// invalidate the cached copy; it is rebuilt here on the next read.
func (r *ticketRegistry) Snapshot() []domain.Ticket {
	current := r.snapshot.Load()
	if current == nil {
		r.mu.Lock()
		current = r.buildLocked()
		r.mu.Unlock()
	}
	out := make([]domain.Ticket, len(*current))
	copy(out, *current)
	return out
}

func (r *ticketRegistry) Count() int {
	return int(r.count.Load())
}

// publishLocked invalidates the cached snapshot after a membership or state change.
func (r *ticketRegistry) publishLocked() {
	r.count.Store(int64(len(r.byOwner)))
	r.snapshot.Store(nil)
}

func (r *ticketRegistry) buildLocked() *[]domain.Ticket {
	if current := r.snapshot.Load(); current != nil {
		return current
	}
	tickets := make([]domain.Ticket, 0, len(r.byOwner))
	for _, entry := range r.byOwner {
		tickets = append(tickets, entry.ticket)
	}
	sort.Slice(tickets, func(i, j int) bool {
		return tickets[i].CreatedAt.Before(tickets[j].CreatedAt) ||
			(tickets[i].CreatedAt.Equal(tickets[j].CreatedAt) && tickets[i].ID < tickets[j].ID)
	})
	r.snapshot.Store(&tickets)
	return &tickets
}
