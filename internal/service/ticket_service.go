package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/auth"
	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/events"
	"github.com/spec-kit/support-bot/internal/platform"
	"github.com/spec-kit/support-bot/internal/repository"
	apperrors "github.com/spec-kit/support-bot/pkg/util/errorutil"
)

// TicketWatcher starts the inactivity watchdog of a ticket.
type TicketWatcher interface {
	Watch(ticket domain.Ticket, onIdle func(ctx context.Context, ticket domain.Ticket) bool) bool
}

// ClosureScheduler arranges the deferred teardown of a closing ticket.
type ClosureScheduler interface {
	Schedule(ctx context.Context, ticket domain.Ticket)
}

// TicketService coordinates ticket workflows.
type TicketService struct {
	registry   repository.TicketRegistry
	selections repository.SelectionTable
	channels   platform.ChannelProvider
	messenger  platform.DirectMessenger
	identity   platform.IdentitySource
	gate       *auth.Gate
	watchdog   TicketWatcher
	closures   ClosureScheduler
	dispatcher events.Dispatcher
	clock      clockwork.Clock
	logger     *zap.Logger
	cfg        TicketConfig
}

// TicketDependencies bundles collaborators for ticket service.
type TicketDependencies struct {
	Registry   repository.TicketRegistry
	Selections repository.SelectionTable
	Channels   platform.ChannelProvider
	Messenger  platform.DirectMessenger
	Identity   platform.IdentitySource
	Gate       *auth.Gate
	Watchdog   TicketWatcher
	Closures   ClosureScheduler
	Dispatcher events.Dispatcher
	Clock      clockwork.Clock
	Logger     *zap.Logger
}

// TicketConfig holds the identifiers and delays ticket workflows depend on.
type TicketConfig struct {
	CategoryID        string
	ManagementRoleID  string
	InactivityTimeout time.Duration
	ClosureDelay      time.Duration
}

// SelectionResult tells which way a category selection went.
type SelectionResult struct {
	Ticket  *domain.Ticket
	Pending *domain.PendingSelection
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies, cfg TicketConfig) *TicketService {
	return &TicketService{
		registry:   deps.Registry,
		selections: deps.Selections,
		channels:   deps.Channels,
		messenger:  deps.Messenger,
		identity:   deps.Identity,
		gate:       deps.Gate,
		watchdog:   deps.Watchdog,
		closures:   deps.Closures,
		dispatcher: deps.Dispatcher,
		clock:      deps.Clock,
		logger:     deps.Logger,
		cfg:        cfg,
	}
}

// PromptSelection sends the help menu to user privately.
func (s *TicketService) PromptSelection(ctx context.Context, user domain.Actor) error {
	options := make([]platform.SelectOption, 0, len(domain.Categories))
	for _, opt := range domain.Categories {
		options = append(options, platform.SelectOption{
			Label:       string(opt.Category),
			Value:       string(opt.Category),
			Description: opt.Description,
		})
	}
	msg := platform.Message{
		Content: "W czym możemy Ci pomóc? Wybierz problem z listy:",
		Select: &platform.Select{
			ID:          platform.EncodeAction(platform.ActionSelect, ""),
			Placeholder: "Wybierz swój problem...",
			Options:     options,
		},
	}
	return directMessageError(s.messenger.SendDM(ctx, user.ID, msg), msgRequesterDMOff)
}

// Select handles a category picked from the help menu.
func (s *TicketService) Select(ctx context.Context, user domain.Actor, category domain.Category) (SelectionResult, error) {
	if category.OpensTicket() {
		ticket, err := s.OpenTicket(ctx, user)
		if err != nil {
			return SelectionResult{}, err
		}
		return SelectionResult{Ticket: &ticket}, nil
	}

	sel := s.selections.Put(user.ID, category)
	s.publishEvent(ctx, events.Event{
		Type:  events.EventSelectionRecorded,
		Owner: user.ID,
		Actor: events.ActorFrom(user),
		Payload: events.SelectionRecordedPayload{
			Category:  category,
			ExpiresAt: sel.ExpiresAt,
		},
	})
	return SelectionResult{Pending: &sel}, nil
}

// OpenTicket creates the dedicated channel of user and starts its watchdog.
func (s *TicketService) OpenTicket(ctx context.Context, user domain.Actor) (domain.Ticket, error) {
	if existing, ok := s.registry.Get(user.ID); ok && existing.Active() {
		return existing, apperrors.NewAlreadyOpen("Masz już otwarty ticket.", map[string]any{
			"channel_id": existing.Channel.ID,
		})
	}

	guild, err := s.identity.ResolveGuildForUser(ctx, user.ID)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			return domain.Ticket{}, apperrors.NewNotFound("Nie znaleziono serwera.", map[string]any{"user_id": user.ID})
		}
		return domain.Ticket{}, apperrors.NewPlatformTransient(msgPlatformFailure, err)
	}

	category, err := s.channels.ResolveChannel(ctx, s.cfg.CategoryID)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			return domain.Ticket{}, apperrors.NewNotFound("Nie znaleziono kategorii support.", map[string]any{"category_id": s.cfg.CategoryID})
		}
		return domain.Ticket{}, apperrors.NewPlatformTransient(msgPlatformFailure, err)
	}

	channel, err := s.channels.CreateChannel(ctx, platform.ChannelSpec{
		GuildID:  guild.ID,
		ParentID: category.ID,
		Name:     ticketChannelName(user),
		Access: []platform.AccessRule{
			{SubjectID: guild.EveryoneRoleID, Subject: platform.AccessRole, Allow: false},
			{SubjectID: user.ID, Subject: platform.AccessMember, Allow: true},
			{SubjectID: s.cfg.ManagementRoleID, Subject: platform.AccessRole, Allow: true},
		},
	})
	if err != nil {
		return domain.Ticket{}, apperrors.NewPlatformTransient("Nie udało się utworzyć kanału ticketu.", err)
	}

	ticket, err := s.registry.Open(user.ID, user.Name, domain.ChannelRef{
		ID:      channel.ID,
		GuildID: channel.GuildID,
		Name:    channel.Name,
	})
	if err != nil {
		// A concurrent selection won the race; drop the channel we just made.
		if delErr := s.channels.DeleteChannel(ctx, channel.ID); delErr != nil {
			s.logger.Warn("failed to drop duplicate ticket channel", zap.String("channel_id", channel.ID), zap.Error(delErr))
		}
		return domain.Ticket{}, err
	}

	log := s.logger.With(zap.String("owner", ticket.Owner), zap.String("channel_id", channel.ID), zap.Int64("ticket_id", ticket.ID))
	opening := platform.Message{
		Content: fmt.Sprintf("%s otworzył ticket. Management może odpowiedzieć.", user.Mention),
		Actions: []platform.Action{
			{Kind: platform.ActionClaim, Target: channel.ID, Label: "Climb", Style: platform.StyleSuccess},
			{Kind: platform.ActionReject, Target: channel.ID, Label: "Odrzuć", Style: platform.StyleDanger},
		},
	}
	if err := s.channels.SendMessage(ctx, channel.ID, opening); err != nil {
		log.Warn("failed to post ticket opening message", zap.Error(err))
	}

	if !s.watchdog.Watch(ticket, s.CloseInactive) {
		log.Debug("ticket left OPEN before its watchdog started")
	}

	event := events.ForTicket(events.EventTicketOpened, ticket)
	event.Actor = events.ActorFrom(user)
	event.Payload = events.TicketOpenedPayload{ChannelName: channel.Name, GuildID: guild.ID}
	s.publishEvent(ctx, event)
	log.Info("ticket opened")
	return ticket, nil
}

// Claim announces that staff took over the ticket living in channelID.
func (s *TicketService) Claim(ctx context.Context, staff domain.Actor, guildID, channelID string) error {
	if err := s.gate.Require(ctx, guildID, staff.ID); err != nil {
		return err
	}
	ticket, err := s.ticketForChannel(channelID)
	if err != nil {
		return err
	}
	if ticket.State != domain.TicketStateOpen {
		return apperrors.NewNotOpen("Ticket jest już zamknięty.", map[string]any{"channel_id": channelID})
	}
	if err := s.channels.SendMessage(ctx, channelID, platform.Text(fmt.Sprintf("%s przejął ticket.", staff.Mention))); err != nil {
		return apperrors.NewPlatformTransient(msgPlatformFailure, err)
	}

	event := events.ForTicket(events.EventTicketClaimed, ticket)
	event.Actor = events.ActorFrom(staff)
	s.publishEvent(ctx, event)
	return nil
}

// Reject closes the ticket living in channelID on behalf of staff. It reports false
// when the ticket was already closing, which makes repeated rejects harmless.
func (s *TicketService) Reject(ctx context.Context, staff domain.Actor, guildID, channelID string) (bool, error) {
	if err := s.gate.Require(ctx, guildID, staff.ID); err != nil {
		return false, err
	}
	ticket, err := s.ticketForChannel(channelID)
	if err != nil {
		return false, err
	}
	closing, err := s.registry.MarkClosing(ticket.Owner, s.cfg.ClosureDelay, domain.CloseReasonStaffReject)
	if apperrors.HasCode(err, apperrors.CodeNotOpen) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	notice := fmt.Sprintf("Ticket zamknięty przez %s. Kanał zostanie usunięty za %s.", staff.Mention, humanDelay(s.cfg.ClosureDelay))
	s.announceClosure(ctx, ticket, closing, &staff, notice)
	return true, nil
}

// CloseInactive is the watchdog's closure path. It reports whether this call closed
// the ticket; a ticket touched after the watchdog looked at it stays open.
func (s *TicketService) CloseInactive(ctx context.Context, ticket domain.Ticket) bool {
	closing, err := s.registry.MarkIdleClosing(ticket.Owner, s.cfg.InactivityTimeout, s.cfg.ClosureDelay)
	switch {
	case errors.Is(err, repository.ErrStillActive):
		s.logger.Debug("inactivity closure skipped, ticket active again", zap.String("owner", ticket.Owner))
		return false
	case apperrors.HasCode(err, apperrors.CodeNotOpen):
		s.logger.Debug("inactivity closure skipped, ticket already closing", zap.String("owner", ticket.Owner))
		return false
	case err != nil:
		s.logger.Error("inactivity closure failed", zap.String("owner", ticket.Owner), zap.Error(err))
		return false
	}
	s.announceClosure(ctx, ticket, closing, nil, "Ticket zostanie zamknięty z powodu braku odpowiedzi.")
	return true
}

// Active returns a display snapshot of the registry.
func (s *TicketService) Active() []domain.Ticket {
	return s.registry.Snapshot()
}

// announceClosure runs after the registry let this caller through the close-once
// transition: notice, deferred teardown, event.
func (s *TicketService) announceClosure(ctx context.Context, requested, closing domain.Ticket, actor *domain.Actor, notice string) {
	if closing.ID != requested.ID {
		s.logger.Warn("closed a newer ticket than requested",
			zap.String("owner", requested.Owner),
			zap.Int64("requested_ticket_id", requested.ID),
			zap.Int64("ticket_id", closing.ID))
	}

	log := s.logger.With(zap.String("owner", closing.Owner), zap.String("channel_id", closing.Channel.ID))
	if err := s.channels.SendMessage(ctx, closing.Channel.ID, platform.Text(notice)); err != nil {
		log.Warn("failed to post closure notice", zap.Error(err))
	}
	s.closures.Schedule(ctx, closing)

	event := events.ForTicket(events.EventTicketClosing, closing)
	if actor != nil {
		event.Actor = events.ActorFrom(*actor)
	}
	event.Payload = events.TicketClosingPayload{Reason: closing.CloseReason, Deadline: closing.CloseDeadline}
	s.publishEvent(ctx, event)
	log.Info("ticket closing", zap.String("reason", string(closing.CloseReason)), zap.Time("deadline", closing.CloseDeadline))
}

func (s *TicketService) ticketForChannel(channelID string) (domain.Ticket, error) {
	ticket, ok := s.registry.FindByChannel(channelID)
	if !ok {
		return domain.Ticket{}, apperrors.NewNotFound("Ten kanał nie jest aktywnym ticketem.", map[string]any{"channel_id": channelID})
	}
	return ticket, nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if err := events.Emit(ctx, s.dispatcher, s.clock.Now(), event); err != nil {
		s.logger.Debug("publish event", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func ticketChannelName(user domain.Actor) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(user.Name)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r), r == '.':
			b.WriteRune('-')
		}
	}
	name := strings.Trim(b.String(), "-")
	if name == "" {
		name = user.ID
	}
	const maxLen = 90
	if runes := []rune(name); len(runes) > maxLen {
		name = string(runes[:maxLen])
	}
	return "ticket-" + name
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
