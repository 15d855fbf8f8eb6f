package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/events"
	"github.com/spec-kit/support-bot/internal/platform"
	"github.com/spec-kit/support-bot/internal/repository"
	apperrors "github.com/spec-kit/support-bot/pkg/util/errorutil"
)

// RouterService moves messages between users and the staff channel.
type RouterService struct {
	registry   repository.TicketRegistry
	selections repository.SelectionTable
	channels   platform.ChannelProvider
	messenger  platform.DirectMessenger
	dispatcher events.Dispatcher
	clock      clockwork.Clock
	logger     *zap.Logger
	cfg        RouterConfig
}

// RouterDependencies bundles collaborators for the router.
type RouterDependencies struct {
	Registry   repository.TicketRegistry
	Selections repository.SelectionTable
	Channels   platform.ChannelProvider
	Messenger  platform.DirectMessenger
	Dispatcher events.Dispatcher
	Clock      clockwork.Clock
	Logger     *zap.Logger
}

// RouterConfig names the staff channel and bounds replies.
type RouterConfig struct {
	StaffChannelID string
	MaxReplyLength int
}

// NewRouterService constructs the router.
func NewRouterService(deps RouterDependencies, cfg RouterConfig) *RouterService {
	if cfg.MaxReplyLength <= 0 {
		cfg.MaxReplyLength = 1000
	}
	return &RouterService{
		registry:   deps.Registry,
		selections: deps.Selections,
		channels:   deps.Channels,
		messenger:  deps.Messenger,
		dispatcher: deps.Dispatcher,
		clock:      deps.Clock,
		logger:     deps.Logger,
		cfg:        cfg,
	}
}

// HandleDirectMessage forwards a private message to staff when its author has a
// pending selection. It reports whether a forward was delivered.
func (r *RouterService) HandleDirectMessage(ctx context.Context, msg domain.InboundMessage) (bool, error) {
	if msg.IsBot || !msg.IsDirect {
		return false, nil
	}
	owner := msg.Author.ID
	r.registry.Touch(owner)

	sel, ok := r.selections.Take(owner)
	if !ok {
		return false, nil
	}
	log := r.logger.With(zap.String("owner", owner), zap.String("category", string(sel.Category)))

	staffChannel, err := r.channels.ResolveChannel(ctx, r.cfg.StaffChannelID)
	if err != nil {
		r.notifySender(ctx, owner, platform.Text("Błąd: nie znaleziono kanału administracyjnego."))
		log.Error("staff channel unavailable", zap.String("channel_id", r.cfg.StaffChannelID), zap.Error(err))
		return false, apperrors.NewConfigurationError("Błąd: nie znaleziono kanału administracyjnego.", map[string]any{
			"channel_id": r.cfg.StaffChannelID,
		})
	}

	timestamp := msg.Timestamp
	if timestamp.IsZero() {
		timestamp = r.clock.Now()
	}
	body := strings.TrimSpace(msg.Content)
	if body == "" {
		body = "(brak treści)"
	}
	forward := platform.Message{
		Embed: &platform.Embed{
			Title:         fmt.Sprintf("💬 Nowa wiadomość: %s", sel.Category),
			Description:   body,
			Color:         platform.ColorOrange,
			Timestamp:     timestamp,
			AuthorName:    msg.Author.Name,
			AuthorIconURL: msg.Author.AvatarURL,
			Footer:        fmt.Sprintf("ID: %s", owner),
		},
		Actions: []platform.Action{
			{Kind: platform.ActionReply, Target: owner, Label: "Odpowiedz", Style: platform.StylePrimary},
		},
	}
	if err := r.channels.SendMessage(ctx, staffChannel.ID, forward); err != nil {
		r.notifySender(ctx, owner, platform.Text("Nie udało się przesłać wiadomości do administracji. Spróbuj ponownie później."))
		return false, apperrors.NewPlatformTransient(msgPlatformFailure, err)
	}

	r.notifySender(ctx, owner, platform.Message{Embed: &platform.Embed{
		Description: "✅ Twoja wiadomość została przesłana do administracji.",
		Color:       platform.ColorGreen,
	}})

	r.publishEvent(ctx, events.Event{
		Type:      events.EventMessageForwarded,
		Owner:     owner,
		ChannelID: staffChannel.ID,
		Actor:     events.ActorFrom(msg.Author),
		Payload: events.MessageForwardedPayload{
			Category:    sel.Category,
			BodyPreview: stringPreview(body, 120),
		},
	})
	log.Info("message forwarded to staff")
	return true, nil
}

// Reply delivers a staff answer privately to owner. Failures are returned to the
// staff member and not retried.
func (r *RouterService) Reply(ctx context.Context, staff domain.Actor, owner, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return apperrors.NewValidationError("Odpowiedź nie może być pusta.", nil)
	}
	if n := utf8.RuneCountInString(text); n > r.cfg.MaxReplyLength {
		return apperrors.NewValidationError(
			fmt.Sprintf("Odpowiedź może mieć maksymalnie %d znaków.", r.cfg.MaxReplyLength),
			map[string]any{"length": n},
		)
	}
	if owner == "" {
		return apperrors.NewNotFound(msgUserNotFound, nil)
	}

	reply := platform.Message{Embed: &platform.Embed{
		Title:       "💬 Odpowiedź od administracji",
		Description: text,
		Color:       platform.ColorBlue,
		Timestamp:   r.clock.Now(),
		Footer:      fmt.Sprintf("Odpowiedź od: %s", staff.Name),
	}}
	sendErr := directMessageError(r.messenger.SendDM(ctx, owner, reply), msgUserDMBlocked)

	payload := events.StaffRepliedPayload{Delivered: sendErr == nil, BodyPreview: stringPreview(text, 120)}
	if sendErr != nil {
		payload.Reason = apperrors.ToDomainError(sendErr).Code
	}
	r.publishEvent(ctx, events.Event{
		Type:    events.EventStaffReplied,
		Owner:   owner,
		Actor:   events.ActorFrom(staff),
		Payload: payload,
	})

	if sendErr != nil {
		r.logger.Info("staff reply not delivered", zap.String("owner", owner), zap.String("staff_id", staff.ID), zap.Error(sendErr))
		return sendErr
	}
	return nil
}

// TrackChannelActivity refreshes a ticket when something happens in its channel:
// any edit, or a new message written by the owner.
func (r *RouterService) TrackChannelActivity(ctx context.Context, msg domain.InboundMessage) bool {
	if msg.IsBot || msg.IsDirect {
		return false
	}
	ticket, ok := r.registry.FindByChannel(msg.ChannelID)
	if !ok {
		return false
	}
	if !msg.Edited && msg.Author.ID != ticket.Owner {
		return false
	}
	return r.registry.Touch(ticket.Owner)
}

func (r *RouterService) notifySender(ctx context.Context, userID string, msg platform.Message) {
	if err := r.messenger.SendDM(ctx, userID, msg); err != nil {
		level := r.logger.Warn
		if errors.Is(err, platform.ErrUnreachable) {
			level = r.logger.Debug
		}
		level("failed to notify sender", zap.String("owner", userID), zap.Error(err))
	}
}

func (r *RouterService) publishEvent(ctx context.Context, event events.Event) {
	if err := events.Emit(ctx, r.dispatcher, r.clock.Now(), event); err != nil {
		r.logger.Debug("publish event", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}
