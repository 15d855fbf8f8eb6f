// Package gateway turns chat platform events into ticket workflows.
package gateway

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/observability"
	"github.com/spec-kit/support-bot/internal/platform"
	"github.com/spec-kit/support-bot/internal/service"
	apperrors "github.com/spec-kit/support-bot/pkg/util/errorutil"
)

// ReplyFieldID identifies the text input of the reply form.
const ReplyFieldID = "reply-text"

// TicketActions is the part of the ticket service the gateway drives.
type TicketActions interface {
	PromptSelection(ctx context.Context, user domain.Actor) error
	Select(ctx context.Context, user domain.Actor, category domain.Category) (service.SelectionResult, error)
	Claim(ctx context.Context, staff domain.Actor, guildID, channelID string) error
	Reject(ctx context.Context, staff domain.Actor, guildID, channelID string) (bool, error)
}

// MessageRouter is the part of the router service the gateway drives.
type MessageRouter interface {
	HandleDirectMessage(ctx context.Context, msg domain.InboundMessage) (bool, error)
	Reply(ctx context.Context, staff domain.Actor, owner, text string) error
	TrackChannelActivity(ctx context.Context, msg domain.InboundMessage) bool
}

// Modal is a one-field form shown to the user.
type Modal struct {
	ID          string
	Title       string
	FieldID     string
	Label       string
	Placeholder string
	MaxLength   int
}

// Response tells the session how to answer an interaction.
type Response struct {
	Message   platform.Message
	Ephemeral bool
	// Acknowledge answers without posting anything.
	Acknowledge bool
	// DeleteSource removes the message carrying the component.
	DeleteSource bool
	Modal        *Modal
}

// ComponentInteraction is a button press or menu choice.
type ComponentInteraction struct {
	Actor     domain.Actor
	GuildID   string
	ChannelID string
	CustomID  string
	Values    []string
}

// ModalSubmission is a submitted form.
type ModalSubmission struct {
	Actor    domain.Actor
	CustomID string
	Fields   map[string]string
}

// Handler maps interactions onto services. It holds no platform state.
type Handler struct {
	tickets        TicketActions
	router         MessageRouter
	metrics        *observability.Metrics
	logger         *zap.Logger
	maxReplyLength int
}

// HandlerDependencies bundles handler collaborators.
type HandlerDependencies struct {
	Tickets        TicketActions
	Router         MessageRouter
	Metrics        *observability.Metrics
	Logger         *zap.Logger
	MaxReplyLength int
}

// NewHandler builds a handler.
func NewHandler(deps HandlerDependencies) *Handler {
	maxLen := deps.MaxReplyLength
	if maxLen <= 0 {
		maxLen = 1000
	}
	return &Handler{
		tickets:        deps.Tickets,
		router:         deps.Router,
		metrics:        deps.Metrics,
		logger:         deps.Logger,
		maxReplyLength: maxLen,
	}
}

// TicketInfo answers the /ticket-info command.
func (h *Handler) TicketInfo() Response {
	return Response{Message: platform.Message{
		Embed: &platform.Embed{
			Title:       "📩 System Ticketów i Pomocy",
			Description: "Kliknij **HELP** poniżej, aby rozpocząć.\n\nPo kliknięciu bot wyśle Ci prywatną wiadomość z listą problemów.",
			Color:       platform.ColorBlue,
		},
		Actions: []platform.Action{{Kind: platform.ActionHelp, Label: "HELP", Style: platform.StyleDanger}},
	}}
}

// Component dispatches a button press or a menu choice.
func (h *Handler) Component(ctx context.Context, in ComponentInteraction) Response {
	kind, target, ok := platform.DecodeAction(in.CustomID)
	if !ok {
		h.logger.Debug("unknown component", zap.String("custom_id", in.CustomID))
		return h.failure("component", apperrors.NewValidationError("Nieznana akcja.", nil))
	}

	switch kind {
	case platform.ActionHelp:
		if err := h.tickets.PromptSelection(ctx, in.Actor); err != nil {
			return h.failure(string(kind), err)
		}
		return ephemeral("Sprawdź swoją prywatną wiadomość!")

	case platform.ActionSelect:
		return h.selectCategory(ctx, in)

	case platform.ActionClaim:
		if err := h.tickets.Claim(ctx, in.Actor, in.GuildID, target); err != nil {
			return h.failure(string(kind), err)
		}
		return Response{Acknowledge: true}

	case platform.ActionReject:
		closed, err := h.tickets.Reject(ctx, in.Actor, in.GuildID, target)
		if err != nil {
			return h.failure(string(kind), err)
		}
		if !closed {
			return ephemeral("Ticket jest już zamykany.")
		}
		return Response{Acknowledge: true}

	case platform.ActionReply:
		return Response{Modal: &Modal{
			ID:        platform.EncodeAction(platform.ActionReplyModal, target),
			Title:     "Odpowiedź dla użytkownika",
			FieldID:   ReplyFieldID,
			Label:     "Twoja odpowiedź",
			MaxLength: h.maxReplyLength,
		}}
	}
	return h.failure(string(kind), apperrors.NewValidationError("Nieznana akcja.", nil))
}

// ModalSubmit handles a submitted reply form.
func (h *Handler) ModalSubmit(ctx context.Context, in ModalSubmission) Response {
	kind, owner, ok := platform.DecodeAction(in.CustomID)
	if !ok || kind != platform.ActionReplyModal {
		return h.failure("modal", apperrors.NewValidationError("Nieznany formularz.", nil))
	}
	if err := h.router.Reply(ctx, in.Actor, owner, in.Fields[ReplyFieldID]); err != nil {
		return h.failure(string(kind), err)
	}
	return ephemeral("Odpowiedź została wysłana.")
}

// Message routes a newly created message.
func (h *Handler) Message(ctx context.Context, msg domain.InboundMessage) {
	if msg.IsBot {
		return
	}
	if !msg.IsDirect {
		h.router.TrackChannelActivity(ctx, msg)
		return
	}
	if _, err := h.router.HandleDirectMessage(ctx, msg); err != nil {
		h.countError("direct_message", err)
		h.logger.Warn("direct message not forwarded", zap.String("owner", msg.Author.ID), zap.Error(err))
	}
}

// MessageEdited refreshes ticket activity on edits.
func (h *Handler) MessageEdited(ctx context.Context, msg domain.InboundMessage) {
	if msg.IsBot || msg.IsDirect {
		return
	}
	msg.Edited = true
	h.router.TrackChannelActivity(ctx, msg)
}

func (h *Handler) selectCategory(ctx context.Context, in ComponentInteraction) Response {
	if len(in.Values) == 0 {
		return h.failure("select", apperrors.NewValidationError("Nie wybrano problemu.", nil))
	}
	category, ok := domain.ParseCategory(in.Values[0])
	if !ok {
		return h.failure("select", apperrors.NewValidationError("Nieznany problem.", map[string]any{"value": in.Values[0]}))
	}

	result, err := h.tickets.Select(ctx, in.Actor, category)
	if err != nil {
		resp := h.failure("select", err)
		if de := apperrors.ToDomainError(err); de.Code == apperrors.CodeAlreadyOpen {
			if channelID, _ := de.Details["channel_id"].(string); channelID != "" {
				resp.Message.Content = fmt.Sprintf("%s <#%s>", de.Message, channelID)
			}
		}
		resp.DeleteSource = true
		return resp
	}

	resp := Response{Ephemeral: true, DeleteSource: true}
	switch {
	case result.Ticket != nil:
		resp.Message = platform.Text(fmt.Sprintf("Ticket został utworzony: <#%s>", result.Ticket.Channel.ID))
	case result.Pending != nil:
		resp.Message = platform.Text(fmt.Sprintf("Wybrałeś: **%s**.\nNapisz teraz wiadomość w tej prywatnej wiadomości.", result.Pending.Category))
	}
	return resp
}

func (h *Handler) failure(source string, err error) Response {
	de := h.countError(source, err)
	if de.HTTPStatus >= 500 {
		h.logger.Error("interaction failed", zap.String("source", source), zap.Error(err))
	} else {
		h.logger.Debug("interaction rejected", zap.String("source", source), zap.String("code", de.Code))
	}
	return ephemeral(de.Message)
}

func (h *Handler) countError(source string, err error) *apperrors.DomainError {
	de := apperrors.ToDomainError(err)
	h.metrics.RecordError(source, de.Code)
	return de
}

func ephemeral(text string) Response {
	return Response{Message: platform.Text(strings.TrimSpace(text)), Ephemeral: true}
}
