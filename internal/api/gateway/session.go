package gateway

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/config"
	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/platform"
	"github.com/spec-kit/support-bot/internal/platform/discord"
	apperrors "github.com/spec-kit/support-bot/pkg/util/errorutil"
)

const (
	commandTicketInfo = "ticket-info"
	handlerTimeout    = 15 * time.Second
)

// Intents needed by the gateway: guild membership for role checks, message
// content for forwarding, and direct messages.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsMessageContent

// Commands lists the slash commands the bot registers.
func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{Name: commandTicketInfo, Description: "Informacje o systemie ticketów"},
	}
}

// Gateway binds a discordgo session to the handler.
type Gateway struct {
	session *discordgo.Session
	handler *Handler
	cfg     config.DiscordConfig
	logger  *zap.Logger

	ctx       context.Context
	connected atomic.Bool
	removers  []func()
}

// New creates the gateway. Nothing is connected until Start.
func New(session *discordgo.Session, handler *Handler, cfg config.DiscordConfig, logger *zap.Logger) *Gateway {
	return &Gateway{session: session, handler: handler, cfg: cfg, logger: logger, ctx: context.Background()}
}

// Start registers event handlers and opens the websocket. Handlers derive their
// contexts from ctx.
func (g *Gateway) Start(ctx context.Context) error {
	g.ctx = ctx
	g.session.Identify.Intents = Intents
	g.removers = append(g.removers,
		g.session.AddHandler(g.onReady),
		g.session.AddHandler(g.onDisconnect),
		g.session.AddHandler(g.onInteraction),
		g.session.AddHandler(g.onMessageCreate),
		g.session.AddHandler(g.onMessageUpdate),
	)
	if err := g.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	return nil
}

// Close detaches the handlers and closes the websocket.
func (g *Gateway) Close() error {
	for _, remove := range g.removers {
		remove()
	}
	g.removers = nil
	g.connected.Store(false)
	return g.session.Close()
}

// Connected reports whether the websocket session is ready.
func (g *Gateway) Connected() bool {
	return g.connected.Load()
}

func (g *Gateway) onReady(s *discordgo.Session, r *discordgo.Ready) {
	g.connected.Store(true)
	g.logger.Info("discord session ready", zap.String("user", r.User.String()), zap.Int("guilds", len(r.Guilds)))

	appID := g.cfg.ApplicationID
	if appID == "" {
		appID = r.User.ID
	}
	synced, err := s.ApplicationCommandBulkOverwrite(appID, g.cfg.CommandGuildID, Commands())
	if err != nil {
		g.logger.Error("slash command sync failed", zap.Error(err))
		return
	}
	g.logger.Info("slash commands synced", zap.Int("count", len(synced)))
}

func (g *Gateway) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	g.connected.Store(false)
	g.logger.Warn("discord session disconnected")
}

func (g *Gateway) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	defer g.recoverInteraction(s, i)

	ctx, cancel := context.WithTimeout(g.ctx, handlerTimeout)
	defer cancel()

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		if i.ApplicationCommandData().Name == commandTicketInfo {
			g.respond(s, i, g.handler.TicketInfo())
		}

	case discordgo.InteractionMessageComponent:
		data := i.MessageComponentData()
		in := ComponentInteraction{
			Actor:     interactionActor(i),
			GuildID:   i.GuildID,
			ChannelID: i.ChannelID,
			CustomID:  data.CustomID,
			Values:    data.Values,
		}
		if kind, _, _ := platform.DecodeAction(data.CustomID); kind == platform.ActionSelect {
			// Opening a ticket can take longer than the interaction deadline.
			g.deferred(s, i, func() Response { return g.handler.Component(ctx, in) })
			return
		}
		g.respond(s, i, g.handler.Component(ctx, in))

	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		g.respond(s, i, g.handler.ModalSubmit(ctx, ModalSubmission{
			Actor:    interactionActor(i),
			CustomID: data.CustomID,
			Fields:   modalFields(data.Components),
		}))
	}
}

func (g *Gateway) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	defer g.recoverEvent("message_create")
	if m.Author == nil {
		return
	}
	ctx, cancel := context.WithTimeout(g.ctx, handlerTimeout)
	defer cancel()
	g.handler.Message(ctx, inboundMessage(m.Message))
}

func (g *Gateway) onMessageUpdate(s *discordgo.Session, m *discordgo.MessageUpdate) {
	defer g.recoverEvent("message_update")
	// Embed unfurls arrive as updates without an author.
	if m.Message == nil || m.Author == nil {
		return
	}
	ctx, cancel := context.WithTimeout(g.ctx, handlerTimeout)
	defer cancel()
	g.handler.MessageEdited(ctx, inboundMessage(m.Message))
}

func (g *Gateway) respond(s *discordgo.Session, i *discordgo.InteractionCreate, resp Response) {
	var out *discordgo.InteractionResponse
	switch {
	case resp.Modal != nil:
		out = &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseModal,
			Data: &discordgo.InteractionResponseData{
				CustomID: resp.Modal.ID,
				Title:    resp.Modal.Title,
				Components: []discordgo.MessageComponent{
					discordgo.ActionsRow{Components: []discordgo.MessageComponent{
						discordgo.TextInput{
							CustomID:    resp.Modal.FieldID,
							Label:       resp.Modal.Label,
							Style:       discordgo.TextInputParagraph,
							Placeholder: resp.Modal.Placeholder,
							Required:    true,
							MaxLength:   resp.Modal.MaxLength,
						},
					}},
				},
			},
		}
	case resp.Acknowledge:
		out = &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredMessageUpdate}
	default:
		data := &discordgo.InteractionResponseData{
			Content:    resp.Message.Content,
			Embeds:     discord.RenderEmbeds(resp.Message),
			Components: discord.RenderComponents(resp.Message),
		}
		if resp.Ephemeral {
			data.Flags = discordgo.MessageFlagsEphemeral
		}
		out = &discordgo.InteractionResponse{Type: discordgo.InteractionResponseChannelMessageWithSource, Data: data}
	}

	if err := s.InteractionRespond(i.Interaction, out); err != nil {
		g.logger.Warn("interaction response failed", zap.String("interaction_id", i.ID), zap.Error(err))
	}
	if resp.DeleteSource {
		g.deleteSource(s, i)
	}
}

func (g *Gateway) deferred(s *discordgo.Session, i *discordgo.InteractionCreate, run func() Response) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		g.logger.Warn("interaction deferral failed", zap.String("interaction_id", i.ID), zap.Error(err))
		return
	}

	resp := run()
	content := resp.Message.Content
	embeds := discord.RenderEmbeds(resp.Message)
	edit := &discordgo.WebhookEdit{Content: &content}
	if len(embeds) > 0 {
		edit.Embeds = &embeds
	}
	if _, err := s.InteractionResponseEdit(i.Interaction, edit); err != nil {
		g.logger.Warn("interaction follow-up failed", zap.String("interaction_id", i.ID), zap.Error(err))
	}
	if resp.DeleteSource {
		g.deleteSource(s, i)
	}
}

func (g *Gateway) deleteSource(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Message == nil {
		return
	}
	if err := s.ChannelMessageDelete(i.ChannelID, i.Message.ID); err != nil {
		g.logger.Debug("source message not deleted", zap.String("message_id", i.Message.ID), zap.Error(err))
	}
}

func (g *Gateway) recoverInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	r := recover()
	if r == nil {
		return
	}
	g.logger.Error("panic in interaction handler", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
	msg := apperrors.ToDomainError(apperrors.NewInternalError(nil)).Message
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: msg, Flags: discordgo.MessageFlagsEphemeral},
	})
}

func (g *Gateway) recoverEvent(event string) {
	if r := recover(); r != nil {
		g.logger.Error("panic in event handler", zap.String("event", event), zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
	}
}

func interactionActor(i *discordgo.InteractionCreate) domain.Actor {
	user := i.User
	if i.Member != nil && i.Member.User != nil {
		user = i.Member.User
	}
	if user == nil {
		return domain.Actor{}
	}
	return userActor(user)
}

func userActor(u *discordgo.User) domain.Actor {
	return domain.Actor{
		ID:        u.ID,
		Name:      u.Username,
		Mention:   u.Mention(),
		AvatarURL: u.AvatarURL(""),
	}
}

func inboundMessage(m *discordgo.Message) domain.InboundMessage {
	return domain.InboundMessage{
		ID:        m.ID,
		Author:    userActor(m.Author),
		ChannelID: m.ChannelID,
		Content:   m.Content,
		IsBot:     m.Author.Bot,
		IsDirect:  m.GuildID == "",
		Edited:    m.EditedTimestamp != nil,
		Timestamp: m.Timestamp,
	}
}

func modalFields(rows []discordgo.MessageComponent) map[string]string {
	fields := map[string]string{}
	for _, row := range rows {
		actions, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, c := range actions.Components {
			if input, ok := c.(*discordgo.TextInput); ok {
				fields[input.CustomID] = input.Value
			}
		}
	}
	return fields
}
