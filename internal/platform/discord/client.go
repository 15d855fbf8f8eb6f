// Package discord implements the platform interfaces on top of discordgo.
package discord

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/platform"
)

const channelPermissions = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionReadMessageHistory

// Client adapts a discordgo session.
type Client struct {
	session *discordgo.Session
	logger  *zap.Logger
}

var (
	_ platform.ChannelProvider = (*Client)(nil)
	_ platform.DirectMessenger = (*Client)(nil)
	_ platform.IdentitySource  = (*Client)(nil)
)

// NewClient wraps session.
func NewClient(session *discordgo.Session, logger *zap.Logger) *Client {
	return &Client{session: session, logger: logger}
}

// CreateChannel creates a text channel with the requested overwrites.
func (c *Client) CreateChannel(ctx context.Context, spec platform.ChannelSpec) (platform.Channel, error) {
	overwrites := make([]*discordgo.PermissionOverwrite, 0, len(spec.Access))
	for _, rule := range spec.Access {
		if rule.SubjectID == "" {
			continue
		}
		ow := &discordgo.PermissionOverwrite{ID: rule.SubjectID, Type: discordgo.PermissionOverwriteTypeRole}
		if rule.Subject == platform.AccessMember {
			ow.Type = discordgo.PermissionOverwriteTypeMember
		}
		if rule.Allow {
			ow.Allow = channelPermissions
		} else {
			ow.Deny = discordgo.PermissionViewChannel
		}
		overwrites = append(overwrites, ow)
	}

	ch, err := c.session.GuildChannelCreateComplex(spec.GuildID, discordgo.GuildChannelCreateData{
		Name:                 spec.Name,
		Type:                 discordgo.ChannelTypeGuildText,
		ParentID:             spec.ParentID,
		PermissionOverwrites: overwrites,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return platform.Channel{}, mapError("create channel", err)
	}
	return toChannel(ch), nil
}

// DeleteChannel removes a channel.
func (c *Client) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := c.session.ChannelDelete(channelID, discordgo.WithContext(ctx))
	return mapError("delete channel", err)
}

// SendMessage posts msg into channelID.
func (c *Client) SendMessage(ctx context.Context, channelID string, msg platform.Message) error {
	_, err := c.session.ChannelMessageSendComplex(channelID, RenderMessage(msg), discordgo.WithContext(ctx))
	return mapError("send message", err)
}

// ResolveChannel looks a channel up in the gateway cache first.
func (c *Client) ResolveChannel(ctx context.Context, channelID string) (platform.Channel, error) {
	if channelID == "" {
		return platform.Channel{}, platform.ErrNotFound
	}
	if c.session.State != nil {
		if ch, err := c.session.State.Channel(channelID); err == nil {
			return toChannel(ch), nil
		}
	}
	ch, err := c.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return platform.Channel{}, mapError("resolve channel", err)
	}
	return toChannel(ch), nil
}

// SendDM opens (or reuses) the private channel of userID and posts msg there.
func (c *Client) SendDM(ctx context.Context, userID string, msg platform.Message) error {
	dm, err := c.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return mapError("open dm", err)
	}
	_, err = c.session.ChannelMessageSendComplex(dm.ID, RenderMessage(msg), discordgo.WithContext(ctx))
	return mapError("send dm", err)
}

// HasRole reports whether userID holds roleID in guildID.
func (c *Client) HasRole(ctx context.Context, guildID, userID, roleID string) (bool, error) {
	member, err := c.member(ctx, guildID, userID)
	if err != nil {
		return false, err
	}
	for _, r := range member.Roles {
		if r == roleID {
			return true, nil
		}
	}
	return false, nil
}

// ResolveGuildForUser returns the first guild the bot shares with userID.
func (c *Client) ResolveGuildForUser(ctx context.Context, userID string) (platform.Guild, error) {
	if c.session.State == nil {
		return platform.Guild{}, platform.ErrNotFound
	}
	c.session.State.RLock()
	guilds := make([]*discordgo.Guild, len(c.session.State.Guilds))
	copy(guilds, c.session.State.Guilds)
	c.session.State.RUnlock()

	return c.scanGuilds(guilds, func(guildID string) error {
		_, err := c.member(ctx, guildID, userID)
		return err
	})
}

// scanGuilds returns the first guild for which isMember succeeds. A failed lookup in
// one guild does not hide a match in a later one; the first such failure is returned
// only when nothing matched.
func (c *Client) scanGuilds(guilds []*discordgo.Guild, isMember func(guildID string) error) (platform.Guild, error) {
	var firstErr error
	for _, g := range guilds {
		err := isMember(g.ID)
		if errors.Is(err, platform.ErrNotFound) {
			continue
		}
		if err != nil {
			c.logger.Warn("guild member lookup failed", zap.String("guild_id", g.ID), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		// The @everyone role shares the guild's id.
		return platform.Guild{ID: g.ID, Name: g.Name, EveryoneRoleID: g.ID}, nil
	}
	if firstErr != nil {
		return platform.Guild{}, firstErr
	}
	return platform.Guild{}, platform.ErrNotFound
}

func (c *Client) member(ctx context.Context, guildID, userID string) (*discordgo.Member, error) {
	if c.session.State != nil {
		if m, err := c.session.State.Member(guildID, userID); err == nil {
			return m, nil
		}
	}
	m, err := c.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError("guild member", err)
	}
	return m, nil
}

func toChannel(ch *discordgo.Channel) platform.Channel {
	return platform.Channel{ID: ch.ID, GuildID: ch.GuildID, ParentID: ch.ParentID, Name: ch.Name}
}
