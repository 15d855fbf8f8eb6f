// Package platform describes what the ticket core needs from the chat platform.
package platform

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound means the guild, channel or user does not exist or is not visible.
	ErrNotFound = errors.New("platform: not found")
	// ErrUnreachable means the recipient does not accept private messages from the bot.
	ErrUnreachable = errors.New("platform: recipient unreachable")
	// ErrForbidden means the bot lacks the permission for the call.
	ErrForbidden = errors.New("platform: forbidden")
)

// Guild is the community a user belongs to.
type Guild struct {
	ID             string
	Name           string
	EveryoneRoleID string
}

// Channel is a text channel handle.
type Channel struct {
	ID       string
	GuildID  string
	ParentID string
	Name     string
}

// AccessSubject tells whether an access rule targets a role or a member.
type AccessSubject int

const (
	AccessRole AccessSubject = iota
	AccessMember
)

// AccessRule grants or denies reading and writing in a channel.
type AccessRule struct {
	SubjectID string
	Subject   AccessSubject
	Allow     bool
}

// ChannelSpec describes a channel to create.
type ChannelSpec struct {
	GuildID  string
	ParentID string
	Name     string
	Access   []AccessRule
}

// ChannelProvider creates, deletes and posts into channels.
type ChannelProvider interface {
	CreateChannel(ctx context.Context, spec ChannelSpec) (Channel, error)
	DeleteChannel(ctx context.Context, channelID string) error
	SendMessage(ctx context.Context, channelID string, msg Message) error
	ResolveChannel(ctx context.Context, channelID string) (Channel, error)
}

// DirectMessenger delivers private messages.
type DirectMessenger interface {
	SendDM(ctx context.Context, userID string, msg Message) error
}

// IdentitySource answers membership questions.
type IdentitySource interface {
	HasRole(ctx context.Context, guildID, userID, roleID string) (bool, error)
	ResolveGuildForUser(ctx context.Context, userID string) (Guild, error)
}

// Color values used by envelopes.
const (
	ColorBlue   = 0x3498db
	ColorOrange = 0xe67e22
	ColorGreen  = 0x2ecc71
	ColorRed    = 0xe74c3c
)

// Embed is a structured message card.
type Embed struct {
	Title         string
	Description   string
	Color         int
	Timestamp     time.Time
	AuthorName    string
	AuthorIconURL string
	Footer        string
}

// ActionStyle hints how an action should look.
type ActionStyle int

const (
	StylePrimary ActionStyle = iota
	StyleSuccess
	StyleDanger
)

// Action is a button attached to a message.
type Action struct {
	Kind   ActionKind
	Target string
	Label  string
	Style  ActionStyle
}

// SelectOption is one choice of a select menu.
type SelectOption struct {
	Label       string
	Value       string
	Description string
}

// Select is a single-choice menu attached to a message.
type Select struct {
	ID          string
	Placeholder string
	Options     []SelectOption
}

// Message is a platform-neutral outgoing message.
type Message struct {
	Content string
	Embed   *Embed
	Actions []Action
	Select  *Select
}

// Text builds a plain message.
func Text(content string) Message {
	return Message{Content: content}
}
