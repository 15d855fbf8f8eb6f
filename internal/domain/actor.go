package domain

import "time"

// Actor is a chat platform user that triggered an event.
type Actor struct {
	ID        string
	Name      string
	Mention   string
	AvatarURL string
}

// InboundMessage is a message observed on the chat platform.
type InboundMessage struct {
	ID        string
	Author    Actor
	ChannelID string
	Content   string
	IsBot     bool
	IsDirect  bool
	Edited    bool
	Timestamp time.Time
}
