package gateway_test

import (
	"context"

	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/service"
)

type mockTickets struct {
	promptFn func(ctx context.Context, user domain.Actor) error
	selectFn func(ctx context.Context, user domain.Actor, category domain.Category) (service.SelectionResult, error)
	claimFn  func(ctx context.Context, staff domain.Actor, guildID, channelID string) error
	rejectFn func(ctx context.Context, staff domain.Actor, guildID, channelID string) (bool, error)
}

func (m *mockTickets) PromptSelection(ctx context.Context, user domain.Actor) error {
	if m.promptFn != nil {
		return m.promptFn(ctx, user)
	}
	return nil
}

func (m *mockTickets) Select(ctx context.Context, user domain.Actor, category domain.Category) (service.SelectionResult, error) {
	if m.selectFn != nil {
		return m.selectFn(ctx, user, category)
	}
	return service.SelectionResult{}, nil
}

func (m *mockTickets) Claim(ctx context.Context, staff domain.Actor, guildID, channelID string) error {
	if m.claimFn != nil {
		return m.claimFn(ctx, staff, guildID, channelID)
	}
	return nil
}

func (m *mockTickets) Reject(ctx context.Context, staff domain.Actor, guildID, channelID string) (bool, error) {
	if m.rejectFn != nil {
		return m.rejectFn(ctx, staff, guildID, channelID)
	}
	return true, nil
}

type mockRouter struct {
	directFn func(ctx context.Context, msg domain.InboundMessage) (bool, error)
	replyFn  func(ctx context.Context, staff domain.Actor, owner, text string) error
	tracked  []domain.InboundMessage
	direct   []domain.InboundMessage
}

func (m *mockRouter) HandleDirectMessage(ctx context.Context, msg domain.InboundMessage) (bool, error) {
	m.direct = append(m.direct, msg)
	if m.directFn != nil {
		return m.directFn(ctx, msg)
	}
	return false, nil
}

func (m *mockRouter) Reply(ctx context.Context, staff domain.Actor, owner, text string) error {
	if m.replyFn != nil {
		return m.replyFn(ctx, staff, owner, text)
	}
	return nil
}

func (m *mockRouter) TrackChannelActivity(_ context.Context, msg domain.InboundMessage) bool {
	m.tracked = append(m.tracked, msg)
	return true
}
