package gateway_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/api/gateway"
	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/observability"
	"github.com/spec-kit/support-bot/internal/platform"
	"github.com/spec-kit/support-bot/internal/service"
	apperrors "github.com/spec-kit/support-bot/pkg/util/errorutil"
)

var _ = Describe("Handler", func() {
	var (
		ctx     context.Context
		tickets *mockTickets
		router  *mockRouter
		handler *gateway.Handler

		alice = domain.Actor{ID: "alice", Name: "Alice", Mention: "<@alice>"}
		staff = domain.Actor{ID: "staff", Name: "Mod", Mention: "<@staff>"}
	)

	BeforeEach(func() {
		ctx = context.Background()
		tickets = &mockTickets{}
		router = &mockRouter{}
		handler = gateway.NewHandler(gateway.HandlerDependencies{
			Tickets:        tickets,
			Router:         router,
			Metrics:        observability.NewMetrics(),
			Logger:         zap.NewNop(),
			MaxReplyLength: 1000,
		})
	})

	It("should present the help card with its button", func() {
		resp := handler.TicketInfo()

		Expect(resp.Ephemeral).To(BeFalse())
		Expect(resp.Message.Embed.Title).To(Equal("📩 System Ticketów i Pomocy"))
		Expect(resp.Message.Actions).To(HaveLen(1))
		Expect(resp.Message.Actions[0].ID()).To(Equal("help"))
	})

	Describe("help button", func() {
		It("should point the user at their private messages", func() {
			resp := handler.Component(ctx, gateway.ComponentInteraction{Actor: alice, CustomID: "help"})

			Expect(resp.Ephemeral).To(BeTrue())
			Expect(resp.Message.Content).To(Equal("Sprawdź swoją prywatną wiadomość!"))
		})

		It("should explain when private messages are closed", func() {
			tickets.promptFn = func(context.Context, domain.Actor) error {
				return apperrors.NewUnreachable("Nie mogę wysłać Ci wiadomości prywatnej. Ustaw, aby bot mógł pisać do Ciebie DM.", nil)
			}

			resp := handler.Component(ctx, gateway.ComponentInteraction{Actor: alice, CustomID: "help"})
			Expect(resp.Ephemeral).To(BeTrue())
			Expect(resp.Message.Content).To(HavePrefix("Nie mogę wysłać Ci wiadomości prywatnej"))
		})
	})

	Describe("category menu", func() {
		It("should ask for a follow-up message after an informational choice", func() {
			tickets.selectFn = func(_ context.Context, _ domain.Actor, category domain.Category) (service.SelectionResult, error) {
				return service.SelectionResult{Pending: &domain.PendingSelection{Owner: "alice", Category: category}}, nil
			}

			resp := handler.Component(ctx, gateway.ComponentInteraction{
				Actor: alice, CustomID: "select", Values: []string{string(domain.CategoryGameProblem)},
			})
			Expect(resp.DeleteSource).To(BeTrue())
			Expect(resp.Message.Content).To(Equal("Wybrałeś: **Mam problem z grą**.\nNapisz teraz wiadomość w tej prywatnej wiadomości."))
		})

		It("should link the new ticket channel", func() {
			tickets.selectFn = func(context.Context, domain.Actor, domain.Category) (service.SelectionResult, error) {
				return service.SelectionResult{Ticket: &domain.Ticket{Channel: domain.ChannelRef{ID: "chan-9"}}}, nil
			}

			resp := handler.Component(ctx, gateway.ComponentInteraction{
				Actor: alice, CustomID: "select", Values: []string{string(domain.CategoryConnectStaff)},
			})
			Expect(resp.Message.Content).To(Equal("Ticket został utworzony: <#chan-9>"))
		})

		It("should link the existing ticket on a second request", func() {
			tickets.selectFn = func(context.Context, domain.Actor, domain.Category) (service.SelectionResult, error) {
				return service.SelectionResult{}, apperrors.NewAlreadyOpen("Masz już otwarty ticket.", map[string]any{"channel_id": "chan-1"})
			}

			resp := handler.Component(ctx, gateway.ComponentInteraction{
				Actor: alice, CustomID: "select", Values: []string{string(domain.CategoryConnectStaff)},
			})
			Expect(resp.Ephemeral).To(BeTrue())
			Expect(resp.Message.Content).To(Equal("Masz już otwarty ticket. <#chan-1>"))
		})

		It("should reject unknown categories", func() {
			resp := handler.Component(ctx, gateway.ComponentInteraction{Actor: alice, CustomID: "select", Values: []string{"???"}})
			Expect(resp.Message.Content).To(Equal("Nieznany problem."))
		})
	})

	Describe("staff buttons", func() {
		It("should acknowledge a claim silently", func() {
			var gotChannel string
			tickets.claimFn = func(_ context.Context, _ domain.Actor, guildID, channelID string) error {
				Expect(guildID).To(Equal("guild-1"))
				gotChannel = channelID
				return nil
			}

			resp := handler.Component(ctx, gateway.ComponentInteraction{Actor: staff, GuildID: "guild-1", CustomID: "claim:chan-1"})
			Expect(resp.Acknowledge).To(BeTrue())
			Expect(gotChannel).To(Equal("chan-1"))
		})

		It("should answer permission errors privately", func() {
			tickets.rejectFn = func(context.Context, domain.Actor, string, string) (bool, error) {
				return false, apperrors.NewPermissionDenied("Nie masz uprawnień.")
			}

			resp := handler.Component(ctx, gateway.ComponentInteraction{Actor: alice, GuildID: "guild-1", CustomID: "reject:chan-1"})
			Expect(resp.Ephemeral).To(BeTrue())
			Expect(resp.Message.Content).To(Equal("Nie masz uprawnień."))
		})

		It("should tell staff when the ticket is already closing", func() {
			tickets.rejectFn = func(context.Context, domain.Actor, string, string) (bool, error) { return false, nil }

			resp := handler.Component(ctx, gateway.ComponentInteraction{Actor: staff, GuildID: "guild-1", CustomID: "reject:chan-1"})
			Expect(resp.Message.Content).To(Equal("Ticket jest już zamykany."))
		})

		It("should open the reply form for the forwarded user", func() {
			resp := handler.Component(ctx, gateway.ComponentInteraction{Actor: staff, CustomID: "reply:alice"})

			Expect(resp.Modal).NotTo(BeNil())
			Expect(resp.Modal.ID).To(Equal(platform.EncodeAction(platform.ActionReplyModal, "alice")))
			Expect(resp.Modal.MaxLength).To(Equal(1000))
			Expect(resp.Modal.FieldID).To(Equal(gateway.ReplyFieldID))
		})

		It("should reject unknown components", func() {
			resp := handler.Component(ctx, gateway.ComponentInteraction{Actor: staff, CustomID: "mystery"})
			Expect(resp.Ephemeral).To(BeTrue())
		})
	})

	Describe("reply form", func() {
		It("should pass the text to the router", func() {
			var gotOwner, gotText string
			router.replyFn = func(_ context.Context, _ domain.Actor, owner, text string) error {
				gotOwner, gotText = owner, text
				return nil
			}

			resp := handler.ModalSubmit(ctx, gateway.ModalSubmission{
				Actor:    staff,
				CustomID: "reply-modal:alice",
				Fields:   map[string]string{gateway.ReplyFieldID: "Spróbuj ponownie."},
			})
			Expect(resp.Message.Content).To(Equal("Odpowiedź została wysłana."))
			Expect(gotOwner).To(Equal("alice"))
			Expect(gotText).To(Equal("Spróbuj ponownie."))
		})

		It("should report unreachable users to staff", func() {
			router.replyFn = func(context.Context, domain.Actor, string, string) error {
				return apperrors.NewUnreachable("Nie można wysłać wiadomości użytkownikowi (DM zablokowane).", nil)
			}

			resp := handler.ModalSubmit(ctx, gateway.ModalSubmission{Actor: staff, CustomID: "reply-modal:alice"})
			Expect(resp.Ephemeral).To(BeTrue())
			Expect(resp.Message.Content).To(Equal("Nie można wysłać wiadomości użytkownikowi (DM zablokowane)."))
		})
	})

	Describe("messages", func() {
		It("should route direct messages to the router", func() {
			handler.Message(ctx, domain.InboundMessage{Author: alice, IsDirect: true, Content: "hej"})
			Expect(router.direct).To(HaveLen(1))
			Expect(router.tracked).To(BeEmpty())
		})

		It("should track guild messages as channel activity", func() {
			handler.Message(ctx, domain.InboundMessage{Author: alice, ChannelID: "chan-1"})
			Expect(router.tracked).To(HaveLen(1))
			Expect(router.tracked[0].Edited).To(BeFalse())
		})

		It("should mark edits", func() {
			handler.MessageEdited(ctx, domain.InboundMessage{Author: staff, ChannelID: "chan-1"})
			Expect(router.tracked).To(HaveLen(1))
			Expect(router.tracked[0].Edited).To(BeTrue())
		})

		It("should ignore bots", func() {
			handler.Message(ctx, domain.InboundMessage{Author: alice, IsBot: true, IsDirect: true})
			handler.MessageEdited(ctx, domain.InboundMessage{Author: alice, IsBot: true})
			Expect(router.direct).To(BeEmpty())
			Expect(router.tracked).To(BeEmpty())
		})
	})
})
