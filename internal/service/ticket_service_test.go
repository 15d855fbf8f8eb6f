package service_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jonboulle/clockwork"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/auth"
	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/events"
	"github.com/spec-kit/support-bot/internal/platform"
	"github.com/spec-kit/support-bot/internal/repository"
	"github.com/spec-kit/support-bot/internal/service"
	apperrors "github.com/spec-kit/support-bot/pkg/util/errorutil"
)

var _ = Describe("TicketService", func() {
	var (
		ctx        context.Context
		start      time.Time
		clock      *clockwork.FakeClock
		registry   repository.TicketRegistry
		selections repository.SelectionTable
		channels   *mockChannels
		messenger  *mockMessenger
		identity   *mockIdentity
		watcher    *mockWatcher
		scheduler  *mockScheduler
		dispatcher events.Dispatcher
		pubMu      sync.Mutex
		published  []events.Event
		svc        *service.TicketService

		alice = domain.Actor{ID: "alice", Name: "Alice", Mention: "<@alice>"}
		staff = domain.Actor{ID: "staff", Name: "Mod", Mention: "<@staff>"}
	)

	BeforeEach(func() {
		ctx = context.Background()
		start = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		clock = clockwork.NewFakeClockAt(start)
		node, err := snowflake.NewNode(1)
		Expect(err).NotTo(HaveOccurred())
		registry = repository.NewTicketRegistry(clock, node)
		selections = repository.NewSelectionTable(clock, 15*time.Minute)
		channels = &mockChannels{}
		messenger = &mockMessenger{}
		identity = &mockIdentity{
			hasRoleFn: func(_ context.Context, _, userID, roleID string) (bool, error) {
				return userID == "staff" && roleID == "role-mgmt", nil
			},
		}
		watcher = &mockWatcher{}
		scheduler = &mockScheduler{}

		published = nil
		dispatcher = events.NewInMemoryDispatcher()
		for _, t := range events.AllEventTypes {
			dispatcher.Subscribe(t, func(_ context.Context, e events.Event) error {
				pubMu.Lock()
				defer pubMu.Unlock()
				published = append(published, e)
				return nil
			})
		}

		svc = service.NewTicketService(service.TicketDependencies{
			Registry:   registry,
			Selections: selections,
			Channels:   channels,
			Messenger:  messenger,
			Identity:   identity,
			Gate:       auth.NewGate(identity, "role-mgmt"),
			Watchdog:   watcher,
			Closures:   scheduler,
			Dispatcher: dispatcher,
			Clock:      clock,
			Logger:     zap.NewNop(),
		}, service.TicketConfig{
			CategoryID:        "cat-support",
			ManagementRoleID:  "role-mgmt",
			InactivityTimeout: 15 * time.Minute,
			ClosureDelay:      5 * time.Minute,
		})
	})

	eventTypes := func() []events.EventType {
		pubMu.Lock()
		defer pubMu.Unlock()
		out := make([]events.EventType, 0, len(published))
		for _, e := range published {
			out = append(out, e.Type)
		}
		return out
	}

	Describe("PromptSelection", func() {
		It("should send the category menu privately", func() {
			Expect(svc.PromptSelection(ctx, alice)).To(Succeed())

			sent := messenger.Sent()
			Expect(sent).To(HaveLen(1))
			Expect(sent[0].Target).To(Equal("alice"))
			Expect(sent[0].Message.Select).NotTo(BeNil())
			Expect(sent[0].Message.Select.Options).To(HaveLen(len(domain.Categories)))
		})

		It("should report users that refuse private messages", func() {
			messenger.sendFn = func(context.Context, string, platform.Message) error {
				return platform.ErrUnreachable
			}

			err := svc.PromptSelection(ctx, alice)
			Expect(apperrors.HasCode(err, apperrors.CodeUnreachable)).To(BeTrue())
			Expect(apperrors.ToDomainError(err).Message).To(ContainSubstring("Nie mogę wysłać Ci wiadomości prywatnej"))
		})
	})

	Describe("Select", func() {
		It("should record a pending selection for informational categories", func() {
			result, err := svc.Select(ctx, alice, domain.CategoryGameProblem)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Ticket).To(BeNil())
			Expect(result.Pending).NotTo(BeNil())
			Expect(result.Pending.ExpiresAt).To(Equal(start.Add(15 * time.Minute)))
			Expect(selections.Len()).To(Equal(1))
			Expect(eventTypes()).To(ConsistOf(events.EventSelectionRecorded))
		})

		It("should open a ticket for the connect-to-staff category", func() {
			result, err := svc.Select(ctx, alice, domain.CategoryConnectStaff)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Ticket).NotTo(BeNil())
			Expect(result.Pending).To(BeNil())
			Expect(selections.Len()).To(BeZero())
		})
	})

	Describe("OpenTicket", func() {
		It("should create a restricted channel and start its watchdog", func() {
			ticket, err := svc.OpenTicket(ctx, alice)
			Expect(err).NotTo(HaveOccurred())

			Expect(ticket.State).To(Equal(domain.TicketStateOpen))
			Expect(ticket.Channel.Name).To(Equal("ticket-alice"))
			Expect(channels.created).To(HaveLen(1))
			spec := channels.created[0]
			Expect(spec.ParentID).To(Equal("cat-support"))
			Expect(spec.Access).To(ContainElements(
				platform.AccessRule{SubjectID: "guild-1", Subject: platform.AccessRole, Allow: false},
				platform.AccessRule{SubjectID: "alice", Subject: platform.AccessMember, Allow: true},
				platform.AccessRule{SubjectID: "role-mgmt", Subject: platform.AccessRole, Allow: true},
			))

			sent := channels.Sent()
			Expect(sent).To(HaveLen(1))
			Expect(sent[0].Message.Content).To(Equal("<@alice> otworzył ticket. Management może odpowiedzieć."))
			Expect(sent[0].Message.Actions).To(HaveLen(2))
			Expect(sent[0].Message.Actions[0].ID()).To(Equal("claim:" + ticket.Channel.ID))
			Expect(sent[0].Message.Actions[1].ID()).To(Equal("reject:" + ticket.Channel.ID))

			Expect(watcher.Watched()).To(HaveLen(1))
			Expect(registry.Count()).To(Equal(1))
			Expect(eventTypes()).To(ConsistOf(events.EventTicketOpened))
		})

		It("should refuse a second ticket and point at the first one", func() {
			first, err := svc.OpenTicket(ctx, alice)
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.OpenTicket(ctx, alice)
			Expect(apperrors.HasCode(err, apperrors.CodeAlreadyOpen)).To(BeTrue())
			Expect(apperrors.ToDomainError(err).Details).To(HaveKeyWithValue("channel_id", first.Channel.ID))
			Expect(channels.created).To(HaveLen(1))
		})

		It("should fail when the user shares no guild with the bot", func() {
			identity.resolveGuildFn = func(context.Context, string) (platform.Guild, error) {
				return platform.Guild{}, platform.ErrNotFound
			}

			_, err := svc.OpenTicket(ctx, alice)
			Expect(apperrors.HasCode(err, apperrors.CodeNotFound)).To(BeTrue())
			Expect(apperrors.ToDomainError(err).Message).To(Equal("Nie znaleziono serwera."))
			Expect(registry.Count()).To(BeZero())
		})

		It("should fail when the support category is missing", func() {
			channels.resolveFn = func(context.Context, string) (platform.Channel, error) {
				return platform.Channel{}, platform.ErrNotFound
			}

			_, err := svc.OpenTicket(ctx, alice)
			Expect(apperrors.ToDomainError(err).Message).To(Equal("Nie znaleziono kategorii support."))
			Expect(channels.created).To(BeEmpty())
		})

		It("should surface channel creation failures as transient", func() {
			channels.createFn = func(context.Context, platform.ChannelSpec) (platform.Channel, error) {
				return platform.Channel{}, errors.New("rate limited")
			}

			_, err := svc.OpenTicket(ctx, alice)
			Expect(apperrors.HasCode(err, apperrors.CodePlatformTransient)).To(BeTrue())
			Expect(registry.Count()).To(BeZero())
			Expect(watcher.Watched()).To(BeEmpty())
		})
	})

	Describe("Claim", func() {
		var ticket domain.Ticket

		BeforeEach(func() {
			var err error
			ticket, err = svc.OpenTicket(ctx, alice)
			Expect(err).NotTo(HaveOccurred())
			published = nil
		})

		It("should announce the staff member in the ticket channel", func() {
			Expect(svc.Claim(ctx, staff, "guild-1", ticket.Channel.ID)).To(Succeed())

			sent := channels.Sent()
			Expect(sent[len(sent)-1].Message.Content).To(Equal("<@staff> przejął ticket."))
			Expect(eventTypes()).To(ConsistOf(events.EventTicketClaimed))

			current, _ := registry.Get("alice")
			Expect(current.State).To(Equal(domain.TicketStateOpen))
		})

		It("should deny members without the management role", func() {
			err := svc.Claim(ctx, alice, "guild-1", ticket.Channel.ID)

			Expect(apperrors.HasCode(err, apperrors.CodePermissionDenied)).To(BeTrue())
			Expect(apperrors.ToDomainError(err).Message).To(Equal("Nie masz uprawnień."))
			Expect(eventTypes()).To(BeEmpty())
		})
	})

	Describe("Reject", func() {
		var ticket domain.Ticket

		BeforeEach(func() {
			var err error
			ticket, err = svc.OpenTicket(ctx, alice)
			Expect(err).NotTo(HaveOccurred())
			published = nil
		})

		It("should announce the closure and schedule the teardown", func() {
			closed, err := svc.Reject(ctx, staff, "guild-1", ticket.Channel.ID)

			Expect(err).NotTo(HaveOccurred())
			Expect(closed).To(BeTrue())
			sent := channels.Sent()
			Expect(sent[len(sent)-1].Message.Content).To(Equal("Ticket zamknięty przez <@staff>. Kanał zostanie usunięty za 5 minut."))

			scheduled := scheduler.Scheduled()
			Expect(scheduled).To(HaveLen(1))
			Expect(scheduled[0].State).To(Equal(domain.TicketStateClosingAnnounced))
			Expect(scheduled[0].CloseDeadline).To(Equal(start.Add(5 * time.Minute)))
			Expect(scheduled[0].CloseReason).To(Equal(domain.CloseReasonStaffReject))
			Expect(eventTypes()).To(ConsistOf(events.EventTicketClosing))
		})

		It("should be a no-op the second time", func() {
			_, err := svc.Reject(ctx, staff, "guild-1", ticket.Channel.ID)
			Expect(err).NotTo(HaveOccurred())

			closed, err := svc.Reject(ctx, staff, "guild-1", ticket.Channel.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(closed).To(BeFalse())
			Expect(scheduler.Scheduled()).To(HaveLen(1))
		})

		It("should leave the ticket untouched for members without the role", func() {
			_, err := svc.Reject(ctx, alice, "guild-1", ticket.Channel.ID)

			Expect(apperrors.HasCode(err, apperrors.CodePermissionDenied)).To(BeTrue())
			current, _ := registry.Get("alice")
			Expect(current.State).To(Equal(domain.TicketStateOpen))
			Expect(scheduler.Scheduled()).To(BeEmpty())
		})

		It("should report channels that hold no ticket", func() {
			_, err := svc.Reject(ctx, staff, "guild-1", "chan-unknown")
			Expect(apperrors.HasCode(err, apperrors.CodeNotFound)).To(BeTrue())
		})

		It("should schedule a single teardown when racing the watchdog", func() {
			clock.Advance(16 * time.Minute)
			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(2)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					_, err := svc.Reject(ctx, staff, "guild-1", ticket.Channel.ID)
					Expect(err).NotTo(HaveOccurred())
				}()
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					svc.CloseInactive(ctx, ticket)
				}()
			}
			wg.Wait()

			Expect(scheduler.Scheduled()).To(HaveLen(1))
		})
	})

	Describe("CloseInactive", func() {
		var ticket domain.Ticket

		BeforeEach(func() {
			var err error
			ticket, err = svc.OpenTicket(ctx, alice)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should post the inactivity notice and schedule the teardown", func() {
			clock.Advance(16 * time.Minute)

			Expect(svc.CloseInactive(ctx, ticket)).To(BeTrue())

			sent := channels.Sent()
			Expect(sent[len(sent)-1].Message.Content).To(Equal("Ticket zostanie zamknięty z powodu braku odpowiedzi."))
			scheduled := scheduler.Scheduled()
			Expect(scheduled).To(HaveLen(1))
			Expect(scheduled[0].CloseReason).To(Equal(domain.CloseReasonInactivity))
		})

		It("should still close when the notice cannot be posted", func() {
			clock.Advance(16 * time.Minute)
			channels.sendFn = func(context.Context, string, platform.Message) error {
				return platform.ErrNotFound
			}

			Expect(svc.CloseInactive(ctx, ticket)).To(BeTrue())
			Expect(scheduler.Scheduled()).To(HaveLen(1))
		})

		It("should keep a ticket open that saw activity after the idle check", func() {
			clock.Advance(16 * time.Minute)
			stale, ok := registry.Get("alice")
			Expect(ok).To(BeTrue())
			Expect(registry.Touch("alice")).To(BeTrue())
			published = nil

			Expect(svc.CloseInactive(ctx, stale)).To(BeFalse())

			current, _ := registry.Get("alice")
			Expect(current.State).To(Equal(domain.TicketStateOpen))
			Expect(current.IdleFor(clock.Now())).To(BeZero())
			Expect(scheduler.Scheduled()).To(BeEmpty())
			Expect(eventTypes()).To(BeEmpty())
		})

		It("should do nothing once staff rejected the ticket", func() {
			clock.Advance(16 * time.Minute)
			_, err := svc.Reject(ctx, staff, "guild-1", ticket.Channel.ID)
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.CloseInactive(ctx, ticket)).To(BeFalse())
			Expect(scheduler.Scheduled()).To(HaveLen(1))
		})
	})

	Describe("Active", func() {
		It("should list the registry snapshot", func() {
			_, err := svc.OpenTicket(ctx, alice)
			Expect(err).NotTo(HaveOccurred())

			active := svc.Active()
			Expect(active).To(HaveLen(1))
			Expect(active[0].Owner).To(Equal("alice"))
		})
	})
})
