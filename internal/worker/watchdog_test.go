package worker_test

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jonboulle/clockwork"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/repository"
	"github.com/spec-kit/support-bot/internal/worker"
)

var _ = Describe("Watchdog", func() {
	var (
		ctx      context.Context
		cancel   context.CancelFunc
		clock    *clockwork.FakeClock
		registry repository.TicketRegistry
		tasks    *worker.TaskGroup
		watchdog *worker.Watchdog

		mu      sync.Mutex
		idleFor []domain.Ticket
		closes  bool
	)

	idleCalls := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(idleFor)
	}

	onIdle := func(_ context.Context, ticket domain.Ticket) bool {
		mu.Lock()
		defer mu.Unlock()
		idleFor = append(idleFor, ticket)
		return closes
	}

	tick := func(minutes int) {
		for i := 0; i < minutes; i++ {
			Expect(clock.BlockUntilContext(ctx, 1)).To(Succeed())
			clock.Advance(time.Minute)
		}
	}

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		clock = clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
		node, err := snowflake.NewNode(1)
		Expect(err).NotTo(HaveOccurred())
		registry = repository.NewTicketRegistry(clock, node)
		tasks = worker.NewTaskGroup(context.Background(), zap.NewNop())
		watchdog = worker.NewWatchdog(worker.WatchdogDependencies{
			Clock:        clock,
			Registry:     registry,
			Tasks:        tasks,
			PollInterval: time.Minute,
			Timeout:      15 * time.Minute,
			Logger:       zap.NewNop(),
		})
		mu.Lock()
		idleFor = nil
		closes = true
		mu.Unlock()
	})

	AfterEach(func() {
		Expect(tasks.Shutdown(ctx)).To(Succeed())
		cancel()
	})

	It("should fire once the ticket has been idle longer than the timeout", func() {
		ticket, err := registry.Open("alice", "Alice", domain.ChannelRef{ID: "chan-1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(watchdog.Watch(ticket, onIdle)).To(BeTrue())

		tick(15)
		Expect(clock.BlockUntilContext(ctx, 1)).To(Succeed())
		Expect(idleCalls()).To(BeZero())

		clock.Advance(time.Minute)
		Eventually(idleCalls).Should(Equal(1))
		Eventually(tasks.Active).Should(BeZero())
	})

	It("should restart the countdown on activity", func() {
		ticket, err := registry.Open("alice", "Alice", domain.ChannelRef{ID: "chan-1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(watchdog.Watch(ticket, onIdle)).To(BeTrue())

		tick(10)
		Expect(registry.Touch("alice")).To(BeTrue())
		tick(15)
		Expect(clock.BlockUntilContext(ctx, 1)).To(Succeed())
		Expect(idleCalls()).To(BeZero())

		clock.Advance(time.Minute)
		Eventually(idleCalls).Should(Equal(1))
	})

	It("should keep polling when the ticket was not closed", func() {
		mu.Lock()
		closes = false
		mu.Unlock()
		ticket, err := registry.Open("alice", "Alice", domain.ChannelRef{ID: "chan-1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(watchdog.Watch(ticket, onIdle)).To(BeTrue())

		tick(16)
		Eventually(idleCalls).Should(Equal(1))
		Expect(clock.BlockUntilContext(ctx, 1)).To(Succeed())
		Expect(tasks.Active()).To(Equal(1))

		clock.Advance(time.Minute)
		Eventually(idleCalls).Should(Equal(2))
	})

	It("should stop when the ticket starts closing", func() {
		ticket, err := registry.Open("alice", "Alice", domain.ChannelRef{ID: "chan-1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(watchdog.Watch(ticket, onIdle)).To(BeTrue())
		Expect(clock.BlockUntilContext(ctx, 1)).To(Succeed())

		_, err = registry.MarkClosing("alice", 5*time.Minute, domain.CloseReasonStaffReject)
		Expect(err).NotTo(HaveOccurred())

		Eventually(tasks.Active).Should(BeZero())
		Expect(idleCalls()).To(BeZero())
	})

	It("should stop when the ticket disappears", func() {
		ticket, err := registry.Open("alice", "Alice", domain.ChannelRef{ID: "chan-1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(watchdog.Watch(ticket, onIdle)).To(BeTrue())

		registry.Remove("alice")
		Eventually(tasks.Active).Should(BeZero())
		Expect(idleCalls()).To(BeZero())
	})

	It("should not start for a ticket that is already closing", func() {
		ticket, err := registry.Open("alice", "Alice", domain.ChannelRef{ID: "chan-1"})
		Expect(err).NotTo(HaveOccurred())
		_, err = registry.MarkClosing("alice", 5*time.Minute, domain.CloseReasonStaffReject)
		Expect(err).NotTo(HaveOccurred())

		Expect(watchdog.Watch(ticket, onIdle)).To(BeFalse())
		Eventually(tasks.Active).Should(BeZero())
	})
})
