package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	apihttp "github.com/spec-kit/support-bot/internal/api/http"
	"github.com/spec-kit/support-bot/internal/api/http/handlers"
	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/observability"
	"github.com/spec-kit/support-bot/internal/persistence"
)

type staticTickets []domain.Ticket

func (s staticTickets) Active() []domain.Ticket { return s }

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubSession bool

func (s stubSession) Connected() bool { return bool(s) }

type stubHistory struct {
	rows []domain.TicketHistory
	err  error
}

func (h *stubHistory) Create(context.Context, *domain.TicketHistory) error { return nil }

func (h *stubHistory) ListByTicket(context.Context, int64) ([]domain.TicketHistory, error) {
	return h.rows, h.err
}

type envelope struct {
	Data  []map[string]any `json:"data"`
	Count int              `json:"count"`
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
	Status       string         `json:"status"`
	Dependencies map[string]any `json:"dependencies"`
}

var _ = Describe("Routes", func() {
	var (
		app     *fiber.App
		tickets staticTickets
		history *stubHistory
		redis   handlers.Pinger
		session stubSession
		build   func()
	)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	BeforeEach(func() {
		tickets = staticTickets{
			{ID: 1, Owner: "alice", Channel: domain.ChannelRef{ID: "chan-1"}, State: domain.TicketStateOpen, CreatedAt: now, LastActivityAt: now},
			{ID: 2, Owner: "bob", Channel: domain.ChannelRef{ID: "chan-2"}, State: domain.TicketStateClosingAnnounced, CreatedAt: now, LastActivityAt: now, CloseDeadline: now.Add(5 * time.Minute), CloseReason: domain.CloseReasonStaffReject},
		}
		history = &stubHistory{}
		redis = stubPinger{}
		session = true

		build = func() {
			metrics := observability.NewMetrics()
			app = fiber.New(fiber.Config{DisableStartupMessage: true})
			apihttp.RegisterMiddlewares(app, zap.NewNop(), metrics, time.Second)
			apihttp.RegisterRoutes(app, apihttp.RouteConfig{
				Health:  handlers.NewHealthHandler("support-bot", "test", stubPinger{err: persistence.ErrDisabled}, redis, session),
				Tickets: handlers.NewTicketsHandler(tickets, history),
				Metrics: metrics,
			})
		}
	})

	do := func(target string) (int, envelope, string) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())

		var body envelope
		_ = json.Unmarshal(raw, &body)
		return resp.StatusCode, body, string(raw)
	}

	It("should answer the keep-alive probe", func() {
		build()
		status, _, raw := do("/")
		Expect(status).To(Equal(http.StatusOK))
		Expect(raw).To(Equal("Bot działa!"))
	})

	Describe("readiness", func() {
		It("should be ready with optional stores disabled", func() {
			redis = nil
			build()

			status, body, _ := do("/health/ready")
			Expect(status).To(Equal(http.StatusOK))
			Expect(body.Status).To(Equal("ready"))
			Expect(body.Dependencies).To(HaveKeyWithValue("postgres", "disabled"))
			Expect(body.Dependencies).To(HaveKeyWithValue("redis", "disabled"))
			Expect(body.Dependencies).To(HaveKeyWithValue("discord", "ok"))
		})

		It("should report a failing store", func() {
			redis = stubPinger{err: errors.New("connection refused")}
			build()

			status, body, _ := do("/health/ready")
			Expect(status).To(Equal(http.StatusServiceUnavailable))
			Expect(body.Error.Code).To(Equal("DEPENDENCY_UNAVAILABLE"))
			Expect(body.Error.Details).To(HaveKeyWithValue("redis", "connection refused"))
		})

		It("should not be ready while the gateway is down", func() {
			session = false
			build()

			status, body, _ := do("/health/ready")
			Expect(status).To(Equal(http.StatusServiceUnavailable))
			Expect(body.Error.Details).To(HaveKeyWithValue("discord", "disconnected"))
		})
	})

	Describe("tickets", func() {
		It("should list active tickets", func() {
			build()

			status, body, _ := do("/tickets")
			Expect(status).To(Equal(http.StatusOK))
			Expect(body.Count).To(Equal(2))
			Expect(body.Data[1]).To(HaveKeyWithValue("close_reason", "STAFF_REJECT"))
			Expect(body.Data[0]).NotTo(HaveKey("close_deadline"))
		})

		It("should filter by state", func() {
			build()

			_, body, _ := do("/tickets?state=OPEN")
			Expect(body.Count).To(Equal(1))
			Expect(body.Data[0]).To(HaveKeyWithValue("owner_id", "alice"))
		})

		It("should reject unknown states", func() {
			build()

			status, body, _ := do("/tickets?state=DELETED")
			Expect(status).To(Equal(http.StatusBadRequest))
			Expect(body.Error.Code).To(Equal("VALIDATION_FAILED"))
		})
	})

	Describe("ticket history", func() {
		It("should return rows oldest first", func() {
			history.rows = []domain.TicketHistory{
				{ID: 2, TicketID: 1, ChangeType: domain.ChangeTypeClaimed, CreatedAt: now.Add(time.Minute)},
				{ID: 1, TicketID: 1, ChangeType: domain.ChangeTypeOpened, CreatedAt: now},
			}
			build()

			status, body, _ := do("/tickets/1/history")
			Expect(status).To(Equal(http.StatusOK))
			Expect(body.Data).To(HaveLen(2))
			Expect(body.Data[0]).To(HaveKeyWithValue("change_type", "OPENED"))
			Expect(body.Data[1]).To(HaveKeyWithValue("change_type", "CLAIMED"))
		})

		It("should reject malformed ids", func() {
			build()

			status, _, _ := do("/tickets/abc/history")
			Expect(status).To(Equal(http.StatusBadRequest))
		})

		It("should report unknown tickets", func() {
			build()

			status, body, _ := do("/tickets/99/history")
			Expect(status).To(Equal(http.StatusNotFound))
			Expect(body.Error.Code).To(Equal("NOT_FOUND"))
		})

		It("should report disabled history", func() {
			app = fiber.New(fiber.Config{DisableStartupMessage: true})
			metrics := observability.NewMetrics()
			apihttp.RegisterMiddlewares(app, zap.NewNop(), metrics, 0)
			apihttp.RegisterRoutes(app, apihttp.RouteConfig{
				Health:  handlers.NewHealthHandler("support-bot", "test", nil, nil, session),
				Tickets: handlers.NewTicketsHandler(tickets, nil),
				Metrics: metrics,
			})

			status, body, _ := do("/tickets/1/history")
			Expect(status).To(Equal(http.StatusNotFound))
			Expect(body.Error.Message).To(Equal("ticket history is disabled"))
		})

		It("should hide repository failures", func() {
			history.err = errors.New("relation does not exist")
			build()

			status, body, _ := do("/tickets/1/history")
			Expect(status).To(Equal(http.StatusInternalServerError))
			Expect(body.Error.Code).To(Equal("INTERNAL_ERROR"))
			Expect(body.Error.Message).NotTo(ContainSubstring("relation"))
		})
	})

	It("should expose prometheus metrics", func() {
		build()
		_, _, _ = do("/tickets")

		status, _, raw := do("/metrics")
		Expect(status).To(Equal(http.StatusOK))
		Expect(raw).To(ContainSubstring("support_"))
	})
})
