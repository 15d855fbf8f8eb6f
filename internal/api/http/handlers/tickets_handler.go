package handlers

import (
	"sort"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-bot/internal/api/dto"
	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/repository"
	apperrors "github.com/spec-kit/support-bot/pkg/util/errorutil"
)

// TicketLister exposes the active ticket snapshot.
type TicketLister interface {
	Active() []domain.Ticket
}

// TicketsHandler serves read-only ticket endpoints.
type TicketsHandler struct {
	tickets TicketLister
	history repository.TicketHistoryRepository
}

// NewTicketsHandler constructs handler. history may be nil when Postgres is not configured.
func NewTicketsHandler(tickets TicketLister, history repository.TicketHistoryRepository) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, history: history}
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	state := domain.TicketState(c.Query("state"))
	if state != "" && state != domain.TicketStateOpen && state != domain.TicketStateClosingAnnounced {
		return apperrors.NewValidationError("invalid state filter", map[string]any{"state": state})
	}

	tickets := h.tickets.Active()
	items := make([]dto.TicketSummary, 0, len(tickets))
	for _, t := range tickets {
		if state != "" && t.State != state {
			continue
		}
		items = append(items, dto.NewTicketSummary(t))
	}
	return c.JSON(fiber.Map{"data": items, "count": len(items)})
}

// TicketHistory GET /tickets/:id/history.
func (h *TicketsHandler) TicketHistory(c *fiber.Ctx) error {
	if h.history == nil {
		return apperrors.NewNotFound("ticket history is disabled", nil)
	}
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return apperrors.NewValidationError("invalid ticket id", map[string]any{"id": c.Params("id")})
	}
	rows, err := h.history.ListByTicket(c.UserContext(), id)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if len(rows) == 0 {
		return apperrors.NewNotFound("ticket not found", map[string]any{"id": c.Params("id")})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].CreatedAt.Before(rows[j].CreatedAt) })

	items := make([]dto.TicketHistoryEntry, 0, len(rows))
	for _, row := range rows {
		items = append(items, dto.NewTicketHistoryEntry(row))
	}
	return c.JSON(fiber.Map{"data": items})
}
