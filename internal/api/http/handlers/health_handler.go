package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-bot/internal/persistence"
)

// Pinger is a dependency that can report its reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SessionProbe reports the chat gateway connection.
type SessionProbe interface {
	Connected() bool
}

// HealthHandler responds to liveness and readiness probes.
type HealthHandler struct {
	serviceName string
	version     string
	postgres    Pinger
	redis       Pinger
	session     SessionProbe
}

// NewHealthHandler returns a new handler instance.
func NewHealthHandler(serviceName, version string, postgres, redis Pinger, session SessionProbe) *HealthHandler {
	return &HealthHandler{serviceName: serviceName, version: version, postgres: postgres, redis: redis, session: session}
}

// Home is the plain keep-alive endpoint polled by uptime monitors.
func (h *HealthHandler) Home(c *fiber.Ctx) error {
	return c.SendString("Bot działa!")
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready reports service readiness by checking dependencies. Stores that were not
// configured are reported as disabled and do not affect readiness.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	depStatus := fiber.Map{}
	ready := true

	for name, dep := range map[string]Pinger{"postgres": h.postgres, "redis": h.redis} {
		status, ok := pingStatus(ctx, dep)
		depStatus[name] = status
		ready = ready && ok
	}

	if h.session != nil && h.session.Connected() {
		depStatus["discord"] = "ok"
	} else {
		depStatus["discord"] = "disconnected"
		ready = false
	}

	if ready {
		return c.JSON(fiber.Map{
			"status":       "ready",
			"dependencies": depStatus,
		})
	}

	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "DEPENDENCY_UNAVAILABLE",
			"message": "one or more dependencies unavailable",
			"details": depStatus,
		},
	})
}

func pingStatus(ctx context.Context, dep Pinger) (string, bool) {
	if dep == nil {
		return "disabled", true
	}
	err := dep.Ping(ctx)
	switch {
	case err == nil:
		return "ok", true
	case errors.Is(err, persistence.ErrDisabled):
		return "disabled", true
	default:
		return err.Error(), false
	}
}
