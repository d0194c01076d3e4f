package handlers

import (
	"context"
	"sort"
	"time"

	"github.com/ahmetcoskunkizilkaya/anonboard/internal/board"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/dto"
	"github.com/gofiber/fiber/v2"
)

// HealthCheck pings one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

type HealthHandler struct {
	registry *board.Registry
	checks   map[string]HealthCheck
}

func NewHealthHandler(registry *board.Registry, checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{registry: registry, checks: checks}
}

// Check answers 503 when any dependency is down so load balancers stop
// routing submissions here. Error details stay in the logs.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := dto.HealthResponse{
		Status:     "ok",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Checks:     make(map[string]string, len(names)),
		BoardCount: len(h.registry.All()),
	}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			resp.Checks[name] = "unhealthy"
			resp.Status = "degraded"
			continue
		}
		resp.Checks[name] = "ok"
	}

	if resp.Status != "ok" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	}
	return c.JSON(resp)
}
