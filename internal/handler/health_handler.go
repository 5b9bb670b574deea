package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Pinger is an interface for health check ping operations.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WorkerStatus reports the propagation worker's lifecycle state.
type WorkerStatus interface {
	State() string
}

// QueueStats reports how many propagation jobs are waiting.
type QueueStats interface {
	Len() int
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	pool   Pinger
	worker WorkerStatus
	queue  QueueStats
}

// NewHealthHandler creates a new HealthHandler with the given database pool,
// propagation worker and queue.
func NewHealthHandler(pool Pinger, worker WorkerStatus, queue QueueStats) *HealthHandler {
	return &HealthHandler{pool: pool, worker: worker, queue: queue}
}

// Check performs a health check by pinging the database.
// Returns 200 OK with worker state and queue depth when the database is reachable.
// Returns 503 Service Unavailable with {"status": "unhealthy", "error": "..."} when database is unreachable.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	if err := h.pool.Ping(c.Context()); err != nil {
		log.Error().Err(err).Msg("health check failed: database unreachable")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  "database connection failed",
		})
	}
	return c.JSON(fiber.Map{
		"status":      "healthy",
		"worker":      h.worker.State(),
		"queue_depth": h.queue.Len(),
	})
}
