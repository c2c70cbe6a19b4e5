package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/toanlab/lms-backend/internal/response"
)

const healthTimeout = 2 * time.Second

// AttemptCounter reports how many attempts are running on this instance.
type AttemptCounter interface {
	ActiveCount() int
}

// HealthHandler reports dependency reachability and runtime figures.
type HealthHandler struct {
	db        *pgxpool.Pool
	rdb       *redis.Client
	attempts  AttemptCounter
	startTime time.Time
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db *pgxpool.Pool, rdb *redis.Client, attempts AttemptCounter) *HealthHandler {
	return &HealthHandler{db: db, rdb: rdb, attempts: attempts, startTime: time.Now()}
}

type healthReport struct {
	Status         string            `json:"status"`
	Checks         map[string]string `json:"checks"`
	ActiveAttempts int               `json:"active_attempts"`
	Goroutines     int               `json:"goroutines"`
	Uptime         string            `json:"uptime"`
}

// Health godoc
// GET /health
// Pings Postgres and Redis. Any failure answers 503.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	report := healthReport{
		Status:         "ok",
		Checks:         map[string]string{"postgres": "ok", "redis": "ok"},
		ActiveAttempts: h.attempts.ActiveCount(),
		Goroutines:     runtime.NumGoroutine(),
		Uptime:         time.Since(h.startTime).Truncate(time.Second).String(),
	}

	if err := h.db.Ping(ctx); err != nil {
		report.Checks["postgres"] = err.Error()
		report.Status = "degraded"
	}
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		report.Checks["redis"] = err.Error()
		report.Status = "degraded"
	}

	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	response.Success(c, status, report)
}
