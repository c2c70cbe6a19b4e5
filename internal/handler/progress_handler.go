package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/toanlab/lms-backend/internal/middleware"
	"github.com/toanlab/lms-backend/internal/model"
	"github.com/toanlab/lms-backend/internal/response"
)

// ProgressReader is the read side of level progression.
type ProgressReader interface {
	Progress(ctx context.Context, userID string) (model.UserProgress, error)
	Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error)
}

// ProgressHandler serves per-student progression and the score leaderboard.
type ProgressHandler struct {
	progress ProgressReader
	log      zerolog.Logger
}

// NewProgressHandler creates a new ProgressHandler.
func NewProgressHandler(progress ProgressReader, log zerolog.Logger) *ProgressHandler {
	return &ProgressHandler{
		progress: progress,
		log:      log.With().Str("component", "progress_handler").Logger(),
	}
}

// GetProgress godoc
// GET /api/v1/student/progress
// Returns the caller's total score and current level per grade and topic.
func (h *ProgressHandler) GetProgress(c *gin.Context) {
	session, ok := middleware.GetSession(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	progress, err := h.progress.Progress(c.Request.Context(), session.UserID)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"progress": progress})
}

// GetLeaderboard godoc
// GET /api/v1/leaderboard?limit=
// Returns users ranked by cumulative score. Limit defaults to 20, capped at 100.
func (h *ProgressHandler) GetLeaderboard(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
				map[string]string{"limit": "phải là số nguyên dương"})
			return
		}
		limit = n
	}

	entries, err := h.progress.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"leaderboard": entries})
}
