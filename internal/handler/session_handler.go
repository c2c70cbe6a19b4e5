package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/toanlab/lms-backend/internal/middleware"
	"github.com/toanlab/lms-backend/internal/response"
	"github.com/toanlab/lms-backend/internal/service"
)

// SessionHandler exposes the device session contract to clients.
type SessionHandler struct {
	sessionService *service.SessionService
	log            zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.SessionService, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "session_handler").Logger(),
	}
}

// Heartbeat godoc
// GET /api/v1/session/heartbeat
// Reports whether the caller's token still owns the device session.
func (h *SessionHandler) Heartbeat(c *gin.Context) {
	session, ok := middleware.GetSession(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	result, err := h.sessionService.Heartbeat(c.Request.Context(), session)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", session.UserID).Msg("Heartbeat lookup failed")
		response.Fail(c, http.StatusServiceUnavailable, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// Logout godoc
// POST /api/v1/session/logout
// Drops the device session if the caller's token still owns it.
func (h *SessionHandler) Logout(c *gin.Context) {
	session, ok := middleware.GetSession(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	removed, err := h.sessionService.Logout(c.Request.Context(), session)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"logged_out": removed})
}
