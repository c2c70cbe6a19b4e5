package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/toanlab/lms-backend/internal/model"
	"github.com/toanlab/lms-backend/internal/response"
)

// SessionChecker classifies a session handle against the stored device session.
type SessionChecker interface {
	Check(ctx context.Context, h model.SessionHandle) (model.SessionStatus, error)
}

// CheckSingleDeviceSession rejects student requests whose token id no longer
// owns the user's device session. Lookup failures let the request through.
func CheckSingleDeviceSession(sessions SessionChecker, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		h, ok := GetSession(c)
		if !ok {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		// Only enforce for student tokens.
		if h.Exempt() {
			c.Next()
			return
		}

		status, err := sessions.Check(c.Request.Context(), h)
		if err != nil {
			log.Warn().Err(err).Str("user_id", h.UserID).Msg("Session check failed, allowing request")
			c.Next()
			return
		}

		switch status {
		case model.SessionConflict:
			response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionConflict)
			return
		case model.SessionNone, model.SessionBadToken:
			response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
			return
		}

		c.Next()
	}
}
