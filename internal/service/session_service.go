package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/toanlab/lms-backend/internal/config"
	"github.com/toanlab/lms-backend/internal/model"
)

// releaseSession deletes the session key only while it still holds the caller's token id.
var releaseSession = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SessionStore is the part of Redis the session service needs.
type SessionStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	redis.Scripter
}

// SessionService answers heartbeat checks against the single active
// device session stored per user.
type SessionService struct {
	store SessionStore
	log   zerolog.Logger
	now   func() time.Time
}

// NewSessionService creates a new SessionService.
func NewSessionService(store SessionStore, log zerolog.Logger) *SessionService {
	return &SessionService{
		store: store,
		log:   log.With().Str("component", "session_service").Logger(),
		now:   time.Now,
	}
}

// Check classifies the handle against the stored session. A non-nil error
// means the lookup itself failed and the caller may retry.
func (s *SessionService) Check(ctx context.Context, h model.SessionHandle) (model.SessionStatus, error) {
	if h.UserID == "" || h.TokenID == "" {
		return model.SessionBadToken, nil
	}
	stored, err := s.store.Get(ctx, config.CacheKey.UserSessionKey(h.UserID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.SessionNone, nil
		}
		return "", fmt.Errorf("check session: %w", err)
	}
	if stored != h.TokenID {
		return model.SessionConflict, nil
	}
	return model.SessionValid, nil
}

// Heartbeat wraps Check for the client-facing endpoint.
func (s *SessionService) Heartbeat(ctx context.Context, h model.SessionHandle) (model.HeartbeatResult, error) {
	status, err := s.Check(ctx, h)
	if err != nil {
		return model.HeartbeatResult{}, err
	}
	return model.HeartbeatResult{
		Valid:     status == model.SessionValid,
		Status:    status,
		CheckedAt: s.now().UTC(),
	}, nil
}

// Logout drops the device session if h still owns it. It reports whether
// a session was removed.
func (s *SessionService) Logout(ctx context.Context, h model.SessionHandle) (bool, error) {
	n, err := releaseSession.Run(ctx, s.store, []string{config.CacheKey.UserSessionKey(h.UserID)}, h.TokenID).Int()
	if err != nil {
		return false, fmt.Errorf("release session: %w", err)
	}
	return n > 0, nil
}

// ForceLogout is the anti-cheat logout hook: failures are logged, not returned.
func (s *SessionService) ForceLogout(ctx context.Context, h model.SessionHandle) {
	removed, err := s.Logout(ctx, h)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", h.UserID).Msg("Forced logout failed")
		return
	}
	s.log.Warn().Str("user_id", h.UserID).Bool("removed", removed).Msg("Forced logout after session conflict")
}
