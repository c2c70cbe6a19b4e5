package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/toanlab/lms-backend/internal/config"
	"github.com/toanlab/lms-backend/internal/model"
)

// ErrInvalidToken covers malformed, expired and wrongly signed tokens.
var ErrInvalidToken = errors.New("invalid token")

// Claims extends JWT standard claims with the quiz session identity.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string     `json:"user_id"`
	Name     string     `json:"name,omitempty"`
	Role     model.Role `json:"role"`
	DeviceID string     `json:"device_id,omitempty"`
}

// Handle converts verified claims into the session handle carried by attempts.
func (c *Claims) Handle() model.SessionHandle {
	return model.SessionHandle{
		UserID:   c.UserID,
		Name:     c.Name,
		Role:     c.Role,
		TokenID:  c.ID,
		DeviceID: c.DeviceID,
	}
}

// AuthService signs and verifies JWTs. Credential checks happen upstream;
// IssueToken is called by trusted tooling once a user is known.
type AuthService struct {
	cfg *config.Config
	rdb *redis.Client
	now func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, rdb *redis.Client) *AuthService {
	return &AuthService{cfg: cfg, rdb: rdb, now: time.Now}
}

// IssueToken signs a token and makes it the user's active device session.
// A previously issued token for the same user starts reporting a conflict.
func (s *AuthService) IssueToken(ctx context.Context, userID, name string, role model.Role, deviceID string) (string, *Claims, error) {
	now := s.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		UserID:   userID,
		Name:     name,
		Role:     role,
		DeviceID: deviceID,
	}

	signed, err := s.Sign(claims)
	if err != nil {
		return "", nil, err
	}

	// The stored TTL matches the token lifetime.
	if err := s.rdb.Set(ctx, config.CacheKey.UserSessionKey(userID), claims.ID, s.cfg.JWTExpiry).Err(); err != nil {
		return "", nil, fmt.Errorf("store session: %w", err)
	}
	return signed, claims, nil
}

// Sign serializes claims with the configured HMAC secret.
func (s *AuthService) Sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing identity claims", ErrInvalidToken)
	}
	switch claims.Role {
	case model.RoleStudent, model.RoleTeacher, model.RoleAdmin:
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	return claims, nil
}
