package model

import "time"

// Role is the caller's role taken from verified token claims.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTeacher || r == RoleAdmin
}

// SessionHandle identifies the device session an attempt runs under.
// It is built at the HTTP edge and passed explicitly to whatever needs it.
type SessionHandle struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
	TokenID  string `json:"token_id"`
	DeviceID string `json:"device_id"`
}

// Exempt reports whether anti-cheat checks are skipped for this session.
func (s SessionHandle) Exempt() bool {
	return s.Role == RoleTeacher || s.Role == RoleAdmin
}

// SessionStatus classifies a heartbeat check.
type SessionStatus string

const (
	SessionValid    SessionStatus = "valid"
	SessionNone     SessionStatus = "no_session"
	SessionBadToken SessionStatus = "invalid_token"
	SessionConflict SessionStatus = "session_conflict"
)

// HeartbeatResult is returned by the session collaborator.
type HeartbeatResult struct {
	Valid     bool          `json:"valid"`
	Status    SessionStatus `json:"status"`
	CheckedAt time.Time     `json:"checked_at"`
}

// ViolationReport is sent fire-and-forget when a violation is detected.
type ViolationReport struct {
	UserID    string        `json:"user_id"`
	AttemptID string        `json:"attempt_id"`
	Type      ViolationType `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Count     int           `json:"count"`
	Topic     string        `json:"topic"`
	Level     Level         `json:"level,omitempty"`
}
