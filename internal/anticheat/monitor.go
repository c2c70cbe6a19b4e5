// Package anticheat watches a running attempt for device-session conflicts
// and tab switches, and force-finishes it when one is detected.
package anticheat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/toanlab/lms-backend/internal/model"
	"github.com/toanlab/lms-backend/internal/retry"
)

const (
	DefaultHeartbeatInterval = 5 * time.Second
	reportTimeout            = 5 * time.Second
)

// HeartbeatChecker asks the session collaborator whether the handle still
// owns the device session. An error means the check itself failed.
type HeartbeatChecker interface {
	Check(ctx context.Context, session model.SessionHandle) (model.SessionStatus, error)
}

// ViolationReporter receives violation reports. Failures are only logged.
type ViolationReporter interface {
	Report(ctx context.Context, report model.ViolationReport) error
}

// LogoutFunc ends the session when a conflict is found outside a running attempt.
type LogoutFunc func(ctx context.Context, session model.SessionHandle)

// Target is the part of an attempt the monitor may touch. It never sees answers.
type Target interface {
	ID() uuid.UUID
	Meta() model.QuizMeta
	InProgress() bool
	RecordTabSwitch() (int, bool)
	Finish(ctx context.Context, reason model.SubmissionReason) (model.QuizResult, bool, error)
}

// Scheduler runs the heartbeat. The attempt's own scheduler satisfies it.
type Scheduler interface {
	Every(period time.Duration, fn func(ctx context.Context)) bool
}

// Option configures a Monitor.
type Option func(*Monitor)

func WithInterval(d time.Duration) Option { return func(m *Monitor) { m.interval = d } }

func WithRetryPolicy(p retry.Policy) Option { return func(m *Monitor) { m.policy = p } }

func WithLogout(fn LogoutFunc) Option { return func(m *Monitor) { m.logout = fn } }

func WithLogger(log zerolog.Logger) Option { return func(m *Monitor) { m.log = log } }

func WithClock(now func() time.Time) Option { return func(m *Monitor) { m.now = now } }

// Monitor observes one attempt.
type Monitor struct {
	target   Target
	session  model.SessionHandle
	checker  HeartbeatChecker
	reporter ViolationReporter
	logout   LogoutFunc
	interval time.Duration
	policy   retry.Policy
	now      func() time.Time
	log      zerolog.Logger
	inflight sync.WaitGroup
}

// New creates a monitor for target running under session.
func New(target Target, session model.SessionHandle, checker HeartbeatChecker, reporter ViolationReporter, opts ...Option) *Monitor {
	m := &Monitor{
		target:   target,
		session:  session,
		checker:  checker,
		reporter: reporter,
		logout:   func(context.Context, model.SessionHandle) {},
		interval: DefaultHeartbeatInterval,
		policy:   retry.DefaultPolicy,
		now:      time.Now,
		log:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(m)
	}
	m.log = m.log.With().
		Str("component", "anticheat").
		Str("attempt_id", target.ID().String()).
		Str("user_id", session.UserID).
		Logger()
	return m
}

// Enabled is false for exempt roles.
func (m *Monitor) Enabled() bool { return !m.session.Exempt() }

// Start registers the heartbeat on s. It does nothing for exempt roles.
func (m *Monitor) Start(s Scheduler) bool {
	if !m.Enabled() {
		m.log.Debug().Str("role", string(m.session.Role)).Msg("Anti-cheat disabled for role")
		return false
	}
	return s.Every(m.interval, func(ctx context.Context) { m.CheckOnce(ctx) })
}

// CheckOnce polls the session collaborator and acts on the outcome.
// Transient failures are retried, then treated as valid.
func (m *Monitor) CheckOnce(ctx context.Context) model.SessionStatus {
	if !m.Enabled() {
		return model.SessionValid
	}

	status := model.SessionValid
	err := retry.Do(ctx, m.policy, func(ctx context.Context) error {
		s, err := m.checker.Check(ctx, m.session)
		if err != nil {
			return err
		}
		status = s
		return nil
	})
	if err != nil {
		m.log.Warn().Err(err).Msg("Heartbeat check failed, treating session as valid")
		return model.SessionValid
	}

	switch status {
	case model.SessionConflict:
		m.onConflict(ctx)
	case model.SessionNone, model.SessionBadToken:
		m.log.Info().Str("status", string(status)).Msg("Heartbeat reported inactive session")
	}
	return status
}

func (m *Monitor) onConflict(ctx context.Context) {
	// Logout is only for conflicts seen while no attempt is running. Losing
	// the finish race to another trigger still counts as a running attempt.
	if m.target.InProgress() {
		_, first, err := m.target.Finish(ctx, model.ReasonCheatConflict)
		switch {
		case err != nil:
			m.log.Error().Err(err).Msg("Finish after session conflict failed")
		case first:
			m.log.Warn().Msg("Session conflict, attempt force-finished")
		default:
			m.log.Debug().Msg("Session conflict, attempt already finished by another trigger")
		}
		return
	}
	m.log.Warn().Msg("Session conflict outside a running attempt, logging out")
	m.logout(ctx, m.session)
}

// OnVisibilityChange handles a page visibility transition. On hidden it
// counts a tab switch, reports it and finishes the attempt. It reports
// whether the attempt was finished by this call path.
func (m *Monitor) OnVisibilityChange(ctx context.Context, hidden bool) bool {
	if !hidden || !m.Enabled() {
		return false
	}
	count, ok := m.target.RecordTabSwitch()
	if !ok {
		return false
	}

	meta := m.target.Meta()
	m.report(ctx, model.ViolationReport{
		UserID:    m.session.UserID,
		AttemptID: m.target.ID().String(),
		Type:      model.ViolationTabSwitch,
		Timestamp: m.now(),
		Count:     count,
		Topic:     meta.Topic,
		Level:     meta.Level,
	})

	_, first, err := m.target.Finish(ctx, model.ReasonCheatTab)
	if err != nil {
		m.log.Error().Err(err).Msg("Finish after tab switch failed")
		return false
	}
	m.log.Warn().Int("count", count).Bool("first", first).Msg("Tab switch detected")
	return first
}

// report sends r without blocking the caller.
func (m *Monitor) report(ctx context.Context, r model.ViolationReport) {
	if m.reporter == nil {
		return
	}
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
		defer cancel()
		if err := m.reporter.Report(rctx, r); err != nil {
			m.log.Warn().Err(err).Str("type", string(r.Type)).Msg("Violation report failed")
		}
	}()
}

// Wait blocks until in-flight violation reports have returned.
func (m *Monitor) Wait() { m.inflight.Wait() }
