package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/toanlab/lms-backend/internal/anticheat"
	"github.com/toanlab/lms-backend/internal/attempt"
	"github.com/toanlab/lms-backend/internal/model"
	"github.com/toanlab/lms-backend/internal/retry"
)

// Quiz service errors.
var (
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrNotAttemptOwner = errors.New("attempt belongs to another user")
)

const defaultLinger = 10 * time.Minute

// SessionGuard checks device sessions and performs forced logouts.
type SessionGuard interface {
	anticheat.HeartbeatChecker
	ForceLogout(ctx context.Context, h model.SessionHandle)
}

// ExamLoader resolves a published exam to its ordered questions.
type ExamLoader interface {
	Exam(ctx context.Context, id uuid.UUID) (*model.PublishedExam, []model.Question, error)
}

// EventPublisher fans attempt events out to subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, ev model.AttemptEvent)
}

// AnswerRecorder mirrors captured answers for autosave.
type AnswerRecorder interface {
	Record(ctx context.Context, a model.SavedAnswer)
}

// LevelGate decides which practice levels a student may start and learns
// from finished attempts. Nil disables progression.
type LevelGate interface {
	CheckLevel(ctx context.Context, h model.SessionHandle, grade int, topic string, level model.Level) error
	RecordPass(ctx context.Context, r model.QuizResult)
}

// QuizConfig tunes the attempts the service creates.
type QuizConfig struct {
	HeartbeatInterval time.Duration
	TickInterval      time.Duration
	TimeLimit         time.Duration
	RetryPolicy       retry.Policy
	// Linger is how long a completed attempt stays readable.
	Linger time.Duration
}

// QuizDeps groups the collaborators of QuizService. Events, Answers and Progress may be nil.
type QuizDeps struct {
	Bank      BankReader
	Exams     ExamLoader
	Submitter attempt.Submitter
	Sessions  SessionGuard
	Reporter  anticheat.ViolationReporter
	Events    EventPublisher
	Answers   AnswerRecorder
	Progress  LevelGate
}

type activeAttempt struct {
	attempt     *attempt.Attempt
	monitor     *anticheat.Monitor
	questionIDs []string
}

// QuizService owns the in-memory registry of running attempts.
type QuizService struct {
	deps   QuizDeps
	cfg    QuizConfig
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time

	mu     sync.RWMutex
	active map[uuid.UUID]*activeAttempt
}

// NewQuizService creates a new QuizService.
func NewQuizService(deps QuizDeps, cfg QuizConfig, log zerolog.Logger) *QuizService {
	if cfg.Linger == 0 {
		cfg.Linger = defaultLinger
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = anticheat.DefaultHeartbeatInterval
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &QuizService{
		deps:   deps,
		cfg:    cfg,
		log:    log.With().Str("component", "quiz_service").Logger(),
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
		active: make(map[uuid.UUID]*activeAttempt),
	}
}

// StartPractice starts an attempt over every pool question of (grade, topic, level).
func (s *QuizService) StartPractice(ctx context.Context, h model.SessionHandle, req model.StartQuizRequest) (model.AttemptSnapshot, error) {
	level := model.Level(req.Level)
	if s.deps.Progress != nil {
		if err := s.deps.Progress.CheckLevel(ctx, h, req.Grade, req.Topic, level); err != nil {
			return model.AttemptSnapshot{}, err
		}
	}
	pool, err := s.deps.Bank.Pool(ctx, req.Grade)
	if err != nil {
		return model.AttemptSnapshot{}, err
	}
	qs := pool.Match(req.Grade, req.Topic, level)
	if len(qs) == 0 {
		return model.AttemptSnapshot{}, attempt.ErrNoQuestions
	}
	return s.start(h, model.QuizMeta{Grade: req.Grade, Topic: req.Topic, Level: level}, qs)
}

// StartExam starts an attempt over a published variant in stored order.
func (s *QuizService) StartExam(ctx context.Context, h model.SessionHandle, examID uuid.UUID) (model.AttemptSnapshot, error) {
	exam, qs, err := s.deps.Exams.Exam(ctx, examID)
	if err != nil {
		return model.AttemptSnapshot{}, err
	}
	id := exam.ID
	meta := model.QuizMeta{Grade: exam.Grade, Topic: exam.Title, ExamID: &id, Label: exam.Label}
	return s.start(h, meta, qs)
}

func (s *QuizService) start(h model.SessionHandle, meta model.QuizMeta, qs []model.Question) (model.AttemptSnapshot, error) {
	id := uuid.New()
	a := attempt.New(id, h, meta, qs,
		attempt.WithSubmitter(s.deps.Submitter),
		attempt.WithLogger(s.log),
		attempt.WithParent(s.ctx),
		attempt.WithTickInterval(s.cfg.TickInterval),
		attempt.WithTimeLimit(s.cfg.TimeLimit),
		attempt.OnFinish(func(r model.QuizResult) { s.finished(id, r) }),
	)
	mon := anticheat.New(a, h, s.deps.Sessions, s.deps.Reporter,
		anticheat.WithInterval(s.cfg.HeartbeatInterval),
		anticheat.WithRetryPolicy(s.cfg.RetryPolicy),
		anticheat.WithLogger(s.log),
		anticheat.WithLogout(func(ctx context.Context, h model.SessionHandle) {
			s.deps.Sessions.ForceLogout(ctx, h)
			s.publish(ctx, model.AttemptEvent{Type: model.EventForcedLogout, AttemptID: id})
		}),
	)

	ids := make([]string, len(qs))
	for i, q := range qs {
		ids[i] = q.ID
	}
	s.mu.Lock()
	s.active[id] = &activeAttempt{attempt: a, monitor: mon, questionIDs: ids}
	s.mu.Unlock()

	if err := a.Start(); err != nil {
		s.remove(id)
		return model.AttemptSnapshot{}, err
	}
	mon.Start(a.Scheduler())
	s.publish(s.ctx, model.AttemptEvent{Type: model.EventAttemptStarted, AttemptID: id})
	return a.Snapshot(), nil
}

func (s *QuizService) lookup(h model.SessionHandle, id uuid.UUID) (*activeAttempt, error) {
	s.mu.RLock()
	aa, ok := s.active[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrAttemptNotFound
	}
	if aa.attempt.Session().UserID != h.UserID {
		return nil, ErrNotAttemptOwner
	}
	return aa, nil
}

func (s *QuizService) remove(id uuid.UUID) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}

// Snapshot returns the caller's attempt.
func (s *QuizService) Snapshot(h model.SessionHandle, id uuid.UUID) (model.AttemptSnapshot, error) {
	aa, err := s.lookup(h, id)
	if err != nil {
		return model.AttemptSnapshot{}, err
	}
	return aa.attempt.Snapshot(), nil
}

// SelectAnswer stores an answer and mirrors it for autosave.
func (s *QuizService) SelectAnswer(ctx context.Context, h model.SessionHandle, id uuid.UUID, index int, value string) (model.Answer, error) {
	aa, err := s.lookup(h, id)
	if err != nil {
		return model.Answer{}, err
	}
	if err := aa.attempt.SelectAnswer(index, value); err != nil {
		return model.Answer{}, err
	}
	return s.saved(ctx, aa, index)
}

// UpdatePart sets one statement of a true/false answer.
func (s *QuizService) UpdatePart(ctx context.Context, h model.SessionHandle, id uuid.UUID, index int, part, mark string) (model.Answer, error) {
	aa, err := s.lookup(h, id)
	if err != nil {
		return model.Answer{}, err
	}
	p, err := model.ParsePart(part)
	if err != nil {
		return model.Answer{}, err
	}
	m, err := model.ParseMark(mark)
	if err != nil {
		return model.Answer{}, err
	}
	if err := aa.attempt.UpdateTrueFalsePart(index, p, m); err != nil {
		return model.Answer{}, err
	}
	return s.saved(ctx, aa, index)
}

func (s *QuizService) saved(ctx context.Context, aa *activeAttempt, index int) (model.Answer, error) {
	ans, err := aa.attempt.Answer(index)
	if err != nil {
		return model.Answer{}, err
	}
	encoded := ans.Encode()
	if s.deps.Answers != nil {
		s.deps.Answers.Record(ctx, model.SavedAnswer{
			AttemptID:  aa.attempt.ID(),
			UserID:     aa.attempt.Session().UserID,
			Position:   index,
			QuestionID: aa.questionIDs[index],
			Answer:     encoded,
			SavedAt:    s.now(),
		})
	}
	i := index
	s.publish(ctx, model.AttemptEvent{Type: model.EventAnswerSaved, AttemptID: aa.attempt.ID(), Index: &i, Answer: encoded})
	return ans, nil
}

// Move navigates by delta (+1 next, -1 previous) and returns the new index.
func (s *QuizService) Move(h model.SessionHandle, id uuid.UUID, delta int) (int, error) {
	aa, err := s.lookup(h, id)
	if err != nil {
		return 0, err
	}
	if delta < 0 {
		return aa.attempt.Previous(), nil
	}
	return aa.attempt.Next(), nil
}

// Visibility forwards a page visibility transition to the anti-cheat monitor.
func (s *QuizService) Visibility(ctx context.Context, h model.SessionHandle, id uuid.UUID, hidden bool) (model.AttemptSnapshot, error) {
	aa, err := s.lookup(h, id)
	if err != nil {
		return model.AttemptSnapshot{}, err
	}
	if aa.monitor.OnVisibilityChange(ctx, hidden) {
		snap := aa.attempt.Snapshot()
		s.publish(ctx, model.AttemptEvent{Type: model.EventTabSwitch, AttemptID: id, Count: snap.TabSwitchCount})
		return snap, nil
	}
	return aa.attempt.Snapshot(), nil
}

// Finish submits the caller's attempt. A completed attempt returns its
// existing result.
func (s *QuizService) Finish(ctx context.Context, h model.SessionHandle, id uuid.UUID) (model.QuizResult, error) {
	aa, err := s.lookup(h, id)
	if err != nil {
		return model.QuizResult{}, err
	}
	res, _, err := aa.attempt.Finish(ctx, model.ReasonNormal)
	return res, err
}

// finished runs once per attempt after its result is final.
func (s *QuizService) finished(id uuid.UUID, r model.QuizResult) {
	if s.deps.Progress != nil {
		s.deps.Progress.RecordPass(context.WithoutCancel(s.ctx), r)
	}
	s.publish(s.ctx, model.AttemptEvent{Type: model.EventAttemptFinished, AttemptID: id, Reason: r.Reason, Result: &r})
	time.AfterFunc(s.cfg.Linger, func() {
		s.remove(id)
		s.log.Debug().Str("attempt_id", id.String()).Msg("Attempt evicted")
	})
}

func (s *QuizService) publish(ctx context.Context, ev model.AttemptEvent) {
	if s.deps.Events == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = s.now()
	}
	s.deps.Events.Publish(context.WithoutCancel(ctx), ev)
}

// Owns reports whether the attempt exists and belongs to h.
func (s *QuizService) Owns(h model.SessionHandle, id uuid.UUID) error {
	_, err := s.lookup(h, id)
	return err
}

// ActiveCount is the number of attempts currently InProgress.
func (s *QuizService) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, aa := range s.active {
		if aa.attempt.InProgress() {
			n++
		}
	}
	return n
}

// Close stops every attempt's scheduler and waits for in-flight reports.
// Running attempts stay InProgress; their timers simply stop.
func (s *QuizService) Close() {
	s.cancel()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, aa := range s.active {
		aa.attempt.Scheduler().Wait()
		aa.monitor.Wait()
	}
	s.log.Info().Int("attempts", len(s.active)).Msg("Quiz service stopped")
}

