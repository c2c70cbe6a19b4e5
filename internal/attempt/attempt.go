// Package attempt implements the quiz attempt state machine:
// Idle -> InProgress -> Completed, with a single idempotent Finish.
package attempt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/toanlab/lms-backend/internal/grading"
	"github.com/toanlab/lms-backend/internal/model"
)

// Attempt errors.
var (
	ErrAlreadyStarted  = errors.New("attempt already started")
	ErrNotInProgress   = errors.New("attempt is not in progress")
	ErrCompleted       = errors.New("attempt already completed")
	ErrIndexOutOfRange = errors.New("question index out of range")
	ErrNotTrueFalse    = errors.New("question is not a true/false question")
	ErrNoQuestions     = errors.New("question set is empty")
)

const (
	defaultTickInterval  = time.Second
	defaultSubmitTimeout = 15 * time.Second
)

// Submitter hands a completed result to the result collaborator and returns
// the server verdict. A returned error never undoes completion.
type Submitter interface {
	Submit(ctx context.Context, session model.SessionHandle, result model.QuizResult) (*model.Verdict, error)
}

// Option configures an Attempt.
type Option func(*Attempt)

func WithSubmitter(s Submitter) Option { return func(a *Attempt) { a.submitter = s } }

func WithLogger(log zerolog.Logger) Option { return func(a *Attempt) { a.log = log } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(a *Attempt) { a.now = now } }

func WithTickInterval(d time.Duration) Option { return func(a *Attempt) { a.tickEvery = d } }

// WithTimeLimit finishes the attempt with ReasonNormal once elapsed time reaches d.
// Zero disables the limit.
func WithTimeLimit(d time.Duration) Option { return func(a *Attempt) { a.timeLimit = d } }

func WithSubmitTimeout(d time.Duration) Option { return func(a *Attempt) { a.submitTimeout = d } }

// WithParent bounds the attempt's scheduler by ctx.
func WithParent(ctx context.Context) Option { return func(a *Attempt) { a.parent = ctx } }

// OnFinish registers fn to run once with the final result.
func OnFinish(fn func(model.QuizResult)) Option {
	return func(a *Attempt) { a.listeners = append(a.listeners, fn) }
}

// Attempt is one user's run through a question set. All methods are safe
// for concurrent use.
type Attempt struct {
	mu sync.Mutex

	id        uuid.UUID
	session   model.SessionHandle
	meta      model.QuizMeta
	questions []model.Question
	answers   []model.Answer
	current   int
	status    model.AttemptStatus
	elapsed   int
	tabs      int
	startedAt time.Time
	result    *model.QuizResult
	done      chan struct{}

	grader        *grading.Grader
	submitter     Submitter
	sched         *Scheduler
	parent        context.Context
	log           zerolog.Logger
	now           func() time.Time
	tickEvery     time.Duration
	timeLimit     time.Duration
	submitTimeout time.Duration
	listeners     []func(model.QuizResult)
}

// New builds an Idle attempt over questions.
func New(id uuid.UUID, session model.SessionHandle, meta model.QuizMeta, questions []model.Question, opts ...Option) *Attempt {
	a := &Attempt{
		id:            id,
		session:       session,
		meta:          meta,
		questions:     append([]model.Question(nil), questions...),
		status:        model.AttemptIdle,
		done:          make(chan struct{}),
		grader:        grading.NewGrader(),
		parent:        context.Background(),
		log:           zerolog.Nop(),
		now:           time.Now,
		tickEvery:     defaultTickInterval,
		submitTimeout: defaultSubmitTimeout,
	}
	for _, o := range opts {
		o(a)
	}
	a.answers = make([]model.Answer, len(a.questions))
	a.sched = NewScheduler(a.parent)
	a.log = a.log.With().
		Str("attempt_id", id.String()).
		Str("user_id", session.UserID).
		Logger()
	return a
}

func (a *Attempt) ID() uuid.UUID { return a.id }

func (a *Attempt) Session() model.SessionHandle { return a.session }

func (a *Attempt) Meta() model.QuizMeta { return a.meta }

// Scheduler exposes the attempt-owned scheduler so observers can register
// periodic work that stops when the attempt leaves InProgress.
func (a *Attempt) Scheduler() *Scheduler { return a.sched }

// Done is closed once the final result, including any verdict, is available.
func (a *Attempt) Done() <-chan struct{} { return a.done }

// Start moves an Idle attempt to InProgress and starts the elapsed tick.
func (a *Attempt) Start() error {
	a.mu.Lock()
	if a.status != model.AttemptIdle {
		a.mu.Unlock()
		return ErrAlreadyStarted
	}
	if len(a.questions) == 0 {
		a.mu.Unlock()
		return ErrNoQuestions
	}
	for i := range a.answers {
		a.answers[i] = model.Unset()
	}
	a.current = 0
	a.tabs = 0
	a.elapsed = 0
	a.startedAt = a.now()
	a.status = model.AttemptInProgress
	a.mu.Unlock()

	a.sched.Every(a.tickEvery, func(ctx context.Context) { a.tick(ctx) })
	a.log.Info().Int("questions", len(a.questions)).Msg("Attempt started")
	return nil
}

// tick refreshes the elapsed counter and enforces the optional time limit.
func (a *Attempt) tick(ctx context.Context) {
	a.mu.Lock()
	if a.status != model.AttemptInProgress {
		a.mu.Unlock()
		return
	}
	if e := a.sinceStart(); e > a.elapsed {
		a.elapsed = e
	}
	expired := a.timeLimit > 0 && time.Duration(a.elapsed)*time.Second >= a.timeLimit
	a.mu.Unlock()

	if expired {
		a.log.Info().Msg("Time limit reached")
		_, _, _ = a.Finish(ctx, model.ReasonNormal)
	}
}

func (a *Attempt) sinceStart() int {
	return int(a.now().Sub(a.startedAt) / time.Second)
}

// mutable checks that answers may change. Caller holds a.mu.
func (a *Attempt) mutable(index int) error {
	switch a.status {
	case model.AttemptCompleted:
		return ErrCompleted
	case model.AttemptIdle:
		return ErrNotInProgress
	}
	if index < 0 || index >= len(a.questions) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	return nil
}

// SelectAnswer stores a wire-encoded answer for questions[index]. The value
// is validated against the question type; short answers are kept verbatim.
// An empty value clears the slot.
func (a *Attempt) SelectAnswer(index int, value string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.mutable(index); err != nil {
		return err
	}
	ans, err := model.ParseAnswer(a.questions[index].QuestionType, value)
	if err != nil {
		return err
	}
	a.answers[index] = ans
	return nil
}

// UpdateTrueFalsePart sets statement part (0-3) of a true/false answer,
// leaving the other three positions untouched.
func (a *Attempt) UpdateTrueFalsePart(index, part int, mark model.Mark) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.mutable(index); err != nil {
		return err
	}
	if a.questions[index].QuestionType != model.QuestionTypeTrueFalse {
		return ErrNotTrueFalse
	}
	next, err := a.answers[index].WithPart(part, mark)
	if err != nil {
		return err
	}
	a.answers[index] = next
	return nil
}

// Answer returns the current value of one slot.
func (a *Attempt) Answer(index int) (model.Answer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if index < 0 || index >= len(a.answers) {
		return model.Answer{}, ErrIndexOutOfRange
	}
	return a.answers[index], nil
}

// Next advances the current index, clamped to the last question.
func (a *Attempt) Next() int { return a.move(1) }

// Previous moves back, clamped to the first question.
func (a *Attempt) Previous() int { return a.move(-1) }

func (a *Attempt) move(delta int) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status != model.AttemptInProgress {
		return a.current
	}
	a.current = min(max(a.current+delta, 0), len(a.questions)-1)
	return a.current
}

// InProgress reports whether the attempt is running.
func (a *Attempt) InProgress() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status == model.AttemptInProgress
}

func (a *Attempt) Status() model.AttemptStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// RecordTabSwitch increments the tab-switch counter while InProgress and
// returns the running count.
func (a *Attempt) RecordTabSwitch() (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status != model.AttemptInProgress {
		return a.tabs, false
	}
	a.tabs++
	return a.tabs, true
}

// Finish completes the attempt exactly once. The first caller grades,
// commits, stops the scheduler and submits; it gets first == true. Later
// callers wait for that result and get it unchanged.
func (a *Attempt) Finish(ctx context.Context, reason model.SubmissionReason) (model.QuizResult, bool, error) {
	a.mu.Lock()
	switch a.status {
	case model.AttemptIdle:
		a.mu.Unlock()
		return model.QuizResult{}, false, ErrNotInProgress
	case model.AttemptCompleted:
		a.mu.Unlock()
		select {
		case <-a.done:
		case <-ctx.Done():
		}
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.result.Clone(), false, nil
	}

	// Check, set and score without releasing the lock.
	finishedAt := a.now()
	if e := a.sinceStart(); e > a.elapsed {
		a.elapsed = e
	}
	score, records := a.grader.Score(a.questions, a.answers)
	var violations []model.Violation
	if reason != model.ReasonNormal {
		violations = append(violations, model.Violation{Type: reason, Timestamp: finishedAt})
	}
	a.status = model.AttemptCompleted
	a.result = &model.QuizResult{
		AttemptID:        a.id,
		UserID:           a.session.UserID,
		UserName:         a.session.Name,
		Meta:             a.meta,
		Score:            score,
		TotalQuestions:   len(a.questions),
		TimeSpentSeconds: a.elapsed,
		Reason:           reason,
		TabSwitchCount:   a.tabs,
		Answers:          records,
		Violations:       violations,
		StartedAt:        a.startedAt,
		FinishedAt:       finishedAt,
	}
	local := a.result.Clone()
	a.mu.Unlock()

	a.sched.CancelAll()
	a.log.Info().
		Str("reason", string(reason)).
		Int("score", score).
		Int("total", local.TotalQuestions).
		Int("time_spent", local.TimeSpentSeconds).
		Msg("Attempt finished")

	verdict, subErr := a.submit(ctx, local)

	a.mu.Lock()
	if subErr != nil {
		a.result.SubmissionError = subErr.Error()
	} else {
		a.result.Verdict = verdict
	}
	final := a.result.Clone()
	close(a.done)
	a.mu.Unlock()

	for _, fn := range a.listeners {
		fn(final.Clone())
	}
	return final, true, nil
}

// submit runs detached from ctx cancellation: Finish is often called from a
// scheduler task whose context CancelAll has just cancelled.
func (a *Attempt) submit(ctx context.Context, result model.QuizResult) (*model.Verdict, error) {
	if a.submitter == nil {
		return nil, nil
	}
	subCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.submitTimeout)
	defer cancel()

	verdict, err := a.submitter.Submit(subCtx, a.session, result)
	if err != nil {
		a.log.Warn().Err(err).Msg("Result submission failed, keeping local result")
		return nil, err
	}
	return verdict, nil
}

// Result returns the final result once the attempt is completed.
func (a *Attempt) Result() (model.QuizResult, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.result == nil {
		return model.QuizResult{}, false
	}
	return a.result.Clone(), true
}

// Snapshot returns the client read model. Answer keys are never included.
func (a *Attempt) Snapshot() model.AttemptSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	elapsed := a.elapsed
	if a.status == model.AttemptInProgress {
		elapsed = max(elapsed, a.sinceStart())
	}
	snap := model.AttemptSnapshot{
		ID:               a.id,
		Status:           a.status,
		Meta:             a.meta,
		Questions:        model.Views(a.questions),
		Answers:          append([]model.Answer(nil), a.answers...),
		CurrentIndex:     a.current,
		ElapsedSeconds:   elapsed,
		TabSwitchCount:   a.tabs,
		StartedAt:        a.startedAt,
		AntiCheatEnabled: !a.session.Exempt(),
	}
	if a.result != nil {
		r := a.result.Clone()
		snap.Result = &r
	}
	return snap
}
