package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/toanlab/lms-backend/internal/attempt"
	"github.com/toanlab/lms-backend/internal/bank"
	"github.com/toanlab/lms-backend/internal/model"
)

/* ---------------- fakes ---------------- */

type fakeBank struct{ pool *bank.Pool }

func (b fakeBank) Pool(context.Context, int) (*bank.Pool, error) { return b.pool, nil }

func (b fakeBank) Ordered(_ context.Context, ids []string) ([]model.Question, error) {
	qs, missing := b.pool.Lookup(ids)
	if len(missing) > 0 {
		return nil, ErrQuestionsMissing
	}
	return qs, nil
}

type fakeExams map[uuid.UUID]*model.PublishedExam

func (f fakeExams) Create(_ context.Context, e *model.PublishedExam) error {
	f[e.ID] = e
	return nil
}

func (f fakeExams) GetByID(_ context.Context, id uuid.UUID) (*model.PublishedExam, error) {
	e, ok := f[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return e, nil
}

type fakeSessions struct {
	mu      sync.Mutex
	status  model.SessionStatus
	logouts int
}

func (f *fakeSessions) Check(context.Context, model.SessionHandle) (model.SessionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == "" {
		return model.SessionValid, nil
	}
	return f.status, nil
}

func (f *fakeSessions) ForceLogout(context.Context, model.SessionHandle) {
	f.mu.Lock()
	f.logouts++
	f.mu.Unlock()
}

type gradeSubmitter struct{}

func (gradeSubmitter) Submit(_ context.Context, _ model.SessionHandle, r model.QuizResult) (*model.Verdict, error) {
	v := ComputeVerdict(r.Score, r.TotalQuestions, 80, r.Meta.Level)
	return &v, nil
}

type recorder struct {
	mu      sync.Mutex
	events  []model.AttemptEvent
	answers []model.SavedAnswer
	reports []model.ViolationReport
}

func (r *recorder) Publish(_ context.Context, ev model.AttemptEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) Record(_ context.Context, a model.SavedAnswer) {
	r.mu.Lock()
	r.answers = append(r.answers, a)
	r.mu.Unlock()
}

func (r *recorder) Report(_ context.Context, v model.ViolationReport) error {
	r.mu.Lock()
	r.reports = append(r.reports, v)
	r.mu.Unlock()
	return nil
}

func (r *recorder) eventTypes() []model.AttemptEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.AttemptEventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recorder) has(t model.AttemptEventType) bool {
	for _, et := range r.eventTypes() {
		if et == t {
			return true
		}
	}
	return false
}

/* ---------------- helpers ---------------- */

var (
	student = model.SessionHandle{UserID: "hs01@example.edu.vn", Role: model.RoleStudent, TokenID: "jti-1"}
	teacher = model.SessionHandle{UserID: "gv01@example.edu.vn", Role: model.RoleTeacher, TokenID: "jti-t"}
)

func quizPool() *bank.Pool {
	return bank.NewPool([]model.Question{
		{ID: "Q001", Grade: 12, Topic: "Hàm số", Level: model.LevelRecall, QuestionType: model.QuestionTypeMultipleChoice, AnswerKey: "A"},
		{ID: "Q002", Grade: 12, Topic: "Hàm số", Level: model.LevelRecall, QuestionType: model.QuestionTypeTrueFalse, AnswerKey: "Đ-S-Đ-S"},
		{ID: "Q003", Grade: 12, Topic: "Hàm số", Level: model.LevelRecall, QuestionType: model.QuestionTypeShortAnswer, AnswerKey: "0.5"},
		{ID: "Q004", Grade: 12, Topic: "Tích phân", Level: model.LevelApplication, QuestionType: model.QuestionTypeMultipleChoice, AnswerKey: "C"},
	})
}

func newQuiz(t *testing.T, sessions *fakeSessions, rec *recorder, exams fakeExams) *QuizService {
	t.Helper()
	pool := quizPool()
	composer := NewComposerService(fakeBank{pool}, exams, zerolog.Nop())
	svc := NewQuizService(QuizDeps{
		Bank:      fakeBank{pool},
		Exams:     composer,
		Submitter: gradeSubmitter{},
		Sessions:  sessions,
		Reporter:  rec,
		Events:    rec,
		Answers:   rec,
	}, QuizConfig{
		HeartbeatInterval: time.Hour,
		TickInterval:      time.Hour,
		RetryPolicy:       fastPolicy,
	}, zerolog.Nop())
	t.Cleanup(svc.Close)
	return svc
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

/* ---------------- tests ---------------- */

func TestPracticeAttemptFlow(t *testing.T) {
	rec := &recorder{}
	svc := newQuiz(t, &fakeSessions{}, rec, fakeExams{})
	ctx := context.Background()

	snap, err := svc.StartPractice(ctx, student, model.StartQuizRequest{Grade: 12, Topic: "Hàm số", Level: string(model.LevelRecall)})
	if err != nil {
		t.Fatal(err)
	}
	if snap.Status != model.AttemptInProgress || len(snap.Questions) != 3 || !snap.AntiCheatEnabled {
		t.Fatalf("snapshot = %+v", snap)
	}

	if _, err := svc.SelectAnswer(ctx, student, snap.ID, 0, "A"); err != nil {
		t.Fatal(err)
	}
	for i, m := range []string{"Đ", "S", "Đ", "S"} {
		if _, err := svc.UpdatePart(ctx, student, snap.ID, 1, string(rune('A'+i)), m); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := svc.SelectAnswer(ctx, student, snap.ID, 2, " 0.5 "); err != nil {
		t.Fatal(err)
	}
	if idx, _ := svc.Move(student, snap.ID, 1); idx != 1 {
		t.Fatalf("next index = %d", idx)
	}

	res, err := svc.Finish(ctx, student, snap.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Score != 3 || res.Reason != model.ReasonNormal || res.Verdict == nil || !res.Verdict.Passed {
		t.Fatalf("result = %+v", res)
	}

	again, err := svc.Finish(ctx, student, snap.ID)
	if err != nil || again.FinishedAt != res.FinishedAt {
		t.Fatalf("second finish = %+v, %v", again, err)
	}
	if _, err := svc.SelectAnswer(ctx, student, snap.ID, 0, "B"); !errors.Is(err, attempt.ErrCompleted) {
		t.Fatalf("answer after finish err = %v", err)
	}

	rec.mu.Lock()
	saved := append([]model.SavedAnswer(nil), rec.answers...)
	rec.mu.Unlock()
	if len(saved) != 6 || saved[0].QuestionID != "Q001" || saved[4].Answer != "Đ-S-Đ-S" || saved[5].Answer != " 0.5 " {
		t.Fatalf("autosaved = %+v", saved)
	}
	waitFor(t, func() bool { return rec.has(model.EventAttemptFinished) })
	if types := rec.eventTypes(); types[0] != model.EventAttemptStarted {
		t.Fatalf("events = %v", types)
	}
}

func TestPracticeWithoutQuestions(t *testing.T) {
	svc := newQuiz(t, &fakeSessions{}, &recorder{}, fakeExams{})
	_, err := svc.StartPractice(context.Background(), student,
		model.StartQuizRequest{Grade: 12, Topic: "Hình học không gian", Level: string(model.LevelRecall)})
	if !errors.Is(err, attempt.ErrNoQuestions) {
		t.Fatalf("err = %v", err)
	}
	if svc.ActiveCount() != 0 {
		t.Fatal("empty attempt registered")
	}
}

func TestAttemptOwnership(t *testing.T) {
	svc := newQuiz(t, &fakeSessions{}, &recorder{}, fakeExams{})
	snap, err := svc.StartPractice(context.Background(), student,
		model.StartQuizRequest{Grade: 12, Topic: "Tích phân", Level: string(model.LevelApplication)})
	if err != nil {
		t.Fatal(err)
	}
	other := model.SessionHandle{UserID: "hs99", Role: model.RoleStudent}
	if _, err := svc.Snapshot(other, snap.ID); !errors.Is(err, ErrNotAttemptOwner) {
		t.Fatalf("err = %v", err)
	}
	if _, err := svc.Finish(context.Background(), student, uuid.New()); !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestTabSwitchForceFinishes(t *testing.T) {
	rec := &recorder{}
	svc := newQuiz(t, &fakeSessions{}, rec, fakeExams{})
	ctx := context.Background()
	snap, _ := svc.StartPractice(ctx, student, model.StartQuizRequest{Grade: 12, Topic: "Hàm số", Level: string(model.LevelRecall)})

	if s, _ := svc.Visibility(ctx, student, snap.ID, false); s.Status != model.AttemptInProgress {
		t.Fatal("visible transition finished attempt")
	}
	s, err := svc.Visibility(ctx, student, snap.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if s.Status != model.AttemptCompleted || s.Result.Reason != model.ReasonCheatTab || s.TabSwitchCount != 1 {
		t.Fatalf("snapshot = %+v", s)
	}
	if len(s.Result.Violations) != 1 || s.Result.Violations[0].Type != model.ReasonCheatTab {
		t.Fatalf("violations = %+v", s.Result.Violations)
	}
	waitFor(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.reports) == 1
	})
	if !rec.has(model.EventTabSwitch) {
		t.Fatal("tab switch event not published")
	}
}

func TestTeacherAttemptSkipsAntiCheat(t *testing.T) {
	svc := newQuiz(t, &fakeSessions{status: model.SessionConflict}, &recorder{}, fakeExams{})
	ctx := context.Background()
	snap, err := svc.StartPractice(ctx, teacher, model.StartQuizRequest{Grade: 12, Topic: "Hàm số", Level: string(model.LevelRecall)})
	if err != nil {
		t.Fatal(err)
	}
	if snap.AntiCheatEnabled {
		t.Fatal("anti-cheat enabled for teacher")
	}
	if s, _ := svc.Visibility(ctx, teacher, snap.ID, true); s.Status != model.AttemptInProgress {
		t.Fatal("teacher attempt finished on tab switch")
	}
}

func TestHeartbeatConflictFinishesAttempt(t *testing.T) {
	rec := &recorder{}
	sessions := &fakeSessions{status: model.SessionConflict}
	svc := newQuiz(t, sessions, rec, fakeExams{})
	svc.cfg.HeartbeatInterval = 5 * time.Millisecond

	snap, err := svc.StartPractice(context.Background(), student,
		model.StartQuizRequest{Grade: 12, Topic: "Hàm số", Level: string(model.LevelRecall)})
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		s, _ := svc.Snapshot(student, snap.ID)
		return s.Status == model.AttemptCompleted && s.Result.Verdict != nil
	})
	s, _ := svc.Snapshot(student, snap.ID)
	if s.Result.Reason != model.ReasonCheatConflict {
		t.Fatalf("reason = %s", s.Result.Reason)
	}
	sessions.mu.Lock()
	defer sessions.mu.Unlock()
	if sessions.logouts != 0 {
		t.Fatal("logout issued while attempt was running")
	}
}

func TestStartExamKeepsStoredOrder(t *testing.T) {
	exams := fakeExams{}
	svc := newQuiz(t, &fakeSessions{}, &recorder{}, exams)
	id := uuid.New()
	exams[id] = &model.PublishedExam{ID: id, Label: "Đề 101", Title: "Đề 101 - Tổng hợp", Grade: 12,
		QuestionIDs: []string{"Q004", "Q001"}}

	snap, err := svc.StartExam(context.Background(), student, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Questions) != 2 || snap.Questions[0].ID != "Q004" || snap.Meta.ExamID == nil || *snap.Meta.ExamID != id {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Meta.Label != "Đề 101" {
		t.Fatalf("label = %q", snap.Meta.Label)
	}
}

func TestPracticeLevelGate(t *testing.T) {
	rec := &recorder{}
	pool := quizPool()
	overlay := newMemOverlay()
	progress := NewProgressService(&fakeProgressStore{}, overlay, nil, zerolog.Nop())
	svc := NewQuizService(QuizDeps{
		Bank:      fakeBank{pool},
		Exams:     NewComposerService(fakeBank{pool}, fakeExams{}, zerolog.Nop()),
		Submitter: gradeSubmitter{},
		Sessions:  &fakeSessions{},
		Reporter:  rec,
		Progress:  progress,
	}, QuizConfig{HeartbeatInterval: time.Hour, TickInterval: time.Hour, RetryPolicy: fastPolicy}, zerolog.Nop())
	t.Cleanup(svc.Close)
	ctx := context.Background()

	_, err := svc.StartPractice(ctx, student, model.StartQuizRequest{Grade: 12, Topic: "Tích phân", Level: string(model.LevelApplication)})
	if !errors.Is(err, ErrLevelLocked) {
		t.Fatalf("locked level: err = %v", err)
	}
	if _, err := svc.StartPractice(ctx, teacher, model.StartQuizRequest{Grade: 12, Topic: "Tích phân", Level: string(model.LevelApplication)}); err != nil {
		t.Fatalf("teacher: %v", err)
	}

	snap, err := svc.StartPractice(ctx, student, model.StartQuizRequest{Grade: 12, Topic: "Hàm số", Level: string(model.LevelRecall)})
	if err != nil {
		t.Fatal(err)
	}
	svc.SelectAnswer(ctx, student, snap.ID, 0, "A")
	for i, m := range []string{"Đ", "S", "Đ", "S"} {
		svc.UpdatePart(ctx, student, snap.ID, 1, string(rune('A'+i)), m)
	}
	svc.SelectAnswer(ctx, student, snap.ID, 2, "0.5")
	res, err := svc.Finish(ctx, student, snap.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Verdict == nil || !res.Verdict.Passed {
		t.Fatalf("verdict = %+v", res.Verdict)
	}

	if err := progress.CheckLevel(ctx, student, 12, "Hàm số", model.LevelComprehension); err != nil {
		t.Fatalf("next level still locked after pass: %v", err)
	}
	if err := progress.CheckLevel(ctx, student, 12, "Hàm số", model.LevelApplication); !errors.Is(err, ErrLevelLocked) {
		t.Fatalf("two levels up: err = %v", err)
	}
}
