package attempt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/toanlab/lms-backend/internal/model"
)

/* ---------------- fakes ---------------- */

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeSubmitter struct {
	mu      sync.Mutex
	calls   []model.QuizResult
	err     error
	verdict *model.Verdict
}

func (s *fakeSubmitter) Submit(_ context.Context, _ model.SessionHandle, r model.QuizResult) (*model.Verdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, r)
	if s.err != nil {
		return nil, s.err
	}
	return s.verdict, nil
}

func (s *fakeSubmitter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

/* ---------------- helpers ---------------- */

var student = model.SessionHandle{UserID: "hs01@example.edu.vn", Role: model.RoleStudent, TokenID: "jti-1"}

func mcQuestions(keys ...string) []model.Question {
	qs := make([]model.Question, len(keys))
	for i, k := range keys {
		qs[i] = model.Question{
			ID:           fmt.Sprintf("Q%03d", i+1),
			QuestionType: model.QuestionTypeMultipleChoice,
			AnswerKey:    k,
		}
	}
	return qs
}

func newStarted(t *testing.T, qs []model.Question, opts ...Option) *Attempt {
	t.Helper()
	a := New(uuid.New(), student, model.QuizMeta{Grade: 10, Topic: "Hàm số"}, qs, opts...)
	if err := a.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		a.Scheduler().CancelAll()
		a.Scheduler().Wait()
	})
	return a
}

/* ---------------- tests ---------------- */

func TestAttemptScenarioFixAnswerThenSubmit(t *testing.T) {
	sub := &fakeSubmitter{verdict: &model.Verdict{Percentage: 80, Passed: true}}
	a := newStarted(t, mcQuestions("A", "B", "C", "D", "A"), WithSubmitter(sub))

	for i, v := range []string{"A", "B", "C", "A", "B"} {
		if err := a.SelectAnswer(i, v); err != nil {
			t.Fatalf("select %d: %v", i, err)
		}
		a.Next()
	}
	for i := 0; i < 2; i++ {
		a.Previous()
	}
	if err := a.SelectAnswer(3, "D"); err != nil {
		t.Fatal(err)
	}

	res, first, err := a.Finish(context.Background(), model.ReasonNormal)
	if err != nil || !first {
		t.Fatalf("finish: first=%v err=%v", first, err)
	}
	if res.Score != 4 || res.TotalQuestions != 5 {
		t.Fatalf("score %d/%d, want 4/5", res.Score, res.TotalQuestions)
	}
	if a.Status() != model.AttemptCompleted {
		t.Fatalf("status = %s", a.Status())
	}
	if res.Verdict == nil || !res.Verdict.Passed {
		t.Fatalf("verdict not attached: %+v", res.Verdict)
	}

	if err := a.SelectAnswer(4, "A"); !errors.Is(err, ErrCompleted) {
		t.Fatalf("want ErrCompleted, got %v", err)
	}
	if ans, _ := a.Answer(4); ans.Letter() != "B" {
		t.Fatalf("answer changed after completion: %q", ans.Encode())
	}
}

func TestFinishKeepsFirstReason(t *testing.T) {
	sub := &fakeSubmitter{}
	clock := newFakeClock()
	a := newStarted(t, mcQuestions("A", "B"), WithSubmitter(sub), WithClock(clock.Now))

	clock.Advance(30 * time.Second)
	first, ok, err := a.Finish(context.Background(), model.ReasonCheatTab)
	if err != nil || !ok {
		t.Fatalf("first finish: %v %v", ok, err)
	}
	clock.Advance(10 * time.Second)
	second, ok, err := a.Finish(context.Background(), model.ReasonNormal)
	if err != nil || ok {
		t.Fatalf("second finish: first=%v err=%v", ok, err)
	}

	if second.Reason != model.ReasonCheatTab {
		t.Fatalf("reason = %s, want cheat_tab", second.Reason)
	}
	if !second.FinishedAt.Equal(first.FinishedAt) || second.TimeSpentSeconds != 30 {
		t.Fatalf("end time changed: %v vs %v (%ds)", first.FinishedAt, second.FinishedAt, second.TimeSpentSeconds)
	}
	if sub.count() != 1 {
		t.Fatalf("submitter called %d times", sub.count())
	}
	if len(first.Violations) != 1 || first.Violations[0].Type != model.ReasonCheatTab {
		t.Fatalf("violations = %+v", first.Violations)
	}
}

func TestConcurrentFinishSubmitsOnce(t *testing.T) {
	sub := &fakeSubmitter{}
	a := newStarted(t, mcQuestions("A", "B", "C"), WithSubmitter(sub))

	reasons := []model.SubmissionReason{model.ReasonNormal, model.ReasonCheatTab, model.ReasonCheatConflict}
	var wg sync.WaitGroup
	var mu sync.Mutex
	firsts := 0
	got := map[model.SubmissionReason]int{}
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(r model.SubmissionReason) {
			defer wg.Done()
			res, first, err := a.Finish(context.Background(), r)
			if err != nil {
				t.Errorf("finish: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if first {
				firsts++
			}
			got[res.Reason]++
		}(reasons[i%len(reasons)])
	}
	wg.Wait()

	if firsts != 1 {
		t.Fatalf("%d callers saw first == true", firsts)
	}
	if len(got) != 1 {
		t.Fatalf("callers observed different results: %v", got)
	}
	if sub.count() != 1 {
		t.Fatalf("submitter called %d times", sub.count())
	}
}

func TestSubmissionFailureKeepsLocalResult(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("network down")}
	a := newStarted(t, mcQuestions("A"), WithSubmitter(sub))
	if err := a.SelectAnswer(0, "A"); err != nil {
		t.Fatal(err)
	}

	res, _, err := a.Finish(context.Background(), model.ReasonNormal)
	if err != nil {
		t.Fatalf("finish returned error %v", err)
	}
	if res.Score != 1 || res.Verdict != nil || res.SubmissionError == "" {
		t.Fatalf("unexpected result %+v", res)
	}
	if a.Status() != model.AttemptCompleted {
		t.Fatal("submission failure rolled back completion")
	}
	if sub.count() != 1 {
		t.Fatalf("submission retried: %d calls", sub.count())
	}
}

func TestFinishCancelsScheduler(t *testing.T) {
	a := newStarted(t, mcQuestions("A"), WithTickInterval(time.Millisecond))
	if _, _, err := a.Finish(context.Background(), model.ReasonNormal); err != nil {
		t.Fatal(err)
	}
	select {
	case <-a.Scheduler().Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler still running after finish")
	}
	if a.Scheduler().Every(time.Millisecond, func(context.Context) {}) {
		t.Fatal("cancelled scheduler accepted a new task")
	}
}

func TestTrueFalsePartMerge(t *testing.T) {
	qs := []model.Question{
		{ID: "TF1", QuestionType: model.QuestionTypeTrueFalse, AnswerKey: "Đ-S-Đ-S"},
		{ID: "MC1", QuestionType: model.QuestionTypeMultipleChoice, AnswerKey: "A"},
	}
	a := newStarted(t, qs)

	steps := []struct {
		part int
		mark model.Mark
		want string
	}{
		{1, model.MarkFalse, "N-S-N-N"},
		{0, model.MarkTrue, "Đ-S-N-N"},
		{3, model.MarkFalse, "Đ-S-N-S"},
		{2, model.MarkTrue, "Đ-S-Đ-S"},
	}
	for _, s := range steps {
		if err := a.UpdateTrueFalsePart(0, s.part, s.mark); err != nil {
			t.Fatal(err)
		}
		if got, _ := a.Answer(0); got.Encode() != s.want {
			t.Fatalf("after part %d: %q, want %q", s.part, got.Encode(), s.want)
		}
	}

	if err := a.UpdateTrueFalsePart(1, 0, model.MarkTrue); !errors.Is(err, ErrNotTrueFalse) {
		t.Fatalf("want ErrNotTrueFalse, got %v", err)
	}
	res, _, _ := a.Finish(context.Background(), model.ReasonNormal)
	if res.Score != 1 {
		t.Fatalf("score = %d, want 1", res.Score)
	}
}

func TestShortAnswerKeptVerbatim(t *testing.T) {
	qs := []model.Question{{ID: "S1", QuestionType: model.QuestionTypeShortAnswer, AnswerKey: "15.5"}}
	a := newStarted(t, qs)
	if err := a.SelectAnswer(0, "  15.5 "); err != nil {
		t.Fatal(err)
	}
	if got, _ := a.Answer(0); got.Text() != "  15.5 " {
		t.Fatalf("captured %q", got.Text())
	}
	res, _, _ := a.Finish(context.Background(), model.ReasonNormal)
	if res.Score != 1 || res.Answers[0].UserAnswer != "  15.5 " {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestNavigationClamps(t *testing.T) {
	a := newStarted(t, mcQuestions("A", "B", "C"))
	if got := a.Previous(); got != 0 {
		t.Fatalf("Previous at start = %d", got)
	}
	a.Next()
	a.Next()
	if got := a.Next(); got != 2 {
		t.Fatalf("Next at end = %d", got)
	}
}

func TestStateGuards(t *testing.T) {
	a := New(uuid.New(), student, model.QuizMeta{}, mcQuestions("A"))
	if err := a.SelectAnswer(0, "A"); !errors.Is(err, ErrNotInProgress) {
		t.Fatalf("select before start: %v", err)
	}
	if _, _, err := a.Finish(context.Background(), model.ReasonNormal); !errors.Is(err, ErrNotInProgress) {
		t.Fatalf("finish before start: %v", err)
	}
	if err := a.Start(); err != nil {
		t.Fatal(err)
	}
	defer a.Scheduler().CancelAll()
	if err := a.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second start: %v", err)
	}
	if err := a.SelectAnswer(1, "A"); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("out of range: %v", err)
	}
	if err := a.SelectAnswer(0, "Z"); !errors.Is(err, model.ErrInvalidAnswer) {
		t.Fatalf("invalid letter: %v", err)
	}

	empty := New(uuid.New(), student, model.QuizMeta{}, nil)
	if err := empty.Start(); !errors.Is(err, ErrNoQuestions) {
		t.Fatalf("empty start: %v", err)
	}
}

func TestAnswersLengthMatchesQuestions(t *testing.T) {
	a := newStarted(t, mcQuestions("A", "B", "C", "D"))
	_ = a.SelectAnswer(2, "C")
	snap := a.Snapshot()
	if len(snap.Answers) != len(snap.Questions) {
		t.Fatalf("answers %d != questions %d", len(snap.Answers), len(snap.Questions))
	}
	if snap.Answers[0].IsSet() || !snap.Answers[2].IsSet() {
		t.Fatalf("unexpected answers %+v", snap.Answers)
	}
}

func TestTickTracksElapsedAndTimeLimit(t *testing.T) {
	clock := newFakeClock()
	sub := &fakeSubmitter{}
	a := newStarted(t, mcQuestions("A", "B"),
		WithClock(clock.Now),
		WithSubmitter(sub),
		WithTickInterval(time.Hour),
		WithTimeLimit(90*time.Second),
	)

	clock.Advance(45 * time.Second)
	a.tick(context.Background())
	if snap := a.Snapshot(); snap.ElapsedSeconds != 45 || snap.Status != model.AttemptInProgress {
		t.Fatalf("after 45s: %+v", snap)
	}

	clock.Advance(45 * time.Second)
	a.tick(context.Background())
	res, ok := a.Result()
	if !ok || res.Reason != model.ReasonNormal || res.TimeSpentSeconds != 90 {
		t.Fatalf("time limit did not finish attempt: %+v", res)
	}
	if sub.count() != 1 {
		t.Fatalf("submitter called %d times", sub.count())
	}
}

func TestOnFinishListener(t *testing.T) {
	var got []model.QuizResult
	a := newStarted(t, mcQuestions("A"), OnFinish(func(r model.QuizResult) { got = append(got, r) }))
	_, _, _ = a.Finish(context.Background(), model.ReasonCheatConflict)
	_, _, _ = a.Finish(context.Background(), model.ReasonNormal)
	if len(got) != 1 || got[0].Reason != model.ReasonCheatConflict {
		t.Fatalf("listener calls %+v", got)
	}
}
