package anticheat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/toanlab/lms-backend/internal/attempt"
	"github.com/toanlab/lms-backend/internal/model"
	"github.com/toanlab/lms-backend/internal/retry"
)

/* ---------------- fakes ---------------- */

type fakeChecker struct {
	mu       sync.Mutex
	statuses []model.SessionStatus
	errs     []error
	calls    int
}

func (c *fakeChecker) Check(context.Context, model.SessionHandle) (model.SessionStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return "", c.errs[i]
	}
	if i < len(c.statuses) {
		return c.statuses[i], nil
	}
	return model.SessionValid, nil
}

type fakeReporter struct {
	mu      sync.Mutex
	reports []model.ViolationReport
}

func (r *fakeReporter) Report(_ context.Context, v model.ViolationReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, v)
	return nil
}

func (r *fakeReporter) all() []model.ViolationReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ViolationReport(nil), r.reports...)
}

/* ---------------- helpers ---------------- */

var fastRetry = retry.Policy{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}

func session(role model.Role) model.SessionHandle {
	return model.SessionHandle{UserID: "hs02@example.edu.vn", Role: role, TokenID: "jti-2"}
}

func startedAttempt(t *testing.T, s model.SessionHandle) *attempt.Attempt {
	t.Helper()
	qs := []model.Question{
		{ID: "Q1", QuestionType: model.QuestionTypeMultipleChoice, AnswerKey: "A"},
		{ID: "Q2", QuestionType: model.QuestionTypeMultipleChoice, AnswerKey: "B"},
	}
	a := attempt.New(uuid.New(), s, model.QuizMeta{Grade: 11, Topic: "Lượng giác", Level: model.LevelComprehension}, qs,
		attempt.WithTickInterval(time.Hour))
	if err := a.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(a.Scheduler().CancelAll)
	return a
}

/* ---------------- tests ---------------- */

func TestTabSwitchFinishesAttempt(t *testing.T) {
	s := session(model.RoleStudent)
	a := startedAttempt(t, s)
	if err := a.SelectAnswer(0, "A"); err != nil {
		t.Fatal(err)
	}
	rep := &fakeReporter{}
	m := New(a, s, &fakeChecker{}, rep, WithRetryPolicy(fastRetry))

	if !m.OnVisibilityChange(context.Background(), true) {
		t.Fatal("visibility change did not finish the attempt")
	}
	m.Wait()

	res, ok := a.Result()
	if !ok || res.Reason != model.ReasonCheatTab || res.Score != 1 || res.TabSwitchCount != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	reports := rep.all()
	if len(reports) != 1 || reports[0].Count != 1 || reports[0].Type != model.ViolationTabSwitch {
		t.Fatalf("unexpected reports %+v", reports)
	}
	if reports[0].Topic != "Lượng giác" || reports[0].Level != model.LevelComprehension {
		t.Fatalf("report missing quiz context %+v", reports[0])
	}

	// A second hide after completion is ignored.
	if m.OnVisibilityChange(context.Background(), true) {
		t.Fatal("second hide finished again")
	}
	m.Wait()
	if len(rep.all()) != 1 {
		t.Fatal("report sent after completion")
	}
}

func TestVisibleTransitionIgnored(t *testing.T) {
	s := session(model.RoleStudent)
	a := startedAttempt(t, s)
	m := New(a, s, &fakeChecker{}, &fakeReporter{})
	if m.OnVisibilityChange(context.Background(), false) || !a.InProgress() {
		t.Fatal("visible transition affected attempt")
	}
}

func TestTeacherExempt(t *testing.T) {
	s := session(model.RoleTeacher)
	a := startedAttempt(t, s)
	checker := &fakeChecker{statuses: []model.SessionStatus{model.SessionConflict}}
	m := New(a, s, checker, &fakeReporter{})

	if m.Start(a.Scheduler()) {
		t.Fatal("heartbeat started for teacher")
	}
	if m.OnVisibilityChange(context.Background(), true) {
		t.Fatal("tab switch enforced for teacher")
	}
	m.CheckOnce(context.Background())
	if !a.InProgress() || checker.calls != 0 {
		t.Fatal("teacher attempt monitored")
	}
}

func TestConflictFinishesOnceDespiteTabSwitch(t *testing.T) {
	s := session(model.RoleStudent)
	a := startedAttempt(t, s)
	rep := &fakeReporter{}
	logouts := 0
	m := New(a, s, &fakeChecker{statuses: []model.SessionStatus{model.SessionConflict}}, rep,
		WithRetryPolicy(fastRetry),
		WithLogout(func(context.Context, model.SessionHandle) { logouts++ }),
	)

	if got := m.CheckOnce(context.Background()); got != model.SessionConflict {
		t.Fatalf("status = %s", got)
	}
	if m.OnVisibilityChange(context.Background(), true) {
		t.Fatal("tab switch finished an already completed attempt")
	}
	m.Wait()

	res, _ := a.Result()
	if res.Reason != model.ReasonCheatConflict {
		t.Fatalf("reason = %s, want cheat_conflict", res.Reason)
	}
	if len(rep.all()) != 0 {
		t.Fatal("tab switch reported after conflict")
	}
	if logouts != 0 {
		t.Fatal("logout called while attempt was running")
	}
}

func TestConcurrentTriggersFinishExactlyOnce(t *testing.T) {
	s := session(model.RoleStudent)
	var mu sync.Mutex
	finishes := 0
	qs := []model.Question{{ID: "Q1", QuestionType: model.QuestionTypeMultipleChoice, AnswerKey: "A"}}
	a := attempt.New(uuid.New(), s, model.QuizMeta{}, qs,
		attempt.WithTickInterval(time.Hour),
		attempt.OnFinish(func(model.QuizResult) { mu.Lock(); finishes++; mu.Unlock() }),
	)
	if err := a.Start(); err != nil {
		t.Fatal(err)
	}
	m := New(a, s, &fakeChecker{statuses: []model.SessionStatus{model.SessionConflict}}, &fakeReporter{},
		WithRetryPolicy(fastRetry))

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); m.CheckOnce(context.Background()) }()
	go func() { defer wg.Done(); m.OnVisibilityChange(context.Background(), true) }()
	go func() { defer wg.Done(); _, _, _ = a.Finish(context.Background(), model.ReasonNormal) }()
	wg.Wait()
	m.Wait()

	if finishes != 1 {
		t.Fatalf("attempt finished %d times", finishes)
	}
}

func TestConflictOutsideAttemptLogsOut(t *testing.T) {
	s := session(model.RoleStudent)
	a := startedAttempt(t, s)
	if _, _, err := a.Finish(context.Background(), model.ReasonNormal); err != nil {
		t.Fatal(err)
	}
	var loggedOut []model.SessionHandle
	m := New(a, s, &fakeChecker{statuses: []model.SessionStatus{model.SessionConflict}}, nil,
		WithLogout(func(_ context.Context, h model.SessionHandle) { loggedOut = append(loggedOut, h) }))

	m.CheckOnce(context.Background())
	if len(loggedOut) != 1 || loggedOut[0].TokenID != "jti-2" {
		t.Fatalf("logout calls %+v", loggedOut)
	}
	if res, _ := a.Result(); res.Reason != model.ReasonNormal {
		t.Fatalf("completed attempt reason changed to %s", res.Reason)
	}
}

func TestHeartbeatTransientFailureFailsOpen(t *testing.T) {
	s := session(model.RoleStudent)
	a := startedAttempt(t, s)
	netErr := errors.New("dial tcp: i/o timeout")
	checker := &fakeChecker{errs: []error{netErr, netErr, netErr}}
	m := New(a, s, checker, nil, WithRetryPolicy(fastRetry))

	if got := m.CheckOnce(context.Background()); got != model.SessionValid {
		t.Fatalf("status = %s, want valid", got)
	}
	if checker.calls != 3 {
		t.Fatalf("checker called %d times, want 3", checker.calls)
	}
	if !a.InProgress() {
		t.Fatal("transient failure terminated attempt")
	}
}

func TestHeartbeatRetryRecovers(t *testing.T) {
	s := session(model.RoleStudent)
	a := startedAttempt(t, s)
	checker := &fakeChecker{
		errs:     []error{errors.New("connection reset")},
		statuses: []model.SessionStatus{"", model.SessionConflict},
	}
	m := New(a, s, checker, nil, WithRetryPolicy(fastRetry))

	if got := m.CheckOnce(context.Background()); got != model.SessionConflict {
		t.Fatalf("status = %s, want session_conflict", got)
	}
	if a.InProgress() {
		t.Fatal("conflict after retry did not finish attempt")
	}
}

func TestInformationalStatusesTakeNoAction(t *testing.T) {
	s := session(model.RoleStudent)
	a := startedAttempt(t, s)
	logouts := 0
	m := New(a, s, &fakeChecker{statuses: []model.SessionStatus{model.SessionNone, model.SessionBadToken}}, nil,
		WithLogout(func(context.Context, model.SessionHandle) { logouts++ }))

	m.CheckOnce(context.Background())
	m.CheckOnce(context.Background())
	if !a.InProgress() || logouts != 0 {
		t.Fatal("informational status forced an action")
	}
}

func TestHeartbeatRunsOnAttemptScheduler(t *testing.T) {
	s := session(model.RoleStudent)
	a := startedAttempt(t, s)
	m := New(a, s, &fakeChecker{statuses: []model.SessionStatus{model.SessionConflict}}, nil,
		WithInterval(5*time.Millisecond), WithRetryPolicy(fastRetry))

	if !m.Start(a.Scheduler()) {
		t.Fatal("heartbeat not started")
	}
	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("heartbeat never finished the attempt")
	}
	res, _ := a.Result()
	if res.Reason != model.ReasonCheatConflict {
		t.Fatalf("reason = %s", res.Reason)
	}
}

// staleTarget reports the attempt as running even after it finished, as a
// concurrent trigger would leave it between the check and the finish.
type staleTarget struct{ *attempt.Attempt }

func (staleTarget) InProgress() bool { return true }

func TestConflictLosingFinishRaceDoesNotLogOut(t *testing.T) {
	s := session(model.RoleStudent)
	a := startedAttempt(t, s)
	if _, _, err := a.Finish(context.Background(), model.ReasonCheatTab); err != nil {
		t.Fatal(err)
	}
	logouts := 0
	m := New(staleTarget{a}, s, &fakeChecker{statuses: []model.SessionStatus{model.SessionConflict}}, nil,
		WithLogout(func(context.Context, model.SessionHandle) { logouts++ }))

	if got := m.CheckOnce(context.Background()); got != model.SessionConflict {
		t.Fatalf("status = %s", got)
	}
	if logouts != 0 {
		t.Fatalf("logout called %d times for a conflict seen during an attempt", logouts)
	}
	if res, _ := a.Result(); res.Reason != model.ReasonCheatTab {
		t.Fatalf("reason = %s, want the first trigger's cheat_tab", res.Reason)
	}
}
