package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus is the lifecycle state of an attempt.
type AttemptStatus string

const (
	AttemptIdle       AttemptStatus = "idle"
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
)

// SubmissionReason records what ended an attempt.
type SubmissionReason string

const (
	ReasonNormal        SubmissionReason = "normal"
	ReasonCheatTab      SubmissionReason = "cheat_tab"
	ReasonCheatConflict SubmissionReason = "cheat_conflict"
)

// ViolationType names an anti-cheat event.
type ViolationType string

const (
	ViolationTabSwitch       ViolationType = "tab_switch"
	ViolationSessionConflict ViolationType = "session_conflict"
)

// QuizMeta identifies what an attempt is for.
type QuizMeta struct {
	Grade  int        `json:"grade"`
	Topic  string     `json:"topic"`
	Level  Level      `json:"level,omitempty"`
	ExamID *uuid.UUID `json:"exam_id,omitempty"`
	Label  string     `json:"label,omitempty"`
}

// AnswerRecord is the graded outcome of one question.
type AnswerRecord struct {
	QuestionID string `json:"question_id"`
	UserAnswer string `json:"user_answer"`
	Correct    bool   `json:"correct"`
}

// Violation is one entry of the submission's violation list.
type Violation struct {
	Type      SubmissionReason `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
}

// Verdict holds the fields only the result collaborator may set.
type Verdict struct {
	Percentage int     `json:"percentage"`
	Passed     bool    `json:"passed"`
	CanAdvance bool    `json:"can_advance"`
	Message    string  `json:"message,omitempty"`
	Theory     *Theory `json:"theory,omitempty"`
}

// QuizResult is built once when an attempt completes.
// Verdict stays nil when the submission collaborator failed.
type QuizResult struct {
	AttemptID        uuid.UUID        `json:"attempt_id"`
	UserID           string           `json:"user_id"`
	UserName         string           `json:"user_name,omitempty"`
	Meta             QuizMeta         `json:"meta"`
	Score            int              `json:"score"`
	TotalQuestions   int              `json:"total_questions"`
	TimeSpentSeconds int              `json:"time_spent_seconds"`
	Reason           SubmissionReason `json:"reason"`
	TabSwitchCount   int              `json:"tab_switch_count"`
	Answers          []AnswerRecord   `json:"answers"`
	Violations       []Violation      `json:"violations"`
	StartedAt        time.Time        `json:"started_at"`
	FinishedAt       time.Time        `json:"finished_at"`
	Verdict          *Verdict         `json:"verdict"`
	SubmissionError  string           `json:"submission_error,omitempty"`
}

// Clone returns a deep copy so callers cannot alias attempt-owned slices.
func (r QuizResult) Clone() QuizResult {
	out := r
	out.Answers = append([]AnswerRecord(nil), r.Answers...)
	out.Violations = append([]Violation(nil), r.Violations...)
	if r.Meta.ExamID != nil {
		id := *r.Meta.ExamID
		out.Meta.ExamID = &id
	}
	if r.Verdict != nil {
		v := *r.Verdict
		if r.Verdict.Theory != nil {
			t := *r.Verdict.Theory
			v.Theory = &t
		}
		out.Verdict = &v
	}
	return out
}

// AttemptSnapshot is the read model served to clients.
type AttemptSnapshot struct {
	ID               uuid.UUID      `json:"id"`
	Status           AttemptStatus  `json:"status"`
	Meta             QuizMeta       `json:"meta"`
	Questions        []QuestionView `json:"questions"`
	Answers          []Answer       `json:"answers"`
	CurrentIndex     int            `json:"current_index"`
	ElapsedSeconds   int            `json:"elapsed_seconds"`
	TabSwitchCount   int            `json:"tab_switch_count"`
	StartedAt        time.Time      `json:"started_at"`
	Result           *QuizResult    `json:"result,omitempty"`
	AntiCheatEnabled bool           `json:"anti_cheat_enabled"`
}

// SavedAnswer is one captured answer queued for the autosave table.
type SavedAnswer struct {
	AttemptID  uuid.UUID `json:"attempt_id"`
	UserID     string    `json:"user_id"`
	Position   int       `json:"position"`
	QuestionID string    `json:"question_id"`
	Answer     string    `json:"answer"`
	SavedAt    time.Time `json:"saved_at"`
}

// AttemptEventType names a lifecycle event pushed to attempt subscribers.
type AttemptEventType string

const (
	EventAttemptStarted  AttemptEventType = "attempt_started"
	EventAnswerSaved     AttemptEventType = "answer_saved"
	EventTabSwitch       AttemptEventType = "tab_switch"
	EventAttemptFinished AttemptEventType = "attempt_finished"
	EventForcedLogout    AttemptEventType = "forced_logout"
)

// AttemptEvent is published on the attempt's events channel.
type AttemptEvent struct {
	Type      AttemptEventType `json:"type"`
	AttemptID uuid.UUID        `json:"attempt_id"`
	At        time.Time        `json:"at"`
	Index     *int             `json:"index,omitempty"`
	Answer    string           `json:"answer,omitempty"`
	Count     int              `json:"count,omitempty"`
	Reason    SubmissionReason `json:"reason,omitempty"`
	Result    *QuizResult      `json:"result,omitempty"`
}

// ─── Requests ───────────────────────────────────────────────────────

// StartQuizRequest starts a practice attempt from the bank.
type StartQuizRequest struct {
	Grade int    `json:"grade" binding:"required,min=1,max=12"`
	Topic string `json:"topic" binding:"required,max=200"`
	Level string `json:"level" binding:"required,qlevel"`
}

// SelectAnswerRequest carries a wire-encoded answer. Empty clears the slot.
type SelectAnswerRequest struct {
	Value string `json:"value" binding:"max=2000"`
}

// UpdatePartRequest sets one true/false statement.
type UpdatePartRequest struct {
	Mark string `json:"mark" binding:"required,tfmark"`
}

// VisibilityRequest reports a page visibility transition.
type VisibilityRequest struct {
	Hidden *bool `json:"hidden" binding:"required"`
}
