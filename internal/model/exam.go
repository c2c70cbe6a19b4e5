package model

import (
	"time"

	"github.com/google/uuid"
)

// Requirement asks for Count questions of one topic and level.
type Requirement struct {
	ID    uuid.UUID `json:"id"`
	Topic string    `json:"topic"`
	Level Level     `json:"level"`
	Count int       `json:"count"`
}

// Shortfall reports a requirement the pool could not fully satisfy at draw time.
type Shortfall struct {
	RequirementID uuid.UUID `json:"requirement_id"`
	Topic         string    `json:"topic"`
	Level         Level     `json:"level"`
	Requested     int       `json:"requested"`
	Delivered     int       `json:"delivered"`
}

// ExamVariant is one generated question set with its label.
// ID stays zero until the variant is published.
type ExamVariant struct {
	ID         uuid.UUID   `json:"id"`
	Label      string      `json:"label"`
	Title      string      `json:"title"`
	Grade      int         `json:"grade"`
	Questions  []Question  `json:"questions"`
	Shortfalls []Shortfall `json:"shortfalls,omitempty"`
}

// Requested is the question count the structure asked for.
func (v ExamVariant) Requested() int {
	n := len(v.Questions)
	for _, s := range v.Shortfalls {
		n += s.Requested - s.Delivered
	}
	return n
}

// PublishedExam is a stored variant retrievable by its opaque id.
type PublishedExam struct {
	ID          uuid.UUID `json:"id"`
	Label       string    `json:"label"`
	Title       string    `json:"title"`
	Grade       int       `json:"grade"`
	CreatedBy   string    `json:"created_by"`
	QuestionIDs []string  `json:"question_ids"`
	CreatedAt   time.Time `json:"created_at"`
}

// PublishedExamView is served to students: questions in order, no keys.
type PublishedExamView struct {
	ID        uuid.UUID      `json:"id"`
	Title     string         `json:"title"`
	Grade     int            `json:"grade"`
	Questions []QuestionView `json:"questions"`
}

// ComposerDraft is a teacher's pending exam structure.
type ComposerDraft struct {
	Grade        int           `json:"grade"`
	Requirements []Requirement `json:"requirements"`
	Total        int           `json:"total"`
}

// ─── Requests ───────────────────────────────────────────────────────

// AddRequirementRequest appends a requirement to the teacher's draft.
type AddRequirementRequest struct {
	Grade int    `json:"grade" binding:"required,min=1,max=12"`
	Topic string `json:"topic" binding:"max=200"`
	Level string `json:"level" binding:"required,qlevel"`
	Count int    `json:"count"`
}

// GenerateMode selects how variants are produced.
type GenerateMode string

const (
	GenerateBatch        GenerateMode = "batch"
	GeneratePersonalized GenerateMode = "personalized"
)

// GenerateRequest produces variants from the teacher's draft.
type GenerateRequest struct {
	Grade      int          `json:"grade" binding:"required,min=1,max=12"`
	Mode       GenerateMode `json:"mode" binding:"required,oneof=batch personalized"`
	Count      int          `json:"count" binding:"omitempty,min=1,max=50"`
	Recipients string       `json:"recipients" binding:"max=20000"`
	Publish    bool         `json:"publish"`
}
