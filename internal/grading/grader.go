package grading

import (
	"strings"

	"github.com/toanlab/lms-backend/internal/model"
)

// Strategy decides whether one answer is correct for one question.
type Strategy interface {
	Correct(q model.Question, a model.Answer) bool
}

// Grader routes by question type to the matching Strategy.
type Grader struct {
	strategies map[model.QuestionType]Strategy
}

// NewGrader installs the built-in strategies.
func NewGrader() *Grader {
	return &Grader{
		strategies: map[model.QuestionType]Strategy{
			model.QuestionTypeMultipleChoice: exactStrategy{},
			model.QuestionTypeTrueFalse:      exactStrategy{},
			model.QuestionTypeShortAnswer:    shortAnswerStrategy{},
		},
	}
}

// Correct grades a single answer. Unset answers, answers of the wrong kind
// and unknown question types are never correct.
func (g *Grader) Correct(q model.Question, a model.Answer) bool {
	if !a.IsSet() || a.Kind() != q.QuestionType {
		return false
	}
	s, ok := g.strategies[q.QuestionType]
	if !ok {
		return false
	}
	return s.Correct(q, a)
}

// Score grades every slot. answers[i] answers questions[i]; missing slots count as unset.
func (g *Grader) Score(questions []model.Question, answers []model.Answer) (int, []model.AnswerRecord) {
	records := make([]model.AnswerRecord, len(questions))
	score := 0
	for i, q := range questions {
		a := model.Unset()
		if i < len(answers) {
			a = answers[i]
		}
		ok := g.Correct(q, a)
		if ok {
			score++
		}
		records[i] = model.AnswerRecord{
			QuestionID: q.ID,
			UserAnswer: a.Encode(),
			Correct:    ok,
		}
	}
	return score, records
}

// --- Strategies ---

// exactStrategy compares the full wire form. For true/false this means all
// four positions must match; there is no partial credit.
type exactStrategy struct{}

func (exactStrategy) Correct(q model.Question, a model.Answer) bool {
	return a.Encode() == q.AnswerKey
}

type shortAnswerStrategy struct{}

func (shortAnswerStrategy) Correct(q model.Question, a model.Answer) bool {
	return normalize(a.Text()) == normalize(q.AnswerKey)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
