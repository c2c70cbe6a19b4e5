package model

import (
	"time"
)

// QuestionType keeps the bank's wire names so stored rows round-trip unchanged.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "Trắc nghiệm"
	QuestionTypeTrueFalse      QuestionType = "Đúng/Sai"
	QuestionTypeShortAnswer    QuestionType = "Trả lời ngắn"
)

// Valid reports whether t is one of the supported question types.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeMultipleChoice, QuestionTypeTrueFalse, QuestionTypeShortAnswer:
		return true
	}
	return false
}

// Level is the difficulty level of a question.
type Level string

const (
	LevelRecall          Level = "Nhận biết"
	LevelComprehension   Level = "Thông hiểu"
	LevelApplication     Level = "Vận dụng"
	LevelHighApplication Level = "Vận dụng cao"
)

// Levels lists every level in ascending difficulty.
var Levels = []Level{LevelRecall, LevelComprehension, LevelApplication, LevelHighApplication}

func (l Level) Valid() bool {
	for _, v := range Levels {
		if v == l {
			return true
		}
	}
	return false
}

// Question is a single bank item. Immutable once loaded into a pool.
type Question struct {
	ID           string       `json:"id"`
	Grade        int          `json:"grade"`
	Topic        string       `json:"topic"`
	Level        Level        `json:"level"`
	QuestionType QuestionType `json:"question_type"`
	QuestionText string       `json:"question_text"`
	OptionA      string       `json:"option_a,omitempty"`
	OptionB      string       `json:"option_b,omitempty"`
	OptionC      string       `json:"option_c,omitempty"`
	OptionD      string       `json:"option_d,omitempty"`
	AnswerKey    string       `json:"answer_key"`
	Solution     string       `json:"solution,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// QuestionView is what a student sees while an attempt is running.
type QuestionView struct {
	ID           string       `json:"id"`
	Topic        string       `json:"topic"`
	Level        Level        `json:"level"`
	QuestionType QuestionType `json:"question_type"`
	QuestionText string       `json:"question_text"`
	OptionA      string       `json:"option_a,omitempty"`
	OptionB      string       `json:"option_b,omitempty"`
	OptionC      string       `json:"option_c,omitempty"`
	OptionD      string       `json:"option_d,omitempty"`
}

// View strips the answer key and solution.
func (q Question) View() QuestionView {
	return QuestionView{
		ID:           q.ID,
		Topic:        q.Topic,
		Level:        q.Level,
		QuestionType: q.QuestionType,
		QuestionText: q.QuestionText,
		OptionA:      q.OptionA,
		OptionB:      q.OptionB,
		OptionC:      q.OptionC,
		OptionD:      q.OptionD,
	}
}

// Views maps a question slice to student views.
func Views(questions []Question) []QuestionView {
	out := make([]QuestionView, len(questions))
	for i, q := range questions {
		out[i] = q.View()
	}
	return out
}

// SaveQuestionRequest is the payload for creating or replacing a bank question.
type SaveQuestionRequest struct {
	ID           string `json:"id" binding:"omitempty,max=64"`
	Grade        int    `json:"grade" binding:"required,min=1,max=12"`
	Topic        string `json:"topic" binding:"required,max=200"`
	Level        string `json:"level" binding:"required,qlevel"`
	QuestionType string `json:"question_type" binding:"required,qtype"`
	QuestionText string `json:"question_text" binding:"required,min=1,max=4000"`
	OptionA      string `json:"option_a" binding:"max=1000"`
	OptionB      string `json:"option_b" binding:"max=1000"`
	OptionC      string `json:"option_c" binding:"max=1000"`
	OptionD      string `json:"option_d" binding:"max=1000"`
	AnswerKey    string `json:"answer_key" binding:"required,max=500"`
	Solution     string `json:"solution" binding:"max=4000"`
}

// ToQuestion builds a Question from the request. id overrides req.ID when non-empty.
func (req SaveQuestionRequest) ToQuestion(id string) Question {
	if id == "" {
		id = req.ID
	}
	return Question{
		ID:           id,
		Grade:        req.Grade,
		Topic:        req.Topic,
		Level:        Level(req.Level),
		QuestionType: QuestionType(req.QuestionType),
		QuestionText: req.QuestionText,
		OptionA:      req.OptionA,
		OptionB:      req.OptionB,
		OptionC:      req.OptionC,
		OptionD:      req.OptionD,
		AnswerKey:    req.AnswerKey,
		Solution:     req.Solution,
	}
}

// Theory is follow-up reading attached to a verdict when a student does not pass.
type Theory struct {
	Grade   int    `json:"grade"`
	Topic   string `json:"topic"`
	Level   Level  `json:"level"`
	Title   string `json:"title"`
	Content string `json:"content"`
}
