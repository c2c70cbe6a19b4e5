package grading

import (
	"testing"

	"github.com/toanlab/lms-backend/internal/model"
)

func mustParse(t *testing.T, qt model.QuestionType, raw string) model.Answer {
	t.Helper()
	a, err := model.ParseAnswer(qt, raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return a
}

func TestGraderCorrect(t *testing.T) {
	g := NewGrader()

	mc := model.Question{ID: "Q1", QuestionType: model.QuestionTypeMultipleChoice, AnswerKey: "B"}
	tf := model.Question{ID: "Q2", QuestionType: model.QuestionTypeTrueFalse, AnswerKey: "Đ-S-Đ-Đ"}
	sa := model.Question{ID: "Q3", QuestionType: model.QuestionTypeShortAnswer, AnswerKey: "15.5"}

	cases := []struct {
		name string
		q    model.Question
		raw  string
		want bool
	}{
		{"choice match", mc, "B", true},
		{"choice mismatch", mc, "A", false},
		{"choice unset", mc, "", false},
		{"true false full match", tf, "Đ-S-Đ-Đ", true},
		{"true false three of four", tf, "Đ-S-Đ-S", false},
		{"true false with unset", tf, "Đ-S-Đ-N", false},
		{"short exact", sa, "15.5", true},
		{"short padded", sa, "  15.5 ", true},
		{"short comma decimal", sa, "15,5", false},
		{"short unset", sa, "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := mustParse(t, tc.q.QuestionType, tc.raw)
			if got := g.Correct(tc.q, a); got != tc.want {
				t.Fatalf("Correct(%q) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestShortAnswerCaseInsensitive(t *testing.T) {
	g := NewGrader()
	q := model.Question{QuestionType: model.QuestionTypeShortAnswer, AnswerKey: " Vô Nghiệm "}
	if !g.Correct(q, model.Short("vô nghiệm")) {
		t.Fatal("expected case-insensitive match")
	}
}

func TestWrongKindNeverCorrect(t *testing.T) {
	g := NewGrader()
	q := model.Question{QuestionType: model.QuestionTypeShortAnswer, AnswerKey: "A"}
	choice, _ := model.Choice("A")
	if g.Correct(q, choice) {
		t.Fatal("choice answer graded correct against short answer question")
	}
}

func TestScore(t *testing.T) {
	g := NewGrader()
	questions := []model.Question{
		{ID: "Q1", QuestionType: model.QuestionTypeMultipleChoice, AnswerKey: "A"},
		{ID: "Q2", QuestionType: model.QuestionTypeMultipleChoice, AnswerKey: "B"},
		{ID: "Q3", QuestionType: model.QuestionTypeShortAnswer, AnswerKey: "7"},
	}
	a, _ := model.Choice("A")
	answers := []model.Answer{a, model.Unset()}

	score, records := g.Score(questions, answers)
	if score != 1 {
		t.Fatalf("score = %d, want 1", score)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	if !records[0].Correct || records[1].Correct || records[2].Correct {
		t.Fatalf("unexpected records %+v", records)
	}
	if records[1].UserAnswer != "" || records[2].QuestionID != "Q3" {
		t.Fatalf("unexpected records %+v", records)
	}
}
