package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Answer errors.
var (
	ErrInvalidAnswer = errors.New("invalid answer")
	ErrInvalidPart   = errors.New("invalid true/false part")
	ErrInvalidMark   = errors.New("invalid true/false mark")
)

// TrueFalseParts is the number of statements in a true/false question.
const TrueFalseParts = 4

// Mark is one statement verdict inside a true/false answer.
type Mark uint8

const (
	MarkUnset Mark = iota
	MarkTrue
	MarkFalse
)

// Wire tokens for marks.
const (
	markTokenTrue  = "Đ"
	markTokenFalse = "S"
	markTokenUnset = "N"
)

func (m Mark) String() string {
	switch m {
	case MarkTrue:
		return markTokenTrue
	case MarkFalse:
		return markTokenFalse
	default:
		return markTokenUnset
	}
}

// ParseMark decodes a single wire token.
func ParseMark(s string) (Mark, error) {
	switch s {
	case markTokenTrue:
		return MarkTrue, nil
	case markTokenFalse:
		return MarkFalse, nil
	case markTokenUnset:
		return MarkUnset, nil
	}
	return MarkUnset, fmt.Errorf("%w: %q", ErrInvalidMark, s)
}

// ParsePart maps a statement letter A-D to its position 0-3.
func ParsePart(s string) (int, error) {
	if len(s) != 1 || s[0] < 'A' || s[0] > 'D' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPart, s)
	}
	return int(s[0] - 'A'), nil
}

// Answer is the captured response to one question. The zero value is unset.
// Which accessor is meaningful depends on Kind.
type Answer struct {
	kind   QuestionType
	choice byte
	marks  [TrueFalseParts]Mark
	text   string
}

// Unset returns the empty answer.
func Unset() Answer { return Answer{} }

// Choice builds a multiple-choice answer from a letter A-D.
func Choice(letter string) (Answer, error) {
	if len(letter) != 1 || letter[0] < 'A' || letter[0] > 'D' {
		return Answer{}, fmt.Errorf("%w: choice must be one of A-D, got %q", ErrInvalidAnswer, letter)
	}
	return Answer{kind: QuestionTypeMultipleChoice, choice: letter[0]}, nil
}

// TrueFalse builds a true/false answer from four marks.
func TrueFalse(marks [TrueFalseParts]Mark) Answer {
	return Answer{kind: QuestionTypeTrueFalse, marks: marks}
}

// Short builds a short answer. The text is kept verbatim.
func Short(text string) Answer {
	return Answer{kind: QuestionTypeShortAnswer, text: text}
}

func (a Answer) Kind() QuestionType { return a.kind }

// IsSet reports whether the slot holds any answer.
func (a Answer) IsSet() bool { return a.kind != "" }

func (a Answer) Marks() [TrueFalseParts]Mark { return a.marks }

func (a Answer) Text() string { return a.text }

// Letter returns the chosen letter, or "" for non-choice answers.
func (a Answer) Letter() string {
	if a.kind != QuestionTypeMultipleChoice {
		return ""
	}
	return string(a.choice)
}

// WithPart returns a true/false answer with position part set to m.
// An unset answer starts from four unset marks.
func (a Answer) WithPart(part int, m Mark) (Answer, error) {
	if part < 0 || part >= TrueFalseParts {
		return a, fmt.Errorf("%w: position %d", ErrInvalidPart, part)
	}
	if m > MarkFalse {
		return a, ErrInvalidMark
	}
	if a.kind != "" && a.kind != QuestionTypeTrueFalse {
		return a, fmt.Errorf("%w: not a true/false answer", ErrInvalidAnswer)
	}
	next := TrueFalse(a.marks)
	next.marks[part] = m
	return next, nil
}

// Encode renders the wire form. Unset encodes to "".
func (a Answer) Encode() string {
	switch a.kind {
	case QuestionTypeMultipleChoice:
		return string(a.choice)
	case QuestionTypeTrueFalse:
		tokens := make([]string, TrueFalseParts)
		for i, m := range a.marks {
			tokens[i] = m.String()
		}
		return strings.Join(tokens, "-")
	case QuestionTypeShortAnswer:
		return a.text
	}
	return ""
}

func (a Answer) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Encode())
}

// ParseAnswer decodes a wire value for a question of type t. "" decodes to Unset.
func ParseAnswer(t QuestionType, raw string) (Answer, error) {
	if raw == "" {
		return Unset(), nil
	}
	switch t {
	case QuestionTypeMultipleChoice:
		return Choice(raw)
	case QuestionTypeTrueFalse:
		tokens := strings.Split(raw, "-")
		if len(tokens) != TrueFalseParts {
			return Answer{}, fmt.Errorf("%w: expected %d marks, got %d", ErrInvalidAnswer, TrueFalseParts, len(tokens))
		}
		var marks [TrueFalseParts]Mark
		for i, tok := range tokens {
			m, err := ParseMark(tok)
			if err != nil {
				return Answer{}, fmt.Errorf("%w: %v", ErrInvalidAnswer, err)
			}
			marks[i] = m
		}
		return TrueFalse(marks), nil
	case QuestionTypeShortAnswer:
		return Short(raw), nil
	}
	return Answer{}, fmt.Errorf("%w: unknown question type %q", ErrInvalidAnswer, t)
}

// ValidateAnswerKey checks that key is a well-formed complete answer for t.
func ValidateAnswerKey(t QuestionType, key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty answer key", ErrInvalidAnswer)
	}
	a, err := ParseAnswer(t, key)
	if err != nil {
		return err
	}
	if t == QuestionTypeTrueFalse {
		for _, m := range a.marks {
			if m == MarkUnset {
				return fmt.Errorf("%w: answer key cannot contain %s", ErrInvalidAnswer, markTokenUnset)
			}
		}
	}
	if t == QuestionTypeShortAnswer && strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: blank answer key", ErrInvalidAnswer)
	}
	return nil
}
