package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/toanlab/lms-backend/internal/bank"
	"github.com/toanlab/lms-backend/internal/composer"
	"github.com/toanlab/lms-backend/internal/model"
)

// ErrExamNotFound is returned for unknown published exam ids.
var ErrExamNotFound = errors.New("exam not found")

// BankReader supplies pools and ordered question lookups.
type BankReader interface {
	Pool(ctx context.Context, grade int) (*bank.Pool, error)
	Ordered(ctx context.Context, ids []string) ([]model.Question, error)
}

// ExamStore persists published variants.
type ExamStore interface {
	Create(ctx context.Context, e *model.PublishedExam) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.PublishedExam, error)
}

type draftKey struct {
	teacher string
	grade   int
}

// ComposerService keeps one pending exam structure per teacher and grade.
type ComposerService struct {
	bank   BankReader
	exams  ExamStore
	opts   []composer.Option
	log    zerolog.Logger
	mu     sync.Mutex
	drafts map[draftKey]*composer.Composer
}

// NewComposerService creates a new ComposerService. opts apply to every draft.
func NewComposerService(bank BankReader, exams ExamStore, log zerolog.Logger, opts ...composer.Option) *ComposerService {
	return &ComposerService{
		bank:   bank,
		exams:  exams,
		opts:   opts,
		log:    log.With().Str("component", "composer_service").Logger(),
		drafts: make(map[draftKey]*composer.Composer),
	}
}

// draft returns the teacher's composer for grade with a fresh pool snapshot.
func (s *ComposerService) draft(ctx context.Context, teacherID string, grade int) (*composer.Composer, error) {
	pool, err := s.bank.Pool(ctx, grade)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := draftKey{teacherID, grade}
	c, ok := s.drafts[k]
	if !ok {
		c = composer.New(grade, pool, s.opts...)
		s.drafts[k] = c
		return c, nil
	}
	c.SetPool(pool)
	return c, nil
}

func (s *ComposerService) existing(teacherID string, grade int) (*composer.Composer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.drafts[draftKey{teacherID, grade}]
	return c, ok
}

// Draft returns the teacher's current structure for grade.
func (s *ComposerService) Draft(ctx context.Context, teacherID string, grade int) (model.ComposerDraft, error) {
	c, err := s.draft(ctx, teacherID, grade)
	if err != nil {
		return model.ComposerDraft{}, err
	}
	return model.ComposerDraft{Grade: grade, Requirements: c.Requirements(), Total: c.Total()}, nil
}

// AddRequirement validates against the current pool and appends.
func (s *ComposerService) AddRequirement(ctx context.Context, teacherID string, req model.AddRequirementRequest) (model.Requirement, int, error) {
	c, err := s.draft(ctx, teacherID, req.Grade)
	if err != nil {
		return model.Requirement{}, 0, err
	}
	return c.AddRequirement(strings.TrimSpace(req.Topic), model.Level(req.Level), req.Count)
}

// RemoveRequirement drops one requirement from the teacher's structure.
func (s *ComposerService) RemoveRequirement(teacherID string, grade int, id uuid.UUID) (int, error) {
	c, ok := s.existing(teacherID, grade)
	if !ok {
		return 0, composer.ErrRequirementNotFound
	}
	return c.RemoveRequirement(id)
}

// Reset clears the teacher's structure for grade.
func (s *ComposerService) Reset(teacherID string, grade int) {
	if c, ok := s.existing(teacherID, grade); ok {
		c.Reset()
	}
}

// Generate draws variants from the teacher's structure and optionally
// publishes each one so students can open it by id.
func (s *ComposerService) Generate(ctx context.Context, teacherID string, req model.GenerateRequest) ([]model.ExamVariant, error) {
	c, err := s.draft(ctx, teacherID, req.Grade)
	if err != nil {
		return nil, err
	}

	var mode composer.Mode
	switch req.Mode {
	case model.GeneratePersonalized:
		mode = composer.Personalized(composer.ParseRecipients(req.Recipients))
	default:
		count := req.Count
		if count == 0 {
			count = 1
		}
		mode = composer.Batch(count)
	}

	variants, err := c.Generate(mode)
	if err != nil {
		return nil, err
	}

	log := s.log.With().Str("teacher_id", teacherID).Int("grade", req.Grade).Logger()
	for _, v := range variants {
		if len(v.Shortfalls) > 0 {
			log.Warn().Str("label", v.Label).Int("delivered", len(v.Questions)).Int("requested", v.Requested()).
				Msg("Variant drawn with shortfall")
		}
	}

	if req.Publish {
		for i := range variants {
			if err := s.publish(ctx, teacherID, &variants[i]); err != nil {
				return nil, err
			}
		}
	}
	log.Info().Int("variants", len(variants)).Bool("published", req.Publish).Msg("Exam variants generated")
	return variants, nil
}

func (s *ComposerService) publish(ctx context.Context, teacherID string, v *model.ExamVariant) error {
	ids := make([]string, len(v.Questions))
	for i, q := range v.Questions {
		ids[i] = q.ID
	}
	exam := &model.PublishedExam{
		ID:          uuid.New(),
		Label:       v.Label,
		Title:       v.Title,
		Grade:       v.Grade,
		CreatedBy:   teacherID,
		QuestionIDs: ids,
	}
	if err := s.exams.Create(ctx, exam); err != nil {
		return fmt.Errorf("publish %s: %w", v.Label, err)
	}
	v.ID = exam.ID
	return nil
}

// Exam loads a published variant and its questions in stored order.
func (s *ComposerService) Exam(ctx context.Context, id uuid.UUID) (*model.PublishedExam, []model.Question, error) {
	exam, err := s.exams.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrExamNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	qs, err := s.bank.Ordered(ctx, exam.QuestionIDs)
	if err != nil {
		return nil, nil, err
	}
	return exam, qs, nil
}

// ExamView is the student-facing copy of a published variant.
func (s *ComposerService) ExamView(ctx context.Context, id uuid.UUID) (*model.PublishedExamView, error) {
	exam, qs, err := s.Exam(ctx, id)
	if err != nil {
		return nil, err
	}
	return &model.PublishedExamView{
		ID:        exam.ID,
		Title:     exam.Title,
		Grade:     exam.Grade,
		Questions: model.Views(qs),
	}, nil
}
