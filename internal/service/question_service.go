package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/toanlab/lms-backend/internal/bank"
	"github.com/toanlab/lms-backend/internal/config"
	"github.com/toanlab/lms-backend/internal/model"
	"github.com/toanlab/lms-backend/internal/retry"
)

// Question service errors.
var (
	ErrQuestionNotFound = errors.New("question not found")
	ErrQuestionsMissing = errors.New("some questions are no longer in the bank")
)

// QuestionStore is the persistence the question service reads and writes.
type QuestionStore interface {
	ListByGrade(ctx context.Context, grade int) ([]model.Question, error)
	ListByIDs(ctx context.Context, ids []string) ([]model.Question, error)
	GetByID(ctx context.Context, id string) (*model.Question, error)
	Upsert(ctx context.Context, q *model.Question) error
	Delete(ctx context.Context, id string) (int, error)
}

// PoolCache holds serialized per-grade pools.
type PoolCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// QuestionService manages the bank and serves immutable pool snapshots.
type QuestionService struct {
	store  QuestionStore
	cache  PoolCache
	ttl    time.Duration
	policy retry.Policy
	log    zerolog.Logger
}

// NewQuestionService creates a new QuestionService. cache may be nil.
func NewQuestionService(store QuestionStore, cache PoolCache, ttl time.Duration, policy retry.Policy, log zerolog.Logger) *QuestionService {
	return &QuestionService{
		store:  store,
		cache:  cache,
		ttl:    ttl,
		policy: policy,
		log:    log.With().Str("component", "question_service").Logger(),
	}
}

// Pool returns the question pool of a grade, from cache when possible.
func (s *QuestionService) Pool(ctx context.Context, grade int) (*bank.Pool, error) {
	if qs, ok := s.cached(ctx, grade); ok {
		return bank.NewPool(qs), nil
	}

	var qs []model.Question
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		var err error
		qs, err = s.store.ListByGrade(ctx, grade)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load pool for grade %d: %w", grade, err)
	}
	s.storeCache(ctx, grade, qs)
	return bank.NewPool(qs), nil
}

func (s *QuestionService) cached(ctx context.Context, grade int) ([]model.Question, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, config.CacheKey.GradeQuestionsKey(grade)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Int("grade", grade).Msg("Pool cache read failed")
		}
		return nil, false
	}
	var qs []model.Question
	if err := json.Unmarshal(raw, &qs); err != nil {
		s.log.Warn().Err(err).Int("grade", grade).Msg("Discarding corrupt pool cache")
		return nil, false
	}
	return qs, true
}

func (s *QuestionService) storeCache(ctx context.Context, grade int, qs []model.Question) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(qs)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, config.CacheKey.GradeQuestionsKey(grade), raw, s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Int("grade", grade).Msg("Pool cache write failed")
	}
}

func (s *QuestionService) invalidate(ctx context.Context, grades ...int) {
	if s.cache == nil {
		return
	}
	keys := make([]string, 0, len(grades))
	for _, g := range grades {
		keys = append(keys, config.CacheKey.GradeQuestionsKey(g))
	}
	if err := s.cache.Del(ctx, keys...).Err(); err != nil {
		s.log.Error().Err(err).Ints("grades", grades).Msg("Pool cache invalidation failed")
	}
}

// List returns every question of a grade.
func (s *QuestionService) List(ctx context.Context, grade int) ([]model.Question, error) {
	pool, err := s.Pool(ctx, grade)
	if err != nil {
		return nil, err
	}
	return pool.Questions(grade), nil
}

// Topics lists the topics with at least one question in grade.
func (s *QuestionService) Topics(ctx context.Context, grade int) ([]string, error) {
	pool, err := s.Pool(ctx, grade)
	if err != nil {
		return nil, err
	}
	return pool.Topics(grade), nil
}

// Get retrieves one question.
func (s *QuestionService) Get(ctx context.Context, id string) (*model.Question, error) {
	q, err := s.store.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrQuestionNotFound
	}
	return q, err
}

// Save creates or replaces a question. An empty id creates a new one.
// The answer key must be a valid encoding for the question type.
func (s *QuestionService) Save(ctx context.Context, id string, req model.SaveQuestionRequest) (*model.Question, error) {
	q := req.ToQuestion(id)
	q.Topic = strings.TrimSpace(q.Topic)
	q.AnswerKey = strings.TrimSpace(q.AnswerKey)
	if err := model.ValidateAnswerKey(q.QuestionType, q.AnswerKey); err != nil {
		return nil, err
	}

	oldGrade := 0
	if q.ID == "" {
		q.ID = uuid.NewString()
	} else if prev, err := s.store.GetByID(ctx, q.ID); err == nil {
		oldGrade = prev.Grade
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	if err := s.store.Upsert(ctx, &q); err != nil {
		return nil, fmt.Errorf("save question: %w", err)
	}
	if oldGrade != 0 && oldGrade != q.Grade {
		s.invalidate(ctx, oldGrade, q.Grade)
	} else {
		s.invalidate(ctx, q.Grade)
	}
	s.log.Info().Str("question_id", q.ID).Int("grade", q.Grade).Str("topic", q.Topic).Msg("Question saved")
	return &q, nil
}

// Delete removes a question.
func (s *QuestionService) Delete(ctx context.Context, id string) error {
	grade, err := s.store.Delete(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrQuestionNotFound
	}
	if err != nil {
		return err
	}
	s.invalidate(ctx, grade)
	s.log.Info().Str("question_id", id).Int("grade", grade).Msg("Question deleted")
	return nil
}

// Ordered returns the questions with ids in the given order. A missing id
// yields ErrQuestionsMissing.
func (s *QuestionService) Ordered(ctx context.Context, ids []string) ([]model.Question, error) {
	var found []model.Question
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		var err error
		found, err = s.store.ListByIDs(ctx, ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	ordered, missing := bank.NewPool(found).Lookup(ids)
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrQuestionsMissing, strings.Join(missing, ", "))
	}
	return ordered, nil
}
