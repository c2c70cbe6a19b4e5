package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/toanlab/lms-backend/internal/config"
	"github.com/toanlab/lms-backend/internal/model"
)

const (
	msgPassed   = "Chúc mừng! Bạn đã vượt qua bài kiểm tra."
	msgFailed   = "Bạn chưa đạt. Hãy ôn lại lý thuyết và thử lại."
	msgFinalLvl = "Chúc mừng! Bạn đã hoàn thành mức độ cao nhất."
)

// TheoryFinder looks up follow-up theory for a failed quiz.
type TheoryFinder interface {
	Find(ctx context.Context, grade int, topic string, level model.Level) (*model.Theory, error)
}

// PushQueue is the Redis list producer used by the submission services.
type PushQueue interface {
	RPush(ctx context.Context, key string, values ...any) *redis.IntCmd
}

// ResultService is the submission collaborator of attempts: it decides the
// verdict and queues the result for persistence.
type ResultService struct {
	theories  TheoryFinder
	queue     PushQueue
	threshold int
	log       zerolog.Logger
}

// NewResultService creates a new ResultService. threshold is the pass percentage.
func NewResultService(theories TheoryFinder, queue PushQueue, threshold int, log zerolog.Logger) *ResultService {
	return &ResultService{
		theories:  theories,
		queue:     queue,
		threshold: threshold,
		log:       log.With().Str("component", "result_service").Logger(),
	}
}

// ComputeVerdict rounds the score to a percentage and applies the pass threshold.
func ComputeVerdict(score, total, threshold int, level model.Level) model.Verdict {
	pct := 0
	if total > 0 {
		pct = int(math.Round(100 * float64(score) / float64(total)))
	}
	v := model.Verdict{Percentage: pct, Passed: pct >= threshold}
	switch {
	case !v.Passed:
		v.Message = msgFailed
	case level == model.LevelHighApplication:
		v.Message = msgFinalLvl
	default:
		v.CanAdvance = level != ""
		v.Message = msgPassed
	}
	return v
}

// Submit implements the attempt submission contract. The returned error
// means the result was not accepted; the attempt keeps it locally.
func (s *ResultService) Submit(ctx context.Context, session model.SessionHandle, result model.QuizResult) (*model.Verdict, error) {
	v := ComputeVerdict(result.Score, result.TotalQuestions, s.threshold, result.Meta.Level)
	if !v.Passed && s.theories != nil && result.Meta.Topic != "" {
		t, err := s.theories.Find(ctx, result.Meta.Grade, result.Meta.Topic, result.Meta.Level)
		switch {
		case err == nil:
			v.Theory = t
		case errors.Is(err, pgx.ErrNoRows):
		default:
			s.log.Warn().Err(err).Str("topic", result.Meta.Topic).Msg("Theory lookup failed")
		}
	}

	result.Verdict = &v
	if result.UserID == "" {
		result.UserID = session.UserID
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	if err := s.queue.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw).Err(); err != nil {
		return nil, fmt.Errorf("queue result: %w", err)
	}

	s.log.Info().
		Str("attempt_id", result.AttemptID.String()).
		Str("user_id", result.UserID).
		Int("percentage", v.Percentage).
		Bool("passed", v.Passed).
		Str("reason", string(result.Reason)).
		Msg("Result submitted")
	return &v, nil
}
