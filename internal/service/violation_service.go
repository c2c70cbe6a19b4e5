package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/toanlab/lms-backend/internal/config"
	"github.com/toanlab/lms-backend/internal/model"
)

// ViolationService queues anti-cheat reports for the violation worker.
type ViolationService struct {
	queue PushQueue
	log   zerolog.Logger
}

func NewViolationService(queue PushQueue, log zerolog.Logger) *ViolationService {
	return &ViolationService{queue: queue, log: log.With().Str("component", "violation_service").Logger()}
}

// Report implements the anti-cheat reporter contract.
func (s *ViolationService) Report(ctx context.Context, r model.ViolationReport) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	if err := s.queue.RPush(ctx, config.WorkerKey.PersistViolationsQueue, raw).Err(); err != nil {
		return fmt.Errorf("queue violation: %w", err)
	}
	s.log.Info().
		Str("user_id", r.UserID).
		Str("attempt_id", r.AttemptID).
		Str("type", string(r.Type)).
		Int("count", r.Count).
		Msg("Violation reported")
	return nil
}
