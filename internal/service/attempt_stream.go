package service

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/toanlab/lms-backend/internal/config"
	"github.com/toanlab/lms-backend/internal/model"
)

// answerMirrorTTL bounds how long an unsubmitted attempt's answers stay in Redis.
const answerMirrorTTL = 6 * time.Hour

// AttemptEventBus publishes attempt events on Redis Pub/Sub so any server
// instance holding a client stream can forward them.
type AttemptEventBus struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewAttemptEventBus(rdb *redis.Client, log zerolog.Logger) *AttemptEventBus {
	return &AttemptEventBus{rdb: rdb, log: log.With().Str("component", "attempt_events").Logger()}
}

// Publish is best effort; subscribers that miss an event can re-read the snapshot.
func (b *AttemptEventBus) Publish(ctx context.Context, ev model.AttemptEvent) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := b.rdb.Publish(ctx, config.CacheKey.AttemptEventsChannel(ev.AttemptID.String()), raw).Err(); err != nil {
		b.log.Warn().Err(err).Str("attempt_id", ev.AttemptID.String()).Str("type", string(ev.Type)).Msg("Event publish failed")
	}
}

// Subscribe opens a subscription to one attempt's events. The caller closes it.
func (b *AttemptEventBus) Subscribe(ctx context.Context, attemptID uuid.UUID) *redis.PubSub {
	return b.rdb.Subscribe(ctx, config.CacheKey.AttemptEventsChannel(attemptID.String()))
}

// AnswerMirror keeps the latest answers of each attempt in a Redis hash and
// queues them for the answer worker.
type AnswerMirror struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewAnswerMirror(rdb *redis.Client, log zerolog.Logger) *AnswerMirror {
	return &AnswerMirror{rdb: rdb, log: log.With().Str("component", "answer_mirror").Logger()}
}

// Record mirrors one answer. Failures are logged; the attempt keeps the answer.
func (m *AnswerMirror) Record(ctx context.Context, a model.SavedAnswer) {
	raw, err := json.Marshal(a)
	if err != nil {
		return
	}
	key := config.CacheKey.AttemptAnswersKey(a.AttemptID.String())
	_, err = m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, strconv.Itoa(a.Position), raw)
		pipe.Expire(ctx, key, answerMirrorTTL)
		pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, raw)
		return nil
	})
	if err != nil {
		m.log.Warn().Err(err).
			Str("attempt_id", a.AttemptID.String()).
			Int("position", a.Position).
			Msg("Answer autosave failed")
	}
}
