package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/toanlab/lms-backend/internal/config"
	"github.com/toanlab/lms-backend/internal/model"
)

// ErrLevelLocked is returned when a practice level is above the student's progression.
var ErrLevelLocked = errors.New("level is locked")

const (
	DefaultLeaderboardSize = 20
	MaxLeaderboardSize     = 100

	leaderboardTTL = 30 * time.Second
	progressTTL    = 24 * time.Hour
)

// ProgressStore reads progression from persisted quiz results.
type ProgressStore interface {
	HighestPassed(ctx context.Context, userID string) (map[string]int, error)
	Totals(ctx context.Context, userID string) (score, quizzes int, err error)
	Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error)
}

// ProgressOverlay holds passes recorded since their results were queued, so a
// level unlocks before the result worker has stored the row.
type ProgressOverlay interface {
	Raise(ctx context.Context, userID, key string, rank int) error
	Ranks(ctx context.Context, userID string) (map[string]int, error)
}

// ProgressService serves level progression and the leaderboard.
type ProgressService struct {
	store   ProgressStore
	overlay ProgressOverlay
	cache   PoolCache
	log     zerolog.Logger
}

// NewProgressService creates a new ProgressService. overlay and cache may be nil.
func NewProgressService(store ProgressStore, overlay ProgressOverlay, cache PoolCache, log zerolog.Logger) *ProgressService {
	return &ProgressService{
		store:   store,
		overlay: overlay,
		cache:   cache,
		log:     log.With().Str("component", "progress_service").Logger(),
	}
}

// RecordPass raises the track of a passed practice result. Exam results and
// failed quizzes are ignored.
func (s *ProgressService) RecordPass(ctx context.Context, r model.QuizResult) {
	if s.overlay == nil || r.Verdict == nil || !r.Verdict.Passed || r.Meta.ExamID != nil {
		return
	}
	rank := r.Meta.Level.Rank()
	if rank == 0 {
		return
	}
	if err := s.overlay.Raise(ctx, r.UserID, model.ProgressKey(r.Meta.Grade, r.Meta.Topic), rank); err != nil {
		s.log.Warn().Err(err).Str("user_id", r.UserID).Msg("Failed to record level pass")
	}
}

// ranks merges stored and recently recorded passes.
func (s *ProgressService) ranks(ctx context.Context, userID string) (map[string]int, error) {
	ranks, err := s.store.HighestPassed(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	if ranks == nil {
		ranks = make(map[string]int)
	}
	if s.overlay == nil {
		return ranks, nil
	}
	recent, err := s.overlay.Ranks(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Progress overlay read failed")
		return ranks, nil
	}
	for k, r := range recent {
		if r > ranks[k] {
			ranks[k] = r
		}
	}
	return ranks, nil
}

// CheckLevel rejects levels above the next one after the highest passed.
// Teachers and admins are never gated.
func (s *ProgressService) CheckLevel(ctx context.Context, h model.SessionHandle, grade int, topic string, level model.Level) error {
	if h.Exempt() {
		return nil
	}
	if level.Rank() == 1 {
		return nil
	}
	ranks, err := s.ranks(ctx, h.UserID)
	if err != nil {
		return err
	}
	if !model.LevelUnlocked(ranks[model.ProgressKey(grade, topic)], level) {
		return ErrLevelLocked
	}
	return nil
}

// Progress returns the user's cumulative score and per-track levels.
func (s *ProgressService) Progress(ctx context.Context, userID string) (model.UserProgress, error) {
	ranks, err := s.ranks(ctx, userID)
	if err != nil {
		return model.UserProgress{}, err
	}
	score, quizzes, err := s.store.Totals(ctx, userID)
	if err != nil {
		return model.UserProgress{}, fmt.Errorf("load totals: %w", err)
	}

	out := model.UserProgress{UserID: userID, TotalScore: score, Quizzes: quizzes, Topics: []model.TopicProgress{}}
	for key, rank := range ranks {
		grade, topic, ok := model.ParseProgressKey(key)
		if !ok || rank < 1 {
			continue
		}
		out.Topics = append(out.Topics, model.TopicProgress{
			Grade:         grade,
			Topic:         topic,
			HighestPassed: model.LevelAt(rank),
			CurrentLevel:  model.CurrentLevel(rank),
		})
	}
	sort.Slice(out.Topics, func(i, j int) bool {
		if out.Topics[i].Grade != out.Topics[j].Grade {
			return out.Topics[i].Grade < out.Topics[j].Grade
		}
		return out.Topics[i].Topic < out.Topics[j].Topic
	})
	return out, nil
}

// Leaderboard returns the top users by cumulative score, cached briefly.
func (s *ProgressService) Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	switch {
	case limit <= 0:
		limit = DefaultLeaderboardSize
	case limit > MaxLeaderboardSize:
		limit = MaxLeaderboardSize
	}
	key := config.CacheKey.LeaderboardKey(limit)

	if s.cache != nil {
		raw, err := s.cache.Get(ctx, key).Bytes()
		if err == nil {
			var entries []model.LeaderboardEntry
			if json.Unmarshal(raw, &entries) == nil {
				return entries, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Msg("Leaderboard cache read failed")
		}
	}

	entries, err := s.store.Leaderboard(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("load leaderboard: %w", err)
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}
	if s.cache != nil {
		if raw, err := json.Marshal(entries); err == nil {
			if err := s.cache.Set(ctx, key, raw, leaderboardTTL).Err(); err != nil {
				s.log.Warn().Err(err).Msg("Leaderboard cache write failed")
			}
		}
	}
	return entries, nil
}

// ─── Redis overlay ─────────────────────────────────────────────────────

// raiseRank sets a hash field only when the new rank is higher, then refreshes the TTL.
var raiseRank = redis.NewScript(`
local cur = tonumber(redis.call("HGET", KEYS[1], ARGV[1]) or "0")
if tonumber(ARGV[2]) > cur then
	redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
end
redis.call("EXPIRE", KEYS[1], ARGV[3])
return 1
`)

// OverlayStore is the part of Redis the progress overlay needs.
type OverlayStore interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	redis.Scripter
}

// RedisProgressOverlay keeps recent passes in the progress:<user> hash.
type RedisProgressOverlay struct {
	rdb OverlayStore
}

func NewRedisProgressOverlay(rdb OverlayStore) *RedisProgressOverlay {
	return &RedisProgressOverlay{rdb: rdb}
}

func (o *RedisProgressOverlay) Raise(ctx context.Context, userID, key string, rank int) error {
	return raiseRank.Run(ctx, o.rdb, []string{config.CacheKey.UserProgressKey(userID)},
		key, rank, int(progressTTL.Seconds())).Err()
}

func (o *RedisProgressOverlay) Ranks(ctx context.Context, userID string) (map[string]int, error) {
	fields, err := o.rdb.HGetAll(ctx, config.CacheKey.UserProgressKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(fields))
	for k, v := range fields {
		if n, err := strconv.Atoi(v); err == nil {
			out[k] = n
		}
	}
	return out, nil
}
