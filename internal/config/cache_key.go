package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// UserSessionKey returns the cache key holding the token id that owns a user's device session
func (r *CacheKeyStruct) UserSessionKey(userID string) string {
	return fmt.Sprintf("login:%s", userID)
}

// GradeQuestionsKey returns the cache key for a grade's serialized question pool
func (r *CacheKeyStruct) GradeQuestionsKey(grade int) string {
	return fmt.Sprintf("bank:%d:questions", grade)
}

// AttemptAnswersKey returns the hash key mirroring an attempt's captured answers
func (r *CacheKeyStruct) AttemptAnswersKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:answers", attemptID)
}

// AttemptEventsChannel returns the Redis PubSub channel for an attempt's lifecycle events
func (r *CacheKeyStruct) AttemptEventsChannel(attemptID string) string {
	return fmt.Sprintf("attempt:%s:events", attemptID)
}

// TheoryKey returns the cache key for follow-up theory of a grade/topic/level
func (r *CacheKeyStruct) TheoryKey(grade int, topic, level string) string {
	return fmt.Sprintf("theory:%d:%s:%s", grade, topic, level)
}

// UserProgressKey returns the hash of a user's highest passed level rank per grade_topic track
func (r *CacheKeyStruct) UserProgressKey(userID string) string {
	return fmt.Sprintf("progress:%s", userID)
}

// LeaderboardKey returns the cache key for a serialized leaderboard of the given size
func (r *CacheKeyStruct) LeaderboardKey(limit int) string {
	return fmt.Sprintf("leaderboard:%d", limit)
}

var CacheKey = NewCacheKeyStruct()
