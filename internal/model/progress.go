package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Rank is the 1-based position of l in Levels, or 0 for an unknown level.
func (l Level) Rank() int {
	for i, v := range Levels {
		if v == l {
			return i + 1
		}
	}
	return 0
}

// LevelAt returns the level with the given rank, clamped to the known levels.
func LevelAt(rank int) Level {
	switch {
	case rank < 1:
		return Levels[0]
	case rank > len(Levels):
		return Levels[len(Levels)-1]
	}
	return Levels[rank-1]
}

// CurrentLevel is the highest level a student may start after passing
// up to highestPassed (0 when nothing has been passed yet).
func CurrentLevel(highestPassed int) Level {
	return LevelAt(highestPassed + 1)
}

// LevelUnlocked reports whether l may be started after passing up to highestPassed.
func LevelUnlocked(highestPassed int, l Level) bool {
	r := l.Rank()
	return r > 0 && r <= highestPassed+1
}

// ProgressKey identifies one (grade, topic) track, e.g. "12_Hàm số".
func ProgressKey(grade int, topic string) string {
	return fmt.Sprintf("%d_%s", grade, topic)
}

// ParseProgressKey splits a key built by ProgressKey.
func ParseProgressKey(key string) (int, string, bool) {
	g, topic, ok := strings.Cut(key, "_")
	if !ok || topic == "" {
		return 0, "", false
	}
	grade, err := strconv.Atoi(g)
	if err != nil {
		return 0, "", false
	}
	return grade, topic, true
}

// TopicProgress is a student's standing on one (grade, topic) track.
type TopicProgress struct {
	Grade         int    `json:"grade"`
	Topic         string `json:"topic"`
	HighestPassed Level  `json:"highest_passed,omitempty"`
	CurrentLevel  Level  `json:"current_level"`
}

// UserProgress aggregates a student's practice history.
type UserProgress struct {
	UserID     string          `json:"user_id"`
	TotalScore int             `json:"total_score"`
	Quizzes    int             `json:"quizzes"`
	Topics     []TopicProgress `json:"topics"`
}

// LeaderboardEntry is one row of the cumulative score ranking.
type LeaderboardEntry struct {
	Rank       int    `json:"rank"`
	UserID     string `json:"user_id"`
	Name       string `json:"name"`
	TotalScore int    `json:"total_score"`
	Quizzes    int    `json:"quizzes"`
	Passed     int    `json:"passed"`
}
