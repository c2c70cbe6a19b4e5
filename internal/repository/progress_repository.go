package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/toanlab/lms-backend/internal/model"
)

// ProgressRepository aggregates stored quiz results into level progression
// and the leaderboard.
type ProgressRepository struct {
	pool *pgxpool.Pool
}

func NewProgressRepository(pool *pgxpool.Pool) *ProgressRepository {
	return &ProgressRepository{pool: pool}
}

func levelNames() []string {
	names := make([]string, len(model.Levels))
	for i, l := range model.Levels {
		names[i] = string(l)
	}
	return names
}

// HighestPassed returns, per ProgressKey, the rank of the highest level the
// user passed in a practice quiz. Exam attempts carry no level and never count.
func (r *ProgressRepository) HighestPassed(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT grade, topic, MAX(array_position($2::text[], level::text)) AS rank
		 FROM quiz_results
		 WHERE user_id = $1 AND passed AND exam_id IS NULL AND level = ANY($2::text[])
		 GROUP BY grade, topic`,
		userID, levelNames(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			grade int
			topic string
			rank  int
		)
		if err := rows.Scan(&grade, &topic, &rank); err != nil {
			return nil, err
		}
		out[model.ProgressKey(grade, topic)] = rank
	}
	return out, rows.Err()
}

// Totals returns the cumulative score and number of stored results of a user.
func (r *ProgressRepository) Totals(ctx context.Context, userID string) (score, quizzes int, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(score), 0)::int, COUNT(*)::int FROM quiz_results WHERE user_id = $1`,
		userID,
	).Scan(&score, &quizzes)
	return score, quizzes, err
}

// Leaderboard ranks users by cumulative score. Ties share a rank.
func (r *ProgressRepository) Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT RANK() OVER (ORDER BY SUM(score) DESC)::int,
		        user_id,
		        MAX(user_name),
		        SUM(score)::int,
		        COUNT(*)::int,
		        (COUNT(*) FILTER (WHERE passed))::int
		 FROM quiz_results
		 GROUP BY user_id
		 ORDER BY SUM(score) DESC, user_id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.LeaderboardEntry, error) {
		var e model.LeaderboardEntry
		err := row.Scan(&e.Rank, &e.UserID, &e.Name, &e.TotalScore, &e.Quizzes, &e.Passed)
		return e, err
	})
}
