package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/toanlab/lms-backend/internal/model"
)

// TheoryRepository reads follow-up theory attached to failed verdicts.
type TheoryRepository struct {
	pool *pgxpool.Pool
}

func NewTheoryRepository(pool *pgxpool.Pool) *TheoryRepository {
	return &TheoryRepository{pool: pool}
}

// Find returns the theory for (grade, topic, level). pgx.ErrNoRows when none exists.
func (r *TheoryRepository) Find(ctx context.Context, grade int, topic string, level model.Level) (*model.Theory, error) {
	t := &model.Theory{}
	err := r.pool.QueryRow(ctx,
		`SELECT grade, topic, level, title, content
		 FROM theories
		 WHERE grade = $1 AND topic = $2 AND level = $3`,
		grade, topic, level,
	).Scan(&t.Grade, &t.Topic, &t.Level, &t.Title, &t.Content)
	if err != nil {
		return nil, err
	}
	return t, nil
}
