package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/toanlab/lms-backend/internal/model"
)

const questionColumns = `id, grade, topic, level, question_type, question_text,
	option_a, option_b, option_c, option_d, answer_key, solution, created_at, updated_at`

// QuestionRepository handles question bank data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByGrade retrieves every question of a grade, ordered by topic, level then id.
func (r *QuestionRepository) ListByGrade(ctx context.Context, grade int) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+`
		 FROM questions WHERE grade = $1
		 ORDER BY topic, level, id`, grade,
	)
	if err != nil {
		return nil, err
	}
	return collectQuestions(rows)
}

// ListByIDs retrieves the questions with the given ids in no particular order.
func (r *QuestionRepository) ListByIDs(ctx context.Context, ids []string) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = ANY($1)`, ids,
	)
	if err != nil {
		return nil, err
	}
	return collectQuestions(rows)
}

// GetByID retrieves a question by its id.
func (r *QuestionRepository) GetByID(ctx context.Context, id string) (*model.Question, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	q, err := pgx.CollectExactlyOneRow(rows, scanQuestion)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// Upsert inserts the question or replaces the stored row with the same id.
func (r *QuestionRepository) Upsert(ctx context.Context, q *model.Question) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (id, grade, topic, level, question_type, question_text,
		                        option_a, option_b, option_c, option_d, answer_key, solution)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE SET
		     grade = EXCLUDED.grade, topic = EXCLUDED.topic, level = EXCLUDED.level,
		     question_type = EXCLUDED.question_type, question_text = EXCLUDED.question_text,
		     option_a = EXCLUDED.option_a, option_b = EXCLUDED.option_b,
		     option_c = EXCLUDED.option_c, option_d = EXCLUDED.option_d,
		     answer_key = EXCLUDED.answer_key, solution = EXCLUDED.solution,
		     updated_at = NOW()
		 RETURNING created_at, updated_at`,
		q.ID, q.Grade, q.Topic, q.Level, q.QuestionType, q.QuestionText,
		q.OptionA, q.OptionB, q.OptionC, q.OptionD, q.AnswerKey, q.Solution,
	).Scan(&q.CreatedAt, &q.UpdatedAt)
}

// BulkInsert loads seed questions with COPY. Existing ids make the whole copy fail.
func (r *QuestionRepository) BulkInsert(ctx context.Context, qs []model.Question) (int64, error) {
	return r.pool.CopyFrom(ctx,
		pgx.Identifier{"questions"},
		[]string{"id", "grade", "topic", "level", "question_type", "question_text",
			"option_a", "option_b", "option_c", "option_d", "answer_key", "solution"},
		pgx.CopyFromSlice(len(qs), func(i int) ([]any, error) {
			q := qs[i]
			return []any{q.ID, q.Grade, q.Topic, string(q.Level), string(q.QuestionType), q.QuestionText,
				q.OptionA, q.OptionB, q.OptionC, q.OptionD, q.AnswerKey, q.Solution}, nil
		}),
	)
}

// Delete removes a question and returns its grade so the caller can
// invalidate the cached pool.
func (r *QuestionRepository) Delete(ctx context.Context, id string) (int, error) {
	var grade int
	err := r.pool.QueryRow(ctx, `DELETE FROM questions WHERE id = $1 RETURNING grade`, id).Scan(&grade)
	return grade, err
}

func collectQuestions(rows pgx.Rows) ([]model.Question, error) {
	return pgx.CollectRows(rows, scanQuestion)
}

func scanQuestion(row pgx.CollectableRow) (model.Question, error) {
	var q model.Question
	err := row.Scan(&q.ID, &q.Grade, &q.Topic, &q.Level, &q.QuestionType, &q.QuestionText,
		&q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD, &q.AnswerKey, &q.Solution,
		&q.CreatedAt, &q.UpdatedAt)
	return q, err
}
