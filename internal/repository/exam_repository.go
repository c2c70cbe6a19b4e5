package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/toanlab/lms-backend/internal/model"
)

// ExamRepository stores published exam variants.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// Create stores the variant header and its ordered question ids in one transaction.
func (r *ExamRepository) Create(ctx context.Context, e *model.PublishedExam) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := tx.QueryRow(ctx,
		`INSERT INTO exam_variants (id, label, title, grade, created_by)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		e.ID, e.Label, e.Title, e.Grade, e.CreatedBy,
	).Scan(&e.CreatedAt); err != nil {
		return fmt.Errorf("insert variant: %w", err)
	}

	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"exam_variant_questions"},
		[]string{"exam_id", "question_id", "position"},
		pgx.CopyFromSlice(len(e.QuestionIDs), func(i int) ([]any, error) {
			return []any{e.ID, e.QuestionIDs[i], i}, nil
		}),
	); err != nil {
		return fmt.Errorf("copy variant questions: %w", err)
	}

	return tx.Commit(ctx)
}

// GetByID retrieves a published variant with its question ids in position order.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.PublishedExam, error) {
	e := &model.PublishedExam{}
	err := r.pool.QueryRow(ctx,
		`SELECT v.id, v.label, v.title, v.grade, v.created_by, v.created_at,
		        COALESCE(ARRAY_AGG(q.question_id ORDER BY q.position)
		                 FILTER (WHERE q.question_id IS NOT NULL), '{}')
		 FROM exam_variants v
		 LEFT JOIN exam_variant_questions q ON q.exam_id = v.id
		 WHERE v.id = $1
		 GROUP BY v.id`, id,
	).Scan(&e.ID, &e.Label, &e.Title, &e.Grade, &e.CreatedBy, &e.CreatedAt, &e.QuestionIDs)
	if err != nil {
		return nil, err
	}
	return e, nil
}
