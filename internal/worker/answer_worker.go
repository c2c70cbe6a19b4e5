package worker

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/toanlab/lms-backend/internal/config"
	"github.com/toanlab/lms-backend/internal/model"
)

// AnswerWorker consumes persist_answers_queue and UPSERTs captured answers.
type AnswerWorker struct {
	pool *pgxpool.Pool
	c    *consumer[model.SavedAnswer]
}

func NewAnswerWorker(pool *pgxpool.Pool, q Queue, log zerolog.Logger) *AnswerWorker {
	w := &AnswerWorker{pool: pool}
	w.c = newConsumer(q, config.WorkerKey.PersistAnswersQueue, sink[model.SavedAnswer]{
		bulk:   w.bulkUpsert,
		single: w.upsertOne,
	}, log.With().Str("component", "answer_worker").Logger())
	return w
}

// Start begins the worker loop. Call in a goroutine.
func (w *AnswerWorker) Start(ctx context.Context) { w.c.run(ctx) }

// latestPerSlot keeps only the newest answer per (attempt, position); a
// single INSERT cannot touch the same conflict target twice.
func latestPerSlot(batch []model.SavedAnswer) []model.SavedAnswer {
	type slot struct {
		attempt  string
		position int
	}
	idx := make(map[slot]int, len(batch))
	out := make([]model.SavedAnswer, 0, len(batch))
	for _, a := range batch {
		k := slot{a.AttemptID.String(), a.Position}
		if i, ok := idx[k]; ok {
			if !a.SavedAt.Before(out[i].SavedAt) {
				out[i] = a
			}
			continue
		}
		idx[k] = len(out)
		out = append(out, a)
	}
	return out
}

const upsertAnswersSQL = `
	INSERT INTO attempt_answers (attempt_id, user_id, position, question_id, answer, updated_at)
	SELECT u.attempt_id::uuid, u.user_id, u.position, u.question_id, u.answer, u.saved_at
	FROM UNNEST($1::text[], $2::text[], $3::int[], $4::text[], $5::text[], $6::timestamptz[])
	     AS u(attempt_id, user_id, position, question_id, answer, saved_at)
	ON CONFLICT (attempt_id, position) DO UPDATE
	SET answer = EXCLUDED.answer, updated_at = EXCLUDED.updated_at
	WHERE attempt_answers.updated_at <= EXCLUDED.updated_at`

func answerArgs(batch []model.SavedAnswer) []any {
	n := len(batch)
	attemptIDs, userIDs, questionIDs := make([]string, n), make([]string, n), make([]string, n)
	positions := make([]int, n)
	answers, savedAt := make([]string, n), make([]time.Time, n)
	for i, a := range batch {
		attemptIDs[i] = a.AttemptID.String()
		userIDs[i] = a.UserID
		positions[i] = a.Position
		questionIDs[i] = a.QuestionID
		answers[i] = a.Answer
		savedAt[i] = a.SavedAt
	}
	return []any{attemptIDs, userIDs, positions, questionIDs, answers, savedAt}
}

func (w *AnswerWorker) bulkUpsert(ctx context.Context, batch []model.SavedAnswer) error {
	_, err := w.pool.Exec(ctx, upsertAnswersSQL, answerArgs(latestPerSlot(batch))...)
	return err
}

func (w *AnswerWorker) upsertOne(ctx context.Context, a model.SavedAnswer) error {
	_, err := w.pool.Exec(ctx, upsertAnswersSQL, answerArgs([]model.SavedAnswer{a})...)
	return err
}
