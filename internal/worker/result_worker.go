package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/toanlab/lms-backend/internal/config"
	"github.com/toanlab/lms-backend/internal/model"
)

// ResultWorker persists submitted quiz results and clears the attempt's
// autosave mirror once its result is stored.
type ResultWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
	c    *consumer[model.QuizResult]
}

func NewResultWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	w := &ResultWorker{pool: pool, rdb: rdb, log: log.With().Str("component", "result_worker").Logger()}
	w.c = newConsumer(rdb, config.WorkerKey.PersistResultsQueue, sink[model.QuizResult]{
		bulk:    w.bulkInsert,
		single:  w.insertOne,
		flushed: w.clearAutosaved,
	}, w.log)
	return w
}

// Start begins the worker loop. Call in a goroutine.
func (w *ResultWorker) Start(ctx context.Context) { w.c.run(ctx) }

type resultColumns struct {
	attemptIDs  []string
	userIDs     []string
	userNames   []string
	examIDs     []*string
	topics      []string
	grades      []int
	levels      []string
	scores      []int
	totals      []int
	percentages []int
	passed      []bool
	timeSpent   []int
	reasons     []string
	answers     []string
	violations  []string
	submittedAt []time.Time
}

func (rc *resultColumns) add(r model.QuizResult) error {
	answers, err := json.Marshal(r.Answers)
	if err != nil {
		return err
	}
	violations, err := json.Marshal(r.Violations)
	if err != nil {
		return err
	}
	var examID *string
	if r.Meta.ExamID != nil {
		s := r.Meta.ExamID.String()
		examID = &s
	}
	pct, passed := 0, false
	if r.Verdict != nil {
		pct, passed = r.Verdict.Percentage, r.Verdict.Passed
	}

	rc.attemptIDs = append(rc.attemptIDs, r.AttemptID.String())
	rc.userIDs = append(rc.userIDs, r.UserID)
	rc.userNames = append(rc.userNames, r.UserName)
	rc.examIDs = append(rc.examIDs, examID)
	rc.topics = append(rc.topics, r.Meta.Topic)
	rc.grades = append(rc.grades, r.Meta.Grade)
	rc.levels = append(rc.levels, string(r.Meta.Level))
	rc.scores = append(rc.scores, r.Score)
	rc.totals = append(rc.totals, r.TotalQuestions)
	rc.percentages = append(rc.percentages, pct)
	rc.passed = append(rc.passed, passed)
	rc.timeSpent = append(rc.timeSpent, r.TimeSpentSeconds)
	rc.reasons = append(rc.reasons, string(r.Reason))
	rc.answers = append(rc.answers, string(answers))
	rc.violations = append(rc.violations, string(violations))
	rc.submittedAt = append(rc.submittedAt, r.FinishedAt)
	return nil
}

func (rc *resultColumns) args() []any {
	return []any{rc.attemptIDs, rc.userIDs, rc.userNames, rc.examIDs, rc.topics, rc.grades, rc.levels, rc.scores,
		rc.totals, rc.percentages, rc.passed, rc.timeSpent, rc.reasons, rc.answers, rc.violations, rc.submittedAt}
}

// A result is written once per attempt; resubmissions of the same attempt are ignored.
const insertResultsSQL = `
	INSERT INTO quiz_results (attempt_id, user_id, user_name, exam_id, topic, grade, level, score, total,
	                          percentage, passed, time_spent_seconds, reason, answers, violations, submitted_at)
	SELECT u.attempt_id::uuid, u.user_id, u.user_name, u.exam_id::uuid, u.topic, u.grade, u.level, u.score,
	       u.total, u.percentage, u.passed, u.time_spent, u.reason, u.answers::jsonb, u.violations::jsonb,
	       u.submitted_at
	FROM UNNEST(
		$1::text[], $2::text[], $3::text[], $4::text[], $5::text[], $6::int[], $7::text[], $8::int[],
		$9::int[], $10::int[], $11::bool[], $12::int[], $13::text[], $14::text[], $15::text[],
		$16::timestamptz[]
	) AS u(attempt_id, user_id, user_name, exam_id, topic, grade, level, score, total,
	       percentage, passed, time_spent, reason, answers, violations, submitted_at)
	ON CONFLICT (attempt_id) DO NOTHING`

func (w *ResultWorker) bulkInsert(ctx context.Context, batch []model.QuizResult) error {
	var cols resultColumns
	for _, r := range batch {
		if err := cols.add(r); err != nil {
			return err
		}
	}
	_, err := w.pool.Exec(ctx, insertResultsSQL, cols.args()...)
	return err
}

func (w *ResultWorker) insertOne(ctx context.Context, r model.QuizResult) error {
	var cols resultColumns
	if err := cols.add(r); err != nil {
		return fmt.Errorf("%w: %v", errDropItem, err)
	}
	_, err := w.pool.Exec(ctx, insertResultsSQL, cols.args()...)
	return err
}

func (w *ResultWorker) clearAutosaved(ctx context.Context, batch []model.QuizResult) {
	keys := make([]string, 0, len(batch))
	for _, r := range batch {
		keys = append(keys, config.CacheKey.AttemptAnswersKey(r.AttemptID.String()))
	}
	if err := w.rdb.Del(ctx, keys...).Err(); err != nil {
		w.log.Warn().Err(err).Int("count", len(keys)).Msg("Failed to clear autosaved answers")
	}
}
