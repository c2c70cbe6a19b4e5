package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/toanlab/lms-backend/internal/config"
	"github.com/toanlab/lms-backend/internal/model"
)

// ViolationWorker persists anti-cheat reports from persist_violations_queue.
type ViolationWorker struct {
	pool *pgxpool.Pool
	c    *consumer[model.ViolationReport]
}

func NewViolationWorker(pool *pgxpool.Pool, q Queue, log zerolog.Logger) *ViolationWorker {
	w := &ViolationWorker{pool: pool}
	w.c = newConsumer(q, config.WorkerKey.PersistViolationsQueue, sink[model.ViolationReport]{
		bulk:   w.bulkInsert,
		single: w.insertOne,
	}, log.With().Str("component", "violation_worker").Logger())
	return w
}

// Start begins the worker loop. Call in a goroutine.
func (w *ViolationWorker) Start(ctx context.Context) { w.c.run(ctx) }

func violationRow(v model.ViolationReport) ([]any, error) {
	detail, err := json.Marshal(map[string]any{"count": v.Count, "timestamp": v.Timestamp})
	if err != nil {
		return nil, err
	}
	if v.UserID == "" || v.Type == "" {
		return nil, fmt.Errorf("%w: violation without user or type", errDropItem)
	}
	return []any{v.UserID, v.AttemptID, string(v.Type), string(detail), v.Topic, string(v.Level), v.Timestamp}, nil
}

var violationColumns = []string{"user_id", "attempt_id", "violation_type", "detail", "topic", "level", "recorded_at"}

func (w *ViolationWorker) bulkInsert(ctx context.Context, batch []model.ViolationReport) error {
	rows := make([][]any, 0, len(batch))
	for _, v := range batch {
		row, err := violationRow(v)
		if err != nil {
			// Let the fallback path drop the bad row individually.
			return err
		}
		rows = append(rows, row)
	}
	_, err := w.pool.CopyFrom(ctx, pgx.Identifier{"quiz_violations"}, violationColumns, pgx.CopyFromRows(rows))
	return err
}

func (w *ViolationWorker) insertOne(ctx context.Context, v model.ViolationReport) error {
	row, err := violationRow(v)
	if err != nil {
		return err
	}
	_, err = w.pool.Exec(ctx,
		`INSERT INTO quiz_violations (user_id, attempt_id, violation_type, detail, topic, level, recorded_at)
		 VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7)`,
		row...,
	)
	return err
}
