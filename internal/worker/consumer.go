package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis

	redisBackoff    = 3 * time.Second
	requeueBackoff  = 2 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Queue is the slice of the Redis client the consumers use.
type Queue interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	RPush(ctx context.Context, key string, values ...any) *redis.IntCmd
}

// sink persists decoded queue items. bulk handles a whole batch in one
// statement; single is the row-by-row fallback when bulk fails.
type sink[T any] struct {
	bulk   func(ctx context.Context, batch []T) error
	single func(ctx context.Context, item T) error
	// flushed runs after a successful bulk write.
	flushed func(ctx context.Context, batch []T)
}

// consumer drains one Redis list into Postgres in batches.
type consumer[T any] struct {
	q            Queue
	queue        string
	sink         sink[T]
	log          zerolog.Logger
	batchSize    int
	batchTimeout time.Duration
	sleep        func(time.Duration)
}

func newConsumer[T any](q Queue, queue string, s sink[T], log zerolog.Logger) *consumer[T] {
	return &consumer[T]{
		q:            q,
		queue:        queue,
		sink:         s,
		log:          log,
		batchSize:    BatchSize,
		batchTimeout: BatchTimeout,
		sleep:        time.Sleep,
	}
}

// run loops until ctx is cancelled, then flushes what is buffered.
func (c *consumer[T]) run(ctx context.Context) {
	c.log.Info().Str("queue", c.queue).Msg("Worker started")

	buffer := make([]T, 0, c.batchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= c.batchSize || time.Since(lastFlush) >= c.batchTimeout) {
			c.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			c.shutdown(buffer)
			return
		default:
		}

		// BLPop blocks for PollTimeout and returns immediately if data exists.
		result, err := c.q.BLPop(ctx, PollTimeout, c.queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			c.log.Error().Err(err).Msg("Redis connection error, sleeping")
			c.sleep(redisBackoff)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var item T
		if err := json.Unmarshal([]byte(result[1]), &item); err != nil {
			// Malformed JSON can never succeed; drop it.
			c.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed payload")
			continue
		}
		buffer = append(buffer, item)
	}
}

// flushSafe attempts bulk insert, then row-by-row insert, then requeue.
func (c *consumer[T]) flushSafe(ctx context.Context, batch []T) {
	if len(batch) == 0 {
		return
	}
	err := c.sink.bulk(ctx, batch)
	if err == nil {
		if c.sink.flushed != nil {
			c.sink.flushed(ctx, batch)
		}
		c.log.Debug().Int("count", len(batch)).Msg("Batch persisted")
		return
	}
	c.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")

	var failed []T
	for _, item := range batch {
		if err := c.sink.single(ctx, item); err != nil {
			if errors.Is(err, errDropItem) {
				c.log.Error().Err(err).Msg("Dropping unpersistable item")
				continue
			}
			c.log.Error().Err(err).Msg("Insert failed, requeueing")
			failed = append(failed, item)
		}
	}
	if len(failed) > 0 {
		c.requeue(ctx, failed)
	}
}

func (c *consumer[T]) requeue(ctx context.Context, items []T) {
	values := make([]any, 0, len(items))
	for _, it := range items {
		raw, err := json.Marshal(it)
		if err != nil {
			continue
		}
		values = append(values, raw)
	}
	if err := c.q.RPush(context.WithoutCancel(ctx), c.queue, values...).Err(); err != nil {
		c.log.Error().Err(err).Int("count", len(values)).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
		return
	}
	c.log.Info().Int("count", len(values)).Msg("Requeued failed items back to Redis")
	// Avoid thrashing while the database is down.
	c.sleep(requeueBackoff)
}

func (c *consumer[T]) shutdown(buffer []T) {
	c.log.Info().Int("buffered", len(buffer)).Msg("Worker stopping, flushing remaining buffer")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	c.flushSafe(ctx, buffer)
}

// errDropItem marks a row that is invalid and must not be requeued.
var errDropItem = errors.New("drop item")
