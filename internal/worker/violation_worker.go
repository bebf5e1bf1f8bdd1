package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hirepath/assess-backend/internal/config"
	"github.com/hirepath/assess-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// EventStore persists itemized violation events.
type EventStore interface {
	BulkInsert(ctx context.Context, events []model.ViolationEvent) error
	Insert(ctx context.Context, e *model.ViolationEvent) error
}

// ViolationWorker drains queued violation events into the itemized audit
// table. Counters on the session row are already written synchronously; this
// worker only owns the per-event log, so it can batch aggressively.
type ViolationWorker struct {
	repo EventStore
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewViolationWorker(repo EventStore, rdb *redis.Client, log zerolog.Logger) *ViolationWorker {
	return &ViolationWorker{
		repo: repo,
		rdb:  rdb,
		log:  log.With().Str("component", "violation_worker").Logger(),
	}
}

func (w *ViolationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ViolationWorker started")

	buffer := make([]model.ViolationEvent, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Check Flush Conditions (Time or Size)
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0] // Clear buffer, keep capacity
				lastFlushTime = time.Now()
			}
		}

		// 2. Check Context (Graceful Shutdown)
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch from Redis. BLPop blocks for 1 second, returning
		// immediately if data exists.
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistViolationsQueue).Result()
		if err != nil {
			if err == redis.Nil {
				continue // Queue empty, loop back to check flush timer
			}
			if ctx.Err() != nil {
				// Cancellation surfaced through the poll; buffered events
				// still need to reach the database.
				w.shutdown(buffer)
				return
			}
			// Real Redis error (e.g., connection lost)
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		// 4. Process Data
		if len(result) < 2 {
			continue
		}

		var event model.ViolationEvent
		if err := json.Unmarshal([]byte(result[1]), &event); err != nil {
			// Malformed JSON cannot be retried. Log and discard.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed violation event")
			continue
		}
		if !event.Type.Valid() {
			w.log.Error().Str("type", string(event.Type)).Msg("Discarding violation event with unknown type")
			continue
		}

		buffer = append(buffer, event)
	}
}

// flushSafe attempts bulk insert, then row-by-row fallback, then requeue.
func (w *ViolationWorker) flushSafe(ctx context.Context, batch []model.ViolationEvent) {
	if err := w.repo.BulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *ViolationWorker) fallbackInsert(ctx context.Context, batch []model.ViolationEvent) {
	requeueList := make([]model.ViolationEvent, 0)

	for i := range batch {
		if err := w.repo.Insert(ctx, &batch[i]); err != nil {
			w.log.Error().Err(err).Str("session_id", batch[i].SessionID.String()).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, batch[i])
		}
	}

	// If we have items to requeue (DB was down), push them back to Redis
	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *ViolationWorker) requeue(ctx context.Context, items []model.ViolationEvent) {
	// Use a pipeline to push everything back quickly
	pipe := w.rdb.Pipeline()
	for _, e := range items {
		data, _ := json.Marshal(e)
		pipe.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue violation events. Data loss occurred.")
	} else {
		w.log.Info().Int("count", len(items)).Msg("Requeued failed violation events back to Redis")
		// Avoid thrashing if the DB is down hard
		time.Sleep(2 * time.Second)
	}
}

func (w *ViolationWorker) shutdown(buffer []model.ViolationEvent) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
