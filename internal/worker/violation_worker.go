package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/monitor"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ViolationSink stores violation rows.
type ViolationSink interface {
	CopyViolations(ctx context.Context, rows []repository.ViolationRow) error
	InsertViolation(ctx context.Context, row repository.ViolationRow) error
}

// ViolationWorker drains the violation queue filled by the monitor reporter
// into attempt_violations.
type ViolationWorker struct {
	sink ViolationSink
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewViolationWorker(sink ViolationSink, rdb *redis.Client, log zerolog.Logger) *ViolationWorker {
	return &ViolationWorker{
		sink: sink,
		rdb:  rdb,
		log:  log.With().Str("component", "violation_worker").Logger(),
	}
}

func (w *ViolationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ViolationWorker started")

	buffer := make([]*monitor.Event, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Check Flush Conditions (Time or Size)
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
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

		// 3. Fetch from Redis. Returns immediately if data exists.
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistViolationsQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // Queue empty, loop back to check flush timer
			}
			if ctx.Err() != nil {
				continue // shutdown handled above
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		// 4. Process Data
		if len(result) < 2 {
			continue
		}

		var ev monitor.Event
		if err := json.Unmarshal([]byte(result[1]), &ev); err != nil {
			// Malformed JSON can never succeed. Log and discard.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}
		if ev.Type != monitor.EventViolation {
			continue
		}

		buffer = append(buffer, &ev)
	}
}

// toRow converts a queued event into a row.
func toRow(ev *monitor.Event) (repository.ViolationRow, error) {
	attemptID, err := uuid.Parse(ev.AttemptID)
	if err != nil {
		return repository.ViolationRow{}, err
	}
	quizID, err := uuid.Parse(ev.QuizID)
	if err != nil {
		return repository.ViolationRow{}, err
	}
	return repository.ViolationRow{
		AttemptID:    attemptID,
		QuizID:       quizID,
		Reason:       ev.Reason,
		WarningCount: ev.WarningCount,
		RecordedAt:   time.Unix(ev.Timestamp, 0),
	}, nil
}

// flushSafe attempts bulk insert, then fallback insert, then requeue
func (w *ViolationWorker) flushSafe(ctx context.Context, batch []*monitor.Event) {
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *ViolationWorker) bulkInsert(ctx context.Context, batch []*monitor.Event) error {
	rows := make([]repository.ViolationRow, 0, len(batch))
	for _, ev := range batch {
		row, err := toRow(ev)
		if err != nil {
			// The fallback drops the bad event individually.
			return err
		}
		rows = append(rows, row)
	}
	if err := w.sink.CopyViolations(ctx, rows); err != nil {
		return err
	}
	metrics.ViolationsPersisted.WithLabelValues("copy").Add(float64(len(rows)))
	return nil
}

func (w *ViolationWorker) fallbackInsert(ctx context.Context, batch []*monitor.Event) {
	requeueList := make([]*monitor.Event, 0)

	for _, ev := range batch {
		row, err := toRow(ev)
		if err != nil {
			w.log.Error().Str("attempt_id", ev.AttemptID).Str("quiz_id", ev.QuizID).Msg("Dropping violation with invalid UUID")
			continue
		}

		if err := w.sink.InsertViolation(ctx, row); err != nil {
			w.log.Error().Err(err).Str("attempt_id", ev.AttemptID).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, ev)
			continue
		}
		metrics.ViolationsPersisted.WithLabelValues("insert").Inc()
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *ViolationWorker) requeue(ctx context.Context, items []*monitor.Event) {
	pipe := w.rdb.Pipeline()
	for _, ev := range items {
		data, _ := json.Marshal(ev)
		pipe.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue violations to Redis. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
	// Back off so a database outage does not spin the loop.
	time.Sleep(2 * time.Second)
}

func (w *ViolationWorker) shutdown(buffer []*monitor.Event) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
