package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prepware/examhall-backend/internal/config"
	"github.com/prepware/examhall-backend/internal/model"
	"github.com/prepware/examhall-backend/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// SubmissionWorker drains persist_submissions_queue into PostgreSQL. The
// queue holds submissions that could not be written directly at exam exit;
// replaying them later keeps the at-most-once guarantee because the insert
// is idempotent on (exam_code, student_id).
type SubmissionWorker struct {
	submissions *repository.SubmissionRepository
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewSubmissionWorker creates a new SubmissionWorker.
func NewSubmissionWorker(submissions *repository.SubmissionRepository, rdb *redis.Client, log zerolog.Logger) *SubmissionWorker {
	return &SubmissionWorker{
		submissions: submissions,
		rdb:         rdb,
		log:         log.With().Str("component", "submission_worker").Logger(),
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *SubmissionWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *SubmissionWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or timeout (1 second).
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.PersistSubmissionsQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	if err := w.persist(ctx, []byte(result[1])); err != nil {
		w.log.Error().Err(err).Msg("Persist error, retrying in 5s")
		// Push back to queue for retry.
		w.rdb.RPush(ctx, config.WorkerKey.PersistSubmissionsQueue, result[1])
		time.Sleep(5 * time.Second)
	}
}

func (w *SubmissionWorker) persist(ctx context.Context, raw []byte) error {
	var sub model.ExamSubmission
	if err := json.Unmarshal(raw, &sub); err != nil {
		// A payload that cannot decode will never succeed; drop it loudly.
		w.log.Error().Err(err).Msg("Unmarshal error, dropping item")
		return nil
	}

	inserted, err := w.submissions.Add(ctx, &sub)
	if err != nil {
		return err
	}
	if !inserted {
		w.log.Warn().Str("exam_code", sub.ExamCode).Int("student_id", sub.StudentID).
			Msg("Queued submission already persisted, skipping")
		return nil
	}

	w.log.Info().Str("exam_code", sub.ExamCode).Int("student_id", sub.StudentID).
		Msg("Queued submission synced")
	return nil
}

// drain processes all remaining items in the queue before shutdown.
func (w *SubmissionWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.PersistSubmissionsQueue).Result()
		if err != nil {
			break
		}

		if err := w.persist(ctx, []byte(result)); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.PersistSubmissionsQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
