package worker

import (
	"context"
	"time"

	"github.com/prepware/examhall-backend/internal/model"
	"github.com/prepware/examhall-backend/internal/service"
	"github.com/prepware/examhall-backend/internal/store"
	"github.com/rs/zerolog"
)

// CountdownWorker watches the persisted countdown record and flips the
// global status live once the recorded exam start time arrives. Because
// activation is driven by data and not by an in-memory timer, a restarted
// server picks the countdown back up and a late wakeup still activates the
// exam with its original start time.
type CountdownWorker struct {
	directory *store.Directory
	lifecycle *service.LifecycleService
	interval  time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewCountdownWorker creates a new CountdownWorker. now is the time
// authority the due check runs against; activation must follow the synced
// clock that stamped ExamStartTime, not the local host clock.
func NewCountdownWorker(directory *store.Directory, lifecycle *service.LifecycleService, interval time.Duration, now func() time.Time, log zerolog.Logger) *CountdownWorker {
	if interval <= 0 {
		interval = time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &CountdownWorker{
		directory: directory,
		lifecycle: lifecycle,
		interval:  interval,
		now:       now,
		log:       log.With().Str("component", "countdown_worker").Logger(),
	}
}

// Start begins the polling loop. Call in a goroutine.
func (w *CountdownWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("Worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *CountdownWorker) tick(ctx context.Context) {
	state, err := w.directory.Countdown(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("Countdown read error")
		return
	}
	if !due(state, w.now()) {
		return
	}

	if _, err := w.lifecycle.ActivateFromCountdown(ctx, state); err != nil {
		w.log.Error().Err(err).Str("exam_code", state.ExamCode).Msg("Activation error")
	}
}

func due(state *model.CountdownState, now time.Time) bool {
	return state != nil && state.IsActive && state.ExamStartTime != nil && !now.Before(*state.ExamStartTime)
}
