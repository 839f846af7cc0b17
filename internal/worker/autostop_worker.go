package worker

import (
	"context"
	"time"

	"github.com/prepware/examhall-backend/internal/service"
	"github.com/rs/zerolog"
)

// AutoStopWorker periodically sweeps active exam sessions whose scheduled
// end wall-clock has passed and stops them server side. Clients force
// themselves out on their own timers; this sweep covers the row state and
// the global status for exams with no connected clients left.
type AutoStopWorker struct {
	lifecycle *service.LifecycleService
	interval  time.Duration
	log       zerolog.Logger
}

// NewAutoStopWorker creates a new AutoStopWorker.
func NewAutoStopWorker(lifecycle *service.LifecycleService, interval time.Duration, log zerolog.Logger) *AutoStopWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &AutoStopWorker{
		lifecycle: lifecycle,
		interval:  interval,
		log:       log.With().Str("component", "autostop_worker").Logger(),
	}
}

// Start begins the sweep loop. Call in a goroutine.
func (w *AutoStopWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("Worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			stopped, err := w.lifecycle.StopExpired(ctx)
			if err != nil {
				w.log.Error().Err(err).Msg("Sweep error")
				continue
			}
			if stopped > 0 {
				w.log.Info().Int("stopped", stopped).Msg("Expired sessions stopped")
			}
		}
	}
}
