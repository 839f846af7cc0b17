package exam

import (
	"context"
	"errors"
	"time"

	"github.com/prepware/examhall-backend/internal/model"
	"github.com/rs/zerolog"
)

// StatusReader is the slice of the session directory the coordinator
// needs: the current global status, if any.
type StatusReader interface {
	Status(ctx context.Context) (*model.GlobalExamStatus, error)
}

// ErrActivationTimeout means the countdown reached zero but the exam
// status never flipped to started within the allowed retries.
var ErrActivationTimeout = errors.New("exam did not activate after countdown")

const (
	activationMaxAttempts = 10
	activationRetryDelay  = 2 * time.Second
)

// CountdownCoordinator bridges the gap between "countdown hit zero" and
// "exam status is started". Activation is data driven: the status record
// flips when the countdown worker's persisted start time comes due, and
// the coordinator merely polls for that flip instead of assuming it.
type CountdownCoordinator struct {
	directory StatusReader
	sleep     func(ctx context.Context, d time.Duration) error
	log       zerolog.Logger
}

func NewCountdownCoordinator(directory StatusReader, log zerolog.Logger) *CountdownCoordinator {
	return &CountdownCoordinator{
		directory: directory,
		sleep:     sleepCtx,
		log:       log.With().Str("component", "countdown_coordinator").Logger(),
	}
}

// Remaining reports the countdown seconds left, clamped at zero.
func (c *CountdownCoordinator) Remaining(state *model.CountdownState, now time.Time) int {
	if state == nil {
		return 0
	}
	return state.Remaining(now)
}

// AwaitActivation polls the directory until the status for examCode is
// started, giving up after a fixed number of attempts. The first probe is
// immediate; each retry waits a flat delay. Context cancellation aborts
// between probes.
func (c *CountdownCoordinator) AwaitActivation(ctx context.Context, examCode string) (*model.GlobalExamStatus, error) {
	for attempt := 1; attempt <= activationMaxAttempts; attempt++ {
		status, err := c.directory.Status(ctx)
		if err != nil {
			c.log.Warn().Err(err).Int("attempt", attempt).Msg("Status probe failed during activation wait")
		} else if status != nil && status.IsStarted && status.ExamCode == examCode {
			c.log.Info().Int("attempt", attempt).Str("exam_code", examCode).Msg("Exam activated")
			return status, nil
		}

		if attempt == activationMaxAttempts {
			break
		}
		if err := c.sleep(ctx, activationRetryDelay); err != nil {
			return nil, err
		}
	}
	return nil, ErrActivationTimeout
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
