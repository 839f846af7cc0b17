package exam

import (
	"time"

	"github.com/prepware/examhall-backend/internal/model"
	"github.com/rs/zerolog"
)

// ExitReason explains why a running exam was terminated from outside the
// student's own actions.
type ExitReason string

const (
	ExitTimeExpired  ExitReason = "time_expired"
	ExitAdminStopped ExitReason = "admin_stopped"
	ExitExamEnded    ExitReason = "exam_ended"
)

// ForcedExitReactor watches the global status broadcast on behalf of one
// running exam and decides when that run must be terminated. It owns the
// force-exit latch so that a burst of triggers (status deleted while the
// clock also expires) produces exactly one exit sequence.
type ForcedExitReactor struct {
	examCode string
	examEnd  time.Time
	latch    Latch
	log      zerolog.Logger
}

func NewForcedExitReactor(examCode string, examEnd time.Time, log zerolog.Logger) *ForcedExitReactor {
	return &ForcedExitReactor{
		examCode: examCode,
		examEnd:  examEnd,
		log:      log.With().Str("component", "forced_exit_reactor").Str("exam_code", examCode).Logger(),
	}
}

// Evaluate inspects a status update and returns the exit reason that
// applies, or "" when the run may continue. Checks run in precedence
// order: a deleted or stopped status always reads as an administrative
// stop, even if the exam clock also happens to be past its end.
func (r *ForcedExitReactor) Evaluate(status *model.GlobalExamStatus, now time.Time) ExitReason {
	if status == nil {
		return ExitAdminStopped
	}
	if !status.IsStarted {
		return ExitAdminStopped
	}
	if status.ExamCode != r.examCode {
		return ExitAdminStopped
	}
	if status.GlobalEndTime != nil && !now.Before(*status.GlobalEndTime) {
		return ExitTimeExpired
	}
	if !now.Before(r.examEnd) {
		return ExitTimeExpired
	}
	return ""
}

// Trip engages the force-exit latch for the given reason. Returns true
// only for the first caller; everyone after observes an already-running
// exit sequence and stands down.
func (r *ForcedExitReactor) Trip(reason ExitReason) bool {
	if !r.latch.TryAcquire() {
		return false
	}
	r.log.Warn().Str("reason", string(reason)).Msg("Forcing exam exit")
	return true
}

// Tripped reports whether an exit sequence is already in progress.
func (r *ForcedExitReactor) Tripped() bool {
	return r.latch.Engaged()
}
