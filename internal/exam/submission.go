package exam

import (
	"context"
	"fmt"
	"time"

	"github.com/prepware/examhall-backend/internal/model"
	"github.com/rs/zerolog"
)

// Sink persists finished submissions. The bool result distinguishes a
// synced write (true) from "queued locally, will sync later" (false);
// both are success paths for the student's exit flow.
type Sink interface {
	AddSubmission(ctx context.Context, sub *model.ExamSubmission) (bool, error)
}

// Scorer computes an automatic score for an objective answer set.
// A nil score means the module requires manual grading and the raw
// answers are persisted unscored. Tally exposes the raw correct/total
// counts so multi-section runs can be scored as one aggregate; a zero
// total means no answer key exists for the track.
type Scorer interface {
	Score(ctx context.Context, trackID string, answers map[string]string, totalQuestions int) (*float64, error)
	Tally(ctx context.Context, trackID string, answers map[string]string) (correct, total int, err error)
}

// Participant identifies the student a controller submits for.
type Participant struct {
	StudentID   int
	StudentName string
	BatchID     string
}

// SubmissionController guarantees at most one persisted submission per
// (exam, module) no matter how many trigger sources fire: the local timer,
// the forced-exit reactor and the manual module-complete action all call
// into the same latches, and a tripped latch turns the call into a silent
// no-op.
type SubmissionController struct {
	sink   Sink
	scorer Scorer
	now    func() time.Time
	log    zerolog.Logger

	participant Participant
	examCode    string
	examName    string
	topo        model.Topology
	trackIDs    map[model.ModuleType]string
	trackNames  map[model.ModuleType]string
	totalQs     int
	acceptedAt  time.Time

	sections      map[model.ModuleType]model.SectionSubmission
	moduleLatches map[model.ModuleType]*Latch
	finalLatch    Latch
}

// ControllerConfig carries the per-session inputs for a controller.
type ControllerConfig struct {
	Participant    Participant
	ExamCode       string
	ExamName       string
	Topology       model.Topology
	TrackIDs       map[model.ModuleType]string
	TrackNames     map[model.ModuleType]string
	TotalQuestions int
	AcceptedAt     time.Time
}

// NewSubmissionController builds a controller with fresh latches for every
// module plus the whole-exam latch.
func NewSubmissionController(sink Sink, scorer Scorer, now func() time.Time, cfg ControllerConfig, log zerolog.Logger) *SubmissionController {
	latches := make(map[model.ModuleType]*Latch, len(cfg.Topology.Modules()))
	for _, m := range cfg.Topology.Modules() {
		latches[m] = &Latch{}
	}
	return &SubmissionController{
		sink:          sink,
		scorer:        scorer,
		now:           now,
		log:           log.With().Str("component", "submission_controller").Str("exam_code", cfg.ExamCode).Logger(),
		participant:   cfg.Participant,
		examCode:      cfg.ExamCode,
		examName:      cfg.ExamName,
		topo:          cfg.Topology,
		trackIDs:      cfg.TrackIDs,
		trackNames:    cfg.TrackNames,
		totalQs:       cfg.TotalQuestions,
		acceptedAt:    cfg.AcceptedAt,
		sections:      make(map[model.ModuleType]model.SectionSubmission),
		moduleLatches: latches,
	}
}

// ModuleLocked reports whether a module's submission has already been
// captured. Locked modules are view-only.
func (c *SubmissionController) ModuleLocked(m model.ModuleType) bool {
	return c.moduleLatches[m].Engaged()
}

// Finalized reports whether the whole-exam submission has been triggered.
func (c *SubmissionController) Finalized() bool {
	return c.finalLatch.Engaged()
}

// SubmitModule captures one module's answers (mock topology). Returns the
// locked section and true on the first call for the module; any repeat
// (timer expiry racing the manual button, a double click) is absorbed by
// the latch and returns false with no side effects.
func (c *SubmissionController) SubmitModule(m model.ModuleType, answers map[string]string) (*model.SectionSubmission, bool) {
	if !c.moduleLatches[m].TryAcquire() {
		return nil, false
	}

	section := model.SectionSubmission{
		Module:      m,
		TrackID:     c.trackIDs[m],
		TrackName:   c.trackNames[m],
		Answers:     copyAnswers(answers),
		SubmittedAt: c.now(),
		TimeSpent:   formatTimeSpent(c.now().Sub(c.acceptedAt)),
		Locked:      true,
	}
	c.sections[m] = section

	c.log.Info().Str("module", string(m)).Int("answers", len(section.Answers)).Msg("Module submission captured")
	return &section, true
}

// SubmitWholeExam builds and persists the one ExamSubmission record for
// this run. currentAnswers is whatever answer state exists right now for
// the module in progress; under a forced exit it is folded in so nothing
// the student typed is discarded. The second and later calls are no-ops.
//
// A sink failure is non-fatal: the sink is required to queue locally and
// report saved=false, and even a returned error still releases the
// student. Keeping someone trapped in an expired exam is worse than
// losing the submission outcome.
func (c *SubmissionController) SubmitWholeExam(ctx context.Context, current model.ModuleType, currentAnswers map[string]string, isAuto bool) (saved bool, performed bool) {
	if !c.finalLatch.TryAcquire() {
		return false, false
	}

	now := c.now()
	sub := &model.ExamSubmission{
		ID:              fmt.Sprintf("%d-%d", c.participant.StudentID, now.UnixMilli()),
		StudentID:       c.participant.StudentID,
		StudentName:     c.participant.StudentName,
		BatchID:         c.participant.BatchID,
		ExamCode:        c.examCode,
		TestType:        c.topo.TestType(),
		TrackName:       c.examName,
		SubmittedAt:     now,
		TimeSpent:       formatTimeSpent(now.Sub(c.acceptedAt)),
		TotalQuestions:  c.totalQs,
		Status:          model.SubmissionStatusCompleted,
		AutoSubmitted:   isAuto,
		ResultPublished: false,
		Answers:         map[string]string{},
	}

	switch topo := c.topo.(type) {
	case model.Mock:
		// Fold in the in-progress module so a forced exit keeps its answers.
		if current != "" && !c.sections[current].Locked {
			if section, ok := c.SubmitModule(current, currentAnswers); ok {
				c.sections[current] = *section
			}
		}
		sub.TrackID = "mock"
		sub.Sections = c.sections
		for _, m := range topo.Modules() {
			sub.TrackIDs = append(sub.TrackIDs, c.trackIDs[m])
		}
		// A mock that includes a writing module is graded manually. An
		// all-objective selection is scored as one aggregate across its
		// sections, each counted against its own answer key.
		if !mockHasWriting(topo) {
			if score := c.scoreMockAggregate(ctx, sub.Sections); score != nil {
				sub.Score = score
			}
		}

	case model.Partial:
		sub.TrackID = topo.TrackID
		sub.Answers = copyAnswers(currentAnswers)
		if topo.Module != model.ModuleWriting {
			score, err := c.scorer.Score(ctx, topo.TrackID, sub.Answers, c.totalQs)
			if err != nil {
				c.log.Warn().Err(err).Msg("Automatic scoring failed, persisting unscored")
			} else {
				sub.Score = score
			}
		}
	}

	saved, err := c.sink.AddSubmission(ctx, sub)
	if err != nil {
		c.log.Error().Err(err).Msg("Submission sink failed, proceeding to exit anyway")
		return false, true
	}
	if !saved {
		c.log.Warn().Msg("Submission queued locally only, will sync later")
	}

	c.log.Info().Bool("auto", isAuto).Bool("synced", saved).Msg("Exam submission recorded")
	return saved, true
}

func mockHasWriting(topo model.Mock) bool {
	for _, m := range topo.Modules() {
		if m == model.ModuleWriting {
			return true
		}
	}
	return false
}

// scoreMockAggregate tallies every captured section against its own answer
// key and folds the counts into one percentage. Any section without a key,
// or any tally failure, leaves the whole run unscored for manual grading.
func (c *SubmissionController) scoreMockAggregate(ctx context.Context, sections map[model.ModuleType]model.SectionSubmission) *float64 {
	correct, total := 0, 0
	for m, section := range sections {
		cnt, n, err := c.scorer.Tally(ctx, section.TrackID, section.Answers)
		if err != nil {
			c.log.Warn().Err(err).Str("module", string(m)).Msg("Section tally failed, persisting unscored")
			return nil
		}
		if n == 0 {
			c.log.Info().Str("module", string(m)).Msg("No answer key for section, persisting unscored")
			return nil
		}
		correct += cnt
		total += n
	}
	if total == 0 {
		return nil
	}
	score := float64(correct) / float64(total) * 100
	return &score
}

func copyAnswers(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func formatTimeSpent(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%dm %ds", int(d/time.Minute), int(d/time.Second)%60)
}
