package exam

import (
	"context"
	"time"

	"github.com/prepware/examhall-backend/internal/model"
	"github.com/rs/zerolog"
)

// Event types pushed to the student over the session socket.
const (
	EventAccepted     = "accepted"
	EventCountdown    = "countdown"
	EventWaiting      = "waiting"
	EventLateEntry    = "late_entry"
	EventModuleStart  = "module_start"
	EventTick         = "tick"
	EventModuleLocked = "module_locked"
	EventSubmitted    = "submitted"
	EventForceExit    = "force_exit"
	EventDismissed    = "dismissed"
	EventError        = "error"
)

// Action types accepted from the student.
const (
	ActionBegin           = "begin"
	ActionAnswer          = "answer"
	ActionSubmitModule    = "submit_module"
	ActionSubmitExam      = "submit_exam"
	ActionLateEntryChoice = "late_entry_choice"
	ActionPing            = "ping"
)

// Event is a server-to-client message on the session socket.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Action is a client-to-server message on the session socket.
type Action struct {
	Type     string `json:"type"`
	QID      string `json:"q_id,omitempty"`
	Answer   string `json:"answer,omitempty"`
	Complete bool   `json:"complete,omitempty"`
	Enter    bool   `json:"enter,omitempty"`
}

// AcceptedPayload greets an admitted student with the corrected server
// clock, so the client can render its own countdown between events.
type AcceptedPayload struct {
	ServerTime  time.Time `json:"server_time"`
	ClockSynced bool      `json:"clock_synced"`
}

// TickPayload is the per-second clock frame.
type TickPayload struct {
	Module           model.ModuleType `json:"module"`
	ModuleIndex      int              `json:"module_index"`
	ModuleClock      string           `json:"module_clock"`
	OverallClock     string           `json:"overall_clock"`
	ModuleRemaining  int              `json:"module_remaining_seconds"`
	OverallRemaining int              `json:"overall_remaining_seconds"`
	Warning          bool             `json:"warning"`
	Critical         bool             `json:"critical"`
}

// ModuleStartPayload announces a module transition.
type ModuleStartPayload struct {
	Module      model.ModuleType `json:"module"`
	ModuleIndex int              `json:"module_index"`
	ModuleCount int              `json:"module_count"`
	TrackID     string           `json:"track_id"`
	EndsAt      time.Time        `json:"ends_at"`
}

// SubmittedPayload reports the outcome of the single exam submission.
type SubmittedPayload struct {
	Synced        bool `json:"synced"`
	AutoSubmitted bool `json:"auto_submitted"`
}

// ForceExitPayload names why the run was terminated.
type ForceExitPayload struct {
	Reason ExitReason `json:"reason"`
}

// CountdownPayload is the pre-start countdown frame.
type CountdownPayload struct {
	ExamCode         string `json:"exam_code"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

// Emitter delivers events to the connected student. Implementations must
// tolerate being called from the runner goroutine only.
type Emitter interface {
	Emit(ev Event) error
}

// StatusFeed is the slice of the session directory a runner consumes.
type StatusFeed interface {
	StatusReader
	Countdown(ctx context.Context) (*model.CountdownState, error)
	SubscribeStatus(ctx context.Context) (<-chan *model.GlobalExamStatus, func())
}

// RunnerConfig wires one accepted student into a runtime.
type RunnerConfig struct {
	Session     *model.ExamSession
	Status      *model.GlobalExamStatus
	Participant Participant
	Feed        StatusFeed
	Coordinator *CountdownCoordinator
	Sink        Sink
	Scorer      Scorer
	Emitter     Emitter
	Now         func() time.Time
	ClockSynced bool
}

// Runner is the per-connection exam runtime. It owns all mutable session
// state (answers, module gate, engine position) on a single goroutine and
// reacts to exactly three inputs: the one-second tick, the status
// broadcast, and the student's actions. Everything irreversible funnels
// through the controller's and reactor's latches.
type Runner struct {
	cfg     RunnerConfig
	topo    model.Topology
	now     func() time.Time
	actions chan Action
	log     zerolog.Logger

	engine     *TimingEngine
	controller *SubmissionController
	reactor    *ForcedExitReactor

	answers map[string]string
	began   bool
}

func NewRunner(cfg RunnerConfig, log zerolog.Logger) (*Runner, error) {
	topo, err := cfg.Session.Topology()
	if err != nil {
		return nil, err
	}
	return &Runner{
		cfg:     cfg,
		topo:    topo,
		now:     cfg.Now,
		actions: make(chan Action, 16),
		log: log.With().
			Str("component", "exam_runner").
			Str("exam_code", cfg.Session.Code).
			Int("student_id", cfg.Participant.StudentID).
			Logger(),
		answers: map[string]string{},
	}, nil
}

// Dispatch hands a client action to the runner. Non-blocking: a client
// flooding actions faster than the loop drains them gets its extras
// dropped rather than wedging the socket reader.
func (r *Runner) Dispatch(act Action) {
	select {
	case r.actions <- act:
	default:
		r.log.Warn().Str("action", act.Type).Msg("Action channel full, dropping")
	}
}

// Run drives the session until the student exits, the exam ends, or the
// context is cancelled. It must be called once, on its own goroutine.
func (r *Runner) Run(ctx context.Context) {
	r.emit(Event{Type: EventAccepted, Payload: AcceptedPayload{
		ServerTime:  r.now(),
		ClockSynced: r.cfg.ClockSynced,
	}})

	statusCh, cancel := r.cfg.Feed.SubscribeStatus(ctx)
	defer cancel()

	status, ok := r.awaitStart(ctx, statusCh)
	if !ok {
		return
	}

	sched, err := BuildSchedule(r.topo, status)
	if err != nil {
		r.log.Error().Err(err).Msg("Cannot derive schedule from global status")
		r.emit(Event{Type: EventError, Payload: map[string]string{"code": "CONFIG_ERROR"}})
		return
	}

	if !r.gateLateEntry(ctx, sched, statusCh) {
		return
	}

	r.engine = NewTimingEngine(sched)
	r.reactor = NewForcedExitReactor(r.cfg.Session.Code, sched.OverallEnd(), r.log)
	r.controller = NewSubmissionController(r.cfg.Sink, r.cfg.Scorer, r.now, ControllerConfig{
		Participant:    r.cfg.Participant,
		ExamCode:       r.cfg.Session.Code,
		ExamName:       r.cfg.Session.TrackName,
		Topology:       r.topo,
		TrackIDs:       r.moduleTrackIDs(),
		TrackNames:     r.moduleTrackNames(),
		TotalQuestions: 0,
		AcceptedAt:     r.now(),
	}, r.log)

	r.announceModule()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case st := <-statusCh:
			if reason := r.reactor.Evaluate(st, r.now()); reason != "" {
				r.forceExit(ctx, reason)
				return
			}

		case <-ticker.C:
			tick := r.engine.Tick(r.now())
			r.emit(Event{Type: EventTick, Payload: TickPayload{
				Module:           tick.Module,
				ModuleIndex:      tick.ModuleIndex,
				ModuleClock:      tick.ModuleClock,
				OverallClock:     tick.OverallClock,
				ModuleRemaining:  int(tick.ModuleRemaining / time.Second),
				OverallRemaining: int(tick.OverallRemaining / time.Second),
				Warning:          tick.Warning,
				Critical:         tick.Critical,
			}})
			if tick.ExamExpired {
				r.forceExit(ctx, ExitTimeExpired)
				return
			}
			if tick.ModuleExpired {
				r.completeModule(true)
			}

		case act := <-r.actions:
			if done := r.handleAction(ctx, act); done {
				return
			}
		}
	}
}

// awaitStart blocks through an active countdown, then through the
// data-driven activation wait, and returns the started status. An admin
// stop during the countdown dismisses the student without a submission.
func (r *Runner) awaitStart(ctx context.Context, statusCh <-chan *model.GlobalExamStatus) (*model.GlobalExamStatus, bool) {
	if r.cfg.Status != nil && r.cfg.Status.IsStarted && r.cfg.Status.ExamCode == r.cfg.Session.Code {
		return r.cfg.Status, true
	}

	state, err := r.cfg.Feed.Countdown(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("Countdown read failed")
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for state != nil && state.IsActive && state.ExamCode == r.cfg.Session.Code {
		remaining := r.cfg.Coordinator.Remaining(state, r.now())
		r.emit(Event{Type: EventCountdown, Payload: CountdownPayload{
			ExamCode:         state.ExamCode,
			RemainingSeconds: remaining,
		}})
		if remaining == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, false
		case st := <-statusCh:
			if st != nil && st.IsStarted && st.ExamCode == r.cfg.Session.Code {
				return st, true
			}
		case <-ticker.C:
		}
	}

	r.emit(Event{Type: EventWaiting})
	status, err := r.cfg.Coordinator.AwaitActivation(ctx, r.cfg.Session.Code)
	if err != nil {
		r.log.Warn().Err(err).Msg("Exam never activated")
		r.emit(Event{Type: EventDismissed})
		return nil, false
	}
	return status, true
}

// gateLateEntry shows the late-entry summary and waits for the student's
// choice. Returns false when the student backs out or the run is killed
// while waiting.
func (r *Runner) gateLateEntry(ctx context.Context, sched *Schedule, statusCh <-chan *model.GlobalExamStatus) bool {
	late := DetectLateEntry(sched, r.now(), r.cfg.Session.TrackName, r.cfg.Session.Code)
	if late == nil {
		return true
	}
	r.emit(Event{Type: EventLateEntry, Payload: late})

	for {
		select {
		case <-ctx.Done():
			return false
		case st := <-statusCh:
			if st == nil || !st.IsStarted || st.ExamCode != r.cfg.Session.Code {
				r.emit(Event{Type: EventForceExit, Payload: ForceExitPayload{Reason: ExitAdminStopped}})
				return false
			}
		case act := <-r.actions:
			if act.Type != ActionLateEntryChoice {
				continue
			}
			if !act.Enter {
				r.log.Info().Msg("Late student declined entry")
				r.emit(Event{Type: EventDismissed})
				return false
			}
			return true
		}
	}
}

func (r *Runner) handleAction(ctx context.Context, act Action) (done bool) {
	switch act.Type {
	case ActionBegin:
		r.began = true

	case ActionAnswer:
		if !r.began || r.controller.ModuleLocked(r.engine.CurrentModule()) {
			return false
		}
		r.answers[act.QID] = act.Answer

	case ActionSubmitModule:
		r.completeModule(false)

	case ActionSubmitExam:
		r.finish(ctx, false)
		return true

	case ActionPing:
		r.emit(Event{Type: "pong"})
	}
	return r.controller.Finalized()
}

// completeModule locks the current module and either advances to the next
// one or, on the last module, finalizes the whole exam. Partial topologies
// have a single module, so completing it is the whole-exam submit.
func (r *Runner) completeModule(isAuto bool) {
	m := r.engine.CurrentModule()
	if _, ok := r.controller.SubmitModule(m, r.answers); !ok {
		return
	}
	r.emit(Event{Type: EventModuleLocked, Payload: map[string]any{
		"module": m, "module_index": r.engine.ModuleIndex(),
	}})

	if !r.engine.Advance() {
		r.finish(context.Background(), isAuto)
		return
	}
	r.answers = map[string]string{}
	r.began = false
	r.announceModule()
}

// finish triggers the single whole-exam submission and reports the
// outcome. Safe to call from several paths; the controller's final latch
// keeps it at-most-once.
func (r *Runner) finish(ctx context.Context, isAuto bool) {
	saved, performed := r.controller.SubmitWholeExam(ctx, r.engine.CurrentModule(), r.answers, isAuto)
	if !performed {
		return
	}
	r.emit(Event{Type: EventSubmitted, Payload: SubmittedPayload{Synced: saved, AutoSubmitted: isAuto}})
}

// forceExit runs the exit sequence exactly once: submit whatever answer
// state exists, then tell the client why it is being ejected.
func (r *Runner) forceExit(ctx context.Context, reason ExitReason) {
	if !r.reactor.Trip(reason) {
		return
	}
	r.finish(ctx, true)
	r.emit(Event{Type: EventForceExit, Payload: ForceExitPayload{Reason: reason}})
}

func (r *Runner) announceModule() {
	m := r.engine.CurrentModule()
	r.emit(Event{Type: EventModuleStart, Payload: ModuleStartPayload{
		Module:      m,
		ModuleIndex: r.engine.ModuleIndex(),
		ModuleCount: len(r.topo.Modules()),
		TrackID:     r.moduleTrackIDs()[m],
		EndsAt:      r.engine.ModuleEnd(),
	}})
}

func (r *Runner) moduleTrackIDs() map[model.ModuleType]string {
	out := map[model.ModuleType]string{}
	switch topo := r.topo.(type) {
	case model.Partial:
		out[topo.Module] = topo.TrackID
	case model.Mock:
		for _, m := range topo.Modules() {
			out[m] = topo.Tracks.TrackFor(m)
		}
	}
	return out
}

func (r *Runner) moduleTrackNames() map[model.ModuleType]string {
	out := map[model.ModuleType]string{}
	name := r.cfg.Session.TrackName
	for _, m := range r.topo.Modules() {
		out[m] = name
	}
	return out
}

func (r *Runner) emit(ev Event) {
	if err := r.cfg.Emitter.Emit(ev); err != nil {
		r.log.Debug().Err(err).Str("event", ev.Type).Msg("Emit failed")
	}
}
