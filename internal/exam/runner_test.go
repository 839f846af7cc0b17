package exam

import (
	"context"
	"testing"
	"time"

	"github.com/prepware/examhall-backend/internal/model"
	"github.com/rs/zerolog"
)

type chanEmitter struct {
	events chan Event
}

func (e *chanEmitter) Emit(ev Event) error {
	select {
	case e.events <- ev:
	default:
	}
	return nil
}

type fakeFeed struct {
	status    *model.GlobalExamStatus
	countdown *model.CountdownState
	updates   chan *model.GlobalExamStatus
}

func (f *fakeFeed) Status(context.Context) (*model.GlobalExamStatus, error) {
	return f.status, nil
}

func (f *fakeFeed) Countdown(context.Context) (*model.CountdownState, error) {
	return f.countdown, nil
}

func (f *fakeFeed) SubscribeStatus(context.Context) (<-chan *model.GlobalExamStatus, func()) {
	return f.updates, func() {}
}

func partialSession() *model.ExamSession {
	return &model.ExamSession{
		Code:            "RDA-20260314-001",
		TestType:        model.TestTypePartial,
		TrackID:         "10m-reading",
		TrackName:       "Reading A",
		DurationMinutes: 60,
		Status:          model.SessionStatusActive,
		AllowedBatches:  []string{"batch-1"},
	}
}

func mockSession() *model.ExamSession {
	tracks := model.ModuleTracks{Listening: "10m-listening", Reading: "10m-reading", Writing: "10m-writing"}
	durations := model.ModuleDurations{Listening: 30, Reading: 45, Writing: 60}
	return &model.ExamSession{
		Code:            "MOCK-20260314-001",
		TestType:        model.TestTypeMock,
		TrackName:       "March Mock",
		ModuleTracks:    &tracks,
		ModuleDurations: &durations,
		Status:          model.SessionStatusActive,
		AllowedBatches:  []string{"batch-1"},
	}
}

func startRunner(t *testing.T, session *model.ExamSession, status *model.GlobalExamStatus, now time.Time, sink Sink) (*Runner, chan Event, *fakeFeed, chan struct{}) {
	t.Helper()

	feed := &fakeFeed{status: status, updates: make(chan *model.GlobalExamStatus, 8)}
	events := make(chan Event, 128)

	runner, err := NewRunner(RunnerConfig{
		Session:     session,
		Status:      status,
		Participant: Participant{StudentID: 7, StudentName: "Ada", BatchID: "batch-1"},
		Feed:        feed,
		Coordinator: NewCountdownCoordinator(feed, zerolog.Nop()),
		Sink:        sink,
		Scorer:      &fakeScorer{},
		Emitter:     &chanEmitter{events: events},
		Now:         func() time.Time { return now },
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		runner.Run(context.Background())
	}()
	return runner, events, feed, done
}

func waitEvent(t *testing.T, events chan Event, eventType string) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q event", eventType)
		}
	}
}

func waitDone(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestRunnerAdminStopForcesSingleSubmission(t *testing.T) {
	sink := &fakeSink{saved: true}
	_, events, feed, done := startRunner(t, partialSession(),
		startedStatus("RDA-20260314-001", testStart, 60), testStart, sink)

	waitEvent(t, events, EventModuleStart)

	// Deletion broadcast twice; the exit sequence must run once.
	feed.updates <- nil
	feed.updates <- nil

	waitEvent(t, events, EventSubmitted)
	exit := waitEvent(t, events, EventForceExit)
	if reason := exit.Payload.(ForceExitPayload).Reason; reason != ExitAdminStopped {
		t.Errorf("reason = %q, want %q", reason, ExitAdminStopped)
	}

	waitDone(t, done)
	if sink.calls != 1 {
		t.Errorf("sink called %d times, want 1", sink.calls)
	}
	if !sink.last.AutoSubmitted {
		t.Error("forced submission not flagged auto")
	}
}

func TestRunnerManualExamSubmit(t *testing.T) {
	sink := &fakeSink{saved: true}
	runner, events, _, done := startRunner(t, partialSession(),
		startedStatus("RDA-20260314-001", testStart, 60), testStart, sink)

	waitEvent(t, events, EventModuleStart)

	runner.Dispatch(Action{Type: ActionBegin})
	runner.Dispatch(Action{Type: ActionAnswer, QID: "q1", Answer: "b"})
	runner.Dispatch(Action{Type: ActionSubmitExam})

	submitted := waitEvent(t, events, EventSubmitted)
	payload := submitted.Payload.(SubmittedPayload)
	if payload.AutoSubmitted {
		t.Error("manual submit flagged auto")
	}
	if !payload.Synced {
		t.Error("synced persist reported as queued")
	}

	waitDone(t, done)
	if sink.last.Answers["q1"] != "b" {
		t.Errorf("answers not carried: %v", sink.last.Answers)
	}
}

func TestRunnerLateEntryDecline(t *testing.T) {
	sink := &fakeSink{saved: true}
	runner, events, _, done := startRunner(t, partialSession(),
		startedStatus("RDA-20260314-001", testStart, 60), testStart.Add(10*time.Minute), sink)

	late := waitEvent(t, events, EventLateEntry)
	if late.Payload.(*LateEntry).ElapsedMinutes != 10 {
		t.Errorf("ElapsedMinutes = %d", late.Payload.(*LateEntry).ElapsedMinutes)
	}

	runner.Dispatch(Action{Type: ActionLateEntryChoice, Enter: false})
	waitEvent(t, events, EventDismissed)
	waitDone(t, done)

	if sink.calls != 0 {
		t.Error("declining late entry produced a submission")
	}
}

func TestRunnerLateEntryKeepsOriginalBoundaries(t *testing.T) {
	sink := &fakeSink{saved: true}
	runner, events, _, done := startRunner(t, partialSession(),
		startedStatus("RDA-20260314-001", testStart, 60), testStart.Add(10*time.Minute), sink)

	waitEvent(t, events, EventLateEntry)
	runner.Dispatch(Action{Type: ActionLateEntryChoice, Enter: true})

	start := waitEvent(t, events, EventModuleStart)
	endsAt := start.Payload.(ModuleStartPayload).EndsAt
	if !endsAt.Equal(testStart.Add(60 * time.Minute)) {
		t.Errorf("EndsAt = %v, boundary moved for a late entrant", endsAt)
	}

	runner.Dispatch(Action{Type: ActionSubmitExam})
	waitDone(t, done)
}

func TestRunnerMockModuleRollover(t *testing.T) {
	sink := &fakeSink{saved: true}
	runner, events, _, done := startRunner(t, mockSession(),
		startedStatus("MOCK-20260314-001", testStart, 135), testStart, sink)

	first := waitEvent(t, events, EventModuleStart)
	if first.Payload.(ModuleStartPayload).Module != model.ModuleListening {
		t.Fatalf("first module = %v", first.Payload)
	}

	runner.Dispatch(Action{Type: ActionBegin})
	runner.Dispatch(Action{Type: ActionAnswer, QID: "q1", Answer: "a"})
	runner.Dispatch(Action{Type: ActionSubmitModule})

	waitEvent(t, events, EventModuleLocked)
	second := waitEvent(t, events, EventModuleStart)
	if second.Payload.(ModuleStartPayload).Module != model.ModuleReading {
		t.Fatalf("second module = %v", second.Payload)
	}

	// Remaining modules complete the exam.
	runner.Dispatch(Action{Type: ActionSubmitModule})
	waitEvent(t, events, EventModuleStart)
	runner.Dispatch(Action{Type: ActionSubmitModule})

	waitEvent(t, events, EventSubmitted)
	waitDone(t, done)

	if sink.calls != 1 {
		t.Errorf("sink called %d times, want 1", sink.calls)
	}
	if got := sink.last.Sections[model.ModuleListening].Answers["q1"]; got != "a" {
		t.Errorf("listening answers lost: %q", got)
	}
	if len(sink.last.Sections) != 3 {
		t.Errorf("sections = %d, want 3", len(sink.last.Sections))
	}
}

func TestRunnerClockExpiryForcesTimeExpiredExit(t *testing.T) {
	sink := &fakeSink{saved: true}
	runner, events, _, done := startRunner(t, partialSession(),
		startedStatus("RDA-20260314-001", testStart, 60), testStart.Add(2*time.Hour), sink)

	// Entering two hours late still offers the choice; accepting runs
	// straight into the expired clock on the first tick.
	waitEvent(t, events, EventLateEntry)
	runner.Dispatch(Action{Type: ActionLateEntryChoice, Enter: true})
	waitEvent(t, events, EventModuleStart)

	exit := waitEvent(t, events, EventForceExit)
	if reason := exit.Payload.(ForceExitPayload).Reason; reason != ExitTimeExpired {
		t.Errorf("reason = %q, want %q", reason, ExitTimeExpired)
	}
	waitDone(t, done)

	if sink.calls != 1 || !sink.last.AutoSubmitted {
		t.Errorf("calls=%d auto=%v", sink.calls, sink.last != nil && sink.last.AutoSubmitted)
	}
}
