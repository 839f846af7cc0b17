package exam

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prepware/examhall-backend/internal/model"
	"github.com/rs/zerolog"
)

type fakeSink struct {
	saved bool
	err   error
	calls int
	last  *model.ExamSubmission
}

func (f *fakeSink) AddSubmission(_ context.Context, sub *model.ExamSubmission) (bool, error) {
	f.calls++
	f.last = sub
	return f.saved, f.err
}

type tallyResult struct {
	correct int
	total   int
}

type fakeScorer struct {
	score *float64
	calls int

	tallies    map[string]tallyResult
	tallyCalls int
	tallyErr   error
}

func (f *fakeScorer) Score(_ context.Context, _ string, _ map[string]string, _ int) (*float64, error) {
	f.calls++
	return f.score, nil
}

func (f *fakeScorer) Tally(_ context.Context, trackID string, _ map[string]string) (int, int, error) {
	f.tallyCalls++
	if f.tallyErr != nil {
		return 0, 0, f.tallyErr
	}
	r := f.tallies[trackID]
	return r.correct, r.total, nil
}

func newTestController(t *testing.T, topo model.Topology, sink Sink, scorer Scorer) *SubmissionController {
	t.Helper()
	now := testStart.Add(10 * time.Minute)
	return NewSubmissionController(sink, scorer, func() time.Time { return now }, ControllerConfig{
		Participant: Participant{StudentID: 7, StudentName: "Ada", BatchID: "batch-1"},
		ExamCode:    "MOCK-20260314-001",
		ExamName:    "March Mock",
		Topology:    topo,
		TrackIDs: map[model.ModuleType]string{
			model.ModuleListening: "10m-listening",
			model.ModuleReading:   "10m-reading",
			model.ModuleWriting:   "10m-writing",
		},
		TrackNames: map[model.ModuleType]string{
			model.ModuleListening: "March Mock",
			model.ModuleReading:   "March Mock",
			model.ModuleWriting:   "March Mock",
		},
		TotalQuestions: 40,
		AcceptedAt:     testStart,
	}, zerolog.Nop())
}

func TestSubmitModuleLatchAbsorbsRepeats(t *testing.T) {
	c := newTestController(t, mockTopology(), &fakeSink{saved: true}, &fakeScorer{})

	answers := map[string]string{"q1": "a", "q2": "b"}
	section, ok := c.SubmitModule(model.ModuleListening, answers)
	if !ok {
		t.Fatal("first SubmitModule returned false")
	}
	if !section.Locked || len(section.Answers) != 2 {
		t.Fatalf("section = %+v", section)
	}
	if !c.ModuleLocked(model.ModuleListening) {
		t.Error("module not locked after submit")
	}

	// Timer expiry racing the manual button.
	if _, ok := c.SubmitModule(model.ModuleListening, map[string]string{"q1": "changed"}); ok {
		t.Error("second SubmitModule performed a submission")
	}
	if c.sections[model.ModuleListening].Answers["q1"] != "a" {
		t.Error("repeat submission mutated the captured answers")
	}
}

func TestSubmitWholeExamAtMostOnce(t *testing.T) {
	sink := &fakeSink{saved: true}
	c := newTestController(t, mockTopology(), sink, &fakeScorer{})

	if _, performed := c.SubmitWholeExam(context.Background(), model.ModuleListening, nil, true); !performed {
		t.Fatal("first SubmitWholeExam not performed")
	}
	if _, performed := c.SubmitWholeExam(context.Background(), model.ModuleListening, nil, true); performed {
		t.Error("second SubmitWholeExam performed")
	}
	if sink.calls != 1 {
		t.Errorf("sink called %d times, want 1", sink.calls)
	}
	if !c.Finalized() {
		t.Error("controller not finalized")
	}
}

func TestForcedExitFoldsInProgressModule(t *testing.T) {
	sink := &fakeSink{saved: true}
	c := newTestController(t, mockTopology(), sink, &fakeScorer{})

	c.SubmitModule(model.ModuleListening, map[string]string{"q1": "a"})

	// Forced out mid-reading: the unsaved reading answers must survive.
	current := map[string]string{"q21": "c"}
	saved, performed := c.SubmitWholeExam(context.Background(), model.ModuleReading, current, true)
	if !performed || !saved {
		t.Fatalf("saved=%v performed=%v", saved, performed)
	}

	sub := sink.last
	if sub.TrackID != "mock" {
		t.Errorf("TrackID = %q, want mock", sub.TrackID)
	}
	if !sub.AutoSubmitted {
		t.Error("AutoSubmitted not set")
	}
	if sub.Score != nil {
		t.Error("mock with a writing module must stay unscored")
	}
	if got := sub.Sections[model.ModuleReading].Answers["q21"]; got != "c" {
		t.Errorf("in-progress answers lost: %q", got)
	}
	if !sub.Sections[model.ModuleReading].Locked {
		t.Error("folded section not locked")
	}
	if len(sub.TrackIDs) != 3 {
		t.Errorf("TrackIDs = %v", sub.TrackIDs)
	}
}

func TestObjectiveMockAggregateScored(t *testing.T) {
	topo := model.Mock{
		Tracks:    model.ModuleTracks{Listening: "10m-listening", Reading: "10m-reading"},
		Durations: model.ModuleDurations{Listening: 30, Reading: 45},
	}
	sink := &fakeSink{saved: true}
	scorer := &fakeScorer{tallies: map[string]tallyResult{
		"10m-listening": {correct: 8, total: 10},
		"10m-reading":   {correct: 12, total: 30},
	}}
	c := newTestController(t, topo, sink, scorer)

	c.SubmitModule(model.ModuleListening, map[string]string{"q1": "a"})
	if _, performed := c.SubmitWholeExam(context.Background(), model.ModuleReading, map[string]string{"q1": "c"}, false); !performed {
		t.Fatal("not performed")
	}

	if scorer.tallyCalls != 2 {
		t.Fatalf("tally called %d times, want 2", scorer.tallyCalls)
	}
	// 20 correct out of 40 across both sections.
	if sink.last.Score == nil || *sink.last.Score != 50.0 {
		t.Errorf("Score = %v, want 50", sink.last.Score)
	}
}

func TestMockWithoutAnswerKeyStaysUnscored(t *testing.T) {
	topo := model.Mock{
		Tracks:    model.ModuleTracks{Listening: "10m-listening", Reading: "10m-reading"},
		Durations: model.ModuleDurations{Listening: 30, Reading: 45},
	}
	sink := &fakeSink{saved: true}
	scorer := &fakeScorer{tallies: map[string]tallyResult{
		"10m-listening": {correct: 8, total: 10},
		// Reading has no stored key.
	}}
	c := newTestController(t, topo, sink, scorer)

	c.SubmitModule(model.ModuleListening, map[string]string{"q1": "a"})
	c.SubmitWholeExam(context.Background(), model.ModuleReading, nil, false)

	if sink.last.Score != nil {
		t.Errorf("Score = %v, want nil", sink.last.Score)
	}
}

func TestMockWithWritingModuleStaysUnscored(t *testing.T) {
	sink := &fakeSink{saved: true}
	scorer := &fakeScorer{tallies: map[string]tallyResult{
		"10m-listening": {correct: 10, total: 10},
		"10m-reading":   {correct: 10, total: 10},
		"10m-writing":   {correct: 0, total: 0},
	}}
	c := newTestController(t, mockTopology(), sink, scorer)

	c.SubmitWholeExam(context.Background(), model.ModuleWriting, map[string]string{"q1": "essay"}, false)

	if scorer.tallyCalls != 0 {
		t.Errorf("tally called %d times for a writing mock", scorer.tallyCalls)
	}
	if sink.last.Score != nil {
		t.Error("writing mock scored")
	}
}

func TestPartialSubmissionScored(t *testing.T) {
	score := 85.0
	sink := &fakeSink{saved: true}
	scorer := &fakeScorer{score: &score}
	topo := model.Partial{TrackID: "10m-reading", Module: model.ModuleReading, DurationMinutes: 60}
	c := newTestController(t, topo, sink, scorer)

	answers := map[string]string{"q1": "a"}
	if _, performed := c.SubmitWholeExam(context.Background(), model.ModuleReading, answers, false); !performed {
		t.Fatal("not performed")
	}

	if scorer.calls != 1 {
		t.Fatalf("scorer called %d times", scorer.calls)
	}
	if sink.last.Score == nil || *sink.last.Score != 85.0 {
		t.Errorf("Score = %v, want 85", sink.last.Score)
	}
	if sink.last.Answers["q1"] != "a" {
		t.Error("flat answers not carried")
	}
	if sink.last.TrackID != "10m-reading" {
		t.Errorf("TrackID = %q", sink.last.TrackID)
	}
}

func TestWritingModuleStaysUnscored(t *testing.T) {
	score := 50.0
	scorer := &fakeScorer{score: &score}
	topo := model.Partial{TrackID: "10m-writing", Module: model.ModuleWriting, DurationMinutes: 60}
	sink := &fakeSink{saved: true}
	c := newTestController(t, topo, sink, scorer)

	c.SubmitWholeExam(context.Background(), model.ModuleWriting, map[string]string{"q1": "essay"}, false)

	if scorer.calls != 0 {
		t.Error("scorer invoked for a writing module")
	}
	if sink.last.Score != nil {
		t.Error("writing submission scored")
	}
}

func TestSinkFailureDoesNotBlockExit(t *testing.T) {
	sink := &fakeSink{err: errors.New("db down")}
	c := newTestController(t, mockTopology(), sink, &fakeScorer{})

	saved, performed := c.SubmitWholeExam(context.Background(), model.ModuleListening, nil, true)
	if !performed {
		t.Fatal("exit path blocked by sink failure")
	}
	if saved {
		t.Error("saved reported despite sink failure")
	}
	if !c.Finalized() {
		t.Error("latch not engaged after failed persist")
	}
}

func TestQueuedLocallyReportedAsUnsynced(t *testing.T) {
	sink := &fakeSink{saved: false}
	c := newTestController(t, mockTopology(), sink, &fakeScorer{})

	saved, performed := c.SubmitWholeExam(context.Background(), model.ModuleListening, nil, false)
	if !performed || saved {
		t.Fatalf("saved=%v performed=%v, want false/true", saved, performed)
	}
}
