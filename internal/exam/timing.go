package exam

import (
	"errors"
	"fmt"
	"time"

	"github.com/prepware/examhall-backend/internal/model"
)

// Warning thresholds for the remaining-time display.
const (
	WarningThreshold  = 5 * time.Minute
	CriticalThreshold = 2 * time.Minute
)

// ErrMissingTiming means the global status lacks the authoritative
// timestamps a topology needs. Fatal to session join: a student is never
// admitted into an exam with an undefined end time.
var ErrMissingTiming = errors.New("global exam status is missing authoritative timing")

// Schedule is the per-client timing layout, derived exactly once at session
// acceptance from the authoritative global timestamps. Module boundaries are
// anchored to the global start time, never to the student's arrival, so
// every student sees identical boundaries regardless of join time.
type Schedule struct {
	Start    time.Time
	Modules  []model.ModuleType
	EndTimes []time.Time // parallel to Modules, cumulative
}

// BuildSchedule derives the schedule for a topology from the global status.
func BuildSchedule(topo model.Topology, status *model.GlobalExamStatus) (*Schedule, error) {
	if status == nil || !status.IsStarted {
		return nil, ErrMissingTiming
	}

	switch t := topo.(type) {
	case model.Mock:
		if status.GlobalStartTime == nil {
			return nil, fmt.Errorf("%w: mock exam needs global start time", ErrMissingTiming)
		}
		durations := t.Durations
		if status.ModuleDurations != nil {
			// The status snapshot wins over the session record: it is what
			// the lifecycle manager actually started the exam with.
			durations = *status.ModuleDurations
		}

		mods := t.Modules()
		if len(mods) == 0 {
			return nil, model.ErrInvalidTopology
		}

		sched := &Schedule{Start: *status.GlobalStartTime, Modules: mods}
		cumulative := sched.Start
		for _, m := range mods {
			minutes := durations.DurationFor(m)
			if minutes <= 0 {
				return nil, fmt.Errorf("%w: module %s has no duration", model.ErrInvalidTopology, m)
			}
			cumulative = cumulative.Add(time.Duration(minutes) * time.Minute)
			sched.EndTimes = append(sched.EndTimes, cumulative)
		}
		return sched, nil

	case model.Partial:
		if status.GlobalStartTime == nil || status.GlobalEndTime == nil {
			return nil, fmt.Errorf("%w: partial exam needs global start and end time", ErrMissingTiming)
		}
		return &Schedule{
			Start:    *status.GlobalStartTime,
			Modules:  []model.ModuleType{t.Module},
			EndTimes: []time.Time{*status.GlobalEndTime},
		}, nil

	default:
		return nil, model.ErrInvalidTopology
	}
}

// OverallEnd is the final exam boundary.
func (s *Schedule) OverallEnd() time.Time {
	return s.EndTimes[len(s.EndTimes)-1]
}

// Ended reports whether the whole exam window has already passed.
func (s *Schedule) Ended(now time.Time) bool {
	return !now.Before(s.OverallEnd())
}

// Tick is one recomputation of the timing state.
type Tick struct {
	Module           model.ModuleType
	ModuleIndex      int
	ModuleRemaining  time.Duration
	OverallRemaining time.Duration
	ModuleClock      string
	OverallClock     string
	Warning          bool
	Critical         bool
	ModuleExpired    bool
	ExamExpired      bool
}

// TimingEngine walks a schedule module by module, recomputing remaining
// time each tick against the corrected clock. It carries no latches itself:
// expiry flags are raised on every tick past the boundary and the
// submission controller's latches make acting on them at-most-once.
type TimingEngine struct {
	sched       *Schedule
	moduleIndex int
}

// NewTimingEngine starts an engine at the first module.
func NewTimingEngine(sched *Schedule) *TimingEngine {
	return &TimingEngine{sched: sched}
}

// CurrentModule returns the module the engine is timing.
func (e *TimingEngine) CurrentModule() model.ModuleType {
	return e.sched.Modules[e.moduleIndex]
}

// ModuleIndex returns the current position in the module order.
func (e *TimingEngine) ModuleIndex() int { return e.moduleIndex }

// ModuleEnd returns the current module's boundary.
func (e *TimingEngine) ModuleEnd() time.Time {
	return e.sched.EndTimes[e.moduleIndex]
}

// OnLastModule reports whether no modules follow the current one.
func (e *TimingEngine) OnLastModule() bool {
	return e.moduleIndex == len(e.sched.Modules)-1
}

// Advance moves to the next module. Returns false when the exam is over.
// Warning/critical state restarts naturally on the next tick because it is
// recomputed from the new boundary.
func (e *TimingEngine) Advance() bool {
	if e.OnLastModule() {
		return false
	}
	e.moduleIndex++
	return true
}

// Tick recomputes remaining time at now. Displays freeze at 00:00 once a
// boundary passes; they never go negative.
func (e *TimingEngine) Tick(now time.Time) Tick {
	moduleRemaining := e.ModuleEnd().Sub(now)
	overallRemaining := e.sched.OverallEnd().Sub(now)
	if moduleRemaining < 0 {
		moduleRemaining = 0
	}
	if overallRemaining < 0 {
		overallRemaining = 0
	}

	t := Tick{
		Module:           e.CurrentModule(),
		ModuleIndex:      e.moduleIndex,
		ModuleRemaining:  moduleRemaining,
		OverallRemaining: overallRemaining,
		ModuleClock:      FormatClock(moduleRemaining),
		OverallClock:     FormatClock(overallRemaining),
		ModuleExpired:    moduleRemaining == 0,
		ExamExpired:      overallRemaining == 0,
	}

	switch {
	case moduleRemaining <= CriticalThreshold:
		t.Critical = true
		t.Warning = true
	case moduleRemaining <= WarningThreshold:
		t.Warning = true
	}

	return t
}

// FormatClock renders a duration as MM:SS. Minutes are not wrapped at an
// hour; a 90-minute exam starts at "90:00".
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	totalSeconds := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", totalSeconds/60, totalSeconds%60)
}

// LateEntry describes a student joining after the authoritative start.
// It drives the interstitial decision screen; entering changes no stored
// timestamp, the student simply runs against the original boundaries.
type LateEntry struct {
	ExamName                string    `json:"exam_name"`
	ExamCode                string    `json:"exam_code"`
	StartTime               time.Time `json:"start_time"`
	OriginalDurationMinutes int       `json:"original_duration_minutes"`
	ElapsedMinutes          int       `json:"elapsed_minutes"`
	RemainingMinutes        int       `json:"remaining_minutes"`
}

// DetectLateEntry returns a descriptor when at least one whole minute has
// elapsed since the schedule start, nil when the student is on time. Joins
// inside the first minute are treated as on time so the ordinary connect
// path never shows the interstitial.
func DetectLateEntry(sched *Schedule, now time.Time, examName, examCode string) *LateEntry {
	if now.Sub(sched.Start) < time.Minute {
		return nil
	}

	end := sched.OverallEnd()
	return &LateEntry{
		ExamName:                examName,
		ExamCode:                examCode,
		StartTime:               sched.Start,
		OriginalDurationMinutes: int(end.Sub(sched.Start) / time.Minute),
		ElapsedMinutes:          int(now.Sub(sched.Start) / time.Minute),
		RemainingMinutes:        int(end.Sub(now) / time.Minute),
	}
}
