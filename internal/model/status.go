package model

import "time"

// GlobalExamStatus is the singleton "what is currently running" record.
// The Lifecycle Manager is its only writer; every connected exam runtime
// reads it via subscription. While IsStarted is true the global timestamps
// are the single source of truth for all timing decisions, never any
// locally-computed time.
type GlobalExamStatus struct {
	IsStarted bool     `json:"is_started"`
	ExamCode  string   `json:"exam_code,omitempty"`
	TestType  TestType `json:"test_type,omitempty"`

	TrackID   string `json:"track_id,omitempty"`
	TrackName string `json:"track_name,omitempty"`

	ModuleTracks    *ModuleTracks    `json:"module_tracks,omitempty"`
	ModuleDurations *ModuleDurations `json:"module_durations,omitempty"`

	GlobalStartTime *time.Time `json:"global_start_time,omitempty"`
	GlobalEndTime   *time.Time `json:"global_end_time,omitempty"`
	DurationMinutes int        `json:"duration_minutes,omitempty"`

	StartedBy string `json:"started_by,omitempty"`
}

// Cleared returns the "force everyone out" value written on stop: all
// identifying fields nulled, IsStarted false.
func ClearedStatus() *GlobalExamStatus {
	return &GlobalExamStatus{IsStarted: false}
}

// CountdownState is the singleton pre-start countdown record. Purely
// advisory: runtimes reconcile against GlobalExamStatus once the countdown
// elapses and never treat countdown completion alone as "exam active".
type CountdownState struct {
	IsActive           bool       `json:"is_active"`
	ExamCode           string     `json:"exam_code,omitempty"`
	CountdownStartTime *time.Time `json:"countdown_start_time,omitempty"`
	CountdownSeconds   int        `json:"countdown_seconds"`
	ExamStartTime      *time.Time `json:"exam_start_time,omitempty"`

	TestType       TestType      `json:"test_type,omitempty"`
	TrackName      string        `json:"track_name,omitempty"`
	ModuleTracks   *ModuleTracks `json:"module_tracks,omitempty"`
	AllowedBatches []string      `json:"allowed_batches,omitempty"`
}

// Remaining computes the countdown seconds left at now.
func (c *CountdownState) Remaining(now time.Time) int {
	if !c.IsActive || c.CountdownStartTime == nil {
		return 0
	}
	elapsed := int(now.Sub(*c.CountdownStartTime) / time.Second)
	remaining := c.CountdownSeconds - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}
