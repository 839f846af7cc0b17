package model

import (
	"errors"
	"time"
)

// SessionStatus enumerates exam session lifecycle states.
// Transitions are one-directional: scheduled → active → completed.
type SessionStatus string

const (
	SessionStatusScheduled SessionStatus = "scheduled"
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
)

// ExamSession represents one scheduled exam attempt window, keyed by its
// human-meaningful code ({prefix}-{YYYYMMDD}-{seq}).
type ExamSession struct {
	Code     string   `json:"exam_code"`
	TestType TestType `json:"test_type"`

	// Partial topology fields.
	TrackID   string `json:"track_id,omitempty"`
	TrackName string `json:"track_name"`

	// Mock topology fields.
	ModuleTracks    *ModuleTracks    `json:"module_tracks,omitempty"`
	ModuleDurations *ModuleDurations `json:"module_durations,omitempty"`

	ExamDate        string        `json:"exam_date"`
	StartTime       string        `json:"start_time"`
	EndTime         string        `json:"end_time"`
	DurationMinutes int           `json:"duration_minutes"`
	Status          SessionStatus `json:"status"`
	AllowedBatches  []string      `json:"allowed_batches"`

	CountdownEnabled bool `json:"countdown_enabled"`
	CountdownSeconds int  `json:"countdown_seconds,omitempty"`

	TotalSubmissions int `json:"total_submissions"`
	PendingResults   int `json:"pending_results"`
	GradedResults    int `json:"graded_results"`
	PublishedResults int `json:"published_results"`

	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ErrInvalidTopology is returned when a session's stored fields cannot form
// a coherent topology (missing track, missing duration).
var ErrInvalidTopology = errors.New("exam session has an invalid module topology")

// Topology builds the tagged topology variant from the stored fields.
func (s *ExamSession) Topology() (Topology, error) {
	switch s.TestType {
	case TestTypeMock:
		if s.ModuleTracks == nil || s.ModuleDurations == nil {
			return nil, ErrInvalidTopology
		}
		mock := Mock{Tracks: *s.ModuleTracks, Durations: *s.ModuleDurations}
		mods := mock.Modules()
		if len(mods) == 0 {
			return nil, ErrInvalidTopology
		}
		for _, m := range mods {
			if mock.Durations.DurationFor(m) <= 0 {
				return nil, ErrInvalidTopology
			}
		}
		return mock, nil
	default:
		if s.TrackID == "" || s.DurationMinutes <= 0 {
			return nil, ErrInvalidTopology
		}
		return Partial{
			TrackID:         s.TrackID,
			TrackName:       s.TrackName,
			Module:          s.moduleType(),
			DurationMinutes: s.DurationMinutes,
		}, nil
	}
}

// moduleType guesses the partial module from the track id prefix convention
// (tracks are named like "10m-reading"). Defaults to reading.
func (s *ExamSession) moduleType() ModuleType {
	for _, m := range CanonicalModuleOrder {
		if len(s.TrackID) >= len(m) && s.TrackID[len(s.TrackID)-len(m):] == string(m) {
			return m
		}
	}
	return ModuleReading
}

// SubmissionTrackID returns the folder key submissions for this session are
// grouped under: "mock" for mock exams, the track id otherwise.
func (s *ExamSession) SubmissionTrackID() string {
	if s.TestType == TestTypeMock {
		return "mock"
	}
	return s.TrackID
}

// ExpiryDeadline returns the instant the session's window closes: the
// activation moment (falling back to creation for rows that never recorded
// one) plus the configured duration.
func (s *ExamSession) ExpiryDeadline() time.Time {
	base := s.CreatedAt
	if s.StartedAt != nil {
		base = *s.StartedAt
	}
	return base.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

// CreateSessionRequest is the admin payload for scheduling an exam session.
type CreateSessionRequest struct {
	TestType  TestType `json:"test_type" binding:"required,oneof=partial mock"`
	TrackID   string   `json:"track_id" binding:"required_if=TestType partial"`
	TrackName string   `json:"track_name" binding:"required,min=1,max=255"`

	ModuleTracks    *ModuleTracks    `json:"module_tracks" binding:"required_if=TestType mock"`
	ModuleDurations *ModuleDurations `json:"module_durations" binding:"required_if=TestType mock"`

	ExamDate        string   `json:"exam_date" binding:"required"`
	StartTime       string   `json:"start_time" binding:"required"`
	EndTime         string   `json:"end_time" binding:"required"`
	DurationMinutes int      `json:"duration_minutes" binding:"required_if=TestType partial,omitempty,min=1,max=480"`
	AllowedBatches  []string `json:"allowed_batches" binding:"required,min=1"`

	CountdownEnabled bool `json:"countdown_enabled"`
	CountdownSeconds int  `json:"countdown_seconds" binding:"omitempty,min=5,max=600"`
}

// GenerateCodeRequest asks for the next free exam code for a prefix.
type GenerateCodeRequest struct {
	TestType       TestType `json:"test_type" binding:"required,oneof=partial mock"`
	TrackShortName string   `json:"track_short_name" binding:"required_if=TestType partial"`
	Date           string   `json:"date" binding:"required,datetime=2006-01-02"`
}
