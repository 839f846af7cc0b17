package model

import "time"

// SubmissionStatus tracks a submission's grading pipeline position.
type SubmissionStatus string

const (
	SubmissionStatusCompleted SubmissionStatus = "completed"
	SubmissionStatusGraded    SubmissionStatus = "graded"
)

// SectionSubmission is one module's persisted answer set within a mock exam.
// Once Locked is true the module becomes view-only for the student.
type SectionSubmission struct {
	Module      ModuleType        `json:"module"`
	TrackID     string            `json:"track_id"`
	TrackName   string            `json:"track_name"`
	Answers     map[string]string `json:"answers"`
	SubmittedAt time.Time         `json:"submitted_at"`
	TimeSpent   string            `json:"time_spent"`
	Locked      bool              `json:"locked"`
}

// ExamSubmission is the single persisted record per (student, exam code).
// For mock exams Sections carries the merged per-module records and Answers
// stays empty; for partial exams Answers is the flat answer map.
type ExamSubmission struct {
	ID          string   `json:"id"`
	StudentID   int      `json:"student_id"`
	StudentName string   `json:"student_name"`
	ExamCode    string   `json:"exam_code"`
	BatchID     string   `json:"batch_id,omitempty"`
	TestType    TestType `json:"test_type"`

	TrackID   string   `json:"track_id"` // "mock" for mock exams
	TrackName string   `json:"track_name"`
	TrackIDs  []string `json:"track_ids,omitempty"` // mock only

	Answers  map[string]string                `json:"answers"`
	Sections map[ModuleType]SectionSubmission `json:"sections,omitempty"`

	SubmittedAt    time.Time `json:"submitted_at"`
	TimeSpent      string    `json:"time_spent"`
	TotalQuestions int       `json:"total_questions"`

	// Score is set only when automatic scoring applies; writing modules
	// are persisted unscored and graded manually later.
	Score *float64 `json:"score,omitempty"`

	Status          SubmissionStatus `json:"status"`
	AutoSubmitted   bool             `json:"auto_submitted"`
	ResultPublished bool             `json:"result_published"`
}

// SubmissionFolder is the per-(track, exam code) metadata record created
// alongside a session so the submission sink always exists before an exam
// goes active.
type SubmissionFolder struct {
	TrackID          string        `json:"track_id"`
	TrackName        string        `json:"track_name"`
	ExamCode         string        `json:"exam_code"`
	TestType         TestType      `json:"test_type"`
	ModuleTracks     *ModuleTracks `json:"module_tracks,omitempty"`
	CreatedBy        string        `json:"created_by"`
	CreatedAt        time.Time     `json:"created_at"`
	TotalSubmissions int           `json:"total_submissions"`
}

// UpdateMarkRequest sets a manual mark on a submission (writing modules).
type UpdateMarkRequest struct {
	Score float64 `json:"score" binding:"min=0,max=100"`
}
