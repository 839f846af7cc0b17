package model

import (
	"testing"
	"time"
)

func TestExpiryDeadline(t *testing.T) {
	created := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	started := time.Date(2026, 3, 14, 9, 15, 0, 0, time.UTC)

	tests := []struct {
		name    string
		session ExamSession
		want    time.Time
	}{
		{
			name: "runs from activation",
			session: ExamSession{
				DurationMinutes: 60,
				CreatedAt:       created,
				StartedAt:       &started,
			},
			want: started.Add(60 * time.Minute),
		},
		{
			name: "falls back to creation",
			session: ExamSession{
				DurationMinutes: 90,
				CreatedAt:       created,
			},
			want: created.Add(90 * time.Minute),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.session.ExpiryDeadline(); !got.Equal(tt.want) {
				t.Errorf("ExpiryDeadline() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExpiryDeadlineIgnoresScheduledWindow(t *testing.T) {
	// A session started behind its printed schedule keeps its full duration;
	// the stored end_time string plays no part in expiry.
	started := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	session := ExamSession{
		ExamDate:        "2026-03-14",
		StartTime:       "09:00",
		EndTime:         "10:00",
		DurationMinutes: 60,
		CreatedAt:       time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC),
		StartedAt:       &started,
	}

	want := time.Date(2026, 3, 14, 11, 30, 0, 0, time.UTC)
	if got := session.ExpiryDeadline(); !got.Equal(want) {
		t.Errorf("ExpiryDeadline() = %v, want %v", got, want)
	}
}
