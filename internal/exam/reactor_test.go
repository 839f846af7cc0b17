package exam

import (
	"testing"
	"time"

	"github.com/prepware/examhall-backend/internal/model"
	"github.com/rs/zerolog"
)

func TestEvaluatePrecedence(t *testing.T) {
	examEnd := testStart.Add(60 * time.Minute)
	r := NewForcedExitReactor("RDA-20260314-001", examEnd, zerolog.Nop())

	running := startedStatus("RDA-20260314-001", testStart, 60)
	during := testStart.Add(30 * time.Minute)
	after := testStart.Add(61 * time.Minute)

	cases := []struct {
		name   string
		status *model.GlobalExamStatus
		now    time.Time
		want   ExitReason
	}{
		{"running", running, during, ""},
		{"status deleted", nil, during, ExitAdminStopped},
		{"status cleared", &model.GlobalExamStatus{IsStarted: false}, during, ExitAdminStopped},
		{"other exam started", startedStatus("MOCK-20260314-001", testStart, 60), during, ExitAdminStopped},
		{"global end passed", running, after, ExitTimeExpired},
		{"local end passed", startedStatus("RDA-20260314-001", testStart, 120), after, ExitTimeExpired},
	}
	for _, tc := range cases {
		if got := r.Evaluate(tc.status, tc.now); got != tc.want {
			t.Errorf("%s: Evaluate = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestEvaluateDeletedStatusWinsOverExpiredClock(t *testing.T) {
	examEnd := testStart.Add(60 * time.Minute)
	r := NewForcedExitReactor("RDA-20260314-001", examEnd, zerolog.Nop())

	// Both conditions hold at once; the administrative stop takes precedence.
	if got := r.Evaluate(nil, testStart.Add(2*time.Hour)); got != ExitAdminStopped {
		t.Errorf("Evaluate = %q, want %q", got, ExitAdminStopped)
	}
}

func TestTripFiresOnce(t *testing.T) {
	r := NewForcedExitReactor("RDA-20260314-001", testStart.Add(time.Hour), zerolog.Nop())

	if !r.Trip(ExitAdminStopped) {
		t.Fatal("first Trip returned false")
	}
	if r.Trip(ExitTimeExpired) {
		t.Error("second Trip fired a second exit sequence")
	}
	if !r.Tripped() {
		t.Error("Tripped reports false after Trip")
	}
}
