package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prepware/examhall-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newTestDirectory(t *testing.T) (*Directory, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewDirectory(rdb, zerolog.Nop()), mr
}

func TestStatusAbsentMeansStopped(t *testing.T) {
	dir, _ := newTestDirectory(t)

	status, err := dir.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != nil {
		t.Errorf("missing record decoded as %+v, want nil", status)
	}
}

func TestStatusRoundTrip(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	end := start.Add(60 * time.Minute)
	want := &model.GlobalExamStatus{
		IsStarted:       true,
		ExamCode:        "RDA-20260314-001",
		TestType:        model.TestTypePartial,
		TrackID:         "10m-reading",
		TrackName:       "Reading A",
		GlobalStartTime: &start,
		GlobalEndTime:   &end,
		DurationMinutes: 60,
		StartedBy:       "admin@prepware.io",
	}

	if err := dir.SetStatus(ctx, want); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	got, err := dir.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if got == nil || !got.IsStarted || got.ExamCode != want.ExamCode {
		t.Fatalf("Status = %+v", got)
	}
	if !got.GlobalStartTime.Equal(start) || !got.GlobalEndTime.Equal(end) {
		t.Errorf("timestamps drifted: start=%v end=%v", got.GlobalStartTime, got.GlobalEndTime)
	}
}

func TestDeleteStatusRemovesRecord(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()

	if err := dir.SetStatus(ctx, &model.GlobalExamStatus{IsStarted: true, ExamCode: "X"}); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := dir.DeleteStatus(ctx); err != nil {
		t.Fatalf("DeleteStatus: %v", err)
	}

	status, err := dir.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != nil {
		t.Errorf("deleted record still reads as %+v", status)
	}
}

func TestClearStatusWritesStoppedRecord(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()

	if err := dir.SetStatus(ctx, &model.GlobalExamStatus{IsStarted: true, ExamCode: "X"}); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := dir.ClearStatus(ctx); err != nil {
		t.Fatalf("ClearStatus: %v", err)
	}

	status, err := dir.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status == nil || status.IsStarted || status.ExamCode != "" {
		t.Errorf("cleared record = %+v", status)
	}
}

func TestSubscribeStatusDeliversUpdatesAndDeletes(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, unsub := dir.SubscribeStatus(ctx)
	defer unsub()

	// miniredis delivers to subscribers registered before the publish,
	// but give the subscriber goroutine a beat to attach.
	time.Sleep(50 * time.Millisecond)

	if err := dir.SetStatus(ctx, &model.GlobalExamStatus{IsStarted: true, ExamCode: "MOCK-20260314-001"}); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	select {
	case got := <-ch:
		if got == nil || got.ExamCode != "MOCK-20260314-001" {
			t.Fatalf("update = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no status update received")
	}

	if err := dir.DeleteStatus(ctx); err != nil {
		t.Fatalf("DeleteStatus: %v", err)
	}

	select {
	case got := <-ch:
		if got != nil {
			t.Fatalf("delete broadcast = %+v, want nil", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no delete broadcast received")
	}
}

func TestCountdownRoundTrip(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()

	cdStart := time.Date(2026, 3, 14, 8, 59, 0, 0, time.UTC)
	examStart := cdStart.Add(60 * time.Second)
	if err := dir.SetCountdown(ctx, &model.CountdownState{
		IsActive:           true,
		ExamCode:           "RDA-20260314-001",
		CountdownStartTime: &cdStart,
		CountdownSeconds:   60,
		ExamStartTime:      &examStart,
	}); err != nil {
		t.Fatalf("SetCountdown: %v", err)
	}

	state, err := dir.Countdown(ctx)
	if err != nil {
		t.Fatalf("Countdown: %v", err)
	}
	if state == nil || !state.IsActive || state.ExamCode != "RDA-20260314-001" {
		t.Fatalf("Countdown = %+v", state)
	}
	if state.ExamStartTime == nil || !state.ExamStartTime.Equal(examStart) {
		t.Errorf("ExamStartTime = %v, want %v", state.ExamStartTime, examStart)
	}

	if err := dir.ClearCountdown(ctx); err != nil {
		t.Fatalf("ClearCountdown: %v", err)
	}
	state, err = dir.Countdown(ctx)
	if err != nil {
		t.Fatalf("Countdown: %v", err)
	}
	if state == nil || state.IsActive {
		t.Errorf("cleared countdown = %+v", state)
	}
}

func TestServerTimeUsesRedisClock(t *testing.T) {
	dir, mr := newTestDirectory(t)

	want := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	mr.SetTime(want)

	got, err := dir.ServerTime(context.Background())
	if err != nil {
		t.Fatalf("ServerTime: %v", err)
	}
	if !got.Equal(want) {
		t.Errorf("ServerTime = %v, want %v", got, want)
	}
}
