package worker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prepware/examhall-backend/internal/model"
	"github.com/prepware/examhall-backend/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestDue(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	tests := []struct {
		name  string
		state *model.CountdownState
		want  bool
	}{
		{"no record", nil, false},
		{"inactive", &model.CountdownState{IsActive: false, ExamStartTime: &past}, false},
		{"no start recorded", &model.CountdownState{IsActive: true}, false},
		{"start in the future", &model.CountdownState{IsActive: true, ExamStartTime: &future}, false},
		{"start exactly now", &model.CountdownState{IsActive: true, ExamStartTime: &now}, true},
		{"woke up late", &model.CountdownState{IsActive: true, ExamStartTime: &past}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := due(tc.state, now); got != tc.want {
				t.Errorf("due() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTickFollowsSyncedClock(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	directory := store.NewDirectory(rdb, zerolog.Nop())

	// The recorded start is long past by the host clock but still ahead of
	// the synced clock. Activation must wait for the synced clock, so the
	// nil lifecycle is never reached.
	start := time.Now().Add(-time.Hour)
	state := &model.CountdownState{
		IsActive:         true,
		ExamCode:         "RDA-20260314-001",
		CountdownSeconds: 600,
		ExamStartTime:    &start,
	}
	if err := directory.SetCountdown(context.Background(), state); err != nil {
		t.Fatalf("SetCountdown: %v", err)
	}

	synced := start.Add(-10 * time.Minute)
	w := NewCountdownWorker(directory, nil, time.Second, func() time.Time { return synced }, zerolog.Nop())
	w.tick(context.Background())
}
