package clock

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fixedSource struct {
	now time.Time
	err error
}

func (s fixedSource) ServerTime(context.Context) (time.Time, error) {
	return s.now, s.err
}

func TestSyncAppliesServerOffset(t *testing.T) {
	local := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	remote := local.Add(42 * time.Second)

	s := NewSynchronizerAt(func() time.Time { return local })
	if err := s.Sync(context.Background(), fixedSource{now: remote}); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if !s.Synced() {
		t.Error("Synced() = false after a successful sync")
	}
	if s.Offset() != 42*time.Second {
		t.Errorf("Offset() = %v, want 42s", s.Offset())
	}
	if got := s.Now(); !got.Equal(remote) {
		t.Errorf("Now() = %v, want %v", got, remote)
	}
}

func TestSyncNegativeOffset(t *testing.T) {
	local := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	remote := local.Add(-3 * time.Second)

	s := NewSynchronizerAt(func() time.Time { return local })
	if err := s.Sync(context.Background(), fixedSource{now: remote}); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if s.Offset() != -3*time.Second {
		t.Errorf("Offset() = %v, want -3s", s.Offset())
	}
}

func TestSyncFailureKeepsLocalTime(t *testing.T) {
	local := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	s := NewSynchronizerAt(func() time.Time { return local })
	err := s.Sync(context.Background(), fixedSource{err: errors.New("redis down")})
	if err == nil {
		t.Fatal("Sync swallowed the source error")
	}

	if s.Synced() {
		t.Error("Synced() = true after a failed sync")
	}
	if s.Offset() != 0 {
		t.Errorf("Offset() = %v, want 0", s.Offset())
	}
	if got := s.Now(); !got.Equal(local) {
		t.Errorf("Now() = %v, want uncorrected %v", got, local)
	}
}
