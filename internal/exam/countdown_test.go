package exam

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prepware/examhall-backend/internal/model"
	"github.com/rs/zerolog"
)

type scriptedStatusReader struct {
	statuses []*model.GlobalExamStatus
	probes   int
}

func (s *scriptedStatusReader) Status(context.Context) (*model.GlobalExamStatus, error) {
	s.probes++
	if s.probes <= len(s.statuses) {
		return s.statuses[s.probes-1], nil
	}
	return nil, nil
}

func immediateSleeps(c *CountdownCoordinator) *CountdownCoordinator {
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestAwaitActivationSucceedsMidRetry(t *testing.T) {
	started := startedStatus("MOCK-20260314-001", testStart, 135)
	reader := &scriptedStatusReader{statuses: []*model.GlobalExamStatus{nil, nil, started}}
	c := immediateSleeps(NewCountdownCoordinator(reader, zerolog.Nop()))

	status, err := c.AwaitActivation(context.Background(), "MOCK-20260314-001")
	if err != nil {
		t.Fatalf("AwaitActivation: %v", err)
	}
	if status.ExamCode != "MOCK-20260314-001" {
		t.Errorf("ExamCode = %q", status.ExamCode)
	}
	if reader.probes != 3 {
		t.Errorf("probes = %d, want 3", reader.probes)
	}
}

func TestAwaitActivationIgnoresOtherExam(t *testing.T) {
	other := startedStatus("RDA-20260314-001", testStart, 60)
	reader := &scriptedStatusReader{statuses: []*model.GlobalExamStatus{other}}
	c := immediateSleeps(NewCountdownCoordinator(reader, zerolog.Nop()))

	if _, err := c.AwaitActivation(context.Background(), "MOCK-20260314-001"); !errors.Is(err, ErrActivationTimeout) {
		t.Errorf("err = %v, want ErrActivationTimeout", err)
	}
}

func TestAwaitActivationBoundedRetries(t *testing.T) {
	reader := &scriptedStatusReader{}
	c := immediateSleeps(NewCountdownCoordinator(reader, zerolog.Nop()))

	_, err := c.AwaitActivation(context.Background(), "MOCK-20260314-001")
	if !errors.Is(err, ErrActivationTimeout) {
		t.Fatalf("err = %v, want ErrActivationTimeout", err)
	}
	if reader.probes != activationMaxAttempts {
		t.Errorf("probes = %d, want %d", reader.probes, activationMaxAttempts)
	}
}

func TestAwaitActivationHonorsCancellation(t *testing.T) {
	reader := &scriptedStatusReader{}
	c := NewCountdownCoordinator(reader, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.AwaitActivation(ctx, "MOCK-20260314-001"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestCountdownRemaining(t *testing.T) {
	c := NewCountdownCoordinator(&scriptedStatusReader{}, zerolog.Nop())

	if got := c.Remaining(nil, testStart); got != 0 {
		t.Errorf("nil state: %d", got)
	}

	started := testStart
	state := &model.CountdownState{
		IsActive:           true,
		ExamCode:           "MOCK-20260314-001",
		CountdownStartTime: &started,
		CountdownSeconds:   30,
	}
	if got := c.Remaining(state, testStart.Add(10*time.Second)); got != 20 {
		t.Errorf("Remaining = %d, want 20", got)
	}
	if got := c.Remaining(state, testStart.Add(5*time.Minute)); got != 0 {
		t.Errorf("past zero: %d, want 0", got)
	}
}
