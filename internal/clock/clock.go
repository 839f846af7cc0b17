// Package clock provides the corrected notion of "now" shared by all
// timing decisions. Local machine clocks are never trusted directly: a
// one-shot sync against the authoritative server clock establishes an
// offset, and every subsequent read applies it.
package clock

import (
	"context"
	"time"
)

// TimeSource yields the authoritative remote time.
type TimeSource interface {
	ServerTime(ctx context.Context) (time.Time, error)
}

// Synchronizer computes and applies the local-to-server clock offset.
// Sync is attempted exactly once per synchronizer; a failure leaves the
// offset at zero with Synced reporting false, and downstream code keeps
// working at degraded precision rather than blocking.
type Synchronizer struct {
	local  func() time.Time
	offset time.Duration
	synced bool
}

// NewSynchronizer returns a Synchronizer reading the machine clock.
func NewSynchronizer() *Synchronizer {
	return &Synchronizer{local: time.Now}
}

// NewSynchronizerAt returns a Synchronizer with an injected local clock,
// for tests.
func NewSynchronizerAt(local func() time.Time) *Synchronizer {
	return &Synchronizer{local: local}
}

// Sync fetches the server time once and records the offset. No retries:
// a failed sync is reported to the caller for an advisory banner and the
// synchronizer stays on local time.
func (s *Synchronizer) Sync(ctx context.Context, src TimeSource) error {
	remote, err := src.ServerTime(ctx)
	if err != nil {
		return err
	}
	s.offset = remote.Sub(s.local())
	s.synced = true
	return nil
}

// Now returns the corrected current time.
func (s *Synchronizer) Now() time.Time {
	return s.local().Add(s.offset)
}

// Offset returns the applied correction.
func (s *Synchronizer) Offset() time.Duration { return s.offset }

// Synced reports whether the one-shot sync succeeded.
func (s *Synchronizer) Synced() bool { return s.synced }
