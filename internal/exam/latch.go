package exam

// Latch is a one-way boolean guard: it trips exactly once and stays
// tripped. All latches for one attached student are owned by that
// student's runner goroutine, so no locking is involved: the hazard the
// latch closes is duplicate invocation across event-loop turns (timer
// tick, status event, manual action), not parallel memory access.
type Latch struct {
	tripped bool
}

// TryAcquire trips the latch. Returns false if it was already tripped;
// callers treat that as a silent no-op, never an error.
func (l *Latch) TryAcquire() bool {
	if l.tripped {
		return false
	}
	l.tripped = true
	return true
}

// Engaged reports whether the latch has tripped.
func (l *Latch) Engaged() bool { return l.tripped }
