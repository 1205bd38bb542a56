package playback

// PhaseTimer holds the remaining time of the active phase.
//
// The zero value is an expired timer with no duration.
type PhaseTimer struct {
	total     int64
	remaining int64
	fired     bool
}

// Reset starts the timer over with durationMs.
// Non-positive durations return ErrInvalidDuration and leave the timer unchanged;
// callers substitute a default.
func (t *PhaseTimer) Reset(durationMs int64) error {
	if durationMs <= 0 {
		return ErrInvalidDuration
	}
	t.total = durationMs
	t.remaining = durationMs
	t.fired = false
	return nil
}

// Tick subtracts quantumMs from the remaining time, clamped at zero.
// expired is true only on the tick that first reaches zero after a Reset.
func (t *PhaseTimer) Tick(quantumMs int64) (remaining int64, expired bool) {
	if quantumMs <= 0 || t.fired {
		return t.remaining, false
	}

	t.remaining -= quantumMs
	if t.remaining > 0 {
		return t.remaining, false
	}

	t.remaining = 0
	t.fired = true
	return 0, true
}

// Remaining returns the time left in milliseconds.
func (t *PhaseTimer) Remaining() int64 {
	return t.remaining
}

// Total returns the duration passed to the last successful Reset.
func (t *PhaseTimer) Total() int64 {
	return t.total
}

// Expired reports whether the timer has reached zero since the last Reset.
func (t *PhaseTimer) Expired() bool {
	return t.fired
}
