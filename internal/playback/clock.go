package playback

import "time"

// DefaultQuantum is the tick granularity of a Clock.
const DefaultQuantum = 100 * time.Millisecond

// TimeSource is the only path by which playback reaches wall-clock time.
// Tests replace it to drive ticks and settle callbacks by hand.
type TimeSource interface {
	Now() time.Time

	// NewTicker starts a repeating ticker and returns its channel and a stop function.
	NewTicker(d time.Duration) (<-chan time.Time, func())

	// AfterFunc runs f once after d. The returned function cancels it and
	// reports whether the call was prevented.
	AfterFunc(d time.Duration, f func()) func() bool
}

type systemTime struct{}

// SystemTime returns a TimeSource backed by the time package.
func SystemTime() TimeSource {
	return systemTime{}
}

func (systemTime) Now() time.Time {
	return time.Now()
}

func (systemTime) NewTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

func (systemTime) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Clock is a single repeating tick source.
//
// Thread Safety:
//   - Not safe for concurrent use. A Clock is owned by one Player loop.
type Clock struct {
	src     TimeSource
	quantum time.Duration
	ticks   <-chan time.Time
	stop    func()
}

// NewClock creates a disarmed clock that ticks every quantum once started.
func NewClock(src TimeSource, quantum time.Duration) *Clock {
	if quantum <= 0 {
		quantum = DefaultQuantum
	}
	return &Clock{src: src, quantum: quantum}
}

// Start arms the clock. Starting an armed clock does nothing.
func (c *Clock) Start() {
	if c.stop != nil {
		return
	}
	c.ticks, c.stop = c.src.NewTicker(c.quantum)
}

// Stop disarms the clock. Stopping a disarmed clock does nothing.
func (c *Clock) Stop() {
	if c.stop == nil {
		return
	}
	c.stop()
	c.stop = nil
	c.ticks = nil
}

// Restart disarms and re-arms the clock so the next tick is a full quantum away.
func (c *Clock) Restart() {
	c.Stop()
	c.Start()
}

// C returns the tick channel, or nil while disarmed.
// Receiving from a nil channel blocks forever, so a select case on C is inert when stopped.
func (c *Clock) C() <-chan time.Time {
	return c.ticks
}

// Armed reports whether the clock is ticking.
func (c *Clock) Armed() bool {
	return c.stop != nil
}

// Quantum returns the tick interval.
func (c *Clock) Quantum() time.Duration {
	return c.quantum
}
