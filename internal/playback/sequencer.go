package playback

import (
	"fmt"

	"github.com/nerrad567/showloop/internal/catalog"
)

// Sequencer is the pure playback state machine.
//
// It owns the current scene index, phase, phase timer, and the playing and
// manual-override flags. It starts no goroutines and reads no clock: time
// only moves when Tick is called. Player wraps it with a clock and an event
// loop.
//
// Every entry into a (scene, phase) pair increments the activation counter.
// Completion and settle signals carry the activation they belong to, which
// is how late or duplicated signals are told apart from current ones.
//
// Thread Safety:
//   - Not safe for concurrent use.
type Sequencer struct {
	catalog *catalog.Catalog
	scene   catalog.Scene
	index   int
	phase   Phase
	timer   PhaseTimer

	playing  bool
	override bool

	activation uint64
	pending    uint64
}

// NewSequencer creates a sequencer positioned on the first scene,
// playing, with no manual override.
func NewSequencer(c *catalog.Catalog) (*Sequencer, error) {
	if c == nil || c.Len() == 0 {
		return nil, catalog.ErrEmptyCatalog
	}

	s := &Sequencer{catalog: c}
	s.Reset()
	return s, nil
}

// Reset returns to the initial state: first scene, playing, no override.
// The activation counter keeps increasing so signals from before the reset
// stay stale.
func (s *Sequencer) Reset() {
	s.playing = true
	s.override = false
	s.enterScene(0)
}

// Tick advances the phase timer by quantumMs.
// It does nothing unless playing without override. It reports whether the
// tick ended the phase and started a new activation.
func (s *Sequencer) Tick(quantumMs int64) bool {
	if !s.Running() {
		return false
	}

	if _, expired := s.timer.Tick(quantumMs); !expired {
		return false
	}

	if s.phase == PhaseIntro {
		s.enterPhase(PhaseContent)
		return true
	}
	s.enterScene(s.index + 1)
	return true
}

// Complete registers a completion signal from the content renderer.
//
// token addresses the activation the signal belongs to; zero means the
// current one. The signal is rejected with ErrStaleActivation when it names
// another activation, ErrNotInContent while an intro is showing, and
// ErrDuplicateAdvance when an advance is already pending. On success the
// accepted activation is returned and must be passed to Settle once the
// settle delay has elapsed.
//
// Completion is accepted regardless of the playing and override flags.
func (s *Sequencer) Complete(token uint64) (uint64, error) {
	if token != 0 && token != s.activation {
		return 0, ErrStaleActivation
	}
	if s.phase != PhaseContent {
		return 0, ErrNotInContent
	}
	if s.pending != 0 {
		return 0, ErrDuplicateAdvance
	}

	s.pending = s.activation
	return s.pending, nil
}

// Settle applies a pending advance. It is a no-op returning
// ErrStaleActivation unless token is both pending and still current.
func (s *Sequencer) Settle(token uint64) error {
	if token == 0 || s.pending != token || s.activation != token {
		return ErrStaleActivation
	}
	s.enterScene(s.index + 1)
	return nil
}

// Jump moves to scene k, starting at its intro when it has one.
// Out-of-range k wraps modulo the scene count; the returned error is
// informational (ErrIndexOutOfRange) and the jump still happens.
// Playing and override flags are left to the caller.
func (s *Sequencer) Jump(k int) error {
	var err error
	if k < 0 || k >= s.catalog.Len() {
		err = fmt.Errorf("%w: %d wrapped to %d", ErrIndexOutOfRange, k, s.catalog.Wrap(k))
	}
	s.enterScene(k)
	return err
}

// Skip moves to the next scene from any phase without changing the flags.
func (s *Sequencer) Skip() {
	s.enterScene(s.index + 1)
}

// SetPlaying sets the playing flag and reports whether it changed.
func (s *Sequencer) SetPlaying(v bool) bool {
	changed := s.playing != v
	s.playing = v
	return changed
}

// SetOverride sets the manual-override flag and reports whether it changed.
func (s *Sequencer) SetOverride(v bool) bool {
	changed := s.override != v
	s.override = v
	return changed
}

// Running reports whether time is moving: playing and not overridden.
func (s *Sequencer) Running() bool {
	return s.playing && !s.override
}

// Playing returns the playing flag.
func (s *Sequencer) Playing() bool { return s.playing }

// Override returns the manual-override flag.
func (s *Sequencer) Override() bool { return s.override }

// Index returns the current scene index.
func (s *Sequencer) Index() int { return s.index }

// Phase returns the current phase.
func (s *Sequencer) Phase() Phase { return s.phase }

// Activation returns the current activation counter.
func (s *Sequencer) Activation() uint64 { return s.activation }

// Pending returns the activation with an advance pending, or zero.
func (s *Sequencer) Pending() uint64 { return s.pending }

// Scene returns a copy of the current scene.
func (s *Sequencer) Scene() catalog.Scene { return s.scene }

// Snapshot returns the current state.
func (s *Sequencer) Snapshot() Snapshot {
	snap := Snapshot{
		SceneID:        s.scene.ID,
		SceneTitle:     s.scene.Title,
		Index:          s.index,
		SceneCount:     s.catalog.Len(),
		Phase:          s.phase,
		RemainingMs:    s.timer.Remaining(),
		TotalMs:        s.timer.Total(),
		Progress:       Progress(s.timer.Remaining(), s.timer.Total()),
		Playing:        s.playing,
		ManualOverride: s.override,
		Activation:     s.activation,
		AdvancePending: s.pending != 0,
	}
	if s.phase == PhaseIntro && s.scene.Intro != nil {
		intro := *s.scene.Intro
		snap.Intro = &intro
	}
	return snap
}

func (s *Sequencer) enterScene(i int) {
	s.index = s.catalog.Wrap(i)
	s.scene = s.catalog.Scene(s.index)
	if s.scene.HasIntro() {
		s.enterPhase(PhaseIntro)
		return
	}
	s.enterPhase(PhaseContent)
}

func (s *Sequencer) enterPhase(p Phase) {
	s.phase = p
	s.pending = 0
	s.activation++

	duration, fallback := s.scene.DurationMs, catalog.DefaultContentDurationMs
	if p == PhaseIntro {
		duration, fallback = s.scene.Intro.DurationMs, catalog.DefaultIntroDurationMs
	}
	if err := s.timer.Reset(duration); err != nil {
		_ = s.timer.Reset(fallback)
	}
}
