// Package playback runs the scene loop.
//
// A Player cycles through a catalog of scenes forever. Each scene may open
// with a timed intro card, then shows its content for the scene's duration.
// Content can also end early by reporting completion; the player then waits
// a settle delay and advances. After the last scene it wraps to the first.
//
// # Components
//
//   - PhaseTimer: remaining time of the active phase
//   - Clock: the single tick source, armed only while time is moving
//   - Sequencer: the pure state machine (index, phase, flags, activation)
//   - Player: the event loop that serialises commands, ticks, and settles
//
// # Activations
//
// Every entry into a (scene, phase) pair is a new activation with a larger
// counter. Completion signals name the activation they belong to, so a
// late, duplicated, or misdirected signal never moves playback:
//
//	snap := player.State()
//	player.Complete(snap.Activation) // accepted, advance in SettleDelay
//	player.Complete(snap.Activation) // dropped: ErrDuplicateAdvance
//
// # Playback flags
//
// Time moves only while playing and not under manual override. Pause sets
// the override and freezes the timer; Play clears it. Jumps follow the
// configured JumpPolicy.
//
// # Usage
//
//	player, err := playback.NewPlayer(cat, playback.Options{
//	    Quantum:     100 * time.Millisecond,
//	    SettleDelay: time.Second,
//	    Logger:      logger,
//	})
//	events, cancel := player.Subscribe(64)
//	defer cancel()
//	go player.Run(ctx)
package playback
