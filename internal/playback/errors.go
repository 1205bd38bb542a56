package playback

import "errors"

// Sentinel errors for playback operations.
//
// Apart from the request-decoding errors, none of these cross the Player's
// public command surface. They are absorbed where detected and surface only
// in events, logs, and metrics:
//
//	if errors.Is(ev.Err, playback.ErrDuplicateAdvance) {
//	    // second completion for the same activation
//	}
var (
	// ErrInvalidDuration is returned by PhaseTimer.Reset for non-positive durations.
	ErrInvalidDuration = errors.New("playback: duration must be positive")

	// ErrIndexOutOfRange notes a jump target outside [0, N). The target is wrapped.
	ErrIndexOutOfRange = errors.New("playback: scene index out of range")

	// ErrDuplicateAdvance is a second completion signal for an activation
	// that already has an advance pending.
	ErrDuplicateAdvance = errors.New("playback: advance already pending for this activation")

	// ErrStaleActivation is a completion or settle signal addressed to an
	// activation that is no longer current.
	ErrStaleActivation = errors.New("playback: signal does not match the current activation")

	// ErrNotInContent is a completion signal received while an intro is showing.
	ErrNotInContent = errors.New("playback: completion outside content phase")

	// ErrUnknownCommand is returned by ParseCommandKind for unrecognised names.
	ErrUnknownCommand = errors.New("playback: unknown command")

	// ErrUnknownJumpPolicy is returned by ParseJumpPolicy for unrecognised names.
	ErrUnknownJumpPolicy = errors.New("playback: unknown jump policy")

	// ErrUnknownScene is returned by Request.Resolve for a scene id not in the catalog.
	ErrUnknownScene = errors.New("playback: unknown scene id")

	// ErrMissingTarget is returned by Request.Resolve for a jump with neither
	// an index nor a scene id.
	ErrMissingTarget = errors.New("playback: jump needs an index or scene_id")

	// ErrAlreadyRunning is returned when Run is called more than once.
	ErrAlreadyRunning = errors.New("playback: player already started")
)
