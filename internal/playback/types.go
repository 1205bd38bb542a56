package playback

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/showloop/internal/catalog"
)

// Phase is the sub-state of the active scene.
type Phase string

const (
	PhaseIntro   Phase = "intro"
	PhaseContent Phase = "content"
)

// Cause explains why a new activation started.
type Cause string

const (
	CauseStart      Cause = "start"
	CauseTimer      Cause = "timer"
	CauseCompletion Cause = "completion"
	CauseSkip       Cause = "skip"
	CauseJump       Cause = "jump"
	CauseReload     Cause = "reload"
)

// Snapshot is the read-only view of playback state handed to displays,
// the API, and every event subscriber.
type Snapshot struct {
	SceneID        string         `json:"scene_id"`
	SceneTitle     string         `json:"scene_title"`
	Index          int            `json:"index"`
	SceneCount     int            `json:"scene_count"`
	Phase          Phase          `json:"phase"`
	RemainingMs    int64          `json:"remaining_ms"`
	TotalMs        int64          `json:"total_ms"`
	Progress       float64        `json:"progress"`
	Playing        bool           `json:"is_playing"`
	ManualOverride bool           `json:"manual_override"`
	Activation     uint64         `json:"activation"`
	AdvancePending bool           `json:"advance_pending"`
	Intro          *catalog.Intro `json:"intro,omitempty"`
}

// ElapsedMs returns time spent in the current phase.
func (s Snapshot) ElapsedMs() int64 {
	return s.TotalMs - s.RemainingMs
}

// EventKind classifies player events.
type EventKind string

const (
	// EventTick is a quantum elapsing without a phase change.
	EventTick EventKind = "tick"

	// EventPhaseStarted is a new (scene, phase) activation.
	EventPhaseStarted EventKind = "phase_started"

	// EventPlaybackChanged is a change of the playing or override flags.
	EventPlaybackChanged EventKind = "playback_changed"

	// EventAdvanceScheduled is an accepted completion waiting for its settle delay.
	EventAdvanceScheduled EventKind = "advance_scheduled"

	// EventSignalDropped is a completion or settle signal that was ignored.
	EventSignalDropped EventKind = "signal_dropped"

	// EventCommand is a command received by the player, emitted before its effects.
	EventCommand EventKind = "command"
)

// Event is published to subscribers after every state change.
type Event struct {
	Kind    EventKind `json:"kind"`
	Cause   Cause     `json:"cause,omitempty"`
	Command *Command  `json:"command,omitempty"`
	Err     error     `json:"-"`
	Reason  string    `json:"reason,omitempty"`
	State   Snapshot  `json:"state"`
	At      time.Time `json:"at"`
}

// CommandKind names an operation on the player.
type CommandKind string

const (
	CommandPlay     CommandKind = "play"
	CommandPause    CommandKind = "pause"
	CommandToggle   CommandKind = "toggle"
	CommandJump     CommandKind = "jump"
	CommandSkip     CommandKind = "skip"
	CommandReload   CommandKind = "reload"
	CommandComplete CommandKind = "complete"

	// commandState reads the snapshot through the loop without mutating.
	commandState CommandKind = "state"
)

// ParseCommandKind converts a wire name into a CommandKind.
func ParseCommandKind(name string) (CommandKind, error) {
	switch k := CommandKind(strings.ToLower(strings.TrimSpace(name))); k {
	case CommandPlay, CommandPause, CommandToggle, CommandJump,
		CommandSkip, CommandReload, CommandComplete:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, name)
}

// Command is a request submitted to the player.
type Command struct {
	Kind CommandKind `json:"command"`

	// Index is the jump target. Out-of-range values wrap.
	Index int `json:"index,omitempty"`

	// Activation addresses a completion signal. Zero means the current activation.
	Activation uint64 `json:"activation,omitempty"`

	// Source and Actor describe where the command came from (api, websocket,
	// mqtt, renderer) and who sent it. Recorded in history only.
	Source string `json:"source,omitempty"`
	Actor  string `json:"actor,omitempty"`
}

// JumpPolicy decides the playback flags after a manual jump.
type JumpPolicy string

const (
	// JumpResume clears the override and resumes autoplay from the new scene.
	JumpResume JumpPolicy = "resume"

	// JumpPause pauses on the new scene and leaves the operator in control.
	JumpPause JumpPolicy = "pause"
)

// ParseJumpPolicy converts a config value into a JumpPolicy.
// Empty selects JumpResume.
func ParseJumpPolicy(name string) (JumpPolicy, error) {
	switch p := JumpPolicy(strings.ToLower(strings.TrimSpace(name))); p {
	case "":
		return JumpResume, nil
	case JumpResume, JumpPause:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownJumpPolicy, name)
}

// Logger is the logging interface used by the player.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
