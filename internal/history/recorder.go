package history

import (
	"context"
	"time"

	"github.com/nerrad567/showloop/internal/playback"
)

// writeTimeout bounds each repository write.
const writeTimeout = 5 * time.Second

// Logger is the logging interface used by the recorder.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder turns player events into history entries.
//
// Ticks and advance_scheduled events are not recorded. The recorder is not
// safe for concurrent use; run one per event stream.
type Recorder struct {
	repo     Repository
	playerID string
	logger   Logger

	// Last recorded activation, whose dwell is filled in when the next starts.
	prevID    string
	prevStart time.Time
}

// NewRecorder creates a recorder writing entries tagged with playerID.
func NewRecorder(repo Repository, playerID string, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{repo: repo, playerID: playerID, logger: logger}
}

// Run records events until ctx is cancelled or events is closed. Events
// already buffered when ctx is cancelled are still written.
func (r *Recorder) Run(ctx context.Context, events <-chan playback.Event) error {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			r.Record(ev)
		case <-ctx.Done():
			for {
				select {
				case ev, ok := <-events:
					if !ok {
						return nil
					}
					r.Record(ev)
				default:
					return nil
				}
			}
		}
	}
}

// Record writes a single event. Write failures are logged, not returned,
// so a full disk never stalls playback.
func (r *Recorder) Record(ev playback.Event) {
	entry := r.entryFor(ev)
	if entry == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if ev.Kind == playback.EventPhaseStarted {
		r.closePrevious(ctx, ev.At)
	}

	if err := r.repo.Create(ctx, entry); err != nil {
		r.logger.Error("history write failed", "kind", entry.Kind, "error", err)
		return
	}

	if ev.Kind == playback.EventPhaseStarted {
		r.prevID = entry.ID
		r.prevStart = ev.At
	}
}

func (r *Recorder) closePrevious(ctx context.Context, now time.Time) {
	if r.prevID == "" {
		return
	}
	dwell := now.Sub(r.prevStart).Milliseconds()
	if dwell < 0 {
		dwell = 0
	}
	if err := r.repo.SetDwell(ctx, r.prevID, dwell); err != nil {
		r.logger.Warn("history dwell update failed", "id", r.prevID, "error", err)
	}
	r.prevID = ""
}

func (r *Recorder) entryFor(ev playback.Event) *Entry {
	s := ev.State
	e := &Entry{
		PlayerID:   r.playerID,
		Kind:       string(ev.Kind),
		SceneID:    s.SceneID,
		SceneIndex: s.Index,
		Phase:      string(s.Phase),
		Activation: s.Activation,
		CreatedAt:  ev.At,
	}

	switch ev.Kind {
	case playback.EventPhaseStarted:
		e.Cause = string(ev.Cause)
	case playback.EventPlaybackChanged:
		e.Details = map[string]any{"is_playing": s.Playing, "manual_override": s.ManualOverride}
	case playback.EventCommand:
		if ev.Command == nil {
			return nil
		}
		e.Command = string(ev.Command.Kind)
		e.Source = ev.Command.Source
		e.Actor = ev.Command.Actor
		switch ev.Command.Kind {
		case playback.CommandJump:
			e.Details = map[string]any{"index": ev.Command.Index}
		case playback.CommandComplete:
			e.Details = map[string]any{"activation": ev.Command.Activation}
		}
	case playback.EventSignalDropped:
		e.Reason = ev.Reason
	default:
		return nil
	}
	return e
}
