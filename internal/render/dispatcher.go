package render

import (
	"context"
	"sync"

	"github.com/nerrad567/showloop/internal/catalog"
	"github.com/nerrad567/showloop/internal/playback"
)

// Completer accepts completion commands. Implemented by *playback.Player.
type Completer interface {
	Execute(cmd playback.Command) playback.Snapshot
}

// Dispatcher drives renderers from player events.
//
// It activates the content renderer when a content phase starts, deactivates
// it when any other activation starts, feeds it elapsed time on ticks, and
// announces intro cards. Completion reported by a renderer is sent back to
// the player tagged with the activation it belongs to.
type Dispatcher struct {
	catalog   *catalog.Catalog
	registry  *Registry
	announcer Announcer
	completer Completer
	logger    Logger

	active     Renderer
	activation uint64
}

// NewDispatcher creates a dispatcher. announcer may be nil.
func NewDispatcher(cat *catalog.Catalog, registry *Registry, announcer Announcer, completer Completer) *Dispatcher {
	return &Dispatcher{
		catalog:   cat,
		registry:  registry,
		announcer: announcer,
		completer: completer,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// Run consumes events until ctx is cancelled or events is closed.
func (d *Dispatcher) Run(ctx context.Context, events <-chan playback.Event) {
	defer d.deactivate()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			d.Handle(ev)
		}
	}
}

// Handle processes a single event. Exported for tests and synchronous use.
func (d *Dispatcher) Handle(ev playback.Event) {
	// Any event carrying a new activation resynchronises, so a dropped
	// phase_started event cannot leave a stale renderer running.
	if ev.State.Activation != d.activation {
		d.enter(ev.State)
		return
	}

	if ev.Kind == playback.EventTick && d.active != nil {
		d.active.Advance(ev.State.ElapsedMs())
	}
}

func (d *Dispatcher) enter(state playback.Snapshot) {
	d.deactivate()
	d.activation = state.Activation

	scene := d.catalog.Scene(state.Index)

	if state.Phase == playback.PhaseIntro {
		if d.announcer != nil && state.Intro != nil {
			d.announcer.Broadcast(ChannelSceneIntro, IntroPayload{
				Activation: state.Activation,
				Index:      state.Index,
				SceneID:    scene.ID,
				Intro:      *state.Intro,
			})
		}
		return
	}

	rend, ok := d.registry.Get(scene.ID)
	if !ok {
		d.logger.Warn("no renderer for scene", "scene", scene.ID)
		return
	}

	d.active = rend
	d.logger.Debug("content activated",
		"scene", scene.ID,
		"kind", string(rend.Kind()),
		"activation", state.Activation,
	)
	rend.Activate(Activation{Token: state.Activation, Index: state.Index, Scene: scene}, d.doneFunc(state.Activation))
	rend.Advance(state.ElapsedMs())
}

func (d *Dispatcher) deactivate() {
	if d.active != nil {
		d.active.Deactivate()
		d.active = nil
	}
}

// doneFunc returns a once-guarded completion callback for token.
func (d *Dispatcher) doneFunc(token uint64) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			if d.completer == nil {
				return
			}
			d.completer.Execute(playback.Command{
				Kind:       playback.CommandComplete,
				Activation: token,
				Source:     "renderer",
			})
		})
	}
}
