package render

import (
	"errors"
	"fmt"

	"github.com/nerrad567/showloop/internal/catalog"
)

// WebSocket channels used by renderers and the dispatcher.
const (
	ChannelSceneActivate = "scene.activate"
	ChannelSceneIntro    = "scene.intro"
	ChannelSceneCue      = "scene.cue"
)

// ErrUnknownKind is returned when no renderer exists for a content kind.
var ErrUnknownKind = errors.New("render: no renderer for content kind")

// Announcer pushes a payload to every display subscribed to channel.
// Implemented by the API WebSocket hub.
type Announcer interface {
	Broadcast(channel string, payload any)
}

// Logger defines the logging interface used by the dispatcher.
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

// Activation identifies one showing of a scene's content.
type Activation struct {
	Token uint64
	Index int
	Scene catalog.Scene
}

// Renderer shows one scene's content.
//
// Activate is called when the content phase starts. A renderer that knows
// when its content has finished calls done; done is safe to call any number
// of times and from any goroutine, only the first call counts. Advance
// reports elapsed content time. Deactivate is called when the phase ends for
// any reason, including completion.
type Renderer interface {
	Kind() catalog.Kind
	Activate(a Activation, done func())
	Advance(elapsedMs int64)
	Deactivate()
}

// ActivatePayload is broadcast on ChannelSceneActivate.
type ActivatePayload struct {
	Activation uint64            `json:"activation"`
	Index      int               `json:"index"`
	SceneID    string            `json:"scene_id"`
	Title      string            `json:"title"`
	Kind       catalog.Kind      `json:"kind"`
	Source     string            `json:"source,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
	DurationMs int64             `json:"duration_ms"`
	Cues       []catalog.Cue     `json:"cues,omitempty"`
}

// IntroPayload is broadcast on ChannelSceneIntro.
type IntroPayload struct {
	Activation uint64        `json:"activation"`
	Index      int           `json:"index"`
	SceneID    string        `json:"scene_id"`
	Intro      catalog.Intro `json:"intro"`
}

// CuePayload is broadcast on ChannelSceneCue.
type CuePayload struct {
	Activation uint64 `json:"activation"`
	SceneID    string `json:"scene_id"`
	Cue        string `json:"cue"`
	AtMs       int64  `json:"at_ms"`
	Complete   bool   `json:"complete,omitempty"`
}

// New builds the renderer for a scene's content kind.
func New(scene catalog.Scene, announcer Announcer) (Renderer, error) {
	switch scene.Content.Kind {
	case catalog.KindStatic:
		return &Static{announcer: announcer}, nil
	case catalog.KindInteractive:
		return &Interactive{announcer: announcer}, nil
	case catalog.KindScripted:
		return &Scripted{announcer: announcer}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, scene.Content.Kind)
}

func announceActivate(announcer Announcer, a Activation) {
	if announcer == nil {
		return
	}
	announcer.Broadcast(ChannelSceneActivate, ActivatePayload{
		Activation: a.Token,
		Index:      a.Index,
		SceneID:    a.Scene.ID,
		Title:      a.Scene.Title,
		Kind:       a.Scene.Content.Kind,
		Source:     a.Scene.Content.Source,
		Params:     a.Scene.Content.Params,
		DurationMs: a.Scene.DurationMs,
		Cues:       a.Scene.Cues(),
	})
}

// Static content is shown for the full duration and never completes early.
type Static struct {
	announcer Announcer
}

func (s *Static) Kind() catalog.Kind { return catalog.KindStatic }

func (s *Static) Activate(a Activation, _ func()) { announceActivate(s.announcer, a) }

func (s *Static) Advance(int64) {}

func (s *Static) Deactivate() {}

// Interactive content runs on the display, which reports completion itself
// through the API using the activation token it was given.
type Interactive struct {
	announcer Announcer
}

func (i *Interactive) Kind() catalog.Kind { return catalog.KindInteractive }

func (i *Interactive) Activate(a Activation, _ func()) { announceActivate(i.announcer, a) }

func (i *Interactive) Advance(int64) {}

func (i *Interactive) Deactivate() {}
