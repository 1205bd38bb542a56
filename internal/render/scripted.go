package render

import "github.com/nerrad567/showloop/internal/catalog"

// Scripted plays a scene's timeline. Each cue is announced once when its
// offset is reached, and reaching the completion cue reports done.
//
// A timeline without the completion cue never completes early.
type Scripted struct {
	announcer Announcer

	active   bool
	token    uint64
	sceneID  string
	complete string
	cues     []catalog.Cue
	next     int
	done     func()
}

func (s *Scripted) Kind() catalog.Kind { return catalog.KindScripted }

func (s *Scripted) Activate(a Activation, done func()) {
	s.active = true
	s.token = a.Token
	s.sceneID = a.Scene.ID
	s.complete = a.Scene.Content.CompleteCue
	s.cues = a.Scene.Cues()
	s.next = 0
	s.done = done

	announceActivate(s.announcer, a)
	s.Advance(0)
}

// Advance emits every cue at or before elapsedMs that has not been emitted yet.
func (s *Scripted) Advance(elapsedMs int64) {
	if !s.active {
		return
	}

	for s.next < len(s.cues) && s.cues[s.next].AtMs <= elapsedMs {
		cue := s.cues[s.next]
		s.next++

		isComplete := cue.Name == s.complete
		if s.announcer != nil {
			s.announcer.Broadcast(ChannelSceneCue, CuePayload{
				Activation: s.token,
				SceneID:    s.sceneID,
				Cue:        cue.Name,
				AtMs:       cue.AtMs,
				Complete:   isComplete,
			})
		}
		if isComplete && s.done != nil {
			s.done()
		}
	}
}

func (s *Scripted) Deactivate() {
	s.active = false
	s.done = nil
	s.cues = nil
	s.next = 0
}

// Emitted returns how many cues have been announced in the current activation.
func (s *Scripted) Emitted() int {
	return s.next
}
