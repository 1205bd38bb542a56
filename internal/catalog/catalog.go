package catalog

import (
	"fmt"
	"sort"
)

// Default durations substituted for missing or non-positive values.
const (
	// DefaultContentDurationMs is the content phase length used when a scene omits one.
	DefaultContentDurationMs int64 = 15000

	// DefaultIntroDurationMs is the intro card length used when an intro omits one.
	DefaultIntroDurationMs int64 = 3500

	// DefaultCompleteCue is the timeline cue that ends a scripted scene.
	DefaultCompleteCue = "finish"
)

// Kind identifies how a scene's content is rendered.
// The set is closed; renderers are registered per kind.
type Kind string

const (
	// KindStatic content never reports completion; only the timer ends it.
	KindStatic Kind = "static"

	// KindInteractive content is driven by an external display that reports
	// completion itself.
	KindInteractive Kind = "interactive"

	// KindScripted content follows a timeline of named cues and completes
	// when its completion cue is reached.
	KindScripted Kind = "scripted"
)

// Kinds returns all supported content kinds.
func Kinds() []Kind {
	return []Kind{KindStatic, KindInteractive, KindScripted}
}

// IsValid reports whether k is one of the supported kinds.
func (k Kind) IsValid() bool {
	switch k {
	case KindStatic, KindInteractive, KindScripted:
		return true
	}
	return false
}

// Intro is the optional static card shown before a scene's content.
type Intro struct {
	Title      string `yaml:"title" json:"title"`
	Role       string `yaml:"role" json:"role,omitempty"`
	Goal       string `yaml:"goal" json:"goal,omitempty"`
	DurationMs int64  `yaml:"duration_ms" json:"duration_ms"`
}

// Content is the opaque handle passed to the scene's renderer.
// The player never interprets it.
type Content struct {
	Kind        Kind              `yaml:"kind" json:"kind"`
	Source      string            `yaml:"source" json:"source,omitempty"`
	Params      map[string]string `yaml:"params" json:"params,omitempty"`
	Timeline    map[string]int64  `yaml:"timeline" json:"timeline,omitempty"`
	CompleteCue string            `yaml:"complete_cue" json:"complete_cue,omitempty"`
}

// Cue is a named offset within a scene's content phase.
type Cue struct {
	Name string `json:"name"`
	AtMs int64  `json:"at_ms"`
}

// Scene describes one entry of the playlist.
type Scene struct {
	ID         string  `yaml:"id" json:"id"`
	Title      string  `yaml:"title" json:"title"`
	DurationMs int64   `yaml:"duration_ms" json:"duration_ms"`
	Intro      *Intro  `yaml:"intro" json:"intro,omitempty"`
	Content    Content `yaml:"content" json:"content"`
}

// HasIntro reports whether the scene starts with an intro card.
func (s Scene) HasIntro() bool {
	return s.Intro != nil
}

// Cues returns the scene's timeline ordered by offset, then by name.
func (s Scene) Cues() []Cue {
	cues := make([]Cue, 0, len(s.Content.Timeline))
	for name, at := range s.Content.Timeline {
		cues = append(cues, Cue{Name: name, AtMs: at})
	}
	sort.Slice(cues, func(i, j int) bool {
		if cues[i].AtMs != cues[j].AtMs {
			return cues[i].AtMs < cues[j].AtMs
		}
		return cues[i].Name < cues[j].Name
	})
	return cues
}

// clone returns a deep copy so callers cannot mutate catalog internals.
func (s Scene) clone() Scene {
	out := s
	if s.Intro != nil {
		intro := *s.Intro
		out.Intro = &intro
	}
	if s.Content.Params != nil {
		out.Content.Params = make(map[string]string, len(s.Content.Params))
		for k, v := range s.Content.Params {
			out.Content.Params[k] = v
		}
	}
	if s.Content.Timeline != nil {
		out.Content.Timeline = make(map[string]int64, len(s.Content.Timeline))
		for k, v := range s.Content.Timeline {
			out.Content.Timeline[k] = v
		}
	}
	return out
}

// Adjustment records a value substituted during normalisation.
type Adjustment struct {
	SceneID string
	Field   string
	From    string
	To      string
}

// String renders the adjustment for logs.
func (a Adjustment) String() string {
	return fmt.Sprintf("scene %q: %s %s -> %s", a.SceneID, a.Field, a.From, a.To)
}

// Catalog is an immutable, ordered list of scenes.
//
// Thread Safety:
//   - Safe for concurrent reads; nothing mutates a Catalog after New returns.
type Catalog struct {
	scenes []Scene
	index  map[string]int
}

// New validates and normalises scenes into a Catalog.
//
// Parameters:
//   - scenes: Scene descriptors in playback order
//
// Returns:
//   - *Catalog: Immutable catalog
//   - []Adjustment: Values substituted during normalisation
//   - error: ErrEmptyCatalog, ErrDuplicateSceneID or ErrUnknownKind
func New(scenes []Scene) (*Catalog, []Adjustment, error) {
	if len(scenes) == 0 {
		return nil, nil, ErrEmptyCatalog
	}

	c := &Catalog{
		scenes: make([]Scene, 0, len(scenes)),
		index:  make(map[string]int, len(scenes)),
	}

	var adjustments []Adjustment
	for i, in := range scenes {
		s, adj := normalise(in.clone(), i)
		adjustments = append(adjustments, adj...)

		if !s.Content.Kind.IsValid() {
			return nil, nil, fmt.Errorf("%w: scene %q has kind %q", ErrUnknownKind, s.ID, s.Content.Kind)
		}
		if _, exists := c.index[s.ID]; exists {
			return nil, nil, fmt.Errorf("%w: %q", ErrDuplicateSceneID, s.ID)
		}

		c.index[s.ID] = len(c.scenes)
		c.scenes = append(c.scenes, s)
	}

	return c, adjustments, nil
}

// normalise fills defaults for a single scene at position i.
func normalise(s Scene, i int) (Scene, []Adjustment) {
	var adj []Adjustment

	if s.ID == "" {
		s.ID = fmt.Sprintf("scene-%02d", i+1)
		adj = append(adj, Adjustment{SceneID: s.ID, Field: "id", From: `""`, To: s.ID})
	}

	if s.DurationMs <= 0 {
		adj = append(adj, Adjustment{
			SceneID: s.ID,
			Field:   "duration_ms",
			From:    fmt.Sprint(s.DurationMs),
			To:      fmt.Sprint(DefaultContentDurationMs),
		})
		s.DurationMs = DefaultContentDurationMs
	}

	if s.Intro != nil && s.Intro.DurationMs <= 0 {
		adj = append(adj, Adjustment{
			SceneID: s.ID,
			Field:   "intro.duration_ms",
			From:    fmt.Sprint(s.Intro.DurationMs),
			To:      fmt.Sprint(DefaultIntroDurationMs),
		})
		s.Intro.DurationMs = DefaultIntroDurationMs
	}

	if s.Content.Kind == "" {
		s.Content.Kind = KindStatic
	}

	if s.Content.Kind == KindScripted && s.Content.CompleteCue == "" {
		s.Content.CompleteCue = DefaultCompleteCue
	}

	for name, at := range s.Content.Timeline {
		if at < 0 {
			adj = append(adj, Adjustment{
				SceneID: s.ID,
				Field:   "timeline." + name,
				From:    fmt.Sprint(at),
				To:      "0",
			})
			s.Content.Timeline[name] = 0
		}
	}

	return s, adj
}

// Len returns the number of scenes. Always at least 1.
func (c *Catalog) Len() int {
	return len(c.scenes)
}

// Wrap maps any integer onto a valid scene index, modulo Len.
// Negative values wrap from the end.
func (c *Catalog) Wrap(i int) int {
	n := len(c.scenes)
	return ((i % n) + n) % n
}

// Scene returns a copy of the scene at index i, wrapped modulo Len.
func (c *Catalog) Scene(i int) Scene {
	return c.scenes[c.Wrap(i)].clone()
}

// Scenes returns copies of all scenes in playback order.
func (c *Catalog) Scenes() []Scene {
	out := make([]Scene, len(c.scenes))
	for i, s := range c.scenes {
		out[i] = s.clone()
	}
	return out
}

// IndexOf returns the position of the scene with the given id.
func (c *Catalog) IndexOf(id string) (int, bool) {
	i, ok := c.index[id]
	return i, ok
}

// TotalDurationMs returns the length of one full cycle without early completion.
func (c *Catalog) TotalDurationMs() int64 {
	var total int64
	for _, s := range c.scenes {
		total += s.DurationMs
		if s.Intro != nil {
			total += s.Intro.DurationMs
		}
	}
	return total
}
