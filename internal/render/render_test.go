package render

import (
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/showloop/internal/catalog"
	"github.com/nerrad567/showloop/internal/playback"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

type broadcast struct {
	Channel string
	Payload any
}

// mockHub records every broadcast.
type mockHub struct {
	mu   sync.Mutex
	sent []broadcast
}

func (m *mockHub) Broadcast(channel string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, broadcast{Channel: channel, Payload: payload})
}

func (m *mockHub) on(channel string) []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []any
	for _, b := range m.sent {
		if b.Channel == channel {
			out = append(out, b.Payload)
		}
	}
	return out
}

// mockCompleter records completion commands.
type mockCompleter struct {
	mu   sync.Mutex
	cmds []playback.Command
}

func (m *mockCompleter) Execute(cmd playback.Command) playback.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cmds = append(m.cmds, cmd)
	return playback.Snapshot{}
}

func (m *mockCompleter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cmds)
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, _, err := catalog.New([]catalog.Scene{
		{ID: "poster", DurationMs: 5000, Content: catalog.Content{Kind: catalog.KindStatic, Source: "/poster.html"}},
		{
			ID: "demo", DurationMs: 10000,
			Intro: &catalog.Intro{Title: "Demo", Role: "Guide", DurationMs: 1000},
			Content: catalog.Content{
				Kind:     catalog.KindScripted,
				Timeline: map[string]int64{"hello": 0, "card": 2000, "finish": 4000, "after": 6000},
			},
		},
		{ID: "kiosk", DurationMs: 8000, Content: catalog.Content{Kind: catalog.KindInteractive, Source: "/kiosk.html"}},
	})
	if err != nil {
		t.Fatalf("catalog.New() error = %v", err)
	}
	return cat
}

func state(index int, phase playback.Phase, activation uint64, elapsed int64, total int64) playback.Snapshot {
	s := playback.Snapshot{
		Index:       index,
		Phase:       phase,
		Activation:  activation,
		TotalMs:     total,
		RemainingMs: total - elapsed,
	}
	if phase == playback.PhaseIntro {
		s.Intro = &catalog.Intro{Title: "Demo", Role: "Guide", DurationMs: 1000}
	}
	return s
}

// ─── Renderers ──────────────────────────────────────────────────────────────

func TestNew_Kinds(t *testing.T) {
	for _, kind := range catalog.Kinds() {
		rend, err := New(catalog.Scene{Content: catalog.Content{Kind: kind}}, nil)
		if err != nil {
			t.Fatalf("New(%q) error = %v", kind, err)
		}
		if rend.Kind() != kind {
			t.Errorf("Kind() = %q, want %q", rend.Kind(), kind)
		}
	}

	if _, err := New(catalog.Scene{Content: catalog.Content{Kind: "hologram"}}, nil); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("New(hologram) error = %v, want ErrUnknownKind", err)
	}
}

func TestScripted_CuesAndCompletion(t *testing.T) {
	hub := &mockHub{}
	s := &Scripted{announcer: hub}
	scene := testCatalog(t).Scene(1)

	doneCalls := 0
	s.Activate(Activation{Token: 7, Index: 1, Scene: scene}, func() { doneCalls++ })

	if got := s.Emitted(); got != 1 {
		t.Fatalf("cues after activate = %d, want 1 (hello at 0)", got)
	}

	tests := []struct {
		elapsed  int64
		wantCues int
		wantDone int
	}{
		{1999, 1, 0},
		{2000, 2, 0},
		{3900, 2, 0},
		{4000, 3, 1},
		{9000, 4, 1},
		{9500, 4, 1},
	}
	for _, tt := range tests {
		s.Advance(tt.elapsed)
		if s.Emitted() != tt.wantCues || doneCalls != tt.wantDone {
			t.Errorf("Advance(%d) = (%d cues, %d done), want (%d, %d)",
				tt.elapsed, s.Emitted(), doneCalls, tt.wantCues, tt.wantDone)
		}
	}

	cues := hub.on(ChannelSceneCue)
	if len(cues) != 4 {
		t.Fatalf("cue broadcasts = %d, want 4", len(cues))
	}
	finish := cues[2].(CuePayload)
	if finish.Cue != "finish" || !finish.Complete || finish.Activation != 7 {
		t.Errorf("finish cue = %+v", finish)
	}
	if len(hub.on(ChannelSceneActivate)) != 1 {
		t.Error("activation not announced")
	}
}

func TestScripted_DeactivateStops(t *testing.T) {
	s := &Scripted{}
	doneCalls := 0
	s.Activate(Activation{Token: 1, Scene: testCatalog(t).Scene(1)}, func() { doneCalls++ })
	s.Deactivate()

	s.Advance(10000)
	if doneCalls != 0 {
		t.Error("done called after Deactivate")
	}
}

func TestScripted_NoCompleteCue(t *testing.T) {
	s := &Scripted{}
	scene := catalog.Scene{ID: "x", Content: catalog.Content{
		Kind:        catalog.KindScripted,
		CompleteCue: "finish",
		Timeline:    map[string]int64{"a": 100},
	}}
	called := false
	s.Activate(Activation{Token: 1, Scene: scene}, func() { called = true })
	s.Advance(100000)
	if called {
		t.Error("scripted content completed without its completion cue")
	}
}

func TestStatic_NeverCompletes(t *testing.T) {
	hub := &mockHub{}
	s := &Static{announcer: hub}
	called := false
	s.Activate(Activation{Token: 3, Scene: testCatalog(t).Scene(0)}, func() { called = true })
	s.Advance(1 << 40)

	if called {
		t.Error("static content called done")
	}
	got := hub.on(ChannelSceneActivate)
	if len(got) != 1 || got[0].(ActivatePayload).Source != "/poster.html" {
		t.Errorf("activate broadcasts = %+v", got)
	}
}

// ─── Registry ───────────────────────────────────────────────────────────────

func TestNewRegistry(t *testing.T) {
	reg, err := NewRegistry(testCatalog(t), nil)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	if reg.Len() != 3 {
		t.Errorf("Len() = %d, want 3", reg.Len())
	}
	if rend, ok := reg.Get("kiosk"); !ok || rend.Kind() != catalog.KindInteractive {
		t.Errorf("Get(kiosk) = (%v, %v)", rend, ok)
	}
	if _, ok := reg.Get("missing"); ok {
		t.Error("Get(missing) found a renderer")
	}
}

// ─── Dispatcher ─────────────────────────────────────────────────────────────

func newTestDispatcher(t *testing.T) (*Dispatcher, *mockHub, *mockCompleter) {
	t.Helper()
	cat := testCatalog(t)
	hub := &mockHub{}
	reg, err := NewRegistry(cat, hub)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	comp := &mockCompleter{}
	return NewDispatcher(cat, reg, hub, comp), hub, comp
}

func TestDispatcher_IntroThenScriptedContent(t *testing.T) {
	d, hub, comp := newTestDispatcher(t)

	d.Handle(playback.Event{Kind: playback.EventPhaseStarted, State: state(1, playback.PhaseIntro, 5, 0, 1000)})
	intros := hub.on(ChannelSceneIntro)
	if len(intros) != 1 || intros[0].(IntroPayload).Intro.Role != "Guide" {
		t.Fatalf("intro broadcasts = %+v", intros)
	}

	d.Handle(playback.Event{Kind: playback.EventPhaseStarted, State: state(1, playback.PhaseContent, 6, 0, 10000)})
	for elapsed := int64(100); elapsed <= 4000; elapsed += 100 {
		d.Handle(playback.Event{Kind: playback.EventTick, State: state(1, playback.PhaseContent, 6, elapsed, 10000)})
	}

	if comp.count() != 1 {
		t.Fatalf("completions = %d, want 1", comp.count())
	}
	cmd := comp.cmds[0]
	if cmd.Kind != playback.CommandComplete || cmd.Activation != 6 || cmd.Source != "renderer" {
		t.Errorf("completion = %+v", cmd)
	}
}

func TestDispatcher_NewActivationDeactivates(t *testing.T) {
	d, _, comp := newTestDispatcher(t)

	d.Handle(playback.Event{Kind: playback.EventPhaseStarted, State: state(1, playback.PhaseContent, 2, 0, 10000)})
	d.Handle(playback.Event{Kind: playback.EventPhaseStarted, State: state(2, playback.PhaseContent, 3, 0, 8000)})

	// Ticks for the interactive scene never reach the scripted timeline.
	d.Handle(playback.Event{Kind: playback.EventTick, State: state(2, playback.PhaseContent, 3, 5000, 8000)})
	if comp.count() != 0 {
		t.Errorf("completions = %d, want 0", comp.count())
	}
}

func TestDispatcher_ResyncsOnMissedPhaseStart(t *testing.T) {
	d, hub, _ := newTestDispatcher(t)

	d.Handle(playback.Event{Kind: playback.EventTick, State: state(0, playback.PhaseContent, 9, 300, 5000)})
	if got := len(hub.on(ChannelSceneActivate)); got != 1 {
		t.Errorf("activate broadcasts = %d, want 1", got)
	}

	d.Handle(playback.Event{Kind: playback.EventTick, State: state(0, playback.PhaseContent, 9, 400, 5000)})
	if got := len(hub.on(ChannelSceneActivate)); got != 1 {
		t.Errorf("activate broadcasts after same activation = %d, want 1", got)
	}
}

func TestDispatcher_CompletionOnce(t *testing.T) {
	d, _, comp := newTestDispatcher(t)
	done := d.doneFunc(4)
	done()
	done()
	done()
	if comp.count() != 1 {
		t.Errorf("completions = %d, want 1", comp.count())
	}
}
