package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// ─── Fake time source ───────────────────────────────────────────────────────

// fakeTime hands out an unbuffered tick channel the test feeds by hand and
// records AfterFunc callbacks instead of scheduling them.
type fakeTime struct {
	mu      sync.Mutex
	ticks   chan time.Time
	tickers int
	timers  []*fakeTimer
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func newFakeTime() *fakeTime {
	return &fakeTime{}
}

func (f *fakeTime) Now() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (f *fakeTime) NewTicker(time.Duration) (<-chan time.Time, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan time.Time)
	f.ticks = ch
	f.tickers++
	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.ticks == ch {
			f.ticks = nil
		}
	}
}

func (f *fakeTime) AfterFunc(d time.Duration, fn func()) func() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &fakeTimer{d: d, f: fn}
	f.timers = append(f.timers, t)
	return func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		if t.stopped || t.fired {
			return false
		}
		t.stopped = true
		return true
	}
}

func (f *fakeTime) armed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ticks != nil
}

func (f *fakeTime) tickerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tickers
}

// live returns timers neither stopped nor fired.
func (f *fakeTime) live() []*fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakeTimer
	for _, t := range f.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fire runs every live timer.
func (f *fakeTime) fire() int {
	timers := f.live()
	f.mu.Lock()
	for _, t := range timers {
		t.fired = true
	}
	f.mu.Unlock()

	for _, t := range timers {
		t.f()
	}
	return len(timers)
}

// forceFire runs every recorded callback, including cancelled ones,
// the way a timer that already started firing would.
func (f *fakeTime) forceFire() {
	f.mu.Lock()
	timers := append([]*fakeTimer(nil), f.timers...)
	f.mu.Unlock()
	for _, t := range timers {
		t.f()
	}
}

func (f *fakeTime) tick(t *testing.T) {
	t.Helper()
	f.mu.Lock()
	ch := f.ticks
	f.mu.Unlock()

	if ch == nil {
		t.Fatal("tick sent while clock disarmed")
	}
	select {
	case ch <- time.Time{}:
	case <-time.After(2 * time.Second):
		t.Fatal("tick not consumed by player loop")
	}
}

// ─── Helpers ────────────────────────────────────────────────────────────────

type harness struct {
	player *Player
	time   *fakeTime
	events <-chan Event
}

func startPlayer(t *testing.T, opts Options) *harness {
	t.Helper()

	ft := newFakeTime()
	opts.TimeSource = ft
	if opts.Quantum == 0 {
		opts.Quantum = 100 * time.Millisecond
	}

	p, err := NewPlayer(newLoop(t), opts)
	if err != nil {
		t.Fatalf("NewPlayer() error = %v", err)
	}
	events, unsubscribe := p.Subscribe(1024)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run() error = %v", err)
		}
		unsubscribe()
	})

	p.State() // wait for the loop
	return &harness{player: p, time: ft, events: events}
}

// advance feeds n ticks and waits for the loop to process them.
func (h *harness) advance(t *testing.T, n int) Snapshot {
	t.Helper()
	for i := 0; i < n; i++ {
		h.time.tick(t)
	}
	return h.player.State()
}

// drain returns every buffered event.
func (h *harness) drain() []Event {
	var out []Event
	for {
		select {
		case ev := <-h.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func findEvents(events []Event, kind EventKind) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// ─── Lifecycle ──────────────────────────────────────────────────────────────

func TestPlayer_RunPublishesStart(t *testing.T) {
	h := startPlayer(t, Options{})

	started := findEvents(h.drain(), EventPhaseStarted)
	if len(started) != 1 || started[0].Cause != CauseStart {
		t.Fatalf("start events = %+v, want one with cause start", started)
	}
	if started[0].State.SceneID != "a" {
		t.Errorf("start scene = %q, want a", started[0].State.SceneID)
	}
	if !h.time.armed() {
		t.Error("clock not armed after start")
	}
}

func TestPlayer_RunTwice(t *testing.T) {
	h := startPlayer(t, Options{})
	if err := h.player.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestPlayer_ExecuteAfterStop(t *testing.T) {
	p, err := NewPlayer(newLoop(t), Options{TimeSource: newFakeTime()})
	if err != nil {
		t.Fatalf("NewPlayer() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()
	p.State()
	cancel()
	<-done

	before := p.Last()
	snap := p.Skip()
	if snap.SceneID != before.SceneID || snap.Activation != before.Activation {
		t.Errorf("Skip() after stop mutated state: %+v -> %+v", before, snap)
	}
}

// ─── Timer ──────────────────────────────────────────────────────────────────

func TestPlayer_TicksAdvanceScenes(t *testing.T) {
	h := startPlayer(t, Options{})
	h.drain()

	snap := h.advance(t, 49)
	if snap.SceneID != "a" || snap.RemainingMs != 100 {
		t.Fatalf("after 49 ticks = (%q, %d), want (a, 100)", snap.SceneID, snap.RemainingMs)
	}

	snap = h.advance(t, 1)
	if snap.SceneID != "b" || snap.Phase != PhaseIntro {
		t.Fatalf("after 50 ticks = (%q, %q), want (b, intro)", snap.SceneID, snap.Phase)
	}
	if snap.Intro == nil || snap.Intro.Role != "Guide" {
		t.Errorf("Intro = %+v, want role Guide", snap.Intro)
	}

	events := h.drain()
	if got := len(findEvents(events, EventTick)); got != 49 {
		t.Errorf("tick events = %d, want 49", got)
	}
	started := findEvents(events, EventPhaseStarted)
	if len(started) != 1 || started[0].Cause != CauseTimer {
		t.Fatalf("phase events = %+v, want one timer advance", started)
	}

	snap = h.advance(t, 10)
	if snap.SceneID != "b" || snap.Phase != PhaseContent {
		t.Errorf("after intro = (%q, %q), want (b, content)", snap.SceneID, snap.Phase)
	}
}

func TestPlayer_ClockRestartsOnActivation(t *testing.T) {
	h := startPlayer(t, Options{})
	before := h.time.tickerCount()

	h.player.Skip()
	if got := h.time.tickerCount(); got != before+1 {
		t.Errorf("tickers = %d, want %d", got, before+1)
	}

	h.advance(t, 5)
	if got := h.time.tickerCount(); got != before+1 {
		t.Errorf("plain ticks restarted the clock: %d tickers", got)
	}
}

// ─── Play / Pause ───────────────────────────────────────────────────────────

func TestPlayer_PauseDisarmsClock(t *testing.T) {
	h := startPlayer(t, Options{})
	h.advance(t, 10)

	snap := h.player.Pause()
	if snap.Playing || !snap.ManualOverride {
		t.Errorf("Pause() flags = (%v, %v), want (false, true)", snap.Playing, snap.ManualOverride)
	}
	if h.time.armed() {
		t.Fatal("clock armed while paused")
	}
	if snap.RemainingMs != 4000 {
		t.Errorf("remaining = %d, want 4000", snap.RemainingMs)
	}

	snap = h.player.Play()
	if !snap.Playing || snap.ManualOverride {
		t.Errorf("Play() flags = (%v, %v), want (true, false)", snap.Playing, snap.ManualOverride)
	}
	if !h.time.armed() {
		t.Fatal("clock disarmed after play")
	}
	if snap = h.advance(t, 1); snap.RemainingMs != 3900 {
		t.Errorf("remaining after resume = %d, want 3900", snap.RemainingMs)
	}

	changed := findEvents(h.drain(), EventPlaybackChanged)
	if len(changed) != 2 {
		t.Errorf("playback_changed events = %d, want 2", len(changed))
	}
}

func TestPlayer_PlayWhilePlayingIsQuiet(t *testing.T) {
	h := startPlayer(t, Options{})
	h.drain()

	h.player.Play()
	if got := findEvents(h.drain(), EventPlaybackChanged); len(got) != 0 {
		t.Errorf("playback_changed events = %d, want 0", len(got))
	}
}

func TestPlayer_Toggle(t *testing.T) {
	h := startPlayer(t, Options{})

	if snap := h.player.Toggle(); snap.Playing {
		t.Error("first Toggle() left playback running")
	}
	if snap := h.player.Toggle(); !snap.Playing || snap.ManualOverride {
		t.Error("second Toggle() did not resume")
	}
}

// ─── Jump / Skip / Reload ───────────────────────────────────────────────────

func TestPlayer_JumpPolicy(t *testing.T) {
	tests := []struct {
		policy      JumpPolicy
		wantPlaying bool
		wantArmed   bool
	}{
		{JumpResume, true, true},
		{JumpPause, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			h := startPlayer(t, Options{JumpPolicy: tt.policy})
			h.player.Pause()

			snap := h.player.JumpTo(2)
			if snap.SceneID != "c" {
				t.Fatalf("JumpTo(2) scene = %q, want c", snap.SceneID)
			}
			if snap.Playing != tt.wantPlaying || snap.ManualOverride == tt.wantPlaying {
				t.Errorf("flags = (%v, %v), want playing %v", snap.Playing, snap.ManualOverride, tt.wantPlaying)
			}
			if h.time.armed() != tt.wantArmed {
				t.Errorf("clock armed = %v, want %v", h.time.armed(), tt.wantArmed)
			}

			started := findEvents(h.drain(), EventPhaseStarted)
			if last := started[len(started)-1]; last.Cause != CauseJump {
				t.Errorf("cause = %q, want jump", last.Cause)
			}
		})
	}
}

func TestPlayer_JumpWraps(t *testing.T) {
	h := startPlayer(t, Options{})

	if snap := h.player.JumpTo(-1); snap.Index != 2 {
		t.Errorf("JumpTo(-1) index = %d, want 2", snap.Index)
	}
	if snap := h.player.JumpTo(4); snap.Index != 1 || snap.Phase != PhaseIntro {
		t.Errorf("JumpTo(4) = (%d, %q), want (1, intro)", snap.Index, snap.Phase)
	}
}

func TestPlayer_SkipKeepsPause(t *testing.T) {
	h := startPlayer(t, Options{})
	h.player.Pause()

	snap := h.player.Skip()
	if snap.SceneID != "b" || snap.Playing {
		t.Errorf("Skip() = (%q, playing %v), want (b, false)", snap.SceneID, snap.Playing)
	}
	if h.time.armed() {
		t.Error("skip re-armed the clock while paused")
	}
}

func TestPlayer_Reload(t *testing.T) {
	h := startPlayer(t, Options{})
	h.player.JumpTo(2)
	h.player.Pause()

	snap := h.player.Reload()
	if snap.Index != 0 || !snap.Playing || snap.ManualOverride {
		t.Errorf("Reload() = %+v, want index 0 playing", snap)
	}
}

func TestPlayer_UnknownCommandIgnored(t *testing.T) {
	h := startPlayer(t, Options{})
	before := h.player.State()

	snap := h.player.Execute(Command{Kind: "rewind"})
	if snap.Activation != before.Activation || snap.Playing != before.Playing {
		t.Errorf("unknown command mutated state: %+v -> %+v", before, snap)
	}
}

// ─── Completion ─────────────────────────────────────────────────────────────

func TestPlayer_CompletionSettles(t *testing.T) {
	h := startPlayer(t, Options{SettleDelay: 1500 * time.Millisecond})
	act := h.player.State().Activation

	snap := h.player.Complete(act)
	if !snap.AdvancePending || snap.SceneID != "a" {
		t.Fatalf("Complete() = %+v, want pending on a", snap)
	}

	live := h.time.live()
	if len(live) != 1 || live[0].d != 1500*time.Millisecond {
		t.Fatalf("settle timers = %+v, want one of 1.5s", live)
	}

	h.time.fire()
	snap = h.player.State()
	if snap.SceneID != "b" || snap.Phase != PhaseIntro {
		t.Fatalf("after settle = (%q, %q), want (b, intro)", snap.SceneID, snap.Phase)
	}

	events := h.drain()
	if len(findEvents(events, EventAdvanceScheduled)) != 1 {
		t.Error("missing advance_scheduled event")
	}
	started := findEvents(events, EventPhaseStarted)
	if last := started[len(started)-1]; last.Cause != CauseCompletion {
		t.Errorf("cause = %q, want completion", last.Cause)
	}
}

func TestPlayer_DuplicateCompletionDropped(t *testing.T) {
	h := startPlayer(t, Options{})
	h.drain()

	h.player.Complete(0)
	h.player.Complete(0)
	h.player.Complete(0)

	if got := len(h.time.live()); got != 1 {
		t.Errorf("settle timers = %d, want 1", got)
	}
	dropped := findEvents(h.drain(), EventSignalDropped)
	if len(dropped) != 2 {
		t.Fatalf("signal_dropped events = %d, want 2", len(dropped))
	}
	if !errors.Is(dropped[0].Err, ErrDuplicateAdvance) || dropped[0].Reason == "" {
		t.Errorf("drop error = %v (%q), want ErrDuplicateAdvance", dropped[0].Err, dropped[0].Reason)
	}

	h.time.fire()
	if snap := h.player.State(); snap.SceneID != "b" {
		t.Errorf("scene = %q, want b after one advance", snap.SceneID)
	}
}

func TestPlayer_JumpCancelsSettle(t *testing.T) {
	h := startPlayer(t, Options{})
	h.player.Complete(0)

	h.player.JumpTo(2)
	if got := len(h.time.live()); got != 0 {
		t.Errorf("live settle timers after jump = %d, want 0", got)
	}

	// A callback already in flight when the jump happened must not move playback.
	h.time.forceFire()
	snap := h.player.State()
	if snap.SceneID != "c" || snap.Phase != PhaseContent {
		t.Errorf("after stale settle = (%q, %q), want (c, content)", snap.SceneID, snap.Phase)
	}
	if len(findEvents(h.drain(), EventSignalDropped)) != 1 {
		t.Error("stale settle not reported as dropped")
	}
}

func TestPlayer_TimerExpiryCancelsSettle(t *testing.T) {
	h := startPlayer(t, Options{})
	h.advance(t, 45)
	h.player.Complete(0)

	snap := h.advance(t, 5)
	if snap.SceneID != "b" {
		t.Fatalf("scene = %q, want b", snap.SceneID)
	}
	if got := len(h.time.live()); got != 0 {
		t.Errorf("live settle timers = %d, want 0", got)
	}
}

func TestPlayer_CompletionDuringIntroDropped(t *testing.T) {
	h := startPlayer(t, Options{})
	h.player.JumpTo(1)
	h.drain()

	snap := h.player.Complete(0)
	if snap.AdvancePending {
		t.Error("completion accepted during intro")
	}
	dropped := findEvents(h.drain(), EventSignalDropped)
	if len(dropped) != 1 || !errors.Is(dropped[0].Err, ErrNotInContent) {
		t.Errorf("dropped = %+v, want ErrNotInContent", dropped)
	}
}

func TestPlayer_CompletionWhilePaused(t *testing.T) {
	h := startPlayer(t, Options{})
	h.player.Pause()

	h.player.Complete(0)
	h.time.fire()

	snap := h.player.State()
	if snap.SceneID != "b" || snap.Playing {
		t.Errorf("after settle while paused = (%q, playing %v), want (b, false)", snap.SceneID, snap.Playing)
	}
	if h.time.armed() {
		t.Error("settle re-armed the clock while paused")
	}
}

func TestPlayer_ImmediateSettle(t *testing.T) {
	h := startPlayer(t, Options{SettleDelay: -1})

	snap := h.player.Complete(0)
	if snap.SceneID != "b" || snap.AdvancePending {
		t.Errorf("Complete() = (%q, pending %v), want (b, false)", snap.SceneID, snap.AdvancePending)
	}
	if got := len(h.time.live()); got != 0 {
		t.Errorf("settle timers = %d, want 0", got)
	}
}

// ─── Subscribers ────────────────────────────────────────────────────────────

func TestPlayer_SlowSubscriberDrops(t *testing.T) {
	h := startPlayer(t, Options{})
	slow, cancel := h.player.Subscribe(1)
	defer cancel()

	h.advance(t, 5)
	if h.player.DroppedEvents() == 0 {
		t.Error("DroppedEvents() = 0, want drops for a full subscriber")
	}
	if len(slow) != 1 {
		t.Errorf("slow subscriber buffered %d events, want 1", len(slow))
	}
}

func TestPlayer_UnsubscribeClosesChannel(t *testing.T) {
	h := startPlayer(t, Options{})
	ch, cancel := h.player.Subscribe(4)
	cancel()
	cancel()

	for range ch {
	}
	h.player.Skip()
}
