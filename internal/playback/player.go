package playback

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/showloop/internal/catalog"
)

const (
	// DefaultSettleDelay is the pause between an accepted completion and the advance.
	DefaultSettleDelay = 1000 * time.Millisecond

	// DefaultEventBuffer is the per-subscriber channel size used when Subscribe gets <= 0.
	DefaultEventBuffer = 64
)

// Options configures a Player.
type Options struct {
	// Quantum is the clock tick interval. Zero selects DefaultQuantum.
	Quantum time.Duration

	// SettleDelay is the wait between an accepted completion and the advance.
	// Zero selects DefaultSettleDelay; negative advances immediately.
	SettleDelay time.Duration

	// JumpPolicy decides the playback flags after a jump. Empty selects JumpResume.
	JumpPolicy JumpPolicy

	// TimeSource is the clock. Nil selects SystemTime.
	TimeSource TimeSource

	// Logger receives diagnostics. Nil discards them.
	Logger Logger
}

type message struct {
	cmd    Command
	reply  chan Snapshot
	settle uint64
}

type subscriber struct {
	ch chan Event
}

// Player drives a Sequencer from a single event loop.
//
// Commands, clock ticks, and settle callbacks are all serialised through one
// channel consumed by Run, so there is exactly one writer of playback state.
// Every mutation is followed by an Event published to all subscribers.
//
// Thread Safety:
//   - Execute and its helpers may be called from any goroutine.
//   - Subscribe and the returned cancel function may be called from any goroutine.
type Player struct {
	seq         *Sequencer
	clock       *Clock
	src         TimeSource
	quantumMs   int64
	settleDelay time.Duration
	jumpPolicy  JumpPolicy
	logger      Logger

	inbox   chan message
	started atomic.Bool
	closed  chan struct{}

	// Loop-owned.
	cancelSettle func() bool

	mu      sync.RWMutex
	last    Snapshot
	subs    map[uint64]*subscriber
	nextSub uint64
	dropped atomic.Uint64
}

// NewPlayer creates a player over cat. It does nothing until Run is called.
func NewPlayer(cat *catalog.Catalog, opts Options) (*Player, error) {
	seq, err := NewSequencer(cat)
	if err != nil {
		return nil, err
	}

	if opts.TimeSource == nil {
		opts.TimeSource = SystemTime()
	}
	if opts.Quantum <= 0 {
		opts.Quantum = DefaultQuantum
	}
	if opts.SettleDelay == 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.JumpPolicy == "" {
		opts.JumpPolicy = JumpResume
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	p := &Player{
		seq:         seq,
		clock:       NewClock(opts.TimeSource, opts.Quantum),
		src:         opts.TimeSource,
		quantumMs:   opts.Quantum.Milliseconds(),
		settleDelay: opts.SettleDelay,
		jumpPolicy:  opts.JumpPolicy,
		logger:      opts.Logger,
		inbox:       make(chan message),
		closed:      make(chan struct{}),
		subs:        make(map[uint64]*subscriber),
	}
	p.last = seq.Snapshot()
	return p, nil
}

// Run processes commands and clock ticks until ctx is cancelled.
// It may only be called once. Commands submitted before Run starts block
// until it does; commands submitted after it returns get the last snapshot.
func (p *Player) Run(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(p.closed)
	defer p.stopSettle()
	defer p.clock.Stop()

	p.syncClock()
	p.publish(Event{Kind: EventPhaseStarted, Cause: CauseStart})
	p.logger.Info("playback started",
		"scene", p.seq.Scene().ID,
		"quantum_ms", p.quantumMs,
		"settle_delay", p.settleDelay.String(),
	)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("playback stopped", "scene", p.seq.Scene().ID)
			return nil

		case <-p.clock.C():
			p.handleTick()

		case msg := <-p.inbox:
			if msg.reply == nil {
				p.handleSettle(msg.settle)
				continue
			}
			msg.reply <- p.apply(msg.cmd)
		}
	}
}

// Execute submits a command and waits for the resulting snapshot.
// Invalid commands are absorbed: the snapshot is returned unchanged.
func (p *Player) Execute(cmd Command) Snapshot {
	reply := make(chan Snapshot, 1)
	select {
	case p.inbox <- message{cmd: cmd, reply: reply}:
	case <-p.closed:
		return p.Last()
	}

	select {
	case snap := <-reply:
		return snap
	case <-p.closed:
		return p.Last()
	}
}

// Play resumes autoplay and clears the manual override.
func (p *Player) Play() Snapshot { return p.Execute(Command{Kind: CommandPlay}) }

// Pause stops the timer and sets the manual override.
func (p *Player) Pause() Snapshot { return p.Execute(Command{Kind: CommandPause}) }

// Toggle switches between Play and Pause.
func (p *Player) Toggle() Snapshot { return p.Execute(Command{Kind: CommandToggle}) }

// JumpTo moves to scene k (wrapped) and applies the jump policy.
func (p *Player) JumpTo(k int) Snapshot { return p.Execute(Command{Kind: CommandJump, Index: k}) }

// Skip moves to the next scene.
func (p *Player) Skip() Snapshot { return p.Execute(Command{Kind: CommandSkip}) }

// Reload restarts from the first scene.
func (p *Player) Reload() Snapshot { return p.Execute(Command{Kind: CommandReload}) }

// Complete reports that the content of activation token has finished.
// Zero addresses the current activation.
func (p *Player) Complete(token uint64) Snapshot {
	return p.Execute(Command{Kind: CommandComplete, Activation: token})
}

// State returns the current snapshot, read through the event loop.
func (p *Player) State() Snapshot { return p.Execute(Command{Kind: commandState}) }

// Last returns the most recently published snapshot without touching the loop.
func (p *Player) Last() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

// Subscribe registers for events. Events are dropped, not queued, when the
// subscriber's buffer is full. cancel unregisters and closes the channel.
func (p *Player) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}

	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	sub := &subscriber{ch: make(chan Event, buffer)}
	p.subs[id] = sub
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			close(sub.ch)
			p.mu.Unlock()
		})
	}
	return sub.ch, cancel
}

// DroppedEvents returns how many events were discarded for slow subscribers.
func (p *Player) DroppedEvents() uint64 {
	return p.dropped.Load()
}

// ─── Loop internals ─────────────────────────────────────────────

func (p *Player) apply(cmd Command) Snapshot {
	if cmd.Kind == commandState {
		return p.seq.Snapshot()
	}

	before := p.seq.Activation()
	playing, override := p.seq.Playing(), p.seq.Override()
	var cause Cause

	c := cmd
	p.publish(Event{Kind: EventCommand, Command: &c})

	switch cmd.Kind {
	case CommandPlay:
		p.resume()

	case CommandPause:
		p.hold()

	case CommandToggle:
		if p.seq.Running() {
			p.hold()
		} else {
			p.resume()
		}

	case CommandJump:
		if err := p.seq.Jump(cmd.Index); err != nil {
			p.logger.Debug("jump target wrapped", "index", cmd.Index, "error", err)
		}
		cause = CauseJump
		if p.jumpPolicy == JumpPause {
			p.hold()
		} else {
			p.resume()
		}

	case CommandSkip:
		p.seq.Skip()
		cause = CauseSkip

	case CommandReload:
		p.seq.Reset()
		cause = CauseReload

	case CommandComplete:
		cause = CauseCompletion
		p.complete(c)

	default:
		p.logger.Warn("unknown playback command ignored", "command", string(cmd.Kind), "source", cmd.Source)
	}

	p.afterMutation(before, cause, playing, override)
	return p.seq.Snapshot()
}

func (p *Player) resume() {
	p.seq.SetPlaying(true)
	p.seq.SetOverride(false)
}

func (p *Player) hold() {
	p.seq.SetPlaying(false)
	p.seq.SetOverride(true)
}

func (p *Player) complete(cmd Command) {
	token, err := p.seq.Complete(cmd.Activation)
	if err != nil {
		p.logger.Debug("completion signal dropped",
			"activation", cmd.Activation,
			"current", p.seq.Activation(),
			"error", err,
		)
		p.publish(Event{Kind: EventSignalDropped, Command: &cmd, Err: err})
		return
	}

	p.publish(Event{Kind: EventAdvanceScheduled, Command: &cmd})

	if p.settleDelay < 0 {
		if err := p.seq.Settle(token); err != nil {
			p.publish(Event{Kind: EventSignalDropped, Command: &cmd, Err: err})
		}
		return
	}

	p.stopSettle()
	done := p.closed
	p.cancelSettle = p.src.AfterFunc(p.settleDelay, func() {
		select {
		case p.inbox <- message{settle: token}:
		case <-done:
		}
	})
}

func (p *Player) handleSettle(token uint64) {
	before := p.seq.Activation()
	playing, override := p.seq.Playing(), p.seq.Override()

	if err := p.seq.Settle(token); err != nil {
		p.logger.Debug("stale settle dropped", "activation", token, "current", before)
		p.publish(Event{Kind: EventSignalDropped, Err: err})
		return
	}
	p.cancelSettle = nil
	p.afterMutation(before, CauseCompletion, playing, override)
}

func (p *Player) handleTick() {
	before := p.seq.Activation()
	playing, override := p.seq.Playing(), p.seq.Override()

	if !p.seq.Tick(p.quantumMs) {
		p.publish(Event{Kind: EventTick})
		return
	}
	p.afterMutation(before, CauseTimer, playing, override)
}

// afterMutation cancels work tied to a previous activation, re-arms the
// clock, and publishes the resulting events.
func (p *Player) afterMutation(before uint64, cause Cause, playing, override bool) {
	activated := p.seq.Activation() != before
	switch {
	case activated && p.seq.Running():
		p.stopSettle()
		p.clock.Restart()
	case activated:
		p.stopSettle()
		p.clock.Stop()
	default:
		p.syncClock()
	}

	if playing != p.seq.Playing() || override != p.seq.Override() {
		p.publish(Event{Kind: EventPlaybackChanged})
	}
	if activated {
		p.logger.Debug("phase started",
			"scene", p.seq.Scene().ID,
			"index", p.seq.Index(),
			"phase", string(p.seq.Phase()),
			"cause", string(cause),
			"activation", p.seq.Activation(),
		)
		p.publish(Event{Kind: EventPhaseStarted, Cause: cause})
	}
}

func (p *Player) syncClock() {
	if p.seq.Running() {
		p.clock.Start()
		return
	}
	p.clock.Stop()
}

func (p *Player) stopSettle() {
	if p.cancelSettle != nil {
		p.cancelSettle()
		p.cancelSettle = nil
	}
}

func (p *Player) publish(ev Event) {
	ev.State = p.seq.Snapshot()
	ev.At = p.src.Now()
	if ev.Err != nil {
		ev.Reason = ev.Err.Error()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.last = ev.State
	for _, sub := range p.subs {
		select {
		case sub.ch <- ev:
		default:
			p.dropped.Add(1)
		}
	}
}
