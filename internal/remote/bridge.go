package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/showloop/internal/catalog"
	"github.com/nerrad567/showloop/internal/infrastructure/mqtt"
	"github.com/nerrad567/showloop/internal/playback"
)

// Source tags commands arriving over MQTT.
const Source = "mqtt"

// Client is the subset of *mqtt.Client the bridge needs.
type Client interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	PublishJSON(topic string, v any, retained bool) error
}

// Executor runs commands. Implemented by *playback.Player.
type Executor interface {
	Execute(cmd playback.Command) playback.Snapshot
}

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Bridge connects one player to its MQTT topics.
type Bridge struct {
	client  Client
	exec    Executor
	catalog *catalog.Catalog
	topics  mqtt.Topics
	qos     byte
	logger  Logger
}

// NewBridge creates a bridge for playerID. Call Start to subscribe.
func NewBridge(client Client, exec Executor, cat *catalog.Catalog, playerID string, qos byte) *Bridge {
	return &Bridge{
		client:  client,
		exec:    exec,
		catalog: cat,
		topics:  mqtt.Topics{Player: playerID},
		qos:     qos,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// Start subscribes to the command and completion topics. The MQTT client
// restores these subscriptions after a reconnect.
func (b *Bridge) Start() error {
	if err := b.client.Subscribe(b.topics.Command(), b.qos, b.HandleCommand); err != nil {
		return fmt.Errorf("subscribing to commands: %w", err)
	}
	if err := b.client.Subscribe(b.topics.Complete(), b.qos, b.HandleComplete); err != nil {
		return fmt.Errorf("subscribing to completions: %w", err)
	}
	return nil
}

// Stop drops the inbound subscriptions. Failures are logged; the broker
// forgets them anyway when the session ends.
func (b *Bridge) Stop() {
	for _, topic := range []string{b.topics.Command(), b.topics.Complete()} {
		if err := b.client.Unsubscribe(topic); err != nil {
			b.logger.Debug("mqtt unsubscribe failed", "topic", topic, "error", err)
		}
	}
}

// inbound is a command message. actor is optional and recorded in history.
type inbound struct {
	playback.Request
	Actor string `json:"actor,omitempty"`
}

// HandleCommand decodes and executes a message from the command topic.
func (b *Bridge) HandleCommand(_ string, payload []byte) error {
	var msg inbound
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	cmd, err := msg.Resolve(b.catalog, Source, msg.Actor)
	if err != nil {
		return err
	}

	b.logger.Debug("mqtt command", "command", string(cmd.Kind), "actor", cmd.Actor)
	b.exec.Execute(cmd)
	return nil
}

// HandleComplete executes a completion signal. An empty payload addresses
// the current activation.
func (b *Bridge) HandleComplete(_ string, payload []byte) error {
	var msg struct {
		Activation uint64 `json:"activation"`
		Actor      string `json:"actor,omitempty"`
	}
	if len(bytes.TrimSpace(payload)) > 0 {
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
	}

	b.exec.Execute(playback.Command{
		Kind:       playback.CommandComplete,
		Activation: msg.Activation,
		Source:     Source,
		Actor:      msg.Actor,
	})
	return nil
}

// Run publishes player events until ctx is cancelled or events is closed,
// then stops accepting commands. Publish failures are logged; the broker
// catches up on the next state.
func (b *Bridge) Run(ctx context.Context, events <-chan playback.Event) error {
	defer b.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			b.Publish(ev)
		}
	}
}

// Publish mirrors a single event onto the broker.
func (b *Bridge) Publish(ev playback.Event) {
	if ev.Kind == playback.EventTick {
		return
	}

	if err := b.client.PublishJSON(b.topics.Event(string(ev.Kind)), ev, false); err != nil {
		b.logger.Warn("mqtt event publish failed", "kind", string(ev.Kind), "error", err)
	}

	switch ev.Kind {
	case playback.EventPhaseStarted, playback.EventPlaybackChanged, playback.EventAdvanceScheduled:
		if err := b.client.PublishJSON(b.topics.State(), ev.State, true); err != nil {
			b.logger.Warn("mqtt state publish failed", "error", err)
		}
	}
}
