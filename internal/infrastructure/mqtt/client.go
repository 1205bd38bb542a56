package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/showloop/internal/infrastructure/config"
)

// Client is a player's connection to the broker.
//
// Subscriptions are remembered and replayed after every reconnect, and the
// retained status topic always reflects whether the player is reachable:
// "online" on connect, "offline/graceful" on Close, and the LWT
// "offline/unexpected" when the broker loses the session.
//
// All methods are safe for concurrent use.
type Client struct {
	client   pahomqtt.Client
	cfg      config.MQTTConfig
	playerID string

	routes    routeTable
	connected atomic.Bool

	mu           sync.RWMutex
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Logger is satisfied by *logging.Logger and *slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler receives one inbound message. A returned error is logged;
// it never affects acknowledgement.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker configured in cfg on behalf of playerID and
// blocks until the session is up or the connect timeout passes.
func Connect(cfg config.MQTTConfig, playerID string) (*Client, error) {
	c := &Client{cfg: cfg, playerID: playerID}

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID, playerID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.sessionUp() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.sessionDown(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		if log := c.log(); log != nil {
			log.Warn("MQTT reconnecting", "player", playerID)
		}
	})

	c.client = pahomqtt.NewClient(opts)
	if err := await(c.client.Connect(), defaultConnectTimeout, ErrConnectionFailed); err != nil {
		return nil, err
	}

	// The on-connect handler runs on its own goroutine and may lag behind.
	c.connected.Store(true)
	return c, nil
}

// await waits for a paho token and wraps any failure in sentinel.
func await(token pahomqtt.Token, timeout time.Duration, sentinel error) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: timeout after %v", sentinel, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}

func (c *Client) sessionUp() {
	c.connected.Store(true)

	c.routes.each(func(topic string, r route) {
		c.client.Subscribe(topic, r.qos, c.wrapHandler(r.handler))
	})
	c.client.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true,
		buildStatusPayload(statusOnline, c.cfg.Broker.ClientID, c.playerID, ""))

	c.mu.RLock()
	notify := c.onConnect
	c.mu.RUnlock()
	if notify != nil {
		notify()
	}
}

func (c *Client) sessionDown(err error) {
	c.connected.Store(false)

	c.mu.RLock()
	notify := c.onDisconnect
	c.mu.RUnlock()
	if notify != nil {
		notify(err)
	}
}

// Close announces a graceful shutdown on the status topic and disconnects.
// Closing an unconnected client is a no-op.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		payload := buildStatusPayload(statusOffline, c.cfg.Broker.ClientID, c.playerID, reasonGraceful)
		c.client.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true, payload).
			WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the session is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the last known session state.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.client.IsConnected()
}

// SetOnConnect registers a callback for the initial connect and every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect registers a callback for lost sessions.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onDisconnect = callback
	c.mu.Unlock()
}

// SetLogger enables logging of handler errors and panics.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// wrapHandler adapts a MessageHandler to paho, isolating handler panics.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if log := c.log(); log != nil {
					log.Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if log := c.log(); log != nil {
				log.Warn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
			}
		}
	}
}
