package mqtt

import (
	"fmt"
	"sync"
)

type route struct {
	qos     byte
	handler MessageHandler
}

// routeTable remembers subscriptions so they survive a reconnect.
// The zero value is ready to use.
type routeTable struct {
	mu     sync.RWMutex
	routes map[string]route
}

func (t *routeTable) add(topic string, r route) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.routes == nil {
		t.routes = make(map[string]route)
	}
	t.routes[topic] = r
}

func (t *routeTable) remove(topic string) {
	t.mu.Lock()
	delete(t.routes, topic)
	t.mu.Unlock()
}

func (t *routeTable) has(topic string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.routes[topic]
	return ok
}

func (t *routeTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.routes)
}

func (t *routeTable) each(fn func(topic string, r route)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for topic, r := range t.routes {
		fn(topic, r)
	}
}

// Subscribe routes messages on topic (wildcards allowed) to handler.
// The subscription is replayed after every reconnect until Unsubscribe.
//
//	client.Subscribe(mqtt.Topics{Player: "lobby"}.Command(), 1, bridge.HandleCommand)
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case handler == nil:
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	case !c.IsConnected():
		return ErrNotConnected
	}

	// Recorded first so a reconnect racing this call still restores it.
	c.routes.add(topic, route{qos: qos, handler: handler})
	err := await(c.client.Subscribe(topic, qos, c.wrapHandler(handler)), defaultPublishTimeout, ErrSubscribeFailed)
	if err != nil {
		c.routes.remove(topic)
	}
	return err
}

// Unsubscribe stops delivery for a topic previously passed to Subscribe.
// Messages already in flight may still arrive.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.routes.remove(topic)
	return await(c.client.Unsubscribe(topic), defaultPublishTimeout, ErrUnsubscribeFailed)
}

// SubscriptionCount returns the number of remembered subscriptions.
func (c *Client) SubscriptionCount() int {
	return c.routes.len()
}

// HasSubscription reports whether exactly topic is subscribed.
func (c *Client) HasSubscription(topic string) bool {
	return c.routes.has(topic)
}
