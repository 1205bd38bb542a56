//go:build integration

package mqtt

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nerrad567/showloop/internal/infrastructure/config"
)

// These tests require a running MQTT broker at 127.0.0.1:1883.
//
//	go test -tags=integration -count=1 -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestIntegration_SubscriptionTracking(t *testing.T) {
	client, err := Connect(integrationConfig("showloop-int-subs"), "itest")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topics := Topics{Player: "itest"}
	subs := []string{topics.Command(), topics.Complete(), topics.AllEvents()}
	noop := func(string, []byte) error { return nil }

	for _, topic := range subs {
		if err := client.Subscribe(topic, 1, noop); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}
	if client.SubscriptionCount() != len(subs) {
		t.Errorf("SubscriptionCount() = %d, want %d", client.SubscriptionCount(), len(subs))
	}

	if err := client.Unsubscribe(topics.AllEvents()); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if client.HasSubscription(topics.AllEvents()) {
		t.Error("subscription still tracked after Unsubscribe")
	}
}

func TestIntegration_StateRoundtrip(t *testing.T) {
	pub, err := Connect(integrationConfig("showloop-int-pub"), "itest")
	if err != nil {
		t.Fatalf("Connect() publisher error = %v", err)
	}
	defer pub.Close()

	sub, err := Connect(integrationConfig("showloop-int-sub"), "itest")
	if err != nil {
		t.Fatalf("Connect() subscriber error = %v", err)
	}
	defer sub.Close()

	topic := Topics{Player: "itest"}.State()
	received := make(chan []byte, 1)
	err = sub.Subscribe(topic, 1, func(_ string, payload []byte) error {
		select {
		case received <- payload:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	want := map[string]any{"scene_id": "dashboard", "is_playing": true}
	if err := pub.PublishJSON(topic, want, true); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	select {
	case raw := <-received:
		var got map[string]any
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Fatalf("payload not JSON: %v", err)
		}
		if got["scene_id"] != "dashboard" || got["is_playing"] != true {
			t.Errorf("payload = %v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for state message")
	}
}

func TestIntegration_HealthCheck(t *testing.T) {
	client, err := Connect(integrationConfig("showloop-int-health"), "itest")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.HealthCheck(t.Context()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
}
