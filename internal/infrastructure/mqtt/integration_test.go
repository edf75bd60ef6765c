//go:build integration

package mqtt

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/nerrad567/crib-agent/internal/infrastructure/config"
)

// Run with a local broker:
//
//	CRIB_TEST_MQTT_HOST=localhost go test -tags integration ./internal/infrastructure/mqtt/
func integrationConfig(t *testing.T) config.MQTTConfig {
	t.Helper()
	host := os.Getenv("CRIB_TEST_MQTT_HOST")
	if host == "" {
		t.Skip("CRIB_TEST_MQTT_HOST not set")
	}
	port := 1883
	if v := os.Getenv("CRIB_TEST_MQTT_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			port = p
		}
	}
	return config.MQTTConfig{
		Broker:    config.MQTTBrokerConfig{Host: host, Port: port, ClientID: "crib-integration-" + strconv.FormatInt(time.Now().UnixNano(), 36)},
		QoS:       1,
		KeepAlive: 10,
		Reconnect: config.MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 2},
	}
}

func TestIntegration_PublishSubscribe(t *testing.T) {
	cfg := integrationConfig(t)
	topics := Topics{Thing: cfg.Broker.ClientID}

	client, err := New(cfg, topics.Status())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer client.Close() //nolint:errcheck // Test cleanup

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	topic := "crib/" + cfg.Broker.ClientID + "/echo"
	received := make(chan []byte, 1)
	if err := client.Subscribe(topic, 1, func(_ string, payload []byte) error {
		received <- payload
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	ack := client.PublishAsync(topic, []byte(`{"state":{"lights":"on"}}`), 1)
	if err := ack.Wait(ctx); err != nil {
		t.Fatalf("publish ack error = %v", err)
	}

	select {
	case payload := <-received:
		if string(payload) != `{"state":{"lights":"on"}}` {
			t.Errorf("payload = %s", payload)
		}
	case <-ctx.Done():
		t.Fatal("message not received")
	}
}
