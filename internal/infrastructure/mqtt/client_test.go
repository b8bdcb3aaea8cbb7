package mqtt

import (
	"errors"
	"testing"

	"github.com/oakmere/fleetstate/internal/infrastructure/config"
)

// newDisconnectedClient builds a client without a broker connection for
// validation tests.
func newDisconnectedClient() *Client {
	cfg := config.MQTTConfig{QoS: 1}
	cfg.Broker.ClientID = "test-client"
	opts := buildClientOptions(cfg)
	return &Client{
		cfg:           cfg,
		options:       opts,
		subscriptions: make(map[string]subscription),
	}
}

func TestPublishValidation(t *testing.T) {
	c := newDisconnectedClient()

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"invalid qos", "fleetstate/state/abc/updated", []byte("x"), 3, ErrInvalidQoS},
		{"oversized payload", "fleetstate/state/abc/updated", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "fleetstate/state/abc/updated", []byte("x"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := newDisconnectedClient()
	handler := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe() error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("fleetstate/ingest/+", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe() error = %v, want ErrInvalidQoS", err)
	}
	if err := c.Subscribe("fleetstate/ingest/+", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
	if err := c.Subscribe("fleetstate/ingest/+", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := config.MQTTConfig{QoS: 1}
	cfg.Broker.Host = "broker.local"
	cfg.Broker.Port = 8883
	cfg.Broker.TLS = true
	cfg.Broker.ClientID = "fleetstate-1"
	cfg.Auth.Username = "svc"
	cfg.Auth.Password = "secret"
	cfg.Reconnect.InitialDelay = 1
	cfg.Reconnect.MaxDelay = 60

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://broker.local:8883" {
		t.Errorf("broker URL = %v, want ssl://broker.local:8883", opts.Servers)
	}
	if opts.ClientID != "fleetstate-1" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "svc" {
		t.Errorf("Username = %q", opts.Username)
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig not set for TLS broker")
	}
}
