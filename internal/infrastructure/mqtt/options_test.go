package mqtt

import (
	"strings"
	"testing"

	"github.com/nmoncrief/meshgate/internal/infrastructure/config"
)

func testMQTTConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled:     true,
		Broker:      config.MQTTBroker{Host: "broker.local", Port: 1883, ClientID: "meshgate-test"},
		QoS:         1,
		TopicPrefix: "meshgate",
		Reconnect:   config.MQTTReconnect{InitialDelay: 1, MaxDelay: 30},
	}
}

func TestBuildClientOptions(t *testing.T) {
	opts := buildClientOptions(testMQTTConfig())

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://broker.local:1883" {
		t.Errorf("broker URL = %v", opts.Servers)
	}
	if opts.ClientID != "meshgate-test" {
		t.Errorf("client id = %q", opts.ClientID)
	}
	if !opts.AutoReconnect {
		t.Error("auto-reconnect must be enabled")
	}
}

func TestBuildClientOptionsTLS(t *testing.T) {
	cfg := testMQTTConfig()
	cfg.Broker.TLS = true
	opts := buildClientOptions(cfg)

	if opts.Servers[0].Scheme != "ssl" {
		t.Errorf("scheme = %q, want ssl", opts.Servers[0].Scheme)
	}
	if opts.TLSConfig == nil {
		t.Fatal("TLS config not set")
	}
}

func TestStatusTopic(t *testing.T) {
	cfg := testMQTTConfig()
	if got := statusTopic(cfg); got != "meshgate/system/status" {
		t.Errorf("statusTopic() = %q", got)
	}

	cfg.TopicPrefix = "home/mesh/"
	if got := statusTopic(cfg); got != "home/mesh/system/status" {
		t.Errorf("statusTopic() with trailing slash = %q", got)
	}
}

func TestConfigureLWT(t *testing.T) {
	cfg := testMQTTConfig()
	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg)

	if !opts.WillEnabled {
		t.Fatal("LWT not enabled")
	}
	if opts.WillTopic != "meshgate/system/status" {
		t.Errorf("will topic = %q", opts.WillTopic)
	}
	if !opts.WillRetained {
		t.Error("will must be retained")
	}
	if !strings.Contains(string(opts.WillPayload), `"status":"offline"`) {
		t.Errorf("will payload = %s", opts.WillPayload)
	}
}

func TestPublishValidation(t *testing.T) {
	c := &Client{cfg: testMQTTConfig()}

	if err := c.Publish("", []byte("x"), 0, false); err != ErrInvalidTopic {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("t", make([]byte, maxPayloadSize+1), 0, false); err == nil {
		t.Error("oversized payload must be rejected")
	}
}
