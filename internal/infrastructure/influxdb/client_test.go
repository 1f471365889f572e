package influxdb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nmoncrief/meshgate/internal/infrastructure/config"
)

func TestConnectDisabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestDisconnectedClientIsInert(t *testing.T) {
	c := &Client{}

	if c.IsConnected() {
		t.Error("zero-value client must report disconnected")
	}

	// Writes on a disconnected client are dropped, not panics.
	c.WriteRepeaterMetric("r1", "hilltop", "battery_voltage", 4.0, time.Now())

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on zero-value client error = %v", err)
	}
}
