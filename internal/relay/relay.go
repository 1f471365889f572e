// Package relay republishes mesh messages to an MQTT broker so other home
// systems can react to them without speaking the companion-device protocol.
//
// The relay is just another event bus subscriber: it sits next to the
// WebSocket sessions and serialises each event to JSON under the configured
// topic prefix. Publish failures are logged and dropped; the broker is a
// consumer, never a dependency.
package relay

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/nmoncrief/meshgate/internal/events"
	"github.com/nmoncrief/meshgate/internal/infrastructure/config"
	"github.com/nmoncrief/meshgate/internal/infrastructure/logging"
)

// publisher is the slice of the MQTT client the relay needs.
type publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Relay forwards event bus messages to MQTT.
type Relay struct {
	bus         *events.Bus
	client      publisher
	topicPrefix string
	qos         byte
	log         *logging.Logger
}

// New creates a relay from MQTT configuration.
func New(bus *events.Bus, client publisher, cfg config.MQTTConfig, log *logging.Logger) *Relay {
	return &Relay{
		bus:         bus,
		client:      client,
		topicPrefix: strings.TrimSuffix(cfg.TopicPrefix, "/"),
		qos:         byte(cfg.QoS),
		log:         log.With("component", "mqtt_relay"),
	}
}

// Run subscribes to the bus and forwards events until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	sub := r.bus.Subscribe("mqtt-relay")
	defer r.bus.Unsubscribe(sub)

	r.log.Info("mqtt relay started", "topic_prefix", r.topicPrefix)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("mqtt relay stopped")
			return
		case msg, ok := <-sub.C():
			if !ok {
				// The bus removed us, likely because the broker stalled
				// long enough to fill the delivery buffer.
				r.log.Warn("mqtt relay evicted from event bus")
				return
			}
			r.forward(msg)
		}
	}
}

// forward publishes one event. Failures are logged; the mesh side never
// waits on the broker.
func (r *Relay) forward(msg events.Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("marshalling event", "error", err)
		return
	}

	if err := r.client.Publish(r.Topic(msg), payload, r.qos, false); err != nil {
		r.log.Warn("publish failed, dropping event",
			"channel", msg.ChannelName,
			"error", err,
		)
	}
}

// Topic builds the publish topic for an event: channel messages go under
// messages/channel/<name>, direct messages under messages/direct.
func (r *Relay) Topic(msg events.Message) string {
	if msg.Kind == "DIRECT" {
		return r.topicPrefix + "/messages/direct"
	}
	name := sanitizeTopicSegment(msg.ChannelName)
	if name == "" {
		name = "unknown"
	}
	return r.topicPrefix + "/messages/channel/" + name
}

// sanitizeTopicSegment makes a channel name safe as a single MQTT topic
// level: lowercased, spaces to dashes, separator and wildcard characters
// stripped.
func sanitizeTopicSegment(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "-")
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#', '\x00':
			return -1
		}
		return r
	}, name)
}
