// Package mqtt wraps paho.mqtt.golang for the outbound message relay.
//
// meshgate only publishes: mesh messages fan out to the broker for other
// home systems to consume, and a retained status topic plus an LWT let
// those systems see when the gateway goes offline. Reconnection is
// delegated to paho's auto-reconnect.
package mqtt
