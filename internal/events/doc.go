// Package events fans out new-message events to live consumers: WebSocket
// sessions and the optional MQTT relay.
//
// Producers enqueue onto a bounded queue and never block; when the queue is
// full the newest event is dropped with a warning. A single broadcaster
// goroutine drains the queue in debounced batches so a burst of drained
// messages becomes a few delivery passes rather than per-message wakeups.
// Delivery to a subscriber never blocks either: a subscriber that cannot
// keep up is removed from the registry.
package events
