package events

import (
	"context"
	"sync"
	"time"

	"github.com/nmoncrief/meshgate/internal/infrastructure/config"
	"github.com/nmoncrief/meshgate/internal/infrastructure/logging"
)

// Message is a new-message event as delivered to consumers.
type Message struct {
	ReceivedAt      time.Time `json:"received_at"`
	Kind            string    `json:"kind"`
	ChannelIndex    int       `json:"channel_idx"`
	ChannelName     string    `json:"channel_name"`
	SenderTimestamp int64     `json:"sender_timestamp"`
	SenderName      string    `json:"sender_name"`
	HopCount        int       `json:"hop_count"`
	SNR             float64   `json:"snr"`
	Text            string    `json:"text"`
}

// subscriberBuffer is the per-subscriber channel depth. A subscriber whose
// buffer fills is considered dead and removed.
const subscriberBuffer = 64

// Subscriber is one registered consumer.
type Subscriber struct {
	// Identity is the authenticated principal, for logging.
	Identity string

	ch chan Message
}

// C returns the subscriber's delivery channel. It is closed when the
// subscriber is removed from the bus.
func (s *Subscriber) C() <-chan Message {
	return s.ch
}

// Bus is the bounded fan-out bus.
type Bus struct {
	queueSize     int
	batchSize     int
	firstItemWait time.Duration
	debounce      time.Duration
	log           *logging.Logger

	queue chan Message

	mu   sync.Mutex
	subs map[*Subscriber]struct{}

	dropped int64
}

// NewBus creates an event bus from configuration.
func NewBus(cfg config.EventsConfig, log *logging.Logger) *Bus {
	return &Bus{
		queueSize:     cfg.QueueSize,
		batchSize:     cfg.BatchSize,
		firstItemWait: time.Duration(cfg.FirstItemWait) * time.Second,
		debounce:      time.Duration(cfg.DebounceInterval) * time.Second,
		log:           log.With("component", "event_bus"),
		queue:         make(chan Message, cfg.QueueSize),
		subs:          make(map[*Subscriber]struct{}),
	}
}

// Publish enqueues one event without blocking. It reports whether the event
// was accepted; a full queue drops the new event, keeping the producer's
// device work unaffected.
func (b *Bus) Publish(msg Message) bool {
	select {
	case b.queue <- msg:
		return true
	default:
		b.mu.Lock()
		b.dropped++
		dropped := b.dropped
		b.mu.Unlock()
		b.log.Warn("event queue full, dropping event",
			"channel", msg.ChannelName,
			"dropped_total", dropped,
		)
		return false
	}
}

// Subscribe registers a consumer under the given identity.
func (b *Bus) Subscribe(identity string) *Subscriber {
	sub := &Subscriber{
		Identity: identity,
		ch:       make(chan Message, subscriberBuffer),
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	count := len(b.subs)
	b.mu.Unlock()

	b.log.Debug("subscriber registered", "identity", identity, "subscribers", count)
	return sub
}

// Unsubscribe removes a consumer and closes its channel. Safe to call for
// a subscriber the bus already removed.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.remove(sub, "unsubscribed")
}

// SubscriberCount returns the number of registered consumers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped returns how many events have been dropped on a full queue.
func (b *Bus) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Run drains the queue and delivers debounced batches until ctx is done.
// It owns delivery: producers only touch the queue, so a slow subscriber
// can never stall a producer.
func (b *Bus) Run(ctx context.Context) {
	b.log.Info("event broadcaster started",
		"queue_size", b.queueSize,
		"batch_size", b.batchSize,
	)
	for {
		first, ok := b.waitFirst(ctx)
		if !ok {
			if ctx.Err() != nil {
				b.log.Info("event broadcaster stopped")
				return
			}
			continue
		}
		batch := b.collect(ctx, first)
		b.deliver(batch)
		if ctx.Err() != nil {
			b.log.Info("event broadcaster stopped")
			return
		}
	}
}

// waitFirst blocks for the first event of a batch, waking periodically so
// shutdown is noticed even on an idle queue.
func (b *Bus) waitFirst(ctx context.Context) (Message, bool) {
	timer := time.NewTimer(b.firstItemWait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return Message{}, false
	case msg := <-b.queue:
		return msg, true
	case <-timer.C:
		return Message{}, false
	}
}

// collect gathers queued events after the first until the queue stays quiet
// for the debounce interval or the batch is full.
func (b *Bus) collect(ctx context.Context, first Message) []Message {
	batch := []Message{first}
	for len(batch) < b.batchSize {
		timer := time.NewTimer(b.debounce)
		select {
		case <-ctx.Done():
			timer.Stop()
			return batch
		case msg := <-b.queue:
			timer.Stop()
			batch = append(batch, msg)
		case <-timer.C:
			return batch
		}
	}
	return batch
}

// deliver sends every event in the batch to every subscriber. Subscribers
// that cannot accept are removed.
func (b *Bus) deliver(batch []Message) {
	b.mu.Lock()
	subs := make([]*Subscriber, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	if len(subs) == 0 {
		return
	}

	for _, sub := range subs {
		for _, msg := range batch {
			if !b.trySend(sub, msg) {
				break
			}
		}
	}
	b.log.Debug("batch delivered", "events", len(batch), "subscribers", len(subs))
}

// trySend delivers one event without blocking. On a full buffer the
// subscriber is removed and trySend reports false.
func (b *Bus) trySend(sub *Subscriber, msg Message) (ok bool) {
	// The subscriber may have been removed and its channel closed between
	// the snapshot and this send.
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case sub.ch <- msg:
		return true
	default:
		b.remove(sub, "delivery buffer full")
		return false
	}
}

// remove drops a subscriber from the registry and closes its channel if it
// was still registered. The registry check makes the close exactly-once.
func (b *Bus) remove(sub *Subscriber, reason string) {
	b.mu.Lock()
	_, present := b.subs[sub]
	if present {
		delete(b.subs, sub)
	}
	count := len(b.subs)
	b.mu.Unlock()

	if present {
		close(sub.ch)
		b.log.Debug("subscriber removed",
			"identity", sub.Identity,
			"reason", reason,
			"subscribers", count,
		)
	}
}
