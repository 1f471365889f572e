package events

import (
	"context"
	"testing"
	"time"

	"github.com/nmoncrief/meshgate/internal/infrastructure/config"
	"github.com/nmoncrief/meshgate/internal/infrastructure/logging"
)

func testBus(queueSize int) *Bus {
	return NewBus(config.EventsConfig{
		QueueSize:        queueSize,
		BatchSize:        100,
		FirstItemWait:    1,
		DebounceInterval: 1,
	}, logging.Default())
}

func testEvent(text string) Message {
	return Message{
		ReceivedAt:  time.Now().UTC(),
		Kind:        "CHANNEL",
		ChannelName: "General",
		SenderName:  "alice",
		Text:        text,
	}
}

func TestBusPublishDropsWhenFull(t *testing.T) {
	bus := testBus(2)

	if !bus.Publish(testEvent("a")) || !bus.Publish(testEvent("b")) {
		t.Fatal("expected publishes within capacity to be accepted")
	}
	if bus.Publish(testEvent("c")) {
		t.Error("expected publish on full queue to be dropped")
	}
	if bus.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", bus.Dropped())
	}
}

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := testBus(10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Run(ctx)

	sub := bus.Subscribe("tester")
	defer bus.Unsubscribe(sub)

	bus.Publish(testEvent("hello"))

	select {
	case msg := <-sub.C():
		if msg.Text != "hello" || msg.ChannelName != "General" {
			t.Errorf("unexpected event: %+v", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestBusBatchesBurst(t *testing.T) {
	bus := testBus(10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := bus.Subscribe("tester")
	defer bus.Unsubscribe(sub)

	// Enqueue the burst before the broadcaster starts so it lands in one
	// delivery pass.
	for i := 0; i < 5; i++ {
		bus.Publish(testEvent(string(rune('a' + i))))
	}
	go bus.Run(ctx)

	for i := 0; i < 5; i++ {
		select {
		case msg := <-sub.C():
			if msg.Text != string(rune('a'+i)) {
				t.Errorf("event %d = %q, want %q", i, msg.Text, string(rune('a'+i)))
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("event %d was not delivered", i)
		}
	}
}

func TestBusRemovesStalledSubscriber(t *testing.T) {
	bus := testBus(subscriberBuffer * 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stalled := bus.Subscribe("stalled")
	if bus.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount() = %d, want 1", bus.SubscriberCount())
	}

	// Never read from the subscriber; overflow its buffer.
	for i := 0; i < subscriberBuffer+1; i++ {
		bus.Publish(testEvent("flood"))
	}
	go bus.Run(ctx)

	deadline := time.After(5 * time.Second)
	for bus.SubscriberCount() != 0 {
		select {
		case <-deadline:
			t.Fatal("stalled subscriber was not removed")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Its channel is closed exactly once; Unsubscribe after removal is a
	// no-op rather than a double close.
	bus.Unsubscribe(stalled)
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := testBus(10)
	sub := bus.Subscribe("tester")
	bus.Unsubscribe(sub)

	select {
	case _, ok := <-sub.C():
		if ok {
			t.Error("expected closed channel after Unsubscribe")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after Unsubscribe")
	}
	if bus.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", bus.SubscriberCount())
	}
}

func TestBusRunStopsOnContextCancel(t *testing.T) {
	bus := testBus(10)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		bus.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on context cancel")
	}
}
