package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nmoncrief/meshgate/internal/events"
	"github.com/nmoncrief/meshgate/internal/infrastructure/config"
	"github.com/nmoncrief/meshgate/internal/infrastructure/logging"
	"github.com/nmoncrief/meshgate/internal/mesh"
	"github.com/nmoncrief/meshgate/internal/mesh/meshsim"
	"github.com/nmoncrief/meshgate/internal/store"
)

type fakeMessageStore struct {
	rows    []store.Message
	failErr error
}

func (f *fakeMessageStore) InsertBatch(_ context.Context, msgs []store.Message) error {
	if f.failErr != nil {
		return f.failErr
	}
	f.rows = append(f.rows, msgs...)
	return nil
}

func (f *fakeMessageStore) ListByChannel(context.Context, store.MessageQuery) ([]store.Message, error) {
	return nil, nil
}

type fakeBroadcaster struct {
	published []events.Message
}

func (f *fakeBroadcaster) Publish(msg events.Message) bool {
	f.published = append(f.published, msg)
	return true
}

func testWorkersConfig() config.WorkersConfig {
	return config.WorkersConfig{
		MessagePollInterval:  2,
		RepeaterPollInterval: 900,
		BackoffBase:          2,
		BackoffMax:           60,
	}
}

func newTestDrainer(device *meshsim.Device, msgs *fakeMessageStore, bus *fakeBroadcaster) *Drainer {
	return NewDrainer(
		mesh.NewGate(),
		device,
		mesh.Profile{Transport: "tcp"},
		msgs,
		bus,
		testWorkersConfig(),
		logging.Default(),
	)
}

func TestSplitSenderText(t *testing.T) {
	tests := []struct {
		text       string
		wantSender string
		wantBody   string
	}{
		{"alice: hello there", "alice", "hello there"},
		{"alice: a: nested", "alice", "a: nested"},
		{"no separator here", "", "no separator here"},
		{"colon:but-no-space", "", "colon:but-no-space"},
		{": leading", "", "leading"},
		{"", "", ""},
	}
	for _, tt := range tests {
		sender, body := splitSenderText(tt.text)
		if sender != tt.wantSender || body != tt.wantBody {
			t.Errorf("splitSenderText(%q) = (%q, %q), want (%q, %q)",
				tt.text, sender, body, tt.wantSender, tt.wantBody)
		}
	}
}

func TestDrainOnce(t *testing.T) {
	device := meshsim.NewDevice()
	device.SetSlot(mesh.ChannelSlot{Index: 0, Name: "General", Secret: mesh.DeriveChannelSecret("General")})
	device.AddContact(mesh.Contact{Name: "bob", PublicKey: "deadbeef00112233"}, "")

	device.QueueMessage(mesh.RawMessage{
		Kind:            mesh.KindChannel,
		ChannelIndex:    0,
		Text:            "alice: hello everyone",
		SenderTimestamp: 1700000000,
		PathLen:         3,
		SNR:             7.25,
	})
	device.QueueMessage(mesh.RawMessage{
		Kind:         mesh.KindDirect,
		Text:         "direct hello",
		PubKeyPrefix: "DEADBEEF0011",
	})

	msgs := &fakeMessageStore{}
	bus := &fakeBroadcaster{}
	drainer := newTestDrainer(device, msgs, bus)

	count, err := drainer.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("DrainOnce() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("DrainOnce() = %d, want 2", count)
	}

	if len(msgs.rows) != 2 {
		t.Fatalf("persisted %d rows, want 2", len(msgs.rows))
	}

	ch := msgs.rows[0]
	if ch.Kind != "CHANNEL" || ch.ChannelName != "General" {
		t.Errorf("channel row = %+v", ch)
	}
	if ch.SenderName != "alice" || ch.Text != "hello everyone" {
		t.Errorf("sender split: sender=%q text=%q", ch.SenderName, ch.Text)
	}
	if ch.HopCount != 3 || ch.SNR != 7.25 {
		t.Errorf("radio metadata not carried: %+v", ch)
	}

	direct := msgs.rows[1]
	if direct.Kind != "DIRECT" || direct.ChannelIndex != -1 {
		t.Errorf("direct row = %+v", direct)
	}
	if direct.SenderName != "bob" || direct.SenderKeyPrefix != "deadbeef0011" {
		t.Errorf("direct sender resolution: name=%q prefix=%q", direct.SenderName, direct.SenderKeyPrefix)
	}
	if direct.Text != "direct hello" {
		t.Errorf("direct text = %q", direct.Text)
	}

	if len(bus.published) != 2 {
		t.Fatalf("published %d events, want 2", len(bus.published))
	}
	if bus.published[0].SenderName != "alice" || bus.published[0].Text != "hello everyone" {
		t.Errorf("published event = %+v", bus.published[0])
	}
}

func TestDrainOnceEmptyQueue(t *testing.T) {
	device := meshsim.NewDevice()
	msgs := &fakeMessageStore{}
	bus := &fakeBroadcaster{}
	drainer := newTestDrainer(device, msgs, bus)

	count, err := drainer.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("DrainOnce() error = %v", err)
	}
	if count != 0 || len(bus.published) != 0 {
		t.Errorf("empty queue drained %d, published %d", count, len(bus.published))
	}
}

func TestDrainOnceCapsPerCycle(t *testing.T) {
	device := meshsim.NewDevice()
	for i := 0; i < maxDrainPerCycle+50; i++ {
		device.QueueMessage(mesh.RawMessage{Kind: mesh.KindChannel, Text: "x"})
	}

	msgs := &fakeMessageStore{}
	drainer := newTestDrainer(device, msgs, &fakeBroadcaster{})

	count, err := drainer.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("DrainOnce() error = %v", err)
	}
	if count != maxDrainPerCycle {
		t.Errorf("DrainOnce() = %d, want cap %d", count, maxDrainPerCycle)
	}

	// The remainder is picked up next cycle.
	count, err = drainer.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("second DrainOnce() error = %v", err)
	}
	if count != 50 {
		t.Errorf("second DrainOnce() = %d, want 50", count)
	}
}

func TestDrainOnceConnectFailure(t *testing.T) {
	device := meshsim.NewDevice()
	device.FailNextConnect(mesh.ErrConnectionFailed)
	drainer := newTestDrainer(device, &fakeMessageStore{}, &fakeBroadcaster{})

	_, err := drainer.DrainOnce(context.Background())
	if !errors.Is(err, mesh.ErrConnectionFailed) {
		t.Errorf("DrainOnce() error = %v, want ErrConnectionFailed", err)
	}
}

func TestDrainOnceInsertFailure(t *testing.T) {
	device := meshsim.NewDevice()
	device.QueueMessage(mesh.RawMessage{Kind: mesh.KindChannel, Text: "x"})

	wantErr := errors.New("disk full")
	msgs := &fakeMessageStore{failErr: wantErr}
	bus := &fakeBroadcaster{}
	drainer := newTestDrainer(device, msgs, bus)

	_, err := drainer.DrainOnce(context.Background())
	if !errors.Is(err, wantErr) {
		t.Fatalf("DrainOnce() error = %v, want %v", err, wantErr)
	}
	if len(bus.published) != 0 {
		t.Error("nothing may be broadcast when persistence fails")
	}
}

func TestDrainOnceReleasesGate(t *testing.T) {
	device := meshsim.NewDevice()
	gate := mesh.NewGate()
	drainer := NewDrainer(gate, device, mesh.Profile{}, &fakeMessageStore{}, &fakeBroadcaster{}, testWorkersConfig(), logging.Default())

	if _, err := drainer.DrainOnce(context.Background()); err != nil {
		t.Fatalf("DrainOnce() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := gate.Acquire(ctx); err != nil {
		t.Fatalf("gate not released after drain: %v", err)
	}
	gate.Release()
}
