package mesh_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nmoncrief/meshgate/internal/infrastructure/logging"
	"github.com/nmoncrief/meshgate/internal/mesh"
	"github.com/nmoncrief/meshgate/internal/mesh/meshsim"
)

func newTestService(t *testing.T) (*mesh.ChannelService, *meshsim.Device) {
	t.Helper()
	device := meshsim.NewDevice()
	cache := mesh.NewSlotCache(12*time.Hour, logging.Default())
	svc := mesh.NewChannelService(mesh.NewGate(), device, mesh.Profile{Transport: "tcp"}, cache, logging.Default())
	return svc, device
}

func TestChannelServiceCreate(t *testing.T) {
	svc, device := newTestService(t)

	slots, err := svc.Create(context.Background(), "General")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(slots) != 1 {
		t.Fatalf("Create() returned %d slots, want 1", len(slots))
	}
	if slots[0].Index != 0 || slots[0].Name != "General" {
		t.Errorf("unexpected slot: %+v", slots[0])
	}
	if slots[0].Secret != mesh.DeriveChannelSecret("General") {
		t.Error("slot secret was not derived from the channel name")
	}
	if got := device.Slot(0); got.Name != "General" {
		t.Errorf("device slot 0 = %+v, want name General", got)
	}
}

func TestChannelServiceCreateTrimsName(t *testing.T) {
	svc, device := newTestService(t)

	if _, err := svc.Create(context.Background(), "  Ops  "); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if got := device.Slot(0).Name; got != "Ops" {
		t.Errorf("device slot name = %q, want %q", got, "Ops")
	}
}

func TestChannelServiceCreateEmptyName(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), "   ")
	if !errors.Is(err, mesh.ErrEmptyName) {
		t.Errorf("Create() error = %v, want ErrEmptyName", err)
	}
}

func TestChannelServiceCreateDuplicate(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.Create(context.Background(), "General"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Duplicate detection is case-insensitive.
	_, err := svc.Create(context.Background(), "GENERAL")
	if !errors.Is(err, mesh.ErrChannelExists) {
		t.Errorf("Create() error = %v, want ErrChannelExists", err)
	}
}

func TestChannelServiceCreateNoFreeSlot(t *testing.T) {
	svc, device := newTestService(t)
	for i := 0; i < mesh.MaxChannelSlots; i++ {
		name := string(rune('a' + i))
		device.SetSlot(mesh.ChannelSlot{Index: i, Name: name, Secret: mesh.DeriveChannelSecret(name)})
	}

	_, err := svc.Create(context.Background(), "overflow")
	if !errors.Is(err, mesh.ErrNoFreeSlot) {
		t.Errorf("Create() error = %v, want ErrNoFreeSlot", err)
	}
}

func TestChannelServiceCreateFillsGap(t *testing.T) {
	svc, device := newTestService(t)
	device.SetSlot(mesh.ChannelSlot{Index: 0, Name: "a", Secret: mesh.DeriveChannelSecret("a")})
	device.SetSlot(mesh.ChannelSlot{Index: 2, Name: "c", Secret: mesh.DeriveChannelSecret("c")})

	if _, err := svc.Create(context.Background(), "b"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if got := device.Slot(1).Name; got != "b" {
		t.Errorf("expected gap slot 1 to be used, slot 1 = %q", got)
	}
}

func TestChannelServiceDelete(t *testing.T) {
	svc, device := newTestService(t)
	if _, err := svc.Create(context.Background(), "General"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	slots, err := svc.Delete(context.Background(), "#general")
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(slots) != 0 {
		t.Errorf("Delete() returned %d slots, want 0", len(slots))
	}
	if got := device.Slot(0); !got.Empty() {
		t.Errorf("device slot 0 not cleared: %+v", got)
	}
}

func TestChannelServiceDeleteNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Delete(context.Background(), "ghost")
	if !errors.Is(err, mesh.ErrChannelNotFound) {
		t.Errorf("Delete() error = %v, want ErrChannelNotFound", err)
	}
}

func TestChannelServiceListUsesCache(t *testing.T) {
	svc, device := newTestService(t)
	device.SetSlot(mesh.ChannelSlot{Index: 0, Name: "General", Secret: mesh.DeriveChannelSecret("General")})

	if _, err := svc.List(context.Background()); err != nil {
		t.Fatalf("List() error = %v", err)
	}
	connects := device.Connects()

	for i := 0; i < 3; i++ {
		slots, err := svc.List(context.Background())
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(slots) != 1 || slots[0].Name != "General" {
			t.Fatalf("unexpected slots: %+v", slots)
		}
	}
	if device.Connects() != connects {
		t.Errorf("warm List() reconnected to the device: %d -> %d connects", connects, device.Connects())
	}
}

func TestChannelServiceCreateReseedsCache(t *testing.T) {
	svc, device := newTestService(t)

	if _, err := svc.Create(context.Background(), "General"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	connects := device.Connects()

	slots, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(slots) != 1 || slots[0].Name != "General" {
		t.Fatalf("unexpected slots after create: %+v", slots)
	}
	if device.Connects() != connects {
		t.Error("List() after Create() should be served from the reseeded cache")
	}
}

func TestChannelServiceConnectFailure(t *testing.T) {
	svc, device := newTestService(t)
	device.FailNextConnect(mesh.ErrConnectionFailed)

	_, err := svc.List(context.Background())
	if !errors.Is(err, mesh.ErrConnectionFailed) {
		t.Errorf("List() error = %v, want ErrConnectionFailed", err)
	}
}

func TestChannelServiceSendText(t *testing.T) {
	svc, device := newTestService(t)
	device.SetSlot(mesh.ChannelSlot{Index: 3, Name: "Ops", Secret: mesh.DeriveChannelSecret("Ops")})

	slot, err := svc.SendText(context.Background(), "#ops", "status check")
	if err != nil {
		t.Fatalf("SendText() error = %v", err)
	}
	if slot.Index != 3 {
		t.Errorf("SendText() slot = %d, want 3", slot.Index)
	}

	sent := device.Sent()
	if len(sent) != 1 || sent[0].Text != "status check" || sent[0].ChannelIndex != 3 {
		t.Errorf("unexpected transmissions: %+v", sent)
	}
}

func TestChannelServiceSendTextUnknownChannel(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.SendText(context.Background(), "nowhere", "hello")
	if !errors.Is(err, mesh.ErrChannelNotFound) {
		t.Errorf("SendText() error = %v, want ErrChannelNotFound", err)
	}
}
