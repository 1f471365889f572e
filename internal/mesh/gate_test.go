package mesh

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGateMutualExclusion(t *testing.T) {
	gate := NewGate()

	if !gate.TryAcquire() {
		t.Fatal("expected first TryAcquire to succeed")
	}
	if gate.TryAcquire() {
		t.Fatal("expected second TryAcquire to fail while held")
	}

	gate.Release()
	if !gate.TryAcquire() {
		t.Fatal("expected TryAcquire to succeed after Release")
	}
	gate.Release()
}

func TestGateAcquireRespectsContext(t *testing.T) {
	gate := NewGate()
	if err := gate.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer gate.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := gate.Acquire(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire() error = %v, want deadline exceeded", err)
	}
}

func TestGateAcquireWaitsForRelease(t *testing.T) {
	gate := NewGate()
	if err := gate.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	acquired := make(chan error, 1)
	go func() {
		acquired <- gate.Acquire(context.Background())
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire completed while gate was held")
	case <-time.After(20 * time.Millisecond):
	}

	gate.Release()
	select {
	case err := <-acquired:
		if err != nil {
			t.Fatalf("second Acquire() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("second Acquire did not complete after Release")
	}
	gate.Release()
}
