package capacity

import (
	"context"
	"testing"
	"time"
)

func TestNilManagerIsUnlimited(t *testing.T) {
	var m *Manager

	if m.Limit() != 0 {
		t.Errorf("Limit() = %d, want 0", m.Limit())
	}
	for i := 0; i < 100; i++ {
		if !m.TryAcquire() {
			t.Fatal("nil manager refused a slot")
		}
	}
	if err := m.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() unexpected error: %v", err)
	}
	m.Release()
}

func TestNewManagerZeroMeansUnlimited(t *testing.T) {
	if m := NewManager(0); m != nil {
		t.Error("NewManager(0) != nil, want nil")
	}
	if m := NewManager(-1); m != nil {
		t.Error("NewManager(-1) != nil, want nil")
	}
}

func TestTryAcquireExhaustion(t *testing.T) {
	m := NewManager(2)

	if !m.TryAcquire() || !m.TryAcquire() {
		t.Fatal("failed to acquire within limit")
	}
	if m.TryAcquire() {
		t.Fatal("acquired beyond limit")
	}

	m.Release()
	if !m.TryAcquire() {
		t.Fatal("failed to acquire after release")
	}
}

func TestAcquireBlocksUntilRelease(t *testing.T) {
	m := NewManager(1)
	if !m.TryAcquire() {
		t.Fatal("initial acquire failed")
	}

	acquired := make(chan struct{})
	go func() {
		if err := m.Acquire(context.Background()); err == nil {
			close(acquired)
		}
	}()

	select {
	case <-acquired:
		t.Fatal("Acquire() returned while pool was exhausted")
	case <-time.After(20 * time.Millisecond):
	}

	m.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("Acquire() did not return after release")
	}
}

func TestAcquireRespectsContext(t *testing.T) {
	m := NewManager(1)
	if !m.TryAcquire() {
		t.Fatal("initial acquire failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := m.Acquire(ctx); err == nil {
		t.Fatal("Acquire() = nil, want context error on exhausted pool")
	}
}
