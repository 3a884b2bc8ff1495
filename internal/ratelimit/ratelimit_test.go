package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAllowConsumesTokens(t *testing.T) {
	l := New(3, 1)

	for i := 0; i < 3; i++ {
		if !l.Allow() {
			t.Fatalf("allow %d: want true while bucket has tokens", i)
		}
	}
	if l.Allow() {
		t.Fatal("allow after bucket drained: want false")
	}
}

func TestRefill(t *testing.T) {
	l := New(1, 100)

	if !l.Allow() {
		t.Fatal("first allow: want true")
	}
	if l.Allow() {
		t.Fatal("drained bucket: want false")
	}

	time.Sleep(50 * time.Millisecond)
	if !l.Allow() {
		t.Fatal("after refill window: want true")
	}
}

func TestWaitAcquires(t *testing.T) {
	l := New(1, 50)
	l.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("wait took much longer than one token interval")
	}
}

func TestWaitCanceled(t *testing.T) {
	l := New(1, 0.001)
	l.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx); err != context.DeadlineExceeded {
		t.Fatalf("wait on starved bucket: err = %v, want DeadlineExceeded", err)
	}
}

func TestReset(t *testing.T) {
	l := New(2, 0.001)
	l.Allow()
	l.Allow()

	if l.Allow() {
		t.Fatal("drained bucket: want false")
	}

	l.Reset()
	if l.Available() < 2 {
		t.Fatalf("available after reset = %f, want 2", l.Available())
	}
	if !l.Allow() {
		t.Fatal("allow after reset: want true")
	}
}
