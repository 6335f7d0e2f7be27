package events

import (
	"testing"
	"time"
)

func TestRingOverflowDropsOldest(t *testing.T) {
	r := newRing(256)
	const extra = 10
	for i := 0; i < 256+extra; i++ {
		r.push(Event{Bytes: int64(i)})
	}
	if got := r.len(); got != 256 {
		t.Fatalf("len() = %d, want 256", got)
	}
	// The surviving events must be the last 256 pushed, in FIFO order.
	for want := extra; want < 256+extra; want++ {
		ev, ok := r.pop()
		if !ok {
			t.Fatalf("pop() returned !ok before ring drained")
		}
		if ev.Bytes != int64(want) {
			t.Fatalf("pop() = %d, want %d", ev.Bytes, want)
		}
	}
	if r.len() != 0 {
		t.Fatalf("ring should be empty, len = %d", r.len())
	}
}

func TestRingFIFOOrder(t *testing.T) {
	r := newRing(4)
	for i := 0; i < 3; i++ {
		r.push(Event{Bytes: int64(i)})
	}
	for i := 0; i < 3; i++ {
		ev, ok := r.pop()
		if !ok || ev.Bytes != int64(i) {
			t.Fatalf("pop %d: got %+v ok=%v", i, ev, ok)
		}
	}
}

func TestRingStopUnblocksPop(t *testing.T) {
	r := newRing(4)
	done := make(chan bool, 1)
	go func() {
		_, ok := r.pop()
		done <- ok
	}()

	// Give the goroutine a moment to block on pop before stopping.
	time.Sleep(10 * time.Millisecond)
	r.stop()

	select {
	case ok := <-done:
		if ok {
			t.Fatalf("expected pop to return ok=false after stop on empty ring")
		}
	case <-time.After(time.Second):
		t.Fatalf("pop did not unblock after stop")
	}
}

func TestRingStopDoesNotDrainPending(t *testing.T) {
	r := newRing(4)
	r.push(Event{Bytes: 1})
	r.stop()
	// A pending event remains poppable once already queued...
	ev, ok := r.pop()
	if !ok || ev.Bytes != 1 {
		t.Fatalf("expected queued event still poppable, got %+v ok=%v", ev, ok)
	}
	// ...but once drained, stop means no further blocking.
	_, ok = r.pop()
	if ok {
		t.Fatalf("expected pop on empty stopped ring to return ok=false")
	}
}
