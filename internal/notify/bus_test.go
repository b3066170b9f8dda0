package notify

import (
	"context"
	"testing"
	"time"
)

func recv(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for bus payload")
		return nil
	}
}

func TestMemoryBusFanOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewMemoryBus()

	a, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	b, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe b: %v", err)
	}

	if err := bus.Publish(ctx, []byte(`{"groupId":1,"year":2025,"month":6}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// Every subscriber receives every payload; this is fan-out, not a queue.
	for name, ch := range map[string]<-chan []byte{"a": a, "b": b} {
		got := recv(t, ch)
		if string(got) != `{"groupId":1,"year":2025,"month":6}` {
			t.Errorf("subscriber %s got %q", name, got)
		}
	}
}

func TestMemoryBusSubscribeCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	bus := NewMemoryBus()
	ch, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel close after cancel, got payload")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after context cancel")
	}
}
