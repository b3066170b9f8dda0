package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, ok, err := s.Get(ctx, "GROUP:1:2025:6"); err != nil || ok {
		t.Fatalf("Get on empty store = ok %v err %v, want miss", ok, err)
	}

	if err := s.Set(ctx, "GROUP:1:2025:6", []byte(`[]`), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	val, ok, err := s.Get(ctx, "GROUP:1:2025:6")
	if err != nil || !ok {
		t.Fatalf("Get after Set = ok %v err %v, want hit", ok, err)
	}
	if string(val) != `[]` {
		t.Errorf("Get = %q, want %q", val, `[]`)
	}

	if err := s.Del(ctx, "GROUP:1:2025:6"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "GROUP:1:2025:6"); ok {
		t.Error("Get after Del reported a hit")
	}
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	now := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return now }

	if err := s.Set(ctx, "MY:7:2025:6", []byte(`cached`), 10*time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	now = now.Add(9 * time.Minute)
	if _, ok, _ := s.Get(ctx, "MY:7:2025:6"); !ok {
		t.Fatal("entry expired before its TTL")
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := s.Get(ctx, "MY:7:2025:6"); ok {
		t.Fatal("entry survived past its TTL")
	}
	if s.Len() != 0 {
		t.Errorf("expired entry not removed, Len() = %d", s.Len())
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	original := []byte(`abc`)
	if err := s.Set(ctx, "k", original, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	original[0] = 'x'

	val, _, _ := s.Get(ctx, "k")
	if string(val) != "abc" {
		t.Errorf("stored value mutated through caller slice: %q", val)
	}

	val[0] = 'y'
	val2, _, _ := s.Get(ctx, "k")
	if string(val2) != "abc" {
		t.Errorf("stored value mutated through returned slice: %q", val2)
	}
}
