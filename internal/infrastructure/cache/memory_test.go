package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	interfaces "signup-service/internal/interfaces/infrastructure"
)

func TestMemoryCache_SetGetExpire(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if err := c.Set(ctx, "user:1", "alice", time.Minute); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	got, err := c.Get(ctx, "user:1")
	if err != nil || got != "alice" {
		t.Fatalf("Expected alice, got %q (%v)", got, err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := c.Get(ctx, "user:1"); !errors.Is(err, interfaces.ErrCacheMiss) {
		t.Errorf("Expected cache miss after expiry, got %v", err)
	}
}

func TestMemoryCache_JSONAndClear(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	type payload struct{ Name string }
	if err := c.SetJSON(ctx, "user:a", payload{Name: "a"}, 0); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := c.SetJSON(ctx, "user:b", payload{Name: "b"}, 0); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	var p payload
	if err := c.GetJSON(ctx, "user:a", &p); err != nil || p.Name != "a" {
		t.Fatalf("Expected payload a, got %+v (%v)", p, err)
	}

	if err := c.Clear(ctx, "user:*"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := c.Get(ctx, "user:b"); !errors.Is(err, interfaces.ErrCacheMiss) {
		t.Errorf("Expected cache miss after clear, got %v", err)
	}
}
