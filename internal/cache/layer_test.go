package cache

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func TestLayerServesWithinTTL(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	layer := NewLayer(NewMemoryProvider(nil), 120*time.Second, nil, clock.Now, nil)
	ctx := context.Background()

	layer.Set(ctx, "orders", "ORDERED", []string{"a", "b"})

	clock.t = clock.t.Add(119 * time.Second)
	var got []string
	if !layer.Get(ctx, "orders", "ORDERED", &got) {
		t.Fatalf("expected hit before TTL elapsed")
	}
	if len(got) != 2 || got[0] != "a" {
		t.Fatalf("unexpected cached value: %v", got)
	}

	clock.t = clock.t.Add(2 * time.Second)
	if layer.Get(ctx, "orders", "ORDERED", &got) {
		t.Fatalf("expected miss after TTL elapsed")
	}
}

func TestLayerEvictsExpiredEntry(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	provider := NewMemoryProvider(nil)
	layer := NewLayer(provider, time.Minute, nil, clock.Now, nil)
	ctx := context.Background()

	layer.Set(ctx, "inventory", "", map[string]int{"n": 1})
	if provider.Len() != 1 {
		t.Fatalf("expected one stored entry, got %d", provider.Len())
	}
	clock.t = clock.t.Add(2 * time.Minute)
	var out map[string]int
	if layer.Get(ctx, "inventory", "", &out) {
		t.Fatalf("expected miss")
	}
	if provider.Len() != 0 {
		t.Fatalf("expired entry should be removed, %d left", provider.Len())
	}
}

func TestLayerCollectionTTLOverride(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	layer := NewLayer(NewMemoryProvider(nil), time.Minute, map[string]time.Duration{"locations": time.Hour}, clock.Now, nil)
	ctx := context.Background()

	layer.Set(ctx, "locations", "", []string{"Freezer"})
	layer.Set(ctx, "orders", "", []string{"x"})
	clock.t = clock.t.Add(10 * time.Minute)

	var v []string
	if !layer.Get(ctx, "locations", "", &v) {
		t.Fatalf("locations should still be fresh")
	}
	if layer.Get(ctx, "orders", "", &v) {
		t.Fatalf("orders should have expired")
	}
}

func TestLayerClear(t *testing.T) {
	layer := NewLayer(NewMemoryProvider(nil), time.Minute, nil, nil, nil)
	ctx := context.Background()
	layer.Set(ctx, "labs", "", []string{"lab"})
	if err := layer.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	var v []string
	if layer.Get(ctx, "labs", "", &v) {
		t.Fatalf("expected miss after clear")
	}
}

func TestNoopProviderAlwaysMisses(t *testing.T) {
	layer := NewLayer(nil, time.Minute, nil, nil, nil)
	ctx := context.Background()
	layer.Set(ctx, "labs", "", 1)
	var v int
	if layer.Get(ctx, "labs", "", &v) {
		t.Fatalf("noop provider should never hit")
	}
}

func TestNilLayerIsSafe(t *testing.T) {
	var layer *Layer
	var v int
	if layer.Get(context.Background(), "x", "", &v) {
		t.Fatalf("nil layer should miss")
	}
	layer.Set(context.Background(), "x", "", 1)
}
