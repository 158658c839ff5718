package cache

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestStore_SetGet(t *testing.T) {
	t.Parallel()

	store := NewStore()
	ctx := context.Background()

	store.Set(ctx, "k1", "v1", time.Minute)
	value, ok := store.Get(ctx, "k1")
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if value != "v1" {
		t.Fatalf("unexpected value: %v", value)
	}
}

func TestStore_PerEntryTTL(t *testing.T) {
	t.Parallel()

	store := NewStore()
	ctx := context.Background()
	current := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	store.Set(ctx, "short", 1, 10*time.Second)
	store.Set(ctx, "long", 2, time.Hour)
	store.Set(ctx, "forever", 3, 0)

	current = current.Add(30 * time.Second)

	if _, ok := store.Get(ctx, "short"); ok {
		t.Fatalf("expected short entry expired")
	}
	if _, ok := store.Get(ctx, "long"); !ok {
		t.Fatalf("expected long entry alive")
	}
	if _, ok := store.Get(ctx, "forever"); !ok {
		t.Fatalf("expected zero-ttl entry alive")
	}
}

func TestStore_Delete(t *testing.T) {
	t.Parallel()

	store := NewStore()
	ctx := context.Background()

	store.Set(ctx, "k1", "v1", time.Minute)
	store.Delete(ctx, "k1")
	if _, ok := store.Get(ctx, "k1"); ok {
		t.Fatalf("expected miss after delete")
	}
}

func TestStore_DeletePrefix(t *testing.T) {
	t.Parallel()

	store := NewStore()
	ctx := context.Background()

	store.Set(ctx, "odds:1", "a", time.Minute)
	store.Set(ctx, "odds:2", "b", time.Minute)
	store.Set(ctx, "leagues:all", "c", time.Minute)

	store.DeletePrefix(ctx, "odds:")

	if _, ok := store.Get(ctx, "odds:1"); ok {
		t.Fatalf("expected odds:1 removed")
	}
	if _, ok := store.Get(ctx, "odds:2"); ok {
		t.Fatalf("expected odds:2 removed")
	}
	if _, ok := store.Get(ctx, "leagues:all"); !ok {
		t.Fatalf("expected other prefix kept")
	}
}

func TestStore_FetchLoadsOnce(t *testing.T) {
	t.Parallel()

	store := NewStore()
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return "loaded", nil
	}

	for i := 0; i < 3; i++ {
		value, err := store.Fetch(ctx, "k1", time.Minute, loader)
		if err != nil {
			t.Fatalf("fetch %d failed: %v", i, err)
		}
		if value != "loaded" {
			t.Fatalf("unexpected value: %v", value)
		}
	}

	if calls != 1 {
		t.Fatalf("expected one loader call, got=%d", calls)
	}
}

func TestStore_FetchDoesNotCacheErrors(t *testing.T) {
	t.Parallel()

	store := NewStore()
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		if calls == 1 {
			return nil, fmt.Errorf("upstream down")
		}
		return "ok", nil
	}

	if _, err := store.Fetch(ctx, "k1", time.Minute, loader); err == nil {
		t.Fatalf("expected first fetch to fail")
	}
	value, err := store.Fetch(ctx, "k1", time.Minute, loader)
	if err != nil {
		t.Fatalf("second fetch failed: %v", err)
	}
	if value != "ok" {
		t.Fatalf("unexpected value: %v", value)
	}
	if calls != 2 {
		t.Fatalf("expected loader retried, got=%d calls", calls)
	}
}
