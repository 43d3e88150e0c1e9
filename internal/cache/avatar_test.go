package cache

import (
	"context"
	"testing"
)

func TestAvatarCacheWriteThrough(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	ac, err := LoadAvatarCache(ctx, store)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if _, ok := ac.Get(1); ok {
		t.Fatal("fresh cache should miss")
	}

	if err := ac.Set(ctx, 1, "http://example.com/avatar/1.png"); err != nil {
		t.Fatalf("set: %v", err)
	}

	url, ok := ac.Get(1)
	if !ok || url != "http://example.com/avatar/1.png" {
		t.Errorf("Get(1) = %q, %v", url, ok)
	}

	// A fresh cache over the same store sees the entry.
	reloaded, err := LoadAvatarCache(ctx, store)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if url, ok := reloaded.Get(1); !ok || url != "http://example.com/avatar/1.png" {
		t.Errorf("reloaded Get(1) = %q, %v", url, ok)
	}
}
