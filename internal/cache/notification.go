// Package cache implements the persisted notification and avatar caches.
package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"gitlab_notify/internal/model"
	"gitlab_notify/internal/storage"
)

const notificationSlot = "notificationCache"

// Key derives the deterministic cache key for an event. Two fetches of the
// same activity item always produce the same key; repeated actions on the
// same target differ by action name or timestamp.
func Key(e model.ProjectEvent) string {
	return fmt.Sprintf("%d_%s_%d_%s_%s", e.ProjectID, e.TargetType, e.TargetID, e.ActionName, e.CreatedAt)
}

// NotificationCache is the durable dedup ledger. Entries are never removed:
// once an event is marked notified it stays notified for the lifetime of
// the installation.
type NotificationCache struct {
	store storage.Storage
	seen  map[string]bool
}

// LoadNotificationCache restores the ledger from its storage slot.
// A missing slot starts an empty ledger.
func LoadNotificationCache(ctx context.Context, store storage.Storage) (*NotificationCache, error) {
	seen := make(map[string]bool)

	raw, ok, err := store.GetValue(ctx, notificationSlot)
	if err != nil {
		return nil, fmt.Errorf("load notification cache: %w", err)
	}
	if ok {
		if err := json.Unmarshal([]byte(raw), &seen); err != nil {
			return nil, fmt.Errorf("decode notification cache: %w", err)
		}
	}

	return &NotificationCache{store: store, seen: seen}, nil
}

// Has reports whether the event has already been notified.
func (c *NotificationCache) Has(e model.ProjectEvent) bool {
	return c.seen[Key(e)]
}

// Add marks the event as notified and persists the whole ledger.
// Re-adding a present key is a no-op.
func (c *NotificationCache) Add(ctx context.Context, e model.ProjectEvent) error {
	key := Key(e)
	if c.seen[key] {
		return nil
	}
	c.seen[key] = true

	raw, err := json.Marshal(c.seen)
	if err != nil {
		return fmt.Errorf("encode notification cache: %w", err)
	}
	if err := c.store.SetValue(ctx, notificationSlot, string(raw)); err != nil {
		return fmt.Errorf("persist notification cache: %w", err)
	}
	return nil
}
