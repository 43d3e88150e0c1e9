package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"gitlab_notify/internal/storage"
)

const avatarSlot = "avatarCache"

// AvatarCache is a write-through persisted map from user id to avatar URL.
// No eviction: avatar URLs rarely change and the key space is small.
type AvatarCache struct {
	store storage.Storage
	urls  map[string]string
}

// LoadAvatarCache restores the cache from its storage slot.
func LoadAvatarCache(ctx context.Context, store storage.Storage) (*AvatarCache, error) {
	urls := make(map[string]string)

	raw, ok, err := store.GetValue(ctx, avatarSlot)
	if err != nil {
		return nil, fmt.Errorf("load avatar cache: %w", err)
	}
	if ok {
		if err := json.Unmarshal([]byte(raw), &urls); err != nil {
			return nil, fmt.Errorf("decode avatar cache: %w", err)
		}
	}

	return &AvatarCache{store: store, urls: urls}, nil
}

// Get returns the cached avatar URL for a user.
func (c *AvatarCache) Get(userID int64) (string, bool) {
	url, ok := c.urls[strconv.FormatInt(userID, 10)]
	return url, ok
}

// Set stores an avatar URL and writes the cache through immediately.
func (c *AvatarCache) Set(ctx context.Context, userID int64, url string) error {
	c.urls[strconv.FormatInt(userID, 10)] = url

	raw, err := json.Marshal(c.urls)
	if err != nil {
		return fmt.Errorf("encode avatar cache: %w", err)
	}
	if err := c.store.SetValue(ctx, avatarSlot, string(raw)); err != nil {
		return fmt.Errorf("persist avatar cache: %w", err)
	}
	return nil
}
