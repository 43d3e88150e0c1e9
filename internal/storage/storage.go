// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"

	"gitlab_notify/internal/model"
)

// Storage is the interface for all persistence operations. Caches persist
// themselves as JSON blobs in key-value slots; emitted notifications land
// in the history table.
type Storage interface {
	GetValue(ctx context.Context, key string) (string, bool, error)
	SetValue(ctx context.Context, key, value string) error

	AddNotifiedHistories(ctx context.Context, entries []model.HistoryEntry) error
	ListNotifiedHistories(ctx context.Context, limit int) ([]model.HistoryEntry, error)

	Close() error
}
