package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"gitlab_notify/internal/model"
	"gitlab_notify/migrations"
)

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// GetValue returns the value stored under key.
// The second return value reports whether the key exists.
func (s *SQLite) GetValue(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv_store WHERE key = ?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get value: %w", err)
	}
	return value, true, nil
}

// SetValue stores value under key, replacing any previous value.
func (s *SQLite) SetValue(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_store (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set value: %w", err)
	}
	return nil
}

// AddNotifiedHistories appends emitted notifications to the history table.
// Entries whose id is already present are left untouched, keeping the
// history reconciled with the notification cache.
func (s *SQLite) AddNotifiedHistories(ctx context.Context, entries []model.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range entries {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO notified_histories
			 (id, project_id, project_name, target_type, target_id, target_url,
			  action_name, target_title, author_id, author_name, author_avatar_url,
			  message, created_at, notified_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.ProjectID, e.ProjectName, e.TargetType, e.TargetID, e.TargetURL,
			e.ActionName, e.TargetTitle, e.AuthorID, e.AuthorName, e.AuthorAvatarURL,
			e.Message, e.CreatedAt, e.NotifiedAt,
		)
		if err != nil {
			return fmt.Errorf("insert history %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

// ListNotifiedHistories returns the most recently notified entries, newest
// first. A non-positive limit returns everything.
func (s *SQLite) ListNotifiedHistories(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	query := `SELECT id, project_id, project_name, target_type, target_id, target_url,
	                 action_name, target_title, author_id, author_name, author_avatar_url,
	                 message, created_at, notified_at
	          FROM notified_histories ORDER BY notified_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query histories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.HistoryEntry
	for rows.Next() {
		var e model.HistoryEntry
		err := rows.Scan(&e.ID, &e.ProjectID, &e.ProjectName, &e.TargetType, &e.TargetID,
			&e.TargetURL, &e.ActionName, &e.TargetTitle, &e.AuthorID, &e.AuthorName,
			&e.AuthorAvatarURL, &e.Message, &e.CreatedAt, &e.NotifiedAt)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
