package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetSyncState reads a sync-state value by key. A missing key returns
// an empty string, not an error.
func (s *SQLiteStore) GetSyncState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx,
		&value, "SELECT value FROM sync_state WHERE key = ?", key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("reading sync state %q: %w", key, err)
	}
	return value, nil
}

// SetSyncState writes a single sync-state key/value pair.
func (s *SQLiteStore) SetSyncState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO sync_state (key, value) VALUES (?, ?)",
		key, value)
	if err != nil {
		return fmt.Errorf("writing sync state %q: %w", key, err)
	}
	return nil
}
