package store

import (
	"context"
	"fmt"

	"github.com/nhle/mailsync/internal/model"
)

// UpsertFolders replaces the stored folder rows for the given folders.
func (s *SQLiteStore) UpsertFolders(ctx context.Context, folders []model.Folder) error {
	if len(folders) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning folder upsert: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT OR REPLACE INTO folders (
			id, display_name, parent_id, child_count, unread_count
		) VALUES (?, ?, ?, ?, ?)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing folder upsert: %w", err)
	}
	defer stmt.Close()

	for _, f := range folders {
		if _, err := stmt.ExecContext(ctx,
			f.ID, f.DisplayName, f.ParentID, f.ChildCount, f.UnreadCount,
		); err != nil {
			return fmt.Errorf("upserting folder %s: %w", f.ID, err)
		}
	}

	return tx.Commit()
}

// ListFolders retrieves all stored folders ordered by display name.
func (s *SQLiteStore) ListFolders(ctx context.Context) ([]model.Folder, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT id, display_name, parent_id, child_count, unread_count FROM folders ORDER BY display_name")
	if err != nil {
		return nil, fmt.Errorf("querying folders: %w", err)
	}
	defer rows.Close()

	var folders []model.Folder
	for rows.Next() {
		var f model.Folder
		if err := rows.Scan(
			&f.ID, &f.DisplayName, &f.ParentID, &f.ChildCount, &f.UnreadCount,
		); err != nil {
			return nil, fmt.Errorf("scanning folder row: %w", err)
		}
		folders = append(folders, f)
	}

	return folders, rows.Err()
}
