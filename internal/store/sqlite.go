package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/mailsync/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// upsertMessageSQL inserts or updates a message with classification
// fields. archived_locally is locally owned and never overwritten.
const upsertMessageSQL = `
	INSERT INTO messages (
		id, conversation_id, subject, from_email, from_name,
		to_recipients, cc_recipients, received_at, importance,
		is_read, has_attachments, body_preview, parent_folder_id,
		categories, category, confidence, entity_name, entity_path,
		priority_score, priority_level, action_required, archived_locally
	) VALUES (
		?, ?, ?, ?, ?,
		?, ?, ?, ?,
		?, ?, ?, ?,
		?, ?, ?, ?, ?,
		?, ?, ?, 0
	)
	ON CONFLICT(id) DO UPDATE SET
		conversation_id  = excluded.conversation_id,
		subject          = excluded.subject,
		from_email       = excluded.from_email,
		from_name        = excluded.from_name,
		to_recipients    = excluded.to_recipients,
		cc_recipients    = excluded.cc_recipients,
		received_at      = excluded.received_at,
		importance       = excluded.importance,
		is_read          = excluded.is_read,
		has_attachments  = excluded.has_attachments,
		body_preview     = excluded.body_preview,
		parent_folder_id = excluded.parent_folder_id,
		categories       = excluded.categories,
		category         = excluded.category,
		confidence       = excluded.confidence,
		entity_name      = excluded.entity_name,
		entity_path      = excluded.entity_path,
		priority_score   = excluded.priority_score,
		priority_level   = excluded.priority_level,
		action_required  = excluded.action_required`

// upsertHeaderSQL inserts or updates a message without touching any
// classification field. Used when the caller supplies no category.
const upsertHeaderSQL = `
	INSERT INTO messages (
		id, conversation_id, subject, from_email, from_name,
		to_recipients, cc_recipients, received_at, importance,
		is_read, has_attachments, body_preview, parent_folder_id,
		categories
	) VALUES (
		?, ?, ?, ?, ?,
		?, ?, ?, ?,
		?, ?, ?, ?,
		?
	)
	ON CONFLICT(id) DO UPDATE SET
		conversation_id  = excluded.conversation_id,
		subject          = excluded.subject,
		from_email       = excluded.from_email,
		from_name        = excluded.from_name,
		to_recipients    = excluded.to_recipients,
		cc_recipients    = excluded.cc_recipients,
		received_at      = excluded.received_at,
		importance       = excluded.importance,
		is_read          = excluded.is_read,
		has_attachments  = excluded.has_attachments,
		body_preview     = excluded.body_preview,
		parent_folder_id = excluded.parent_folder_id,
		categories       = excluded.categories`

// UpsertMessage inserts or replaces a message by id. archived_locally
// is preserved across upserts; classification fields are updated only
// when the message carries a category.
func (s *SQLiteStore) UpsertMessage(ctx context.Context, msg model.Message) error {
	return upsertMessageExec(ctx, s.db, msg)
}

// execer covers both *sqlx.DB and *sqlx.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// upsertMessageExec runs the appropriate upsert against db or an open
// transaction.
func upsertMessageExec(ctx context.Context, e execer, msg model.Message) error {
	toJSON, err := json.Marshal(msg.To)
	if err != nil {
		return fmt.Errorf("marshaling recipients for %s: %w", msg.ID, err)
	}
	ccJSON, err := json.Marshal(msg.CC)
	if err != nil {
		return fmt.Errorf("marshaling cc for %s: %w", msg.ID, err)
	}
	categoriesJSON, err := json.Marshal(msg.Categories)
	if err != nil {
		return fmt.Errorf("marshaling categories for %s: %w", msg.ID, err)
	}

	fromEmail := strings.ToLower(msg.FromEmail)

	if msg.Category == "" {
		_, err = e.ExecContext(ctx, upsertHeaderSQL,
			msg.ID, msg.ConversationID, msg.Subject, fromEmail, msg.FromName,
			string(toJSON), string(ccJSON), msg.ReceivedAt.UTC(), string(msg.Importance),
			boolToInt(msg.IsRead), boolToInt(msg.HasAttachments), msg.BodyPreview, msg.ParentFolderID,
			string(categoriesJSON),
		)
	} else {
		_, err = e.ExecContext(ctx, upsertMessageSQL,
			msg.ID, msg.ConversationID, msg.Subject, fromEmail, msg.FromName,
			string(toJSON), string(ccJSON), msg.ReceivedAt.UTC(), string(msg.Importance),
			boolToInt(msg.IsRead), boolToInt(msg.HasAttachments), msg.BodyPreview, msg.ParentFolderID,
			string(categoriesJSON), string(msg.Category), msg.Confidence, msg.EntityName, msg.EntityPath,
			msg.PriorityScore, string(msg.PriorityLevel), boolToInt(msg.ActionRequired),
		)
	}
	if err != nil {
		return fmt.Errorf("upserting message %s: %w", msg.ID, err)
	}

	return nil
}

// SetArchived flips the local archive flag on a message.
func (s *SQLiteStore) SetArchived(ctx context.Context, id string, archived bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE messages SET archived_locally = ? WHERE id = ?",
		boolToInt(archived), id)
	if err != nil {
		return fmt.Errorf("archiving message %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMessage removes a message by id. Deleting a missing row is not
// an error.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting message %s: %w", id, err)
	}
	return nil
}

// GetMessageByID retrieves a single message by its id.
func (s *SQLiteStore) GetMessageByID(ctx context.Context, id string) (*model.Message, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT * FROM messages WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("getting message %s: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("getting message %s: %w", id, err)
		}
		return nil, ErrNotFound
	}

	msg, err := scanMessage(rows)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// QueryMessages retrieves messages matching the provided filter,
// ordered by received time descending.
func (s *SQLiteStore) QueryMessages(
	ctx context.Context,
	filter MessageFilter,
) ([]model.Message, error) {
	var conditions []string
	var args []interface{}

	if len(filter.Categories) > 0 {
		placeholders := make([]string, len(filter.Categories))
		for i, c := range filter.Categories {
			placeholders[i] = "?"
			args = append(args, string(c))
		}
		conditions = append(conditions,
			"category IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.MinPriority != nil {
		conditions = append(conditions, "priority_score >= ?")
		args = append(args, *filter.MinPriority)
	}
	if filter.IsRead != nil {
		conditions = append(conditions, "is_read = ?")
		args = append(args, boolToInt(*filter.IsRead))
	}
	if filter.FolderID != nil {
		conditions = append(conditions, "parent_folder_id = ?")
		args = append(args, *filter.FolderID)
	}
	if filter.SenderDomain != nil {
		conditions = append(conditions, "from_email LIKE ?")
		args = append(args, "%@"+strings.ToLower(*filter.SenderDomain))
	}
	if filter.ReceivedAfter != nil {
		conditions = append(conditions, "received_at >= ?")
		args = append(args, filter.ReceivedAfter.UTC())
	}
	if filter.ReceivedBefore != nil {
		conditions = append(conditions, "received_at <= ?")
		args = append(args, filter.ReceivedBefore.UTC())
	}
	if filter.Query != nil && *filter.Query != "" {
		conditions = append(conditions, "(subject LIKE ? OR body_preview LIKE ?)")
		q := "%" + *filter.Query + "%"
		args = append(args, q, q)
	}

	query := "SELECT * FROM messages"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY received_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// GetStats returns aggregate counts over the local mirror.
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByCategory: make(map[model.Category]int),
		ByPriority: make(map[model.PriorityLevel]int),
	}

	err := s.db.GetContext(ctx, &stats.Total, "SELECT COUNT(*) FROM messages")
	if err != nil {
		return nil, fmt.Errorf("counting messages: %w", err)
	}

	err = s.db.GetContext(ctx, &stats.Unread,
		"SELECT COUNT(*) FROM messages WHERE is_read = 0")
	if err != nil {
		return nil, fmt.Errorf("counting unread messages: %w", err)
	}

	rows, err := s.db.QueryxContext(ctx,
		"SELECT category, COUNT(*) FROM messages GROUP BY category")
	if err != nil {
		return nil, fmt.Errorf("counting by category: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("scanning category count: %w", err)
		}
		stats.ByCategory[model.ParseCategory(category)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	levelRows, err := s.db.QueryxContext(ctx,
		"SELECT priority_level, COUNT(*) FROM messages GROUP BY priority_level")
	if err != nil {
		return nil, fmt.Errorf("counting by priority level: %w", err)
	}
	defer levelRows.Close()
	for levelRows.Next() {
		var level string
		var count int
		if err := levelRows.Scan(&level, &count); err != nil {
			return nil, fmt.Errorf("scanning priority count: %w", err)
		}
		stats.ByPriority[model.PriorityLevel(level)] = count
	}

	return stats, levelRows.Err()
}

// ApplySyncBatch applies message upserts, tombstone deletions, and
// sync-state writes in one transaction. A mid-batch failure rolls the
// whole batch back, leaving the stored cursor untouched.
func (s *SQLiteStore) ApplySyncBatch(ctx context.Context, batch SyncBatch) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning sync batch: %w", err)
	}
	defer tx.Rollback()

	for _, msg := range batch.Upserts {
		if err := upsertMessageExec(ctx, tx, msg); err != nil {
			return err
		}
	}

	for _, id := range batch.Deletes {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM messages WHERE id = ?", id); err != nil {
			return fmt.Errorf("deleting message %s: %w", id, err)
		}
	}

	for key, value := range batch.State {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO sync_state (key, value) VALUES (?, ?)",
			key, value); err != nil {
			return fmt.Errorf("writing sync state %q: %w", key, err)
		}
	}

	return tx.Commit()
}

// scanMessage scans a message row from a sqlx.Rows result set.
func scanMessage(rows *sqlx.Rows) (model.Message, error) {
	var (
		msg            model.Message
		toJSON         string
		ccJSON         string
		categoriesJSON string
		receivedAt     time.Time
		importance     string
		category       string
		level          string
		isRead         int
		hasAttachments int
		actionRequired int
		archived       int
	)

	err := rows.Scan(
		&msg.ID, &msg.ConversationID, &msg.Subject, &msg.FromEmail, &msg.FromName,
		&toJSON, &ccJSON, &receivedAt, &importance,
		&isRead, &hasAttachments, &msg.BodyPreview, &msg.ParentFolderID,
		&categoriesJSON, &category, &msg.Confidence, &msg.EntityName, &msg.EntityPath,
		&msg.PriorityScore, &level, &actionRequired, &archived,
	)
	if err != nil {
		return model.Message{}, fmt.Errorf("scanning message row: %w", err)
	}

	msg.ReceivedAt = receivedAt
	msg.Importance = model.ParseImportance(importance)
	msg.Category = model.ParseCategory(category)
	msg.PriorityLevel = model.PriorityLevel(level)
	msg.IsRead = isRead != 0
	msg.HasAttachments = hasAttachments != 0
	msg.ActionRequired = actionRequired != 0
	msg.ArchivedLocally = archived != 0

	if toJSON != "" {
		if err := json.Unmarshal([]byte(toJSON), &msg.To); err != nil {
			return model.Message{}, fmt.Errorf("unmarshaling recipients: %w", err)
		}
	}
	if ccJSON != "" {
		if err := json.Unmarshal([]byte(ccJSON), &msg.CC); err != nil {
			return model.Message{}, fmt.Errorf("unmarshaling cc: %w", err)
		}
	}
	if categoriesJSON != "" {
		if err := json.Unmarshal([]byte(categoriesJSON), &msg.Categories); err != nil {
			return model.Message{}, fmt.Errorf("unmarshaling categories: %w", err)
		}
	}

	return msg, nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
