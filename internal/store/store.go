package store

import (
	"context"
	"time"

	"github.com/nhle/mailsync/internal/model"
)

// MessageFilter controls filtering and pagination for message queries.
// Nil pointer fields are ignored. Results are ordered received_at DESC.
type MessageFilter struct {
	Categories     []model.Category
	MinPriority    *int
	IsRead         *bool
	FolderID       *string
	SenderDomain   *string
	ReceivedAfter  *time.Time
	ReceivedBefore *time.Time
	Query          *string // substring over subject and body preview
	Limit          int
	Offset         int
}

// Stats summarizes the local mailbox mirror.
type Stats struct {
	Total      int
	Unread     int
	ByCategory map[model.Category]int
	ByPriority map[model.PriorityLevel]int
}

// SyncBatch is one transactional unit of sync output: message upserts,
// tombstone deletions, and the sync-state writes (cursor, timestamps)
// that must land atomically with them.
type SyncBatch struct {
	Upserts []model.Message
	Deletes []string
	State   map[string]string
}

// Store defines the persistence interface for messages, folders,
// contact rules, and sync state.
type Store interface {
	// === Messages ===

	UpsertMessage(ctx context.Context, msg model.Message) error
	DeleteMessage(ctx context.Context, id string) error
	GetMessageByID(ctx context.Context, id string) (*model.Message, error)
	QueryMessages(ctx context.Context, filter MessageFilter) ([]model.Message, error)
	GetStats(ctx context.Context) (*Stats, error)

	// SetArchived flips the locally-owned archive flag. Sync upserts
	// never touch it.
	SetArchived(ctx context.Context, id string, archived bool) error

	// ApplySyncBatch applies a whole sync batch in a single
	// transaction. A failure rolls everything back, including the
	// sync-state writes.
	ApplySyncBatch(ctx context.Context, batch SyncBatch) error

	// === Folders ===

	UpsertFolders(ctx context.Context, folders []model.Folder) error
	ListFolders(ctx context.Context) ([]model.Folder, error)

	// === Contact rules ===

	UpsertContact(ctx context.Context, rule model.ContactRule) error
	FindContactByEmail(ctx context.Context, addr string) (*model.ContactRule, error)
	FindContactByDomain(ctx context.Context, domain string) (*model.ContactRule, error)
	IsNoiseDomain(ctx context.Context, domain string) (bool, error)

	// === Sync state ===

	GetSyncState(ctx context.Context, key string) (string, error)
	SetSyncState(ctx context.Context, key, value string) error

	// === Lifecycle ===

	Close() error
}
