package model

import (
	"strings"
	"time"
)

// Category is the classification bucket assigned to a message.
type Category string

const (
	CategoryClient   Category = "client"
	CategoryDeal     Category = "deal"
	CategoryLead     Category = "lead"
	CategoryInternal Category = "internal"
	CategoryVendor   Category = "vendor"
	CategoryNoise    Category = "noise"
	CategoryUnknown  Category = "unknown"
)

// ParseCategory converts a stored string to a Category.
// Unrecognized values map to CategoryUnknown.
func ParseCategory(s string) Category {
	switch Category(strings.ToLower(s)) {
	case CategoryClient, CategoryDeal, CategoryLead,
		CategoryInternal, CategoryVendor, CategoryNoise:
		return Category(strings.ToLower(s))
	default:
		return CategoryUnknown
	}
}

// Importance is the provider-assigned importance flag on a message.
type Importance string

const (
	ImportanceLow    Importance = "low"
	ImportanceNormal Importance = "normal"
	ImportanceHigh   Importance = "high"
)

// ParseImportance converts a stored or wire string to an Importance.
// Unrecognized values map to ImportanceNormal.
func ParseImportance(s string) Importance {
	switch Importance(strings.ToLower(s)) {
	case ImportanceLow, ImportanceHigh:
		return Importance(strings.ToLower(s))
	default:
		return ImportanceNormal
	}
}

// PriorityLevel is the coarse priority bucket derived from the score.
type PriorityLevel string

const (
	PriorityLow    PriorityLevel = "low"
	PriorityMedium PriorityLevel = "medium"
	PriorityHigh   PriorityLevel = "high"
)

// MatchType identifies how a contact rule matches a sender.
type MatchType string

const (
	MatchEmail       MatchType = "email"
	MatchDomain      MatchType = "domain"
	MatchNoiseDomain MatchType = "noise_domain"
)

// Recipient is a single to/cc entry on a message.
type Recipient struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Message is the locally persisted metadata for a single mailbox message.
// The remote provider owns the id; classification and priority fields are
// computed locally at sync time.
type Message struct {
	ID             string
	ConversationID string
	Subject        string
	FromEmail      string
	FromName       string
	To             []Recipient
	CC             []Recipient
	ReceivedAt     time.Time
	Importance     Importance
	IsRead         bool
	HasAttachments bool
	BodyPreview    string
	ParentFolderID string
	Categories     []string

	Category        Category
	Confidence      float64
	EntityName      string
	EntityPath      string
	PriorityScore   int
	PriorityLevel   PriorityLevel
	ActionRequired  bool
	ArchivedLocally bool
}

// Folder is a mailbox folder as reported by the provider.
type Folder struct {
	ID          string
	DisplayName string
	ParentID    string
	ChildCount  int
	UnreadCount int
}

// ContactRule maps a sender address or domain to a known business entity.
// MatchValue is stored lower-cased; the pair (MatchType, MatchValue) is
// the primary key.
type ContactRule struct {
	MatchType  MatchType
	MatchValue string
	EntityType Category
	EntityName string
	EntityPath string
}

// Sync state keys persisted in the metadata store.
const (
	SyncKeyDeltaCursor     = "delta_cursor"
	SyncKeyInitialSyncDone = "initial_sync_done"
	SyncKeyLastSyncAt      = "last_sync_at"
	SyncKeyLastSyncError   = "last_sync_error"
	SyncKeyLastAttemptAt   = "last_attempt_at"
)

// MessageBody is the lazily fetched body of a message. Bodies are never
// persisted locally.
type MessageBody struct {
	ContentType string // "html" or "text"
	Content     string
}
