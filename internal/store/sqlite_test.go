package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/store"
	"github.com/nhle/mailsync/tests/testutil"
)

func testMessage(id string, receivedAt time.Time) model.Message {
	return model.Message{
		ID:             id,
		ConversationID: "conv-" + id,
		Subject:        "Subject " + id,
		FromEmail:      "sender@acme.com",
		FromName:       "Sender",
		To:             []model.Recipient{{Name: "Me", Email: "me@example.com"}},
		ReceivedAt:     receivedAt,
		Importance:     model.ImportanceNormal,
		BodyPreview:    "preview text",
		ParentFolderID: "inbox",
		Category:       model.CategoryClient,
		Confidence:     0.85,
		EntityName:     "Acme Corp",
		PriorityScore:  80,
		PriorityLevel:  model.PriorityHigh,
		ActionRequired: true,
	}
}

func TestUpsertMessageRoundTrip(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	want := testMessage("m1", time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	if err := s.UpsertMessage(ctx, want); err != nil {
		t.Fatalf("UpsertMessage: %v", err)
	}

	got, err := s.GetMessageByID(ctx, "m1")
	if err != nil {
		t.Fatalf("GetMessageByID: %v", err)
	}

	if got.Subject != want.Subject {
		t.Errorf("subject = %q, want %q", got.Subject, want.Subject)
	}
	if got.Category != model.CategoryClient {
		t.Errorf("category = %s, want client", got.Category)
	}
	if got.Confidence != 0.85 {
		t.Errorf("confidence = %v, want 0.85", got.Confidence)
	}
	if !got.ActionRequired {
		t.Error("action required should round-trip")
	}
	if len(got.To) != 1 || got.To[0].Email != "me@example.com" {
		t.Errorf("to = %+v, want one recipient", got.To)
	}
	if !got.ReceivedAt.Equal(want.ReceivedAt) {
		t.Errorf("received at = %v, want %v", got.ReceivedAt, want.ReceivedAt)
	}
}

func TestUpsertMessageIsIdempotent(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	msg := testMessage("m1", time.Now().UTC())
	for i := 0; i < 3; i++ {
		if err := s.UpsertMessage(ctx, msg); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}

	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Total != 1 {
		t.Errorf("total = %d, want 1 after repeated upserts", stats.Total)
	}
}

func TestUpsertLowercasesSenderEmail(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	msg := testMessage("m1", time.Now().UTC())
	msg.FromEmail = "Billing@ACME.com"
	if err := s.UpsertMessage(ctx, msg); err != nil {
		t.Fatalf("UpsertMessage: %v", err)
	}

	got, err := s.GetMessageByID(ctx, "m1")
	if err != nil {
		t.Fatalf("GetMessageByID: %v", err)
	}
	if got.FromEmail != "billing@acme.com" {
		t.Errorf("from = %q, want lower-cased", got.FromEmail)
	}
}

func TestUpsertPreservesArchivedFlag(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	msg := testMessage("m1", time.Now().UTC())
	if err := s.UpsertMessage(ctx, msg); err != nil {
		t.Fatalf("UpsertMessage: %v", err)
	}
	if err := s.SetArchived(ctx, "m1", true); err != nil {
		t.Fatalf("SetArchived: %v", err)
	}

	// A later sync re-upserts the same provider row.
	msg.Subject = "Updated subject"
	msg.IsRead = true
	if err := s.UpsertMessage(ctx, msg); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	got, err := s.GetMessageByID(ctx, "m1")
	if err != nil {
		t.Fatalf("GetMessageByID: %v", err)
	}
	if !got.ArchivedLocally {
		t.Error("archived flag should survive a sync upsert")
	}
	if got.Subject != "Updated subject" {
		t.Errorf("subject = %q, provider fields should still update", got.Subject)
	}
}

func TestHeaderUpsertKeepsClassification(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	msg := testMessage("m1", time.Now().UTC())
	if err := s.UpsertMessage(ctx, msg); err != nil {
		t.Fatalf("UpsertMessage: %v", err)
	}

	// An upsert carrying no category only refreshes provider fields.
	header := msg
	header.Subject = "New subject"
	header.Category = ""
	header.Confidence = 0
	header.EntityName = ""
	header.PriorityScore = 0
	header.PriorityLevel = ""
	if err := s.UpsertMessage(ctx, header); err != nil {
		t.Fatalf("header upsert: %v", err)
	}

	got, err := s.GetMessageByID(ctx, "m1")
	if err != nil {
		t.Fatalf("GetMessageByID: %v", err)
	}
	if got.Subject != "New subject" {
		t.Errorf("subject = %q, want refreshed", got.Subject)
	}
	if got.Category != model.CategoryClient || got.Confidence != 0.85 {
		t.Errorf("classification changed: category=%s confidence=%v",
			got.Category, got.Confidence)
	}
	if got.PriorityScore != 80 {
		t.Errorf("priority score = %d, want 80", got.PriorityScore)
	}
}

func TestGetMessageByIDNotFound(t *testing.T) {
	s := testutil.NewTestStore(t)

	_, err := s.GetMessageByID(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteMessageIsIdempotent(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	if err := s.UpsertMessage(ctx, testMessage("m1", time.Now().UTC())); err != nil {
		t.Fatalf("UpsertMessage: %v", err)
	}
	if err := s.DeleteMessage(ctx, "m1"); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}
	if err := s.DeleteMessage(ctx, "m1"); err != nil {
		t.Errorf("deleting a missing row should not error, got %v", err)
	}
	if err := s.DeleteMessage(ctx, "never-existed"); err != nil {
		t.Errorf("deleting an unknown row should not error, got %v", err)
	}
}

func TestSetArchivedMissingRow(t *testing.T) {
	s := testutil.NewTestStore(t)

	err := s.SetArchived(context.Background(), "missing", true)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestQueryMessagesFilters(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	m1 := testMessage("m1", base) // client, unread, high
	m2 := testMessage("m2", base.Add(-time.Hour))
	m2.Category = model.CategoryNoise
	m2.PriorityScore = 15
	m2.PriorityLevel = model.PriorityLow
	m2.IsRead = true
	m2.FromEmail = "news@list.example.org"
	m2.ActionRequired = false
	m3 := testMessage("m3", base.Add(-2*time.Hour))
	m3.Subject = "Quarterly invoice attached"
	m3.PriorityScore = 55
	m3.PriorityLevel = model.PriorityMedium

	for _, m := range []model.Message{m1, m2, m3} {
		if err := s.UpsertMessage(ctx, m); err != nil {
			t.Fatalf("UpsertMessage %s: %v", m.ID, err)
		}
	}

	t.Run("by category", func(t *testing.T) {
		got, err := s.QueryMessages(ctx, store.MessageFilter{
			Categories: []model.Category{model.CategoryClient},
		})
		if err != nil {
			t.Fatalf("QueryMessages: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("got %d messages, want 2", len(got))
		}
	})

	t.Run("min priority", func(t *testing.T) {
		min := 50
		got, err := s.QueryMessages(ctx, store.MessageFilter{MinPriority: &min})
		if err != nil {
			t.Fatalf("QueryMessages: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("got %d messages, want 2", len(got))
		}
	})

	t.Run("unread only", func(t *testing.T) {
		unread := false
		got, err := s.QueryMessages(ctx, store.MessageFilter{IsRead: &unread})
		if err != nil {
			t.Fatalf("QueryMessages: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("got %d messages, want 2", len(got))
		}
	})

	t.Run("sender domain", func(t *testing.T) {
		domain := "ACME.com"
		got, err := s.QueryMessages(ctx, store.MessageFilter{SenderDomain: &domain})
		if err != nil {
			t.Fatalf("QueryMessages: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("got %d messages, want 2", len(got))
		}
	})

	t.Run("text search", func(t *testing.T) {
		q := "invoice"
		got, err := s.QueryMessages(ctx, store.MessageFilter{Query: &q})
		if err != nil {
			t.Fatalf("QueryMessages: %v", err)
		}
		if len(got) != 1 || got[0].ID != "m3" {
			t.Fatalf("got %+v, want only m3", got)
		}
	})

	t.Run("ordering and pagination", func(t *testing.T) {
		got, err := s.QueryMessages(ctx, store.MessageFilter{Limit: 2})
		if err != nil {
			t.Fatalf("QueryMessages: %v", err)
		}
		if len(got) != 2 || got[0].ID != "m1" || got[1].ID != "m2" {
			t.Fatalf("page = %v, want [m1 m2] newest first",
				[]string{got[0].ID, got[1].ID})
		}

		rest, err := s.QueryMessages(ctx, store.MessageFilter{Limit: 2, Offset: 2})
		if err != nil {
			t.Fatalf("QueryMessages offset: %v", err)
		}
		if len(rest) != 1 || rest[0].ID != "m3" {
			t.Fatalf("second page = %+v, want [m3]", rest)
		}
	})
}

func TestGetStats(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	m1 := testMessage("m1", base)
	m2 := testMessage("m2", base.Add(-time.Hour))
	m2.Category = model.CategoryNoise
	m2.PriorityLevel = model.PriorityLow
	m2.IsRead = true

	for _, m := range []model.Message{m1, m2} {
		if err := s.UpsertMessage(ctx, m); err != nil {
			t.Fatalf("UpsertMessage: %v", err)
		}
	}

	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Total != 2 {
		t.Errorf("total = %d, want 2", stats.Total)
	}
	if stats.Unread != 1 {
		t.Errorf("unread = %d, want 1", stats.Unread)
	}
	if stats.ByCategory[model.CategoryClient] != 1 ||
		stats.ByCategory[model.CategoryNoise] != 1 {
		t.Errorf("by category = %v", stats.ByCategory)
	}
	if stats.ByPriority[model.PriorityHigh] != 1 ||
		stats.ByPriority[model.PriorityLow] != 1 {
		t.Errorf("by priority = %v", stats.ByPriority)
	}
}

func TestApplySyncBatchIsAtomic(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	if err := s.UpsertMessage(ctx, testMessage("old", time.Now().UTC())); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	batch := store.SyncBatch{
		Upserts: []model.Message{testMessage("new", time.Now().UTC())},
		Deletes: []string{"old"},
		State: map[string]string{
			model.SyncKeyDeltaCursor: "cursor-after",
			model.SyncKeyLastSyncAt:  "2026-03-10T12:00:00Z",
		},
	}
	if err := s.ApplySyncBatch(ctx, batch); err != nil {
		t.Fatalf("ApplySyncBatch: %v", err)
	}

	if _, err := s.GetMessageByID(ctx, "old"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("tombstoned row still present: %v", err)
	}
	if _, err := s.GetMessageByID(ctx, "new"); err != nil {
		t.Errorf("upserted row missing: %v", err)
	}

	cursor, err := s.GetSyncState(ctx, model.SyncKeyDeltaCursor)
	if err != nil {
		t.Fatalf("GetSyncState: %v", err)
	}
	if cursor != "cursor-after" {
		t.Errorf("cursor = %q, want cursor-after", cursor)
	}
}

func TestSyncState(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	got, err := s.GetSyncState(ctx, "missing")
	if err != nil {
		t.Fatalf("GetSyncState missing: %v", err)
	}
	if got != "" {
		t.Errorf("missing key = %q, want empty", got)
	}

	if err := s.SetSyncState(ctx, model.SyncKeyDeltaCursor, "c1"); err != nil {
		t.Fatalf("SetSyncState: %v", err)
	}
	if err := s.SetSyncState(ctx, model.SyncKeyDeltaCursor, "c2"); err != nil {
		t.Fatalf("SetSyncState overwrite: %v", err)
	}

	got, err = s.GetSyncState(ctx, model.SyncKeyDeltaCursor)
	if err != nil {
		t.Fatalf("GetSyncState: %v", err)
	}
	if got != "c2" {
		t.Errorf("cursor = %q, want c2", got)
	}
}

func TestContactRules(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	rule := model.ContactRule{
		MatchType:  model.MatchDomain,
		MatchValue: "ACME.com",
		EntityType: model.CategoryClient,
		EntityName: "Acme Corp",
		EntityPath: "3_Clients/by_industry/manufacturing/Acme Corp",
	}
	if err := s.UpsertContact(ctx, rule); err != nil {
		t.Fatalf("UpsertContact: %v", err)
	}
	// Re-seeding the same rule is a no-op.
	if err := s.UpsertContact(ctx, rule); err != nil {
		t.Fatalf("UpsertContact again: %v", err)
	}

	got, err := s.FindContactByDomain(ctx, "acme.com")
	if err != nil {
		t.Fatalf("FindContactByDomain: %v", err)
	}
	if got == nil {
		t.Fatal("rule not found; match values should be stored lower-cased")
	}
	if got.EntityName != "Acme Corp" {
		t.Errorf("entity = %q, want Acme Corp", got.EntityName)
	}

	if missing, err := s.FindContactByDomain(ctx, "unknown.com"); err != nil || missing != nil {
		t.Errorf("unknown domain = (%v, %v), want (nil, nil)", missing, err)
	}

	email := model.ContactRule{
		MatchType:  model.MatchEmail,
		MatchValue: "ceo@acme.com",
		EntityType: model.CategoryDeal,
		EntityName: "Acme Deal",
	}
	if err := s.UpsertContact(ctx, email); err != nil {
		t.Fatalf("UpsertContact email: %v", err)
	}
	byEmail, err := s.FindContactByEmail(ctx, "ceo@acme.com")
	if err != nil {
		t.Fatalf("FindContactByEmail: %v", err)
	}
	if byEmail == nil || byEmail.EntityType != model.CategoryDeal {
		t.Errorf("email rule = %+v, want deal", byEmail)
	}

	noise := model.ContactRule{
		MatchType:  model.MatchNoiseDomain,
		MatchValue: "linkedin.com",
		EntityType: model.CategoryNoise,
	}
	if err := s.UpsertContact(ctx, noise); err != nil {
		t.Fatalf("UpsertContact noise: %v", err)
	}
	isNoise, err := s.IsNoiseDomain(ctx, "linkedin.com")
	if err != nil {
		t.Fatalf("IsNoiseDomain: %v", err)
	}
	if !isNoise {
		t.Error("linkedin.com should be a noise domain")
	}
	isNoise, err = s.IsNoiseDomain(ctx, "acme.com")
	if err != nil {
		t.Fatalf("IsNoiseDomain: %v", err)
	}
	if isNoise {
		t.Error("acme.com should not be a noise domain")
	}
}

func TestFolders(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	folders := []model.Folder{
		{ID: "f2", DisplayName: "Sent Items"},
		{ID: "f1", DisplayName: "Inbox", UnreadCount: 4},
	}
	if err := s.UpsertFolders(ctx, folders); err != nil {
		t.Fatalf("UpsertFolders: %v", err)
	}

	// A refresh updates counts in place.
	folders[1].UnreadCount = 7
	if err := s.UpsertFolders(ctx, folders); err != nil {
		t.Fatalf("UpsertFolders refresh: %v", err)
	}

	got, err := s.ListFolders(ctx)
	if err != nil {
		t.Fatalf("ListFolders: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d folders, want 2", len(got))
	}
	if got[0].DisplayName != "Inbox" {
		t.Errorf("folders should be ordered by name, got %q first", got[0].DisplayName)
	}
	if got[0].UnreadCount != 7 {
		t.Errorf("unread = %d, want 7 after refresh", got[0].UnreadCount)
	}
}
