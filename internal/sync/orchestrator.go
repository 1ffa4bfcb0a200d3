package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/mailsync/internal/classify"
	"github.com/nhle/mailsync/internal/graph"
	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/store"
)

// ErrSyncInProgress is returned when a sync is requested while another
// one holds the single-writer lane.
var ErrSyncInProgress = errors.New("sync already in progress")

// pageSize is how many upserts are committed per transaction during the
// initial snapshot.
const pageSize = 50

// MailAPI is the slice of the mail client the orchestrator drives.
type MailAPI interface {
	ListFolders(ctx context.Context) ([]model.Folder, error)
	FetchMessages(ctx context.Context, maxCount int, filter string) ([]model.Message, error)
	DeltaMessages(ctx context.Context, cursor string) ([]graph.Change, string, error)
}

// Orchestrator coordinates the mail client, classifier, and metadata
// store. All writes go through its mutex: at any instant at most one
// task executes sync-side writes against the store.
type Orchestrator struct {
	store store.Store
	mail  MailAPI
	sink  EventSink

	// initialFetchLimit caps the first mailbox snapshot.
	initialFetchLimit int

	mu  gosync.Mutex
	now func() time.Time
}

// NewOrchestrator creates a sync orchestrator. A nil sink discards
// events.
func NewOrchestrator(
	s store.Store,
	mail MailAPI,
	sink EventSink,
	initialFetchLimit int,
) *Orchestrator {
	if sink == nil {
		sink = nopSink{}
	}
	if initialFetchLimit <= 0 {
		initialFetchLimit = 500
	}
	return &Orchestrator{
		store:             s,
		mail:              mail,
		sink:              sink,
		initialFetchLimit: initialFetchLimit,
		now:               time.Now,
	}
}

// RunInitialSync takes the first mailbox snapshot: recent headers up to
// the configured ceiling, a full delta round to establish the cursor,
// and the initial_sync_done flag. Returns the number of stored rows.
func (o *Orchestrator) RunInitialSync(ctx context.Context) (int, error) {
	if !o.mu.TryLock() {
		return 0, ErrSyncInProgress
	}
	defer o.mu.Unlock()

	return o.runInitialLocked(ctx)
}

// RunIncrementalSync applies all changes since the stored delta cursor.
// With no cursor it falls back to a full initial sync; an expired
// cursor (410) is dropped and recovered the same way. Returns the
// number of new or changed rows, deletions included.
func (o *Orchestrator) RunIncrementalSync(ctx context.Context) (int, error) {
	if !o.mu.TryLock() {
		return 0, ErrSyncInProgress
	}
	defer o.mu.Unlock()

	cursor, err := o.store.GetSyncState(ctx, model.SyncKeyDeltaCursor)
	if err != nil {
		return 0, fmt.Errorf("reading delta cursor: %w", err)
	}
	if cursor == "" {
		return o.runInitialLocked(ctx)
	}

	runID := uuid.New().String()
	o.sink.Emit(Event{Kind: EventSyncStarted, RunID: runID})
	o.stampAttempt(ctx)

	changes, newCursor, err := o.mail.DeltaMessages(ctx, cursor)
	if err != nil {
		if graph.IsCursorExpired(err) {
			// The provider forgot our cursor; existing rows stay put
			// and a fresh snapshot re-establishes it.
			if err := o.store.SetSyncState(ctx, model.SyncKeyDeltaCursor, ""); err != nil {
				return 0, o.failSync(ctx, runID, err)
			}
			if err := o.store.SetSyncState(ctx, model.SyncKeyInitialSyncDone, "false"); err != nil {
				return 0, o.failSync(ctx, runID, err)
			}
			return o.runInitialLocked(ctx)
		}
		return 0, o.failSync(ctx, runID, err)
	}

	batch := store.SyncBatch{
		State: map[string]string{
			model.SyncKeyDeltaCursor:   newCursor,
			model.SyncKeyLastSyncAt:    o.now().UTC().Format(time.RFC3339),
			model.SyncKeyLastSyncError: "",
		},
	}

	skipped := 0
	for _, change := range changes {
		if change.Removed {
			batch.Deletes = append(batch.Deletes, change.Message.ID)
			continue
		}
		msg, ok, err := o.classifyAndScore(ctx, change.Message)
		if err != nil {
			// A rule-lookup failure is a storage problem, not a bad row.
			// Fail before the batch so the cursor does not advance past
			// rows we never stored.
			return 0, o.failSync(ctx, runID, err)
		}
		if !ok {
			// Malformed provider payload; skip the row, keep the batch.
			skipped++
			continue
		}
		batch.Upserts = append(batch.Upserts, msg)
	}

	// The cursor advances atomically with the batch: a failure here
	// rolls everything back and the next cycle replays the delta.
	if err := o.store.ApplySyncBatch(ctx, batch); err != nil {
		return 0, o.failSync(ctx, runID, err)
	}

	count := len(batch.Upserts) + len(batch.Deletes)
	o.sink.Emit(Event{Kind: EventSyncDone, RunID: runID, Count: count, Skipped: skipped})

	return count, nil
}

// Rebuild re-runs the classifier and scorer over every stored message.
// Used after a re-bootstrap changes the contact rule table;
// classification never changes as a side effect of reads or rule edits.
func (o *Orchestrator) Rebuild(ctx context.Context) (int, error) {
	if !o.mu.TryLock() {
		return 0, ErrSyncInProgress
	}
	defer o.mu.Unlock()

	count := 0
	for offset := 0; ; offset += pageSize * 4 {
		msgs, err := o.store.QueryMessages(ctx, store.MessageFilter{
			Limit:  pageSize * 4,
			Offset: offset,
		})
		if err != nil {
			return count, fmt.Errorf("reading messages for rebuild: %w", err)
		}
		if len(msgs) == 0 {
			return count, nil
		}

		batch := store.SyncBatch{}
		for _, msg := range msgs {
			updated, ok, err := o.classifyAndScore(ctx, msg)
			if err != nil {
				return count, fmt.Errorf("reclassifying messages: %w", err)
			}
			if !ok {
				continue
			}
			batch.Upserts = append(batch.Upserts, updated)
		}
		if err := o.store.ApplySyncBatch(ctx, batch); err != nil {
			return count, fmt.Errorf("rebuilding classification: %w", err)
		}
		count += len(batch.Upserts)
	}
}

// runInitialLocked performs the initial snapshot. The caller holds o.mu.
func (o *Orchestrator) runInitialLocked(ctx context.Context) (int, error) {
	runID := uuid.New().String()
	o.sink.Emit(Event{Kind: EventSyncStarted, RunID: runID})
	o.stampAttempt(ctx)

	folders, err := o.mail.ListFolders(ctx)
	if err != nil {
		return 0, o.failSync(ctx, runID, err)
	}
	if err := o.store.UpsertFolders(ctx, folders); err != nil {
		return 0, o.failSync(ctx, runID, err)
	}

	messages, err := o.mail.FetchMessages(ctx, o.initialFetchLimit, "")
	if err != nil {
		return 0, o.failSync(ctx, runID, err)
	}

	count := 0
	skipped := 0
	for start := 0; start < len(messages); start += pageSize {
		end := start + pageSize
		if end > len(messages) {
			end = len(messages)
		}

		batch := store.SyncBatch{}
		for _, msg := range messages[start:end] {
			classified, ok, err := o.classifyAndScore(ctx, msg)
			if err != nil {
				return count, o.failSync(ctx, runID, err)
			}
			if !ok {
				skipped++
				continue
			}
			batch.Upserts = append(batch.Upserts, classified)
		}
		if err := o.store.ApplySyncBatch(ctx, batch); err != nil {
			return count, o.failSync(ctx, runID, err)
		}
		count += len(batch.Upserts)

		o.sink.Emit(Event{
			Kind:      EventSyncProgress,
			RunID:     runID,
			Processed: end,
			Total:     len(messages),
		})
	}

	// Establish the delta cursor with a full round from scratch. Rows
	// returned here were fetched above already; re-upserting them is
	// harmless and keeps the snapshot and the cursor consistent.
	changes, cursor, err := o.mail.DeltaMessages(ctx, "")
	if err != nil {
		return count, o.failSync(ctx, runID, err)
	}

	batch := store.SyncBatch{
		State: map[string]string{
			model.SyncKeyDeltaCursor:     cursor,
			model.SyncKeyInitialSyncDone: "true",
			model.SyncKeyLastSyncAt:      o.now().UTC().Format(time.RFC3339),
			model.SyncKeyLastSyncError:   "",
		},
	}
	for _, change := range changes {
		if change.Removed {
			batch.Deletes = append(batch.Deletes, change.Message.ID)
			continue
		}
		msg, ok, err := o.classifyAndScore(ctx, change.Message)
		if err != nil {
			return count, o.failSync(ctx, runID, err)
		}
		if !ok {
			skipped++
			continue
		}
		batch.Upserts = append(batch.Upserts, msg)
	}
	if err := o.store.ApplySyncBatch(ctx, batch); err != nil {
		return count, o.failSync(ctx, runID, err)
	}

	o.sink.Emit(Event{Kind: EventSyncDone, RunID: runID, Count: count, Skipped: skipped})

	return count, nil
}

// classifyAndScore fills in the classification and priority fields of a
// message. Returns false when the provider payload is unusable (no
// received timestamp); such rows are skipped and the sync continues. A
// classification error means the rule lookup failed and is returned to
// the caller, which fails the whole cycle.
func (o *Orchestrator) classifyAndScore(
	ctx context.Context,
	msg model.Message,
) (model.Message, bool, error) {
	if msg.ReceivedAt.IsZero() {
		return model.Message{}, false, nil
	}

	result, err := classify.Classify(
		ctx, o.store, msg.FromEmail, msg.Subject, msg.BodyPreview,
	)
	if err != nil {
		return model.Message{}, false, fmt.Errorf("classifying %s: %w", msg.ID, err)
	}

	msg.Category = result.Category
	msg.Confidence = result.Confidence
	msg.EntityName = result.EntityName
	msg.EntityPath = result.EntityPath

	score, level := classify.Score(
		result.Category, msg.ReceivedAt, msg.IsRead, msg.Importance, o.now(),
	)
	msg.PriorityScore = score
	msg.PriorityLevel = level
	msg.ActionRequired = classify.ActionRequired(result.Category, score)

	return msg, true, nil
}

// stampAttempt records that a cycle started, success or not.
func (o *Orchestrator) stampAttempt(ctx context.Context) {
	_ = o.store.SetSyncState(
		ctx, model.SyncKeyLastAttemptAt, o.now().UTC().Format(time.RFC3339),
	)
}

// failSync records the error in sync state, emits a single sync-error
// event, and passes the error through. The delta cursor is never
// advanced on a failed cycle.
func (o *Orchestrator) failSync(ctx context.Context, runID string, err error) error {
	_ = o.store.SetSyncState(ctx, model.SyncKeyLastSyncError, err.Error())

	o.sink.Emit(Event{
		Kind:      EventSyncError,
		RunID:     runID,
		Message:   err.Error(),
		Retryable: !graph.IsAuthError(err),
	})

	return err
}
