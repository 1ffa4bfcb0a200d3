package sync

// EventKind names the progress events emitted during a sync cycle.
type EventKind string

const (
	EventSyncStarted  EventKind = "sync-started"
	EventSyncProgress EventKind = "sync-progress"
	EventSyncDone     EventKind = "sync-done"
	EventSyncError    EventKind = "sync-error"
)

// Event is a single progress notification. Delivery is best-effort and
// lossy; anything that must survive lives in the metadata store.
type Event struct {
	Kind  EventKind
	RunID string

	// Processed/Total accompany sync-progress. Total is zero when the
	// batch size is unknown up front.
	Processed int
	Total     int

	// Count accompanies sync-done: the number of new or changed rows.
	// Skipped counts provider rows dropped as malformed during the run.
	Count   int
	Skipped int

	// Message and Retryable accompany sync-error.
	Message   string
	Retryable bool
}

// EventSink receives progress events from the sync engine. Emit must
// not block; implementations drop events rather than stall a sync.
type EventSink interface {
	Emit(Event)
}

// ChannelSink forwards events to a buffered channel, dropping events
// when the channel is full.
type ChannelSink struct {
	ch chan Event
}

// NewChannelSink creates a sink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{ch: make(chan Event, buffer)}
}

// Events returns the receive side of the sink.
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

// Emit sends the event without blocking.
func (s *ChannelSink) Emit(ev Event) {
	select {
	case s.ch <- ev:
	default:
		// Drop if the channel is full to avoid blocking the sync.
	}
}

// nopSink discards all events.
type nopSink struct{}

func (nopSink) Emit(Event) {}
