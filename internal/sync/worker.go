package sync

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/mailsync/internal/graph"
	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/store"
)

const (
	defaultWarmup   = 10 * time.Second
	defaultInterval = 5 * time.Minute
)

// Worker drives the orchestrator on a fixed cadence in the background.
// One cycle per tick; a manual trigger runs a cycle immediately. The
// worker never terminates the process on a failed cycle, it logs and
// waits for the next tick.
type Worker struct {
	orch   *Orchestrator
	store  store.Store
	logger *zap.Logger

	// Warmup and Interval are fixed at construction; tests shorten them.
	warmup   time.Duration
	interval time.Duration

	triggerCh chan struct{}

	// paused is set after an auth error. Automatic cycles stop until a
	// manual trigger succeeds, so a revoked grant does not burn the
	// token endpoint every five minutes.
	paused bool
}

// NewWorker creates a background worker with the default warm-up delay
// and cadence.
func NewWorker(orch *Orchestrator, s store.Store, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		orch:      orch,
		store:     s,
		logger:    logger,
		warmup:    defaultWarmup,
		interval:  defaultInterval,
		triggerCh: make(chan struct{}, 1),
	}
}

// Trigger requests an immediate sync cycle. Non-blocking; if a trigger
// is already pending the request is folded into it.
func (w *Worker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled. It waits out the warm-up delay,
// then executes one sync cycle per interval tick or manual trigger.
func (w *Worker) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(w.warmup):
	}

	w.cycle(ctx, false)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cycle(ctx, false)
		case <-w.triggerCh:
			w.cycle(ctx, true)
		}
	}
}

// cycle runs a single sync pass. Automatic passes are skipped while
// paused; manual triggers always run and clear the pause on success.
func (w *Worker) cycle(ctx context.Context, manual bool) {
	if w.paused && !manual {
		w.logger.Debug("sync paused after auth error, waiting for manual trigger")
		return
	}

	done, err := w.store.GetSyncState(ctx, model.SyncKeyInitialSyncDone)
	if err != nil {
		w.logger.Warn("store unavailable, skipping cycle", zap.Error(err))
		return
	}

	// The first snapshot is user-initiated; automatic ticks stay idle
	// until it has happened.
	if done != "true" && !manual {
		w.logger.Debug("initial sync pending, waiting for manual trigger")
		return
	}

	start := time.Now()

	var count int
	if done == "true" {
		count, err = w.orch.RunIncrementalSync(ctx)
	} else {
		count, err = w.orch.RunInitialSync(ctx)
	}

	switch {
	case err == nil:
		w.paused = false
		w.logger.Info("sync cycle complete",
			zap.Int("changes", count),
			zap.Duration("elapsed", time.Since(start)),
		)
	case errors.Is(err, ErrSyncInProgress):
		w.logger.Debug("sync already running, skipping cycle")
	case graph.IsAuthError(err):
		w.paused = true
		w.logger.Error("authentication failed, pausing background sync", zap.Error(err))
	case errors.Is(err, context.Canceled):
	default:
		w.logger.Warn("sync cycle failed", zap.Error(err))
	}
}
