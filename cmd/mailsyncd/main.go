package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/nhle/mailsync/internal/bootstrap"
	"github.com/nhle/mailsync/internal/credential"
	"github.com/nhle/mailsync/internal/graph"
	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/store"
	syncer "github.com/nhle/mailsync/internal/sync"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("starting mailsync daemon")

	cfg, err := model.LoadConfig(model.DefaultConfigPath())
	if err != nil {
		logger.Fatal("loading config", zap.Error(err))
	}

	creds, err := credential.OpenKeyring()
	if err != nil {
		logger.Fatal("opening credential store", zap.Error(err))
	}

	st, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("opening metadata store", zap.Error(err))
	}
	defer st.Close()

	logger.Info("metadata store ready", zap.String("path", cfg.DatabasePath))

	ctx, stop := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	if cfg.Bootstrap.KnowledgeBasePath != "" {
		seeded, err := bootstrap.Run(
			ctx, st, cfg.Bootstrap.KnowledgeBasePath, cfg.Bootstrap.InternalDomain,
		)
		if err != nil {
			logger.Warn("bootstrapping contact rules", zap.Error(err))
		} else {
			logger.Info("contact rules seeded", zap.Int("rules", seeded))
		}
	}

	tenantID, err := graph.ResolveTenantID(creds, cfg.Sync.TenantID)
	if err != nil {
		logger.Fatal("resolving tenant id", zap.Error(err))
	}

	tokens := graph.NewTokenManager(creds, tenantID)
	client := graph.NewClient(tokens)

	sink := syncer.NewChannelSink(64)
	orch := syncer.NewOrchestrator(st, client, sink, cfg.Sync.InitialFetchLimit)
	worker := syncer.NewWorker(orch, st, logger)

	go logEvents(ctx, logger, sink.Events())
	go worker.Run(ctx)

	logger.Info("background sync running")

	<-ctx.Done()
	logger.Info("shutting down")
}

// logEvents mirrors sync progress into the log until ctx is cancelled.
func logEvents(ctx context.Context, logger *zap.Logger, events <-chan syncer.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			switch ev.Kind {
			case syncer.EventSyncStarted:
				logger.Info("sync started", zap.String("run", ev.RunID))
			case syncer.EventSyncProgress:
				logger.Debug("sync progress",
					zap.String("run", ev.RunID),
					zap.Int("processed", ev.Processed),
					zap.Int("total", ev.Total),
				)
			case syncer.EventSyncDone:
				logger.Info("sync done",
					zap.String("run", ev.RunID),
					zap.Int("changes", ev.Count),
					zap.Int("skipped", ev.Skipped),
				)
			case syncer.EventSyncError:
				logger.Warn("sync error",
					zap.String("run", ev.RunID),
					zap.String("message", ev.Message),
					zap.Bool("retryable", ev.Retryable),
				)
			}
		}
	}
}
