package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/inbox-ai-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/inbox-ai-platform/internal/config"
	"github.com/wolfman30/inbox-ai-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if bootstrap.InProcessWorkers(cfg) {
		logger.Error("ai worker requires a shared queue backend", "backend", cfg.AIQueueBackend)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	infra, err := bootstrap.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect infrastructure", "error", err)
		os.Exit(1)
	}
	defer infra.Close()

	inbox, err := bootstrap.BuildInbox(ctx, cfg, infra, logger)
	if err != nil {
		logger.Error("failed to build inbox", "error", err)
		os.Exit(1)
	}

	worker := inbox.NewWorker(cfg, logger)
	go bootstrap.DrainFailures(ctx, worker.Failures(), logger)
	worker.Start(ctx)
	logger.Info("ai worker started", "backend", cfg.AIQueueBackend, "workers", cfg.AIWorkerCount)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down ai worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("ai worker stopped")
	case <-doneCtx.Done():
		logger.Error("ai worker shutdown timed out", "error", doneCtx.Err())
	}
}
