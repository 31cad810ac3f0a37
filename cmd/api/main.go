package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/inbox-ai-platform/internal/api/router"
	"github.com/wolfman30/inbox-ai-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/inbox-ai-platform/internal/config"
	"github.com/wolfman30/inbox-ai-platform/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/inbox-ai-platform/internal/http/middleware"
	"github.com/wolfman30/inbox-ai-platform/pkg/logging"
)

const limiterIdle = 10 * time.Minute

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting inbox-ai-platform API server", "env", cfg.Env, "port", cfg.Port)

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

	limiter := httpmiddleware.NewRateLimiter(cfg.WebhookRatePerSec, cfg.WebhookRateBurst)
	go evictIdle(ctx, limiter)

	srv := newHTTPServer(cfg, router.New(&router.Config{
		Logger:             logger,
		Webhooks:           newWebhookHandler(cfg, inbox, logger),
		Dashboard:          newDashboardHandler(cfg, inbox, logger),
		Health:             handlers.Health(healthChecks(infra.Pool, infra.Redis)),
		MetricsHandler:     metricsHandler(infra.Registry),
		DashboardJWTSecret: cfg.DashboardJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		WebhookLimiter:     limiter,
	}))

	var worker interface{ Wait() }
	if bootstrap.InProcessWorkers(cfg) {
		w := inbox.NewWorker(cfg, logger)
		go bootstrap.DrainFailures(ctx, w.Failures(), logger)
		w.Start(ctx)
		worker = w
		logger.Info("ai reply workers running in-process", "workers", cfg.AIWorkerCount)
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	inbox.Pipeline.Wait()
	cancel()
	if worker != nil {
		waitCh := make(chan struct{})
		go func() {
			worker.Wait()
			close(waitCh)
		}()
		select {
		case <-waitCh:
		case <-shutdownCtx.Done():
			logger.Error("ai worker shutdown timed out", "error", shutdownCtx.Err())
		}
	}
	logger.Info("server stopped")
}

func newHTTPServer(cfg *appconfig.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func newWebhookHandler(cfg *appconfig.Config, inbox *bootstrap.Inbox, logger *logging.Logger) *handlers.WebhookHandler {
	webhookCfg := handlers.WebhookConfig{
		Connections:  inbox.Connections,
		Ingestor:     inbox.Pipeline,
		BridgeSecret: cfg.WhatsAppBridgeSecret,
		Logger:       logger,
	}
	// A nil *SessionManager stored in the interface would not compare nil.
	if inbox.Sessions != nil {
		webhookCfg.Sessions = inbox.Sessions
	}
	return handlers.NewWebhookHandler(webhookCfg)
}

func newDashboardHandler(cfg *appconfig.Config, inbox *bootstrap.Inbox, logger *logging.Logger) *handlers.DashboardHandler {
	dashCfg := handlers.DashboardConfig{
		Conversations: inbox.Conversations,
		Settings:      inbox.Settings,
		Replies:       inbox.Dispatcher,
		Telegram:      inbox.Telegram,
		Connections:   inbox.Connections,
		PublicBaseURL: cfg.PublicBaseURL,
		Logger:        logger,
	}
	if inbox.Sessions != nil {
		dashCfg.Sessions = inbox.Sessions
	}
	return handlers.NewDashboardHandler(dashCfg)
}

func healthChecks(pool *pgxpool.Pool, redisClient *redis.Client) map[string]handlers.Pinger {
	checks := map[string]handlers.Pinger{}
	if pool != nil {
		checks["postgres"] = handlers.PingFunc(pool.Ping)
	}
	if redisClient != nil {
		checks["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	return checks
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func evictIdle(ctx context.Context, limiter *httpmiddleware.RateLimiter) {
	ticker := time.NewTicker(limiterIdle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			limiter.Evict(now.Add(-limiterIdle))
		}
	}
}
