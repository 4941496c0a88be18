package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/analytics"
	"github.com/notifyhub/notification-engine/internal/api"
	"github.com/notifyhub/notification-engine/internal/channel"
	"github.com/notifyhub/notification-engine/internal/config"
	"github.com/notifyhub/notification-engine/internal/db"
	"github.com/notifyhub/notification-engine/internal/domain"
	"github.com/notifyhub/notification-engine/internal/engine"
	"github.com/notifyhub/notification-engine/internal/history"
	"github.com/notifyhub/notification-engine/internal/manager"
	"github.com/notifyhub/notification-engine/internal/preference"
	"github.com/notifyhub/notification-engine/internal/ratelimiter"
	"github.com/notifyhub/notification-engine/internal/scheduler"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx := context.Background()

	// ---- history store (Postgres when configured, in-memory otherwise) ----
	var store history.Store
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()

		if err := db.Migrate(cfg.DatabaseURL, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
		store = history.NewPostgresStore(pool)
	} else {
		logger.Info("no DATABASE_URL set, using in-memory history store")
		store = history.NewMemoryStore()
	}

	// ---- preference store (Redis backing when configured) ----
	var backing preference.Backing
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer client.Close() //nolint:errcheck
		backing = preference.NewRedisBacking(client)
	} else {
		logger.Info("no REDIS_ADDR set, using in-memory preference backing")
		backing = preference.NewMemoryBacking()
	}
	prefs := preference.NewStore(backing, cfg.PreferenceTTL, logger)

	// ---- delivery channels ----
	registry := channel.NewRegistry()
	registerChannels(cfg, registry, logger)

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	instruments := analytics.NewInstruments(reg)
	tracker := analytics.NewTracker(instruments, logger,
		analytics.WithAggregateInterval(cfg.AggregateInterval))

	limiter := ratelimiter.New(ratelimiter.Limits{
		UserPerHour:      cfg.UserPerHour,
		TypePerHour:      cfg.TypePerHour,
		ChannelPerMinute: cfg.ChannelPerMinute,
	})

	eng := engine.New(
		engine.Config{
			Workers:       cfg.Workers,
			QueueCapacity: cfg.QueueCapacity,
			RetryCapacity: cfg.RetryCapacity,
			SendTimeout:   cfg.SendTimeout,
		},
		registry, limiter, store, logger,
		engine.Hooks{
			OnDelivered: func(n *domain.Notification, ch domain.Channel, latency time.Duration) {
				tracker.RecordDelivered(n.ID, ch, time.Now().UTC(), latency)
			},
			OnFailed: func(n *domain.Notification, ch domain.Channel, errMsg string) {
				tracker.RecordFailed(n.ID, ch, time.Now().UTC(), errMsg)
			},
			OnRateLimited: tracker.RecordRateLimited,
			OnExpired:     tracker.RecordExpired,
		},
	)

	mgr := manager.New(
		manager.Config{BulkBatchSize: cfg.BulkBatchSize, BulkPause: cfg.BulkPause},
		eng, prefs, tracker, store, nil, logger,
		scheduler.WithTickInterval(cfg.SchedulerTick),
	)

	// ---- background loops ----
	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	eng.Start(workerCtx)
	go tracker.Run(workerCtx)
	go mgr.Run(workerCtx)
	go pumpQueueDepths(workerCtx, eng, instruments)

	// ---- HTTP server ----
	router := api.NewRouter(mgr, eng, reg, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Stop the scheduler, tracker, and depth pump.
	cancelWorkers()

	// 3. Drain the engine: in-flight delivery attempts finish.
	eng.Shutdown()

	logger.Info("server stopped cleanly")
}

// registerChannels initializes and registers every channel that has
// provider configuration. A channel with no configuration stays
// unregistered and submissions to it fail with a configuration error.
func registerChannels(cfg *config.Config, registry *channel.Registry, logger *zap.Logger) {
	if cfg.SMTPHost != "" {
		email := channel.NewEmailChannel(logger)
		err := email.Initialize(channel.Config{
			"smtp_host": cfg.SMTPHost,
			"smtp_port": strconv.Itoa(cfg.SMTPPort),
			"username":  cfg.SMTPUsername,
			"password":  cfg.SMTPPassword,
			"from":      cfg.SMTPFrom,
		})
		if err != nil {
			logger.Warn("email channel init failed", zap.Error(err))
		} else {
			registry.Register(email)
		}
	}

	timeout := cfg.ProviderTimeout.String()
	if cfg.SMSProviderURL != "" {
		sms := channel.NewSMSChannel(logger)
		err := sms.Initialize(channel.Config{
			"provider_url": cfg.SMSProviderURL,
			"timeout":      timeout,
		})
		if err != nil {
			logger.Warn("sms channel init failed", zap.Error(err))
		} else {
			registry.Register(sms)
		}
	}
	if cfg.PushProviderURL != "" {
		push := channel.NewPushChannel(logger)
		err := push.Initialize(channel.Config{
			"provider_url": cfg.PushProviderURL,
			"timeout":      timeout,
		})
		if err != nil {
			logger.Warn("push channel init failed", zap.Error(err))
		} else {
			registry.Register(push)
		}
	}

	// Webhook needs no provider config; the target URL rides on each
	// notification.
	webhook := channel.NewWebhookChannel(logger)
	if err := webhook.Initialize(channel.Config{"timeout": timeout}); err != nil {
		logger.Warn("webhook channel init failed", zap.Error(err))
	} else {
		registry.Register(webhook)
	}
}

// pumpQueueDepths exports the live queue depths as gauges on a short poll.
func pumpQueueDepths(ctx context.Context, eng *engine.Engine, m *analytics.Instruments) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			submissions, retries := eng.Depths()
			m.QueueDepthSubmissions.Set(float64(submissions))
			m.QueueDepthRetries.Set(float64(retries))
		}
	}
}
