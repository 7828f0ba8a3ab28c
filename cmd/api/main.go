package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"scriptflow/api/internal/app"
	"scriptflow/api/internal/authpw"
	"scriptflow/api/internal/avatars"
	"scriptflow/api/internal/cache"
	"scriptflow/api/internal/config"
	"scriptflow/api/internal/feed"
	"scriptflow/api/internal/notify"
	"scriptflow/api/internal/poller"
	"scriptflow/api/internal/search"
	"scriptflow/api/internal/session"
	"scriptflow/api/internal/store"
	"scriptflow/api/internal/webhook"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", "err", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		logger.Fatal("migrations failed", "err", err)
	}

	dataStore := store.NewPostgresStore(db)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("invalid redis url", "err", err)
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis connection failed", "err", err)
	}
	defer rdb.Close()

	sessions := session.NewRedisStoreWithClient(rdb)
	bus := feed.NewBus(rdb, logger)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		defer meiliClient.Close()
	}

	var avatarStore *avatars.Store
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		avatarStore, err = avatars.New(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
		if err != nil {
			logger.Fatal("object storage connection failed", "err", err)
		}
		if err := avatarStore.EnsureBucket(ctx); err != nil {
			logger.Warn("avatar bucket setup failed (uploads may not work)", "err", err)
		}
	}

	cacheStore := cache.NewStore()
	notifier := notify.NewLogNotifier(logger)
	webhooks := webhook.NewClient(cfg.ScriptWebhookURL, cfg.IdeaWebhookURL, cfg.WebhookTimeout, webhook.Backoff{})
	completion := poller.New(dataStore, cacheStore, notifier, logger, poller.Options{
		Interval:     cfg.PollInterval,
		RecentWindow: cfg.RecentIdeaWindow,
		KeyFor:       app.IdeasCacheKey,
	})

	service := app.New(cfg, dataStore, sessions, authpw.NewService(dataStore), cacheStore, bus, completion, notifier, webhooks, searchService, avatarStore)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("scriptflow api listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
	service.Shutdown()
	completion.Shutdown()
}
