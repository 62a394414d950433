// The annotator worker drains annotation jobs from RabbitMQ and runs the
// LLM pipeline for each one, so page requests never wait on a refresh.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/uhafan/stream-dashboard-go/internal/cache"
	"github.com/uhafan/stream-dashboard-go/internal/config"
	"github.com/uhafan/stream-dashboard-go/internal/queue"
	"github.com/uhafan/stream-dashboard-go/internal/service/enrich"
	"github.com/uhafan/stream-dashboard-go/internal/service/linkrepo"
	"github.com/uhafan/stream-dashboard-go/internal/service/lmstudio"
	"github.com/uhafan/stream-dashboard-go/internal/service/youtube"
	"github.com/uhafan/stream-dashboard-go/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.YouTube.APIKey == "" {
		logger.Log.Fatal("YouTube API key is required for the annotator worker")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := openStore(ctx, cfg.Cache)
	if err != nil {
		logger.Log.Fatal("Failed to open cache store", zap.Error(err))
	}
	defer store.Close()

	ytClient, err := youtube.NewClient(ctx, cfg.YouTube.APIKey, cfg.YouTube.ChannelID,
		int64(cfg.YouTube.DailyQuota), cfg.YouTube.Timeout)
	if err != nil {
		logger.Log.Fatal("Failed to initialize YouTube client", zap.Error(err))
	}

	llm := lmstudio.NewClient(lmstudio.Config{
		BaseURL:     cfg.LMStudio.BaseURL,
		Model:       cfg.LMStudio.Model,
		MaxTokens:   cfg.LMStudio.MaxTokens,
		Temperature: cfg.LMStudio.Temperature,
		Timeout:     cfg.LMStudio.Timeout,
	})

	links := linkrepo.NewClient(cfg.LinkRepo.BaseURL, cfg.LinkRepo.Timeout)

	service := enrich.New(store, links, ytClient, llm, nil, enrich.Options{
		Concurrency: cfg.Enrich.Concurrency,
		CallTimeout: cfg.Enrich.CallTimeout,
		PageTimeout: cfg.Enrich.PageTimeout,
		ServeStale:  cfg.Enrich.ServeStale,
	})

	consumer, err := queue.NewConsumer(&cfg.RabbitMQ, service)
	if err != nil {
		logger.Log.Fatal("Failed to connect consumer", zap.Error(err))
	}
	defer consumer.Close()

	logger.Log.Info("Annotator worker started",
		zap.String("queue", cfg.RabbitMQ.Queue),
		zap.String("model", cfg.LMStudio.Model),
	)

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Log.Fatal("Consumer stopped", zap.Error(err))
	}

	logger.Log.Info("Annotator worker stopped gracefully")
}

func openStore(ctx context.Context, cfg config.CacheConfig) (cache.Store, error) {
	switch cfg.Driver {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		return cache.NewPostgres(ctx, pool)
	case "sqlite", "":
		return cache.OpenSQLite(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}
