package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/uhafan/stream-dashboard-go/internal/cache"
	"github.com/uhafan/stream-dashboard-go/internal/config"
	"github.com/uhafan/stream-dashboard-go/internal/handler"
	"github.com/uhafan/stream-dashboard-go/internal/queue"
	"github.com/uhafan/stream-dashboard-go/internal/service/cafe"
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

	ctx := context.Background()

	store, err := openStore(ctx, cfg.Cache)
	if err != nil {
		logger.Log.Fatal("Failed to open cache store", zap.Error(err))
	}
	defer store.Close()

	logger.Log.Info("Cache store ready", zap.String("driver", cfg.Cache.Driver))

	links := linkrepo.NewClient(cfg.LinkRepo.BaseURL, cfg.LinkRepo.Timeout)

	llm := lmstudio.NewClient(lmstudio.Config{
		BaseURL:     cfg.LMStudio.BaseURL,
		Model:       cfg.LMStudio.Model,
		MaxTokens:   cfg.LMStudio.MaxTokens,
		Temperature: cfg.LMStudio.Temperature,
		Timeout:     cfg.LMStudio.Timeout,
	})

	// YouTube API client (optional, only when an API key is provided).
	var ytClient *youtube.Client
	if cfg.YouTube.APIKey != "" {
		ytClient, err = youtube.NewClient(ctx, cfg.YouTube.APIKey, cfg.YouTube.ChannelID,
			int64(cfg.YouTube.DailyQuota), cfg.YouTube.Timeout)
		if err != nil {
			logger.Log.Warn("Failed to initialize YouTube client, base attributes will not be fetched",
				zap.Error(err))
		}
	} else {
		logger.Log.Info("YouTube API key not configured, serving cached and identity-only records")
	}

	// Job publisher (optional, only when the broker is enabled).
	var publisher *queue.Publisher
	if cfg.RabbitMQ.Enabled {
		publisher, err = queue.NewPublisher(&cfg.RabbitMQ)
		if err != nil {
			logger.Log.Warn("Failed to connect publisher, annotation refresh will run synchronously",
				zap.Error(err))
		}
	}

	opts := enrich.Options{
		Concurrency: cfg.Enrich.Concurrency,
		CallTimeout: cfg.Enrich.CallTimeout,
		PageTimeout: cfg.Enrich.PageTimeout,
		ServeStale:  cfg.Enrich.ServeStale,
	}

	var fetcher enrich.RecordFetcher
	if ytClient != nil {
		fetcher = ytClient
	}
	var jobs enrich.JobPublisher
	if publisher != nil {
		jobs = publisher
	}

	service := enrich.New(store, links, fetcher, llm, jobs, opts)

	handlers := handler.Handlers{
		LLM:    handler.NewLLMHandler(service, llm),
		Health: handler.NewHealthHandler(store, brokerProbe(publisher)),
	}
	if ytClient != nil {
		handlers.YouTube = handler.NewYouTubeHandler(ytClient)
	}
	if cfg.Cafe.ClubID != "" {
		scraper := cafe.NewScraper(cfg.Cafe.BaseURL, cfg.Cafe.ClubID, cfg.Cafe.UserAgent, cfg.Cafe.Timeout)
		handlers.Cafe = handler.NewCafeHandler(scraper)
	} else {
		logger.Log.Info("Cafe club id not configured, cafe endpoints disabled")
	}

	router := handler.NewRouter(handlers)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // page assembly can wait on the LLM
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Log.Info("Server starting", zap.Int("port", cfg.Server.Port))
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Log.Fatal("Server error", zap.Error(err))
	case sig := <-shutdown:
		logger.Log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Log.Error("Graceful shutdown failed", zap.Error(err))
			if err := server.Close(); err != nil {
				logger.Log.Error("Failed to close server", zap.Error(err))
			}
		}
		if publisher != nil {
			if err := publisher.Close(); err != nil {
				logger.Log.Error("Failed to close publisher", zap.Error(err))
			}
		}

		logger.Log.Info("Server stopped gracefully")
	}
}

func openStore(ctx context.Context, cfg config.CacheConfig) (cache.Store, error) {
	switch cfg.Driver {
	case "postgres":
		poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("parsing postgres config: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.MaxConnections)
		poolCfg.MinConns = int32(cfg.MinConnections)
		poolCfg.MaxConnIdleTime = cfg.MaxIdleTime
		poolCfg.MaxConnLifetime = cfg.MaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
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

// brokerProbe avoids handing the health handler a typed nil.
func brokerProbe(p *queue.Publisher) handler.BrokerProbe {
	if p == nil {
		return nil
	}
	return p
}
