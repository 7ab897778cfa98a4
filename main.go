package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"event-router/internal/common/logging"
	"event-router/internal/config"
	"event-router/internal/dispatch"
	"event-router/internal/handlers"
	"event-router/internal/ingestion"
	"event-router/internal/middleware"
	"event-router/internal/redis"
	"event-router/internal/routing"
	"event-router/internal/server"
	"event-router/internal/statistics"
	"event-router/internal/storage"
	_ "event-router/internal/storage/postgres"
	_ "event-router/internal/storage/sqlite"
)

func main() {
	// .env is optional; real deployments set environment variables directly
	_ = godotenv.Load()

	logging.InitGlobalLogger()
	defer logging.MustSync()
	logger := logging.GetGlobalLogger()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", err)
		os.Exit(1)
	}

	store, err := storage.NewStorage(cfg)
	if err != nil {
		logger.Error("failed to initialize storage", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("storage initialized", logging.String("type", cfg.DatabaseType))

	var cache routing.RuleCache
	if cfg.RedisAddress != "" {
		redisDB, _ := strconv.Atoi(cfg.RedisDB)
		client, err := redis.NewClient(redis.Config{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       redisDB,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to Redis, rule cache disabled", err)
		} else {
			defer client.Close()
			cache = client
			logger.Info("rule cache enabled",
				logging.String("address", cfg.RedisAddress),
				logging.String("ttl", cfg.RuleCacheTTL))
		}
	}

	var queue dispatch.QueuePublisher
	if cfg.RabbitMQURL != "" {
		publisher, err := dispatch.NewAMQPPublisher(cfg.RabbitMQURL)
		if err != nil {
			logger.Error("failed to connect to RabbitMQ, queue destinations disabled", err)
		} else {
			defer publisher.Close()
			queue = publisher
			logger.Info("queue destinations enabled")
		}
	}

	evaluator := routing.NewEvaluator(store, cache, logger, cfg.GetRuleCacheTTL())
	dispatcher := dispatch.NewDispatcher(store, queue, logger, cfg.GetDispatchTimeout())
	aggregator := statistics.NewAggregator(store, logger)
	pipeline := ingestion.NewPipeline(store, evaluator, dispatcher, aggregator, logger)

	var refresher *statistics.Refresher
	if cfg.StatsRefreshCron != "" {
		refresher = statistics.NewRefresher(aggregator, store, logger, 24*time.Hour)
		if err := refresher.Start(cfg.StatsRefreshCron); err != nil {
			logger.Error("failed to start statistics refresher", err)
			refresher = nil
		}
	}

	h := handlers.New(store, pipeline, evaluator, aggregator, logger)

	srv := server.New(h.Router(), cfg.Port)
	srv.Start()
	logger.Info("event router listening",
		logging.String("port", cfg.Port),
		logging.String("correlation_header", middleware.CorrelationIDHeader))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	if refresher != nil {
		refresher.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", err)
	}
}
