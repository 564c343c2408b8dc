package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/marketplace-pulse/internal/adapter/api"
	"github.com/V4T54L/marketplace-pulse/internal/adapter/broker"
	"github.com/V4T54L/marketplace-pulse/internal/adapter/metrics"
	"github.com/V4T54L/marketplace-pulse/internal/adapter/pii"
	"github.com/V4T54L/marketplace-pulse/internal/adapter/repository/postgres"
	redisrepo "github.com/V4T54L/marketplace-pulse/internal/adapter/repository/redis"
	"github.com/V4T54L/marketplace-pulse/internal/adapter/resilience"
	"github.com/V4T54L/marketplace-pulse/internal/pkg/config"
	"github.com/V4T54L/marketplace-pulse/internal/pkg/logger"
	"github.com/V4T54L/marketplace-pulse/internal/supervisor"
	"github.com/V4T54L/marketplace-pulse/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("starting event consumer")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	// Connect to PostgreSQL
	db, err := postgres.Open(ctx, cfg.PostgresURL)
	if err != nil {
		log.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if cfg.ApplySchema {
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			log.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
	}
	log.Info("connected to postgres")

	// Connect to Redis
	redisOpts, err := redis.ParseURL(cfg.RedisAddr)
	if err != nil {
		log.Error("failed to parse redis url", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	log.Info("connected to redis")

	breakerCfg := resilience.BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		OpenTimeout:      cfg.Breaker.OpenTimeout,
		Interval:         cfg.Breaker.Interval,
	}
	cacheStore := resilience.NewCacheStore(redisrepo.NewCacheRepository(redisClient), breakerCfg, m, log)
	dashboard := resilience.NewDashboardChannel(redisrepo.NewDashboardChannel(redisClient, log), breakerCfg, m, log)

	processEvents := usecase.NewProcessEventUseCase(
		postgres.NewEventRepository(db, log),
		redisrepo.NewCounterRepository(redisClient),
		usecase.NewCacheInvalidator(cacheStore, log),
		usecase.NewDashboardPublisher(dashboard, log),
		pii.NewRedactor(cfg.PIIRedactionFields),
		log,
	)

	consumerTag := cfg.Broker.ConsumerTag
	if consumerTag == "" {
		consumerTag, err = os.Hostname()
		if err != nil {
			log.Warn("could not get hostname for consumer tag, using default", "error", err)
			consumerTag = "analytics-consumer"
		}
	}
	consumer := broker.NewConsumer(cfg.Broker.URL, consumerTag, broker.Topology{
		Exchange:           cfg.Broker.Exchange,
		Queue:              cfg.Broker.Queue,
		DeadLetterExchange: cfg.Broker.DeadLetterExchange,
		DeadLetterQueue:    cfg.Broker.DeadLetterQueue,
		Bindings:           cfg.Broker.Bindings,
	}, processEvents, m, log)

	adminServer := &http.Server{
		Addr: cfg.HTTP.AdminAddr,
		Handler: api.NewAdminRouter(prometheus.DefaultGatherer, map[string]api.Check{
			"postgres": db.PingContext,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		}, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	sup := supervisor.New("consumer", log)
	sup.Add(consumer)
	sup.Add(supervisor.NewHTTPService("admin-server", adminServer))

	log.Info("consumer running", "queue", cfg.Broker.Queue, "consumer_tag", consumerTag, "admin_addr", cfg.HTTP.AdminAddr)
	if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("supervisor stopped", "error", err)
		os.Exit(1)
	}
	log.Info("consumer shut down gracefully")
}
