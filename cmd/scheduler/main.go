package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/marketplace-pulse/internal/adapter/api"
	"github.com/V4T54L/marketplace-pulse/internal/adapter/metrics"
	"github.com/V4T54L/marketplace-pulse/internal/adapter/repository/postgres"
	redisrepo "github.com/V4T54L/marketplace-pulse/internal/adapter/repository/redis"
	"github.com/V4T54L/marketplace-pulse/internal/adapter/scheduler"
	"github.com/V4T54L/marketplace-pulse/internal/pkg/config"
	"github.com/V4T54L/marketplace-pulse/internal/pkg/logger"
	"github.com/V4T54L/marketplace-pulse/internal/supervisor"
	"github.com/V4T54L/marketplace-pulse/internal/usecase"
)

func main() {
	runOnce := flag.String("run", "", "run the named job once and exit (e.g. hourly_rollup)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

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

	rollup := usecase.NewRollupUseCase(postgres.NewEventRepository(db, log), postgres.NewMetricRepository(db), log)
	healthRepo := postgres.NewHealthRepository(db)
	health := usecase.NewMarketplaceHealthUseCase(healthRepo, healthRepo, log)
	presence := usecase.NewPresenceUseCase(
		redisrepo.NewPresenceRepository(redisClient, log),
		postgres.NewPresenceSnapshotRepository(db),
		usecase.PresenceConfig{
			StaleAfter:      cfg.Presence.StaleAfter,
			SessionTTL:      cfg.Presence.SessionTTL,
			TimelineTTL:     cfg.Presence.TimelineTTL,
			TimelineMinutes: cfg.Presence.TimelineMinutes,
		},
		log,
	)

	sched := scheduler.New(m, log)
	for _, job := range buildJobs(cfg.Schedules, rollup, health, presence, m) {
		if err := sched.Register(job); err != nil {
			log.Error("failed to register job", "error", err)
			os.Exit(1)
		}
	}

	if *runOnce != "" {
		if err := sched.Trigger(ctx, *runOnce); err != nil {
			log.Error("job run failed", "job", *runOnce, "error", err)
			os.Exit(1)
		}
		return
	}

	adminServer := &http.Server{
		Addr: cfg.HTTP.AdminAddr,
		Handler: api.NewAdminRouter(prometheus.DefaultGatherer, map[string]api.Check{
			"postgres": db.PingContext,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		}, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	sup := supervisor.New("scheduler", log)
	sup.Add(sched)
	sup.Add(supervisor.NewHTTPService("admin-server", adminServer))

	log.Info("scheduler running", "admin_addr", cfg.HTTP.AdminAddr)
	if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("supervisor stopped", "error", err)
		os.Exit(1)
	}
	log.Info("scheduler shut down gracefully")
}
