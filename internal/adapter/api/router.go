package api

import (
	"log/slog"
	"net/http"

	"github.com/V4T54L/marketplace-pulse/internal/adapter/api/handler"
	"github.com/V4T54L/marketplace-pulse/internal/adapter/api/middleware"
	"github.com/V4T54L/marketplace-pulse/internal/adapter/metrics"
	"github.com/V4T54L/marketplace-pulse/internal/domain"
	"github.com/V4T54L/marketplace-pulse/internal/pkg/config"
)

// NewRouter creates and configures the main HTTP router for the API service.
func NewRouter(
	cfg config.HTTPConfig,
	logger *slog.Logger,
	m *metrics.PipelineMetrics,
	apiKeyRepo domain.APIKeyRepository,
	presence handler.PresenceService,
	liveCounters handler.LiveCounterReader,
	dashboard domain.DashboardSubscriber,
) http.Handler {
	mux := http.NewServeMux()

	presenceHandler := handler.NewPresenceHandler(presence, m, logger, cfg.MaxBodyBytes)
	liveHandler := handler.NewLiveMetricsHandler(liveCounters, logger)
	streamHandler := handler.NewDashboardStream(dashboard, logger)

	// Middleware
	authMiddleware := middleware.Auth(apiKeyRepo, m, logger)
	rateLimit := middleware.RateLimit(middleware.NewRateLimiter(cfg.HeartbeatRPS, cfg.HeartbeatBurst))

	// Public
	mux.Handle("POST /presence/heartbeat", rateLimit(http.HandlerFunc(presenceHandler.Heartbeat)))

	// Authenticated
	mux.Handle("GET /admin/presence/snapshot", authMiddleware(http.HandlerFunc(presenceHandler.Snapshot)))
	mux.Handle("GET /admin/metrics/live", authMiddleware(liveHandler))
	mux.Handle("GET /dashboard/stream", authMiddleware(streamHandler))

	mux.HandleFunc("GET /health", healthOK)

	return middleware.Logging(logger)(mux)
}

func healthOK(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
