package middleware

import (
	"log/slog"
	"net/http"

	"github.com/V4T54L/marketplace-pulse/internal/adapter/metrics"
	"github.com/V4T54L/marketplace-pulse/internal/domain"
)

const APIKeyHeader = "X-API-Key"

// Auth guards the admin and dashboard routes with the X-API-Key header.
// Rejections are logged with the matched route pattern and counted by reason.
func Auth(repo domain.APIKeyRepository, m *metrics.PipelineMetrics, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With("component", "auth")

	reject := func(w http.ResponseWriter, r *http.Request, reason, msg string) {
		if m != nil {
			m.AuthRejections.WithLabelValues(reason).Inc()
		}
		logger.Warn("request rejected", "reason", reason, "route", route(r), "client_ip", clientIP(r))
		http.Error(w, msg, http.StatusUnauthorized)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get(APIKeyHeader)
			if apiKey == "" {
				reject(w, r, "missing", "Unauthorized: API key required")
				return
			}

			ok, err := repo.IsValid(r.Context(), apiKey)
			if err != nil {
				if m != nil {
					m.AuthRejections.WithLabelValues("error").Inc()
				}
				logger.Error("failed to validate API key", "route", route(r), "error", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			if !ok {
				reject(w, r, "invalid", "Unauthorized: Invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// route is the ServeMux pattern that matched, so logs group by endpoint
// rather than by raw URL.
func route(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return r.URL.Path
}
