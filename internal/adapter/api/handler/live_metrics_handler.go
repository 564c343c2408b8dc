package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/V4T54L/marketplace-pulse/internal/domain"
)

const liveHourLayout = "2006010215"

// LiveCounterReader reads the consumer's hourly live counters.
type LiveCounterReader interface {
	Counts(ctx context.Context, hour time.Time) (map[string]int64, error)
}

type liveMetricsResponse struct {
	Hour   time.Time        `json:"hour"`
	Counts map[string]int64 `json:"counts"`
}

// LiveMetricsHandler serves GET /admin/metrics/live. The counters are a fast
// approximation; the hourly rollup is the authoritative figure.
type LiveMetricsHandler struct {
	counters LiveCounterReader
	logger   *slog.Logger
	now      func() time.Time
}

func NewLiveMetricsHandler(counters LiveCounterReader, logger *slog.Logger) *LiveMetricsHandler {
	return &LiveMetricsHandler{counters: counters, logger: logger.With("component", "live_metrics_handler"), now: time.Now}
}

// ServeHTTP accepts an optional ?hour=yyyymmddHH (UTC), defaulting to the current hour.
func (h *LiveMetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	hour := domain.BucketHour.Truncate(h.now().UTC())
	if v := r.URL.Query().Get("hour"); v != "" {
		t, err := time.ParseInLocation(liveHourLayout, v, time.UTC)
		if err != nil {
			http.Error(w, "hour must be formatted as yyyymmddHH", http.StatusBadRequest)
			return
		}
		hour = t
	}

	counts, err := h.counters.Counts(r.Context(), hour)
	if err != nil {
		h.logger.Error("failed to read live counters", "hour", hour, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, liveMetricsResponse{Hour: hour, Counts: counts})
}
