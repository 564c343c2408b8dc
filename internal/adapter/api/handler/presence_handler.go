package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/V4T54L/marketplace-pulse/internal/adapter/metrics"
	"github.com/V4T54L/marketplace-pulse/internal/domain"
)

// PresenceService is implemented by usecase.PresenceUseCase.
type PresenceService interface {
	RecordHeartbeat(ctx context.Context, hb domain.Heartbeat) error
	GetSnapshot(ctx context.Context) (domain.PresenceSnapshot, error)
}

// PresenceHandler serves heartbeat ingestion and the admin snapshot.
type PresenceHandler struct {
	svc          PresenceService
	metrics      *metrics.PipelineMetrics
	logger       *slog.Logger
	maxBodyBytes int64
}

func NewPresenceHandler(svc PresenceService, m *metrics.PipelineMetrics, logger *slog.Logger, maxBodyBytes int64) *PresenceHandler {
	return &PresenceHandler{
		svc:          svc,
		metrics:      m,
		logger:       logger.With("component", "presence_handler"),
		maxBodyBytes: maxBodyBytes,
	}
}

// Heartbeat handles POST /presence/heartbeat.
func (h *PresenceHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.metrics.HeartbeatsTotal.WithLabelValues("rejected").Inc()
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			http.Error(w, "Payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	var hb domain.Heartbeat
	if err := json.Unmarshal(body, &hb); err != nil {
		h.metrics.HeartbeatsTotal.WithLabelValues("rejected").Inc()
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if err := h.svc.RecordHeartbeat(r.Context(), hb); err != nil {
		if errors.Is(err, domain.ErrInvalidHeartbeat) {
			h.metrics.HeartbeatsTotal.WithLabelValues("rejected").Inc()
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.metrics.HeartbeatsTotal.WithLabelValues("failed").Inc()
		h.logger.Error("failed to record heartbeat", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.metrics.HeartbeatsTotal.WithLabelValues("accepted").Inc()
	w.WriteHeader(http.StatusNoContent)
}

// Snapshot handles GET /admin/presence/snapshot.
func (h *PresenceHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.svc.GetSnapshot(r.Context())
	if err != nil {
		h.logger.Error("failed to compute presence snapshot", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	h.metrics.OnlineSessions.Set(float64(snapshot.TotalOnline))
	writeJSON(w, h.logger, http.StatusOK, snapshot)
}
