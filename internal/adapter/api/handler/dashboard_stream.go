package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/V4T54L/marketplace-pulse/internal/domain"
)

const defaultKeepAlive = 15 * time.Second

// DashboardStream relays a recruiter's dashboard notifications as
// server-sent events.
type DashboardStream struct {
	subscriber domain.DashboardSubscriber
	logger     *slog.Logger
	keepAlive  time.Duration
}

func NewDashboardStream(subscriber domain.DashboardSubscriber, logger *slog.Logger) *DashboardStream {
	return &DashboardStream{
		subscriber: subscriber,
		logger:     logger.With("component", "dashboard_stream"),
		keepAlive:  defaultKeepAlive,
	}
}

// ServeHTTP handles GET /dashboard/stream?recruiter_id=.
func (s *DashboardStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	recruiterID := r.URL.Query().Get("recruiter_id")
	if recruiterID == "" {
		http.Error(w, "recruiter_id is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	channel := domain.DashboardChannelName(recruiterID)
	messages, unsubscribe, err := s.subscriber.Subscribe(ctx, channel)
	if err != nil {
		s.logger.Error("failed to subscribe", "channel", channel, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.logger.Info("SSE client connected", "recruiter_id", recruiterID)
	defer s.logger.Info("SSE client disconnected", "recruiter_id", recruiterID)

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", domain.DashboardUpdateType, msg)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}
