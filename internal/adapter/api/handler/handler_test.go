package handler

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/V4T54L/marketplace-pulse/internal/adapter/metrics"
	"github.com/V4T54L/marketplace-pulse/internal/domain"
	"github.com/V4T54L/marketplace-pulse/internal/domain/mocks"
)

// MockPresenceService is a mock implementation of PresenceService.
type MockPresenceService struct {
	RecordFunc   func(ctx context.Context, hb domain.Heartbeat) error
	SnapshotFunc func(ctx context.Context) (domain.PresenceSnapshot, error)
}

func (m *MockPresenceService) RecordHeartbeat(ctx context.Context, hb domain.Heartbeat) error {
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, hb)
	}
	return nil
}

func (m *MockPresenceService) GetSnapshot(ctx context.Context) (domain.PresenceSnapshot, error) {
	if m.SnapshotFunc != nil {
		return m.SnapshotFunc(ctx)
	}
	return domain.PresenceSnapshot{}, nil
}

func TestPresenceHandler_Heartbeat(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name           string
		body           string
		recordErr      error
		expectedStatus int
		expectedLabel  string
	}{
		{
			name:           "Valid heartbeat",
			body:           `{"session_id":"sess-12345678","app":"portal","page":"/jobs","status":"active"}`,
			expectedStatus: http.StatusNoContent,
			expectedLabel:  "accepted",
		},
		{
			name:           "Client user type is dropped",
			body:           `{"session_id":"sess-12345678","app":"portal","status":"active","user_type":"admin"}`,
			expectedStatus: http.StatusNoContent,
			expectedLabel:  "accepted",
		},
		{
			name:           "Invalid JSON",
			body:           `{"session_id":`,
			expectedStatus: http.StatusBadRequest,
			expectedLabel:  "rejected",
		},
		{
			name:           "Validation failure",
			body:           `{"session_id":"short","app":"portal","status":"active"}`,
			recordErr:      fmt.Errorf("%w: session_id must be 8-64 characters", domain.ErrInvalidHeartbeat),
			expectedStatus: http.StatusBadRequest,
			expectedLabel:  "rejected",
		},
		{
			name:           "Store failure",
			body:           `{"session_id":"sess-12345678","app":"portal","status":"active"}`,
			recordErr:      errors.New("redis: connection refused"),
			expectedStatus: http.StatusInternalServerError,
			expectedLabel:  "failed",
		},
		{
			name:           "Payload too large",
			body:           `{"session_id":"sess-12345678","page":"` + strings.Repeat("a", 600) + `"}`,
			expectedStatus: http.StatusRequestEntityTooLarge,
			expectedLabel:  "rejected",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.New(prometheus.NewRegistry())
			var got domain.Heartbeat
			svc := &MockPresenceService{RecordFunc: func(ctx context.Context, hb domain.Heartbeat) error {
				got = hb
				return tt.recordErr
			}}
			h := NewPresenceHandler(svc, m, logger, 512)

			req := httptest.NewRequest(http.MethodPost, "/presence/heartbeat", bytes.NewBufferString(tt.body))
			rr := httptest.NewRecorder()
			h.Heartbeat(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, tt.expectedStatus)
			}
			if v := testutil.ToFloat64(m.HeartbeatsTotal.WithLabelValues(tt.expectedLabel)); v != 1 {
				t.Errorf("expected %s counted once, got %v", tt.expectedLabel, v)
			}
			if tt.expectedStatus == http.StatusNoContent && got.SessionID != "sess-12345678" {
				t.Errorf("heartbeat not passed through: %+v", got)
			}
			if got.UserType != "" {
				t.Errorf("user type must not be read from the body, got %q", got.UserType)
			}
		})
	}
}

func TestPresenceHandler_Snapshot(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("Returns the snapshot", func(t *testing.T) {
		m := metrics.New(prometheus.NewRegistry())
		svc := &MockPresenceService{SnapshotFunc: func(ctx context.Context) (domain.PresenceSnapshot, error) {
			return domain.PresenceSnapshot{TotalOnline: 3, Authenticated: 2, Anonymous: 1, ByApp: map[string]int{"portal": 3}}, nil
		}}
		rr := httptest.NewRecorder()
		NewPresenceHandler(svc, m, logger, 512).Snapshot(rr, httptest.NewRequest(http.MethodGet, "/admin/presence/snapshot", nil))

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		var snap domain.PresenceSnapshot
		if err := json.Unmarshal(rr.Body.Bytes(), &snap); err != nil {
			t.Fatalf("invalid json: %v", err)
		}
		if snap.TotalOnline != 3 || snap.ByApp["portal"] != 3 {
			t.Errorf("unexpected snapshot %+v", snap)
		}
		if got := testutil.ToFloat64(m.OnlineSessions); got != 3 {
			t.Errorf("expected online gauge 3, got %v", got)
		}
	})

	t.Run("Failure is a 500", func(t *testing.T) {
		svc := &MockPresenceService{SnapshotFunc: func(ctx context.Context) (domain.PresenceSnapshot, error) {
			return domain.PresenceSnapshot{}, errors.New("redis down")
		}}
		rr := httptest.NewRecorder()
		NewPresenceHandler(svc, metrics.New(prometheus.NewRegistry()), logger, 512).Snapshot(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rr.Code)
		}
	})
}

type stubCounters struct {
	hour   time.Time
	counts map[string]int64
	err    error
}

func (s *stubCounters) Counts(ctx context.Context, hour time.Time) (map[string]int64, error) {
	s.hour = hour
	return s.counts, s.err
}

func TestLiveMetricsHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := time.Date(2026, 10, 14, 9, 42, 0, 0, time.UTC)

	tests := []struct {
		name           string
		query          string
		err            error
		expectedStatus int
		expectedHour   time.Time
	}{
		{name: "Defaults to the current hour", expectedStatus: http.StatusOK, expectedHour: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)},
		{name: "Explicit hour", query: "?hour=2026101307", expectedStatus: http.StatusOK, expectedHour: time.Date(2026, 10, 13, 7, 0, 0, 0, time.UTC)},
		{name: "Bad hour", query: "?hour=yesterday", expectedStatus: http.StatusBadRequest},
		{name: "Store failure", err: errors.New("timeout"), expectedStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counters := &stubCounters{counts: map[string]int64{"applications_submitted": 4}, err: tt.err}
			h := NewLiveMetricsHandler(counters, logger)
			h.now = func() time.Time { return now }

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/metrics/live"+tt.query, nil))

			if rr.Code != tt.expectedStatus {
				t.Fatalf("expected %d, got %d", tt.expectedStatus, rr.Code)
			}
			if tt.expectedStatus != http.StatusOK {
				return
			}
			if !counters.hour.Equal(tt.expectedHour) {
				t.Errorf("queried hour %v, want %v", counters.hour, tt.expectedHour)
			}
			var resp liveMetricsResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if resp.Counts["applications_submitted"] != 4 {
				t.Errorf("unexpected counts %v", resp.Counts)
			}
		})
	}
}

func TestDashboardStream(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("Missing recruiter id", func(t *testing.T) {
		rr := httptest.NewRecorder()
		NewDashboardStream(&mocks.MockDashboardChannel{}, logger).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard/stream", nil))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("Subscribe failure", func(t *testing.T) {
		rr := httptest.NewRecorder()
		ch := &mocks.MockDashboardChannel{Err: errors.New("redis down")}
		NewDashboardStream(ch, logger).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard/stream?recruiter_id=r-1", nil))
		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rr.Code)
		}
	})

	t.Run("Relays published updates", func(t *testing.T) {
		ch := &mocks.MockDashboardChannel{}
		srv := httptest.NewServer(NewDashboardStream(ch, logger))
		defer srv.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?recruiter_id=r-1", nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
			t.Fatalf("unexpected content type %q", ct)
		}

		channel := domain.DashboardChannelName("r-1")
		for ch.Subscribers(channel) == 0 {
			select {
			case <-ctx.Done():
				t.Fatal("stream never subscribed")
			case <-time.After(5 * time.Millisecond):
			}
		}
		ch.Publish(ctx, channel, []byte(`{"type":"dashboard.update"}`))

		reader := bufio.NewReader(resp.Body)
		var lines []string
		for len(lines) < 2 {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read failed: %v", err)
			}
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, line)
			}
		}
		if lines[0] != "event: dashboard.update" || lines[1] != `data: {"type":"dashboard.update"}` {
			t.Errorf("unexpected frame %q", lines)
		}
	})
}
