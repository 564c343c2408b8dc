//go:build integration

// Package integration drives the whole pipeline against real Postgres, Redis
// and RabbitMQ containers: events published to the exchange are consumed,
// stored, counted and rolled up; heartbeats posted to the API show up in the
// admin snapshot.
package integration

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/V4T54L/marketplace-pulse/internal/adapter/api"
	"github.com/V4T54L/marketplace-pulse/internal/adapter/broker"
	"github.com/V4T54L/marketplace-pulse/internal/adapter/metrics"
	"github.com/V4T54L/marketplace-pulse/internal/adapter/pii"
	"github.com/V4T54L/marketplace-pulse/internal/adapter/repository/postgres"
	redisrepo "github.com/V4T54L/marketplace-pulse/internal/adapter/repository/redis"
	"github.com/V4T54L/marketplace-pulse/internal/domain"
	"github.com/V4T54L/marketplace-pulse/internal/pkg/config"
	"github.com/V4T54L/marketplace-pulse/internal/usecase"
)

const adminKey = "integration-admin-key"

var topology = broker.Topology{
	Exchange:           "marketplace.events",
	Queue:              "analytics.events",
	DeadLetterExchange: "marketplace.events.dlx",
	DeadLetterQueue:    "analytics.events.dead",
	Bindings:           []string{"application.*", "placement.*", "job.*", "candidate.*", "recruiter.*", "proposal.*"},
}

// startContainer runs image and returns host:port for the exposed port.
func startContainer(t *testing.T, req testcontainers.ContainerRequest) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Skipping test: cannot start %s container: %v", req.Image, err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, req.ExposedPorts[0])
	if err != nil {
		t.Fatalf("failed to get mapped port: %v", err)
	}
	return fmt.Sprintf("%s:%s", host, port.Port())
}

func eventually(t *testing.T, timeout time.Duration, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func TestPipelineFlow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	pgAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env:          map[string]string{"POSTGRES_USER": "pulse", "POSTGRES_PASSWORD": "pulse", "POSTGRES_DB": "pulse"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	})
	redisAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	})
	amqpAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "rabbitmq:3.13-alpine",
		ExposedPorts: []string{"5672/tcp"},
		WaitingFor:   wait.ForLog("Server startup complete").WithStartupTimeout(90 * time.Second),
	})
	amqpURL := "amqp://guest:guest@" + amqpAddr + "/"

	db, err := postgres.Open(ctx, fmt.Sprintf("postgres://pulse:pulse@%s/pulse?sslmode=disable", pgAddr))
	if err != nil {
		t.Fatalf("failed to open postgres: %v", err)
	}
	defer db.Close()
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO api_keys (key_hash, name) VALUES ($1, 'integration')`, postgres.HashKey(adminKey)); err != nil {
		t.Fatalf("failed to seed api key: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer redisClient.Close()

	m := metrics.New(prometheus.NewRegistry())
	events := postgres.NewEventRepository(db, logger)
	processEvents := usecase.NewProcessEventUseCase(
		events,
		redisrepo.NewCounterRepository(redisClient),
		usecase.NewCacheInvalidator(redisrepo.NewCacheRepository(redisClient), logger),
		usecase.NewDashboardPublisher(redisrepo.NewDashboardChannel(redisClient, logger), logger),
		pii.NewRedactor([]string{"email"}),
		logger,
	)
	consumer := broker.NewConsumer(amqpURL, "integration", topology, processEvents, m, logger)
	go consumer.Serve(ctx)

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		t.Fatalf("failed to dial broker: %v", err)
	}
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		t.Fatalf("failed to open channel: %v", err)
	}
	defer ch.Close()

	eventually(t, 30*time.Second, "queue declaration", func() bool {
		passive, err := conn.Channel()
		if err != nil {
			return false
		}
		defer passive.Close()
		_, err = passive.QueueDeclarePassive(topology.Queue, true, false, false, false, nil)
		return err == nil
	})

	// Producer time is three hours old; rollups and live counters follow the
	// receive time, which starts no earlier than received.
	at := time.Now().UTC().Add(-3 * time.Hour)
	received := time.Now().UTC()
	const batchSize = 20

	t.Run("Events are stored once despite redelivery", func(t *testing.T) {
		for round := 0; round < 2; round++ {
			for i := 0; i < batchSize; i++ {
				body, err := domain.MarshalDomainEvent("application.created", map[string]any{
					"application_id": fmt.Sprintf("a-%d", i),
					"recruiter_id":   "r-1",
					"company_id":     "c-1",
					"user_id":        "r-1",
					"email":          "candidate@example.com",
				}, at)
				if err != nil {
					t.Fatal(err)
				}
				err = ch.PublishWithContext(ctx, topology.Exchange, "application.created", false, false, amqp.Publishing{
					ContentType:  "application/json",
					DeliveryMode: amqp.Persistent,
					MessageId:    fmt.Sprintf("it-%d", i),
					Body:         body,
				})
				if err != nil {
					t.Fatalf("publish failed: %v", err)
				}
			}
		}

		var count int
		eventually(t, 30*time.Second, "events to be stored", func() bool {
			db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count)
			return count == batchSize
		})

		// Give the redeliveries time to be consumed, then make sure none was stored twice.
		time.Sleep(2 * time.Second)
		db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count)
		if count != batchSize {
			t.Fatalf("expected %d events, got %d", batchSize, count)
		}

		var email string
		db.QueryRowContext(ctx, `SELECT metadata->>'email' FROM events WHERE id = 'it-0'`).Scan(&email)
		if email != pii.RedactedPlaceholder {
			t.Errorf("expected redacted email, got %q", email)
		}
	})

	t.Run("Malformed messages are dead-lettered", func(t *testing.T) {
		err := ch.PublishWithContext(ctx, topology.Exchange, "application.created", false, false, amqp.Publishing{
			ContentType: "application/json",
			MessageId:   "it-bad",
			Body:        []byte("not json"),
		})
		if err != nil {
			t.Fatalf("publish failed: %v", err)
		}
		eventually(t, 30*time.Second, "dead-lettered message", func() bool {
			q, err := ch.QueueDeclarePassive(topology.DeadLetterQueue, true, false, false, false, nil)
			return err == nil && q.Messages == 1
		})
		var count int
		db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE id = 'it-bad'`).Scan(&count)
		if count != 0 {
			t.Error("malformed message must not be stored")
		}
	})

	t.Run("Hourly rollup counts every event once", func(t *testing.T) {
		// Two hours ahead so the hour the events arrived in is closed.
		rollup := usecase.NewRollupUseCase(events, postgres.NewMetricRepository(db), logger).
			WithClock(func() time.Time { return time.Now().Add(2 * time.Hour) })
		for i := 0; i < 2; i++ {
			if _, err := rollup.RunHourly(ctx); err != nil {
				t.Fatalf("rollup failed: %v", err)
			}
		}
		var total float64
		err := db.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(value), 0) FROM metrics_hourly WHERE metric_type = 'applications_submitted'`).Scan(&total)
		if err != nil {
			t.Fatal(err)
		}
		if total != batchSize {
			t.Errorf("expected %d applications rolled up, got %v", batchSize, total)
		}
	})

	presence := usecase.NewPresenceUseCase(
		redisrepo.NewPresenceRepository(redisClient, logger),
		postgres.NewPresenceSnapshotRepository(db),
		usecase.DefaultPresenceConfig(),
		logger,
	)
	router := api.NewRouter(
		config.HTTPConfig{HeartbeatRPS: 100, HeartbeatBurst: 100, MaxBodyBytes: 4096},
		logger,
		m,
		postgres.NewAPIKeyRepository(db, logger, time.Minute, m),
		presence,
		redisrepo.NewCounterRepository(redisClient),
		redisrepo.NewDashboardChannel(redisClient, logger),
	)
	srv := httptest.NewServer(router)
	defer srv.Close()

	get := func(t *testing.T, path string, v any) {
		t.Helper()
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+path, nil)
		req.Header.Set("X-API-Key", adminKey)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s: expected 200, got %d", path, resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("GET %s: invalid json: %v", path, err)
		}
	}

	t.Run("Live counters reflect consumed events", func(t *testing.T) {
		var total int64
		for h := domain.BucketHour.Truncate(received); !h.After(time.Now().UTC()); h = h.Add(time.Hour) {
			var live struct {
				Counts map[string]int64 `json:"counts"`
			}
			get(t, "/admin/metrics/live?hour="+h.Format("2006010215"), &live)
			total += live.Counts["applications_submitted"]
		}
		if total != batchSize {
			t.Errorf("expected %d live applications, got %d", batchSize, total)
		}
	})

	t.Run("Heartbeats appear in the snapshot", func(t *testing.T) {
		for _, hb := range []string{
			`{"session_id":"it-session-0001","app":"portal","page":"/jobs","status":"active","user_id":"r-1"}`,
			`{"session_id":"it-session-0002","app":"candidate","page":"/","status":"idle"}`,
		} {
			resp, err := http.Post(srv.URL+"/presence/heartbeat", "application/json", bytes.NewBufferString(hb))
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusNoContent {
				t.Fatalf("expected 204, got %d", resp.StatusCode)
			}
		}

		var snap domain.PresenceSnapshot
		get(t, "/admin/presence/snapshot", &snap)
		if snap.TotalOnline != 2 || snap.Authenticated != 1 || snap.Anonymous != 1 {
			t.Errorf("unexpected snapshot %+v", snap)
		}
		if snap.ByApp[domain.AppPortal] != 1 || snap.ByRole[domain.RoleRecruiter] != 1 {
			t.Errorf("unexpected breakdown app=%v role=%v", snap.ByApp, snap.ByRole)
		}

		if err := presence.PersistSnapshot(ctx); err != nil {
			t.Fatalf("persist snapshot failed: %v", err)
		}
		var stored int
		db.QueryRowContext(ctx, `SELECT total_online FROM presence_snapshots ORDER BY captured_at DESC LIMIT 1`).Scan(&stored)
		if stored != 2 {
			t.Errorf("expected persisted total 2, got %d", stored)
		}
	})
}
